package repository

import (
	"context"
	"errors"

	"brickvest/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrDuplicatePayout marks a payout_id that was already processed.
var ErrDuplicatePayout = errors.New("payout already processed")

type PayoutRepository struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// Create inserts the processed-payout marker. The payout_id unique
// index turns a replayed event into ErrDuplicatePayout.
func (r *PayoutRepository) Create(ctx context.Context, tx *gorm.DB, payout *model.RentalPayout) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(payout).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicatePayout
	}
	return err
}

func (r *PayoutRepository) GetByPayoutID(ctx context.Context, payoutID string) (*model.RentalPayout, error) {
	var payout model.RentalPayout
	err := r.db.WithContext(ctx).Where("payout_id = ?", payoutID).First(&payout).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// StampAllocation persists the allocation number on a still-recorded
// payout row, so an interrupted run re-drives with the same number.
func (r *PayoutRepository) StampAllocation(ctx context.Context, payoutID, allocationNo string) error {
	return r.db.WithContext(ctx).
		Model(&model.RentalPayout{}).
		Where("payout_id = ? AND status = ?", payoutID, model.PayoutStatusRecorded).
		Update("allocation_no", allocationNo).Error
}

func (r *PayoutRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.RentalPayout, int64, error) {
	var payouts []*model.RentalPayout
	var total int64

	query := r.db.WithContext(ctx).Model(&model.RentalPayout{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("payout_date DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&payouts).Error

	return payouts, total, err
}

// MarkOutcome records how the planner settled a payout: carried forward,
// or folded into an allocation.
func (r *PayoutRepository) MarkOutcome(ctx context.Context, tx *gorm.DB, payoutID string, status string, reinvested *decimal.Decimal, allocationNo string) error {
	if tx == nil {
		tx = r.db
	}
	updates := map[string]interface{}{"status": status}
	if reinvested != nil {
		updates["reinvested_amt"] = *reinvested
	}
	if allocationNo != "" {
		updates["allocation_no"] = allocationNo
	}
	return tx.WithContext(ctx).
		Model(&model.RentalPayout{}).
		Where("payout_id = ?", payoutID).
		Updates(updates).Error
}
