package repository

import (
	"context"
	"errors"

	"brickvest/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrPlanNotFound = errors.New("auto-reinvest plan not found")

type ReinvestPlanRepository struct {
	db *gorm.DB
}

func NewReinvestPlanRepository(db *gorm.DB) *ReinvestPlanRepository {
	return &ReinvestPlanRepository{db: db}
}

func (r *ReinvestPlanRepository) Create(ctx context.Context, plan *model.AutoReinvestPlan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

// GetCurrent returns the user's non-cancelled plan, if any. At most one
// exists at a time.
func (r *ReinvestPlanRepository) GetCurrent(ctx context.Context, userID int64) (*model.AutoReinvestPlan, error) {
	var plan model.AutoReinvestPlan
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []string{model.PlanStatusActive, model.PlanStatusPaused}).
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *ReinvestPlanRepository) Save(ctx context.Context, tx *gorm.DB, plan *model.AutoReinvestPlan) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Save(plan).Error
}

func (r *ReinvestPlanRepository) UpdateStatus(ctx context.Context, planID int64, status string) error {
	result := r.db.WithContext(ctx).
		Model(&model.AutoReinvestPlan{}).
		Where("id = ?", planID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// RecordPayout folds one payout into the plan's running aggregates and
// sets the new carry-forward in a single update.
func (r *ReinvestPlanRepository) RecordPayout(ctx context.Context, tx *gorm.DB, planID int64, payoutAmount, newPending, reinvested decimal.Decimal) error {
	if tx == nil {
		tx = r.db
	}
	updates := map[string]interface{}{
		"total_rental_income": gorm.Expr("total_rental_income + ?", payoutAmount),
		"payout_count":        gorm.Expr("payout_count + 1"),
		"pending_reinvest":    newPending,
	}
	if reinvested.IsPositive() {
		updates["total_reinvested"] = gorm.Expr("total_reinvested + ?", reinvested)
		updates["last_reinvest_at"] = gorm.Expr("NOW()")
	}
	return tx.WithContext(ctx).
		Model(&model.AutoReinvestPlan{}).
		Where("id = ?", planID).
		Updates(updates).Error
}
