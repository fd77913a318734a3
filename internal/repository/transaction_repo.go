package repository

import (
	"context"
	"errors"
	"time"

	"brickvest/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrDuplicateDedupeKey marks an insert that hit the dedupe_key unique
// index: the logical cause was already recorded. Callers treat it as the
// idempotent-replay signal, not a failure.
var ErrDuplicateDedupeKey = errors.New("dedupe key already recorded")

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.WalletTransaction) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(trans).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateDedupeKey
	}
	return err
}

func (r *TransactionRepository) GetByDedupeKey(ctx context.Context, dedupeKey string) (*model.WalletTransaction, error) {
	var trans model.WalletTransaction
	err := r.db.WithContext(ctx).Where("dedupe_key = ?", dedupeKey).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

// ListFilter narrows and pages the transaction history.
type ListFilter struct {
	Type     string
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PageSize int
}

func (r *TransactionRepository) ListByWalletID(ctx context.Context, walletID int64, filter ListFilter) ([]*model.WalletTransaction, int64, error) {
	var transactions []*model.WalletTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.WalletTransaction{}).Where("wallet_id = ?", walletID)
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.DateFrom != nil {
		query = query.Where("created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("created_at <= ?", *filter.DateTo)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&transactions).Error

	return transactions, total, err
}

// SumByType totals the signed amounts of one transaction type for a
// wallet.
func (r *TransactionRepository) SumByType(ctx context.Context, walletID int64, txType string) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&model.WalletTransaction{}).
		Select("SUM(amount)").
		Where("wallet_id = ? AND type = ?", walletID, txType).
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// SumByWallet totals all signed amounts for a wallet; used by the
// reconciler to check the conservation invariant.
func (r *TransactionRepository) SumByWallet(ctx context.Context, walletID int64) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&model.WalletTransaction{}).
		Select("SUM(amount)").
		Where("wallet_id = ?", walletID).
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}
