package repository

import (
	"context"
	"errors"

	"brickvest/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrWalletNotFound   = errors.New("wallet not found")
	ErrBalanceNotEnough = errors.New("insufficient funds")
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) GetByUserID(ctx context.Context, userID int64) (*model.Wallet, error) {
	var wallet model.Wallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// List pages through all wallets, ordered by id. Used by the
// reconciler's conservation sweep.
func (r *WalletRepository) List(ctx context.Context, limit, offset int) ([]*model.Wallet, error) {
	var wallets []*model.Wallet
	err := r.db.WithContext(ctx).
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&wallets).Error
	return wallets, err
}

// GetByUserIDForUpdate locks the wallet row for the rest of the store
// transaction. Every balance mutation goes through this, so writes to a
// single wallet are serialized by the database.
func (r *WalletRepository) GetByUserIDForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.Wallet, error) {
	var wallet model.Wallet
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// GetOrCreate returns the user's wallet, creating it with the given
// currency on the first financial event. The currency is fixed from then
// on.
func (r *WalletRepository) GetOrCreate(ctx context.Context, userID int64, currency string) (*model.Wallet, error) {
	wallet, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return wallet, nil
	}

	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	newWallet := &model.Wallet{
		UserID:         userID,
		Currency:       currency,
		CashBalance:    decimal.Zero,
		RewardsBalance: decimal.Zero,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newWallet).Error

	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, userID)
}

// Credit adds amount to one of the wallet's balance columns.
func (r *WalletRepository) Credit(ctx context.Context, tx *gorm.DB, walletID int64, balanceType string, amount decimal.Decimal) error {
	column := balanceColumn(balanceType)
	result := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ?", walletID).
		Updates(map[string]interface{}{
			column:                gorm.Expr(column+" + ?", amount),
			"last_transaction_at": gorm.Expr("NOW()"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// Debit subtracts amount (positive) from a balance column, guarded so
// the balance can never go negative.
func (r *WalletRepository) Debit(ctx context.Context, tx *gorm.DB, walletID int64, balanceType string, amount decimal.Decimal) error {
	column := balanceColumn(balanceType)
	result := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ? AND "+column+" >= ?", walletID, amount).
		Updates(map[string]interface{}{
			column:                gorm.Expr(column+" - ?", amount),
			"last_transaction_at": gorm.Expr("NOW()"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var wallet model.Wallet
		if err := tx.WithContext(ctx).Where("id = ?", walletID).First(&wallet).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrWalletNotFound
			}
			return err
		}
		return ErrBalanceNotEnough
	}
	return nil
}

func balanceColumn(balanceType string) string {
	if balanceType == model.BalanceTypeRewards {
		return "rewards_balance"
	}
	return "cash_balance"
}
