package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionTypeDeposit              = "deposit"
	TransactionTypeWithdrawal           = "withdrawal"
	TransactionTypeInvestmentDebit      = "investment_debit"
	TransactionTypeReferralBonus        = "referral_bonus"
	TransactionTypeRentalPayout         = "rental_payout"
	TransactionTypeReinvestAllocation   = "auto_reinvest_allocation"
)

const (
	BalanceTypeCash    = "cash"
	BalanceTypeRewards = "rewards"
)

// BalanceTypeFor maps a transaction type to the wallet balance it moves.
// Referral bonuses land on the rewards balance, everything else on cash.
func BalanceTypeFor(txType string) string {
	if txType == TransactionTypeReferralBonus {
		return BalanceTypeRewards
	}
	return BalanceTypeCash
}

// WalletTransaction is one row of the append-only ledger.
//
// Rows are never updated or deleted. The unique dedupe_key is what makes
// reward crediting at-most-once: every financially effective write names
// its logical cause (e.g. "referral:42:referee", "payout:ab12"), and a
// replay hits the unique index instead of moving money twice.
type WalletTransaction struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo   string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	UserID          int64           `gorm:"index;not null" json:"user_id"`
	WalletID        int64           `gorm:"index;not null" json:"wallet_id"`
	Type            string          `gorm:"type:varchar(32);index;not null" json:"type"`
	Amount          decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"` // signed: positive credit, negative debit
	Currency        string          `gorm:"type:varchar(3);not null" json:"currency"`
	BalanceType     string          `gorm:"type:varchar(10);not null" json:"balance_type"`
	Description     string          `gorm:"type:varchar(255)" json:"description"`
	RelatedEntityID string          `gorm:"type:varchar(64)" json:"related_entity_id"`
	DedupeKey       string          `gorm:"type:varchar(128);uniqueIndex;not null" json:"dedupe_key"`
	CreatedAt       time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transaction"
}

// IsDebit reports whether the row moved money out of the wallet.
func (t *WalletTransaction) IsDebit() bool {
	return t.Amount.IsNegative()
}
