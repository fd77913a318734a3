package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CurrencyTND = "TND"
	CurrencyEUR = "EUR"
)

// Wallet holds a user's cash and rewards balances in a single currency.
// The currency is fixed at creation; the total balance is always derived
// as cash + rewards and never stored on its own.
//
// Balances are only ever mutated through the ledger, together with an
// appended WalletTransaction row in the same database transaction.
type Wallet struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID            int64           `gorm:"uniqueIndex;not null" json:"user_id"`
	Currency          string          `gorm:"type:varchar(3);not null" json:"currency"`
	CashBalance       decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"cash_balance"`
	RewardsBalance    decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"rewards_balance"`
	LastTransactionAt *time.Time      `json:"last_transaction_at"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallet"
}

// TotalBalance is the derived overall balance.
func (w *Wallet) TotalBalance() decimal.Decimal {
	return w.CashBalance.Add(w.RewardsBalance)
}
