package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PayoutStatusRecorded   = "recorded"
	PayoutStatusCarried    = "carried"
	PayoutStatusReinvested = "reinvested"
)

// RentalPayout is the processed-payout set for the planner: one row per
// external payout_id, inserted before any reinvest effect. The unique
// index on payout_id is what makes rental-payout delivery idempotent.
type RentalPayout struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PayoutID       string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"payout_id"`
	UserID         int64           `gorm:"index;not null" json:"user_id"`
	ProjectID      int64           `json:"project_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	Currency       string          `gorm:"type:varchar(3);not null" json:"currency"`
	Status         string          `gorm:"type:varchar(16);index;not null;default:recorded" json:"status"`
	ReinvestedAmt  decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"reinvested_amount"`
	AllocationNo   string          `gorm:"type:varchar(64)" json:"allocation_no"`
	PayoutDate     time.Time       `gorm:"index;not null" json:"payout_date"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RentalPayout) TableName() string {
	return "rental_payout"
}
