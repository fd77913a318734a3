package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AllocationStatusAwaitingApproval = "awaiting_approval"
	AllocationStatusPending          = "pending"
	AllocationStatusSubmitted        = "submitted"
	AllocationStatusFailed           = "failed"
)

// Allowed allocation status transitions. Pending allocations carry a
// ledger debit; awaiting_approval ones do not until approved.
var ValidAllocationTransitions = map[string][]string{
	AllocationStatusAwaitingApproval: {AllocationStatusPending},
	AllocationStatusPending:          {AllocationStatusSubmitted, AllocationStatusFailed},
}

func CanTransitionAllocation(current, target string) bool {
	for _, s := range ValidAllocationTransitions[current] {
		if s == target {
			return true
		}
	}
	return false
}

// ReinvestAllocation is the durable intent to place an investment order
// with the external Investment Processor. The row (and, for auto-approved
// plans, its matching cash debit) is persisted first; the external call
// happens later from the submitter job, never inside a store transaction.
type ReinvestAllocation struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AllocationNo  string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"allocation_no"`
	UserID        int64           `gorm:"index;not null" json:"user_id"`
	PlanID        int64           `gorm:"index;not null" json:"plan_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	Currency      string          `gorm:"type:varchar(3);not null" json:"currency"`
	Theme         string          `gorm:"type:varchar(16);not null" json:"theme"`
	RiskLevel     string          `gorm:"type:varchar(8);not null" json:"risk_level"`
	Status        string          `gorm:"type:varchar(20);index;not null" json:"status"`
	InvestmentID  string          `gorm:"type:varchar(64)" json:"investment_id"` // assigned by the Investment Processor
	AttemptCount  int             `gorm:"not null;default:0" json:"attempt_count"`
	NextAttemptAt time.Time       `gorm:"index;not null" json:"next_attempt_at"`
	LastError     string          `gorm:"type:varchar(255)" json:"last_error"`
	SubmittedAt   *time.Time      `json:"submitted_at"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ReinvestAllocation) TableName() string {
	return "reinvest_allocation"
}
