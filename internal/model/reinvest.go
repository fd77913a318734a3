package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PlanStatusActive    = "active"
	PlanStatusPaused    = "paused"
	PlanStatusCancelled = "cancelled"
)

const (
	ThemeGrowth      = "growth"
	ThemeIncome      = "income"
	ThemeIndex       = "index"
	ThemeBalanced    = "balanced"
	ThemeDiversified = "diversified"
)

const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// AutoReinvestPlan is a user-owned policy that converts a percentage of
// rental income into new investment orders once the accumulated amount
// reaches the plan's minimum. At most one non-cancelled plan per user.
type AutoReinvestPlan struct {
	ID                  int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID              int64           `gorm:"index;not null" json:"user_id"`
	Status              string          `gorm:"type:varchar(16);index;not null;default:active" json:"status"`
	Currency            string          `gorm:"type:varchar(3);not null" json:"currency"`
	MinimumReinvest     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"minimum_reinvest_amount"`
	ReinvestPercentage  decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"reinvest_percentage"`
	Theme               string          `gorm:"type:varchar(16);not null;default:balanced" json:"theme"`
	RiskLevel           string          `gorm:"type:varchar(8);not null;default:medium" json:"risk_level"`
	AutoApprovalEnabled bool            `gorm:"not null;default:true" json:"auto_approval_enabled"`
	PendingReinvest     decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"pending_reinvest_amount"` // carry-forward below threshold
	TotalRentalIncome   decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"total_rental_income"`
	TotalReinvested     decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"total_reinvested"`
	PayoutCount         int64           `gorm:"not null;default:0" json:"payout_count"`
	LastReinvestAt      *time.Time      `json:"last_reinvest_at"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AutoReinvestPlan) TableName() string {
	return "auto_reinvest_plan"
}

var validThemes = map[string]bool{
	ThemeGrowth:      true,
	ThemeIncome:      true,
	ThemeIndex:       true,
	ThemeBalanced:    true,
	ThemeDiversified: true,
}

var validRiskLevels = map[string]bool{
	RiskLow:    true,
	RiskMedium: true,
	RiskHigh:   true,
}

func ValidTheme(theme string) bool {
	return validThemes[theme]
}

func ValidRiskLevel(level string) bool {
	return validRiskLevels[level]
}
