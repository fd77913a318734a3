package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ReferralStatusPending          = "pending"
	ReferralStatusRefereeRewarded  = "referee_rewarded"
	ReferralStatusReferrerRewarded = "referrer_rewarded"
	ReferralStatusRewarded         = "rewarded"
)

// ReferralCode is a shareable invite code. A user has at most one active
// code per currency; regenerating deactivates the old row but keeps it
// resolvable so links that were already shared keep working.
type ReferralCode struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"index:idx_refcode_user;not null" json:"user_id"`
	Code      string    `gorm:"type:varchar(16);uniqueIndex;not null" json:"code"`
	Currency  string    `gorm:"type:varchar(3);not null" json:"currency"`
	Active    bool      `gorm:"index:idx_refcode_user;not null;default:true" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ReferralCode) TableName() string {
	return "referral_code"
}

// Referral links a referrer to a referee, created once at referee signup.
// The referee_id unique index enforces that a user can only ever be
// referred once.
//
// The two reward flags are independent facts, not a linear state machine:
// a qualifying investment can land before the approval event. Each flag is
// set only after the corresponding ledger credit succeeded; the derived
// label in Status() is display-only.
type Referral struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ReferrerID       int64           `gorm:"index;not null" json:"referrer_id"`
	RefereeID        int64           `gorm:"uniqueIndex;not null" json:"referee_id"`
	Code             string          `gorm:"type:varchar(16);not null" json:"code"`
	Currency         string          `gorm:"type:varchar(3);not null" json:"currency"`
	RefereeReward    decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"referee_reward"`
	ReferrerReward   decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"referrer_reward"`
	MinInvestment    decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"min_investment"`
	RefereeRewarded  bool            `gorm:"not null;default:false" json:"referee_rewarded"`
	ReferrerRewarded bool            `gorm:"not null;default:false" json:"referrer_rewarded"`
	QualifiedAt      *time.Time      `json:"qualified_at"`
	RewardedAt       *time.Time      `json:"rewarded_at"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Referral) TableName() string {
	return "referral"
}

// Status derives the display label from the two reward facts.
func (r *Referral) Status() string {
	switch {
	case r.RefereeRewarded && r.ReferrerRewarded:
		return ReferralStatusRewarded
	case r.ReferrerRewarded:
		return ReferralStatusReferrerRewarded
	case r.RefereeRewarded:
		return ReferralStatusRefereeRewarded
	default:
		return ReferralStatusPending
	}
}

// Terminal reports whether both rewards have been credited.
func (r *Referral) Terminal() bool {
	return r.RefereeRewarded && r.ReferrerRewarded
}
