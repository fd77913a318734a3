package repository

import (
	"context"
	"errors"

	"brickvest/internal/model"

	"gorm.io/gorm"
)

var (
	ErrCodeNotFound     = errors.New("referral code not found")
	ErrReferralNotFound = errors.New("referral not found")
	ErrDuplicateReferee = errors.New("referee already has a referral")
)

type ReferralRepository struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

func (r *ReferralRepository) GetActiveCode(ctx context.Context, userID int64, currency string) (*model.ReferralCode, error) {
	var code model.ReferralCode
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND currency = ? AND active = ?", userID, currency, true).
		First(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return &code, nil
}

// ResolveCode finds a code row whether or not it is still the active
// one; regenerated codes remain resolvable forever.
func (r *ReferralRepository) ResolveCode(ctx context.Context, code string) (*model.ReferralCode, error) {
	var rc model.ReferralCode
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&rc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return &rc, nil
}

func (r *ReferralRepository) CreateCode(ctx context.Context, code *model.ReferralCode) error {
	return r.db.WithContext(ctx).Create(code).Error
}

// DeactivateCodes retires the user's current active codes for a
// currency before a replacement is created.
func (r *ReferralRepository) DeactivateCodes(ctx context.Context, userID int64, currency string) error {
	return r.db.WithContext(ctx).
		Model(&model.ReferralCode{}).
		Where("user_id = ? AND currency = ? AND active = ?", userID, currency, true).
		Update("active", false).Error
}

func (r *ReferralRepository) CreateReferral(ctx context.Context, referral *model.Referral) error {
	err := r.db.WithContext(ctx).Create(referral).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateReferee
	}
	return err
}

func (r *ReferralRepository) GetByRefereeID(ctx context.Context, refereeID int64) (*model.Referral, error) {
	var referral model.Referral
	err := r.db.WithContext(ctx).Where("referee_id = ?", refereeID).First(&referral).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReferralNotFound
		}
		return nil, err
	}
	return &referral, nil
}

// MarkRefereeRewarded sets the referee flag; called only after the
// ledger credit succeeded.
func (r *ReferralRepository) MarkRefereeRewarded(ctx context.Context, referralID int64) error {
	return r.db.WithContext(ctx).
		Model(&model.Referral{}).
		Where("id = ?", referralID).
		Updates(map[string]interface{}{
			"referee_rewarded": true,
			"qualified_at":     gorm.Expr("COALESCE(qualified_at, NOW())"),
		}).Error
}

// MarkReferrerRewarded sets the referrer flag; called only after the
// ledger credit succeeded.
func (r *ReferralRepository) MarkReferrerRewarded(ctx context.Context, referralID int64) error {
	return r.db.WithContext(ctx).
		Model(&model.Referral{}).
		Where("id = ?", referralID).
		Updates(map[string]interface{}{
			"referrer_rewarded": true,
			"rewarded_at":       gorm.Expr("COALESCE(rewarded_at, NOW())"),
		}).Error
}

// ReferralStats are the aggregate counters shown on the referral screen.
type ReferralStats struct {
	TotalReferred int64 `json:"total_referred"`
	TotalInvested int64 `json:"total_invested"`
}

func (r *ReferralRepository) StatsByReferrer(ctx context.Context, referrerID int64) (ReferralStats, error) {
	var stats ReferralStats

	err := r.db.WithContext(ctx).
		Model(&model.Referral{}).
		Where("referrer_id = ?", referrerID).
		Count(&stats.TotalReferred).Error
	if err != nil {
		return stats, err
	}

	err = r.db.WithContext(ctx).
		Model(&model.Referral{}).
		Where("referrer_id = ? AND referrer_rewarded = ?", referrerID, true).
		Count(&stats.TotalInvested).Error
	return stats, err
}

// ListUnsettled returns non-terminal referrals for the reconciliation
// sweep.
func (r *ReferralRepository) ListUnsettled(ctx context.Context, limit int) ([]*model.Referral, error) {
	var referrals []*model.Referral
	err := r.db.WithContext(ctx).
		Where("referee_rewarded = ? OR referrer_rewarded = ?", false, false).
		Order("created_at ASC").
		Limit(limit).
		Find(&referrals).Error
	return referrals, err
}
