package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"brickvest/internal/config"
	"brickvest/internal/model"
	"brickvest/internal/repository"

	"github.com/shopspring/decimal"
)

const referralCodeLength = 7

// ReferralStore is the registry persistence the service needs. Satisfied
// by *repository.ReferralRepository.
type ReferralStore interface {
	GetActiveCode(ctx context.Context, userID int64, currency string) (*model.ReferralCode, error)
	ResolveCode(ctx context.Context, code string) (*model.ReferralCode, error)
	CreateCode(ctx context.Context, code *model.ReferralCode) error
	DeactivateCodes(ctx context.Context, userID int64, currency string) error

	CreateReferral(ctx context.Context, referral *model.Referral) error
	GetByRefereeID(ctx context.Context, refereeID int64) (*model.Referral, error)
	StatsByReferrer(ctx context.Context, referrerID int64) (repository.ReferralStats, error)
}

// ReferralService issues and resolves invite codes and creates the
// referrer-referee link at signup.
type ReferralService struct {
	store ReferralStore
	cfg   *config.BusinessConfig
}

func NewReferralService(store ReferralStore, cfg *config.BusinessConfig) *ReferralService {
	return &ReferralService{store: store, cfg: cfg}
}

// IssueCode returns the user's active code for a currency, minting one
// on first use. Idempotent.
func (s *ReferralService) IssueCode(ctx context.Context, userID int64, currency string) (*model.ReferralCode, error) {
	if _, ok := s.cfg.Tier(currency); !ok {
		return nil, fmt.Errorf("%w: unsupported currency %q", ErrValidation, currency)
	}

	code, err := s.store.GetActiveCode(ctx, userID, currency)
	if err == nil {
		return code, nil
	}
	if !errors.Is(err, repository.ErrCodeNotFound) {
		return nil, err
	}

	return s.mintCode(ctx, userID, currency)
}

// RegenerateCode retires the current active code and mints a fresh one.
// The retired code stays resolvable so already-shared links keep
// working.
func (s *ReferralService) RegenerateCode(ctx context.Context, userID int64, currency string) (*model.ReferralCode, error) {
	if _, ok := s.cfg.Tier(currency); !ok {
		return nil, fmt.Errorf("%w: unsupported currency %q", ErrValidation, currency)
	}
	if err := s.store.DeactivateCodes(ctx, userID, currency); err != nil {
		return nil, err
	}
	return s.mintCode(ctx, userID, currency)
}

func (s *ReferralService) mintCode(ctx context.Context, userID int64, currency string) (*model.ReferralCode, error) {
	// Codes are short random lowercase hex strings; collisions are rare
	// but possible, so retry against the unique index a few times.
	for attempt := 0; attempt < 5; attempt++ {
		value, err := generateCodeValue()
		if err != nil {
			return nil, err
		}
		if existing, err := s.store.ResolveCode(ctx, value); err == nil && existing != nil {
			continue
		} else if err != nil && !errors.Is(err, repository.ErrCodeNotFound) {
			return nil, err
		}

		code := &model.ReferralCode{
			UserID:   userID,
			Code:     value,
			Currency: currency,
			Active:   true,
		}
		if err := s.store.CreateCode(ctx, code); err != nil {
			return nil, err
		}
		return code, nil
	}
	return nil, fmt.Errorf("mint referral code: exhausted attempts")
}

func generateCodeValue() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate referral code: %w", err)
	}
	return hex.EncodeToString(buf)[:referralCodeLength], nil
}

// ResolveCode maps a code (active or retired) to its owner.
func (s *ReferralService) ResolveCode(ctx context.Context, code string) (int64, error) {
	rc, err := s.store.ResolveCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return 0, ErrInvalidCode
		}
		return 0, err
	}
	return rc.UserID, nil
}

// CreateReferral links a new signup to the owner of the supplied code,
// snapshotting the current reward configuration onto the record so later
// config changes never change promised amounts. A referee can only ever
// be referred once.
func (s *ReferralService) CreateReferral(ctx context.Context, refereeID int64, code string) (*model.Referral, error) {
	rc, err := s.store.ResolveCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, err
	}

	if rc.UserID == refereeID {
		return nil, ErrSelfReferral
	}

	if existing, err := s.store.GetByRefereeID(ctx, refereeID); err == nil && existing != nil {
		return nil, ErrAlreadyReferred
	} else if err != nil && !errors.Is(err, repository.ErrReferralNotFound) {
		return nil, err
	}

	tier, ok := s.cfg.Tier(rc.Currency)
	if !ok {
		return nil, fmt.Errorf("%w: no reward tier for currency %q", ErrValidation, rc.Currency)
	}

	referral := &model.Referral{
		ReferrerID:     rc.UserID,
		RefereeID:      refereeID,
		Code:           rc.Code,
		Currency:       rc.Currency,
		RefereeReward:  config.MustDecimal(tier.RefereeReward),
		ReferrerReward: config.MustDecimal(tier.ReferrerReward),
		MinInvestment:  config.MustDecimal(tier.MinInvestment),
	}

	if err := s.store.CreateReferral(ctx, referral); err != nil {
		if errors.Is(err, repository.ErrDuplicateReferee) {
			return nil, ErrAlreadyReferred
		}
		return nil, err
	}
	return referral, nil
}

// ReferralInfo is the referral screen payload.
type ReferralInfo struct {
	Code           string                   `json:"code"`
	Currency       string                   `json:"currency"`
	ReferralAmount decimal.Decimal          `json:"referral_amount"`
	MinInvestment  decimal.Decimal          `json:"min_investment"`
	Stats          repository.ReferralStats `json:"stats"`
}

// GetReferralInfo returns the user's code, the current reward amounts
// for their currency and their referral counters.
func (s *ReferralService) GetReferralInfo(ctx context.Context, userID int64, currency string) (*ReferralInfo, error) {
	code, err := s.IssueCode(ctx, userID, currency)
	if err != nil {
		return nil, err
	}

	tier, _ := s.cfg.Tier(currency)
	stats, err := s.store.StatsByReferrer(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &ReferralInfo{
		Code:           code.Code,
		Currency:       currency,
		ReferralAmount: config.MustDecimal(tier.ReferrerReward),
		MinInvestment:  config.MustDecimal(tier.MinInvestment),
		Stats:          stats,
	}, nil
}

var _ ReferralStore = (*repository.ReferralRepository)(nil)
