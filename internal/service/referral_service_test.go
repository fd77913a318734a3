package service_test

import (
	"context"
	"testing"

	"brickvest/internal/config"
	"brickvest/internal/model"
	"brickvest/internal/repository"
	"brickvest/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type referralStoreMock struct {
	codes     []*model.ReferralCode
	referrals []*model.Referral
	stats     repository.ReferralStats
}

func (m *referralStoreMock) GetActiveCode(ctx context.Context, userID int64, currency string) (*model.ReferralCode, error) {
	for _, c := range m.codes {
		if c.UserID == userID && c.Currency == currency && c.Active {
			return c, nil
		}
	}
	return nil, repository.ErrCodeNotFound
}
func (m *referralStoreMock) ResolveCode(ctx context.Context, code string) (*model.ReferralCode, error) {
	for _, c := range m.codes {
		if c.Code == code {
			return c, nil
		}
	}
	return nil, repository.ErrCodeNotFound
}
func (m *referralStoreMock) CreateCode(ctx context.Context, code *model.ReferralCode) error {
	m.codes = append(m.codes, code)
	return nil
}
func (m *referralStoreMock) DeactivateCodes(ctx context.Context, userID int64, currency string) error {
	for _, c := range m.codes {
		if c.UserID == userID && c.Currency == currency {
			c.Active = false
		}
	}
	return nil
}
func (m *referralStoreMock) CreateReferral(ctx context.Context, referral *model.Referral) error {
	for _, r := range m.referrals {
		if r.RefereeID == referral.RefereeID {
			return repository.ErrDuplicateReferee
		}
	}
	referral.ID = int64(len(m.referrals) + 1)
	m.referrals = append(m.referrals, referral)
	return nil
}
func (m *referralStoreMock) GetByRefereeID(ctx context.Context, refereeID int64) (*model.Referral, error) {
	for _, r := range m.referrals {
		if r.RefereeID == refereeID {
			return r, nil
		}
	}
	return nil, repository.ErrReferralNotFound
}
func (m *referralStoreMock) StatsByReferrer(ctx context.Context, referrerID int64) (repository.ReferralStats, error) {
	return m.stats, nil
}

func testBusinessConfig() *config.BusinessConfig {
	return &config.BusinessConfig{
		Rewards: map[string]config.RewardTier{
			model.CurrencyTND: {RefereeReward: "25", ReferrerReward: "125", MinInvestment: "2000"},
			model.CurrencyEUR: {RefereeReward: "10", ReferrerReward: "50", MinInvestment: "800"},
		},
		MinReinvestAmount: "10",
	}
}

func TestIssueCode_Idempotent(t *testing.T) {
	store := &referralStoreMock{}
	s := service.NewReferralService(store, testBusinessConfig())

	first, err := s.IssueCode(context.Background(), 1, model.CurrencyTND)
	require.NoError(t, err)
	assert.Len(t, first.Code, 7)
	assert.True(t, first.Active)

	second, err := s.IssueCode(context.Background(), 1, model.CurrencyTND)
	require.NoError(t, err)
	assert.Equal(t, first.Code, second.Code)
	assert.Len(t, store.codes, 1)
}

func TestIssueCode_UnsupportedCurrency(t *testing.T) {
	s := service.NewReferralService(&referralStoreMock{}, testBusinessConfig())

	_, err := s.IssueCode(context.Background(), 1, "USD")
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestRegenerateCode_OldCodeStaysResolvable(t *testing.T) {
	store := &referralStoreMock{}
	s := service.NewReferralService(store, testBusinessConfig())

	old, err := s.IssueCode(context.Background(), 1, model.CurrencyTND)
	require.NoError(t, err)

	fresh, err := s.RegenerateCode(context.Background(), 1, model.CurrencyTND)
	require.NoError(t, err)
	assert.NotEqual(t, old.Code, fresh.Code)
	assert.False(t, old.Active)

	// A link shared before regeneration still resolves to the owner.
	ownerID, err := s.ResolveCode(context.Background(), old.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ownerID)
}

func TestCreateReferral_SnapshotsRewardConfig(t *testing.T) {
	store := &referralStoreMock{}
	s := service.NewReferralService(store, testBusinessConfig())

	code, err := s.IssueCode(context.Background(), 1, model.CurrencyTND)
	require.NoError(t, err)

	referral, err := s.CreateReferral(context.Background(), 2, code.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(1), referral.ReferrerID)
	assert.Equal(t, int64(2), referral.RefereeID)
	assert.Equal(t, model.CurrencyTND, referral.Currency)
	assert.Equal(t, "25", referral.RefereeReward.String())
	assert.Equal(t, "125", referral.ReferrerReward.String())
	assert.Equal(t, "2000", referral.MinInvestment.String())
	assert.Equal(t, model.ReferralStatusPending, referral.Status())
}

func TestCreateReferral_SelfReferral(t *testing.T) {
	store := &referralStoreMock{}
	s := service.NewReferralService(store, testBusinessConfig())

	code, err := s.IssueCode(context.Background(), 1, model.CurrencyTND)
	require.NoError(t, err)

	_, err = s.CreateReferral(context.Background(), 1, code.Code)
	assert.ErrorIs(t, err, service.ErrSelfReferral)
	assert.Empty(t, store.referrals)
}

func TestCreateReferral_AlreadyReferred(t *testing.T) {
	store := &referralStoreMock{}
	s := service.NewReferralService(store, testBusinessConfig())

	code1, err := s.IssueCode(context.Background(), 1, model.CurrencyTND)
	require.NoError(t, err)
	code2, err := s.IssueCode(context.Background(), 3, model.CurrencyTND)
	require.NoError(t, err)

	_, err = s.CreateReferral(context.Background(), 2, code1.Code)
	require.NoError(t, err)

	_, err = s.CreateReferral(context.Background(), 2, code2.Code)
	assert.ErrorIs(t, err, service.ErrAlreadyReferred)
	assert.Len(t, store.referrals, 1)
}

func TestCreateReferral_InvalidCode(t *testing.T) {
	s := service.NewReferralService(&referralStoreMock{}, testBusinessConfig())

	_, err := s.CreateReferral(context.Background(), 2, "nope123")
	assert.ErrorIs(t, err, service.ErrInvalidCode)
}

func TestGetReferralInfo(t *testing.T) {
	store := &referralStoreMock{stats: repository.ReferralStats{TotalReferred: 4, TotalInvested: 2}}
	s := service.NewReferralService(store, testBusinessConfig())

	info, err := s.GetReferralInfo(context.Background(), 1, model.CurrencyEUR)
	require.NoError(t, err)
	assert.Len(t, info.Code, 7)
	assert.Equal(t, model.CurrencyEUR, info.Currency)
	assert.Equal(t, "50", info.ReferralAmount.String())
	assert.Equal(t, "800", info.MinInvestment.String())
	assert.Equal(t, int64(4), info.Stats.TotalReferred)
	assert.Equal(t, int64(2), info.Stats.TotalInvested)
}
