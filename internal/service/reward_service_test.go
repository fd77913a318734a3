package service_test

import (
	"context"
	"errors"
	"testing"

	"brickvest/internal/model"
	"brickvest/internal/repository"
	"brickvest/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type rewardStoreMock struct {
	getByRefereeFn      func(ctx context.Context, refereeID int64) (*model.Referral, error)
	markRefereeFn       func(ctx context.Context, referralID int64) error
	markReferrerFn      func(ctx context.Context, referralID int64) error
	refereeMarkedCount  int
	referrerMarkedCount int
}

func (m *rewardStoreMock) GetByRefereeID(ctx context.Context, refereeID int64) (*model.Referral, error) {
	return m.getByRefereeFn(ctx, refereeID)
}
func (m *rewardStoreMock) MarkRefereeRewarded(ctx context.Context, referralID int64) error {
	m.refereeMarkedCount++
	if m.markRefereeFn != nil {
		return m.markRefereeFn(ctx, referralID)
	}
	return nil
}
func (m *rewardStoreMock) MarkReferrerRewarded(ctx context.Context, referralID int64) error {
	m.referrerMarkedCount++
	if m.markReferrerFn != nil {
		return m.markReferrerFn(ctx, referralID)
	}
	return nil
}

type ledgerMock struct {
	applyFn func(ctx context.Context, req service.ApplyRequest) (*model.WalletTransaction, error)
	applied []service.ApplyRequest
}

func (m *ledgerMock) Apply(ctx context.Context, req service.ApplyRequest) (*model.WalletTransaction, error) {
	m.applied = append(m.applied, req)
	if m.applyFn != nil {
		return m.applyFn(ctx, req)
	}
	return &model.WalletTransaction{TransactionNo: "TXN-test", DedupeKey: req.DedupeKey, Amount: req.Amount}, nil
}

type notifierMock struct {
	enqueued []string
}

func (m *notifierMock) Enqueue(ctx context.Context, tx *gorm.DB, eventType, key string, payload interface{}) error {
	m.enqueued = append(m.enqueued, eventType)
	return nil
}

func tndReferral() *model.Referral {
	return &model.Referral{
		ID:             7,
		ReferrerID:     1,
		RefereeID:      2,
		Code:           "abc1234",
		Currency:       model.CurrencyTND,
		RefereeReward:  decimal.NewFromInt(25),
		ReferrerReward: decimal.NewFromInt(125),
		MinInvestment:  decimal.NewFromInt(2000),
	}
}

func TestOnUserApproved_CreditsRefereeOnce(t *testing.T) {
	ref := tndReferral()
	store := &rewardStoreMock{
		getByRefereeFn: func(ctx context.Context, refereeID int64) (*model.Referral, error) {
			return ref, nil
		},
	}
	ledger := &ledgerMock{}
	notifier := &notifierMock{}
	s := service.NewRewardService(store, ledger, notifier)

	require.NoError(t, s.OnUserApproved(context.Background(), 2))

	require.Len(t, ledger.applied, 1)
	req := ledger.applied[0]
	assert.Equal(t, int64(2), req.UserID)
	assert.Equal(t, model.TransactionTypeReferralBonus, req.Type)
	assert.True(t, decimal.NewFromInt(25).Equal(req.Amount))
	assert.Equal(t, model.CurrencyTND, req.Currency)
	assert.Equal(t, service.RefereeDedupeKey(7), req.DedupeKey)
	assert.Equal(t, 1, store.refereeMarkedCount)
	assert.Equal(t, []string{model.NotifyRewardCredited}, notifier.enqueued)

	// Replay after the flag is set is a no-op.
	ref.RefereeRewarded = true
	require.NoError(t, s.OnUserApproved(context.Background(), 2))
	assert.Len(t, ledger.applied, 1)
}

func TestOnUserApproved_NotReferred(t *testing.T) {
	store := &rewardStoreMock{
		getByRefereeFn: func(ctx context.Context, refereeID int64) (*model.Referral, error) {
			return nil, repository.ErrReferralNotFound
		},
	}
	ledger := &ledgerMock{}
	s := service.NewRewardService(store, ledger, nil)

	require.NoError(t, s.OnUserApproved(context.Background(), 99))
	assert.Empty(t, ledger.applied)
}

func TestOnUserApproved_LedgerFailureLeavesFlagUnset(t *testing.T) {
	store := &rewardStoreMock{
		getByRefereeFn: func(ctx context.Context, refereeID int64) (*model.Referral, error) {
			return tndReferral(), nil
		},
	}
	ledger := &ledgerMock{
		applyFn: func(ctx context.Context, req service.ApplyRequest) (*model.WalletTransaction, error) {
			return nil, errors.New("db down")
		},
	}
	s := service.NewRewardService(store, ledger, nil)

	require.Error(t, s.OnUserApproved(context.Background(), 2))
	assert.Equal(t, 0, store.refereeMarkedCount)
}

func TestOnQualifyingInvestment_ThresholdBoundary(t *testing.T) {
	ref := tndReferral()
	store := &rewardStoreMock{
		getByRefereeFn: func(ctx context.Context, refereeID int64) (*model.Referral, error) {
			return ref, nil
		},
	}
	ledger := &ledgerMock{}
	s := service.NewRewardService(store, ledger, nil)

	// 1999.99 is below the snapshotted 2000 minimum.
	require.NoError(t, s.OnQualifyingInvestment(context.Background(), 2, decimal.RequireFromString("1999.99"), model.CurrencyTND))
	assert.Empty(t, ledger.applied)
	assert.Equal(t, 0, store.referrerMarkedCount)

	// Exactly the minimum qualifies.
	require.NoError(t, s.OnQualifyingInvestment(context.Background(), 2, decimal.NewFromInt(2000), model.CurrencyTND))
	require.Len(t, ledger.applied, 1)
	req := ledger.applied[0]
	assert.Equal(t, int64(1), req.UserID) // credit goes to the referrer
	assert.True(t, decimal.NewFromInt(125).Equal(req.Amount))
	assert.Equal(t, service.ReferrerDedupeKey(7), req.DedupeKey)
	assert.Equal(t, 1, store.referrerMarkedCount)
}

func TestOnQualifyingInvestment_CurrencyIsolation(t *testing.T) {
	store := &rewardStoreMock{
		getByRefereeFn: func(ctx context.Context, refereeID int64) (*model.Referral, error) {
			return tndReferral(), nil
		},
	}
	ledger := &ledgerMock{}
	s := service.NewRewardService(store, ledger, nil)

	// A huge EUR investment never qualifies against a TND record.
	require.NoError(t, s.OnQualifyingInvestment(context.Background(), 2, decimal.NewFromInt(100000), model.CurrencyEUR))
	assert.Empty(t, ledger.applied)
	assert.Equal(t, 0, store.referrerMarkedCount)
}

func TestOnQualifyingInvestment_AlreadyRewarded(t *testing.T) {
	ref := tndReferral()
	ref.ReferrerRewarded = true
	store := &rewardStoreMock{
		getByRefereeFn: func(ctx context.Context, refereeID int64) (*model.Referral, error) {
			return ref, nil
		},
	}
	ledger := &ledgerMock{}
	s := service.NewRewardService(store, ledger, nil)

	require.NoError(t, s.OnQualifyingInvestment(context.Background(), 2, decimal.NewFromInt(5000), model.CurrencyTND))
	assert.Empty(t, ledger.applied)
}

// Both rewards for one referral are independent facts: the referee's
// welcome bonus and the referrer's investment bonus each fire once.
func TestDualRewardFlow(t *testing.T) {
	ref := tndReferral()
	store := &rewardStoreMock{
		getByRefereeFn: func(ctx context.Context, refereeID int64) (*model.Referral, error) {
			return ref, nil
		},
		markRefereeFn: func(ctx context.Context, referralID int64) error {
			ref.RefereeRewarded = true
			return nil
		},
		markReferrerFn: func(ctx context.Context, referralID int64) error {
			ref.ReferrerRewarded = true
			return nil
		},
	}
	ledger := &ledgerMock{}
	s := service.NewRewardService(store, ledger, nil)

	require.NoError(t, s.OnUserApproved(context.Background(), 2))
	require.NoError(t, s.OnQualifyingInvestment(context.Background(), 2, decimal.NewFromInt(3000), model.CurrencyTND))

	require.Len(t, ledger.applied, 2)
	assert.Equal(t, service.RefereeDedupeKey(7), ledger.applied[0].DedupeKey)
	assert.Equal(t, service.ReferrerDedupeKey(7), ledger.applied[1].DedupeKey)
	assert.Equal(t, model.ReferralStatusRewarded, ref.Status())

	// Replaying either event after settlement moves no more money.
	require.NoError(t, s.OnUserApproved(context.Background(), 2))
	require.NoError(t, s.OnQualifyingInvestment(context.Background(), 2, decimal.NewFromInt(3000), model.CurrencyTND))
	assert.Len(t, ledger.applied, 2)
}
