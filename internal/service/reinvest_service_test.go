package service_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"brickvest/internal/event"
	"brickvest/internal/model"
	"brickvest/internal/repository"
	"brickvest/internal/service"
	"brickvest/pkg/idgen"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	idgen.Init(1)
}

type planStoreMock struct {
	plan          *model.AutoReinvestPlan
	createFn      func(ctx context.Context, plan *model.AutoReinvestPlan) error
	updateStatus  []string
	recordedPends []decimal.Decimal
}

func (m *planStoreMock) Create(ctx context.Context, plan *model.AutoReinvestPlan) error {
	if m.createFn != nil {
		return m.createFn(ctx, plan)
	}
	m.plan = plan
	return nil
}
func (m *planStoreMock) GetCurrent(ctx context.Context, userID int64) (*model.AutoReinvestPlan, error) {
	if m.plan == nil {
		return nil, repository.ErrPlanNotFound
	}
	return m.plan, nil
}
func (m *planStoreMock) Save(ctx context.Context, tx *gorm.DB, plan *model.AutoReinvestPlan) error {
	m.plan = plan
	return nil
}
func (m *planStoreMock) UpdateStatus(ctx context.Context, planID int64, status string) error {
	m.updateStatus = append(m.updateStatus, status)
	m.plan.Status = status
	return nil
}
func (m *planStoreMock) RecordPayout(ctx context.Context, tx *gorm.DB, planID int64, payoutAmount, newPending, reinvested decimal.Decimal) error {
	m.plan.PendingReinvest = newPending
	m.recordedPends = append(m.recordedPends, newPending)
	return nil
}

type payoutStoreMock struct {
	existing *model.RentalPayout
	created  []*model.RentalPayout
	outcomes []string
	stamps   []string
}

func (m *payoutStoreMock) Create(ctx context.Context, tx *gorm.DB, payout *model.RentalPayout) error {
	if p, _ := m.GetByPayoutID(ctx, payout.PayoutID); p != nil {
		return repository.ErrDuplicatePayout
	}
	m.created = append(m.created, payout)
	return nil
}
func (m *payoutStoreMock) GetByPayoutID(ctx context.Context, payoutID string) (*model.RentalPayout, error) {
	if m.existing != nil && m.existing.PayoutID == payoutID {
		return m.existing, nil
	}
	for _, p := range m.created {
		if p.PayoutID == payoutID {
			return p, nil
		}
	}
	return nil, nil
}
func (m *payoutStoreMock) StampAllocation(ctx context.Context, payoutID, allocationNo string) error {
	m.stamps = append(m.stamps, allocationNo)
	if p, _ := m.GetByPayoutID(ctx, payoutID); p != nil && p.Status == model.PayoutStatusRecorded {
		p.AllocationNo = allocationNo
	}
	return nil
}
func (m *payoutStoreMock) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.RentalPayout, int64, error) {
	return m.created, int64(len(m.created)), nil
}
func (m *payoutStoreMock) MarkOutcome(ctx context.Context, tx *gorm.DB, payoutID string, status string, reinvested *decimal.Decimal, allocationNo string) error {
	m.outcomes = append(m.outcomes, status)
	if p, _ := m.GetByPayoutID(ctx, payoutID); p != nil {
		p.Status = status
		if reinvested != nil {
			p.ReinvestedAmt = *reinvested
		}
		if allocationNo != "" {
			p.AllocationNo = allocationNo
		}
	}
	return nil
}

type allocStoreMock struct {
	created  []*model.ReinvestAllocation
	approved []string
}

func (m *allocStoreMock) Create(ctx context.Context, tx *gorm.DB, alloc *model.ReinvestAllocation) error {
	for _, a := range m.created {
		if a.AllocationNo == alloc.AllocationNo {
			return repository.ErrDuplicateAllocation
		}
	}
	m.created = append(m.created, alloc)
	return nil
}
func (m *allocStoreMock) GetByAllocationNo(ctx context.Context, allocationNo string) (*model.ReinvestAllocation, error) {
	for _, a := range m.created {
		if a.AllocationNo == allocationNo {
			return a, nil
		}
	}
	return nil, repository.ErrAllocationNotFound
}
func (m *allocStoreMock) Approve(ctx context.Context, tx *gorm.DB, allocationNo string, nextAttemptAt time.Time) (bool, error) {
	m.approved = append(m.approved, allocationNo)
	for _, a := range m.created {
		if a.AllocationNo == allocationNo && a.Status == model.AllocationStatusAwaitingApproval {
			a.Status = model.AllocationStatusPending
			return true, nil
		}
	}
	return false, nil
}

type noopLocker struct{}

func (noopLocker) WithPlanLock(ctx context.Context, userID int64, fn func() error) error {
	return fn()
}

// txRunnerStub runs the function without a real transaction; the store
// mocks ignore the tx argument anyway.
type txRunnerStub struct{}

func (txRunnerStub) Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error {
	return fc(nil)
}

func newReinvestFixture(plan *model.AutoReinvestPlan) (*service.ReinvestService, *planStoreMock, *payoutStoreMock, *allocStoreMock, *ledgerMock) {
	plans := &planStoreMock{plan: plan}
	payouts := &payoutStoreMock{}
	allocs := &allocStoreMock{}
	ledger := &ledgerMock{}
	s := service.NewReinvestService(txRunnerStub{}, plans, payouts, allocs, ledger, &notifierMock{}, noopLocker{}, decimal.NewFromInt(10))
	return s, plans, payouts, allocs, ledger
}

func activePlan() *model.AutoReinvestPlan {
	return &model.AutoReinvestPlan{
		ID:                  3,
		UserID:              9,
		Status:              model.PlanStatusActive,
		Currency:            model.CurrencyTND,
		MinimumReinvest:     decimal.NewFromInt(50),
		ReinvestPercentage:  decimal.NewFromInt(10),
		Theme:               model.ThemeBalanced,
		RiskLevel:           model.RiskMedium,
		AutoApprovalEnabled: true,
		PendingReinvest:     decimal.Zero,
	}
}

func payoutEvent(payoutID string, amount int64) event.RentalPayoutEvent {
	return event.RentalPayoutEvent{
		UserID:     9,
		PayoutID:   payoutID,
		ProjectID:  77,
		Amount:     decimal.NewFromInt(amount),
		Currency:   model.CurrencyTND,
		PayoutDate: time.Now(),
	}
}

// 10% of 400 is 40, below the 50 minimum: carried. The next payout's 20
// joins the carry to reach 60, which clears the threshold and allocates
// the whole accumulated amount.
func TestOnRentalPayout_CarryForward(t *testing.T) {
	s, plans, payouts, allocs, ledger := newReinvestFixture(activePlan())

	result, err := s.OnRentalPayout(context.Background(), payoutEvent("P-1", 400))
	require.NoError(t, err)
	assert.False(t, result.Allocated)
	assert.True(t, decimal.NewFromInt(40).Equal(result.Carried))
	assert.Empty(t, allocs.created)
	assert.True(t, decimal.NewFromInt(40).Equal(plans.plan.PendingReinvest))
	assert.Equal(t, []string{model.PayoutStatusCarried}, payouts.outcomes)
	// Only the rental income credit moved money.
	require.Len(t, ledger.applied, 1)
	assert.Equal(t, "payout:P-1", ledger.applied[0].DedupeKey)

	result, err = s.OnRentalPayout(context.Background(), payoutEvent("P-2", 200))
	require.NoError(t, err)
	assert.True(t, result.Allocated)
	assert.True(t, decimal.NewFromInt(60).Equal(result.Amount))
	require.Len(t, allocs.created, 1)
	alloc := allocs.created[0]
	assert.Equal(t, model.AllocationStatusPending, alloc.Status)
	assert.True(t, decimal.NewFromInt(60).Equal(alloc.Amount))
	assert.True(t, plans.plan.PendingReinvest.IsZero())

	// Rental credit plus the allocation debit.
	require.Len(t, ledger.applied, 3)
	debit := ledger.applied[2]
	assert.Equal(t, "allocation:"+alloc.AllocationNo, debit.DedupeKey)
	assert.True(t, decimal.NewFromInt(-60).Equal(debit.Amount))
}

func TestOnRentalPayout_AlreadySettled(t *testing.T) {
	s, _, payouts, allocs, ledger := newReinvestFixture(activePlan())
	payouts.existing = &model.RentalPayout{
		PayoutID:      "P-1",
		UserID:        9,
		Status:        model.PayoutStatusReinvested,
		AllocationNo:  "ALC-old",
		ReinvestedAmt: decimal.NewFromInt(60),
	}

	result, err := s.OnRentalPayout(context.Background(), payoutEvent("P-1", 400))
	require.NoError(t, err)
	assert.True(t, result.Allocated)
	assert.Equal(t, "ALC-old", result.AllocationNo)
	assert.Empty(t, ledger.applied)
	assert.Empty(t, allocs.created)
}

// A redelivery whose first run stopped after the payout insert resumes:
// the payout credit and allocation debit are individually keyed, so the
// re-drive completes the settlement without double-moving money.
func TestOnRentalPayout_RedriveRecordedPayout(t *testing.T) {
	s, _, payouts, _, ledger := newReinvestFixture(activePlan())
	payouts.existing = &model.RentalPayout{
		PayoutID: "P-1",
		UserID:   9,
		Status:   model.PayoutStatusRecorded,
	}

	result, err := s.OnRentalPayout(context.Background(), payoutEvent("P-1", 400))
	require.NoError(t, err)
	assert.False(t, result.Allocated)
	require.Len(t, ledger.applied, 1)
	assert.Equal(t, "payout:P-1", ledger.applied[0].DedupeKey)
	assert.Equal(t, []string{model.PayoutStatusCarried}, payouts.outcomes)
}

// A first delivery that dies between the allocation debit and the
// bookkeeping must not double-move money when the event comes back: the
// allocation number is stamped on the payout row before the debit, so
// the redelivery reuses it and every write dedupes.
func TestOnRentalPayout_RedeliveryAfterPartialRun(t *testing.T) {
	s, plans, payouts, allocs, ledger := newReinvestFixture(activePlan())

	// 10% of 1000 clears the 50 minimum. Fail the allocation debit once.
	failed := false
	ledger.applyFn = func(ctx context.Context, req service.ApplyRequest) (*model.WalletTransaction, error) {
		if !failed && req.Type == model.TransactionTypeReinvestAllocation {
			failed = true
			return nil, errors.New("wallet store unavailable")
		}
		return &model.WalletTransaction{TransactionNo: "TXN-test", DedupeKey: req.DedupeKey, Amount: req.Amount}, nil
	}

	_, err := s.OnRentalPayout(context.Background(), payoutEvent("P-1", 1000))
	require.Error(t, err)
	require.Len(t, payouts.stamps, 1)
	stamped := payouts.stamps[0]
	assert.Empty(t, allocs.created)
	assert.Empty(t, plans.recordedPends)
	assert.Empty(t, payouts.outcomes)

	result, err := s.OnRentalPayout(context.Background(), payoutEvent("P-1", 1000))
	require.NoError(t, err)
	assert.True(t, result.Allocated)
	assert.Equal(t, stamped, result.AllocationNo)

	// One allocation, under the number stamped on the first attempt.
	require.Len(t, allocs.created, 1)
	assert.Equal(t, stamped, allocs.created[0].AllocationNo)
	require.Len(t, payouts.stamps, 1)

	// The rental credit and the debit each carry one dedupe key across
	// both attempts, and the aggregates were recorded once.
	var creditKeys, debitKeys []string
	for _, req := range ledger.applied {
		if req.Type == model.TransactionTypeRentalPayout {
			creditKeys = append(creditKeys, req.DedupeKey)
		} else {
			debitKeys = append(debitKeys, req.DedupeKey)
		}
	}
	assert.Equal(t, []string{"payout:P-1", "payout:P-1"}, creditKeys)
	assert.Equal(t, []string{"allocation:" + stamped, "allocation:" + stamped}, debitKeys)
	assert.Equal(t, []string{model.PayoutStatusReinvested}, payouts.outcomes)
	require.Len(t, plans.recordedPends, 1)
	assert.True(t, plans.recordedPends[0].IsZero())
}

func TestOnRentalPayout_NoPlanKeepsCash(t *testing.T) {
	s, _, payouts, allocs, ledger := newReinvestFixture(nil)

	result, err := s.OnRentalPayout(context.Background(), payoutEvent("P-1", 400))
	require.NoError(t, err)
	assert.False(t, result.Allocated)
	assert.Empty(t, allocs.created)
	require.Len(t, ledger.applied, 1)
	assert.Equal(t, model.TransactionTypeRentalPayout, ledger.applied[0].Type)
	assert.Equal(t, []string{model.PayoutStatusCarried}, payouts.outcomes)
}

func TestOnRentalPayout_PausedPlanKeepsCash(t *testing.T) {
	plan := activePlan()
	plan.Status = model.PlanStatusPaused
	s, plans, _, allocs, ledger := newReinvestFixture(plan)

	_, err := s.OnRentalPayout(context.Background(), payoutEvent("P-1", 4000))
	require.NoError(t, err)
	assert.Empty(t, allocs.created)
	require.Len(t, ledger.applied, 1)
	assert.Empty(t, plans.recordedPends)
}

func TestOnRentalPayout_ForeignCurrencyNotReinvested(t *testing.T) {
	s, _, _, allocs, ledger := newReinvestFixture(activePlan())

	e := payoutEvent("P-1", 4000)
	e.Currency = model.CurrencyEUR
	_, err := s.OnRentalPayout(context.Background(), e)
	require.NoError(t, err)
	assert.Empty(t, allocs.created)
	// The cash still lands, in the payout's own currency.
	require.Len(t, ledger.applied, 1)
	assert.Equal(t, model.CurrencyEUR, ledger.applied[0].Currency)
}

func TestOnRentalPayout_AwaitingApprovalHoldsDebit(t *testing.T) {
	plan := activePlan()
	plan.AutoApprovalEnabled = false
	s, _, _, allocs, ledger := newReinvestFixture(plan)

	result, err := s.OnRentalPayout(context.Background(), payoutEvent("P-1", 1000))
	require.NoError(t, err)
	assert.False(t, result.Allocated)
	require.Len(t, allocs.created, 1)
	assert.Equal(t, model.AllocationStatusAwaitingApproval, allocs.created[0].Status)
	// No debit until the user approves.
	require.Len(t, ledger.applied, 1)
	assert.Equal(t, model.TransactionTypeRentalPayout, ledger.applied[0].Type)
}

func TestApproveAllocation(t *testing.T) {
	plan := activePlan()
	plan.AutoApprovalEnabled = false
	s, _, _, allocs, ledger := newReinvestFixture(plan)

	_, err := s.OnRentalPayout(context.Background(), payoutEvent("P-1", 1000))
	require.NoError(t, err)
	require.Len(t, allocs.created, 1)
	allocationNo := allocs.created[0].AllocationNo

	require.Error(t, s.ApproveAllocation(context.Background(), 42, allocationNo)) // wrong user

	require.NoError(t, s.ApproveAllocation(context.Background(), 9, allocationNo))
	assert.Equal(t, model.AllocationStatusPending, allocs.created[0].Status)
	require.Len(t, ledger.applied, 2)
	assert.Equal(t, "allocation:"+allocationNo, ledger.applied[1].DedupeKey)

	// Second approval is a no-op on the ledger: same dedupe key.
	require.NoError(t, s.ApproveAllocation(context.Background(), 9, allocationNo))
}

func TestCreatePlan_Validation(t *testing.T) {
	s, _, _, _, _ := newReinvestFixture(nil)

	_, err := s.CreatePlan(context.Background(), 9, service.PlanInput{
		ReinvestPercentage: decimal.NewFromInt(150),
		MinimumReinvest:    decimal.NewFromInt(50),
	})
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = s.CreatePlan(context.Background(), 9, service.PlanInput{
		ReinvestPercentage: decimal.NewFromInt(10),
		MinimumReinvest:    decimal.NewFromInt(5), // below the configured floor
	})
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = s.CreatePlan(context.Background(), 9, service.PlanInput{
		ReinvestPercentage: decimal.NewFromInt(10),
		MinimumReinvest:    decimal.NewFromInt(50),
		Theme:              "volatile",
	})
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestCreatePlan_OnePerUser(t *testing.T) {
	s, plans, _, _, _ := newReinvestFixture(nil)

	plan, err := s.CreatePlan(context.Background(), 9, service.PlanInput{
		ReinvestPercentage: decimal.NewFromInt(10),
		MinimumReinvest:    decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	assert.Equal(t, model.PlanStatusActive, plan.Status)
	assert.Equal(t, model.ThemeBalanced, plan.Theme) // defaulted
	assert.Equal(t, model.CurrencyTND, plan.Currency)
	require.NotNil(t, plans.plan)

	_, err = s.CreatePlan(context.Background(), 9, service.PlanInput{
		ReinvestPercentage: decimal.NewFromInt(20),
		MinimumReinvest:    decimal.NewFromInt(50),
	})
	assert.ErrorIs(t, err, service.ErrPlanExists)
}

func TestPlanLifecycle(t *testing.T) {
	s, plans, _, _, _ := newReinvestFixture(activePlan())

	require.NoError(t, s.PausePlan(context.Background(), 9))
	require.NoError(t, s.ResumePlan(context.Background(), 9))
	require.NoError(t, s.CancelPlan(context.Background(), 9))
	assert.Equal(t, []string{model.PlanStatusPaused, model.PlanStatusActive, model.PlanStatusCancelled}, plans.updateStatus)
}
