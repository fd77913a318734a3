package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"brickvest/internal/event"
	"brickvest/internal/infrastructure/lock"
	"brickvest/internal/model"
	"brickvest/internal/repository"
	"brickvest/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TxRunner runs a function inside one database transaction. Satisfied
// by *gorm.DB.
type TxRunner interface {
	Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
}

// PlanStore is the plan persistence the planner needs. Satisfied by
// *repository.ReinvestPlanRepository.
type PlanStore interface {
	Create(ctx context.Context, plan *model.AutoReinvestPlan) error
	GetCurrent(ctx context.Context, userID int64) (*model.AutoReinvestPlan, error)
	Save(ctx context.Context, tx *gorm.DB, plan *model.AutoReinvestPlan) error
	UpdateStatus(ctx context.Context, planID int64, status string) error
	RecordPayout(ctx context.Context, tx *gorm.DB, planID int64, payoutAmount, newPending, reinvested decimal.Decimal) error
}

// PayoutStore tracks the processed-payout set and payout history.
// Satisfied by *repository.PayoutRepository.
type PayoutStore interface {
	Create(ctx context.Context, tx *gorm.DB, payout *model.RentalPayout) error
	GetByPayoutID(ctx context.Context, payoutID string) (*model.RentalPayout, error)
	StampAllocation(ctx context.Context, payoutID, allocationNo string) error
	ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.RentalPayout, int64, error)
	MarkOutcome(ctx context.Context, tx *gorm.DB, payoutID string, status string, reinvested *decimal.Decimal, allocationNo string) error
}

// AllocationStore persists allocation intents. Satisfied by
// *repository.AllocationRepository.
type AllocationStore interface {
	Create(ctx context.Context, tx *gorm.DB, alloc *model.ReinvestAllocation) error
	GetByAllocationNo(ctx context.Context, allocationNo string) (*model.ReinvestAllocation, error)
	Approve(ctx context.Context, tx *gorm.DB, allocationNo string, nextAttemptAt time.Time) (bool, error)
}

// PlanLocker serializes payout processing per user.
type PlanLocker interface {
	WithPlanLock(ctx context.Context, userID int64, fn func() error) error
}

type redisPlanLocker struct {
	client *redis.Client
}

func NewRedisPlanLocker(client *redis.Client) PlanLocker {
	return &redisPlanLocker{client: client}
}

func (l *redisPlanLocker) WithPlanLock(ctx context.Context, userID int64, fn func() error) error {
	planLock := lock.NewPlanLock(l.client, userID)
	if err := planLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return err
	}
	defer planLock.Unlock(ctx)
	return fn()
}

// PlanInput carries the user-settable plan fields.
type PlanInput struct {
	Currency            string          `json:"currency"`
	MinimumReinvest     decimal.Decimal `json:"minimum_reinvest_amount"`
	ReinvestPercentage  decimal.Decimal `json:"reinvest_percentage"`
	Theme               string          `json:"theme"`
	RiskLevel           string          `json:"risk_level"`
	AutoApprovalEnabled bool            `json:"auto_approval_enabled"`
}

// PayoutResult reports how one rental payout was settled.
type PayoutResult struct {
	Allocated    bool            `json:"allocated"`
	Carried      decimal.Decimal `json:"carried"`
	AllocationNo string          `json:"allocation_no,omitempty"`
	Amount       decimal.Decimal `json:"amount,omitempty"`
}

// ReinvestService owns auto-reinvest plans and converts rental payouts
// into investment allocation intents. The external submission happens
// from the background submitter, never inline.
type ReinvestService struct {
	tx          TxRunner
	plans       PlanStore
	payouts     PayoutStore
	allocations AllocationStore
	ledger      Ledger
	notifier    Notifier
	locker      PlanLocker
	minReinvest decimal.Decimal
}

func NewReinvestService(tx TxRunner, plans PlanStore, payouts PayoutStore, allocations AllocationStore, ledger Ledger, notifier Notifier, locker PlanLocker, minReinvest decimal.Decimal) *ReinvestService {
	return &ReinvestService{
		tx:          tx,
		plans:       plans,
		payouts:     payouts,
		allocations: allocations,
		ledger:      ledger,
		notifier:    notifier,
		locker:      locker,
		minReinvest: minReinvest,
	}
}

// CreatePlan creates the user's plan. One non-cancelled plan per user.
func (s *ReinvestService) CreatePlan(ctx context.Context, userID int64, input PlanInput) (*model.AutoReinvestPlan, error) {
	if err := s.validateInput(&input); err != nil {
		return nil, err
	}

	if _, err := s.plans.GetCurrent(ctx, userID); err == nil {
		return nil, ErrPlanExists
	} else if !errors.Is(err, repository.ErrPlanNotFound) {
		return nil, err
	}

	plan := &model.AutoReinvestPlan{
		UserID:              userID,
		Status:              model.PlanStatusActive,
		Currency:            input.Currency,
		MinimumReinvest:     input.MinimumReinvest,
		ReinvestPercentage:  input.ReinvestPercentage,
		Theme:               input.Theme,
		RiskLevel:           input.RiskLevel,
		AutoApprovalEnabled: input.AutoApprovalEnabled,
		PendingReinvest:     decimal.Zero,
	}
	if err := s.plans.Create(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// UpdatePlan changes the policy fields of the current plan. Running
// aggregates and the carry-forward are untouched.
func (s *ReinvestService) UpdatePlan(ctx context.Context, userID int64, input PlanInput) (*model.AutoReinvestPlan, error) {
	if err := s.validateInput(&input); err != nil {
		return nil, err
	}

	plan, err := s.plans.GetCurrent(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}

	plan.MinimumReinvest = input.MinimumReinvest
	plan.ReinvestPercentage = input.ReinvestPercentage
	plan.Theme = input.Theme
	plan.RiskLevel = input.RiskLevel
	plan.AutoApprovalEnabled = input.AutoApprovalEnabled

	if err := s.plans.Save(ctx, nil, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *ReinvestService) GetPlan(ctx context.Context, userID int64) (*model.AutoReinvestPlan, error) {
	plan, err := s.plans.GetCurrent(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return plan, nil
}

func (s *ReinvestService) PausePlan(ctx context.Context, userID int64) error {
	return s.setStatus(ctx, userID, model.PlanStatusPaused)
}

func (s *ReinvestService) ResumePlan(ctx context.Context, userID int64) error {
	return s.setStatus(ctx, userID, model.PlanStatusActive)
}

func (s *ReinvestService) CancelPlan(ctx context.Context, userID int64) error {
	return s.setStatus(ctx, userID, model.PlanStatusCancelled)
}

func (s *ReinvestService) setStatus(ctx context.Context, userID int64, status string) error {
	plan, err := s.plans.GetCurrent(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return ErrPlanNotFound
		}
		return err
	}
	return s.plans.UpdateStatus(ctx, plan.ID, status)
}

func (s *ReinvestService) validateInput(input *PlanInput) error {
	if input.ReinvestPercentage.IsNegative() || input.ReinvestPercentage.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: reinvest percentage must be between 0 and 100", ErrValidation)
	}
	if input.MinimumReinvest.LessThan(s.minReinvest) {
		return fmt.Errorf("%w: minimum reinvest amount must be at least %s", ErrValidation, s.minReinvest)
	}
	if input.Theme == "" {
		input.Theme = model.ThemeBalanced
	}
	if !model.ValidTheme(input.Theme) {
		return fmt.Errorf("%w: unknown theme %q", ErrValidation, input.Theme)
	}
	if input.RiskLevel == "" {
		input.RiskLevel = model.RiskMedium
	}
	if !model.ValidRiskLevel(input.RiskLevel) {
		return fmt.Errorf("%w: unknown risk level %q", ErrValidation, input.RiskLevel)
	}
	if input.Currency == "" {
		input.Currency = model.CurrencyTND
	}
	return nil
}

// OnRentalPayout settles one rental payout: credit the wallet, fold the
// reinvestable share into the carry-forward and, once the threshold is
// met, turn it into an allocation intent.
//
// The payout_id unique index makes delivery idempotent. A redelivered
// event whose first run did not finish resumes from the recorded state:
// the allocation number is stamped onto the payout row before any
// allocation effect, so a re-drive reuses it (same allocation row, same
// debit dedupe key), and the allocation insert plus the plan and payout
// bookkeeping commit in one database transaction, leaving no partial
// state for a replay to double-apply.
func (s *ReinvestService) OnRentalPayout(ctx context.Context, e event.RentalPayoutEvent) (*PayoutResult, error) {
	if !e.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: payout amount must be positive", ErrValidation)
	}

	var result *PayoutResult
	err := s.locker.WithPlanLock(ctx, e.UserID, func() error {
		var err error
		result, err = s.processPayout(ctx, e)
		return err
	})
	return result, err
}

func (s *ReinvestService) processPayout(ctx context.Context, e event.RentalPayoutEvent) (*PayoutResult, error) {
	payout := &model.RentalPayout{
		PayoutID:   e.PayoutID,
		UserID:     e.UserID,
		ProjectID:  e.ProjectID,
		Amount:     e.Amount,
		Currency:   e.Currency,
		Status:     model.PayoutStatusRecorded,
		PayoutDate: e.PayoutDate,
	}

	var allocationNo string
	err := s.payouts.Create(ctx, nil, payout)
	if errors.Is(err, repository.ErrDuplicatePayout) {
		existing, getErr := s.payouts.GetByPayoutID(ctx, e.PayoutID)
		if getErr != nil {
			return nil, getErr
		}
		if existing != nil && existing.Status != model.PayoutStatusRecorded {
			// Fully settled earlier; nothing to do.
			return &PayoutResult{
				Allocated:    existing.Status == model.PayoutStatusReinvested,
				Carried:      decimal.Zero,
				AllocationNo: existing.AllocationNo,
				Amount:       existing.ReinvestedAmt,
			}, nil
		}
		if existing != nil {
			// First run stopped partway; re-drive with the allocation
			// number stamped then, so the debit dedupe key matches.
			allocationNo = existing.AllocationNo
		}
	} else if err != nil {
		return nil, err
	}

	// Rental income always lands on the cash balance first; the
	// allocation debit below draws from it.
	if _, err := s.ledger.Apply(ctx, ApplyRequest{
		UserID:          e.UserID,
		Type:            model.TransactionTypeRentalPayout,
		Amount:          e.Amount,
		Currency:        e.Currency,
		Description:     fmt.Sprintf("Rental income payout %s", e.PayoutID),
		RelatedEntityID: e.PayoutID,
		DedupeKey:       fmt.Sprintf("payout:%s", e.PayoutID),
	}); err != nil {
		return nil, fmt.Errorf("credit rental payout: %w", err)
	}

	plan, err := s.plans.GetCurrent(ctx, e.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return s.settleWithoutPlan(ctx, e)
		}
		return nil, err
	}
	if plan.Status != model.PlanStatusActive || plan.Currency != e.Currency {
		// Paused plans and foreign-currency payouts keep the cash but
		// are not reinvested.
		return s.settleWithoutPlan(ctx, e)
	}

	candidate := e.Amount.Mul(plan.ReinvestPercentage).Div(decimal.NewFromInt(100)).Round(2)
	accumulated := plan.PendingReinvest.Add(candidate)

	if accumulated.LessThan(plan.MinimumReinvest) {
		err := s.tx.Transaction(func(tx *gorm.DB) error {
			if err := s.plans.RecordPayout(ctx, tx, plan.ID, e.Amount, accumulated, decimal.Zero); err != nil {
				return err
			}
			return s.payouts.MarkOutcome(ctx, tx, e.PayoutID, model.PayoutStatusCarried, &candidate, "")
		})
		if err != nil {
			return nil, err
		}
		return &PayoutResult{Allocated: false, Carried: candidate}, nil
	}

	// Stamp the allocation number onto the payout row before any
	// allocation effect. A crash after this point re-drives with the
	// same number, so the allocation row and its ledger debit dedupe
	// instead of duplicating.
	if allocationNo == "" {
		allocationNo = idgen.GenerateAllocationNo()
		if err := s.payouts.StampAllocation(ctx, e.PayoutID, allocationNo); err != nil {
			return nil, err
		}
	}

	alloc := &model.ReinvestAllocation{
		AllocationNo:  allocationNo,
		UserID:        e.UserID,
		PlanID:        plan.ID,
		Amount:        accumulated,
		Currency:      e.Currency,
		Theme:         plan.Theme,
		RiskLevel:     plan.RiskLevel,
		Status:        model.AllocationStatusPending,
		NextAttemptAt: time.Now(),
	}
	if !plan.AutoApprovalEnabled {
		alloc.Status = model.AllocationStatusAwaitingApproval
	}

	// Reserve the funds before the intent exists: a pending allocation
	// on file always has its debit on the ledger.
	if plan.AutoApprovalEnabled {
		if err := s.debitAllocation(ctx, alloc); err != nil {
			return nil, err
		}
	}

	err = s.tx.Transaction(func(tx *gorm.DB) error {
		if err := s.allocations.Create(ctx, tx, alloc); err != nil && !errors.Is(err, repository.ErrDuplicateAllocation) {
			return err
		}
		if err := s.plans.RecordPayout(ctx, tx, plan.ID, e.Amount, decimal.Zero, accumulated); err != nil {
			return err
		}
		return s.payouts.MarkOutcome(ctx, tx, e.PayoutID, model.PayoutStatusReinvested, &candidate, allocationNo)
	})
	if err != nil {
		return nil, err
	}

	if !plan.AutoApprovalEnabled {
		s.notify(ctx, model.NotifyAllocationPending, e.UserID, map[string]interface{}{
			"user_id":       e.UserID,
			"allocation_no": allocationNo,
			"amount":        accumulated,
			"currency":      e.Currency,
		})
	}

	log.Printf("[Reinvest] allocation intent: userID=%d allocationNo=%s amount=%s %s autoApproved=%t",
		e.UserID, allocationNo, accumulated, e.Currency, plan.AutoApprovalEnabled)

	return &PayoutResult{
		Allocated:    plan.AutoApprovalEnabled,
		Carried:      decimal.Zero,
		AllocationNo: allocationNo,
		Amount:       accumulated,
	}, nil
}

func (s *ReinvestService) settleWithoutPlan(ctx context.Context, e event.RentalPayoutEvent) (*PayoutResult, error) {
	zero := decimal.Zero
	if err := s.payouts.MarkOutcome(ctx, nil, e.PayoutID, model.PayoutStatusCarried, &zero, ""); err != nil {
		return nil, err
	}
	return &PayoutResult{Allocated: false, Carried: decimal.Zero}, nil
}

// ApproveAllocation converts an awaiting-approval allocation into a
// pending one and reserves the funds. Safe to call twice.
func (s *ReinvestService) ApproveAllocation(ctx context.Context, userID int64, allocationNo string) error {
	alloc, err := s.allocations.GetByAllocationNo(ctx, allocationNo)
	if err != nil {
		return err
	}
	if alloc.UserID != userID {
		return fmt.Errorf("%w: allocation does not belong to user", ErrValidation)
	}

	if alloc.Status != model.AllocationStatusAwaitingApproval && alloc.Status != model.AllocationStatusPending {
		return fmt.Errorf("%w: allocation is not awaiting approval", ErrValidation)
	}

	// Reserve the funds before the status flip so a pending allocation
	// always has its debit; a replayed approval re-applies the same
	// dedupe key and moves on.
	if err := s.debitAllocation(ctx, alloc); err != nil {
		return err
	}

	_, err = s.allocations.Approve(ctx, nil, allocationNo, time.Now())
	return err
}

// debitAllocation reserves the allocation's funds from the cash balance,
// keyed per allocation so re-drives never debit twice.
func (s *ReinvestService) debitAllocation(ctx context.Context, alloc *model.ReinvestAllocation) error {
	_, err := s.ledger.Apply(ctx, ApplyRequest{
		UserID:          alloc.UserID,
		Type:            model.TransactionTypeReinvestAllocation,
		Amount:          alloc.Amount.Neg(),
		Currency:        alloc.Currency,
		Description:     fmt.Sprintf("Auto-reinvest allocation %s", alloc.AllocationNo),
		RelatedEntityID: alloc.AllocationNo,
		DedupeKey:       fmt.Sprintf("allocation:%s", alloc.AllocationNo),
	})
	if err != nil {
		return fmt.Errorf("debit allocation %s: %w", alloc.AllocationNo, err)
	}
	return nil
}

// ListPayouts pages the user's rental payout history.
func (s *ReinvestService) ListPayouts(ctx context.Context, userID int64, page, pageSize int) ([]*model.RentalPayout, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.payouts.ListByUserID(ctx, userID, page, pageSize)
}

func (s *ReinvestService) notify(ctx context.Context, eventType string, userID int64, payload interface{}) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Enqueue(ctx, nil, eventType, fmt.Sprintf("user-%d", userID), payload); err != nil {
		log.Printf("[Reinvest] enqueue notification failed: %v", err)
	}
}

var _ PlanStore = (*repository.ReinvestPlanRepository)(nil)
var _ PayoutStore = (*repository.PayoutRepository)(nil)
var _ AllocationStore = (*repository.AllocationRepository)(nil)
