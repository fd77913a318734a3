package job

import (
	"context"
	"fmt"
	"log"
	"time"

	"brickvest/internal/config"
	"brickvest/internal/model"
	"brickvest/internal/processor"
	"brickvest/internal/repository"
	"brickvest/internal/service"

	"gorm.io/gorm"
)

const submitterBaseBackoff = 30 * time.Second

// InvestmentSubmitter is the slice of the processor client this job
// uses.
type InvestmentSubmitter interface {
	SubmitInvestment(ctx context.Context, req processor.SubmitRequest) (*processor.SubmitResponse, error)
}

// AllocationSubmitter drives pending allocation intents to the external
// Investment Processor. Submission is retried with exponential backoff
// up to a bounded attempt count; on exhaustion the allocation is marked
// failed, its debit reversed and the failure surfaced, so money is
// never silently held against an order that never existed.
type AllocationSubmitter struct {
	db          *gorm.DB
	allocRepo   *repository.AllocationRepository
	ledger      service.Ledger
	notifier    service.Notifier
	submitter   InvestmentSubmitter
	maxAttempts int
	stopCh      chan struct{}
	interval    time.Duration
	batchSize   int
}

func NewAllocationSubmitter(db *gorm.DB, ledger service.Ledger, notifier service.Notifier, submitter InvestmentSubmitter, cfg *config.Config) *AllocationSubmitter {
	interval := time.Duration(cfg.Business.SubmitterSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	maxAttempts := cfg.Processor.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &AllocationSubmitter{
		db:          db,
		allocRepo:   repository.NewAllocationRepository(db),
		ledger:      ledger,
		notifier:    notifier,
		submitter:   submitter,
		maxAttempts: maxAttempts,
		stopCh:      make(chan struct{}),
		interval:    interval,
		batchSize:   50,
	}
}

func (j *AllocationSubmitter) Start(ctx context.Context) {
	log.Println("[AllocationSubmitter] started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[AllocationSubmitter] stopped")
			return
		case <-j.stopCh:
			log.Println("[AllocationSubmitter] stopped")
			return
		case <-ticker.C:
			j.processDue(ctx)
		}
	}
}

func (j *AllocationSubmitter) Stop() {
	close(j.stopCh)
}

func (j *AllocationSubmitter) processDue(ctx context.Context) {
	allocs, err := j.allocRepo.GetDue(ctx, time.Now(), j.batchSize)
	if err != nil {
		log.Printf("[AllocationSubmitter] list due allocations: %v", err)
		return
	}

	for _, alloc := range allocs {
		j.submitOne(ctx, alloc)
	}
}

func (j *AllocationSubmitter) submitOne(ctx context.Context, alloc *model.ReinvestAllocation) {
	resp, err := j.submitter.SubmitInvestment(ctx, processor.SubmitRequest{
		AllocationNo: alloc.AllocationNo,
		UserID:       alloc.UserID,
		Amount:       alloc.Amount,
		Currency:     alloc.Currency,
		Theme:        alloc.Theme,
		RiskLevel:    alloc.RiskLevel,
	})

	if err == nil {
		if markErr := j.allocRepo.MarkSubmitted(ctx, alloc.AllocationNo, resp.InvestmentID); markErr != nil {
			// The order exists; a later sweep retries the submit, and the
			// processor-side idempotency key keeps it at one order.
			log.Printf("[AllocationSubmitter] mark submitted failed: allocationNo=%s err=%v", alloc.AllocationNo, markErr)
			return
		}
		j.notify(ctx, model.NotifyAllocationSubmitted, alloc, resp.InvestmentID, "")
		log.Printf("[AllocationSubmitter] submitted: allocationNo=%s investmentID=%s amount=%s %s",
			alloc.AllocationNo, resp.InvestmentID, alloc.Amount, alloc.Currency)
		return
	}

	log.Printf("[AllocationSubmitter] submit failed: allocationNo=%s attempt=%d err=%v",
		alloc.AllocationNo, alloc.AttemptCount+1, err)

	if alloc.AttemptCount+1 >= j.maxAttempts {
		j.failOne(ctx, alloc, err)
		return
	}

	backoff := submitterBaseBackoff << uint(alloc.AttemptCount)
	if recErr := j.allocRepo.RecordAttempt(ctx, alloc.AllocationNo, time.Now().Add(backoff), err.Error()); recErr != nil {
		log.Printf("[AllocationSubmitter] record attempt failed: allocationNo=%s err=%v", alloc.AllocationNo, recErr)
	}
}

// failOne parks the allocation as failed and returns the reserved funds.
// The reversal has its own dedupe key, so re-running a half-finished
// failure path cannot credit twice.
func (j *AllocationSubmitter) failOne(ctx context.Context, alloc *model.ReinvestAllocation, cause error) {
	if err := j.allocRepo.MarkFailed(ctx, nil, alloc.AllocationNo, cause.Error()); err != nil {
		log.Printf("[AllocationSubmitter] mark failed: allocationNo=%s err=%v", alloc.AllocationNo, err)
		return
	}

	if _, err := j.ledger.Apply(ctx, service.ApplyRequest{
		UserID:          alloc.UserID,
		Type:            model.TransactionTypeReinvestAllocation,
		Amount:          alloc.Amount,
		Currency:        alloc.Currency,
		Description:     fmt.Sprintf("Auto-reinvest allocation %s reversed after failed submission", alloc.AllocationNo),
		RelatedEntityID: alloc.AllocationNo,
		DedupeKey:       fmt.Sprintf("allocation:%s:reversal", alloc.AllocationNo),
	}); err != nil {
		// Reversal is retried by the reconciler; the failed status is
		// already durable.
		log.Printf("[AllocationSubmitter] reversal failed: allocationNo=%s err=%v", alloc.AllocationNo, err)
	}

	j.notify(ctx, model.NotifyAllocationFailed, alloc, "", cause.Error())
	log.Printf("[AllocationSubmitter] allocation parked as failed: allocationNo=%s amount=%s %s",
		alloc.AllocationNo, alloc.Amount, alloc.Currency)
}

func (j *AllocationSubmitter) notify(ctx context.Context, eventType string, alloc *model.ReinvestAllocation, investmentID, cause string) {
	if j.notifier == nil {
		return
	}
	payload := map[string]interface{}{
		"user_id":       alloc.UserID,
		"allocation_no": alloc.AllocationNo,
		"amount":        alloc.Amount,
		"currency":      alloc.Currency,
	}
	if investmentID != "" {
		payload["investment_id"] = investmentID
	}
	if cause != "" {
		payload["error"] = cause
	}
	if err := j.notifier.Enqueue(ctx, nil, eventType, alloc.AllocationNo, payload); err != nil {
		log.Printf("[AllocationSubmitter] enqueue notification failed: %v", err)
	}
}
