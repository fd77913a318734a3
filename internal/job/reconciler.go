package job

import (
	"context"
	"fmt"
	"log"
	"time"

	"brickvest/internal/config"
	"brickvest/internal/model"
	"brickvest/internal/repository"
	"brickvest/internal/service"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Reconciler is the periodic sweep that re-drives work the happy path
// dropped partway:
//
//   - referrals whose ledger credit exists but whose reward flag was
//     never set (crash between Apply and the flag update),
//   - failed allocations whose debit was never reversed,
//   - pending allocations stuck past the staleness cutoff, surfaced so
//     operators notice a wedged submitter or processor,
//   - wallets whose balances drifted from the sum of their ledger rows.
//
// Every repair goes through the same dedupe-keyed writes as the live
// path, so a sweep racing an event redelivery is harmless.
type Reconciler struct {
	db              *gorm.DB
	referralRepo    *repository.ReferralRepository
	transactionRepo *repository.TransactionRepository
	allocRepo       *repository.AllocationRepository
	walletRepo      *repository.WalletRepository
	ledger          service.Ledger
	staleCutoff     time.Duration
	stopCh          chan struct{}
	interval        time.Duration
	batchSize       int
}

func NewReconciler(db *gorm.DB, ledger service.Ledger, cfg *config.Config) *Reconciler {
	interval := time.Duration(cfg.Business.ReconcileSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	staleCutoff := time.Duration(cfg.Business.StaleAllocationMins) * time.Minute
	if staleCutoff <= 0 {
		staleCutoff = 15 * time.Minute
	}
	return &Reconciler{
		db:              db,
		referralRepo:    repository.NewReferralRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		allocRepo:       repository.NewAllocationRepository(db),
		walletRepo:      repository.NewWalletRepository(db),
		ledger:          ledger,
		staleCutoff:     staleCutoff,
		stopCh:          make(chan struct{}),
		interval:        interval,
		batchSize:       100,
	}
}

func (j *Reconciler) Start(ctx context.Context) {
	log.Println("[Reconciler] started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Reconciler] stopped")
			return
		case <-j.stopCh:
			log.Println("[Reconciler] stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Reconciler) Stop() {
	close(j.stopCh)
}

func (j *Reconciler) sweep(ctx context.Context) {
	j.repairReferralFlags(ctx)
	j.repairFailedAllocations(ctx)
	j.reportStaleAllocations(ctx)
	j.checkConservation(ctx)
}

// checkConservation verifies, wallet by wallet, that the stored
// balances equal the sum of the wallet's signed ledger rows. Drift is
// never corrected automatically; it means a write bypassed the ledger
// and needs a human.
func (j *Reconciler) checkConservation(ctx context.Context) {
	for offset := 0; ; offset += j.batchSize {
		wallets, err := j.walletRepo.List(ctx, j.batchSize, offset)
		if err != nil {
			log.Printf("[Reconciler] list wallets: %v", err)
			return
		}
		if len(wallets) == 0 {
			return
		}

		for _, wallet := range wallets {
			ledgerSum, err := j.transactionRepo.SumByWallet(ctx, wallet.ID)
			if err != nil {
				log.Printf("[Reconciler] sum ledger: walletID=%d err=%v", wallet.ID, err)
				continue
			}
			if drift := conservationDrift(wallet, ledgerSum); !drift.IsZero() {
				log.Printf("[Reconciler] CONSERVATION DRIFT: walletID=%d userID=%d balances=%s ledger=%s drift=%s %s",
					wallet.ID, wallet.UserID, wallet.TotalBalance(), ledgerSum, drift, wallet.Currency)
			}
		}

		if len(wallets) < j.batchSize {
			return
		}
	}
}

// conservationDrift returns balances minus ledger sum; zero when the
// wallet conserves.
func conservationDrift(wallet *model.Wallet, ledgerSum decimal.Decimal) decimal.Decimal {
	return wallet.TotalBalance().Sub(ledgerSum)
}

// repairReferralFlags aligns reward flags with ledger truth. The ledger
// row is authoritative: if the credit exists, the flag must be set.
func (j *Reconciler) repairReferralFlags(ctx context.Context) {
	referrals, err := j.referralRepo.ListUnsettled(ctx, j.batchSize)
	if err != nil {
		log.Printf("[Reconciler] list unsettled referrals: %v", err)
		return
	}

	for _, referral := range referrals {
		if !referral.RefereeRewarded {
			trans, err := j.transactionRepo.GetByDedupeKey(ctx, service.RefereeDedupeKey(referral.ID))
			if err != nil {
				log.Printf("[Reconciler] lookup referee credit: referralID=%d err=%v", referral.ID, err)
			} else if trans != nil {
				if err := j.referralRepo.MarkRefereeRewarded(ctx, referral.ID); err != nil {
					log.Printf("[Reconciler] repair referee flag: referralID=%d err=%v", referral.ID, err)
				} else {
					log.Printf("[Reconciler] repaired referee flag: referralID=%d", referral.ID)
				}
			}
		}
		if !referral.ReferrerRewarded {
			trans, err := j.transactionRepo.GetByDedupeKey(ctx, service.ReferrerDedupeKey(referral.ID))
			if err != nil {
				log.Printf("[Reconciler] lookup referrer credit: referralID=%d err=%v", referral.ID, err)
			} else if trans != nil {
				if err := j.referralRepo.MarkReferrerRewarded(ctx, referral.ID); err != nil {
					log.Printf("[Reconciler] repair referrer flag: referralID=%d err=%v", referral.ID, err)
				} else {
					log.Printf("[Reconciler] repaired referrer flag: referralID=%d", referral.ID)
				}
			}
		}
	}
}

// repairFailedAllocations re-drives the reversal credit for failed
// allocations whose funds are still held.
func (j *Reconciler) repairFailedAllocations(ctx context.Context) {
	allocs, err := j.allocRepo.GetFailed(ctx, j.batchSize)
	if err != nil {
		log.Printf("[Reconciler] list failed allocations: %v", err)
		return
	}

	for _, alloc := range allocs {
		debitKey := fmt.Sprintf("allocation:%s", alloc.AllocationNo)
		reversalKey := fmt.Sprintf("allocation:%s:reversal", alloc.AllocationNo)

		debit, err := j.transactionRepo.GetByDedupeKey(ctx, debitKey)
		if err != nil || debit == nil {
			continue // awaiting-approval allocations never held funds
		}
		reversal, err := j.transactionRepo.GetByDedupeKey(ctx, reversalKey)
		if err != nil || reversal != nil {
			continue
		}

		if _, err := j.ledger.Apply(ctx, service.ApplyRequest{
			UserID:          alloc.UserID,
			Type:            model.TransactionTypeReinvestAllocation,
			Amount:          alloc.Amount,
			Currency:        alloc.Currency,
			Description:     fmt.Sprintf("Auto-reinvest allocation %s reversed after failed submission", alloc.AllocationNo),
			RelatedEntityID: alloc.AllocationNo,
			DedupeKey:       reversalKey,
		}); err != nil {
			log.Printf("[Reconciler] re-drive reversal: allocationNo=%s err=%v", alloc.AllocationNo, err)
			continue
		}
		log.Printf("[Reconciler] reversed failed allocation: allocationNo=%s amount=%s %s",
			alloc.AllocationNo, alloc.Amount, alloc.Currency)
	}
}

func (j *Reconciler) reportStaleAllocations(ctx context.Context) {
	allocs, err := j.allocRepo.GetStale(ctx, time.Now().Add(-j.staleCutoff), j.batchSize)
	if err != nil {
		log.Printf("[Reconciler] list stale allocations: %v", err)
		return
	}

	for _, alloc := range allocs {
		log.Printf("[Reconciler] STALE allocation pending for %s: allocationNo=%s userID=%d amount=%s %s attempts=%d lastError=%q",
			time.Since(alloc.CreatedAt).Round(time.Second), alloc.AllocationNo, alloc.UserID,
			alloc.Amount, alloc.Currency, alloc.AttemptCount, alloc.LastError)
	}
}
