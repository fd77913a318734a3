package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"brickvest/internal/model"
	"brickvest/internal/repository"

	"github.com/shopspring/decimal"
)

// Ledger is the slice of LedgerService the dispatcher and planner use.
type Ledger interface {
	Apply(ctx context.Context, req ApplyRequest) (*model.WalletTransaction, error)
}

// RewardStore is the referral persistence the dispatcher needs.
// Satisfied by *repository.ReferralRepository.
type RewardStore interface {
	GetByRefereeID(ctx context.Context, refereeID int64) (*model.Referral, error)
	MarkRefereeRewarded(ctx context.Context, referralID int64) error
	MarkReferrerRewarded(ctx context.Context, referralID int64) error
}

// RewardService turns external lifecycle events into reward credits.
//
// Both entry points are re-entrant and safe to replay. The referral's
// reward flags are only hints that skip work; the ledger dedupe key is
// the actual at-most-once guarantee, because two deliveries of the same
// event can race past the flag check.
type RewardService struct {
	store    RewardStore
	ledger   Ledger
	notifier Notifier
}

func NewRewardService(store RewardStore, ledger Ledger, notifier Notifier) *RewardService {
	return &RewardService{store: store, ledger: ledger, notifier: notifier}
}

// OnUserApproved credits the referee's welcome bonus onto their rewards
// balance, once ever per referral.
func (s *RewardService) OnUserApproved(ctx context.Context, userID int64) error {
	referral, err := s.store.GetByRefereeID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrReferralNotFound) {
			return nil // not a referred user
		}
		return err
	}
	if referral.RefereeRewarded {
		return nil
	}

	trans, err := s.ledger.Apply(ctx, ApplyRequest{
		UserID:          userID,
		Type:            model.TransactionTypeReferralBonus,
		Amount:          referral.RefereeReward,
		Currency:        referral.Currency,
		Description:     fmt.Sprintf("Welcome bonus - referred by user #%d", referral.ReferrerID),
		RelatedEntityID: fmt.Sprintf("%d", referral.ID),
		DedupeKey:       RefereeDedupeKey(referral.ID),
	})
	if err != nil {
		// Flag stays unset so a redelivery retries the credit; the dedupe
		// key keeps a partially-succeeded earlier attempt from paying twice.
		return fmt.Errorf("credit referee reward: %w", err)
	}

	if err := s.store.MarkRefereeRewarded(ctx, referral.ID); err != nil {
		return fmt.Errorf("mark referee rewarded: %w", err)
	}

	s.notifyCredited(ctx, userID, referral.ID, referral.RefereeReward, referral.Currency, trans.TransactionNo)
	log.Printf("[Reward] referee credited: referralID=%d userID=%d amount=%s %s",
		referral.ID, userID, referral.RefereeReward, referral.Currency)
	return nil
}

// OnQualifyingInvestment credits the referrer's bonus when the referee's
// investment meets the snapshotted minimum in the record's currency.
// Non-qualifying or foreign-currency events are ignored, not errors.
func (s *RewardService) OnQualifyingInvestment(ctx context.Context, userID int64, amount decimal.Decimal, currency string) error {
	referral, err := s.store.GetByRefereeID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrReferralNotFound) {
			return nil
		}
		return err
	}
	if referral.ReferrerRewarded {
		return nil
	}
	if currency != referral.Currency {
		// An investment in another market never qualifies against this
		// record; dropping it here is what keeps currencies isolated.
		return nil
	}
	if amount.LessThan(referral.MinInvestment) {
		return nil
	}

	trans, err := s.ledger.Apply(ctx, ApplyRequest{
		UserID:          referral.ReferrerID,
		Type:            model.TransactionTypeReferralBonus,
		Amount:          referral.ReferrerReward,
		Currency:        referral.Currency,
		Description:     fmt.Sprintf("Referral bonus - user #%d invested %s %s", userID, amount, currency),
		RelatedEntityID: fmt.Sprintf("%d", referral.ID),
		DedupeKey:       ReferrerDedupeKey(referral.ID),
	})
	if err != nil {
		return fmt.Errorf("credit referrer reward: %w", err)
	}

	if err := s.store.MarkReferrerRewarded(ctx, referral.ID); err != nil {
		return fmt.Errorf("mark referrer rewarded: %w", err)
	}

	s.notifyCredited(ctx, referral.ReferrerID, referral.ID, referral.ReferrerReward, referral.Currency, trans.TransactionNo)
	log.Printf("[Reward] referrer credited: referralID=%d referrerID=%d amount=%s %s",
		referral.ID, referral.ReferrerID, referral.ReferrerReward, referral.Currency)
	return nil
}

func (s *RewardService) notifyCredited(ctx context.Context, userID, referralID int64, amount decimal.Decimal, currency, transactionNo string) {
	if s.notifier == nil {
		return
	}
	payload := map[string]interface{}{
		"user_id":        userID,
		"referral_id":    referralID,
		"amount":         amount,
		"currency":       currency,
		"transaction_no": transactionNo,
	}
	if err := s.notifier.Enqueue(ctx, nil, model.NotifyRewardCredited, fmt.Sprintf("user-%d", userID), payload); err != nil {
		// Notification loss is tolerable; the credit itself is durable.
		log.Printf("[Reward] enqueue notification failed: %v", err)
	}
}

// RefereeDedupeKey names the referee welcome-bonus credit for a referral.
func RefereeDedupeKey(referralID int64) string {
	return fmt.Sprintf("referral:%d:referee", referralID)
}

// ReferrerDedupeKey names the referrer bonus credit for a referral.
func ReferrerDedupeKey(referralID int64) string {
	return fmt.Sprintf("referral:%d:referrer", referralID)
}

var _ RewardStore = (*repository.ReferralRepository)(nil)
var _ Ledger = (*LedgerService)(nil)
