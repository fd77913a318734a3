package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"brickvest/internal/model"
	"brickvest/internal/repository"
	"brickvest/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const snapshotCacheTTL = 30 * time.Second

// ApplyRequest describes one ledger mutation. Amount is signed: positive
// credits, negative debits. DedupeKey names the logical cause and must
// be unique per cause; a replay returns the original transaction.
type ApplyRequest struct {
	UserID          int64
	Type            string
	Amount          decimal.Decimal
	Currency        string
	Description     string
	RelatedEntityID string
	DedupeKey       string
}

// Snapshot is the wallet view exposed to the UI layer.
type Snapshot struct {
	UserID         int64           `json:"user_id"`
	Currency       string          `json:"currency"`
	CashBalance    decimal.Decimal `json:"cash_balance"`
	RewardsBalance decimal.Decimal `json:"rewards_balance"`
	TotalBalance   decimal.Decimal `json:"total_balance"`
}

// LedgerService owns every wallet balance mutation. Each mutation locks
// the wallet row, appends the transaction and moves the balance in one
// database transaction; the dedupe_key unique index is the concurrency
// guard against double-crediting, not any application lock.
type LedgerService struct {
	db              *gorm.DB
	redisClient     *redis.Client
	walletRepo      *repository.WalletRepository
	transactionRepo *repository.TransactionRepository
}

func NewLedgerService(db *gorm.DB, redisClient *redis.Client) *LedgerService {
	return &LedgerService{
		db:              db,
		redisClient:     redisClient,
		walletRepo:      repository.NewWalletRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
	}
}

// Apply appends a transaction and moves the corresponding balance. If
// the dedupe key was already recorded, the pre-existing transaction is
// returned with no new mutation.
func (s *LedgerService) Apply(ctx context.Context, req ApplyRequest) (*model.WalletTransaction, error) {
	if req.Amount.IsZero() {
		return nil, fmt.Errorf("%w: amount must be non-zero", ErrValidation)
	}
	if req.Currency == "" || req.DedupeKey == "" {
		return nil, fmt.Errorf("%w: currency and dedupe key are required", ErrValidation)
	}

	balanceType := model.BalanceTypeFor(req.Type)
	if balanceType == model.BalanceTypeRewards && req.Amount.IsNegative() {
		// Rewards are spendable through conversion flows, never debited here.
		return nil, fmt.Errorf("%w: rewards balance cannot be debited", ErrValidation)
	}

	wallet, err := s.walletRepo.GetOrCreate(ctx, req.UserID, req.Currency)
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	if wallet.Currency != req.Currency {
		// A mismatch means the caller wired the wrong market; the wallet
		// currency never changes after creation.
		log.Printf("[Ledger] CURRENCY MISMATCH userID=%d wallet=%s request=%s dedupeKey=%s",
			req.UserID, wallet.Currency, req.Currency, req.DedupeKey)
		return nil, ErrCurrencyMismatch
	}

	// Fast path: the cause was already recorded.
	if existing, err := s.transactionRepo.GetByDedupeKey(ctx, req.DedupeKey); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	trans := &model.WalletTransaction{
		TransactionNo:   idgen.GenerateTransactionNo(),
		UserID:          req.UserID,
		WalletID:        wallet.ID,
		Type:            req.Type,
		Amount:          req.Amount,
		Currency:        req.Currency,
		BalanceType:     balanceType,
		Description:     req.Description,
		RelatedEntityID: req.RelatedEntityID,
		DedupeKey:       req.DedupeKey,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, req.UserID); err != nil {
			return err
		}

		if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
			return err
		}

		if req.Amount.IsNegative() {
			if err := s.walletRepo.Debit(ctx, tx, wallet.ID, balanceType, req.Amount.Neg()); err != nil {
				return err
			}
		} else {
			if err := s.walletRepo.Credit(ctx, tx, wallet.ID, balanceType, req.Amount); err != nil {
				return err
			}
		}
		return nil
	})

	if errors.Is(err, repository.ErrDuplicateDedupeKey) {
		// Lost the race against a concurrent delivery of the same cause;
		// the money already moved exactly once.
		existing, getErr := s.transactionRepo.GetByDedupeKey(ctx, req.DedupeKey)
		if getErr != nil {
			return nil, getErr
		}
		if existing == nil {
			return nil, err
		}
		return existing, nil
	}
	if errors.Is(err, repository.ErrBalanceNotEnough) {
		return nil, ErrInsufficientFunds
	}
	if err != nil {
		return nil, err
	}

	s.invalidateSnapshot(ctx, req.UserID)
	return trans, nil
}

// Deposit credits cash. Reference is the caller's idempotency handle.
func (s *LedgerService) Deposit(ctx context.Context, userID int64, amount decimal.Decimal, currency, reference, description string) (*model.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: deposit amount must be positive", ErrValidation)
	}
	if reference == "" {
		return nil, fmt.Errorf("%w: reference is required", ErrValidation)
	}
	if description == "" {
		description = "Cash deposit"
	}
	return s.Apply(ctx, ApplyRequest{
		UserID:      userID,
		Type:        model.TransactionTypeDeposit,
		Amount:      amount,
		Currency:    currency,
		Description: description,
		DedupeKey:   fmt.Sprintf("deposit:%s", reference),
	})
}

// Withdraw debits cash; fails with ErrInsufficientFunds when the cash
// balance cannot cover it.
func (s *LedgerService) Withdraw(ctx context.Context, userID int64, amount decimal.Decimal, currency, reference, description string) (*model.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: withdrawal amount must be positive", ErrValidation)
	}
	if reference == "" {
		return nil, fmt.Errorf("%w: reference is required", ErrValidation)
	}
	if description == "" {
		description = "Cash withdrawal"
	}
	return s.Apply(ctx, ApplyRequest{
		UserID:      userID,
		Type:        model.TransactionTypeWithdrawal,
		Amount:      amount.Neg(),
		Currency:    currency,
		Description: description,
		DedupeKey:   fmt.Sprintf("withdrawal:%s", reference),
	})
}

// GetSnapshot returns the wallet balances, served from a short-lived
// Redis cache when possible. A user with no wallet yet gets a zero
// snapshot without creating one.
func (s *LedgerService) GetSnapshot(ctx context.Context, userID int64) (*Snapshot, error) {
	cacheKey := snapshotCacheKey(userID)
	if s.redisClient != nil {
		if raw, err := s.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			var snap Snapshot
			if json.Unmarshal([]byte(raw), &snap) == nil {
				return &snap, nil
			}
		}
	}

	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return &Snapshot{
				UserID:         userID,
				CashBalance:    decimal.Zero,
				RewardsBalance: decimal.Zero,
				TotalBalance:   decimal.Zero,
			}, nil
		}
		return nil, err
	}

	snap := &Snapshot{
		UserID:         userID,
		Currency:       wallet.Currency,
		CashBalance:    wallet.CashBalance,
		RewardsBalance: wallet.RewardsBalance,
		TotalBalance:   wallet.TotalBalance(),
	}

	if s.redisClient != nil {
		if raw, err := json.Marshal(snap); err == nil {
			s.redisClient.Set(ctx, cacheKey, raw, snapshotCacheTTL)
		}
	}
	return snap, nil
}

// ListTransactions pages the wallet history with optional type and date
// filters.
func (s *LedgerService) ListTransactions(ctx context.Context, userID int64, filter repository.ListFilter) ([]*model.WalletTransaction, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return []*model.WalletTransaction{}, 0, nil
		}
		return nil, 0, err
	}

	return s.transactionRepo.ListByWalletID(ctx, wallet.ID, filter)
}

// SumByType totals the signed amounts of one transaction type for the
// user's wallet.
func (s *LedgerService) SumByType(ctx context.Context, userID int64, txType string) (decimal.Decimal, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return s.transactionRepo.SumByType(ctx, wallet.ID, txType)
}

func (s *LedgerService) invalidateSnapshot(ctx context.Context, userID int64) {
	if s.redisClient == nil {
		return
	}
	if err := s.redisClient.Del(ctx, snapshotCacheKey(userID)).Err(); err != nil {
		log.Printf("[Ledger] invalidate snapshot cache userID=%d: %v", userID, err)
	}
}

func snapshotCacheKey(userID int64) string {
	return fmt.Sprintf("wallet:snapshot:%d", userID)
}
