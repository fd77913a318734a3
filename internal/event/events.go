// Package event defines the external lifecycle events this service
// consumes. Payloads are plain JSON; each event kind has its own typed
// struct and is dispatched through a single function per kind, so a
// malformed payload fails at the decode boundary instead of deep inside
// reward logic.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// UserApprovedEvent fires when the approval flow accepts a user's
// account. It may arrive before or after that user's first investment.
type UserApprovedEvent struct {
	UserID int64 `json:"user_id"`
}

// InvestmentCreatedEvent fires when the investment flow records a new
// investment for a user.
type InvestmentCreatedEvent struct {
	UserID    int64           `json:"user_id"`
	ProjectID int64           `json:"project_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
}

// RentalPayoutEvent fires when the rental-distribution flow pays out
// rental income. PayoutID is unique per payout and is the idempotency
// handle for the planner.
type RentalPayoutEvent struct {
	UserID     int64           `json:"user_id"`
	PayoutID   string          `json:"payout_id"`
	ProjectID  int64           `json:"project_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	PayoutDate time.Time       `json:"payout_date"`
}

func DecodeUserApproved(payload []byte) (UserApprovedEvent, error) {
	var e UserApprovedEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return e, fmt.Errorf("decode user approved event: %w", err)
	}
	if e.UserID == 0 {
		return e, fmt.Errorf("user approved event: missing user_id")
	}
	return e, nil
}

func DecodeInvestmentCreated(payload []byte) (InvestmentCreatedEvent, error) {
	var e InvestmentCreatedEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return e, fmt.Errorf("decode investment created event: %w", err)
	}
	if e.UserID == 0 || e.Currency == "" {
		return e, fmt.Errorf("investment created event: missing user_id or currency")
	}
	return e, nil
}

func DecodeRentalPayout(payload []byte) (RentalPayoutEvent, error) {
	var e RentalPayoutEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return e, fmt.Errorf("decode rental payout event: %w", err)
	}
	if e.UserID == 0 || e.PayoutID == "" || e.Currency == "" {
		return e, fmt.Errorf("rental payout event: missing user_id, payout_id or currency")
	}
	return e, nil
}
