package service

import "errors"

// Error taxonomy. Validation, conflict and funds errors are final and
// surfaced to the caller.
var (
	ErrValidation        = errors.New("validation error")
	ErrSelfReferral      = errors.New("self referral is not allowed")
	ErrAlreadyReferred   = errors.New("user already has a referral")
	ErrInvalidCode       = errors.New("invalid referral code")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrCurrencyMismatch  = errors.New("currency mismatch")
	ErrPlanExists        = errors.New("user already has an auto-reinvest plan")
	ErrPlanNotFound      = errors.New("auto-reinvest plan not found")
)
