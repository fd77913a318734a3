package event

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeUserApproved(t *testing.T) {
	e, err := DecodeUserApproved([]byte(`{"user_id": 42}`))
	require.NoError(t, err)
	assert.Equal(t, int64(42), e.UserID)

	_, err = DecodeUserApproved([]byte(`{}`))
	assert.Error(t, err)

	_, err = DecodeUserApproved([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodeInvestmentCreated(t *testing.T) {
	e, err := DecodeInvestmentCreated([]byte(`{"user_id": 7, "project_id": 3, "amount": "2500.50", "currency": "TND", "status": "confirmed"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(7), e.UserID)
	assert.True(t, decimal.RequireFromString("2500.50").Equal(e.Amount))
	assert.Equal(t, "TND", e.Currency)

	// Numeric amounts decode too.
	e, err = DecodeInvestmentCreated([]byte(`{"user_id": 7, "amount": 2500.5, "currency": "EUR"}`))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2500.5").Equal(e.Amount))

	_, err = DecodeInvestmentCreated([]byte(`{"user_id": 7, "amount": "10"}`))
	assert.Error(t, err, "missing currency")
}

func TestDecodeRentalPayout(t *testing.T) {
	e, err := DecodeRentalPayout([]byte(`{"user_id": 7, "payout_id": "P-2024-001", "project_id": 5, "amount": "400", "currency": "TND", "payout_date": "2026-08-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "P-2024-001", e.PayoutID)
	assert.True(t, decimal.NewFromInt(400).Equal(e.Amount))

	_, err = DecodeRentalPayout([]byte(`{"user_id": 7, "amount": "400", "currency": "TND"}`))
	assert.Error(t, err, "missing payout_id")
}
