package job

import (
	"testing"

	"brickvest/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestConservationDrift(t *testing.T) {
	wallet := &model.Wallet{
		CashBalance:    decimal.NewFromFloat(120.50),
		RewardsBalance: decimal.NewFromInt(25),
	}

	// Balances match the ledger sum exactly: the wallet conserves.
	assert.True(t, conservationDrift(wallet, decimal.NewFromFloat(145.50)).IsZero())

	// A credit that bypassed the ledger shows up as positive drift.
	drift := conservationDrift(wallet, decimal.NewFromFloat(145.00))
	assert.True(t, decimal.NewFromFloat(0.50).Equal(drift))

	// A ledger row whose balance update was lost shows up as negative.
	drift = conservationDrift(wallet, decimal.NewFromFloat(150.50))
	assert.True(t, decimal.NewFromInt(-5).Equal(drift))

	// Fresh wallet with no history.
	empty := &model.Wallet{CashBalance: decimal.Zero, RewardsBalance: decimal.Zero}
	assert.True(t, conservationDrift(empty, decimal.Zero).IsZero())
}
