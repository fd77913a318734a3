package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"brickvest/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitInvestment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/investments", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "ALC-1", r.Header.Get("Idempotency-Key"))

		var req SubmitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ALC-1", req.AllocationNo)
		assert.True(t, decimal.NewFromInt(60).Equal(req.Amount))

		json.NewEncoder(w).Encode(SubmitResponse{InvestmentID: "INV-9", Status: "confirmed"})
	}))
	defer srv.Close()

	c := NewClient(&config.ProcessorConfig{BaseURL: srv.URL, APIKey: "test-key", TimeoutSeconds: 2})
	resp, err := c.SubmitInvestment(context.Background(), SubmitRequest{
		AllocationNo: "ALC-1",
		UserID:       9,
		Amount:       decimal.NewFromInt(60),
		Currency:     "TND",
		Theme:        "balanced",
		RiskLevel:    "medium",
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-9", resp.InvestmentID)
}

func TestSubmitInvestment_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(&config.ProcessorConfig{BaseURL: srv.URL, TimeoutSeconds: 2})
	_, err := c.SubmitInvestment(context.Background(), SubmitRequest{AllocationNo: "ALC-1"})
	assert.Error(t, err)
}

func TestSubmitInvestment_EmptyInvestmentID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SubmitResponse{Status: "confirmed"})
	}))
	defer srv.Close()

	c := NewClient(&config.ProcessorConfig{BaseURL: srv.URL, TimeoutSeconds: 2})
	_, err := c.SubmitInvestment(context.Background(), SubmitRequest{AllocationNo: "ALC-1"})
	assert.Error(t, err)
}
