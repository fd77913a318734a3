// Package processor talks to the external Investment Processor, the
// collaborator that turns an allocation into an actual investment order.
// Project selection by theme and risk level is its responsibility, not
// ours.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"brickvest/internal/config"

	"github.com/shopspring/decimal"
)

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(cfg *config.ProcessorConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// SubmitRequest asks the processor to place an investment order.
// AllocationNo doubles as the processor-side idempotency key, so a
// retried submission of the same allocation cannot create two orders.
type SubmitRequest struct {
	AllocationNo string          `json:"allocation_no"`
	UserID       int64           `json:"user_id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Theme        string          `json:"theme"`
	RiskLevel    string          `json:"risk_level"`
}

type SubmitResponse struct {
	InvestmentID string `json:"investment_id"`
	Status       string `json:"status"`
}

// SubmitInvestment places the order. Transport and 5xx failures are
// returned for the caller to retry with backoff.
func (c *Client) SubmitInvestment(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/investments", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Idempotency-Key", req.AllocationNo)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("submit investment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("submit investment: processor returned %s", resp.Status)
	}

	var out SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode processor response: %w", err)
	}
	if out.InvestmentID == "" {
		return nil, fmt.Errorf("submit investment: empty investment id")
	}
	return &out, nil
}
