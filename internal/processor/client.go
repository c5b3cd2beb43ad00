package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/taskfair/marketplace-backend/internal/models"
)

// CheckoutSessionInput describes a checkout session to create. Metadata
// travels to the processor and comes back on the webhook, which is how the
// confirmation handler knows which task and offer the money belongs to.
type CheckoutSessionInput struct {
	Amount         float64
	Currency       string
	IdempotencyKey string
	Metadata       SessionMetadata
}

// SessionMetadata is the task context attached to a checkout session.
type SessionMetadata struct {
	TaskID        string `json:"task_id"`
	OfferID       string `json:"offer_id"`
	BaseAmount    string `json:"base_amount"`
	PlatformFee   string `json:"platform_fee"`
	PaymentMethod string `json:"payment_method"`
}

// CheckoutSession is the processor's answer to a session creation.
type CheckoutSession struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkout_url"`
}

// TransferInput describes a payout to a connected account.
type TransferInput struct {
	Amount             float64
	Currency           string
	DestinationAccount string
	IdempotencyKey     string
	Description        string
}

// TransferResult is the processor's answer to a transfer.
type TransferResult struct {
	ID string `json:"id"`
}

// Client talks to the external payment processor over its REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type createSessionRequest struct {
	Amount         int64           `json:"amount"`
	Currency       string          `json:"currency"`
	IdempotencyKey string          `json:"idempotency_key"`
	Metadata       SessionMetadata `json:"metadata"`
}

// CreateCheckoutSession asks the processor to build a checkout session the
// client will pay through. Idempotent by IdempotencyKey.
func (c *Client) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*CheckoutSession, error) {
	if in.Currency == "" {
		in.Currency = models.DefaultCurrency
	}
	body := createSessionRequest{
		Amount:         toMinorUnits(in.Amount),
		Currency:       in.Currency,
		IdempotencyKey: in.IdempotencyKey,
		Metadata:       in.Metadata,
	}

	var session CheckoutSession
	if err := c.post(ctx, "/v1/checkout/sessions", in.IdempotencyKey, body, &session); err != nil {
		return nil, fmt.Errorf("processor: create checkout session: %w", err)
	}
	return &session, nil
}

type transferRequest struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Destination string `json:"destination"`
	Description string `json:"description,omitempty"`
}

// Transfer moves captured funds to the prestataire's connected account.
func (c *Client) Transfer(ctx context.Context, in TransferInput) (*TransferResult, error) {
	if in.Currency == "" {
		in.Currency = models.DefaultCurrency
	}
	body := transferRequest{
		Amount:      toMinorUnits(in.Amount),
		Currency:    in.Currency,
		Destination: in.DestinationAccount,
		Description: in.Description,
	}

	var result TransferResult
	if err := c.post(ctx, "/v1/transfers", in.IdempotencyKey, body, &result); err != nil {
		return nil, fmt.Errorf("processor: transfer: %w", err)
	}
	return &result, nil
}

func (c *Client) post(ctx context.Context, path, idempotencyKey string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// toMinorUnits converts a major-unit amount into processor minor units.
func toMinorUnits(amount float64) int64 {
	return int64(amount*100 + 0.5)
}
