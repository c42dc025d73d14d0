package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Authorization is the payment oracle's verdict. The engine never confirms
// a purchase without Authorized plus a non-empty transaction reference.
type Authorization struct {
	Authorized bool   `json:"authorized"`
	TxRef      string `json:"transaction_ref"`
	Reason     string `json:"reason,omitempty"`
}

// PaymentOracle is the external x402 collaborator, consumed as an opaque
// pass/fail plus transaction-id source.
type PaymentOracle interface {
	Authorize(ctx context.Context, amount float64, resource, wallet string) (*Authorization, error)
}

// StaticOracle authorizes everything with a fixed reference prefix. It
// exists for local development and tests; production wiring uses X402Client.
type StaticOracle struct {
	Prefix string
}

func (o StaticOracle) Authorize(_ context.Context, _ float64, resource, _ string) (*Authorization, error) {
	return &Authorization{Authorized: true, TxRef: o.Prefix + resource}, nil
}

// X402Client talks to an x402 facilitator over HTTP. Verification and
// settlement details live on the facilitator side.
type X402Client struct {
	url    string
	client *http.Client
}

func NewX402Client(url string, timeout time.Duration) *X402Client {
	return &X402Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *X402Client) Authorize(ctx context.Context, amount float64, resource, wallet string) (*Authorization, error) {
	payload := map[string]any{
		"amount":   amount,
		"resource": resource,
		"wallet":   wallet,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal authorize payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/authorize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build authorize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authorize request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read authorize response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("facilitator returned status %d", resp.StatusCode)
	}

	var auth Authorization
	if err := json.Unmarshal(raw, &auth); err != nil {
		return nil, fmt.Errorf("parse authorize response: %w", err)
	}
	return &auth, nil
}
