package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/comanda-pos/comanda/internal/config"
	"github.com/comanda-pos/comanda/internal/domain"
	"github.com/comanda-pos/comanda/internal/interfaces"
)

// Client talks to the instant-payment provider over HTTP. Network and
// timeout failures surface as ExternalProviderError; a provider-side
// refusal is not an error and comes back in the payment status.
type Client struct {
	name    string
	baseURL string
	apiKey  string
	http    *http.Client
}

func New(cfg config.PaymentsConfig) *Client {
	return &Client{
		name:    cfg.ProviderName,
		baseURL: cfg.ProviderBaseURL,
		apiKey:  cfg.ProviderAPIKey,
		http:    &http.Client{Timeout: cfg.ProviderTimeout()},
	}
}

func (c *Client) Name() string {
	return c.name
}

type createPaymentRequest struct {
	ExternalReference string            `json:"external_reference"`
	TransactionAmount string            `json:"transaction_amount"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

type paymentResponse struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	QRCode      *string `json:"qr_code"`
	QRCodeImage *string `json:"qr_code_base64"`
}

func (c *Client) CreateOrFetchPayment(ctx context.Context, req interfaces.ProviderPaymentRequest) (*interfaces.ProviderPayment, error) {
	if req.ExistingID != nil && *req.ExistingID != "" {
		return c.GetPayment(ctx, *req.ExistingID)
	}

	body, err := json.Marshal(createPaymentRequest{
		ExternalReference: req.ExternalRef,
		TransactionAmount: req.Amount.StringFixed(2),
		Metadata:          req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build payment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	// The external reference doubles as an idempotency key so the
	// provider deduplicates a retried create.
	httpReq.Header.Set("X-Idempotency-Key", req.ExternalRef)

	return c.do(httpReq)
}

func (c *Client) GetPayment(ctx context.Context, id string) (*interfaces.ProviderPayment, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payments/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build payment lookup: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(httpReq)
}

func (c *Client) do(req *http.Request) (*interfaces.ProviderPayment, error) {
	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.ExternalProviderError{Provider: c.name, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.ExternalProviderError{Provider: c.name, Err: err}
	}

	if resp.StatusCode >= 500 {
		return nil, &domain.ExternalProviderError{
			Provider: c.name,
			Err:      fmt.Errorf("provider returned %d after %s", resp.StatusCode, time.Since(started).Round(time.Millisecond)),
		}
	}
	if resp.StatusCode >= 400 {
		return nil, &domain.ExternalProviderError{
			Provider: c.name,
			Err:      fmt.Errorf("provider rejected request with %d: %s", resp.StatusCode, raw),
		}
	}

	var parsed paymentResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &domain.ExternalProviderError{Provider: c.name, Err: fmt.Errorf("unparseable provider response: %w", err)}
	}

	return &interfaces.ProviderPayment{
		ID:          parsed.ID,
		Status:      parsed.Status,
		QRCode:      parsed.QRCode,
		QRCodeImage: parsed.QRCodeImage,
		Raw:         raw,
	}, nil
}
