package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds the credentials and limits for the HTTP gateway client.
type Config struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
	Tolerance     time.Duration
}

// HTTPClient is the production implementation of Client. It is constructed
// explicitly and injected; no package-level credential state exists.
type HTTPClient struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	tolerance     time.Duration
	httpClient    *http.Client
	now           func() time.Time
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a gateway client from config. The HTTP timeout
// bounds the create-intent call; callers treat a timeout like any other
// gateway failure.
func NewHTTPClient(cfg Config) *HTTPClient {
	tolerance := cfg.Tolerance
	if tolerance == 0 {
		tolerance = DefaultTolerance
	}

	return &HTTPClient{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
		tolerance:     tolerance,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		now:           time.Now,
	}
}

type createIntentRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

type gatewayError struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// CreateIntent creates a payment intent with the processor.
func (c *HTTPClient) CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error) {
	body, err := json.Marshal(createIntentRequest{
		Amount:   params.Amount,
		Currency: params.Currency,
		Metadata: params.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("encode intent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payment_intents", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build intent request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create intent: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read intent response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var gwErr gatewayError
		if err := json.Unmarshal(respBody, &gwErr); err == nil && gwErr.Error.Message != "" {
			return nil, fmt.Errorf("processor rejected intent (status %d): %s", resp.StatusCode, gwErr.Error.Message)
		}
		return nil, fmt.Errorf("processor rejected intent (status %d)", resp.StatusCode)
	}

	var intent Intent
	if err := json.Unmarshal(respBody, &intent); err != nil {
		return nil, fmt.Errorf("decode intent response: %w", err)
	}
	if intent.ID == "" || intent.ClientSecret == "" {
		return nil, fmt.Errorf("processor returned incomplete intent")
	}

	return &intent, nil
}

// VerifyEvent verifies payload against sigHeader and parses it. The raw
// bytes are verified exactly as received; parsing only happens after the
// signature check passes.
func (c *HTTPClient) VerifyEvent(payload []byte, sigHeader string) (*Event, error) {
	if err := verifySignature(payload, sigHeader, c.webhookSecret, c.tolerance, c.now()); err != nil {
		return nil, err
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.RawType == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}

	switch EventType(event.RawType) {
	case EventTypePaymentSucceeded:
		event.Type = EventTypePaymentSucceeded
	case EventTypePaymentFailed:
		event.Type = EventTypePaymentFailed
	default:
		event.Type = EventTypeOther
	}

	return &event, nil
}
