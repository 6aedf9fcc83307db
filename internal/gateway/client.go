package gateway

import (
	"context"
	"errors"
)

var (
	// ErrInvalidSignature is returned when a webhook payload fails
	// signature verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrMalformedEvent is returned when a verified payload cannot be
	// parsed into an event.
	ErrMalformedEvent = errors.New("malformed webhook event")
)

// EventType is the tagged variant of a webhook notification.
type EventType string

const (
	EventTypePaymentSucceeded EventType = "payment.succeeded"
	EventTypePaymentFailed    EventType = "payment.failed"

	// EventTypeOther covers event types this service does not handle.
	// They are acknowledged without any state transition.
	EventTypeOther EventType = "other"
)

// Charge carries the display-only card details of a settled charge.
type Charge struct {
	ID        string `json:"id"`
	CardBrand string `json:"card_brand"`
	LastFour  string `json:"last_four"`
}

// EventData is the intent payload carried by a webhook event.
type EventData struct {
	IntentID       string            `json:"intent_id"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Metadata       map[string]string `json:"metadata"`
	Charge         *Charge           `json:"charge,omitempty"`
	FailureMessage string            `json:"failure_message,omitempty"`
}

// Event is a verified webhook notification from the payment processor.
type Event struct {
	ID      string    `json:"id"`
	Type    EventType `json:"-"`
	RawType string    `json:"type"`
	Created int64     `json:"created"`
	Data    EventData `json:"data"`
}

// CreateIntentParams are the parameters for creating a payment intent.
// Metadata is echoed back on webhook events and is the only correlation
// mechanism between an intent and its order.
type CreateIntentParams struct {
	Amount   int64
	Currency string
	Metadata map[string]string
}

// Intent is a processor-side charge attempt.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// Client is the interface to the payment processor.
type Client interface {
	// CreateIntent creates a payment intent for the given amount.
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)

	// VerifyEvent verifies the signature over the exact raw payload bytes
	// and parses the result. It returns ErrInvalidSignature before any
	// business field is inspected, or ErrMalformedEvent if the verified
	// payload does not parse.
	VerifyEvent(payload []byte, sigHeader string) (*Event, error)
}
