package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"storefront/internal/gateway"
	"storefront/internal/repository"
)

// Metadata keys set at intent creation. The webhook reconciler reads the
// same keys to correlate an event back to its order.
const (
	MetadataOrderID = "order_id"
	MetadataUserID  = "user_id"
)

// IntentService creates payment intents for orders.
type IntentService struct {
	orders  repository.OrderRepository
	gateway gateway.Client
}

// NewIntentService creates a new IntentService.
func NewIntentService(orders repository.OrderRepository, gw gateway.Client) *IntentService {
	return &IntentService{
		orders:  orders,
		gateway: gw,
	}
}

// CreateIntentRequest contains the parameters for creating a payment intent.
// RequesterID and IsAdmin come from the authenticated session, never from
// the request body.
type CreateIntentRequest struct {
	RequesterID string
	IsAdmin     bool
	OrderID     string
	Currency    string
}

// IntentResult is the client-facing result of intent creation.
type IntentResult struct {
	IntentID     string
	ClientSecret string
}

// CreateIntent validates the request against the persisted order and asks
// the gateway for an intent. The amount always comes from the order record;
// nothing the caller sends can change what the processor is asked to
// charge. Intent creation performs no writes: the order only transitions
// when the processor's webhook confirms an outcome.
func (s *IntentService) CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentResult, error) {
	if req.OrderID == "" {
		return nil, ErrInvalidOrderID
	}
	if req.RequesterID == "" {
		return nil, ErrInvalidRequesterID
	}

	order, err := s.orders.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	if order.OwnerID != req.RequesterID && !req.IsAdmin {
		return nil, ErrForbidden
	}

	if !order.Status.Payable() {
		return nil, ErrOrderNotPayable
	}

	if req.Currency != "" && !strings.EqualFold(req.Currency, order.Currency) {
		return nil, ErrCurrencyMismatch
	}

	intent, err := s.gateway.CreateIntent(ctx, gateway.CreateIntentParams{
		Amount:   order.Amount,
		Currency: order.Currency,
		Metadata: map[string]string{
			MetadataOrderID: order.ID,
			MetadataUserID:  req.RequesterID,
		},
	})
	if err != nil {
		log.Printf("intent creation failed for order %s: %v", order.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	return &IntentResult{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}
