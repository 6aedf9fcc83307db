package repository

import (
	"context"
	"time"

	"storefront/internal/domain"
)

// PaymentUpdate carries the fields applied to an order when the processor
// confirms a successful payment.
type PaymentUpdate struct {
	TransactionID string
	PaidAt        time.Time
	CardBrand     string
	LastFour      string
}

// OrderRepository defines the persistence operations for orders.
type OrderRepository interface {
	// Create persists a new order.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order by ID.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// ApplyPaymentSuccess atomically marks the order paid-and-processing
	// with the given payment details. The check on the stored transaction
	// id and the write happen in a single per-order operation. It returns
	// applied=false when the order already carries update.TransactionID
	// (duplicate delivery) or is not in a payable status; that is not an
	// error. ErrNotFound is returned when the order does not exist.
	ApplyPaymentSuccess(ctx context.Context, orderID string, update PaymentUpdate) (applied bool, err error)

	// RecordPaymentFailure stores the processor's failure reason on the
	// order without changing its status.
	RecordPaymentFailure(ctx context.Context, orderID string, reason string) error
}
