package service

import "errors"

var (
	// ErrInvalidOrderID is returned when order ID is empty.
	ErrInvalidOrderID = errors.New("invalid order id")

	// ErrInvalidRequesterID is returned when the requesting identity is empty.
	ErrInvalidRequesterID = errors.New("invalid requester id")

	// ErrForbidden is returned when the requester does not own the order
	// and is not an administrator.
	ErrForbidden = errors.New("not authorized to access this order")

	// ErrOrderNotPayable is returned when an intent is requested for an
	// order whose status does not admit another payment attempt.
	ErrOrderNotPayable = errors.New("order is not payable in its current status")

	// ErrCurrencyMismatch is returned when the caller supplies a currency
	// that disagrees with the order's.
	ErrCurrencyMismatch = errors.New("currency does not match order")

	// ErrGatewayUnavailable is returned when the payment processor call
	// fails or times out. The order is left untouched and the caller may
	// retry with a new intent.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrPersistence is returned when a verified webhook event could not
	// be durably applied. Surfaced as a server error so the processor
	// retries the delivery.
	ErrPersistence = errors.New("failed to persist payment state")
)
