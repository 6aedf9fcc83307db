package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the current status of an order.
type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "pending"
	OrderStatusProcessing    OrderStatus = "processing"
	OrderStatusPaid          OrderStatus = "paid"
	OrderStatusPaymentFailed OrderStatus = "payment_failed"
	OrderStatusCancelled     OrderStatus = "cancelled"
)

// CanTransitionTo reports whether the status may move to next.
// Terminal states are paid and cancelled. A payment_failed order remains
// payable: a later successful attempt moves it forward again.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusProcessing ||
			next == OrderStatusPaymentFailed ||
			next == OrderStatusCancelled
	case OrderStatusProcessing:
		return next == OrderStatusPaid || next == OrderStatusPaymentFailed
	case OrderStatusPaymentFailed:
		return next == OrderStatusProcessing
	default:
		return false
	}
}

// Payable reports whether a new payment attempt may be started for an
// order in this status.
func (s OrderStatus) Payable() bool {
	return s == OrderStatusPending || s == OrderStatusPaymentFailed
}

// PaymentInfo holds the payment outcome recorded on an order.
type PaymentInfo struct {
	IsPaid        bool
	PaidAt        *time.Time
	TransactionID string // processor charge id; empty until a success is applied
	CardBrand     string
	LastFour      string
}

// Order represents a customer order. Amount and Currency are computed
// server-side when the order is placed and are the only values ever sent
// to the payment processor.
type Order struct {
	ID               string
	OwnerID          string
	Amount           int64 // minor units
	Currency         string
	Status           OrderStatus
	Payment          PaymentInfo
	LastPaymentError string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewOrder creates a pending order owned by ownerID. Checkout collaborators
// call this at order placement; this core only reads the result.
func NewOrder(ownerID string, amount int64, currency string) *Order {
	now := time.Now()
	return &Order{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Amount:    amount,
		Currency:  currency,
		Status:    OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
