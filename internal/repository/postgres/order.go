package postgres

import (
	"context"
	"database/sql"
	"errors"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

// OrderRepository is a PostgreSQL implementation of repository.OrderRepository.
type OrderRepository struct {
	q Querier
}

// NewOrderRepository creates a new PostgreSQL order repository.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{q: db}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (id, owner_id, amount, currency, status,
			is_paid, paid_at, transaction_id, card_brand, last_four,
			last_payment_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12, $13)
	`

	_, err := r.q.ExecContext(ctx, query,
		order.ID,
		order.OwnerID,
		order.Amount,
		order.Currency,
		order.Status,
		order.Payment.IsPaid,
		order.Payment.PaidAt,
		order.Payment.TransactionID,
		order.Payment.CardBrand,
		order.Payment.LastFour,
		order.LastPaymentError,
		order.CreatedAt,
		order.UpdatedAt,
	)

	return err
}

// GetByID retrieves an order by ID.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `
		SELECT id, owner_id, amount, currency, status,
			is_paid, paid_at, transaction_id, card_brand, last_four,
			last_payment_error, created_at, updated_at
		FROM orders WHERE id = $1
	`

	var order domain.Order
	var paidAt sql.NullTime
	var transactionID sql.NullString
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.OwnerID,
		&order.Amount,
		&order.Currency,
		&order.Status,
		&order.Payment.IsPaid,
		&paidAt,
		&transactionID,
		&order.Payment.CardBrand,
		&order.Payment.LastFour,
		&order.LastPaymentError,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if paidAt.Valid {
		t := paidAt.Time
		order.Payment.PaidAt = &t
	}
	order.Payment.TransactionID = transactionID.String

	return &order, nil
}

// ApplyPaymentSuccess atomically applies a confirmed payment to the order.
// The transaction-id guard and the status guard live in the UPDATE itself,
// so two concurrent deliveries of the same event race on a single row write
// and only one of them reports applied=true.
func (r *OrderRepository) ApplyPaymentSuccess(ctx context.Context, orderID string, update repository.PaymentUpdate) (bool, error) {
	query := `
		UPDATE orders
		SET is_paid = TRUE,
			paid_at = $2,
			transaction_id = $3,
			card_brand = $4,
			last_four = $5,
			status = $6,
			updated_at = NOW()
		WHERE id = $1
			AND transaction_id IS DISTINCT FROM $3
			AND status IN ($7, $8)
	`

	result, err := r.q.ExecContext(ctx, query,
		orderID,
		update.PaidAt,
		update.TransactionID,
		update.CardBrand,
		update.LastFour,
		domain.OrderStatusProcessing,
		domain.OrderStatusPending,
		domain.OrderStatusPaymentFailed,
	)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	if rowsAffected > 0 {
		return true, nil
	}

	// Nothing updated: either the order does not exist, or the guards
	// rejected the write (duplicate delivery or non-payable status).
	var exists bool
	err = r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, repository.ErrNotFound
	}

	return false, nil
}

// RecordPaymentFailure stores the processor's failure reason on the order.
// The status is left untouched: a declined attempt does not cancel the order.
func (r *OrderRepository) RecordPaymentFailure(ctx context.Context, orderID string, reason string) error {
	query := `UPDATE orders SET last_payment_error = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.q.ExecContext(ctx, query, reason, orderID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}
