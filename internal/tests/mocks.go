package tests

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"storefront/internal/domain"
	"storefront/internal/gateway"
	"storefront/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK ORDER REPOSITORY
// ──────────────────────────────────────────────

// MockOrderRepository is a mock implementation of OrderRepository. Its
// ApplyPaymentSuccess mirrors the production semantics: check and write
// happen under one lock, so concurrent deliveries serialize per store.
type MockOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order

	// Counters for verification
	GetByIDCallCount       int32
	ApplyCallCount         int32
	AppliedCount           int32
	RecordFailureCallCount int32

	// Error injection
	GetByIDError       error
	ApplyError         error
	RecordFailureError error
}

// NewMockOrderRepository creates a new mock order repository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]*domain.Order),
	}
}

// AddOrder adds an order to the mock repository.
func (m *MockOrderRepository) AddOrder(order *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
}

func (m *MockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
	return nil
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	atomic.AddInt32(&m.GetByIDCallCount, 1)
	if m.GetByIDError != nil {
		return nil, m.GetByIDError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	// Return a copy to avoid mutation issues.
	copy := *order
	return &copy, nil
}

func (m *MockOrderRepository) ApplyPaymentSuccess(ctx context.Context, orderID string, update repository.PaymentUpdate) (bool, error) {
	atomic.AddInt32(&m.ApplyCallCount, 1)
	if m.ApplyError != nil {
		return false, m.ApplyError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return false, repository.ErrNotFound
	}

	// Same guards as the production conditional UPDATE.
	if order.Payment.TransactionID == update.TransactionID || !order.Status.Payable() {
		return false, nil
	}

	paidAt := update.PaidAt
	order.Payment.IsPaid = true
	order.Payment.PaidAt = &paidAt
	order.Payment.TransactionID = update.TransactionID
	order.Payment.CardBrand = update.CardBrand
	order.Payment.LastFour = update.LastFour
	order.Status = domain.OrderStatusProcessing
	atomic.AddInt32(&m.AppliedCount, 1)
	return true, nil
}

func (m *MockOrderRepository) RecordPaymentFailure(ctx context.Context, orderID string, reason string) error {
	atomic.AddInt32(&m.RecordFailureCallCount, 1)
	if m.RecordFailureError != nil {
		return m.RecordFailureError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return repository.ErrNotFound
	}
	order.LastPaymentError = reason
	return nil
}

// GetOrder returns the stored order for test assertions.
func (m *MockOrderRepository) GetOrder(id string) *domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.orders[id]
}

// Snapshot returns a deep copy of all orders for before/after diffing.
func (m *MockOrderRepository) Snapshot() map[string]domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := make(map[string]domain.Order, len(m.orders))
	for id, order := range m.orders {
		copy := *order
		if order.Payment.PaidAt != nil {
			paidAt := *order.Payment.PaidAt
			copy.Payment.PaidAt = &paidAt
		}
		snapshot[id] = copy
	}
	return snapshot
}

// ──────────────────────────────────────────────
// MOCK GATEWAY CLIENT
// ──────────────────────────────────────────────

// MockGateway is a mock implementation of gateway.Client.
type MockGateway struct {
	mu sync.Mutex

	// Responses
	Intent      *gateway.Intent
	IntentError error
	Event       *gateway.Event
	VerifyError error

	// Captured inputs
	LastParams  gateway.CreateIntentParams
	LastPayload []byte

	// Counters
	CreateIntentCallCount int32
	VerifyCallCount       int32
}

// NewMockGateway creates a new mock gateway client.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Intent: &gateway.Intent{ID: "pi_1", ClientSecret: "cs_test_1"},
	}
}

func (m *MockGateway) CreateIntent(ctx context.Context, params gateway.CreateIntentParams) (*gateway.Intent, error) {
	atomic.AddInt32(&m.CreateIntentCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastParams = params
	if m.IntentError != nil {
		return nil, m.IntentError
	}
	return m.Intent, nil
}

func (m *MockGateway) VerifyEvent(payload []byte, sigHeader string) (*gateway.Event, error) {
	atomic.AddInt32(&m.VerifyCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastPayload = payload
	if m.VerifyError != nil {
		return nil, m.VerifyError
	}
	return m.Event, nil
}

// CapturedParams returns the params of the last CreateIntent call.
func (m *MockGateway) CapturedParams() gateway.CreateIntentParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LastParams
}

// ──────────────────────────────────────────────
// MOCK EVENT STORE
// ──────────────────────────────────────────────

// MockEventStore is a mock implementation of the processed-event marker.
type MockEventStore struct {
	mu     sync.Mutex
	marked map[string]bool

	// Counters
	CheckCallCount int32
	MarkCallCount  int32

	// Error injection
	CheckError error
	MarkError  error
}

// NewMockEventStore creates a new mock event store.
func NewMockEventStore() *MockEventStore {
	return &MockEventStore{
		marked: make(map[string]bool),
	}
}

func (m *MockEventStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	atomic.AddInt32(&m.CheckCallCount, 1)
	if m.CheckError != nil {
		return false, m.CheckError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marked[eventID], nil
}

func (m *MockEventStore) MarkProcessed(ctx context.Context, eventID string) error {
	atomic.AddInt32(&m.MarkCallCount, 1)
	if m.MarkError != nil {
		return m.MarkError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked[eventID] = true
	return nil
}

// IsMarked checks whether an event is marked (for test assertions).
func (m *MockEventStore) IsMarked(eventID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marked[eventID]
}

// ──────────────────────────────────────────────
// HELPER ERRORS
// ──────────────────────────────────────────────

var (
	ErrMockDBDown    = errors.New("mock: database unavailable")
	ErrMockGatewayIO = errors.New("mock: gateway connection refused")
)
