package tests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/gateway"
	"storefront/internal/repository"
	"storefront/internal/service"
)

const testWebhookSecret = "whsec_test_secret"

// verifyingGateway returns a real gateway client so webhook signature
// verification in these tests runs the production code path.
func verifyingGateway() *gateway.HTTPClient {
	return gateway.NewHTTPClient(gateway.Config{
		WebhookSecret: testWebhookSecret,
		Tolerance:     gateway.DefaultTolerance,
	})
}

// successEvent builds the raw JSON body of a payment.succeeded event.
func successEvent(t *testing.T, eventID, orderID, transactionID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":      eventID,
		"type":    "payment.succeeded",
		"created": time.Now().Unix(),
		"data": map[string]any{
			"intent_id": "pi_" + eventID,
			"amount":    5000,
			"currency":  "usd",
			"metadata":  map[string]string{"order_id": orderID, "user_id": "u1"},
			"charge": map[string]any{
				"id":         transactionID,
				"card_brand": "visa",
				"last_four":  "4242",
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body
}

func failureEvent(t *testing.T, eventID, orderID, message string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":      eventID,
		"type":    "payment.failed",
		"created": time.Now().Unix(),
		"data": map[string]any{
			"intent_id":       "pi_" + eventID,
			"metadata":        map[string]string{"order_id": orderID, "user_id": "u1"},
			"failure_message": message,
		},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body
}

func sign(payload []byte) string {
	return gateway.SignPayload(time.Now(), payload, testWebhookSecret)
}

func TestWebhook_InvalidSignature_NoMutation(t *testing.T) {
	t.Parallel()

	orderRepo := NewMockOrderRepository()
	orderRepo.AddOrder(pendingOrder("ord_1", "u1", 5000))
	reconciler := service.NewWebhookReconciler(orderRepo, verifyingGateway(), nil)

	payload := successEvent(t, "evt_1", "ord_1", "tx_9")
	header := sign(payload)

	// Tamper with the body after signing.
	tampered := []byte(string(payload[:len(payload)-1]) + " ")

	before := orderRepo.Snapshot()
	err := reconciler.Handle(context.Background(), tampered, header)
	if !errors.Is(err, gateway.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	after := orderRepo.Snapshot()
	if before["ord_1"] != after["ord_1"] {
		t.Error("order mutated despite invalid signature")
	}
	if orderRepo.ApplyCallCount != 0 {
		t.Errorf("expected no store writes, got %d", orderRepo.ApplyCallCount)
	}
}

func TestWebhook_GarbledHeaderRejected(t *testing.T) {
	t.Parallel()

	orderRepo := NewMockOrderRepository()
	orderRepo.AddOrder(pendingOrder("ord_1", "u1", 5000))
	reconciler := service.NewWebhookReconciler(orderRepo, verifyingGateway(), nil)

	payload := successEvent(t, "evt_1", "ord_1", "tx_9")

	for _, header := range []string{"", "garbage", "t=notanumber,v1=ff", "t=0,v1=zz"} {
		err := reconciler.Handle(context.Background(), payload, header)
		if !errors.Is(err, gateway.ErrInvalidSignature) {
			t.Errorf("header %q: expected ErrInvalidSignature, got %v", header, err)
		}
	}
}

func TestWebhook_PaymentSucceeded_TransitionsOrder(t *testing.T) {
	t.Parallel()

	orderRepo := NewMockOrderRepository()
	orderRepo.AddOrder(pendingOrder("ord_1", "u1", 5000))
	reconciler := service.NewWebhookReconciler(orderRepo, verifyingGateway(), nil)

	payload := successEvent(t, "evt_1", "ord_1", "tx_9")
	if err := reconciler.Handle(context.Background(), payload, sign(payload)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order := orderRepo.GetOrder("ord_1")
	if order.Status != domain.OrderStatusProcessing {
		t.Errorf("expected status processing, got %s", order.Status)
	}
	if !order.Payment.IsPaid {
		t.Error("expected order marked paid")
	}
	if order.Payment.TransactionID != "tx_9" {
		t.Errorf("expected transaction id tx_9, got %s", order.Payment.TransactionID)
	}
	if order.Payment.PaidAt == nil {
		t.Error("expected paidAt to be set")
	}
	if order.Payment.CardBrand != "visa" || order.Payment.LastFour != "4242" {
		t.Errorf("expected card details recorded, got %s/%s", order.Payment.CardBrand, order.Payment.LastFour)
	}
}

func TestWebhook_DuplicateDelivery_IsNoOp(t *testing.T) {
	t.Parallel()

	orderRepo := NewMockOrderRepository()
	orderRepo.AddOrder(pendingOrder("ord_1", "u1", 5000))
	reconciler := service.NewWebhookReconciler(orderRepo, verifyingGateway(), nil)

	payload := successEvent(t, "evt_1", "ord_1", "tx_9")
	if err := reconciler.Handle(context.Background(), payload, sign(payload)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	firstPaidAt := *orderRepo.GetOrder("ord_1").Payment.PaidAt

	// Redeliver the identical event with a fresh signature.
	if err := reconciler.Handle(context.Background(), payload, sign(payload)); err != nil {
		t.Fatalf("second delivery must ack, got %v", err)
	}

	if orderRepo.AppliedCount != 1 {
		t.Errorf("expected exactly one applied transition, got %d", orderRepo.AppliedCount)
	}
	if !orderRepo.GetOrder("ord_1").Payment.PaidAt.Equal(firstPaidAt) {
		t.Error("paidAt overwritten by duplicate delivery")
	}
}

func TestWebhook_ConcurrentDuplicates_SingleTransition(t *testing.T) {
	t.Parallel()

	orderRepo := NewMockOrderRepository()
	orderRepo.AddOrder(pendingOrder("ord_1", "u1", 5000))
	reconciler := service.NewWebhookReconciler(orderRepo, verifyingGateway(), nil)

	payload := successEvent(t, "evt_1", "ord_1", "tx_9")
	header := sign(payload)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = reconciler.Handle(context.Background(), payload, header)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("delivery %d: expected ack, got %v", i, err)
		}
	}
	if orderRepo.AppliedCount != 1 {
		t.Errorf("expected exactly one applied transition, got %d", orderRepo.AppliedCount)
	}
}

func TestWebhook_OutOfOrder_RetryAfterDeclineSucceeds(t *testing.T) {
	t.Parallel()

	orderRepo := NewMockOrderRepository()
	orderRepo.AddOrder(pendingOrder("ord_1", "u1", 5000))
	reconciler := service.NewWebhookReconciler(orderRepo, verifyingGateway(), nil)

	// First intent declines.
	failed := failureEvent(t, "evt_1", "ord_1", "card_declined")
	if err := reconciler.Handle(context.Background(), failed, sign(failed)); err != nil {
		t.Fatalf("failure event must ack, got %v", err)
	}

	order := orderRepo.GetOrder("ord_1")
	if order.Status != domain.OrderStatusPending {
		t.Errorf("decline must not change status, got %s", order.Status)
	}
	if order.LastPaymentError != "card_declined" {
		t.Errorf("expected recorded decline reason, got %q", order.LastPaymentError)
	}

	// A second intent on the same order succeeds.
	succeeded := successEvent(t, "evt_2", "ord_1", "tx_10")
	if err := reconciler.Handle(context.Background(), succeeded, sign(succeeded)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order = orderRepo.GetOrder("ord_1")
	if order.Status != domain.OrderStatusProcessing || !order.Payment.IsPaid {
		t.Errorf("retry-after-decline did not apply: status=%s paid=%v", order.Status, order.Payment.IsPaid)
	}
	if order.Payment.TransactionID != "tx_10" {
		t.Errorf("expected transaction tx_10, got %s", order.Payment.TransactionID)
	}
}

func TestWebhook_UnknownEventType_Acked(t *testing.T) {
	t.Parallel()

	orderRepo := NewMockOrderRepository()
	orderRepo.AddOrder(pendingOrder("ord_1", "u1", 5000))
	reconciler := service.NewWebhookReconciler(orderRepo, verifyingGateway(), nil)

	payload, _ := json.Marshal(map[string]any{
		"id":   "evt_1",
		"type": "customer.updated",
		"data": map[string]any{},
	})
	if err := reconciler.Handle(context.Background(), payload, sign(payload)); err != nil {
		t.Fatalf("unknown event type must ack, got %v", err)
	}
	if orderRepo.ApplyCallCount != 0 || orderRepo.RecordFailureCallCount != 0 {
		t.Error("unknown event type must not touch the store")
	}
}

func TestWebhook_UnknownOrder_Acked(t *testing.T) {
	t.Parallel()

	orderRepo := NewMockOrderRepository()
	reconciler := service.NewWebhookReconciler(orderRepo, verifyingGateway(), nil)

	payload := successEvent(t, "evt_1", "ord_missing", "tx_9")
	if err := reconciler.Handle(context.Background(), payload, sign(payload)); err != nil {
		t.Fatalf("missing order must still ack, got %v", err)
	}
}

func TestWebhook_MissingMetadata_Acked(t *testing.T) {
	t.Parallel()

	orderRepo := NewMockOrderRepository()
	reconciler := service.NewWebhookReconciler(orderRepo, verifyingGateway(), nil)

	payload, _ := json.Marshal(map[string]any{
		"id":   "evt_1",
		"type": "payment.succeeded",
		"data": map[string]any{"intent_id": "pi_1"},
	})
	if err := reconciler.Handle(context.Background(), payload, sign(payload)); err != nil {
		t.Fatalf("event without order metadata must ack, got %v", err)
	}
	if orderRepo.ApplyCallCount != 0 {
		t.Error("event without order metadata must not touch the store")
	}
}

func TestWebhook_PersistenceFailure_Surfaced(t *testing.T) {
	t.Parallel()

	orderRepo := NewMockOrderRepository()
	orderRepo.AddOrder(pendingOrder("ord_1", "u1", 5000))
	orderRepo.ApplyError = ErrMockDBDown
	events := NewMockEventStore()
	reconciler := service.NewWebhookReconciler(orderRepo, verifyingGateway(), events)

	payload := successEvent(t, "evt_1", "ord_1", "tx_9")
	err := reconciler.Handle(context.Background(), payload, sign(payload))
	if !errors.Is(err, service.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}

	// The marker is only written after a durable update, so a failed
	// write must leave nothing behind that could short-circuit the retry.
	if events.IsMarked("evt_1") {
		t.Error("event marker set despite persistence failure")
	}

	// The retry must go through and apply.
	orderRepo.ApplyError = nil
	if err := reconciler.Handle(context.Background(), payload, sign(payload)); err != nil {
		t.Fatalf("retry after persistence failure: %v", err)
	}
	if got := orderRepo.GetOrder("ord_1"); got.Status != domain.OrderStatusProcessing {
		t.Errorf("expected retry to apply the transition, order is %s", got.Status)
	}
}

// gatedOrderRepository fails the first payment write, but only after a
// concurrent delivery of the same event has finished. This reproduces the
// window where one delivery's durable write is still in flight while its
// duplicate races ahead.
type gatedOrderRepository struct {
	*MockOrderRepository
	entered  chan struct{}
	release  chan struct{}
	attempts int32
}

func (g *gatedOrderRepository) ApplyPaymentSuccess(ctx context.Context, orderID string, update repository.PaymentUpdate) (bool, error) {
	if atomic.AddInt32(&g.attempts, 1) == 1 {
		close(g.entered)
		<-g.release
		return false, ErrMockDBDown
	}
	return g.MockOrderRepository.ApplyPaymentSuccess(ctx, orderID, update)
}

func TestWebhook_DuplicateDuringInFlightWrite_NotFalselyAcked(t *testing.T) {
	t.Parallel()

	base := NewMockOrderRepository()
	base.AddOrder(pendingOrder("ord_1", "u1", 5000))
	orderRepo := &gatedOrderRepository{
		MockOrderRepository: base,
		entered:             make(chan struct{}),
		release:             make(chan struct{}),
	}
	events := NewMockEventStore()
	reconciler := service.NewWebhookReconciler(orderRepo, verifyingGateway(), events)

	payload := successEvent(t, "evt_1", "ord_1", "tx_9")

	// First delivery enters the repository and stalls there; its write
	// will ultimately fail.
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- reconciler.Handle(context.Background(), payload, sign(payload))
	}()
	<-orderRepo.entered

	// The duplicate arrives while the first write is still in flight. It
	// must not be acknowledged off a marker alone: either it durably
	// applies the event itself or it errors so the processor retries.
	dupErr := reconciler.Handle(context.Background(), payload, sign(payload))
	if dupErr != nil {
		t.Fatalf("duplicate delivery: %v", dupErr)
	}
	if got := base.GetOrder("ord_1"); got.Status != domain.OrderStatusProcessing {
		t.Fatalf("duplicate acked without a durable write, order is %s", got.Status)
	}

	close(orderRepo.release)
	if err := <-firstDone; !errors.Is(err, service.ErrPersistence) {
		t.Fatalf("expected ErrPersistence from the failed delivery, got %v", err)
	}

	if base.AppliedCount != 1 {
		t.Errorf("expected exactly one applied transition, got %d", base.AppliedCount)
	}
}

func TestWebhook_EventStoreShortCircuitsRedelivery(t *testing.T) {
	t.Parallel()

	orderRepo := NewMockOrderRepository()
	orderRepo.AddOrder(pendingOrder("ord_1", "u1", 5000))
	events := NewMockEventStore()
	reconciler := service.NewWebhookReconciler(orderRepo, verifyingGateway(), events)

	payload := successEvent(t, "evt_1", "ord_1", "tx_9")
	if err := reconciler.Handle(context.Background(), payload, sign(payload)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := reconciler.Handle(context.Background(), payload, sign(payload)); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	if orderRepo.ApplyCallCount != 1 {
		t.Errorf("expected redelivery to short-circuit before the store, got %d writes", orderRepo.ApplyCallCount)
	}
}

func TestWebhook_EventStoreFailure_DegradesGracefully(t *testing.T) {
	t.Parallel()

	orderRepo := NewMockOrderRepository()
	orderRepo.AddOrder(pendingOrder("ord_1", "u1", 5000))
	events := NewMockEventStore()
	events.CheckError = fmt.Errorf("redis down")
	events.MarkError = fmt.Errorf("redis down")
	reconciler := service.NewWebhookReconciler(orderRepo, verifyingGateway(), events)

	payload := successEvent(t, "evt_1", "ord_1", "tx_9")
	if err := reconciler.Handle(context.Background(), payload, sign(payload)); err != nil {
		t.Fatalf("marker failure must not fail the webhook, got %v", err)
	}
	if orderRepo.AppliedCount != 1 {
		t.Errorf("expected the transition to apply without the fast path, got %d", orderRepo.AppliedCount)
	}
}

func TestWebhook_FailureRecordingErrors_Swallowed(t *testing.T) {
	t.Parallel()

	orderRepo := NewMockOrderRepository()
	orderRepo.AddOrder(pendingOrder("ord_1", "u1", 5000))
	orderRepo.RecordFailureError = ErrMockDBDown
	reconciler := service.NewWebhookReconciler(orderRepo, verifyingGateway(), nil)

	payload := failureEvent(t, "evt_1", "ord_1", "card_declined")
	if err := reconciler.Handle(context.Background(), payload, sign(payload)); err != nil {
		t.Fatalf("failure-path errors must not fail the webhook, got %v", err)
	}
}
