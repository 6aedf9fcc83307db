package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"storefront/internal/domain"
	"storefront/internal/gateway"
	"storefront/internal/redis"
	"storefront/internal/repository"
)

// WebhookReconciler applies the processor's asynchronous payment
// notifications to orders. Delivery is at-least-once and unordered, so
// every path here is either idempotent or deliberately returns an error to
// trigger a retry.
type WebhookReconciler struct {
	orders  repository.OrderRepository
	gateway gateway.Client
	events  redis.EventStoreInterface
	now     func() time.Time
}

// NewWebhookReconciler creates a new WebhookReconciler. events may be nil;
// the store is only a fast path for duplicate deliveries and correctness
// never depends on it.
func NewWebhookReconciler(orders repository.OrderRepository, gw gateway.Client, events redis.EventStoreInterface) *WebhookReconciler {
	return &WebhookReconciler{
		orders:  orders,
		gateway: gw,
		events:  events,
		now:     time.Now,
	}
}

// Handle verifies and applies one webhook delivery. payload must be the
// exact raw request bytes; re-serialized JSON would break the signature
// check. A nil return acknowledges the delivery. Errors mean either the
// payload was not trustworthy (invalid signature, malformed body) or a
// valid event could not be durably applied, in which case the processor is
// expected to retry.
func (r *WebhookReconciler) Handle(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := r.gateway.VerifyEvent(payload, sigHeader)
	if err != nil {
		return err
	}

	switch event.Type {
	case gateway.EventTypePaymentSucceeded:
		return r.applySuccess(ctx, event)
	case gateway.EventTypePaymentFailed:
		r.recordFailure(ctx, event)
		return nil
	default:
		// Unknown event types are acknowledged without a transition so
		// new processor features never turn into retry storms.
		log.Printf("webhook: ignoring event %s of type %q", event.ID, event.RawType)
		return nil
	}
}

// applySuccess marks the referenced order paid. The order id comes from
// intent metadata, which was set server-side at intent creation and cannot
// be chosen by anyone who does not hold the webhook secret.
func (r *WebhookReconciler) applySuccess(ctx context.Context, event *gateway.Event) error {
	orderID := event.Data.Metadata[MetadataOrderID]
	if orderID == "" {
		log.Printf("webhook: event %s has no order id in metadata", event.ID)
		return nil
	}

	transactionID := event.Data.IntentID
	if event.Data.Charge != nil && event.Data.Charge.ID != "" {
		transactionID = event.Data.Charge.ID
	}
	if transactionID == "" {
		log.Printf("webhook: event %s carries no transaction id", event.ID)
		return nil
	}

	// Fast path: skip events this instance group already applied. The
	// check is read-only; the marker is written only after the order row
	// is durably updated, so a delivery still in flight can never make a
	// retry of the same event ack prematurely. Redis being down just
	// means we fall through to the row-level guard.
	if r.events != nil {
		processed, err := r.events.IsProcessed(ctx, event.ID)
		if err != nil {
			log.Printf("webhook: event marker unavailable for %s: %v", event.ID, err)
		} else if processed {
			log.Printf("webhook: event %s already processed, acknowledging", event.ID)
			return nil
		}
	}

	update := repository.PaymentUpdate{
		TransactionID: transactionID,
		PaidAt:        r.now(),
	}
	if event.Data.Charge != nil {
		update.CardBrand = event.Data.Charge.CardBrand
		update.LastFour = event.Data.Charge.LastFour
	}

	applied, err := r.orders.ApplyPaymentSuccess(ctx, orderID, update)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// The processor retries forever on errors; an event for an
			// order we do not know about can never apply, so ack it.
			log.Printf("webhook: order %s not found for event %s, acknowledging", orderID, event.ID)
			return nil
		}
		return fmt.Errorf("%w: order %s: %v", ErrPersistence, orderID, err)
	}

	// The row is durably updated (or the row-level guard proved a prior
	// delivery already applied it), so the marker is safe to set now.
	r.markProcessed(ctx, event.ID)

	if !applied {
		log.Printf("webhook: duplicate delivery for order %s (transaction %s), acknowledging", orderID, transactionID)
		return nil
	}

	log.Printf("webhook: order %s marked %s (transaction %s)", orderID, domain.OrderStatusProcessing, transactionID)
	return nil
}

// recordFailure stores the decline reason for observability. The order
// status is left alone: the customer may retry, and whether repeated
// declines should cancel an order is a policy owned elsewhere. Failures in
// this path are logged and swallowed; losing a decline reason is not worth
// a retry storm.
func (r *WebhookReconciler) recordFailure(ctx context.Context, event *gateway.Event) {
	orderID := event.Data.Metadata[MetadataOrderID]
	if orderID == "" {
		log.Printf("webhook: failure event %s has no order id in metadata", event.ID)
		return
	}

	reason := event.Data.FailureMessage
	if reason == "" {
		reason = "unknown error"
	}
	log.Printf("webhook: payment failed for order %s: %s", orderID, reason)

	if err := r.orders.RecordPaymentFailure(ctx, orderID, reason); err != nil {
		log.Printf("webhook: could not record failure for order %s: %v", orderID, err)
	}
}

// markProcessed records the event in the fast-path store. Best effort: a
// failed write only costs one extra trip through the row-level guard on the
// next redelivery.
func (r *WebhookReconciler) markProcessed(ctx context.Context, eventID string) {
	if r.events == nil {
		return
	}
	if err := r.events.MarkProcessed(ctx, eventID); err != nil {
		log.Printf("webhook: could not set event marker %s: %v", eventID, err)
	}
}
