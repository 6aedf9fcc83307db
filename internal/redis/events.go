package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventStore tracks webhook event ids that have already been applied. It is
// a fast path only: the conditional update on the order row is what makes
// duplicate delivery safe, this store just short-circuits obvious retries.
type EventStore struct {
	client *redis.Client
}

// NewEventStore creates a new EventStore.
func NewEventStore(client *redis.Client) *EventStore {
	return &EventStore{client: client}
}

// Processed-event markers outlive the processor's retry window.
const eventMarkerTTL = 24 * time.Hour

const eventMarkerPrefix = "webhook:event:"

// IsProcessed reports whether eventID has already been durably applied.
func (s *EventStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	key := fmt.Sprintf("%s%s", eventMarkerPrefix, eventID)

	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// MarkProcessed records eventID as handled. Only call this after the
// event's effect has been durably written; a marker set earlier could ack
// a retry whose original delivery never persisted.
func (s *EventStore) MarkProcessed(ctx context.Context, eventID string) error {
	key := fmt.Sprintf("%s%s", eventMarkerPrefix, eventID)

	return s.client.Set(ctx, key, "1", eventMarkerTTL).Err()
}
