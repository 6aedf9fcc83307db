package redis

import (
	"context"
)

// EventStoreInterface defines the interface for processed-event markers.
type EventStoreInterface interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ EventStoreInterface = (*EventStore)(nil)
)
