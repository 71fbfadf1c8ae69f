// Package events defines the Events Repository contract (spec.md §4.5).
// Like internal/orders, the storage engine is pluggable; internal/events/pgevents
// ships one implementation backed by Postgres.
package events

import (
	"context"
	"time"

	"github.com/avicenne-studio/bridge-hub/internal/domain"
)

// Repository is the Events Repository contract (spec.md §4.5).
//
// Create is idempotent on the (signature, type, nonce) tuple: a duplicate
// insert returns (nil, nil) rather than an error, so callers that ingest
// the same chain event twice (e.g. overlapping poller windows, or a
// poller re-observing a slot the listener already delivered) don't need
// to special-case it.
type Repository interface {
	Create(ctx context.Context, e *domain.StoredEvent) (*domain.StoredEvent, error)
	FindExistingSignatures(ctx context.Context, signatures []string) (map[string]bool, error)
	ListAfterCreatedAt(ctx context.Context, createdAfter time.Time, afterID int64, limit int) ([]*domain.StoredEvent, error)
}
