package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers which deliveries a handler has already seen.
// Keys are "<handler>:<event id>", so two handlers may process the same event.
type IdempotencyStore interface {
	// MarkProcessed claims key for ttl. It reports false when the key was
	// already claimed, in which case the delivery must be dropped.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, key string) (bool, error)
	Close() error
}

// IdempotencyConfig switches delivery deduplication on and sets how long a
// claimed key is kept.
type IdempotencyConfig struct {
	Enabled bool
	TTL     time.Duration
}
