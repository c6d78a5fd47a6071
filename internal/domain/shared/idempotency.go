package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers the serialized result of a completed command so
// that a retried command with the same key replays it without side effects.
//
// A key is reserved before the command runs and holds its result once the
// command commits, so two concurrent attempts never both apply.
type IdempotencyStore interface {
	// Seen returns the stored result for key, if any. A reservation is not a result.
	Seen(ctx context.Context, key string) ([]byte, bool, error)

	// Reserve claims key for ttl. It reports false when key is already
	// reserved or holds a result.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release drops the reservation on key. A stored result is kept.
	Release(ctx context.Context, key string) error

	// Remember stores result under key for ttl, replacing a reservation.
	// A stored result is kept.
	Remember(ctx context.Context, key string, result []byte, ttl time.Duration) error

	// Close releases resources held by the store
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a remembered result is replayed.
	// Default: 24 hours
	TTL time.Duration

	// Enabled determines whether idempotency keys are honoured.
	// Default: true
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
