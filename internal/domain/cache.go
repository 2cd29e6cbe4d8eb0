package domain

import (
	"context"
	"time"
)

// Cache defines the read-path cache used by the API layer: evaluated
// outcomes and dashboard summaries. Velocity facts are never cached; the
// aggregator always scans the history store fresh.
type Cache interface {
	// Get retrieves a value. Returns nil, nil on a miss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// GetOutcome retrieves a cached evaluation outcome by transaction id.
	GetOutcome(ctx context.Context, txID string) (*Outcome, error)

	// SetOutcome caches an evaluation outcome.
	SetOutcome(ctx context.Context, txID string, outcome *Outcome, ttl time.Duration) error

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// EnableTwoPhase checks the local cache first, then Redis.
	EnableTwoPhase bool
}
