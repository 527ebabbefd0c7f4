// Package cache defines the port interface for key-value caching.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for byte-oriented key-value caching with TTL.
// The cost service uses it to avoid recomputing summaries for hot periods;
// a miss simply triggers a fresh aggregation pass.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
