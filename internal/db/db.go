package db

import (
	"context"
	"time"
)

// Store is the cache store facade used by the permission cache.
// Consumers depend on the narrow sub-interfaces.
type Store interface {
	Pinger
	KVStore
	Counter
	Scanner
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Counter provides atomic counters.
type Counter interface {
	// Incr increments key by one and returns the new value. A missing key
	// counts from zero and never expires.
	Incr(ctx context.Context, key string) (int64, error)
}

// Scanner enumerates keys by glob pattern.
type Scanner interface {
	Scan(ctx context.Context, pattern string) ([]string, error)
}
