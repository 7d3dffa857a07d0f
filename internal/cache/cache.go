package cache

import (
	"context"
	"time"
)

// Cache stores JSON-encoded values by request key with a TTL. The Redis
// client implements it for production; MemoryCache covers tests and
// redis-less runs.
type Cache interface {
	// GetJSON unmarshals the value at key into dest. The bool reports
	// whether the key existed.
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Health(ctx context.Context) error
	Close() error
}
