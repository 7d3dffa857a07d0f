package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryCache is a process-local Cache used in tests and when Redis is
// disabled. Entries expire lazily on read.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
	}
}

// SetJSON stores a JSON-encoded value with a TTL
func (mc *MemoryCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %s: %w", key, err)
	}

	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	mc.mu.Lock()
	mc.entries[key] = entry
	mc.mu.Unlock()
	return nil
}

// GetJSON retrieves a JSON-encoded value into dest
func (mc *MemoryCache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	mc.mu.RLock()
	entry, ok := mc.entries[key]
	mc.mu.RUnlock()

	if !ok {
		return false, nil
	}

	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		mc.mu.Lock()
		delete(mc.entries, key)
		mc.mu.Unlock()
		return false, nil
	}

	if err := json.Unmarshal(entry.data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Delete removes a key
func (mc *MemoryCache) Delete(ctx context.Context, key string) error {
	mc.mu.Lock()
	delete(mc.entries, key)
	mc.mu.Unlock()
	return nil
}

// Health always succeeds for the in-memory cache
func (mc *MemoryCache) Health(ctx context.Context) error {
	return nil
}

// Close clears all entries
func (mc *MemoryCache) Close() error {
	mc.mu.Lock()
	mc.entries = make(map[string]memoryEntry)
	mc.mu.Unlock()
	return nil
}
