package metadata

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"time"
)

type cacheEntry struct {
	value    any
	storedAt time.Time
	ttl      time.Duration
}

// memCache is a TTL cache for TMDB responses. Entries expire lazily on read
// and eagerly when pruneExpired runs from the janitor loop.
type memCache struct {
	mu      sync.RWMutex
	base    time.Duration
	entries map[string]cacheEntry
}

func newMemCache(ttlHours int) *memCache {
	if ttlHours <= 0 {
		ttlHours = 24
	}
	return &memCache{
		base:    time.Duration(ttlHours) * time.Hour,
		entries: make(map[string]cacheEntry),
	}
}

// jitteredTTL staggers expiry between the base TTL and base TTL + 6 hours.
// The jitter is derived from the key hash so the same key always gets the
// same TTL, preventing cache churn when many shows are cached at once.
func (c *memCache) jitteredTTL(key string) time.Duration {
	h := sha256.Sum256([]byte(key))
	n := binary.BigEndian.Uint64(h[:8])
	jitter := time.Duration(n % uint64(6*time.Hour))
	return c.base + jitter
}

func (c *memCache) get(key string) (any, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Since(entry.storedAt) > entry.ttl {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return entry.value, true
}

func (c *memCache) set(key string, v any) {
	if key == "" {
		return
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: v, storedAt: time.Now(), ttl: c.jitteredTTL(key)}
	c.mu.Unlock()
}

// clear drops everything, used when the API key changes so stale responses
// from the old key never serve.
func (c *memCache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// pruneExpired removes expired entries and reports how many were dropped.
func (c *memCache) pruneExpired() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed int
	for key, entry := range c.entries {
		if now.Sub(entry.storedAt) > entry.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *memCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
