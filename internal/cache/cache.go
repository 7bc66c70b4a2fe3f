// Package cache provides a small in-memory TTL cache used to avoid
// re-fetching identical results within a single process lifetime.
package cache

import (
	"sync"
	"time"
)

// Cache is a thread-safe map whose entries expire after a fixed TTL.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
}

type entry struct {
	value   any
	storedAt time.Time
}

// New creates a cache with the given entry lifetime.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
	}
}

// Get returns the cached value for key, or false if absent or expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Since(e.storedAt) > c.ttl {
		return nil, false
	}
	return e.value, true
}

// Set stores a value, replacing any existing entry. Expired entries are
// swept opportunistically to bound memory on long-running servers.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if time.Since(e.storedAt) > c.ttl {
			delete(c.entries, k)
		}
	}
	c.entries[key] = entry{value: value, storedAt: time.Now()}
}

// Len reports the number of stored entries, including expired ones not yet
// swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
