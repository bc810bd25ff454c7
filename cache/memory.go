package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-memory cache implementation.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	policy  Policy
}

type entry struct {
	id        string
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory cache with the given policy.
func NewMemoryCache(policy Policy) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*entry),
		policy:  policy,
	}
}

// Get retrieves an ID from the cache. Returns ("", false) on miss or expiry.
func (c *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return "", false
	}

	if time.Now().After(e.expiresAt) {
		// Expired, clean up lazily.
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return "", false
	}

	return e.id, true
}

// Set stores an ID with the effective TTL per the cache policy.
func (c *MemoryCache) Set(_ context.Context, key string, id string, ttl time.Duration) error {
	ttl = c.policy.EffectiveTTL(ttl)
	if ttl <= 0 {
		return nil
	}

	c.mu.Lock()
	c.entries[key] = &entry{
		id:        id,
		expiresAt: time.Now().Add(ttl),
	}
	c.mu.Unlock()

	return nil
}

// Delete removes an ID from the cache. Idempotent, no error on miss.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len reports the number of live entries, counting expired ones not yet
// collected.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ Cache = (*MemoryCache)(nil)
