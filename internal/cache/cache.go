package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Default TTLs for outbound API responses
const (
	NowPlayingTTL = 1 * time.Second // bounds burst calls to the player endpoint
	SearchTTL     = 5 * time.Minute // artist lookups change rarely
	StatsTTL      = 30 * time.Second
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is an in-memory key-value store with per-entry TTL.
//
// Expiry is lazy: an expired entry stays in the map until the Get that finds
// it deletes it. There is no size bound; keys are request identities (path
// plus query string) and their cardinality is low.
type Cache struct {
	mu     sync.Mutex
	items  map[string]entry
	hits   atomic.Int64
	misses atomic.Int64
	now    func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		items: make(map[string]entry),
		now:   time.Now,
	}
}

// Get retrieves a value from cache. Returns (nil, false) on miss or expiry.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	e, ok := c.items[key]
	if ok && c.now().After(e.expiresAt) {
		delete(c.items, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Set stores a value that expires after ttl.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	c.items[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Delete removes a key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns cache statistics for the metrics endpoint.
func (c *Cache) Stats() map[string]any {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return map[string]any{
		"hits":      hits,
		"misses":    misses,
		"hit_rate":  hitRate,
		"key_count": c.Len(),
		"total":     total,
	}
}
