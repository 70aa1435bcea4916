package schema

import (
	"sync"
	"time"
)

// ttlCache is a size-bounded map with per-entry expiry and least recently
// used eviction.
type ttlCache[V any] struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry[V]
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry[V any] struct {
	value      V
	expiresAt  time.Time
	lastAccess time.Time
}

func newTTLCache[V any](maxSize int, ttl time.Duration) *ttlCache[V] {
	if maxSize <= 0 {
		maxSize = 500
	}
	return &ttlCache[V]{
		entries: make(map[string]*cacheEntry[V]),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *ttlCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	now := c.now()
	if now.After(entry.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	entry.lastAccess = now
	return entry.value, true
}

func (c *ttlCache[V]) set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLocked()
	}
	now := c.now()
	c.entries[key] = &cacheEntry[V]{
		value:      value,
		expiresAt:  now.Add(c.ttl),
		lastAccess: now,
	}
}

// evictLocked drops expired entries, or the least recently used one if none expired.
func (c *ttlCache[V]) evictLocked() {
	now := c.now()
	var oldestKey string
	var oldest time.Time
	expired := false

	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			expired = true
			continue
		}
		if oldestKey == "" || entry.lastAccess.Before(oldest) {
			oldestKey = key
			oldest = entry.lastAccess
		}
	}
	if !expired && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *ttlCache[V]) delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *ttlCache[V]) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry[V])
}

func (c *ttlCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
