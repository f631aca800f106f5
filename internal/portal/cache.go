// Package portal provides access to the sandbox tax-portal API: an
// HTTP client with retry, the OTP session lifecycle, TTL caches for
// tokens and responses, and a bounded-concurrency period fetcher.
package portal

import (
	"fmt"
	"sync"
	"time"
)

// Cache TTLs. The gateway access token expires after 24 hours; caching
// it for 23 leaves an hour of slack. Filed return data changes rarely,
// so responses stay fresh for a week.
const (
	TokenCacheTTL    = 23 * time.Hour
	ResponseCacheTTL = 7 * 24 * time.Hour
)

type cacheEntry struct {
	value    []byte
	storedAt time.Time
}

// TTLCache is an in-memory byte cache with a fixed per-entry lifetime.
// It is safe for concurrent use. Instances are constructor-injected
// into the client so tests and callers control cache scope; the
// package keeps no global state.
type TTLCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

// NewTTLCache builds a cache whose entries expire after ttl.
func NewTTLCache(ttl time.Duration) *TTLCache {
	return &TTLCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached value when present and not expired.
func (c *TTLCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.storedAt) >= c.ttl {
		return nil, false
	}
	return entry.value, true
}

// Set stores a value, restarting its lifetime.
func (c *TTLCache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, storedAt: c.now()}
}

// Delete removes a single entry.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Purge drops every expired entry and reports how many were removed.
func (c *TTLCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, entry := range c.entries {
		if c.now().Sub(entry.storedAt) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len counts all entries, expired or not.
func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ResponseCacheKey identifies a cached portal response by taxpayer,
// return type, section and filing period.
func ResponseCacheKey(gstin, returnType, section string, year int, month time.Month) string {
	return fmt.Sprintf("%s/%s/%s/%04d-%02d", gstin, returnType, section, year, int(month))
}
