package firestore

import (
	"sync"
	"time"
)

// DefaultCacheTTL matches the reference deployment's five-minute window.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// Cache maps document paths to decoded documents with a fixed TTL per entry.
// Entries expire lazily on Get and are deleted eagerly when the same path is
// written. There is no capacity bound; the key space is the set of document
// paths the service reads, which is small.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCache creates a cache with the given TTL. A non-positive TTL falls back
// to DefaultCacheTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached value for key, or false if the key is absent or its
// entry has expired. Expired entries are removed on access.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

// Set stores value under key, expiring TTL from now.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Delete removes key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len reports the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
