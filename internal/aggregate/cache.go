package aggregate

import (
	"sync"
	"time"
)

// DefaultCacheTTL is how long an aggregation result stays servable.
const DefaultCacheTTL = 7 * 24 * time.Hour

type cacheEntry struct {
	at     time.Time
	result Result
}

// ResultCache is a mutex-guarded topic-id keyed cache with lazy TTL expiry:
// an entry older than the TTL is treated as absent and removed on read.
type ResultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int64]cacheEntry
	now     func() time.Time
}

// NewResultCache constructs a cache with the given TTL; zero or negative
// falls back to DefaultCacheTTL.
func NewResultCache(ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ResultCache{ttl: ttl, entries: make(map[int64]cacheEntry), now: time.Now}
}

// Get returns the cached result for topicID if present and fresh.
func (c *ResultCache) Get(topicID int64) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[topicID]
	if !ok {
		return Result{}, false
	}
	if c.now().Sub(e.at) > c.ttl {
		delete(c.entries, topicID)
		return Result{}, false
	}
	return e.result, true
}

// Set stores the result for topicID stamped with the current time.
// Concurrent writers race last-writer-wins.
func (c *ResultCache) Set(topicID int64, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[topicID] = cacheEntry{at: c.now(), result: r}
}

// Clear removes the entry for topicID. Clearing an absent entry is a no-op.
func (c *ResultCache) Clear(topicID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, topicID)
}
