package embedding

import (
	"sync"
	"time"
)

// cacheMaxEntries caps the cache size. Writes past the cap evict
// everything that has expired, then oldest entries if needed.
const cacheMaxEntries = 1000

type cacheEntry struct {
	vector    []float32
	expiresAt time.Time
}

// ttlCache memoizes embeddings by exact text. A zero TTL disables the
// cache entirely.
type ttlCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *ttlCache) get(text string) ([]float32, bool) {
	if c.ttl == 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[text]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, text)
		return nil, false
	}
	return e.vector, true
}

func (c *ttlCache) put(text string, vector []float32) {
	if c.ttl == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= cacheMaxEntries {
		c.evictLocked()
	}
	c.entries[text] = cacheEntry{vector: vector, expiresAt: c.now().Add(c.ttl)}
}

// evictLocked drops expired entries, then the soonest-to-expire entries
// until the cache is back under the cap.
func (c *ttlCache) evictLocked() {
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	for len(c.entries) >= cacheMaxEntries {
		var oldestKey string
		var oldest time.Time
		first := true
		for k, e := range c.entries {
			if first || e.expiresAt.Before(oldest) {
				oldestKey, oldest = k, e.expiresAt
				first = false
			}
		}
		delete(c.entries, oldestKey)
	}
}
