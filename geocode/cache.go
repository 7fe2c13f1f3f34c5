package geocode

import (
	"sync"
	"time"
)

// resultCache is a process-local TTL cache for geocode results. It holds no
// authoritative state and can be discarded at any time.
type resultCache struct {
	ttl  time.Duration
	mu   sync.RWMutex
	data map[string]cacheEntry

	hits   int64
	misses int64
}

type cacheEntry struct {
	result  *Result
	savedAt time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{
		ttl:  ttl,
		data: make(map[string]cacheEntry),
	}
}

func (c *resultCache) get(key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok || time.Since(entry.savedAt) > c.ttl {
		if ok {
			delete(c.data, key)
		}
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.result, true
}

func (c *resultCache) set(key string, result *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry{result: result, savedAt: time.Now()}

	// Opportunistic sweep keeps the map bounded without a background goroutine.
	if len(c.data) > 4096 {
		now := time.Now()
		for k, e := range c.data {
			if now.Sub(e.savedAt) > c.ttl {
				delete(c.data, k)
			}
		}
	}
}

// Stats reports hit/miss counters, mostly for the monitoring endpoint.
func (c *resultCache) stats() (hits, misses int64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses, len(c.data)
}
