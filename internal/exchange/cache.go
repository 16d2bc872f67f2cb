package exchange

import (
	"fmt"
	"sync"
	"time"
)

type cacheEntry struct {
	rate      Rate
	expiresAt time.Time
}

type rateCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

func newRateCache(ttl time.Duration) *rateCache {
	return &rateCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// cacheKey formats: "{base}=>{target}@{date}" with "latest" for the undated rate, e.g. "USD=>EUR@2024-01-10"
func cacheKey(base, target, date string) string {
	if date == "" {
		date = "latest"
	}
	return fmt.Sprintf("%s=>%s@%s", base, target, date)
}

func (c *rateCache) get(key string) (Rate, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Rate{}, false
	}

	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		if current, ok := c.entries[key]; ok && time.Now().After(current.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return Rate{}, false
	}
	return entry.rate, true
}

func (c *rateCache) set(key string, rate Rate) {
	c.setFor(key, rate, c.ttl)
}

func (c *rateCache) setFor(key string, rate Rate, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		rate:      rate,
		expiresAt: time.Now().Add(ttl),
	}
}

func (c *rateCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
