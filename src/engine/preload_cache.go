package engine

import (
	"fmt"
	"sync"
	"time"

	"market-feed/src/models"
)

// -----------------------------------------------------------------------------
// PreloadCache is a TTL cache for preload-by-time-range queries. Entries
// older than the TTL are served no more; a periodic Cleanup deletes them.
// -----------------------------------------------------------------------------

type preloadEntry struct {
	candles    []models.MCandle
	insertedAt time.Time
}

type PreloadCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]preloadEntry
}

// -----------------------------------------------------------------------------

func NewPreloadCache(ttl time.Duration) *PreloadCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PreloadCache{
		ttl:     ttl,
		entries: make(map[string]preloadEntry),
	}
}

// -----------------------------------------------------------------------------

// PreloadKey builds the cache key for a (symbol, interval, from, to) query.
func PreloadKey(symbol, interval string, from, to int64) string {
	return fmt.Sprintf("%s|%s|%d|%d", symbol, interval, from, to)
}

// -----------------------------------------------------------------------------

// GetOrCompute returns the cached value if present and younger than the
// TTL, else computes, stores with the current timestamp, and returns.
func (c *PreloadCache) GetOrCompute(key string, compute func() []models.MCandle) []models.MCandle {
	c.mu.Lock()
	if entry, ok := c.entries[key]; ok && time.Since(entry.insertedAt) < c.ttl {
		c.mu.Unlock()
		return entry.candles
	}
	c.mu.Unlock()

	// Compute outside the lock; a concurrent miss for the same key may
	// compute twice but both results are equivalent snapshots.
	candles := compute()

	c.mu.Lock()
	c.entries[key] = preloadEntry{candles: candles, insertedAt: time.Now()}
	c.mu.Unlock()

	return candles
}

// -----------------------------------------------------------------------------

// Cleanup purges all entries older than the TTL and returns how many were
// removed.
func (c *PreloadCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	purged := 0
	for key, entry := range c.entries {
		if time.Since(entry.insertedAt) >= c.ttl {
			delete(c.entries, key)
			purged++
		}
	}
	return purged
}

// -----------------------------------------------------------------------------

// Len returns the number of live entries.
func (c *PreloadCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
