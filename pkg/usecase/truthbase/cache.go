package truthbase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/m-mizutani/llbmem/pkg/model"
)

// queryCache is a TTL cache of retrieval results keyed by the query hash.
// Hits must be deterministic, so this is a plain mutex-guarded map rather
// than an admission-based cache.
type queryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	chunks   []model.ScoredChunk
	cachedAt time.Time
	hits     int
}

func newQueryCache(ttl time.Duration) *queryCache {
	return &queryCache{
		ttl:     ttl,
		entries: make(map[string]*cacheEntry),
	}
}

func cacheKey(query string, topK int, minScore float64) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%g", query, topK, minScore))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached chunks for a key, or false when absent or expired.
// Expired entries are dropped on the way out.
func (c *queryCache) Get(key string, now time.Time) ([]model.ScoredChunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if now.Sub(e.cachedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	e.hits++

	out := make([]model.ScoredChunk, len(e.chunks))
	copy(out, e.chunks)
	return out, true
}

func (c *queryCache) Put(key string, chunks []model.ScoredChunk, now time.Time) {
	stored := make([]model.ScoredChunk, len(chunks))
	copy(stored, chunks)

	c.mu.Lock()
	c.entries[key] = &cacheEntry{chunks: stored, cachedAt: now}
	c.mu.Unlock()
}

// CachedAt reports when a key entered the cache.
func (c *queryCache) CachedAt(key string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return time.Time{}, false
	}
	return e.cachedAt, true
}

func (c *queryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry, used after writes that change retrieval results.
func (c *queryCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()
}

// GC removes expired entries, called from the background sweep.
func (c *queryCache) GC(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int
	for key, e := range c.entries {
		if now.Sub(e.cachedAt) > c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}
