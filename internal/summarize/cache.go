// Package summarize produces role-targeted threat summaries, backed by a
// TTL cache and an external generation service with a deterministic
// fallback.
package summarize

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"threatwatch/threatfeed/internal/metrics"
)

// Cache is a process-local TTL cache for generated summaries. Entries
// expire lazily on Get; Sweep may be called periodically to drop expired
// entries proactively. The cache is unbounded in entry count, bounded only
// by TTL churn, so sustained unique-content load grows it until entries
// age out.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	text     string
	storedAt time.Time
}

// NewCache creates a cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached summary for (content, mode) if present and not
// expired. Expired entries are removed on access.
func (c *Cache) Get(content, mode string) (string, bool) {
	key := cacheKey(content, mode)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		delete(c.entries, key)
		return "", false
	}
	return entry.text, true
}

// Set stores a summary for (content, mode). Concurrent writers may race;
// last write wins, which is acceptable since generated content is
// deterministic-equivalent.
func (c *Cache) Set(content, mode, text string) {
	key := cacheKey(content, mode)

	c.mu.Lock()
	c.entries[key] = cacheEntry{text: text, storedAt: c.now()}
	c.mu.Unlock()
}

// Sweep removes all expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.storedAt) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func cacheKey(content, mode string) string {
	h := fnv.New64a()
	h.Write([]byte(content))
	return fmt.Sprintf("%s:%x", mode, h.Sum64())
}

func recordCacheHit(hit bool) {
	if hit {
		metrics.SummaryCacheHits.Inc()
	} else {
		metrics.SummaryCacheMisses.Inc()
	}
}
