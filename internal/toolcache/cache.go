// Package toolcache memoizes tool results within a session. Identical calls
// (same tool, same canonical arguments) inside the TTL window return the
// cached result instead of re-executing the tool.
package toolcache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kristerus/nulalabs/internal/chat"
	"github.com/kristerus/nulalabs/internal/logging"
)

const (
	// DefaultMaxEntries bounds the cache before LRU eviction kicks in.
	DefaultMaxEntries = 50
	// DefaultTTL is how long an entry stays fresh.
	DefaultTTL = 30 * time.Minute
)

var (
	hitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nulalabs", Subsystem: "toolcache",
		Name: "hits_total", Help: "Tool cache hits.",
	})
	missesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nulalabs", Subsystem: "toolcache",
		Name: "misses_total", Help: "Tool cache misses, including expiries.",
	})
	evictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nulalabs", Subsystem: "toolcache",
		Name: "evictions_total", Help: "Entries evicted by capacity or expiry.",
	})
)

type entry struct {
	result   any
	storedAt time.Time
}

// Cache is a TTL-bounded LRU of tool results. Safe for concurrent use.
type Cache struct {
	mu     sync.Mutex
	lru    *lru.Cache[string, entry]
	ttl    time.Duration
	logger logging.Logger
	now    func() time.Time
}

// New builds a cache with the given capacity and TTL; zero values select the
// defaults.
func New(maxEntries int, ttl time.Duration, logger logging.Logger) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	inner, _ := lru.NewWithEvict[string, entry](maxEntries, func(string, entry) {
		evictionsTotal.Inc()
	})
	return &Cache{
		lru:    inner,
		ttl:    ttl,
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
}

// Key derives the cache key for a call: a truncated digest over the tool name
// and the key-sorted argument serialization, so argument order is irrelevant.
func Key(toolName string, args map[string]any) string {
	sum := sha256.Sum256([]byte(toolName + ":" + chat.CanonicalArgs(args)))
	return hex.EncodeToString(sum[:])[:16]
}

// Get returns the cached result for a call. Expired entries are removed
// lazily and count as misses; only genuine hits refresh LRU recency.
func (c *Cache) Get(toolName string, args map[string]any) (any, bool) {
	key := Key(toolName, args)

	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.lru.Peek(key)
	if !ok {
		missesTotal.Inc()
		return nil, false
	}
	if c.now().Sub(ent.storedAt) >= c.ttl {
		c.lru.Remove(key)
		missesTotal.Inc()
		c.logger.Debug("toolcache: expired entry for %s", toolName)
		return nil, false
	}

	c.lru.Get(key)
	hitsTotal.Inc()
	return ent.result, true
}

// Set stores a result, overwriting any previous entry for the same call.
func (c *Cache) Set(toolName string, args map[string]any, result any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(Key(toolName, args), entry{result: result, storedAt: c.now()})
}

// Has reports whether a fresh entry exists without refreshing recency.
func (c *Cache) Has(toolName string, args map[string]any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.lru.Peek(Key(toolName, args))
	return ok && c.now().Sub(ent.storedAt) < c.ttl
}

// Len returns the current entry count, expired entries included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// CleanupExpired removes every stale entry and returns how many were dropped.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.lru.Keys() {
		ent, ok := c.lru.Peek(key)
		if ok && c.now().Sub(ent.storedAt) >= c.ttl {
			c.lru.Remove(key)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("toolcache: removed %d expired entries", removed)
	}
	return removed
}
