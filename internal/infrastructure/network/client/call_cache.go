package client

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"portfolio_tracker/internal/pkg/metrics"
)

// Call classes group cache entries by how fast they go stale. Each class gets
// its own TTL from the cache config and its own hit/miss metrics.
const (
	ClassCall     = "call"     // raw contract reads
	ClassActivity = "activity" // per-wallet activity scan results
	ClassQuote    = "quote"    // resolved token prices
	ClassFeedMeta = "feedmeta" // price feed decimals, effectively static
)

// CallCache memoizes chain responses keyed by call signature. Concurrent
// misses for the same key may fetch more than once; the last write wins,
// which is safe because every fetch observes equally fresh chain state.
type CallCache struct {
	store *gocache.Cache
}

// NewCallCache creates a cache whose expired entries are swept every
// cleanupInterval. TTLs are chosen per entry, so no default expiration.
func NewCallCache(cleanupInterval time.Duration) *CallCache {
	return &CallCache{
		store: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

// CallKey builds a stable cache key from a chain identifier and the
// components of a call signature.
func CallKey(chain string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(chain))
	for _, part := range parts {
		h.Write([]byte{0})
		h.Write([]byte(part))
	}
	return chain + ":" + hex.EncodeToString(h.Sum(nil)[:16])
}

// GetOrFetch returns the cached value for (class, key) when fresh, otherwise
// runs fetch and caches a successful result for ttl. Fetch errors are never
// cached.
func (c *CallCache) GetOrFetch(class, key string, ttl time.Duration, fetch func() (interface{}, error)) (interface{}, error) {
	full := class + ":" + key
	if v, ok := c.store.Get(full); ok {
		metrics.CollectCacheHit(class)
		return v, nil
	}
	metrics.CollectCacheMiss(class)

	v, err := fetch()
	if err != nil {
		return nil, err
	}
	c.store.Set(full, v, ttl)
	return v, nil
}

// Get looks up a cached value without fetching.
func (c *CallCache) Get(class, key string) (interface{}, bool) {
	v, ok := c.store.Get(class + ":" + key)
	if ok {
		metrics.CollectCacheHit(class)
	} else {
		metrics.CollectCacheMiss(class)
	}
	return v, ok
}

// Set stores a value directly, for callers that fetch out of band.
func (c *CallCache) Set(class, key string, v interface{}, ttl time.Duration) {
	c.store.Set(class+":"+key, v, ttl)
}
