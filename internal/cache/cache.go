// Package cache implements the retrieval result cache: an LRU index
// bounded by entry count, with an additional TTL check on read so an
// entry past its time-to-live is treated as a miss even if it hasn't
// been evicted yet.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Key identifies one cached query. Two requests that differ only in
// filter key order must produce the same Key, so filters are
// canonicalized before hashing.
type Key struct {
	Query    string
	TopK     int
	Filters  map[string]any
	Language string
}

// Hash returns a stable, fixed-length string for k, suitable as the
// cache's internal map key.
func (k Key) Hash() string {
	canonicalFilters := canonicalizeJSON(k.Filters)
	h := sha256.New()
	h.Write([]byte(normalizeQuery(k.Query)))
	h.Write([]byte{0})
	h.Write([]byte(k.Language))
	h.Write([]byte{0})
	h.Write(canonicalFilters)
	_, _ = h.Write([]byte{byte(k.TopK), byte(k.TopK >> 8)})
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeQuery canonicalizes a query for cache-key purposes so that
// two requests differing only in case or surrounding whitespace share
// a cache entry.
func normalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// canonicalizeJSON marshals a map with its keys sorted so that
// semantically identical filter sets always hash identically.
func canonicalizeJSON(m map[string]any) []byte {
	if len(m) == 0 {
		return []byte("{}")
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]struct {
		K string `json:"k"`
		V any    `json:"v"`
	}, len(keys))
	for i, k := range keys {
		ordered[i].K = k
		ordered[i].V = m[k]
	}
	data, err := json.Marshal(ordered)
	if err != nil {
		return []byte("{}")
	}
	return data
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a TTL-bound, cardinality-capped cache of arbitrary values,
// generic so it can hold a pipeline's RetrievalEnvelope without this
// package depending on the root package.
type Cache[V any] struct {
	lru *lru.Cache[string, entry[V]]
	ttl time.Duration
	now func() time.Time
}

// New constructs a Cache holding at most maxEntries items, each
// expiring ttl after it was set.
func New[V any](maxEntries int, ttl time.Duration) *Cache[V] {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	c, _ := lru.New[string, entry[V]](maxEntries)
	return &Cache[V]{lru: c, ttl: ttl, now: time.Now}
}

// Get returns the cached value for key if present and unexpired. A
// present-but-expired entry is evicted and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	e, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	if c.now().After(e.expiresAt) {
		c.lru.Remove(key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the cache's configured TTL, first
// evicting every entry that is already past its TTL.
func (c *Cache[V]) Set(key string, value V) {
	now := c.now()
	for _, k := range c.lru.Keys() {
		if e, ok := c.lru.Peek(k); ok && now.After(e.expiresAt) {
			c.lru.Remove(k)
		}
	}
	c.lru.Add(key, entry[V]{value: value, expiresAt: now.Add(c.ttl)})
}

// Len returns the number of entries currently held, including any
// that are expired but not yet evicted.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

// Purge removes every entry.
func (c *Cache[V]) Purge() {
	c.lru.Purge()
}
