// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cache provides an LRU response cache for cascade decisions.
// Entries are keyed by a hash of query, model, and generation parameters,
// and expire lazily after a configurable TTL.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// entry is one cached decision.
type entry struct {
	key       string
	value     interface{}
	createdAt time.Time

	// element is the LRU list element (for eviction)
	element *list.Element
}

// Metrics tracks cache performance statistics.
type Metrics struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
	Size        int
}

// Cache is a fixed-size LRU cache with lazy TTL expiry. Reads refresh
// recency, so Get and Put both take the write lock; metrics accessors
// share a read lock.
type Cache struct {
	maxSize int
	ttl     time.Duration

	entries map[string]*entry
	lru     *list.List

	mu      sync.RWMutex
	metrics Metrics
}

// DefaultMaxSize bounds the cache when no size is configured.
const DefaultMaxSize = 1024

// New creates a cache holding at most maxSize entries. A non-positive
// maxSize selects DefaultMaxSize; a non-positive ttl disables expiry.
func New(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache{
		maxSize: maxSize,
		ttl:     ttl,
		entries: make(map[string]*entry),
		lru:     list.New(),
	}
}

// keyPayload is the canonical form hashed into a cache key. goccy/go-json
// sorts map keys, so equal parameter maps produce equal keys.
type keyPayload struct {
	Query  string                 `json:"query"`
	Model  string                 `json:"model"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// Key derives the cache key for a query against a model with the given
// generation parameters.
func Key(query, model string, params map[string]interface{}) string {
	raw, err := json.Marshal(keyPayload{Query: query, Model: model, Params: params})
	if err != nil {
		// Marshal of strings and a map cannot fail; fall back to the
		// unhashed pair to stay total.
		raw = []byte(query + "\x00" + model)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached value for key. Expired entries are removed and
// reported as misses.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.metrics.Misses++
		return nil, false
	}
	if c.ttl > 0 && time.Since(e.createdAt) > c.ttl {
		c.removeLocked(e)
		c.metrics.Expirations++
		c.metrics.Misses++
		return nil, false
	}

	c.lru.MoveToFront(e.element)
	c.metrics.Hits++
	return e.value, true
}

// Put stores value under key, evicting the least recently used entry when
// the cache is full. Storing an existing key refreshes it.
func (c *Cache) Put(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.createdAt = time.Now()
		c.lru.MoveToFront(e.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictLocked()
	}

	e := &entry{key: key, value: value, createdAt: time.Now()}
	e.element = c.lru.PushFront(e)
	c.entries[key] = e
	c.metrics.Size = len(c.entries)
}

// evictLocked removes the least recently used entry. Must be called with
// the write lock held.
func (c *Cache) evictLocked() {
	oldest := c.lru.Back()
	if oldest == nil {
		return
	}
	c.removeLocked(oldest.Value.(*entry))
	c.metrics.Evictions++
}

// removeLocked drops an entry from the map and the LRU list. Must be called
// with the write lock held.
func (c *Cache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	c.lru.Remove(e.element)
	c.metrics.Size = len(c.entries)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.lru = list.New()
	c.metrics.Size = 0
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// HitRate returns the fraction of lookups served from cache.
func (c *Cache) HitRate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.metrics.Hits + c.metrics.Misses
	if total == 0 {
		return 0.0
	}
	return float64(c.metrics.Hits) / float64(total)
}

// GetMetrics returns a snapshot of cache counters.
func (c *Cache) GetMetrics() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.metrics.Hits + c.metrics.Misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.metrics.Hits) / float64(total)
	}
	return map[string]interface{}{
		"hits":        c.metrics.Hits,
		"misses":      c.metrics.Misses,
		"evictions":   c.metrics.Evictions,
		"expirations": c.metrics.Expirations,
		"size":        len(c.entries),
		"hit_rate":    hitRate,
	}
}
