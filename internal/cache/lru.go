// Package cache implements the two bounded, eviction-instrumented
// containers the rest of the gateway is built on: a capacity-bounded
// key/value LRU and a capacity-bounded TTL set.
package cache

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LruCache is a fixed-capacity key/value map. A genuine eviction — the
// underlying container displacing a different key to make room — increments
// the eviction counter; a same-key replacement does not, and neither does an
// explicit Pop (golang-lru's evict callback fires on every removal routed
// through the container, including Remove, not only capacity displacement).
type LruCache[K comparable, V any] struct {
	mu      sync.Mutex
	inner   *lru.Cache[K, V]
	evicted atomic.Uint64
	lastKey K
	lastVal V
	lastSet bool
	popping bool
}

// NewLruCache builds a cache of the given positive capacity.
func NewLruCache[K comparable, V any](capacity int) (*LruCache[K, V], error) {
	c := &LruCache[K, V]{}
	inner, err := lru.NewWithEvict(capacity, func(key K, value V) {
		// golang-lru invokes this synchronously from within inner.Add/
		// inner.Remove, which Push/Pop only ever call while already
		// holding c.mu — so c.mu is already exclusive here and must not
		// be re-locked (sync.Mutex isn't reentrant).
		c.lastKey, c.lastVal, c.lastSet = key, value, true
		if c.popping {
			// Explicit removal via Pop, not a genuine LRU-pressure eviction.
			return
		}
		c.evicted.Add(1)
	})
	if err != nil {
		return nil, err
	}
	c.inner = inner
	return c, nil
}

func (c *LruCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Get(key)
}

// Push inserts or replaces key's value, refreshing its recency. If this
// insertion caused the container to evict a *different* key to make room,
// that displaced (key, value) pair is returned. Per spec.md §4.1, all
// LruCache operations run under a single exclusive lock, so the whole
// read-evict-write sequence is serialized here.
func (c *LruCache[K, V]) Push(key K, value V) (displacedKey K, displacedVal V, evicted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastSet = false
	c.inner.Add(key, value)

	if c.lastSet && c.lastKey != key {
		return c.lastKey, c.lastVal, true
	}
	return displacedKey, displacedVal, false
}

// Pop removes and returns key's value without counting it as an eviction,
// per spec.md §8's "the usage tracker increments exactly in the
// genuine-displacement case" invariant.
func (c *LruCache[K, V]) Pop(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.inner.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	c.popping = true
	c.inner.Remove(key)
	c.popping = false
	return v, true
}

// Evicted returns the running eviction count without resetting it.
func (c *LruCache[K, V]) Evicted() uint64 { return c.evicted.Load() }

// Reset returns the eviction count observed since the last reset and zeroes
// the counter, per spec.md §3 "a reset() returns and zeroes it".
func (c *LruCache[K, V]) Reset() uint64 { return c.evicted.Swap(0) }
