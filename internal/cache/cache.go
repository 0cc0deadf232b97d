// Package cache provides in-process caching for recall results.
package cache

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache is a bounded TTL cache keyed by string. Values are whatever
// the caller stores; each entry costs one unit, so MaxEntries bounds
// the entry count rather than bytes.
type Cache[V any] struct {
	rc  *ristretto.Cache[string, V]
	ttl time.Duration
}

// New creates a cache holding up to maxEntries values, each expiring
// after ttl.
func New[V any](maxEntries int64, ttl time.Duration) (*Cache[V], error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	rc, err := ristretto.NewCache(&ristretto.Config[string, V]{
		NumCounters: maxEntries * 10, // ~10x expected items
		MaxCost:     maxEntries,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	return &Cache[V]{rc: rc, ttl: ttl}, nil
}

// Get retrieves a value from the cache.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.rc.Get(key)
}

// Set stores a value. Admission is asynchronous and best-effort: a
// value may be dropped under pressure, and a Get immediately after
// Set can miss.
func (c *Cache[V]) Set(key string, value V) {
	c.rc.SetWithTTL(key, value, 1, c.ttl)
}

// Delete removes a value from the cache.
func (c *Cache[V]) Delete(key string) {
	c.rc.Del(key)
}

// Clear removes all cached entries.
func (c *Cache[V]) Clear() {
	c.rc.Clear()
}

// Wait blocks until pending sets have been applied.
func (c *Cache[V]) Wait() {
	c.rc.Wait()
}

// Stats reports hit and miss counts.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// Stats returns cache effectiveness counters.
func (c *Cache[V]) Stats() Stats {
	m := c.rc.Metrics
	return Stats{Hits: m.Hits(), Misses: m.Misses()}
}

// Close releases cache resources.
func (c *Cache[V]) Close() {
	c.rc.Close()
}
