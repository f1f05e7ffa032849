// Package ristretto caches rendered transcript fragments in-process using
// dgraph-io/ristretto.
package ristretto

import (
	"github.com/dgraph-io/ristretto/v2"

	"github.com/Strob0t/supportchat/internal/render"
)

// Cache holds rendered HTML fragments keyed by message id and content hash.
type Cache struct {
	c *ristretto.Cache[string, string]
}

var _ render.FragmentCache = (*Cache)(nil)

// Stats is a snapshot of cache effectiveness.
type Stats struct {
	Hits   uint64
	Misses uint64
	Ratio  float64
}

// New creates a fragment cache. maxCostBytes is the maximum total size of
// cached HTML in bytes.
func New(maxCostBytes int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: max(maxCostBytes/256*10, 1000), // ~10x expected fragments
		MaxCost:     maxCostBytes,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get returns the cached fragment for key.
func (c *Cache) Get(key string) (string, bool) {
	return c.c.Get(key)
}

// Set stores a fragment. Admission is asynchronous; a Get right after Set
// may miss until Wait is called.
func (c *Cache) Set(key, html string) {
	c.c.Set(key, html, int64(len(html)))
}

// Wait blocks until buffered writes are applied.
func (c *Cache) Wait() {
	c.c.Wait()
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() Stats {
	m := c.c.Metrics
	return Stats{Hits: m.Hits(), Misses: m.Misses(), Ratio: m.Ratio()}
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}
