// Package ristretto backs the cache port with dgraph-io/ristretto. It
// holds security verdicts and other small, hot lookups in process.
package ristretto

import (
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache adapts a ristretto cache to the cache port. Stored values are
// copied on both Set and Get, so callers may mutate their slices freely.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a cache bounded by maxCostBytes of stored data. Cost is
// charged per entry as key length plus value length, so a flood of tiny
// entries under long keys still respects the bound.
func New(maxCostBytes int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		// Ristretto wants roughly 10 counters per expected item;
		// assume entries around 100 bytes.
		NumCounters: maxCostBytes / 100 * 10,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get returns a copy of the cached value for key, if present.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return slices.Clone(val), true, nil
}

// Set stores a copy of value under key for at most ttl. Admission is
// best effort; ristretto may reject entries under memory pressure.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cost := int64(len(key) + len(value))
	c.c.SetWithTTL(key, slices.Clone(value), cost, ttl)
	return nil
}

// Delete removes key from the cache if present.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close stops the cache's background goroutines.
func (c *Cache) Close() {
	c.c.Close()
}
