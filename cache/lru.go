/*
Package cache provides FactCache backends for count.CachedLookup.

BACKENDS:
  LRU:   In-process, size bounded, entries expire after a TTL
  Redis: Shared between instances, JSON encoded entries with a TTL
  Nop:   Never stores anything (caching disabled)

Every backend stores copies, so callers may mutate what they Put or Get.

SEE ALSO:
  - count/cache.go: CachedLookup and invalidation on commit
*/
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/warp/stock-count/count"
)

// LRU is an in-process FactCache.
type LRU struct {
	entries *expirable.LRU[count.LocationID, *count.CacheEntry]
}

// NewLRU creates an LRU holding up to size locations for ttl each.
// A ttl of zero disables expiry.
func NewLRU(size int, ttl time.Duration) *LRU {
	if size <= 0 {
		size = 256
	}
	return &LRU{entries: expirable.NewLRU[count.LocationID, *count.CacheEntry](size, nil, ttl)}
}

func (c *LRU) Get(_ context.Context, locationID count.LocationID) (*count.CacheEntry, bool, error) {
	e, ok := c.entries.Get(locationID)
	if !ok {
		return nil, false, nil
	}
	return e.Clone(), true, nil
}

func (c *LRU) Put(_ context.Context, locationID count.LocationID, entry *count.CacheEntry) error {
	c.entries.Add(locationID, entry.Clone())
	return nil
}

func (c *LRU) Delete(_ context.Context, locationID count.LocationID) error {
	c.entries.Remove(locationID)
	return nil
}

// Len returns the number of cached locations.
func (c *LRU) Len() int {
	return c.entries.Len()
}

// Nop is a FactCache that stores nothing.
type Nop struct{}

func (Nop) Get(context.Context, count.LocationID) (*count.CacheEntry, bool, error) {
	return nil, false, nil
}

func (Nop) Put(context.Context, count.LocationID, *count.CacheEntry) error { return nil }

func (Nop) Delete(context.Context, count.LocationID) error { return nil }
