/*
cache.go - Location-keyed read-through cache in front of a Lookup

PURPOSE:
  Avoids re-fetching the stock snapshot of a location on every count.
  Each cache entry holds the facts already resolved for a location plus the
  references the store is known not to have.

HOW IT WORKS:
  1. Load the entry for the location (a cache error counts as a miss)
  2. Fetch only unresolved references, in one round trip
  3. Record returned facts; record the rest as absent
  4. Answer from the entry; absent references are left out of the result,
     so the engine still sees them as unknown items

INVALIDATION:
  Invalidate(location) is called by the Submitter after every commit.
  It bumps a per-location generation; a lookup that started before the bump
  does not write its result back.

SEE ALSO:
  - cache/lru.go, cache/redis.go: FactCache backends
*/
package count

import (
	"context"
	"errors"
	"sync"
)

// CacheEntry is the cached lookup state of one location.
type CacheEntry struct {
	Facts  map[string]CatalogStockFact `json:"facts"`
	Absent map[string]bool             `json:"absent"`
}

// NewCacheEntry returns an empty entry.
func NewCacheEntry() *CacheEntry {
	return &CacheEntry{
		Facts:  make(map[string]CatalogStockFact),
		Absent: make(map[string]bool),
	}
}

// Clone returns a deep copy.
func (e *CacheEntry) Clone() *CacheEntry {
	c := NewCacheEntry()
	if e == nil {
		return c
	}
	for k, v := range e.Facts {
		c.Facts[k] = v
	}
	for k, v := range e.Absent {
		c.Absent[k] = v
	}
	return c
}

func (e *CacheEntry) resolved(reference string) bool {
	if _, ok := e.Facts[reference]; ok {
		return true
	}
	return e.Absent[reference]
}

// FactCache stores CacheEntry values keyed by location.
type FactCache interface {
	Get(ctx context.Context, locationID LocationID) (*CacheEntry, bool, error)
	Put(ctx context.Context, locationID LocationID, entry *CacheEntry) error
	Delete(ctx context.Context, locationID LocationID) error
}

// CachedLookup is a Lookup backed by a FactCache.
type CachedLookup struct {
	next    Lookup
	cache   FactCache
	onError func(op string, locationID LocationID, err error)

	mu  sync.Mutex
	gen map[LocationID]uint64
}

// NewCachedLookup wraps next. onError, if non-nil, is told about cache
// failures; they never fail a lookup.
func NewCachedLookup(next Lookup, cache FactCache, onError func(op string, locationID LocationID, err error)) *CachedLookup {
	if onError == nil {
		onError = func(string, LocationID, error) {}
	}
	return &CachedLookup{next: next, cache: cache, onError: onError, gen: make(map[LocationID]uint64)}
}

// Lookup implements Lookup.
func (c *CachedLookup) Lookup(ctx context.Context, locationID LocationID, references []string) (map[string]CatalogStockFact, error) {
	gen := c.generation(locationID)

	cached, ok, err := c.cache.Get(ctx, locationID)
	if err != nil {
		c.onError("get", locationID, err)
		ok = false
	}
	var entry *CacheEntry
	if ok {
		entry = cached.Clone()
	} else {
		entry = NewCacheEntry()
	}

	missing := make([]string, 0)
	queued := make(map[string]bool)
	for _, ref := range references {
		if entry.resolved(ref) || queued[ref] {
			continue
		}
		queued[ref] = true
		missing = append(missing, ref)
	}

	if len(missing) > 0 {
		fetched, err := c.next.Lookup(ctx, locationID, missing)
		if err != nil {
			return nil, WrapLookupError(locationID, err)
		}
		for _, ref := range missing {
			if fact, ok := fetched[ref]; ok {
				entry.Facts[ref] = fact
			} else {
				entry.Absent[ref] = true
			}
		}
		c.putIfCurrent(ctx, locationID, gen, entry)
	}

	result := make(map[string]CatalogStockFact, len(references))
	for _, ref := range references {
		if fact, ok := entry.Facts[ref]; ok {
			result[ref] = fact
		}
	}
	return result, nil
}

// Invalidate implements Invalidator.
func (c *CachedLookup) Invalidate(ctx context.Context, locationID LocationID) {
	c.mu.Lock()
	c.gen[locationID]++
	c.mu.Unlock()

	if err := c.cache.Delete(ctx, locationID); err != nil {
		c.onError("delete", locationID, err)
	}
}

func (c *CachedLookup) generation(locationID LocationID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen[locationID]
}

// putIfCurrent stores entry unless the location was invalidated after gen
// was read. The check and the Put happen under one lock.
func (c *CachedLookup) putIfCurrent(ctx context.Context, locationID LocationID, gen uint64, entry *CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen[locationID] != gen {
		return
	}
	if err := c.cache.Put(ctx, locationID, entry); err != nil {
		c.onError("put", locationID, err)
	}
}

// WrapLookupError turns a store failure into a retryable LookupError.
func WrapLookupError(locationID LocationID, err error) error {
	var le *LookupError
	if errors.As(err, &le) {
		return err
	}
	return &LookupError{LocationID: locationID, Err: err}
}

// ReconcileWithLookup resolves facts for counted in one round trip and joins them.
func ReconcileWithLookup(ctx context.Context, lookup Lookup, locationID LocationID, counted []CountedLine) ([]ReconciledLine, error) {
	facts, err := lookup.Lookup(ctx, locationID, References(counted))
	if err != nil {
		return nil, WrapLookupError(locationID, err)
	}
	return Reconcile(counted, facts), nil
}
