package count_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-count/count"
	"github.com/warp/stock-count/count/store"
)

// mapCache is a FactCache that can be told to fail.
type mapCache struct {
	entries map[count.LocationID]*count.CacheEntry
	failGet bool
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[count.LocationID]*count.CacheEntry)}
}

func (c *mapCache) Get(_ context.Context, loc count.LocationID) (*count.CacheEntry, bool, error) {
	if c.failGet {
		return nil, false, errors.New("cache down")
	}
	e, ok := c.entries[loc]
	return e, ok, nil
}

func (c *mapCache) Put(_ context.Context, loc count.LocationID, e *count.CacheEntry) error {
	c.entries[loc] = e.Clone()
	return nil
}

func (c *mapCache) Delete(_ context.Context, loc count.LocationID) error {
	delete(c.entries, loc)
	return nil
}

func TestCachedLookup_ReadThrough(t *testing.T) {
	// GIVEN: A cached lookup over a store with one stocked reference
	ctx := context.Background()
	mem := store.NewMemory()
	mem.SetStock("loc-1", "REF-1", 5)
	cl := count.NewCachedLookup(mem, newMapCache(), nil)

	// WHEN: The same references are looked up twice
	first, err := cl.Lookup(ctx, "loc-1", []string{"REF-1", "REF-2"})
	require.NoError(t, err)
	second, err := cl.Lookup(ctx, "loc-1", []string{"REF-1", "REF-2"})
	require.NoError(t, err)

	// THEN: One round trip; the absent reference stays absent
	assert.Equal(t, 1, mem.LookupCalls)
	assert.Equal(t, first, second)
	_, known := second["REF-2"]
	assert.False(t, known, "absent references must stay unknown items")
}

func TestCachedLookup_FetchesOnlyMisses(t *testing.T) {
	ctx := context.Background()
	var requested [][]string
	next := count.LookupFunc(func(_ context.Context, _ count.LocationID, refs []string) (map[string]count.CatalogStockFact, error) {
		requested = append(requested, append([]string{}, refs...))
		out := make(map[string]count.CatalogStockFact)
		for _, r := range refs {
			out[r] = stocked(r, 1)
		}
		return out, nil
	})
	cl := count.NewCachedLookup(next, newMapCache(), nil)

	_, err := cl.Lookup(ctx, "loc-1", []string{"A", "B"})
	require.NoError(t, err)
	got, err := cl.Lookup(ctx, "loc-1", []string{"B", "C", "C"})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"A", "B"}, {"C"}}, requested)
	assert.Len(t, got, 2)
}

func TestCachedLookup_InvalidateOnCommit(t *testing.T) {
	// GIVEN: A cached snapshot of loc-1
	ctx := context.Background()
	mem := store.NewMemory()
	mem.SetStock("loc-1", "REF-1", 5)
	cl := count.NewCachedLookup(mem, newMapCache(), nil)
	_, err := cl.Lookup(ctx, "loc-1", []string{"REF-1"})
	require.NoError(t, err)

	// WHEN: A closing is submitted for loc-1
	sub := count.NewSubmitter(mem, count.WithInvalidator(cl))
	lines, err := count.ReconcileWithLookup(ctx, cl, "loc-1", []count.CountedLine{{Reference: "REF-1", CountedQuantity: 5}})
	require.NoError(t, err)
	_, err = sub.Submit(ctx, count.NewSession("s", "loc-1", count.TypeFull, lines), count.SubmitRequest{UserID: "u"})
	require.NoError(t, err)

	// THEN: The next lookup goes back to the store
	mem.SetStock("loc-1", "REF-1", 2)
	facts, err := cl.Lookup(ctx, "loc-1", []string{"REF-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, facts["REF-1"].SystemQuantity)
	assert.Equal(t, 2, mem.LookupCalls)
}

func TestCachedLookup_CacheFailureBypassed(t *testing.T) {
	mem := store.NewMemory()
	mem.SetStock("loc-1", "REF-1", 5)
	cache := newMapCache()
	cache.failGet = true
	var ops []string
	cl := count.NewCachedLookup(mem, cache, func(op string, _ count.LocationID, _ error) {
		ops = append(ops, op)
	})

	facts, err := cl.Lookup(context.Background(), "loc-1", []string{"REF-1"})

	require.NoError(t, err)
	assert.True(t, facts["REF-1"].ExistsInLocationStock)
	assert.Equal(t, []string{"get"}, ops)
}

func TestCachedLookup_StoreFailureNotCached(t *testing.T) {
	mem := store.NewMemory()
	mem.LookupErr = errors.New("timeout")
	cache := newMapCache()
	cl := count.NewCachedLookup(mem, cache, nil)

	_, err := cl.Lookup(context.Background(), "loc-1", []string{"REF-1"})

	assert.ErrorIs(t, err, count.ErrLookupFailed)
	assert.Empty(t, cache.entries)
}

func TestCachedLookup_InvalidateDuringFetchIsNotOverwritten(t *testing.T) {
	// GIVEN: A store whose first fetch races with a commit on the same location
	ctx := context.Background()
	var (
		cl    *count.CachedLookup
		calls int
	)
	cache := newMapCache()
	next := count.LookupFunc(func(ctx context.Context, loc count.LocationID, refs []string) (map[string]count.CatalogStockFact, error) {
		calls++
		qty := 5
		if calls == 1 {
			cl.Invalidate(ctx, loc) // committed while this fetch was in flight
			qty = 4
		}
		return map[string]count.CatalogStockFact{"REF-1": stocked("REF-1", qty)}, nil
	})
	cl = count.NewCachedLookup(next, cache, nil)

	// WHEN: Looking up before and after
	first, err := cl.Lookup(ctx, "loc-1", []string{"REF-1"})
	require.NoError(t, err)
	second, err := cl.Lookup(ctx, "loc-1", []string{"REF-1"})
	require.NoError(t, err)

	// THEN: The stale first result was answered but never cached
	assert.Equal(t, 4, first["REF-1"].SystemQuantity)
	assert.Equal(t, 5, second["REF-1"].SystemQuantity)
	assert.Equal(t, 2, calls)

	// AND: The fresh result is cached
	_, err = cl.Lookup(ctx, "loc-1", []string{"REF-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
