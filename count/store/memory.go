// Package store provides in-memory implementations of the count interfaces.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/stock-count/count"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	locations   map[count.LocationID]string
	parts       map[string]string // reference -> name
	stock       map[count.LocationID]map[string]int
	lastCounted map[stockKey]time.Time
	closings    []count.CountClosing

	// LookupErr and CommitErr, when set, are returned by the next calls.
	LookupErr error
	CommitErr error

	// LookupCalls counts round trips, for cache tests.
	LookupCalls int
}

type stockKey struct {
	LocationID count.LocationID
	Reference  string
}

func NewMemory() *Memory {
	return &Memory{
		locations:   make(map[count.LocationID]string),
		parts:       make(map[string]string),
		stock:       make(map[count.LocationID]map[string]int),
		lastCounted: make(map[stockKey]time.Time),
	}
}

// AddPart registers a reference in the catalog.
func (m *Memory) AddPart(reference, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parts[reference] = name
}

// AddLocation registers a location.
func (m *Memory) AddLocation(id count.LocationID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[id] = name
}

// SetStock records a stock row. The reference and location are registered if needed.
func (m *Memory) SetStock(locationID count.LocationID, reference string, quantity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locations[locationID]; !ok {
		m.locations[locationID] = string(locationID)
	}
	if _, ok := m.parts[reference]; !ok {
		m.parts[reference] = reference
	}
	if m.stock[locationID] == nil {
		m.stock[locationID] = make(map[string]int)
	}
	m.stock[locationID][reference] = quantity
}

// Lookup implements count.Lookup.
func (m *Memory) Lookup(_ context.Context, locationID count.LocationID, references []string) (map[string]count.CatalogStockFact, error) {
	m.mu.Lock()
	m.LookupCalls++
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.LookupErr != nil {
		return nil, m.LookupErr
	}

	facts := make(map[string]count.CatalogStockFact)
	for _, ref := range references {
		name, inCatalog := m.parts[ref]
		if !inCatalog {
			continue
		}
		qty, stocked := m.stock[locationID][ref]
		facts[ref] = count.CatalogStockFact{
			Reference:             ref,
			Name:                  name,
			ExistsInCatalog:       true,
			ExistsInLocationStock: stocked,
			SystemQuantity:        qty,
		}
	}
	return facts, nil
}

// GetLocation implements count.LocationDirectory.
func (m *Memory) GetLocation(_ context.Context, id count.LocationID) (*count.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.locations[id]
	if !ok {
		return nil, count.ErrLocationNotFound
	}
	return &count.Location{ID: id, Name: name}, nil
}

// ListLocations implements count.LocationDirectory.
func (m *Memory) ListLocations(_ context.Context) ([]count.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]count.Location, 0, len(m.locations))
	for id, name := range m.locations {
		out = append(out, count.Location{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PartialCountItems implements count.PartialCountSource.
func (m *Memory) PartialCountItems(_ context.Context, locationID count.LocationID, limit int) ([]count.CatalogStockFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]count.CatalogStockFact, 0, len(m.stock[locationID]))
	for ref, qty := range m.stock[locationID] {
		items = append(items, count.CatalogStockFact{
			Reference:             ref,
			Name:                  m.parts[ref],
			ExistsInCatalog:       true,
			ExistsInLocationStock: true,
			SystemQuantity:        qty,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		ti := m.lastCounted[stockKey{locationID, items[i].Reference}]
		tj := m.lastCounted[stockKey{locationID, items[j].Reference}]
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return items[i].Reference < items[j].Reference
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// CommitClosing implements count.ClosingStore. Validation happens before any
// state changes, so a rejected closing leaves nothing behind.
func (m *Memory) CommitClosing(_ context.Context, c count.CountClosing) (count.ClosingID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CommitErr != nil {
		return "", m.CommitErr
	}
	if err := count.ValidateClosing(c); err != nil {
		return "", err
	}

	c.ID = count.ClosingID(uuid.NewString())
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	items := make([]count.ReconciledLine, len(c.Items))
	copy(items, c.Items)
	c.Items = items
	m.closings = append(m.closings, c)

	for _, it := range c.Items {
		if _, ok := m.stock[c.LocationID][it.Reference]; ok {
			m.lastCounted[stockKey{c.LocationID, it.Reference}] = c.CreatedAt
		}
	}
	return c.ID, nil
}

// ListClosingHistory implements count.ClosingStore.
func (m *Memory) ListClosingHistory(_ context.Context, locationID count.LocationID, page, pageSize int) (count.ClosingPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matching []count.ClosingSummary
	for i := len(m.closings) - 1; i >= 0; i-- {
		if m.closings[i].LocationID == locationID {
			matching = append(matching, m.closings[i].Summary())
		}
	}
	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].CreatedAt.After(matching[j].CreatedAt)
	})

	if pageSize <= 0 {
		pageSize = count.DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start > len(matching) {
		start = len(matching)
	}
	end := start + pageSize
	if end > len(matching) {
		end = len(matching)
	}
	return count.ClosingPage{
		Items: append([]count.ClosingSummary{}, matching[start:end]...),
		Total: len(matching),
	}, nil
}

// GetClosing implements count.ClosingStore.
func (m *Memory) GetClosing(_ context.Context, id count.ClosingID) (*count.CountClosing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.closings {
		if c.ID == id {
			out := c
			out.Items = append([]count.ReconciledLine{}, c.Items...)
			return &out, nil
		}
	}
	return nil, count.ErrClosingNotFound
}

// Closings returns how many closings were committed.
func (m *Memory) Closings() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.closings)
}
