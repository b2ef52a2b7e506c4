/*
store.go - Boundary interfaces between the engine and the system of record

PURPOSE:
  Defines the small query/command surface the engine needs. The backing
  technology is irrelevant to the engine; any durable store satisfying these
  shapes is acceptable.

KEY INTERFACES:
  Lookup:             Catalog + per-location stock facts (read-only)
  ClosingStore:       Atomic closing commit and history reads
  PartialCountSource: Stock rows to seed a partial count
  LocationDirectory:  Known locations

LOOKUP CONTRACT:
  One round trip keyed by location + full reference set. References missing
  from the result are unknown items. Failures are errors, never empty maps.

COMMIT CONTRACT:
  CommitClosing is all-or-nothing. Items are persisted verbatim next to the
  three totals, and implementations must call VerifyTotals before writing.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite system of record
  - count/store/memory.go: In-memory for testing

SEE ALSO:
  - cache.go: Read-through cache wrapping a Lookup
  - verify.go: Server-side total verification
*/
package count

import "context"

// Lookup returns the system-of-record view of references at a location.
type Lookup interface {
	Lookup(ctx context.Context, locationID LocationID, references []string) (map[string]CatalogStockFact, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, locationID LocationID, references []string) (map[string]CatalogStockFact, error)

func (f LookupFunc) Lookup(ctx context.Context, locationID LocationID, references []string) (map[string]CatalogStockFact, error) {
	return f(ctx, locationID, references)
}

// ClosingStore persists and reads count closings.
type ClosingStore interface {
	// CommitClosing persists the closing atomically and returns its id.
	CommitClosing(ctx context.Context, closing CountClosing) (ClosingID, error)

	// ListClosingHistory returns closings for a location, most recent first.
	// page is 1-based.
	ListClosingHistory(ctx context.Context, locationID LocationID, page, pageSize int) (ClosingPage, error)

	// GetClosing returns a closing with its items, or ErrClosingNotFound.
	GetClosing(ctx context.Context, id ClosingID) (*CountClosing, error)
}

// PartialCountSource lists stock rows to count in a partial count.
type PartialCountSource interface {
	// PartialCountItems returns up to limit stocked references at the location,
	// least recently counted first. limit <= 0 means all.
	PartialCountItems(ctx context.Context, locationID LocationID, limit int) ([]CatalogStockFact, error)
}

// Location is a counted place (warehouse, shop, van).
type Location struct {
	ID   LocationID `json:"id"`
	Name string     `json:"name"`
}

// LocationDirectory resolves location ids.
type LocationDirectory interface {
	// GetLocation returns the location or ErrLocationNotFound.
	GetLocation(ctx context.Context, id LocationID) (*Location, error)
	ListLocations(ctx context.Context) ([]Location, error)
}
