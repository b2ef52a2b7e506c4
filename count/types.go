/*
Package count provides the inventory count reconciliation engine.

PURPOSE:
  Joins a physically performed stock count with the system-of-record view of a
  location, classifies every line into an exception state, holds the result in a
  review session where a human can apply manual corrections, and packages the
  final state into one atomic count closing.

KEY CONCEPTS IN THIS FILE (types.go):
  - CountedLine: A reference and the quantity observed during the count
  - CatalogStockFact: What the system of record knows about a reference
  - ReconciledLine: The join of the two, plus the manual correction
  - CountClosing: The immutable record committed when a session is submitted

DESIGN PRINCIPLES:
  1. Derived classification: status is computed from fields, never stored
  2. One invariant: Difference = Counted + Manual - System, always
  3. Unknown is the default: a reference the lookup does not return is an
     unknown item, not an error

USAGE:
  lines := count.Reconcile(counted, facts)
  session := count.NewSession(sessionID, locationID, count.TypeFull, lines)
  session.SetManualQuantity("REF-1", "2")
  closing, err := submitter.Submit(ctx, session, count.SubmitRequest{UserID: "u-1"})

SEE ALSO:
  - reconcile.go: Join and classification
  - session.go: Review session and overrides
  - view.go: Filtering and pagination
  - closing.go: Closing submitter and total verification
*/
package count

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	LocationID string
	UserID     string
	ClosingID  string
	SessionID  string
)

// =============================================================================
// COUNT TYPE
// =============================================================================

// Type distinguishes a full count (ingested from files) from a partial count
// (seeded from the location's stock and entered by hand).
type Type string

const (
	TypeFull    Type = "full"
	TypePartial Type = "partial"
)

func (t Type) Valid() bool {
	return t == TypeFull || t == TypePartial
}

// =============================================================================
// INGESTION AND LOOKUP RECORDS
// =============================================================================

// CountedLine is one merged row of the physical count.
type CountedLine struct {
	Reference       string `json:"reference"`
	CountedQuantity int    `json:"counted_quantity"`
}

// CatalogStockFact is the system-of-record view of one reference at one location.
// SystemQuantity is only meaningful when ExistsInLocationStock is true.
type CatalogStockFact struct {
	Reference             string `json:"reference"`
	Name                  string `json:"name"`
	ExistsInCatalog       bool   `json:"exists_in_catalog"`
	ExistsInLocationStock bool   `json:"exists_in_location_stock"`
	SystemQuantity        int    `json:"system_quantity"`
}

// EffectiveSystemQuantity returns the quantity the engine compares against.
func (f CatalogStockFact) EffectiveSystemQuantity() int {
	if !f.ExistsInLocationStock {
		return 0
	}
	return f.SystemQuantity
}

// UnknownFact is the fact assumed for a reference the lookup did not return.
func UnknownFact(reference string) CatalogStockFact {
	return CatalogStockFact{Reference: reference}
}

// =============================================================================
// RECONCILED LINE
// =============================================================================

// ReconciledLine is one row of a review session.
type ReconciledLine struct {
	Reference             string `json:"reference"`
	Name                  string `json:"name"`
	CountedQuantity       int    `json:"counted_quantity"`
	SystemQuantity        int    `json:"system_quantity"`
	ManualQuantity        int    `json:"manual_quantity"`
	Difference            int    `json:"difference"`
	ExistsInCatalog       bool   `json:"exists_in_catalog"`
	ExistsInLocationStock bool   `json:"exists_in_location_stock"`
}

// recompute restores the difference invariant after a quantity change.
func (l *ReconciledLine) recompute() {
	l.Difference = l.CountedQuantity + l.ManualQuantity - l.SystemQuantity
}

// Status returns the derived classification of the line.
func (l ReconciledLine) Status() Status {
	return Classify(l)
}

// =============================================================================
// AGGREGATES
// =============================================================================

// Totals are the three audit aggregates of a set of lines.
type Totals struct {
	TotalItemsAudited     int `json:"total_items_audited"`
	TotalDifferencesFound int `json:"total_differences_found"`
	TotalManualQuantity   int `json:"total_manual_quantity"`
}

// ComputeTotals derives the aggregates from lines. Never cached.
func ComputeTotals(lines []ReconciledLine) Totals {
	t := Totals{TotalItemsAudited: len(lines)}
	for _, l := range lines {
		if l.Difference != 0 {
			t.TotalDifferencesFound++
		}
		t.TotalManualQuantity += l.ManualQuantity
	}
	return t
}

// =============================================================================
// CLOSING
// =============================================================================

// CountClosing is the payload committed to the store and the persisted record.
type CountClosing struct {
	ID         ClosingID        `json:"id,omitempty"`
	LocationID LocationID       `json:"location_id"`
	UserID     UserID           `json:"user_id"`
	Type       Type             `json:"type"`
	Totals                      // declared totals, verified against Items
	Notes      string           `json:"notes,omitempty"`
	Items      []ReconciledLine `json:"items"`
	CreatedAt  time.Time        `json:"created_at"`
}

// ClosingSummary is a history row: a closing without its items.
type ClosingSummary struct {
	ID         ClosingID  `json:"id"`
	LocationID LocationID `json:"location_id"`
	UserID     UserID     `json:"user_id"`
	Type       Type       `json:"type"`
	Totals
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary strips the items from a closing.
func (c CountClosing) Summary() ClosingSummary {
	return ClosingSummary{
		ID:         c.ID,
		LocationID: c.LocationID,
		UserID:     c.UserID,
		Type:       c.Type,
		Totals:     c.Totals,
		Notes:      c.Notes,
		CreatedAt:  c.CreatedAt,
	}
}

// ClosingPage is one page of closing history.
type ClosingPage struct {
	Items []ClosingSummary `json:"items"`
	Total int              `json:"total"`
}

// =============================================================================
// QUANTITY PARSING
// =============================================================================

// MaxQuantity bounds any single quantity.
const MaxQuantity = 1<<31 - 1

// ParseQuantity parses a user-entered or spreadsheet quantity.
// Empty input is 0. Integral decimals such as "5.0" are accepted;
// fractional or non-numeric input returns ErrInvalidQuantity.
func ParseQuantity(input string) (int, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n > MaxQuantity || n < -MaxQuantity {
			return 0, &QuantityError{Input: input}
		}
		return n, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		return 0, &QuantityError{Input: input}
	}
	if d.Abs().GreaterThan(decimal.NewFromInt(MaxQuantity)) {
		return 0, &QuantityError{Input: input}
	}
	return int(d.IntPart()), nil
}
