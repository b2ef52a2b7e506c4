/*
reconcile.go - Three-source join and exception classification

PURPOSE:
  Joins counted lines with catalog/stock facts. Each counted reference yields
  exactly one ReconciledLine; references absent from the facts default to an
  unknown item with system quantity 0.

CLASSIFICATION (strict precedence):
  1. Not in catalog                    -> unknown_item
  2. In catalog, not in location stock -> not_stocked
  3. Both, difference != 0             -> quantity_mismatch
  4. Otherwise                         -> matched

  Catalog problems dominate quantity problems: without a valid system
  quantity the comparison means nothing.

SEE ALSO:
  - types.go: ReconciledLine and the difference invariant
  - session.go: Where lines live after the join
*/
package count

import "sort"

// Status is the derived exception state of a line.
type Status string

const (
	StatusUnknownItem      Status = "unknown_item"
	StatusNotStocked       Status = "not_stocked"
	StatusQuantityMismatch Status = "quantity_mismatch"
	StatusMatched          Status = "matched"
)

// Statuses lists every status from most to least severe.
var Statuses = []Status{StatusUnknownItem, StatusNotStocked, StatusQuantityMismatch, StatusMatched}

func (s Status) Valid() bool {
	switch s {
	case StatusUnknownItem, StatusNotStocked, StatusQuantityMismatch, StatusMatched:
		return true
	}
	return false
}

// IsException reports whether the status needs attention.
func (s Status) IsException() bool {
	return s != StatusMatched
}

// Classify derives the status of a line.
func Classify(l ReconciledLine) Status {
	switch {
	case !l.ExistsInCatalog:
		return StatusUnknownItem
	case !l.ExistsInLocationStock:
		return StatusNotStocked
	case l.Difference != 0:
		return StatusQuantityMismatch
	default:
		return StatusMatched
	}
}

// Reconcile joins counted lines with facts. Pure.
// Output is ordered by reference.
func Reconcile(counted []CountedLine, facts map[string]CatalogStockFact) []ReconciledLine {
	lines := make([]ReconciledLine, 0, len(counted))
	for _, c := range counted {
		fact, ok := facts[c.Reference]
		if !ok {
			fact = UnknownFact(c.Reference)
		}
		lines = append(lines, newLine(c.Reference, c.CountedQuantity, fact))
	}
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].Reference < lines[j].Reference
	})
	return lines
}

// SeedPartial builds lines for a partial count from stock facts.
// Counted quantity starts at 0 and is entered during review.
func SeedPartial(facts []CatalogStockFact) []ReconciledLine {
	lines := make([]ReconciledLine, 0, len(facts))
	for _, f := range facts {
		lines = append(lines, newLine(f.Reference, 0, f))
	}
	return lines
}

func newLine(reference string, counted int, fact CatalogStockFact) ReconciledLine {
	l := ReconciledLine{
		Reference:             reference,
		Name:                  fact.Name,
		CountedQuantity:       counted,
		SystemQuantity:        fact.EffectiveSystemQuantity(),
		ExistsInCatalog:       fact.ExistsInCatalog,
		ExistsInLocationStock: fact.ExistsInLocationStock,
	}
	l.recompute()
	return l
}

// References returns the references of counted lines, in input order.
func References(counted []CountedLine) []string {
	refs := make([]string, len(counted))
	for i, c := range counted {
		refs[i] = c.Reference
	}
	return refs
}

// =============================================================================
// BREAKDOWN
// =============================================================================

// Breakdown counts lines per status.
type Breakdown struct {
	UnknownItem      int `json:"unknown_item"`
	NotStocked       int `json:"not_stocked"`
	QuantityMismatch int `json:"quantity_mismatch"`
	Matched          int `json:"matched"`
}

// Summarize computes the status breakdown of lines.
func Summarize(lines []ReconciledLine) Breakdown {
	var b Breakdown
	for _, l := range lines {
		switch Classify(l) {
		case StatusUnknownItem:
			b.UnknownItem++
		case StatusNotStocked:
			b.NotStocked++
		case StatusQuantityMismatch:
			b.QuantityMismatch++
		default:
			b.Matched++
		}
	}
	return b
}
