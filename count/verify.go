package count

import "fmt"

// VerifyTotals recomputes the aggregates from the items and compares them
// with the declared totals. Stores call this before persisting anything.
func VerifyTotals(c CountClosing) error {
	recomputed := ComputeTotals(c.Items)
	if recomputed != c.Totals {
		return &TotalsMismatchError{Declared: c.Totals, Recomputed: recomputed}
	}
	return nil
}

// ValidateClosing checks a closing payload before it is committed:
// resolvable context, a known type, unique references, the difference
// invariant on every item, and matching totals.
func ValidateClosing(c CountClosing) error {
	if c.LocationID == "" {
		return &MissingContextError{Field: "location_id"}
	}
	if c.UserID == "" {
		return &MissingContextError{Field: "user_id"}
	}
	if !c.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidClosing, c.Type)
	}

	seen := make(map[string]bool, len(c.Items))
	for _, it := range c.Items {
		if it.Reference == "" {
			return fmt.Errorf("%w: item with empty reference", ErrInvalidClosing)
		}
		if seen[it.Reference] {
			return fmt.Errorf("%w: duplicate reference %s", ErrInvalidClosing, it.Reference)
		}
		seen[it.Reference] = true
		if it.Difference != it.CountedQuantity+it.ManualQuantity-it.SystemQuantity {
			return fmt.Errorf("%w: difference of %s is %d, expected %d", ErrInvalidClosing,
				it.Reference, it.Difference, it.CountedQuantity+it.ManualQuantity-it.SystemQuantity)
		}
	}
	return VerifyTotals(c)
}
