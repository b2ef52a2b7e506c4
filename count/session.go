/*
session.go - Review session over reconciled lines

PURPOSE:
  Owns the in-memory ReconciledLine collection for one count of one location.
  Supports manual-quantity overrides, filtered/paginated views and fresh
  aggregates. Views are copies; only overrides mutate lines.

LIFECYCLE:
  Created once from Reconcile (full) or SeedPartial (partial).
  Mutated only via SetManualQuantity, SetCountedQuantity and SetQuantities.
  Closed by a successful submit or by Abandon. A closed session rejects
  mutations with ErrSessionClosed.

  A failed submit leaves the session open with every override intact.

CONCURRENCY:
  Not safe for concurrent use. One user drives one session; callers that
  share a session across goroutines must serialize access (api.Registry does).

SEE ALSO:
  - view.go: Filter and Paginate
  - closing.go: Submitter
*/
package count

import "time"

// Session is a single review of reconciled lines.
type Session struct {
	ID         SessionID
	LocationID LocationID
	Type       Type
	CreatedAt  time.Time

	lines  []ReconciledLine
	index  map[string]int
	filter Filter
	page   int
	closed bool
}

// NewSession creates a session over a copy of lines. If a reference appears
// more than once, the first occurrence wins.
func NewSession(id SessionID, locationID LocationID, typ Type, lines []ReconciledLine) *Session {
	s := &Session{
		ID:         id,
		LocationID: locationID,
		Type:       typ,
		CreatedAt:  time.Now().UTC(),
		lines:      make([]ReconciledLine, 0, len(lines)),
		index:      make(map[string]int, len(lines)),
		filter:     Filter{}.Normalized(),
		page:       1,
	}
	for _, l := range lines {
		if _, dup := s.index[l.Reference]; dup {
			continue
		}
		l.recompute()
		s.index[l.Reference] = len(s.lines)
		s.lines = append(s.lines, l)
	}
	return s
}

// Len returns the number of lines.
func (s *Session) Len() int { return len(s.lines) }

// Closed reports whether the session was submitted or abandoned.
func (s *Session) Closed() bool { return s.closed }

// Lines returns a copy of every line.
func (s *Session) Lines() []ReconciledLine {
	out := make([]ReconciledLine, len(s.lines))
	copy(out, s.lines)
	return out
}

// Line returns the line for reference.
func (s *Session) Line(reference string) (ReconciledLine, bool) {
	i, ok := s.index[reference]
	if !ok {
		return ReconciledLine{}, false
	}
	return s.lines[i], true
}

// =============================================================================
// OVERRIDES
// =============================================================================

// SetManualQuantity sets the manual correction of one line.
// Empty input is 0; non-numeric input is rejected and leaves the line unchanged.
func (s *Session) SetManualQuantity(reference, input string) error {
	l, err := s.mutable(reference)
	if err != nil {
		return err
	}
	n, err := ParseQuantity(input)
	if err != nil {
		return &LineError{Reference: reference, Err: err}
	}
	l.ManualQuantity = n
	l.recompute()
	return nil
}

// SetCountedQuantity sets the counted quantity of one line of a partial count.
func (s *Session) SetCountedQuantity(reference, input string) error {
	if s.Type != TypePartial {
		return &LineError{Reference: reference, Err: ErrNotPartialCount}
	}
	l, err := s.mutable(reference)
	if err != nil {
		return err
	}
	n, err := ParseQuantity(input)
	if err != nil {
		return &LineError{Reference: reference, Err: err}
	}
	if n < 0 {
		return &LineError{Reference: reference, Err: ErrNegativeCount}
	}
	l.CountedQuantity = n
	l.recompute()
	return nil
}

// SetQuantities applies a counted and/or manual quantity to one line as a
// unit. Nil inputs are left alone. Both inputs are checked before either is
// applied, so a rejected call leaves the line unchanged.
func (s *Session) SetQuantities(reference string, counted, manual *string) error {
	l, err := s.mutable(reference)
	if err != nil {
		return err
	}

	countedQty, manualQty := l.CountedQuantity, l.ManualQuantity
	if counted != nil {
		if s.Type != TypePartial {
			return &LineError{Reference: reference, Err: ErrNotPartialCount}
		}
		n, err := ParseQuantity(*counted)
		if err != nil {
			return &LineError{Reference: reference, Err: err}
		}
		if n < 0 {
			return &LineError{Reference: reference, Err: ErrNegativeCount}
		}
		countedQty = n
	}
	if manual != nil {
		n, err := ParseQuantity(*manual)
		if err != nil {
			return &LineError{Reference: reference, Err: err}
		}
		manualQty = n
	}

	l.CountedQuantity = countedQty
	l.ManualQuantity = manualQty
	l.recompute()
	return nil
}

func (s *Session) mutable(reference string) (*ReconciledLine, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	i, ok := s.index[reference]
	if !ok {
		return nil, &LineError{Reference: reference, Err: ErrLineNotFound}
	}
	return &s.lines[i], nil
}

// =============================================================================
// VIEWS
// =============================================================================

// Filter returns the lines matching f without touching view state.
func (s *Session) Filter(f Filter) []ReconciledLine {
	return Apply(s.lines, f)
}

// SetFilter replaces the current filter and resets the page to 1.
func (s *Session) SetFilter(f Filter) {
	s.filter = f.Normalized()
	s.page = 1
}

// CurrentFilter returns the filter set by SetFilter.
func (s *Session) CurrentFilter() Filter { return s.filter }

// SetPage moves to page; CurrentPage clamps it.
func (s *Session) SetPage(page int) {
	s.page = page
}

// CurrentPage returns the current page of the current filter.
// The stored page is clamped so it never points past the last page.
func (s *Session) CurrentPage(pageSize int) Page {
	p := Paginate(s.Filter(s.filter), s.page, pageSize)
	s.page = p.Page
	return p
}

// =============================================================================
// AGGREGATES
// =============================================================================

// Aggregates computes the audit totals from current state.
func (s *Session) Aggregates() Totals {
	return ComputeTotals(s.lines)
}

// Breakdown counts current lines per status.
func (s *Session) Breakdown() Breakdown {
	return Summarize(s.lines)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Abandon discards the session without submitting.
func (s *Session) Abandon() {
	s.closed = true
}

// markSubmitted closes the session after a successful commit.
func (s *Session) markSubmitted() {
	s.closed = true
}
