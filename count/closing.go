/*
closing.go - Packages a review session into one atomic count closing

PURPOSE:
  The Submitter snapshots the session, derives the three totals immediately
  before submission, and sends the closing to the store in a single command.

FAILURE SEMANTICS:
  - Missing location or user: MissingContextError, never retried
  - Store rejection: CommitError wrapping the store error verbatim;
    the session stays open so manual corrections survive a retry
  - Success: session closed, lookup cache for the location invalidated

SEE ALSO:
  - verify.go: Store-side validation of the same payload
  - cache.go: CachedLookup implements Invalidator
*/
package count

import (
	"context"
	"time"
)

// Invalidator drops cached lookup state for a location.
type Invalidator interface {
	Invalidate(ctx context.Context, locationID LocationID)
}

// SubmitRequest carries what the session itself does not know.
type SubmitRequest struct {
	UserID UserID
	Notes  string
}

// Submitter commits sessions to a ClosingStore.
type Submitter struct {
	store       ClosingStore
	invalidator Invalidator
	now         func() time.Time
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

// WithInvalidator invalidates the location's lookup cache after each commit.
func WithInvalidator(inv Invalidator) SubmitterOption {
	return func(s *Submitter) { s.invalidator = inv }
}

// WithClock overrides the closing timestamp source.
func WithClock(now func() time.Time) SubmitterOption {
	return func(s *Submitter) { s.now = now }
}

// NewSubmitter creates a submitter over store.
func NewSubmitter(store ClosingStore, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildClosing snapshots the session into a closing payload.
func BuildClosing(s *Session, req SubmitRequest, at time.Time) CountClosing {
	items := s.Lines()
	return CountClosing{
		LocationID: s.LocationID,
		UserID:     req.UserID,
		Type:       s.Type,
		Totals:     ComputeTotals(items),
		Notes:      req.Notes,
		Items:      items,
		CreatedAt:  at,
	}
}

// Submit commits the session. The session is closed only on success.
func (sub *Submitter) Submit(ctx context.Context, s *Session, req SubmitRequest) (CountClosing, error) {
	if s == nil {
		return CountClosing{}, ErrSessionNotFound
	}
	if s.Closed() {
		return CountClosing{}, ErrSessionClosed
	}
	if s.LocationID == "" {
		return CountClosing{}, &MissingContextError{Field: "location_id"}
	}
	if req.UserID == "" {
		return CountClosing{}, &MissingContextError{Field: "user_id"}
	}

	closing := BuildClosing(s, req, sub.now())

	id, err := sub.store.CommitClosing(ctx, closing)
	if err != nil {
		return CountClosing{}, &CommitError{LocationID: s.LocationID, Err: err}
	}
	closing.ID = id

	s.markSubmitted()
	if sub.invalidator != nil {
		sub.invalidator.Invalidate(ctx, s.LocationID)
	}
	return closing, nil
}
