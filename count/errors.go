/*
errors.go - Centralized error types for the count engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch on sentinels with errors.Is and read details with errors.As.

ERROR CATEGORIES:
  1. Ingestion errors - per-file parse failures (see ingest package)
  2. Lookup errors - store or network failures, retryable
  3. Validation errors - bad input, missing submission context
  4. Store errors - commit failures, surfaced verbatim

SEE ALSO:
  - closing.go: Returns MissingContextError and CommitError
  - session.go: Returns QuantityError and ErrLineNotFound
  - verify.go: Returns TotalsMismatchError
*/
package count

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidQuantity is returned when a quantity input is not an integer.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrNegativeCount is returned when a counted quantity is below zero.
	ErrNegativeCount = errors.New("counted quantity cannot be negative")

	// ErrInvalidFilter is returned when a filter value is not recognized.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrLineNotFound is returned when a reference is not part of the session.
	ErrLineNotFound = errors.New("line not found in session")

	// ErrSessionNotFound is returned when a session id is not registered.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed is returned when mutating a submitted or abandoned session.
	ErrSessionClosed = errors.New("session is closed")

	// ErrNotPartialCount is returned when editing counted quantities of a full count.
	ErrNotPartialCount = errors.New("counted quantity is only editable on partial counts")

	// ErrMissingContext is returned when location or user cannot be resolved.
	ErrMissingContext = errors.New("missing submission context")

	// ErrLookupFailed is returned when the catalog/stock lookup cannot complete.
	ErrLookupFailed = errors.New("catalog/stock lookup failed")

	// ErrCommitFailed is returned when the store rejects a closing.
	ErrCommitFailed = errors.New("closing commit failed")

	// ErrTotalsMismatch is returned when declared totals differ from the items.
	ErrTotalsMismatch = errors.New("declared totals do not match items")

	// ErrInvalidClosing is returned when a closing payload is malformed.
	ErrInvalidClosing = errors.New("invalid closing")

	// ErrClosingNotFound is returned when a closing id doesn't exist.
	ErrClosingNotFound = errors.New("closing not found")

	// ErrLocationNotFound is returned when a location id doesn't exist.
	ErrLocationNotFound = errors.New("location not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// QuantityError reports the rejected input.
type QuantityError struct {
	Input string
}

func (e *QuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %q", e.Input)
}

func (e *QuantityError) Unwrap() error {
	return ErrInvalidQuantity
}

// LineError ties a failure to a session line.
type LineError struct {
	Reference string
	Err       error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %s: %v", e.Reference, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// MissingContextError names the context that could not be resolved.
// Treated as a configuration error: never retried.
type MissingContextError struct {
	Field string // "location_id" or "user_id"
}

func (e *MissingContextError) Error() string {
	return fmt.Sprintf("missing submission context: %s", e.Field)
}

func (e *MissingContextError) Unwrap() error {
	return ErrMissingContext
}

// LookupError wraps a failed lookup round trip.
type LookupError struct {
	LocationID LocationID
	Err        error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup for location %s failed: %v", e.LocationID, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *LookupError) Unwrap() []error {
	return []error{ErrLookupFailed, e.Err}
}

// CommitError wraps the store's rejection of a closing.
type CommitError struct {
	LocationID LocationID
	Err        error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit closing for location %s: %v", e.LocationID, e.Err)
}

func (e *CommitError) Unwrap() []error {
	return []error{ErrCommitFailed, e.Err}
}

// TotalsMismatchError reports declared versus recomputed totals.
type TotalsMismatchError struct {
	Declared   Totals
	Recomputed Totals
}

func (e *TotalsMismatchError) Error() string {
	return fmt.Sprintf("declared totals %+v do not match items %+v", e.Declared, e.Recomputed)
}

func (e *TotalsMismatchError) Unwrap() error {
	return ErrTotalsMismatch
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on a manual retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrTotalsMismatch) || errors.Is(err, ErrInvalidClosing) {
		return false
	}
	return errors.Is(err, ErrLookupFailed) || errors.Is(err, ErrCommitFailed)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrNegativeCount) ||
		errors.Is(err, ErrInvalidFilter) ||
		errors.Is(err, ErrNotPartialCount) ||
		errors.Is(err, ErrMissingContext) ||
		errors.Is(err, ErrTotalsMismatch) ||
		errors.Is(err, ErrInvalidClosing)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLineNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrClosingNotFound) ||
		errors.Is(err, ErrLocationNotFound)
}
