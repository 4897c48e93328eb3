/*
errors.go - Centralized error types for the tax engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Per-line resolution failures are recovered locally into ExceptionRows by
  the fact builder; they never abort a batch. Reference-data conformance
  failures are fatal preconditions and abort before any row processing.

ERROR CATEGORIES:
  1. Resolution errors - a single line cannot be resolved (recoverable)
  2. Data-quality defects - the reference tables themselves are wrong
  3. Conformance errors - a reference table is structurally unusable

USAGE:
  if errors.Is(err, tax.ErrAmbiguousWindow) {
      // escalate to the reference-data owner, not the transaction feed
  }
*/
package tax

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoActiveRecord is returned by the effective-date index when no
	// window covers the requested date.
	ErrNoActiveRecord = errors.New("no active record")

	// ErrAmbiguousWindow is returned when more than one window covers a date
	// for a key declared disjoint. This is a reference-data defect and is
	// surfaced, never auto-resolved by a latest-wins heuristic.
	ErrAmbiguousWindow = errors.New("ambiguous effective window")

	// ErrUnmappedClass is returned when a product class has no taxability rule.
	ErrUnmappedClass = errors.New("unmapped product class")

	// ErrUnmappedJurisdiction is returned when neither the device mapping nor
	// the ZIP fallback can place a device at the transaction date.
	ErrUnmappedJurisdiction = errors.New("unmapped jurisdiction")

	// ErrNoActiveRate is returned when a required rate component has no
	// active record for the jurisdiction at the transaction date.
	ErrNoActiveRate = errors.New("no active rate")

	// ErrInvalidInputRow is returned for malformed transaction lines
	// (negative quantity, negative net sales, missing device).
	ErrInvalidInputRow = errors.New("invalid input row")

	// ErrInvalidReference is returned when a reference table fails structural
	// conformance. This is fatal: the run aborts before processing any row.
	ErrInvalidReference = errors.New("invalid reference table")
)

// =============================================================================
// STRUCTURED ERRORS - Carry resolution context
// =============================================================================

// ResolutionError describes why a single line could not be resolved.
// It unwraps to one of the sentinel errors above.
type ResolutionError struct {
	Reason ExceptionReason
	Key    string // class name, device id, or jurisdiction/component
	AsOf   Date
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: %s as of %s", e.Reason, e.Key, e.AsOf)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// AmbiguousWindowError reports overlapping windows found during a lookup.
type AmbiguousWindowError struct {
	Key     string
	AsOf    Date
	Matches int
}

func (e *AmbiguousWindowError) Error() string {
	return fmt.Sprintf("ambiguous effective window for %q as of %s: %d matches", e.Key, e.AsOf, e.Matches)
}

func (e *AmbiguousWindowError) Unwrap() error { return ErrAmbiguousWindow }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsResolutionFailure reports whether err is a per-line failure that the
// fact builder converts into an ExceptionRow.
func IsResolutionFailure(err error) bool {
	return errors.Is(err, ErrUnmappedClass) ||
		errors.Is(err, ErrUnmappedJurisdiction) ||
		errors.Is(err, ErrNoActiveRate) ||
		errors.Is(err, ErrAmbiguousWindow) ||
		errors.Is(err, ErrInvalidInputRow)
}

// IsDataDefect reports whether err indicates a defect in the reference
// tables (a policy authoring error) rather than in the transaction feed.
func IsDataDefect(err error) bool {
	return errors.Is(err, ErrAmbiguousWindow) || errors.Is(err, ErrInvalidReference)
}

// ReasonFor maps a resolution error to its exception reason. Falls back to
// invalid_input_row for anything unclassified, which cannot happen for
// errors produced inside this package.
func ReasonFor(err error) ExceptionReason {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re.Reason
	}
	switch {
	case errors.Is(err, ErrUnmappedClass):
		return ReasonUnmappedClass
	case errors.Is(err, ErrUnmappedJurisdiction):
		return ReasonUnmappedJurisdiction
	case errors.Is(err, ErrNoActiveRate):
		return ReasonNoActiveRate
	case errors.Is(err, ErrAmbiguousWindow):
		return ReasonAmbiguousWindow
	default:
		return ReasonInvalidInputRow
	}
}
