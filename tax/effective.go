/*
effective.go - Effective-date interval index

PURPOSE:
  Generic lookup structure for effective-dated reference records: given a
  key and a date, return the single record whose validity window contains
  that date.

CONTRACT:
  - Exactly one match: returned.
  - Zero matches: ErrNoActiveRecord.
  - More than one match for a key the data model declares disjoint:
    AmbiguousWindowError. There is deliberately no "latest wins" tiebreak;
    overlap masks policy authoring errors and must surface.
  - At most one open-ended window may exist per key; a second one is an
    overlap by construction.

USAGE:
  ix := tax.NewIndex[tax.DeviceMapping]()
  ix.Add(string(m.DeviceID), m)
  rec, err := ix.Lookup("dev-204", tax.NewDate(2025, time.June, 1))

SEE ALSO:
  - snapshot.go: Runs Validate() once per run and surfaces defects
  - jurisdiction.go, rates.go: The two resolvers built on this index
*/
package tax

import "sort"

// Effective is any reference record carrying a validity window.
type Effective interface {
	EffectiveWindow() Window
}

// Index is a per-key effective-date interval index.
type Index[T Effective] struct {
	records map[string][]T
}

func NewIndex[T Effective]() *Index[T] {
	return &Index[T]{records: make(map[string][]T)}
}

// Add registers a record under key. Records are immutable once added; the
// index is built once per run from a reference snapshot.
func (ix *Index[T]) Add(key string, rec T) {
	ix.records[key] = append(ix.records[key], rec)
}

// Keys returns the number of distinct keys (used by coverage diagnostics).
func (ix *Index[T]) Keys() int { return len(ix.records) }

// Has reports whether any record exists under key, regardless of date.
func (ix *Index[T]) Has(key string) bool { return len(ix.records[key]) > 0 }

// All returns every record registered under key, in insertion order.
func (ix *Index[T]) All(key string) []T { return ix.records[key] }

// Lookup returns the single record whose window contains asOf.
func (ix *Index[T]) Lookup(key string, asOf Date) (T, error) {
	var zero T
	var match T
	matches := 0
	for _, rec := range ix.records[key] {
		if rec.EffectiveWindow().Contains(asOf) {
			match = rec
			matches++
		}
	}
	switch matches {
	case 0:
		return zero, ErrNoActiveRecord
	case 1:
		return match, nil
	default:
		return zero, &AmbiguousWindowError{Key: key, AsOf: asOf, Matches: matches}
	}
}

// =============================================================================
// VALIDATION - Overlap audit across the whole index
// =============================================================================

// WindowDefect describes a pair of windows for one key that violate the
// disjointness invariant. Defects are audit-level findings about the
// reference data itself, reported separately from per-line exceptions.
type WindowDefect struct {
	Key    string
	First  Window
	Second Window
}

// Validate scans every key for overlapping windows, including the implicit
// overlap of two open-ended windows. The index remains usable afterwards;
// lookups that land inside an overlap still fail with AmbiguousWindowError.
// Defects are returned in sorted key order so runs diff cleanly.
func (ix *Index[T]) Validate() []WindowDefect {
	keys := make([]string, 0, len(ix.records))
	for key := range ix.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var defects []WindowDefect
	for _, key := range keys {
		recs := ix.records[key]
		for i := 0; i < len(recs); i++ {
			for j := i + 1; j < len(recs); j++ {
				wi, wj := recs[i].EffectiveWindow(), recs[j].EffectiveWindow()
				if wi.Overlaps(wj) {
					defects = append(defects, WindowDefect{Key: key, First: wi, Second: wj})
				}
			}
		}
	}
	return defects
}
