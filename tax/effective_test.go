package tax_test

import (
	"errors"
	"testing"
	"time"

	"github.com/warp/salestax-engine/tax"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(s string) tax.Date {
	d, err := tax.ParseDate(s)
	if err != nil {
		panic("bad test date: " + s)
	}
	return d
}

// window builds an inclusive window; empty "to" means open-ended.
func window(from, to string) tax.Window {
	w := tax.Window{From: date(from)}
	if to != "" {
		t := date(to)
		w.To = &t
	}
	return w
}

type stubRecord struct {
	name string
	w    tax.Window
}

func (r stubRecord) EffectiveWindow() tax.Window { return r.w }

// =============================================================================
// LOOKUP CONTRACT
// =============================================================================

func TestIndex_Lookup_SingleMatch(t *testing.T) {
	// GIVEN: one record covering June 2025
	// WHEN: looking up a date inside the window
	// THEN: that record is returned

	ix := tax.NewIndex[stubRecord]()
	ix.Add("k", stubRecord{name: "june", w: window("2025-06-01", "2025-06-30")})

	rec, err := ix.Lookup("k", date("2025-06-15"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.name != "june" {
		t.Errorf("expected june record, got %q", rec.name)
	}
}

func TestIndex_Lookup_InclusiveBounds(t *testing.T) {
	// GIVEN: a bounded window
	// WHEN: looking up exactly effective_from and exactly effective_to
	// THEN: both dates match (bounds are inclusive)

	ix := tax.NewIndex[stubRecord]()
	ix.Add("k", stubRecord{name: "r", w: window("2025-06-01", "2025-06-30")})

	for _, d := range []string{"2025-06-01", "2025-06-30"} {
		if _, err := ix.Lookup("k", date(d)); err != nil {
			t.Errorf("expected %s inside window, got %v", d, err)
		}
	}
	for _, d := range []string{"2025-05-31", "2025-07-01"} {
		if _, err := ix.Lookup("k", date(d)); !errors.Is(err, tax.ErrNoActiveRecord) {
			t.Errorf("expected %s outside window, got %v", d, err)
		}
	}
}

func TestIndex_Lookup_NoActiveRecord(t *testing.T) {
	// GIVEN: a record whose window ended in 2024
	// WHEN: looking up a 2025 date
	// THEN: ErrNoActiveRecord, not a silent fallback to the stale record

	ix := tax.NewIndex[stubRecord]()
	ix.Add("k", stubRecord{w: window("2024-01-01", "2024-12-31")})

	_, err := ix.Lookup("k", date("2025-03-01"))
	if !errors.Is(err, tax.ErrNoActiveRecord) {
		t.Fatalf("expected ErrNoActiveRecord, got %v", err)
	}
}

func TestIndex_Lookup_UnknownKey(t *testing.T) {
	ix := tax.NewIndex[stubRecord]()
	if _, err := ix.Lookup("missing", tax.NewDate(2025, time.January, 1)); !errors.Is(err, tax.ErrNoActiveRecord) {
		t.Fatalf("expected ErrNoActiveRecord for unknown key, got %v", err)
	}
}

func TestIndex_Lookup_OpenEndedWindow(t *testing.T) {
	// GIVEN: an open-ended window starting 2025-01-01
	// WHEN: looking up a far-future date
	// THEN: the record matches (open = currently active)

	ix := tax.NewIndex[stubRecord]()
	ix.Add("k", stubRecord{name: "open", w: window("2025-01-01", "")})

	rec, err := ix.Lookup("k", date("2031-12-01"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.name != "open" {
		t.Errorf("expected open record, got %q", rec.name)
	}
}

func TestIndex_Lookup_OverlapIsAmbiguous(t *testing.T) {
	// GIVEN: two windows that both cover 2025-06-15
	// WHEN: looking up a date inside the overlap
	// THEN: ErrAmbiguousWindow - overlap is surfaced, never resolved by
	//       a latest-wins heuristic

	ix := tax.NewIndex[stubRecord]()
	ix.Add("k", stubRecord{w: window("2025-01-01", "2025-06-30")})
	ix.Add("k", stubRecord{w: window("2025-06-01", "")})

	_, err := ix.Lookup("k", date("2025-06-15"))
	if !errors.Is(err, tax.ErrAmbiguousWindow) {
		t.Fatalf("expected ErrAmbiguousWindow, got %v", err)
	}

	// A date outside the overlap still resolves.
	if _, err := ix.Lookup("k", date("2025-03-01")); err != nil {
		t.Errorf("date outside overlap should resolve, got %v", err)
	}
}

func TestIndex_Lookup_TwoOpenEndedWindows(t *testing.T) {
	// GIVEN: two open-ended windows for the same key
	// THEN: any date covered by both is ambiguous

	ix := tax.NewIndex[stubRecord]()
	ix.Add("k", stubRecord{w: window("2024-01-01", "")})
	ix.Add("k", stubRecord{w: window("2025-01-01", "")})

	_, err := ix.Lookup("k", date("2025-06-01"))
	if !errors.Is(err, tax.ErrAmbiguousWindow) {
		t.Fatalf("expected ErrAmbiguousWindow, got %v", err)
	}
}

// =============================================================================
// OVERLAP AUDIT
// =============================================================================

func TestIndex_Validate_ReportsOverlaps(t *testing.T) {
	// GIVEN: one key with overlapping windows, one clean key
	// WHEN: validating the index
	// THEN: exactly the overlapping pair is reported

	ix := tax.NewIndex[stubRecord]()
	ix.Add("bad", stubRecord{w: window("2025-01-01", "2025-06-30")})
	ix.Add("bad", stubRecord{w: window("2025-06-01", "2025-12-31")})
	ix.Add("good", stubRecord{w: window("2025-01-01", "2025-06-30")})
	ix.Add("good", stubRecord{w: window("2025-07-01", "")})

	defects := ix.Validate()
	if len(defects) != 1 {
		t.Fatalf("expected 1 defect, got %d: %v", len(defects), defects)
	}
	if defects[0].Key != "bad" {
		t.Errorf("expected defect on key bad, got %q", defects[0].Key)
	}
}

func TestIndex_Validate_AdjacentWindowsAreClean(t *testing.T) {
	// Windows meeting at consecutive days do not overlap.
	ix := tax.NewIndex[stubRecord]()
	ix.Add("k", stubRecord{w: window("2025-01-01", "2025-06-30")})
	ix.Add("k", stubRecord{w: window("2025-07-01", "")})

	if defects := ix.Validate(); len(defects) != 0 {
		t.Fatalf("expected no defects, got %v", defects)
	}
}
