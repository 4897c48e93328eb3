package tax_test

import (
	"testing"
	"time"

	"github.com/warp/salestax-engine/tax"
)

func TestDate_Comparisons(t *testing.T) {
	a := tax.NewDate(2025, time.June, 15)
	b := tax.NewDate(2025, time.June, 16)

	if !a.Before(b) || b.Before(a) {
		t.Error("Before")
	}
	if !a.Equal(tax.NewDate(2025, time.June, 15)) {
		t.Error("Equal")
	}
	if !a.BeforeOrEqual(a) || !a.AfterOrEqual(a) {
		t.Error("inclusive comparisons must accept equal dates")
	}
}

func TestDate_NormalizesTimeOfDay(t *testing.T) {
	// Two timestamps on the same calendar day are the same Date.
	morning := tax.DateOf(time.Date(2025, 6, 15, 8, 30, 0, 0, time.UTC))
	evening := tax.DateOf(time.Date(2025, 6, 15, 23, 59, 59, 0, time.UTC))
	if !morning.Equal(evening) {
		t.Error("dates on the same day must compare equal regardless of time")
	}
}

func TestDate_Arithmetic(t *testing.T) {
	d := tax.NewDate(2025, time.January, 31)
	if got := d.AddDays(1).String(); got != "2025-02-01" {
		t.Errorf("AddDays = %s", got)
	}
	if got := tax.NewDate(2025, time.June, 1).AddMonths(1).AddDays(-1).String(); got != "2025-06-30" {
		t.Errorf("month-end arithmetic = %s", got)
	}
}

func TestParseDate(t *testing.T) {
	d, err := tax.ParseDate("2025-06-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "2025-06-15" {
		t.Errorf("round trip = %s", d.String())
	}

	if _, err := tax.ParseDate("June 15, 2025"); err == nil {
		t.Error("expected error for non-ISO date")
	}
}

func TestWindow_Contains(t *testing.T) {
	w := window("2025-06-01", "2025-06-30")
	for _, tc := range []struct {
		d    string
		want bool
	}{
		{"2025-05-31", false},
		{"2025-06-01", true},
		{"2025-06-30", true},
		{"2025-07-01", false},
	} {
		if got := w.Contains(date(tc.d)); got != tc.want {
			t.Errorf("Contains(%s) = %v, want %v", tc.d, got, tc.want)
		}
	}

	open := window("2025-06-01", "")
	if !open.Contains(date("2031-01-01")) {
		t.Error("open window must contain any later date")
	}
	if !open.Open() {
		t.Error("Open")
	}
}

func TestWindow_Overlaps(t *testing.T) {
	for _, tc := range []struct {
		a, b tax.Window
		want bool
	}{
		{window("2025-01-01", "2025-06-30"), window("2025-06-30", "2025-12-31"), true}, // shared day
		{window("2025-01-01", "2025-06-30"), window("2025-07-01", "2025-12-31"), false},
		{window("2025-01-01", ""), window("2025-06-01", ""), true},
		{window("2025-01-01", "2025-03-31"), window("2025-06-01", ""), false},
	} {
		if got := tc.a.Overlaps(tc.b); got != tc.want {
			t.Errorf("Overlaps(%s, %s) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
		if got := tc.b.Overlaps(tc.a); got != tc.want {
			t.Errorf("Overlaps must be symmetric for %s, %s", tc.a, tc.b)
		}
	}
}
