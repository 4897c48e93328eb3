package tax

import (
	"time"
)

// =============================================================================
// DATE - Day-granularity transaction date (tax law is day-resolved)
// =============================================================================

// Date is a calendar day in UTC. Rate schedules, device mappings, and
// transactions are all compared at day granularity; intra-day time is
// irrelevant to effective-dating and is normalized away.
type Date struct {
	Time time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a timestamp to its calendar day in UTC.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{Time: d.Time.AddDate(0, n, 0)} }

// Properties
func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) Day() int          { return d.Time.Day() }
func (d Date) IsZero() bool      { return d.Time.IsZero() }

func (d Date) String() string { return d.Time.Format("2006-01-02") }

// =============================================================================
// WINDOW - Effective-date validity window
// =============================================================================

// Window is an inclusive validity window. A nil To means the record is
// currently active (open-ended).
type Window struct {
	From Date
	To   *Date // nil = currently active
}

// Contains reports whether asOf falls inside the window (inclusive bounds).
func (w Window) Contains(asOf Date) bool {
	if asOf.Before(w.From) {
		return false
	}
	if w.To != nil && asOf.After(*w.To) {
		return false
	}
	return true
}

// Open reports whether the window is open-ended.
func (w Window) Open() bool { return w.To == nil }

// Overlaps reports whether two windows share at least one day.
func (w Window) Overlaps(other Window) bool {
	if w.To != nil && other.From.After(*w.To) {
		return false
	}
	if other.To != nil && w.From.After(*other.To) {
		return false
	}
	return true
}

func (w Window) String() string {
	if w.To == nil {
		return "[" + w.From.String() + ", open)"
	}
	return "[" + w.From.String() + ", " + w.To.String() + "]"
}
