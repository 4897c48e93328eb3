// Package filing rolls per-line tax facts up into the per-jurisdiction,
// per-device, per-period summaries that government filings are built from.
// It consumes the tax package's outputs and owns the filing-period calendar,
// the aggregation fold, and the coverage gate.
package filing

import (
	"fmt"
	"time"

	"github.com/warp/salestax-engine/tax"
)

// =============================================================================
// FILING PERIOD - The reporting calendar
// =============================================================================

// Frequency is how often the jurisdiction requires filing.
type Frequency string

const (
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Annual    Frequency = "annual"
)

// ParseFrequency accepts the Parameters file spellings.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(s) {
	case Monthly, Quarterly, Annual:
		return Frequency(s), nil
	}
	return "", fmt.Errorf("unknown filing frequency %q", s)
}

// Period is one filing period. Key is stable and sortable
// ("2025-06", "2025-Q2", "2025") and is what summaries group by.
type Period struct {
	Key   string
	Start tax.Date
	End   tax.Date
}

// PeriodFor returns the filing period containing a transaction date.
func PeriodFor(freq Frequency, d tax.Date) Period {
	year := d.Year()
	switch freq {
	case Quarterly:
		q := (int(d.Month())-1)/3 + 1
		start := tax.NewDate(year, time.Month((q-1)*3+1), 1)
		end := start.AddMonths(3).AddDays(-1)
		return Period{Key: fmt.Sprintf("%d-Q%d", year, q), Start: start, End: end}
	case Annual:
		return Period{
			Key:   fmt.Sprintf("%d", year),
			Start: tax.NewDate(year, time.January, 1),
			End:   tax.NewDate(year, time.December, 31),
		}
	default: // Monthly
		start := tax.NewDate(year, d.Month(), 1)
		end := start.AddMonths(1).AddDays(-1)
		return Period{Key: fmt.Sprintf("%d-%02d", year, int(d.Month())), Start: start, End: end}
	}
}
