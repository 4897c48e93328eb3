/*
summary.go - Jurisdiction/device/period roll-up

PURPOSE:
  Folds fact rows into filing summaries: taxable sales, exempt sales, total
  tax, and per-component subtotals per (jurisdiction, device, period), plus
  the batch coverage metric.

PARTITION INVARIANCE:
  The fold is a plain sum, so it is associative and commutative: folding
  any partitioning of the fact rows into Partials and merging them yields
  the same totals as a single pass. This is what makes parallel aggregation
  safe, and it is pinned by tests.

COVERAGE:
  coverage = facts / (facts + exceptions). It is a pass/fail signal against
  a policy threshold (99% by default) and is exposed verbatim; the engine
  never swallows it.
*/
package filing

import (
	"sort"

	"github.com/warp/salestax-engine/tax"
)

// =============================================================================
// SUMMARY ROWS
// =============================================================================

// Key identifies one summary bucket.
type Key struct {
	Jurisdiction tax.JurisdictionCode
	DeviceID     tax.DeviceID
	Period       string // Period.Key
}

// Summary is the roll-up for one bucket.
type Summary struct {
	Key          Key
	TaxableSales tax.Money
	ExemptSales  tax.Money
	TotalTax     tax.Money
	ComponentTax map[tax.Component]tax.Money
	FactCount    int
}

// Coverage is the fraction of processed lines that resolved to a fact.
type Coverage struct {
	FactCount      int
	ExceptionCount int
	Ratio          float64 // 1.0 when the batch is empty
	Threshold      float64
	Pass           bool
}

// =============================================================================
// PARTIAL - Mergeable aggregation state
// =============================================================================

// Partial is intermediate aggregation state. Merging partials is
// order-independent; see the package comment.
type Partial struct {
	buckets map[Key]*Summary
}

func NewPartial() *Partial {
	return &Partial{buckets: make(map[Key]*Summary)}
}

// Fold adds one fact row to the partial.
func (p *Partial) Fold(freq Frequency, row tax.TaxFactRow) {
	k := Key{
		Jurisdiction: row.Jurisdiction,
		DeviceID:     row.Line.DeviceID,
		Period:       PeriodFor(freq, row.Line.Date).Key,
	}
	s, ok := p.buckets[k]
	if !ok {
		s = &Summary{Key: k, ComponentTax: make(map[tax.Component]tax.Money)}
		p.buckets[k] = s
	}
	s.TaxableSales = s.TaxableSales.Add(row.TaxableGross)
	s.ExemptSales = s.ExemptSales.Add(row.ExemptGross)
	s.TotalTax = s.TotalTax.Add(row.TotalTax)
	s.FactCount++
	for _, ct := range row.Components {
		s.ComponentTax[ct.Component] = s.ComponentTax[ct.Component].Add(ct.Tax)
	}
}

// Merge absorbs another partial. Both operands may be folded further.
func (p *Partial) Merge(other *Partial) {
	for k, o := range other.buckets {
		s, ok := p.buckets[k]
		if !ok {
			s = &Summary{Key: k, ComponentTax: make(map[tax.Component]tax.Money)}
			p.buckets[k] = s
		}
		s.TaxableSales = s.TaxableSales.Add(o.TaxableSales)
		s.ExemptSales = s.ExemptSales.Add(o.ExemptSales)
		s.TotalTax = s.TotalTax.Add(o.TotalTax)
		s.FactCount += o.FactCount
		for comp, amt := range o.ComponentTax {
			s.ComponentTax[comp] = s.ComponentTax[comp].Add(amt)
		}
	}
}

// Summaries returns the buckets sorted by (jurisdiction, device, period)
// so identical inputs always produce identical output tables.
func (p *Partial) Summaries() []Summary {
	out := make([]Summary, 0, len(p.buckets))
	for _, s := range p.buckets {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key
		if a.Jurisdiction != b.Jurisdiction {
			return a.Jurisdiction < b.Jurisdiction
		}
		if a.DeviceID != b.DeviceID {
			return a.DeviceID < b.DeviceID
		}
		return a.Period < b.Period
	})
	return out
}

// =============================================================================
// AGGREGATE - Single-pass entry point
// =============================================================================

// Aggregate folds a fact table in one pass and computes coverage against
// the threshold.
func Aggregate(freq Frequency, facts []tax.TaxFactRow, exceptionCount int, threshold float64) ([]Summary, Coverage) {
	p := NewPartial()
	for _, row := range facts {
		p.Fold(freq, row)
	}

	cov := Coverage{
		FactCount:      len(facts),
		ExceptionCount: exceptionCount,
		Threshold:      threshold,
		Ratio:          1.0,
	}
	if total := cov.FactCount + cov.ExceptionCount; total > 0 {
		cov.Ratio = float64(cov.FactCount) / float64(total)
	}
	cov.Pass = cov.Ratio >= threshold

	return p.Summaries(), cov
}
