/*
fact.go - Resolution chain and fact/exception emission

PURPOSE:
  For each transaction line, attempts the full resolution chain
  (class -> jurisdiction -> rates -> compute). Full success emits exactly
  one TaxFactRow with complete provenance. Any failure emits exactly one
  ExceptionRow tagged with the earliest blocking reason - class resolution
  is attempted before jurisdiction resolution, so triage sees one
  actionable reason per line, not a pile-up.

STATUS FILTERING:
  Only lines in a completed-sale status (PAID / APPROVED / SUCCESSFUL
  CHARGE) are processed. Other states are non-sales events and are dropped
  before this stage without producing exceptions.

ORDERING:
  Emission order follows the original input order regardless of how the
  batch was partitioned, so identical inputs always produce byte-identical
  output tables.
*/
package tax

import (
	"fmt"
	"sort"
	"sync"
)

// Builder runs the resolution chain over a batch of transaction lines.
type Builder struct {
	Taxability   *TaxabilityResolver
	Jurisdiction *JurisdictionResolver
	Rates        *RateResolver
	Engine       *Engine
}

// NewBuilder wires a builder from one reference snapshot. The snapshot is
// bound once; a builder never observes partial reference edits.
func NewBuilder(s *Snapshot) *Builder {
	return &Builder{
		Taxability:   NewTaxabilityResolver(s.Classes),
		Jurisdiction: NewJurisdictionResolver(s.Mappings, s.ZIPTable, s.AllowZIPFallback),
		Rates:        NewRateResolver(s.Rates, s.RequiredComponents),
		Engine:       NewEngine(s.Exemptions),
	}
}

// BuildResult is the per-batch output pair. Facts and exceptions are each
// ordered by original input position.
type BuildResult struct {
	Facts      []TaxFactRow
	Exceptions []ExceptionRow
}

// Build processes lines in input order, single-threaded.
func (b *Builder) Build(lines []TransactionLine) BuildResult {
	var out BuildResult
	for _, line := range lines {
		fact, exc, processed := b.buildLine(line)
		if !processed {
			continue
		}
		if exc != nil {
			out.Exceptions = append(out.Exceptions, *exc)
		} else {
			out.Facts = append(out.Facts, *fact)
		}
	}
	return out
}

// BuildParallel partitions the batch across workers. Lines are independent
// (no resolver consults another line's outcome), so any partitioning
// yields the same rows; output is re-sorted to input order afterwards.
func (b *Builder) BuildParallel(lines []TransactionLine, workers int) BuildResult {
	if workers < 2 || len(lines) < 2 {
		return b.Build(lines)
	}

	type lineResult struct {
		fact      *TaxFactRow
		exc       *ExceptionRow
		processed bool
	}
	results := make([]lineResult, len(lines))

	var wg sync.WaitGroup
	chunk := (len(lines) + workers - 1) / workers
	for start := 0; start < len(lines); start += chunk {
		end := start + chunk
		if end > len(lines) {
			end = len(lines)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				fact, exc, processed := b.buildLine(lines[i])
				results[i] = lineResult{fact: fact, exc: exc, processed: processed}
			}
		}(start, end)
	}
	wg.Wait()

	var out BuildResult
	for _, r := range results {
		if !r.processed {
			continue
		}
		if r.exc != nil {
			out.Exceptions = append(out.Exceptions, *r.exc)
		} else {
			out.Facts = append(out.Facts, *r.fact)
		}
	}
	sortBySeq(&out)
	return out
}

func sortBySeq(r *BuildResult) {
	sort.SliceStable(r.Facts, func(i, j int) bool { return r.Facts[i].Line.Seq < r.Facts[j].Line.Seq })
	sort.SliceStable(r.Exceptions, func(i, j int) bool { return r.Exceptions[i].Line.Seq < r.Exceptions[j].Line.Seq })
}

// buildLine resolves one line. processed is false when the status filter
// dropped the line (a non-sales event, not an exception).
func (b *Builder) buildLine(line TransactionLine) (fact *TaxFactRow, exc *ExceptionRow, processed bool) {
	if !ProcessableStatuses[line.Status] {
		return nil, nil, false
	}

	if err := validateLine(line); err != nil {
		return nil, exception(line, err), true
	}

	rule, err := b.Taxability.Resolve(line)
	if err != nil {
		return nil, exception(line, err), true
	}

	match, err := b.Jurisdiction.Resolve(line.DeviceID, line.Date)
	if err != nil {
		return nil, exception(line, err), true
	}

	rates, err := b.Rates.Resolve(match.Jurisdiction, line.Date)
	if err != nil {
		return nil, exception(line, err), true
	}

	row := b.Engine.Compute(line, rule, match, rates)
	return &row, nil, true
}

func validateLine(line TransactionLine) error {
	switch {
	case line.DeviceID == "":
		return &ResolutionError{Reason: ReasonInvalidInputRow, Key: "missing device id", AsOf: line.Date, Err: ErrInvalidInputRow}
	case line.Quantity < 0:
		return &ResolutionError{Reason: ReasonInvalidInputRow, Key: fmt.Sprintf("negative quantity %d", line.Quantity), AsOf: line.Date, Err: ErrInvalidInputRow}
	case line.NetSales.IsNegative():
		return &ResolutionError{Reason: ReasonInvalidInputRow, Key: "negative net sales " + line.NetSales.String(), AsOf: line.Date, Err: ErrInvalidInputRow}
	case line.Date.IsZero():
		return &ResolutionError{Reason: ReasonInvalidInputRow, Key: "missing transaction date", AsOf: line.Date, Err: ErrInvalidInputRow}
	}
	return nil
}

func exception(line TransactionLine, err error) *ExceptionRow {
	return &ExceptionRow{Line: line, Reason: ReasonFor(err), Detail: err.Error()}
}
