/*
run.go - Run orchestration

PURPOSE:
  A Run binds exactly one reference snapshot and one transaction batch,
  executes the fact builder and the aggregator, and packages the three
  output tables with the coverage metric and the reference-data audit.

GUARANTEES:
  - A run always completes: per-line failures land in the exception table,
    never abort the batch. The only aborts are reference conformance
    failures, which happen in tax.NewSnapshot before a Runner exists.
  - Outputs are fully regenerated each run, never patched, so two runs on
    identical inputs produce byte-identical tables (the RunID and timestamp
    identify the run record itself and are not part of the tables).
*/
package filing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/warp/salestax-engine/tax"
)

// Config carries the externally supplied run policy.
type Config struct {
	Frequency         Frequency
	CoverageThreshold float64 // 0 means the 0.99 default
	Partitions        int     // <2 means single-threaded
}

// DefaultCoverageThreshold is the filing policy gate.
const DefaultCoverageThreshold = 0.99

// Runner executes runs against one bound snapshot.
type Runner struct {
	snapshot *tax.Snapshot
	builder  *tax.Builder
	config   Config
}

func NewRunner(snapshot *tax.Snapshot, config Config) *Runner {
	if config.Frequency == "" {
		config.Frequency = Monthly
	}
	if config.CoverageThreshold == 0 {
		config.CoverageThreshold = DefaultCoverageThreshold
	}
	return &Runner{snapshot: snapshot, builder: tax.NewBuilder(snapshot), config: config}
}

// RunResult is everything a run produces.
type RunResult struct {
	RunID      string
	StartedAt  time.Time
	Facts      []tax.TaxFactRow
	Exceptions []tax.ExceptionRow
	Summaries  []Summary
	Coverage   Coverage

	// Defects are audit-level warnings about the reference data itself
	// (overlapping effective windows). They are escalated to the reference
	// data owner separately from the per-line exception ledger.
	Defects []tax.WindowDefect
}

// Run processes one batch. Cancellation is checked between phases only;
// the core performs no I/O, so a partition that has started computing
// finishes, and its rows remain valid.
func (r *Runner) Run(ctx context.Context, lines []tax.TransactionLine) (*RunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Defects:   r.snapshot.Audit(),
	}

	build := r.builder.BuildParallel(lines, r.config.Partitions)
	result.Facts = build.Facts
	result.Exceptions = build.Exceptions

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.Summaries, result.Coverage = Aggregate(
		r.config.Frequency, build.Facts, len(build.Exceptions), r.config.CoverageThreshold)

	return result, nil
}
