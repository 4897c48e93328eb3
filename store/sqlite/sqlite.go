/*
Package sqlite provides SQLite-backed persistence for run outputs.

PURPOSE:
  Persists the three output tables of each run (facts, exceptions,
  summaries) together with the run record and the reference-data audit
  findings. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  Runs are immutable once saved:
  - No UPDATE statements on any run output table
  - No DELETE statements on any run output table
  - Corrections are a new run, never an edit

KEY TABLES:
  runs:            One row per engine run with coverage and counts
  fact_rows:       Per-line tax facts, ordered by original input position
  exception_rows:  Per-line resolution failures, same ordering
  summary_rows:    Jurisdiction/device/period roll-ups
  audit_defects:   Reference-data window overlaps found during the run

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't block
  while a run is being saved.

USAGE:
  st, err := sqlite.New("./data/salestax.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()
  err = st.SaveRun(ctx, result)

SEE ALSO:
  - filing/run.go: Produces the RunResult saved here
  - api/handlers.go: Serves persisted runs over HTTP
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/salestax-engine/filing"
	"github.com/warp/salestax-engine/tax"
)

// Store persists run outputs in SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a store at dbPath. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Runs (immutable; one row per engine execution)
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		fact_count INTEGER NOT NULL,
		exception_count INTEGER NOT NULL,
		coverage REAL NOT NULL,
		coverage_pass INTEGER NOT NULL,
		defect_count INTEGER NOT NULL
	);

	-- Per-line tax facts
	CREATE TABLE IF NOT EXISTS fact_rows (
		run_id TEXT NOT NULL REFERENCES runs(id),
		seq INTEGER NOT NULL,
		device_id TEXT NOT NULL,
		sku TEXT NOT NULL,
		description TEXT,
		class_name TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		net_sales TEXT NOT NULL,
		txn_date TEXT NOT NULL,
		taxability TEXT NOT NULL,
		jurisdiction TEXT NOT NULL,
		taxable_gross TEXT NOT NULL,
		exempt_gross TEXT NOT NULL,
		total_tax TEXT NOT NULL,
		components_json TEXT NOT NULL,
		provenance_json TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	-- Per-line resolution failures
	CREATE TABLE IF NOT EXISTS exception_rows (
		run_id TEXT NOT NULL REFERENCES runs(id),
		seq INTEGER NOT NULL,
		device_id TEXT NOT NULL,
		sku TEXT,
		description TEXT,
		txn_date TEXT NOT NULL,
		reason TEXT NOT NULL,
		detail TEXT,
		PRIMARY KEY (run_id, seq)
	);

	-- Jurisdiction/device/period roll-ups
	CREATE TABLE IF NOT EXISTS summary_rows (
		run_id TEXT NOT NULL REFERENCES runs(id),
		jurisdiction TEXT NOT NULL,
		device_id TEXT NOT NULL,
		period TEXT NOT NULL,
		taxable_sales TEXT NOT NULL,
		exempt_sales TEXT NOT NULL,
		total_tax TEXT NOT NULL,
		component_tax_json TEXT NOT NULL,
		fact_count INTEGER NOT NULL,
		PRIMARY KEY (run_id, jurisdiction, device_id, period)
	);

	-- Reference-data audit findings
	CREATE TABLE IF NOT EXISTS audit_defects (
		run_id TEXT NOT NULL REFERENCES runs(id),
		defect_key TEXT NOT NULL,
		first_window TEXT NOT NULL,
		second_window TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fact_rows_run ON fact_rows(run_id);
	CREATE INDEX IF NOT EXISTS idx_exception_rows_run ON exception_rows(run_id);
	CREATE INDEX IF NOT EXISTS idx_summary_rows_jur ON summary_rows(run_id, jurisdiction);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORD TYPES - Store-level rows returned by queries
// =============================================================================

// RunRecord is the persisted run header.
type RunRecord struct {
	ID             string
	StartedAt      time.Time
	FactCount      int
	ExceptionCount int
	Coverage       float64
	CoveragePass   bool
	DefectCount    int
}

// ComponentJSON is the persisted form of one component's contribution.
type ComponentJSON struct {
	Component string `json:"component"`
	Rate      string `json:"rate"`
	Tax       string `json:"tax"`
	Applied   bool   `json:"applied"`
}

// ProvenanceJSON is the persisted provenance trail.
type ProvenanceJSON struct {
	ClassRuleKey  string            `json:"class_rule_key"`
	PolicySource  string            `json:"policy_source,omitempty"`
	Path          string            `json:"path"`
	MappingWindow string            `json:"mapping_window,omitempty"`
	RateWindows   map[string]string `json:"rate_windows"`
}

// FactRecord is one persisted fact row.
type FactRecord struct {
	RunID        string
	Seq          int
	DeviceID     string
	SKU          string
	Description  string
	ClassName    string
	Quantity     int
	NetSales     string
	TxnDate      string
	Taxability   string
	Jurisdiction string
	TaxableGross string
	ExemptGross  string
	TotalTax     string
	Components   []ComponentJSON
	Provenance   ProvenanceJSON
}

// ExceptionRecord is one persisted exception row.
type ExceptionRecord struct {
	RunID       string
	Seq         int
	DeviceID    string
	SKU         string
	Description string
	TxnDate     string
	Reason      string
	Detail      string
}

// SummaryRecord is one persisted roll-up row.
type SummaryRecord struct {
	RunID        string
	Jurisdiction string
	DeviceID     string
	Period       string
	TaxableSales string
	ExemptSales  string
	TotalTax     string
	ComponentTax map[string]string
	FactCount    int
}

// =============================================================================
// SAVE RUN - Atomic persistence of one run's outputs
// =============================================================================

// SaveRun persists a run and all three output tables in one transaction.
// Either the whole run lands or none of it does.
func (s *Store) SaveRun(ctx context.Context, result *filing.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbtx.Rollback()

	pass := 0
	if result.Coverage.Pass {
		pass = 1
	}
	_, err = dbtx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, fact_count, exception_count, coverage, coverage_pass, defect_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.RunID, result.StartedAt.Format(time.RFC3339),
		len(result.Facts), len(result.Exceptions),
		result.Coverage.Ratio, pass, len(result.Defects))
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	factStmt, err := dbtx.PrepareContext(ctx,
		`INSERT INTO fact_rows (run_id, seq, device_id, sku, description, class_name, quantity,
		 net_sales, txn_date, taxability, jurisdiction, taxable_gross, exempt_gross, total_tax,
		 components_json, provenance_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer factStmt.Close()

	for _, row := range result.Facts {
		compsJSON, provJSON, err := marshalFact(row)
		if err != nil {
			return err
		}
		_, err = factStmt.ExecContext(ctx,
			result.RunID, row.Line.Seq, string(row.Line.DeviceID), string(row.Line.SKU),
			row.Line.Description, row.ClassName, row.Line.Quantity,
			row.Line.NetSales.String(), row.Line.Date.String(),
			string(row.Taxability), string(row.Jurisdiction),
			row.TaxableGross.String(), row.ExemptGross.String(), row.TotalTax.String(),
			compsJSON, provJSON)
		if err != nil {
			return fmt.Errorf("save fact row %d: %w", row.Line.Seq, err)
		}
	}

	for _, row := range result.Exceptions {
		_, err = dbtx.ExecContext(ctx,
			`INSERT INTO exception_rows (run_id, seq, device_id, sku, description, txn_date, reason, detail)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			result.RunID, row.Line.Seq, string(row.Line.DeviceID), string(row.Line.SKU),
			row.Line.Description, row.Line.Date.String(), string(row.Reason), row.Detail)
		if err != nil {
			return fmt.Errorf("save exception row %d: %w", row.Line.Seq, err)
		}
	}

	for _, sum := range result.Summaries {
		compTax := make(map[string]string, len(sum.ComponentTax))
		for comp, amt := range sum.ComponentTax {
			compTax[string(comp)] = amt.String()
		}
		compTaxJSON, err := json.Marshal(compTax)
		if err != nil {
			return err
		}
		_, err = dbtx.ExecContext(ctx,
			`INSERT INTO summary_rows (run_id, jurisdiction, device_id, period, taxable_sales,
			 exempt_sales, total_tax, component_tax_json, fact_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			result.RunID, string(sum.Key.Jurisdiction), string(sum.Key.DeviceID), sum.Key.Period,
			sum.TaxableSales.String(), sum.ExemptSales.String(), sum.TotalTax.String(),
			string(compTaxJSON), sum.FactCount)
		if err != nil {
			return fmt.Errorf("save summary row: %w", err)
		}
	}

	for _, d := range result.Defects {
		_, err = dbtx.ExecContext(ctx,
			`INSERT INTO audit_defects (run_id, defect_key, first_window, second_window)
			 VALUES (?, ?, ?, ?)`,
			result.RunID, d.Key, d.First.String(), d.Second.String())
		if err != nil {
			return fmt.Errorf("save audit defect: %w", err)
		}
	}

	return dbtx.Commit()
}

func marshalFact(row tax.TaxFactRow) (string, string, error) {
	comps := make([]ComponentJSON, 0, len(row.Components))
	for _, ct := range row.Components {
		comps = append(comps, ComponentJSON{
			Component: string(ct.Component),
			Rate:      ct.Rate.String(),
			Tax:       ct.Tax.String(),
			Applied:   ct.Applied,
		})
	}
	compsJSON, err := json.Marshal(comps)
	if err != nil {
		return "", "", err
	}

	prov := ProvenanceJSON{
		ClassRuleKey: row.Provenance.ClassRuleKey,
		PolicySource: row.Provenance.PolicySource,
		Path:         string(row.Provenance.Path),
		RateWindows:  make(map[string]string, len(row.Provenance.RateWindows)),
	}
	if row.Provenance.MappingWindow != nil {
		prov.MappingWindow = row.Provenance.MappingWindow.String()
	}
	for comp, w := range row.Provenance.RateWindows {
		prov.RateWindows[string(comp)] = w.String()
	}
	provJSON, err := json.Marshal(prov)
	if err != nil {
		return "", "", err
	}
	return string(compsJSON), string(provJSON), nil
}

// =============================================================================
// QUERIES - Read-only access to persisted runs
// =============================================================================

// GetRun returns a run header, or nil when the run does not exist.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, fact_count, exception_count, coverage, coverage_pass, defect_count
		 FROM runs WHERE id = ?`, runID)
	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRuns returns run headers, most recent first.
func (s *Store) ListRuns(ctx context.Context) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, fact_count, exception_count, coverage, coverage_pass, defect_count
		 FROM runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*RunRecord, error) {
	var rec RunRecord
	var startedAt string
	var pass int
	if err := sc.Scan(&rec.ID, &startedAt, &rec.FactCount, &rec.ExceptionCount,
		&rec.Coverage, &pass, &rec.DefectCount); err != nil {
		return nil, err
	}
	rec.CoveragePass = pass == 1
	if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
		rec.StartedAt = t
	}
	return &rec, nil
}

// LoadFacts returns a run's fact table in original input order.
func (s *Store) LoadFacts(ctx context.Context, runID string) ([]FactRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, device_id, sku, description, class_name, quantity, net_sales,
		 txn_date, taxability, jurisdiction, taxable_gross, exempt_gross, total_tax,
		 components_json, provenance_json
		 FROM fact_rows WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FactRecord
	for rows.Next() {
		var rec FactRecord
		var compsJSON, provJSON string
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.DeviceID, &rec.SKU, &rec.Description,
			&rec.ClassName, &rec.Quantity, &rec.NetSales, &rec.TxnDate, &rec.Taxability,
			&rec.Jurisdiction, &rec.TaxableGross, &rec.ExemptGross, &rec.TotalTax,
			&compsJSON, &provJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(compsJSON), &rec.Components); err != nil {
			return nil, fmt.Errorf("fact row %d: %w", rec.Seq, err)
		}
		if err := json.Unmarshal([]byte(provJSON), &rec.Provenance); err != nil {
			return nil, fmt.Errorf("fact row %d: %w", rec.Seq, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LoadExceptions returns a run's exception table in original input order.
func (s *Store) LoadExceptions(ctx context.Context, runID string) ([]ExceptionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, device_id, sku, description, txn_date, reason, detail
		 FROM exception_rows WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExceptionRecord
	for rows.Next() {
		var rec ExceptionRecord
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.DeviceID, &rec.SKU, &rec.Description,
			&rec.TxnDate, &rec.Reason, &rec.Detail); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LoadSummaries returns a run's roll-ups sorted by jurisdiction, device, period.
func (s *Store) LoadSummaries(ctx context.Context, runID string) ([]SummaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, jurisdiction, device_id, period, taxable_sales, exempt_sales,
		 total_tax, component_tax_json, fact_count
		 FROM summary_rows WHERE run_id = ? ORDER BY jurisdiction, device_id, period`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SummaryRecord
	for rows.Next() {
		var rec SummaryRecord
		var compTaxJSON string
		if err := rows.Scan(&rec.RunID, &rec.Jurisdiction, &rec.DeviceID, &rec.Period,
			&rec.TaxableSales, &rec.ExemptSales, &rec.TotalTax, &compTaxJSON, &rec.FactCount); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(compTaxJSON), &rec.ComponentTax); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
