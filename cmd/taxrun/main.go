/*
main.go - Batch pipeline runner

PURPOSE:
  Runs the engine once over CSV inputs and writes the three output tables
  as CSVs. Intended for development, CI, and scheduled filing runs.

INPUTS (under -src):
  orders.csv              Normalized transaction feed
  tax_class.csv           Product taxability rules
  machine_map.csv         Device-to-jurisdiction mappings
  jurisdiction_rates.csv  Effective-dated rate schedule
  zip_jurisdiction.csv    Optional static ZIP fallback table

OUTPUTS (under -out):
  SalesTax_Fact.csv
  SalesTax_Exceptions.csv
  SalesTax_Summary.csv

EXIT STATUS:
  0 on success, 1 on fatal precondition failure (missing file, missing
  required columns, malformed reference data). A coverage failure is not
  fatal - it is reported on stdout and in the summary - but reference
  window defects and unmapped rows are printed for triage.

EXAMPLES:
  ./taxrun -src=testdata -out=exports
  ./taxrun -src=imports -out=exports -params=config/Parameters.json -db=runs.db
*/
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/warp/salestax-engine/factory"
	"github.com/warp/salestax-engine/filing"
	"github.com/warp/salestax-engine/store/sqlite"
	"github.com/warp/salestax-engine/tax"
)

func main() {
	src := flag.String("src", "testdata", "source data folder")
	out := flag.String("out", "exports", "output folder")
	paramsPath := flag.String("params", "", "Parameters.json path (optional)")
	dbPath := flag.String("db", "", "SQLite database to archive the run into (optional)")
	partitions := flag.Int("partitions", 1, "worker partitions for the fact builder")
	flag.Parse()

	if err := run(*src, *out, *paramsPath, *dbPath, *partitions); err != nil {
		log.Fatalf("taxrun: %v", err)
	}
}

func run(src, out, paramsPath, dbPath string, partitions int) error {
	config := filing.Config{Partitions: partitions}
	allowZIPFallback := false
	if paramsPath != "" {
		params, err := factory.LoadParameters(paramsPath)
		if err != nil {
			return err
		}
		config = params.RunConfig()
		config.Partitions = partitions
		allowZIPFallback = params.AllowZIPFallback
	}

	snapshot, lines, err := loadInputs(src, allowZIPFallback)
	if err != nil {
		return err
	}

	runner := filing.NewRunner(snapshot, config)
	result, err := runner.Run(context.Background(), lines)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}
	if err := writeOutputs(out, result); err != nil {
		return err
	}

	if dbPath != "" {
		store, err := sqlite.New(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.SaveRun(context.Background(), result); err != nil {
			return err
		}
	}

	report(result)
	return nil
}

func loadInputs(src string, allowZIPFallback bool) (*tax.Snapshot, []tax.TransactionLine, error) {
	classes, err := loadFile(src, "tax_class.csv", factory.LoadClassRules)
	if err != nil {
		return nil, nil, err
	}
	mappings, err := loadFile(src, "machine_map.csv", factory.LoadDeviceMappings)
	if err != nil {
		return nil, nil, err
	}
	rates, err := loadFile(src, "jurisdiction_rates.csv", factory.LoadRateComponents)
	if err != nil {
		return nil, nil, err
	}
	lines, err := loadFile(src, "orders.csv", factory.LoadOrders)
	if err != nil {
		return nil, nil, err
	}

	// ZIP fallback table is optional; without it the fallback never fires.
	zipTable := map[string]tax.JurisdictionCode{}
	if f, err := os.Open(filepath.Join(src, "zip_jurisdiction.csv")); err == nil {
		defer f.Close()
		zipTable, err = factory.LoadZIPTable(f)
		if err != nil {
			return nil, nil, err
		}
	}

	snapshot, err := tax.NewSnapshot(classes, mappings, rates,
		tax.WithZIPFallback(zipTable, allowZIPFallback))
	if err != nil {
		return nil, nil, err
	}
	return snapshot, lines, nil
}

func loadFile[T any](src, name string, load func(r io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(filepath.Join(src, name))
	if err != nil {
		return zero, fmt.Errorf("source not found: %w", err)
	}
	defer f.Close()
	v, err := load(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// =============================================================================
// OUTPUT WRITERS
// =============================================================================

func writeOutputs(out string, result *filing.RunResult) error {
	if err := writeCSV(filepath.Join(out, "SalesTax_Fact.csv"), factHeader(), factRows(result.Facts)); err != nil {
		return err
	}
	if err := writeCSV(filepath.Join(out, "SalesTax_Exceptions.csv"), exceptionHeader(), exceptionRows(result.Exceptions)); err != nil {
		return err
	}
	return writeCSV(filepath.Join(out, "SalesTax_Summary.csv"), summaryHeader(), summaryRows(result.Summaries))
}

func factHeader() []string {
	h := []string{"Txn_Date", "Device_Number", "SKU", "Product_Desc", "Class", "Qty", "Net_Sales",
		"Taxability", "Jurisdiction_Code", "Taxable_Gross", "Exempt_Gross"}
	for _, c := range tax.Components {
		h = append(h, "Tax_"+string(c))
	}
	h = append(h, "Tax_Total", "Decision_Path")
	return h
}

func factRows(facts []tax.TaxFactRow) [][]string {
	rows := make([][]string, 0, len(facts))
	for _, f := range facts {
		row := []string{
			f.Line.Date.String(), string(f.Line.DeviceID), string(f.Line.SKU), f.Line.Description,
			f.ClassName, fmt.Sprintf("%d", f.Line.Quantity), f.Line.NetSales.String(),
			string(f.Taxability), string(f.Jurisdiction),
			f.TaxableGross.String(), f.ExemptGross.String(),
		}
		byComp := make(map[tax.Component]tax.Money, len(f.Components))
		for _, ct := range f.Components {
			byComp[ct.Component] = ct.Tax
		}
		for _, c := range tax.Components {
			row = append(row, byComp[c].String())
		}
		row = append(row, f.TotalTax.String(), string(f.Provenance.Path))
		rows = append(rows, row)
	}
	return rows
}

func exceptionHeader() []string {
	return []string{"Txn_Date", "Device_Number", "SKU", "Product_Desc", "Reason", "Detail"}
}

func exceptionRows(excs []tax.ExceptionRow) [][]string {
	rows := make([][]string, 0, len(excs))
	for _, e := range excs {
		rows = append(rows, []string{
			e.Line.Date.String(), string(e.Line.DeviceID), string(e.Line.SKU),
			e.Line.Description, string(e.Reason), e.Detail,
		})
	}
	return rows
}

func summaryHeader() []string {
	h := []string{"Jurisdiction_Code", "Device_Number", "Period", "Taxable_Sales", "Exempt_Sales"}
	for _, c := range tax.Components {
		h = append(h, "Tax_"+string(c))
	}
	return append(h, "Tax_Collected", "Fact_Count")
}

func summaryRows(sums []filing.Summary) [][]string {
	rows := make([][]string, 0, len(sums))
	for _, s := range sums {
		row := []string{
			string(s.Key.Jurisdiction), string(s.Key.DeviceID), s.Key.Period,
			s.TaxableSales.String(), s.ExemptSales.String(),
		}
		for _, c := range tax.Components {
			row = append(row, s.ComponentTax[c].String())
		}
		row = append(row, s.TotalTax.String(), fmt.Sprintf("%d", s.FactCount))
		rows = append(rows, row)
	}
	return rows
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// =============================================================================
// CONSOLE REPORT
// =============================================================================

func report(result *filing.RunResult) {
	fmt.Printf("run %s: %d facts, %d exceptions, coverage %.4f",
		result.RunID, len(result.Facts), len(result.Exceptions), result.Coverage.Ratio)
	if result.Coverage.Pass {
		fmt.Println(" (pass)")
	} else {
		fmt.Printf(" (BELOW %.2f THRESHOLD)\n", result.Coverage.Threshold)
	}

	for _, d := range result.Defects {
		fmt.Printf("reference defect: overlapping windows for %s: %s vs %s\n", d.Key, d.First, d.Second)
	}
	for _, e := range result.Exceptions {
		fmt.Printf("exception: %s %s %s: %s\n", e.Line.Date, e.Line.DeviceID, e.Line.SKU, e.Reason)
	}
}
