/*
Package factory loads reference tables and transaction batches from their
externally owned sources into the typed records the tax engine consumes.

PURPOSE:
  The engine is agnostic to storage format; it accepts only typed records.
  This package is the collaborator that bridges CSV exports of the policy
  spreadsheets (and the normalized order feed) into those records.

WHY CSV?
  - The reference tables are authored in spreadsheets by the policy owners
  - CSV exports diff cleanly in version control
  - The upstream workbook/XLSX normalization happens before this layer

COLUMN CONVENTIONS:
  Canonical column names follow the upstream feed (Txn_Date, Device_Number,
  Net_Sales, ...). Common aliases from older exports are accepted
  (Timestamp, Device, Description). A missing required column is a fatal
  precondition: the load fails with tax.ErrInvalidReference before any row
  is processed.

SEE ALSO:
  - parameters.go: Run policy configuration (Parameters.json)
  - tax/snapshot.go: Structural validation of the loaded records
*/
package factory

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/salestax-engine/tax"
)

// =============================================================================
// CSV PLUMBING
// =============================================================================

// table is a parsed CSV with case-insensitive header lookup.
type table struct {
	columns map[string]int
	rows    [][]string
}

func readTable(r io.Reader) (*table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tax.ErrInvalidReference, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty table", tax.ErrInvalidReference)
	}
	columns := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return &table{columns: columns, rows: records[1:]}, nil
}

// col resolves a column by its canonical name or any alias. Returns -1
// when absent; callers decide whether that is fatal.
func (t *table) col(names ...string) int {
	for _, name := range names {
		if i, ok := t.columns[strings.ToLower(name)]; ok {
			return i
		}
	}
	return -1
}

func (t *table) requireCols(names ...string) error {
	var missing []string
	for _, name := range names {
		if t.col(name) < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required columns %v", tax.ErrInvalidReference, missing)
	}
	return nil
}

// requirePresent validates pre-resolved (possibly aliased) columns.
func requirePresent(cols map[string]int) error {
	var missing []string
	for name, i := range cols {
		if i < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing required columns %v", tax.ErrInvalidReference, missing)
	}
	return nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseWindow(fromStr, toStr string, rowNum int) (tax.Window, error) {
	from, err := tax.ParseDate(fromStr)
	if err != nil {
		return tax.Window{}, fmt.Errorf("%w: row %d: bad effective_from %q", tax.ErrInvalidReference, rowNum, fromStr)
	}
	w := tax.Window{From: from}
	if toStr != "" {
		to, err := tax.ParseDate(toStr)
		if err != nil {
			return tax.Window{}, fmt.Errorf("%w: row %d: bad effective_to %q", tax.ErrInvalidReference, rowNum, toStr)
		}
		w.To = &to
	}
	return w, nil
}

// =============================================================================
// TAX CLASS RULES
// =============================================================================

// LoadClassRules parses the product taxability table.
// Required columns: Class, Assumed_Taxability.
func LoadClassRules(r io.Reader) ([]tax.TaxClassRule, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	if err := t.requireCols("Class", "Assumed_Taxability"); err != nil {
		return nil, err
	}
	classCol := t.col("Class")
	taxCol := t.col("Assumed_Taxability")
	notesCol := t.col("Notes")
	updatedCol := t.col("Last_Updated")
	sourceCol := t.col("Policy_Source")

	rules := make([]tax.TaxClassRule, 0, len(t.rows))
	for n, row := range t.rows {
		taxability, err := parseTaxability(cell(row, taxCol))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", tax.ErrInvalidReference, n+2, err)
		}
		rule := tax.TaxClassRule{
			ClassName:    cell(row, classCol),
			Taxability:   taxability,
			Notes:        cell(row, notesCol),
			PolicySource: cell(row, sourceCol),
		}
		if s := cell(row, updatedCol); s != "" {
			if d, err := tax.ParseDate(s); err == nil {
				rule.LastUpdated = d
			}
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseTaxability(s string) (tax.Taxability, error) {
	switch strings.ToLower(strings.Join(strings.Fields(s), " ")) {
	case "taxable":
		return tax.Taxable, nil
	case "exempt":
		return tax.Exempt, nil
	case "local only", "local-only", "local_only":
		return tax.LocalOnly, nil
	}
	return "", fmt.Errorf("unknown taxability %q", s)
}

// =============================================================================
// DEVICE MAPPINGS
// =============================================================================

// LoadDeviceMappings parses the device-to-jurisdiction table.
// Required columns: Device_Number, Jurisdiction_Code, Effective_From.
func LoadDeviceMappings(r io.Reader) ([]tax.DeviceMapping, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	devCol := t.col("Device_Number", "Device")
	jurCol := t.col("Jurisdiction_Code")
	if err := requirePresent(map[string]int{
		"Device_Number":     devCol,
		"Jurisdiction_Code": jurCol,
		"Effective_From":    t.col("Effective_From"),
	}); err != nil {
		return nil, err
	}
	zipCol := t.col("ZIP")
	fromCol := t.col("Effective_From")
	toCol := t.col("Effective_To")

	mappings := make([]tax.DeviceMapping, 0, len(t.rows))
	for n, row := range t.rows {
		w, err := parseWindow(cell(row, fromCol), cell(row, toCol), n+2)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, tax.DeviceMapping{
			DeviceID:     tax.DeviceID(cell(row, devCol)),
			Jurisdiction: tax.JurisdictionCode(cell(row, jurCol)),
			ZIP:          cell(row, zipCol),
			Window:       w,
		})
	}
	return mappings, nil
}

// =============================================================================
// RATE COMPONENTS
// =============================================================================

// LoadRateComponents parses the jurisdiction rate schedule.
// Required columns: Jurisdiction_Code, Component, Rate, Rate_Effective_From.
func LoadRateComponents(r io.Reader) ([]tax.RateComponent, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	if err := t.requireCols("Jurisdiction_Code", "Component", "Rate", "Rate_Effective_From"); err != nil {
		return nil, err
	}
	jurCol := t.col("Jurisdiction_Code")
	compCol := t.col("Component")
	rateCol := t.col("Rate")
	fromCol := t.col("Rate_Effective_From", "Effective_From")
	toCol := t.col("Rate_Effective_To", "Effective_To")

	rates := make([]tax.RateComponent, 0, len(t.rows))
	for n, row := range t.rows {
		rate, err := decimal.NewFromString(cell(row, rateCol))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: bad rate %q", tax.ErrInvalidReference, n+2, cell(row, rateCol))
		}
		w, err := parseWindow(cell(row, fromCol), cell(row, toCol), n+2)
		if err != nil {
			return nil, err
		}
		rates = append(rates, tax.RateComponent{
			Jurisdiction: tax.JurisdictionCode(cell(row, jurCol)),
			Component:    tax.Component(strings.ToLower(cell(row, compCol))),
			Rate:         rate,
			Window:       w,
		})
	}
	return rates, nil
}

// =============================================================================
// ZIP FALLBACK TABLE
// =============================================================================

// LoadZIPTable parses the static ZIP-to-jurisdiction reference.
// Required columns: ZIP, Jurisdiction_Code.
func LoadZIPTable(r io.Reader) (map[string]tax.JurisdictionCode, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	if err := t.requireCols("ZIP", "Jurisdiction_Code"); err != nil {
		return nil, err
	}
	zipCol := t.col("ZIP")
	jurCol := t.col("Jurisdiction_Code")

	zips := make(map[string]tax.JurisdictionCode, len(t.rows))
	for _, row := range t.rows {
		if zip := cell(row, zipCol); zip != "" {
			zips[zip] = tax.JurisdictionCode(cell(row, jurCol))
		}
	}
	return zips, nil
}

// =============================================================================
// TRANSACTION LINES
// =============================================================================

// LoadOrders parses the normalized transaction feed into lines. Seq is
// assigned from file position, which is what output ordering follows.
// Required columns: Txn_Date, Device_Number, SKU, Net_Sales.
func LoadOrders(r io.Reader) ([]tax.TransactionLine, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	dateCol := t.col("Txn_Date", "Timestamp", "Date")
	devCol := t.col("Device_Number", "Device")
	skuCol := t.col("SKU")
	if err := requirePresent(map[string]int{
		"Txn_Date":      dateCol,
		"Device_Number": devCol,
		"SKU":           skuCol,
		"Net_Sales":     t.col("Net_Sales"),
	}); err != nil {
		return nil, err
	}
	descCol := t.col("Product_Desc", "Description")
	classCol := t.col("Class")
	qtyCol := t.col("Qty", "Quantity")
	salesCol := t.col("Net_Sales")
	statusCol := t.col("Status")

	lines := make([]tax.TransactionLine, 0, len(t.rows))
	for n, row := range t.rows {
		d, err := tax.ParseDate(cell(row, dateCol))
		if err != nil {
			return nil, fmt.Errorf("row %d: bad transaction date %q", n+2, cell(row, dateCol))
		}
		qty := 1
		if s := cell(row, qtyCol); s != "" {
			if v, err := strconv.Atoi(s); err == nil {
				qty = v
			}
		}
		// The upstream feed is already filtered to completed sales; a feed
		// without a Status column is treated as all-paid.
		status := "PAID"
		if s := cell(row, statusCol); s != "" {
			status = strings.ToUpper(s)
		}
		lines = append(lines, tax.TransactionLine{
			Seq:         n,
			DeviceID:    tax.DeviceID(cell(row, devCol)),
			SKU:         tax.SKU(cell(row, skuCol)),
			Description: cell(row, descCol),
			Class:       cell(row, classCol),
			Quantity:    qty,
			NetSales:    tax.MustParseMoney(cell(row, salesCol)),
			Date:        d,
			Status:      status,
		})
	}
	return lines, nil
}
