/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract: dates travel
  as YYYY-MM-DD strings and money as fixed 2-decimal strings, which is the
  bit-exact form downstream filing exports consume.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and in tax.NewSnapshot, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/reference.go: The CSV equivalent of the same records
*/
package api

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/salestax-engine/filing"
	"github.com/warp/salestax-engine/tax"
)

// =============================================================================
// REFERENCE SNAPSHOT REQUEST
// =============================================================================

// ClassRuleDTO is one product taxability rule.
type ClassRuleDTO struct {
	Class        string `json:"class"`
	Taxability   string `json:"taxability"` // taxable | exempt | local_only
	Notes        string `json:"notes,omitempty"`
	LastUpdated  string `json:"last_updated,omitempty"`
	PolicySource string `json:"policy_source,omitempty"`
}

// DeviceMappingDTO is one effective-dated device placement.
type DeviceMappingDTO struct {
	DeviceID      string `json:"device_id"`
	Jurisdiction  string `json:"jurisdiction_code"`
	ZIP           string `json:"zip,omitempty"`
	EffectiveFrom string `json:"effective_from"`
	EffectiveTo   string `json:"effective_to,omitempty"` // empty = currently active
}

// RateComponentDTO is one effective-dated rate slice.
type RateComponentDTO struct {
	Jurisdiction  string `json:"jurisdiction_code"`
	Component     string `json:"component"`
	Rate          string `json:"rate"` // decimal string, e.g. "0.029"
	EffectiveFrom string `json:"effective_from"`
	EffectiveTo   string `json:"effective_to,omitempty"`
}

// LoadReferenceRequest replaces the bound reference snapshot wholesale.
type LoadReferenceRequest struct {
	Classes          []ClassRuleDTO     `json:"classes"`
	Mappings         []DeviceMappingDTO `json:"device_mappings"`
	Rates            []RateComponentDTO `json:"rate_components"`
	ZIPTable         map[string]string  `json:"zip_table,omitempty"`
	AllowZIPFallback bool               `json:"allow_zip_fallback"`
}

// LoadReferenceResponse reports the bound snapshot and its audit findings.
type LoadReferenceResponse struct {
	Classes  int         `json:"classes"`
	Mappings int         `json:"device_mappings"`
	Rates    int         `json:"rate_components"`
	Defects  []DefectDTO `json:"defects,omitempty"`
}

// DefectDTO is one reference-data window overlap.
type DefectDTO struct {
	Key    string `json:"key"`
	First  string `json:"first_window"`
	Second string `json:"second_window"`
}

// =============================================================================
// RUN REQUEST / RESPONSE
// =============================================================================

// TransactionLineDTO is one input sale event.
type TransactionLineDTO struct {
	DeviceID    string `json:"device_id"`
	SKU         string `json:"sku"`
	Description string `json:"description,omitempty"`
	Class       string `json:"class"`
	Quantity    int    `json:"quantity"`
	NetSales    string `json:"net_sales"`
	Date        string `json:"txn_date"`
	Status      string `json:"status"`
}

// SubmitRunRequest is a transaction batch to process.
type SubmitRunRequest struct {
	Lines []TransactionLineDTO `json:"lines"`
}

// RunDTO is a run header with its coverage gate.
type RunDTO struct {
	ID             string  `json:"id"`
	StartedAt      string  `json:"started_at"`
	FactCount      int     `json:"fact_count"`
	ExceptionCount int     `json:"exception_count"`
	Coverage       float64 `json:"coverage"`
	CoveragePass   bool    `json:"coverage_pass"`
	DefectCount    int     `json:"defect_count"`
}

// =============================================================================
// DTO -> DOMAIN CONVERSIONS
// =============================================================================

func (r *LoadReferenceRequest) toSnapshot() (*tax.Snapshot, error) {
	classes := make([]tax.TaxClassRule, 0, len(r.Classes))
	for _, c := range r.Classes {
		taxability, err := parseTaxability(c.Taxability)
		if err != nil {
			return nil, fmt.Errorf("class %q: %w", c.Class, err)
		}
		rule := tax.TaxClassRule{
			ClassName:    c.Class,
			Taxability:   taxability,
			Notes:        c.Notes,
			PolicySource: c.PolicySource,
		}
		if c.LastUpdated != "" {
			d, err := tax.ParseDate(c.LastUpdated)
			if err != nil {
				return nil, fmt.Errorf("class %q: bad last_updated: %w", c.Class, err)
			}
			rule.LastUpdated = d
		}
		classes = append(classes, rule)
	}

	mappings := make([]tax.DeviceMapping, 0, len(r.Mappings))
	for _, m := range r.Mappings {
		w, err := parseWindow(m.EffectiveFrom, m.EffectiveTo)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", m.DeviceID, err)
		}
		mappings = append(mappings, tax.DeviceMapping{
			DeviceID:     tax.DeviceID(m.DeviceID),
			Jurisdiction: tax.JurisdictionCode(m.Jurisdiction),
			ZIP:          m.ZIP,
			Window:       w,
		})
	}

	rates := make([]tax.RateComponent, 0, len(r.Rates))
	for _, rc := range r.Rates {
		rate, err := decimal.NewFromString(rc.Rate)
		if err != nil {
			return nil, fmt.Errorf("rate %s/%s: bad rate %q", rc.Jurisdiction, rc.Component, rc.Rate)
		}
		w, err := parseWindow(rc.EffectiveFrom, rc.EffectiveTo)
		if err != nil {
			return nil, fmt.Errorf("rate %s/%s: %w", rc.Jurisdiction, rc.Component, err)
		}
		rates = append(rates, tax.RateComponent{
			Jurisdiction: tax.JurisdictionCode(rc.Jurisdiction),
			Component:    tax.Component(rc.Component),
			Rate:         rate,
			Window:       w,
		})
	}

	zipTable := make(map[string]tax.JurisdictionCode, len(r.ZIPTable))
	for zip, jur := range r.ZIPTable {
		zipTable[zip] = tax.JurisdictionCode(jur)
	}

	return tax.NewSnapshot(classes, mappings, rates,
		tax.WithZIPFallback(zipTable, r.AllowZIPFallback))
}

func parseTaxability(s string) (tax.Taxability, error) {
	switch tax.Taxability(s) {
	case tax.Taxable, tax.Exempt, tax.LocalOnly:
		return tax.Taxability(s), nil
	}
	return "", fmt.Errorf("unknown taxability %q", s)
}

func parseWindow(from, to string) (tax.Window, error) {
	f, err := tax.ParseDate(from)
	if err != nil {
		return tax.Window{}, fmt.Errorf("bad effective_from %q", from)
	}
	w := tax.Window{From: f}
	if to != "" {
		t, err := tax.ParseDate(to)
		if err != nil {
			return tax.Window{}, fmt.Errorf("bad effective_to %q", to)
		}
		w.To = &t
	}
	return w, nil
}

func (r *SubmitRunRequest) toLines() ([]tax.TransactionLine, error) {
	lines := make([]tax.TransactionLine, 0, len(r.Lines))
	for i, l := range r.Lines {
		d, err := tax.ParseDate(l.Date)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad txn_date %q", i, l.Date)
		}
		lines = append(lines, tax.TransactionLine{
			Seq:         i,
			DeviceID:    tax.DeviceID(l.DeviceID),
			SKU:         tax.SKU(l.SKU),
			Description: l.Description,
			Class:       l.Class,
			Quantity:    l.Quantity,
			NetSales:    tax.MustParseMoney(l.NetSales),
			Date:        d,
			Status:      l.Status,
		})
	}
	return lines, nil
}

func runDTO(result *filing.RunResult) RunDTO {
	return RunDTO{
		ID:             result.RunID,
		StartedAt:      result.StartedAt.Format("2006-01-02T15:04:05Z"),
		FactCount:      len(result.Facts),
		ExceptionCount: len(result.Exceptions),
		Coverage:       result.Coverage.Ratio,
		CoveragePass:   result.Coverage.Pass,
		DefectCount:    len(result.Defects),
	}
}

func defectDTOs(defects []tax.WindowDefect) []DefectDTO {
	out := make([]DefectDTO, 0, len(defects))
	for _, d := range defects {
		out = append(out, DefectDTO{Key: d.Key, First: d.First.String(), Second: d.Second.String()})
	}
	return out
}
