/*
Package tax computes per-transaction sales tax for vending devices operating
across multiple tax jurisdictions.

PURPOSE:
  This package contains the resolution and computation core: given a batch of
  normalized transaction lines plus an immutable reference snapshot (product
  taxability rules, device-to-jurisdiction mappings, jurisdiction rate
  schedules), it produces a fully attributed tax fact per line, an exception
  ledger for every line that could not be resolved, and the provenance needed
  to audit each decision.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A 2-decimal currency amount backed by decimal.Decimal
  - TaxClassRule: Policy classification of a product class
  - RateComponent: One named slice of a blended rate (state/county/city/...)
  - DeviceMapping: Effective-dated device-to-jurisdiction placement
  - TransactionLine: One immutable sale event
  - TaxFactRow / ExceptionRow: The two mutually exclusive output rows

DESIGN PRINCIPLES:
  1. Immutability: reference tables and input lines are never mutated;
     outputs are regenerated wholesale each run.
  2. Precision: decimal.Decimal everywhere in the money path, no floats.
  3. No silent drops: every processed line lands in exactly one of the fact
     table or the exception table.
  4. Surfaced defects: ambiguous effective windows are reported, never
     resolved by a first-match-wins heuristic.

SEE ALSO:
  - effective.go: Effective-date interval lookup
  - compute.go: Tax math and rounding policy
  - fact.go: Resolution chain and exception emission
*/
package tax

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Currency amount (2-decimal contract at the edges)
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money        { return Money{Value: decimal.NewFromFloat(value)} }
func NewMoneyFromInt(value int64) Money   { return Money{Value: decimal.NewFromInt(value)} }
func MoneyFromDecimal(d decimal.Decimal) Money { return Money{Value: d} }

// MustParseMoney parses a decimal string, returning zero on malformed input.
func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{Value: decimal.Zero}
	}
	return Money{Value: d}
}

func (m Money) Add(b Money) Money              { return Money{Value: m.Value.Add(b.Value)} }
func (m Money) Sub(b Money) Money              { return Money{Value: m.Value.Sub(b.Value)} }
func (m Money) Mul(rate decimal.Decimal) Money { return Money{Value: m.Value.Mul(rate)} }
func (m Money) Neg() Money                     { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool                   { return m.Value.IsZero() }
func (m Money) IsNegative() bool               { return m.Value.IsNegative() }
func (m Money) Equal(b Money) bool             { return m.Value.Equal(b.Value) }

// RoundBank rounds to 2 decimals using round-half-to-even. This is the only
// rounding applied anywhere in the engine; intermediate math stays at full
// precision.
func (m Money) RoundBank() Money { return Money{Value: m.Value.RoundBank(2)} }

func (m Money) String() string { return m.Value.StringFixed(2) }

var ZeroMoney = Money{Value: decimal.Zero}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type DeviceID string
type JurisdictionCode string
type SKU string

// =============================================================================
// TAXABILITY - Policy decision for a product class
// =============================================================================

type Taxability string

const (
	Taxable   Taxability = "taxable"
	Exempt    Taxability = "exempt"
	LocalOnly Taxability = "local_only" // taxed at sub-state components only
)

// =============================================================================
// RATE COMPONENT - One named slice of a blended rate
// =============================================================================

type Component string

const (
	ComponentState   Component = "state"
	ComponentCounty  Component = "county"
	ComponentCity    Component = "city"
	ComponentTransit Component = "transit"
	ComponentSpecial Component = "special"
)

// Components lists all known component types in reporting order.
var Components = []Component{ComponentState, ComponentCounty, ComponentCity, ComponentTransit, ComponentSpecial}

// RateComponent is one effective-dated slice of a jurisdiction's blended
// rate. A rate of exactly zero is a real record (e.g. a state food
// exemption encoded as 0.0), distinct from the component being absent.
type RateComponent struct {
	Jurisdiction JurisdictionCode
	Component    Component
	Rate         decimal.Decimal // non-negative, e.g. 0.029
	Window       Window
}

func (rc RateComponent) EffectiveWindow() Window { return rc.Window }

// =============================================================================
// TAX CLASS RULE - Product-class taxability policy
// =============================================================================

// TaxClassRule is immutable reference data; the rule set is replaced
// wholesale on policy update, never patched in place.
type TaxClassRule struct {
	ClassName    string // normalized key, see NormalizeClass
	Taxability   Taxability
	Notes        string
	LastUpdated  Date
	PolicySource string
}

// =============================================================================
// DEVICE MAPPING - Effective-dated device placement
// =============================================================================

// DeviceMapping places a device in a jurisdiction for a validity window.
// A device accumulates multiple rows over time as it is relocated; windows
// for the same device must not overlap.
type DeviceMapping struct {
	DeviceID     DeviceID
	Jurisdiction JurisdictionCode
	ZIP          string
	Window       Window
}

func (dm DeviceMapping) EffectiveWindow() Window { return dm.Window }

// =============================================================================
// TRANSACTION LINE - One immutable sale event
// =============================================================================

// TransactionStatus values that represent completed sales. Lines in any
// other state are non-sales events and are filtered out before resolution,
// not exceptioned.
var ProcessableStatuses = map[string]bool{
	"PAID":              true,
	"APPROVED":          true,
	"SUCCESSFUL CHARGE": true,
}

type TransactionLine struct {
	Seq         int // original input position, drives output ordering
	DeviceID    DeviceID
	SKU         SKU
	Description string
	Class       string // raw product class from the catalog
	Quantity    int
	NetSales    Money
	Date        Date
	Status      string
}

// =============================================================================
// PROVENANCE - How a fact row was resolved
// =============================================================================

// ResolutionPath identifies which lookup produced the jurisdiction.
type ResolutionPath string

const (
	PathDeviceMapping ResolutionPath = "device_mapping"
	PathZIPFallback   ResolutionPath = "zip_fallback"
)

// Provenance records which rule and which windows matched, so every fact
// row can be traced back to the reference records that produced it.
type Provenance struct {
	ClassRuleKey  string               // normalized class name that matched
	PolicySource  string               // from the matched TaxClassRule
	MappingWindow *Window              // nil when resolved via ZIP fallback
	Path          ResolutionPath
	RateWindows   map[Component]Window // window per applied component
}

// =============================================================================
// OUTPUT ROWS - Fact and exception tables
// =============================================================================

// ComponentTax is one component's contribution to a line's tax.
// Applied is false when the component is categorically excluded (Exempt, or
// the state slice under Local-Only); the rate is retained for audit.
type ComponentTax struct {
	Component Component
	Rate      decimal.Decimal
	Tax       Money // rounded to 2 decimals, independently of the total
	Applied   bool
}

// TaxFactRow is the fully attributed output for one resolved line. Created
// once, never mutated; corrections require a new run.
type TaxFactRow struct {
	Line         TransactionLine
	ClassName    string
	Taxability   Taxability
	Jurisdiction JurisdictionCode
	Components   []ComponentTax
	TaxableGross Money
	ExemptGross  Money
	TotalTax     Money // rounded from the full-precision component sum
	Provenance   Provenance
}

// ExceptionReason is the first blocking failure for a line.
type ExceptionReason string

const (
	ReasonUnmappedClass        ExceptionReason = "unmapped_class"
	ReasonUnmappedJurisdiction ExceptionReason = "unmapped_jurisdiction"
	ReasonNoActiveRate         ExceptionReason = "no_active_rate"
	ReasonAmbiguousWindow      ExceptionReason = "ambiguous_window"
	ReasonInvalidInputRow      ExceptionReason = "invalid_input_row"
)

// ExceptionRow records a line that could not be fully resolved. Such a line
// is excluded from tax totals and must never also appear in the fact table.
type ExceptionRow struct {
	Line   TransactionLine
	Reason ExceptionReason
	Detail string
}
