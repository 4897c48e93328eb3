/*
compute.go - Tax computation and rounding policy

PURPOSE:
  Combines a resolved class rule and rate component set into the taxable /
  exempt split, per-component tax, and total tax for one line. This file
  owns the rounding policy for the whole engine.

EXEMPTION SEMANTICS:
  Taxable:    every present component applies.
  Exempt:     no component applies; the full net sales amount is exempt.
  Local-Only: the excluded component set (default {state}, parameterized
              per jurisdiction) contributes zero; all other components
              apply. Excluded components keep their rate in the output for
              audit, with a zero tax amount.

ROUNDING POLICY:
  All intermediate math is carried at full decimal precision. Only the
  final per-line total, and independently each reported component amount,
  is rounded to 2 decimals using round-half-to-even. Across thousands of
  small-value lines this avoids the systematic upward bias that
  round-half-up would introduce, which filing parity depends on.

  Because the total is rounded from the full-precision sum, it may differ
  from the sum of the independently rounded component amounts by a cent.
  That is the contract, not a bug.

SEE ALSO:
  - fact.go: Calls Compute after the resolution chain succeeds
*/
package tax

import "github.com/shopspring/decimal"

// =============================================================================
// EXEMPTION POLICY - Which components Local-Only excludes
// =============================================================================

// ExemptionPolicy parameterizes the Local-Only exclusion set. The default
// excludes only the state component (the state-level food exemption
// analog); future jurisdictions may structure exemptions differently, so
// per-jurisdiction overrides are supported rather than hard-coding state.
type ExemptionPolicy struct {
	// LocalOnlyExcluded is the default exclusion set.
	LocalOnlyExcluded []Component

	// PerJurisdiction overrides the exclusion set for specific jurisdictions.
	PerJurisdiction map[JurisdictionCode][]Component
}

// DefaultExemptionPolicy excludes the state component under Local-Only.
func DefaultExemptionPolicy() ExemptionPolicy {
	return ExemptionPolicy{LocalOnlyExcluded: []Component{ComponentState}}
}

// ExcludedFor returns the Local-Only exclusion set for a jurisdiction.
func (p ExemptionPolicy) ExcludedFor(jur JurisdictionCode) map[Component]bool {
	comps := p.LocalOnlyExcluded
	if override, ok := p.PerJurisdiction[jur]; ok {
		comps = override
	}
	excluded := make(map[Component]bool, len(comps))
	for _, c := range comps {
		excluded[c] = true
	}
	return excluded
}

// =============================================================================
// ENGINE - Per-line tax computation
// =============================================================================

// Engine computes the tax fact for a single resolved line. It is pure and
// stateless; lines never depend on each other's outcomes.
type Engine struct {
	Exemptions ExemptionPolicy
}

func NewEngine(exemptions ExemptionPolicy) *Engine {
	return &Engine{Exemptions: exemptions}
}

// Compute builds the TaxFactRow for a line whose resolution chain has fully
// succeeded. It never fabricates a default rate or class; unresolved lines
// must take the exception path before reaching here.
func (e *Engine) Compute(line TransactionLine, rule TaxClassRule, match JurisdictionMatch, rates RateMatch) TaxFactRow {
	excluded := map[Component]bool{}
	switch rule.Taxability {
	case Exempt:
		// Nothing applies; handled per component below.
	case LocalOnly:
		excluded = e.Exemptions.ExcludedFor(match.Jurisdiction)
	}

	components := make([]ComponentTax, 0, len(rates.Components))
	total := decimal.Zero
	for _, rc := range rates.Components {
		applied := rule.Taxability != Exempt && !excluded[rc.Component]
		tax := decimal.Zero
		if applied {
			tax = line.NetSales.Value.Mul(rc.Rate) // full precision
			total = total.Add(tax)
		}
		components = append(components, ComponentTax{
			Component: rc.Component,
			Rate:      rc.Rate,
			Tax:       Money{Value: tax.RoundBank(2)},
			Applied:   applied,
		})
	}

	taxableGross := line.NetSales
	if rule.Taxability == Exempt {
		taxableGross = ZeroMoney
	}
	// Exempt gross is always the remainder, never computed independently,
	// so the two legs sum exactly to net sales.
	exemptGross := line.NetSales.Sub(taxableGross)

	return TaxFactRow{
		Line:         line,
		ClassName:    rule.ClassName,
		Taxability:   rule.Taxability,
		Jurisdiction: match.Jurisdiction,
		Components:   components,
		TaxableGross: taxableGross,
		ExemptGross:  exemptGross,
		TotalTax:     Money{Value: total.RoundBank(2)},
		Provenance: Provenance{
			ClassRuleKey:  rule.ClassName,
			PolicySource:  rule.PolicySource,
			MappingWindow: match.Window,
			Path:          match.Path,
			RateWindows:   rates.Windows,
		},
	}
}
