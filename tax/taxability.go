/*
taxability.go - Product-class taxability resolution

PURPOSE:
  Maps a product class to its taxability rule (Taxable / Exempt /
  Local-Only). Class keys are case- and whitespace-insensitive because the
  source catalogs vary in capitalization; normalization happens here, once,
  for both the rule table and the lookups.

FAILURE MODE:
  A class with no rule is never skipped: the resolver returns a
  ResolutionError(unmapped_class) carrying the SKU and description so the
  line lands in the exception ledger for manual triage.
*/
package tax

import "strings"

// NormalizeClass canonicalizes a class name: trim, case-fold, and collapse
// internal whitespace runs to a single space.
func NormalizeClass(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// TaxabilityResolver resolves product classes against an immutable rule set.
type TaxabilityResolver struct {
	rules map[string]TaxClassRule // keyed by normalized class name
}

// NewTaxabilityResolver indexes the rule table by normalized class name.
// Later duplicates of the same normalized key replace earlier ones; the
// snapshot conformance check rejects duplicate keys before this point.
func NewTaxabilityResolver(rules []TaxClassRule) *TaxabilityResolver {
	indexed := make(map[string]TaxClassRule, len(rules))
	for _, r := range rules {
		r.ClassName = NormalizeClass(r.ClassName)
		indexed[r.ClassName] = r
	}
	return &TaxabilityResolver{rules: indexed}
}

// Resolve returns the rule for a class, or an unmapped_class resolution
// error identifying the line for triage.
func (tr *TaxabilityResolver) Resolve(line TransactionLine) (TaxClassRule, error) {
	key := NormalizeClass(line.Class)
	rule, ok := tr.rules[key]
	if !ok {
		return TaxClassRule{}, &ResolutionError{
			Reason: ReasonUnmappedClass,
			Key:    string(line.SKU) + " (" + line.Description + ")",
			AsOf:   line.Date,
			Err:    ErrUnmappedClass,
		}
	}
	return rule, nil
}

// Rules returns the number of indexed rules.
func (tr *TaxabilityResolver) Rules() int { return len(tr.rules) }
