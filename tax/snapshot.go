/*
snapshot.go - Immutable reference snapshot

PURPOSE:
  The source policy tables live in externally edited spreadsheets. Instead
  of reading them as global mutable state, a run binds once to a Snapshot:
  a consistent, versioned copy of all three reference tables plus the ZIP
  fallback table and the exemption policy. The engine never observes a
  partial edit.

VALIDATION:
  NewSnapshot enforces structural conformance (the fatal preconditions):
  empty keys, negative rates, inverted windows, unknown taxability values,
  duplicate normalized class names. Any of these aborts before row
  processing with ErrInvalidReference.

  Audit() reports effective-window overlaps. These are data-quality
  defects in the reference tables - a policy authoring problem to escalate
  to the data owner - and do not abort the run; lines that land inside an
  overlap fail individually with ambiguous_window.
*/
package tax

import (
	"fmt"
)

// Snapshot is one consistent view of all reference data for a run.
type Snapshot struct {
	Classes  []TaxClassRule
	Mappings []DeviceMapping
	Rates    []RateComponent

	// ZIPTable is the static ZIP-to-jurisdiction fallback reference. It is
	// deliberately not effective-dated; see the jurisdiction resolver.
	ZIPTable map[string]JurisdictionCode

	// AllowZIPFallback gates the fallback path (externally configured).
	AllowZIPFallback bool

	// Exemptions parameterizes Local-Only component exclusion.
	Exemptions ExemptionPolicy

	// RequiredComponents overrides which component types must be present
	// per jurisdiction. Jurisdictions not listed require the state slice.
	RequiredComponents map[JurisdictionCode][]Component
}

// NewSnapshot validates structural conformance and returns an immutable
// snapshot. Callers must not modify the slices after the call.
func NewSnapshot(classes []TaxClassRule, mappings []DeviceMapping, rates []RateComponent, opts ...SnapshotOption) (*Snapshot, error) {
	s := &Snapshot{
		Classes:    classes,
		Mappings:   mappings,
		Rates:      rates,
		ZIPTable:   map[string]JurisdictionCode{},
		Exemptions: DefaultExemptionPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.conform(); err != nil {
		return nil, err
	}
	return s, nil
}

// SnapshotOption configures optional snapshot inputs.
type SnapshotOption func(*Snapshot)

func WithZIPFallback(zipTable map[string]JurisdictionCode, allow bool) SnapshotOption {
	return func(s *Snapshot) {
		s.ZIPTable = zipTable
		s.AllowZIPFallback = allow
	}
}

func WithExemptionPolicy(p ExemptionPolicy) SnapshotOption {
	return func(s *Snapshot) { s.Exemptions = p }
}

func WithRequiredComponents(req map[JurisdictionCode][]Component) SnapshotOption {
	return func(s *Snapshot) { s.RequiredComponents = req }
}

// conform checks the fatal preconditions.
func (s *Snapshot) conform() error {
	seen := make(map[string]bool, len(s.Classes))
	for i, c := range s.Classes {
		key := NormalizeClass(c.ClassName)
		if key == "" {
			return fmt.Errorf("%w: class rule %d has empty class name", ErrInvalidReference, i)
		}
		if seen[key] {
			return fmt.Errorf("%w: duplicate class rule %q", ErrInvalidReference, key)
		}
		seen[key] = true
		switch c.Taxability {
		case Taxable, Exempt, LocalOnly:
		default:
			return fmt.Errorf("%w: class %q has unknown taxability %q", ErrInvalidReference, key, c.Taxability)
		}
	}

	for i, m := range s.Mappings {
		if m.DeviceID == "" {
			return fmt.Errorf("%w: device mapping %d has empty device id", ErrInvalidReference, i)
		}
		if m.Jurisdiction == "" {
			return fmt.Errorf("%w: device mapping for %q has empty jurisdiction", ErrInvalidReference, m.DeviceID)
		}
		if err := checkWindow(m.Window); err != nil {
			return fmt.Errorf("%w: device mapping for %q: %v", ErrInvalidReference, m.DeviceID, err)
		}
	}

	for i, rc := range s.Rates {
		if rc.Jurisdiction == "" {
			return fmt.Errorf("%w: rate component %d has empty jurisdiction", ErrInvalidReference, i)
		}
		if rc.Rate.IsNegative() {
			return fmt.Errorf("%w: rate %s/%s is negative", ErrInvalidReference, rc.Jurisdiction, rc.Component)
		}
		if err := checkWindow(rc.Window); err != nil {
			return fmt.Errorf("%w: rate %s/%s: %v", ErrInvalidReference, rc.Jurisdiction, rc.Component, err)
		}
	}
	return nil
}

func checkWindow(w Window) error {
	if w.From.IsZero() {
		return fmt.Errorf("missing effective_from")
	}
	if w.To != nil && w.To.Before(w.From) {
		return fmt.Errorf("effective_to %s before effective_from %s", w.To, w.From)
	}
	return nil
}

// Audit reports effective-window overlaps across the device mapping and
// rate tables. Non-fatal; reported once per run as audit-level warnings.
func (s *Snapshot) Audit() []WindowDefect {
	b := NewBuilder(s)
	defects := b.Jurisdiction.ValidateWindows()
	defects = append(defects, b.Rates.ValidateWindows()...)
	return defects
}
