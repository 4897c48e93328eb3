/*
rates.go - Jurisdiction rate-schedule resolution

PURPOSE:
  Resolves a jurisdiction code and a date to the set of active rate
  components. A jurisdiction need not carry all five component types; the
  resolver queries the index once per component type actually configured
  for that jurisdiction.

REQUIRED COMPONENTS:
  Absence of a required component (the state slice, unless overridden per
  jurisdiction) is never treated as zero - it signals no_active_rate. An
  explicit zero rate is a real record and resolves normally.

FAILURE MODES:
  - Jurisdiction with no rate rows at all: no_active_rate.
  - Required component with no window covering the date: no_active_rate.
  - Overlapping windows for one (jurisdiction, component): ambiguous_window.
*/
package tax

import (
	"errors"
	"sort"
)

// RateResolver resolves (jurisdiction, date) to active rate components.
type RateResolver struct {
	index      *Index[RateComponent]
	configured map[JurisdictionCode][]Component // component types present per jurisdiction
	required   map[JurisdictionCode][]Component
}

// RateMatch is the resolved component set plus the windows that matched.
type RateMatch struct {
	Components []RateComponent
	Windows    map[Component]Window
}

// rateKey builds the composite index key for one jurisdiction's component.
func rateKey(jur JurisdictionCode, comp Component) string {
	return string(jur) + "/" + string(comp)
}

// NewRateResolver indexes the rate schedule. required maps a jurisdiction
// to the component types that must be present for it; jurisdictions not in
// the map require the state component by default.
func NewRateResolver(rates []RateComponent, required map[JurisdictionCode][]Component) *RateResolver {
	ix := NewIndex[RateComponent]()
	configured := make(map[JurisdictionCode][]Component)
	seen := make(map[string]bool)
	for _, rc := range rates {
		ix.Add(rateKey(rc.Jurisdiction, rc.Component), rc)
		k := rateKey(rc.Jurisdiction, rc.Component)
		if !seen[k] {
			seen[k] = true
			configured[rc.Jurisdiction] = append(configured[rc.Jurisdiction], rc.Component)
		}
	}
	// Deterministic component order per jurisdiction (reporting order).
	for jur := range configured {
		sort.Slice(configured[jur], func(i, j int) bool {
			return componentRank(configured[jur][i]) < componentRank(configured[jur][j])
		})
	}
	if required == nil {
		required = make(map[JurisdictionCode][]Component)
	}
	return &RateResolver{index: ix, configured: configured, required: required}
}

func componentRank(c Component) int {
	for i, known := range Components {
		if known == c {
			return i
		}
	}
	return len(Components)
}

// requiredFor returns the component types that must resolve for jur.
func (rr *RateResolver) requiredFor(jur JurisdictionCode) []Component {
	if req, ok := rr.required[jur]; ok {
		return req
	}
	return []Component{ComponentState}
}

// Resolve returns the active rate components for jur at asOf, ordered
// state, county, city, transit, special.
func (rr *RateResolver) Resolve(jur JurisdictionCode, asOf Date) (RateMatch, error) {
	comps, ok := rr.configured[jur]
	if !ok {
		return RateMatch{}, &ResolutionError{
			Reason: ReasonNoActiveRate,
			Key:    string(jur),
			AsOf:   asOf,
			Err:    ErrNoActiveRate,
		}
	}

	match := RateMatch{Windows: make(map[Component]Window)}
	for _, comp := range comps {
		rc, err := rr.index.Lookup(rateKey(jur, comp), asOf)
		if err != nil {
			if errors.Is(err, ErrAmbiguousWindow) {
				return RateMatch{}, &ResolutionError{
					Reason: ReasonAmbiguousWindow,
					Key:    rateKey(jur, comp),
					AsOf:   asOf,
					Err:    err,
				}
			}
			// Component configured for the jurisdiction but no window covers
			// this date. Fatal only if the component is required.
			continue
		}
		match.Components = append(match.Components, rc)
		match.Windows[comp] = rc.Window
	}

	for _, req := range rr.requiredFor(jur) {
		if _, resolved := match.Windows[req]; !resolved {
			return RateMatch{}, &ResolutionError{
				Reason: ReasonNoActiveRate,
				Key:    rateKey(jur, req),
				AsOf:   asOf,
				Err:    ErrNoActiveRate,
			}
		}
	}

	return match, nil
}

// ValidateWindows surfaces overlapping rate windows across the schedule.
func (rr *RateResolver) ValidateWindows() []WindowDefect {
	return rr.index.Validate()
}
