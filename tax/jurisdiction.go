/*
jurisdiction.go - Device-to-jurisdiction resolution

PURPOSE:
  Places a device in a tax jurisdiction at the instant of a transaction.

  Primary path:  effective-date lookup on the DeviceMapping table.
  Fallback path: static ZIP-to-jurisdiction reference, gated by an external
                 allow-ZIP-fallback switch. The ZIP table is treated as
                 non-time-varying; the device's ZIP comes from its most
                 recent mapping row regardless of window, since a device
                 with no covering window may still have a known location.

  Which path resolved the line is recorded in provenance so audits can
  distinguish primary from fallback resolution.

FAILURE MODE:
  Both paths failing yields unmapped_jurisdiction. An overlap in the device's
  mapping windows yields ambiguous_window - a reference-data defect, not a
  transaction problem.
*/
package tax

import "errors"

// JurisdictionResolver resolves devices against the mapping table with an
// optional ZIP fallback.
type JurisdictionResolver struct {
	mappings         *Index[DeviceMapping]
	zipTable         map[string]JurisdictionCode
	allowZIPFallback bool
}

// JurisdictionMatch is a successful resolution plus its provenance inputs.
type JurisdictionMatch struct {
	Jurisdiction JurisdictionCode
	Path         ResolutionPath
	Window       *Window // nil for ZIP fallback
}

func NewJurisdictionResolver(mappings []DeviceMapping, zipTable map[string]JurisdictionCode, allowZIPFallback bool) *JurisdictionResolver {
	ix := NewIndex[DeviceMapping]()
	for _, m := range mappings {
		ix.Add(string(m.DeviceID), m)
	}
	return &JurisdictionResolver{mappings: ix, zipTable: zipTable, allowZIPFallback: allowZIPFallback}
}

// Resolve returns the jurisdiction for a device at asOf.
func (jr *JurisdictionResolver) Resolve(deviceID DeviceID, asOf Date) (JurisdictionMatch, error) {
	m, err := jr.mappings.Lookup(string(deviceID), asOf)
	if err == nil {
		w := m.Window
		return JurisdictionMatch{Jurisdiction: m.Jurisdiction, Path: PathDeviceMapping, Window: &w}, nil
	}
	if errors.Is(err, ErrAmbiguousWindow) {
		return JurisdictionMatch{}, &ResolutionError{
			Reason: ReasonAmbiguousWindow,
			Key:    string(deviceID),
			AsOf:   asOf,
			Err:    err,
		}
	}

	// No covering window. Try the ZIP fallback if policy allows.
	if jr.allowZIPFallback {
		if zip := jr.latestZIP(deviceID); zip != "" {
			if code, ok := jr.zipTable[zip]; ok {
				return JurisdictionMatch{Jurisdiction: code, Path: PathZIPFallback}, nil
			}
		}
	}

	return JurisdictionMatch{}, &ResolutionError{
		Reason: ReasonUnmappedJurisdiction,
		Key:    string(deviceID),
		AsOf:   asOf,
		Err:    ErrUnmappedJurisdiction,
	}
}

// latestZIP returns the ZIP of the device's most recent mapping row, by
// window start. Empty when the device has no mapping rows at all.
func (jr *JurisdictionResolver) latestZIP(deviceID DeviceID) string {
	var best *DeviceMapping
	for _, m := range jr.mappings.All(string(deviceID)) {
		m := m
		if best == nil || m.Window.From.After(best.Window.From) {
			best = &m
		}
	}
	if best == nil {
		return ""
	}
	return best.ZIP
}

// ValidateWindows surfaces overlapping device-mapping windows.
func (jr *JurisdictionResolver) ValidateWindows() []WindowDefect {
	return jr.mappings.Validate()
}
