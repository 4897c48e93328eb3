package factory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/warp/salestax-engine/filing"
)

// =============================================================================
// PARAMETERS - Externally owned run policy (Parameters.json)
// =============================================================================

// Parameters mirrors the operator-maintained Parameters.json. Field names
// match the file's keys, which predate this implementation.
type Parameters struct {
	ImportsFolderPath string  `json:"Imports_Folder_Path"`
	FilingFrequency   string  `json:"Filing_Frequency"`
	AllowZIPFallback  bool    `json:"Allow_ZIP_Fallback"`
	CoverageThreshold float64 `json:"Coverage_Threshold"`
	Timezone          string  `json:"Timezone"`
}

// ParseParameters reads and validates a Parameters document.
func ParseParameters(r io.Reader) (*Parameters, error) {
	var p Parameters
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parameters: %w", err)
	}
	if p.FilingFrequency == "" {
		p.FilingFrequency = string(filing.Monthly)
	}
	if _, err := filing.ParseFrequency(p.FilingFrequency); err != nil {
		return nil, fmt.Errorf("parameters: %w", err)
	}
	if p.CoverageThreshold < 0 || p.CoverageThreshold > 1 {
		return nil, fmt.Errorf("parameters: coverage threshold %v outside [0, 1]", p.CoverageThreshold)
	}
	return &p, nil
}

// LoadParameters reads Parameters.json from disk.
func LoadParameters(path string) (*Parameters, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseParameters(f)
}

// RunConfig converts parameters to the filing run configuration.
func (p *Parameters) RunConfig() filing.Config {
	freq, _ := filing.ParseFrequency(p.FilingFrequency)
	return filing.Config{
		Frequency:         freq,
		CoverageThreshold: p.CoverageThreshold,
	}
}
