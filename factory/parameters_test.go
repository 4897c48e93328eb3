package factory_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/salestax-engine/factory"
	"github.com/warp/salestax-engine/filing"
)

func TestParseParameters(t *testing.T) {
	doc := `{
		"Imports_Folder_Path": "imports",
		"Filing_Frequency": "quarterly",
		"Allow_ZIP_Fallback": true,
		"Coverage_Threshold": 0.995,
		"Timezone": "America/Denver"
	}`

	p, err := factory.ParseParameters(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "imports", p.ImportsFolderPath)
	assert.True(t, p.AllowZIPFallback)

	config := p.RunConfig()
	assert.Equal(t, filing.Quarterly, config.Frequency)
	assert.Equal(t, 0.995, config.CoverageThreshold)
}

func TestParseParameters_FrequencyDefaultsToMonthly(t *testing.T) {
	p, err := factory.ParseParameters(strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Equal(t, filing.Monthly, p.RunConfig().Frequency)
}

func TestParseParameters_RejectsUnknownFrequency(t *testing.T) {
	_, err := factory.ParseParameters(strings.NewReader(`{"Filing_Frequency": "fortnightly"}`))
	assert.Error(t, err)
}

func TestParseParameters_RejectsOutOfRangeThreshold(t *testing.T) {
	_, err := factory.ParseParameters(strings.NewReader(`{"Coverage_Threshold": 1.5}`))
	assert.Error(t, err)
}

func TestParseParameters_RejectsUnknownKeys(t *testing.T) {
	// Typos in the operator file should fail loudly, not silently apply
	// defaults.
	_, err := factory.ParseParameters(strings.NewReader(`{"Filing_Freqency": "monthly"}`))
	assert.Error(t, err)
}
