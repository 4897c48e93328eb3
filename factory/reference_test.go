package factory_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/salestax-engine/factory"
	"github.com/warp/salestax-engine/tax"
)

// =============================================================================
// TAX CLASS RULES
// =============================================================================

func TestLoadClassRules(t *testing.T) {
	csv := strings.Join([]string{
		"Class,Assumed_Taxability,Notes,Policy_Source,Last_Updated",
		"Candy-No-Flour,Taxable,,DR-1002,2025-01-15",
		"Flour-Candy,Local Only,flour exemption,DR-1002,",
		"Bottled-Water,Exempt,,,",
	}, "\n")

	rules, err := factory.LoadClassRules(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rules, 3)

	assert.Equal(t, "Candy-No-Flour", rules[0].ClassName)
	assert.Equal(t, tax.Taxable, rules[0].Taxability)
	assert.Equal(t, "DR-1002", rules[0].PolicySource)
	assert.Equal(t, "2025-01-15", rules[0].LastUpdated.String())

	// "Local Only" with a space is the spreadsheet spelling.
	assert.Equal(t, tax.LocalOnly, rules[1].Taxability)
	assert.Equal(t, "flour exemption", rules[1].Notes)

	assert.Equal(t, tax.Exempt, rules[2].Taxability)
}

func TestLoadClassRules_TaxabilitySpellings(t *testing.T) {
	for _, spelling := range []string{"Local Only", "local-only", "LOCAL_ONLY", "local  only"} {
		csv := "Class,Assumed_Taxability\nFlour-Candy," + spelling
		rules, err := factory.LoadClassRules(strings.NewReader(csv))
		require.NoError(t, err, "spelling %q", spelling)
		assert.Equal(t, tax.LocalOnly, rules[0].Taxability, "spelling %q", spelling)
	}
}

func TestLoadClassRules_UnknownTaxabilityFatal(t *testing.T) {
	csv := "Class,Assumed_Taxability\nCandy,sometimes"
	_, err := factory.LoadClassRules(strings.NewReader(csv))
	assert.ErrorIs(t, err, tax.ErrInvalidReference)
}

func TestLoadClassRules_MissingColumnFatal(t *testing.T) {
	csv := "Class,Notes\nCandy,no taxability column"
	_, err := factory.LoadClassRules(strings.NewReader(csv))
	require.ErrorIs(t, err, tax.ErrInvalidReference)
	assert.Contains(t, err.Error(), "Assumed_Taxability")
}

// =============================================================================
// DEVICE MAPPINGS
// =============================================================================

func TestLoadDeviceMappings(t *testing.T) {
	csv := strings.Join([]string{
		"Device_Number,Jurisdiction_Code,ZIP,Effective_From,Effective_To",
		"dev-100,80104,80104,2024-01-01,",
		"dev-300,80104,80104,2023-01-01,2024-12-31",
	}, "\n")

	mappings, err := factory.LoadDeviceMappings(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, mappings, 2)

	assert.Equal(t, tax.DeviceID("dev-100"), mappings[0].DeviceID)
	assert.Equal(t, tax.JurisdictionCode("80104"), mappings[0].Jurisdiction)
	assert.Nil(t, mappings[0].Window.To, "blank Effective_To means open-ended")

	require.NotNil(t, mappings[1].Window.To)
	assert.Equal(t, "2024-12-31", mappings[1].Window.To.String())
}

func TestLoadDeviceMappings_DeviceAlias(t *testing.T) {
	// Older exports use "Device" instead of "Device_Number".
	csv := "Device,Jurisdiction_Code,Effective_From\ndev-100,80104,2024-01-01"
	mappings, err := factory.LoadDeviceMappings(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, tax.DeviceID("dev-100"), mappings[0].DeviceID)
}

func TestLoadDeviceMappings_BadDateFatal(t *testing.T) {
	csv := "Device_Number,Jurisdiction_Code,Effective_From\ndev-100,80104,June 1st"
	_, err := factory.LoadDeviceMappings(strings.NewReader(csv))
	assert.ErrorIs(t, err, tax.ErrInvalidReference)
}

// =============================================================================
// RATE COMPONENTS
// =============================================================================

func TestLoadRateComponents(t *testing.T) {
	csv := strings.Join([]string{
		"Jurisdiction_Code,Component,Rate,Rate_Effective_From,Rate_Effective_To",
		"80104,State,0.029,2024-01-01,",
		"80104,City,0.039,2024-01-01,2025-06-30",
		"80104,City,0.045,2025-07-01,",
	}, "\n")

	rates, err := factory.LoadRateComponents(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rates, 3)

	assert.Equal(t, tax.ComponentState, rates[0].Component)
	assert.Equal(t, "0.029", rates[0].Rate.String())
	assert.Equal(t, tax.ComponentCity, rates[1].Component)
	require.NotNil(t, rates[1].Window.To)
	assert.Equal(t, "2025-06-30", rates[1].Window.To.String())
}

func TestLoadRateComponents_BadRateFatal(t *testing.T) {
	csv := "Jurisdiction_Code,Component,Rate,Rate_Effective_From\n80104,State,2.9%,2024-01-01"
	_, err := factory.LoadRateComponents(strings.NewReader(csv))
	assert.ErrorIs(t, err, tax.ErrInvalidReference)
}

func TestLoadRateComponents_CaseInsensitiveHeaders(t *testing.T) {
	csv := "jurisdiction_code,component,rate,rate_effective_from\n80104,state,0.029,2024-01-01"
	rates, err := factory.LoadRateComponents(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, tax.ComponentState, rates[0].Component)
}

// =============================================================================
// ZIP TABLE
// =============================================================================

func TestLoadZIPTable(t *testing.T) {
	csv := "ZIP,Jurisdiction_Code\n80104,80104\n80124,80124\n,ignored"
	zips, err := factory.LoadZIPTable(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Len(t, zips, 2)
	assert.Equal(t, tax.JurisdictionCode("80124"), zips["80124"])
}

// =============================================================================
// ORDERS
// =============================================================================

func TestLoadOrders(t *testing.T) {
	csv := strings.Join([]string{
		"Txn_Date,Device_Number,SKU,Product_Desc,Class,Qty,Net_Sales,Status",
		"2025-06-01,dev-100,SKU-1,Chocolate Bar,Candy-No-Flour,2,3.50,paid",
		"2025-06-02,dev-200,SKU-2,Spring Water,Bottled-Water,,1.75,",
	}, "\n")

	lines, err := factory.LoadOrders(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, lines, 2)

	first := lines[0]
	assert.Equal(t, 0, first.Seq)
	assert.Equal(t, tax.DeviceID("dev-100"), first.DeviceID)
	assert.Equal(t, tax.SKU("SKU-1"), first.SKU)
	assert.Equal(t, "Chocolate Bar", first.Description)
	assert.Equal(t, 2, first.Quantity)
	assert.Equal(t, "3.50", first.NetSales.String())
	assert.Equal(t, "PAID", first.Status, "status is uppercased")

	second := lines[1]
	assert.Equal(t, 1, second.Seq)
	assert.Equal(t, 1, second.Quantity, "blank quantity defaults to 1")
	assert.Equal(t, "PAID", second.Status, "blank status defaults to PAID")
}

func TestLoadOrders_TimestampAlias(t *testing.T) {
	csv := "Timestamp,Device,SKU,Net_Sales\n2025-06-01,dev-100,SKU-1,2.00"
	lines, err := factory.LoadOrders(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", lines[0].Date.String())
}

func TestLoadOrders_MissingColumnsListed(t *testing.T) {
	csv := "Txn_Date,SKU\n2025-06-01,SKU-1"
	_, err := factory.LoadOrders(strings.NewReader(csv))
	require.ErrorIs(t, err, tax.ErrInvalidReference)
	assert.Contains(t, err.Error(), "Device_Number")
	assert.Contains(t, err.Error(), "Net_Sales")
}

func TestLoadOrders_EmptyFileFatal(t *testing.T) {
	_, err := factory.LoadOrders(strings.NewReader(""))
	assert.ErrorIs(t, err, tax.ErrInvalidReference)
}
