package tax_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/warp/salestax-engine/tax"
)

// =============================================================================
// CONFORMANCE - fatal preconditions
// =============================================================================

func TestNewSnapshot_RejectsDuplicateClass(t *testing.T) {
	// Duplicates are detected on the normalized key, so "Flour-Candy" and
	// "flour-candy" collide.
	classes := append(fixtureClasses(),
		tax.TaxClassRule{ClassName: "flour-candy", Taxability: tax.Taxable})

	_, err := tax.NewSnapshot(classes, fixtureMappings(), fixtureRates())
	if !errors.Is(err, tax.ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
}

func TestNewSnapshot_RejectsUnknownTaxability(t *testing.T) {
	classes := append(fixtureClasses(),
		tax.TaxClassRule{ClassName: "Chips", Taxability: "maybe"})

	_, err := tax.NewSnapshot(classes, fixtureMappings(), fixtureRates())
	if !errors.Is(err, tax.ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
}

func TestNewSnapshot_RejectsEmptyClassName(t *testing.T) {
	classes := append(fixtureClasses(),
		tax.TaxClassRule{ClassName: "   ", Taxability: tax.Taxable})

	_, err := tax.NewSnapshot(classes, fixtureMappings(), fixtureRates())
	if !errors.Is(err, tax.ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
}

func TestNewSnapshot_RejectsNegativeRate(t *testing.T) {
	rates := append(fixtureRates(), tax.RateComponent{
		Jurisdiction: "80104",
		Component:    tax.ComponentTransit,
		Rate:         decimal.NewFromFloat(-0.01),
		Window:       window("2024-01-01", ""),
	})

	_, err := tax.NewSnapshot(fixtureClasses(), fixtureMappings(), rates)
	if !errors.Is(err, tax.ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
}

func TestNewSnapshot_RejectsInvertedWindow(t *testing.T) {
	mappings := append(fixtureMappings(), tax.DeviceMapping{
		DeviceID:     "dev-400",
		Jurisdiction: "80104",
		Window:       window("2025-06-30", "2025-01-01"),
	})

	_, err := tax.NewSnapshot(fixtureClasses(), mappings, fixtureRates())
	if !errors.Is(err, tax.ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
}

func TestNewSnapshot_RejectsMissingEffectiveFrom(t *testing.T) {
	mappings := append(fixtureMappings(), tax.DeviceMapping{
		DeviceID:     "dev-400",
		Jurisdiction: "80104",
	})

	_, err := tax.NewSnapshot(fixtureClasses(), mappings, fixtureRates())
	if !errors.Is(err, tax.ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
}

func TestNewSnapshot_RejectsEmptyDeviceID(t *testing.T) {
	mappings := append(fixtureMappings(), tax.DeviceMapping{
		Jurisdiction: "80104",
		Window:       window("2024-01-01", ""),
	})

	_, err := tax.NewSnapshot(fixtureClasses(), mappings, fixtureRates())
	if !errors.Is(err, tax.ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
}

func TestNewSnapshot_ZeroRateIsConformant(t *testing.T) {
	// Explicit zero rate is a real record, not a defect.
	rates := append(fixtureRates(), tax.RateComponent{
		Jurisdiction: "80104",
		Component:    tax.ComponentTransit,
		Rate:         decimal.Zero,
		Window:       window("2024-01-01", ""),
	})

	if _, err := tax.NewSnapshot(fixtureClasses(), fixtureMappings(), rates); err != nil {
		t.Fatalf("explicit zero rate should conform: %v", err)
	}
}

// =============================================================================
// AUDIT - non-fatal overlap reporting
// =============================================================================

func TestSnapshot_Audit_CleanTables(t *testing.T) {
	if defects := fixtureSnapshot(t).Audit(); len(defects) != 0 {
		t.Fatalf("expected clean audit, got %v", defects)
	}
}

func TestSnapshot_Audit_ReportsOverlapButStillRuns(t *testing.T) {
	// GIVEN: overlapping mapping windows for one device
	// THEN: the snapshot still constructs (overlap is audit-level, not
	//       fatal) and Audit reports it; only lines dated inside the
	//       overlap fail

	mappings := append(fixtureMappings(), tax.DeviceMapping{
		DeviceID:     "dev-100",
		Jurisdiction: "80124",
		Window:       window("2025-06-01", "2025-06-30"),
	})
	s, err := tax.NewSnapshot(fixtureClasses(), mappings, fixtureRates())
	if err != nil {
		t.Fatalf("overlap should not be fatal: %v", err)
	}

	defects := s.Audit()
	if len(defects) != 1 {
		t.Fatalf("expected 1 defect, got %d: %v", len(defects), defects)
	}
	if defects[0].Key != "dev-100" {
		t.Errorf("defect key = %q, want dev-100", defects[0].Key)
	}

	// Inside the overlap: ambiguous. Outside it: still resolves.
	exc := mustOneException(t, s, paidLine(0, "dev-100", "Candy-No-Flour", "3.00", "2025-06-15"))
	if exc.Reason != tax.ReasonAmbiguousWindow {
		t.Errorf("reason = %s, want ambiguous_window", exc.Reason)
	}
	mustOneFact(t, s, paidLine(1, "dev-100", "Candy-No-Flour", "3.00", "2025-08-01"))
}

func TestSnapshot_Audit_ReportsRateOverlap(t *testing.T) {
	rates := append(fixtureRates(),
		rate("80104", tax.ComponentCity, "0.041", "2025-01-01", ""))

	s, err := tax.NewSnapshot(fixtureClasses(), fixtureMappings(), rates)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	defects := s.Audit()
	if len(defects) != 1 {
		t.Fatalf("expected 1 defect, got %d: %v", len(defects), defects)
	}
}
