package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNormalizeKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  inv-001 ", "INV-001"},
		{"27aaaaa0000a1z5", "27AAAAA0000A1Z5"},
		{"", ""},
		{"\tAB c\n", "AB C"},
	}
	for _, tc := range cases {
		if got := NormalizeKey(tc.in); got != tc.want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1,23,456.78", "123456.78"},
		{"₹1,000", "1000"},
		{"$250.50", "250.50"},
		{"-42.5", "-42.5"},
		{"", "0"},
		{"N/A", "0"},
		{"-", "0"},
		{"null", "0"},
	}
	for _, tc := range cases {
		want, _ := decimal.NewFromString(tc.want)
		if got := ParseAmount(tc.in); !got.Equal(want) {
			t.Errorf("ParseAmount(%q) = %s, want %s", tc.in, got, want)
		}
	}
}

func TestParseDateDayFirst(t *testing.T) {
	got := ParseDate("15-04-2024")
	if got == nil {
		t.Fatal("expected a parsed date")
	}
	if got.Day() != 15 || got.Month() != time.April || got.Year() != 2024 {
		t.Errorf("expected 2024-04-15, got %v", got)
	}

	if d := ParseDate("2024-04-15"); d == nil || d.Month() != time.April {
		t.Errorf("expected ISO date to parse, got %v", d)
	}

	if d := ParseDate("not a date"); d != nil {
		t.Errorf("expected nil for garbage date, got %v", d)
	}
	if d := ParseDate(""); d != nil {
		t.Errorf("expected nil for empty date, got %v", d)
	}
}

func TestParseCategory(t *testing.T) {
	cases := []struct {
		in   string
		want DocumentCategory
	}{
		{"B2B", CategoryStandard},
		{"b2ba", CategoryStandard},
		{"CDNR", CategoryAdjustment},
		{"Credit Note", CategoryAdjustment},
		{"DR. NOTE", CategoryAdjustment},
		{"", CategoryStandard},
	}
	for _, tc := range cases {
		if got := ParseCategory(tc.in); got != tc.want {
			t.Errorf("ParseCategory(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestIsValidGSTIN(t *testing.T) {
	if !IsValidGSTIN("27AAAAA0000A1Z5") {
		t.Error("expected valid GSTIN to pass")
	}
	if !IsValidGSTIN(" 27aaaaa0000a1z5 ") {
		t.Error("expected normalization before validation")
	}
	if IsValidGSTIN("INVALID") {
		t.Error("expected malformed GSTIN to fail")
	}
	if IsValidGSTIN("") {
		t.Error("expected empty GSTIN to fail")
	}
}

func TestTaxBreakdownDefaults(t *testing.T) {
	tb := NewTaxBreakdown()
	for _, c := range TaxComponents() {
		if !tb.Get(c).IsZero() {
			t.Errorf("component %s should default to zero", c)
		}
	}

	var nilBreakdown TaxBreakdown
	if !nilBreakdown.Get(ComponentIGST).IsZero() {
		t.Error("nil breakdown should read as zero")
	}
}

func TestTaxBreakdownCloneIsIndependent(t *testing.T) {
	tb := NewTaxBreakdown()
	tb.Set(ComponentIGST, decimal.NewFromInt(180))

	clone := tb.Clone()
	clone.Set(ComponentIGST, decimal.NewFromInt(999))

	if !tb.Get(ComponentIGST).Equal(decimal.NewFromInt(180)) {
		t.Error("mutating a clone must not affect the original")
	}
}

func TestCanonicalRecordClone(t *testing.T) {
	date := time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC)
	rec := NewCanonicalRecord(SourcePortal)
	rec.BusinessKey = "27AAAAA0000A1Z5"
	rec.DocumentKey = "INV-001"
	rec.DocumentDate = &date
	rec.TaxableAmount = decimal.NewFromInt(1000)
	rec.Taxes.Set(ComponentIGST, decimal.NewFromInt(180))

	clone := rec.Clone()
	clone.Taxes.Set(ComponentIGST, decimal.NewFromInt(1))
	newDate := clone.DocumentDate.AddDate(0, 1, 0)
	clone.DocumentDate = &newDate

	if !rec.Taxes.Get(ComponentIGST).Equal(decimal.NewFromInt(180)) {
		t.Error("clone must not share the tax breakdown")
	}
	if rec.DocumentDate.Month() != time.April {
		t.Error("clone must not share the date pointer")
	}

	var nilRec *CanonicalRecord
	if nilRec.Clone() != nil {
		t.Error("cloning nil should return nil")
	}
}

func TestComputeDeltas(t *testing.T) {
	left := NewCanonicalRecord(SourcePortal)
	left.TaxableAmount = decimal.NewFromFloat(1000)
	left.GrossAmount = decimal.NewFromFloat(1180)
	left.Taxes.Set(ComponentIGST, decimal.NewFromFloat(180))

	right := NewCanonicalRecord(SourceBooks)
	right.TaxableAmount = decimal.NewFromFloat(990)
	right.GrossAmount = decimal.NewFromFloat(1180)
	right.Taxes.Set(ComponentIGST, decimal.NewFromFloat(178.2))

	deltas := ComputeDeltas(left, right)
	if !deltas[DeltaTaxableAmount].Equal(decimal.NewFromFloat(10)) {
		t.Errorf("taxable delta = %s, want 10", deltas[DeltaTaxableAmount])
	}
	if !deltas[DeltaGrossAmount].IsZero() {
		t.Errorf("gross delta = %s, want 0", deltas[DeltaGrossAmount])
	}
	if !deltas[string(ComponentIGST)].Equal(decimal.NewFromFloat(1.8)) {
		t.Errorf("igst delta = %s, want 1.8", deltas[string(ComponentIGST)])
	}
}

func TestComputeDeltasOrphanZeroesMissingSide(t *testing.T) {
	left := NewCanonicalRecord(SourcePortal)
	left.TaxableAmount = decimal.NewFromInt(500)
	left.Taxes.Set(ComponentCGST, decimal.NewFromInt(45))

	deltas := ComputeDeltas(left, nil)
	if !deltas[DeltaTaxableAmount].Equal(decimal.NewFromInt(500)) {
		t.Errorf("left-only taxable delta = %s, want 500", deltas[DeltaTaxableAmount])
	}
	if !deltas[string(ComponentCGST)].Equal(decimal.NewFromInt(45)) {
		t.Errorf("left-only cgst delta = %s, want 45", deltas[string(ComponentCGST)])
	}

	deltas = ComputeDeltas(nil, left)
	if !deltas[DeltaTaxableAmount].Equal(decimal.NewFromInt(-500)) {
		t.Errorf("right-only taxable delta = %s, want -500", deltas[DeltaTaxableAmount])
	}
}

func TestWithinToleranceBoundary(t *testing.T) {
	tolerance := decimal.NewFromFloat(1.0)

	if !WithinTolerance(decimal.NewFromFloat(1.0), tolerance) {
		t.Error("delta exactly equal to tolerance must be within tolerance")
	}
	if !WithinTolerance(decimal.NewFromFloat(-1.0), tolerance) {
		t.Error("negative delta at the boundary must be within tolerance")
	}
	if WithinTolerance(decimal.NewFromFloat(1.000001), tolerance) {
		t.Error("delta just past tolerance must not be within tolerance")
	}
	if !WithinTolerance(decimal.NewFromFloat(0.90), tolerance) {
		t.Error("delta 0.90 must be within tolerance 1.0")
	}
}
