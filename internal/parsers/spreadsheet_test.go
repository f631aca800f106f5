package parsers

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/errors"
)

func TestSpreadsheetParserBasic(t *testing.T) {
	csv := `GSTIN/UIN,Supplier,Invoice,Date,Gross Amt,Taxable,IGST,CGST,SGST,Cess,Type
27AAACB2894G1ZK,Acme Traders, inv-001 ,15-04-2024,1180.00,1000.00,180.00,0,0,0,B2B
29AABCU9603R1ZX,Beta Mills,INV-002,2024-05-20,"2,360.00","2,000.00",0,180,180,0,CDNR
`
	parser, err := NewSpreadsheetParser(DefaultSpreadsheetConfig(models.SourceBooks))
	if err != nil {
		t.Fatalf("NewSpreadsheetParser: %v", err)
	}

	records, stats, err := parser.Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if stats.RowsRead != 2 || stats.RecordsProduced != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	first := records[0]
	if first.BusinessKey != "27AAACB2894G1ZK" {
		t.Errorf("business key: got %q", first.BusinessKey)
	}
	if first.DocumentKey != "INV-001" {
		t.Errorf("document key should be trimmed and uppercased, got %q", first.DocumentKey)
	}
	if first.DocumentDate == nil || first.DocumentDate.Day() != 15 || first.DocumentDate.Month() != 4 {
		t.Errorf("day-first date parse failed: %v", first.DocumentDate)
	}
	if !first.Taxes.Get(models.ComponentIGST).Equal(decimal.NewFromInt(180)) {
		t.Errorf("IGST: got %s", first.Taxes.Get(models.ComponentIGST))
	}
	if first.Category != models.CategoryStandard {
		t.Errorf("B2B should be standard, got %s", first.Category)
	}
	if first.Source != models.SourceBooks {
		t.Errorf("source tag: got %s", first.Source)
	}

	second := records[1]
	if !second.TaxableAmount.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("thousands separator not stripped: %s", second.TaxableAmount)
	}
	if second.Category != models.CategoryAdjustment {
		t.Errorf("CDNR should be an adjustment, got %s", second.Category)
	}
}

func TestSpreadsheetParserAliasSubstringFallback(t *testing.T) {
	csv := `Supplier GSTIN Number,Bill No,Bill Date,Taxable Value (Rs),IGST Amount
27AAACB2894G1ZK,B-77,01/06/2024,500,90
`
	parser, _ := NewSpreadsheetParser(DefaultSpreadsheetConfig(models.SourceBooks))
	records, _, err := parser.Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.BusinessKey != "27AAACB2894G1ZK" {
		t.Errorf("substring header match failed for GSTIN, got %q", rec.BusinessKey)
	}
	if rec.DocumentKey != "B-77" {
		t.Errorf("bill number alias failed, got %q", rec.DocumentKey)
	}
	if !rec.TaxableAmount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("taxable via substring alias: got %s", rec.TaxableAmount)
	}
}

func TestSpreadsheetParserIsolatesAliasTable(t *testing.T) {
	csv := `GSTIN,Ref No,Taxable
27AAACB2894G1ZK,INV-001,1000
`
	config := DefaultSpreadsheetConfig(models.SourceBooks)
	config.Aliases = DefaultColumnAliases()
	config.Aliases[FieldDocumentNumber] = append(config.Aliases[FieldDocumentNumber], "ref no")
	shared := config.Aliases

	parser, err := NewSpreadsheetParser(config)
	if err != nil {
		t.Fatalf("NewSpreadsheetParser: %v", err)
	}

	// Mutating the caller's table after construction must not change
	// how the parser resolves columns.
	shared[FieldDocumentNumber] = []string{"something else"}

	records, _, err := parser.Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(records) != 1 || records[0].DocumentKey != "INV-001" {
		t.Fatalf("custom alias lost after caller mutation: %+v", records)
	}
}

func TestSpreadsheetParserMissingColumnsDefaultToZero(t *testing.T) {
	csv := `GSTIN,Invoice
27AAACB2894G1ZK,INV-1
`
	parser, _ := NewSpreadsheetParser(DefaultSpreadsheetConfig(models.SourceBooks))
	records, _, err := parser.Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rec := records[0]
	if !rec.TaxableAmount.IsZero() || !rec.GrossAmount.IsZero() {
		t.Errorf("missing amount columns should be zero")
	}
	if rec.DocumentDate != nil {
		t.Errorf("missing date column should be nil")
	}
}

func TestSpreadsheetParserBadCellsRecoverLocally(t *testing.T) {
	csv := `GSTIN,Invoice,Date,Taxable
27AAACB2894G1ZK,INV-1,not-a-date,N/A
`
	parser, _ := NewSpreadsheetParser(DefaultSpreadsheetConfig(models.SourceBooks))
	records, _, err := parser.Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("bad cells must not fail the parse: %v", err)
	}
	rec := records[0]
	if rec.DocumentDate != nil {
		t.Errorf("unparsable date should be nil")
	}
	if !rec.TaxableAmount.IsZero() {
		t.Errorf("digit-free amount should be zero, got %s", rec.TaxableAmount)
	}
}

func TestSpreadsheetParserEmptyInput(t *testing.T) {
	parser, _ := NewSpreadsheetParser(DefaultSpreadsheetConfig(models.SourceBooks))

	records, _, err := parser.Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty input: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("empty input should yield no records")
	}

	records, _, err = parser.Parse(strings.NewReader("GSTIN,Invoice\n"))
	if err != nil {
		t.Fatalf("header-only input: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("header-only input should yield no records")
	}
}

func TestSpreadsheetParserSkipsBlankRows(t *testing.T) {
	csv := "GSTIN,Invoice\n27AAACB2894G1ZK,INV-1\n,\n"
	parser, _ := NewSpreadsheetParser(DefaultSpreadsheetConfig(models.SourceBooks))
	records, stats, err := parser.Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("blank row should be skipped, got %d records", len(records))
	}
	if stats.RowsSkipped != 1 {
		t.Errorf("expected 1 skipped row, got %d", stats.RowsSkipped)
	}
}

func TestSpreadsheetParserMissingFile(t *testing.T) {
	parser, _ := NewSpreadsheetParser(DefaultSpreadsheetConfig(models.SourceBooks))
	_, _, err := parser.ParseFile("/nonexistent/register.csv")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.HasCategory(err, errors.CategoryFile) {
		t.Errorf("expected file category error, got %v", err)
	}
}

func TestSpreadsheetConfigRejectsUnknownSource(t *testing.T) {
	_, err := NewSpreadsheetParser(&SpreadsheetConfig{Source: "LEDGER"})
	if err == nil {
		t.Fatal("expected configuration error for unknown source")
	}
	if !errors.HasCategory(err, errors.CategoryConfiguration) {
		t.Errorf("expected configuration category, got %v", err)
	}
}
