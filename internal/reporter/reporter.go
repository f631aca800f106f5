// Package reporter renders reconciliation reports for people
// (console), machines (JSON) and spreadsheets (CSV).
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/internal/reconciler"
)

// OutputFormat selects the rendering of a report.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// IncludeMatched controls whether fully matched pairs appear in
	// console and CSV output; mismatches and orphans always do.
	IncludeMatched bool `json:"include_matched"`

	// IncludeOutOfPeriod controls the audit bucket in console output.
	IncludeOutOfPeriod bool `json:"include_out_of_period"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:             FormatConsole,
		IncludeMatched:     false,
		IncludeOutOfPeriod: true,
		CSVDelimiter:       ',',
		CSVHeaders:         true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	return nil
}

// ReportGenerator renders reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a generator with the given configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport renders the report to the writer in the configured
// format.
func (rg *ReportGenerator) GenerateReport(report *reconciler.ReconciliationReport, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("reconciliation report cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(report, writer)
	case FormatJSON:
		return rg.generateJSONReport(report, writer)
	case FormatCSV:
		return rg.generateCSVReport(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(report *reconciler.ReconciliationReport, writer io.Writer) error {
	fmt.Fprintf(writer, "GST RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Run ID:    %s\n", report.RunID)
	fmt.Fprintf(writer, "Generated: %s\n", report.GeneratedAt.Format(time.RFC3339))
	if report.Period != "" {
		fmt.Fprintf(writer, "Period:    %s\n", report.Period)
	}
	fmt.Fprintf(writer, "Tolerance: %s\n\n", report.Tolerance.StringFixed(2))

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printBucketCounts(report, writer)
	fmt.Fprintf(writer, "\n=== TOTALS ===\n")
	rg.printTotals(report.Summary, writer)
	fmt.Fprintf(writer, "\n")

	if verdict := report.Summary; verdict != nil {
		if verdict.IsFullyReconciled {
			fmt.Fprintf(writer, "Result: FULLY RECONCILED\n\n")
		} else {
			fmt.Fprintf(writer, "Result: DIFFERENCES REMAIN\n\n")
		}
	}

	if rg.config.IncludeMatched && len(report.Matched) > 0 {
		fmt.Fprintf(writer, "=== MATCHED ===\n")
		rg.printResults(report.Matched, writer)
		fmt.Fprintf(writer, "\n")
	}
	if len(report.ValueMismatch) > 0 {
		fmt.Fprintf(writer, "=== VALUE MISMATCHES ===\n")
		rg.printResults(report.ValueMismatch, writer)
		fmt.Fprintf(writer, "\n")
	}
	if len(report.DocumentNumberMismatch) > 0 {
		fmt.Fprintf(writer, "=== DOCUMENT NUMBER MISMATCHES ===\n")
		rg.printResults(report.DocumentNumberMismatch, writer)
		fmt.Fprintf(writer, "\n")
	}
	if len(report.LeftOnly) > 0 {
		fmt.Fprintf(writer, "=== PORTAL ONLY ===\n")
		rg.printResults(report.LeftOnly, writer)
		fmt.Fprintf(writer, "\n")
	}
	if len(report.RightOnly) > 0 {
		fmt.Fprintf(writer, "=== BOOKS ONLY ===\n")
		rg.printResults(report.RightOnly, writer)
		fmt.Fprintf(writer, "\n")
	}
	if rg.config.IncludeOutOfPeriod && len(report.OutOfPeriod) > 0 {
		fmt.Fprintf(writer, "=== OUT OF PERIOD ===\n")
		for _, rec := range report.OutOfPeriod {
			fmt.Fprintf(writer, "  %-16s %-20s %-12s %12s\n",
				rec.BusinessKey, rec.DocumentKey, formatDate(rec.DocumentDate),
				rec.TaxableAmount.StringFixed(2))
		}
		fmt.Fprintf(writer, "\n")
	}
	if len(report.GapPeriods) > 0 {
		fmt.Fprintf(writer, "WARNING: no portal data for periods: %v\n", report.GapPeriods)
	}
	return nil
}

func (rg *ReportGenerator) printBucketCounts(report *reconciler.ReconciliationReport, writer io.Writer) {
	fmt.Fprintf(writer, "%-28s %6d\n", "matched", len(report.Matched))
	fmt.Fprintf(writer, "%-28s %6d\n", "value_mismatch", len(report.ValueMismatch))
	fmt.Fprintf(writer, "%-28s %6d\n", "document_number_mismatch", len(report.DocumentNumberMismatch))
	fmt.Fprintf(writer, "%-28s %6d\n", "left_only", len(report.LeftOnly))
	fmt.Fprintf(writer, "%-28s %6d\n", "right_only", len(report.RightOnly))
	fmt.Fprintf(writer, "%-28s %6d\n", "out_of_period", len(report.OutOfPeriod))
	fmt.Fprintf(writer, "%-28s %6d\n", "total_results", report.TotalResults())
}

func (rg *ReportGenerator) printTotals(summary *reconciler.Summary, writer io.Writer) {
	if summary == nil {
		return
	}
	fmt.Fprintf(writer, "%-16s %16s %16s %16s\n", "Field", "Portal", "Books", "Delta")
	row := func(name string, left, right, delta decimal.Decimal) {
		fmt.Fprintf(writer, "%-16s %16s %16s %16s\n",
			name, left.StringFixed(2), right.StringFixed(2), delta.StringFixed(2))
	}
	row("taxable_amount", summary.Left.TaxableAmount, summary.Right.TaxableAmount,
		summary.Deltas[models.DeltaTaxableAmount])
	row("gross_amount", summary.Left.GrossAmount, summary.Right.GrossAmount,
		summary.Deltas[models.DeltaGrossAmount])
	for _, c := range models.TaxComponents() {
		row(string(c), summary.Left.Taxes.Get(c), summary.Right.Taxes.Get(c),
			summary.Deltas[string(c)])
	}
	fmt.Fprintf(writer, "%-16s %16d %16d\n", "records",
		summary.Left.RecordCount, summary.Right.RecordCount)
}

func (rg *ReportGenerator) printResults(results []*models.MatchResult, writer io.Writer) {
	for _, result := range results {
		rec := result.Left
		if rec == nil {
			rec = result.Right
		}
		fmt.Fprintf(writer, "  %-16s %-20s %-12s taxable_delta %12s gross_delta %12s\n",
			rec.BusinessKey, rec.DocumentKey, formatDate(rec.DocumentDate),
			result.Deltas[models.DeltaTaxableAmount].StringFixed(2),
			result.Deltas[models.DeltaGrossAmount].StringFixed(2))
	}
}

func (rg *ReportGenerator) generateJSONReport(report *reconciler.ReconciliationReport, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func (rg *ReportGenerator) generateCSVReport(report *reconciler.ReconciliationReport, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	defer csvWriter.Flush()

	if rg.config.CSVHeaders {
		headers := []string{
			"Bucket", "Match_Method", "GSTIN", "Document_Number", "Document_Date",
			"Left_Taxable", "Right_Taxable", "Taxable_Delta", "Gross_Delta",
			"IGST_Delta", "CGST_Delta", "SGST_Delta", "Cess_Delta",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	write := func(bucket string, results []*models.MatchResult) error {
		for _, result := range results {
			if err := csvWriter.Write(csvRow(bucket, result)); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
		return nil
	}

	if rg.config.IncludeMatched {
		if err := write("matched", report.Matched); err != nil {
			return err
		}
	}
	if err := write("value_mismatch", report.ValueMismatch); err != nil {
		return err
	}
	if err := write("document_number_mismatch", report.DocumentNumberMismatch); err != nil {
		return err
	}
	if err := write("left_only", report.LeftOnly); err != nil {
		return err
	}
	if err := write("right_only", report.RightOnly); err != nil {
		return err
	}

	for _, rec := range report.OutOfPeriod {
		row := []string{
			"out_of_period", "", rec.BusinessKey, rec.DocumentKey, formatDate(rec.DocumentDate),
			rec.TaxableAmount.StringFixed(2), "", "", "", "", "", "", "",
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	return nil
}

func csvRow(bucket string, result *models.MatchResult) []string {
	rec := result.Left
	if rec == nil {
		rec = result.Right
	}
	leftTaxable, rightTaxable := "", ""
	if result.Left != nil {
		leftTaxable = result.Left.TaxableAmount.StringFixed(2)
	}
	if result.Right != nil {
		rightTaxable = result.Right.TaxableAmount.StringFixed(2)
	}
	return []string{
		bucket,
		string(result.Method),
		rec.BusinessKey,
		rec.DocumentKey,
		formatDate(rec.DocumentDate),
		leftTaxable,
		rightTaxable,
		result.Deltas[models.DeltaTaxableAmount].StringFixed(2),
		result.Deltas[models.DeltaGrossAmount].StringFixed(2),
		result.Deltas[string(models.ComponentIGST)].StringFixed(2),
		result.Deltas[string(models.ComponentCGST)].StringFixed(2),
		result.Deltas[string(models.ComponentSGST)].StringFixed(2),
		result.Deltas[string(models.ComponentCess)].StringFixed(2),
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
