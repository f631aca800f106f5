package parsers

import (
	"strings"
	"unicode"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/logger"
)

// Table is a pre-extracted PDF table: the first row is the header, the
// rest are data rows. Extraction itself (pdfplumber-style raster work)
// happens in a collaborator outside this module; the parser only
// consumes its output.
type Table [][]string

// PDFTableParser normalizes summary tables extracted from return PDFs.
// Return summaries carry one row per section (description, record
// count, taxable value, tax components) rather than per-document rows,
// so the produced records are keyless and feed summary totals only.
type PDFTableParser struct {
	log logger.Logger
}

// NewPDFTableParser builds a parser for extracted PDF tables.
func NewPDFTableParser() *PDFTableParser {
	return &PDFTableParser{log: logger.WithComponent("pdf_table_parser")}
}

// Parse picks the main summary table out of the extracted candidates
// and normalizes its data rows. No usable table yields an empty slice.
func (p *PDFTableParser) Parse(tables []Table) []*models.CanonicalRecord {
	main := selectMainTable(tables)
	if main == nil {
		p.log.Warn("No summary table with tax columns found")
		return []*models.CanonicalRecord{}
	}

	headers := lowerHeaders(main[0])
	descIdx := firstMatching(headers, "description", "nature", "detail")
	if descIdx < 0 {
		descIdx = 0
	}
	valueIdx := firstMatching(headers, "value", "taxable")
	igstIdx := firstMatching(headers, "integrated", "igst")
	cgstIdx := firstMatching(headers, "central", "cgst")
	sgstIdx := firstMatching(headers, "state", "sgst", "ut")
	cessIdx := firstMatching(headers, "cess")

	records := []*models.CanonicalRecord{}
	for _, row := range main[1:] {
		if rowEmpty(row) {
			continue
		}
		desc := cell(row, descIdx)
		if desc == "" || decorativeRow(desc) {
			continue
		}

		rec := models.NewCanonicalRecord(models.SourcePortal)
		rec.SupplierName = desc
		rec.TaxableAmount = models.ParseAmount(cell(row, valueIdx))
		rec.Taxes.Set(models.ComponentIGST, models.ParseAmount(cell(row, igstIdx)))
		rec.Taxes.Set(models.ComponentCGST, models.ParseAmount(cell(row, cgstIdx)))
		rec.Taxes.Set(models.ComponentSGST, models.ParseAmount(cell(row, sgstIdx)))
		rec.Taxes.Set(models.ComponentCess, models.ParseAmount(cell(row, cessIdx)))
		rec.GrossAmount = rec.TaxableAmount.Add(rec.Taxes.Total())
		rec.Category = models.ParseCategory(desc)

		if rec.TaxableAmount.IsZero() && rec.Taxes.Total().IsZero() {
			continue
		}
		records = append(records, rec)
	}

	p.log.WithFields(logger.Fields{
		"candidate_tables": len(tables),
		"records":          len(records),
	}).Debug("Parsed extracted PDF tables")
	return records
}

// selectMainTable returns the candidate with a value/taxable or tax
// header and the most rows. Decorative mini-tables around the summary
// lose on both counts.
func selectMainTable(tables []Table) Table {
	var main Table
	maxRows := 0
	for _, table := range tables {
		if len(table) < 2 {
			continue
		}
		headers := lowerHeaders(table[0])
		hasValue := anyContains(headers, "value", "taxable")
		hasTax := anyContains(headers, "tax", "igst", "cgst", "sgst")
		if (hasValue || hasTax) && len(table) > maxRows {
			maxRows = len(table)
			main = table
		}
	}
	return main
}

// decorativeRow reports section markers like "A" or "D" that return
// PDFs interleave with data rows.
func decorativeRow(desc string) bool {
	if len(desc) >= 5 {
		return false
	}
	hasLetter := false
	for _, r := range desc {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

func lowerHeaders(row []string) []string {
	out := make([]string, len(row))
	for i, h := range row {
		out[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return out
}

func firstMatching(headers []string, tokens ...string) int {
	for i, h := range headers {
		for _, token := range tokens {
			if strings.Contains(h, token) {
				return i
			}
		}
	}
	return -1
}

func anyContains(headers []string, tokens ...string) bool {
	return firstMatching(headers, tokens...) >= 0
}
