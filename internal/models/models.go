// Package models defines the canonical record shape the reconciliation
// engine operates on, together with the closed enumerations for match
// status, match method, document category and record source.
//
// All heterogeneous inputs (spreadsheet uploads, portal JSON payloads,
// PDF-extracted tables) are normalized into CanonicalRecord at the
// boundary, so downstream code never needs defensive lookups.
package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies which side of a reconciliation a record came from.
type Source string

const (
	// SourcePortal marks records fetched from the government portal
	// (the left side of a reconciliation).
	SourcePortal Source = "PORTAL"
	// SourceBooks marks user-maintained bookkeeping records (the right
	// side of a reconciliation).
	SourceBooks Source = "BOOKS"
)

// IsValid checks if the source is one of the known values.
func (s Source) IsValid() bool {
	return s == SourcePortal || s == SourceBooks
}

// DocumentCategory distinguishes primary documents from correction
// documents whose amounts offset the primary ones.
type DocumentCategory string

const (
	// CategoryStandard covers regular invoices (B2B, B2BA, exports,
	// nil-rated supplies).
	CategoryStandard DocumentCategory = "STANDARD"
	// CategoryAdjustment covers credit/debit notes (CDNR, CDNRA).
	CategoryAdjustment DocumentCategory = "ADJUSTMENT"
)

// IsValid checks if the category is one of the known values.
func (c DocumentCategory) IsValid() bool {
	return c == CategoryStandard || c == CategoryAdjustment
}

// TaxComponent names one of the fixed tax heads tracked per record.
// The set is fixed at configuration time, not per record.
type TaxComponent string

const (
	ComponentIGST TaxComponent = "igst"
	ComponentCGST TaxComponent = "cgst"
	ComponentSGST TaxComponent = "sgst"
	ComponentCess TaxComponent = "cess"
)

// TaxComponents returns the fixed component set in canonical order.
func TaxComponents() []TaxComponent {
	return []TaxComponent{ComponentIGST, ComponentCGST, ComponentSGST, ComponentCess}
}

// TaxBreakdown maps each fixed tax component to its amount. Missing
// components read as zero.
type TaxBreakdown map[TaxComponent]decimal.Decimal

// NewTaxBreakdown returns a breakdown with every component set to zero.
func NewTaxBreakdown() TaxBreakdown {
	tb := make(TaxBreakdown, len(TaxComponents()))
	for _, c := range TaxComponents() {
		tb[c] = decimal.Zero
	}
	return tb
}

// Get returns the amount for a component, zero when absent.
func (tb TaxBreakdown) Get(c TaxComponent) decimal.Decimal {
	if tb == nil {
		return decimal.Zero
	}
	if v, ok := tb[c]; ok {
		return v
	}
	return decimal.Zero
}

// Set assigns the amount for a component.
func (tb TaxBreakdown) Set(c TaxComponent, v decimal.Decimal) {
	tb[c] = v
}

// Clone returns an independent copy of the breakdown.
func (tb TaxBreakdown) Clone() TaxBreakdown {
	out := make(TaxBreakdown, len(TaxComponents()))
	for _, c := range TaxComponents() {
		out[c] = tb.Get(c)
	}
	return out
}

// Add returns the component-wise sum of two breakdowns.
func (tb TaxBreakdown) Add(other TaxBreakdown) TaxBreakdown {
	out := NewTaxBreakdown()
	for _, c := range TaxComponents() {
		out[c] = tb.Get(c).Add(other.Get(c))
	}
	return out
}

// Total returns the sum over all components.
func (tb TaxBreakdown) Total() decimal.Decimal {
	total := decimal.Zero
	for _, c := range TaxComponents() {
		total = total.Add(tb.Get(c))
	}
	return total
}

// CanonicalRecord is the unit the reconciliation engine operates on.
// Keys are normalized (trimmed, uppercased) at construction; numeric
// fields default to zero and are never NaN or nil.
type CanonicalRecord struct {
	BusinessKey   string           `json:"business_key"`
	DocumentKey   string           `json:"document_key"`
	SupplierName  string           `json:"supplier_name,omitempty"`
	DocumentDate  *time.Time       `json:"document_date"`
	GrossAmount   decimal.Decimal  `json:"gross_amount"`
	TaxableAmount decimal.Decimal  `json:"taxable_amount"`
	Taxes         TaxBreakdown     `json:"tax_breakdown"`
	Category      DocumentCategory `json:"category"`
	Source        Source           `json:"source"`
}

// NewCanonicalRecord returns a zero-valued record for the given source.
func NewCanonicalRecord(source Source) *CanonicalRecord {
	return &CanonicalRecord{
		GrossAmount:   decimal.Zero,
		TaxableAmount: decimal.Zero,
		Taxes:         NewTaxBreakdown(),
		Category:      CategoryStandard,
		Source:        source,
	}
}

// Clone returns a deep copy. Match results reference copies so that
// cross-source comparison never mutates the inputs.
func (r *CanonicalRecord) Clone() *CanonicalRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Taxes = r.Taxes.Clone()
	if r.DocumentDate != nil {
		d := *r.DocumentDate
		out.DocumentDate = &d
	}
	return &out
}

// CompositeKey returns the (business key, document key) pair used for
// exact matching.
func (r *CanonicalRecord) CompositeKey() CompositeKey {
	return CompositeKey{BusinessKey: r.BusinessKey, DocumentKey: r.DocumentKey}
}

// CompositeKey is the exact-match join key.
type CompositeKey struct {
	BusinessKey string
	DocumentKey string
}

// MatchMethod records how a pair of records was brought together.
type MatchMethod string

const (
	MethodExactKey   MatchMethod = "EXACT_KEY"
	MethodFuzzyValue MatchMethod = "FUZZY_VALUE"
)

// MatchStatus is the closed set of reconciliation outcomes.
type MatchStatus string

const (
	StatusMatched          MatchStatus = "MATCHED"
	StatusValueMismatch    MatchStatus = "VALUE_MISMATCH"
	StatusDocumentMismatch MatchStatus = "DOCUMENT_NUMBER_MISMATCH"
	StatusLeftOnly         MatchStatus = "LEFT_ONLY"
	StatusRightOnly        MatchStatus = "RIGHT_ONLY"
)

// IsValid checks if the status is one of the known values.
func (s MatchStatus) IsValid() bool {
	switch s {
	case StatusMatched, StatusValueMismatch, StatusDocumentMismatch, StatusLeftOnly, StatusRightOnly:
		return true
	default:
		return false
	}
}

// Delta field names, stable for downstream renderers.
const (
	DeltaTaxableAmount = "taxable_amount"
	DeltaGrossAmount   = "gross_amount"
)

// DeltaFields returns every per-field delta key in canonical order.
func DeltaFields() []string {
	fields := []string{DeltaTaxableAmount, DeltaGrossAmount}
	for _, c := range TaxComponents() {
		fields = append(fields, string(c))
	}
	return fields
}

// MatchResult is the output unit of the engine. One side may be nil for
// orphans; both records are copies of the inputs.
type MatchResult struct {
	Left   *CanonicalRecord           `json:"left_record"`
	Right  *CanonicalRecord           `json:"right_record"`
	Deltas map[string]decimal.Decimal `json:"per_field_delta"`
	Method MatchMethod                `json:"match_method"`
	Status MatchStatus                `json:"status"`
}

// ComputeDeltas builds the per-field left−right delta map. A nil side
// contributes zero for every field, so an orphan's deltas equal the
// surviving side's values (signed).
func ComputeDeltas(left, right *CanonicalRecord) map[string]decimal.Decimal {
	leftVal := func(f func(*CanonicalRecord) decimal.Decimal) decimal.Decimal {
		if left == nil {
			return decimal.Zero
		}
		return f(left)
	}
	rightVal := func(f func(*CanonicalRecord) decimal.Decimal) decimal.Decimal {
		if right == nil {
			return decimal.Zero
		}
		return f(right)
	}

	deltas := make(map[string]decimal.Decimal, len(DeltaFields()))
	deltas[DeltaTaxableAmount] = leftVal(func(r *CanonicalRecord) decimal.Decimal { return r.TaxableAmount }).
		Sub(rightVal(func(r *CanonicalRecord) decimal.Decimal { return r.TaxableAmount }))
	deltas[DeltaGrossAmount] = leftVal(func(r *CanonicalRecord) decimal.Decimal { return r.GrossAmount }).
		Sub(rightVal(func(r *CanonicalRecord) decimal.Decimal { return r.GrossAmount }))
	for _, c := range TaxComponents() {
		component := c
		deltas[string(c)] = leftVal(func(r *CanonicalRecord) decimal.Decimal { return r.Taxes.Get(component) }).
			Sub(rightVal(func(r *CanonicalRecord) decimal.Decimal { return r.Taxes.Get(component) }))
	}
	return deltas
}

// WithinTolerance reports whether |value| <= tolerance. The boundary is
// inclusive: a delta exactly equal to the tolerance counts as matched.
func WithinTolerance(value, tolerance decimal.Decimal) bool {
	return value.Abs().LessThanOrEqual(tolerance)
}

// NormalizeKey applies the canonical key normalization: trim whitespace
// and uppercase. Both sides of a reconciliation pass through this before
// any comparison.
func NormalizeKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

var gstinPattern = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)

// IsValidGSTIN checks the checksum-free structural GSTIN format.
func IsValidGSTIN(gstin string) bool {
	return gstinPattern.MatchString(NormalizeKey(gstin))
}

var adjustmentPattern = regexp.MustCompile(`(?i)(CDNR|CREDIT|CR\.|DEBIT|DR\.|NOTE)`)

// ParseCategory maps an uncontrolled document-type tag to a category.
// Anything that looks like a credit/debit note is an adjustment; the
// rest defaults to standard.
func ParseCategory(tag string) DocumentCategory {
	if adjustmentPattern.MatchString(strings.TrimSpace(tag)) {
		return CategoryAdjustment
	}
	return CategoryStandard
}

var nonNumeric = regexp.MustCompile(`[^\d.\-]`)

// ParseAmount converts an uncontrolled numeric string into a decimal.
// Thousands separators and currency glyphs are stripped; a value with
// no digits left after stripping parses to zero rather than erroring.
func ParseAmount(s string) decimal.Decimal {
	cleaned := nonNumeric.ReplaceAllString(strings.TrimSpace(s), "")
	if !strings.ContainsAny(cleaned, "0123456789") {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// dateFormats lists accepted document date layouts, day-first formats
// before year-first since uploads follow Indian conventions.
var dateFormats = []string{
	"02-01-2006",
	"02/01/2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"2006-01-02",
	"2006/01/02",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ParseDate parses a document date; unparsable dates return nil, which
// routes the record into the out-of-period audit bucket.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return &t
		}
	}
	return nil
}
