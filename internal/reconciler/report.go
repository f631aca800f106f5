package reconciler

import (
	"time"

	"github.com/shopspring/decimal"

	"gst-reconciliation-service/internal/models"
)

// SideTotals aggregates one side of the reconciliation.
type SideTotals struct {
	RecordCount   int                 `json:"record_count"`
	GrossAmount   decimal.Decimal     `json:"gross_amount"`
	TaxableAmount decimal.Decimal     `json:"taxable_amount"`
	Taxes         models.TaxBreakdown `json:"taxes"`
}

// Summary carries per-side totals, signed left−right deltas and the
// overall reconciliation verdict.
type Summary struct {
	Left              SideTotals                 `json:"left"`
	Right             SideTotals                 `json:"right"`
	Deltas            map[string]decimal.Decimal `json:"deltas"`
	IsFullyReconciled bool                       `json:"is_fully_reconciled"`
}

// ReconciliationReport is the complete output of a run: every input
// record lands in exactly one bucket, plus provenance and totals.
type ReconciliationReport struct {
	RunID       string          `json:"run_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Period      string          `json:"period,omitempty"`
	Tolerance   decimal.Decimal `json:"tolerance"`

	Matched                []*models.MatchResult `json:"matched"`
	ValueMismatch          []*models.MatchResult `json:"value_mismatch"`
	DocumentNumberMismatch []*models.MatchResult `json:"document_number_mismatch"`
	LeftOnly               []*models.MatchResult `json:"left_only"`
	RightOnly              []*models.MatchResult `json:"right_only"`

	// OutOfPeriod holds records excluded by the period filter,
	// including those with unparsable dates. They take no part in
	// matching or totals but stay visible for audit.
	OutOfPeriod []*models.CanonicalRecord `json:"out_of_period"`

	// GapPeriods lists target periods the portal fetch could not
	// cover; populated only when the run allows gaps.
	GapPeriods []string `json:"gap_periods,omitempty"`

	Summary *Summary `json:"summary"`
}

// TotalResults counts the classified match results across all buckets.
func (r *ReconciliationReport) TotalResults() int {
	return len(r.Matched) + len(r.ValueMismatch) + len(r.DocumentNumberMismatch) +
		len(r.LeftOnly) + len(r.RightOnly)
}

// buildSummary totals both in-period sides and derives the verdict:
// fully reconciled means every summary delta is within tolerance.
func buildSummary(left, right []*models.CanonicalRecord, tolerance decimal.Decimal) *Summary {
	s := &Summary{
		Left:   sideTotals(left),
		Right:  sideTotals(right),
		Deltas: make(map[string]decimal.Decimal, len(models.DeltaFields())),
	}

	s.Deltas[models.DeltaTaxableAmount] = s.Left.TaxableAmount.Sub(s.Right.TaxableAmount)
	s.Deltas[models.DeltaGrossAmount] = s.Left.GrossAmount.Sub(s.Right.GrossAmount)
	for _, c := range models.TaxComponents() {
		s.Deltas[string(c)] = s.Left.Taxes.Get(c).Sub(s.Right.Taxes.Get(c))
	}

	s.IsFullyReconciled = true
	for _, delta := range s.Deltas {
		if !models.WithinTolerance(delta, tolerance) {
			s.IsFullyReconciled = false
			break
		}
	}
	return s
}

func sideTotals(records []*models.CanonicalRecord) SideTotals {
	totals := SideTotals{
		RecordCount:   len(records),
		GrossAmount:   decimal.Zero,
		TaxableAmount: decimal.Zero,
		Taxes:         models.NewTaxBreakdown(),
	}
	for _, rec := range records {
		totals.GrossAmount = totals.GrossAmount.Add(rec.GrossAmount)
		totals.TaxableAmount = totals.TaxableAmount.Add(rec.TaxableAmount)
		totals.Taxes = totals.Taxes.Add(rec.Taxes)
	}
	return totals
}
