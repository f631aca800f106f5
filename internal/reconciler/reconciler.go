// Package reconciler runs the reconciliation pipeline: period filter,
// exact key match, fuzzy value match, classification and aggregation
// into a report.
package reconciler

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gst-reconciliation-service/internal/matcher"
	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"
)

// Config controls one reconciliation run.
type Config struct {
	// Tolerance is the inclusive per-field amount tolerance in rupees.
	Tolerance decimal.Decimal

	// PeriodSpec restricts the run to a filing period. Nil disables
	// period filtering and every dated record participates.
	PeriodSpec *models.PeriodSpec

	// GapPeriods are target periods the upstream fetch could not
	// cover; they are carried into the report untouched.
	GapPeriods []string
}

// DefaultConfig returns a config with the standard one-rupee tolerance
// and no period restriction.
func DefaultConfig() *Config {
	return &Config{Tolerance: matcher.DefaultMatchingConfig().Tolerance}
}

// Validate checks the run configuration.
func (c *Config) Validate() error {
	matching := matcher.MatchingConfig{Tolerance: c.Tolerance}
	if err := matching.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "tolerance", c.Tolerance.String(), err)
	}
	if c.PeriodSpec != nil {
		if err := c.PeriodSpec.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Reconciler executes reconciliation runs. It holds no per-run state;
// the same instance can serve any number of runs.
type Reconciler struct {
	config *Config
	log    logger.Logger
}

// NewReconciler builds a reconciler or reports a configuration error.
func NewReconciler(config *Config) (*Reconciler, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Reconciler{
		config: config,
		log:    logger.WithComponent("reconciler"),
	}, nil
}

// Reconcile matches the left side (portal) against the right side
// (books) and classifies every record into exactly one bucket. The
// inputs are never mutated; results carry copies. The same inputs and
// config always produce the same buckets in the same order.
func (r *Reconciler) Reconcile(ctx context.Context, left, right []*models.CanonicalRecord) (*ReconciliationReport, error) {
	start := time.Now()
	report := &ReconciliationReport{
		RunID:       uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
		Tolerance:   r.config.Tolerance,
		GapPeriods:  append([]string(nil), r.config.GapPeriods...),

		Matched:                []*models.MatchResult{},
		ValueMismatch:          []*models.MatchResult{},
		DocumentNumberMismatch: []*models.MatchResult{},
		LeftOnly:               []*models.MatchResult{},
		RightOnly:              []*models.MatchResult{},
		OutOfPeriod:            []*models.CanonicalRecord{},
	}

	leftIn, rightIn := left, right
	if r.config.PeriodSpec != nil {
		report.Period = r.config.PeriodSpec.Label()
		targets, err := r.config.PeriodSpec.TargetSet()
		if err != nil {
			return nil, err
		}

		var leftOut, rightOut []*models.CanonicalRecord
		leftIn, leftOut = FilterPeriod(left, targets)
		rightIn, rightOut = FilterPeriod(right, targets)
		for _, rec := range leftOut {
			report.OutOfPeriod = append(report.OutOfPeriod, rec.Clone())
		}
		for _, rec := range rightOut {
			report.OutOfPeriod = append(report.OutOfPeriod, rec.Clone())
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.ReconciliationError(errors.CodeProcessingError, "reconcile", err)
	}

	exactPairs, leftLeftover, rightLeftover := matcher.ExactMatch(leftIn, rightIn)
	for _, pair := range exactPairs {
		report.addResult(r.classifyExact(pair))
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.ReconciliationError(errors.CodeProcessingError, "reconcile", err)
	}

	fuzzyPairs, leftOrphans, rightOrphans := matcher.FuzzyMatch(leftLeftover, rightLeftover, r.config.Tolerance)
	for _, pair := range fuzzyPairs {
		report.addResult(r.classifyFuzzy(pair))
	}
	for _, rec := range leftOrphans {
		report.addResult(newResult(rec, nil, "", models.StatusLeftOnly))
	}
	for _, rec := range rightOrphans {
		report.addResult(newResult(nil, rec, "", models.StatusRightOnly))
	}

	sortBucket(report.Matched)
	sortBucket(report.ValueMismatch)
	sortBucket(report.DocumentNumberMismatch)
	sortBucket(report.LeftOnly)
	sortBucket(report.RightOnly)
	sortRecords(report.OutOfPeriod)

	report.Summary = buildSummary(leftIn, rightIn, r.config.Tolerance)

	r.log.WithFields(logger.Fields{
		"run_id":           report.RunID,
		"matched":          len(report.Matched),
		"value_mismatch":   len(report.ValueMismatch),
		"doc_mismatch":     len(report.DocumentNumberMismatch),
		"left_only":        len(report.LeftOnly),
		"right_only":       len(report.RightOnly),
		"out_of_period":    len(report.OutOfPeriod),
		"fully_reconciled": report.Summary.IsFullyReconciled,
		"duration":         time.Since(start).String(),
	}).Info("Reconciliation run complete")

	return report, nil
}

// classifyExact turns an exact key pair into MATCHED when every field
// delta is within tolerance, VALUE_MISMATCH otherwise.
func (r *Reconciler) classifyExact(pair matcher.Pair) *models.MatchResult {
	result := newResult(pair.Left, pair.Right, models.MethodExactKey, models.StatusMatched)
	for _, field := range models.DeltaFields() {
		if !models.WithinTolerance(result.Deltas[field], r.config.Tolerance) {
			result.Status = models.StatusValueMismatch
			break
		}
	}
	return result
}

// classifyFuzzy splits value-similar pairs on the gross amount: when
// it also agrees within tolerance the documents differ only in number,
// otherwise a genuine value difference remains.
func (r *Reconciler) classifyFuzzy(pair matcher.Pair) *models.MatchResult {
	result := newResult(pair.Left, pair.Right, models.MethodFuzzyValue, models.StatusValueMismatch)
	if models.WithinTolerance(result.Deltas[models.DeltaGrossAmount], r.config.Tolerance) {
		result.Status = models.StatusDocumentMismatch
	}
	return result
}

func newResult(left, right *models.CanonicalRecord, method models.MatchMethod, status models.MatchStatus) *models.MatchResult {
	result := &models.MatchResult{
		Deltas: models.ComputeDeltas(left, right),
		Method: method,
		Status: status,
	}
	if left != nil {
		result.Left = left.Clone()
	}
	if right != nil {
		result.Right = right.Clone()
	}
	return result
}

func (r *ReconciliationReport) addResult(result *models.MatchResult) {
	switch result.Status {
	case models.StatusMatched:
		r.Matched = append(r.Matched, result)
	case models.StatusValueMismatch:
		r.ValueMismatch = append(r.ValueMismatch, result)
	case models.StatusDocumentMismatch:
		r.DocumentNumberMismatch = append(r.DocumentNumberMismatch, result)
	case models.StatusLeftOnly:
		r.LeftOnly = append(r.LeftOnly, result)
	case models.StatusRightOnly:
		r.RightOnly = append(r.RightOnly, result)
	}
}

// sortBucket orders results by document date ascending with undated
// results last; the stable sort keeps input order as the tie-break so
// repeated runs emit identical reports.
func sortBucket(results []*models.MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return dateLess(resultDate(results[i]), resultDate(results[j]))
	})
}

func sortRecords(records []*models.CanonicalRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return dateLess(records[i].DocumentDate, records[j].DocumentDate)
	})
}

func resultDate(result *models.MatchResult) *time.Time {
	if result.Left != nil {
		return result.Left.DocumentDate
	}
	if result.Right != nil {
		return result.Right.DocumentDate
	}
	return nil
}

func dateLess(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.Before(*b)
}
