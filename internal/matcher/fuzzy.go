package matcher

import (
	"github.com/shopspring/decimal"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/logger"
)

// FuzzyMatch pairs exact-match leftovers by value similarity within
// the same business key. A right record is a candidate for a left
// record when the taxable amount and every tax component agree within
// the tolerance. Matching is greedy first-fit in input order: each
// left record claims the earliest unclaimed candidate, and a claimed
// record is never reconsidered for a later left record. Gross amount
// is deliberately not part of the candidate test; the caller uses it
// to tell a renumbered document from a genuine value difference.
func FuzzyMatch(left, right []*models.CanonicalRecord, tolerance decimal.Decimal) (pairs []Pair, leftOrphans, rightOrphans []*models.CanonicalRecord) {
	log := logger.WithComponent("fuzzy_matcher")

	rightByKey := make(map[string][]int)
	for i, rec := range right {
		rightByKey[rec.BusinessKey] = append(rightByKey[rec.BusinessKey], i)
	}

	claimed := make([]bool, len(right))
	for _, rec := range left {
		matched := false
		for _, idx := range rightByKey[rec.BusinessKey] {
			if claimed[idx] {
				continue
			}
			if !valuesWithinTolerance(rec, right[idx], tolerance) {
				continue
			}
			claimed[idx] = true
			pairs = append(pairs, Pair{Left: rec, Right: right[idx]})
			matched = true
			break
		}
		if !matched {
			leftOrphans = append(leftOrphans, rec)
		}
	}

	for i, rec := range right {
		if !claimed[i] {
			rightOrphans = append(rightOrphans, rec)
		}
	}

	log.WithFields(logger.Fields{
		"left_records":  len(left),
		"right_records": len(right),
		"pairs":         len(pairs),
		"left_orphans":  len(leftOrphans),
		"right_orphans": len(rightOrphans),
	}).Debug("Fuzzy value matching complete")

	return pairs, leftOrphans, rightOrphans
}

// valuesWithinTolerance reports whether the taxable amount and all
// four tax components of the two records differ by at most the
// tolerance each.
func valuesWithinTolerance(left, right *models.CanonicalRecord, tolerance decimal.Decimal) bool {
	if !models.WithinTolerance(left.TaxableAmount.Sub(right.TaxableAmount), tolerance) {
		return false
	}
	for _, component := range []models.TaxComponent{
		models.ComponentIGST,
		models.ComponentCGST,
		models.ComponentSGST,
		models.ComponentCess,
	} {
		delta := left.Taxes.Get(component).Sub(right.Taxes.Get(component))
		if !models.WithinTolerance(delta, tolerance) {
			return false
		}
	}
	return true
}
