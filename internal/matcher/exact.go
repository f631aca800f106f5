// Package matcher pairs canonical records across the two sides of a
// reconciliation: first by exact composite key, then by value
// similarity for the leftovers.
package matcher

import (
	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/logger"
)

// Pair is a left/right record pairing produced by a matcher.
type Pair struct {
	Left  *models.CanonicalRecord
	Right *models.CanonicalRecord
}

// ExactMatch performs a multiset outer join on the composite
// (business key, document key). For each key present on both sides,
// records pop pairwise in input order (FIFO); excess occurrences and
// one-sided keys become leftovers. Duplicate keys therefore pair up
// once per occurrence instead of crashing or dropping records.
func ExactMatch(left, right []*models.CanonicalRecord) (pairs []Pair, leftLeftover, rightLeftover []*models.CanonicalRecord) {
	log := logger.WithComponent("exact_matcher")

	// Queue right-side indices per key; claimed records drop out of the
	// leftover scan below.
	rightQueues := make(map[models.CompositeKey][]int)
	for i, rec := range right {
		key := rec.CompositeKey()
		rightQueues[key] = append(rightQueues[key], i)
	}

	claimed := make([]bool, len(right))
	for _, rec := range left {
		key := rec.CompositeKey()
		queue := rightQueues[key]
		if len(queue) == 0 {
			leftLeftover = append(leftLeftover, rec)
			continue
		}
		idx := queue[0]
		rightQueues[key] = queue[1:]
		claimed[idx] = true
		pairs = append(pairs, Pair{Left: rec, Right: right[idx]})
	}

	for i, rec := range right {
		if !claimed[i] {
			rightLeftover = append(rightLeftover, rec)
		}
	}

	log.WithFields(logger.Fields{
		"left_records":   len(left),
		"right_records":  len(right),
		"pairs":          len(pairs),
		"left_leftover":  len(leftLeftover),
		"right_leftover": len(rightLeftover),
	}).Debug("Exact key matching complete")

	return pairs, leftLeftover, rightLeftover
}
