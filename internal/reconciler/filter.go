package reconciler

import (
	"gst-reconciliation-service/internal/models"
)

// FilterPeriod partitions records into those whose document date falls
// inside the target periods and the rest. Records with no parseable
// date can never be proven in-period, so they land in the audit bucket
// rather than silently joining the run.
func FilterPeriod(records []*models.CanonicalRecord, targets models.PeriodSet) (in, out []*models.CanonicalRecord) {
	for _, rec := range records {
		if targets.ContainsDate(rec.DocumentDate) {
			in = append(in, rec)
		} else {
			out = append(out, rec)
		}
	}
	return in, out
}
