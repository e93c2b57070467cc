// Package diff classifies freshly observed progress records against the
// persisted sync state. Pure functions only; no I/O.
package diff

import (
	"math"

	"github.com/jtara/storygraph-sync/internal/models"
	"github.com/jtara/storygraph-sync/internal/sync/state"
)

// Epsilon is the minimum progress movement that counts as a change.
// A delta must be strictly greater than this to classify as changed.
const Epsilon = 0.01

// Diff splits observed records into updates (new or changed) and
// unchanged records. Records are keyed by title. Unchanged records are
// returned for reporting but never enter the update set.
func Diff(observed []models.BookRecord, prior map[string]state.Entry) (updates []models.ProgressDelta, unchanged []models.BookRecord) {
	for _, record := range observed {
		entry, exists := prior[record.Title]
		if !exists || entry.PercentComplete == nil {
			updates = append(updates, models.ProgressDelta{
				Record: record,
				Reason: models.DeltaNew,
			})
			continue
		}

		previous := *entry.PercentComplete
		if math.Abs(record.PercentComplete-previous) > Epsilon {
			prev := previous
			updates = append(updates, models.ProgressDelta{
				Record:          record,
				Reason:          models.DeltaChanged,
				PreviousPercent: &prev,
			})
			continue
		}

		unchanged = append(unchanged, record)
	}

	return updates, unchanged
}
