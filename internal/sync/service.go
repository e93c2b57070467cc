// Package sync contains the core pipeline: diff against persisted
// state, match against remote search results, and the reconciliation
// state machine that applies writes. One profile, one browser session,
// one book at a time; the shared page is a single mutable resource and
// nothing here fans out.
package sync

import (
	"fmt"
	"time"

	"github.com/jtara/storygraph-sync/internal/diff"
	"github.com/jtara/storygraph-sync/internal/logger"
	"github.com/jtara/storygraph-sync/internal/models"
	"github.com/jtara/storygraph-sync/internal/sync/state"
)

// Outcome is the per-record line of a run summary.
type Outcome struct {
	Key    string
	Title  string
	Result string // applied | planned | skipped | failed | unchanged | seeded
	Detail string
}

// Summary is what one flow reports back to the caller.
type Summary struct {
	Flow      string
	Mode      string
	Started   time.Time
	Finished  time.Time
	Succeeded int
	Skipped   int
	Failed    int
	Unchanged int
	Seeded    int
	Outcomes  []Outcome
}

// add appends an outcome and bumps the matching counter.
func (s *Summary) add(key, title, result, detail string) {
	s.Outcomes = append(s.Outcomes, Outcome{Key: key, Title: title, Result: result, Detail: detail})
	switch result {
	case "applied", "planned":
		s.Succeeded++
	case "skipped":
		s.Skipped++
	case "failed":
		s.Failed++
	case "unchanged":
		s.Unchanged++
	case "seeded":
		s.Seeded++
	}
}

// DetailsFunc enriches a scraped record with per-record detail (the
// Goodreads review-page date scrape).
type DetailsFunc func(models.BookRecord) (models.BookRecord, error)

// Service runs the two sync flows over injected collaborators.
type Service struct {
	reconciler *Reconciler
	log        *logger.Logger
}

// NewService builds the service around a reconciler.
func NewService(reconciler *Reconciler, log *logger.Logger) *Service {
	return &Service{reconciler: reconciler, log: log}
}

// RunProgress syncs in-progress audiobook percentages. The store is
// read before and saved after; entries are only updated for records
// that reached Done, so a crash mid-run costs at most a redundant
// re-attempt next run.
func (s *Service) RunProgress(observed []models.BookRecord, store *state.Store, connect ConnectFunc, dryRun bool) (*Summary, error) {
	summary := &Summary{
		Flow:    "progress",
		Mode:    mode(dryRun),
		Started: time.Now(),
	}
	defer func() { summary.Finished = time.Now() }()

	updates, unchanged := diff.Diff(observed, store.Entries())

	for _, record := range unchanged {
		s.log.Debug("Unchanged, skipping", map[string]interface{}{
			"title":   record.Title,
			"percent": record.PercentComplete,
		})
		summary.add(record.Title, record.Title, "unchanged", "")
	}

	if len(updates) == 0 {
		s.log.Info("Nothing to update", map[string]interface{}{
			"observed":  len(observed),
			"unchanged": len(unchanged),
		})
		return summary, nil
	}

	s.logDiff(updates)

	collabs, err := connect()
	if err != nil {
		return summary, fmt.Errorf("failed to connect to remote: %w", err)
	}

	for _, delta := range updates {
		record := delta.Record
		percent := int(record.PercentComplete + 0.5)

		result := s.reconciler.SyncProgress(collabs, record, percent, dryRun)
		switch {
		case result.Applied():
			store.SetPercent(record.Title, record.PercentComplete)
			summary.add(record.Title, record.Title, "applied", "")
		case result.Planned():
			summary.add(record.Title, record.Title, "planned", fmt.Sprintf("would set %d%%", percent))
		case result.Failure == FailureNoMatch || result.Failure == FailureAmbiguous:
			s.log.Warn("Record skipped", map[string]interface{}{
				"title":  record.Title,
				"reason": string(result.Failure),
			})
			summary.add(record.Title, record.Title, "skipped", result.Detail)
		default:
			s.log.Error("Record failed", map[string]interface{}{
				"title":  record.Title,
				"reason": string(result.Failure),
				"detail": result.Detail,
			})
			summary.add(record.Title, record.Title, "failed", result.Detail)
		}
	}

	if !dryRun {
		if err := store.Save(); err != nil {
			return summary, fmt.Errorf("failed to save sync state: %w", err)
		}
	}

	s.logSummary(summary)
	return summary, nil
}

// RunRead syncs finished Goodreads books to the remote as "read" with
// dates. seedBefore switches to seed mode: reviews finished on or
// before the cutoff are marked processed without any remote write.
func (s *Service) RunRead(stubs []models.BookRecord, details DetailsFunc, store *state.Store, connect ConnectFunc, dryRun bool, seedBefore *time.Time) (*Summary, error) {
	summary := &Summary{
		Flow:    "read",
		Mode:    mode(dryRun),
		Started: time.Now(),
	}
	if seedBefore != nil {
		summary.Mode = "seed"
	}
	defer func() { summary.Finished = time.Now() }()

	var pending []models.BookRecord
	for _, stub := range stubs {
		if store.IsProcessed(stub.ID) {
			continue
		}

		record, err := details(stub)
		if err != nil {
			s.log.Warn("Failed to fetch review details", map[string]interface{}{
				"review_id": stub.ID,
				"title":     stub.Title,
				"error":     err.Error(),
			})
			summary.add(stub.ID, stub.Title, "failed", err.Error())
			continue
		}

		if record.Author == "" {
			s.log.Warn("Author missing on source record", map[string]interface{}{
				"title":     record.Title,
				"review_id": record.ID,
			})
		}

		if seedBefore != nil {
			if record.DateFinished == "" {
				summary.add(record.ID, record.Title, "skipped", "no finish date")
				continue
			}
			finished, err := time.Parse("2006-01-02", record.DateFinished)
			if err != nil {
				summary.add(record.ID, record.Title, "skipped", fmt.Sprintf("bad finish date %q", record.DateFinished))
				continue
			}
			if !finished.After(*seedBefore) {
				store.MarkProcessed(record.ID)
				summary.add(record.ID, record.Title, "seeded", record.DateFinished)
				s.log.Info("Seeded", map[string]interface{}{
					"title":    record.Title,
					"finished": record.DateFinished,
				})
			}
			continue
		}

		if record.DateStarted == "" && record.DateFinished == "" {
			s.log.Info("Skipping record without dates", map[string]interface{}{
				"title": record.Title,
			})
			summary.add(record.ID, record.Title, "skipped", "no dates found")
			continue
		}

		pending = append(pending, record)
	}

	// Seed mode never opens a browser; persist as soon as the phase is
	// done.
	if seedBefore != nil {
		if err := store.Save(); err != nil {
			return summary, fmt.Errorf("failed to save sync state: %w", err)
		}
		s.log.Info("Seed complete", map[string]interface{}{
			"seeded": summary.Seeded,
			"cutoff": seedBefore.Format("2006-01-02"),
		})
		return summary, nil
	}

	if len(pending) == 0 {
		s.log.Info("No new books to sync", nil)
		return summary, nil
	}

	collabs, err := connect()
	if err != nil {
		return summary, fmt.Errorf("failed to connect to remote: %w", err)
	}

	for _, record := range pending {
		result := s.reconciler.SyncRead(collabs, record, dryRun)
		switch {
		case result.Applied():
			store.MarkProcessed(record.ID)
			summary.add(record.ID, record.Title, "applied", "")
		case result.Planned():
			summary.add(record.ID, record.Title, "planned", fmt.Sprintf("would mark read (start=%s finish=%s)", record.DateStarted, record.DateFinished))
		case result.Failure == FailureNoMatch || result.Failure == FailureAmbiguous:
			summary.add(record.ID, record.Title, "skipped", result.Detail)
		default:
			summary.add(record.ID, record.Title, "failed", result.Detail)
		}
	}

	if !dryRun {
		if err := store.Save(); err != nil {
			return summary, fmt.Errorf("failed to save sync state: %w", err)
		}
	}

	s.logSummary(summary)
	return summary, nil
}

func (s *Service) logDiff(updates []models.ProgressDelta) {
	for _, delta := range updates {
		fields := map[string]interface{}{
			"title":   delta.Record.Title,
			"percent": delta.Record.PercentComplete,
			"reason":  string(delta.Reason),
		}
		if delta.PreviousPercent != nil {
			fields["previous_percent"] = *delta.PreviousPercent
		}
		s.log.Info("Will update", fields)
	}
}

func (s *Service) logSummary(summary *Summary) {
	s.log.Info("Run summary", map[string]interface{}{
		"flow":      summary.Flow,
		"mode":      summary.Mode,
		"succeeded": summary.Succeeded,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
		"unchanged": summary.Unchanged,
	})
}

func mode(dryRun bool) string {
	if dryRun {
		return "dry-run"
	}
	return "apply"
}
