package sync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jtara/storygraph-sync/internal/browser"
	"github.com/jtara/storygraph-sync/internal/logger"
	"github.com/jtara/storygraph-sync/internal/match"
	"github.com/jtara/storygraph-sync/internal/models"
	"github.com/jtara/storygraph-sync/internal/storygraph"
)

// Status values written to the remote.
const (
	StatusRead             = "read"
	StatusCurrentlyReading = "currently reading"
)

// ReconcilerConfig carries the retry and tolerance policy. Counts are
// additional attempts beyond the first.
type ReconcilerConfig struct {
	// VerifyTolerance accepts a readback within this absolute distance
	// of the intended percentage (remote rounding).
	VerifyTolerance int
	// EditRetries is how many full submit+verify cycles may follow a
	// verification mismatch.
	EditRetries int
	// OpenRetries is how many times opening the progress surface is
	// retried after forcing the status to "currently reading".
	OpenRetries int
}

// DefaultReconcilerConfig is the strictest observed policy: one retry
// everywhere, ±1 verification tolerance.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		VerifyTolerance: 1,
		EditRetries:     1,
		OpenRetries:     1,
	}
}

// Reconciler drives the per-record state machine that brings one remote
// record in line with a source-of-truth value:
//
//	Idle → Searching → Matched → [StatusSet] → ProgressEditing → Verifying → Done|Failed
//
// Every transition is logged with the record's context. Failures are
// terminal per record and never abort the batch.
type Reconciler struct {
	resolver *match.Resolver
	cfg      ReconcilerConfig
	log      *logger.Logger
}

// NewReconciler builds a reconciler with the given matching policy.
func NewReconciler(resolver *match.Resolver, cfg ReconcilerConfig, log *logger.Logger) *Reconciler {
	return &Reconciler{
		resolver: resolver,
		cfg:      cfg,
		log:      log,
	}
}

// searchAndResolve runs Idle → Searching → Matched|Failed.
func (r *Reconciler) searchAndResolve(searcher Searcher, record models.BookRecord, log *logger.Logger) (*models.SearchResult, Result) {
	author := match.NormalizeAuthorName(record.Author)

	query := record.Title
	if author != "" {
		query = fmt.Sprintf("%s %s", record.Title, author)
	}

	log.Debug("State transition", map[string]interface{}{
		"state": StateSearching.String(),
		"query": query,
	})

	candidates, err := searcher.Search(query)
	if err != nil {
		return nil, r.classifyRemoteError(err, "search")
	}

	decision := r.resolver.Resolve(candidates, record.Title, author)
	switch decision.Outcome {
	case models.Matched:
		log.Debug("State transition", map[string]interface{}{
			"state":   StateMatched.String(),
			"matched": decision.Result.Title,
		})
		return decision.Result, Result{}
	case models.Ambiguous:
		// Retrying is pointless: the same candidates come back.
		return nil, failure(FailureAmbiguous, "%d candidates survived disambiguation", len(decision.Candidates))
	default:
		return nil, failure(FailureNoMatch, "no confident match for %q", record.Title)
	}
}

// SyncProgress reconciles one record's progress percentage. In dry-run
// the machine stops after Matched and reports the planned write.
func (r *Reconciler) SyncProgress(collabs *Collaborators, record models.BookRecord, percent int, dryRun bool) Result {
	log := r.log.With(map[string]interface{}{
		"title":   record.Title,
		"author":  record.Author,
		"percent": percent,
	})

	target, fail := r.searchAndResolve(collabs.Searcher, record, log)
	if fail.State == StateFailed {
		return fail
	}

	if dryRun {
		log.Info("Dry run: would set progress", map[string]interface{}{
			"matched_title": target.Title,
			"url":           target.URL,
		})
		return Result{State: StateMatched, Match: target}
	}

	if err := collabs.Remote.NavigateToBook(*target); err != nil {
		return r.classifyRemoteError(err, "navigation")
	}

	if res := r.editAndVerify(collabs.Remote, percent, log); res.State == StateFailed {
		res.Match = target
		return res
	}

	log.Info("Progress reconciled", map[string]interface{}{
		"matched_title": target.Title,
	})
	return Result{State: StateDone, Match: target}
}

// SyncRead reconciles one finished book: status "read" plus start and
// finish dates. Dates are best-effort; a date failure after a
// successful status write still counts as applied.
func (r *Reconciler) SyncRead(collabs *Collaborators, record models.BookRecord, dryRun bool) Result {
	log := r.log.With(map[string]interface{}{
		"title":  record.Title,
		"author": record.Author,
		"start":  record.DateStarted,
		"finish": record.DateFinished,
	})

	target, fail := r.searchAndResolve(collabs.Searcher, record, log)
	if fail.State == StateFailed {
		return fail
	}

	if dryRun {
		log.Info("Dry run: would mark as read", map[string]interface{}{
			"matched_title": target.Title,
			"url":           target.URL,
		})
		return Result{State: StateMatched, Match: target}
	}

	if err := collabs.Remote.NavigateToBook(*target); err != nil {
		return r.classifyRemoteError(err, "navigation")
	}

	if err := collabs.Remote.SetStatus(StatusRead); err != nil {
		res := r.classifyRemoteError(err, "status write")
		res.Match = target
		return res
	}
	log.Debug("State transition", map[string]interface{}{
		"state": StateStatusSet.String(),
	})

	if err := collabs.Remote.SetReadDates(record.DateStarted, record.DateFinished); err != nil {
		log.Warn("Read dates could not be set, record still applied", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Book marked as read", map[string]interface{}{
		"matched_title": target.Title,
	})
	return Result{State: StateDone, Match: target}
}

// editAndVerify runs ProgressEditing → Verifying with the configured
// retry budget: the full submit+verify cycle repeats at most
// EditRetries times after a verification mismatch.
func (r *Reconciler) editAndVerify(remote Remote, percent int, log *logger.Logger) Result {
	var lastVerify *VerificationError

	for attempt := 0; attempt <= r.cfg.EditRetries; attempt++ {
		log.Debug("State transition", map[string]interface{}{
			"state":   StateProgressEditing.String(),
			"attempt": attempt + 1,
		})

		if err := r.openProgressSurface(remote, log); err != nil {
			return r.classifyRemoteError(err, "progress surface")
		}

		if err := remote.SubmitProgress(percent); err != nil {
			return r.classifyRemoteError(err, "progress submit")
		}

		log.Debug("State transition", map[string]interface{}{
			"state": StateVerifying.String(),
		})

		readback, ok, err := remote.ReadProgress()
		if err != nil {
			return r.classifyRemoteError(err, "progress readback")
		}

		if ok && abs(readback-percent) <= r.cfg.VerifyTolerance {
			log.Debug("Progress verified", map[string]interface{}{
				"readback": readback,
			})
			return Result{State: StateDone}
		}

		lastVerify = &VerificationError{Intended: percent, Readback: readback, HasValue: ok}
		log.Warn("Verification mismatch", map[string]interface{}{
			"error":   lastVerify.Error(),
			"attempt": attempt + 1,
		})
	}

	return failure(FailureVerification, "%v", lastVerify)
}

// openProgressSurface opens the progress editor, escalating once when
// the surface is hidden: the remote only exposes it for in-progress
// items, so the status is forced to "currently reading" first.
func (r *Reconciler) openProgressSurface(remote Remote, log *logger.Logger) error {
	err := remote.OpenProgressForm()
	if err == nil {
		return nil
	}

	log.Warn("Progress surface not available, forcing status", map[string]interface{}{
		"error":  err.Error(),
		"status": StatusCurrentlyReading,
	})

	for attempt := 0; attempt < r.cfg.OpenRetries; attempt++ {
		if statusErr := remote.SetStatus(StatusCurrentlyReading); statusErr != nil {
			return fmt.Errorf("failed to force status before reopening progress surface: %w", statusErr)
		}
		if err = remote.OpenProgressForm(); err == nil {
			return nil
		}
	}

	return err
}

// classifyRemoteError folds collaborator errors into failure kinds.
func (r *Reconciler) classifyRemoteError(err error, step string) Result {
	var timeout *browser.TimeoutError
	if errors.As(err, &timeout) {
		return failure(FailureTimeout, "%s timed out: %v", step, err)
	}
	if errors.Is(err, storygraph.ErrProgressFormUnavailable) {
		return failure(FailureRemote, "%s: %v", step, err)
	}
	return failure(FailureRemote, "%s failed: %s", step, strings.TrimSpace(err.Error()))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
