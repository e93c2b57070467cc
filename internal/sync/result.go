package sync

import (
	"fmt"

	"github.com/jtara/storygraph-sync/internal/models"
)

// State is a position in the reconciliation state machine.
type State int

const (
	StateIdle State = iota
	StateSearching
	StateMatched
	StateStatusSet
	StateProgressEditing
	StateVerifying
	StateDone
	StateFailed
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	case StateMatched:
		return "matched"
	case StateStatusSet:
		return "status_set"
	case StateProgressEditing:
		return "progress_editing"
	case StateVerifying:
		return "verifying"
	case StateDone:
		return "done"
	default:
		return "failed"
	}
}

// FailureKind classifies why a record failed. Per-record failures never
// abort the batch.
type FailureKind string

const (
	FailureNone         FailureKind = ""
	FailureNoMatch      FailureKind = "no_match"
	FailureAmbiguous    FailureKind = "ambiguous"
	FailureTimeout      FailureKind = "timeout"
	FailureRemote       FailureKind = "remote"
	FailureVerification FailureKind = "verification"
)

// Result is the terminal outcome of reconciling one record. State is
// StateDone, StateFailed, or StateMatched for a dry-run that stopped
// before the mutating states.
type Result struct {
	State   State
	Failure FailureKind
	Match   *models.SearchResult
	Detail  string
}

// Applied reports whether the record's remote state now matches intent.
func (r Result) Applied() bool {
	return r.State == StateDone
}

// Planned reports a dry-run result that found a confident match.
func (r Result) Planned() bool {
	return r.State == StateMatched
}

func failure(kind FailureKind, format string, args ...interface{}) Result {
	return Result{
		State:   StateFailed,
		Failure: kind,
		Detail:  fmt.Sprintf(format, args...),
	}
}

// VerificationError is the mismatch between intended and read-back
// progress that drives the reconciler's single retry.
type VerificationError struct {
	Intended int
	Readback int
	HasValue bool
}

func (e *VerificationError) Error() string {
	if !e.HasValue {
		return fmt.Sprintf("progress verification failed: intended %d%%, no readback value", e.Intended)
	}
	return fmt.Sprintf("progress verification failed: intended %d%%, remote shows %d%%", e.Intended, e.Readback)
}
