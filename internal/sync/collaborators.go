package sync

import "github.com/jtara/storygraph-sync/internal/models"

// Searcher is the remote search collaborator: one query in, up to N
// unique candidates out, in the remote's own relevance order.
type Searcher interface {
	Search(query string) ([]models.SearchResult, error)
}

// Remote is the mutation surface of the write target. Implementations
// own selectors and DOM mechanics; the reconciler owns sequencing,
// retries and escalation.
type Remote interface {
	// NavigateToBook opens the matched book's page.
	NavigateToBook(book models.SearchResult) error
	// SetStatus sets the reading status; an absent status option is an
	// idempotent no-op, not an error.
	SetStatus(status string) error
	// OpenProgressForm exposes the progress editor. Returns
	// storygraph.ErrProgressFormUnavailable when the surface is hidden.
	OpenProgressForm() error
	// SubmitProgress writes a percentage into the open editor.
	SubmitProgress(percent int) error
	// ReadProgress reads back the displayed percentage; false when no
	// percentage is shown.
	ReadProgress() (int, bool, error)
	// SetReadDates fills start/finish dates (ISO, empty = skip).
	SetReadDates(start, finish string) error
}

// Collaborators bundles the remote-side interfaces a flow needs.
type Collaborators struct {
	Searcher Searcher
	Remote   Remote
}

// ConnectFunc lazily opens the browser session and authenticates.
// Flows call it only once they know remote work is actually needed, so
// a run with nothing to do never launches a browser.
type ConnectFunc func() (*Collaborators, error)
