package sync

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtara/storygraph-sync/internal/browser"
	"github.com/jtara/storygraph-sync/internal/match"
	"github.com/jtara/storygraph-sync/internal/models"
	"github.com/jtara/storygraph-sync/internal/storygraph"
)

type fakeSearcher struct {
	results []models.SearchResult
	err     error
	queries []string
}

func (f *fakeSearcher) Search(query string) ([]models.SearchResult, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type readback struct {
	value int
	ok    bool
	err   error
}

// fakeRemote records every call and replays scripted responses. Error
// and readback scripts are consumed one entry per call; once a script
// is exhausted the call succeeds.
type fakeRemote struct {
	navigated []string
	statuses  []string
	submitted []int
	dates     [][2]string

	openErrs  []error
	readbacks []readback
	submitErr error
	statusErr error
	datesErr  error
}

func (f *fakeRemote) NavigateToBook(book models.SearchResult) error {
	f.navigated = append(f.navigated, book.URL)
	return nil
}

func (f *fakeRemote) SetStatus(status string) error {
	f.statuses = append(f.statuses, status)
	return f.statusErr
}

func (f *fakeRemote) OpenProgressForm() error {
	if len(f.openErrs) == 0 {
		return nil
	}
	err := f.openErrs[0]
	f.openErrs = f.openErrs[1:]
	return err
}

func (f *fakeRemote) SubmitProgress(percent int) error {
	f.submitted = append(f.submitted, percent)
	return f.submitErr
}

func (f *fakeRemote) ReadProgress() (int, bool, error) {
	if len(f.readbacks) == 0 {
		return 0, false, nil
	}
	rb := f.readbacks[0]
	f.readbacks = f.readbacks[1:]
	return rb.value, rb.ok, rb.err
}

func (f *fakeRemote) SetReadDates(start, finish string) error {
	f.dates = append(f.dates, [2]string{start, finish})
	return f.datesErr
}

func newTestReconciler() *Reconciler {
	return NewReconciler(match.NewResolver(match.DefaultPolicy(), nil), DefaultReconcilerConfig(), nil)
}

func singleResult(title, author string) []models.SearchResult {
	return []models.SearchResult{{
		Title:  title,
		Author: author,
		URL:    "https://app.thestorygraph.com/books/abc",
	}}
}

func hailMary() models.BookRecord {
	return models.BookRecord{
		Title:           "Project Hail Mary",
		Author:          "Andy Weir",
		Status:          "currently reading",
		PercentComplete: 35,
	}
}

func TestSyncProgressAppliesWithinTolerance(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{readbacks: []readback{{value: 61, ok: true}}}
	collabs := &Collaborators{
		Searcher: &fakeSearcher{results: singleResult("Project Hail Mary", "Andy Weir")},
		Remote:   remote,
	}

	result := newTestReconciler().SyncProgress(collabs, hailMary(), 62, false)

	assert.True(t, result.Applied())
	assert.Equal(t, []int{62}, remote.submitted)
	require.Len(t, remote.navigated, 1)
}

func TestSyncProgressRetriesEditOnceThenFails(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{readbacks: []readback{
		{value: 58, ok: true},
		{value: 58, ok: true},
	}}
	collabs := &Collaborators{
		Searcher: &fakeSearcher{results: singleResult("Project Hail Mary", "Andy Weir")},
		Remote:   remote,
	}

	result := newTestReconciler().SyncProgress(collabs, hailMary(), 62, false)

	assert.False(t, result.Applied())
	assert.Equal(t, FailureVerification, result.Failure)
	// First attempt plus exactly one retry.
	assert.Equal(t, []int{62, 62}, remote.submitted)
	assert.Contains(t, result.Detail, "remote shows 58")
}

func TestSyncProgressSecondAttemptCanSucceed(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{readbacks: []readback{
		{value: 10, ok: true},
		{value: 62, ok: true},
	}}
	collabs := &Collaborators{
		Searcher: &fakeSearcher{results: singleResult("Project Hail Mary", "Andy Weir")},
		Remote:   remote,
	}

	result := newTestReconciler().SyncProgress(collabs, hailMary(), 62, false)

	assert.True(t, result.Applied())
	assert.Equal(t, []int{62, 62}, remote.submitted)
}

func TestSyncProgressMissingReadbackFailsVerification(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{readbacks: []readback{
		{ok: false},
		{ok: false},
	}}
	collabs := &Collaborators{
		Searcher: &fakeSearcher{results: singleResult("Project Hail Mary", "Andy Weir")},
		Remote:   remote,
	}

	result := newTestReconciler().SyncProgress(collabs, hailMary(), 35, false)

	assert.Equal(t, FailureVerification, result.Failure)
	assert.Contains(t, result.Detail, "no readback value")
}

func TestSyncProgressForcesStatusWhenFormHidden(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{
		openErrs:  []error{storygraph.ErrProgressFormUnavailable},
		readbacks: []readback{{value: 35, ok: true}},
	}
	collabs := &Collaborators{
		Searcher: &fakeSearcher{results: singleResult("Project Hail Mary", "Andy Weir")},
		Remote:   remote,
	}

	result := newTestReconciler().SyncProgress(collabs, hailMary(), 35, false)

	assert.True(t, result.Applied())
	assert.Equal(t, []string{StatusCurrentlyReading}, remote.statuses)
	assert.Equal(t, []int{35}, remote.submitted)
}

func TestSyncProgressFormStaysHiddenAfterEscalation(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{
		openErrs: []error{
			storygraph.ErrProgressFormUnavailable,
			storygraph.ErrProgressFormUnavailable,
		},
	}
	collabs := &Collaborators{
		Searcher: &fakeSearcher{results: singleResult("Project Hail Mary", "Andy Weir")},
		Remote:   remote,
	}

	result := newTestReconciler().SyncProgress(collabs, hailMary(), 35, false)

	assert.False(t, result.Applied())
	assert.Equal(t, FailureRemote, result.Failure)
	assert.Equal(t, []string{StatusCurrentlyReading}, remote.statuses)
	assert.Empty(t, remote.submitted)
}

func TestSyncProgressDryRunStopsAfterMatch(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{}
	collabs := &Collaborators{
		Searcher: &fakeSearcher{results: singleResult("Project Hail Mary", "Andy Weir")},
		Remote:   remote,
	}

	result := newTestReconciler().SyncProgress(collabs, hailMary(), 35, true)

	assert.True(t, result.Planned())
	assert.False(t, result.Applied())
	require.NotNil(t, result.Match)
	assert.Equal(t, "Project Hail Mary", result.Match.Title)
	assert.Empty(t, remote.navigated)
	assert.Empty(t, remote.submitted)
	assert.Empty(t, remote.statuses)
}

func TestSyncProgressNoMatchIsTerminal(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{}
	collabs := &Collaborators{
		Searcher: &fakeSearcher{results: singleResult("Dune", "Frank Herbert")},
		Remote:   remote,
	}

	result := newTestReconciler().SyncProgress(collabs, hailMary(), 35, false)

	assert.Equal(t, FailureNoMatch, result.Failure)
	assert.Empty(t, remote.navigated)
}

func TestSyncProgressAmbiguousIsTerminal(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{}
	collabs := &Collaborators{
		Searcher: &fakeSearcher{results: []models.SearchResult{
			{Title: "Project Hail Mary: Special Edition", Author: "Andy Weir", URL: "https://app.thestorygraph.com/books/a"},
			{Title: "Project Hail Mary Unabridged", Author: "Andy Weir", URL: "https://app.thestorygraph.com/books/b"},
		}},
		Remote: remote,
	}

	result := newTestReconciler().SyncProgress(collabs, hailMary(), 35, false)

	assert.Equal(t, FailureAmbiguous, result.Failure)
	assert.Empty(t, remote.navigated)
}

func TestSyncProgressClassifiesTimeout(t *testing.T) {
	t.Parallel()

	collabs := &Collaborators{
		Searcher: &fakeSearcher{err: &browser.TimeoutError{Step: "search results", Err: errors.New("context deadline exceeded")}},
		Remote:   &fakeRemote{},
	}

	result := newTestReconciler().SyncProgress(collabs, hailMary(), 35, false)

	assert.Equal(t, FailureTimeout, result.Failure)
}

func TestSyncProgressQueryIncludesNormalizedAuthor(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{results: singleResult("Dune", "Frank Herbert")}
	collabs := &Collaborators{Searcher: searcher, Remote: &fakeRemote{}}

	record := models.BookRecord{Title: "Dune", Author: "Herbert, Frank", PercentComplete: 10}
	newTestReconciler().SyncProgress(collabs, record, 10, true)

	require.Len(t, searcher.queries, 1)
	assert.Equal(t, "Dune Frank Herbert", searcher.queries[0])
}

func TestSyncReadSetsStatusAndDates(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{}
	collabs := &Collaborators{
		Searcher: &fakeSearcher{results: singleResult("Piranesi", "Susanna Clarke")},
		Remote:   remote,
	}

	record := models.BookRecord{
		ID:           "7654321",
		Title:        "Piranesi",
		Author:       "Susanna Clarke",
		Status:       "read",
		DateStarted:  "2026-01-02",
		DateFinished: "2026-01-18",
	}
	result := newTestReconciler().SyncRead(collabs, record, false)

	assert.True(t, result.Applied())
	assert.Equal(t, []string{StatusRead}, remote.statuses)
	require.Len(t, remote.dates, 1)
	assert.Equal(t, [2]string{"2026-01-02", "2026-01-18"}, remote.dates[0])
}

func TestSyncReadDateFailureStillApplied(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{datesErr: errors.New("edit link not found")}
	collabs := &Collaborators{
		Searcher: &fakeSearcher{results: singleResult("Piranesi", "Susanna Clarke")},
		Remote:   remote,
	}

	record := models.BookRecord{
		ID:           "7654321",
		Title:        "Piranesi",
		Author:       "Susanna Clarke",
		DateFinished: "2026-01-18",
	}
	result := newTestReconciler().SyncRead(collabs, record, false)

	assert.True(t, result.Applied())
	assert.Equal(t, []string{StatusRead}, remote.statuses)
}

func TestSyncReadStatusFailureIsTerminal(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{statusErr: errors.New("dropdown never appeared")}
	collabs := &Collaborators{
		Searcher: &fakeSearcher{results: singleResult("Piranesi", "Susanna Clarke")},
		Remote:   remote,
	}

	record := models.BookRecord{ID: "7654321", Title: "Piranesi", Author: "Susanna Clarke", DateFinished: "2026-01-18"}
	result := newTestReconciler().SyncRead(collabs, record, false)

	assert.False(t, result.Applied())
	assert.Equal(t, FailureRemote, result.Failure)
	assert.Empty(t, remote.dates)
}

func TestSyncReadDryRun(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{}
	collabs := &Collaborators{
		Searcher: &fakeSearcher{results: singleResult("Piranesi", "Susanna Clarke")},
		Remote:   remote,
	}

	record := models.BookRecord{ID: "7654321", Title: "Piranesi", Author: "Susanna Clarke", DateFinished: "2026-01-18"}
	result := newTestReconciler().SyncRead(collabs, record, true)

	assert.True(t, result.Planned())
	assert.Empty(t, remote.statuses)
	assert.Empty(t, remote.dates)
}
