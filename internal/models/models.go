// Package models defines the record types passed between the scrapers,
// the match resolver and the reconciliation pipeline.
package models

import (
	"errors"
	"fmt"
)

// ErrMissingTitle is returned by factories when a record has no title.
var ErrMissingTitle = errors.New("record is missing a title")

// ErrMissingURL is returned by factories when a record has no URL.
var ErrMissingURL = errors.New("record is missing a URL")

// BookRecord is one scraped book. Records are immutable: a re-scrape
// replaces them wholesale, nothing mutates them in place.
type BookRecord struct {
	ID              string
	Title           string
	Author          string
	URL             string
	Status          string
	PercentComplete float64
	RuntimeMinutes  int
	DateStarted     string // ISO date, empty when unknown
	DateFinished    string // ISO date, empty when unknown
}

// NewBookRecord builds a BookRecord, failing fast when the title is missing.
func NewBookRecord(id, title, author string) (BookRecord, error) {
	if title == "" {
		return BookRecord{}, fmt.Errorf("book %q: %w", id, ErrMissingTitle)
	}
	return BookRecord{
		ID:     id,
		Title:  title,
		Author: author,
	}, nil
}

// SearchResult is one candidate returned by a remote search for a single
// query. Results only live for the duration of one resolution call.
type SearchResult struct {
	Query  string
	Title  string
	Author string // may be empty; some results carry no author
	URL    string
}

// NewSearchResult builds a SearchResult, failing fast when title or URL
// is missing.
func NewSearchResult(query, title, author, url string) (SearchResult, error) {
	if title == "" {
		return SearchResult{}, fmt.Errorf("search result for %q: %w", query, ErrMissingTitle)
	}
	if url == "" {
		return SearchResult{}, fmt.Errorf("search result %q: %w", title, ErrMissingURL)
	}
	return SearchResult{
		Query:  query,
		Title:  title,
		Author: author,
		URL:    url,
	}, nil
}

// MatchOutcome classifies the resolver's decision.
type MatchOutcome int

const (
	// NoMatch means no candidate survived filtering.
	NoMatch MatchOutcome = iota
	// Matched means exactly one confident candidate was picked.
	Matched
	// Ambiguous means several candidates survived and no tie-break
	// separated them. The caller must skip, never pick.
	Ambiguous
)

// String returns a human-readable outcome name.
func (o MatchOutcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case Ambiguous:
		return "ambiguous"
	default:
		return "no_match"
	}
}

// MatchDecision is the resolver's output. Result is set only when
// Outcome is Matched; Candidates is set only when Outcome is Ambiguous.
type MatchDecision struct {
	Outcome    MatchOutcome
	Result     *SearchResult
	Candidates []SearchResult
}

// DeltaReason says why a record is in the update set.
type DeltaReason string

const (
	// DeltaNew marks a record with no prior sync state.
	DeltaNew DeltaReason = "new"
	// DeltaChanged marks a record whose progress moved past the epsilon.
	DeltaChanged DeltaReason = "changed"
)

// ProgressDelta is one record the diff engine decided needs applying.
// Unchanged records are dropped, never carried.
type ProgressDelta struct {
	Record          BookRecord
	Reason          DeltaReason
	PreviousPercent *float64 // nil when Reason is DeltaNew
}
