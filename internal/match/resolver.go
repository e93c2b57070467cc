package match

import (
	"strings"

	"github.com/jtara/storygraph-sync/internal/logger"
	"github.com/jtara/storygraph-sync/internal/models"
)

// previewMarkers flag sampler editions that shadow the real book in
// search results.
var previewMarkers = []string{"sneak peek", "preview", "excerpt", "sampler"}

// AuthorRule selects how an expected author is compared against a
// candidate's author.
type AuthorRule string

const (
	// AuthorMatchStrict requires at least one whole normalized token in
	// common. This is the canonical rule.
	AuthorMatchStrict AuthorRule = "strict"
	// AuthorMatchLastName accepts a candidate whose normalized author
	// contains the expected author's last name as a substring. Looser;
	// kept selectable for catalogs with inconsistent author credits.
	AuthorMatchLastName AuthorRule = "last_name"
)

// Policy carries the tunable matching rules. The zero value is not
// valid; use DefaultPolicy.
type Policy struct {
	AuthorRule AuthorRule
}

// DefaultPolicy is the strict variant.
func DefaultPolicy() Policy {
	return Policy{AuthorRule: AuthorMatchStrict}
}

// Resolver picks at most one confident match from a candidate set.
type Resolver struct {
	policy Policy
	log    *logger.Logger
}

// NewResolver creates a resolver with the given policy.
func NewResolver(policy Policy, log *logger.Logger) *Resolver {
	if policy.AuthorRule == "" {
		policy = DefaultPolicy()
	}
	return &Resolver{policy: policy, log: log}
}

// Resolve applies the matching rules to the candidates.
//
// A candidate survives filtering iff its title shares a normalized token
// with the expected title AND, when an expected author is supplied, its
// author passes the policy's author rule. There is no title-only
// fallback when an author was requested.
//
// Multiple survivors are disambiguated in order: exact normalized-title
// equality, then exclusion of preview/sampler editions. Anything still
// ambiguous is returned as Ambiguous and must be skipped by the caller.
func (r *Resolver) Resolve(candidates []models.SearchResult, expectedTitle, expectedAuthor string) models.MatchDecision {
	expectedTitleTokens := Tokenize(expectedTitle)
	var expectedAuthorTokens map[string]struct{}
	if expectedAuthor != "" {
		expectedAuthorTokens = Tokenize(expectedAuthor)
	}

	var survivors []models.SearchResult
	for _, c := range candidates {
		if c.Title == "" && c.Author == "" {
			continue
		}

		if !intersects(expectedTitleTokens, Tokenize(c.Title)) {
			continue
		}

		if expectedAuthorTokens != nil && !r.authorMatches(expectedAuthor, expectedAuthorTokens, c.Author) {
			continue
		}

		survivors = append(survivors, c)
	}

	switch len(survivors) {
	case 0:
		r.log.Warn("No confident match", map[string]interface{}{
			"title":  expectedTitle,
			"author": expectedAuthor,
		})
		return models.MatchDecision{Outcome: models.NoMatch}
	case 1:
		return models.MatchDecision{Outcome: models.Matched, Result: &survivors[0]}
	}

	return r.disambiguate(survivors, expectedTitle, expectedAuthor)
}

func (r *Resolver) authorMatches(expectedAuthor string, expectedTokens map[string]struct{}, candidateAuthor string) bool {
	if candidateAuthor == "" {
		return false
	}

	switch r.policy.AuthorRule {
	case AuthorMatchLastName:
		fields := strings.Fields(Normalize(expectedAuthor))
		if len(fields) == 0 {
			return false
		}
		lastName := fields[len(fields)-1]
		return strings.Contains(Normalize(candidateAuthor), lastName)
	default:
		return intersects(expectedTokens, Tokenize(candidateAuthor))
	}
}

func (r *Resolver) disambiguate(survivors []models.SearchResult, expectedTitle, expectedAuthor string) models.MatchDecision {
	normalizedExpected := Normalize(expectedTitle)

	var exact []models.SearchResult
	for _, c := range survivors {
		if Normalize(c.Title) == normalizedExpected {
			exact = append(exact, c)
		}
	}
	if len(exact) == 1 {
		r.log.Info("Disambiguated by exact title", map[string]interface{}{
			"title":  exact[0].Title,
			"author": exact[0].Author,
		})
		return models.MatchDecision{Outcome: models.Matched, Result: &exact[0]}
	}

	var filtered []models.SearchResult
	for _, c := range survivors {
		if !isPreviewEdition(c.Title) {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 1 {
		r.log.Info("Disambiguated by excluding preview editions", map[string]interface{}{
			"title":  filtered[0].Title,
			"author": filtered[0].Author,
		})
		return models.MatchDecision{Outcome: models.Matched, Result: &filtered[0]}
	}

	// Log every survivor so a human can review the collision later.
	for _, c := range survivors {
		r.log.Warn("Ambiguous candidate", map[string]interface{}{
			"expected_title": expectedTitle,
			"title":          c.Title,
			"author":         c.Author,
			"url":            c.URL,
		})
	}
	r.log.Warn("Multiple matches, skipping", map[string]interface{}{
		"title":  expectedTitle,
		"author": expectedAuthor,
	})
	return models.MatchDecision{Outcome: models.Ambiguous, Candidates: survivors}
}

func isPreviewEdition(title string) bool {
	normalized := Normalize(title)
	for _, marker := range previewMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}
