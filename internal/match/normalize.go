// Package match canonicalizes noisy book metadata and resolves scraped
// records against remote search candidates using deterministic
// token-overlap rules. It deliberately avoids fuzzy similarity scoring:
// a missed match is recoverable, mutating the wrong book is not.
package match

import (
	"regexp"
	"strings"
)

var (
	parentheticalRe = regexp.MustCompile(`\(.*?\)`)
	punctuationRe   = regexp.MustCompile(`[^\w\s]`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// Normalize canonicalizes free text for comparison: lowercase, strip
// parenthetical segments, strip punctuation, collapse whitespace.
// Idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string) string {
	text = strings.ToLower(text)
	text = parentheticalRe.ReplaceAllString(text, " ")
	text = punctuationRe.ReplaceAllString(text, " ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Tokenize returns the set of whitespace-separated tokens of the
// normalized text.
func Tokenize(text string) map[string]struct{} {
	normalized := Normalize(text)
	tokens := make(map[string]struct{})
	if normalized == "" {
		return tokens
	}
	for _, tok := range strings.Fields(normalized) {
		tokens[tok] = struct{}{}
	}
	return tokens
}

// NormalizeAuthorName converts library-style "Last, First" author names
// into "First Last". Already-normalized names pass through untouched.
func NormalizeAuthorName(author string) string {
	author = strings.TrimSpace(author)
	if author == "" {
		return ""
	}

	if last, first, found := strings.Cut(author, ","); found {
		last = strings.TrimSpace(last)
		first = strings.TrimSpace(first)
		if first != "" && last != "" {
			return first + " " + last
		}
	}
	return author
}

func intersects(a, b map[string]struct{}) bool {
	if len(b) < len(a) {
		a, b = b, a
	}
	for tok := range a {
		if _, ok := b[tok]; ok {
			return true
		}
	}
	return false
}
