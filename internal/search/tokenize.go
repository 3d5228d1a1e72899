package search

import (
	"strings"
	"unicode"
)

// Tokenize case-folds s and splits on every non-alphanumeric rune.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// queryTokens returns the distinct tokens of a query, dropping tokens
// shorter than minLen runes.
func queryTokens(query string, minLen int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range Tokenize(query) {
		if len([]rune(tok)) < minLen {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// tokenSet builds a membership set from a text's tokens.
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}
