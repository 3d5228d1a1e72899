package tagging

import (
	"sort"

	"github.com/recallstack/recall/internal/search"
)

// maxFallbackKeywords caps the frequency extractor's output.
const maxFallbackKeywords = 10

// stopwords are excluded from frequency-based keyword extraction.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"he": {}, "her": {}, "his": {}, "i": {}, "in": {}, "is": {}, "it": {},
	"its": {}, "my": {}, "not": {}, "of": {}, "on": {}, "or": {}, "our": {},
	"she": {}, "that": {}, "the": {}, "their": {}, "they": {}, "this": {},
	"to": {}, "was": {}, "we": {}, "were": {}, "will": {}, "with": {},
	"you": {}, "your": {},
}

// FrequencyKeywords is the deterministic local keyword extractor: the most
// frequent non-stopword tokens of at least three runes, ties broken
// alphabetically.
func FrequencyKeywords(text string, max int) []string {
	counts := make(map[string]int)
	for _, tok := range search.Tokenize(text) {
		if len([]rune(tok)) < 3 {
			continue
		}
		if _, ok := stopwords[tok]; ok {
			continue
		}
		counts[tok]++
	}

	tokens := make([]string, 0, len(counts))
	for tok := range counts {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if counts[tokens[i]] != counts[tokens[j]] {
			return counts[tokens[i]] > counts[tokens[j]]
		}
		return tokens[i] < tokens[j]
	})

	if len(tokens) > max {
		tokens = tokens[:max]
	}
	return tokens
}
