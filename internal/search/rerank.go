package search

import (
	"sort"

	"github.com/recallstack/recall/internal/memory"
)

// Blend weights for the hybrid rerank pass.
const (
	similarityWeight = 0.8
	lexicalWeight    = 0.2

	// rerankMinTokenLen drops noise tokens before lexical scoring.
	rerankMinTokenLen = 2
)

// Rerank reorders results by a blend of vector similarity and lexical token
// overlap with the query. The sort is stable: candidates with equal blended
// scores keep their pre-rerank relative order. An empty or token-free query
// returns the input unchanged.
func Rerank(query string, results []memory.RankedMemory) []memory.RankedMemory {
	if !usable(query) || len(results) < 2 {
		return results
	}

	tokens := queryTokens(query, rerankMinTokenLen)
	if len(tokens) == 0 {
		return results
	}

	scores := make([]float64, len(results))
	for i, r := range results {
		sim := 0.0
		if r.Similarity != nil {
			sim = *r.Similarity
		}
		scores[i] = similarityWeight*sim + lexicalWeight*lexicalScore(tokens, r.Text)
	}

	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	out := make([]memory.RankedMemory, len(results))
	for i, idx := range order {
		out[i] = results[idx]
	}
	return out
}

// lexicalScore is the fraction of query tokens present in text.
func lexicalScore(tokens []string, text string) float64 {
	set := tokenSet(text)
	matched := 0
	for _, tok := range tokens {
		if _, ok := set[tok]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(tokens))
}
