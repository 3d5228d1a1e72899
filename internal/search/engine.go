// Package search implements the retrieval/ranking engine: vector
// similarity, keyword fallback, metadata-only recency, and an optional
// hybrid rerank pass.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/recallstack/recall/internal/filter"
	"github.com/recallstack/recall/internal/memory"
)

// DefaultThreshold is the strict lower bound on similarity when the request
// does not carry one.
const DefaultThreshold = 0.3

// Engine ranks memories matching a compiled predicate. It never returns
// more than TopK results.
type Engine struct {
	store    memory.Store
	embedder memory.Embedder
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Compile-time interface guard.
var _ memory.Ranker = (*Engine)(nil)

// NewEngine creates an Engine over the given candidate store and embedder.
func NewEngine(store memory.Store, embedder memory.Embedder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		embedder: embedder,
		logger:   logger,
		tracer:   otel.Tracer("recall/search"),
	}
}

// Search executes the request against rows matching pred.
func (e *Engine) Search(ctx context.Context, pred filter.Predicate, req memory.SearchRequest) ([]memory.RankedMemory, error) {
	ctx, span := e.tracer.Start(ctx, "search",
		trace.WithAttributes(
			attribute.String("search.mode", string(req.Mode)),
			attribute.Int("search.top_k", req.TopK),
			attribute.Bool("search.rerank", req.Rerank),
		))
	defer span.End()

	var (
		results []memory.RankedMemory
		err     error
	)
	switch req.Mode {
	case memory.ModeSimilarity, "":
		results, err = e.similaritySearch(ctx, pred, req)
	case memory.ModeKeyword:
		results, err = e.keywordSearch(ctx, pred, req)
	case memory.ModeMetadata:
		results, err = e.metadataSearch(ctx, pred, req)
	default:
		err = fmt.Errorf("search: unknown mode %q", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	if req.Rerank {
		results = Rerank(req.Query, results)
		if len(results) > req.TopK {
			results = results[:req.TopK]
		}
	}

	span.SetAttributes(attribute.Int("search.results", len(results)))
	return results, nil
}

// similaritySearch embeds the query, scores every candidate by cosine
// similarity, keeps scores strictly above the threshold, and returns the
// top K in descending order.
func (e *Engine) similaritySearch(ctx context.Context, pred filter.Predicate, req memory.SearchRequest) ([]memory.RankedMemory, error) {
	queryVec, err := e.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}

	candidates, err := e.store.Candidates(ctx, pred)
	if err != nil {
		return nil, fmt.Errorf("search: load candidates: %w", err)
	}

	threshold := DefaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	var results []memory.RankedMemory
	for _, m := range candidates {
		if len(m.Embedding) == 0 {
			continue
		}
		sim := Cosine(queryVec, m.Embedding)
		if sim > threshold {
			score := sim
			results = append(results, memory.RankedMemory{Memory: m, Similarity: &score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return *results[i].Similarity > *results[j].Similarity
	})

	if len(results) > req.TopK {
		results = results[:req.TopK]
	}
	return results, nil
}

// keywordSearch keeps candidates whose text contains at least one query
// token, ordered by matched-token count then recency. Used when embeddings
// are unavailable or explicitly requested.
func (e *Engine) keywordSearch(ctx context.Context, pred filter.Predicate, req memory.SearchRequest) ([]memory.RankedMemory, error) {
	tokens := queryTokens(req.Query, 1)
	if len(tokens) == 0 {
		return nil, nil
	}

	candidates, err := e.store.Candidates(ctx, pred)
	if err != nil {
		return nil, fmt.Errorf("search: load candidates: %w", err)
	}

	type scored struct {
		m       memory.Memory
		matched int
	}
	var hits []scored
	for _, m := range candidates {
		set := tokenSet(m.Text)
		matched := 0
		for _, tok := range tokens {
			if _, ok := set[tok]; ok {
				matched++
			}
		}
		if matched > 0 {
			hits = append(hits, scored{m: m, matched: matched})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].matched != hits[j].matched {
			return hits[i].matched > hits[j].matched
		}
		return hits[i].m.CreatedAt.After(hits[j].m.CreatedAt)
	})

	if len(hits) > req.TopK {
		hits = hits[:req.TopK]
	}

	results := make([]memory.RankedMemory, 0, len(hits))
	for _, h := range hits {
		results = append(results, memory.RankedMemory{Memory: h.m})
	}
	return results, nil
}

// metadataSearch skips ranking entirely: predicate matches ordered by
// recency, capped at TopK, no scores.
func (e *Engine) metadataSearch(ctx context.Context, pred filter.Predicate, req memory.SearchRequest) ([]memory.RankedMemory, error) {
	rows, err := e.store.List(ctx, pred, req.TopK)
	if err != nil {
		return nil, fmt.Errorf("search: list: %w", err)
	}
	results := make([]memory.RankedMemory, 0, len(rows))
	for _, m := range rows {
		results = append(results, memory.RankedMemory{Memory: m})
	}
	return results, nil
}

// Cosine returns the cosine similarity of two vectors, 0 for mismatched
// lengths or zero vectors.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// usable reports whether a query carries anything to score against.
func usable(query string) bool {
	return strings.TrimSpace(query) != ""
}
