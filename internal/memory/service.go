package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/recallstack/recall/internal/filter"
)

// Operation ids consulted by the billing gate's cost table.
const (
	OpCreate = "memories.create"
	OpUpdate = "memories.update"
	OpSearch = "memories.search"
)

// Supported request schema versions. v1 request shapes were retired with
// the message-list create contract.
const schemaVersionCurrent = "v2"

const defaultTopK = 10

// CreateRequest describes one create call. A single billing deduction
// covers the whole call regardless of how many memories it derives.
type CreateRequest struct {
	Messages         []Message       `json:"messages"`
	Infer            bool            `json:"infer"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	Immutable        bool            `json:"immutable,omitempty"`
	EnableGraph      bool            `json:"enable_graph,omitempty"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
	IncludeTerms     []string        `json:"include_terms,omitempty"`
	ExcludeTerms     []string        `json:"exclude_terms,omitempty"`
	CustomCategories []string        `json:"custom_categories,omitempty"`
	Instructions     string          `json:"custom_instructions,omitempty"`
	Parallel         bool            `json:"parallel,omitempty"`
	SchemaVersion    string          `json:"version,omitempty"`
	ActorID          string          `json:"actor_id,omitempty"`
}

// CreateResult is one entry of a create response, ordered to match the
// derived-text list.
type CreateResult struct {
	ID    string       `json:"id"`
	Event HistoryEvent `json:"event"`
	Data  Memory       `json:"data"`
}

// BatchUpdateItem is one element of a batch update.
type BatchUpdateItem struct {
	ID       string          `json:"memory_id"`
	Text     string          `json:"text"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Valid feedback sentiments.
var validSentiments = map[string]struct{}{
	"POSITIVE": {},
	"NEGATIVE": {},
	"NEUTRAL":  {},
}

// Service owns the memory lifecycle. Chargeable operations pass through the
// billing gate; tagging degrades to local fallbacks; embedding and storage
// failures are fatal to the request.
//
// Create is not atomic across derived texts: the call's single deduction is
// refunded wholesale on any failure, even when some rows already persisted.
// This mirrors the historical behavior; no compensating delete exists.
type Service struct {
	store    Store
	ranker   Ranker
	embedder Embedder
	tagger   Tagger
	biller   Biller
	logger   *slog.Logger

	// evict, when set, is invoked detached after a delete to drop the
	// memory's text from the embedding cache. Failures are logged only.
	evict func(text string) error
}

// ServiceConfig carries the collaborators wired at process start.
type ServiceConfig struct {
	Store          Store
	Ranker         Ranker
	Embedder       Embedder
	Tagger         Tagger
	Biller         Biller
	Logger         *slog.Logger
	EvictEmbedding func(text string) error
}

// NewService constructs a Service. Store, Ranker, Embedder, Tagger, and
// Biller are required.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    cfg.Store,
		ranker:   cfg.Ranker,
		embedder: cfg.Embedder,
		tagger:   cfg.Tagger,
		biller:   cfg.Biller,
		logger:   logger,
		evict:    cfg.EvictEmbedding,
	}
}

// Create derives one or more memory texts from the request's messages and
// persists each with its ADD audit entry. Result order always matches the
// derived-text order, regardless of completion order in parallel mode.
func (s *Service) Create(ctx context.Context, scope Scope, req CreateRequest) ([]CreateResult, error) {
	if scope.TenantID == "" {
		return nil, fmt.Errorf("memory: tenant id is required")
	}
	if req.SchemaVersion != "" && req.SchemaVersion != schemaVersionCurrent {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSchema, req.SchemaVersion)
	}
	if len(req.Messages) == 0 {
		return nil, ErrEmptyContent
	}

	actor := actorFor(scope, req.ActorID)
	referenceID := uuid.NewString()
	charged, amount, err := s.biller.DeductOrSkip(ctx, actor, OpCreate, referenceID)
	if err != nil {
		return nil, err
	}

	fail := func(err error) ([]CreateResult, error) {
		if charged {
			if rerr := s.biller.RefundOnFailure(ctx, actor, OpCreate, referenceID, amount); rerr != nil {
				s.logger.Error("refund after failed create did not apply",
					"reference_id", referenceID, "error", rerr)
			}
		}
		return nil, err
	}

	filtered := filterMessages(req.Messages, req.IncludeTerms, req.ExcludeTerms)
	texts := s.deriveTexts(ctx, filtered, req)
	if len(texts) == 0 {
		return fail(ErrEmptyContent)
	}

	input, merr := json.Marshal(filtered)
	if merr != nil {
		return fail(fmt.Errorf("memory: encode input messages: %w", merr))
	}

	results := make([]CreateResult, len(texts))
	errs := make([]error, len(texts))

	process := func(i int, text string) {
		m, err := s.buildMemory(ctx, scope, text, input, req)
		if err != nil {
			errs[i] = err
			return
		}
		entry := s.historyEntry(m, EventAdd, "", m.Text, actor)
		entry.Input = input
		if err := s.store.Insert(ctx, m, entry); err != nil {
			errs[i] = externalErr("storage", err)
			return
		}
		results[i] = CreateResult{ID: m.ID, Event: EventAdd, Data: m}
	}

	if req.Parallel && len(texts) > 1 {
		var wg sync.WaitGroup
		for i, text := range texts {
			wg.Add(1)
			go func(i int, text string) {
				defer wg.Done()
				process(i, text)
			}(i, text)
		}
		wg.Wait()
	} else {
		for i, text := range texts {
			process(i, text)
		}
	}

	for _, err := range errs {
		if err != nil {
			return fail(err)
		}
	}
	return results, nil
}

// Update replaces a memory's text (and optionally metadata), recomputing
// embedding, tags, and fingerprint, and appends an UPDATE audit entry.
func (s *Service) Update(ctx context.Context, scope Scope, id, text string, metadata json.RawMessage, actorID string) (Memory, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Memory{}, ErrEmptyContent
	}

	m, err := s.store.Get(ctx, scope.TenantID, id)
	if err != nil {
		return Memory{}, err
	}
	if m.Immutable {
		return Memory{}, fmt.Errorf("%w: %s", ErrImmutable, id)
	}

	actor := actorFor(scope, actorID)
	referenceID := uuid.NewString()
	charged, amount, err := s.biller.DeductOrSkip(ctx, actor, OpUpdate, referenceID)
	if err != nil {
		return Memory{}, err
	}

	updated, err := s.applyUpdate(ctx, m, text, metadata, actor)
	if err != nil && charged {
		if rerr := s.biller.RefundOnFailure(ctx, actor, OpUpdate, referenceID, amount); rerr != nil {
			s.logger.Error("refund after failed update did not apply",
				"reference_id", referenceID, "error", rerr)
		}
	}
	return updated, err
}

// applyUpdate recomputes the derived fields of m for the new text and
// persists the row with its UPDATE entry. Callers have already validated
// existence and mutability.
func (s *Service) applyUpdate(ctx context.Context, m Memory, text string, metadata json.RawMessage, actor string) (Memory, error) {
	oldText := m.Text

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return Memory{}, externalErr("embedding", err)
	}

	categories, keywords := s.tagger.ExtractTags(ctx, text, nil)

	m.Text = text
	m.Fingerprint = Fingerprint(text)
	m.Embedding = embedding
	m.Categories = dedupe(categories)
	m.Keywords = dedupe(keywords)
	if len(metadata) > 0 {
		m.Metadata = metadata
	}
	m.UpdatedAt = time.Now().UTC()

	entry := s.historyEntry(m, EventUpdate, oldText, text, actor)
	entry.Metadata = m.Metadata
	if err := s.store.Update(ctx, m, entry); err != nil {
		return Memory{}, externalErr("storage", err)
	}
	return m, nil
}

// Delete removes a memory, its feedback rows, and appends a DELETE audit
// entry (old = new = current text) in one transaction. Cache eviction runs
// detached; its failure is logged, never surfaced.
func (s *Service) Delete(ctx context.Context, scope Scope, id, actorID string) error {
	m, err := s.store.Get(ctx, scope.TenantID, id)
	if err != nil {
		return err
	}
	if m.Immutable {
		return fmt.Errorf("%w: %s", ErrImmutable, id)
	}

	entry := s.historyEntry(m, EventDelete, m.Text, m.Text, actorFor(scope, actorID))
	if err := s.store.Delete(ctx, scope.TenantID, id, entry); err != nil {
		return externalErr("storage", err)
	}

	s.evictDetached(m.Text)
	return nil
}

// evictDetached drops text from the embedding cache without blocking the
// caller. Best effort; the cache converges on the next miss either way.
func (s *Service) evictDetached(text string) {
	if s.evict == nil {
		return
	}
	go func() {
		if err := s.evict(text); err != nil {
			s.logger.Warn("detached embedding-cache eviction failed", "error", err)
		}
	}()
}

// BatchUpdate validates that every id exists and none is immutable before
// mutating any row, then applies per-item updates with per-item audit
// entries. Validation is all-or-nothing; persistence is not.
func (s *Service) BatchUpdate(ctx context.Context, scope Scope, items []BatchUpdateItem, actorID string) ([]Memory, error) {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	existing, err := s.validateBatch(ctx, scope, ids)
	if err != nil {
		return nil, err
	}

	actor := actorFor(scope, actorID)
	updated := make([]Memory, 0, len(items))
	for _, item := range items {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			return updated, ErrEmptyContent
		}
		m, err := s.applyUpdate(ctx, existing[item.ID], text, item.Metadata, actor)
		if err != nil {
			return updated, err
		}
		updated = append(updated, m)
	}
	return updated, nil
}

// BatchDelete validates all ids before deleting any, then deletes each with
// its audit entry.
func (s *Service) BatchDelete(ctx context.Context, scope Scope, ids []string, actorID string) error {
	existing, err := s.validateBatch(ctx, scope, ids)
	if err != nil {
		return err
	}

	actor := actorFor(scope, actorID)
	for _, id := range ids {
		m := existing[id]
		entry := s.historyEntry(m, EventDelete, m.Text, m.Text, actor)
		if err := s.store.Delete(ctx, scope.TenantID, id, entry); err != nil {
			return externalErr("storage", err)
		}
		s.evictDetached(m.Text)
	}
	return nil
}

// validateBatch fetches every id and rejects the whole batch if any is
// missing or immutable. No row is mutated on rejection.
func (s *Service) validateBatch(ctx context.Context, scope Scope, ids []string) (map[string]Memory, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("memory: batch requires at least one id")
	}
	existing := make(map[string]Memory, len(ids))
	for _, id := range ids {
		m, err := s.store.Get(ctx, scope.TenantID, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if m.Immutable {
			return nil, fmt.Errorf("%w: %s", ErrImmutable, id)
		}
		existing[id] = m
	}
	return existing, nil
}

// Get returns a single memory by id.
func (s *Service) Get(ctx context.Context, scope Scope, id string) (Memory, error) {
	return s.store.Get(ctx, scope.TenantID, id)
}

// List returns memories matching the scope and raw filter, newest first.
func (s *Service) List(ctx context.Context, scope Scope, rawFilter any, limit int) ([]Memory, error) {
	pred, err := s.compileScoped(scope, rawFilter)
	if err != nil {
		return nil, err
	}
	return s.store.List(ctx, pred, limit)
}

// Search compiles the request filter (tenant clause always first) and
// delegates retrieval to the ranking engine.
func (s *Service) Search(ctx context.Context, scope Scope, req SearchRequest) ([]RankedMemory, error) {
	if req.TopK <= 0 {
		req.TopK = defaultTopK
	}
	if req.Mode == "" {
		req.Mode = ModeSimilarity
	}

	actor := actorFor(scope, "")
	referenceID := uuid.NewString()
	charged, amount, err := s.biller.DeductOrSkip(ctx, actor, OpSearch, referenceID)
	if err != nil {
		return nil, err
	}

	fail := func(err error) ([]RankedMemory, error) {
		if charged {
			if rerr := s.biller.RefundOnFailure(ctx, actor, OpSearch, referenceID, amount); rerr != nil {
				s.logger.Error("refund after failed search did not apply",
					"reference_id", referenceID, "error", rerr)
			}
		}
		return nil, err
	}

	pred, err := s.compileScoped(scope, req.Filters)
	if err != nil {
		return fail(err)
	}

	results, err := s.ranker.Search(ctx, pred, req)
	if err != nil {
		return fail(err)
	}
	return results, nil
}

// History returns the audit trail for a memory, newest first. The trail
// survives deletion of the memory itself.
func (s *Service) History(ctx context.Context, scope Scope, id string) ([]HistoryEntry, error) {
	return s.store.History(ctx, scope.TenantID, id)
}

// AddFeedback attaches a sentiment to an existing memory.
func (s *Service) AddFeedback(ctx context.Context, scope Scope, id, sentiment, reason string) error {
	if _, ok := validSentiments[sentiment]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidSentiment, sentiment)
	}
	if _, err := s.store.Get(ctx, scope.TenantID, id); err != nil {
		return err
	}
	return s.store.AddFeedback(ctx, Feedback{
		ID:        uuid.NewString(),
		MemoryID:  id,
		TenantID:  scope.TenantID,
		Sentiment: sentiment,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	})
}

// compileScoped merges the non-empty scope fields into the raw filter as an
// implicit AND, then compiles. The tenant clause comes from the compiler.
func (s *Service) compileScoped(scope Scope, rawFilter any) (filter.Predicate, error) {
	scopeFilter := map[string]any{}
	for field, value := range map[string]string{
		"user_id":    scope.UserID,
		"agent_id":   scope.AgentID,
		"app_id":     scope.AppID,
		"run_id":     scope.RunID,
		"org_id":     scope.OrgID,
		"project_id": scope.ProjectID,
	} {
		if value != "" {
			scopeFilter[field] = value
		}
	}

	switch {
	case len(scopeFilter) == 0:
		return filter.Compile(scope.TenantID, rawFilter)
	case rawFilter == nil:
		return filter.Compile(scope.TenantID, scopeFilter)
	default:
		return filter.Compile(scope.TenantID, map[string]any{
			"AND": []any{scopeFilter, rawFilter},
		})
	}
}

// deriveTexts produces the memory texts for a create call: LLM inference
// when requested (the tagger falls back to verbatim itself), verbatim
// concatenation otherwise. Texts are trimmed and empties discarded.
func (s *Service) deriveTexts(ctx context.Context, msgs []Message, req CreateRequest) []string {
	var texts []string
	if req.Infer {
		inferred, err := s.tagger.InferMemories(ctx, msgs, req.Instructions)
		if err != nil {
			s.logger.Warn("memory inference failed, storing verbatim", "error", err)
			texts = []string{verbatimText(msgs)}
		} else {
			texts = inferred
		}
	} else {
		texts = []string{verbatimText(msgs)}
	}

	out := texts[:0]
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// buildMemory embeds and tags one derived text and assembles the row.
func (s *Service) buildMemory(ctx context.Context, scope Scope, text string, input json.RawMessage, req CreateRequest) (Memory, error) {
	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return Memory{}, externalErr("embedding", err)
	}

	categories, keywords := s.tagger.ExtractTags(ctx, text, req.CustomCategories)

	now := time.Now().UTC()
	m := Memory{
		ID:            uuid.NewString(),
		Scope:         scope,
		Text:          text,
		InputMessages: input,
		Metadata:      req.Metadata,
		Categories:    dedupe(categories),
		Keywords:      dedupe(keywords),
		Fingerprint:   Fingerprint(text),
		Immutable:     req.Immutable,
		ExpiresAt:     req.ExpiresAt,
		Embedding:     embedding,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if req.EnableGraph {
		m.Entities, m.Relations = s.tagger.ExtractGraph(ctx, text)
	}
	return m, nil
}

func (s *Service) historyEntry(m Memory, event HistoryEvent, oldText, newText, actor string) HistoryEntry {
	return HistoryEntry{
		ID:        uuid.NewString(),
		MemoryID:  m.ID,
		TenantID:  m.TenantID,
		Event:     event,
		OldText:   oldText,
		NewText:   newText,
		ActorID:   actor,
		CreatedAt: time.Now().UTC(),
	}
}

// filterMessages drops messages matching exclude terms and, when include
// terms are given, messages matching none of them. Matching is
// case-insensitive substring on content. If filtering would drop every
// message, it is skipped and the original list kept.
func filterMessages(msgs []Message, include, exclude []string) []Message {
	if len(include) == 0 && len(exclude) == 0 {
		return msgs
	}

	var kept []Message
	for _, msg := range msgs {
		content := strings.ToLower(msg.Content)
		if len(include) > 0 && !containsAnyTerm(content, include) {
			continue
		}
		if containsAnyTerm(content, exclude) {
			continue
		}
		kept = append(kept, msg)
	}

	if len(kept) == 0 {
		return msgs
	}
	return kept
}

func containsAnyTerm(content string, terms []string) bool {
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(content, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// verbatimText concatenates message contents, the non-inferred memory text.
func verbatimText(msgs []Message) string {
	parts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if c := strings.TrimSpace(msg.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n")
}

func actorFor(scope Scope, actorID string) string {
	if actorID != "" {
		return actorID
	}
	if scope.UserID != "" {
		return scope.UserID
	}
	return scope.TenantID
}
