package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/recallstack/recall/internal/filter"
)

// Store persists memory rows together with their audit entries. Mutating
// calls take the history entry for the mutation they record so both land in
// the same transaction. Implementations must be safe for concurrent use.
type Store interface {
	// Insert persists a new memory and its ADD history entry.
	Insert(ctx context.Context, m Memory, entry HistoryEntry) error

	// Get returns a memory by id within the tenant. Returns ErrNotFound.
	Get(ctx context.Context, tenantID, id string) (Memory, error)

	// Update persists a mutated memory and its UPDATE history entry.
	Update(ctx context.Context, m Memory, entry HistoryEntry) error

	// Delete writes the DELETE history entry, removes the memory's feedback
	// rows, and removes the memory row, all in one transaction.
	Delete(ctx context.Context, tenantID, id string, entry HistoryEntry) error

	// List returns memories matching the predicate, newest first, capped at
	// limit (0 means no cap).
	List(ctx context.Context, pred filter.Predicate, limit int) ([]Memory, error)

	// Candidates returns all memories matching the predicate with their
	// embeddings loaded, for ranking.
	Candidates(ctx context.Context, pred filter.Predicate) ([]Memory, error)

	// History returns all audit entries for a memory, newest first.
	History(ctx context.Context, tenantID, memoryID string) ([]HistoryEntry, error)

	// AddFeedback records a feedback row.
	AddFeedback(ctx context.Context, fb Feedback) error
}

// Embedder produces embedding vectors. Results of EmbedBatch are in input
// order. Embedding failure is fatal to the operation that needed it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Tagger derives memory texts, tags, and graph structure from content.
// Implementations degrade to local fallbacks instead of returning errors
// for inference and tag extraction.
type Tagger interface {
	// InferMemories derives memory texts from a conversation. Falls back to
	// verbatim concatenation on collaborator failure or empty output.
	InferMemories(ctx context.Context, msgs []Message, instructions string) ([]string, error)

	// ExtractTags returns categories and keywords for a text.
	ExtractTags(ctx context.Context, text string, customCategories []string) (categories, keywords []string)

	// ExtractGraph returns opaque entity/relation JSON, or nil when graph
	// extraction is unavailable or fails.
	ExtractGraph(ctx context.Context, text string) (entities, relations json.RawMessage)
}

// Biller gates chargeable operations. DeductOrSkip returns charged=false
// when the operation's cost is zero; RefundOnFailure treats duplicate
// refunds as success.
type Biller interface {
	DeductOrSkip(ctx context.Context, actor, operation, referenceID string) (charged bool, amount int64, err error)
	RefundOnFailure(ctx context.Context, actor, operation, referenceID string, amount int64) error
}

// Ranker executes a search over rows matching a compiled predicate.
type Ranker interface {
	Search(ctx context.Context, pred filter.Predicate, req SearchRequest) ([]RankedMemory, error)
}

// ExpiryStore is the slice of the storage layer used by the retention
// sweeper.
type ExpiryStore interface {
	// DeleteExpired hard-deletes rows whose expires_at is at or before now,
	// along with their feedback. History entries are retained.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
