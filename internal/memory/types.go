// Package memory defines the memory domain: the Memory record, its
// append-only audit history, the storage interfaces, and the Service that
// orchestrates billing, tagging, persistence, and retrieval.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// Scope is the tenant/owner tuple isolating one caller's memories from
// another's. TenantID is mandatory; the rest are optional narrowing ids.
type Scope struct {
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
	AppID     string `json:"app_id,omitempty"`
	RunID     string `json:"run_id,omitempty"`
	OrgID     string `json:"org_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
}

// Memory is one stored memory row.
type Memory struct {
	ID string `json:"id"`
	Scope

	Text          string          `json:"memory"`
	InputMessages json.RawMessage `json:"input,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	Categories    []string        `json:"categories,omitempty"`
	Keywords      []string        `json:"keywords,omitempty"`

	// Fingerprint is SHA-256(Text), recomputed on every text mutation.
	Fingerprint string `json:"fingerprint"`

	Immutable bool       `json:"immutable,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	Embedding []float32 `json:"-"`

	// Entities and Relations hold opaque graph extraction output.
	Entities  json.RawMessage `json:"entities,omitempty"`
	Relations json.RawMessage `json:"relations,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one element of the originating conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryEvent labels an audit entry.
type HistoryEvent string

const (
	EventAdd    HistoryEvent = "ADD"
	EventUpdate HistoryEvent = "UPDATE"
	EventDelete HistoryEvent = "DELETE"
)

// HistoryEntry is one append-only audit record. Entries are never updated
// or deleted after creation.
type HistoryEntry struct {
	ID        string          `json:"id"`
	MemoryID  string          `json:"memory_id"`
	TenantID  string          `json:"-"`
	Event     HistoryEvent    `json:"event"`
	OldText   string          `json:"old_memory,omitempty"`
	NewText   string          `json:"new_memory"`
	Input     json.RawMessage `json:"input,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	ActorID   string          `json:"actor_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Feedback is a caller sentiment record attached to a memory. Feedback rows
// are removed when their memory is deleted.
type Feedback struct {
	ID        string    `json:"id"`
	MemoryID  string    `json:"memory_id"`
	TenantID  string    `json:"-"`
	Sentiment string    `json:"feedback"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchMode selects the retrieval strategy.
type SearchMode string

const (
	ModeSimilarity SearchMode = "similarity"
	ModeKeyword    SearchMode = "keyword"
	ModeMetadata   SearchMode = "metadata"
)

// SearchRequest describes one retrieval call.
type SearchRequest struct {
	Query     string     `json:"query"`
	Filters   any        `json:"filters,omitempty"`
	Mode      SearchMode `json:"mode,omitempty"`
	TopK      int        `json:"top_k,omitempty"`
	Threshold *float64   `json:"threshold,omitempty"`
	Rerank    bool       `json:"rerank,omitempty"`
	Fields    []string   `json:"fields,omitempty"`
}

// RankedMemory is a Memory plus its similarity score. Similarity is nil in
// keyword and metadata modes.
type RankedMemory struct {
	Memory
	Similarity *float64 `json:"similarity,omitempty"`
}

// Fingerprint returns the hex SHA-256 digest of text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// dedupe returns a sorted copy of items with duplicates and empties removed.
func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, item := range items {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}
