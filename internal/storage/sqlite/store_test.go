package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/recallstack/recall/internal/filter"
	"github.com/recallstack/recall/internal/memory"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "recall.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testMemory(id, tenantID, text string) memory.Memory {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return memory.Memory{
		ID:          id,
		Scope:       memory.Scope{TenantID: tenantID, UserID: "u1"},
		Text:        text,
		Categories:  []string{"general"},
		Keywords:    []string{"test"},
		Fingerprint: memory.Fingerprint(text),
		Embedding:   []float32{0.1, 0.2, 0.3},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func addEntry(m memory.Memory, event memory.HistoryEvent, at time.Time) memory.HistoryEntry {
	return memory.HistoryEntry{
		ID:        m.ID + "-" + string(event),
		MemoryID:  m.ID,
		TenantID:  m.TenantID,
		Event:     event,
		NewText:   m.Text,
		CreatedAt: at,
	}
}

func TestInsertGetRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	m := testMemory("m1", "t1", "I prefer dark roast")
	if err := store.Insert(ctx, m, addEntry(m, memory.EventAdd, m.CreatedAt)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := store.Get(ctx, "t1", "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Text != m.Text {
		t.Errorf("text = %q, want %q", got.Text, m.Text)
	}
	if got.Fingerprint != m.Fingerprint {
		t.Errorf("fingerprint = %q, want %q", got.Fingerprint, m.Fingerprint)
	}
	if got.UserID != "u1" {
		t.Errorf("user_id = %q, want u1", got.UserID)
	}
	if len(got.Embedding) != 3 {
		t.Fatalf("embedding = %v, want 3 elements back", got.Embedding)
	}
	for i := range m.Embedding {
		if got.Embedding[i] != m.Embedding[i] {
			t.Errorf("embedding[%d] = %v, want %v", i, got.Embedding[i], m.Embedding[i])
		}
	}
	if !got.CreatedAt.Equal(m.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, m.CreatedAt)
	}
}

func TestGet_WrongTenant(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	m := testMemory("m1", "t1", "private")
	if err := store.Insert(ctx, m, addEntry(m, memory.EventAdd, m.CreatedAt)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := store.Get(ctx, "t2", "m1"); !errors.Is(err, memory.ErrNotFound) {
		t.Fatalf("cross-tenant get must be ErrNotFound, got %v", err)
	}
}

func TestUpdate_PersistsNewDerivedFields(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	m := testMemory("m1", "t1", "old")
	if err := store.Insert(ctx, m, addEntry(m, memory.EventAdd, m.CreatedAt)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	m.Text = "new"
	m.Fingerprint = memory.Fingerprint("new")
	m.Keywords = []string{"fresh"}
	m.UpdatedAt = m.UpdatedAt.Add(time.Minute)
	if err := store.Update(ctx, m, addEntry(m, memory.EventUpdate, m.UpdatedAt)); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.Get(ctx, "t1", "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Text != "new" || got.Fingerprint != memory.Fingerprint("new") {
		t.Errorf("updated row = %q/%q", got.Text, got.Fingerprint)
	}
	if len(got.Keywords) != 1 || got.Keywords[0] != "fresh" {
		t.Errorf("keywords = %v, want [fresh]", got.Keywords)
	}
}

func TestUpdate_UnknownRow(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	m := testMemory("ghost", "t1", "x")
	err := store.Update(context.Background(), m, addEntry(m, memory.EventUpdate, m.UpdatedAt))
	if !errors.Is(err, memory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete_RemovesFeedbackKeepsHistory(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	m := testMemory("m1", "t1", "to delete")
	if err := store.Insert(ctx, m, addEntry(m, memory.EventAdd, m.CreatedAt)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.AddFeedback(ctx, memory.Feedback{
		ID: "fb1", MemoryID: "m1", TenantID: "t1",
		Sentiment: "POSITIVE", CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("feedback: %v", err)
	}

	if err := store.Delete(ctx, "t1", "m1", addEntry(m, memory.EventDelete, m.CreatedAt.Add(time.Hour))); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := store.Get(ctx, "t1", "m1"); !errors.Is(err, memory.ErrNotFound) {
		t.Error("row must be gone after delete")
	}

	entries, err := store.History(ctx, "t1", "m1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("history entries = %d, want ADD and DELETE to survive", len(entries))
	}
	if entries[0].Event != memory.EventDelete {
		t.Errorf("newest entry = %q, want DELETE first", entries[0].Event)
	}
}

func TestDelete_UnknownRow(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	m := testMemory("ghost", "t1", "x")
	err := store.Delete(context.Background(), "t1", "ghost", addEntry(m, memory.EventDelete, time.Now()))
	if !errors.Is(err, memory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestList_PredicateAndOrder(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"old", "mid", "new"} {
		m := testMemory(id, "t1", "text "+id)
		m.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		m.UpdatedAt = m.CreatedAt
		if err := store.Insert(ctx, m, addEntry(m, memory.EventAdd, m.CreatedAt)); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	other := testMemory("foreign", "t2", "other tenant")
	if err := store.Insert(ctx, other, addEntry(other, memory.EventAdd, other.CreatedAt)); err != nil {
		t.Fatalf("insert foreign: %v", err)
	}

	pred, err := filter.Compile("t1", nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	rows, err := store.List(ctx, pred, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3 tenant-scoped", len(rows))
	}
	if rows[0].ID != "new" || rows[2].ID != "old" {
		t.Errorf("order = [%s %s %s], want newest first", rows[0].ID, rows[1].ID, rows[2].ID)
	}

	capped, err := store.List(ctx, pred, 2)
	if err != nil {
		t.Fatalf("list limit: %v", err)
	}
	if len(capped) != 2 {
		t.Errorf("limit 2 returned %d rows", len(capped))
	}
}

func TestList_CompiledFilterPredicate(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	coffee := testMemory("m1", "t1", "espresso")
	coffee.Categories = []string{"coffee"}
	tea := testMemory("m2", "t1", "oolong")
	tea.Categories = []string{"tea"}
	for _, m := range []memory.Memory{coffee, tea} {
		if err := store.Insert(ctx, m, addEntry(m, memory.EventAdd, m.CreatedAt)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	pred, err := filter.Compile("t1", map[string]any{"categories": "coffee"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	rows, err := store.List(ctx, pred, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "m1" {
		t.Errorf("rows = %v, want only the coffee memory", rows)
	}
}

func TestHistory_NewestFirst(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	m := testMemory("m1", "t1", "v1")
	base := m.CreatedAt
	if err := store.Insert(ctx, m, addEntry(m, memory.EventAdd, base)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	m.Text = "v2"
	entry := addEntry(m, memory.EventUpdate, base.Add(time.Minute))
	entry.OldText = "v1"
	if err := store.Update(ctx, m, entry); err != nil {
		t.Fatalf("update: %v", err)
	}

	entries, err := store.History(ctx, "t1", "m1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Event != memory.EventUpdate || entries[1].Event != memory.EventAdd {
		t.Errorf("order = [%s %s], want newest first", entries[0].Event, entries[1].Event)
	}
	if entries[0].OldText != "v1" || entries[0].NewText != "v2" {
		t.Errorf("update entry = %q -> %q", entries[0].OldText, entries[0].NewText)
	}
}

func TestDeleteExpired(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	expired := testMemory("gone", "t1", "stale")
	expired.ExpiresAt = &past
	keeper := testMemory("kept", "t1", "fresh")
	keeper.ExpiresAt = &future
	eternal := testMemory("eternal", "t1", "no expiry")

	for _, m := range []memory.Memory{expired, keeper, eternal} {
		if err := store.Insert(ctx, m, addEntry(m, memory.EventAdd, m.CreatedAt)); err != nil {
			t.Fatalf("insert %s: %v", m.ID, err)
		}
	}

	deleted, err := store.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, err := store.Get(ctx, "t1", "gone"); !errors.Is(err, memory.ErrNotFound) {
		t.Error("expired row must be gone")
	}
	if _, err := store.Get(ctx, "t1", "kept"); err != nil {
		t.Errorf("future-expiry row must survive: %v", err)
	}
	if _, err := store.Get(ctx, "t1", "eternal"); err != nil {
		t.Errorf("no-expiry row must survive: %v", err)
	}

	// The expired memory's audit trail is retained.
	entries, err := store.History(ctx, "t1", "gone")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("history entries = %d, want the ADD entry retained", len(entries))
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	m := testMemory("m1", "t1", "with metadata")
	m.Metadata = []byte(`{"source":"test","priority":2}`)
	m.InputMessages = []byte(`[{"role":"user","content":"hi"}]`)
	if err := store.Insert(ctx, m, addEntry(m, memory.EventAdd, m.CreatedAt)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := store.Get(ctx, "t1", "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Metadata) != `{"source":"test","priority":2}` {
		t.Errorf("metadata = %s", got.Metadata)
	}
	if string(got.InputMessages) != `[{"role":"user","content":"hi"}]` {
		t.Errorf("input = %s", got.InputMessages)
	}
}
