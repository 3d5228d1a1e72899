package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/recallstack/recall/internal/filter"
	"github.com/recallstack/recall/internal/memory"
)

// Compile-time interface guards.
var (
	_ memory.Store       = (*Store)(nil)
	_ memory.ExpiryStore = (*Store)(nil)
)

const memoryColumns = `id, tenant_id, user_id, agent_id, app_id, run_id, org_id, project_id,
	text, input_messages, metadata, categories, keywords, fingerprint, immutable,
	expires_at, embedding, entities, relations, created_at, updated_at`

// Insert persists a new memory and its ADD history entry in one
// transaction.
func (s *Store) Insert(ctx context.Context, m memory.Memory, entry memory.HistoryEntry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := insertMemory(ctx, tx, m); err != nil {
			return err
		}
		return insertHistory(ctx, tx, entry)
	})
}

// Get returns a memory by id within the tenant.
func (s *Store) Get(ctx context.Context, tenantID, id string) (memory.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ? AND tenant_id = ?`,
		id, tenantID,
	)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return memory.Memory{}, memory.ErrNotFound
	}
	if err != nil {
		return memory.Memory{}, fmt.Errorf("sqlite: get memory: %w", err)
	}
	return m, nil
}

// Update persists a mutated memory and its UPDATE history entry in one
// transaction.
func (s *Store) Update(ctx context.Context, m memory.Memory, entry memory.HistoryEntry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE memories SET
				text = ?, metadata = ?, categories = ?, keywords = ?,
				fingerprint = ?, embedding = ?, entities = ?, relations = ?, updated_at = ?
			WHERE id = ? AND tenant_id = ?`,
			m.Text, jsonOrDefault(m.Metadata, "{}"),
			mustJSON(m.Categories), mustJSON(m.Keywords),
			m.Fingerprint, encodeVector(m.Embedding),
			nullRaw(m.Entities), nullRaw(m.Relations),
			formatTime(m.UpdatedAt),
			m.ID, m.TenantID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: update memory: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: rows affected: %w", err)
		}
		if n == 0 {
			return memory.ErrNotFound
		}
		return insertHistory(ctx, tx, entry)
	})
}

// Delete writes the DELETE history entry, removes the memory's feedback
// rows, and removes the memory row, all in one transaction. A crash cannot
// leave the audit trail out of step with live state.
func (s *Store) Delete(ctx context.Context, tenantID, id string, entry memory.HistoryEntry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := insertHistory(ctx, tx, entry); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM feedback WHERE memory_id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: delete feedback: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ? AND tenant_id = ?`, id, tenantID)
		if err != nil {
			return fmt.Errorf("sqlite: delete memory: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: rows affected: %w", err)
		}
		if n == 0 {
			return memory.ErrNotFound
		}
		return nil
	})
}

// List returns memories matching the predicate, newest first, capped at
// limit (0 means no cap).
func (s *Store) List(ctx context.Context, pred filter.Predicate, limit int) ([]memory.Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE ` + pred.SQL + ` ORDER BY created_at DESC`
	args := pred.Args
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(append([]any{}, args...), limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanMemories(rows)
}

// Candidates returns all memories matching the predicate with their
// embeddings loaded.
func (s *Store) Candidates(ctx context.Context, pred filter.Predicate) ([]memory.Memory, error) {
	return s.List(ctx, pred, 0)
}

// History returns all audit entries for a memory, newest first. Entries
// survive deletion of the memory.
func (s *Store) History(ctx context.Context, tenantID, memoryID string) ([]memory.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, memory_id, event, old_text, new_text, input, metadata, actor_id, created_at
		FROM memory_history
		WHERE tenant_id = ? AND memory_id = ?
		ORDER BY created_at DESC, id DESC`,
		tenantID, memoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []memory.HistoryEntry
	for rows.Next() {
		var (
			e         memory.HistoryEntry
			input     sql.NullString
			metadata  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.MemoryID, &e.Event, &e.OldText, &e.NewText, &input, &metadata, &e.ActorID, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan history: %w", err)
		}
		e.TenantID = tenantID
		if input.Valid && input.String != "" {
			e.Input = json.RawMessage(input.String)
		}
		if metadata.Valid && metadata.String != "" {
			e.Metadata = json.RawMessage(metadata.String)
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse history created_at %q: %w", createdAt, err)
		}
		e.CreatedAt = t
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: history rows: %w", err)
	}
	return entries, nil
}

// AddFeedback records a feedback row.
func (s *Store) AddFeedback(ctx context.Context, fb memory.Feedback) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, memory_id, tenant_id, sentiment, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		fb.ID, fb.MemoryID, fb.TenantID, fb.Sentiment, fb.Reason, formatTime(fb.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: add feedback: %w", err)
	}
	return nil
}

// DeleteExpired hard-deletes rows whose expires_at is at or before now,
// along with their feedback. History entries are retained.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		cutoff := formatTime(now)
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM feedback WHERE memory_id IN (
				SELECT id FROM memories WHERE expires_at IS NOT NULL AND expires_at <= ?
			)`, cutoff); err != nil {
			return fmt.Errorf("sqlite: delete expired feedback: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM memories WHERE expires_at IS NOT NULL AND expires_at <= ?`, cutoff)
		if err != nil {
			return fmt.Errorf("sqlite: delete expired memories: %w", err)
		}
		deleted, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: rows affected: %w", err)
		}
		return nil
	})
	return deleted, err
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func insertMemory(ctx context.Context, tx *sql.Tx, m memory.Memory) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO memories (`+memoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.TenantID,
		nullString(m.UserID), nullString(m.AgentID), nullString(m.AppID),
		nullString(m.RunID), nullString(m.OrgID), nullString(m.ProjectID),
		m.Text, jsonOrDefault(m.InputMessages, "[]"), jsonOrDefault(m.Metadata, "{}"),
		mustJSON(m.Categories), mustJSON(m.Keywords),
		m.Fingerprint, boolToInt(m.Immutable),
		nullTime(m.ExpiresAt), encodeVector(m.Embedding),
		nullRaw(m.Entities), nullRaw(m.Relations),
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert memory: %w", err)
	}
	return nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, entry memory.HistoryEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO memory_history (id, memory_id, tenant_id, event, old_text, new_text, input, metadata, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.MemoryID, entry.TenantID, string(entry.Event),
		entry.OldText, entry.NewText,
		nullRaw(entry.Input), nullRaw(entry.Metadata),
		entry.ActorID, formatTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert history: %w", err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(sc scanner) (memory.Memory, error) {
	var (
		m          memory.Memory
		userID     sql.NullString
		agentID    sql.NullString
		appID      sql.NullString
		runID      sql.NullString
		orgID      sql.NullString
		projectID  sql.NullString
		input      string
		metadata   string
		categories string
		keywords   string
		immutable  int
		expiresAt  sql.NullString
		embedding  []byte
		entities   sql.NullString
		relations  sql.NullString
		createdAt  string
		updatedAt  string
	)

	err := sc.Scan(
		&m.ID, &m.TenantID, &userID, &agentID, &appID, &runID, &orgID, &projectID,
		&m.Text, &input, &metadata, &categories, &keywords, &m.Fingerprint, &immutable,
		&expiresAt, &embedding, &entities, &relations, &createdAt, &updatedAt,
	)
	if err != nil {
		return memory.Memory{}, err
	}

	m.UserID = userID.String
	m.AgentID = agentID.String
	m.AppID = appID.String
	m.RunID = runID.String
	m.OrgID = orgID.String
	m.ProjectID = projectID.String
	m.Immutable = immutable != 0

	if input != "" && input != "[]" {
		m.InputMessages = json.RawMessage(input)
	}
	if metadata != "" && metadata != "{}" {
		m.Metadata = json.RawMessage(metadata)
	}
	if err := json.Unmarshal([]byte(categories), &m.Categories); err != nil {
		return memory.Memory{}, fmt.Errorf("unmarshal categories: %w", err)
	}
	if err := json.Unmarshal([]byte(keywords), &m.Keywords); err != nil {
		return memory.Memory{}, fmt.Errorf("unmarshal keywords: %w", err)
	}
	if entities.Valid && entities.String != "" {
		m.Entities = json.RawMessage(entities.String)
	}
	if relations.Valid && relations.String != "" {
		m.Relations = json.RawMessage(relations.String)
	}

	if m.Embedding, err = decodeVector(embedding); err != nil {
		return memory.Memory{}, err
	}

	if expiresAt.Valid && expiresAt.String != "" {
		t, err := time.Parse(time.RFC3339Nano, expiresAt.String)
		if err != nil {
			return memory.Memory{}, fmt.Errorf("parse expires_at %q: %w", expiresAt.String, err)
		}
		m.ExpiresAt = &t
	}
	if m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return memory.Memory{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	if m.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return memory.Memory{}, fmt.Errorf("parse updated_at %q: %w", updatedAt, err)
	}
	return m, nil
}

func scanMemories(rows *sql.Rows) ([]memory.Memory, error) {
	var out []memory.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan memory: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: memory rows: %w", err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func jsonOrDefault(raw json.RawMessage, def string) string {
	if len(raw) == 0 {
		return def
	}
	return string(raw)
}

func mustJSON(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
