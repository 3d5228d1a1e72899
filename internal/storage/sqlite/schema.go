package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS memories (
		id             TEXT PRIMARY KEY,
		tenant_id      TEXT NOT NULL,
		user_id        TEXT,
		agent_id       TEXT,
		app_id         TEXT,
		run_id         TEXT,
		org_id         TEXT,
		project_id     TEXT,
		text           TEXT NOT NULL,
		input_messages TEXT NOT NULL DEFAULT '[]',
		metadata       TEXT NOT NULL DEFAULT '{}',
		categories     TEXT NOT NULL DEFAULT '[]',
		keywords       TEXT NOT NULL DEFAULT '[]',
		fingerprint    TEXT NOT NULL,
		immutable      INTEGER NOT NULL DEFAULT 0,
		expires_at     TEXT,
		embedding      BLOB,
		entities       TEXT,
		relations      TEXT,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_memories_tenant ON memories(tenant_id, created_at)`,

	`CREATE INDEX IF NOT EXISTS idx_memories_expiry ON memories(expires_at) WHERE expires_at IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS memory_history (
		id         TEXT PRIMARY KEY,
		memory_id  TEXT NOT NULL,
		tenant_id  TEXT NOT NULL,
		event      TEXT NOT NULL,
		old_text   TEXT NOT NULL DEFAULT '',
		new_text   TEXT NOT NULL,
		input      TEXT,
		metadata   TEXT,
		actor_id   TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_history_memory ON memory_history(tenant_id, memory_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS feedback (
		id         TEXT PRIMARY KEY,
		memory_id  TEXT NOT NULL,
		tenant_id  TEXT NOT NULL,
		sentiment  TEXT NOT NULL,
		reason     TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_feedback_memory ON feedback(memory_id)`,

	`CREATE TABLE IF NOT EXISTS exports (
		id         TEXT PRIMARY KEY,
		tenant_id  TEXT NOT NULL,
		status     TEXT NOT NULL,
		container  TEXT NOT NULL DEFAULT '',
		object_key TEXT NOT NULL DEFAULT '',
		error      TEXT NOT NULL DEFAULT '',
		filters    TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_exports_tenant ON exports(tenant_id, created_at)`,
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(db *sql.DB) error {
	ctx := context.TODO()

	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}

	return nil
}
