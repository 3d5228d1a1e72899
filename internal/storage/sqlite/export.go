package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/recallstack/recall/internal/export"
)

// Compile-time interface guard.
var _ export.Store = (*Store)(nil)

// CreateExport records a new export in PROCESSING state.
func (s *Store) CreateExport(ctx context.Context, rec export.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exports (id, tenant_id, status, container, object_key, error, filters, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TenantID, string(rec.Status), rec.Container, rec.ObjectKey, rec.Error,
		nullRaw(rec.Filters), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create export: %w", err)
	}
	return nil
}

// SetExportStatus transitions an export to its terminal state.
func (s *Store) SetExportStatus(ctx context.Context, id string, status export.Status, objectKey, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE exports SET status = ?, object_key = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		string(status), objectKey, errMsg, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: set export status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return export.ErrExportNotFound
	}
	return nil
}

// GetExport returns an export record by id within the tenant.
func (s *Store) GetExport(ctx context.Context, tenantID, id string) (export.Record, error) {
	return s.scanExportRow(s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, status, container, object_key, error, filters, created_at, updated_at
		FROM exports WHERE id = ? AND tenant_id = ?`,
		id, tenantID,
	))
}

// LatestExport returns the tenant's most recent export record.
func (s *Store) LatestExport(ctx context.Context, tenantID string) (export.Record, error) {
	return s.scanExportRow(s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, status, container, object_key, error, filters, created_at, updated_at
		FROM exports WHERE tenant_id = ?
		ORDER BY created_at DESC LIMIT 1`,
		tenantID,
	))
}

// DeleteStaleExports removes export records older than before. Artifacts in
// blob storage are left for the blob backend's own lifecycle rules.
func (s *Store) DeleteStaleExports(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM exports WHERE created_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete stale exports: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return n, nil
}

func (s *Store) scanExportRow(row *sql.Row) (export.Record, error) {
	var (
		rec       export.Record
		status    string
		filters   sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(&rec.ID, &rec.TenantID, &status, &rec.Container, &rec.ObjectKey, &rec.Error, &filters, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return export.Record{}, export.ErrExportNotFound
	}
	if err != nil {
		return export.Record{}, fmt.Errorf("sqlite: scan export: %w", err)
	}

	rec.Status = export.Status(status)
	if filters.Valid && filters.String != "" {
		rec.Filters = json.RawMessage(filters.String)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return export.Record{}, fmt.Errorf("sqlite: parse export created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return export.Record{}, fmt.Errorf("sqlite: parse export updated_at: %w", err)
	}
	return rec, nil
}
