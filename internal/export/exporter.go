// Package export snapshots filtered memories into blob-stored artifacts.
// Export jobs run detached from the creating request; their status moves
// PROCESSING -> COMPLETED | FAILED and failures are logged, never surfaced
// to the caller that started them.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/recallstack/recall/internal/blob"
	"github.com/recallstack/recall/internal/filter"
	"github.com/recallstack/recall/internal/memory"
)

// Status is the lifecycle state of an export job.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

var (
	// ErrExportNotFound indicates an unknown export id.
	ErrExportNotFound = errors.New("export: not found")

	// ErrExportIncomplete indicates an import attempt against an export
	// that has not completed.
	ErrExportIncomplete = errors.New("export: not completed")
)

// Record tracks one export job.
type Record struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"-"`
	Status    Status          `json:"status"`
	Container string          `json:"-"`
	ObjectKey string          `json:"-"`
	Error     string          `json:"error,omitempty"`
	Filters   json.RawMessage `json:"filters,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store persists export records.
type Store interface {
	CreateExport(ctx context.Context, rec Record) error
	SetExportStatus(ctx context.Context, id string, status Status, objectKey, errMsg string) error
	GetExport(ctx context.Context, tenantID, id string) (Record, error)
	LatestExport(ctx context.Context, tenantID string) (Record, error)
}

// artifact is the serialized snapshot format. Memories holds full rows, or
// field-projected maps when the export was created with a schema.
type artifact struct {
	ExportedAt time.Time `json:"exported_at"`
	TenantID   string    `json:"tenant_id"`
	Schema     []string  `json:"schema,omitempty"`
	Count      int       `json:"count"`
	Memories   any       `json:"memories"`
}

// importArtifact is the read-side shape: projected memories decode with
// their absent fields zeroed.
type importArtifact struct {
	Memories []memory.Memory `json:"memories"`
}

// Exporter creates and serves export snapshots.
type Exporter struct {
	records   Store
	memories  memory.Store
	blobs     blob.Store
	container string
	logger    *slog.Logger

	// wg tracks detached jobs so Close can drain them on shutdown.
	wg sync.WaitGroup
}

// New creates an Exporter writing artifacts into the given blob container.
func New(records Store, memories memory.Store, blobs blob.Store, container string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	if container == "" {
		container = "exports"
	}
	return &Exporter{
		records:   records,
		memories:  memories,
		blobs:     blobs,
		container: container,
		logger:    logger,
	}
}

// Create registers an export job and starts it detached. The returned id is
// immediately pollable; the snapshot completes in the background. schema,
// when non-empty, is a field allow-list applied to every memory in the
// artifact (the identity field is always kept).
func (e *Exporter) Create(ctx context.Context, tenantID string, rawFilter any, schema []string) (string, error) {
	pred, err := filter.Compile(tenantID, rawFilter)
	if err != nil {
		return "", err
	}

	var filters json.RawMessage
	if rawFilter != nil {
		if b, err := json.Marshal(rawFilter); err == nil {
			filters = b
		}
	}

	now := time.Now().UTC()
	rec := Record{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Status:    StatusProcessing,
		Container: e.container,
		Filters:   filters,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.records.CreateExport(ctx, rec); err != nil {
		return "", err
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		// Detached from the request context: the snapshot outlives the call
		// that started it.
		e.run(context.Background(), rec, pred, schema)
	}()

	return rec.ID, nil
}

// run performs the snapshot and flips the record to its terminal state.
func (e *Exporter) run(ctx context.Context, rec Record, pred filter.Predicate, schema []string) {
	rows, err := e.memories.List(ctx, pred, 0)
	if err != nil {
		e.fail(ctx, rec.ID, fmt.Errorf("list memories: %w", err))
		return
	}

	var body any = rows
	if len(schema) > 0 {
		projected := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			projected = append(projected, memory.Project(row, schema))
		}
		body = projected
	}

	data, err := json.Marshal(artifact{
		ExportedAt: time.Now().UTC(),
		TenantID:   rec.TenantID,
		Schema:     schema,
		Count:      len(rows),
		Memories:   body,
	})
	if err != nil {
		e.fail(ctx, rec.ID, fmt.Errorf("marshal artifact: %w", err))
		return
	}

	key := rec.TenantID + "/" + rec.ID + ".json"
	if err := e.blobs.Upload(ctx, e.container, key, data, "application/json"); err != nil {
		e.fail(ctx, rec.ID, fmt.Errorf("upload artifact: %w", err))
		return
	}

	if err := e.records.SetExportStatus(ctx, rec.ID, StatusCompleted, key, ""); err != nil {
		e.logger.Error("export completed but status update failed", "export_id", rec.ID, "error", err)
		return
	}
	e.logger.Info("export completed", "export_id", rec.ID, "memories", len(rows))
}

func (e *Exporter) fail(ctx context.Context, id string, cause error) {
	e.logger.Error("export failed", "export_id", id, "error", cause)
	if err := e.records.SetExportStatus(ctx, id, StatusFailed, "", cause.Error()); err != nil {
		e.logger.Error("export failure status update failed", "export_id", id, "error", err)
	}
}

// Get returns the export record and, when completed, the artifact bytes.
func (e *Exporter) Get(ctx context.Context, tenantID, id string) (Record, []byte, error) {
	var (
		rec Record
		err error
	)
	if id == "" {
		rec, err = e.records.LatestExport(ctx, tenantID)
	} else {
		rec, err = e.records.GetExport(ctx, tenantID, id)
	}
	if err != nil {
		return Record{}, nil, err
	}

	if rec.Status != StatusCompleted {
		return rec, nil, nil
	}

	data, err := e.blobs.Download(ctx, rec.Container, rec.ObjectKey)
	if err != nil {
		return rec, nil, fmt.Errorf("export: download artifact: %w", err)
	}
	return rec, data, nil
}

// Import re-creates the memories of a completed export under the caller's
// tenant. Rows get fresh ids and ADD audit entries; fields absent from a
// schema-projected artifact come back zeroed. Artifacts carry no embedding
// vectors, so restored rows rank by keyword/metadata until re-embedded.
// Returns the number of rows restored.
func (e *Exporter) Import(ctx context.Context, tenantID, id string) (int, error) {
	rec, data, err := e.Get(ctx, tenantID, id)
	if err != nil {
		return 0, err
	}
	if rec.Status != StatusCompleted {
		return 0, fmt.Errorf("%w: %s is %s", ErrExportIncomplete, rec.ID, rec.Status)
	}

	var art importArtifact
	if err := json.Unmarshal(data, &art); err != nil {
		return 0, fmt.Errorf("export: decode artifact: %w", err)
	}

	now := time.Now().UTC()
	for i, m := range art.Memories {
		m.ID = uuid.NewString()
		m.TenantID = tenantID
		if m.Fingerprint == "" {
			m.Fingerprint = memory.Fingerprint(m.Text)
		}
		m.CreatedAt = now
		m.UpdatedAt = now

		entry := memory.HistoryEntry{
			ID:        uuid.NewString(),
			MemoryID:  m.ID,
			TenantID:  tenantID,
			Event:     memory.EventAdd,
			NewText:   m.Text,
			CreatedAt: now,
		}
		if err := e.memories.Insert(ctx, m, entry); err != nil {
			return i, fmt.Errorf("export: restore row %d: %w", i, err)
		}
	}

	e.logger.Info("export imported", "export_id", rec.ID, "memories", len(art.Memories))
	return len(art.Memories), nil
}

// Close waits for in-flight export jobs to finish.
func (e *Exporter) Close() {
	e.wg.Wait()
}
