package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/recallstack/recall/internal/export"
)

func exportRecord(id, tenantID string, at time.Time) export.Record {
	return export.Record{
		ID:        id,
		TenantID:  tenantID,
		Status:    export.StatusProcessing,
		Container: "exports",
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestExportLifecycle(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	rec := exportRecord("e1", "t1", now)
	if err := store.CreateExport(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.GetExport(ctx, "t1", "e1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != export.StatusProcessing {
		t.Errorf("status = %q, want PROCESSING", got.Status)
	}

	if err := store.SetExportStatus(ctx, "e1", export.StatusCompleted, "t1/e1.json", ""); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, err = store.GetExport(ctx, "t1", "e1")
	if err != nil {
		t.Fatalf("get after completion: %v", err)
	}
	if got.Status != export.StatusCompleted || got.ObjectKey != "t1/e1.json" {
		t.Errorf("record = %+v, want completed with object key", got)
	}
}

func TestSetExportStatus_Unknown(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	err := store.SetExportStatus(context.Background(), "ghost", export.StatusFailed, "", "boom")
	if !errors.Is(err, export.ErrExportNotFound) {
		t.Fatalf("expected ErrExportNotFound, got %v", err)
	}
}

func TestGetExport_TenantIsolation(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	if err := store.CreateExport(ctx, exportRecord("e1", "t1", time.Now().UTC())); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.GetExport(ctx, "t2", "e1"); !errors.Is(err, export.ErrExportNotFound) {
		t.Fatalf("cross-tenant get must fail, got %v", err)
	}
}

func TestLatestExport(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i, id := range []string{"old", "new"} {
		rec := exportRecord(id, "t1", base.Add(time.Duration(i)*time.Minute))
		if err := store.CreateExport(ctx, rec); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	got, err := store.LatestExport(ctx, "t1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.ID != "new" {
		t.Errorf("latest = %q, want new", got.ID)
	}

	if _, err := store.LatestExport(ctx, "empty-tenant"); !errors.Is(err, export.ErrExportNotFound) {
		t.Fatalf("empty tenant must be not found, got %v", err)
	}
}

func TestDeleteStaleExports(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.CreateExport(ctx, exportRecord("stale", "t1", now.Add(-48*time.Hour))); err != nil {
		t.Fatalf("create stale: %v", err)
	}
	if err := store.CreateExport(ctx, exportRecord("fresh", "t1", now)); err != nil {
		t.Fatalf("create fresh: %v", err)
	}

	pruned, err := store.DeleteStaleExports(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	if _, err := store.GetExport(ctx, "t1", "fresh"); err != nil {
		t.Errorf("fresh export must survive: %v", err)
	}
}
