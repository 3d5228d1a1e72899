package blob

import (
	"context"
	"testing"
)

func TestFSRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}
	ctx := context.Background()

	data := []byte(`{"count": 1}`)
	if err := store.Upload(ctx, "exports", "t1/e1.json", data, "application/json"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	got, err := store.Download(ctx, "exports", "t1/e1.json")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("data = %s, want %s", got, data)
	}
}

func TestFSDownload_Missing(t *testing.T) {
	t.Parallel()

	store, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}
	if _, err := store.Download(context.Background(), "exports", "nope.json"); err == nil {
		t.Fatal("expected error for missing object")
	}
}

func TestFSRejectsPathEscape(t *testing.T) {
	t.Parallel()

	store, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}
	ctx := context.Background()

	if err := store.Upload(ctx, "..", "../escape.json", []byte("x"), ""); err == nil {
		t.Fatal("expected error for key escaping the root")
	}
	if _, err := store.Download(ctx, "exports", "../../etc/passwd"); err == nil {
		t.Fatal("expected error for traversal key")
	}
}
