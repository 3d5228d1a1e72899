package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recall.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  bind: "0.0.0.0:9000"
  bearer_token: "secret"
storage:
  path: "/var/lib/recall/recall.db"
provider:
  base_url: "http://localhost:11434/v1"
  embed_model: "nomic-embed-text"
  embed_dims: 768
billing:
  mode: dev
  starting_balance: 100
  costs:
    memory.create: 2
retention:
  export_max_age: 72h
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Bind != "0.0.0.0:9000" {
		t.Errorf("bind = %q", cfg.Server.Bind)
	}
	if cfg.Provider.EmbedDims != 768 {
		t.Errorf("embed_dims = %d, want 768", cfg.Provider.EmbedDims)
	}
	if cfg.Billing.Costs["memory.create"] != 2 {
		t.Errorf("cost override = %d, want 2", cfg.Billing.Costs["memory.create"])
	}
	if cfg.Retention.ExportMaxAge != 72*time.Hour {
		t.Errorf("export_max_age = %v, want 72h", cfg.Retention.ExportMaxAge)
	}
}

func TestLoad_DefaultsFill(t *testing.T) {
	path := writeConfig(t, `
provider:
  base_url: "http://localhost:11434/v1"
  embed_model: "nomic-embed-text"
  embed_dims: 768
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Bind != "127.0.0.1:8428" {
		t.Errorf("bind default = %q", cfg.Server.Bind)
	}
	if cfg.Billing.Mode != "none" {
		t.Errorf("billing mode default = %q", cfg.Billing.Mode)
	}
	if cfg.Export.Backend != "fs" || cfg.Export.Container != "exports" {
		t.Errorf("export defaults = %q/%q", cfg.Export.Backend, cfg.Export.Container)
	}
	if cfg.Retention.Schedule != "0 * * * *" {
		t.Errorf("schedule default = %q", cfg.Retention.Schedule)
	}
	if cfg.Embedding.CacheSize != 10_000 {
		t.Errorf("cache size default = %d", cfg.Embedding.CacheSize)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level default = %q", cfg.Log.Level)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("RECALL_TEST_TOKEN", "from-env")

	path := writeConfig(t, `
server:
  bearer_token: "${RECALL_TEST_TOKEN}"
storage:
  path: "${RECALL_TEST_DB_PATH:-fallback.db}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.BearerToken != "from-env" {
		t.Errorf("token = %q, want from-env", cfg.Server.BearerToken)
	}
	if cfg.Storage.Path != "fallback.db" {
		t.Errorf("path = %q, want fallback.db", cfg.Storage.Path)
	}
}

func TestLoad_EnvValueBeatsDefault(t *testing.T) {
	t.Setenv("RECALL_TEST_DB_PATH", "real.db")

	path := writeConfig(t, `
storage:
  path: "${RECALL_TEST_DB_PATH:-fallback.db}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Path != "real.db" {
		t.Errorf("path = %q, want real.db", cfg.Storage.Path)
	}
}

func TestLoad_UnresolvedVariable(t *testing.T) {
	path := writeConfig(t, `
server:
  bearer_token: "${RECALL_DEFINITELY_UNSET_VAR}"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unresolved variable")
	}
	if !strings.Contains(err.Error(), "RECALL_DEFINITELY_UNSET_VAR") {
		t.Errorf("error must name the variable, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not: a: mapping")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
