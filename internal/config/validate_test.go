package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Provider.BaseURL = "http://localhost:11434/v1"
	cfg.Provider.EmbedModel = "nomic-embed-text"
	cfg.Provider.EmbedDims = 768
	cfg.Defaults()
	return cfg
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()

	if err := Validate(validConfig()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Provider.BaseURL = ""
	cfg.Provider.EmbedDims = 0
	cfg.Billing.Mode = "prod"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"provider.base_url", "provider.embed_dims", "billing.mode"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error must mention %s, got %v", want, err)
		}
	}
}

func TestValidate_NegativeCost(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Billing.Costs = map[string]int64{"memory.create": -1}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "billing.costs[memory.create]") {
		t.Fatalf("expected negative cost error, got %v", err)
	}
}

func TestValidate_ExportBackends(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Export.Backend = "s3"
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "export.s3.endpoint") {
		t.Fatalf("s3 backend without endpoint must fail, got %v", err)
	}

	cfg.Export.S3.Endpoint = "minio.local:9000"
	if err := Validate(cfg); err != nil {
		t.Fatalf("s3 backend with endpoint rejected: %v", err)
	}

	cfg.Export.Backend = "ftp"
	if err := Validate(cfg); err == nil {
		t.Fatal("unknown backend must fail")
	}
}

func TestValidate_LogLevel(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Log.Level = "verbose"
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "log.level") {
		t.Fatalf("expected log level error, got %v", err)
	}
}
