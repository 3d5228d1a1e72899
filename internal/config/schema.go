// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for recall.
package config

import "time"

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Provider  ProviderConfig  `yaml:"provider"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Billing   BillingConfig   `yaml:"billing"`
	Export    ExportConfig    `yaml:"export"`
	Retention RetentionConfig `yaml:"retention"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	// Bind is the listen address. Defaults to 127.0.0.1:8428.
	Bind string `yaml:"bind"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// BearerToken protects the /v1 API. Empty disables auth (local use).
	BearerToken string `yaml:"bearer_token"`
}

// StorageConfig locates the sqlite database.
type StorageConfig struct {
	// Path is the database file path. Defaults to {data_dir}/recall.db.
	Path string `yaml:"path"`
}

// ProviderConfig names the OpenAI-compatible endpoint used for completion
// and embeddings. An empty ChatModel disables LLM tagging; extraction then
// runs on local fallbacks only. Embeddings are always required.
type ProviderConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	ChatModel  string        `yaml:"chat_model"`
	EmbedModel string        `yaml:"embed_model"`
	EmbedDims  int           `yaml:"embed_dims"`
	Timeout    time.Duration `yaml:"timeout"`
}

// EmbeddingConfig controls the vector cache.
type EmbeddingConfig struct {
	// CacheSize is the maximum number of cached vectors. Defaults to 10000.
	CacheSize int64 `yaml:"cache_size"`
}

// BillingConfig controls the billing gate.
type BillingConfig struct {
	// Mode is "none" (no charging) or "dev" (in-memory ledger).
	// Defaults to "none".
	Mode string `yaml:"mode"`

	// StartingBalance seeds each actor in dev mode. Negative is unlimited.
	StartingBalance int64 `yaml:"starting_balance"`

	// Costs overrides per-operation prices by operation id.
	Costs map[string]int64 `yaml:"costs,omitempty"`
}

// ExportConfig selects the artifact backend.
type ExportConfig struct {
	// Backend is "fs" or "s3". Defaults to "fs".
	Backend string `yaml:"backend"`

	// Container names the bucket/directory artifacts are written to.
	Container string `yaml:"container"`

	// Root is the filesystem root for the fs backend.
	Root string `yaml:"root"`

	S3 S3Config `yaml:"s3"`
}

// S3Config holds the s3 backend connection settings.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// RetentionConfig controls the cleanup sweeper.
type RetentionConfig struct {
	// Schedule is a five-field cron expression. Defaults to hourly.
	Schedule string `yaml:"schedule"`

	// ExportMaxAge is how long export records are kept. Zero disables
	// pruning.
	ExportMaxAge time.Duration `yaml:"export_max_age"`
}

// TracingConfig enables OTLP trace export when Endpoint is set.
type TracingConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// LogConfig controls logging.
type LogConfig struct {
	// Level is debug, info, warn, or error. Defaults to info.
	Level string `yaml:"level"`
}

// Defaults fills unset fields in place.
func (c *Config) Defaults() {
	if c.Server.Bind == "" {
		c.Server.Bind = "127.0.0.1:8428"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "recall.db"
	}
	if c.Embedding.CacheSize == 0 {
		c.Embedding.CacheSize = 10_000
	}
	if c.Billing.Mode == "" {
		c.Billing.Mode = "none"
	}
	if c.Export.Backend == "" {
		c.Export.Backend = "fs"
	}
	if c.Export.Container == "" {
		c.Export.Container = "exports"
	}
	if c.Export.Root == "" {
		c.Export.Root = "exports"
	}
	if c.Retention.Schedule == "" {
		c.Retention.Schedule = "0 * * * *"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
