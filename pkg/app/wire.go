// Package app assembles the recall service from configuration and runs it
// until shutdown. Construction is explicit: every collaborator is built and
// handed to its consumer here, with no registry or container in between.
package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/recallstack/recall/internal/billing"
	"github.com/recallstack/recall/internal/blob"
	"github.com/recallstack/recall/internal/config"
	"github.com/recallstack/recall/internal/embed"
	"github.com/recallstack/recall/internal/export"
	"github.com/recallstack/recall/internal/gateway"
	"github.com/recallstack/recall/internal/memory"
	"github.com/recallstack/recall/internal/provider"
	"github.com/recallstack/recall/internal/retention"
	"github.com/recallstack/recall/internal/search"
	"github.com/recallstack/recall/internal/storage/sqlite"
	"github.com/recallstack/recall/internal/tagging"
)

// App holds the assembled components that need lifecycle management.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *sqlite.Store
	exporter *export.Exporter
	sweeper  *retention.Sweeper
	gateway  *gateway.Gateway

	shutdownTracing func() error
}

// newLogger builds the process logger from the configured level.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// wire builds the full component graph from configuration.
func wire(cfg *config.Config) (*App, error) {
	logger := newLogger(cfg.Log)

	shutdownTracing, err := setupTracing(cfg.Tracing)
	if err != nil {
		return nil, err
	}

	store, err := sqlite.Open(cfg.Storage.Path, logger)
	if err != nil {
		return nil, err
	}

	client := provider.NewClient(provider.Config{
		BaseURL:    cfg.Provider.BaseURL,
		APIKey:     cfg.Provider.APIKey,
		ChatModel:  cfg.Provider.ChatModel,
		EmbedModel: cfg.Provider.EmbedModel,
		EmbedDims:  cfg.Provider.EmbedDims,
		Timeout:    cfg.Provider.Timeout,
	})

	embedder, err := embed.NewCached(client, cfg.Embedding.CacheSize)
	if err != nil {
		store.Close()
		return nil, err
	}

	var llm tagging.LLM
	if cfg.Provider.ChatModel != "" {
		llm = client
	}
	tagger := tagging.NewAdapter(llm, logger)

	biller := newBiller(cfg.Billing, logger)
	engine := search.NewEngine(store, embedder, logger)

	service := memory.NewService(memory.ServiceConfig{
		Store:          store,
		Ranker:         engine,
		Embedder:       embedder,
		Tagger:         tagger,
		Biller:         biller,
		Logger:         logger,
		EvictEmbedding: embedder.Evict,
	})

	blobs, err := newBlobStore(cfg.Export)
	if err != nil {
		store.Close()
		return nil, err
	}
	exporter := export.New(store, store, blobs, cfg.Export.Container, logger)

	sweeper := retention.New(retention.Config{
		Schedule:     cfg.Retention.Schedule,
		ExportMaxAge: cfg.Retention.ExportMaxAge,
	}, store, store, logger)

	gw := gateway.New(gateway.Config{
		Bind:         cfg.Server.Bind,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BearerToken:  cfg.Server.BearerToken,
	}, service, exporter, logger)

	return &App{
		cfg:             cfg,
		logger:          logger,
		store:           store,
		exporter:        exporter,
		sweeper:         sweeper,
		gateway:         gw,
		shutdownTracing: shutdownTracing,
	}, nil
}

// newBiller builds the billing gate. In "none" mode the cost table is empty
// so every operation skips the ledger.
func newBiller(cfg config.BillingConfig, logger *slog.Logger) *billing.Gate {
	if cfg.Mode == "none" {
		return billing.NewGate(billing.NewInMemoryLedger(-1), map[string]billing.Cost{}, logger)
	}

	costs := billing.DefaultCosts
	if len(cfg.Costs) > 0 {
		costs = make(map[string]billing.Cost, len(billing.DefaultCosts))
		for op, cost := range billing.DefaultCosts {
			costs[op] = cost
		}
		for op, amount := range cfg.Costs {
			cost, ok := costs[op]
			if !ok {
				cost = billing.Cost{Key: op}
			}
			cost.Amount = amount
			costs[op] = cost
		}
	}
	return billing.NewGate(billing.NewInMemoryLedger(cfg.StartingBalance), costs, logger)
}

// newBlobStore builds the export artifact backend.
func newBlobStore(cfg config.ExportConfig) (blob.Store, error) {
	switch cfg.Backend {
	case "s3":
		return blob.NewS3(blob.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
		})
	case "fs":
		return blob.NewFS(cfg.Root)
	default:
		return nil, fmt.Errorf("app: unknown export backend %q", cfg.Backend)
	}
}
