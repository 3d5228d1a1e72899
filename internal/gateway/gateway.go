// Package gateway exposes the memory service over HTTP: health and metrics
// on the public surface, the /v1 API behind bearer auth. Handlers translate
// the domain error taxonomy to status codes and never leak internals.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/recallstack/recall/internal/export"
	"github.com/recallstack/recall/internal/memory"
)

// MemoryService is the slice of the memory service the gateway calls.
// *memory.Service satisfies it; tests substitute a stub.
type MemoryService interface {
	Create(ctx context.Context, scope memory.Scope, req memory.CreateRequest) ([]memory.CreateResult, error)
	Get(ctx context.Context, scope memory.Scope, id string) (memory.Memory, error)
	List(ctx context.Context, scope memory.Scope, rawFilter any, limit int) ([]memory.Memory, error)
	Update(ctx context.Context, scope memory.Scope, id, text string, metadata json.RawMessage, actorID string) (memory.Memory, error)
	Delete(ctx context.Context, scope memory.Scope, id, actorID string) error
	BatchUpdate(ctx context.Context, scope memory.Scope, items []memory.BatchUpdateItem, actorID string) ([]memory.Memory, error)
	BatchDelete(ctx context.Context, scope memory.Scope, ids []string, actorID string) error
	Search(ctx context.Context, scope memory.Scope, req memory.SearchRequest) ([]memory.RankedMemory, error)
	History(ctx context.Context, scope memory.Scope, id string) ([]memory.HistoryEntry, error)
	AddFeedback(ctx context.Context, scope memory.Scope, id, sentiment, reason string) error
}

// ExportService is the slice of the exporter the gateway calls.
type ExportService interface {
	Create(ctx context.Context, tenantID string, rawFilter any, schema []string) (string, error)
	Get(ctx context.Context, tenantID, id string) (export.Record, []byte, error)
	Import(ctx context.Context, tenantID, id string) (int, error)
}

// Config controls the HTTP server.
type Config struct {
	Bind         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// BearerToken protects /v1. Empty disables auth.
	BearerToken string
}

func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8428"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60 * time.Second
	}
}

// Gateway is the HTTP server for the memory API.
type Gateway struct {
	config   Config
	memories MemoryService
	exports  ExportService
	metrics  *Metrics
	logger   *slog.Logger

	server    *http.Server
	startedAt time.Time
}

// New creates a Gateway. exports may be nil when exporting is disabled.
func New(config Config, memories MemoryService, exports ExportService, logger *slog.Logger) *Gateway {
	config.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		config:   config,
		memories: memories,
		exports:  exports,
		metrics:  NewMetrics(),
		logger:   logger,
	}
}

// Start begins serving. The listener is opened synchronously so a bind
// failure is reported to the caller; serving continues in the background.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen %s: %w", g.config.Bind, err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop shuts the server down gracefully.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(ctx)
}
