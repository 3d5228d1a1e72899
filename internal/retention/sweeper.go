// Package retention runs the periodic cleanup jobs: expiring memories past
// their expires_at and pruning stale export records.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/recallstack/recall/internal/memory"
)

// ExportJanitor is the slice of the storage layer that prunes old export
// records.
type ExportJanitor interface {
	DeleteStaleExports(ctx context.Context, before time.Time) (int64, error)
}

// Config controls the sweeper's schedule and retention windows.
type Config struct {
	// Schedule is a five-field cron expression. Defaults to hourly.
	Schedule string

	// ExportMaxAge is how long export records are kept. Zero disables
	// export pruning.
	ExportMaxAge time.Duration
}

func (c *Config) defaults() {
	if c.Schedule == "" {
		c.Schedule = "0 * * * *"
	}
}

// Sweeper schedules the cleanup jobs. Each run is protected by a TryLock so
// a slow sweep is skipped rather than stacked.
type Sweeper struct {
	config  Config
	store   memory.ExpiryStore
	janitor ExportJanitor
	logger  *slog.Logger

	cron *cron.Cron
	mu   sync.Mutex
}

// New creates a Sweeper. janitor may be nil when export pruning is
// disabled.
func New(config Config, store memory.ExpiryStore, janitor ExportJanitor, logger *slog.Logger) *Sweeper {
	config.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		config:  config,
		store:   store,
		janitor: janitor,
		logger:  logger,
	}
}

// Start begins scheduled sweeping. Returns an error for an invalid
// schedule expression.
func (s *Sweeper) Start() error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	s.cron = cron.New(cron.WithParser(parser))

	if _, err := s.cron.AddFunc(s.config.Schedule, func() {
		if !s.mu.TryLock() {
			s.logger.Warn("retention sweep still running, skipping this tick")
			return
		}
		defer s.mu.Unlock()
		s.Sweep(context.Background())
	}); err != nil {
		return fmt.Errorf("retention: invalid schedule %q: %w", s.config.Schedule, err)
	}

	s.cron.Start()
	s.logger.Info("retention sweeper started", "schedule", s.config.Schedule)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep performs one cleanup pass. Failures are logged, never returned:
// the next tick retries.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	expired, err := s.store.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
	} else if expired > 0 {
		s.logger.Info("expired memories removed", "count", expired)
	}

	if s.janitor == nil || s.config.ExportMaxAge <= 0 {
		return
	}
	pruned, err := s.janitor.DeleteStaleExports(ctx, now.Add(-s.config.ExportMaxAge))
	if err != nil {
		s.logger.Error("export prune failed", "error", err)
	} else if pruned > 0 {
		s.logger.Info("stale exports pruned", "count", pruned)
	}
}
