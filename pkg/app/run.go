package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/recallstack/recall/internal/config"
)

// shutdownTimeout bounds graceful gateway shutdown.
const shutdownTimeout = 10 * time.Second

// Run loads configuration, assembles the service, and blocks until a
// shutdown signal is received.
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	app, err := wire(cfg)
	if err != nil {
		return err
	}
	return app.run()
}

func (a *App) run() error {
	defer a.close()

	if err := a.sweeper.Start(); err != nil {
		return err
	}
	if err := a.gateway.Start(); err != nil {
		a.sweeper.Stop()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	a.logger.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.gateway.Stop(ctx); err != nil {
		a.logger.Error("gateway shutdown error", "error", err)
	}
	a.sweeper.Stop()
	a.exporter.Close()

	a.logger.Info("shutdown complete")
	return nil
}

// close releases resources after run finishes.
func (a *App) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("closing store", "error", err)
	}
	if err := a.shutdownTracing(); err != nil {
		a.logger.Error("shutting down tracing", "error", err)
	}
}
