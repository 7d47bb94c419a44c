// Package app provides the top-level application lifecycle management for the
// arbitrage engine. It wires together all dependencies (stores, caches, blob
// storage, the session pool, feeds, and notifications) and starts the
// appropriate goroutines based on the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aryasaputra/surebot/internal/config"
	"github.com/aryasaputra/surebot/internal/domain"
)

// App is the root application object. It owns the configuration, logger, the
// registered site drivers, and a list of cleanup functions that are called in
// reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	drivers map[string]domain.SiteDriver
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "app")),
		drivers: make(map[string]domain.SiteDriver),
	}
}

// RegisterDriver installs the SiteDriver for one bookmaker provider. Call
// before Run. Execution against a provider with no registered driver fails
// that leg; paper mode needs no drivers at all.
func (a *App) RegisterDriver(provider string, driver domain.SiteDriver) {
	a.drivers[provider] = driver
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until the
// context is cancelled. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.Bool("paper", a.cfg.Paper),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	mode := strings.ToLower(a.cfg.Mode)
	switch mode {
	case "execute":
		return a.ExecuteMode(ctx, deps)
	case "monitor":
		return a.MonitorMode(ctx, deps)
	case "full":
		return a.FullMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
