// Package internal contains core application functionality
package internal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge"

	"docpulse/internal/analytics"
	"docpulse/internal/config"
	"docpulse/internal/dashboard"
	"docpulse/internal/jobs"
	"docpulse/internal/metrics"
	"docpulse/internal/notify"
)

// Application wraps cartridge.Application with the dashboard registry and
// the change bus it owns.
type Application struct {
	*cartridge.Application
	Gateway   *analytics.SQLGateway
	Registry  *dashboard.Registry
	Scheduler *jobs.Scheduler

	closeNotifier func() error
}

// NewApplication creates a new application instance with all routes mounted
// and the scheduler registered as a background worker.
func NewApplication(cfg *config.Config, logger *slog.Logger, dbManager cartridge.DBManager) (*Application, error) {
	metrics.Init()

	notifier, publisher, closeNotifier, err := newNotifier(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize notifier: %w", err)
	}

	db := dbManager.GetConnection()
	gateway := analytics.NewSQLGateway(db, notifier)

	registry := dashboard.NewRegistry(func() *dashboard.Coordinator {
		return dashboard.NewCoordinator(gateway, logger,
			dashboard.WithWorkers(cfg.FetchWorkers),
			dashboard.WithFetchTimeout(cfg.GetFetchTimeout()),
		)
	})

	watcher := notify.NewChangeWatcher(db, publisher, logger)
	scheduler := jobs.NewScheduler(dbManager, watcher, cfg, logger)

	// JSON API only; cross-origin callers are handled per route with CORS
	serverCfg := cartridge.DefaultServerConfig()
	serverCfg.EnableStaticAssets = false
	serverCfg.EnableTemplates = false
	serverCfg.EnableSecFetchSite = false

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:       cfg,
		Logger:       logger,
		DBManager:    dbManager,
		ServerConfig: serverCfg,
		RouteMountFunc: func(srv *cartridge.Server) {
			MountAppRoutes(srv, registry, cfg)
		},
		BackgroundWorkers: []cartridge.BackgroundWorker{scheduler},
	})
	if err != nil {
		_ = closeNotifier()
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application:   app,
		Gateway:       gateway,
		Registry:      registry,
		Scheduler:     scheduler,
		closeNotifier: closeNotifier,
	}, nil
}

// newNotifier returns the change bus selected by configuration.
func newNotifier(cfg *config.Config, logger *slog.Logger) (analytics.Notifier, analytics.Publisher, func() error, error) {
	switch cfg.NotifierBackend {
	case config.RedisNotifier:
		bus, err := notify.NewRedisBus(notify.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisChannelPrefix,
		}, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return bus, bus, bus.Close, nil
	default:
		broker := notify.NewBroker(logger)
		return broker, broker, func() error { return nil }, nil
	}
}

// Shutdown closes every dashboard, which ends open live streams, then stops
// the scheduler and the HTTP server and releases the change bus.
func (a *Application) Shutdown(ctx context.Context) error {
	a.Registry.CloseAll()

	if err := a.Application.Shutdown(ctx); err != nil {
		a.Logger.Error("Error shutting down application", slog.Any("error", err))
	}

	if err := a.closeNotifier(); err != nil {
		return fmt.Errorf("failed to close notifier: %w", err)
	}
	return nil
}
