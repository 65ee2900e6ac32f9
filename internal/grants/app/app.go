package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/grantsweep/internal/grants/http"
	"github.com/aussiebroadwan/grantsweep/internal/grants/service"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
	"github.com/aussiebroadwan/grantsweep/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

// Application wires the store, the cleanup worker and the ops HTTP server.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db store.Store

	cleanupService *service.CleanupService
	scheduler      *service.Scheduler // nil when cleanup is disabled

	server *http.Server
	router *httpapi.Router

	// cancels the scheduler's parent context on shutdown
	cancel context.CancelFunc
}

// New validates cfg and initialises every dependency. Nothing runs until Run.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "grantsweep",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	if err := app.initHTTP(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	return app, nil
}

// Handler exposes the ops router, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }

// Scheduler returns the cleanup scheduler, or nil when cleanup is disabled.
func (app *Application) Scheduler() *service.Scheduler { return app.scheduler }

// Start launches the cleanup scheduler. Run calls it; tests may call it
// directly to avoid binding a port.
func (app *Application) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	if app.scheduler != nil {
		app.scheduler.Start(ctx)
	} else {
		app.logger.Warn("expired grant cleanup is disabled")
	}
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.Start()

	app.logger.Info("grantsweep starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"store", app.cfg.StoreDriver,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown stops accepting requests, stops the scheduler (aborting any
// in-flight pass between store calls) and closes the store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down grantsweep...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.scheduler != nil {
		app.scheduler.Stop()
	}
	if app.cancel != nil {
		app.cancel()
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
		return err
	}

	app.logger.Info("grantsweep stopped")
	return nil
}

func (app *Application) initStore() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := OpenStore(ctx, app.cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	app.db = db

	app.logger.Info("store ready", "driver", app.cfg.StoreDriver)
	return nil
}

func (app *Application) initServices() error {
	cleanup, err := service.NewCleanupService(
		app.db.Grants(),
		app.db.DeviceCodes(),
		app.logger,
		app.cfg.cleanupConfig(),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize cleanup service: %w", err)
	}
	app.cleanupService = cleanup

	if !app.cfg.CleanupEnabled {
		return nil
	}

	scheduler, err := service.NewScheduler(cleanup, app.logger, app.cfg.schedulerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize cleanup scheduler: %w", err)
	}
	app.scheduler = scheduler
	return nil
}

func (app *Application) initHTTP() error {
	trusted, err := app.cfg.trustedProxies()
	if err != nil {
		return fmt.Errorf("failed to parse trusted proxies: %w", err)
	}

	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)
	router.TrustedProxies = trusted
	if app.scheduler != nil {
		router.Scheduler = app.scheduler
	}
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return nil
}
