package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxzi/bulkdash/internal/audit"
	"github.com/foxzi/bulkdash/internal/backend"
	"github.com/foxzi/bulkdash/internal/config"
	"github.com/foxzi/bulkdash/internal/logging"
	"github.com/foxzi/bulkdash/internal/metrics"
	"github.com/foxzi/bulkdash/internal/web/server"
)

// App is the dashboard process
type App struct {
	config        *config.Config
	logger        *slog.Logger
	logCloser     io.Closer
	audit         *audit.Log
	pruner        *audit.Pruner
	metricsServer *metrics.Server
	collector     *metrics.Collector
	web           *server.Server
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	slog.SetDefault(logger)

	a := &App{
		config:    cfg,
		logger:    logger,
		logCloser: logCloser,
	}

	// Metrics first so every component below reports into the registry
	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)
		a.metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, cfg.Metrics.AllowedIPs, logger)
		a.collector = metrics.NewCollector(m, cfg.Storage.AuditPath, cfg.Metrics.CollectInterval)
	}

	auditLog, err := audit.Open(cfg.Storage.AuditPath)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	a.audit = auditLog
	a.pruner = audit.NewPruner(auditLog, cfg.Storage.AuditRetention, audit.DefaultPruneInterval, logger)

	client := NewBackendClient(cfg, logger)

	a.web, err = server.New(cfg, client, auditLog, logger)
	if err != nil {
		auditLog.Close()
		logCloser.Close()
		return nil, fmt.Errorf("failed to create web server: %w", err)
	}

	return a, nil
}

// NewBackendClient creates the backend client described by cfg
func NewBackendClient(cfg *config.Config, logger *slog.Logger) *backend.Client {
	return backend.NewClient(cfg.Backend.URL, backend.Options{
		Timeout:           cfg.Backend.Timeout,
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		Burst:             cfg.Backend.Burst,
	}, logger)
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting bulkdash",
		"listen_addr", a.config.Server.ListenAddr,
		"backend", a.config.Backend.URL,
		"metrics", a.config.Metrics.Enabled,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.pruner.Start(ctx)
	if a.collector != nil {
		a.collector.Start(ctx)
	}

	errCh := make(chan error, 2)

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	webDone := make(chan error, 1)
	go func() {
		webDone <- a.web.Run(ctx)
	}()

	// Wait for shutdown signal or error
	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
		runErr = <-webDone
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
		<-webDone
		runErr = err
	case err := <-webDone:
		if err != nil {
			a.logger.Error("web server error", "error", err)
			runErr = fmt.Errorf("web server: %w", err)
		}
	}

	a.shutdown()
	return runErr
}

// shutdown stops the background components once the web server is down
func (a *App) shutdown() {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}
	if a.collector != nil {
		a.collector.Stop()
	}
	a.pruner.Stop()

	if err := a.audit.Close(); err != nil {
		a.logger.Error("audit log close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	a.logCloser.Close()
}

// startupTimeout bounds the backend check run before serving
const startupTimeout = 5 * time.Second

// CheckBackend checks that the backend answers. A failure is only logged.
func (a *App) CheckBackend(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	client := NewBackendClient(a.config, a.logger)
	if _, err := client.ListCampaigns(ctx); err != nil {
		a.logger.Warn("campaign backend not reachable", "backend", a.config.Backend.URL, "error", err)
		return
	}
	a.logger.Info("campaign backend reachable", "backend", a.config.Backend.URL)
}
