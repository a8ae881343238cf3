package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/foxzi/bulkdash/internal/app"
	"github.com/foxzi/bulkdash/internal/audit"
	"github.com/foxzi/bulkdash/internal/backend"
	"github.com/foxzi/bulkdash/internal/config"
	"github.com/foxzi/bulkdash/internal/logging"
)

// Source tags audit entries written from the command line
const Source = "cli"

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at the configured level instead of warnings only")
}

// cliEnv holds what a command needs to talk to the backend
type cliEnv struct {
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	client    *backend.Client
	audit     *audit.Log
}

// openEnv loads configuration and builds the backend client. With
// withAudit the audit log is opened too; when it is locked by a running
// dashboard the command goes on without recording.
func openEnv(withAudit bool) (*cliEnv, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Logging
	if !verbose && logCfg.File == "" {
		logCfg.Level = "warn"
	}
	logger, logCloser, err := logging.NewTo(logCfg, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	e := &cliEnv{
		cfg:       cfg,
		logger:    logger,
		logCloser: logCloser,
		client:    app.NewBackendClient(cfg, logger),
	}

	if withAudit {
		l, err := audit.Open(cfg.Storage.AuditPath)
		if err != nil {
			logger.Warn("audit log unavailable, action will not be recorded", "path", cfg.Storage.AuditPath, "error", err)
		} else {
			e.audit = l
		}
	}

	return e, nil
}

// recorder returns the audit log, or a discarding recorder
func (e *cliEnv) recorder() audit.Recorder {
	if e.audit == nil {
		return audit.Discard
	}
	return e.audit
}

func (e *cliEnv) Close() {
	if e.audit != nil {
		e.audit.Close()
	}
	e.logCloser.Close()
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
