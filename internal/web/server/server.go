package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/bulkdash/internal/audit"
	"github.com/foxzi/bulkdash/internal/backend"
	"github.com/foxzi/bulkdash/internal/config"
	"github.com/foxzi/bulkdash/internal/metrics"
	"github.com/foxzi/bulkdash/internal/web/handlers"
	"github.com/foxzi/bulkdash/internal/web/static"
	"github.com/foxzi/bulkdash/internal/web/views"
)

type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	handlers *handlers.Handlers
	http     *http.Server
}

// New wires the dashboard. auditLog may be nil.
func New(cfg *config.Config, client *backend.Client, auditLog *audit.Log, logger *slog.Logger) (*Server, error) {
	viewEngine, err := views.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize views: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		logger: logger.With("component", "web"),
		handlers: handlers.New(handlers.Deps{
			Config: cfg,
			Client: client,
			Audit:  auditLog,
			Views:  viewEngine,
			Logger: logger,
		}),
	}

	// No WriteTimeout: the campaign stream stays open while the page does
	s.http = &http.Server{
		Addr:        cfg.Server.ListenAddr,
		Handler:     s.setupRoutes(),
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: 60 * time.Second,
	}

	return s, nil
}

// Handler returns the routed dashboard handler
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) setupRoutes() http.Handler {
	h := s.handlers
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(metrics.HTTPMiddleware)

	r.Get("/health", h.Health)
	r.Handle("/static/*", http.StripPrefix("/static/", static.Handler()))

	r.Get("/", h.Home)

	r.Route("/campaigns", func(r chi.Router) {
		r.Get("/", h.CampaignList)
		r.Get("/stream", h.CampaignStream)
		r.Get("/new", h.CampaignNew)
		r.Post("/new", h.CampaignCreate)
	})

	r.Route("/replies", func(r chi.Router) {
		r.Get("/", h.ReplyList)
		r.Get("/export", h.ReplyExport)
	})

	r.Route("/compliance", func(r chi.Router) {
		r.Get("/", h.Compliance)
		r.Post("/send-pending", h.SendPending)
		r.Post("/campaigns/{id}/clean", h.CleanCampaign)
	})

	r.Get("/audit", h.AuditLog)

	r.NotFound(h.NotFound)

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"bytes", ww.BytesWritten(),
			"remote_addr", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	// open event streams end with ctx instead of holding up Shutdown
	s.http.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		s.logger.Info("starting web server", "addr", s.cfg.Server.ListenAddr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.handlers.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown error", "error", err)
		}
		s.handlers.Close()
		return nil
	}
}
