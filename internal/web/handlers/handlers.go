package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/foxzi/bulkdash/internal/audit"
	"github.com/foxzi/bulkdash/internal/backend"
	"github.com/foxzi/bulkdash/internal/compliance"
	"github.com/foxzi/bulkdash/internal/config"
	"github.com/foxzi/bulkdash/internal/export"
	"github.com/foxzi/bulkdash/internal/launcher"
	"github.com/foxzi/bulkdash/internal/optout"
	"github.com/foxzi/bulkdash/internal/web/views"
)

// Source tags audit entries written from the dashboard
const Source = "web"

// Deps are the collaborators of the dashboard handlers. Audit may be nil.
type Deps struct {
	Config *config.Config
	Client *backend.Client
	Audit  *audit.Log
	Views  *views.Engine
	Logger *slog.Logger
}

type Handlers struct {
	cfg      *config.Config
	client   *backend.Client
	policy   *compliance.Policy
	launcher *launcher.Launcher
	optout   *optout.Queue
	exports  *export.Downloader
	audit    *audit.Log
	views    *views.Engine
	logger   *slog.Logger
}

func New(d Deps) *Handlers {
	var rec audit.Recorder = audit.Discard
	if d.Audit != nil {
		rec = d.Audit
	}
	logger := d.Logger.With("component", "web")
	policy := compliance.NewPolicy(d.Config.Compliance.Brand)

	return &Handlers{
		cfg:      d.Config,
		client:   d.Client,
		policy:   policy,
		launcher: launcher.New(d.Client, policy, rec, d.Logger),
		optout:   optout.New(d.Client, rec, d.Logger),
		exports:  export.NewDownloader(d.Client, rec, d.Logger),
		audit:    d.Audit,
		views:    d.Views,
		logger:   logger,
	}
}

// Close discards compliance responses still in flight
func (h *Handlers) Close() {
	h.optout.Close()
}

// page is the data every template receives
type page struct {
	Title        string
	Nav          string
	Flash        string
	Error        string
	Errors       []string
	AuditEnabled bool
	Data         any
}

// Health check
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Home redirects to the campaign list
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/campaigns", http.StatusFound)
}

// NotFound renders the error page for unknown routes
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.error(w, r, http.StatusNotFound, "Page not found")
}

// render executes a page into a buffer first so a template failure never
// leaves a half-written response
func (h *Handlers) render(w http.ResponseWriter, r *http.Request, status int, name string, p page) {
	p.AuditEnabled = h.audit != nil

	var buf bytes.Buffer
	if err := h.views.Render(&buf, name, p); err != nil {
		h.logger.Error("template render failed", "template", name, "path", r.URL.Path, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// Helper for JSON responses
func (h *Handlers) json(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

type errorData struct {
	Status  int
	Message string
}

// Helper for errors
func (h *Handlers) error(w http.ResponseWriter, r *http.Request, status int, message string) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("request error", "status", status, "path", r.URL.Path, "message", message)
	}
	h.render(w, r, status, "error", page{
		Title: http.StatusText(status),
		Data:  errorData{Status: status, Message: message},
	})
}

// errorMessage returns the text shown to the operator. Backend messages
// are passed through verbatim.
func errorMessage(err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	var dlErr *backend.DownloadError
	if errors.As(err, &dlErr) && dlErr.Message != "" {
		return dlErr.Message
	}
	return err.Error()
}

// backendStatus maps a failed backend call to the response status
func backendStatus(err error) int {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}

func atoi(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// pageURL links to another page of a list, keeping the other parameters
func pageURL(path string, params url.Values, n int) string {
	q := url.Values{}
	for k, v := range params {
		if k != "page" && len(v) > 0 && v[0] != "" {
			q.Set(k, v[0])
		}
	}
	if n > 1 {
		q.Set("page", strconv.Itoa(n))
	}
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
