package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for the dashboard
type Metrics struct {
	// Backend client
	BackendRequestsTotal          *prometheus.CounterVec
	BackendRequestDurationSeconds *prometheus.HistogramVec
	BackendErrorsTotal            *prometheus.CounterVec
	BackendThrottledTotal         prometheus.Counter

	// Views
	PollTicksTotal      *prometheus.CounterVec
	StaleResponsesTotal *prometheus.CounterVec
	ActiveViews         *prometheus.GaugeVec

	// Operator actions
	CampaignSubmissionsTotal *prometheus.CounterVec
	ConfirmationsSentTotal   prometheus.Counter
	ConfirmationErrorsTotal  prometheus.Counter
	ExportsTotal             *prometheus.CounterVec

	// Dashboard HTTP
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec
	HTTPErrorsTotal            *prometheus.CounterVec

	// System
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		BackendRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulkdash_backend_requests_total",
				Help: "Total number of requests sent to the campaign backend",
			},
			[]string{"endpoint", "status"},
		),
		BackendRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bulkdash_backend_request_duration_seconds",
				Help:    "Campaign backend request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"endpoint"},
		),
		BackendErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulkdash_backend_errors_total",
				Help: "Total number of failed campaign backend requests",
			},
			[]string{"endpoint", "error_type"},
		),
		BackendThrottledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bulkdash_backend_throttled_total",
				Help: "Total number of backend requests that waited on the client rate limiter",
			},
		),

		PollTicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulkdash_poll_ticks_total",
				Help: "Total number of polling refreshes by outcome",
			},
			[]string{"view", "result"},
		),
		StaleResponsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulkdash_stale_responses_total",
				Help: "Total number of responses discarded because a newer request superseded them",
			},
			[]string{"view"},
		),
		ActiveViews: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bulkdash_active_views",
				Help: "Number of mounted views",
			},
			[]string{"view"},
		),

		CampaignSubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulkdash_campaign_submissions_total",
				Help: "Total number of campaign start requests by outcome",
			},
			[]string{"result"},
		),
		ConfirmationsSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bulkdash_optout_confirmations_sent_total",
				Help: "Total number of opt-out confirmations reported as sent",
			},
		),
		ConfirmationErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bulkdash_optout_confirmation_errors_total",
				Help: "Total number of per-item errors reported by send-pending runs",
			},
		),
		ExportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulkdash_exports_total",
				Help: "Total number of reply export downloads by outcome",
			},
			[]string{"result"},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulkdash_http_requests_total",
				Help: "Total number of dashboard HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bulkdash_http_request_duration_seconds",
				Help:    "Dashboard HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulkdash_http_errors_total",
				Help: "Total number of dashboard HTTP errors",
			},
			[]string{"error_type"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bulkdash_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bulkdash_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bulkdash_storage_used_bytes",
				Help: "Audit log BoltDB file size in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.BackendRequestsTotal,
		m.BackendRequestDurationSeconds,
		m.BackendErrorsTotal,
		m.BackendThrottledTotal,
		m.PollTicksTotal,
		m.StaleResponsesTotal,
		m.ActiveViews,
		m.CampaignSubmissionsTotal,
		m.ConfirmationsSentTotal,
		m.ConfirmationErrorsTotal,
		m.ExportsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
		m.HTTPErrorsTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// ObserveBackendRequest records one backend round trip. status is the HTTP
// status code, or "error" when no response arrived.
func ObserveBackendRequest(endpoint, status string, seconds float64) {
	m := Global()
	if m != nil {
		m.BackendRequestsTotal.WithLabelValues(endpoint, status).Inc()
		m.BackendRequestDurationSeconds.WithLabelValues(endpoint).Observe(seconds)
	}
}

// IncBackendErrors increments the backend error counter
func IncBackendErrors(endpoint, errorType string) {
	m := Global()
	if m != nil {
		m.BackendErrorsTotal.WithLabelValues(endpoint, errorType).Inc()
	}
}

// IncBackendThrottled increments the throttled request counter
func IncBackendThrottled() {
	m := Global()
	if m != nil {
		m.BackendThrottledTotal.Inc()
	}
}

// IncPollTicks counts one refresh of a polled view
func IncPollTicks(view, result string) {
	m := Global()
	if m != nil {
		m.PollTicksTotal.WithLabelValues(view, result).Inc()
	}
}

// IncStaleResponses counts a response dropped by a view store
func IncStaleResponses(view string) {
	m := Global()
	if m != nil {
		m.StaleResponsesTotal.WithLabelValues(view).Inc()
	}
}

// ViewMounted increments the active view gauge
func ViewMounted(view string) {
	m := Global()
	if m != nil {
		m.ActiveViews.WithLabelValues(view).Inc()
	}
}

// ViewUnmounted decrements the active view gauge
func ViewUnmounted(view string) {
	m := Global()
	if m != nil {
		m.ActiveViews.WithLabelValues(view).Dec()
	}
}

// IncCampaignSubmissions counts a campaign start request
func IncCampaignSubmissions(result string) {
	m := Global()
	if m != nil {
		m.CampaignSubmissionsTotal.WithLabelValues(result).Inc()
	}
}

// AddConfirmations records the outcome of one send-pending run
func AddConfirmations(sent, errors int) {
	m := Global()
	if m == nil {
		return
	}
	if sent > 0 {
		m.ConfirmationsSentTotal.Add(float64(sent))
	}
	if errors > 0 {
		m.ConfirmationErrorsTotal.Add(float64(errors))
	}
}

// IncExports counts a reply export attempt
func IncExports(result string) {
	m := Global()
	if m != nil {
		m.ExportsTotal.WithLabelValues(result).Inc()
	}
}
