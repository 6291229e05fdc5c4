package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Workflow metrics
	TaskResponsesTotal     *prometheus.CounterVec
	RemindersProcessed     *prometheus.CounterVec
	NotificationsSentTotal *prometheus.CounterVec

	// Storage metrics
	DocumentUploadsTotal *prometheus.CounterVec
	DocumentUploadBytes  prometheus.Histogram

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskboard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskboard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		TaskResponsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskboard_task_responses_total",
				Help: "Total number of task assignment responses",
			},
			[]string{"response"},
		),
		RemindersProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskboard_reminders_processed_total",
				Help: "Total number of due-date reminders processed",
			},
			[]string{"type", "status"},
		),
		NotificationsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskboard_notifications_sent_total",
				Help: "Total number of notifications dispatched",
			},
			[]string{"channel", "status"},
		),
		DocumentUploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskboard_document_uploads_total",
				Help: "Total number of document uploads",
			},
			[]string{"status"},
		),
		DocumentUploadBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "taskboard_document_upload_bytes",
				Help:    "Uploaded document size in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "taskboard_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "taskboard_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TaskResponsesTotal,
		m.RemindersProcessed,
		m.NotificationsSentTotal,
		m.DocumentUploadsTotal,
		m.DocumentUploadBytes,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns the /metrics HTTP handler for the given registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// HTTPMiddleware records request counts and latencies per route
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
