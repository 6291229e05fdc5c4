// Package observability provides structured logging, Prometheus metrics,
// and health/readiness probes for the taskboard service.
//
// Logging uses log/slog with a JSON handler. Metrics are registered on a
// caller-supplied prometheus.Registry and exposed on the health port
// alongside /healthz and /readyz.
package observability
