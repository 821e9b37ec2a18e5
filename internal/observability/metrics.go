package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics mirrors the in-memory SampleStore (§4.J) as Prometheus
// counters/gauges/histograms, registered on the default registry and
// exposed on GET /metrics alongside the spec-mandated JSON
// GET /api/metrics. Values recorded here are the gateway's own view of a
// turn (LLM calls, guard blocks, sessions, HTTP requests); the tool
// router keeps its own bookkeeping in the SampleStore.
type Metrics struct {
	LLMRequestCounter  *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec

	GuardBlocked *prometheus.CounterVec

	ActiveSessions *prometheus.GaugeVec

	HTTPRequestCounter  *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates and registers every metric on Prometheus's default
// registry. Call once at process startup.
func NewMetrics() *Metrics {
	return &Metrics{
		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lunar_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lunar_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		GuardBlocked: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lunar_guard_blocked_total",
				Help: "Total number of turns blocked by a safety guard, by pipeline side and reason",
			},
			[]string{"side", "reason"},
		),
		ActiveSessions: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lunar_active_sessions",
				Help: "Current number of in-flight turns by channel",
			},
			[]string{"channel"},
		),
		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lunar_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lunar_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),
		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lunar_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),
	}
}

// RecordLLMRequest records one LLM call's outcome and latency.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
}

// RecordGuardBlocked records a safety pipeline block on the given side
// ("input" or "output") with the guard's reason.
func (m *Metrics) RecordGuardBlocked(side, reason string) {
	m.GuardBlocked.WithLabelValues(side, reason).Inc()
}

// SessionStarted increments the active-turn gauge for a channel.
func (m *Metrics) SessionStarted(channel string) {
	m.ActiveSessions.WithLabelValues(channel).Inc()
}

// SessionEnded decrements the active-turn gauge for a channel.
func (m *Metrics) SessionEnded(channel string) {
	m.ActiveSessions.WithLabelValues(channel).Dec()
}

// RecordHTTPRequest records one HTTP request's outcome and latency.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// RecordError increments the error counter for a component and error type.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}
