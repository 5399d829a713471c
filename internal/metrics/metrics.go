// Package metrics provides Prometheus instrumentation for Quantra.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FallbacksTotal counts calls routed to a rule-based or derived fallback.
	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quantra",
			Name:      "fallbacks_total",
			Help:      "Total fallbacks by capability and reason.",
		},
		[]string{"capability", "reason"},
	)

	// InferenceDuration observes model inference latency.
	InferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quantra",
			Name:      "inference_duration_seconds",
			Help:      "Model inference duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"capability"},
	)

	// DecisionsTotal counts scoring decisions by kind and level.
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quantra",
			Name:      "decisions_total",
			Help:      "Total scoring decisions by kind and level.",
		},
		[]string{"kind", "level"},
	)

	// VerificationsTotal counts KYC verifications by outcome.
	VerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quantra",
			Name:      "verifications_total",
			Help:      "Total KYC verifications by outcome.",
		},
		[]string{"verified"},
	)

	// ModelsLoaded tracks which artifacts were loaded at startup (1 loaded, 0 absent).
	ModelsLoaded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "quantra",
			Name:      "model_loaded",
			Help:      "Whether a model capability was loaded at startup.",
		},
		[]string{"capability"},
	)

	// BreakerState tracks circuit breaker state (0 closed, 1 half-open, 2 open).
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "quantra",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state by name.",
		},
		[]string{"name"},
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quantra",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quantra",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// WorkerMessagesTotal counts bus messages handled by the async worker.
	WorkerMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quantra",
			Name:      "worker_messages_total",
			Help:      "Total bus messages processed by the worker, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		FallbacksTotal,
		InferenceDuration,
		DecisionsTotal,
		VerificationsTotal,
		ModelsLoaded,
		BreakerState,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		WorkerMessagesTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTP records one HTTP request.
func ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, StatusBucket(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// StatusBucket collapses a status code into its class, e.g. 404 -> "4xx".
func StatusBucket(code int) string {
	if code < 100 || code > 599 {
		return strconv.Itoa(code)
	}
	return strconv.Itoa(code/100) + "xx"
}

// Fallback records a call routed away from its primary capability.
func Fallback(capability, reason string) {
	FallbacksTotal.WithLabelValues(capability, reason).Inc()
}

// Decision records a scoring decision.
func Decision(kind, level string) {
	DecisionsTotal.WithLabelValues(kind, level).Inc()
}
