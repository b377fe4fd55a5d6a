// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the vizlaunch gateway.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ExecutionBuckets defines histogram buckets suited for container
// executions, from 100ms (warm image, trivial plot) to 5 minutes.
var ExecutionBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300}

// Execution outcomes used as the "outcome" label.
const (
	OutcomeSuccess     = "success"
	OutcomeScriptError = "script_error"
	OutcomeNoOutput    = "no_output"
	OutcomeTruncated   = "truncated"
	OutcomeTimeout     = "timeout"
	OutcomeCancelled   = "cancelled"
	OutcomeRejected    = "rejected"
	OutcomeError       = "error"
)

var (
	// RequestsTotal counts HTTP requests by method and status code.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vizlaunch_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "code"},
	)

	// RequestsInFlight tracks HTTP requests being served.
	RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vizlaunch_requests_in_flight",
			Help: "Requests currently served",
		},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vizlaunch_request_duration_seconds",
			Help:    "Request duration",
			Buckets: ExecutionBuckets,
		},
		[]string{"method"},
	)

	// ExecutionsTotal counts executions by language, runtime and outcome.
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vizlaunch_executions_total",
			Help: "Container executions",
		},
		[]string{"language", "runtime", "outcome"},
	)

	// ExecutionDuration records how long the container ran.
	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vizlaunch_execution_duration_seconds",
			Help:    "Container execution duration",
			Buckets: ExecutionBuckets,
		},
		[]string{"language", "runtime"},
	)

	// ExecutionsInFlight tracks running containers.
	ExecutionsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vizlaunch_executions_in_flight",
			Help: "Executions currently running",
		},
	)

	// CapacityRejectedTotal counts launches rejected by the concurrency limiter.
	CapacityRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vizlaunch_capacity_rejected_total",
			Help: "Launches rejected at capacity",
		},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vizlaunch_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestsInFlight,
		RequestDuration,
		ExecutionsTotal,
		ExecutionDuration,
		ExecutionsInFlight,
		CapacityRejectedTotal,
		RateLimitRejectedTotal,
	)
}

// RecordExecution records one finished execution.
func RecordExecution(language, runtime, outcome string, d time.Duration) {
	ExecutionsTotal.WithLabelValues(language, runtime, outcome).Inc()
	if d > 0 {
		ExecutionDuration.WithLabelValues(language, runtime).Observe(d.Seconds())
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
