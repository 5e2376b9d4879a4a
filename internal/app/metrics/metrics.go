// Package metrics exposes the application's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "runlet",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runlet",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "runlet",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method"},
	)

	executions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runlet",
			Subsystem: "engine",
			Name:      "executions_total",
			Help:      "Total number of route executions.",
		},
		[]string{"language", "outcome"},
	)

	executionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "runlet",
			Subsystem: "engine",
			Name:      "execution_duration_seconds",
			Help:      "Duration of route executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"language"},
	)

	admissionRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runlet",
			Subsystem: "admission",
			Name:      "rejections_total",
			Help:      "Requests rejected before execution.",
		},
		[]string{"reason"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		executions,
		executionDuration,
		admissionRejections,
	)
}

// Handler serves the registry in Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// IncInFlight marks a request in flight. The returned function releases it.
func IncInFlight() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}

// ObserveRequest records one handled HTTP request.
func ObserveRequest(method string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveExecution records one route execution.
func ObserveExecution(language, outcome string, duration time.Duration) {
	executions.WithLabelValues(language, outcome).Inc()
	executionDuration.WithLabelValues(language).Observe(duration.Seconds())
}

// RecordRejection counts an admission-control rejection.
func RecordRejection(reason string) {
	admissionRejections.WithLabelValues(reason).Inc()
}
