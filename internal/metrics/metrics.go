// Package metrics holds the prometheus collectors shared by the fabric.
// Counters and histograms are process-local; restarts reset them, which
// is acceptable for the fabric's operational metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequests counts completed requests by method, path, status and
	// service.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Completed HTTP requests.",
	}, []string{"method", "path", "status", "service"})

	// HTTPDuration records request latency.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "service"})

	// HTTPInFlight gauges requests currently being served.
	HTTPInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_requests_in_flight",
		Help: "Requests currently being served.",
	}, []string{"service"})

	// BreakerState gauges the current breaker state per downstream
	// (0 closed, 1 half-open, 2 open).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open).",
	}, []string{"dependency"})

	// BreakerCalls counts breaker-wrapped calls by state and result.
	BreakerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_calls_total",
		Help: "Breaker-wrapped calls by state and result.",
	}, []string{"dependency", "state", "result"})

	// EventsPublished counts broker publishes by routing key and result.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Events published to the broker.",
	}, []string{"routing_key", "result"})

	// EventsConsumed counts handled deliveries by routing key and result.
	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_consumed_total",
		Help: "Events consumed from the broker.",
	}, []string{"routing_key", "result"})

	// RateLimitRejections counts 429s by scope.
	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Requests rejected by the rate limiter.",
	}, []string{"scope", "service"})
)

// Handler serves the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
