package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sparkmatch/sparkmatch/internal/metrics"
)

// Metrics records the HTTP counter, duration histogram and in-flight
// gauge for every request. The path label uses the chi route pattern when
// available so parameterized paths don't explode cardinality.
func Metrics(service string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			metrics.HTTPInFlight.WithLabelValues(service).Inc()
			defer metrics.HTTPInFlight.WithLabelValues(service).Dec()

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					path = pattern
				}
			}

			metrics.HTTPRequests.WithLabelValues(
				r.Method, path, strconv.Itoa(rw.statusCode), service).Inc()
			metrics.HTTPDuration.WithLabelValues(
				r.Method, path, service).Observe(time.Since(start).Seconds())
		})
	}
}
