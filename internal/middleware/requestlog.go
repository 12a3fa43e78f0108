package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sparkmatch/sparkmatch/pkg/envelope"
)

// RequestLogging emits one record at request start and one at completion
// with status, duration, principal and all envelope identifiers.
func RequestLogging(service string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			env := envelope.Get(r.Context())

			startEvent := log.Debug().
				Str("service", service).
				Str("method", r.Method).
				Str("path", r.URL.Path)
			if env != nil {
				startEvent = startEvent.
					Str("correlation_id", env.CorrelationID).
					Str("trace_id", env.TraceID).
					Str("request_id", env.RequestID)
			}
			startEvent.Msg("request started")

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			duration := time.Since(start)

			event := log.Info()
			if rw.statusCode >= 400 {
				event = log.Warn()
			}
			if rw.statusCode >= 500 {
				event = log.Error()
			}

			event = event.
				Str("service", service).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.statusCode).
				Int("bytes", rw.bytes).
				Int64("duration_ms", duration.Milliseconds())
			if env != nil {
				event = event.
					Str("correlation_id", env.CorrelationID).
					Str("trace_id", env.TraceID).
					Str("span_id", env.SpanID).
					Str("request_id", env.RequestID)
				switch env.Principal.Kind {
				case envelope.PrincipalUser:
					event = event.Int64("user_id", env.Principal.UserID)
				case envelope.PrincipalAdmin:
					event = event.Int64("admin_id", env.Principal.AdminID)
				}
			}
			event.Msg("request completed")
		})
	}
}
