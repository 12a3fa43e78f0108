package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/sparkmatch/sparkmatch/internal/apierr"
	"github.com/sparkmatch/sparkmatch/pkg/envelope"
)

// ErrorHandler sits at the top of the stack. Handlers serialize their own
// catalog errors; anything that escapes as a panic is logged with a stack
// trace and surfaced as the opaque SYS_001 envelope.
func ErrorHandler(service string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error().
					Interface("panic", rec).
					Str("service", service).
					Str("path", r.URL.Path).
					Str("correlation_id", envelope.CorrelationID(r.Context())).
					Bytes("stack", debug.Stack()).
					Msg("unhandled panic")
				apierr.Write(w, apierr.Internal())
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status and size.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	bytes      int
	wrote      bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wrote {
		return
	}
	rw.wrote = true
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wrote = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}
