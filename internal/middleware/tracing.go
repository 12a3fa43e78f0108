package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/sparkmatch/sparkmatch/internal/tracing"
	"github.com/sparkmatch/sparkmatch/pkg/envelope"
)

// HeaderRequestID is the per-process identifier echoed on responses for
// log joining. It need not be globally unique.
const HeaderRequestID = "X-Request-ID"

var tracer = otel.Tracer("sparkmatch-fabric")

// Tracing creates the request envelope, extracts or generates the trace
// context from both the W3C traceparent and the custom headers, echoes
// the identifiers on the response, and opens a server span.
func Tracing(service string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc := tracing.Extract(r.Header)

			env := &envelope.Envelope{
				TraceID:        tc.TraceID,
				SpanID:         tc.SpanID,
				ParentSpanID:   tc.ParentSpanID,
				RequestID:      newRequestID(),
				APIVersion:     apiVersion(r.URL.Path),
				IdempotencyKey: r.Header.Get("Idempotency-Key"),
			}
			if env.APIVersion == "" {
				env.APIVersion = "v1"
				log.Warn().
					Str("path", r.URL.Path).
					Str("service", service).
					Msg("unversioned path, assuming v1")
			}

			ctx := envelope.Set(r.Context(), env)

			// Hand the inbound W3C context to the otel SDK as well, so
			// exported spans join the same trace.
			ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("url.path", r.URL.Path),
					attribute.String("service.name", service),
				),
			)
			defer span.End()

			w.Header().Set(tracing.HeaderTraceID, env.TraceID)
			w.Header().Set(tracing.HeaderSpanID, env.SpanID)
			if env.ParentSpanID != "" {
				w.Header().Set(tracing.HeaderParentSpanID, env.ParentSpanID)
			}
			w.Header().Set(tracing.HeaderTraceparent, tc.Traceparent())
			w.Header().Set(HeaderRequestID, env.RequestID)

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.response.status_code", rw.statusCode))
		})
	}
}

// apiVersion extracts the version segment from a path like /v1/....
func apiVersion(path string) string {
	trimmed := strings.TrimPrefix(path, "/api")
	parts := strings.SplitN(strings.TrimPrefix(trimmed, "/"), "/", 2)
	if len(parts) > 0 && len(parts[0]) >= 2 && parts[0][0] == 'v' {
		rest := parts[0][1:]
		for _, c := range rest {
			if c < '0' || c > '9' {
				return ""
			}
		}
		return parts[0]
	}
	return ""
}

// newRequestID returns a short per-process identifier.
func newRequestID() string {
	var b [4]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
