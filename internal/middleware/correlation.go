package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/sparkmatch/sparkmatch/pkg/envelope"
)

// HeaderCorrelationID identifies one logical user action across every
// service and log line it touches.
const HeaderCorrelationID = "X-Correlation-ID"

// Correlation extracts or generates the correlation id, records it on the
// envelope, and echoes it on the response. The outbound client mirrors it
// onto every downstream call.
func Correlation() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get(HeaderCorrelationID)
			if correlationID == "" {
				correlationID = uuid.NewString()
			}

			if env := envelope.Get(r.Context()); env != nil {
				env.CorrelationID = correlationID
			}
			w.Header().Set(HeaderCorrelationID, correlationID)

			next.ServeHTTP(w, r)
		})
	}
}
