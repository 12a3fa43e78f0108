package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/sparkmatch/sparkmatch/internal/audit"
	"github.com/sparkmatch/sparkmatch/internal/ratelimit"
)

// auditRoute is one compiled "METHOD /path/{param}" binding.
type auditRoute struct {
	method string
	re     *regexp.Regexp
	op     audit.Operation
}

// AuditLogging emits audit records for the closed set of operations a
// service declares, keyed by "METHOD /path". Paths use the same {param}
// wildcards as the rate-limit policy, so a key like
// "DELETE /media/photos/{id}" binds to the concrete paths chi serves.
// Only successful requests (status < 400) are audited here; failure-side
// records (rate-limit trips, suspicious activity) are emitted where the
// failure is detected.
func AuditLogging(routes map[string]audit.Operation) Middleware {
	compiled := make([]auditRoute, 0, len(routes))
	for key, op := range routes {
		method, template, ok := strings.Cut(key, " ")
		if !ok {
			continue
		}
		compiled = append(compiled, auditRoute{
			method: method,
			re:     ratelimit.CompileTemplate(template),
			op:     op,
		})
	}

	return func(next http.Handler) http.Handler {
		if len(compiled) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			if rw.statusCode >= 400 {
				return
			}
			path := r.URL.Path
			if len(path) > 1 {
				path = strings.TrimSuffix(path, "/")
			}
			for _, rt := range compiled {
				if rt.method != r.Method || !rt.re.MatchString(path) {
					continue
				}
				audit.Record(r.Context(), rt.op, map[string]any{
					"method": r.Method,
					"path":   r.URL.Path,
					"status": rw.statusCode,
				})
				return
			}
		})
	}
}
