package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/sparkmatch/sparkmatch/internal/apierr"
	"github.com/sparkmatch/sparkmatch/internal/audit"
	"github.com/sparkmatch/sparkmatch/internal/metrics"
	"github.com/sparkmatch/sparkmatch/internal/ratelimit"
	"github.com/sparkmatch/sparkmatch/pkg/envelope"
)

// RateLimit applies the two tiers in order (endpoint, then service);
// either may reject with 429 RATE_001 and a Retry-After header. When
// authLimit is set, /auth/* paths additionally pass the brute-force
// limiter keyed by the client address. /health and /metrics are exempt.
func RateLimit(service string, limiter *ratelimit.Limiter, policy *ratelimit.Policy, authLimit bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if path == "/health" || path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			identity := identityFor(r)

			if authLimit && strings.HasPrefix(path, "/auth/") {
				// Brute-force tier keys by address even for
				// authenticated callers.
				addr := ratelimit.ClientIdentity(r)
				if ok, retryAfter := limiter.Allow("auth:"+addr, ratelimit.AuthLimit); !ok {
					reject(w, r, service, "auth", retryAfter)
					return
				}
			}

			if rule := policy.Match(path); rule != nil {
				key := "endpoint:" + rule.Template + ":" + identity
				if ok, retryAfter := limiter.Allow(key, rule.Limit); !ok {
					reject(w, r, service, "endpoint", retryAfter)
					return
				}
			}

			key := "service:" + identity
			if ok, retryAfter := limiter.Allow(key, policy.ServiceLimit); !ok {
				reject(w, r, service, "service", retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// identityFor keys windows by the authenticated user when available,
// otherwise by a stable hash of the client address.
func identityFor(r *http.Request) string {
	if env := envelope.Get(r.Context()); env != nil && env.Principal.Authenticated() {
		if env.Principal.Kind == envelope.PrincipalAdmin {
			return "admin:" + strconv.FormatInt(env.Principal.AdminID, 10)
		}
		return "user:" + strconv.FormatInt(env.Principal.UserID, 10)
	}
	return ratelimit.ClientIdentity(r)
}

func reject(w http.ResponseWriter, r *http.Request, service, scope string, retryAfter int) {
	metrics.RateLimitRejections.WithLabelValues(scope, service).Inc()
	audit.Record(r.Context(), audit.OpRateLimitTrip, map[string]any{
		"scope": scope,
		"path":  r.URL.Path,
	})
	apierr.Write(w, apierr.RateLimited(retryAfter))
}
