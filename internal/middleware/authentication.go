package middleware

import (
	"net/http"
	"strings"

	"github.com/sparkmatch/sparkmatch/internal/apierr"
	"github.com/sparkmatch/sparkmatch/internal/auth"
	"github.com/sparkmatch/sparkmatch/pkg/envelope"
)

// authBypass returns true for paths that skip bearer enforcement:
// health/metrics surfaces, the token-issuing /auth/* endpoints (but not
// /auth/verify) and the admin login.
func authBypass(path string) bool {
	switch path {
	case "/health", "/metrics", "/sync-metrics", "/admin/login":
		return true
	}
	if strings.HasPrefix(path, "/auth/") && path != "/auth/verify" {
		return true
	}
	return false
}

// Authentication enforces a valid user access token and populates the
// principal. Failures return 401 with the AUTH_00x catalog codes.
func Authentication(issuer *auth.Issuer) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authBypass(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				apierr.Write(w, apierr.MissingToken())
				return
			}
			claims, err := issuer.VerifyAccess(token)
			if err != nil {
				apierr.Write(w, apierr.From(err))
				return
			}
			if env := envelope.Get(r.Context()); env != nil {
				env.Principal = envelope.Principal{
					Kind:   envelope.PrincipalUser,
					UserID: claims.UserID,
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminAuthentication is the admin-service variant: it requires an
// admin-scoped token and sets the admin principal. /admin/login and the
// operational surfaces bypass it.
func AdminAuthentication(issuer *auth.Issuer) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authBypass(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				apierr.Write(w, apierr.MissingToken())
				return
			}
			claims, err := issuer.VerifyAdmin(token)
			if err != nil {
				apierr.Write(w, apierr.From(err))
				return
			}
			if env := envelope.Get(r.Context()); env != nil {
				env.Principal = envelope.Principal{
					Kind:    envelope.PrincipalAdmin,
					AdminID: claims.AdminID,
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
