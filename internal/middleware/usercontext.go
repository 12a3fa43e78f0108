package middleware

import (
	"net/http"
	"strings"

	"github.com/sparkmatch/sparkmatch/internal/auth"
	"github.com/sparkmatch/sparkmatch/pkg/envelope"
)

// bearerToken extracts the token from an Authorization header, or "".
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// UserContext attempts a bearer-token decode without ever failing the
// request. A valid token populates the principal early so the rate
// limiter and request log can key on the user id; enforcement stays with
// the authentication layer.
func UserContext(issuer *auth.Issuer) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if issuer == nil {
				next.ServeHTTP(w, r)
				return
			}
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := issuer.Verify(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if env := envelope.Get(r.Context()); env != nil {
				switch {
				case claims.TokenType == auth.TokenTypeAdmin && claims.AdminID != 0:
					env.Principal = envelope.Principal{Kind: envelope.PrincipalAdmin, AdminID: claims.AdminID}
				case claims.TokenType == auth.TokenTypeAccess && claims.UserID != 0:
					env.Principal = envelope.Principal{Kind: envelope.PrincipalUser, UserID: claims.UserID}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
