// Package authsvc is the token issuer. It exchanges a platform-signed
// login blob for an access+refresh pair, refreshes access tokens, and
// verifies bearers for other services' tests. Its stack omits the
// authentication layer (its job is to issue tokens) but carries the
// brute-force auth rate limiter on top of the standard tiers.
package authsvc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sparkmatch/sparkmatch/internal/apierr"
	"github.com/sparkmatch/sparkmatch/internal/audit"
	"github.com/sparkmatch/sparkmatch/internal/auth"
	"github.com/sparkmatch/sparkmatch/internal/config"
	"github.com/sparkmatch/sparkmatch/internal/middleware"
)

// expiresIn is the advertised access-token lifetime in seconds.
const expiresIn = 3600

// Service issues and refreshes tokens.
type Service struct {
	issuer   *auth.Issuer
	botToken string
	validate *validator.Validate
}

// NewService builds the auth service from configuration. JWT_SECRET and,
// when Telegram origin validation is on, BOT_TOKEN must already have been
// required at startup.
func NewService(cfg *config.Config) *Service {
	return &Service{
		issuer:   auth.NewIssuer(cfg.JWTSecret),
		botToken: cfg.BotToken,
		validate: validator.New(),
	}
}

// Issuer exposes the token issuer for tests.
func (s *Service) Issuer() *auth.Issuer {
	return s.issuer
}

// Handler returns the auth service's HTTP surface.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "auth-service",
		})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/validate", s.validateHandler)
		r.Post("/refresh", s.refreshHandler)
		r.Get("/verify", s.verifyHandler)
	})

	return middleware.Wrap(r, middleware.Options{
		Service:       "auth-service",
		Issuer:        s.issuer,
		Mode:          middleware.AuthNone,
		AuthRateLimit: true,
		AuditRoutes: map[string]audit.Operation{
			"POST /auth/validate": audit.OpLogin,
		},
	})
}

type validateRequest struct {
	InitData string `json:"init_data" validate:"required"`
	BotToken string `json:"bot_token"`
}

// validateHandler exchanges a signed login blob for a token pair.
func (s *Service) validateHandler(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Validation("malformed request body"))
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		apierr.Write(w, apierr.Validation("init_data is required"))
		return
	}

	botToken := s.botToken
	if req.BotToken != "" {
		botToken = req.BotToken
	}

	user, err := auth.VerifyInitData(req.InitData, botToken)
	if err != nil {
		var initErr *auth.InitDataError
		if errors.As(err, &initErr) {
			apierr.Write(w, apierr.InvalidToken("invalid_init_data"))
			return
		}
		apierr.Write(w, apierr.From(err))
		return
	}

	access, err := s.issuer.IssueAccess(user.ID, user.Username)
	if err != nil {
		apierr.Write(w, apierr.Internal())
		return
	}
	refresh, err := s.issuer.IssueRefresh(user.ID, user.Username)
	if err != nil {
		apierr.Write(w, apierr.Internal())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"user_id":       user.ID,
		"username":      user.Username,
		"expires_in":    expiresIn,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// refreshHandler mints a new access token from a refresh token.
func (s *Service) refreshHandler(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Validation("malformed request body"))
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		apierr.Write(w, apierr.Validation("refresh_token is required"))
		return
	}

	claims, err := s.issuer.VerifyRefresh(req.RefreshToken)
	if err != nil {
		apierr.Write(w, apierr.From(err))
		return
	}

	access, err := s.issuer.IssueAccess(claims.UserID, claims.Username)
	if err != nil {
		apierr.Write(w, apierr.Internal())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": access,
		"expires_in":   expiresIn,
	})
}

// verifyHandler is a bearer-protected echo. /auth/verify is the one
// /auth path the bypass list does not cover, but this service's stack
// omits the authentication layer, so the check happens here.
func (s *Service) verifyHandler(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		apierr.Write(w, apierr.MissingToken())
		return
	}
	claims, err := s.issuer.VerifyAccess(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
	if err != nil {
		apierr.Write(w, apierr.From(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":    true,
		"user_id":  claims.UserID,
		"username": claims.Username,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
