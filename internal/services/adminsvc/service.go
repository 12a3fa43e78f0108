// Package adminsvc is the moderation panel backend. /admin/login trades
// the shared admin password for an admin-scoped token (the one admin
// path the authentication bypass covers); every other route requires an
// admin bearer and runs in the strictest rate-limit tier.
package adminsvc

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sparkmatch/sparkmatch/internal/apierr"
	"github.com/sparkmatch/sparkmatch/internal/audit"
	"github.com/sparkmatch/sparkmatch/internal/auth"
	"github.com/sparkmatch/sparkmatch/internal/dataclient"
	"github.com/sparkmatch/sparkmatch/internal/middleware"
)

// Service is the admin moderation surface.
type Service struct {
	issuer        *auth.Issuer
	adminPassword string
	data          *dataclient.Client
	validate      *validator.Validate

	mu     sync.Mutex
	banned map[int64]string // user id -> reason
}

// NewService wires the admin edge.
func NewService(issuer *auth.Issuer, adminPassword string, data *dataclient.Client) *Service {
	return &Service{
		issuer:        issuer,
		adminPassword: adminPassword,
		data:          data,
		validate:      validator.New(),
		banned:        make(map[int64]string),
	}
}

// Handler returns the admin surface wrapped in the standard chain with
// admin authentication.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "admin-service",
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", s.loginHandler)
		r.Route("/moderation", func(r chi.Router) {
			r.Get("/reports", s.reportsHandler)
			r.Post("/ban", s.banHandler)
			r.Post("/unban", s.unbanHandler)
			r.Get("/bans", s.bansHandler)
		})
	})

	return middleware.Wrap(r, middleware.Options{
		Service: "admin-service",
		Issuer:  s.issuer,
		Mode:    middleware.AuthAdmin,
		AuditRoutes: map[string]audit.Operation{
			"POST /admin/moderation/ban": audit.OpAdminBan,
		},
	})
}

type loginRequest struct {
	Password string `json:"password" validate:"required"`
}

// loginHandler exchanges the shared admin password for an admin token.
// Failed attempts audit as suspicious activity.
func (s *Service) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Validation("malformed request body"))
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		apierr.Write(w, apierr.Validation("password is required"))
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.adminPassword)) != 1 {
		audit.Record(r.Context(), audit.OpSuspiciousActivity, map[string]any{
			"reason": "admin login failed",
		})
		apierr.Write(w, apierr.InvalidToken("invalid admin credentials"))
		return
	}

	token, err := s.issuer.IssueAdmin(1)
	if err != nil {
		apierr.Write(w, apierr.Internal())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"expires_in":   int(auth.AccessTokenTTL.Seconds()),
	})
}

// reportsHandler forwards the open report queue from the data
// collaborator.
func (s *Service) reportsHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := s.data.Forward(r.Context(), http.MethodGet, "/reports", nil)
	if err != nil {
		apierr.Write(w, apierr.From(err))
		return
	}
	if err := resp.Err(); err != nil {
		apierr.Write(w, apierr.From(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(resp.Body)
}

type banRequest struct {
	UserID int64  `json:"user_id" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

// banHandler records a ban. The audit layer covers the operation; the
// reason lands in the ban list.
func (s *Service) banHandler(w http.ResponseWriter, r *http.Request) {
	var req banRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Validation("malformed request body"))
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		apierr.Write(w, apierr.Validation("user_id and reason are required"))
		return
	}

	s.mu.Lock()
	s.banned[req.UserID] = req.Reason
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "banned"})
}

type unbanRequest struct {
	UserID int64 `json:"user_id" validate:"required"`
}

func (s *Service) unbanHandler(w http.ResponseWriter, r *http.Request) {
	var req unbanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Validation("malformed request body"))
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		apierr.Write(w, apierr.Validation("user_id is required"))
		return
	}

	s.mu.Lock()
	_, ok := s.banned[req.UserID]
	delete(s.banned, req.UserID)
	s.mu.Unlock()

	if !ok {
		apierr.Write(w, apierr.NotFound("ban"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unbanned"})
}

func (s *Service) bansHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	bans := make([]map[string]any, 0, len(s.banned))
	for id, reason := range s.banned {
		bans = append(bans, map[string]any{
			"user_id": id,
			"reason":  reason,
		})
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"bans": bans})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
