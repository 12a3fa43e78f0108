// Package profilesvc is the profile edge. Profile bodies belong to the
// data collaborator; this edge forwards them opaque through the
// resilience client, owning only authentication, audit and the
// completeness check used during onboarding.
package profilesvc

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sparkmatch/sparkmatch/internal/apierr"
	"github.com/sparkmatch/sparkmatch/internal/audit"
	"github.com/sparkmatch/sparkmatch/internal/auth"
	"github.com/sparkmatch/sparkmatch/internal/dataclient"
	"github.com/sparkmatch/sparkmatch/internal/middleware"
	"github.com/sparkmatch/sparkmatch/pkg/envelope"
)

// Service forwards profile CRUD to the data collaborator.
type Service struct {
	issuer *auth.Issuer
	data   *dataclient.Client
}

// NewService wires the profile edge.
func NewService(issuer *auth.Issuer, data *dataclient.Client) *Service {
	return &Service{issuer: issuer, data: data}
}

// Handler returns the profile surface wrapped in the standard chain.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "profile-service",
		})
	})

	r.Route("/profiles", func(r chi.Router) {
		r.Get("/check", s.checkHandler)
		r.Post("/", s.forwardHandler)
		r.Get("/{id}", s.forwardHandler)
		r.Put("/{id}", s.forwardHandler)
		r.Delete("/{id}", s.forwardHandler)
	})

	return middleware.Wrap(r, middleware.Options{
		Service: "profile-service",
		Issuer:  s.issuer,
		Mode:    middleware.AuthUsers,
		AuditRoutes: map[string]audit.Operation{
			"POST /profiles":        audit.OpProfileCreate,
			"PUT /profiles/{id}":    audit.OpProfileUpdate,
			"DELETE /profiles/{id}": audit.OpProfileDelete,
		},
	})
}

// checkHandler reports whether a profile exists, defaulting the lookup to
// the authenticated user.
func (s *Service) checkHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("user_id")
	if query == "" {
		env := envelope.Get(r.Context())
		query = strconv.FormatInt(env.Principal.UserID, 10)
	} else if _, err := strconv.ParseInt(query, 10, 64); err != nil {
		apierr.Write(w, apierr.Validation("malformed user_id"))
		return
	}
	s.forward(w, r, http.MethodGet, "/profiles/check?user_id="+query, nil)
}

// forwardHandler passes the request through verbatim. The body shape is
// the data collaborator's contract, not this edge's.
func (s *Service) forwardHandler(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			apierr.Write(w, apierr.Validation("unreadable body"))
			return
		}
	}
	s.forward(w, r, r.Method, r.URL.RequestURI(), body)
}

func (s *Service) forward(w http.ResponseWriter, r *http.Request, method, path string, body []byte) {
	resp, err := s.data.Forward(r.Context(), method, path, body)
	if err != nil {
		apierr.Write(w, apierr.From(err))
		return
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
