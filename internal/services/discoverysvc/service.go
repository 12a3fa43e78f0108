// Package discoverysvc is the discovery edge: swipes, matches and
// reports. Its fabric-facing obligations are input validation, calling
// the data collaborator through the resilience client, and publishing
// match.created exactly once per pair after the data mutation committed.
// Two concurrent mutual likes both succeed; the data collaborator's
// normalized pair constraint elects exactly one publisher.
package discoverysvc

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/sparkmatch/sparkmatch/internal/apierr"
	"github.com/sparkmatch/sparkmatch/internal/auth"
	"github.com/sparkmatch/sparkmatch/internal/dataclient"
	"github.com/sparkmatch/sparkmatch/internal/events"
	"github.com/sparkmatch/sparkmatch/internal/middleware"
	"github.com/sparkmatch/sparkmatch/pkg/envelope"
)

// Service handles the discovery write path.
type Service struct {
	issuer   *auth.Issuer
	data     *dataclient.Client
	pub      events.Publisher
	validate *validator.Validate
}

// NewService wires the discovery edge.
func NewService(issuer *auth.Issuer, data *dataclient.Client, pub events.Publisher) *Service {
	return &Service{
		issuer:   issuer,
		data:     data,
		pub:      pub,
		validate: validator.New(),
	}
}

// Handler returns the discovery surface wrapped in the standard chain.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "discovery-service",
		})
	})

	r.Route("/discovery", func(r chi.Router) {
		r.Post("/like", s.likeHandler)
		r.Post("/pass", s.passHandler)
		r.Post("/report", s.reportHandler)
		r.Get("/matches", s.matchesHandler)
	})

	return middleware.Wrap(r, middleware.Options{
		Service: "discovery-service",
		Issuer:  s.issuer,
		Mode:    middleware.AuthUsers,
	})
}

type swipeRequest struct {
	TargetID int64 `json:"target_id" validate:"required"`
}

// likeHandler records a like and, when the pair becomes mutual, publishes
// match.created after the data collaborator has committed. A replayed or
// racing like observes the existing match (unique-constraint "already
// exists") and does not publish again.
func (s *Service) likeHandler(w http.ResponseWriter, r *http.Request) {
	env := envelope.Get(r.Context())

	var req swipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Validation("malformed request body"))
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		apierr.Write(w, apierr.Validation("target_id is required"))
		return
	}
	if req.TargetID == env.Principal.UserID {
		apierr.Write(w, apierr.Validation("cannot like yourself"))
		return
	}

	result, err := s.data.CreateLike(r.Context(), dataclient.Like{
		UserID:          env.Principal.UserID,
		TargetID:        req.TargetID,
		InteractionType: "like",
	})
	if err != nil {
		apierr.Write(w, apierr.From(err))
		return
	}

	// Publish only after the commit, and only from the request that
	// created the match row. Publish failure never rolls back the
	// commit: delivery is at-least-once and the consumer is idempotent.
	if result.MatchCreated {
		payload := events.MatchCreated{
			UserID1:         result.UserID1,
			UserID2:         result.UserID2,
			MatchedAt:       result.MatchedAt,
			InteractionType: "like",
		}
		if eventEnv, err := events.NewEnvelope(events.KeyMatchCreated, env.CorrelationID, payload); err != nil {
			log.Error().Err(err).Msg("encode match.created")
		} else {
			events.PublishOrLog(r.Context(), s.pub, eventEnv)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"matched": result.Matched,
	})
}

// passHandler records a pass; passes never match and never publish.
func (s *Service) passHandler(w http.ResponseWriter, r *http.Request) {
	env := envelope.Get(r.Context())

	var req swipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Validation("malformed request body"))
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		apierr.Write(w, apierr.Validation("target_id is required"))
		return
	}

	_, err := s.data.CreateLike(r.Context(), dataclient.Like{
		UserID:          env.Principal.UserID,
		TargetID:        req.TargetID,
		InteractionType: "pass",
	})
	if err != nil {
		apierr.Write(w, apierr.From(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type reportRequest struct {
	TargetID int64  `json:"target_id" validate:"required"`
	Reason   string `json:"reason" validate:"required"`
}

// reportHandler stores a report and publishes report.created.
func (s *Service) reportHandler(w http.ResponseWriter, r *http.Request) {
	env := envelope.Get(r.Context())

	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Validation("malformed request body"))
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		apierr.Write(w, apierr.Validation("target_id and reason are required"))
		return
	}

	result, err := s.data.CreateReport(r.Context(), dataclient.Report{
		ReporterID: env.Principal.UserID,
		Reason:     req.Reason,
	})
	if err != nil {
		apierr.Write(w, apierr.From(err))
		return
	}

	payload := events.ReportCreated{
		ReportID:   result.ReportID,
		ReporterID: env.Principal.UserID,
		Reason:     req.Reason,
	}
	if eventEnv, err := events.NewEnvelope(events.KeyReportCreated, env.CorrelationID, payload); err != nil {
		log.Error().Err(err).Msg("encode report.created")
	} else {
		events.PublishOrLog(r.Context(), s.pub, eventEnv)
	}

	writeJSON(w, http.StatusOK, map[string]any{"report_id": result.ReportID})
}

// matchesHandler forwards the match list from the data collaborator.
func (s *Service) matchesHandler(w http.ResponseWriter, r *http.Request) {
	env := envelope.Get(r.Context())

	resp, err := s.data.Forward(r.Context(), http.MethodGet,
		"/matches?user_id="+strconv.FormatInt(env.Principal.UserID, 10), nil)
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

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
