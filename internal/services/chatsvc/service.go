// Package chatsvc is the chat edge's fabric-facing surface: message
// writes with idempotency-key forwarding, read receipts, blocks and
// reports, each publishing its domain event after the data collaborator
// has committed. message.sent is published only when the data call
// reports a new insert, so an idempotent replay returns the identical
// response without re-publishing.
package chatsvc

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
	"github.com/sparkmatch/sparkmatch/internal/httpclient"
	"github.com/sparkmatch/sparkmatch/internal/middleware"
	"github.com/sparkmatch/sparkmatch/pkg/envelope"
)

// Service handles chat writes and their event emission points.
type Service struct {
	issuer   *auth.Issuer
	data     *dataclient.Client
	pub      events.Publisher
	validate *validator.Validate
}

// NewService wires the chat edge.
func NewService(issuer *auth.Issuer, data *dataclient.Client, pub events.Publisher) *Service {
	return &Service{
		issuer:   issuer,
		data:     data,
		pub:      pub,
		validate: validator.New(),
	}
}

// Handler returns the chat surface wrapped in the standard chain.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "chat-service",
		})
	})

	r.Route("/chat", func(r chi.Router) {
		r.Route("/conversations/{id}", func(r chi.Router) {
			r.Post("/messages", s.sendMessageHandler)
			r.Post("/read", s.markReadHandler)
		})
		r.Post("/blocks", s.blockHandler)
		r.Post("/reports", s.reportHandler)
	})

	return middleware.Wrap(r, middleware.Options{
		Service: "chat-service",
		Issuer:  s.issuer,
		Mode:    middleware.AuthUsers,
	})
}

type messageRequest struct {
	Content     string `json:"content" validate:"required"`
	ContentType string `json:"content_type"`
}

// sendMessageHandler stores a message via the data collaborator,
// forwarding the caller's Idempotency-Key verbatim, and publishes
// message.sent only for a new insert.
func (s *Service) sendMessageHandler(w http.ResponseWriter, r *http.Request) {
	env := envelope.Get(r.Context())

	conversationID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apierr.Write(w, apierr.Validation("malformed conversation id"))
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Validation("malformed request body"))
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		apierr.Write(w, apierr.Validation("content is required"))
		return
	}
	if req.ContentType == "" {
		req.ContentType = "text"
	}

	idempotencyKey := r.Header.Get(httpclient.HeaderIdempotencyKey)

	result, err := s.data.CreateMessage(r.Context(), dataclient.Message{
		ConversationID: conversationID,
		SenderID:       env.Principal.UserID,
		Content:        req.Content,
		ContentType:    req.ContentType,
	}, idempotencyKey)
	if err != nil {
		apierr.Write(w, apierr.From(err))
		return
	}

	if result.Created {
		payload := events.MessageSent{
			ConversationID: conversationID,
			SenderID:       env.Principal.UserID,
			Content:        req.Content,
			ContentType:    req.ContentType,
			MessageID:      result.MessageID,
			SentAt:         result.SentAt,
		}
		if eventEnv, err := events.NewEnvelope(events.KeyMessageSent, env.CorrelationID, payload); err != nil {
			log.Error().Err(err).Msg("encode message.sent")
		} else {
			events.PublishOrLog(r.Context(), s.pub, eventEnv)
		}
	}

	// The response shape is identical whether the insert was new or a
	// keyed replay, per the idempotency contract.
	writeJSON(w, http.StatusOK, map[string]any{
		"message_id": result.MessageID,
		"sent_at":    result.SentAt,
	})
}

type readRequest struct {
	UpToMessageID int64 `json:"up_to_message_id" validate:"required"`
}

// markReadHandler advances the read cursor and publishes message.read.
func (s *Service) markReadHandler(w http.ResponseWriter, r *http.Request) {
	env := envelope.Get(r.Context())

	conversationID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apierr.Write(w, apierr.Validation("malformed conversation id"))
		return
	}

	var req readRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Validation("malformed request body"))
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		apierr.Write(w, apierr.Validation("up_to_message_id is required"))
		return
	}

	if err := s.data.MarkRead(r.Context(), conversationID, env.Principal.UserID, req.UpToMessageID); err != nil {
		apierr.Write(w, apierr.From(err))
		return
	}

	payload := events.MessageRead{
		ConversationID: conversationID,
		UserID:         env.Principal.UserID,
		UpToMessageID:  req.UpToMessageID,
	}
	if eventEnv, err := events.NewEnvelope(events.KeyMessageRead, env.CorrelationID, payload); err != nil {
		log.Error().Err(err).Msg("encode message.read")
	} else {
		events.PublishOrLog(r.Context(), s.pub, eventEnv)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type blockRequest struct {
	BlockedID int64 `json:"blocked_id" validate:"required"`
}

// blockHandler stores a block and publishes user.blocked.
func (s *Service) blockHandler(w http.ResponseWriter, r *http.Request) {
	env := envelope.Get(r.Context())

	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Validation("malformed request body"))
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		apierr.Write(w, apierr.Validation("blocked_id is required"))
		return
	}

	if err := s.data.CreateBlock(r.Context(), dataclient.Block{
		BlockerID: env.Principal.UserID,
		BlockedID: req.BlockedID,
	}); err != nil {
		apierr.Write(w, apierr.From(err))
		return
	}

	payload := events.UserBlocked{
		BlockerID: env.Principal.UserID,
		BlockedID: req.BlockedID,
	}
	if eventEnv, err := events.NewEnvelope(events.KeyUserBlocked, env.CorrelationID, payload); err != nil {
		log.Error().Err(err).Msg("encode user.blocked")
	} else {
		events.PublishOrLog(r.Context(), s.pub, eventEnv)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "blocked"})
}

type chatReportRequest struct {
	ConversationID int64  `json:"conversation_id" validate:"required"`
	MessageID      int64  `json:"message_id"`
	Reason         string `json:"reason" validate:"required"`
}

// reportHandler stores a report and publishes report.created.
func (s *Service) reportHandler(w http.ResponseWriter, r *http.Request) {
	env := envelope.Get(r.Context())

	var req chatReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Validation("malformed request body"))
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		apierr.Write(w, apierr.Validation("conversation_id and reason are required"))
		return
	}

	result, err := s.data.CreateReport(r.Context(), dataclient.Report{
		ReporterID:     env.Principal.UserID,
		ConversationID: req.ConversationID,
		MessageID:      req.MessageID,
		Reason:         req.Reason,
	})
	if err != nil {
		apierr.Write(w, apierr.From(err))
		return
	}

	payload := events.ReportCreated{
		ReportID:       result.ReportID,
		ReporterID:     env.Principal.UserID,
		ConversationID: req.ConversationID,
		MessageID:      req.MessageID,
		Reason:         req.Reason,
	}
	if eventEnv, err := events.NewEnvelope(events.KeyReportCreated, env.CorrelationID, payload); err != nil {
		log.Error().Err(err).Msg("encode report.created")
	} else {
		events.PublishOrLog(r.Context(), s.pub, eventEnv)
	}

	writeJSON(w, http.StatusOK, map[string]any{"report_id": result.ReportID})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
