package datasvc

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sparkmatch/sparkmatch/internal/apierr"
	"github.com/sparkmatch/sparkmatch/internal/dataclient"
	"github.com/sparkmatch/sparkmatch/internal/httpclient"
	"github.com/sparkmatch/sparkmatch/internal/middleware"
)

// Service exposes the store over HTTP to the rest of the fabric.
type Service struct {
	store *Store
}

// NewService creates the data service.
func NewService() *Service {
	return &Service{store: NewStore()}
}

// Store exposes the backing store for tests.
func (s *Service) Store() *Store {
	return s.store
}

// Handler returns the service's HTTP surface wrapped in the standard
// chain. The data service receives only internal traffic, so the
// authentication layer is omitted; the 100/min service tier still
// applies.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Post("/likes", s.createLike)
	r.Post("/messages", s.createMessage)
	r.Post("/messages/read", s.markRead)
	r.Post("/reports", s.createReport)
	r.Get("/reports", s.listReports)
	r.Post("/blocks", s.createBlock)
	r.Get("/matches", s.listMatches)

	r.Route("/profiles", func(r chi.Router) {
		r.Get("/check", s.checkProfile)
		r.Post("/", s.upsertProfile)
		r.Get("/{id}", s.getProfile)
		r.Put("/{id}", s.upsertProfileByID)
		r.Delete("/{id}", s.deleteProfile)
	})

	return middleware.Wrap(r, middleware.Options{
		Service: "data-service",
		Mode:    middleware.AuthNone,
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "data-service",
	})
}

func (s *Service) createLike(w http.ResponseWriter, r *http.Request) {
	var like struct {
		UserID          int64  `json:"user_id"`
		TargetID        int64  `json:"target_id"`
		InteractionType string `json:"interaction_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&like); err != nil {
		apierr.Write(w, apierr.Validation("malformed like body"))
		return
	}
	if like.UserID == 0 || like.TargetID == 0 {
		apierr.Write(w, apierr.Validation("user_id and target_id are required"))
		return
	}
	result := s.store.CreateLike(dataclient.Like{UserID: like.UserID, TargetID: like.TargetID, InteractionType: like.InteractionType})
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) createMessage(w http.ResponseWriter, r *http.Request) {
	var msg struct {
		ConversationID int64  `json:"conversation_id"`
		SenderID       int64  `json:"sender_id"`
		Content        string `json:"content"`
		ContentType    string `json:"content_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		apierr.Write(w, apierr.Validation("malformed message body"))
		return
	}
	key := r.Header.Get(httpclient.HeaderIdempotencyKey)
	result := s.store.CreateMessage(dataclient.Message{ConversationID: msg.ConversationID, SenderID: msg.SenderID, Content: msg.Content, ContentType: msg.ContentType}, key)
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) markRead(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ConversationID int64 `json:"conversation_id"`
		UserID         int64 `json:"user_id"`
		UpToMessageID  int64 `json:"up_to_message_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.Write(w, apierr.Validation("malformed read body"))
		return
	}
	s.store.MarkRead(body.ConversationID, body.UserID, body.UpToMessageID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) createReport(w http.ResponseWriter, r *http.Request) {
	var report struct {
		ReporterID     int64  `json:"reporter_id"`
		ConversationID int64  `json:"conversation_id"`
		MessageID      int64  `json:"message_id"`
		Reason         string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		apierr.Write(w, apierr.Validation("malformed report body"))
		return
	}
	result := s.store.CreateReport(dataclient.Report{ReporterID: report.ReporterID, ConversationID: report.ConversationID, MessageID: report.MessageID, Reason: report.Reason})
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) createBlock(w http.ResponseWriter, r *http.Request) {
	var block struct {
		BlockerID int64 `json:"blocker_id"`
		BlockedID int64 `json:"blocked_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&block); err != nil {
		apierr.Write(w, apierr.Validation("malformed block body"))
		return
	}
	s.store.CreateBlock(dataclient.Block{BlockerID: block.BlockerID, BlockedID: block.BlockedID})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) listReports(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"reports": s.store.Reports()})
}

func (s *Service) listMatches(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		apierr.Write(w, apierr.Validation("user_id query parameter required"))
		return
	}
	matches := s.store.MatchesFor(userID)
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (s *Service) getProfile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apierr.Write(w, apierr.Validation("malformed profile id"))
		return
	}
	body, ok := s.store.GetProfile(id)
	if !ok {
		apierr.Write(w, apierr.NotFound("profile"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (s *Service) checkProfile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		apierr.Write(w, apierr.Validation("user_id query parameter required"))
		return
	}
	_, exists := s.store.GetProfile(id)
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// upsertProfile stores an opaque profile body keyed by its user_id field,
// the one envelope field the store parses.
func (s *Service) upsertProfile(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		apierr.Write(w, apierr.Validation("unreadable body"))
		return
	}
	var probe struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.UserID == 0 {
		apierr.Write(w, apierr.Validation("user_id is required"))
		return
	}
	s.store.UpsertProfile(probe.UserID, body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(body)
}

func (s *Service) upsertProfileByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apierr.Write(w, apierr.Validation("malformed profile id"))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		apierr.Write(w, apierr.Validation("unreadable body"))
		return
	}
	s.store.UpsertProfile(id, body)
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (s *Service) deleteProfile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apierr.Write(w, apierr.Validation("malformed profile id"))
		return
	}
	if !s.store.DeleteProfile(id) {
		apierr.Write(w, apierr.NotFound("profile"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
