// Package mediasvc is the media edge: photo upload, retrieval and
// deletion. Stored bytes stay process-local; the fabric's interest in
// this service is its audit trail (file_upload, file_delete,
// nsfw_detection) and its 20/min service tier.
package mediasvc

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/sparkmatch/sparkmatch/internal/apierr"
	"github.com/sparkmatch/sparkmatch/internal/audit"
	"github.com/sparkmatch/sparkmatch/internal/auth"
	"github.com/sparkmatch/sparkmatch/internal/middleware"
	"github.com/sparkmatch/sparkmatch/pkg/envelope"
)

// maxUploadBytes caps a single photo upload.
const maxUploadBytes = 10 << 20

// Screener decides whether uploaded content is acceptable. The default
// implementation accepts everything; deployments plug in a real
// classifier.
type Screener interface {
	Screen(contentType string, body []byte) (flagged bool, label string)
}

type acceptAll struct{}

func (acceptAll) Screen(string, []byte) (bool, string) { return false, "" }

// AcceptAll returns the pass-through screener.
func AcceptAll() Screener { return acceptAll{} }

type photo struct {
	ID          int64
	OwnerID     int64
	ContentType string
	Body        []byte
}

// Service stores photos in memory and audits every mutation.
type Service struct {
	issuer   *auth.Issuer
	screener Screener

	mu     sync.Mutex
	photos map[int64]photo
	nextID int64
}

// NewService wires the media edge.
func NewService(issuer *auth.Issuer, screener Screener) *Service {
	if screener == nil {
		screener = AcceptAll()
	}
	return &Service{
		issuer:   issuer,
		screener: screener,
		photos:   make(map[int64]photo),
	}
}

// Handler returns the media surface wrapped in the standard chain.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "media-service",
		})
	})

	r.Route("/media", func(r chi.Router) {
		r.Post("/photos", s.uploadHandler)
		r.Get("/photos/{id}", s.getHandler)
		r.Delete("/photos/{id}", s.deleteHandler)
	})

	return middleware.Wrap(r, middleware.Options{
		Service: "media-service",
		Issuer:  s.issuer,
		Mode:    middleware.AuthUsers,
		AuditRoutes: map[string]audit.Operation{
			"POST /media/photos":        audit.OpFileUpload,
			"DELETE /media/photos/{id}": audit.OpFileDelete,
		},
	})
}

// uploadHandler stores the raw body. Flagged content is rejected with a
// business-rule error and an nsfw_detection audit record; the upload
// itself is audited by the chain.
func (s *Service) uploadHandler(w http.ResponseWriter, r *http.Request) {
	env := envelope.Get(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		apierr.Write(w, apierr.Validation("unreadable body"))
		return
	}
	if len(body) == 0 {
		apierr.Write(w, apierr.Validation("empty upload"))
		return
	}
	if len(body) > maxUploadBytes {
		apierr.Write(w, apierr.Validation("upload exceeds 10MB limit"))
		return
	}

	contentType := r.Header.Get("Content-Type")
	if flagged, label := s.screener.Screen(contentType, body); flagged {
		audit.Record(r.Context(), audit.OpNSFWDetection, map[string]any{
			"label": label,
			"bytes": len(body),
		})
		apierr.Write(w, apierr.Validation("content rejected by screening"))
		return
	}

	s.mu.Lock()
	s.nextID++
	p := photo{
		ID:          s.nextID,
		OwnerID:     env.Principal.UserID,
		ContentType: contentType,
		Body:        body,
	}
	s.photos[p.ID] = p
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"photo_id": p.ID,
		"bytes":    len(body),
	})
}

func (s *Service) getHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apierr.Write(w, apierr.Validation("malformed photo id"))
		return
	}

	s.mu.Lock()
	p, ok := s.photos[id]
	s.mu.Unlock()
	if !ok {
		apierr.Write(w, apierr.NotFound("photo"))
		return
	}

	if p.ContentType != "" {
		w.Header().Set("Content-Type", p.ContentType)
	}
	w.Write(p.Body)
}

// deleteHandler removes a photo; only the owner may delete.
func (s *Service) deleteHandler(w http.ResponseWriter, r *http.Request) {
	env := envelope.Get(r.Context())

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apierr.Write(w, apierr.Validation("malformed photo id"))
		return
	}

	s.mu.Lock()
	p, ok := s.photos[id]
	if ok && p.OwnerID == env.Principal.UserID {
		delete(s.photos, id)
	}
	s.mu.Unlock()

	if !ok {
		apierr.Write(w, apierr.NotFound("photo"))
		return
	}
	if p.OwnerID != env.Principal.UserID {
		apierr.Write(w, apierr.Forbidden("photo belongs to another user"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
