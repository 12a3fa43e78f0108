// Package notificationsvc consumes the fabric's domain events and fans
// them out to users through the messenger collaborator. Delivery is
// at-least-once from the broker, so the consumer deduplicates on event
// identity; a messenger outage trips the breaker, whose fallback queues
// the notification locally instead of requeueing forever.
package notificationsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sparkmatch/sparkmatch/internal/apierr"
	"github.com/sparkmatch/sparkmatch/internal/auth"
	"github.com/sparkmatch/sparkmatch/internal/events"
	"github.com/sparkmatch/sparkmatch/internal/httpclient"
	"github.com/sparkmatch/sparkmatch/internal/middleware"
	"github.com/sparkmatch/sparkmatch/pkg/envelope"
)

// Patterns is the binding set for the notification queue.
var Patterns = []string{events.KeyMatchCreated, events.KeyMessageSent}

// Notification is one delivered (or queued) user notification.
type Notification struct {
	UserID    int64     `json:"user_id"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	Queued    bool      `json:"queued,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Service consumes events and records what it sent.
type Service struct {
	issuer    *auth.Issuer
	messenger *httpclient.Client

	mu        sync.Mutex
	delivered map[int64][]Notification
	seen      map[string]bool // event identity -> handled
}

// queuedResponse is what the breaker fallback hands back while the
// messenger is down: the notification is accepted locally and the event
// is acked rather than requeued.
func queuedResponse(context.Context) (any, error) {
	return &httpclient.Response{
		Status: http.StatusAccepted,
		Body:   []byte(`{"status":"queued"}`),
	}, nil
}

// NewService wires the notification consumer. messengerURL is the bot
// API base used for push delivery.
func NewService(issuer *auth.Issuer, messengerURL string) *Service {
	return &Service{
		issuer: issuer,
		messenger: httpclient.New(httpclient.Options{
			Name:     "messenger",
			BaseURL:  messengerURL,
			Timeout:  5 * time.Second,
			FailMax:  5,
			Fallback: queuedResponse,
		}),
		delivered: make(map[int64][]Notification),
		seen:      make(map[string]bool),
	}
}

// Handle is the event entrypoint for the subscriber loop. Errors returned
// here requeue the delivery, so only retriable failures propagate.
func (s *Service) Handle(ctx context.Context, env events.Envelope) error {
	switch env.RoutingKey {
	case events.KeyMatchCreated:
		var payload events.MatchCreated
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			log.Error().Err(err).Str("routing_key", env.RoutingKey).Msg("undecodable payload dropped")
			return nil
		}
		return s.notifyMatch(ctx, payload)
	case events.KeyMessageSent:
		var payload events.MessageSent
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			log.Error().Err(err).Str("routing_key", env.RoutingKey).Msg("undecodable payload dropped")
			return nil
		}
		return s.notifyMessage(ctx, payload)
	default:
		// Binding and dispatch drifted; ack rather than poison the queue.
		log.Warn().Str("routing_key", env.RoutingKey).Msg("unexpected routing key ignored")
		return nil
	}
}

// notifyMatch pushes "you matched" to both users. The pair is normalized
// upstream, so the dedup key is stable across redeliveries.
func (s *Service) notifyMatch(ctx context.Context, payload events.MatchCreated) error {
	key := fmt.Sprintf("%s:%d:%d", events.KeyMatchCreated, payload.UserID1, payload.UserID2)
	if s.markSeen(key) {
		return nil
	}

	text := "You have a new match!"
	if err := s.push(ctx, payload.UserID1, "match", text); err != nil {
		s.unmarkSeen(key)
		return err
	}
	if err := s.push(ctx, payload.UserID2, "match", text); err != nil {
		// First push stands; redelivery re-sends only via the messenger's
		// own dedup. Requeue for the second recipient.
		s.unmarkSeen(key)
		return err
	}
	return nil
}

// notifyMessage pushes a new-message notice keyed by message id.
func (s *Service) notifyMessage(ctx context.Context, payload events.MessageSent) error {
	key := fmt.Sprintf("%s:%d", events.KeyMessageSent, payload.MessageID)
	if s.markSeen(key) {
		return nil
	}

	// The sender is known; the recipient set is the conversation's other
	// participant, which the messenger resolves from the conversation id.
	if err := s.pushConversation(ctx, payload); err != nil {
		s.unmarkSeen(key)
		return err
	}
	return nil
}

// push delivers one notification through the messenger client and records
// it. An open breaker yields the queued fallback, which still records.
func (s *Service) push(ctx context.Context, userID int64, kind, text string) error {
	body, _ := json.Marshal(map[string]any{
		"user_id": userID,
		"text":    text,
	})
	resp, err := s.messenger.Do(ctx, http.MethodPost, "/send", body, nil)
	if err != nil {
		return err
	}
	if e := resp.Err(); e != nil {
		return e
	}

	queued := resp.Status == http.StatusAccepted
	s.record(Notification{
		UserID:    userID,
		Kind:      kind,
		Text:      text,
		Queued:    queued,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *Service) pushConversation(ctx context.Context, payload events.MessageSent) error {
	body, _ := json.Marshal(map[string]any{
		"conversation_id": payload.ConversationID,
		"exclude_user_id": payload.SenderID,
		"text":            "New message",
	})
	resp, err := s.messenger.Do(ctx, http.MethodPost, "/send-conversation", body, nil)
	if err != nil {
		return err
	}
	if e := resp.Err(); e != nil {
		return e
	}

	queued := resp.Status == http.StatusAccepted
	s.record(Notification{
		UserID:    payload.SenderID,
		Kind:      "message",
		Text:      "New message",
		Queued:    queued,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// markSeen returns true when the key was already handled, recording it
// otherwise.
func (s *Service) markSeen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[key] {
		return true
	}
	s.seen[key] = true
	return false
}

func (s *Service) unmarkSeen(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, key)
}

func (s *Service) record(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered[n.UserID] = append(s.delivered[n.UserID], n)
}

// Run consumes the durable queue until ctx is done.
func (s *Service) Run(ctx context.Context, amqpURL string) error {
	sub, err := events.NewSubscriber(amqpURL, "notification-service", Patterns)
	if err != nil {
		return err
	}
	defer sub.Close()
	return sub.Consume(ctx, s.Handle)
}

// Handler returns the notification HTTP surface: each user's delivery
// history.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "notification-service",
		})
	})

	r.Get("/notifications", s.listHandler)
	r.Get("/notifications/{user_id}", s.listForUserHandler)

	return middleware.Wrap(r, middleware.Options{
		Service: "notification-service",
		Issuer:  s.issuer,
		Mode:    middleware.AuthUsers,
	})
}

func (s *Service) listHandler(w http.ResponseWriter, r *http.Request) {
	env := envelope.Get(r.Context())
	s.writeList(w, env.Principal.UserID)
}

// listForUserHandler serves another user's history only to that same
// user; there is no cross-user read.
func (s *Service) listForUserHandler(w http.ResponseWriter, r *http.Request) {
	env := envelope.Get(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil {
		apierr.Write(w, apierr.Validation("malformed user id"))
		return
	}
	if id != env.Principal.UserID {
		apierr.Write(w, apierr.Forbidden("cannot read another user's notifications"))
		return
	}
	s.writeList(w, id)
}

func (s *Service) writeList(w http.ResponseWriter, userID int64) {
	s.mu.Lock()
	list := make([]Notification, len(s.delivered[userID]))
	copy(list, s.delivered[userID])
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
