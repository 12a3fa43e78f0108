package notificationsvc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sparkmatch/sparkmatch/internal/auth"
	"github.com/sparkmatch/sparkmatch/internal/events"
	"github.com/sparkmatch/sparkmatch/internal/services/notificationsvc"
)

func matchEnvelope(t *testing.T, u1, u2 int64) events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope(events.KeyMatchCreated, "corr-1", events.MatchCreated{
		UserID1:   u1,
		UserID2:   u2,
		MatchedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func messageEnvelope(t *testing.T, messageID int64) events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope(events.KeyMessageSent, "corr-2", events.MessageSent{
		ConversationID: 5,
		SenderID:       1,
		MessageID:      messageID,
		Content:        "hi",
		SentAt:         time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestMatchCreatedNotifiesBothUsers(t *testing.T) {
	var sends int32
	messenger := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&sends, 1)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"sent"}`))
	}))
	defer messenger.Close()

	svc := notificationsvc.NewService(auth.NewIssuer("test-secret"), messenger.URL)
	if err := svc.Handle(context.Background(), matchEnvelope(t, 1, 2)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if n := atomic.LoadInt32(&sends); n != 2 {
		t.Errorf("messenger sends = %d, want 2 (one per user)", n)
	}
}

func TestRedeliveryDeduplicated(t *testing.T) {
	var sends int32
	messenger := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&sends, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer messenger.Close()

	svc := notificationsvc.NewService(auth.NewIssuer("test-secret"), messenger.URL)
	env := matchEnvelope(t, 1, 2)

	for i := 0; i < 3; i++ {
		if err := svc.Handle(context.Background(), env); err != nil {
			t.Fatalf("redelivery %d: %v", i+1, err)
		}
	}
	if n := atomic.LoadInt32(&sends); n != 2 {
		t.Errorf("messenger sends = %d, want 2 despite redelivery", n)
	}

	// A different pair is a new event.
	if err := svc.Handle(context.Background(), matchEnvelope(t, 3, 4)); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&sends); n != 4 {
		t.Errorf("messenger sends = %d, want 4", n)
	}
}

func TestMessageSentDeduplicatedByMessageID(t *testing.T) {
	var sends int32
	messenger := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&sends, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer messenger.Close()

	svc := notificationsvc.NewService(auth.NewIssuer("test-secret"), messenger.URL)

	svc.Handle(context.Background(), messageEnvelope(t, 10))
	svc.Handle(context.Background(), messageEnvelope(t, 10)) // redelivery
	svc.Handle(context.Background(), messageEnvelope(t, 11))

	if n := atomic.LoadInt32(&sends); n != 2 {
		t.Errorf("messenger sends = %d, want 2", n)
	}
}

func TestMalformedPayloadAcked(t *testing.T) {
	svc := notificationsvc.NewService(auth.NewIssuer("test-secret"), "http://127.0.0.1:1")

	env := events.Envelope{
		RoutingKey: events.KeyMatchCreated,
		Payload:    json.RawMessage(`{not json`),
	}
	// Returning nil acks the delivery: a payload that can never decode
	// must not be requeued forever.
	if err := svc.Handle(context.Background(), env); err != nil {
		t.Errorf("Handle(malformed) = %v, want nil", err)
	}
}

func TestUnknownRoutingKeyAcked(t *testing.T) {
	svc := notificationsvc.NewService(auth.NewIssuer("test-secret"), "http://127.0.0.1:1")
	env := events.Envelope{RoutingKey: "user.blocked", Payload: json.RawMessage(`{}`)}
	if err := svc.Handle(context.Background(), env); err != nil {
		t.Errorf("Handle(unbound key) = %v, want nil", err)
	}
}

func TestMessengerOutageFallsBackToQueued(t *testing.T) {
	// Nothing listens here: every call is a transport failure, and after
	// FailMax the breaker opens and the queued fallback takes over.
	svc := notificationsvc.NewService(auth.NewIssuer("test-secret"), "http://127.0.0.1:1")

	var lastErr error
	for i := int64(0); i < 8; i++ {
		lastErr = svc.Handle(context.Background(), matchEnvelope(t, 100+i, 200+i))
	}
	// Once the breaker is open the fallback accepts the notification, so
	// handling succeeds and the delivery is acked.
	if lastErr != nil {
		t.Errorf("Handle with open breaker = %v, want nil via queued fallback", lastErr)
	}
}

func TestListNotifications(t *testing.T) {
	messenger := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer messenger.Close()

	issuer := auth.NewIssuer("test-secret")
	svc := notificationsvc.NewService(issuer, messenger.URL)
	svc.Handle(context.Background(), matchEnvelope(t, 1, 2))

	h := svc.Handler()
	token, _ := issuer.IssueAccess(1, "alice")
	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}
	var resp struct {
		Notifications []notificationsvc.Notification `json:"notifications"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Notifications) != 1 {
		t.Fatalf("notifications for user 1 = %d, want 1", len(resp.Notifications))
	}
	if resp.Notifications[0].Kind != "match" {
		t.Errorf("kind = %q, want match", resp.Notifications[0].Kind)
	}

	// Another user cannot read user 1's history.
	otherToken, _ := issuer.IssueAccess(2, "bob")
	req = httptest.NewRequest(http.MethodGet, "/notifications/1", nil)
	req.Header.Set("Authorization", "Bearer "+otherToken)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("cross-user read: status = %d, want 403", w.Code)
	}
}
