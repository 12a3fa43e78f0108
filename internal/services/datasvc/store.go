// Package datasvc is the data collaborator: the single owner of
// persistent state. It is the only component that stores idempotency
// keys and the only one that enforces the normalized like-pair unique
// constraint, so racing mutual likes converge on exactly one match.
package datasvc

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sparkmatch/sparkmatch/internal/dataclient"
)

// pairKey normalizes a user pair to (min,max) so the match table has one
// row per pair regardless of like order.
func pairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// match is one stored match row.
type match struct {
	UserID1   int64     `json:"user_id_1"`
	UserID2   int64     `json:"user_id_2"`
	MatchedAt time.Time `json:"matched_at"`
}

// storedReport is a report row with its assigned id.
type storedReport struct {
	ReportID int64 `json:"report_id"`
	dataclient.Report
}

// storedMessage is one stored chat message.
type storedMessage struct {
	MessageID      int64     `json:"message_id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	Content        string    `json:"content"`
	ContentType    string    `json:"content_type"`
	SentAt         time.Time `json:"sent_at"`
}

// Store is the in-memory backing store. State is process-local; the
// fabric's contracts (idempotency, pair uniqueness) live here, not in the
// edges.
type Store struct {
	mu sync.Mutex

	likes    map[string]bool  // "actor:target"
	matches  map[string]match // normalized pair -> match
	profiles map[int64]json.RawMessage
	messages map[int64]storedMessage
	reports  map[int64]dataclient.Report
	blocks   map[string]bool // "blocker:blocked"

	// idempotency maps a key to the response produced by its first use.
	idempotency map[string]dataclient.MessageResult

	// readCursors maps "conversation:user" to the highest read message.
	readCursors map[string]int64

	nextMessageID int64
	nextReportID  int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		likes:       make(map[string]bool),
		matches:     make(map[string]match),
		profiles:    make(map[int64]json.RawMessage),
		messages:    make(map[int64]storedMessage),
		reports:     make(map[int64]dataclient.Report),
		blocks:      make(map[string]bool),
		idempotency: make(map[string]dataclient.MessageResult),
		readCursors: make(map[string]int64),
	}
}

// CreateLike records a swipe. When the reciprocal like already exists the
// pair matches: the first writer creates the match row (MatchCreated
// true), any replay or racing duplicate observes the existing row
// (MatchCreated false, Matched still true).
func (s *Store) CreateLike(like dataclient.Like) dataclient.LikeResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.likes[fmt.Sprintf("%d:%d", like.UserID, like.TargetID)] = true

	reciprocal := s.likes[fmt.Sprintf("%d:%d", like.TargetID, like.UserID)]
	if !reciprocal {
		return dataclient.LikeResult{}
	}

	key := pairKey(like.UserID, like.TargetID)
	if existing, ok := s.matches[key]; ok {
		// unique-constraint violation: already exists
		return dataclient.LikeResult{
			Matched:   true,
			UserID1:   existing.UserID1,
			UserID2:   existing.UserID2,
			MatchedAt: existing.MatchedAt,
		}
	}

	u1, u2 := like.UserID, like.TargetID
	if u1 > u2 {
		u1, u2 = u2, u1
	}
	m := match{UserID1: u1, UserID2: u2, MatchedAt: time.Now().UTC()}
	s.matches[key] = m
	return dataclient.LikeResult{
		Matched:      true,
		MatchCreated: true,
		UserID1:      m.UserID1,
		UserID2:      m.UserID2,
		MatchedAt:    m.MatchedAt,
	}
}

// CreateMessage stores a message. A known idempotency key replays the
// original result with Created false so the edge can suppress the event.
func (s *Store) CreateMessage(msg dataclient.Message, idempotencyKey string) dataclient.MessageResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idempotencyKey != "" {
		if prior, ok := s.idempotency[idempotencyKey]; ok {
			prior.Created = false
			return prior
		}
	}

	s.nextMessageID++
	stored := storedMessage{
		MessageID:      s.nextMessageID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		ContentType:    msg.ContentType,
		SentAt:         time.Now().UTC(),
	}
	s.messages[stored.MessageID] = stored

	result := dataclient.MessageResult{
		MessageID: stored.MessageID,
		SentAt:    stored.SentAt,
		Created:   true,
	}
	if idempotencyKey != "" {
		s.idempotency[idempotencyKey] = result
	}
	return result
}

// CreateReport stores a report and returns its id.
func (s *Store) CreateReport(report dataclient.Report) dataclient.ReportResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextReportID++
	s.reports[s.nextReportID] = report
	return dataclient.ReportResult{ReportID: s.nextReportID}
}

// Reports lists stored reports with their ids, oldest first.
func (s *Store) Reports() []storedReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storedReport, 0, len(s.reports))
	for id := int64(1); id <= s.nextReportID; id++ {
		if r, ok := s.reports[id]; ok {
			out = append(out, storedReport{ReportID: id, Report: r})
		}
	}
	return out
}

// CreateBlock stores a block.
func (s *Store) CreateBlock(block dataclient.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[fmt.Sprintf("%d:%d", block.BlockerID, block.BlockedID)] = true
}

// MarkRead advances the read cursor, never backwards.
func (s *Store) MarkRead(conversationID, userID, upTo int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%d:%d", conversationID, userID)
	if s.readCursors[key] < upTo {
		s.readCursors[key] = upTo
	}
}

// UpsertProfile stores an opaque profile body.
func (s *Store) UpsertProfile(id int64, body json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[id] = body
}

// GetProfile returns the opaque body, or false.
func (s *Store) GetProfile(id int64) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.profiles[id]
	return body, ok
}

// DeleteProfile removes a profile, reporting whether it existed.
func (s *Store) DeleteProfile(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.profiles[id]
	delete(s.profiles, id)
	return ok
}

// MatchesFor lists matches involving the user.
func (s *Store) MatchesFor(userID int64) []match {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []match
	for _, m := range s.matches {
		if m.UserID1 == userID || m.UserID2 == userID {
			out = append(out, m)
		}
	}
	return out
}
