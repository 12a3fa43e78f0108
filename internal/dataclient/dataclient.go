// Package dataclient is the resilience-wrapped client for the data
// collaborator, the single owner of persistent state. Every other service
// reaches the store exclusively through this client, so correlation ids,
// child spans, the circuit breaker and the idempotency key all propagate
// uniformly. Bodies the fabric does not own are forwarded opaque.
package dataclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sparkmatch/sparkmatch/internal/httpclient"
)

// Like is the write request for a swipe.
type Like struct {
	UserID          int64  `json:"user_id"`
	TargetID        int64  `json:"target_id"`
	InteractionType string `json:"interaction_type"`
}

// LikeResult reports whether the like completed the pair. Matched stays
// true on a unique-constraint replay so racing mutual likes both see the
// match, while MatchCreated is true for exactly one of them.
type LikeResult struct {
	Matched      bool      `json:"matched"`
	MatchCreated bool      `json:"match_created"`
	UserID1      int64     `json:"user_id_1,omitempty"`
	UserID2      int64     `json:"user_id_2,omitempty"`
	MatchedAt    time.Time `json:"matched_at,omitempty"`
}

// Message is the write request for a chat message.
type Message struct {
	ConversationID int64  `json:"conversation_id"`
	SenderID       int64  `json:"sender_id"`
	Content        string `json:"content"`
	ContentType    string `json:"content_type"`
}

// MessageResult reports the stored message. Created is false when an
// idempotency key replayed an earlier insert.
type MessageResult struct {
	MessageID int64     `json:"message_id"`
	SentAt    time.Time `json:"sent_at"`
	Created   bool      `json:"created"`
}

// Report is the write request for a user report.
type Report struct {
	ReporterID     int64  `json:"reporter_id"`
	ConversationID int64  `json:"conversation_id"`
	MessageID      int64  `json:"message_id,omitempty"`
	Reason         string `json:"reason"`
}

// ReportResult carries the stored report id.
type ReportResult struct {
	ReportID int64 `json:"report_id"`
}

// Block is the write request for a user block.
type Block struct {
	BlockerID int64 `json:"blocker_id"`
	BlockedID int64 `json:"blocked_id"`
}

// Client wraps the outbound resilience client with the data service's
// typed operations.
type Client struct {
	http *httpclient.Client
}

// New builds the client. FailMax 3 / 30s open interval are the data-path
// defaults; retry is limited to transport errors per fabric policy.
func New(baseURL string) *Client {
	return &Client{
		http: httpclient.New(httpclient.Options{
			Name:           "data-service",
			BaseURL:        baseURL,
			Timeout:        10 * time.Second,
			FailMax:        3,
			BreakerTimeout: 30 * time.Second,
			Retry: httpclient.RetryPolicy{
				MaxAttempts: 3,
				MinWait:     100 * time.Millisecond,
				MaxWait:     2 * time.Second,
			},
		}),
	}
}

// Raw exposes the underlying client for opaque pass-through calls.
func (c *Client) Raw() *httpclient.Client {
	return c.http
}

// CreateLike records a swipe and reports match status.
func (c *Client) CreateLike(ctx context.Context, like Like) (*LikeResult, error) {
	var result LikeResult
	if err := c.postJSON(ctx, "/likes", like, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateMessage stores a chat message. The idempotency key, when present,
// is forwarded so the store can deduplicate the insert.
func (c *Client) CreateMessage(ctx context.Context, msg Message, idempotencyKey string) (*MessageResult, error) {
	var extra http.Header
	if idempotencyKey != "" {
		extra = http.Header{}
		extra.Set(httpclient.HeaderIdempotencyKey, idempotencyKey)
	}
	var result MessageResult
	if err := c.postJSON(ctx, "/messages", msg, extra, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateReport stores a report.
func (c *Client) CreateReport(ctx context.Context, report Report) (*ReportResult, error) {
	var result ReportResult
	if err := c.postJSON(ctx, "/reports", report, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateBlock stores a block.
func (c *Client) CreateBlock(ctx context.Context, block Block) error {
	return c.postJSON(ctx, "/blocks", block, nil, nil)
}

// MarkRead advances a participant's read cursor.
func (c *Client) MarkRead(ctx context.Context, conversationID, userID, upToMessageID int64) error {
	body := map[string]int64{
		"conversation_id":  conversationID,
		"user_id":          userID,
		"up_to_message_id": upToMessageID,
	}
	return c.postJSON(ctx, "/messages/read", body, nil, nil)
}

// Forward passes an opaque request through to the data service and
// returns the downstream response unchanged. Used by the profile and
// media edges, which do not own the body shape.
func (c *Client) Forward(ctx context.Context, method, path string, body []byte) (*httpclient.Response, error) {
	return c.http.Do(ctx, method, path, body, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, extra http.Header, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}
	resp, err := c.http.Do(ctx, http.MethodPost, path, raw, extra)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
