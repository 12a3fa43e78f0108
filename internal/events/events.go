// Package events couples the write-path services to the notification
// fan-out through a RabbitMQ topic exchange. Delivery is persistent and
// at-least-once; consumers must be idempotent against redelivery. Publish
// failures are non-fatal: the data mutation has already committed, so
// publishers log, count a metric and continue.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Exchange is the single topic exchange carrying all domain events.
const Exchange = "dating.events"

// Routing keys used by the fabric.
const (
	KeyMatchCreated  = "match.created"
	KeyMessageSent   = "message.sent"
	KeyMessageRead   = "message.read"
	KeyUserBlocked   = "user.blocked"
	KeyReportCreated = "report.created"
)

// Envelope is the broker message: routing metadata plus an opaque JSON
// payload. The fabric never parses the payload.
type Envelope struct {
	RoutingKey    string          `json:"routing_key"`
	CorrelationID string          `json:"correlation_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope, JSON-encoding the payload.
func NewEnvelope(routingKey, correlationID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		RoutingKey:    routingKey,
		CorrelationID: correlationID,
		OccurredAt:    time.Now().UTC(),
		Payload:       raw,
	}, nil
}

// Publisher is implemented by the AMQP publisher and by test fakes.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// Handler processes one delivered envelope. Returning an error requeues
// the message.
type Handler func(ctx context.Context, env Envelope) error

// MatchPattern reports whether a routing key matches a binding pattern.
// Patterns are dot-separated; "*" matches exactly one segment and segment
// counts must agree, so "match.*" matches "match.created" but not
// "match.mutual.created".
func MatchPattern(pattern, key string) bool {
	pp := strings.Split(pattern, ".")
	kp := strings.Split(key, ".")
	if len(pp) != len(kp) {
		return false
	}
	for i := range pp {
		if pp[i] != "*" && pp[i] != kp[i] {
			return false
		}
	}
	return true
}
