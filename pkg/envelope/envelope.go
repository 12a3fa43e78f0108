// Package envelope defines the per-request metadata record that travels
// the middleware chain, and the context helpers used to read it from
// handlers. The envelope is created at ingress and owned by the chain;
// handlers treat it as read-only except for the principal, which the
// authentication layer sets.
package envelope

import (
	"context"
)

// PrincipalKind discriminates who is making the request.
type PrincipalKind string

const (
	PrincipalUnauthenticated PrincipalKind = "unauthenticated"
	PrincipalUser            PrincipalKind = "user"
	PrincipalAdmin           PrincipalKind = "admin"
)

// Principal is the verified identity behind a request.
type Principal struct {
	Kind    PrincipalKind
	UserID  int64
	AdminID int64
}

// Authenticated reports whether any verified identity is present.
func (p Principal) Authenticated() bool {
	return p.Kind == PrincipalUser || p.Kind == PrincipalAdmin
}

// Envelope is the request-scoped metadata record.
type Envelope struct {
	TraceID        string // 128-bit hex, W3C traceparent compatible
	SpanID         string // 64-bit hex, new per hop
	ParentSpanID   string
	CorrelationID  string
	RequestID      string // per-process, for log joining only
	APIVersion     string
	RouteTarget    string
	IdempotencyKey string

	Principal Principal
}

type contextKey string

const envelopeKey contextKey = "fabric_envelope"

// Set stores the envelope in the context. Called once by the tracing
// middleware; later layers mutate the same record through the pointer.
func Set(ctx context.Context, env *Envelope) context.Context {
	return context.WithValue(ctx, envelopeKey, env)
}

// Get retrieves the request envelope, or nil outside the chain.
func Get(ctx context.Context) *Envelope {
	if v, ok := ctx.Value(envelopeKey).(*Envelope); ok {
		return v
	}
	return nil
}

// CorrelationID is a convenience accessor tolerating a missing envelope.
func CorrelationID(ctx context.Context) string {
	if env := Get(ctx); env != nil {
		return env.CorrelationID
	}
	return ""
}
