// Package tracing owns the fabric's distributed-trace header contract.
// Both the W3C traceparent format and the custom X-Trace-ID / X-Span-ID
// headers are accepted inbound; both are emitted outbound, with a fresh
// child span id minted per hop.
package tracing

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// Header names used across the fabric.
const (
	HeaderTraceparent  = "traceparent"
	HeaderTraceID      = "X-Trace-ID"
	HeaderSpanID       = "X-Span-ID"
	HeaderParentSpanID = "X-Parent-Span-ID"
)

// Context holds the identifiers for one hop of a trace.
type Context struct {
	TraceID      string // 32 hex chars (128-bit)
	SpanID       string // 16 hex chars (64-bit)
	ParentSpanID string
}

// NewTraceID returns a random 128-bit trace id in lowercase hex.
func NewTraceID() string {
	var b [16]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// NewSpanID returns a random 64-bit span id in lowercase hex.
func NewSpanID() string {
	var b [8]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// ParseTraceparent parses a W3C traceparent value
// ("00-<trace-id>-<span-id>-<flags>"). It returns the trace id and the
// upstream span id, which becomes this hop's parent.
func ParseTraceparent(value string) (traceID, parentSpanID string, ok bool) {
	parts := strings.Split(strings.TrimSpace(value), "-")
	if len(parts) != 4 {
		return "", "", false
	}
	if len(parts[1]) != 32 || len(parts[2]) != 16 {
		return "", "", false
	}
	if !isHex(parts[1]) || !isHex(parts[2]) {
		return "", "", false
	}
	// all-zero ids are invalid per the W3C spec
	if parts[1] == strings.Repeat("0", 32) || parts[2] == strings.Repeat("0", 16) {
		return "", "", false
	}
	return strings.ToLower(parts[1]), strings.ToLower(parts[2]), true
}

// Traceparent formats the context as a W3C traceparent value with the
// sampled flag set.
func (c Context) Traceparent() string {
	return fmt.Sprintf("00-%s-%s-01", c.TraceID, c.SpanID)
}

// Extract derives this hop's trace context from inbound headers.
// Precedence: traceparent, then the custom headers; missing pieces are
// regenerated. A fresh span id is always minted for the current hop.
func Extract(h http.Header) Context {
	var c Context

	if tp := h.Get(HeaderTraceparent); tp != "" {
		if traceID, parent, ok := ParseTraceparent(tp); ok {
			c.TraceID = traceID
			c.ParentSpanID = parent
		}
	}
	if c.TraceID == "" {
		if tid := h.Get(HeaderTraceID); len(tid) == 32 && isHex(tid) {
			c.TraceID = strings.ToLower(tid)
		}
	}
	if c.ParentSpanID == "" {
		if sid := h.Get(HeaderSpanID); len(sid) == 16 && isHex(sid) {
			c.ParentSpanID = strings.ToLower(sid)
		}
	}
	if c.TraceID == "" {
		c.TraceID = NewTraceID()
	}
	c.SpanID = NewSpanID()
	return c
}

// Child mints the context for an outbound call: same trace, current span
// becomes the parent.
func (c Context) Child() Context {
	return Context{
		TraceID:      c.TraceID,
		SpanID:       NewSpanID(),
		ParentSpanID: c.SpanID,
	}
}

// Inject writes the full header set for this context onto h.
func (c Context) Inject(h http.Header) {
	h.Set(HeaderTraceparent, c.Traceparent())
	h.Set(HeaderTraceID, c.TraceID)
	h.Set(HeaderSpanID, c.SpanID)
	if c.ParentSpanID != "" {
		h.Set(HeaderParentSpanID, c.ParentSpanID)
	}
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
