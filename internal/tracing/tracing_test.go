package tracing_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/sparkmatch/sparkmatch/internal/tracing"
)

func TestParseTraceparent(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		wantOK bool
	}{
		{"valid", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", true},
		{"uppercase hex accepted", "00-4BF92F3577B34DA6A3CE929D0E0E4736-00F067AA0BA902B7-01", true},
		{"wrong part count", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7", false},
		{"short trace id", "00-4bf92f35-00f067aa0ba902b7-01", false},
		{"short span id", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa-01", false},
		{"non-hex trace id", "00-zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz-00f067aa0ba902b7-01", false},
		{"all-zero trace id", "00-00000000000000000000000000000000-00f067aa0ba902b7-01", false},
		{"all-zero span id", "00-4bf92f3577b34da6a3ce929d0e0e4736-0000000000000000-01", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			traceID, parent, ok := tracing.ParseTraceparent(tt.value)
			if ok != tt.wantOK {
				t.Fatalf("ParseTraceparent(%q) ok = %v, want %v", tt.value, ok, tt.wantOK)
			}
			if ok {
				if traceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
					t.Errorf("trace id = %q", traceID)
				}
				if parent != "00f067aa0ba902b7" {
					t.Errorf("parent span id = %q", parent)
				}
			}
		})
	}
}

func TestExtractPrefersTraceparent(t *testing.T) {
	h := http.Header{}
	h.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	h.Set("X-Trace-ID", strings.Repeat("a", 32))
	h.Set("X-Span-ID", strings.Repeat("b", 16))

	c := tracing.Extract(h)
	if c.TraceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id = %q, want traceparent's", c.TraceID)
	}
	if c.ParentSpanID != "00f067aa0ba902b7" {
		t.Errorf("parent span = %q, want traceparent's span", c.ParentSpanID)
	}
	if len(c.SpanID) != 16 {
		t.Errorf("span id = %q, want fresh 16-hex id", c.SpanID)
	}
	if c.SpanID == c.ParentSpanID {
		t.Error("span id must be freshly minted, not the upstream span")
	}
}

func TestExtractFallsBackToCustomHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("X-Trace-ID", strings.Repeat("A", 32))
	h.Set("X-Span-ID", strings.Repeat("b", 16))

	c := tracing.Extract(h)
	if c.TraceID != strings.Repeat("a", 32) {
		t.Errorf("trace id = %q, want lowercased custom header", c.TraceID)
	}
	if c.ParentSpanID != strings.Repeat("b", 16) {
		t.Errorf("parent span = %q", c.ParentSpanID)
	}
}

func TestExtractGeneratesWhenAbsent(t *testing.T) {
	c := tracing.Extract(http.Header{})
	if len(c.TraceID) != 32 {
		t.Errorf("trace id length = %d, want 32", len(c.TraceID))
	}
	if len(c.SpanID) != 16 {
		t.Errorf("span id length = %d, want 16", len(c.SpanID))
	}
	if c.ParentSpanID != "" {
		t.Errorf("parent span = %q, want empty for a new trace", c.ParentSpanID)
	}
}

func TestChildKeepsTraceAndChainsSpans(t *testing.T) {
	parent := tracing.Context{
		TraceID:      strings.Repeat("a", 32),
		SpanID:       strings.Repeat("b", 16),
		ParentSpanID: strings.Repeat("c", 16),
	}
	child := parent.Child()
	if child.TraceID != parent.TraceID {
		t.Errorf("child trace id = %q, want parent's", child.TraceID)
	}
	if child.ParentSpanID != parent.SpanID {
		t.Errorf("child parent span = %q, want parent's span id", child.ParentSpanID)
	}
	if child.SpanID == parent.SpanID {
		t.Error("child span id must differ from parent's")
	}
}

func TestInjectWritesFullHeaderSet(t *testing.T) {
	c := tracing.Context{
		TraceID:      strings.Repeat("a", 32),
		SpanID:       strings.Repeat("b", 16),
		ParentSpanID: strings.Repeat("c", 16),
	}
	h := http.Header{}
	c.Inject(h)

	want := "00-" + c.TraceID + "-" + c.SpanID + "-01"
	if got := h.Get("traceparent"); got != want {
		t.Errorf("traceparent = %q, want %q", got, want)
	}
	if got := h.Get("X-Trace-ID"); got != c.TraceID {
		t.Errorf("X-Trace-ID = %q", got)
	}
	if got := h.Get("X-Span-ID"); got != c.SpanID {
		t.Errorf("X-Span-ID = %q", got)
	}
	if got := h.Get("X-Parent-Span-ID"); got != c.ParentSpanID {
		t.Errorf("X-Parent-Span-ID = %q", got)
	}
}
