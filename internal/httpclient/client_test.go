package httpclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sparkmatch/sparkmatch/internal/apierr"
	"github.com/sparkmatch/sparkmatch/internal/httpclient"
	"github.com/sparkmatch/sparkmatch/pkg/envelope"
)

func newClient(baseURL string, failMax uint32, retries int) *httpclient.Client {
	return httpclient.New(httpclient.Options{
		Name:           "downstream",
		BaseURL:        baseURL,
		Timeout:        2 * time.Second,
		FailMax:        failMax,
		BreakerTimeout: time.Minute,
		Retry: httpclient.RetryPolicy{
			MaxAttempts: retries,
			MinWait:     time.Millisecond,
			MaxWait:     5 * time.Millisecond,
		},
	})
}

func TestSuccessReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL, 3, 1)
	resp, err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("status = %d", resp.Status)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("body = %q", resp.Body)
	}
	if resp.Err() != nil {
		t.Errorf("Err() = %v, want nil", resp.Err())
	}
}

func TestClientErrorIsReturnedNotRetriedNotCounted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		apierr.Write(w, apierr.NotFound("profile"))
	}))
	defer srv.Close()

	c := newClient(srv.URL, 1, 3)
	for i := 0; i < 3; i++ {
		resp, err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil)
		if err != nil {
			t.Fatalf("Do: %v (4xx must not surface as a transport error)", err)
		}
		if resp.Status != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.Status)
		}
		var fe *apierr.Error
		if respErr := resp.Err(); !errors.As(respErr, &fe) || fe.Code != apierr.CodeNotFound {
			t.Errorf("Err() = %v, want BIZ_001", respErr)
		}
	}
	// One server call per Do: no retry, and the breaker (FailMax 1) never
	// tripped despite three "failures" in a row.
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("server calls = %d, want 3", n)
	}
}

func TestServerErrorCountedNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newClient(srv.URL, 3, 3)
	for i := 0; i < 3; i++ {
		_, err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil)
		var fe *apierr.Error
		if !errors.As(err, &fe) || fe.Code != apierr.CodeUpstream {
			t.Fatalf("call %d: err = %v, want EXT_001", i+1, err)
		}
	}
	// 5xx is never reattempted by the retry policy: one hit per Do.
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("server calls = %d, want 3", n)
	}

	// Three consecutive 5xx tripped the breaker: the next call
	// short-circuits without touching the server.
	_, err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil)
	var fe *apierr.Error
	if !errors.As(err, &fe) || fe.Code != apierr.CodeUnavailable {
		t.Errorf("err while open = %v, want SYS_002", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("server calls after open = %d, want 3 (no probe)", n)
	}
}

func TestTransportErrorRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			// Kill the connection mid-exchange: a transport-class failure.
			if hj, ok := w.(http.Hijacker); ok {
				conn, _, _ := hj.Hijack()
				conn.Close()
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newClient(srv.URL, 5, 3)
	resp, err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil)
	if err != nil {
		t.Fatalf("Do after retries: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.Status)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("server calls = %d, want 3 (two failures + success)", n)
	}
}

func TestTransportErrorExhaustedMapsToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := newClient(srv.URL, 5, 2)
	_, err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil)
	var fe *apierr.Error
	if !errors.As(err, &fe) || fe.Code != apierr.CodeUnavailable {
		t.Errorf("err = %v, want SYS_002", err)
	}
}

func TestHeaderPropagation(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	env := &envelope.Envelope{
		TraceID:        "4bf92f3577b34da6a3ce929d0e0e4736",
		SpanID:         "00f067aa0ba902b7",
		CorrelationID:  "corr-123",
		IdempotencyKey: "idem-456",
	}
	ctx := envelope.Set(context.Background(), env)

	c := newClient(srv.URL, 3, 1)
	if _, err := c.Do(ctx, http.MethodPost, "/x", []byte(`{}`), nil); err != nil {
		t.Fatalf("Do: %v", err)
	}

	if got.Get("X-Correlation-ID") != "corr-123" {
		t.Errorf("correlation id = %q, want corr-123", got.Get("X-Correlation-ID"))
	}
	if got.Get("Idempotency-Key") != "idem-456" {
		t.Errorf("idempotency key = %q, want idem-456", got.Get("Idempotency-Key"))
	}
	if got.Get("X-Trace-ID") != env.TraceID {
		t.Errorf("trace id = %q, want the caller's trace", got.Get("X-Trace-ID"))
	}
	if got.Get("X-Parent-Span-ID") != env.SpanID {
		t.Errorf("parent span = %q, want the caller's span", got.Get("X-Parent-Span-ID"))
	}
	if got.Get("X-Span-ID") == env.SpanID || got.Get("X-Span-ID") == "" {
		t.Errorf("span id = %q, want a fresh child span", got.Get("X-Span-ID"))
	}
}
