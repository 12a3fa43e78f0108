// Package httpclient is the outbound side of the fabric: every
// inter-service call goes through a Client, which propagates the caller's
// correlation id, mints a child span, applies the circuit breaker and an
// optional transport-error retry, and maps failures onto the error
// catalog.
//
// Response-status semantics: 4xx responses are returned to the caller
// (with the upstream envelope available via Response.Err) and are never
// retried and never counted against the breaker. 5xx responses are
// returned as EXT_001 errors so the breaker observes them, but the retry
// policy does not reattempt them. Transport errors are retried within the
// configured attempts and count against the breaker.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/sparkmatch/sparkmatch/internal/apierr"
	"github.com/sparkmatch/sparkmatch/internal/breaker"
	"github.com/sparkmatch/sparkmatch/internal/tracing"
	"github.com/sparkmatch/sparkmatch/pkg/envelope"
)

// HeaderCorrelationID carries the request's correlation id on every
// outbound call.
const HeaderCorrelationID = "X-Correlation-ID"

// HeaderIdempotencyKey is forwarded verbatim when the inbound request
// declared one.
const HeaderIdempotencyKey = "Idempotency-Key"

// RetryPolicy bounds the transport-error retry loop. Zero MaxAttempts
// disables retry.
type RetryPolicy struct {
	MaxAttempts int
	MinWait     time.Duration
	MaxWait     time.Duration
}

// Options configures a Client.
type Options struct {
	// Name is the logical identity of the downstream dependency.
	Name string
	// BaseURL is the downstream service base, e.g. "http://data-service:8008".
	BaseURL string
	// Timeout is the per-call deadline. Defaults to 10s.
	Timeout time.Duration
	// Breaker settings; FailMax/Timeout fall back to package defaults.
	FailMax        uint32
	BreakerTimeout time.Duration
	// Retry is the optional transport-error retry policy.
	Retry RetryPolicy
	// Fallback runs instead of failing while the breaker is open.
	Fallback func(ctx context.Context) (any, error)
}

// Response is a completed downstream exchange.
type Response struct {
	Status int
	Header http.Header
	Body   []byte

	service string
}

// Err maps a >= 400 response onto the error catalog: the parsed upstream
// envelope for 4xx, EXT_001 for 5xx. Nil for success statuses.
func (r *Response) Err() error {
	switch {
	case r.Status < 400:
		return nil
	case r.Status >= 500:
		return apierr.Upstream(r.service, r.Status)
	default:
		return apierr.Parse(r.Body, r.Status)
	}
}

// Client is a resilience-wrapped HTTP client bound to one downstream.
type Client struct {
	name    string
	baseURL string
	http    *http.Client
	breaker *breaker.Breaker
	retry   RetryPolicy
}

// New builds a Client for the named downstream.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		name:    opts.Name,
		baseURL: opts.BaseURL,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			},
		},
		breaker: breaker.New(breaker.Settings{
			Name:     opts.Name,
			FailMax:  opts.FailMax,
			Timeout:  opts.BreakerTimeout,
			Fallback: opts.Fallback,
		}),
		retry: opts.Retry,
	}
}

// Breaker exposes the underlying breaker for tests.
func (c *Client) Breaker() *breaker.Breaker {
	return c.breaker
}

// Do performs one resilience-wrapped call. Extra headers (for example the
// bearer token or an idempotency key) are copied onto the request.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, extra http.Header) (*Response, error) {
	result, err := c.breaker.Execute(ctx, func() (any, error) {
		return c.attempt(ctx, method, path, body, extra)
	})
	if err != nil {
		var fe *apierr.Error
		if errors.As(err, &fe) {
			return nil, fe
		}
		// Transport-class failure after all attempts.
		return nil, apierr.Unavailable(c.name)
	}
	return result.(*Response), nil
}

// attempt runs the retry loop for a single breaker-counted call.
func (c *Client) attempt(ctx context.Context, method, path string, body []byte, extra http.Header) (*Response, error) {
	op := func() (*Response, error) {
		resp, err := c.once(ctx, method, path, body, extra)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err // transport error: retriable
		}
		if resp.Status >= 500 {
			// Observed by the breaker, never reattempted here.
			return nil, backoff.Permanent(resp.Err())
		}
		return resp, nil
	}

	if c.retry.MaxAttempts <= 1 {
		resp, err := op()
		if err != nil {
			return nil, unwrapPermanent(err)
		}
		return resp, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.Multiplier = 1
	if c.retry.MinWait > 0 {
		bo.InitialInterval = c.retry.MinWait
	}
	if c.retry.MaxWait > 0 {
		bo.MaxInterval = c.retry.MaxWait
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(c.retry.MaxAttempts-1)), ctx)

	resp, err := backoff.RetryWithData(op, policy)
	if err != nil {
		return nil, unwrapPermanent(err)
	}
	return resp, nil
}

// once performs a single HTTP exchange with full header propagation.
func (c *Client) once(ctx context.Context, method, path string, body []byte, extra http.Header) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	correlationID := envelope.CorrelationID(ctx)
	if correlationID != "" {
		req.Header.Set(HeaderCorrelationID, correlationID)
	}

	var child tracing.Context
	if env := envelope.Get(ctx); env != nil {
		parent := tracing.Context{TraceID: env.TraceID, SpanID: env.SpanID, ParentSpanID: env.ParentSpanID}
		child = parent.Child()
		if env.IdempotencyKey != "" && req.Header.Get(HeaderIdempotencyKey) == "" {
			req.Header.Set(HeaderIdempotencyKey, env.IdempotencyKey)
		}
	} else {
		child = tracing.Context{TraceID: tracing.NewTraceID(), SpanID: tracing.NewSpanID()}
	}
	child.Inject(req.Header)

	log.Debug().
		Str("event", "trace_propagation").
		Str("target", c.name).
		Str("method", method).
		Str("path", path).
		Str("correlation_id", correlationID).
		Str("trace_id", child.TraceID).
		Str("span_id", child.SpanID).
		Msg("outbound call")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", c.name, err)
	}
	return &Response{
		Status:  resp.StatusCode,
		Header:  resp.Header,
		Body:    data,
		service: c.name,
	}, nil
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
