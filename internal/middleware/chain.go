// Package middleware implements the uniform request envelope every
// SparkMatch service wraps around its handlers. The chain order is
// normative; reordering changes observable behavior:
//
//  1. error handler
//  2. tracing
//  3. correlation
//  4. user context
//  5. request logging
//  6. rate limiting
//  7. metrics
//  8. audit logging
//  9. authentication
//
// Each layer is a plain func(http.Handler) http.Handler; Chain composes
// them so the first listed layer is outermost.
package middleware

import (
	"net/http"

	"github.com/sparkmatch/sparkmatch/internal/audit"
	"github.com/sparkmatch/sparkmatch/internal/auth"
	"github.com/sparkmatch/sparkmatch/internal/ratelimit"
)

// Middleware is one link of the chain.
type Middleware func(http.Handler) http.Handler

// Chain composes the given middlewares; the first is outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// AuthMode selects the authentication variant of the stack.
type AuthMode int

const (
	// AuthUsers enforces user bearer tokens (the default stack).
	AuthUsers AuthMode = iota
	// AuthAdmin requires admin-scoped tokens (admin service).
	AuthAdmin
	// AuthNone omits the authentication layer (auth service: its job is
	// to issue tokens).
	AuthNone
)

// Options carries the dependencies of a service's stack.
type Options struct {
	Service string
	// Issuer verifies bearer tokens; required unless Mode is AuthNone
	// (the user-context layer then degrades to a no-op).
	Issuer *auth.Issuer
	// Limiter holds the process-local sliding windows.
	Limiter *ratelimit.Limiter
	// Policy is the service's rate-limit policy.
	Policy *ratelimit.Policy
	// AuditRoutes maps "METHOD /route" to catalog operations audited on
	// completion.
	AuditRoutes map[string]audit.Operation
	// Mode selects the authentication variant.
	Mode AuthMode
	// AuthRateLimit additionally applies the brute-force limiter to
	// /auth/* paths (auth service only).
	AuthRateLimit bool
}

// Stack returns the full middleware list in the normative order.
func Stack(opts Options) []Middleware {
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewLimiter()
	}
	if opts.Policy == nil {
		opts.Policy = ratelimit.NewPolicy(opts.Service)
	}

	mws := []Middleware{
		ErrorHandler(opts.Service),
		Tracing(opts.Service),
		Correlation(),
		UserContext(opts.Issuer),
		RequestLogging(opts.Service),
		RateLimit(opts.Service, opts.Limiter, opts.Policy, opts.AuthRateLimit),
		Metrics(opts.Service),
		AuditLogging(opts.AuditRoutes),
	}
	switch opts.Mode {
	case AuthUsers:
		mws = append(mws, Authentication(opts.Issuer))
	case AuthAdmin:
		mws = append(mws, AdminAuthentication(opts.Issuer))
	}
	return mws
}

// Wrap applies the full stack around h.
func Wrap(h http.Handler, opts Options) http.Handler {
	return Chain(h, Stack(opts)...)
}
