// Package apierr defines the uniform error envelope shared by every
// SparkMatch service. The wire shape is part of the public contract:
//
//	{"error": {"code": "...", "message": "...", "details": {...}, "retry_after": N}}
//
// HTTP status is carried separately from the code; clients may parse
// error.code but must fall back to the status family for unknown codes.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Catalog of error codes. Grouped by prefix: AUTH (authentication and
// authorization), VAL (validation), BIZ (business rule), EXT (external
// dependency), RATE (rate limit), SYS (internal).
const (
	CodeMissingToken  = "AUTH_001"
	CodeInvalidToken  = "AUTH_002"
	CodeExpiredToken  = "AUTH_003"
	CodeForbidden     = "AUTH_004"
	CodeValidation    = "VAL_001"
	CodeNotFound      = "BIZ_001"
	CodeAlreadyExists = "BIZ_002"
	CodeUpstream      = "EXT_001"
	CodeRateLimited   = "RATE_001"
	CodeInternal      = "SYS_001"
	CodeUnavailable   = "SYS_002"
)

// Error is a fabric error with a catalog code and a fixed HTTP status.
type Error struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	RetryAfter int            `json:"retry_after,omitempty"`

	// Status is the HTTP status to surface. Not serialized; the body
	// carries only the catalog code.
	Status int `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds an Error with an explicit status and code.
func New(status int, code, message string) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

// WithDetails attaches structured details and returns the error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Constructors for the common kinds.

func MissingToken() *Error {
	return New(http.StatusUnauthorized, CodeMissingToken, "Authorization header required")
}

func InvalidToken(reason string) *Error {
	return New(http.StatusUnauthorized, CodeInvalidToken, reason)
}

func ExpiredToken() *Error {
	return New(http.StatusUnauthorized, CodeExpiredToken, "token expired")
}

func Forbidden(message string) *Error {
	return New(http.StatusForbidden, CodeForbidden, message)
}

func Validation(message string) *Error {
	return New(http.StatusUnprocessableEntity, CodeValidation, message)
}

func NotFound(what string) *Error {
	return New(http.StatusNotFound, CodeNotFound, what+" not found")
}

func AlreadyExists(what string) *Error {
	return New(http.StatusConflict, CodeAlreadyExists, what+" already exists")
}

// Upstream wraps a non-transport upstream failure (HTTP 5xx from a
// dependency) as a 502 the caller may choose to retry at its own layer.
func Upstream(service string, status int) *Error {
	return New(http.StatusBadGateway, CodeUpstream,
		fmt.Sprintf("%s returned HTTP %d", service, status)).
		WithDetails(map[string]any{"service": service, "upstream_status": status})
}

// RateLimited carries the mandatory retry_after hint.
func RateLimited(retryAfter int) *Error {
	e := New(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
	e.RetryAfter = retryAfter
	return e
}

func Internal() *Error {
	return New(http.StatusInternalServerError, CodeInternal, "internal server error")
}

// Unavailable covers transport failures and open circuit breakers.
func Unavailable(service string) *Error {
	return New(http.StatusServiceUnavailable, CodeUnavailable, service+" unavailable")
}

// envelope is the wire shape.
type envelope struct {
	Error *Error `json:"error"`
}

// Write serializes err onto w with its status, Content-Type and, when
// retry_after is set, a Retry-After header.
func Write(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	if err.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(err.RetryAfter))
	}
	w.WriteHeader(err.Status)
	json.NewEncoder(w).Encode(envelope{Error: err})
}

// From converts any error into a fabric *Error. Unknown errors map to the
// opaque SYS_001 internal error so handler internals never leak.
func From(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return Internal()
}

// Parse decodes an error envelope from a response body. Used by the
// outbound client to carry upstream envelopes back to the caller.
func Parse(body []byte, status int) *Error {
	var env envelope
	if jsonErr := json.Unmarshal(body, &env); jsonErr == nil && env.Error != nil && env.Error.Code != "" {
		env.Error.Status = status
		return env.Error
	}
	e := New(status, CodeUpstream, http.StatusText(status))
	return e
}
