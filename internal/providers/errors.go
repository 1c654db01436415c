package providers

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a provider-facing failure per spec.md §7's taxonomy.
type Kind string

const (
	KindConfig      Kind = "config"
	KindAuth        Kind = "auth"
	KindNetwork     Kind = "network"
	KindAPI         Kind = "api"
	KindRateLimited Kind = "rate_limited"
	KindTransform   Kind = "transform"
	KindStream      Kind = "stream"
	KindCancelled   Kind = "cancelled"
	KindInternal    Kind = "internal"
)

// AuthReason refines KindAuth failures.
type AuthReason string

const (
	AuthTokenExpired      AuthReason = "token_expired"
	AuthDeviceCodeExpired AuthReason = "device_code_expired"
	AuthAccessDenied      AuthReason = "access_denied"
	AuthFailed            AuthReason = "failed"
)

// Error is the single error type returned by the provider, authenticator,
// and transformer layers. It implements error and Unwrap, mirroring the
// teacher's ProviderError/FailoverReason split from
// internal/agent/providers/errors.go, collapsed into one type per
// concern since this runtime has a single error taxonomy (spec.md §7)
// rather than the teacher's separate failover classification.
type Error struct {
	Kind       Kind
	AuthReason AuthReason
	Status     int
	Message    string
	Code       string
	RetryAfter int // seconds; set when Kind == KindRateLimited
	Retryable  bool
	RequestID  string
	Cause      error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an Error of the given kind with a message.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithStatus sets the HTTP status that produced this error.
func (e *Error) WithStatus(status int) *Error { e.Status = status; return e }

// WithCode sets a backend-specific error code.
func (e *Error) WithCode(code string) *Error { e.Code = code; return e }

// WithRequestID records the backend's request id, if any, for diagnostics.
func (e *Error) WithRequestID(id string) *Error { e.RequestID = id; return e }

// WithRetryAfter sets the retry-after duration (seconds) for a rate-limit error.
func (e *Error) WithRetryAfter(secs int) *Error { e.RetryAfter = secs; return e }

// IsRetryable reports whether this error kind is worth a single retry.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case KindRateLimited:
		return true
	case KindAPI:
		return e.Retryable
	default:
		return false
	}
}

// AsError reports whether err is (or wraps) a *Error, returning it.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// ClassifyStatus maps an HTTP status code from a provider response into
// an Error, following the rules in spec.md §4.3 step 5, grounded on
// classifyStatusCode in internal/agent/providers/errors.go.
func ClassifyStatus(status int, retryAfterSecs int, body string) *Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindAuth, AuthReason: AuthFailed, Status: status, Message: truncate(body, 512)}
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Status: status, RetryAfter: retryAfterSecs, Message: truncate(body, 512)}
	case status >= 500:
		return &Error{Kind: KindAPI, Status: status, Retryable: true, Message: truncate(body, 512)}
	case status >= 400:
		return &Error{Kind: KindAPI, Status: status, Retryable: false, Message: truncate(body, 512)}
	default:
		return nil
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
