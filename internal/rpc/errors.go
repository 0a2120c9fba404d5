package rpc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies every error an RPC client can surface, per the
// engine's error taxonomy. Callers switch on Kind, not on error strings.
type ErrorKind string

const (
	// NotFound means the requested position is beyond the chain's tip.
	// Not retryable.
	NotFound ErrorKind = "not_found"
	// Skipped is Solana-only: the slot exists but no leader produced a
	// block for it. Not retryable, not an error condition.
	Skipped ErrorKind = "skipped"
	// RateLimited means the upstream returned HTTP 429 or an equivalent
	// JSON-RPC code. Retryable with exponential backoff.
	RateLimited ErrorKind = "rate_limited"
	// Transient covers timeouts, 5xx responses, and connection errors.
	// Retryable with linear backoff.
	Transient ErrorKind = "transient"
	// Fatal covers auth failures, malformed responses, and unknown
	// methods. Not retryable; surfaces to the supervisor.
	Fatal ErrorKind = "fatal"
)

// Error wraps an upstream failure with its classified Kind so callers can
// branch on taxonomy rather than string-match.
type Error struct {
	Kind   ErrorKind
	Op     string // operation name, e.g. "GetBlock"
	Source string // which upstream produced this error, e.g. "local", "public"
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s[%s]: %s", e.Op, e.Source, e.Kind)
	}
	return fmt.Sprintf("%s[%s]: %s: %v", e.Op, e.Source, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified Error.
func NewError(kind ErrorKind, op, source string, err error) *Error {
	return &Error{Kind: kind, Op: op, Source: source, Err: err}
}

// KindOf extracts the ErrorKind from err, defaulting to Fatal when err
// does not carry one — an unclassified error from an RPC client is a bug,
// and Fatal is the safe default because it is not retried silently.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Kind
	}
	return Fatal
}

// Retryable reports whether the error's classification permits an
// automatic retry of the same request.
func Retryable(err error) bool {
	switch KindOf(err) {
	case RateLimited, Transient:
		return true
	default:
		return false
	}
}

// throttlePatterns are substrings seen in upstream error bodies that don't
// carry a structured rate-limit code but mean the same thing.
var throttlePatterns = []string{
	"rate limit",
	"too many requests",
	"quota exceeded",
	"slow down",
	"429",
}

// DetectThrottlePattern reports whether body looks like a rate-limit
// response even though the transport didn't surface HTTP 429 or a
// structured JSON-RPC code for it.
func DetectThrottlePattern(body string) bool {
	lower := strings.ToLower(body)
	for _, p := range throttlePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
