// Package errkind classifies failures raised anywhere in the ETL run into
// the six kinds the orchestrator and scheduler reason about: config, auth,
// transport, data, dependency and fatal errors.
package errkind

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Kind identifies the category of an error.
type Kind int

const (
	Unknown Kind = iota
	Config
	Auth
	Transport
	Data
	Dependency
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "config"
	case Auth:
		return "auth"
	case Transport:
		return "transport"
	case Data:
		return "data"
	case Dependency:
		return "dependency"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a classified Kind and an optional
// Retry-After hint surfaced by the platform that raised it.
type Error struct {
	Kind       Kind
	Platform   string
	Table      string
	RetryAfter int // seconds; zero means no hint
	Err        error
}

func (e *Error) Error() string {
	if e.Platform != "" {
		return e.Kind.String() + " error (" + e.Platform + "): " + e.Err.Error()
	}
	return e.Kind.String() + " error: " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// RetryAfterSeconds implements the hint interface pkg/retry looks for.
func (e *Error) RetryAfterSeconds() int { return e.RetryAfter }

// New wraps err with an explicit Kind.
func New(kind Kind, platform string, err error) *Error {
	return &Error{Kind: kind, Platform: platform, Err: err}
}

// Classify infers a Kind from an unclassified error the way dberror
// classifies database connectivity failures, extended with the auth,
// data and dependency categories an ETL run can surface.
func Classify(err error) Kind {
	if err == nil {
		return Unknown
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Fatal
	}

	errStr := strings.ToLower(err.Error())

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transport
	}

	transportPatterns := []string{
		"connection refused", "connection reset", "connection closed",
		"no such host", "dial tcp", "eof", "broken pipe",
		"network is unreachable", "no route to host", "i/o timeout",
		"client is closing", "server shutdown", "pool is closed",
		"timeout", "deadline exceeded", "timed out",
		"rate limit", "too many requests", "service unavailable",
	}
	for _, p := range transportPatterns {
		if strings.Contains(errStr, p) {
			return Transport
		}
	}

	authPatterns := []string{
		"unauthorized", "authentication failed", "invalid credentials",
		"access denied", "permission denied", "token expired", "invalid token",
		"forbidden",
	}
	for _, p := range authPatterns {
		if strings.Contains(errStr, p) {
			return Auth
		}
	}

	configPatterns := []string{
		"missing required", "invalid configuration", "unknown column",
		"unknown table", "unknown step", "invalid load_mode", "cyclic",
		"circular dependency",
	}
	for _, p := range configPatterns {
		if strings.Contains(errStr, p) {
			return Config
		}
	}

	dataPatterns := []string{
		"schema mismatch", "type mismatch", "row count", "malformed",
		"unexpected field", "decode error", "parse error",
	}
	for _, p := range dataPatterns {
		if strings.Contains(errStr, p) {
			return Data
		}
	}

	return Unknown
}

// IsTransient reports whether err is worth retrying: Transport errors are,
// everything else is not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return Classify(err) == Transport
}
