package route

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

// ErrInvalidRule is returned by ParseRule for malformed matcher expressions.
var ErrInvalidRule = errors.New("invalid matcher rule")

// RuleError wraps a rule parse failure with the offending expression.
type RuleError struct {
	Expr    string
	Message string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %q: %s", e.Expr, e.Message)
}

func (e *RuleError) Unwrap() error { return ErrInvalidRule }

// NewRuleError creates a new RuleError.
func NewRuleError(expr, message string) *RuleError {
	return &RuleError{Expr: expr, Message: message}
}

// ResolveErrorType classifies resolution failures.
type ResolveErrorType int

const (
	ErrorNotFound ResolveErrorType = iota
	ErrorUnavailable
)

// ResolveError is returned when a request cannot be routed. StatusCode is the
// HTTP status the ingress should answer with.
type ResolveError struct {
	Type       ResolveErrorType
	Host       string
	Message    string
	StatusCode int
}

func (e ResolveError) Error() string {
	return e.Message
}

// NewNotFoundError creates an error for a host no route matches.
func NewNotFoundError(host string) ResolveError {
	return ResolveError{
		Type:       ErrorNotFound,
		Host:       host,
		Message:    fmt.Sprintf("no route for host: %s", host),
		StatusCode: 404,
	}
}

// NewUnavailableError creates an error for a matched route whose backend
// cannot accept traffic.
func NewUnavailableError(host string) ResolveError {
	return ResolveError{
		Type:       ErrorUnavailable,
		Host:       host,
		Message:    fmt.Sprintf("backend unavailable: %s", host),
		StatusCode: 503,
	}
}
