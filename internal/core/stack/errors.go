package stack

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Input validation errors
	ErrEmptyInput = errors.New("stack spec is empty")

	// YAML parsing errors
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// Structure errors
	ErrNoServices         = errors.New("stack must define at least one service")
	ErrServiceNoImage     = errors.New("service must have an image")
	ErrCircularDependency = errors.New("circular dependency detected")

	// Invariant violations
	ErrUnknownDependency  = errors.New("depends_on references unknown service")
	ErrUngatedDependency  = errors.New("service_healthy condition requires a healthcheck on the dependency")
	ErrHostnameMismatch   = errors.New("router host rule does not match the stack hostname")
	ErrAddressOutOfSubnet = errors.New("static address lies outside the declared subnet")
	ErrInvalidSubnet      = errors.New("invalid subnet")
	ErrOrphanVolume       = errors.New("declared volume is not referenced by any service")
	ErrUnknownVolume      = errors.New("mount references undeclared volume")
	ErrUnreachableBackend = errors.New("routed service shares no network with the ingress")
	ErrCertStoreWriters   = errors.New("certificate storage must have exactly one writer")
	ErrNoIngress          = errors.New("ingress service not found")
)

// ValidationError wraps an invariant violation with the field that caused it.
type ValidationError struct {
	Field   string // e.g., "services.web.networks.frontend"
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// ParseError wraps errors with context about where parsing failed.
type ParseError struct {
	Field   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(field, message string, err error) *ParseError {
	return &ParseError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
