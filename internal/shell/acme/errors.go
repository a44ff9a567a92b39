// Package acme obtains and renews TLS certificates over the ACME protocol.
package acme

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrPolicyDenied is returned when issuance is requested for a domain
	// outside the configured allow-list.
	ErrPolicyDenied = errors.New("domain not allowed by issuance policy")

	// ErrStorageLocked is returned when another process holds the
	// certificate store write lock.
	ErrStorageLocked = errors.New("certificate store is locked by another writer")

	// ErrNoCertificate is returned when no stored certificate exists for
	// a domain.
	ErrNoCertificate = errors.New("no certificate for domain")

	// ErrChallengeFailed is returned when the HTTP-01 challenge did not
	// validate.
	ErrChallengeFailed = errors.New("challenge validation failed")

	// ErrBackoffActive is returned when a retry is attempted before the
	// failure backoff has elapsed.
	ErrBackoffActive = errors.New("retry backoff still active")
)

// CertError wraps errors with the domain and operation that failed.
type CertError struct {
	Op     string
	Domain string
	Err    error
}

func (e *CertError) Error() string {
	if e.Domain != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Domain, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CertError) Unwrap() error {
	return e.Err
}

// NewCertError creates a new CertError.
func NewCertError(op, domain string, err error) *CertError {
	return &CertError{Op: op, Domain: domain, Err: err}
}
