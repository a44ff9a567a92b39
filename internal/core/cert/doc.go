// Package cert contains the pure logic of the certificate lifecycle: the
// issuance state machine, the renewal window calculation, the domain policy
// and the failure backoff schedule.
//
// The I/O half (ACME exchange, key material, storage) lives in
// internal/shell/acme and drives this package with events.
package cert
