// Package labels provides pure functions for the container label vocabulary
// consumed by the discovery watcher and emitted by the stack descriptor.
//
// The vocabulary is Traefik-compatible, so stacks written against the common
// label scheme route through pressedge unchanged: a router carries a host
// rule, entrypoints, a TLS flag and a certificate resolver reference, and a
// service carries the backend port.
//
// All functions are pure (no I/O, no side effects).
//
//   - GenerateLabels: produce the label set for a routed service
//   - ParseLabels: recover router declarations from a container's labels
package labels
