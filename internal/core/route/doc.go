// Package route provides the dynamic route table mapping (host, path)
// matchers to upstream backends.
//
// The table is mutated by the discovery watcher as containers come and go,
// and read by the ingress listener on every request through a lock-free
// snapshot. Rules follow the Host(`h`) / PathPrefix(`/p`) matcher syntax of
// the label vocabulary.
package route
