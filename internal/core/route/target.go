package route

import (
	"fmt"
	"net/url"
)

// =============================================================================
// Proxy Targets
// =============================================================================

// Target is the destination for a routed request: a backend container
// address plus the TLS posture of the route that leads to it.
type Target struct {
	// Service is the service name the backend belongs to.
	Service string

	// ContainerID is the owning container.
	ContainerID string

	// Address is the backend IP on a network shared with the ingress.
	Address string

	// Port is the container port traffic is forwarded to.
	Port int

	// TLS marks the route as HTTPS-terminated; plain HTTP requests to a TLS
	// route are redirected.
	TLS bool

	// Resolver is the certificate resolver reference for TLS routes.
	Resolver string
}

// CanRoute returns true if the target can accept traffic.
func (t Target) CanRoute() bool {
	return t.Address != "" && t.Port > 0
}

// URL returns the upstream URL for proxying.
func (t Target) URL() *url.URL {
	return &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", t.Address, t.Port),
	}
}
