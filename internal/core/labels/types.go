package labels

// =============================================================================
// Label Vocabulary Types
// =============================================================================

// Prefix is the label namespace the discovery watcher consumes.
// Traefik-compatible so existing stack descriptors keep working.
const Prefix = "traefik"

// EnableKey marks a container as routable. Containers without it are ignored.
const EnableKey = Prefix + ".enable"

// LabelParams contains parameters for generating routing labels.
type LabelParams struct {
	// Router is the router/service name, unique within the stack
	// (e.g., "web" or "abc123-web").
	Router string

	// Hostname is the domain for the host rule (e.g., "wordpress.local").
	Hostname string

	// PathPrefix optionally restricts the router to a path subtree.
	PathPrefix string

	// Port is the container port traffic is forwarded to.
	Port int

	// EnableTLS adds a websecure router with TLS termination.
	EnableTLS bool

	// Resolver is the certificate resolver reference for the TLS router.
	// Defaults to "letsencrypt" when EnableTLS is set and Resolver is empty.
	Resolver string
}

// RouterSpec is one router declaration recovered from a container's labels.
type RouterSpec struct {
	Name     string // router name, e.g., "web-secure"
	Rule     string // raw rule, e.g., "Host(`wordpress.local`)"
	TLS      bool   // TLS termination requested
	Resolver string // certificate resolver reference ("" when TLS is off)
	Port     int    // backend container port
}
