package labels

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNotEnabled means the container does not opt in to routing.
	ErrNotEnabled = errors.New("routing not enabled for container")
	// ErrMissingRule means a router declares no rule label.
	ErrMissingRule = errors.New("router has no rule")
	// ErrMissingPort means no loadbalancer port could be found for a router.
	ErrMissingPort = errors.New("router has no backend port")
	// ErrInvalidPort means the loadbalancer port is not a valid TCP port.
	ErrInvalidPort = errors.New("invalid backend port")
)

// LabelError wraps a label parse failure with the offending key.
type LabelError struct {
	Key     string
	Message string
	Err     error
}

func (e *LabelError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s", e.Key, e.Message)
	}
	return e.Message
}

func (e *LabelError) Unwrap() error { return e.Err }

// =============================================================================
// Label Generation
// =============================================================================

// GenerateLabels generates routing labels for a service.
//
// The generated labels configure the edge to route HTTP(S) traffic to the
// container:
//   - Opts the container in to routing
//   - Creates a router with a Host rule for the hostname
//   - Configures the backend port
//   - If TLS is enabled, creates an additional secure router bound to a
//     certificate resolver
//
// Example (HTTPS):
//
//	labels := GenerateLabels(LabelParams{
//	    Router:    "web",
//	    Hostname:  "wordpress.local",
//	    Port:      80,
//	    EnableTLS: true,
//	})
//	// traefik.enable = true
//	// traefik.http.routers.web.rule = Host(`wordpress.local`)
//	// traefik.http.routers.web.entrypoints = web
//	// traefik.http.routers.web-secure.rule = Host(`wordpress.local`)
//	// traefik.http.routers.web-secure.entrypoints = websecure
//	// traefik.http.routers.web-secure.tls = true
//	// traefik.http.routers.web-secure.tls.certresolver = letsencrypt
//	// traefik.http.services.web.loadbalancer.server.port = 80
func GenerateLabels(params LabelParams) map[string]string {
	rule := fmt.Sprintf("Host(`%s`)", params.Hostname)
	if params.PathPrefix != "" {
		rule = fmt.Sprintf("%s && PathPrefix(`%s`)", rule, params.PathPrefix)
	}

	out := map[string]string{
		EnableKey: "true",

		fmt.Sprintf("%s.http.routers.%s.rule", Prefix, params.Router):        rule,
		fmt.Sprintf("%s.http.routers.%s.entrypoints", Prefix, params.Router): "web",

		fmt.Sprintf("%s.http.services.%s.loadbalancer.server.port", Prefix, params.Router): strconv.Itoa(params.Port),
	}

	if params.EnableTLS {
		resolver := params.Resolver
		if resolver == "" {
			resolver = "letsencrypt"
		}
		secure := params.Router + "-secure"
		out[fmt.Sprintf("%s.http.routers.%s.rule", Prefix, secure)] = rule
		out[fmt.Sprintf("%s.http.routers.%s.entrypoints", Prefix, secure)] = "websecure"
		out[fmt.Sprintf("%s.http.routers.%s.tls", Prefix, secure)] = "true"
		out[fmt.Sprintf("%s.http.routers.%s.tls.certresolver", Prefix, secure)] = resolver
	}

	return out
}

// =============================================================================
// Label Parsing
// =============================================================================

var (
	routerKeyRegex  = regexp.MustCompile(`^` + Prefix + `\.http\.routers\.([A-Za-z0-9_-]+)\.(.+)$`)
	serviceKeyRegex = regexp.MustCompile(`^` + Prefix + `\.http\.services\.([A-Za-z0-9_-]+)\.loadbalancer\.server\.port$`)
)

// ParseLabels recovers router declarations from a container's labels.
// It is the inverse of GenerateLabels and tolerates labels produced by other
// tooling that follows the same vocabulary.
//
// Returns ErrNotEnabled when the container does not carry the enable label;
// callers should skip such containers silently.
func ParseLabels(containerLabels map[string]string) ([]RouterSpec, error) {
	if containerLabels[EnableKey] != "true" {
		return nil, ErrNotEnabled
	}

	type partial struct {
		rule     string
		tls      bool
		resolver string
	}
	routers := make(map[string]*partial)
	ports := make(map[string]int)

	get := func(name string) *partial {
		if p, ok := routers[name]; ok {
			return p
		}
		p := &partial{}
		routers[name] = p
		return p
	}

	for key, value := range containerLabels {
		if m := routerKeyRegex.FindStringSubmatch(key); m != nil {
			p := get(m[1])
			switch m[2] {
			case "rule":
				p.rule = value
			case "tls":
				p.tls = value == "true"
			case "tls.certresolver":
				p.resolver = value
				p.tls = true
			case "entrypoints":
				// entrypoint binding is implied by the TLS flag
			}
			continue
		}
		if m := serviceKeyRegex.FindStringSubmatch(key); m != nil {
			port, err := strconv.Atoi(value)
			if err != nil || port < 1 || port > 65535 {
				return nil, &LabelError{Key: key, Message: "port must be 1-65535", Err: ErrInvalidPort}
			}
			ports[m[1]] = port
		}
	}

	var specs []RouterSpec
	for name, p := range routers {
		if p.rule == "" {
			return nil, &LabelError{
				Key:     fmt.Sprintf("%s.http.routers.%s.rule", Prefix, name),
				Message: "router has no rule",
				Err:     ErrMissingRule,
			}
		}

		port, ok := portFor(name, ports)
		if !ok {
			return nil, &LabelError{
				Key:     fmt.Sprintf("%s.http.services.%s.loadbalancer.server.port", Prefix, name),
				Message: "no backend port for router",
				Err:     ErrMissingPort,
			}
		}

		specs = append(specs, RouterSpec{
			Name:     name,
			Rule:     p.rule,
			TLS:      p.tls,
			Resolver: p.resolver,
			Port:     port,
		})
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs, nil
}

// portFor finds the backend port for a router. Routers named {svc}-secure
// share the port of {svc}; a single declared port applies to all routers.
func portFor(router string, ports map[string]int) (int, bool) {
	if p, ok := ports[router]; ok {
		return p, true
	}
	if base := strings.TrimSuffix(router, "-secure"); base != router {
		if p, ok := ports[base]; ok {
			return p, true
		}
	}
	if len(ports) == 1 {
		for _, p := range ports {
			return p, true
		}
	}
	return 0, false
}
