package cert

import "strings"

// =============================================================================
// Issuance Policy
// =============================================================================

// Policy is the allow-list of domains certificates may be requested for.
// Issuance is only ever attempted for configured domains, never for
// undeclared hosts a client happens to present in SNI.
type Policy struct {
	allowed map[string]struct{}
}

// NewPolicy creates a policy from the configured domains. Matching is exact
// and case-insensitive; wildcards are not supported.
func NewPolicy(domains []string) *Policy {
	allowed := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			allowed[d] = struct{}{}
		}
	}
	return &Policy{allowed: allowed}
}

// Allows reports whether a certificate may be requested for the host.
// A trailing port is ignored.
func (p *Policy) Allows(host string) bool {
	host = strings.ToLower(host)
	if idx := strings.LastIndex(host, ":"); idx != -1 && !strings.ContainsAny(host[idx+1:], "abcdefghijklmnopqrstuvwxyz") {
		host = host[:idx]
	}
	_, ok := p.allowed[host]
	return ok
}

// Domains returns the configured domains.
func (p *Policy) Domains() []string {
	out := make([]string, 0, len(p.allowed))
	for d := range p.allowed {
		out = append(out, d)
	}
	return out
}
