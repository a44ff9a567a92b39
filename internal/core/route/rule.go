package route

import (
	"regexp"
	"strings"
)

// =============================================================================
// Matcher Rules
// =============================================================================

// Rule is a parsed request matcher: an exact host, optionally restricted to a
// path subtree.
type Rule struct {
	Host       string // lowercase, no port
	PathPrefix string // "" matches every path
}

var (
	hostMatcherRegex = regexp.MustCompile("^Host\\(`([^`]+)`\\)$")
	pathMatcherRegex = regexp.MustCompile("^PathPrefix\\(`(/[^`]*)`\\)$")
)

// ParseRule parses a matcher expression of the form
//
//	Host(`example.com`)
//	Host(`example.com`) && PathPrefix(`/blog`)
//
// Host is required and must come first. Anything else fails with
// ErrInvalidRule.
func ParseRule(expr string) (Rule, error) {
	parts := strings.Split(expr, "&&")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) == 0 || len(parts) > 2 {
		return Rule{}, NewRuleError(expr, "expected Host(`...`) with optional PathPrefix")
	}

	m := hostMatcherRegex.FindStringSubmatch(parts[0])
	if m == nil {
		return Rule{}, NewRuleError(expr, "rule must start with a Host matcher")
	}
	rule := Rule{Host: strings.ToLower(m[1])}
	if rule.Host == "" {
		return Rule{}, NewRuleError(expr, "host must not be empty")
	}

	if len(parts) == 2 {
		p := pathMatcherRegex.FindStringSubmatch(parts[1])
		if p == nil {
			return Rule{}, NewRuleError(expr, "second matcher must be PathPrefix(`/...`)")
		}
		rule.PathPrefix = p[1]
	}

	return rule, nil
}

// Matches reports whether the rule matches the given request host and path.
// The host comparison is case-insensitive and ignores any port suffix.
func (r Rule) Matches(host, path string) bool {
	if !strings.EqualFold(StripPort(host), r.Host) {
		return false
	}
	if r.PathPrefix == "" {
		return true
	}
	if !strings.HasPrefix(path, r.PathPrefix) {
		return false
	}
	// "/blog" must not match "/blogroll"
	if len(path) > len(r.PathPrefix) {
		return path[len(r.PathPrefix)] == '/' || strings.HasSuffix(r.PathPrefix, "/")
	}
	return true
}

// Specificity orders rules for resolution: longer path prefixes win.
func (r Rule) Specificity() int {
	return len(r.PathPrefix)
}

// String renders the rule back into matcher syntax.
func (r Rule) String() string {
	if r.PathPrefix == "" {
		return "Host(`" + r.Host + "`)"
	}
	return "Host(`" + r.Host + "`) && PathPrefix(`" + r.PathPrefix + "`)"
}

// StripPort removes a trailing :port from a request host, if present.
// Bracketed IPv6 hosts keep their brackets. Shared by rule matching and the
// ingress redirect path so host normalization stays identical.
func StripPort(host string) string {
	idx := strings.LastIndex(host, ":")
	if idx == -1 {
		return host
	}
	for _, c := range host[idx+1:] {
		if c < '0' || c > '9' {
			return host
		}
	}
	return host[:idx]
}
