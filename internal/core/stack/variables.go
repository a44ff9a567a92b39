package stack

import "regexp"

// =============================================================================
// Environment Variable Substitution
// =============================================================================

// variablePlaceholderRegex matches ${VAR_NAME} or ${VAR_NAME:-default}
var variablePlaceholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExtractVariables extracts environment variable placeholders (${VAR_NAME})
// from raw descriptor content. Returns unique variable names without the ${}
// wrapper, in order of first appearance.
func ExtractVariables(content string) []string {
	seen := make(map[string]bool)
	var vars []string

	for _, match := range variablePlaceholderRegex.FindAllStringSubmatch(content, -1) {
		name := match[1]
		if !seen[name] {
			seen[name] = true
			vars = append(vars, name)
		}
	}
	return vars
}

// ExpandVariables substitutes ${VAR} and ${VAR:-default} placeholders.
// Unset variables without a default expand to the empty string, matching the
// descriptor's substitution semantics.
func ExpandVariables(content string, lookup func(string) (string, bool)) string {
	return variablePlaceholderRegex.ReplaceAllStringFunc(content, func(placeholder string) string {
		match := variablePlaceholderRegex.FindStringSubmatch(placeholder)
		if value, ok := lookup(match[1]); ok {
			return value
		}
		return match[2] // default, or ""
	})
}
