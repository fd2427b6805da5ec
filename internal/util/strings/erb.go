package strings

import "regexp"

// erbEnvPattern matches the ERB env lookups found in Rails-style YAML:
//
//	<%= ENV['KEY'] %>
//	<%= ENV["KEY"] %>
//	<%= ENV.fetch('KEY') %>
//	<%= ENV.fetch("KEY", "fallback") %>
//	<%= ENV.fetch("KEY") { "fallback" } %>
var erbEnvPattern = regexp.MustCompile(`<%=\s*ENV(?:\[\s*['"]([A-Za-z0-9_]+)['"]\s*\]|\.fetch\(\s*['"]([A-Za-z0-9_]+)['"]\s*(?:,\s*['"]([^'"]*)['"]\s*)?\)(?:\s*\{\s*['"]([^'"]*)['"]\s*\})?)\s*%>`)

// ExpandERBWith replaces ERB environment lookups using lookup. Unset
// variables expand to the fetch fallback, or "". Any other ERB is left
// untouched.
func ExpandERBWith(s string, lookup func(string) (string, bool)) string {
	return erbEnvPattern.ReplaceAllStringFunc(s, func(match string) string {
		m := erbEnvPattern.FindStringSubmatch(match)
		key := m[1]
		if key == "" {
			key = m[2]
		}
		if v, ok := lookup(key); ok {
			return v
		}
		if m[3] != "" {
			return m[3]
		}
		return m[4]
	})
}
