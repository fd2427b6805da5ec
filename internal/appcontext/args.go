package appcontext

import (
	"sort"
	"strings"
)

// splitArgs splits a Ruby argument list on top-level commas, ignoring
// commas nested in brackets, braces, parens or string literals
func splitArgs(s string) []string {
	var (
		args  []string
		depth int
		quote rune
		start int
	)

	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(' || r == '[' || r == '{':
			depth++
		case r == ')' || r == ']' || r == '}':
			if depth > 0 {
				depth--
			}
		case r == ',' && depth == 0:
			if arg := strings.TrimSpace(s[start:i]); arg != "" {
				args = append(args, arg)
			}
			start = i + 1
		}
	}
	if arg := strings.TrimSpace(s[start:]); arg != "" {
		args = append(args, arg)
	}
	return args
}

// parseOptions turns `key: value` and `:key => value` arguments into a map
func parseOptions(args []string) map[string]string {
	opts := make(map[string]string)
	for _, arg := range args {
		key, value, ok := splitOption(arg)
		if !ok {
			continue
		}
		opts[key] = value
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

func splitOption(arg string) (string, string, bool) {
	if strings.HasPrefix(arg, ":") {
		if k, v, ok := strings.Cut(arg[1:], "=>"); ok {
			return strings.TrimSpace(k), unquote(strings.TrimSpace(v)), true
		}
		return "", "", false
	}
	k, v, ok := strings.Cut(arg, ":")
	if !ok || k == "" || strings.ContainsAny(k, " \"'[(") {
		return "", "", false
	}
	return k, unquote(strings.TrimSpace(v)), true
}

// unquote strips one level of Ruby string or symbol quoting
func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return strings.TrimPrefix(s, ":")
}

// parseNameList reads `["a", "b"]`, `[:a, :b]`, `"a"` or `:a`
func parseNameList(s string) []string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		var names []string
		for _, arg := range splitArgs(s[1 : len(s)-1]) {
			names = append(names, unquote(arg))
		}
		return names
	}
	return []string{unquote(s)}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stripComment removes a trailing `# comment` outside of string literals
func stripComment(line string) string {
	var quote rune
	for i, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '#':
			// string interpolation only happens inside quotes
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
