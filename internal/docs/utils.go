package docs

import "strings"

// escapesRoot reports whether a relative output path climbs out of the app
// root. Both separators are checked so Windows-style paths are caught too.
func escapesRoot(rel string) bool {
	parts := strings.FieldsFunc(rel, func(r rune) bool { return r == '/' || r == '\\' })
	for _, p := range parts {
		if p == ".." {
			return true
		}
	}
	return false
}
