package modules

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// finalEndPattern matches a top-level `end`, which closes the routes block
	finalEndPattern = regexp.MustCompile(`^end\s*$`)

	// classEndPattern matches the indented `end` closing the Application class
	classEndPattern = regexp.MustCompile(`^\s+end\s*$`)
)

func markerBegin(module, kind string) string {
	return fmt.Sprintf("# railsplan:%s:%s begin", module, kind)
}

func markerEnd(module, kind string) string {
	return fmt.Sprintf("# railsplan:%s:%s end", module, kind)
}

// hasBlock reports whether the marker-guarded block for module/kind is present
func hasBlock(content, module, kind string) bool {
	return strings.Contains(content, markerBegin(module, kind))
}

// insertBlock inserts snippet, wrapped in marker comments, before the last
// line matching anchor. It falls back to the final top-level `end` and then
// to the end of the file. Returns the content unchanged when the block is
// already present.
func insertBlock(content, snippet, module, kind, indent string, anchor *regexp.Regexp) (string, bool) {
	if strings.TrimSpace(snippet) == "" || hasBlock(content, module, kind) {
		return content, false
	}

	lines := strings.Split(content, "\n")

	at := lastMatch(lines, anchor)
	if at < 0 && anchor != finalEndPattern {
		at = lastMatch(lines, finalEndPattern)
	}
	if at < 0 {
		at = len(lines)
		if at > 0 && lines[at-1] == "" {
			at--
		}
	}

	block := []string{indent + markerBegin(module, kind)}
	for _, l := range strings.Split(strings.TrimRight(snippet, "\n"), "\n") {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			block = append(block, "")
			continue
		}
		block = append(block, indent+l)
	}
	block = append(block, indent+markerEnd(module, kind))

	out := make([]string, 0, len(lines)+len(block))
	out = append(out, lines[:at]...)
	out = append(out, block...)
	out = append(out, lines[at:]...)
	return strings.Join(out, "\n"), true
}

// removeBlock strips the marker-guarded block for module/kind, including
// the marker lines
func removeBlock(content, module, kind string) (string, bool) {
	lines := strings.Split(content, "\n")
	begin, end := -1, -1
	for i, l := range lines {
		trimmed := strings.TrimSpace(l)
		if begin < 0 && trimmed == markerBegin(module, kind) {
			begin = i
			continue
		}
		if begin >= 0 && trimmed == markerEnd(module, kind) {
			end = i
			break
		}
	}
	if begin < 0 || end < 0 {
		return content, false
	}

	out := append(append([]string{}, lines[:begin]...), lines[end+1:]...)
	return strings.Join(out, "\n"), true
}

// appendBlock appends a marker-guarded block at the end of content
func appendBlock(content, body, module, kind string) (string, bool) {
	if strings.TrimSpace(body) == "" || hasBlock(content, module, kind) {
		return content, false
	}

	var b strings.Builder
	b.WriteString(content)
	if content != "" && !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(markerBegin(module, kind))
	b.WriteString("\n")
	b.WriteString(strings.TrimRight(body, "\n"))
	b.WriteString("\n")
	b.WriteString(markerEnd(module, kind))
	b.WriteString("\n")
	return b.String(), true
}

func lastMatch(lines []string, re *regexp.Regexp) int {
	for i := len(lines) - 1; i >= 0; i-- {
		if re.MatchString(lines[i]) {
			return i
		}
	}
	return -1
}
