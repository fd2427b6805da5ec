package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrMalformedResponse means a generation answer was not the expected JSON
var ErrMalformedResponse = errors.New("malformed generation response")

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n(.*?)```")

// Generation is the structured answer to a generate request
type Generation struct {
	Description  string            `json:"description"`
	Files        map[string]string `json:"files"`
	Instructions []string          `json:"instructions"`
}

// Paths returns the generated file paths in sorted order
func (g *Generation) Paths() []string {
	paths := make([]string, 0, len(g.Files))
	for p := range g.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// ParseGeneration decodes a generation answer. It accepts bare JSON, JSON
// inside a fenced code block, or JSON surrounded by prose.
func ParseGeneration(text string) (*Generation, error) {
	var candidates []string
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, m[1])
	}
	candidates = append(candidates, text)
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		candidates = append(candidates, text[start:end+1])
	}

	var lastErr error
	for _, c := range candidates {
		var gen Generation
		if err := json.Unmarshal([]byte(strings.TrimSpace(c)), &gen); err != nil {
			lastErr = err
			continue
		}
		if len(gen.Files) == 0 && gen.Description == "" {
			lastErr = errors.New("no files or description")
			continue
		}
		if gen.Files == nil {
			gen.Files = map[string]string{}
		}
		return &gen, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, lastErr)
}
