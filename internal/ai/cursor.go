package ai

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CursorPromptFile is where the cursor provider leaves prompts
const CursorPromptFile = ".railsplan/cursor_prompt.md"

// cursorProvider hands the prompt to the editor through a file instead of
// calling an API
type cursorProvider struct {
	path string
}

func newCursorProvider(appRoot string) *cursorProvider {
	return &cursorProvider{path: filepath.Join(appRoot, filepath.FromSlash(CursorPromptFile))}
}

func (p *cursorProvider) Name() ProviderName {
	return ProviderCursor
}

func (p *cursorProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("# railsplan prompt\n\n")
	if req.System != "" {
		b.WriteString("## Instructions\n\n")
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}
	b.WriteString("## Request\n\n")
	b.WriteString(req.Prompt)
	b.WriteString("\n")

	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", filepath.Dir(p.path), err)
	}
	if err := os.WriteFile(p.path, []byte(b.String()), 0644); err != nil {
		return nil, fmt.Errorf("failed to write cursor prompt: %w", err)
	}

	return &Response{
		Text:     fmt.Sprintf("Prompt written to %s. Open it in Cursor to continue.", p.path),
		Provider: ProviderCursor,
		Model:    "cursor",
		Handoff:  p.path,
	}, nil
}
