// Package docs renders Markdown documentation for a Rails application from
// its extracted context.
package docs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/railsplan/railsplan/internal/appcontext"
)

// DocType is one of the documents the generator can write
type DocType string

const (
	DocReadme DocType = "readme"
	DocSchema DocType = "schema"
	DocAPI    DocType = "api"
	DocModels DocType = "models"
)

// AllTypes lists every document in generation order
var AllTypes = []DocType{DocReadme, DocSchema, DocAPI, DocModels}

// ParseDocType validates a TYPE argument. An empty string selects all.
func ParseDocType(s string) ([]DocType, error) {
	if s == "" || s == "all" {
		return AllTypes, nil
	}
	for _, t := range AllTypes {
		if string(t) == s {
			return []DocType{t}, nil
		}
	}
	return nil, fmt.Errorf("unknown documentation type %q (expected readme, schema, api, models or all)", s)
}

// OutputPath returns the app-relative file a document is written to
func (t DocType) OutputPath() string {
	switch t {
	case DocReadme:
		return "README.md"
	default:
		return filepath.ToSlash(filepath.Join("docs", string(t)+".md"))
	}
}

// Config holds configuration for documentation generation
type Config struct {
	// AppRoot is where README.md and docs/ live
	AppRoot string

	// Types specifies which documents to generate
	Types []DocType

	// Overwrite replaces existing files; otherwise they are skipped
	Overwrite bool

	// DryRun reports what would be written without touching disk
	DryRun bool
}

// Action is what happened to one document
type Action string

const (
	ActionCreated     Action = "created"
	ActionOverwritten Action = "overwritten"
	ActionSkipped     Action = "skipped"
	ActionUnchanged   Action = "unchanged"
)

// Result reports one generated document
type Result struct {
	Type   DocType
	Path   string
	Action Action
}

// Generator writes documentation for a context
type Generator struct {
	config   *Config
	markdown *MarkdownGenerator
	logger   *zap.Logger
	out      io.Writer
}

// NewGenerator creates a new documentation generator
func NewGenerator(config *Config, logger *zap.Logger, out io.Writer) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	return &Generator{
		config:   config,
		markdown: NewMarkdownGenerator(),
		logger:   logger,
		out:      out,
	}
}

// Generate renders every configured document for ctx
func (g *Generator) Generate(ctx *appcontext.Context) ([]Result, error) {
	types := g.config.Types
	if len(types) == 0 {
		types = AllTypes
	}

	results := make([]Result, 0, len(types))
	for _, t := range types {
		rel := t.OutputPath()
		if escapesRoot(rel) {
			return results, fmt.Errorf("refusing to write outside the app: %s", rel)
		}

		content, err := g.markdown.Render(t, ctx)
		if err != nil {
			return results, err
		}

		path := filepath.Join(g.config.AppRoot, filepath.FromSlash(rel))
		result := Result{Type: t, Path: rel, Action: ActionCreated}

		if existing, err := os.ReadFile(path); err == nil {
			switch {
			case string(existing) == content:
				result.Action = ActionUnchanged
			case g.config.Overwrite:
				result.Action = ActionOverwritten
			default:
				result.Action = ActionSkipped
			}
		}
		results = append(results, result)

		if g.config.DryRun || result.Action == ActionSkipped || result.Action == ActionUnchanged {
			continue
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return results, fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return results, fmt.Errorf("failed to write %s: %w", rel, err)
		}
		g.logger.Debug("wrote documentation", zap.String("path", rel), zap.String("action", string(result.Action)))
	}
	return results, nil
}
