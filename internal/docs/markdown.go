package docs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/railsplan/railsplan/internal/appcontext"
	rstrings "github.com/railsplan/railsplan/internal/util/strings"
)

// MarkdownGenerator renders documents as Markdown. Output depends only on
// the context, never on the clock, so repeated runs are byte-identical.
type MarkdownGenerator struct{}

// NewMarkdownGenerator creates a new Markdown generator
func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{}
}

// Render returns the Markdown for one document type
func (g *MarkdownGenerator) Render(t DocType, ctx *appcontext.Context) (string, error) {
	switch t {
	case DocReadme:
		return g.readme(ctx), nil
	case DocSchema:
		return g.schema(ctx), nil
	case DocAPI:
		return g.api(ctx), nil
	case DocModels:
		return g.models(ctx), nil
	}
	return "", fmt.Errorf("unknown documentation type %q", t)
}

func (g *MarkdownGenerator) readme(ctx *appcontext.Context) string {
	var buf strings.Builder

	buf.WriteString(fmt.Sprintf("# %s\n\n", ctx.AppName))
	buf.WriteString("A Ruby on Rails application.\n\n")

	buf.WriteString("## Overview\n\n")
	buf.WriteString(fmt.Sprintf("- **Models:** %d\n", len(ctx.Models)))
	buf.WriteString(fmt.Sprintf("- **Tables:** %d\n", len(ctx.Schema)))
	buf.WriteString(fmt.Sprintf("- **Routes:** %d\n", len(ctx.Routes)))
	buf.WriteString(fmt.Sprintf("- **Controllers:** %d\n\n", len(ctx.Controllers)))

	if len(ctx.Modules) > 0 {
		buf.WriteString("## Installed Modules\n\n")
		for _, m := range ctx.Modules {
			buf.WriteString(fmt.Sprintf("- `%s`\n", m))
		}
		buf.WriteString("\n")
	}

	buf.WriteString("## Documentation\n\n")
	buf.WriteString("- [Database Schema](docs/schema.md)\n")
	buf.WriteString("- [API Routes](docs/api.md)\n")
	buf.WriteString("- [Models](docs/models.md)\n\n")

	buf.WriteString("## Getting Started\n\n")
	buf.WriteString("```bash\nbin/setup\nbin/rails db:prepare\nbin/rails server\n```\n")
	return buf.String()
}

func (g *MarkdownGenerator) schema(ctx *appcontext.Context) string {
	var buf strings.Builder

	buf.WriteString("# Database Schema\n\n")
	tables := ctx.TableNames()
	if len(tables) == 0 {
		buf.WriteString("No tables defined.\n")
		return buf.String()
	}

	buf.WriteString("## Tables\n\n")
	for _, name := range tables {
		buf.WriteString(fmt.Sprintf("- [%s](#%s)\n", name, name))
	}
	buf.WriteString("\n")

	for _, name := range tables {
		table := ctx.Schema[name]
		buf.WriteString(fmt.Sprintf("## %s\n\n", name))

		buf.WriteString("| Column | Type | Options |\n")
		buf.WriteString("|--------|------|---------|\n")
		for _, col := range sortedColumns(table.Columns) {
			def := table.Columns[col]
			buf.WriteString(fmt.Sprintf("| `%s` | `%s` | %s |\n", col, def.Type, formatOptions(def.Options)))
		}
		buf.WriteString("\n")

		if len(table.Indexes) > 0 {
			buf.WriteString("**Indexes:**\n\n")
			for _, idx := range table.Indexes {
				buf.WriteString(fmt.Sprintf("- `%s`", strings.Join(idx.Columns, ", ")))
				if opts := formatOptions(idx.Options); opts != "-" {
					buf.WriteString(" " + opts)
				}
				buf.WriteString("\n")
			}
			buf.WriteString("\n")
		}
	}
	return buf.String()
}

func (g *MarkdownGenerator) api(ctx *appcontext.Context) string {
	var buf strings.Builder

	buf.WriteString("# API Routes\n\n")
	if len(ctx.Routes) == 0 {
		buf.WriteString("No routes defined.\n")
		return buf.String()
	}

	groups := make(map[string][]appcontext.Route)
	var controllers []string
	for _, r := range ctx.Routes {
		if _, ok := groups[r.Controller]; !ok {
			controllers = append(controllers, r.Controller)
		}
		groups[r.Controller] = append(groups[r.Controller], r)
	}
	sort.Strings(controllers)

	for _, controller := range controllers {
		buf.WriteString(fmt.Sprintf("## %s\n\n", controller))
		buf.WriteString("| Verb | Path | Action |\n")
		buf.WriteString("|------|------|--------|\n")
		for _, r := range groups[controller] {
			action := r.Action
			if action == "" {
				action = "-"
			}
			buf.WriteString(fmt.Sprintf("| %s | `%s` | %s |\n", r.Verb, r.Path, action))
		}
		buf.WriteString("\n")

		// resource controllers get an example payload from their table
		table := controller[strings.LastIndex(controller, "/")+1:]
		if def, ok := ctx.Schema[table]; ok {
			buf.WriteString("### Example\n\n")
			buf.WriteString("```json\n")
			exampleJSON, _ := json.MarshalIndent(exampleRecord(def), "", "  ")
			buf.WriteString(string(exampleJSON))
			buf.WriteString("\n```\n\n")
		}
	}
	return buf.String()
}

func (g *MarkdownGenerator) models(ctx *appcontext.Context) string {
	var buf strings.Builder

	buf.WriteString("# Models\n\n")
	if len(ctx.Models) == 0 {
		buf.WriteString("No models found.\n")
		return buf.String()
	}

	models := append([]appcontext.Model(nil), ctx.Models...)
	sort.Slice(models, func(i, j int) bool { return models[i].ClassName < models[j].ClassName })

	for _, m := range models {
		buf.WriteString(fmt.Sprintf("## %s\n\n", m.ClassName))
		buf.WriteString(fmt.Sprintf("- **File:** `%s`\n", m.File))
		if m.Superclass != "" {
			buf.WriteString(fmt.Sprintf("- **Inherits:** `%s`\n", m.Superclass))
		}
		table := rstrings.Pluralize(rstrings.ToSnakeCase(m.ClassName))
		if _, ok := ctx.Schema[table]; ok {
			buf.WriteString(fmt.Sprintf("- **Table:** [`%s`](schema.md#%s)\n", table, table))
		}
		buf.WriteString("\n")

		if len(m.Associations) > 0 {
			buf.WriteString("### Associations\n\n")
			for _, a := range m.Associations {
				buf.WriteString(fmt.Sprintf("- `%s :%s`", a.Kind, a.Name))
				if a.Options != "" {
					buf.WriteString(fmt.Sprintf(" (%s)", a.Options))
				}
				buf.WriteString("\n")
			}
			buf.WriteString("\n")
		}

		if len(m.Validations) > 0 {
			buf.WriteString("### Validations\n\n")
			for _, v := range m.Validations {
				buf.WriteString(fmt.Sprintf("- `%s` %s", v.Kind, strings.Join(v.Attributes, ", ")))
				if v.Options != "" {
					buf.WriteString(fmt.Sprintf(" (%s)", v.Options))
				}
				buf.WriteString("\n")
			}
			buf.WriteString("\n")
		}

		if len(m.Scopes) > 0 {
			buf.WriteString("### Scopes\n\n")
			for _, s := range m.Scopes {
				buf.WriteString(fmt.Sprintf("- `%s`\n", s.Name))
			}
			buf.WriteString("\n")
		}
	}
	return buf.String()
}

// sortedColumns orders id first, then the rest alphabetically
func sortedColumns(cols map[string]appcontext.Column) []string {
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i] == "id" || names[j] == "id" {
			return names[i] == "id"
		}
		return names[i] < names[j]
	})
	return names
}

func formatOptions(opts map[string]string) string {
	if len(opts) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, opts[k]))
	}
	return strings.Join(parts, ", ")
}

// exampleRecord creates an example object for a table
func exampleRecord(table appcontext.Table) map[string]interface{} {
	example := make(map[string]interface{})
	for name, col := range table.Columns {
		switch col.Type {
		case "primary_key", "integer", "bigint", "references":
			example[name] = 1
		case "decimal", "float":
			example[name] = 9.99
		case "boolean":
			example[name] = true
		case "datetime", "timestamp":
			example[name] = "2024-01-01T00:00:00Z"
		case "date":
			example[name] = "2024-01-01"
		case "uuid":
			example[name] = "550e8400-e29b-41d4-a716-446655440000"
		case "json", "jsonb":
			example[name] = map[string]interface{}{}
		default:
			example[name] = name
		}
	}
	return example
}
