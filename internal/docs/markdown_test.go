package docs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railsplan/railsplan/internal/appcontext"
)

func testContext() *appcontext.Context {
	return &appcontext.Context{
		AppName: "Blog",
		Models: []appcontext.Model{
			{
				File:         "app/models/user.rb",
				ClassName:    "User",
				Superclass:   "ApplicationRecord",
				Associations: []appcontext.Association{{Kind: "has_many", Name: "posts", Options: "dependent: :destroy"}},
				Validations:  []appcontext.Validation{{Kind: "validates", Attributes: []string{"email"}, Options: "presence: true"}},
				Scopes:       []appcontext.Scope{{Name: "active"}},
			},
			{File: "app/models/post.rb", ClassName: "Post"},
		},
		Schema: map[string]appcontext.Table{
			"users": {
				Columns: map[string]appcontext.Column{
					"id":     {Type: "primary_key"},
					"email":  {Type: "string", Options: map[string]string{"null": "false"}},
					"active": {Type: "boolean"},
				},
				Indexes: []appcontext.Index{{Columns: []string{"email"}, Options: map[string]string{"unique": "true"}}},
			},
		},
		Routes: []appcontext.Route{
			{Verb: "GET", Path: "/users", Controller: "users", Action: "index"},
			{Verb: "GET", Path: "/", Controller: "pages", Action: "home"},
			{Verb: "MOUNT", Path: "/cable", Controller: "ActionCable.server"},
		},
		Modules: []string{"auth"},
	}
}

func TestMarkdownGenerator_Render(t *testing.T) {
	g := NewMarkdownGenerator()
	ctx := testContext()

	tests := []struct {
		docType DocType
		want    []string
	}{
		{
			docType: DocReadme,
			want:    []string{"# Blog\n", "- **Models:** 2", "- `auth`", "[Database Schema](docs/schema.md)"},
		},
		{
			docType: DocSchema,
			want: []string{
				"## users\n",
				"| `id` | `primary_key` | - |\n| `active` | `boolean` | - |\n| `email` | `string` | null: false |",
				"- `email` unique: true",
			},
		},
		{
			docType: DocAPI,
			want: []string{
				"## pages\n",
				"| GET | `/users` | index |",
				"| MOUNT | `/cable` | - |",
				"### Example\n\n```json\n{\n  \"active\": true,\n  \"email\": \"email\",\n  \"id\": 1\n}\n```",
			},
		},
		{
			docType: DocModels,
			want: []string{
				"## Post\n\n- **File:** `app/models/post.rb`\n\n## User\n",
				"- **Table:** [`users`](schema.md#users)",
				"- `has_many :posts` (dependent: :destroy)",
				"- `validates` email (presence: true)",
				"- `active`",
			},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.docType), func(t *testing.T) {
			out, err := g.Render(tt.docType, ctx)
			require.NoError(t, err)
			for _, want := range tt.want {
				assert.Contains(t, out, want)
			}

			again, err := g.Render(tt.docType, ctx)
			require.NoError(t, err)
			assert.Equal(t, out, again)
		})
	}
}

func TestMarkdownGenerator_EmptyContext(t *testing.T) {
	g := NewMarkdownGenerator()
	ctx := &appcontext.Context{AppName: "Empty"}

	schema, err := g.Render(DocSchema, ctx)
	require.NoError(t, err)
	assert.Contains(t, schema, "No tables defined.")

	api, err := g.Render(DocAPI, ctx)
	require.NoError(t, err)
	assert.Contains(t, api, "No routes defined.")

	_, err = g.Render("openapi", ctx)
	assert.Error(t, err)
}

func TestGenerator_Generate(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# Hand written\n"), 0644))

	results, err := NewGenerator(&Config{AppRoot: root}, nil, nil).Generate(testContext())
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, Result{Type: DocReadme, Path: "README.md", Action: ActionSkipped}, results[0])
	assert.Equal(t, ActionCreated, results[1].Action)
	assert.Equal(t, "docs/schema.md", results[1].Path)
	assert.FileExists(t, filepath.Join(root, "docs", "api.md"))
	assert.FileExists(t, filepath.Join(root, "docs", "models.md"))

	readme, err := os.ReadFile(filepath.Join(root, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Hand written\n", string(readme))

	results, err = NewGenerator(&Config{AppRoot: root, Types: []DocType{DocReadme, DocSchema}, Overwrite: true}, nil, nil).Generate(testContext())
	require.NoError(t, err)
	assert.Equal(t, ActionOverwritten, results[0].Action)
	assert.Equal(t, ActionUnchanged, results[1].Action)
}

func TestGenerator_DryRun(t *testing.T) {
	root := t.TempDir()

	results, err := NewGenerator(&Config{AppRoot: root, Types: []DocType{DocSchema}, DryRun: true}, nil, nil).Generate(testContext())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ActionCreated, results[0].Action)
	assert.NoDirExists(t, filepath.Join(root, "docs"))
}

func TestParseDocType(t *testing.T) {
	types, err := ParseDocType("")
	require.NoError(t, err)
	assert.Equal(t, AllTypes, types)

	types, err = ParseDocType("api")
	require.NoError(t, err)
	assert.Equal(t, []DocType{DocAPI}, types)

	_, err = ParseDocType("html")
	assert.Error(t, err)
}

func TestEscapesRoot(t *testing.T) {
	assert.True(t, escapesRoot("../README.md"))
	assert.True(t, escapesRoot(`docs\..\..\x`))
	assert.False(t, escapesRoot("docs/schema.md"))
}
