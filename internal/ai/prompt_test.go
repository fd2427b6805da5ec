package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railsplan/railsplan/internal/appcontext"
)

func sampleContext() *appcontext.Context {
	return &appcontext.Context{
		AppName: "Blog",
		Models: []appcontext.Model{{
			ClassName:    "Post",
			Associations: []appcontext.Association{{Kind: "belongs_to", Name: "user"}},
			Validations:  []appcontext.Validation{{Kind: "validates", Attributes: []string{"title"}}},
		}},
		Schema: map[string]appcontext.Table{
			"posts": {Columns: map[string]appcontext.Column{"id": {Type: "primary_key"}, "title": {Type: "string"}}},
		},
		Routes:  []appcontext.Route{{Verb: "GET", Path: "/posts", Controller: "posts", Action: "index"}},
		Modules: []string{"auth"},
	}
}

func TestSummarizeContext(t *testing.T) {
	summary := SummarizeContext(sampleContext())

	assert.Contains(t, summary, "Application: Blog")
	assert.Contains(t, summary, "- Post (belongs_to :user) validates title")
	assert.Contains(t, summary, "- posts: id:primary_key, title:string")
	assert.Contains(t, summary, "- GET /posts -> posts#index")
	assert.Contains(t, summary, "Installed modules: auth")
}

func TestBuildRequest(t *testing.T) {
	tests := []struct {
		name       string
		in         PromptInput
		wantFormat Format
		wantSystem string
		wantPrompt []string
	}{
		{
			name:       "chat defaults to markdown",
			in:         PromptInput{Task: TaskChat, Instruction: "how are posts related?"},
			wantFormat: FormatMarkdown,
			wantSystem: "Format your answer as markdown.",
			wantPrompt: []string{"## Application context", "## Request\n\nhow are posts related?"},
		},
		{
			name:       "generate forces json",
			in:         PromptInput{Task: TaskGenerate, Instruction: "add comments", Format: FormatMarkdown},
			wantFormat: FormatJSON,
			wantSystem: `"files"`,
			wantPrompt: []string{"add comments"},
		},
		{
			name:       "explain embeds the file",
			in:         PromptInput{Task: TaskExplain, FilePath: "app/models/post.rb", FileContent: "class Post\nend\n"},
			wantFormat: FormatMarkdown,
			wantSystem: "Explain what the given file does",
			wantPrompt: []string{"## File: app/models/post.rb", "```ruby\nclass Post\nend\n```"},
		},
		{
			name:       "generate test names the test type",
			in:         PromptInput{Task: TaskGenerateTest, Instruction: "cover Post", TestType: "request"},
			wantFormat: FormatJSON,
			wantSystem: "Write request tests",
			wantPrompt: []string{"cover Post"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := BuildRequest(sampleContext(), tt.in)
			assert.Equal(t, tt.wantFormat, req.Format)
			assert.Contains(t, req.System, tt.wantSystem)
			for _, want := range tt.wantPrompt {
				assert.Contains(t, req.Prompt, want)
			}
		})
	}
}

func TestBuildRequest_NoContext(t *testing.T) {
	req := BuildRequest(nil, PromptInput{Task: TaskFix, Instruction: "N+1 on posts#index"})
	assert.NotContains(t, req.Prompt, "Application context")
	assert.Contains(t, req.Prompt, "N+1 on posts#index")
}

func TestParseGeneration(t *testing.T) {
	bare := `{"description": "Adds comments", "files": {"app/models/comment.rb": "class Comment < ApplicationRecord\nend\n"}, "instructions": ["bin/rails db:migrate"]}`

	tests := []struct {
		name string
		text string
	}{
		{name: "bare json", text: bare},
		{name: "fenced json", text: "Here you go:\n```json\n" + bare + "\n```\nEnjoy."},
		{name: "unlabelled fence", text: "```\n" + bare + "\n```"},
		{name: "prose around json", text: "Sure! " + bare + " Let me know."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := ParseGeneration(tt.text)
			require.NoError(t, err)
			assert.Equal(t, "Adds comments", gen.Description)
			assert.Equal(t, []string{"app/models/comment.rb"}, gen.Paths())
			assert.Equal(t, []string{"bin/rails db:migrate"}, gen.Instructions)
		})
	}
}

func TestParseGeneration_Malformed(t *testing.T) {
	for _, text := range []string{"", "I cannot help with that.", "```json\n{not json}\n```", `{"unrelated": true}`} {
		_, err := ParseGeneration(text)
		assert.ErrorIs(t, err, ErrMalformedResponse, text)
	}
}
