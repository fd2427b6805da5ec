package ai

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAssistant(t *testing.T, provider Provider) (*Assistant, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "app", "models"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app/models/post.rb"), []byte("class Post < ApplicationRecord\nend\n"), 0644))

	return NewAssistant(AssistantConfig{
		AppRoot:  root,
		Provider: provider,
		Context:  sampleContext(),
	}), root
}

func TestAssistant_Chat(t *testing.T) {
	fake := &fakeProvider{answers: []string{"Posts belong to users."}}
	a, _ := newTestAssistant(t, fake)

	resp, err := a.Chat(context.Background(), "how are posts related?", FormatMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "Posts belong to users.", resp.Text)

	require.Len(t, fake.requests, 1)
	assert.Contains(t, fake.requests[0].Prompt, "Application: Blog")

	entries, err := a.log.Read(LogFilter{Session: a.Session()})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "chat", entries[0].Command)
	assert.Equal(t, "Posts belong to users.", entries[0].Response)
}

func TestAssistant_ExplainAndRefactor(t *testing.T) {
	fake := &fakeProvider{answers: []string{"It is a model."}}
	a, _ := newTestAssistant(t, fake)

	_, err := a.Explain(context.Background(), "app/models/post.rb")
	require.NoError(t, err)
	assert.Contains(t, fake.requests[0].Prompt, "class Post < ApplicationRecord")

	_, err = a.Refactor(context.Background(), "app/models/post.rb")
	require.NoError(t, err)
	assert.Equal(t, FormatRuby, fake.requests[1].Format)

	_, err = a.Explain(context.Background(), "app/models/missing.rb")
	assert.Error(t, err)

	_, err = a.Explain(context.Background(), "../../etc/passwd")
	assert.Error(t, err)
	assert.Len(t, fake.requests, 2)
}

func TestAssistant_Generate(t *testing.T) {
	answer := "```json\n" + `{"description": "Adds comments", "files": {"app/models/comment.rb": "class Comment < ApplicationRecord\n  belongs_to :post\nend\n"}, "instructions": []}` + "\n```"
	fake := &fakeProvider{answers: []string{answer}}
	a, root := newTestAssistant(t, fake)

	result, err := a.Generate(context.Background(), "add comments to posts", WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Adds comments", result.Generation.Description)
	require.Len(t, result.Files, 1)
	assert.Equal(t, FileCreated, result.Files[0].Action)

	data, err := os.ReadFile(filepath.Join(root, "app/models/comment.rb"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "belongs_to :post")
}

func TestAssistant_GenerateMalformed(t *testing.T) {
	fake := &fakeProvider{answers: []string{"Sorry, no JSON today."}}
	a, _ := newTestAssistant(t, fake)

	_, err := a.GenerateTest(context.Background(), "cover Post", "model", WriteOptions{})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestAssistant_GenerateHandoff(t *testing.T) {
	root := t.TempDir()
	a := NewAssistant(AssistantConfig{AppRoot: root, Provider: newCursorProvider(root)})

	result, err := a.Generate(context.Background(), "add tags", WriteOptions{})
	require.NoError(t, err)
	assert.FileExists(t, result.Handoff)
	assert.Nil(t, result.Generation)
}

func TestAssistant_ProviderFailure(t *testing.T) {
	fake := &fakeProvider{err: errors.New("connection refused")}
	a, _ := newTestAssistant(t, fake)

	_, err := a.Fix(context.Background(), "500 on /posts")
	require.ErrorIs(t, err, ErrProviderFailed)
	assert.Contains(t, err.Error(), "connection refused")

	entries, err := a.log.Read(LogFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAssistant_Replay(t *testing.T) {
	fake := &fakeProvider{answers: []string{"first", "second"}}
	a, _ := newTestAssistant(t, fake)

	_, err := a.Chat(context.Background(), "question", FormatMarkdown)
	require.NoError(t, err)
	session := a.Session()

	dry, err := a.Replay(context.Background(), LogFilter{Session: session}, true)
	require.NoError(t, err)
	require.Len(t, dry, 1)
	assert.Nil(t, dry[0].Response)
	assert.Len(t, fake.requests, 1)

	replayed, err := a.Replay(context.Background(), LogFilter{Session: session}, false)
	require.NoError(t, err)
	require.Len(t, replayed, 1)
	assert.Equal(t, "second", replayed[0].Response.Text)
	assert.Equal(t, fake.requests[0].Prompt, fake.requests[1].Prompt)

	entries, err := a.log.Read(LogFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, session, entries[1].Metadata["replay_of"])
}
