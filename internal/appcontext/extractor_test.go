package appcontext

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticModules []string

func (s staticModules) InstalledModules() ([]string, error) {
	return append([]string(nil), s...), nil
}

type stubScanner struct {
	calls int
}

func (s *stubScanner) ScanModel(file string, src []byte) (*Model, []ParseWarning) {
	s.calls++
	return &Model{File: file, ClassName: "Stub"}, nil
}

var fixedNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func writeAppFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newFixtureApp(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeAppFile(t, root, "config/application.rb", "module Blog\n  class Application < Rails::Application\n  end\nend\n")
	writeAppFile(t, root, "app/models/user.rb", userModel)
	writeAppFile(t, root, "app/models/post.rb", "class Post < ApplicationRecord\n  belongs_to :user\nend\n")
	writeAppFile(t, root, "app/models/concerns/trackable.rb", "module Trackable\nend\n")
	writeAppFile(t, root, "app/models/ignored.rb", "class Ignored < ApplicationRecord\nend\n")
	writeAppFile(t, root, "app/controllers/posts_controller.rb", "class PostsController < ApplicationController\n  def index\n  end\nend\n")
	writeAppFile(t, root, "db/schema.rb", schemaFixture)
	writeAppFile(t, root, "config/routes.rb", routesFixture)
	writeAppFile(t, root, ".gitignore", "app/models/ignored.rb\n")

	return root
}

func TestExtract(t *testing.T) {
	root := newFixtureApp(t)

	e := NewExtractor(WithModuleSource(staticModules{"payments", "auth"}), WithClock(func() time.Time { return fixedNow }))
	ctx, err := e.Extract(root)
	require.NoError(t, err)

	assert.Equal(t, "Blog", ctx.AppName)
	assert.True(t, ctx.GeneratedAt.Equal(fixedNow))
	assert.Len(t, ctx.Hash, 64)

	require.Len(t, ctx.Models, 2)
	assert.Equal(t, "Post", ctx.Models[0].ClassName)
	assert.Equal(t, "User", ctx.Models[1].ClassName)
	_, ok := ctx.Model("Ignored")
	assert.False(t, ok)

	assert.Equal(t, []string{"posts_tags", "users"}, ctx.TableNames())
	assert.Len(t, ctx.Routes, 16)
	require.Len(t, ctx.Controllers, 1)
	assert.Equal(t, []string{"index"}, ctx.Controllers[0].Actions)
	assert.Equal(t, []string{"auth", "payments"}, ctx.Modules)

	assert.Len(t, ctx.Warnings, 4)
}

func TestExtract_Idempotent(t *testing.T) {
	root := newFixtureApp(t)
	e := NewExtractor(WithClock(func() time.Time { return fixedNow }))

	first, err := e.Extract(root)
	require.NoError(t, err)
	second, err := e.Extract(root)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	fp, err := e.Fingerprint(root)
	require.NoError(t, err)
	assert.Equal(t, first.Hash, fp)
}

func TestExtract_MinimalApp(t *testing.T) {
	root := t.TempDir()

	ctx, err := NewExtractor().Extract(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(root), ctx.AppName)
	assert.Empty(t, ctx.Models)
	assert.Empty(t, ctx.Schema)
	assert.Empty(t, ctx.Routes)
	assert.NotNil(t, ctx.Modules)
}

func TestExtract_MissingRoot(t *testing.T) {
	_, err := NewExtractor().Extract(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestExtract_CustomScanner(t *testing.T) {
	root := newFixtureApp(t)
	scanner := &stubScanner{}

	ctx, err := NewExtractor(WithScanner(scanner)).Extract(root)
	require.NoError(t, err)

	// post.rb, user.rb and concerns/trackable.rb
	assert.Equal(t, 3, scanner.calls)
	for _, m := range ctx.Models {
		assert.Equal(t, "Stub", m.ClassName)
	}
}

func TestExtract_ExtraModelDirs(t *testing.T) {
	root := newFixtureApp(t)
	writeAppFile(t, root, "app/domains/billing/models/invoice.rb", "class Invoice < ApplicationRecord\nend\n")

	ctx, err := NewExtractor(WithExtraModelDirs("app/domains")).Extract(root)
	require.NoError(t, err)

	_, ok := ctx.Model("Invoice")
	assert.True(t, ok)
}

func TestStale(t *testing.T) {
	root := newFixtureApp(t)
	e := NewExtractor()

	stale, err := e.Stale(root)
	require.NoError(t, err)
	assert.True(t, stale, "no stored context yet")

	_, err = e.Refresh(root)
	require.NoError(t, err)

	stale, err = e.Stale(root)
	require.NoError(t, err)
	assert.False(t, stale)

	writeAppFile(t, root, "app/models/ignored.rb", "class Ignored < ApplicationRecord\n  has_many :things\nend\n")
	stale, err = e.Stale(root)
	require.NoError(t, err)
	assert.False(t, stale, "ignored files do not count")

	writeAppFile(t, root, "app/models/user.rb", userModel+"# touched\n")
	stale, err = e.Stale(root)
	require.NoError(t, err)
	assert.True(t, stale)

	_, err = e.Refresh(root)
	require.NoError(t, err)
	writeAppFile(t, root, "app/models/comment.rb", "class Comment < ApplicationRecord\nend\n")
	stale, err = e.Stale(root)
	require.NoError(t, err)
	assert.True(t, stale, "new model file")
}

func TestStale_ModulesChanged(t *testing.T) {
	root := newFixtureApp(t)
	installed := &staticModules{}
	e := NewExtractor(WithModuleSource(installed))

	ctx, err := e.Refresh(root)
	require.NoError(t, err)
	assert.Empty(t, ctx.Modules)

	*installed = staticModules{"billing"}
	stale, err := e.Stale(root)
	require.NoError(t, err)
	assert.True(t, stale, "module added")

	ctx, err = e.Refresh(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"billing"}, ctx.Modules)

	stale, err = e.Stale(root)
	require.NoError(t, err)
	assert.False(t, stale)

	*installed = staticModules{}
	stale, err = e.Stale(root)
	require.NoError(t, err)
	assert.True(t, stale, "module removed")
}

func TestStale_UnreadableContext(t *testing.T) {
	root := newFixtureApp(t)
	writeAppFile(t, root, ".railsplan/context.json", "{not json")

	stale, err := NewExtractor().Stale(root)
	require.NoError(t, err)
	assert.True(t, stale)
}

func TestStore(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoContext)

	ctx := &Context{
		AppName:     "Blog",
		GeneratedAt: fixedNow,
		Hash:        "abc",
		Models:      []Model{{File: "app/models/user.rb", ClassName: "User", Validations: []Validation{}, Associations: []Association{}, Scopes: []Scope{}}},
		Schema:      map[string]Table{},
		Routes:      []Route{},
		Controllers: []Controller{},
		Modules:     []string{"auth"},
	}
	require.NoError(t, store.Save(ctx))
	assert.FileExists(t, filepath.Join(root, ".railsplan", "context.json"))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, ctx, loaded)
}
