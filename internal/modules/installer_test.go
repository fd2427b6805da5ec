package modules

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRunner struct {
	scripts []string
	err     error
}

func (f *fakeRunner) RunTemplate(ctx context.Context, appRoot, scriptPath string) error {
	f.scripts = append(f.scripts, scriptPath)
	return f.err
}

// newTestApp creates a minimal Rails app skeleton and returns its root
func newTestApp(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"app/models/user.rb":    "class User < ApplicationRecord\nend\n",
		"config/routes.rb":      routesFixture,
		"config/application.rb": applicationFixture,
		"db/seeds.rb":           "User.create!(email: 'admin@example.com')\n",
		"db/migrate/20240101000000_create_users.rb": "class CreateUsers < ActiveRecord::Migration[7.1]; end\n",
	}
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return root
}

func newTestInstaller(t *testing.T, root string, out *bytes.Buffer, runner HostRunner) *Installer {
	t.Helper()
	inst := NewInstaller(Config{
		AppRoot: root,
		Runner:  runner,
		Logger:  zap.NewNop(),
		Out:     out,
	})
	fixed := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	inst.now = func() time.Time { return fixed }
	inst.registry.now = inst.now
	return inst
}

// snapshot maps every file under root (except the registry and backups) to its content
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		rel, _ := filepath.Rel(root, path)
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, "scaffold/") || strings.HasPrefix(rel, ".railsplan") {
			if d.IsDir() && rel != "scaffold" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			files[rel+"/"] = ""
			return nil
		}
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		files[rel] = string(raw)
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestInstaller_AddAndRemoveTestModule(t *testing.T) {
	root := newTestApp(t)
	writeTemplate(t, root, "test_module", map[string]string{
		"VERSION":   "1.0.0",
		"README.md": "# Test module\n",
	})

	var out bytes.Buffer
	inst := newTestInstaller(t, root, &out, nil)

	res, err := inst.Install(context.Background(), "test_module", InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"app/domains/test_module/README.md"}, res.Files)
	assert.FileExists(t, filepath.Join(root, "app", "domains", "test_module", "README.md"))

	entry, ok := inst.Registry().Get("test_module")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", entry.Version)
	assert.Equal(t, "scaffold/templates/test_module", entry.TemplatePath)
	assert.Contains(t, out.String(), "Installed test_module v1.0.0")

	require.NoError(t, inst.Remove(context.Background(), "test_module"))
	assert.False(t, inst.Registry().Installed("test_module"))
	assert.NoDirExists(t, filepath.Join(root, "app", "domains", "test_module"))
}

func TestInstaller_InstallRemoveRoundTrip(t *testing.T) {
	root := newTestApp(t)
	writeTemplate(t, root, "billing", map[string]string{
		"VERSION": "1.0.0",
		"module.yml": "routes: |\n  resources :plans\napplication: |\n  config.x.billing = true\n",
		"README.md":                           "# Billing\n",
		"app/models/plan.rb":                  "class Plan < ApplicationRecord\nend\n",
		"db/migrate/001_create_plans.rb":      "class CreatePlans < ActiveRecord::Migration[7.1]; end\n",
		"db/migrate/002_create_invoices.rb":   "class CreateInvoices < ActiveRecord::Migration[7.1]; end\n",
		"db/seeds.rb":                         "Plan.create!(name: 'Free')\n",
		"install.rb":                          "gem 'stripe'\n",
	})

	before := snapshot(t, root)

	runner := &fakeRunner{}
	var out bytes.Buffer
	inst := newTestInstaller(t, root, &out, runner)

	res, err := inst.Install(context.Background(), "billing", InstallOptions{})
	require.NoError(t, err)

	assert.Len(t, runner.scripts, 1)
	assert.ElementsMatch(t, []string{"config/routes.rb", "config/application.rb"}, res.Patched)
	assert.True(t, res.Seeded)
	assert.Equal(t, []string{
		"db/migrate/20250601093000_create_plans.rb",
		"db/migrate/20250601093001_create_invoices.rb",
	}, res.Migrations)

	routes, err := os.ReadFile(filepath.Join(root, "config", "routes.rb"))
	require.NoError(t, err)
	assert.Contains(t, string(routes), "  resources :plans\n")

	app, err := os.ReadFile(filepath.Join(root, "config", "application.rb"))
	require.NoError(t, err)
	assert.Contains(t, string(app), "    config.x.billing = true\n")

	seeds, err := os.ReadFile(filepath.Join(root, "db", "seeds.rb"))
	require.NoError(t, err)
	assert.Contains(t, string(seeds), "Plan.create!(name: 'Free')")

	entry, ok := inst.Registry().Get("billing")
	require.True(t, ok)
	assert.Equal(t, res.Migrations, entry.Files)

	require.NoError(t, inst.Remove(context.Background(), "billing"))
	assert.Equal(t, before, snapshot(t, root))

	data, err := inst.Registry().Load()
	require.NoError(t, err)
	assert.Empty(t, data.Installed)
}

func TestInstaller_InstallTwiceRequiresForce(t *testing.T) {
	root := newTestApp(t)
	writeTemplate(t, root, "notes", map[string]string{"README.md": "# Notes\n"})

	var out bytes.Buffer
	inst := newTestInstaller(t, root, &out, nil)

	_, err := inst.Install(context.Background(), "notes", InstallOptions{})
	require.NoError(t, err)

	_, err = inst.Install(context.Background(), "notes", InstallOptions{})
	assert.ErrorIs(t, err, ErrAlreadyInstalled)

	_, err = inst.Install(context.Background(), "notes", InstallOptions{Force: true})
	assert.NoError(t, err)
}

func TestInstaller_SkipsExistingMigrations(t *testing.T) {
	root := newTestApp(t)
	writeTemplate(t, root, "accounts", map[string]string{
		"db/migrate/20230101000000_create_users.rb": "class CreateUsers; end\n",
	})

	var out bytes.Buffer
	inst := newTestInstaller(t, root, &out, nil)

	res, err := inst.Install(context.Background(), "accounts", InstallOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Migrations)
}

func TestInstaller_Dependencies(t *testing.T) {
	root := newTestApp(t)
	writeTemplate(t, root, "billing", map[string]string{"module.yml": "dependencies: [auth]\n"})
	writeTemplate(t, root, "auth", map[string]string{"README.md": "# Auth\n"})

	var out bytes.Buffer
	inst := newTestInstaller(t, root, &out, nil)

	_, err := inst.Install(context.Background(), "billing", InstallOptions{})
	assert.ErrorIs(t, err, ErrMissingDependency)

	_, err = inst.Install(context.Background(), "auth", InstallOptions{})
	require.NoError(t, err)
	_, err = inst.Install(context.Background(), "billing", InstallOptions{})
	assert.NoError(t, err)
}

func TestInstaller_RemoveUnknown(t *testing.T) {
	root := newTestApp(t)
	var out bytes.Buffer
	inst := newTestInstaller(t, root, &out, nil)

	err := inst.Remove(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotInstalled)
}

func TestInstaller_GeneratorFailure(t *testing.T) {
	root := newTestApp(t)
	writeTemplate(t, root, "search", map[string]string{"install.rb": "gem 'pg_search'\n"})

	var out bytes.Buffer
	inst := newTestInstaller(t, root, &out, &fakeRunner{err: assert.AnError})

	_, err := inst.Install(context.Background(), "search", InstallOptions{})
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, inst.Registry().Installed("search"))
}

func TestInstaller_Upgrade(t *testing.T) {
	root := newTestApp(t)
	tplDir := writeTemplate(t, root, "test_module", map[string]string{
		"VERSION":   "1.0.0",
		"README.md": "# Test module\n",
	})

	var out bytes.Buffer
	inst := newTestInstaller(t, root, &out, nil)

	_, err := inst.Install(context.Background(), "test_module", InstallOptions{})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(tplDir, "VERSION"), []byte("1.1.0\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tplDir, "README.md"), []byte("# Test module v1.1\n"), 0644))

	out.Reset()
	res, err := inst.Upgrade(context.Background(), "test_module", UpgradeOptions{})
	require.NoError(t, err)

	assert.Equal(t, UpgradeApplied, res.Status)
	assert.Contains(t, out.String(), "Upgrading test_module from v1.0.0 to v1.1.0")
	assert.Equal(t, []Conflict{{Path: "app/domains/test_module/README.md", Kind: ConflictModified}}, res.Conflicts)

	entry, ok := inst.Registry().Get("test_module")
	require.True(t, ok)
	assert.Equal(t, "1.1.0", entry.Version)
	assert.Equal(t, "1.0.0", entry.PreviousVersion)

	require.NotEmpty(t, res.BackupDir)
	assert.Equal(t, filepath.Join(root, ".railsplan", "backups", "test_module-20250601093000"), res.BackupDir)
	backup, err := os.ReadFile(filepath.Join(res.BackupDir, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Test module\n", string(backup))

	upgraded, err := os.ReadFile(filepath.Join(root, "app", "domains", "test_module", "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Test module v1.1\n", string(upgraded))

	// same version again is a no-op
	res, err = inst.Upgrade(context.Background(), "test_module", UpgradeOptions{})
	require.NoError(t, err)
	assert.Equal(t, UpgradeUpToDate, res.Status)
}

func TestInstaller_UpgradeDropsRoutes(t *testing.T) {
	root := newTestApp(t)
	tplDir := writeTemplate(t, root, "blog", map[string]string{
		"VERSION":    "1.0.0",
		"module.yml": "routes: |\n  resources :posts\n",
		"README.md":  "# Blog\n",
	})

	var out bytes.Buffer
	inst := newTestInstaller(t, root, &out, nil)
	_, err := inst.Install(context.Background(), "blog", InstallOptions{})
	require.NoError(t, err)

	routesPath := filepath.Join(root, "config", "routes.rb")
	routes, err := os.ReadFile(routesPath)
	require.NoError(t, err)
	require.Contains(t, string(routes), "# railsplan:blog:routes begin")

	require.NoError(t, os.Remove(filepath.Join(tplDir, "module.yml")))
	require.NoError(t, os.WriteFile(filepath.Join(tplDir, "VERSION"), []byte("1.1.0\n"), 0644))

	res, err := inst.Upgrade(context.Background(), "blog", UpgradeOptions{NoBackup: true})
	require.NoError(t, err)
	assert.Equal(t, UpgradeApplied, res.Status)
	assert.Equal(t, []string{"config/routes.rb"}, res.Install.Patched)

	routes, err = os.ReadFile(routesPath)
	require.NoError(t, err)
	assert.NotContains(t, string(routes), "railsplan:blog:routes")
	assert.NotContains(t, string(routes), "resources :posts")
}

func TestInstaller_RemoveCleansCreatedMigrateDir(t *testing.T) {
	root := newTestApp(t)
	require.NoError(t, os.RemoveAll(filepath.Join(root, "db", "migrate")))
	writeTemplate(t, root, "billing", map[string]string{
		"VERSION":                        "1.0.0",
		"db/migrate/001_create_plans.rb": "class CreatePlans < ActiveRecord::Migration[7.1]; end\n",
	})
	before := snapshot(t, root)

	var out bytes.Buffer
	inst := newTestInstaller(t, root, &out, nil)
	res, err := inst.Install(context.Background(), "billing", InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"db/migrate/20250601093000_create_plans.rb"}, res.Migrations)

	require.NoError(t, inst.Remove(context.Background(), "billing"))
	assert.NoDirExists(t, filepath.Join(root, "db", "migrate"))
	assert.Equal(t, before, snapshot(t, root))
}

func TestInstaller_UpgradeNoBackup(t *testing.T) {
	root := newTestApp(t)
	tplDir := writeTemplate(t, root, "cms", map[string]string{"VERSION": "1.0.0", "README.md": "# CMS\n"})

	var out bytes.Buffer
	inst := newTestInstaller(t, root, &out, nil)
	_, err := inst.Install(context.Background(), "cms", InstallOptions{})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(tplDir, "VERSION"), []byte("2.0.0"), 0644))

	res, err := inst.Upgrade(context.Background(), "cms", UpgradeOptions{NoBackup: true})
	require.NoError(t, err)
	assert.Empty(t, res.BackupDir)
	assert.NoDirExists(t, filepath.Join(root, ".railsplan", "backups"))
}

func TestInstaller_UpgradeNotInstalled(t *testing.T) {
	root := newTestApp(t)
	writeTemplate(t, root, "cms", map[string]string{"VERSION": "1.0.0"})

	var out bytes.Buffer
	inst := newTestInstaller(t, root, &out, nil)

	_, err := inst.Upgrade(context.Background(), "cms", UpgradeOptions{})
	assert.ErrorIs(t, err, ErrNotInstalled)
}

func TestInstaller_DetectConflicts(t *testing.T) {
	root := newTestApp(t)
	writeTemplate(t, root, "cms", map[string]string{
		"README.md":          "# CMS\n",
		"app/models/page.rb": "class Page < ApplicationRecord\nend\n",
	})

	var out bytes.Buffer
	inst := newTestInstaller(t, root, &out, nil)
	_, err := inst.Install(context.Background(), "cms", InstallOptions{})
	require.NoError(t, err)

	conflicts, err := inst.DetectConflicts("cms")
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	domain := filepath.Join(root, "app", "domains", "cms")
	require.NoError(t, os.WriteFile(filepath.Join(domain, "README.md"), []byte("# My CMS\n"), 0644))
	require.NoError(t, os.Remove(filepath.Join(domain, "app", "models", "page.rb")))

	conflicts, err = inst.DetectConflicts("cms")
	require.NoError(t, err)
	assert.Equal(t, []Conflict{
		{Path: "app/domains/cms/README.md", Kind: ConflictModified},
		{Path: "app/domains/cms/app/models/page.rb", Kind: ConflictMissing},
	}, conflicts)
}

func TestInstaller_Plan(t *testing.T) {
	root := newTestApp(t)
	writeTemplate(t, root, "billing", map[string]string{
		"VERSION":                        "1.1.0",
		"module.yml":                     "routes: \"resources :plans\"\n",
		"README.md":                      "# Billing\n",
		"db/migrate/001_create_plans.rb": "class CreatePlans; end\n",
	})

	var out bytes.Buffer
	inst := newTestInstaller(t, root, &out, nil)

	plan, err := inst.Plan("billing", PlanInstall)
	require.NoError(t, err)
	assert.Empty(t, plan.Blockers)
	assert.Equal(t, "1.1.0", plan.ToVersion)

	kinds := make([]string, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		kinds = append(kinds, s.Kind)
	}
	assert.Equal(t, []string{"copy", "patch", "migration"}, kinds)

	// planning does not touch the filesystem
	assert.NoDirExists(t, filepath.Join(root, "app", "domains", "billing"))

	plan, err = inst.Plan("billing", PlanUpgrade)
	require.NoError(t, err)
	assert.Contains(t, plan.Blockers, "billing is not installed")

	_, err = inst.Plan("billing", "explode")
	assert.Error(t, err)
}
