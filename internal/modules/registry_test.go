package modules

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(filepath.Join(t.TempDir(), "scaffold", "config", "railsplan_modules.json"), zap.NewNop())
}

func TestRegistry_LoadMissingFile(t *testing.T) {
	r := newTestRegistry(t)

	data, err := r.Load()
	require.NoError(t, err)
	assert.NotNil(t, data.Installed)
	assert.Empty(t, data.Installed)
}

func TestRegistry_LoadCorruptJSON(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	path := filepath.Join(t.TempDir(), "railsplan_modules.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	r := NewRegistry(path, zap.New(core))
	data, err := r.Load()
	require.NoError(t, err)

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"installed": {}}`, string(raw))
	assert.Equal(t, 1, logs.FilterMessage("module registry is corrupt, treating as empty").Len())
	assert.True(t, r.Corrupt())
}

func TestRegistry_LoadNullInstalled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "railsplan_modules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"installed": null}`), 0644))

	data, err := NewRegistry(path, nil).Load()
	require.NoError(t, err)
	assert.NotNil(t, data.Installed)
}

func TestRegistry_RecordAndRemove(t *testing.T) {
	r := newTestRegistry(t)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	assert.False(t, r.Installed("billing"))

	entry, err := r.Record("billing", "1.0.0", "scaffold/templates/billing", []string{"db/migrate/1_create_plans.rb"})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", entry.Version)
	assert.Equal(t, fixed, entry.InstalledAt)
	assert.Empty(t, entry.PreviousVersion)

	assert.True(t, r.Installed("billing"))
	assert.Equal(t, []string{"billing"}, r.Names())

	require.NoError(t, r.Remove("billing"))
	assert.False(t, r.Installed("billing"))

	// removing again is a no-op
	require.NoError(t, r.Remove("billing"))
}

func TestRegistry_RecordUpgradeKeepsPreviousVersion(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Record("cms", "1.0.0", "tpl", []string{"a.rb"})
	require.NoError(t, err)

	entry, err := r.Record("cms", "1.1.0", "tpl", []string{"b.rb", "a.rb"})
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", entry.Version)
	assert.Equal(t, "1.0.0", entry.PreviousVersion)
	assert.NotNil(t, entry.UpgradedAt)
	assert.Equal(t, []string{"a.rb", "b.rb"}, entry.Files)

	// persisted
	reloaded, ok := r.Get("cms")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", reloaded.PreviousVersion)
}
