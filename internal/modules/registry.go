package modules

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
)

// DefaultRegistryPath is the registry location relative to the app root
const DefaultRegistryPath = "scaffold/config/railsplan_modules.json"

// Entry records one installed module
type Entry struct {
	Version         string     `json:"version"`
	InstalledAt     time.Time  `json:"installed_at"`
	PreviousVersion string     `json:"previous_version,omitempty"`
	UpgradedAt      *time.Time `json:"upgraded_at,omitempty"`
	TemplatePath    string     `json:"template_path,omitempty"`
	// Files lists app-relative paths created outside the module's domain
	// folder (copied migrations) so that removal can delete them.
	Files []string `json:"files,omitempty"`
}

// RegistryData is the on-disk shape of the registry file
type RegistryData struct {
	Installed map[string]*Entry `json:"installed"`
}

func emptyRegistryData() *RegistryData {
	return &RegistryData{Installed: make(map[string]*Entry)}
}

// Registry persists installed module versions to a single JSON file.
// There is no locking: the CLI is the only writer.
type Registry struct {
	path   string
	logger *zap.Logger
	now    func() time.Time
}

// NewRegistry creates a registry backed by the JSON file at path
func NewRegistry(path string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		path:   path,
		logger: logger,
		now:    time.Now,
	}
}

// Path returns the registry file location
func (r *Registry) Path() string {
	return r.path
}

// Load reads the registry. A missing file is an empty registry. Corrupt
// JSON is logged and also treated as empty; it is never an error.
func (r *Registry) Load() (*RegistryData, error) {
	raw, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return emptyRegistryData(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry %s: %w", r.path, err)
	}

	data := emptyRegistryData()
	if err := json.Unmarshal(raw, data); err != nil {
		r.logger.Warn("module registry is corrupt, treating as empty",
			zap.String("path", r.path),
			zap.Error(err))
		return emptyRegistryData(), nil
	}
	if data.Installed == nil {
		data.Installed = make(map[string]*Entry)
	}
	for name, entry := range data.Installed {
		if entry == nil {
			delete(data.Installed, name)
		}
	}
	return data, nil
}

// Corrupt reports whether the registry file exists but does not parse
func (r *Registry) Corrupt() bool {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return false
	}
	var probe RegistryData
	return json.Unmarshal(raw, &probe) != nil
}

// Save writes the registry file, creating its directory when needed
func (r *Registry) Save(data *RegistryData) error {
	if data == nil {
		data = emptyRegistryData()
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}
	raw = append(raw, '\n')

	if err := os.WriteFile(r.path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write registry %s: %w", r.path, err)
	}
	return nil
}

// Reset overwrites the registry with an empty one
func (r *Registry) Reset() error {
	return r.Save(emptyRegistryData())
}

// Installed reports whether name has a registry entry
func (r *Registry) Installed(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Get returns the entry for name
func (r *Registry) Get(name string) (*Entry, bool) {
	data, err := r.Load()
	if err != nil {
		r.logger.Warn("failed to load module registry", zap.Error(err))
		return nil, false
	}
	entry, ok := data.Installed[name]
	return entry, ok
}

// Record creates or updates the entry for name. Re-recording an installed
// module at a different version keeps the old one as PreviousVersion.
func (r *Registry) Record(name, version, templatePath string, files []string) (*Entry, error) {
	data, err := r.Load()
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	entry, exists := data.Installed[name]
	if !exists {
		entry = &Entry{InstalledAt: now}
		data.Installed[name] = entry
	} else if entry.Version != version {
		entry.PreviousVersion = entry.Version
		entry.UpgradedAt = &now
	}

	entry.Version = version
	entry.TemplatePath = templatePath
	entry.Files = mergeFiles(entry.Files, files)

	if err := r.Save(data); err != nil {
		return nil, err
	}
	return entry, nil
}

// Remove drops the entry for name. Removing an unknown module is a no-op.
func (r *Registry) Remove(name string) error {
	data, err := r.Load()
	if err != nil {
		return err
	}
	if _, ok := data.Installed[name]; !ok {
		return nil
	}
	delete(data.Installed, name)
	return r.Save(data)
}

// Names returns the installed module names in sorted order
func (r *Registry) Names() []string {
	data, err := r.Load()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(data.Installed))
	for name := range data.Installed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InstalledModules lists installed module names for context extraction
func (r *Registry) InstalledModules() ([]string, error) {
	return r.Names(), nil
}

func mergeFiles(existing, added []string) []string {
	seen := make(map[string]bool, len(existing)+len(added))
	out := make([]string, 0, len(existing)+len(added))
	for _, f := range append(append([]string{}, existing...), added...) {
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
