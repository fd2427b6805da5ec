package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/railsplan/railsplan/internal/appcontext"
	"github.com/railsplan/railsplan/internal/modules"
	"github.com/railsplan/railsplan/internal/utils"
)

// SettingsFile is the per-app settings file relative to the app root
const SettingsFile = ".railsplan/settings.yml"

// ErrNotRailsApp is returned when no Rails app root can be found
var ErrNotRailsApp = errors.New("not in a Rails application")

// Settings represents the railsplan per-app configuration
type Settings struct {
	AppName      string          `mapstructure:"app_name" yaml:"app_name"`
	TemplatesDir string          `mapstructure:"templates_dir" yaml:"templates_dir"`
	RegistryPath string          `mapstructure:"registry_path" yaml:"registry_path"`
	DomainsDir   string          `mapstructure:"domains_dir" yaml:"domains_dir"`
	AI           AISettings      `mapstructure:"ai" yaml:"ai"`
	Context      ContextSettings `mapstructure:"context" yaml:"context"`
}

// AISettings selects the AI profile used by this app
type AISettings struct {
	Profile string `mapstructure:"profile" yaml:"profile,omitempty"`
}

// ContextSettings tunes context extraction
type ContextSettings struct {
	ExtraModelDirs []string `mapstructure:"extra_model_dirs" yaml:"extra_model_dirs,omitempty"`
}

// Default returns the settings used when no settings file exists
func Default(appRoot string) *Settings {
	return &Settings{
		AppName:      filepath.Base(appRoot),
		TemplatesDir: modules.DefaultTemplatesDir,
		RegistryPath: modules.DefaultRegistryPath,
		DomainsDir:   modules.DefaultDomainsDir,
	}
}

// Load loads .railsplan/settings.yml from appRoot. A missing file yields
// the defaults. RAILSPLAN_* environment variables override file values,
// e.g. RAILSPLAN_AI_PROFILE for ai.profile.
func Load(appRoot string) (*Settings, error) {
	v := viper.New()

	def := Default(appRoot)
	v.SetDefault("app_name", def.AppName)
	v.SetDefault("templates_dir", def.TemplatesDir)
	v.SetDefault("registry_path", def.RegistryPath)
	v.SetDefault("domains_dir", def.DomainsDir)
	v.SetDefault("ai.profile", "")
	v.SetDefault("context.extra_model_dirs", []string{})

	v.SetConfigName("settings")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(appRoot, appcontext.StateDir))

	v.SetEnvPrefix("RAILSPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
		// Settings file not found - use defaults
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	if err := validateSettings(&settings); err != nil {
		return nil, err
	}

	return &settings, nil
}

// Save writes settings to appRoot/.railsplan/settings.yml and returns the path
func Save(appRoot string, settings *Settings) (string, error) {
	if err := validateSettings(settings); err != nil {
		return "", err
	}

	raw, err := yaml.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("failed to encode settings: %w", err)
	}

	path := filepath.Join(appRoot, filepath.FromSlash(SettingsFile))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", appcontext.StateDir, err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return "", fmt.Errorf("failed to write settings: %w", err)
	}
	return path, nil
}

// IsRailsApp checks if dir looks like a Rails application root
func IsRailsApp(dir string) bool {
	return utils.FileExists(filepath.Join(dir, appcontext.ApplicationFile)) ||
		(utils.FileExists(filepath.Join(dir, "Gemfile")) && utils.FileExists(filepath.Join(dir, "app")))
}

// FindAppRoot walks up from start looking for a Rails application root
func FindAppRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}

	for {
		if IsRailsApp(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w (no config/application.rb found above %s)", ErrNotRailsApp, start)
		}
		dir = parent
	}
}

// validateSettings rejects directories that point outside the app
func validateSettings(s *Settings) error {
	paths := map[string]string{
		"templates_dir": s.TemplatesDir,
		"registry_path": s.RegistryPath,
		"domains_dir":   s.DomainsDir,
	}
	for _, key := range []string{"templates_dir", "registry_path", "domains_dir"} {
		p := paths[key]
		if p == "" {
			return fmt.Errorf("%s must not be empty", key)
		}
		if filepath.IsAbs(p) {
			return fmt.Errorf("%s must be relative to the app root, got: %s", key, p)
		}
		if clean := filepath.ToSlash(filepath.Clean(p)); clean == ".." || strings.HasPrefix(clean, "../") {
			return fmt.Errorf("%s must stay inside the app root, got: %s", key, p)
		}
	}
	for _, dir := range s.Context.ExtraModelDirs {
		if filepath.IsAbs(dir) || strings.HasPrefix(filepath.ToSlash(filepath.Clean(dir)), "../") {
			return fmt.Errorf("context.extra_model_dirs entries must be inside the app root, got: %s", dir)
		}
	}
	return nil
}
