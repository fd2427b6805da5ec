// Package ai dispatches natural-language instructions, grounded by an
// application context, to LLM providers and applies what they return.
package ai

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	rstrings "github.com/railsplan/railsplan/internal/util/strings"
)

// ProviderName identifies an LLM backend
type ProviderName string

const (
	ProviderOpenAI    ProviderName = "openai"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderGemini    ProviderName = "gemini"
	ProviderCursor    ProviderName = "cursor"
)

// Environment variables consulted while resolving configuration
const (
	EnvConfigPath = "RAILSPLAN_AI_CONFIG"
	EnvProvider   = "RAILSPLAN_AI_PROVIDER"
	EnvModel      = "RAILSPLAN_AI_MODEL"
)

var (
	// ErrNotConfigured means no provider could be resolved
	ErrNotConfigured = errors.New("AI provider is not configured")

	// ErrUnknownProvider means the configured provider name is not supported
	ErrUnknownProvider = errors.New("unknown AI provider")

	// ErrMissingAPIKey means a network provider has no key
	ErrMissingAPIKey = errors.New("missing API key")
)

var defaultModels = map[ProviderName]string{
	ProviderOpenAI:    "gpt-4o",
	ProviderAnthropic: "claude-3-5-sonnet-20241022",
	ProviderGemini:    "gemini-1.5-pro",
	ProviderCursor:    "cursor",
}

var apiKeyEnv = map[ProviderName][]string{
	ProviderOpenAI:    {"OPENAI_API_KEY"},
	ProviderAnthropic: {"ANTHROPIC_API_KEY", "CLAUDE_KEY"},
	ProviderGemini:    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// Profile is a named set of overrides in ai.yml
type Profile struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// FileConfig mirrors ~/.railsplan/ai.yml
type FileConfig struct {
	Provider string             `mapstructure:"provider"`
	Model    string             `mapstructure:"model"`
	APIKey   string             `mapstructure:"api_key"`
	BaseURL  string             `mapstructure:"base_url"`
	Profiles map[string]Profile `mapstructure:"profiles"`
}

// Config is the resolved provider configuration
type Config struct {
	Provider ProviderName
	Model    string
	APIKey   string
	BaseURL  string
	Profile  string
	Source   string
}

// LoadOptions controls configuration resolution
type LoadOptions struct {
	// Path overrides the ai.yml location
	Path string
	// Profile selects a named entry under profiles
	Profile string
	// Provider and Model take precedence over everything else
	Provider string
	Model    string
	// AppRoot, when set, has its .env loaded first
	AppRoot string
	// Getenv defaults to os.Getenv
	Getenv func(string) string
}

// DefaultConfigPath returns ~/.railsplan/ai.yml, or RAILSPLAN_AI_CONFIG
func DefaultConfigPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".railsplan", "ai.yml")
	}
	return filepath.Join(home, ".railsplan", "ai.yml")
}

// LoadConfig resolves provider settings from ai.yml, the selected profile
// and the environment, in increasing order of precedence
func LoadConfig(opts LoadOptions) (*Config, error) {
	if opts.AppRoot != "" {
		envFile := filepath.Join(opts.AppRoot, ".env")
		if _, err := os.Stat(envFile); err == nil {
			// existing environment wins over .env
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	lookup := func(k string) (string, bool) {
		v := getenv(k)
		return v, v != ""
	}

	path := opts.Path
	if path == "" {
		path = DefaultConfigPath()
	}

	fc, found, err := readFileConfig(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Provider: ProviderName(fc.Provider),
		Model:    fc.Model,
		APIKey:   fc.APIKey,
		BaseURL:  fc.BaseURL,
	}
	if found {
		cfg.Source = path
	}

	if opts.Profile != "" {
		profile, ok := fc.Profiles[opts.Profile]
		if !ok {
			return nil, fmt.Errorf("profile %q not found in %s", opts.Profile, path)
		}
		cfg.Profile = opts.Profile
		if profile.Provider != "" {
			cfg.Provider = ProviderName(profile.Provider)
			// a profile that switches provider does not inherit the base model
			if profile.Provider != fc.Provider {
				cfg.Model, cfg.APIKey, cfg.BaseURL = "", "", ""
			}
		}
		if profile.Model != "" {
			cfg.Model = profile.Model
		}
		if profile.APIKey != "" {
			cfg.APIKey = profile.APIKey
		}
		if profile.BaseURL != "" {
			cfg.BaseURL = profile.BaseURL
		}
	}

	if v := getenv(EnvProvider); v != "" {
		if ProviderName(v) != cfg.Provider {
			cfg.Model = ""
		}
		cfg.Provider = ProviderName(v)
	}
	if v := getenv(EnvModel); v != "" {
		cfg.Model = v
	}
	if opts.Provider != "" {
		if ProviderName(opts.Provider) != cfg.Provider {
			cfg.Model = ""
		}
		cfg.Provider = ProviderName(opts.Provider)
	}
	if opts.Model != "" {
		cfg.Model = opts.Model
	}

	if cfg.Provider == "" {
		return nil, ErrNotConfigured
	}
	cfg.Provider = ProviderName(strings.ToLower(string(cfg.Provider)))
	if cfg.Provider == "claude" {
		cfg.Provider = ProviderAnthropic
	}

	defaultModel, known := defaultModels[cfg.Provider]
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	cfg.APIKey = rstrings.ExpandERBWith(cfg.APIKey, lookup)
	if cfg.APIKey == "" {
		for _, name := range apiKeyEnv[cfg.Provider] {
			if v := getenv(name); v != "" {
				cfg.APIKey = v
				break
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration can build a provider
func (c *Config) Validate() error {
	if _, ok := defaultModels[c.Provider]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, c.Provider)
	}
	if c.Provider != ProviderCursor && c.APIKey == "" {
		return fmt.Errorf("%w for %s (set api_key in ai.yml or %s)",
			ErrMissingAPIKey, c.Provider, strings.Join(apiKeyEnv[c.Provider], " / "))
	}
	return nil
}

// String returns a human-readable identifier for the provider
func (c *Config) String() string {
	return fmt.Sprintf("%s:%s", c.Provider, c.Model)
}

func readFileConfig(path string) (*FileConfig, bool, error) {
	fc := &FileConfig{}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fc, false, nil
		}
		return nil, false, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := v.Unmarshal(fc); err != nil {
		return nil, false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return fc, true, nil
}
