package ai

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ai.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const aiConfigFixture = `provider: openai
model: gpt-4o-mini
api_key: <%= ENV['MY_OPENAI_KEY'] %>
profiles:
  fast:
    model: gpt-4o
  claude:
    provider: anthropic
    api_key: <%= ENV.fetch('MY_CLAUDE_KEY', 'fallback-key') %>
`

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, aiConfigFixture)

	tests := []struct {
		name    string
		opts    LoadOptions
		env     map[string]string
		want    Config
		wantErr error
	}{
		{
			name: "base config with ERB key",
			opts: LoadOptions{Path: path},
			env:  map[string]string{"MY_OPENAI_KEY": "sk-test"},
			want: Config{Provider: ProviderOpenAI, Model: "gpt-4o-mini", APIKey: "sk-test", Source: path},
		},
		{
			name: "profile overrides model",
			opts: LoadOptions{Path: path, Profile: "fast"},
			env:  map[string]string{"MY_OPENAI_KEY": "sk-test"},
			want: Config{Provider: ProviderOpenAI, Model: "gpt-4o", APIKey: "sk-test", Profile: "fast", Source: path},
		},
		{
			name: "profile switching provider uses its default model",
			opts: LoadOptions{Path: path, Profile: "claude"},
			env:  map[string]string{},
			want: Config{Provider: ProviderAnthropic, Model: defaultModels[ProviderAnthropic], APIKey: "fallback-key", Profile: "claude", Source: path},
		},
		{
			name: "environment overrides file",
			opts: LoadOptions{Path: path},
			env: map[string]string{
				EnvProvider:      "gemini",
				EnvModel:         "gemini-2.0-flash",
				"GEMINI_API_KEY": "g-key",
			},
			want: Config{Provider: ProviderGemini, Model: "gemini-2.0-flash", APIKey: "g-key", Source: path},
		},
		{
			name: "key falls back to provider env var",
			opts: LoadOptions{Path: filepath.Join(t.TempDir(), "missing.yml"), Provider: "anthropic"},
			env:  map[string]string{"CLAUDE_KEY": "c-key"},
			want: Config{Provider: ProviderAnthropic, Model: defaultModels[ProviderAnthropic], APIKey: "c-key"},
		},
		{
			name: "cursor needs no key",
			opts: LoadOptions{Path: filepath.Join(t.TempDir(), "missing.yml"), Provider: "cursor"},
			env:  map[string]string{},
			want: Config{Provider: ProviderCursor, Model: "cursor"},
		},
		{
			name:    "nothing configured",
			opts:    LoadOptions{Path: filepath.Join(t.TempDir(), "missing.yml")},
			env:     map[string]string{},
			wantErr: ErrNotConfigured,
		},
		{
			name:    "unknown provider",
			opts:    LoadOptions{Path: path, Provider: "llamafarm"},
			env:     map[string]string{},
			wantErr: ErrUnknownProvider,
		},
		{
			name:    "missing key",
			opts:    LoadOptions{Path: path},
			env:     map[string]string{},
			wantErr: ErrMissingAPIKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Getenv = envFrom(tt.env)
			cfg, err := LoadConfig(tt.opts)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *cfg)
		})
	}
}

func TestLoadConfig_UnknownProfile(t *testing.T) {
	path := writeConfig(t, aiConfigFixture)
	_, err := LoadConfig(LoadOptions{Path: path, Profile: "nope", Getenv: envFrom(nil)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `profile "nope"`)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	appRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(appRoot, ".env"), []byte("RAILSPLAN_TEST_DOTENV_KEY=from-dotenv\n"), 0644))
	path := writeConfig(t, "provider: openai\napi_key: <%= ENV['RAILSPLAN_TEST_DOTENV_KEY'] %>\n")
	t.Cleanup(func() { os.Unsetenv("RAILSPLAN_TEST_DOTENV_KEY") })

	cfg, err := LoadConfig(LoadOptions{Path: path, AppRoot: appRoot})
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.APIKey)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)

	f, err = ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("yaml")
	assert.Error(t, err)
}
