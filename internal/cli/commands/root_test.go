package commands

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand(NewApp(&bytes.Buffer{}, &bytes.Buffer{}))

	if cmd.Use != "railsplan" {
		t.Errorf("expected Use to be 'railsplan', got %s", cmd.Use)
	}

	if cmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	// Check subcommands are registered
	expectedCommands := []string{
		"init", "list", "add", "remove", "upgrade", "info", "plan", "test",
		"index", "doctor", "verify", "dashboard",
		"generate", "chat", "explain", "refactor", "fix", "replay",
		"version",
	}

	for _, expected := range expectedCommands {
		found := false
		for _, cmd := range cmd.Commands() {
			if cmd.Name() == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected command %s to be registered", expected)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	// Set test version info
	Version = "1.0.0-test"
	GitCommit = "abc123"
	BuildDate = "2026-01-01"
	GoVersion = "go1.24"

	var out, errOut bytes.Buffer
	code := Execute(NewApp(&out, &errOut), []string{"--no-color", "version"})

	assert.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "RailsPlan version: 1.0.0-test")
	assert.Contains(t, out.String(), "Git commit: abc123")
	assert.Contains(t, out.String(), "Go version: go1.24")
}

func TestExecute_UnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Execute(NewApp(&out, &errOut), []string{"--no-color", "frobnicate"})

	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "Error: unknown command")
}

func TestRenderError_Reported(t *testing.T) {
	var out, errOut bytes.Buffer
	app := NewApp(&out, &errOut)
	app.Options.NoColor = true
	app.Logger = zap.NewNop()

	renderError(app, reported(errors.New("already shown")))
	assert.Empty(t, errOut.String())

	renderError(app, errors.New("boom"))
	assert.Equal(t, "Error: boom\n", errOut.String())
}

func TestAutoConfirm(t *testing.T) {
	ok, err := AutoConfirm(true).Confirm("Proceed?", false)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = AutoConfirm(false).Confirm("Proceed?", true)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "hello", 10, "hello"},
		{"whitespace collapsed", "a\n\n  b\tc", 10, "a b c"},
		{"truncated", strings.Repeat("x", 12), 10, strings.Repeat("x", 9) + "…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, excerpt(tt.in, tt.n))
		})
	}
}

func TestRequestText(t *testing.T) {
	prompt := "## Application context\n\n{}\n\n## Request\n\nadd comments"
	assert.Equal(t, "add comments", requestText(prompt))
	assert.Equal(t, "plain prompt", requestText("plain prompt"))
}
