package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestFormatError(t *testing.T) {
	// Disable color for testing
	color.NoColor = true
	defer func() { color.NoColor = false }()

	tests := []struct {
		name     string
		opts     ErrorOptions
		contains []string
	}{
		{
			name: "basic error",
			opts: ErrorOptions{
				Level:   ErrorLevelError,
				Context: "MODULE NOT FOUND",
				Problem: "Cannot find module template 'notes'.",
			},
			contains: []string{
				"❌",
				"MODULE NOT FOUND",
				"Cannot find module template 'notes'.",
			},
		},
		{
			name: "error with suggestions",
			opts: ErrorOptions{
				Level:       ErrorLevelError,
				Context:     "MODULE NOT FOUND",
				Problem:     "Cannot find module template 'note'.",
				Suggestions: []string{"notes", "notify"},
			},
			contains: []string{
				"Did you mean: notes, notify?",
			},
		},
		{
			name: "error with help commands",
			opts: ErrorOptions{
				Level:   ErrorLevelError,
				Context: "INSTALL FAILED",
				Problem: "generator for billing failed",
				HelpCommands: []string{
					"Preview the steps: railsplan plan billing",
					"Get help: railsplan add --help",
				},
			},
			contains: []string{
				"→ Preview the steps: railsplan plan billing",
				"→ Get help: railsplan add --help",
			},
		},
		{
			name: "warning message",
			opts: ErrorOptions{
				Level:   ErrorLevelWarning,
				Problem: "Installed billing v2.0.0 is newer than template v1.0.0",
			},
			contains: []string{
				"⚠️",
				"Installed billing v2.0.0 is newer than template v1.0.0",
			},
		},
		{
			name: "info message",
			opts: ErrorOptions{
				Level:   ErrorLevelInfo,
				Problem: "Context is up to date",
			},
			contains: []string{
				"ℹ️",
				"Context is up to date",
			},
		},
		{
			name: "error with consequence",
			opts: ErrorOptions{
				Level:       ErrorLevelError,
				Context:     "REMOVE FAILED",
				Problem:     "failed to remove app/domains/billing",
				Consequence: "Routes may still reference the module",
			},
			contains: []string{
				"failed to remove app/domains/billing",
				"Routes may still reference the module",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatError(tt.opts)

			for _, expected := range tt.contains {
				if !strings.Contains(result, expected) {
					t.Errorf("FormatError() output missing expected string:\nExpected to contain: %q\nGot: %q", expected, result)
				}
			}
		})
	}
}

func TestModuleNotFoundError(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	result := ModuleNotFoundError("notess", []string{"notes"}, true)

	expected := []string{
		"MODULE NOT FOUND",
		"Cannot find module template 'notess'.",
		"Did you mean: notes?",
		"See all modules: railsplan list",
	}

	for _, exp := range expected {
		if !strings.Contains(result, exp) {
			t.Errorf("ModuleNotFoundError() missing expected string: %q", exp)
		}
	}
}

func TestModuleError(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	result := ModuleError("upgrade", "billing", "generator for billing failed", "Backup kept at .railsplan/backups/billing-20250601093000", true)

	expected := []string{
		"UPGRADE FAILED",
		"generator for billing failed",
		"Backup kept at .railsplan/backups/billing-20250601093000",
		"Preview the steps: railsplan plan billing",
	}

	for _, exp := range expected {
		if !strings.Contains(result, exp) {
			t.Errorf("ModuleError() missing expected string: %q", exp)
		}
	}
}

func TestAIConfigError(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	result := AIConfigError("no AI provider configured", true)

	expected := []string{
		"AI NOT CONFIGURED",
		"no AI provider configured",
		"• Create ~/.railsplan/ai.yml",
		"→ Check the setup: railsplan doctor",
	}

	for _, exp := range expected {
		if !strings.Contains(result, exp) {
			t.Errorf("AIConfigError() missing expected string: %q", exp)
		}
	}
	if strings.Contains(result, "Did you mean") {
		t.Error("AIConfigError() should render hints, not suggestions")
	}
}

func TestProviderError(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	result := ProviderError("openai", "429 rate limited", true)

	expected := []string{
		"AI REQUEST FAILED",
		"429 rate limited",
		"switch away from openai with --provider",
	}

	for _, exp := range expected {
		if !strings.Contains(result, exp) {
			t.Errorf("ProviderError() missing expected string: %q", exp)
		}
	}
}

func TestContextMissingError(t *testing.T) {
	result := ContextMissingError(true)

	if !strings.Contains(result, "CONTEXT MISSING") || !strings.Contains(result, "railsplan index") {
		t.Errorf("ContextMissingError() unexpected output: %q", result)
	}
}

func TestFormatSuccess(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	result := FormatSuccess("Installed notes v1.0.0", true)

	if !strings.Contains(result, "✓") {
		t.Errorf("FormatSuccess() missing checkmark")
	}
	if !strings.Contains(result, "Installed notes v1.0.0") {
		t.Errorf("FormatSuccess() missing message")
	}
}

func TestWriteSuccess(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	var buf bytes.Buffer
	WriteSuccess(&buf, "Test success", true)

	output := buf.String()
	if !strings.Contains(output, "✓") {
		t.Errorf("WriteSuccess() missing checkmark")
	}
	if !strings.Contains(output, "Test success") {
		t.Errorf("WriteSuccess() missing message")
	}
}

func TestWarning(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	result := Warning("Context is stale", []string{"Run railsplan index"}, true)

	expected := []string{
		"⚠️",
		"Context is stale",
		"• Run railsplan index",
	}

	for _, exp := range expected {
		if !strings.Contains(result, exp) {
			t.Errorf("Warning() missing expected string: %q", exp)
		}
	}
}

func TestInfo(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	result := Info("Watching for changes", true)

	expected := []string{
		"ℹ️",
		"Watching for changes",
	}

	for _, exp := range expected {
		if !strings.Contains(result, exp) {
			t.Errorf("Info() missing expected string: %q", exp)
		}
	}
}

func TestConfigError(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	result := ConfigError("Invalid YAML syntax", []string{"Check indentation"}, true)

	expected := []string{
		"CONFIGURATION ERROR",
		"Invalid YAML syntax",
		"• Check indentation",
		"View settings: cat .railsplan/settings.yml",
	}

	for _, exp := range expected {
		if !strings.Contains(result, exp) {
			t.Errorf("ConfigError() missing expected string: %q", exp)
		}
	}
}
