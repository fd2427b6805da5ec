package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// ErrorLevel represents the severity of an error message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures the error message formatting
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Consequence  string
	Suggestions  []string
	Hints        []string
	HelpCommands []string
	NoColor      bool
}

// FormatError creates a standardized error message with suggestions and help commands
//
// Example output:
//
//	❌ MODULE NOT FOUND: notess
//	   Cannot find module template 'notess'.
//
//	   Did you mean: notes?
//
//	   → See all modules: railsplan list
//	   → Get help: railsplan add --help
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	// Determine colors and symbol based on level
	var headerColor, bodyColor *color.Color
	var symbol string

	switch opts.Level {
	case ErrorLevelError:
		headerColor = color.New(color.FgRed, color.Bold)
		bodyColor = color.New(color.FgRed)
		symbol = "❌"
	case ErrorLevelWarning:
		headerColor = color.New(color.FgYellow, color.Bold)
		bodyColor = color.New(color.FgYellow)
		symbol = "⚠️"
	case ErrorLevelInfo:
		headerColor = color.New(color.FgCyan, color.Bold)
		bodyColor = color.New(color.FgCyan)
		symbol = "ℹ️"
	}

	// Disable colors if requested
	if opts.NoColor {
		headerColor.DisableColor()
		bodyColor.DisableColor()
	}

	// Header line with context
	if opts.Context != "" {
		headerColor.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(opts.Context), opts.Problem)
	} else {
		headerColor.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	// Problem description with indentation
	if opts.Problem != "" && opts.Context != "" {
		bodyColor.Fprintf(&b, "   %s\n", opts.Problem)
	}

	// Consequence (if provided)
	if opts.Consequence != "" {
		b.WriteString("\n")
		bodyColor.Fprintf(&b, "   %s\n", opts.Consequence)
	}

	// Suggestions
	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		yellow := color.New(color.FgYellow)
		if opts.NoColor {
			yellow.DisableColor()
		}
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.Hints) > 0 {
		b.WriteString("\n")
		for _, hint := range opts.Hints {
			bodyColor.Fprintf(&b, "   • %s\n", hint)
		}
	}

	// Help commands
	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		cyan := color.New(color.FgCyan)
		if opts.NoColor {
			cyan.DisableColor()
		}
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// FormatSuccess creates a success message
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success message to the writer
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// ModuleNotFoundError reports an unknown module template
func ModuleNotFoundError(name string, suggestions []string, noColor bool) string {
	opts := ErrorOptions{
		Level:       ErrorLevelError,
		Context:     "MODULE NOT FOUND",
		Problem:     fmt.Sprintf("Cannot find module template '%s'.", name),
		Suggestions: suggestions,
		HelpCommands: []string{
			"See all modules: railsplan list",
			"Get help: railsplan add --help",
		},
		NoColor: noColor,
	}
	return FormatError(opts)
}

// ModuleError reports a failed install, remove or upgrade
func ModuleError(action, name, message, consequence string, noColor bool) string {
	opts := ErrorOptions{
		Level:       ErrorLevelError,
		Context:     strings.ToUpper(action) + " FAILED",
		Problem:     message,
		Consequence: consequence,
		HelpCommands: []string{
			fmt.Sprintf("Preview the steps: railsplan plan %s", name),
			"Check the app: railsplan doctor",
		},
		NoColor: noColor,
	}
	return FormatError(opts)
}

// AIConfigError reports a missing or invalid AI provider configuration
func AIConfigError(message string, noColor bool) string {
	opts := ErrorOptions{
		Level:   ErrorLevelError,
		Context: "AI NOT CONFIGURED",
		Problem: message,
		Hints: []string{
			"Create ~/.railsplan/ai.yml with provider, model and api_key",
			"Or export OPENAI_API_KEY, ANTHROPIC_API_KEY or GEMINI_API_KEY",
		},
		HelpCommands: []string{
			"Check the setup: railsplan doctor",
		},
		NoColor: noColor,
	}
	return FormatError(opts)
}

// ProviderError reports a failed request to an AI provider
func ProviderError(provider, message string, noColor bool) string {
	opts := ErrorOptions{
		Level:   ErrorLevelError,
		Context: "AI REQUEST FAILED",
		Problem: message,
		Hints: []string{
			fmt.Sprintf("Retry, or switch away from %s with --provider", provider),
		},
		HelpCommands: []string{
			"Use another provider: railsplan chat --provider anthropic",
		},
		NoColor: noColor,
	}
	return FormatError(opts)
}

// ContextMissingError reports that the app context has not been extracted
func ContextMissingError(noColor bool) string {
	opts := ErrorOptions{
		Level:   ErrorLevelError,
		Context: "CONTEXT MISSING",
		Problem: "The application context has not been extracted yet.",
		HelpCommands: []string{
			"Extract it: railsplan index",
		},
		NoColor: noColor,
	}
	return FormatError(opts)
}

// ConfigError creates a standardized configuration error
func ConfigError(message string, hints []string, noColor bool) string {
	opts := ErrorOptions{
		Level:   ErrorLevelError,
		Context: "CONFIGURATION ERROR",
		Problem: message,
		Hints:   hints,
		HelpCommands: []string{
			"View settings: cat .railsplan/settings.yml",
			"Get help: railsplan --help",
		},
		NoColor: noColor,
	}
	return FormatError(opts)
}

// Warning creates a standardized warning message
func Warning(message string, hints []string, noColor bool) string {
	opts := ErrorOptions{
		Level:   ErrorLevelWarning,
		Problem: message,
		Hints:   hints,
		NoColor: noColor,
	}
	return FormatError(opts)
}

// Info creates a standardized info message
func Info(message string, noColor bool) string {
	opts := ErrorOptions{
		Level:   ErrorLevelInfo,
		Problem: message,
		NoColor: noColor,
	}
	return FormatError(opts)
}
