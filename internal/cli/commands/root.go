package commands

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/railsplan/railsplan/internal/ai"
	"github.com/railsplan/railsplan/internal/appcontext"
	"github.com/railsplan/railsplan/internal/cli/config"
	"github.com/railsplan/railsplan/internal/cli/ui"
	"github.com/railsplan/railsplan/internal/modules"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

const (
	// appAnnotation marks how a command resolves the Rails app
	appAnnotation = "railsplan/app"
	appOptional   = "optional"
	appNone       = "none"
)

// NewRootCommand creates the root command
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "railsplan",
		Short: "Module installer and AI assistant for Rails applications",
		Long: color.CyanString(`RailsPlan - modular Rails development

RailsPlan installs feature modules into a Rails application, keeps a
structured snapshot of the app's models, schema and routes, and uses that
snapshot to ground AI code generation.

Features:
  • Install, upgrade and remove domain modules
  • Extract app context to .railsplan/context.json
  • AI chat, generation and refactoring with OpenAI, Claude or Gemini
  • Health checks and a local dashboard`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if app.Options.NoColor {
				color.NoColor = true
			}
			switch cmd.Annotations[appAnnotation] {
			case appNone:
				return nil
			case appOptional:
				return app.Setup(false)
			default:
				return app.Setup(true)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&app.Options.AppRoot, "app", "", "Rails application root (default: search upwards from the current directory)")
	flags.BoolVarP(&app.Options.Verbose, "verbose", "v", false, "Enable debug logging")
	flags.BoolVar(&app.Options.NoColor, "no-color", false, "Disable colored output")

	rootCmd.SetOut(app.Out)
	rootCmd.SetErr(app.Err)

	// Modules
	rootCmd.AddCommand(NewInitCommand(app))
	rootCmd.AddCommand(NewListCommand(app))
	rootCmd.AddCommand(NewAddCommand(app))
	rootCmd.AddCommand(NewRemoveCommand(app))
	rootCmd.AddCommand(NewUpgradeCommand(app))
	rootCmd.AddCommand(NewInfoCommand(app))
	rootCmd.AddCommand(NewPlanCommand(app))
	rootCmd.AddCommand(NewTestCommand(app))

	// Context and health
	rootCmd.AddCommand(NewIndexCommand(app))
	rootCmd.AddCommand(NewDoctorCommand(app))
	rootCmd.AddCommand(NewVerifyCommand(app))
	rootCmd.AddCommand(NewDashboardCommand(app))

	// AI
	rootCmd.AddCommand(NewGenerateCommand(app))
	rootCmd.AddCommand(NewChatCommand(app))
	rootCmd.AddCommand(NewExplainCommand(app))
	rootCmd.AddCommand(NewRefactorCommand(app))
	rootCmd.AddCommand(NewFixCommand(app))
	rootCmd.AddCommand(NewReplayCommand(app))

	rootCmd.AddCommand(NewVersionCommand(app))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Show version information",
		Long:        "Display the RailsPlan version, Git commit, build date, and Go version",
		Annotations: map[string]string{appAnnotation: appNone},
		Run: func(cmd *cobra.Command, args []string) {
			// Set GoVersion to actual runtime if not set at build time
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			titleColor := color.New(color.FgCyan, color.Bold)
			valueColor := color.New(color.FgWhite)
			if app.Options.NoColor {
				titleColor.DisableColor()
				valueColor.DisableColor()
			}

			out := cmd.OutOrStdout()
			titleColor.Fprint(out, "RailsPlan version: ")
			valueColor.Fprintln(out, Version)

			titleColor.Fprint(out, "Git commit: ")
			valueColor.Fprintln(out, GitCommit)

			titleColor.Fprint(out, "Build date: ")
			valueColor.Fprintln(out, BuildDate)

			titleColor.Fprint(out, "Go version: ")
			valueColor.Fprintln(out, goVer)
		},
	}
}

// Execute runs the CLI with args and returns the process exit code
func Execute(app *App, args []string) int {
	rootCmd := NewRootCommand(app)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		renderError(app, err)
		return 1
	}
	return 0
}

// errReported wraps errors whose message the command already printed
type errReported struct {
	err error
}

func (e *errReported) Error() string { return e.err.Error() }
func (e *errReported) Unwrap() error { return e.err }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return &errReported{err: err}
}

func renderError(app *App, err error) {
	noColor := app.Options.NoColor
	w := app.Err
	app.Logger.Debug("command failed", zap.Error(err))

	var done *errReported
	switch {
	case errors.As(err, &done):
		return
	case errors.Is(err, modules.ErrModuleNotFound):
		var name string
		var nf *moduleNotFound
		if errors.As(err, &nf) {
			name = nf.name
		}
		fmt.Fprint(w, ui.ModuleNotFoundError(name, app.moduleSuggestions(name), noColor))
	case errors.Is(err, ai.ErrNotConfigured), errors.Is(err, ai.ErrMissingAPIKey), errors.Is(err, ai.ErrUnknownProvider):
		fmt.Fprint(w, ui.AIConfigError(err.Error(), noColor))
	case errors.Is(err, ai.ErrProviderFailed):
		fmt.Fprint(w, ui.ProviderError(providerName(err), err.Error(), noColor))
	case errors.Is(err, appcontext.ErrNoContext):
		fmt.Fprint(w, ui.ContextMissingError(noColor))
	case errors.Is(err, config.ErrNotRailsApp):
		fmt.Fprint(w, ui.ConfigError(err.Error(), []string{
			"Run railsplan from inside a Rails application",
			"Or point at one with --app PATH",
		}, noColor))
	default:
		errorColor := color.New(color.FgRed, color.Bold)
		if noColor {
			errorColor.DisableColor()
		}
		errorColor.Fprintf(w, "Error: %v\n", err)
	}
}

// moduleNotFound carries the requested name of an unknown module
type moduleNotFound struct {
	name string
	err  error
}

func (e *moduleNotFound) Error() string { return e.err.Error() }
func (e *moduleNotFound) Unwrap() error { return e.err }

func (a *App) moduleSuggestions(name string) []string {
	if a.Settings == nil || name == "" {
		return nil
	}
	templates, err := a.Installer().Templates()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(templates))
	for _, t := range templates {
		names = append(names, t.Name)
	}
	return ui.FindSimilar(name, names, nil)
}

func providerName(err error) string {
	var pe *providerErr
	if errors.As(err, &pe) {
		return pe.provider
	}
	return "the current provider"
}

// providerErr remembers which provider an AI command talked to
type providerErr struct {
	provider string
	err      error
}

func (e *providerErr) Error() string { return e.err.Error() }
func (e *providerErr) Unwrap() error { return e.err }
