package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/AlecAivazis/survey/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/railsplan/railsplan/internal/ai"
	"github.com/railsplan/railsplan/internal/appcontext"
	"github.com/railsplan/railsplan/internal/cli/config"
	"github.com/railsplan/railsplan/internal/cli/ui"
	"github.com/railsplan/railsplan/internal/doctor"
	"github.com/railsplan/railsplan/internal/modules"
	"github.com/railsplan/railsplan/internal/runner"
)

// Confirmer asks the user yes/no questions
type Confirmer interface {
	Confirm(message string, defaultYes bool) (bool, error)
}

type surveyConfirmer struct{}

func (surveyConfirmer) Confirm(message string, defaultYes bool) (bool, error) {
	answer := defaultYes
	err := survey.AskOne(&survey.Confirm{Message: message, Default: defaultYes}, &answer)
	return answer, err
}

// AutoConfirm answers every question with its own value. It backs --yes,
// --ci and tests.
type AutoConfirm bool

// Confirm implements Confirmer
func (a AutoConfirm) Confirm(string, bool) (bool, error) {
	return bool(a), nil
}

// HostRunner runs the Rails side of module installs and test runs
type HostRunner interface {
	modules.HostRunner
	RunTests(ctx context.Context, appRoot string, paths []string) error
}

// GlobalOptions are the flags shared by every command
type GlobalOptions struct {
	AppRoot string
	Verbose bool
	NoColor bool
}

// App carries everything a command needs. One App serves one invocation.
type App struct {
	Options GlobalOptions

	Root     string
	Settings *config.Settings
	Logger   *zap.Logger

	Out io.Writer
	Err io.Writer

	Confirmer Confirmer
	// Runner is built from Out/Err when nil
	Runner HostRunner

	LoadAIConfig func(opts ai.LoadOptions) (*ai.Config, error)
	NewProvider  func(ctx context.Context, cfg *ai.Config, appRoot string) (ai.Provider, error)
	Getwd        func() (string, error)

	installer *modules.Installer
	extractor *appcontext.Extractor
}

// NewApp creates an App writing to out and errOut
func NewApp(out, errOut io.Writer) *App {
	return &App{
		Out:          out,
		Err:          errOut,
		Confirmer:    surveyConfirmer{},
		LoadAIConfig: ai.LoadConfig,
		NewProvider:  ai.NewProvider,
		Getwd:        os.Getwd,
		Logger:       zap.NewNop(),
	}
}

// Setup resolves the app root, loads settings and builds the logger. When
// requireApp is false a directory that is not a Rails app is accepted.
func (a *App) Setup(requireApp bool) error {
	a.Logger = newLogger(a.Err, a.Options.Verbose)

	root, err := a.resolveRoot(requireApp)
	if err != nil {
		return err
	}
	a.Root = root

	settings, err := config.Load(root)
	if err != nil {
		return err
	}
	a.Settings = settings

	a.Logger.Debug("resolved application",
		zap.String("root", root),
		zap.String("templates_dir", settings.TemplatesDir),
		zap.String("registry", settings.RegistryPath))
	return nil
}

func (a *App) resolveRoot(requireApp bool) (string, error) {
	if a.Options.AppRoot != "" {
		root, err := filepath.Abs(a.Options.AppRoot)
		if err != nil {
			return "", fmt.Errorf("invalid --app path: %w", err)
		}
		if requireApp && !config.IsRailsApp(root) {
			return "", fmt.Errorf("%w: %s", config.ErrNotRailsApp, root)
		}
		return root, nil
	}

	cwd, err := a.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	root, err := config.FindAppRoot(cwd)
	if err != nil {
		if !requireApp && errors.Is(err, config.ErrNotRailsApp) {
			return cwd, nil
		}
		return "", err
	}
	return root, nil
}

func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	encoderCfg := zap.NewProductionEncoderConfig()
	if verbose {
		level = zapcore.DebugLevel
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	}
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(w), level)
	return zap.New(core)
}

func (a *App) hostRunner() HostRunner {
	if a.Runner == nil {
		a.Runner = runner.New(a.Out, a.Err, a.Logger)
	}
	return a.Runner
}

// Installer returns the module installer for the app
func (a *App) Installer() *modules.Installer {
	if a.installer == nil {
		registry := modules.NewRegistry(filepath.Join(a.Root, a.Settings.RegistryPath), a.Logger)
		a.installer = modules.NewInstaller(modules.Config{
			AppRoot:      a.Root,
			TemplatesDir: a.Settings.TemplatesDir,
			DomainsDir:   a.Settings.DomainsDir,
			Registry:     registry,
			Runner:       a.hostRunner(),
			Logger:       a.Logger,
			Out:          a.Out,
		})
	}
	return a.installer
}

// Extractor returns the context extractor for the app
func (a *App) Extractor() *appcontext.Extractor {
	if a.extractor == nil {
		a.extractor = appcontext.NewExtractor(
			appcontext.WithLogger(a.Logger),
			appcontext.WithModuleSource(a.Installer().Registry()),
			appcontext.WithExtraModelDirs(a.Settings.Context.ExtraModelDirs...),
		)
	}
	return a.extractor
}

// Doctor returns a health checker for the app
func (a *App) Doctor() *doctor.Doctor {
	return doctor.New(doctor.Config{
		AppRoot:   a.Root,
		Installer: a.Installer(),
		Extractor: a.Extractor(),
		AIConfig: func() (*ai.Config, error) {
			return a.AIConfig(aiOptions{})
		},
		Logger: a.Logger,
	})
}

// aiOptions are the per-command AI overrides
type aiOptions struct {
	Provider string
	Profile  string
	Model    string
}

// AIConfig resolves the provider configuration. Command flags win over the
// app's configured profile.
func (a *App) AIConfig(opts aiOptions) (*ai.Config, error) {
	profile := opts.Profile
	if profile == "" && a.Settings != nil {
		profile = a.Settings.AI.Profile
	}
	return a.LoadAIConfig(ai.LoadOptions{
		Profile:  profile,
		Provider: opts.Provider,
		Model:    opts.Model,
		AppRoot:  a.Root,
	})
}

// Assistant builds an AI assistant grounded in the stored context. A
// missing context is reported but not fatal.
func (a *App) Assistant(ctx context.Context, opts aiOptions) (*ai.Assistant, error) {
	cfg, err := a.AIConfig(opts)
	if err != nil {
		return nil, err
	}
	provider, err := a.NewProvider(ctx, cfg, a.Root)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug("using AI provider", zap.String("config", cfg.String()))

	appCtx, err := appcontext.NewStore(a.Root).Load()
	switch {
	case errors.Is(err, appcontext.ErrNoContext):
		fmt.Fprint(a.Err, ui.Warning("No application context found; answers will not know your app",
			[]string{"Run 'railsplan index' first"}, a.Options.NoColor))
		appCtx = nil
	case err != nil:
		return nil, err
	}

	return ai.NewAssistant(ai.AssistantConfig{
		AppRoot:  a.Root,
		Provider: provider,
		Log:      ai.NewPromptLog(a.Root),
		Context:  appCtx,
		Logger:   a.Logger,
		Out:      a.Out,
	}), nil
}
