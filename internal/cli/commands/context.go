package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/railsplan/railsplan/internal/appcontext"
	"github.com/railsplan/railsplan/internal/cli/config"
	"github.com/railsplan/railsplan/internal/cli/ui"
	"github.com/railsplan/railsplan/internal/utils"
	"github.com/railsplan/railsplan/internal/watch"
)

// InitOptions holds the flags of the init command
type InitOptions struct {
	Force   bool
	NoIndex bool
}

// NewInitCommand creates the init command
func NewInitCommand(app *App) *cobra.Command {
	opts := &InitOptions{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set up railsplan in the current Rails application",
		Long: `Create .railsplan/settings.yml and the module registry, then extract
the application context.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(app, opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Overwrite an existing settings file")
	cmd.Flags().BoolVar(&opts.NoIndex, "no-index", false, "Skip the initial context extraction")
	return cmd
}

func runInit(app *App, opts *InitOptions) error {
	settingsPath := filepath.Join(app.Root, filepath.FromSlash(config.SettingsFile))
	if utils.FileExists(settingsPath) && !opts.Force {
		fmt.Fprint(app.Out, ui.Info(fmt.Sprintf("%s already exists, keeping it", config.SettingsFile), app.Options.NoColor))
	} else {
		if _, err := config.Save(app.Root, app.Settings); err != nil {
			return err
		}
		ui.WriteSuccess(app.Out, fmt.Sprintf("Wrote %s", config.SettingsFile), app.Options.NoColor)
	}

	registry := app.Installer().Registry()
	if !utils.FileExists(registry.Path()) {
		if err := registry.Reset(); err != nil {
			return err
		}
		ui.WriteSuccess(app.Out, fmt.Sprintf("Created %s", app.Settings.RegistryPath), app.Options.NoColor)
	}

	if !opts.NoIndex {
		if err := runIndex(app); err != nil {
			return err
		}
	}

	fmt.Fprintln(app.Out)
	fmt.Fprintln(app.Out, color.CyanString("Next steps:"))
	list := ui.NewList(app.Out, ui.ListOptions{Numbered: true, NoColor: app.Options.NoColor})
	list.AddItem("railsplan list          # browse module templates")
	list.AddItem("railsplan add MODULE    # install one")
	list.AddItem("railsplan doctor        # check the setup")
	list.Render()
	return nil
}

// IndexOptions holds the flags of the index command
type IndexOptions struct {
	Watch    bool
	Debounce time.Duration
}

// NewIndexCommand creates the index command
func NewIndexCommand(app *App) *cobra.Command {
	opts := &IndexOptions{}
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Extract the application context",
		Long: `Extract models, schema, routes, controllers and installed modules into
.railsplan/context.json. With --watch the context is refreshed whenever a
relevant file changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runIndex(app); err != nil {
				return err
			}
			if !opts.Watch {
				return nil
			}
			return runIndexWatch(cmd.Context(), app, opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Keep running and re-index on changes")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", watch.DefaultDebounce, "Quiet period before re-indexing")
	return cmd
}

func runIndex(app *App) error {
	defer logDuration(app, "context extracted", time.Now())

	var appCtx *appcontext.Context
	err := ui.WithSpinner(app.Err, "Extracting application context", app.Options.NoColor, func() error {
		var err error
		appCtx, err = app.Extractor().Refresh(app.Root)
		return err
	})
	if err != nil {
		return err
	}
	printContextSummary(app, appCtx)
	return nil
}

func printContextSummary(app *App, appCtx *appcontext.Context) {
	kv := ui.NewKeyValueTable(app.Out, app.Options.NoColor)
	kv.AddRow("App", appCtx.AppName)
	kv.AddRow("Models", fmt.Sprintf("%d", len(appCtx.Models)))
	kv.AddRow("Tables", fmt.Sprintf("%d", len(appCtx.Schema)))
	kv.AddRow("Routes", fmt.Sprintf("%d", len(appCtx.Routes)))
	kv.AddRow("Controllers", fmt.Sprintf("%d", len(appCtx.Controllers)))
	kv.AddRow("Modules", fmt.Sprintf("%d", len(appCtx.Modules)))
	kv.AddRow("Hash", appCtx.Hash)
	kv.AddRow("Written to", filepath.Join(appcontext.StateDir, appcontext.ContextFile))
	kv.Render()

	if len(appCtx.Warnings) == 0 {
		return
	}
	if !app.Options.Verbose {
		fmt.Fprintln(app.Out, color.YellowString("%d lines could not be parsed (use --verbose to list them)", len(appCtx.Warnings)))
		return
	}
	section := ui.NewSection(app.Out, "Parse warnings", app.Options.NoColor)
	for _, w := range appCtx.Warnings {
		section.AddLine(fmt.Sprintf("%s:%d %s", w.File, w.Line, w.Message))
	}
	section.Render()
}

func runIndexWatch(ctx context.Context, app *App, opts *IndexOptions) error {
	indexer := watch.NewIndexer(app.Root, app.Extractor(), app.Logger)
	indexer.OnRefresh(func(e watch.RefreshEvent) {
		if e.Err != nil {
			fmt.Fprint(app.Err, ui.Warning(fmt.Sprintf("Re-index failed: %v", e.Err), nil, app.Options.NoColor))
			return
		}
		fmt.Fprintf(app.Out, "%s re-indexed after %d changes in %s\n",
			color.GreenString("✓"), len(e.Files), e.Duration.Round(time.Millisecond))
	})
	if err := indexer.Start(opts.Debounce); err != nil {
		return err
	}
	defer func() { _ = indexer.Stop() }()

	fmt.Fprintln(app.Out, color.CyanString("Watching for changes (Ctrl+C to stop)..."))
	ctx, stop := signal.NotifyContext(ctxOrBackground(ctx), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	fmt.Fprintln(app.Out, "Stopped watching.")
	return nil
}

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func logDuration(app *App, what string, start time.Time) {
	app.Logger.Debug(what, zap.Duration("took", time.Since(start)))
}
