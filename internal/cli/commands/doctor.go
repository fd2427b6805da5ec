package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/railsplan/railsplan/internal/ai"
	"github.com/railsplan/railsplan/internal/appcontext"
	"github.com/railsplan/railsplan/internal/cli/ui"
	"github.com/railsplan/railsplan/internal/dashboard"
	"github.com/railsplan/railsplan/internal/doctor"
	"github.com/railsplan/railsplan/internal/watch"
)

// DoctorOptions holds the flags of the doctor command
type DoctorOptions struct {
	Fix    bool
	Report string
}

// NewDoctorCommand creates the doctor command
func NewDoctorCommand(app *App) *cobra.Command {
	opts := &DoctorOptions{}
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the application's railsplan setup",
		Long: `Run health checks: state directory, context freshness, module registry,
installed modules, AI configuration, database and redis connectivity.

Examples:
  railsplan doctor
  railsplan doctor --fix
  railsplan doctor --report=json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context(), app, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Fix, "fix", false, "Apply every automatic fix")
	cmd.Flags().StringVar(&opts.Report, "report", "", "Write a report to .railsplan/ (markdown or json)")
	return cmd
}

func runDoctor(ctx context.Context, app *App, opts *DoctorOptions) error {
	var format doctor.ReportFormat
	if opts.Report != "" {
		f, err := doctor.ParseReportFormat(opts.Report)
		if err != nil {
			return err
		}
		format = f
	}

	doc := app.Doctor()
	report, err := doc.Run(ctxOrBackground(ctx))
	if err != nil {
		return err
	}
	printReport(app, report)

	if opts.Fix && report.FixableIssues > 0 {
		fixed, err := doc.Fix(ctxOrBackground(ctx), report)
		for _, issue := range fixed {
			ui.WriteSuccess(app.Out, fmt.Sprintf("Fixed %s: %s", issue.ID, issue.Fix), app.Options.NoColor)
		}
		if err != nil {
			return err
		}
		// report what is left
		if report, err = doc.Run(ctxOrBackground(ctx)); err != nil {
			return err
		}
		fmt.Fprintf(app.Out, "\n%d issues remain after fixing.\n", report.TotalIssues)
	}

	if format != "" {
		path, err := doctor.WriteReport(app.Root, report, format)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(app.Root, path)
		fmt.Fprintf(app.Out, "Report written to %s\n", rel)
	}
	return nil
}

func printReport(app *App, report *doctor.Report) {
	if report.TotalIssues == 0 {
		ui.WriteSuccess(app.Out, "No issues found", app.Options.NoColor)
		return
	}

	table := ui.NewTable(app.Out, []string{"", "CHECK", "PROBLEM", "FIX"}, &ui.TableOptions{NoColor: app.Options.NoColor})
	for _, issue := range report.Issues {
		fix := issue.Fix
		if issue.Fixable {
			fix += " (auto)"
		}
		table.AddRow(severityIcon(issue.Severity, app.Options.NoColor), issue.ID, issue.Message, fix)
	}
	table.Render()
	fmt.Fprintf(app.Out, "\n%d issues, %d fixable", report.TotalIssues, report.FixableIssues)
	if report.FixableIssues > 0 {
		fmt.Fprint(app.Out, " (run 'railsplan doctor --fix')")
	}
	fmt.Fprintln(app.Out)
}

func severityIcon(s doctor.Severity, noColor bool) string {
	c := color.New(color.FgCyan)
	icon := "ℹ"
	switch s {
	case doctor.SeverityError:
		c, icon = color.New(color.FgRed, color.Bold), "✗"
	case doctor.SeverityWarning:
		c, icon = color.New(color.FgYellow), "⚠"
	}
	if noColor {
		c.DisableColor()
	}
	return c.Sprint(icon)
}

// VerifyOptions holds the flags of the verify command
type VerifyOptions struct {
	CI bool
}

// NewVerifyCommand creates the verify command
func NewVerifyCommand(app *App) *cobra.Command {
	opts := &VerifyOptions{}
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Fail when the context is stale or the doctor finds problems",
		Long: `Check context freshness and run the doctor. Exits with status 1 while
errors or warnings remain. Info-level findings do not fail verification.

Use --ci in pipelines: colors are disabled and nothing is asked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.CI {
				app.Options.NoColor = true
				color.NoColor = true
				app.Confirmer = AutoConfirm(false)
			}
			return runVerify(cmd.Context(), app)
		},
	}
	cmd.Flags().BoolVar(&opts.CI, "ci", false, "Non-interactive mode for CI")
	return cmd
}

func runVerify(ctx context.Context, app *App) error {
	ctx = ctxOrBackground(ctx)

	stale, err := app.Extractor().Stale(app.Root)
	if err != nil {
		return err
	}
	if stale {
		fmt.Fprintln(app.Out, color.YellowString("Context is stale or missing"))
	} else {
		ui.WriteSuccess(app.Out, "Context is up to date", app.Options.NoColor)
	}

	doc := app.Doctor()
	report, err := doc.Run(ctx)
	if err != nil {
		return err
	}
	printReport(app, report)

	if report.FixableIssues > 0 {
		ok, err := app.Confirmer.Confirm(fmt.Sprintf("Apply %d automatic fixes?", report.FixableIssues), true)
		if err != nil {
			return err
		}
		if ok {
			if _, err := doc.Fix(ctx, report); err != nil {
				return err
			}
			if report, err = doc.Run(ctx); err != nil {
				return err
			}
			printReport(app, report)
		}
	}

	blocking := 0
	for _, issue := range report.Issues {
		if issue.Severity != doctor.SeverityInfo {
			blocking++
		}
	}
	if blocking > 0 {
		return fmt.Errorf("verification failed: %d issues remain", blocking)
	}
	ui.WriteSuccess(app.Out, "Verification passed", app.Options.NoColor)
	return nil
}

// DashboardOptions holds the flags of the dashboard command
type DashboardOptions struct {
	Addr    string
	NoWatch bool
}

// NewDashboardCommand creates the dashboard command
func NewDashboardCommand(app *App) *cobra.Command {
	opts := &DashboardOptions{}
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Serve a local dashboard for the application",
		Long: `Serve a JSON API and live event stream for the application's context,
modules, doctor report, prompt history and AI chat. The context is
re-indexed as files change and every refresh is pushed to /api/events.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd.Context(), app, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", dashboard.DefaultAddr, "Listen address")
	cmd.Flags().BoolVar(&opts.NoWatch, "no-watch", false, "Do not re-index on file changes")
	return cmd
}

func runDashboard(ctx context.Context, app *App, opts *DashboardOptions) error {
	server := dashboard.New(dashboard.Config{
		Addr:      opts.Addr,
		AppRoot:   app.Root,
		Extractor: app.Extractor(),
		Installer: app.Installer(),
		Doctor:    app.Doctor(),
		PromptLog: ai.NewPromptLog(app.Root),
		NewAssistant: func(ctx context.Context) (*ai.Assistant, error) {
			return app.Assistant(ctx, aiOptions{})
		},
		Logger: app.Logger,
	})

	shutdown := dashboard.NewGracefulShutdown(server, 10*time.Second, app.Logger)

	if !opts.NoWatch {
		indexer := watch.NewIndexer(app.Root, app.Extractor(), app.Logger)
		indexer.OnRefresh(server.Hub().PublishRefresh)
		if err := indexer.Start(watch.DefaultDebounce); err != nil {
			app.Logger.Warn("file watching disabled", zap.Error(err))
		} else {
			shutdown.RegisterHook(func(context.Context) error {
				return indexer.Stop()
			})
		}
	}

	if _, err := appcontext.NewStore(app.Root).Load(); err != nil {
		fmt.Fprint(app.Err, ui.Warning("No usable context yet; /api/context answers 404 until one exists",
			[]string{"Run 'railsplan index' or POST /api/context/refresh"}, app.Options.NoColor))
	}

	fmt.Fprintf(app.Out, "%s Dashboard on http://%s (Ctrl+C to stop)\n", color.GreenString("▶"), opts.Addr)
	return shutdown.Run(ctxOrBackground(ctx))
}
