package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/railsplan/railsplan/internal/cli/ui"
	"github.com/railsplan/railsplan/internal/modules"
	"github.com/railsplan/railsplan/internal/runner"
)

// PlanOptions holds the flags of the plan command
type PlanOptions struct {
	JSON bool
}

// NewPlanCommand creates the plan command
func NewPlanCommand(app *App) *cobra.Command {
	opts := &PlanOptions{}
	cmd := &cobra.Command{
		Use:   "plan MODULE [install|upgrade]",
		Short: "Preview what installing or upgrading a module would change",
		Long: `Show every file copy, patch and generator step an install or upgrade
would perform, without changing anything.

Examples:
  railsplan plan billing
  railsplan plan billing upgrade --json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := modules.PlanInstall
			if len(args) == 2 {
				action = modules.PlanAction(args[1])
			}
			return runPlan(app, args[0], action, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print the plan as JSON")
	return cmd
}

func runPlan(app *App, name string, action modules.PlanAction, opts *PlanOptions) error {
	plan, err := app.Installer().Plan(name, action)
	if err != nil {
		return wrapModuleErr(name, err)
	}

	if opts.JSON {
		enc := json.NewEncoder(app.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}

	title := fmt.Sprintf("Plan: %s %s v%s", action, plan.Module, plan.ToVersion)
	if plan.FromVersion != "" && action == modules.PlanUpgrade {
		title = fmt.Sprintf("Plan: upgrade %s v%s -> v%s", plan.Module, plan.FromVersion, plan.ToVersion)
	}
	ui.Header(app.Out, title, app.Options.NoColor)

	table := ui.NewTable(app.Out, []string{"STEP", "TARGET", "DETAIL"}, &ui.TableOptions{NoColor: app.Options.NoColor})
	for _, step := range plan.Steps {
		table.AddRow(step.Kind, step.Target, step.Detail)
	}
	table.Render()

	if len(plan.Conflicts) > 0 {
		section := ui.NewSection(app.Out, "Locally modified files", app.Options.NoColor)
		for _, c := range plan.Conflicts {
			section.AddLine(fmt.Sprintf("%s (%s)", c.Path, c.Kind))
		}
		section.Render()
	}

	if len(plan.Blockers) > 0 {
		fmt.Fprintln(app.Out)
		list := ui.NewList(app.Out, ui.ListOptions{Bullet: "✗", NoColor: app.Options.NoColor})
		for _, b := range plan.Blockers {
			list.AddItem(b)
		}
		list.Render()
		return nil
	}

	fmt.Fprintln(app.Out)
	fmt.Fprintln(app.Out, color.GreenString("Nothing blocks this %s.", action))
	return nil
}

// NewTestCommand creates the test command
func NewTestCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "test [MODULE]",
		Short: "Run the tests shipped with installed modules",
		Long: `Run bin/rails test against the test folders of one installed module,
or of every installed module when none is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			installer := app.Installer()
			names := installer.Registry().Names()
			if len(args) == 1 {
				if !installer.Registry().Installed(args[0]) {
					return fmt.Errorf("%w: %s", modules.ErrNotInstalled, args[0])
				}
				names = args
			}

			var paths []string
			for _, name := range names {
				p, err := runner.ModuleTestPaths(app.Root, app.Settings.DomainsDir, name)
				if errors.Is(err, runner.ErrNoTests) {
					app.Logger.Debug(err.Error())
					continue
				}
				if err != nil {
					return err
				}
				paths = append(paths, p...)
			}
			if len(paths) == 0 {
				fmt.Fprint(app.Out, ui.Info("No module tests found.", app.Options.NoColor))
				return nil
			}

			return app.hostRunner().RunTests(cmd.Context(), app.Root, paths)
		},
	}
}
