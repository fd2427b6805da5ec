package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/railsplan/railsplan/internal/cli/ui"
	"github.com/railsplan/railsplan/internal/modules"
)

// wrapModuleErr keeps the requested name on not-found errors so the error
// renderer can suggest close matches
func wrapModuleErr(name string, err error) error {
	if err != nil && errors.Is(err, modules.ErrModuleNotFound) {
		return &moduleNotFound{name: name, err: err}
	}
	return err
}

// ListOptions holds the flags of the list command
type ListOptions struct {
	Installed bool
}

// NewListCommand creates the list command
func NewListCommand(app *App) *cobra.Command {
	opts := &ListOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available and installed modules",
		Long: `List every module template with its version and install state.

Examples:
  railsplan list
  railsplan list --installed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(app, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Installed, "installed", false, "Only show installed modules")
	return cmd
}

func runList(app *App, opts *ListOptions) error {
	installer := app.Installer()
	templates, err := installer.Templates()
	if err != nil {
		return err
	}
	registry := installer.Registry()

	table := ui.NewTable(app.Out, []string{"MODULE", "VERSION", "INSTALLED", "STATUS", "DESCRIPTION"}, &ui.TableOptions{NoColor: app.Options.NoColor})
	seen := make(map[string]bool)
	for _, tmpl := range templates {
		seen[tmpl.Name] = true
		entry, installed := registry.Get(tmpl.Name)
		if opts.Installed && !installed {
			continue
		}
		installedVersion, status := "-", "available"
		if installed {
			installedVersion = entry.Version
			status = "up to date"
			if modules.CompareVersions(tmpl.Version, entry.Version) > 0 {
				status = "upgrade available"
			}
		}
		table.AddRow(tmpl.Name, tmpl.Version, installedVersion, status, tmpl.Description())
	}

	// installed modules whose template was deleted
	for _, name := range registry.Names() {
		if seen[name] {
			continue
		}
		entry, _ := registry.Get(name)
		table.AddRow(name, "-", entry.Version, "template missing", "")
	}

	if len(templates) == 0 && len(registry.Names()) == 0 {
		fmt.Fprint(app.Out, ui.Info(fmt.Sprintf("No module templates found in %s", app.Settings.TemplatesDir), app.Options.NoColor))
		return nil
	}

	fmt.Fprintln(app.Out)
	table.Render()
	fmt.Fprintln(app.Out)
	return nil
}

// AddOptions holds the flags of the add command
type AddOptions struct {
	Force bool
}

// NewAddCommand creates the add command
func NewAddCommand(app *App) *cobra.Command {
	opts := &AddOptions{}
	cmd := &cobra.Command{
		Use:   "add MODULE",
		Short: "Install a module into the application",
		Long: `Install a module template: copy its files into the domains folder,
copy its migrations, patch routes and application config, append seeds and
run its install.rb generator.

Examples:
  railsplan add billing
  railsplan add billing --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd.Context(), app, args[0], opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Reinstall a module that is already installed")
	return cmd
}

func runAdd(ctx context.Context, app *App, name string, opts *AddOptions) error {
	installer := app.Installer()
	result, err := installer.Install(ctx, name, modules.InstallOptions{Force: opts.Force})
	if err != nil {
		err = wrapModuleErr(name, err)
		switch {
		case errors.Is(err, modules.ErrModuleNotFound):
			return err
		case errors.Is(err, modules.ErrAlreadyInstalled):
			fmt.Fprint(app.Err, ui.Warning(fmt.Sprintf("Module %s is already installed", name),
				[]string{fmt.Sprintf("Reinstall with: railsplan add %s --force", name)}, app.Options.NoColor))
			return reported(err)
		default:
			fmt.Fprint(app.Err, ui.ModuleError("install", name, err.Error(),
				"Files copied before the failure were left in place.", app.Options.NoColor))
			return reported(err)
		}
	}

	kv := ui.NewKeyValueTable(app.Out, app.Options.NoColor)
	kv.AddRow("Location", installer.DomainDir(name))
	kv.AddRow("Files", fmt.Sprintf("%d", len(result.Files)))
	if len(result.Migrations) > 0 {
		kv.AddRow("Migrations", strings.Join(result.Migrations, ", "))
	}
	if len(result.Patched) > 0 {
		kv.AddRow("Patched", strings.Join(result.Patched, ", "))
	}
	if result.Seeded {
		kv.AddRow("Seeds", "appended to db/seeds.rb")
	}
	kv.Render()

	if len(result.Migrations) > 0 {
		fmt.Fprintln(app.Out)
		fmt.Fprintln(app.Out, color.YellowString("Next: run 'bin/rails db:migrate'"))
	}
	return nil
}

// RemoveOptions holds the flags of the remove command
type RemoveOptions struct {
	Force bool
}

// NewRemoveCommand creates the remove command
func NewRemoveCommand(app *App) *cobra.Command {
	opts := &RemoveOptions{}
	cmd := &cobra.Command{
		Use:     "remove MODULE",
		Aliases: []string{"rm"},
		Short:   "Remove an installed module",
		Long: `Remove a module: delete its domain folder and copied migrations, strip
its route and config blocks and drop it from the registry.

Examples:
  railsplan remove billing
  railsplan remove billing --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd.Context(), app, args[0], opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Skip the confirmation prompt")
	return cmd
}

func runRemove(ctx context.Context, app *App, name string, opts *RemoveOptions) error {
	installer := app.Installer()
	if !installer.Registry().Installed(name) {
		fmt.Fprint(app.Err, ui.Warning(fmt.Sprintf("Module %s is not installed", name),
			[]string{"See installed modules: railsplan list --installed"}, app.Options.NoColor))
		return reported(fmt.Errorf("%w: %s", modules.ErrNotInstalled, name))
	}

	if !opts.Force {
		ok, err := app.Confirmer.Confirm(fmt.Sprintf("Remove module %s and delete %s?", name, installer.DomainDir(name)), false)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(app.Out, "Aborted.")
			return nil
		}
	}

	if err := installer.Remove(ctx, name); err != nil {
		fmt.Fprint(app.Err, ui.ModuleError("remove", name, err.Error(), "", app.Options.NoColor))
		return reported(err)
	}
	return nil
}

// UpgradeOptions holds the flags of the upgrade command
type UpgradeOptions struct {
	Yes      bool
	NoBackup bool
}

// NewUpgradeCommand creates the upgrade command
func NewUpgradeCommand(app *App) *cobra.Command {
	opts := &UpgradeOptions{}
	cmd := &cobra.Command{
		Use:   "upgrade [MODULE]",
		Short: "Upgrade installed modules to their template version",
		Long: `Upgrade a module to the version of its template, or every installed
module when none is given. The current module folder is backed up first
unless --no-backup is given. Files you changed since install are reported
as conflicts.

Examples:
  railsplan upgrade billing
  railsplan upgrade billing --yes --no-backup
  railsplan upgrade --yes`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runUpgradeAll(cmd.Context(), app, opts)
			}
			return runUpgrade(cmd.Context(), app, args[0], opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().BoolVar(&opts.NoBackup, "no-backup", false, "Do not back up the module folder first")
	return cmd
}

func runUpgrade(ctx context.Context, app *App, name string, opts *UpgradeOptions) error {
	installer := app.Installer()
	entry, ok := installer.Registry().Get(name)
	if !ok {
		fmt.Fprint(app.Err, ui.Warning(fmt.Sprintf("Module %s is not installed", name),
			[]string{fmt.Sprintf("Install it with: railsplan add %s", name)}, app.Options.NoColor))
		return reported(fmt.Errorf("%w: %s", modules.ErrNotInstalled, name))
	}
	tmpl, err := installer.Template(name)
	if err != nil {
		return wrapModuleErr(name, err)
	}

	// only an actual version bump needs confirmation
	if !opts.Yes && modules.CompareVersions(tmpl.Version, entry.Version) > 0 {
		ok, err := app.Confirmer.Confirm(fmt.Sprintf("Upgrade %s from v%s to v%s?", name, entry.Version, tmpl.Version), true)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(app.Out, "Aborted.")
			return nil
		}
	}

	result, err := installer.Upgrade(ctx, name, modules.UpgradeOptions{NoBackup: opts.NoBackup})
	if err != nil {
		fmt.Fprint(app.Err, ui.ModuleError("upgrade", name, err.Error(),
			"Restore the module folder from .railsplan/backups if it was changed.", app.Options.NoColor))
		return reported(err)
	}
	printConflicts(app, result)
	return nil
}

func printConflicts(app *App, result *modules.UpgradeResult) {
	if result.Status != modules.UpgradeApplied || len(result.Conflicts) == 0 {
		return
	}
	hint := "Compare them with the previous copies and reapply your changes"
	if result.BackupDir != "" {
		hint = fmt.Sprintf("Previous copies are in %s", result.BackupDir)
	}
	fmt.Fprint(app.Out, ui.Warning(fmt.Sprintf("%d files differed from the new template and were replaced", len(result.Conflicts)),
		[]string{hint}, app.Options.NoColor))
}

func runUpgradeAll(ctx context.Context, app *App, opts *UpgradeOptions) error {
	installer := app.Installer()
	names := installer.Registry().Names()
	if len(names) == 0 {
		fmt.Fprintln(app.Out, "No modules installed.")
		return nil
	}

	if !opts.Yes {
		ok, err := app.Confirmer.Confirm(fmt.Sprintf("Upgrade %d installed modules?", len(names)), true)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(app.Out, "Aborted.")
			return nil
		}
	}

	var results []*modules.UpgradeResult
	err := ui.WithProgress(app.Err, "Upgrading modules", len(names), app.Options.NoColor, func(bar *ui.ProgressBar) error {
		for _, name := range names {
			result, err := installer.Upgrade(ctx, name, modules.UpgradeOptions{NoBackup: opts.NoBackup})
			if err != nil {
				return fmt.Errorf("failed to upgrade %s: %w", name, err)
			}
			results = append(results, result)
			bar.Add(1)
		}
		return nil
	})
	for _, result := range results {
		printConflicts(app, result)
	}
	return err
}

// NewInfoCommand creates the info command
func NewInfoCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "info MODULE",
		Short: "Show details about a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(app, args[0])
		},
	}
}

func runInfo(app *App, name string) error {
	installer := app.Installer()
	tmpl, err := installer.Template(name)
	if err != nil {
		return wrapModuleErr(name, err)
	}

	ui.Header(app.Out, tmpl.Name, app.Options.NoColor)
	kv := ui.NewKeyValueTable(app.Out, app.Options.NoColor)
	kv.AddRow("Version", tmpl.Version)
	if desc := tmpl.Description(); desc != "" {
		kv.AddRow("Description", desc)
	}
	if tmpl.Manifest.Category != "" {
		kv.AddRow("Category", tmpl.Manifest.Category)
	}
	if len(tmpl.Manifest.Dependencies) > 0 {
		kv.AddRow("Depends on", strings.Join(tmpl.Manifest.Dependencies, ", "))
	}
	kv.AddRow("Template", tmpl.Dir)

	if entry, ok := installer.Registry().Get(name); ok {
		kv.AddRow("Installed", fmt.Sprintf("v%s at %s", entry.Version, entry.InstalledAt.Format("2006-01-02 15:04")))
		if entry.PreviousVersion != "" && entry.UpgradedAt != nil {
			kv.AddRow("Upgraded", fmt.Sprintf("from v%s at %s", entry.PreviousVersion, entry.UpgradedAt.Format("2006-01-02 15:04")))
		}
		kv.AddRow("Location", installer.DomainDir(name))
	} else {
		kv.AddRow("Installed", "no")
	}
	kv.Render()

	if readme := tmpl.Readme(); readme != "" {
		fmt.Fprintln(app.Out)
		fmt.Fprintln(app.Out, strings.TrimSpace(readme))
	}
	return nil
}
