package modules

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/railsplan/railsplan/internal/utils"
)

const (
	// DefaultDomainsDir is where installed modules live relative to the app root
	DefaultDomainsDir = "app/domains"

	// DefaultBackupsDir holds pre-upgrade copies of module folders
	DefaultBackupsDir = ".railsplan/backups"

	routesFile      = "config/routes.rb"
	applicationFile = "config/application.rb"

	migrationTimestampLayout = "20060102150405"
)

var (
	// ErrAlreadyInstalled is returned when installing a module that is in the registry
	ErrAlreadyInstalled = errors.New("module already installed")

	// ErrNotInstalled is returned when removing or upgrading an unknown module
	ErrNotInstalled = errors.New("module not installed")

	// ErrMissingDependency is returned when a module requires another one first
	ErrMissingDependency = errors.New("missing module dependency")
)

var migrationPrefix = regexp.MustCompile(`^\d+_`)

// HostRunner executes the steps that need the host Rails application,
// such as a template's install.rb generator script
type HostRunner interface {
	RunTemplate(ctx context.Context, appRoot, scriptPath string) error
}

// Config configures an Installer. Relative directories are resolved
// against AppRoot.
type Config struct {
	AppRoot      string
	TemplatesDir string
	DomainsDir   string
	BackupsDir   string
	Registry     *Registry
	Runner       HostRunner
	Logger       *zap.Logger
	Out          io.Writer
}

// Installer installs, removes and upgrades module templates in a Rails app
type Installer struct {
	appRoot      string
	templatesDir string
	domainsDir   string
	backupsDir   string
	registry     *Registry
	runner       HostRunner
	logger       *zap.Logger
	out          io.Writer
	now          func() time.Time
}

// InstallOptions configures Install
type InstallOptions struct {
	// Force reinstalls a module that is already in the registry
	Force bool
}

// UpgradeOptions configures Upgrade
type UpgradeOptions struct {
	NoBackup bool
}

// InstallResult describes what Install changed
type InstallResult struct {
	Module     string
	Version    string
	DomainDir  string
	Files      []string
	Migrations []string
	Patched    []string
	Seeded     bool
}

// UpgradeStatus is the outcome of an upgrade attempt
type UpgradeStatus string

const (
	UpgradeApplied        UpgradeStatus = "upgraded"
	UpgradeUpToDate       UpgradeStatus = "up_to_date"
	UpgradeNewerInstalled UpgradeStatus = "newer_installed"
)

// UpgradeResult describes what Upgrade did
type UpgradeResult struct {
	Module    string
	From      string
	To        string
	Status    UpgradeStatus
	BackupDir string
	Conflicts []Conflict
	Install   *InstallResult
}

// NewInstaller creates an installer
func NewInstaller(cfg Config) *Installer {
	resolve := func(p, def string) string {
		if p == "" {
			p = def
		}
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(cfg.AppRoot, p)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	out := cfg.Out
	if out == nil {
		out = io.Discard
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry(filepath.Join(cfg.AppRoot, DefaultRegistryPath), logger)
	}

	return &Installer{
		appRoot:      cfg.AppRoot,
		templatesDir: resolve(cfg.TemplatesDir, DefaultTemplatesDir),
		domainsDir:   resolve(cfg.DomainsDir, DefaultDomainsDir),
		backupsDir:   resolve(cfg.BackupsDir, DefaultBackupsDir),
		registry:     registry,
		runner:       cfg.Runner,
		logger:       logger,
		out:          out,
		now:          time.Now,
	}
}

// Registry returns the registry the installer records into
func (i *Installer) Registry() *Registry {
	return i.registry
}

// Template loads the template for a module
func (i *Installer) Template(name string) (*Template, error) {
	return LoadTemplate(i.templatesDir, name)
}

// Templates lists every available template
func (i *Installer) Templates() ([]*Template, error) {
	return ListTemplates(i.templatesDir)
}

// DomainDir returns the folder a module is installed into
func (i *Installer) DomainDir(name string) string {
	return filepath.Join(i.domainsDir, name)
}

// Install copies a module template into the app and records it
func (i *Installer) Install(ctx context.Context, name string, opts InstallOptions) (*InstallResult, error) {
	tmpl, err := i.Template(name)
	if err != nil {
		return nil, err
	}

	if i.registry.Installed(name) && !opts.Force {
		return nil, fmt.Errorf("%w: %s (use --force to reinstall)", ErrAlreadyInstalled, name)
	}

	for _, dep := range tmpl.Manifest.Dependencies {
		if !i.registry.Installed(dep) {
			return nil, fmt.Errorf("%w: %s requires %s", ErrMissingDependency, name, dep)
		}
	}

	infoColor := color.New(color.FgCyan)
	successColor := color.New(color.FgGreen, color.Bold)

	infoColor.Fprintf(i.out, "Installing %s v%s...\n", name, tmpl.Version)

	res, err := i.apply(ctx, tmpl, false)
	if err != nil {
		return res, err
	}

	if _, err := i.registry.Record(name, tmpl.Version, i.relative(tmpl.Dir), res.Migrations); err != nil {
		return res, err
	}

	successColor.Fprintf(i.out, "✓ Installed %s v%s\n", name, tmpl.Version)
	i.logger.Info("module installed",
		zap.String("module", name),
		zap.String("version", tmpl.Version),
		zap.Int("files", len(res.Files)),
		zap.Int("migrations", len(res.Migrations)))

	return res, nil
}

// apply runs every install step for tmpl. With reapply set, existing
// marker blocks are replaced rather than kept.
func (i *Installer) apply(ctx context.Context, tmpl *Template, reapply bool) (*InstallResult, error) {
	res := &InstallResult{
		Module:    tmpl.Name,
		Version:   tmpl.Version,
		DomainDir: i.DomainDir(tmpl.Name),
	}

	files, err := tmpl.DomainFiles()
	if err != nil {
		return res, err
	}
	for _, rel := range files {
		src := filepath.Join(tmpl.Dir, filepath.FromSlash(rel))
		dst := filepath.Join(res.DomainDir, filepath.FromSlash(rel))
		if err := utils.CopyFile(src, dst); err != nil {
			return res, fmt.Errorf("failed to copy %s: %w", rel, err)
		}
		res.Files = append(res.Files, i.relative(dst))
	}
	if err := os.MkdirAll(res.DomainDir, 0755); err != nil {
		return res, fmt.Errorf("failed to create %s: %w", res.DomainDir, err)
	}

	if script := tmpl.GeneratorPath(); script != "" {
		if i.runner == nil {
			i.logger.Warn("no host runner configured, skipping generator", zap.String("module", tmpl.Name))
		} else if err := i.runner.RunTemplate(ctx, i.appRoot, script); err != nil {
			return res, fmt.Errorf("generator for %s failed: %w", tmpl.Name, err)
		}
	}

	patched, err := i.patch(routesFile, tmpl.Manifest.Routes, tmpl.Name, "routes", "  ", finalEndPattern, reapply)
	if err != nil {
		return res, err
	}
	if patched {
		res.Patched = append(res.Patched, routesFile)
	}

	patched, err = i.patch(applicationFile, tmpl.Manifest.Application, tmpl.Name, "application", "    ", classEndPattern, reapply)
	if err != nil {
		return res, err
	}
	if patched {
		res.Patched = append(res.Patched, applicationFile)
	}

	res.Migrations, err = i.copyMigrations(tmpl)
	if err != nil {
		return res, err
	}

	res.Seeded, err = i.appendSeeds(tmpl)
	if err != nil {
		return res, err
	}

	return res, nil
}

// patch inserts the module's marker block into rel. With reapply set the
// old block is removed first, even when the new snippet is empty.
func (i *Installer) patch(rel, snippet, module, kind, indent string, anchor *regexp.Regexp, reapply bool) (bool, error) {
	empty := strings.TrimSpace(snippet) == ""
	if empty && !reapply {
		return false, nil
	}

	path := filepath.Join(i.appRoot, filepath.FromSlash(rel))
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		i.logger.Warn("file to patch not found, skipping", zap.String("file", rel), zap.String("module", module))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", rel, err)
	}

	original := string(raw)
	content := original
	if reapply {
		content, _ = removeBlock(content, module, kind)
	}
	if !empty {
		content, _ = insertBlock(content, snippet, module, kind, indent, anchor)
	}
	if content == original {
		return false, nil
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return true, nil
}

// copyMigrations copies template migrations into db/migrate with fresh
// timestamps, skipping migrations whose name is already present
func (i *Installer) copyMigrations(tmpl *Template) ([]string, error) {
	sources, err := tmpl.Migrations()
	if err != nil || len(sources) == 0 {
		return nil, err
	}

	migrateDir := filepath.Join(i.appRoot, "db", "migrate")
	existing, err := utils.FindRubyFiles(migrateDir)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(existing))
	for _, f := range existing {
		present[migrationPrefix.ReplaceAllString(filepath.Base(f), "")] = true
	}

	var copied []string
	stamp := i.now().UTC()
	for _, src := range sources {
		base := migrationPrefix.ReplaceAllString(filepath.Base(src), "")
		if present[base] {
			i.logger.Debug("migration already present", zap.String("migration", base))
			continue
		}

		var dst string
		for {
			dst = filepath.Join(migrateDir, stamp.Format(migrationTimestampLayout)+"_"+base)
			stamp = stamp.Add(time.Second)
			if !utils.FileExists(dst) {
				break
			}
		}

		if err := utils.CopyFile(src, dst); err != nil {
			return copied, fmt.Errorf("failed to copy migration %s: %w", base, err)
		}
		present[base] = true
		copied = append(copied, i.relative(dst))
	}
	return copied, nil
}

func (i *Installer) appendSeeds(tmpl *Template) (bool, error) {
	seeds, err := tmpl.Seeds()
	if err != nil || strings.TrimSpace(seeds) == "" {
		return false, err
	}

	path := filepath.Join(i.appRoot, filepath.FromSlash(seedsFile))
	raw, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to read %s: %w", seedsFile, err)
	}

	content, changed := appendBlock(string(raw), seeds, tmpl.Name, "seeds")
	if !changed {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", seedsFile, err)
	}
	return true, nil
}

// Remove deletes an installed module: its domain folder, patched snippets,
// seed block, copied migrations and registry entry
func (i *Installer) Remove(ctx context.Context, name string) error {
	if err := ValidateModuleName(name); err != nil {
		return err
	}

	entry, recorded := i.registry.Get(name)
	domainDir := i.DomainDir(name)
	if !recorded && !utils.FileExists(domainDir) {
		return fmt.Errorf("%w: %s", ErrNotInstalled, name)
	}

	warningColor := color.New(color.FgYellow)
	successColor := color.New(color.FgGreen, color.Bold)

	if err := os.RemoveAll(domainDir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", domainDir, err)
	}
	i.removeIfEmpty(i.domainsDir)

	for _, target := range []struct{ rel, kind string }{
		{routesFile, "routes"},
		{applicationFile, "application"},
		{seedsFile, "seeds"},
	} {
		if err := i.unpatch(target.rel, name, target.kind); err != nil {
			return err
		}
	}

	if recorded {
		for _, rel := range entry.Files {
			path, err := utils.WithinDir(i.appRoot, rel)
			if err != nil {
				warningColor.Fprintf(i.out, "⚠ Skipping %s: %v\n", rel, err)
				continue
			}
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to remove %s: %w", rel, err)
			}
		}
		i.removeIfEmpty(filepath.Join(i.appRoot, "db", "migrate"))
	}

	if err := i.registry.Remove(name); err != nil {
		return err
	}

	successColor.Fprintf(i.out, "✓ Removed %s\n", name)
	i.logger.Info("module removed", zap.String("module", name))
	return nil
}

func (i *Installer) unpatch(rel, module, kind string) error {
	path := filepath.Join(i.appRoot, filepath.FromSlash(rel))
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", rel, err)
	}

	content, changed := removeBlock(string(raw), module, kind)
	if !changed {
		return nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return nil
}

func (i *Installer) removeIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) == 0 {
		_ = os.Remove(dir)
	}
}

// Upgrade reapplies a newer template over an installed module. Equal
// versions are a no-op; so is an installed version newer than the template.
func (i *Installer) Upgrade(ctx context.Context, name string, opts UpgradeOptions) (*UpgradeResult, error) {
	tmpl, err := i.Template(name)
	if err != nil {
		return nil, err
	}

	entry, ok := i.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, name)
	}

	result := &UpgradeResult{
		Module: name,
		From:   entry.Version,
		To:     tmpl.Version,
	}

	infoColor := color.New(color.FgCyan)
	warningColor := color.New(color.FgYellow)
	successColor := color.New(color.FgGreen, color.Bold)

	switch cmp := CompareVersions(tmpl.Version, entry.Version); {
	case cmp == 0:
		result.Status = UpgradeUpToDate
		infoColor.Fprintf(i.out, "%s is already up to date (v%s)\n", name, entry.Version)
		return result, nil
	case cmp < 0:
		result.Status = UpgradeNewerInstalled
		warningColor.Fprintf(i.out, "⚠ Installed %s v%s is newer than template v%s, skipping\n", name, entry.Version, tmpl.Version)
		return result, nil
	}

	fmt.Fprintf(i.out, "Upgrading %s from v%s to v%s\n", name, entry.Version, tmpl.Version)

	if !opts.NoBackup {
		backup, err := i.Backup(name)
		if err != nil {
			return result, err
		}
		result.BackupDir = backup
		infoColor.Fprintf(i.out, "Backup created at %s\n", i.relative(backup))
	}

	conflicts, err := i.DetectConflicts(name)
	if err != nil {
		return result, err
	}
	result.Conflicts = conflicts
	for _, c := range conflicts {
		warningColor.Fprintf(i.out, "⚠ %s: %s will be overwritten\n", c.Kind, c.Path)
	}

	res, err := i.apply(ctx, tmpl, true)
	result.Install = res
	if err != nil {
		return result, err
	}

	if _, err := i.registry.Record(name, tmpl.Version, i.relative(tmpl.Dir), res.Migrations); err != nil {
		return result, err
	}

	result.Status = UpgradeApplied
	successColor.Fprintf(i.out, "✓ Upgraded %s to v%s\n", name, tmpl.Version)
	i.logger.Info("module upgraded",
		zap.String("module", name),
		zap.String("from", result.From),
		zap.String("to", result.To),
		zap.String("backup", result.BackupDir))
	return result, nil
}

// UpgradeAll upgrades every installed module whose template still exists
func (i *Installer) UpgradeAll(ctx context.Context, opts UpgradeOptions) ([]*UpgradeResult, error) {
	var results []*UpgradeResult
	for _, name := range i.registry.Names() {
		res, err := i.Upgrade(ctx, name, opts)
		if errors.Is(err, ErrModuleNotFound) {
			i.logger.Warn("template for installed module is gone, skipping", zap.String("module", name))
			continue
		}
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Backup copies the module's domain folder into a timestamped directory
// and returns its path
func (i *Installer) Backup(name string) (string, error) {
	src := i.DomainDir(name)
	dst := filepath.Join(i.backupsDir, fmt.Sprintf("%s-%s", name, i.now().UTC().Format(migrationTimestampLayout)))

	if !utils.FileExists(src) {
		if err := os.MkdirAll(dst, 0755); err != nil {
			return "", fmt.Errorf("failed to create backup directory: %w", err)
		}
		return dst, nil
	}

	if err := utils.CopyDir(src, dst, nil); err != nil {
		return "", fmt.Errorf("failed to back up %s: %w", name, err)
	}
	return dst, nil
}

// relative renders path relative to the app root when possible
func (i *Installer) relative(path string) string {
	rel, err := filepath.Rel(i.appRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}
