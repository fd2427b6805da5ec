package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/railsplan/railsplan/internal/appcontext"
	"github.com/railsplan/railsplan/internal/modules"
	"github.com/railsplan/railsplan/internal/utils"
)

func (d *Doctor) checkStateDir(ctx context.Context) ([]Issue, error) {
	dir := filepath.Join(d.cfg.AppRoot, appcontext.StateDir)
	if utils.FileExists(dir) {
		return nil, nil
	}
	return []Issue{{
		ID:       "state_dir_missing",
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("%s/ directory is missing", appcontext.StateDir),
		Fixable:  true,
		Fix:      fmt.Sprintf("create %s/", appcontext.StateDir),
		apply: func(context.Context) error {
			return os.MkdirAll(dir, 0755)
		},
	}}, nil
}

func (d *Doctor) checkContext(ctx context.Context) ([]Issue, error) {
	reindex := func(context.Context) error {
		_, err := d.cfg.Extractor.Refresh(d.cfg.AppRoot)
		return err
	}

	_, err := appcontext.NewStore(d.cfg.AppRoot).Load()
	if errors.Is(err, appcontext.ErrNoContext) {
		return []Issue{{
			ID:       "context_missing",
			Severity: SeverityWarning,
			Message:  "application context has not been extracted",
			Fixable:  true,
			Fix:      "run railsplan index",
			apply:    reindex,
		}}, nil
	}

	stale, err := d.cfg.Extractor.Stale(d.cfg.AppRoot)
	if err != nil {
		return nil, err
	}
	if !stale {
		return nil, nil
	}
	return []Issue{{
		ID:       "context_stale",
		Severity: SeverityWarning,
		Message:  "application context is out of date with the source tree",
		Fixable:  true,
		Fix:      "run railsplan index",
		apply:    reindex,
	}}, nil
}

func (d *Doctor) checkRegistry(ctx context.Context) ([]Issue, error) {
	registry := d.cfg.Installer.Registry()
	if !registry.Corrupt() {
		return nil, nil
	}
	return []Issue{{
		ID:       "registry_corrupt",
		Severity: SeverityError,
		Message:  fmt.Sprintf("module registry %s is not valid JSON", relPath(d.cfg.AppRoot, registry.Path())),
		Fixable:  true,
		Fix:      "reset the registry to an empty one",
		apply: func(context.Context) error {
			return registry.Reset()
		},
	}}, nil
}

// checkModules flags registry entries whose domain folder is gone and
// installed modules whose template has a newer version
func (d *Doctor) checkModules(ctx context.Context) ([]Issue, error) {
	installer := d.cfg.Installer
	registry := installer.Registry()

	var issues []Issue
	for _, name := range registry.Names() {
		name := name
		entry, _ := registry.Get(name)

		if !utils.FileExists(installer.DomainDir(name)) {
			issues = append(issues, Issue{
				ID:       "module_missing",
				Severity: SeverityError,
				Message:  fmt.Sprintf("module %s is registered but %s does not exist", name, relPath(d.cfg.AppRoot, installer.DomainDir(name))),
				Fixable:  true,
				Fix:      fmt.Sprintf("drop %s from the registry", name),
				apply: func(context.Context) error {
					return registry.Remove(name)
				},
			})
			continue
		}

		tmpl, err := installer.Template(name)
		if errors.Is(err, modules.ErrModuleNotFound) {
			issues = append(issues, Issue{
				ID:       "template_missing",
				Severity: SeverityInfo,
				Message:  fmt.Sprintf("module %s has no template, it cannot be upgraded", name),
			})
			continue
		}
		if err != nil {
			return nil, err
		}

		if entry != nil && modules.CompareVersions(tmpl.Version, entry.Version) > 0 {
			issues = append(issues, Issue{
				ID:       "module_outdated",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("module %s is v%s, template is v%s", name, entry.Version, tmpl.Version),
				Fix:      fmt.Sprintf("run railsplan upgrade %s", name),
			})
		}
	}
	return issues, nil
}

func (d *Doctor) checkAI(ctx context.Context) ([]Issue, error) {
	if _, err := d.cfg.AIConfig(); err != nil {
		return []Issue{{
			ID:       "ai_not_configured",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("AI provider is not usable: %v", err),
			Fix:      "create ~/.railsplan/ai.yml with provider, model and api_key, or set OPENAI_API_KEY",
		}}, nil
	}
	return nil, nil
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
