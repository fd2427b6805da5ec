package modules

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/railsplan/railsplan/internal/utils"
)

// PlanAction is the operation a plan describes
type PlanAction string

const (
	PlanInstall PlanAction = "install"
	PlanUpgrade PlanAction = "upgrade"
)

// PlanStep is one change an install or upgrade would make
type PlanStep struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
	Detail string `json:"detail,omitempty"`
}

// Plan describes an install or upgrade without performing it
type Plan struct {
	Module      string     `json:"module"`
	Action      PlanAction `json:"action"`
	FromVersion string     `json:"from_version,omitempty"`
	ToVersion   string     `json:"to_version"`
	Steps       []PlanStep `json:"steps"`
	Conflicts   []Conflict `json:"conflicts,omitempty"`
	Blockers    []string   `json:"blockers,omitempty"`
}

// Plan computes the steps an install or upgrade of name would take
func (i *Installer) Plan(name string, action PlanAction) (*Plan, error) {
	if action == "" {
		action = PlanInstall
	}
	if action != PlanInstall && action != PlanUpgrade {
		return nil, fmt.Errorf("unknown plan action %q (expected install or upgrade)", action)
	}

	tmpl, err := i.Template(name)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Module:    name,
		Action:    action,
		ToVersion: tmpl.Version,
	}

	entry, installed := i.registry.Get(name)
	if installed {
		plan.FromVersion = entry.Version
	}

	switch action {
	case PlanInstall:
		if installed {
			plan.Blockers = append(plan.Blockers, fmt.Sprintf("%s is already installed (v%s); use --force to reinstall", name, entry.Version))
		}
		for _, dep := range tmpl.Manifest.Dependencies {
			if !i.registry.Installed(dep) {
				plan.Blockers = append(plan.Blockers, fmt.Sprintf("requires module %s", dep))
			}
		}
	case PlanUpgrade:
		if !installed {
			plan.Blockers = append(plan.Blockers, fmt.Sprintf("%s is not installed", name))
			break
		}
		switch cmp := CompareVersions(tmpl.Version, entry.Version); {
		case cmp == 0:
			plan.Blockers = append(plan.Blockers, fmt.Sprintf("%s is already up to date", name))
		case cmp < 0:
			plan.Blockers = append(plan.Blockers, fmt.Sprintf("installed v%s is newer than template v%s", entry.Version, tmpl.Version))
		}
		plan.Steps = append(plan.Steps, PlanStep{
			Kind:   "backup",
			Target: i.relative(i.DomainDir(name)),
			Detail: "copied into " + i.relative(i.backupsDir),
		})
		if plan.Conflicts, err = i.DetectConflicts(name); err != nil {
			return nil, err
		}
	}

	files, err := tmpl.DomainFiles()
	if err != nil {
		return nil, err
	}
	for _, rel := range files {
		dst := filepath.Join(i.DomainDir(name), filepath.FromSlash(rel))
		detail := "create"
		if utils.FileExists(dst) {
			detail = "overwrite"
		}
		plan.Steps = append(plan.Steps, PlanStep{Kind: "copy", Target: i.relative(dst), Detail: detail})
	}

	if script := tmpl.GeneratorPath(); script != "" {
		plan.Steps = append(plan.Steps, PlanStep{Kind: "generator", Target: i.relative(script), Detail: "bin/rails app:template"})
	}
	if strings.TrimSpace(tmpl.Manifest.Routes) != "" {
		plan.Steps = append(plan.Steps, PlanStep{Kind: "patch", Target: routesFile, Detail: "insert routes before final end"})
	}
	if strings.TrimSpace(tmpl.Manifest.Application) != "" {
		plan.Steps = append(plan.Steps, PlanStep{Kind: "patch", Target: applicationFile, Detail: "insert configuration into Application class"})
	}

	migrations, err := tmpl.Migrations()
	if err != nil {
		return nil, err
	}
	for _, m := range migrations {
		base := migrationPrefix.ReplaceAllString(filepath.Base(m), "")
		plan.Steps = append(plan.Steps, PlanStep{Kind: "migration", Target: "db/migrate/<timestamp>_" + base})
	}

	if seeds, _ := tmpl.Seeds(); strings.TrimSpace(seeds) != "" {
		plan.Steps = append(plan.Steps, PlanStep{Kind: "seeds", Target: seedsFile, Detail: "append guarded seed block"})
	}

	return plan, nil
}
