package watch

import (
	"strings"
)

// ImpactScope says how much of the context a set of changes invalidates
type ImpactScope int

const (
	ScopeNone    ImpactScope = iota // nothing the context reads
	ScopeSources                    // models, controllers, schema or routes
	ScopeModules                    // module registry or domain folders
)

// ChangeImpact represents the impact of file changes
type ChangeImpact struct {
	Scope         ImpactScope
	Models        []string
	Controllers   []string
	SchemaChanged bool
	RoutesChanged bool
	Modules       []string
}

// RequiresReindex reports whether the context must be re-extracted
func (c *ChangeImpact) RequiresReindex() bool {
	return c.Scope != ScopeNone
}

// AnalyzeImpact classifies app-relative changed paths
func AnalyzeImpact(files []string) *ChangeImpact {
	impact := &ChangeImpact{
		Models:      make([]string, 0),
		Controllers: make([]string, 0),
		Modules:     make([]string, 0),
	}

	raise := func(s ImpactScope) {
		if impact.Scope < s {
			impact.Scope = s
		}
	}

	for _, file := range files {
		switch {
		case strings.HasPrefix(file, "app/models/") && strings.HasSuffix(file, ".rb"):
			raise(ScopeSources)
			impact.Models = append(impact.Models, file)

		case strings.HasPrefix(file, "app/controllers/") && strings.HasSuffix(file, ".rb"):
			raise(ScopeSources)
			impact.Controllers = append(impact.Controllers, file)

		case file == "db/schema.rb":
			raise(ScopeSources)
			impact.SchemaChanged = true

		case file == "config/routes.rb":
			raise(ScopeSources)
			impact.RoutesChanged = true

		case strings.HasPrefix(file, "app/domains/"):
			raise(ScopeModules)
			name := strings.SplitN(strings.TrimPrefix(file, "app/domains/"), "/", 2)[0]
			if name != "" && !contains(impact.Modules, name) {
				impact.Modules = append(impact.Modules, name)
			}

		case strings.HasSuffix(file, "_modules.json"):
			raise(ScopeModules)
		}
	}

	return impact
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
