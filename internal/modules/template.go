package modules

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/railsplan/railsplan/internal/utils"
)

// DefaultTemplatesDir is where module templates live relative to the app root
const DefaultTemplatesDir = "scaffold/templates"

const (
	versionFile     = "VERSION"
	manifestFile    = "module.yml"
	generatorScript = "install.rb"
	readmeFile      = "README.md"
	dbDir           = "db"
	migrateDir      = "db/migrate"
	seedsFile       = "db/seeds.rb"
)

var (
	// ErrModuleNotFound is returned when no template exists for a module name
	ErrModuleNotFound = errors.New("module template not found")

	// ErrInvalidModuleName is returned for names that are not snake_case identifiers
	ErrInvalidModuleName = errors.New("invalid module name")
)

var moduleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Manifest is the optional module.yml shipped with a template
type Manifest struct {
	Description  string   `yaml:"description"`
	Category     string   `yaml:"category"`
	Dependencies []string `yaml:"dependencies"`
	// Routes is inserted into config/routes.rb
	Routes string `yaml:"routes"`
	// Application is inserted into the Application class of config/application.rb
	Application string `yaml:"application"`
}

// Template is a module template directory
type Template struct {
	Name     string
	Dir      string
	Version  string
	Manifest Manifest
}

// ValidateModuleName rejects names that could escape the templates or domains directories
func ValidateModuleName(name string) error {
	if !moduleNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q (use lowercase letters, digits and underscores)", ErrInvalidModuleName, name)
	}
	return nil
}

// LoadTemplate loads the template for name from templatesDir
func LoadTemplate(templatesDir, name string) (*Template, error) {
	if err := ValidateModuleName(name); err != nil {
		return nil, err
	}

	dir := filepath.Join(templatesDir, name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}

	tmpl := &Template{
		Name:    name,
		Dir:     dir,
		Version: DefaultVersion,
	}

	if raw, err := os.ReadFile(filepath.Join(dir, versionFile)); err == nil {
		if v := strings.TrimSpace(string(raw)); v != "" {
			tmpl.Version = v
		}
	}

	if raw, err := os.ReadFile(filepath.Join(dir, manifestFile)); err == nil {
		if err := yaml.Unmarshal(raw, &tmpl.Manifest); err != nil {
			return nil, fmt.Errorf("failed to parse %s for module %s: %w", manifestFile, name, err)
		}
	}

	return tmpl, nil
}

// ListTemplates loads every template under templatesDir, sorted by name.
// A missing directory yields an empty list.
func ListTemplates(templatesDir string) ([]*Template, error) {
	entries, err := os.ReadDir(templatesDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read templates directory: %w", err)
	}

	var templates []*Template
	for _, e := range entries {
		if !e.IsDir() || ValidateModuleName(e.Name()) != nil {
			continue
		}
		tmpl, err := LoadTemplate(templatesDir, e.Name())
		if err != nil {
			return nil, err
		}
		templates = append(templates, tmpl)
	}

	sort.Slice(templates, func(i, j int) bool { return templates[i].Name < templates[j].Name })
	return templates, nil
}

// reserved reports whether rel is template machinery rather than domain content
func reserved(rel string) bool {
	switch rel {
	case versionFile, manifestFile, generatorScript, dbDir:
		return true
	}
	return false
}

// DomainFiles lists the slash-separated template paths copied into the
// module's domain folder
func (t *Template) DomainFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(t.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(t.Dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if reserved(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list template files for %s: %w", t.Name, err)
	}
	sort.Strings(files)
	return files, nil
}

// Migrations returns the template's migration files in name order
func (t *Template) Migrations() ([]string, error) {
	return utils.FindRubyFiles(filepath.Join(t.Dir, filepath.FromSlash(migrateDir)))
}

// Seeds returns the template's seed content, or "" when it ships none
func (t *Template) Seeds() (string, error) {
	raw, err := os.ReadFile(filepath.Join(t.Dir, filepath.FromSlash(seedsFile)))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// GeneratorPath returns the install.rb generator script path, or ""
func (t *Template) GeneratorPath() string {
	p := filepath.Join(t.Dir, generatorScript)
	if utils.FileExists(p) {
		return p
	}
	return ""
}

// Readme returns the template README, or ""
func (t *Template) Readme() string {
	raw, err := os.ReadFile(filepath.Join(t.Dir, readmeFile))
	if err != nil {
		return ""
	}
	return string(raw)
}

// Description returns the manifest description, falling back to the
// first prose line of the README
func (t *Template) Description() string {
	if t.Manifest.Description != "" {
		return t.Manifest.Description
	}

	scanner := bufio.NewScanner(strings.NewReader(t.Readme()))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line
	}
	return ""
}
