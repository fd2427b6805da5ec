package appcontext

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"

	"github.com/railsplan/railsplan/internal/utils"
)

// Locations scanned relative to the app root
const (
	ModelsDir       = "app/models"
	ControllersDir  = "app/controllers"
	SchemaFile      = "db/schema.rb"
	RoutesFile      = "config/routes.rb"
	ApplicationFile = "config/application.rb"
)

var appModulePattern = regexp.MustCompile(`(?m)^module\s+(\w+)`)

// ModuleSource lists installed modules for inclusion in a context
type ModuleSource interface {
	InstalledModules() ([]string, error)
}

type sourceKind int

const (
	modelSource sourceKind = iota
	controllerSource
	schemaSource
	routesSource
)

type sourceFile struct {
	rel  string
	kind sourceKind
	data []byte
}

// Extractor builds Contexts from an application tree
type Extractor struct {
	scanner        ModelFileScanner
	modules        ModuleSource
	logger         *zap.Logger
	extraModelDirs []string
	now            func() time.Time
}

// Option configures an Extractor
type Option func(*Extractor)

// WithScanner replaces the default regex model scanner
func WithScanner(s ModelFileScanner) Option {
	return func(e *Extractor) { e.scanner = s }
}

// WithModuleSource sets where installed module names come from
func WithModuleSource(src ModuleSource) Option {
	return func(e *Extractor) { e.modules = src }
}

// WithLogger sets the extractor's logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// WithExtraModelDirs adds app-relative directories scanned for models,
// such as app/domains
func WithExtraModelDirs(dirs ...string) Option {
	return func(e *Extractor) { e.extraModelDirs = append(e.extraModelDirs, dirs...) }
}

// WithClock overrides the GeneratedAt timestamp source
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// NewExtractor creates an Extractor
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		scanner: NewRegexModelScanner(),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract scans appRoot and returns a fresh Context. Malformed Ruby never
// fails extraction; only I/O errors do.
func (e *Extractor) Extract(appRoot string) (*Context, error) {
	files, err := e.collect(appRoot)
	if err != nil {
		return nil, err
	}
	modules, err := e.installedModules()
	if err != nil {
		return nil, err
	}

	ctx := &Context{
		AppName:     appName(appRoot),
		GeneratedAt: e.now().UTC(),
		Hash:        fingerprint(files, modules),
		Models:      []Model{},
		Schema:      map[string]Table{},
		Routes:      []Route{},
		Controllers: []Controller{},
		Modules:     modules,
	}

	for _, f := range files {
		var warnings []ParseWarning
		switch f.kind {
		case modelSource:
			var model *Model
			model, warnings = e.scanner.ScanModel(f.rel, f.data)
			if model != nil {
				ctx.Models = append(ctx.Models, *model)
			}
		case controllerSource:
			var ctrl *Controller
			ctrl, warnings = ScanController(f.rel, f.data)
			if ctrl != nil {
				ctx.Controllers = append(ctx.Controllers, *ctrl)
			}
		case schemaSource:
			ctx.Schema, warnings = ParseSchema(f.rel, f.data)
		case routesSource:
			ctx.Routes, warnings = ParseRoutes(f.rel, f.data)
		}
		ctx.Warnings = append(ctx.Warnings, warnings...)
	}

	for _, w := range ctx.Warnings {
		e.logger.Debug("degraded parse",
			zap.String("file", w.File),
			zap.Int("line", w.Line),
			zap.String("message", w.Message))
	}
	e.logger.Debug("extracted context",
		zap.String("app", ctx.AppName),
		zap.Int("models", len(ctx.Models)),
		zap.Int("tables", len(ctx.Schema)),
		zap.Int("routes", len(ctx.Routes)),
		zap.Int("controllers", len(ctx.Controllers)),
		zap.String("hash", ctx.Hash))

	return ctx, nil
}

// Fingerprint hashes the scanned inputs and installed module names
// without parsing anything
func (e *Extractor) Fingerprint(appRoot string) (string, error) {
	files, err := e.collect(appRoot)
	if err != nil {
		return "", err
	}
	modules, err := e.installedModules()
	if err != nil {
		return "", err
	}
	return fingerprint(files, modules), nil
}

// installedModules returns the sorted module names, never nil
func (e *Extractor) installedModules() ([]string, error) {
	names := []string{}
	if e.modules == nil {
		return names, nil
	}
	installed, err := e.modules.InstalledModules()
	if err != nil {
		return nil, fmt.Errorf("failed to list installed modules: %w", err)
	}
	names = append(names, installed...)
	sort.Strings(names)
	return names, nil
}

// Stale reports whether the stored context is missing or no longer
// matches the source tree
func (e *Extractor) Stale(appRoot string) (bool, error) {
	stored, err := NewStore(appRoot).Load()
	if err != nil {
		if errors.Is(err, ErrNoContext) {
			return true, nil
		}
		e.logger.Warn("stored context is unreadable", zap.Error(err))
		return true, nil
	}

	current, err := e.Fingerprint(appRoot)
	if err != nil {
		return false, err
	}
	return current != stored.Hash, nil
}

// Refresh extracts and saves a new context
func (e *Extractor) Refresh(appRoot string) (*Context, error) {
	ctx, err := e.Extract(appRoot)
	if err != nil {
		return nil, err
	}
	if err := NewStore(appRoot).Save(ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}

// collect reads every scanned file in sorted path order, honouring the
// app's .gitignore
func (e *Extractor) collect(appRoot string) ([]sourceFile, error) {
	info, err := os.Stat(appRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read app root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("app root %s is not a directory", appRoot)
	}

	matcher := e.loadIgnore(appRoot)

	var files []sourceFile
	add := func(rel string, kind sourceKind) error {
		if matcher != nil && matcher.MatchesPath(rel) {
			return nil
		}
		data, err := os.ReadFile(filepath.Join(appRoot, filepath.FromSlash(rel)))
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("failed to read %s: %w", rel, err)
		}
		files = append(files, sourceFile{rel: rel, kind: kind, data: data})
		return nil
	}

	dirs := map[string]sourceKind{ModelsDir: modelSource, ControllersDir: controllerSource}
	for _, d := range e.extraModelDirs {
		dirs[filepath.ToSlash(filepath.Clean(d))] = modelSource
	}

	seen := make(map[string]bool)
	for dir, kind := range dirs {
		paths, err := utils.FindRubyFiles(filepath.Join(appRoot, filepath.FromSlash(dir)))
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
		}
		for _, p := range paths {
			rel, err := filepath.Rel(appRoot, p)
			if err != nil {
				return nil, err
			}
			rel = filepath.ToSlash(rel)
			if seen[rel] {
				continue
			}
			seen[rel] = true
			if err := add(rel, kind); err != nil {
				return nil, err
			}
		}
	}
	if err := add(SchemaFile, schemaSource); err != nil {
		return nil, err
	}
	if err := add(RoutesFile, routesSource); err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })
	return files, nil
}

func (e *Extractor) loadIgnore(appRoot string) *ignore.GitIgnore {
	path := filepath.Join(appRoot, ".gitignore")
	if !utils.FileExists(path) {
		return nil
	}
	matcher, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		e.logger.Warn("ignoring unreadable .gitignore", zap.Error(err))
		return nil
	}
	return matcher
}

func fingerprint(files []sourceFile, modules []string) string {
	h := sha256.New()
	for _, f := range files {
		h.Write([]byte(f.rel))
		h.Write([]byte{0})
		h.Write(f.data)
	}
	h.Write([]byte("modules"))
	for _, name := range modules {
		h.Write([]byte{0})
		h.Write([]byte(name))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// appName reads `module Foo` from config/application.rb, falling back to
// the directory name
func appName(appRoot string) string {
	if data, err := os.ReadFile(filepath.Join(appRoot, ApplicationFile)); err == nil {
		if m := appModulePattern.FindSubmatch(data); m != nil {
			return string(m[1])
		}
	}
	abs, err := filepath.Abs(appRoot)
	if err != nil {
		return filepath.Base(appRoot)
	}
	return filepath.Base(abs)
}
