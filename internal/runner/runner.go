// Package runner executes commands inside the host Rails application.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/railsplan/railsplan/internal/utils"
)

// ErrNoTests is returned when a module ships no test directory
var ErrNoTests = errors.New("no tests found")

// Runner shells out to bin/rails
type Runner struct {
	stdout io.Writer
	stderr io.Writer
	env    []string
	logger *zap.Logger
}

// New creates a Runner that streams command output to stdout and stderr
func New(stdout, stderr io.Writer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		env:    os.Environ(),
		logger: logger,
	}
}

// RunTemplate applies a Rails application template, the way a module's
// install.rb generator is executed
func (r *Runner) RunTemplate(ctx context.Context, appRoot, scriptPath string) error {
	abs, err := filepath.Abs(scriptPath)
	if err != nil {
		return err
	}
	return r.rails(ctx, appRoot, "app:template", "LOCATION="+abs)
}

// RunTests runs bin/rails test for the given app-relative paths, or the
// whole suite when paths is empty
func (r *Runner) RunTests(ctx context.Context, appRoot string, paths []string) error {
	args := append([]string{"test"}, paths...)
	return r.rails(ctx, appRoot, args...)
}

func (r *Runner) rails(ctx context.Context, appRoot string, args ...string) error {
	name := filepath.Join(appRoot, "bin", "rails")
	if !utils.FileExists(name) {
		path, err := exec.LookPath("rails")
		if err != nil {
			return fmt.Errorf("bin/rails not found in %s and rails is not on PATH", appRoot)
		}
		name = path
	}

	r.logger.Debug("running rails", zap.String("bin", name), zap.Strings("args", args))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = appRoot
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr
	cmd.Env = r.env

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("rails %s exited with status %d", strings.Join(args, " "), exitErr.ExitCode())
		}
		return fmt.Errorf("failed to run rails %s: %w", strings.Join(args, " "), err)
	}
	return nil
}

// ModuleTestPaths returns the test directories shipped with an installed
// module, relative to the app root
func ModuleTestPaths(appRoot, domainsDir, module string) ([]string, error) {
	base := filepath.Join(domainsDir, module)
	if !filepath.IsAbs(base) {
		base = filepath.Join(appRoot, base)
	}

	var paths []string
	for _, dir := range []string{"test", "spec"} {
		candidate := filepath.Join(base, dir)
		if !utils.FileExists(candidate) {
			continue
		}
		rel, err := filepath.Rel(appRoot, candidate)
		if err != nil {
			return nil, err
		}
		paths = append(paths, filepath.ToSlash(rel))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w for module %s", ErrNoTests, module)
	}
	return paths, nil
}
