package ai

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/railsplan/railsplan/internal/utils"
)

// LastGeneratedDir keeps copies of files overwritten by generation
const LastGeneratedDir = ".railsplan/last_generated"

// FileAction describes what happened to one generated file
type FileAction string

const (
	FileCreated   FileAction = "create"
	FileUpdated   FileAction = "update"
	FileUnchanged FileAction = "identical"
	FileSkipped   FileAction = "skip"
)

// WrittenFile is the outcome for one generated path
type WrittenFile struct {
	Path   string     `json:"path"`
	Action FileAction `json:"action"`
	Backup string     `json:"backup,omitempty"`
}

// WriteOptions controls how generated files are applied
type WriteOptions struct {
	DryRun bool
	// Force overwrites existing files that differ
	Force bool
}

// FileWriter applies generated files inside an app root
type FileWriter struct {
	appRoot string
	logger  *zap.Logger
	out     io.Writer
}

// NewFileWriter creates a writer rooted at appRoot
func NewFileWriter(appRoot string, logger *zap.Logger, out io.Writer) *FileWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	return &FileWriter{appRoot: appRoot, logger: logger, out: out}
}

// Write applies every file of gen. Paths escaping the app root are
// rejected before anything is written.
func (w *FileWriter) Write(gen *Generation, opts WriteOptions) ([]WrittenFile, error) {
	targets := make(map[string]string, len(gen.Files))
	for _, rel := range gen.Paths() {
		abs, err := utils.WithinDir(w.appRoot, rel)
		if err != nil {
			return nil, err
		}
		targets[rel] = abs
	}

	backupRoot := filepath.Join(w.appRoot, filepath.FromSlash(LastGeneratedDir))
	if !opts.DryRun {
		// the previous generation's backups are replaced
		if err := os.RemoveAll(backupRoot); err != nil {
			return nil, fmt.Errorf("failed to clear %s: %w", LastGeneratedDir, err)
		}
	}

	var results []WrittenFile
	for _, rel := range gen.Paths() {
		abs := targets[rel]
		content := []byte(gen.Files[rel])
		result := WrittenFile{Path: rel, Action: FileCreated}

		existing, err := os.ReadFile(abs)
		switch {
		case err == nil && bytes.Equal(existing, content):
			result.Action = FileUnchanged
		case err == nil && !opts.Force:
			result.Action = FileSkipped
		case err == nil:
			result.Action = FileUpdated
			result.Backup = filepath.ToSlash(filepath.Join(LastGeneratedDir, rel))
		case !os.IsNotExist(err):
			return results, fmt.Errorf("failed to read %s: %w", rel, err)
		}

		fmt.Fprintf(w.out, "  %-9s %s\n", result.Action, rel)
		results = append(results, result)

		if opts.DryRun || result.Action == FileUnchanged || result.Action == FileSkipped {
			continue
		}

		if result.Backup != "" {
			if err := utils.CopyFile(abs, filepath.Join(w.appRoot, filepath.FromSlash(result.Backup))); err != nil {
				return results, fmt.Errorf("failed to back up %s: %w", rel, err)
			}
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return results, fmt.Errorf("failed to create directory for %s: %w", rel, err)
		}
		if err := os.WriteFile(abs, content, 0644); err != nil {
			return results, fmt.Errorf("failed to write %s: %w", rel, err)
		}
		w.logger.Debug("wrote generated file", zap.String("path", rel), zap.String("action", string(result.Action)))
	}
	return results, nil
}
