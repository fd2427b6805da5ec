package modules

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ConflictKind classifies a difference between installed and template files
type ConflictKind string

const (
	ConflictModified ConflictKind = "modified"
	ConflictMissing  ConflictKind = "missing"
)

// Conflict is an installed file that differs from its template copy
type Conflict struct {
	Path string       `json:"path"`
	Kind ConflictKind `json:"kind"`
}

// DetectConflicts compares every template file with the installed copy.
// It is a plain equality check with no three-way merge, so a file changed
// only by a newer template version is reported as modified too.
func (i *Installer) DetectConflicts(name string) ([]Conflict, error) {
	tmpl, err := i.Template(name)
	if err != nil {
		return nil, err
	}

	files, err := tmpl.DomainFiles()
	if err != nil {
		return nil, err
	}

	domainDir := i.DomainDir(name)
	var conflicts []Conflict
	for _, rel := range files {
		installedPath := filepath.Join(domainDir, filepath.FromSlash(rel))
		installed, err := os.ReadFile(installedPath)
		if errors.Is(err, os.ErrNotExist) {
			conflicts = append(conflicts, Conflict{Path: i.relative(installedPath), Kind: ConflictMissing})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", installedPath, err)
		}

		template, err := os.ReadFile(filepath.Join(tmpl.Dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("failed to read template file %s: %w", rel, err)
		}

		if !bytes.Equal(installed, template) {
			conflicts = append(conflicts, Conflict{Path: i.relative(installedPath), Kind: ConflictModified})
		}
	}
	return conflicts, nil
}
