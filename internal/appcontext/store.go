package appcontext

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// StateDir holds railsplan's per-app state
const StateDir = ".railsplan"

// ContextFile is the stored context inside StateDir
const ContextFile = "context.json"

// ErrNoContext is returned when no context has been indexed yet
var ErrNoContext = errors.New("no context found")

// Store persists a Context under the app's state directory
type Store struct {
	path string
}

// NewStore returns the store for appRoot
func NewStore(appRoot string) *Store {
	return &Store{path: filepath.Join(appRoot, StateDir, ContextFile)}
}

// Path returns the context file location
func (s *Store) Path() string {
	return s.path
}

// Save writes ctx as indented JSON, creating the state directory
func (s *Store) Save(ctx *Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(s.path), err)
	}
	data, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode context: %w", err)
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write context: %w", err)
	}
	return nil
}

// Load reads the stored context
func (s *Store) Load() (*Context, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoContext
		}
		return nil, fmt.Errorf("failed to read context: %w", err)
	}
	var ctx Context
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return &ctx, nil
}
