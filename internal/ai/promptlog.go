package ai

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// PromptLogFile is the append-only log of every provider exchange
const PromptLogFile = ".railsplan/prompts.log"

// PromptLogEntry is one exchange. Entries are written once and never
// rewritten.
type PromptLogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Session   string            `json:"session"`
	Command   string            `json:"command"`
	Prompt    string            `json:"prompt"`
	System    string            `json:"system,omitempty"`
	Response  string            `json:"response"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// LogFilter selects entries for replay. Empty fields match everything.
type LogFilter struct {
	Session string
	Command string
	Limit   int
}

func (f LogFilter) matches(e PromptLogEntry) bool {
	if f.Session != "" && e.Session != f.Session {
		return false
	}
	if f.Command != "" && e.Command != f.Command {
		return false
	}
	return true
}

// PromptLog appends to and reads .railsplan/prompts.log
type PromptLog struct {
	path    string
	session string
	now     func() time.Time
}

// NewPromptLog opens the log for appRoot with a fresh session id
func NewPromptLog(appRoot string) *PromptLog {
	return &PromptLog{
		path:    filepath.Join(appRoot, filepath.FromSlash(PromptLogFile)),
		session: uuid.NewString(),
		now:     time.Now,
	}
}

// Session returns the id stamped on entries written by this log
func (l *PromptLog) Session() string {
	return l.session
}

// Path returns the log file location
func (l *PromptLog) Path() string {
	return l.path
}

// Append writes one entry as a JSON line
func (l *PromptLog) Append(command string, req Request, resp *Response, metadata map[string]string) (*PromptLogEntry, error) {
	entry := PromptLogEntry{
		Timestamp: l.now().UTC(),
		Session:   l.session,
		Command:   command,
		Prompt:    req.Prompt,
		System:    req.System,
		Metadata:  metadata,
	}
	if resp != nil {
		entry.Response = resp.Text
		if entry.Metadata == nil {
			entry.Metadata = map[string]string{}
		}
		entry.Metadata["provider"] = string(resp.Provider)
		entry.Metadata["model"] = resp.Model
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode prompt log entry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", filepath.Dir(l.path), err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open prompt log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("failed to append prompt log: %w", err)
	}
	return &entry, nil
}

// Read returns the entries matching filter in the order they were written.
// With a Limit, only the most recent matches are kept. Unparseable lines
// are skipped.
func (l *PromptLog) Read(filter LogFilter) ([]PromptLogEntry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []PromptLogEntry{}, nil
		}
		return nil, fmt.Errorf("failed to open prompt log: %w", err)
	}
	defer f.Close()

	entries := []PromptLogEntry{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var e PromptLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if filter.matches(e) {
			entries = append(entries, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read prompt log: %w", err)
	}

	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[len(entries)-filter.Limit:]
	}
	return entries, nil
}
