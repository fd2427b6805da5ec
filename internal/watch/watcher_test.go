package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileWatcher_Start(t *testing.T) {
	root := t.TempDir()
	modelsDir := filepath.Join(root, "app", "models")
	if err := os.MkdirAll(modelsDir, 0755); err != nil {
		t.Fatalf("Failed to create models dir: %v", err)
	}

	testFile := filepath.Join(modelsDir, "user.rb")
	if err := os.WriteFile(testFile, []byte("class User\nend\n"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	var mu sync.Mutex
	var changes [][]string

	watcher, err := NewFileWatcher(Options{
		Root:     root,
		Patterns: []string{"*.rb"},
		Debounce: 50 * time.Millisecond,
	}, func(files []string) error {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, files)
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	if err := watcher.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(testFile, []byte("class User\n  has_many :posts\nend\n"), 0644); err != nil {
		t.Fatalf("Failed to modify file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(changes)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()

	if len(changes) == 0 {
		t.Fatal("Expected changes to be detected")
	}
	if changes[0][0] != "app/models/user.rb" {
		t.Errorf("Expected app-relative path, got %q", changes[0][0])
	}
}

func TestDebouncer_Add(t *testing.T) {
	var mu sync.Mutex
	var called bool
	var files []string

	debouncer := NewDebouncer(50 * time.Millisecond)
	debouncer.SetCallback(func(f []string) {
		mu.Lock()
		defer mu.Unlock()
		called = true
		files = f
	})

	debouncer.Add("b.rb")
	debouncer.Add("a.rb")
	debouncer.Add("b.rb") // Duplicate

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if !called {
		t.Fatal("Expected callback to be called")
	}
	if len(files) != 2 {
		t.Fatalf("Expected 2 unique files, got %d", len(files))
	}
	if files[0] != "a.rb" {
		t.Errorf("Expected sorted files, got %v", files)
	}
}

func TestDebouncer_MultipleFlushes(t *testing.T) {
	var mu sync.Mutex
	var callCount int

	debouncer := NewDebouncer(30 * time.Millisecond)
	debouncer.SetCallback(func(f []string) {
		mu.Lock()
		defer mu.Unlock()
		callCount++
	})

	debouncer.Add("file1.rb")
	time.Sleep(100 * time.Millisecond)

	debouncer.Add("file2.rb")
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if callCount != 2 {
		t.Errorf("Expected 2 callback calls, got %d", callCount)
	}
}

func TestDebouncer_AddAfterStop(t *testing.T) {
	called := make(chan struct{}, 1)
	debouncer := NewDebouncer(10 * time.Millisecond)
	debouncer.SetCallback(func([]string) { called <- struct{}{} })

	debouncer.Stop()
	debouncer.Add("late.rb")

	select {
	case <-called:
		t.Error("Expected no callback after Stop")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFileWatcher_ShouldIgnore(t *testing.T) {
	watcher := &FileWatcher{
		ignored: []string{"*.swp", "*.tmp"},
	}

	tests := []struct {
		path     string
		expected bool
	}{
		{"app/models/user.rb", false},
		{"app/models/.user.rb.swp", true},
		{"app/models/user.rb~", true},
		{"db/seeds.tmp", true},
		{"tmp/cache/x.rb", true},
		{"log/development.log", true},
		{"config/routes.rb", false},
	}

	for _, tt := range tests {
		result := watcher.shouldIgnore(tt.path)
		if result != tt.expected {
			t.Errorf("shouldIgnore(%q) = %v, expected %v", tt.path, result, tt.expected)
		}
	}
}

func TestFileWatcher_MatchesPattern(t *testing.T) {
	tests := []struct {
		patterns []string
		path     string
		expected bool
	}{
		{[]string{"*.rb"}, "user.rb", true},
		{[]string{"*.rb"}, "user.erb", false},
		{[]string{"*.rb", "*.yml"}, "database.yml", true},
		{[]string{}, "anything.txt", true}, // No patterns = match all
	}

	for _, tt := range tests {
		watcher := &FileWatcher{patterns: tt.patterns}
		result := watcher.matchesPattern(tt.path)
		if result != tt.expected {
			t.Errorf("matchesPattern(%v, %q) = %v, expected %v",
				tt.patterns, tt.path, result, tt.expected)
		}
	}
}

func TestFileWatcher_Stop(t *testing.T) {
	watcher, err := NewFileWatcher(Options{Root: t.TempDir()}, func(files []string) error { return nil })
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}

	if err := watcher.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}

	if err := watcher.Stop(); err != nil {
		t.Errorf("Stop() returned error: %v", err)
	}

	// Second stop is a no-op
	if err := watcher.Stop(); err != nil {
		t.Errorf("second Stop() returned error: %v", err)
	}
}
