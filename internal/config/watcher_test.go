package config_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxmail/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

// bumpMtime makes sure the next poll sees a new modification time even on
// filesystems with coarse timestamps.
func bumpMtime(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_ReloadsValidChanges(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voxmail.yaml")
	writeFile(t, path, minimalYAML)

	var (
		mu   sync.Mutex
		seen []config.Diff
	)
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, config.Compare(old, new))
	}, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if w.Current().Server.LogLevel != config.LogInfo {
		t.Fatalf("initial log level = %q", w.Current().Server.LogLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// An invalid edit is ignored.
	writeFile(t, path, "server:\n  log_level: bananas\n")
	bumpMtime(t, path)
	time.Sleep(100 * time.Millisecond)
	if w.Current().Server.LogLevel != config.LogInfo {
		t.Error("invalid config must not replace the current one")
	}

	writeFile(t, path, strings.Replace(minimalYAML, "providers:", "server:\n  log_level: debug\nproviders:", 1))
	future := time.Now().Add(4 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.Current().Server.LogLevel == config.LogDebug {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}

	if w.Current().Server.LogLevel != config.LogDebug {
		t.Fatalf("log level = %q, want debug", w.Current().Server.LogLevel)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || !seen[0].LogLevelChanged || len(seen[0].RestartRequired) != 0 {
		t.Errorf("diffs = %+v", seen)
	}
}

func TestNewWatcher_InvalidInitialConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voxmail.yaml")
	writeFile(t, path, "server:\n  log_level: bananas\n")
	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("expected error")
	}
}
