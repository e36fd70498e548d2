package config_test

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/atl/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
backend:
  name: sim
controls:
  triggers:
    - name: footstep
      impls:
        - duration: 250ms
`

const watcherUpdatedYAML = `
server:
  log_level: debug
backend:
  name: sim
controls:
  triggers:
    - name: footstep
      impls:
        - duration: 250ms
    - name: door_open
      impls:
        - duration: 1s
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

const watcherCommentOnlyYAML = `
# same settings, different bytes
server:
  log_level: info
backend:
  name: sim
controls:
  triggers:
    - name: footstep
      impls:
        - duration: 250ms
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

// changeRecorder collects onChange calls.
type changeRecorder struct {
	mu    sync.Mutex
	calls [][2]*config.Config
	fired chan struct{}
}

func newChangeRecorder() *changeRecorder {
	return &changeRecorder{fired: make(chan struct{}, 8)}
}

func (r *changeRecorder) onChange(old, new *config.Config) {
	r.mu.Lock()
	r.calls = append(r.calls, [2]*config.Config{old, new})
	r.mu.Unlock()
	r.fired <- struct{}{}
}

func (r *changeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// newTestWatcher writes content and watches it. Polling is effectively
// disabled unless interval is set; tests drive checks with Reload.
func newTestWatcher(t *testing.T, content string, rec *changeRecorder, opts ...config.WatcherOption) (*config.Watcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "atld.yaml")
	writeFile(t, path, content)
	opts = append([]config.WatcherOption{config.WithInterval(time.Hour)}, opts...)
	w, err := config.NewWatcher(path, rec.onChange, opts...)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, path
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	w, _ := newTestWatcher(t, watcherValidYAML, newChangeRecorder())

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/atld.yaml", nil); err == nil {
		t.Fatal("expected error for non-existent file, got nil")
	}

	path := filepath.Join(t.TempDir(), "atld.yaml")
	writeFile(t, path, watcherInvalidYAML)
	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("expected error for invalid initial config, got nil")
	}
}

func TestWatcher_ReloadAppliesChange(t *testing.T) {
	t.Parallel()
	rec := newChangeRecorder()
	w, path := newTestWatcher(t, watcherValidYAML, rec)

	writeFile(t, path, watcherUpdatedYAML)
	if !w.Reload() {
		t.Fatal("Reload() = false, want true")
	}
	if rec.count() != 1 {
		t.Fatalf("onChange calls = %d, want 1", rec.count())
	}

	old, new := rec.calls[0][0], rec.calls[0][1]
	if old.Server.LogLevel != config.LogInfo || new.Server.LogLevel != config.LogDebug {
		t.Errorf("log levels: old %q new %q", old.Server.LogLevel, new.Server.LogLevel)
	}
	if d := config.Diff(old, new); !d.ControlsChanged || d.BackendChanged {
		t.Errorf("diff: got %+v, want only controls and log level changed", d)
	}
	if w.Current() != new {
		t.Error("Current() is not the applied config")
	}

	if w.Reload() {
		t.Error("second Reload() of unchanged content = true, want false")
	}
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()
	var logs bytes.Buffer
	rec := newChangeRecorder()
	w, path := newTestWatcher(t, watcherValidYAML, rec,
		config.WithWatcherLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	writeFile(t, path, watcherInvalidYAML)
	w.Reload()
	w.Reload()

	if rec.count() != 0 {
		t.Errorf("onChange calls = %d, want 0 for an invalid config", rec.count())
	}
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("Current() log_level = %q, want the previous %q", got, config.LogInfo)
	}
	if n := strings.Count(logs.String(), "config file is invalid"); n != 1 {
		t.Errorf("invalid config logged %d times, want once", n)
	}

	// Fixing the file applies it again.
	writeFile(t, path, watcherUpdatedYAML)
	if !w.Reload() {
		t.Error("Reload() after fixing the file = false, want true")
	}
}

func TestWatcher_IgnoresIneffectiveChanges(t *testing.T) {
	t.Parallel()
	rec := newChangeRecorder()
	w, path := newTestWatcher(t, watcherValidYAML, rec)

	writeFile(t, path, watcherCommentOnlyYAML)
	if w.Reload() {
		t.Error("Reload() of a comment-only change = true, want false")
	}

	now := time.Now().Add(time.Second)
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if w.Reload() {
		t.Error("Reload() after touch = true, want false")
	}
	if rec.count() != 0 {
		t.Errorf("onChange calls = %d, want 0", rec.count())
	}
}

func TestWatcher_PollDetectsChange(t *testing.T) {
	t.Parallel()
	rec := newChangeRecorder()
	w, path := newTestWatcher(t, watcherValidYAML, rec, config.WithInterval(20*time.Millisecond))

	// Move the mtime forward so coarse filesystem timestamps still differ.
	writeFile(t, path, watcherUpdatedYAML)
	later := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("touch: %v", err)
	}

	select {
	case <-rec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("onChange was not invoked within timeout")
	}
	if got := w.Current().Server.LogLevel; got != config.LogDebug {
		t.Errorf("Current() log_level = %q, want %q", got, config.LogDebug)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	w, _ := newTestWatcher(t, watcherValidYAML, newChangeRecorder())
	w.Stop()
	w.Stop()
}
