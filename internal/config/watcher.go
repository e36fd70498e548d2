package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Watcher polls a config file and calls onChange with the old and new
// config whenever its content changes to a valid config. Invalid content is
// logged once and otherwise ignored; the previous config stays current.
//
// Reload forces a check outside the polling schedule, for example on SIGHUP.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	log      *slog.Logger

	// checkMu serialises checks so polls and Reload never apply the same
	// change twice.
	checkMu sync.Mutex

	mu       sync.Mutex
	current  *Config
	mtime    time.Time
	sum      uint64
	badSum   uint64
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger for reload and error messages.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWatcher loads the config at path and starts polling it in a background
// goroutine. Call [Watcher.Stop] to end polling.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		log:      slog.Default(),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	data, mtime, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.mtime = mtime
	w.sum = xxhash.Sum64(data)

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling and waits for a running check to return.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	<-w.stopped
}

// Reload checks the file now, regardless of its modification time. It
// reports whether a new config was applied.
func (w *Watcher) Reload() bool {
	return w.check(true)
}

func (w *Watcher) poll() {
	defer close(w.stopped)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check(false)
		}
	}
}

// check loads the file if it changed and applies it when valid. Unless
// force is set, an unchanged modification time skips reading the file.
func (w *Watcher) check(force bool) bool {
	w.checkMu.Lock()
	defer w.checkMu.Unlock()

	if !force {
		info, err := os.Stat(w.path)
		if err != nil {
			w.log.Warn("cannot stat config file", "path", w.path, "err", err)
			return false
		}
		w.mu.Lock()
		unchanged := info.ModTime().Equal(w.mtime)
		w.mu.Unlock()
		if unchanged {
			return false
		}
	}

	data, mtime, err := w.read()
	if err != nil {
		w.log.Warn("cannot read config file", "path", w.path, "err", err)
		return false
	}
	sum := xxhash.Sum64(data)

	w.mu.Lock()
	w.mtime = mtime
	if sum == w.sum || sum == w.badSum {
		w.mu.Unlock()
		return false
	}
	w.mu.Unlock()

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		w.mu.Lock()
		w.badSum = sum
		w.mu.Unlock()
		w.log.Error("config file is invalid, keeping previous config", "path", w.path, "err", err)
		return false
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	w.sum = sum
	w.badSum = 0
	w.mu.Unlock()

	d := Diff(old, cfg)
	if d.Empty() {
		w.log.Debug("config file changed without effective changes", "path", w.path)
		return false
	}
	w.log.Info("configuration reloaded",
		"path", w.path,
		"log_level_changed", d.LogLevelChanged,
		"backend_changed", d.BackendChanged,
		"controls_changed", d.ControlsChanged,
		"language_changed", d.LanguageChanged,
		"restart_required", d.RestartRequired)

	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return true
}

// read returns the file content and its modification time.
func (w *Watcher) read() ([]byte, time.Time, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, time.Time{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, info.ModTime(), nil
}
