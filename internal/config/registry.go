package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/atl/pkg/impl"
	"github.com/MrWong99/atl/pkg/impl/null"
	"github.com/MrWong99/atl/pkg/impl/sim"
)

// ErrBackendNotRegistered is returned by [Registry.Create] when no factory
// has been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// BackendFactory creates a backend from its configuration entry.
type BackendFactory func(entry BackendEntry, log *slog.Logger) (impl.Impl, error)

// Registry maps backend names to their constructor functions. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]BackendFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]BackendFactory)}
}

// DefaultRegistry returns a registry with the built-in null and sim
// backends.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(null.Name, func(BackendEntry, *slog.Logger) (impl.Impl, error) {
		return null.New(), nil
	})
	r.Register(sim.Name, newSim)
	return r
}

// Register registers a backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) Register(name string, factory BackendFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Create instantiates the backend registered under entry.Name.
// Returns [ErrBackendNotRegistered] if no factory has been registered for
// that name.
func (r *Registry) Create(entry BackendEntry, log *slog.Logger) (impl.Impl, error) {
	r.mu.RLock()
	factory, ok := r.factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotRegistered, entry.Name)
	}
	if log == nil {
		log = slog.Default()
	}
	b, err := factory(entry, log)
	if err != nil {
		return nil, fmt.Errorf("config: create backend %q: %w", entry.Name, err)
	}
	return b, nil
}

// SimOptions are the options of the sim backend.
type SimOptions struct {
	// Files maps file names to durations ("90s").
	Files               map[string]time.Duration `yaml:"files"`
	DefaultFileDuration time.Duration            `yaml:"default_file_duration"`
	FileLoadDelay       time.Duration            `yaml:"file_load_delay"`
}

func newSim(entry BackendEntry, log *slog.Logger) (impl.Impl, error) {
	var opts SimOptions
	if err := DecodeOptions(entry.Options, &opts); err != nil {
		return nil, err
	}
	return sim.New(sim.Options{
		Files:               opts.Files,
		DefaultFileDuration: opts.DefaultFileDuration,
		FileLoadDelay:       opts.FileLoadDelay,
		Logger:              log,
	}), nil
}

// DecodeOptions decodes a backend's free-form options into out, rejecting
// unknown keys.
func DecodeOptions(options map[string]any, out any) error {
	if len(options) == 0 {
		return nil
	}
	raw, err := yaml.Marshal(options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	return nil
}
