package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/atl/pkg/atl"
)

// ValidBackendNames lists the backends registered by [DefaultRegistry].
// Used by [Validate] to warn about unrecognised backend names.
var ValidBackendNames = []string{"null", "sim"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields that have a non-zero default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Runtime.InvariantPolicy == "" {
		cfg.Runtime.InvariantPolicy = atl.InvariantLenient
	}
	if cfg.Runtime.Propagation.Mode == "" {
		cfg.Runtime.Propagation.Mode = PropagationNull
	}
	if cfg.Backend.Name == "" {
		cfg.Backend.Name = "null"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "atld"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.FrameRate < 0 {
		errs = append(errs, fmt.Errorf("server.frame_rate %.2f must not be negative", cfg.Server.FrameRate))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Runtime
	rt := cfg.Runtime
	if rt.EventPool.Capacity < 0 {
		errs = append(errs, fmt.Errorf("runtime.event_pool.capacity %d must not be negative", rt.EventPool.Capacity))
	}
	if rt.FilePool.Capacity < 0 {
		errs = append(errs, fmt.Errorf("runtime.file_pool.capacity %d must not be negative", rt.FilePool.Capacity))
	}
	if fixedWithoutCapacity(rt.EventPool) {
		errs = append(errs, errors.New("runtime.event_pool.grow is false but no capacity is set; a fixed pool needs capacity > 0"))
	}
	if fixedWithoutCapacity(rt.FilePool) {
		errs = append(errs, errors.New("runtime.file_pool.grow is false but no capacity is set; a fixed pool needs capacity > 0"))
	}
	if rt.MaxObjects < 0 {
		errs = append(errs, fmt.Errorf("runtime.max_objects %d must not be negative", rt.MaxObjects))
	}
	if rt.IdleUpdateRate < 0 {
		errs = append(errs, fmt.Errorf("runtime.idle_update_rate %.2f must not be negative", rt.IdleUpdateRate))
	}
	switch rt.InvariantPolicy {
	case "", atl.InvariantLenient, atl.InvariantStrict:
	default:
		errs = append(errs, fmt.Errorf("runtime.invariant_policy %q is invalid; valid values: lenient, strict", rt.InvariantPolicy))
	}
	if rt.Propagation.Mode != "" && !rt.Propagation.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("runtime.propagation.mode %q is invalid; valid values: null, accumulator", rt.Propagation.Mode))
	}
	if rt.Propagation.MaxDistance < 0 || rt.Propagation.Window < 0 {
		errs = append(errs, errors.New("runtime.propagation values must not be negative"))
	}

	// Backends
	for i, b := range cfg.Backend.Entries() {
		prefix := "backend"
		if i > 0 {
			prefix = fmt.Sprintf("backend.fallbacks[%d]", i-1)
		}
		if b.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateBackendName(prefix, b.Name)
	}

	// Telemetry
	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %.2f must be within [0, 1]", r))
	}

	// Controls
	if err := cfg.Controls.Definition().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("controls: %w", err))
	}

	return errors.Join(errs...)
}

// validateBackendName logs a warning if name is not one of
// [ValidBackendNames]. Backends registered by embedders are still accepted.
func validateBackendName(field, name string) {
	if slices.Contains(ValidBackendNames, name) {
		return
	}
	slog.Warn("unknown backend name, may be a typo or a custom backend",
		"field", field,
		"name", name,
		"known", ValidBackendNames,
	)
}

func fixedWithoutCapacity(p PoolConfig) bool {
	return p.Grow != nil && !*p.Grow && p.Capacity == 0
}
