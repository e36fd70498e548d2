// Package config provides the configuration schema, loader, file watcher and
// backend registry for the atl daemon.
package config

import (
	"github.com/MrWong99/atl/pkg/atl"
	"github.com/MrWong99/atl/pkg/impl"
	"github.com/MrWong99/atl/pkg/propagation"
)

// LogLevel controls log verbosity for the daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// PropagationMode selects the obstruction/occlusion processor of objects.
type PropagationMode string

const (
	// PropagationNull never produces occlusion values.
	PropagationNull PropagationMode = "null"

	// PropagationAccumulator averages the ray results reported by clients.
	PropagationAccumulator PropagationMode = "accumulator"
)

// IsValid reports whether m is a recognised propagation mode.
func (m PropagationMode) IsValid() bool {
	return m == PropagationNull || m == PropagationAccumulator
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Runtime   RuntimeConfig   `yaml:"runtime"`
	Backend   BackendConfig   `yaml:"backend"`
	Controls  ControlsConfig  `yaml:"controls"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// FrameRate is how many external frames per second the daemon drives.
	// Zero disables the frame driver; the audio goroutine then only runs its
	// idle updates.
	FrameRate float64 `yaml:"frame_rate"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// RuntimeConfig sizes and tunes the audio translation layer.
type RuntimeConfig struct {
	EventPool PoolConfig `yaml:"event_pool"`
	FilePool  PoolConfig `yaml:"file_pool"`

	// MaxObjects caps the number of live objects. Zero means unlimited.
	MaxObjects int `yaml:"max_objects"`

	// IdleUpdateRate is the update frequency in Hz while no frame arrives.
	IdleUpdateRate float64 `yaml:"idle_update_rate"`

	// InvariantPolicy is "lenient" (default) or "strict".
	InvariantPolicy atl.InvariantPolicy `yaml:"invariant_policy"`

	// Language is forwarded to the backend for localised content.
	Language string `yaml:"language"`

	Propagation PropagationConfig `yaml:"propagation"`
}

// PoolConfig sizes one entity pool.
type PoolConfig struct {
	Capacity int `yaml:"capacity"`

	// Grow allows allocation beyond Capacity. Defaults to true.
	Grow *bool `yaml:"grow"`
}

// PropagationConfig selects and tunes the occlusion processor.
type PropagationConfig struct {
	Mode        PropagationMode `yaml:"mode"`
	MaxDistance float32         `yaml:"max_distance"`
	Window      int             `yaml:"window"`
}

// BackendEntry names a registered backend and its options.
type BackendEntry struct {
	// Name selects the registered backend implementation (e.g., "sim").
	Name string `yaml:"name"`

	// Options holds backend-specific configuration values.
	Options map[string]any `yaml:"options"`
}

// BackendConfig selects the active backend. Fallbacks are tried in order
// when the primary backend cannot be created or initialised.
type BackendConfig struct {
	BackendEntry `yaml:",inline"`
	Fallbacks    []BackendEntry `yaml:"fallbacks"`
}

// Entries returns the primary backend followed by its fallbacks.
func (b BackendConfig) Entries() []BackendEntry {
	return append([]BackendEntry{b.BackendEntry}, b.Fallbacks...)
}

// ControlsConfig is the authored control set.
type ControlsConfig struct {
	Triggers     []TriggerConfig `yaml:"triggers"`
	Parameters   []ControlConfig `yaml:"parameters"`
	Switches     []SwitchConfig  `yaml:"switches"`
	Environments []ControlConfig `yaml:"environments"`

	// Preloads lists triggers loaded on the global object at startup.
	Preloads []string `yaml:"preloads"`
}

// TriggerConfig is a trigger and its impl entries.
type TriggerConfig struct {
	Name  string           `yaml:"name"`
	Impls []map[string]any `yaml:"impls"`
}

// ControlConfig is a named control with backend data.
type ControlConfig struct {
	Name string         `yaml:"name"`
	Data map[string]any `yaml:"data"`
}

// SwitchConfig is a switch and its states.
type SwitchConfig struct {
	Name   string          `yaml:"name"`
	States []ControlConfig `yaml:"states"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	// ServiceName is reported as the OpenTelemetry service name.
	ServiceName string `yaml:"service_name"`

	// Disabled turns off metric collection. The /metrics endpoint is then
	// not served.
	Disabled bool `yaml:"disabled"`

	// TraceSampleRatio is the fraction of new traces recorded, in [0, 1].
	// Zero samples everything.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// Definition converts the authored controls into the runtime representation.
func (c ControlsConfig) Definition() atl.ControlsDefinition {
	def := atl.ControlsDefinition{Preloads: c.Preloads}
	for _, t := range c.Triggers {
		td := atl.TriggerDefinition{Name: t.Name}
		for _, data := range t.Impls {
			td.Impls = append(td.Impls, impl.ControlData(data))
		}
		def.Triggers = append(def.Triggers, td)
	}
	for _, p := range c.Parameters {
		def.Parameters = append(def.Parameters, atl.ParameterDefinition{Name: p.Name, Data: impl.ControlData(p.Data)})
	}
	for _, s := range c.Switches {
		sd := atl.SwitchDefinition{Name: s.Name}
		for _, st := range s.States {
			sd.States = append(sd.States, atl.SwitchStateDefinition{Name: st.Name, Data: impl.ControlData(st.Data)})
		}
		def.Switches = append(def.Switches, sd)
	}
	for _, e := range c.Environments {
		def.Environments = append(def.Environments, atl.EnvironmentDefinition{Name: e.Name, Data: impl.ControlData(e.Data)})
	}
	return def
}

func (p PoolConfig) runtime() atl.PoolConfig {
	grow := true
	if p.Grow != nil {
		grow = *p.Grow
	}
	return atl.PoolConfig{Capacity: p.Capacity, Grow: grow}
}

// ATL returns the runtime configuration. Logger and Telemetry are left for
// the caller to fill in.
func (c *Config) ATL() atl.Config {
	cfg := atl.Config{
		MaxObjects:      c.Runtime.MaxObjects,
		IdleUpdateRate:  c.Runtime.IdleUpdateRate,
		InvariantPolicy: c.Runtime.InvariantPolicy,
		Language:        c.Runtime.Language,
		Controls:        c.Controls.Definition(),
	}
	if c.Runtime.EventPool.Capacity > 0 {
		cfg.EventPool = c.Runtime.EventPool.runtime()
	}
	if c.Runtime.FilePool.Capacity > 0 {
		cfg.FilePool = c.Runtime.FilePool.runtime()
	}
	if c.Runtime.Propagation.Mode == PropagationAccumulator {
		cfg.Propagation = propagation.NewAccumulatorFactory(
			propagation.WithMaxDistance(c.Runtime.Propagation.MaxDistance),
			propagation.WithWindow(c.Runtime.Propagation.Window),
		)
	}
	return cfg
}
