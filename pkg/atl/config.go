package atl

import (
	"log/slog"
	"time"

	"github.com/MrWong99/atl/pkg/propagation"
)

// Defaults applied by [New] to zero-valued [Config] fields.
const (
	DefaultEventPoolCapacity = 256
	DefaultFilePoolCapacity  = 64
	DefaultIdleUpdateRate    = 30
)

// PoolConfig sizes an entity pool.
type PoolConfig struct {
	// Capacity is the number of slots allocated up front. A zero or
	// negative capacity selects the default growing pool, Grow included.
	Capacity int

	// Grow allows the pool to allocate beyond Capacity. Without it,
	// constructing more than Capacity live entities fails with
	// [ErrPoolExhausted].
	Grow bool
}

// Config configures a [System].
type Config struct {
	// Logger receives all runtime logs. Defaults to [slog.Default].
	Logger *slog.Logger

	// Telemetry receives runtime measurements. Defaults to [NopTelemetry].
	Telemetry Telemetry

	EventPool PoolConfig
	FilePool  PoolConfig

	// MaxObjects caps the number of registered objects, the global object
	// excluded. Zero means unlimited.
	MaxObjects int

	// IdleUpdateRate is how often per second the audio goroutine updates on
	// its own while no external frame arrives. Default: 30.
	IdleUpdateRate float64

	// InvariantPolicy defaults to [InvariantLenient].
	InvariantPolicy InvariantPolicy

	// Language is forwarded to every backend on initialisation.
	Language string

	// Controls is the initial control set.
	Controls ControlsDefinition

	// Propagation creates the obstruction/occlusion processor of every
	// object. Defaults to [propagation.NewNull].
	Propagation propagation.Factory
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Telemetry == nil {
		c.Telemetry = NopTelemetry{}
	}
	if c.EventPool.Capacity <= 0 {
		c.EventPool = PoolConfig{Capacity: DefaultEventPoolCapacity, Grow: true}
	}
	if c.FilePool.Capacity <= 0 {
		c.FilePool = PoolConfig{Capacity: DefaultFilePoolCapacity, Grow: true}
	}
	if c.IdleUpdateRate <= 0 {
		c.IdleUpdateRate = DefaultIdleUpdateRate
	}
	if c.InvariantPolicy == "" {
		c.InvariantPolicy = InvariantLenient
	}
	if c.Propagation == nil {
		c.Propagation = propagation.NewNull()
	}
	return c
}

func (c Config) idleInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.IdleUpdateRate)
}
