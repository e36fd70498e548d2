// Package resilience provides circuit breaker and backend failover primitives.
//
// The central type is [CircuitBreaker], a three-state breaker (closed, open,
// half-open) that stops retrying a backend that keeps failing.
// [FallbackGroup] composes candidates of any type with per-entry circuit
// breakers so that a failing primary is bypassed in favour of healthy
// fallbacks. [BackendSelector] applies it to audio backends.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapsed.
	StateOpen

	// StateHalfOpen lets probe calls through one at a time. Enough successful
	// probes close the breaker, a failed one re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 3.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before it lets a probe
	// through. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenSuccesses is how many successful probes close the breaker.
	// Default: 1, since a backend that initialised once is usable.
	HalfOpenSuccesses int

	// OnStateChange is called after every transition, with the breaker's
	// lock released.
	OnStateChange func(name string, from, to State)

	// Logger receives transition logs. Default: slog.Default().
	Logger *slog.Logger
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	log *slog.Logger
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probing   bool
	successes int
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
// Zero-value config fields are replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenSuccesses <= 0 {
		cfg.HalfOpenSuccesses = 1
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &CircuitBreaker{
		cfg: cfg,
		log: log.With("breaker", cfg.Name),
		now: time.Now,
	}
}

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn. In the half-open state only one probe
// runs at a time; concurrent callers get [ErrCircuitOpen].
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	var changed []transition
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		changed = append(changed, cb.setState(StateHalfOpen))
		cb.successes = 0
		fallthrough
	case StateHalfOpen:
		if cb.probing {
			cb.mu.Unlock()
			cb.notify(changed)
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	probe := cb.probing
	cb.mu.Unlock()
	cb.notify(changed)

	err := fn()

	cb.mu.Lock()
	if probe {
		cb.probing = false
	}
	if err != nil {
		changed = []transition{cb.recordFailure(probe)}
	} else {
		changed = []transition{cb.recordSuccess(probe)}
	}
	cb.mu.Unlock()
	cb.notify(changed)
	return err
}

type transition struct{ from, to State }

// setState must be called with cb.mu held.
func (cb *CircuitBreaker) setState(to State) transition {
	t := transition{from: cb.state, to: to}
	cb.state = to
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
	return t
}

// notify logs the transitions and calls OnStateChange. Must be called
// without cb.mu held.
func (cb *CircuitBreaker) notify(ts []transition) {
	for _, t := range ts {
		if t.from == t.to {
			continue
		}
		level := slog.LevelInfo
		if t.to == StateOpen {
			level = slog.LevelWarn
		}
		cb.log.Log(context.Background(), level, "circuit breaker state changed", "from", t.from.String(), "to", t.to.String())
		if cb.cfg.OnStateChange != nil {
			cb.cfg.OnStateChange(cb.cfg.Name, t.from, t.to)
		}
	}
}

// recordFailure must be called with cb.mu held.
func (cb *CircuitBreaker) recordFailure(probe bool) transition {
	if probe {
		cb.failures = cb.cfg.MaxFailures
		return cb.setState(StateOpen)
	}
	cb.failures++
	if cb.failures >= cb.cfg.MaxFailures {
		return cb.setState(StateOpen)
	}
	return transition{cb.state, cb.state}
}

// recordSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) recordSuccess(probe bool) transition {
	if probe {
		cb.successes++
		if cb.successes < cb.cfg.HalfOpenSuccesses {
			return transition{cb.state, cb.state}
		}
	}
	cb.failures = 0
	cb.successes = 0
	return cb.setState(StateClosed)
}

// State returns the current [State] of the breaker. An open breaker whose
// reset timeout elapsed reports [StateHalfOpen]; the transition itself
// happens on the next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Failures returns the number of consecutive failures recorded.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset forces the breaker back to [StateClosed], clearing all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	t := cb.setState(StateClosed)
	cb.failures = 0
	cb.successes = 0
	cb.mu.Unlock()
	cb.notify([]transition{t})
}
