package resilience

import (
	"errors"
	"fmt"

	"github.com/MrWong99/atl/pkg/impl"
)

// ErrBackendRejected is returned by a bind function when the runtime could
// not initialise a created backend.
var ErrBackendRejected = errors.New("backend rejected")

// BackendCandidate is one entry of a [BackendSelector].
type BackendCandidate struct {
	Name   string
	Create func() (impl.Impl, error)
}

// BackendSelector picks the first backend that can be created and bound,
// trying the primary first and then each fallback. A candidate that keeps
// failing is skipped by later selections until its circuit breaker resets.
type BackendSelector struct {
	group *FallbackGroup[BackendCandidate]
}

// NewBackendSelector returns a selector trying primary first.
func NewBackendSelector(primary BackendCandidate, cfg FallbackConfig) *BackendSelector {
	return &BackendSelector{group: NewFallbackGroup(primary, primary.Name, cfg)}
}

// AddFallback appends a candidate tried after every earlier one failed.
func (s *BackendSelector) AddFallback(c BackendCandidate) {
	s.group.AddFallback(c.Name, c)
}

// Names returns the candidate names in the order they are tried.
func (s *BackendSelector) Names() []string { return s.group.Names() }

// Select creates each candidate in turn and hands it to bind until bind
// returns nil. It returns the name of the bound candidate. When a created
// backend is rejected by bind, the runtime already discarded it.
func (s *BackendSelector) Select(bind func(name string, b impl.Impl) error) (string, error) {
	return ExecuteWithResult(s.group, func(c BackendCandidate) (string, error) {
		b, err := c.Create()
		if err != nil {
			return "", fmt.Errorf("create %q: %w", c.Name, err)
		}
		if err := bind(c.Name, b); err != nil {
			return "", fmt.Errorf("bind %q: %w", c.Name, err)
		}
		return c.Name, nil
	})
}
