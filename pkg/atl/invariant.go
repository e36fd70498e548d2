package atl

import (
	"fmt"
	"log/slog"
)

// InvariantPolicy selects how counter and bookkeeping violations are handled.
type InvariantPolicy string

const (
	// InvariantLenient clamps the offending value, logs at error level and
	// counts the anomaly. Playback continues.
	InvariantLenient InvariantPolicy = "lenient"

	// InvariantStrict panics with an [*InvariantError]. Meant for tests and
	// development builds.
	InvariantStrict InvariantPolicy = "strict"
)

// InvariantError describes a bookkeeping violation detected on the audio
// goroutine.
type InvariantError struct {
	Kind   string
	Object string
	Detail string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("atl: invariant %s violated on object %q: %s", e.Kind, e.Object, e.Detail)
}

// violation applies the configured policy to a detected inconsistency.
func (s *System) violation(o *Object, kind, format string, args ...any) {
	name := ""
	if o != nil {
		name = o.name
	}
	err := &InvariantError{Kind: kind, Object: name, Detail: fmt.Sprintf(format, args...)}
	if s.cfg.InvariantPolicy == InvariantStrict {
		panic(err)
	}
	s.log.Error("invariant violated", slog.String("kind", kind), slog.String("object", name), slog.String("detail", err.Detail))
	s.telemetry.Anomaly(kind)
}

// decrement lowers *counter, treating an underflow as a violation.
func (s *System) decrement(o *Object, counter *int, kind string) {
	if *counter <= 0 {
		s.violation(o, kind, "counter would drop below zero")
		*counter = 0
		return
	}
	*counter--
}
