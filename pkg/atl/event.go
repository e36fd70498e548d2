package atl

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/atl/pkg/impl"
)

// EventState is the lifecycle state of an event.
type EventState int

const (
	EventStateNone EventState = iota
	EventStateLoading

	// EventStatePlayingDelayed marks a Loading event whose start was just
	// reported by the backend and is being moved to Playing.
	EventStatePlayingDelayed
	EventStatePlaying
	EventStateUnloading
	EventStateVirtual
)

// String returns the human-readable name of the state.
func (s EventState) String() string {
	switch s {
	case EventStateNone:
		return "none"
	case EventStateLoading:
		return "loading"
	case EventStatePlayingDelayed:
		return "playing_delayed"
	case EventStatePlaying:
		return "playing"
	case EventStateUnloading:
		return "unloading"
	case EventStateVirtual:
		return "virtual"
	default:
		return "unknown"
	}
}

// event is one playing, loading or unloading unit started on behalf of one
// trigger impl entry. Events live in the event pool; only the audio goroutine
// touches them.
type event struct {
	ref        impl.EventRef
	object     *Object
	triggerID  ControlID
	implID     TriggerImplID
	instanceID TriggerInstanceID
	state      EventState
	backend    impl.Event
}

func (e *event) info() *EventInfo {
	return &EventInfo{TriggerID: e.triggerID, TriggerInstanceID: e.instanceID, State: e.state}
}

// EventInfo describes the event a notification refers to.
type EventInfo struct {
	TriggerID         ControlID         `json:"trigger_id"`
	TriggerInstanceID TriggerInstanceID `json:"trigger_instance_id"`
	State             EventState        `json:"state"`
}

// eventManager pools events and pairs each with its backend counterpart.
type eventManager struct {
	pool    *pool[event]
	backend impl.Impl
	log     *slog.Logger
}

func newEventManager(cfg PoolConfig, log *slog.Logger) *eventManager {
	return &eventManager{pool: newPool[event](cfg), log: log}
}

// construct allocates an event and its backend state.
func (m *eventManager) construct() (*event, error) {
	e := &event{}
	h, err := m.pool.insert(e)
	if err != nil {
		return nil, fmt.Errorf("construct event: %w", err)
	}
	e.ref = impl.EventRef(h)
	be, err := m.backend.ConstructEvent(e.ref)
	if err != nil {
		m.pool.remove(h)
		return nil, fmt.Errorf("construct event: backend: %w", err)
	}
	e.backend = be
	return e, nil
}

// destruct releases e and its backend state. Destructing an event twice is
// a no-op.
func (m *eventManager) destruct(e *event) {
	if _, ok := m.pool.remove(handle(e.ref)); !ok {
		return
	}
	if e.backend != nil {
		m.backend.DestructEvent(e.backend)
		e.backend = nil
	}
	e.state = EventStateNone
}

// lookup resolves a reference reported by the backend.
func (m *eventManager) lookup(ref impl.EventRef) (*event, bool) {
	return m.pool.get(handle(ref))
}

// releaseAll destructs every live event and returns how many there were.
func (m *eventManager) releaseAll() int {
	var all []*event
	m.pool.each(func(_ handle, e *event) { all = append(all, e) })
	for _, e := range all {
		m.destruct(e)
	}
	if len(all) > 0 {
		m.log.Debug("released events", "count", len(all))
	}
	return len(all)
}

func (m *eventManager) len() int { return m.pool.len() }
