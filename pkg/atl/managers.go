package atl

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/atl/pkg/impl"
	"github.com/MrWong99/atl/pkg/propagation"
)

// objectManager owns the registered objects (the global object excluded).
type objectManager struct {
	objects    []*Object
	maxObjects int
	factory    propagation.Factory
	log        *slog.Logger
}

// register binds o to the backend and starts tracking it.
func (m *objectManager) register(o *Object, b impl.Impl) error {
	if m.maxObjects > 0 && len(m.objects) >= m.maxObjects {
		return fmt.Errorf("register object %q: %w (max %d objects)", o.data.Name, ErrPoolExhausted, m.maxObjects)
	}
	o.initState()
	o.propagation = m.factory(o.name)
	o.propagation.SetOcclusionType(o.occlusionType)
	if err := o.construct(b); err != nil {
		return fmt.Errorf("register object %q: %w", o.name, err)
	}
	o.restore()
	o.registered = true
	o.flags |= objectInUse
	m.objects = append(m.objects, o)
	return nil
}

func (m *objectManager) update(dt time.Duration, listener impl.Transformation) {
	for _, o := range m.objects {
		o.update(dt, listener)
	}
}

// releasePending destructs every object that was released and has nothing
// left in flight. It returns how many objects were destructed.
func (m *objectManager) releasePending(b impl.Impl) int {
	kept := m.objects[:0]
	released := 0
	for _, o := range m.objects {
		if !o.canBeReleased() {
			kept = append(kept, o)
			continue
		}
		m.log.Debug("object released", "object", o.name, "id", o.id)
		o.propagation.ReleasePendingRays()
		o.destruct(b)
		o.registered = false
		released++
	}
	clear(m.objects[len(kept):])
	m.objects = kept
	return released
}

func (m *objectManager) len() int { return len(m.objects) }

// Listener is a point of hearing. The first registered listener is the
// default listener objects are evaluated against.
type Listener struct {
	sys  *System
	id   uint64
	data ListenerData

	registered     bool
	name           string
	transformation impl.Transformation
	velocity       impl.Vec3
	backend        impl.Listener
}

// ListenerData describes a listener to create.
type ListenerData struct {
	Name           string
	Transformation impl.Transformation
}

// ID returns the listener's process-unique identifier.
func (l *Listener) ID() uint64 { return l.id }

func (l *Listener) construct(b impl.Impl) error {
	bl, err := b.ConstructListener(l.name, l.transformation)
	if err != nil {
		return fmt.Errorf("construct listener %q: %w", l.name, err)
	}
	l.backend = bl
	return nil
}

func (l *Listener) destruct(b impl.Impl) {
	if l.backend != nil {
		b.DestructListener(l.backend)
		l.backend = nil
	}
}

// listenerManager owns the registered listeners.
type listenerManager struct {
	listeners []*Listener
	lastPos   map[*Listener]impl.Vec3
}

func (m *listenerManager) register(l *Listener, b impl.Impl) error {
	l.name = l.data.Name
	l.transformation = l.data.Transformation
	if err := l.construct(b); err != nil {
		return err
	}
	l.registered = true
	m.listeners = append(m.listeners, l)
	return nil
}

func (m *listenerManager) release(l *Listener, b impl.Impl) bool {
	for i, cur := range m.listeners {
		if cur != l {
			continue
		}
		l.destruct(b)
		l.registered = false
		m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
		delete(m.lastPos, l)
		return true
	}
	return false
}

// defaultTransformation returns the placement of the default listener, or
// the identity when no listener exists.
func (m *listenerManager) defaultTransformation() impl.Transformation {
	if len(m.listeners) == 0 {
		return impl.IdentityTransformation
	}
	return m.listeners[0].transformation
}

// update derives listener velocities from their movement.
func (m *listenerManager) update(dt time.Duration) {
	if m.lastPos == nil {
		m.lastPos = make(map[*Listener]impl.Vec3)
	}
	for _, l := range m.listeners {
		pos := l.transformation.Position
		if prev, ok := m.lastPos[l]; ok && dt > 0 {
			l.velocity = pos.Sub(prev).Scale(float32(1 / dt.Seconds()))
		}
		m.lastPos[l] = pos
	}
}

func (m *listenerManager) len() int { return len(m.listeners) }
