package atl

import (
	"log/slog"
	"reflect"
	"slices"
	"sync"
)

// Notification is delivered to request listeners after a request was
// processed.
type Notification struct {
	Result      Result
	Status      Status
	SystemEvent SystemEvent
	ControlID   ControlID

	Owner         any
	UserData      any
	UserDataOwner any

	// Object is the object the request targeted, if any.
	Object *Object

	// Event is set for notifications about a single event.
	Event *EventInfo

	// File is set for standalone file notifications.
	File *FileInfo
}

// Callback receives notifications. Callbacks run on the audio goroutine, on
// a blocking caller's goroutine or inside ExternalUpdate, depending on the
// request's flags, and must not block.
type Callback func(Notification)

// ListenerToken identifies a registered request listener.
type ListenerToken uint64

type requestListener struct {
	token ListenerToken
	cb    Callback
	owner any
	mask  SystemEvent
}

// listenerRegistry holds request listeners. It is mutated on the audio
// goroutine and read from every goroutine that delivers notifications.
type listenerRegistry struct {
	mu        sync.RWMutex
	listeners []requestListener
	log       *slog.Logger
}

func (r *listenerRegistry) add(l requestListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *listenerRegistry) remove(token ListenerToken) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.IndexFunc(r.listeners, func(l requestListener) bool { return l.token == token })
	if i < 0 {
		return false
	}
	r.listeners = slices.Delete(r.listeners, i, i+1)
	return true
}

func (r *listenerRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// notify calls every listener whose mask and owner filter match n. A
// listener registered without owner receives notifications of every owner.
func (r *listenerRegistry) notify(n Notification) {
	if n.SystemEvent == SystemEventNone {
		return
	}
	r.mu.RLock()
	targets := make([]Callback, 0, len(r.listeners))
	for _, l := range r.listeners {
		if l.mask&n.SystemEvent == 0 {
			continue
		}
		if l.owner != nil && !sameOwner(l.owner, n.Owner) {
			continue
		}
		targets = append(targets, l.cb)
	}
	r.mu.RUnlock()

	for _, cb := range targets {
		r.call(cb, n)
	}
}

func (r *listenerRegistry) call(cb Callback, n Notification) {
	defer func() {
		if v := recover(); v != nil {
			r.log.Error("request listener panicked", "system_event", n.SystemEvent.String(), "panic", v)
		}
	}()
	cb(n)
}

// sameOwner compares owners without panicking on uncomparable values.
func sameOwner(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
