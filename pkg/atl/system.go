// Package atl is the audio translation layer: a middleware-agnostic runtime
// that owns audio objects, events and standalone files and forwards every
// playback decision to a pluggable backend ([impl.Impl]).
//
// All state is owned by a single audio goroutine started with [System.Run].
// Other goroutines interact with it exclusively through requests, either
// directly with [System.PushRequest] or through the convenience methods on
// [System], [Object] and [Listener]. The host drives the runtime by calling
// [System.ExternalUpdate] once per frame; without frames the audio goroutine
// still updates at [Config.IdleUpdateRate].
//
// Notifications about processed requests are delivered to listeners
// registered with [System.AddRequestListener], on the goroutine selected by
// the request's callback flags.
package atl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/atl/pkg/impl"
	"github.com/MrWong99/atl/pkg/impl/null"
	"github.com/MrWong99/atl/pkg/propagation"
)

var (
	// ErrSystemStopped is returned by Run after Close.
	ErrSystemStopped = errors.New("atl: system stopped")

	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("atl: already running")
)

// Compile-time interface assertion.
var _ impl.Reporter = (*System)(nil)

// audioRuntime is the state owned by the audio goroutine.
type audioRuntime struct {
	backend   impl.Impl
	objects   objectManager
	listeners listenerManager
	events    *eventManager
	files     *fileManager
	controls  *Controls
	language  string

	lastFrame   uint64
	lastUpdate  time.Time
	instanceSeq TriggerInstanceID
	spare       []*envelope
}

func (rt *audioRuntime) nextInstanceID() TriggerInstanceID {
	rt.instanceSeq++
	if rt.instanceSeq == 0 {
		rt.instanceSeq++
	}
	return rt.instanceSeq
}

// System is one audio translation layer instance.
type System struct {
	cfg       Config
	log       *slog.Logger
	telemetry Telemetry

	mu     sync.Mutex
	queue  []*envelope
	closed bool
	wake   chan struct{}

	syncMu    sync.Mutex
	syncQueue []*envelope

	frame     atomic.Uint64
	heartbeat atomic.Int64
	info      atomic.Pointer[impl.Info]
	running   atomic.Bool

	quit         chan struct{}
	quitOnce     sync.Once
	done         chan struct{}
	teardownOnce sync.Once

	nextID    atomic.Uint64
	nextToken atomic.Uint64

	global    *Object
	listeners listenerRegistry

	rt audioRuntime
}

// New creates a system bound to the null backend. Call [System.Run] (or
// [System.Start]) to start the audio goroutine and [System.SetImpl] to bind
// a real backend.
func New(cfg Config) (*System, error) {
	cfg = cfg.withDefaults()
	controls, err := NewControls(cfg.Controls)
	if err != nil {
		return nil, fmt.Errorf("atl: new: %w", err)
	}

	log := cfg.Logger.With("component", "atl")
	s := &System{
		cfg:       cfg,
		log:       log,
		telemetry: cfg.Telemetry,
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.listeners.log = log
	s.rt.events = newEventManager(cfg.EventPool, log)
	s.rt.files = newFileManager(cfg.FilePool, log)
	s.rt.objects = objectManager{maxObjects: cfg.MaxObjects, factory: cfg.Propagation, log: log}
	s.rt.controls = controls
	s.rt.language = cfg.Language

	s.global = &Object{
		sys:    s,
		id:     s.nextID.Add(1),
		global: true,
		data:   ObjectData{Name: "global", Transformation: impl.IdentityTransformation},
	}
	s.global.initState()
	s.global.propagation = propagation.Null{}
	s.global.registered = true
	s.global.flags |= objectInUse

	backend := null.New()
	if err := backend.Init(s); err != nil {
		return nil, fmt.Errorf("atl: new: init null backend: %w", err)
	}
	s.bindBackend(backend)
	return s, nil
}

// GlobalObject returns the object that is always present and never
// released.
func (s *System) GlobalObject() *Object { return s.global }

// Start runs the audio goroutine in the background until ctx is cancelled
// or Close is called.
func (s *System) Start(ctx context.Context) {
	go func() {
		if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("audio goroutine stopped", "err", err)
		}
	}()
}

// Run executes the audio goroutine on the calling goroutine. It returns
// when ctx is cancelled or Close is called, after releasing the backend.
//
// Each iteration updates once per new external frame. Without a new frame
// it drains the request queue once and then sleeps until a request arrives,
// a frame arrives or the idle update interval elapsed.
func (s *System) Run(ctx context.Context) error {
	select {
	case <-s.quit:
		return ErrSystemStopped
	default:
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.done)
	defer s.teardown()

	s.log.Info("audio goroutine started", "idle_update_rate", s.cfg.IdleUpdateRate)
	interval := s.cfg.idleInterval()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	s.rt.lastUpdate = time.Now()
	drained := false
	for {
		s.heartbeat.Store(time.Now().UnixNano())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.quit:
			return nil
		default:
		}

		if f := s.frame.Load(); f != s.rt.lastFrame {
			s.rt.lastFrame = f
			s.internalUpdate()
			drained = false
			continue
		}
		if !drained {
			s.processRequests()
			s.rt.objects.releasePending(s.rt.backend)
			drained = true
			continue
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.quit:
			return nil
		case <-s.wake:
			drained = false
		case <-timer.C:
			s.internalUpdate()
		}
	}
}

// internalUpdate advances every manager and the backend, then processes
// the queued requests and releases objects that became releasable.
func (s *System) internalUpdate() {
	now := time.Now()
	dt := now.Sub(s.rt.lastUpdate)
	s.rt.lastUpdate = now

	s.rt.listeners.update(dt)
	lt := s.rt.listeners.defaultTransformation()
	s.global.update(dt, lt)
	s.rt.objects.update(dt, lt)
	s.rt.backend.Update(dt)

	s.processRequests()
	s.rt.objects.releasePending(s.rt.backend)
	s.telemetry.PoolUsage(s.rt.objects.len(), s.rt.events.len(), s.rt.files.len())
}

// Close stops the audio goroutine, fails every queued request and releases
// the backend. It is safe to call more than once.
func (s *System) Close() error {
	s.quitOnce.Do(func() { close(s.quit) })
	if s.running.Load() {
		<-s.done
		return nil
	}
	s.teardown()
	return nil
}

func (s *System) teardown() {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		pending := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, env := range pending {
			env.status = StatusFailure
			if env.counted != nil {
				env.counted.inFlight.Add(-1)
			}
			env.signal()
		}
		s.unbindBackend()
		s.heartbeat.Store(0)
		s.log.Info("audio goroutine stopped", "dropped_requests", len(pending))
	})
}

// ─── Request queue ───────────────────────────────────────────────────────────

// PushRequest queues r for the audio goroutine. Non-blocking requests return
// [StatusPending] once queued. Blocking requests wait for the result; they
// must never be pushed from the audio goroutine, e.g. from a callback
// delivered there.
func (s *System) PushRequest(r Request) Status {
	return s.push(&r)
}

func (s *System) push(r *Request) Status {
	env := &envelope{Request: *r, enqueued: time.Now()}
	switch env.Payload.(type) {
	case SetImpl, ReleaseImpl:
		env.Flags |= FlagExecuteBlocking
	}
	if env.Payload != nil && env.Payload.category() == CategoryObject && env.Object == nil {
		env.Object = s.global
	}
	if env.blocking() {
		env.done = make(chan struct{})
	}
	if o := env.Object; o != nil {
		o.inFlight.Add(1)
		env.counted = o
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if env.counted != nil {
			env.counted.inFlight.Add(-1)
		}
		return StatusFailure
	}
	s.queue = append(s.queue, env)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	if !env.blocking() {
		return StatusPending
	}

	start := time.Now()
	<-env.done
	s.telemetry.BlockingWait(env.Kind(), time.Since(start))
	if env.Flags&FlagCallbackOnAudioThread == 0 && env.Flags&FlagCallbackOnExternalOrCallingThread != 0 {
		s.listeners.notify(env.notification())
	}
	return env.status
}

// QueueLen returns the number of requests waiting for the audio goroutine.
func (s *System) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// processRequests drains the queue in FIFO order. Requests pushed while
// processing wait for the next drain.
func (s *System) processRequests() {
	s.mu.Lock()
	batch := s.queue
	s.queue = s.rt.spare[:0]
	s.mu.Unlock()

	for i, env := range batch {
		s.process(env)
		batch[i] = nil
	}
	s.rt.spare = batch[:0]
}

func (s *System) process(env *envelope) {
	env.status = StatusPending
	st := s.dispatch(env)
	if st == StatusPending || st == StatusNone {
		s.log.Warn("request left unresolved", "kind", env.Kind())
		st = StatusFailure
	}
	env.status = st

	category := CategoryManager
	if env.Payload != nil {
		category = env.Payload.category()
	}
	s.telemetry.RequestProcessed(env.Kind(), category, st, time.Since(env.enqueued))
	s.log.Debug("request processed", "kind", env.Kind(), "status", st.String())

	s.finish(env)
	if env.counted != nil {
		env.counted.inFlight.Add(-1)
	}
}

func (s *System) dispatch(env *envelope) Status {
	if env.Payload == nil {
		s.log.Warn("request without payload")
		return StatusFailureInvalidRequest
	}
	switch env.Payload.category() {
	case CategoryManager:
		return s.processManager(env)
	case CategoryObject:
		return s.processObject(env)
	case CategoryListener:
		return s.processListener(env)
	case CategoryCallbackManager:
		return s.processCallback(env)
	default:
		return StatusFailureInvalidRequest
	}
}

// finish delivers the notification according to the request's callback
// flags and releases a blocked caller.
func (s *System) finish(env *envelope) {
	switch {
	case env.Flags&FlagCallbackOnAudioThread != 0:
		s.listeners.notify(env.notification())
	case env.Flags&FlagCallbackOnExternalOrCallingThread != 0 && !env.blocking():
		if o := env.Object; o != nil {
			o.pendingSyncCallbacks.Add(1)
		}
		s.syncMu.Lock()
		s.syncQueue = append(s.syncQueue, env)
		s.syncMu.Unlock()
	}
	if env.blocking() {
		env.signal()
	}
}

// ExternalUpdate delivers the notifications queued for the external thread
// and signals a new frame to the audio goroutine. Call it once per frame
// from the host's main loop.
func (s *System) ExternalUpdate() {
	s.syncMu.Lock()
	batch := s.syncQueue
	s.syncQueue = nil
	s.syncMu.Unlock()

	for _, env := range batch {
		s.listeners.notify(env.notification())
		if o := env.Object; o != nil {
			o.pendingSyncCallbacks.Add(-1)
		}
	}

	s.frame.Add(1)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// ─── Diagnostics ─────────────────────────────────────────────────────────────

// Heartbeat returns when the audio goroutine last went through its loop. It
// is the zero time while the goroutine is not running.
func (s *System) Heartbeat() time.Time {
	ns := s.heartbeat.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// ImplInfo describes the active backend.
func (s *System) ImplInfo() impl.Info {
	if info := s.info.Load(); info != nil {
		return *info
	}
	return impl.Info{}
}

// Frame returns the number of external frames signalled so far.
func (s *System) Frame() uint64 { return s.frame.Load() }

// ─── impl.Reporter ───────────────────────────────────────────────────────────

// ReportStartedEvent implements [impl.Reporter].
func (s *System) ReportStartedEvent(ref impl.EventRef) {
	s.push(&Request{Payload: reportStartedEvent{ref: ref}})
}

// ReportFinishedEvent implements [impl.Reporter].
func (s *System) ReportFinishedEvent(ref impl.EventRef, success bool) {
	s.push(&Request{Payload: reportFinishedEvent{ref: ref, success: success}})
}

// ReportVirtualizedEvent implements [impl.Reporter].
func (s *System) ReportVirtualizedEvent(ref impl.EventRef) {
	s.push(&Request{Payload: reportVirtualizedEvent{ref: ref}})
}

// ReportPhysicalizedEvent implements [impl.Reporter].
func (s *System) ReportPhysicalizedEvent(ref impl.EventRef) {
	s.push(&Request{Payload: reportPhysicalizedEvent{ref: ref}})
}

// ReportStartedFile implements [impl.Reporter].
func (s *System) ReportStartedFile(ref impl.FileRef, success bool) {
	s.push(&Request{Payload: reportStartedFile{ref: ref, success: success}})
}

// ReportStoppedFile implements [impl.Reporter].
func (s *System) ReportStoppedFile(ref impl.FileRef) {
	s.push(&Request{Payload: reportStoppedFile{ref: ref}})
}
