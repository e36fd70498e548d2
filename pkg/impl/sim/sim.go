// Package sim provides a deterministic, silent backend that simulates
// playback timing.
//
// Time only advances through [Impl.Update], so every report the backend makes
// happens from inside an Update call on the ATL audio goroutine. That makes
// the backend suitable for soak tests, demos and the remote-control protocol
// without any audio hardware.
//
// Trigger impl data keys:
//
//	duration    playback length ("1.5s" or seconds as a number); 0 = one-shot
//	load_delay  time spent Loading before the event becomes audible
//	loop        play until stopped
//	load_time   time a Load/Unload of the trigger takes
//	virtual     start the event inaudible
package sim

import (
	"container/heap"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/atl/pkg/impl"
)

// Name is the registry name of the simulated backend.
const Name = "sim"

// Compile-time interface assertions.
var (
	_ impl.Impl     = (*Impl)(nil)
	_ impl.Object   = (*object)(nil)
	_ impl.Listener = (*listener)(nil)
	_ impl.Event    = (*event)(nil)
	_ impl.Trigger  = (*trigger)(nil)
)

// Options configures the simulated backend.
type Options struct {
	// Files maps playable file names to their durations. When empty, every
	// file name is accepted and plays for DefaultFileDuration.
	Files map[string]time.Duration

	// DefaultFileDuration is used for files not listed in Files. Default: 1s.
	DefaultFileDuration time.Duration

	// FileLoadDelay is how long a file stays Loading before it starts.
	FileLoadDelay time.Duration

	// Logger receives debug output. Defaults to [slog.Default].
	Logger *slog.Logger
}

// Impl is the simulated backend. Create it with [New].
type Impl struct {
	opts     Options
	log      *slog.Logger
	reporter impl.Reporter

	now    int64
	seq    uint64
	timers timerHeap

	language string
	events   map[*event]struct{}
	files    map[*file]struct{}
}

// New returns a simulated backend.
func New(opts Options) *Impl {
	if opts.DefaultFileDuration <= 0 {
		opts.DefaultFileDuration = time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Impl{
		opts:   opts,
		log:    log.With("backend", Name),
		events: make(map[*event]struct{}),
		files:  make(map[*file]struct{}),
	}
}

// after schedules fn to run once the simulated clock advanced by d.
func (s *Impl) after(d time.Duration, fn func()) {
	s.seq++
	heap.Push(&s.timers, timer{at: s.now + int64(d), seq: s.seq, fn: fn})
}

// Init implements [impl.Impl].
func (s *Impl) Init(r impl.Reporter) error {
	if r == nil {
		return fmt.Errorf("sim: init: nil reporter")
	}
	s.reporter = r
	s.log.Debug("simulated backend initialised", "files", len(s.opts.Files))
	return nil
}

// ShutDown implements [impl.Impl]. Scheduled actions are discarded.
func (s *Impl) ShutDown() {
	s.timers = s.timers[:0]
}

// Release implements [impl.Impl].
func (s *Impl) Release() {
	clear(s.events)
	clear(s.files)
	s.reporter = nil
}

// Update advances the simulated clock by dt and runs every action that became
// due, including actions scheduled by the actions themselves.
func (s *Impl) Update(dt time.Duration) {
	if dt > 0 {
		s.now += int64(dt)
	}
	for len(s.timers) > 0 && s.timers[0].at <= s.now {
		t := heap.Pop(&s.timers).(timer)
		t.fn()
	}
}

// Now returns the simulated time.
func (s *Impl) Now() time.Duration { return time.Duration(s.now) }

// SetLanguage implements [impl.Impl].
func (s *Impl) SetLanguage(language string) { s.language = language }

// StopAllSounds implements [impl.Impl].
func (s *Impl) StopAllSounds() {
	s.log.Debug("stopping all sounds", "events", len(s.events), "files", len(s.files))
	for e := range s.events {
		_ = e.Stop()
	}
	for f := range s.files {
		f.stop()
	}
}

// GetFileData implements [impl.Impl].
func (s *Impl) GetFileData(name string) (impl.FileData, error) {
	d, ok := s.fileDuration(name)
	if !ok {
		return impl.FileData{}, fmt.Errorf("sim: unknown file %q", name)
	}
	return impl.FileData{Duration: d}, nil
}

func (s *Impl) fileDuration(name string) (time.Duration, bool) {
	if len(s.opts.Files) == 0 {
		return s.opts.DefaultFileDuration, true
	}
	d, ok := s.opts.Files[name]
	return d, ok
}

// GetInfo implements [impl.Impl].
func (s *Impl) GetInfo() impl.Info { return impl.Info{Name: Name, Version: "1"} }

// ─── Objects and listeners ───────────────────────────────────────────────────

type object struct {
	sim    *Impl
	name   string
	t      impl.Transformation
	events map[*event]struct{}
	params map[impl.Parameter]float32
}

// ConstructGlobalObject implements [impl.Impl].
func (s *Impl) ConstructGlobalObject() (impl.Object, error) {
	return s.newObject("global", impl.IdentityTransformation), nil
}

// ConstructObject implements [impl.Impl].
func (s *Impl) ConstructObject(name string, t impl.Transformation) (impl.Object, error) {
	return s.newObject(name, t), nil
}

func (s *Impl) newObject(name string, t impl.Transformation) *object {
	return &object{
		sim:    s,
		name:   name,
		t:      t,
		events: make(map[*event]struct{}),
		params: make(map[impl.Parameter]float32),
	}
}

// DestructObject implements [impl.Impl].
func (s *Impl) DestructObject(o impl.Object) {
	if obj, ok := o.(*object); ok {
		clear(obj.events)
	}
}

func (o *object) Update(time.Duration) {}

func (o *object) SetTransformation(t impl.Transformation) error {
	o.t = t
	return nil
}

func (o *object) SetObstructionOcclusion(float32, float32) error { return nil }
func (o *object) SetOcclusionType(impl.OcclusionType) error      { return nil }
func (o *object) ToggleFunctionality(impl.Functionality, bool)   {}
func (o *object) SetEnvironment(impl.Environment, float32) error { return nil }
func (o *object) SetSwitchState(impl.SwitchState) error          { return nil }

func (o *object) SetParameter(p impl.Parameter, value float32) error {
	o.params[p] = value
	return nil
}

func (o *object) SetName(name string) error {
	o.name = name
	return nil
}

func (o *object) StopAllTriggers() error {
	for e := range o.events {
		_ = e.Stop()
	}
	return nil
}

// ExecuteTrigger schedules the event's lifecycle according to the trigger
// data.
func (o *object) ExecuteTrigger(it impl.Trigger, ie impl.Event) impl.Status {
	t, ok := it.(*trigger)
	if !ok {
		return impl.StatusFailure
	}
	e, ok := ie.(*event)
	if !ok {
		return impl.StatusFailure
	}
	if t.duration == 0 && !t.loop {
		return impl.StatusSuccessDoNotTrack
	}

	s := o.sim
	e.object = o
	e.trigger = t
	o.events[e] = struct{}{}
	s.events[e] = struct{}{}
	gen := e.gen

	if t.loadDelay > 0 {
		e.state = eventLoading
		s.after(t.loadDelay, func() {
			if e.gen != gen {
				return
			}
			e.state = eventPlaying
			s.reporter.ReportStartedEvent(e.ref)
			e.scheduleEnd()
		})
		return impl.StatusPending
	}

	e.state = eventPlaying
	e.scheduleEnd()
	if t.virtual {
		return impl.StatusSuccessVirtual
	}
	return impl.StatusSuccess
}

type file struct {
	sim      *Impl
	ref      impl.FileRef
	name     string
	duration time.Duration
	playing  bool
	gen      uint64
}

func (f *file) stop() {
	f.gen++
	f.playing = false
	delete(f.sim.files, f)
}

// PlayFile starts the file after the configured load delay and reports its
// end once the file duration elapsed.
func (o *object) PlayFile(sf impl.StandaloneFile) impl.Status {
	f, ok := sf.(*file)
	if !ok {
		return impl.StatusFailure
	}
	s := o.sim
	s.files[f] = struct{}{}
	gen := f.gen
	s.after(s.opts.FileLoadDelay, func() {
		if f.gen != gen {
			return
		}
		f.playing = true
		s.reporter.ReportStartedFile(f.ref, true)
		s.after(f.duration, func() {
			if f.gen != gen {
				return
			}
			f.stop()
			s.reporter.ReportStoppedFile(f.ref)
		})
	})
	return impl.StatusPending
}

// StopFile stops the file immediately.
func (o *object) StopFile(sf impl.StandaloneFile) impl.Status {
	f, ok := sf.(*file)
	if !ok {
		return impl.StatusFailure
	}
	f.stop()
	return impl.StatusSuccess
}

type listener struct {
	name string
	t    impl.Transformation
}

// ConstructListener implements [impl.Impl].
func (s *Impl) ConstructListener(name string, t impl.Transformation) (impl.Listener, error) {
	return &listener{name: name, t: t}, nil
}

// DestructListener implements [impl.Impl].
func (s *Impl) DestructListener(impl.Listener) {}

func (l *listener) SetTransformation(t impl.Transformation) error {
	l.t = t
	return nil
}

func (l *listener) SetName(name string) error {
	l.name = name
	return nil
}

// ─── Events ──────────────────────────────────────────────────────────────────

type eventState int

const (
	eventIdle eventState = iota
	eventLoading
	eventPlaying
	eventDone
)

type event struct {
	sim     *Impl
	ref     impl.EventRef
	object  *object
	trigger *trigger
	state   eventState
	gen     uint64
}

// ConstructEvent implements [impl.Impl].
func (s *Impl) ConstructEvent(ref impl.EventRef) (impl.Event, error) {
	return &event{sim: s, ref: ref}, nil
}

// DestructEvent implements [impl.Impl]. Pending actions of the event are
// cancelled.
func (s *Impl) DestructEvent(ie impl.Event) {
	e, ok := ie.(*event)
	if !ok {
		return
	}
	e.finish()
}

func (e *event) finish() {
	e.gen++
	e.state = eventDone
	delete(e.sim.events, e)
	if e.object != nil {
		delete(e.object.events, e)
	}
}

func (e *event) scheduleEnd() {
	if e.trigger == nil || e.trigger.loop {
		return
	}
	gen := e.gen
	e.sim.after(e.trigger.duration, func() {
		if e.gen != gen {
			return
		}
		e.finish()
		e.sim.reporter.ReportFinishedEvent(e.ref, true)
	})
}

// Stop cancels the event's schedule and reports it finished on the next
// Update.
func (e *event) Stop() error {
	if e.state == eventDone || e.state == eventIdle {
		return nil
	}
	e.finish()
	ref := e.ref
	e.sim.after(0, func() {
		if r := e.sim.reporter; r != nil {
			r.ReportFinishedEvent(ref, true)
		}
	})
	return nil
}

// ─── Controls ────────────────────────────────────────────────────────────────

type trigger struct {
	sim       *Impl
	duration  time.Duration
	loadDelay time.Duration
	loadTime  time.Duration
	loop      bool
	virtual   bool
}

// ConstructTrigger implements [impl.Impl].
func (s *Impl) ConstructTrigger(data impl.ControlData) (impl.Trigger, error) {
	t := &trigger{sim: s}
	var err error
	if t.duration, err = durationValue(data, "duration"); err != nil {
		return nil, err
	}
	if t.loadDelay, err = durationValue(data, "load_delay"); err != nil {
		return nil, err
	}
	if t.loadTime, err = durationValue(data, "load_time"); err != nil {
		return nil, err
	}
	if t.loop, err = boolValue(data, "loop"); err != nil {
		return nil, err
	}
	if t.virtual, err = boolValue(data, "virtual"); err != nil {
		return nil, err
	}
	return t, nil
}

// DestructTrigger implements [impl.Impl].
func (s *Impl) DestructTrigger(impl.Trigger) {}

// Load completes immediately unless the trigger declares a load_time.
func (t *trigger) Load(ie impl.Event) impl.Status {
	return t.transition(ie)
}

// Unload mirrors Load.
func (t *trigger) Unload(ie impl.Event) impl.Status {
	return t.transition(ie)
}

func (t *trigger) transition(ie impl.Event) impl.Status {
	if t.loadTime == 0 {
		return impl.StatusSuccess
	}
	e, ok := ie.(*event)
	if !ok {
		return impl.StatusFailure
	}
	s := t.sim
	e.state = eventLoading
	s.events[e] = struct{}{}
	gen := e.gen
	s.after(t.loadTime, func() {
		if e.gen != gen {
			return
		}
		e.finish()
		s.reporter.ReportFinishedEvent(e.ref, true)
	})
	return impl.StatusPending
}

type control struct {
	data impl.ControlData
}

// ConstructStandaloneFile implements [impl.Impl].
func (s *Impl) ConstructStandaloneFile(ref impl.FileRef, name string, _ bool, _ impl.Trigger) (impl.StandaloneFile, error) {
	d, ok := s.fileDuration(name)
	if !ok {
		return nil, fmt.Errorf("sim: unknown file %q", name)
	}
	return &file{sim: s, ref: ref, name: name, duration: d}, nil
}

// DestructStandaloneFile implements [impl.Impl].
func (s *Impl) DestructStandaloneFile(sf impl.StandaloneFile) {
	if f, ok := sf.(*file); ok {
		f.stop()
	}
}

func (s *Impl) ConstructParameter(data impl.ControlData) (impl.Parameter, error) {
	return &control{data: data}, nil
}

func (s *Impl) DestructParameter(impl.Parameter) {}

func (s *Impl) ConstructSwitchState(data impl.ControlData) (impl.SwitchState, error) {
	return &control{data: data}, nil
}

func (s *Impl) DestructSwitchState(impl.SwitchState) {}

func (s *Impl) ConstructEnvironment(data impl.ControlData) (impl.Environment, error) {
	return &control{data: data}, nil
}

func (s *Impl) DestructEnvironment(impl.Environment) {}

// ActiveEvents returns the number of events that are loading or playing.
func (s *Impl) ActiveEvents() int { return len(s.events) }

func durationValue(data impl.ControlData, key string) (time.Duration, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return 0, nil
	}
	var d time.Duration
	switch x := v.(type) {
	case time.Duration:
		d = x
	case int:
		d = time.Duration(x) * time.Second
	case int64:
		d = time.Duration(x) * time.Second
	case float64:
		d = time.Duration(x * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return 0, fmt.Errorf("sim: %s: %w", key, err)
		}
		d = parsed
	default:
		return 0, fmt.Errorf("sim: %s: unsupported type %T", key, v)
	}
	if d < 0 {
		return 0, fmt.Errorf("sim: %s: must not be negative, got %s", key, d)
	}
	return d, nil
}

func boolValue(data impl.ControlData, key string) (bool, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("sim: %s: expected bool, got %T", key, v)
	}
	return b, nil
}
