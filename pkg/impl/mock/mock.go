// Package mock provides a recording [impl.Impl] for use in unit tests.
//
// The backend is safe for concurrent use: the ATL calls it from its audio
// goroutine while tests inspect it from theirs. Every method call is counted
// by name, and exported fields control return values.
//
// Trigger impl data understood by the mock:
//
//	status       outcome of ExecuteTrigger ("success", "pending", "virtual",
//	             "do_not_track", "failure"); default "success"
//	load_status  outcome of Load and Unload; default "success"
//	fail         make ConstructTrigger fail
//
// Typical usage:
//
//	backend := mock.New()
//	sys.SetImpl(backend)
//	obj.ExecuteTrigger(id, atl.WithBlocking())
//	refs := backend.ExecutedEvents()
//	backend.Reporter().ReportFinishedEvent(refs[0], true)
package mock

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/atl/pkg/impl"
)

// Compile-time interface assertions.
var (
	_ impl.Impl     = (*Impl)(nil)
	_ impl.Object   = (*Object)(nil)
	_ impl.Listener = (*Listener)(nil)
	_ impl.Event    = (*Event)(nil)
	_ impl.Trigger  = (*Trigger)(nil)
)

// ErrConstruct is returned by Construct* calls the mock was told to fail.
var ErrConstruct = errors.New("mock: construct failed")

// Impl is a mock implementation of [impl.Impl].
// Set the exported fields before handing it to the ATL; inspect it with the
// accessor methods afterwards.
type Impl struct {
	mu sync.Mutex

	// Name is reported by GetInfo. Defaults to "mock".
	Name string

	// InitError is returned by Init.
	InitError error

	// PlayFileStatus is returned by Object.PlayFile.
	PlayFileStatus impl.Status

	// StopFileStatus is returned by Object.StopFile.
	StopFileStatus impl.Status

	// StopReportsFinished makes Event.Stop report the event finished right
	// away, the way most middleware acknowledges a stop.
	StopReportsFinished bool

	// FailEvents makes ConstructEvent fail.
	FailEvents bool

	// Files maps known files to their durations. When nil every file is
	// known.
	Files map[string]time.Duration

	reporter impl.Reporter
	calls    map[string]int
	events   map[impl.EventRef]*Event
	files    map[impl.FileRef]*File
	executed []impl.EventRef
	played   []impl.FileRef
	params   map[string]float32
	language string
	updated  time.Duration
}

// New returns a mock backend.
func New() *Impl {
	return &Impl{}
}

func (m *Impl) record(name string) {
	if m.calls == nil {
		m.calls = make(map[string]int)
		m.events = make(map[impl.EventRef]*Event)
		m.files = make(map[impl.FileRef]*File)
		m.params = make(map[string]float32)
	}
	m.calls[name]++
}

// Calls returns how many times the named method was called, e.g.
// "ConstructEvent" or "Object.ExecuteTrigger".
func (m *Impl) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// Reporter returns the reporter received in Init.
func (m *Impl) Reporter() impl.Reporter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reporter
}

// LiveEvents returns how many constructed events were not destructed yet.
func (m *Impl) LiveEvents() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// LiveFiles returns how many constructed standalone files were not
// destructed yet.
func (m *Impl) LiveFiles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// ExecutedEvents returns the refs of every event passed to
// Object.ExecuteTrigger, Trigger.Load or Trigger.Unload, in call order.
func (m *Impl) ExecutedEvents() []impl.EventRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]impl.EventRef(nil), m.executed...)
}

// PlayedFiles returns the refs of every file passed to Object.PlayFile.
func (m *Impl) PlayedFiles() []impl.FileRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]impl.FileRef(nil), m.played...)
}

// EventStopped reports whether Stop was called on the referenced event.
func (m *Impl) EventStopped(ref impl.EventRef) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[ref]
	return ok && e.stopped
}

// Parameter returns the last value set for the parameter with the given
// "name" data entry, across all objects.
func (m *Impl) Parameter(name string) (float32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.params[name]
	return v, ok
}

// Language returns the last language set.
func (m *Impl) Language() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.language
}

// Elapsed returns the sum of all Update durations.
func (m *Impl) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updated
}

// ─── Impl ────────────────────────────────────────────────────────────────────

func (m *Impl) Init(r impl.Reporter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Init")
	if m.InitError != nil {
		return m.InitError
	}
	m.reporter = r
	return nil
}

func (m *Impl) ShutDown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ShutDown")
}

func (m *Impl) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Release")
}

func (m *Impl) Update(dt time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Update")
	m.updated += dt
}

func (m *Impl) SetLanguage(language string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SetLanguage")
	m.language = language
}

func (m *Impl) StopAllSounds() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StopAllSounds")
}

func (m *Impl) GetFileData(name string) (impl.FileData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetFileData")
	if m.Files == nil {
		return impl.FileData{Duration: time.Second}, nil
	}
	d, ok := m.Files[name]
	if !ok {
		return impl.FileData{}, fmt.Errorf("mock: unknown file %q", name)
	}
	return impl.FileData{Duration: d}, nil
}

func (m *Impl) GetInfo() impl.Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := m.Name
	if name == "" {
		name = "mock"
	}
	return impl.Info{Name: name, Version: "test"}
}

func (m *Impl) ConstructGlobalObject() (impl.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ConstructGlobalObject")
	return &Object{m: m, Name: "global"}, nil
}

func (m *Impl) ConstructObject(name string, _ impl.Transformation) (impl.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ConstructObject")
	return &Object{m: m, Name: name}, nil
}

func (m *Impl) DestructObject(impl.Object) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DestructObject")
}

func (m *Impl) ConstructListener(name string, _ impl.Transformation) (impl.Listener, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ConstructListener")
	return &Listener{m: m, Name: name}, nil
}

func (m *Impl) DestructListener(impl.Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DestructListener")
}

func (m *Impl) ConstructEvent(ref impl.EventRef) (impl.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ConstructEvent")
	if m.FailEvents {
		return nil, ErrConstruct
	}
	e := &Event{m: m, Ref: ref}
	m.events[ref] = e
	return e, nil
}

func (m *Impl) DestructEvent(ie impl.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DestructEvent")
	if e, ok := ie.(*Event); ok {
		delete(m.events, e.Ref)
	}
}

func (m *Impl) ConstructStandaloneFile(ref impl.FileRef, name string, localized bool, _ impl.Trigger) (impl.StandaloneFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ConstructStandaloneFile")
	f := &File{Ref: ref, Name: name, Localized: localized}
	m.files[ref] = f
	return f, nil
}

func (m *Impl) DestructStandaloneFile(sf impl.StandaloneFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DestructStandaloneFile")
	if f, ok := sf.(*File); ok {
		delete(m.files, f.Ref)
	}
}

func (m *Impl) ConstructTrigger(data impl.ControlData) (impl.Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ConstructTrigger")
	if fail, _ := data["fail"].(bool); fail {
		return nil, ErrConstruct
	}
	return &Trigger{
		m:          m,
		Data:       data,
		status:     parseStatus(data["status"]),
		loadStatus: parseStatus(data["load_status"]),
	}, nil
}

func (m *Impl) DestructTrigger(impl.Trigger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DestructTrigger")
}

func (m *Impl) ConstructParameter(data impl.ControlData) (impl.Parameter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ConstructParameter")
	return &Control{Data: data}, nil
}

func (m *Impl) DestructParameter(impl.Parameter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DestructParameter")
}

func (m *Impl) ConstructSwitchState(data impl.ControlData) (impl.SwitchState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ConstructSwitchState")
	return &Control{Data: data}, nil
}

func (m *Impl) DestructSwitchState(impl.SwitchState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DestructSwitchState")
}

func (m *Impl) ConstructEnvironment(data impl.ControlData) (impl.Environment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ConstructEnvironment")
	return &Control{Data: data}, nil
}

func (m *Impl) DestructEnvironment(impl.Environment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DestructEnvironment")
}

// ─── Object ──────────────────────────────────────────────────────────────────

// Object is the mock backend object.
type Object struct {
	m      *Impl
	Name   string
	events []*Event
}

func (o *Object) call(name string) {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()
	o.m.record("Object." + name)
}

func (o *Object) Update(time.Duration) {
	o.call("Update")
}

func (o *Object) SetTransformation(impl.Transformation) error {
	o.call("SetTransformation")
	return nil
}

func (o *Object) SetObstructionOcclusion(float32, float32) error {
	o.call("SetObstructionOcclusion")
	return nil
}

func (o *Object) SetOcclusionType(impl.OcclusionType) error {
	o.call("SetOcclusionType")
	return nil
}

func (o *Object) ToggleFunctionality(impl.Functionality, bool) {
	o.call("ToggleFunctionality")
}

// StopAllTriggers stops every event started on the object.
func (o *Object) StopAllTriggers() error {
	o.m.mu.Lock()
	o.m.record("Object.StopAllTriggers")
	events := o.events
	o.events = nil
	o.m.mu.Unlock()

	for _, e := range events {
		_ = e.Stop()
	}
	return nil
}

func (o *Object) SetEnvironment(impl.Environment, float32) error {
	o.call("SetEnvironment")
	return nil
}

func (o *Object) SetSwitchState(impl.SwitchState) error {
	o.call("SetSwitchState")
	return nil
}

func (o *Object) SetName(name string) error {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()
	o.m.record("Object.SetName")
	o.Name = name
	return nil
}

func (o *Object) SetParameter(p impl.Parameter, value float32) error {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()
	o.m.record("Object.SetParameter")
	if c, ok := p.(*Control); ok {
		if name, ok := c.Data["name"].(string); ok {
			o.m.params[name] = value
		}
	}
	return nil
}

func (o *Object) ExecuteTrigger(it impl.Trigger, ie impl.Event) impl.Status {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()
	o.m.record("Object.ExecuteTrigger")
	t, ok := it.(*Trigger)
	if !ok {
		return impl.StatusFailure
	}
	if e, ok := ie.(*Event); ok {
		o.m.executed = append(o.m.executed, e.Ref)
		if t.status != impl.StatusFailure && t.status != impl.StatusSuccessDoNotTrack {
			o.events = append(o.events, e)
		}
	}
	return t.status
}

func (o *Object) PlayFile(sf impl.StandaloneFile) impl.Status {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()
	o.m.record("Object.PlayFile")
	if f, ok := sf.(*File); ok {
		o.m.played = append(o.m.played, f.Ref)
	}
	return o.m.PlayFileStatus
}

func (o *Object) StopFile(impl.StandaloneFile) impl.Status {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()
	o.m.record("Object.StopFile")
	return o.m.StopFileStatus
}

// ─── Listener, Event, File, controls ────────────────────────────────────────

// Listener is the mock backend listener.
type Listener struct {
	m    *Impl
	Name string
}

func (l *Listener) SetTransformation(impl.Transformation) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	l.m.record("Listener.SetTransformation")
	return nil
}

func (l *Listener) SetName(name string) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	l.m.record("Listener.SetName")
	l.Name = name
	return nil
}

// Event is the mock backend event.
type Event struct {
	m       *Impl
	Ref     impl.EventRef
	stopped bool
}

// Stop records the call and, with StopReportsFinished, reports the event
// finished.
func (e *Event) Stop() error {
	e.m.mu.Lock()
	e.m.record("Event.Stop")
	e.stopped = true
	r := e.m.reporter
	report := e.m.StopReportsFinished
	e.m.mu.Unlock()

	if report && r != nil {
		r.ReportFinishedEvent(e.Ref, true)
	}
	return nil
}

// File is the mock backend standalone file.
type File struct {
	Ref       impl.FileRef
	Name      string
	Localized bool
}

// Trigger is the mock backend trigger.
type Trigger struct {
	m          *Impl
	Data       impl.ControlData
	status     impl.Status
	loadStatus impl.Status
}

func (t *Trigger) Load(ie impl.Event) impl.Status {
	return t.transition("Trigger.Load", ie)
}

func (t *Trigger) Unload(ie impl.Event) impl.Status {
	return t.transition("Trigger.Unload", ie)
}

func (t *Trigger) transition(name string, ie impl.Event) impl.Status {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.m.record(name)
	if e, ok := ie.(*Event); ok {
		t.m.executed = append(t.m.executed, e.Ref)
	}
	return t.loadStatus
}

// Control is the mock state of parameters, switch states and environments.
type Control struct {
	Data impl.ControlData
}

func parseStatus(v any) impl.Status {
	s, _ := v.(string)
	switch s {
	case "pending":
		return impl.StatusPending
	case "virtual":
		return impl.StatusSuccessVirtual
	case "do_not_track":
		return impl.StatusSuccessDoNotTrack
	case "failure":
		return impl.StatusFailure
	default:
		return impl.StatusSuccess
	}
}
