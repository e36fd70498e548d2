// Package null provides the no-op backend the ATL falls back to when no
// backend is configured or the configured one fails to initialise.
//
// Every playback call succeeds without tracking anything, so object and
// trigger bookkeeping stays consistent while nothing is audible.
package null

import (
	"fmt"
	"time"

	"github.com/MrWong99/atl/pkg/impl"
)

// Name is the registry name of the null backend.
const Name = "null"

// Compile-time interface assertions.
var (
	_ impl.Impl     = (*Impl)(nil)
	_ impl.Object   = object{}
	_ impl.Listener = listener{}
	_ impl.Event    = event{}
	_ impl.Trigger  = trigger{}
)

// Impl is the null backend. The zero value is ready to use.
type Impl struct{}

// New returns a null backend.
func New() *Impl { return &Impl{} }

type (
	object   struct{}
	listener struct{}
	event    struct{}
	trigger  struct{}
	control  struct{}
)

func (*Impl) Init(impl.Reporter) error { return nil }
func (*Impl) ShutDown()                {}
func (*Impl) Release()                 {}
func (*Impl) Update(time.Duration)     {}
func (*Impl) SetLanguage(string)       {}
func (*Impl) StopAllSounds()           {}

// GetFileData always fails: the null backend knows no files.
func (*Impl) GetFileData(name string) (impl.FileData, error) {
	return impl.FileData{}, fmt.Errorf("null: file %q: %w", name, impl.ErrNotSupported)
}

func (*Impl) GetInfo() impl.Info { return impl.Info{Name: Name, Version: "1"} }

func (*Impl) ConstructGlobalObject() (impl.Object, error)                    { return object{}, nil }
func (*Impl) ConstructObject(string, impl.Transformation) (impl.Object, error) { return object{}, nil }
func (*Impl) DestructObject(impl.Object)                                     {}

func (*Impl) ConstructListener(string, impl.Transformation) (impl.Listener, error) {
	return listener{}, nil
}
func (*Impl) DestructListener(impl.Listener) {}

func (*Impl) ConstructEvent(impl.EventRef) (impl.Event, error) { return event{}, nil }
func (*Impl) DestructEvent(impl.Event)                         {}

func (*Impl) ConstructStandaloneFile(impl.FileRef, string, bool, impl.Trigger) (impl.StandaloneFile, error) {
	return control{}, nil
}
func (*Impl) DestructStandaloneFile(impl.StandaloneFile) {}

func (*Impl) ConstructTrigger(impl.ControlData) (impl.Trigger, error) { return trigger{}, nil }
func (*Impl) DestructTrigger(impl.Trigger)                            {}

func (*Impl) ConstructParameter(impl.ControlData) (impl.Parameter, error) { return control{}, nil }
func (*Impl) DestructParameter(impl.Parameter)                            {}

func (*Impl) ConstructSwitchState(impl.ControlData) (impl.SwitchState, error) { return control{}, nil }
func (*Impl) DestructSwitchState(impl.SwitchState)                            {}

func (*Impl) ConstructEnvironment(impl.ControlData) (impl.Environment, error) { return control{}, nil }
func (*Impl) DestructEnvironment(impl.Environment)                            {}

func (object) Update(time.Duration)                                {}
func (object) SetTransformation(impl.Transformation) error         { return nil }
func (object) SetObstructionOcclusion(float32, float32) error      { return nil }
func (object) SetOcclusionType(impl.OcclusionType) error           { return nil }
func (object) ToggleFunctionality(impl.Functionality, bool)        {}
func (object) StopAllTriggers() error                              { return nil }
func (object) SetEnvironment(impl.Environment, float32) error      { return nil }
func (object) SetParameter(impl.Parameter, float32) error          { return nil }
func (object) SetSwitchState(impl.SwitchState) error               { return nil }
func (object) SetName(string) error                                { return nil }
func (object) ExecuteTrigger(impl.Trigger, impl.Event) impl.Status { return impl.StatusSuccessDoNotTrack }

// PlayFile fails: without a file backend the ATL must not track the file as
// playing, since nothing would ever report it stopped.
func (object) PlayFile(impl.StandaloneFile) impl.Status { return impl.StatusFailure }
func (object) StopFile(impl.StandaloneFile) impl.Status { return impl.StatusSuccess }

func (listener) SetTransformation(impl.Transformation) error { return nil }
func (listener) SetName(string) error                        { return nil }

func (event) Stop() error { return nil }

func (trigger) Load(impl.Event) impl.Status   { return impl.StatusSuccessDoNotTrack }
func (trigger) Unload(impl.Event) impl.Status { return impl.StatusSuccessDoNotTrack }
