// Package impl defines the capability contract between the audio translation
// layer and a concrete audio middleware binding ("backend").
//
// The ATL never decodes, mixes or spatialises audio. It owns the lifetime of
// audio objects, events and standalone files and forwards every playback
// decision to an [Impl]. A backend produces opaque per-entity state through the
// Construct* methods and the ATL hands that state back on every later call.
// Each value returned by a Construct* method is owned exclusively by the ATL
// wrapper that requested it and is destroyed only through the matching
// Destruct* method.
//
// Apart from the [Reporter] it receives in [Impl.Init], a backend is only ever
// called from the ATL's audio goroutine, so implementations need no locking
// for state that is exclusively touched from those calls.
//
// This package lives under pkg/ because third-party middleware bindings are
// expected to implement [Impl].
package impl

import (
	"errors"
	"time"
)

// ErrNotSupported is returned by backends for operations they do not implement.
var ErrNotSupported = errors.New("impl: operation not supported")

// Status is the outcome of a playback-affecting backend call.
type Status int

const (
	// StatusSuccess means the call took effect immediately. For trigger
	// execution it means the event is audible (Playing).
	StatusSuccess Status = iota

	// StatusSuccessDoNotTrack means the call succeeded but produced nothing the
	// ATL needs to follow (for example a one-shot "stop" trigger). No event is
	// kept for it.
	StatusSuccessDoNotTrack

	// StatusSuccessVirtual means the event started but is inaudible.
	StatusSuccessVirtual

	// StatusPending means the backend needs to load data first. The event is
	// tracked as Loading until the backend reports it started or finished.
	StatusPending

	// StatusFailure means the call had no effect.
	StatusFailure
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSuccessDoNotTrack:
		return "success_do_not_track"
	case StatusSuccessVirtual:
		return "success_virtual"
	case StatusPending:
		return "pending"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// EventRef identifies an ATL event towards the backend. Backends keep the
// value they were given in [Impl.ConstructEvent] and pass it back through the
// [Reporter]. A reference that outlived its event (for example across a
// backend swap) is detected and ignored by the ATL.
type EventRef uint64

// FileRef identifies an ATL standalone file towards the backend.
type FileRef uint64

// Info describes a backend for logging and diagnostics.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// FileData describes a file known to the backend.
type FileData struct {
	Duration time.Duration
}

// ControlData is the authored, backend-specific payload of a control
// (trigger impl, parameter, switch state, environment). Its keys are defined
// by the backend, e.g. "event", "duration" or "bus".
type ControlData map[string]any

// Functionality enumerates optional per-object features a backend can toggle.
type Functionality int

const (
	// TrackAbsoluteVelocity asks the backend to expect absolute speed updates.
	TrackAbsoluteVelocity Functionality = iota

	// TrackRelativeVelocity asks the backend to expect speed-relative-to-listener updates.
	TrackRelativeVelocity
)

// Reporter is implemented by the ATL and handed to the backend in
// [Impl.Init]. All methods are safe for concurrent use and never block, so
// backends may call them from their own worker goroutines or from inside any
// ATL-initiated call.
type Reporter interface {
	// ReportStartedEvent signals that a Loading event has become audible.
	ReportStartedEvent(ref EventRef)

	// ReportFinishedEvent signals that an event completed. success is false
	// when the event ended because of an error.
	ReportFinishedEvent(ref EventRef, success bool)

	// ReportVirtualizedEvent signals that an event became inaudible.
	ReportVirtualizedEvent(ref EventRef)

	// ReportPhysicalizedEvent signals that a virtual event became audible again.
	ReportPhysicalizedEvent(ref EventRef)

	// ReportStartedFile signals that a standalone file started (or failed to).
	ReportStartedFile(ref FileRef, success bool)

	// ReportStoppedFile signals that a standalone file stopped.
	ReportStoppedFile(ref FileRef)
}

// Impl is the root backend interface.
type Impl interface {
	// Init prepares the backend. A non-nil error makes the ATL fall back to
	// its null backend.
	Init(r Reporter) error

	// ShutDown stops all processing. Release is called right after.
	ShutDown()

	// Release frees every remaining backend resource.
	Release()

	// Update advances the backend by dt.
	Update(dt time.Duration)

	// SetLanguage switches localised content.
	SetLanguage(language string)

	// StopAllSounds stops every sound on every object.
	StopAllSounds()

	// GetFileData returns metadata about a playable file.
	GetFileData(name string) (FileData, error)

	// GetInfo describes the backend.
	GetInfo() Info

	ConstructGlobalObject() (Object, error)
	ConstructObject(name string, t Transformation) (Object, error)
	DestructObject(o Object)

	ConstructListener(name string, t Transformation) (Listener, error)
	DestructListener(l Listener)

	ConstructEvent(ref EventRef) (Event, error)
	DestructEvent(e Event)

	ConstructStandaloneFile(ref FileRef, file string, localized bool, trigger Trigger) (StandaloneFile, error)
	DestructStandaloneFile(f StandaloneFile)

	ConstructTrigger(data ControlData) (Trigger, error)
	DestructTrigger(t Trigger)

	ConstructParameter(data ControlData) (Parameter, error)
	DestructParameter(p Parameter)

	ConstructSwitchState(data ControlData) (SwitchState, error)
	DestructSwitchState(s SwitchState)

	ConstructEnvironment(data ControlData) (Environment, error)
	DestructEnvironment(e Environment)
}

// Object is the backend state of one audio object (emitter).
type Object interface {
	Update(dt time.Duration)
	SetTransformation(t Transformation) error
	SetObstructionOcclusion(obstruction, occlusion float32) error
	SetOcclusionType(t OcclusionType) error
	ToggleFunctionality(f Functionality, enable bool)
	StopAllTriggers() error
	SetEnvironment(e Environment, amount float32) error
	SetParameter(p Parameter, value float32) error
	SetSwitchState(s SwitchState) error
	SetName(name string) error

	// ExecuteTrigger starts t on this object, backed by e.
	ExecuteTrigger(t Trigger, e Event) Status

	// PlayFile starts f. StatusSuccess means the file is audible now and the
	// ATL reports the start itself. StatusPending means the backend reports
	// the start later through [Reporter.ReportStartedFile].
	PlayFile(f StandaloneFile) Status

	// StopFile stops f. StatusPending means the backend reports the stop
	// later through [Reporter.ReportStoppedFile]. Any other successful status
	// means the file stopped immediately.
	StopFile(f StandaloneFile) Status
}

// Listener is the backend state of one listener.
type Listener interface {
	SetTransformation(t Transformation) error
	SetName(name string) error
}

// Event is the backend state of one playing unit.
type Event interface {
	// Stop asks the backend to stop the event. Completion is reported later
	// through [Reporter.ReportFinishedEvent].
	Stop() error
}

// StandaloneFile is the backend state of one directly played file.
type StandaloneFile interface{}

// Trigger is the backend state of one trigger impl entry.
type Trigger interface {
	// Load starts loading the trigger's data, backed by e.
	Load(e Event) Status

	// Unload starts releasing the trigger's data, backed by e.
	Unload(e Event) Status
}

// Parameter is the backend state of a parameter control.
type Parameter interface{}

// SwitchState is the backend state of one switch state.
type SwitchState interface{}

// Environment is the backend state of an environment control.
type Environment interface{}
