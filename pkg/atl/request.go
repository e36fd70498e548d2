package atl

import (
	"time"

	"github.com/MrWong99/atl/pkg/impl"
	"github.com/MrWong99/atl/pkg/propagation"
)

// Category routes a request to its handler.
type Category int

const (
	CategoryManager Category = iota
	CategoryObject
	CategoryListener
	CategoryCallbackManager
)

// String returns the human-readable name of the category.
func (c Category) String() string {
	switch c {
	case CategoryManager:
		return "manager"
	case CategoryObject:
		return "object"
	case CategoryListener:
		return "listener"
	case CategoryCallbackManager:
		return "callback_manager"
	default:
		return "unknown"
	}
}

// RequestFlags control blocking and notification delivery of a request.
type RequestFlags uint8

const (
	// FlagExecuteBlocking makes PushRequest wait until the audio goroutine
	// processed the request.
	FlagExecuteBlocking RequestFlags = 1 << iota

	// FlagCallbackOnAudioThread delivers the notification on the audio
	// goroutine right after processing.
	FlagCallbackOnAudioThread

	// FlagCallbackOnExternalOrCallingThread delivers the notification on the
	// calling goroutine for blocking requests, and from ExternalUpdate
	// otherwise.
	FlagCallbackOnExternalOrCallingThread
)

const callbackFlags = FlagCallbackOnAudioThread | FlagCallbackOnExternalOrCallingThread

// Payload is the request-specific part of a [Request]. The set of payloads
// is closed; every payload type is defined in this package.
type Payload interface {
	category() Category
	kind() string
}

// Request is one unit of work for the audio goroutine.
type Request struct {
	Payload Payload
	Flags   RequestFlags

	// Object targets object requests. Nil targets the global object.
	Object *Object

	// Listener targets listener requests.
	Listener *Listener

	// Owner, UserData and UserDataOwner are echoed in the request's
	// notification. Owner also selects which request listeners receive it.
	Owner         any
	UserData      any
	UserDataOwner any
}

// Kind returns the payload's name, e.g. "execute_trigger".
func (r *Request) Kind() string {
	if r.Payload == nil {
		return "invalid"
	}
	return r.Payload.kind()
}

// RequestOption adjusts a request built by a convenience method.
type RequestOption func(*Request)

// WithBlocking makes the call wait until the request was processed.
func WithBlocking() RequestOption {
	return func(r *Request) { r.Flags |= FlagExecuteBlocking }
}

// WithCallbackOnAudioThread delivers the notification on the audio
// goroutine.
func WithCallbackOnAudioThread() RequestOption {
	return func(r *Request) { r.Flags |= FlagCallbackOnAudioThread }
}

// WithCallbackOnCallingThread delivers the notification on the calling
// goroutine (blocking requests) or from ExternalUpdate (non-blocking).
func WithCallbackOnCallingThread() RequestOption {
	return func(r *Request) { r.Flags |= FlagCallbackOnExternalOrCallingThread }
}

// WithOwner sets the request's owner.
func WithOwner(owner any) RequestOption {
	return func(r *Request) { r.Owner = owner }
}

// WithUserData sets the request's user data.
func WithUserData(data any) RequestOption {
	return func(r *Request) { r.UserData = data }
}

// WithUserDataOwner sets the owner of the request's user data.
func WithUserDataOwner(owner any) RequestOption {
	return func(r *Request) { r.UserDataOwner = owner }
}

// envelope is a queued request plus the state the audio goroutine attaches
// to it while processing.
type envelope struct {
	Request

	enqueued time.Time
	done     chan struct{}

	// counted is the object whose in-flight counter this envelope holds.
	counted *Object

	status      Status
	systemEvent SystemEvent
	controlID   ControlID
	event       *EventInfo
	file        *FileInfo
}

func (e *envelope) blocking() bool { return e.Flags&FlagExecuteBlocking != 0 }

func (e *envelope) signal() {
	if e.done != nil {
		close(e.done)
	}
}

func (e *envelope) notification() Notification {
	return Notification{
		Result:        e.status.Result(),
		Status:        e.status,
		SystemEvent:   e.systemEvent,
		ControlID:     e.controlID,
		Owner:         e.Owner,
		UserData:      e.UserData,
		UserDataOwner: e.UserDataOwner,
		Object:        e.Object,
		Event:         e.event,
		File:          e.file,
	}
}

// ─── Manager payloads ────────────────────────────────────────────────────────

// SetImpl replaces the active backend. It always executes blocking.
type SetImpl struct {
	Impl impl.Impl
}

// ReleaseImpl switches to the null backend. It always executes blocking.
type ReleaseImpl struct{}

// ReloadControls replaces the control set.
type ReloadControls struct {
	Definition ControlsDefinition
}

// StopAllSounds stops everything on every object.
type StopAllSounds struct{}

// SetLanguage switches localised content.
type SetLanguage struct {
	Language string
}

type registerObject struct{ object *Object }

type registerListener struct{ listener *Listener }

type takeSnapshot struct{ out *Snapshot }

func (SetImpl) category() Category          { return CategoryManager }
func (ReleaseImpl) category() Category      { return CategoryManager }
func (ReloadControls) category() Category   { return CategoryManager }
func (StopAllSounds) category() Category    { return CategoryManager }
func (SetLanguage) category() Category      { return CategoryManager }
func (registerObject) category() Category   { return CategoryManager }
func (registerListener) category() Category { return CategoryManager }
func (takeSnapshot) category() Category     { return CategoryManager }

func (SetImpl) kind() string          { return "set_impl" }
func (ReleaseImpl) kind() string      { return "release_impl" }
func (ReloadControls) kind() string   { return "reload_controls" }
func (StopAllSounds) kind() string    { return "stop_all_sounds" }
func (SetLanguage) kind() string      { return "set_language" }
func (registerObject) kind() string   { return "register_object" }
func (registerListener) kind() string { return "register_listener" }
func (takeSnapshot) kind() string     { return "snapshot" }

// ─── Object payloads ─────────────────────────────────────────────────────────

// ExecuteTrigger starts a trigger on the target object.
type ExecuteTrigger struct {
	TriggerID ControlID
}

// StopTrigger stops every Playing or Virtual event of a trigger.
type StopTrigger struct {
	TriggerID ControlID
}

// StopAllTriggers stops every event on the target object.
type StopAllTriggers struct{}

// LoadTrigger loads a trigger's data ahead of execution.
type LoadTrigger struct {
	TriggerID ControlID
}

// UnloadTrigger releases data loaded by LoadTrigger.
type UnloadTrigger struct {
	TriggerID ControlID
}

// SetParameter sets a parameter value.
type SetParameter struct {
	ParameterID ControlID
	Value       float32
}

// SetSwitchState selects a switch state.
type SetSwitchState struct {
	SwitchID ControlID
	StateID  ControlID
}

// SetEnvironment sets an environment amount in [0, 1]. Zero removes the
// environment from the object.
type SetEnvironment struct {
	EnvironmentID ControlID
	Amount        float32
}

// ResetEnvironments removes every environment from the object.
type ResetEnvironments struct{}

// SetTransformation moves the object.
type SetTransformation struct {
	Transformation impl.Transformation
}

// SetOcclusionType selects the object's occlusion evaluation.
type SetOcclusionType struct {
	OcclusionType impl.OcclusionType
}

// SetOcclusionRayOffset sets the distance below which rays count as clear.
type SetOcclusionRayOffset struct {
	Offset float32
}

// PlayFile plays a standalone file, optionally with the settings of a
// trigger.
type PlayFile struct {
	File      string
	Localized bool
	TriggerID ControlID
}

// StopFile stops every instance of a standalone file on the object.
type StopFile struct {
	File string
}

// ProcessPhysicsRay feeds a ray cast result to the object's propagation
// processor.
type ProcessPhysicsRay struct {
	Ray propagation.RayInfo
}

// ToggleVelocityTracking enables or disables velocity tracking.
type ToggleVelocityTracking struct {
	Absolute bool
	Relative bool
}

// SetName renames the object.
type SetName struct {
	Name string
}

type releaseObject struct{}

func (ExecuteTrigger) category() Category         { return CategoryObject }
func (StopTrigger) category() Category            { return CategoryObject }
func (StopAllTriggers) category() Category        { return CategoryObject }
func (LoadTrigger) category() Category            { return CategoryObject }
func (UnloadTrigger) category() Category          { return CategoryObject }
func (SetParameter) category() Category           { return CategoryObject }
func (SetSwitchState) category() Category         { return CategoryObject }
func (SetEnvironment) category() Category         { return CategoryObject }
func (ResetEnvironments) category() Category      { return CategoryObject }
func (SetTransformation) category() Category      { return CategoryObject }
func (SetOcclusionType) category() Category       { return CategoryObject }
func (SetOcclusionRayOffset) category() Category  { return CategoryObject }
func (PlayFile) category() Category               { return CategoryObject }
func (StopFile) category() Category               { return CategoryObject }
func (ProcessPhysicsRay) category() Category      { return CategoryObject }
func (ToggleVelocityTracking) category() Category { return CategoryObject }
func (SetName) category() Category                { return CategoryObject }
func (releaseObject) category() Category          { return CategoryObject }

func (ExecuteTrigger) kind() string         { return "execute_trigger" }
func (StopTrigger) kind() string            { return "stop_trigger" }
func (StopAllTriggers) kind() string        { return "stop_all_triggers" }
func (LoadTrigger) kind() string            { return "load_trigger" }
func (UnloadTrigger) kind() string          { return "unload_trigger" }
func (SetParameter) kind() string           { return "set_parameter" }
func (SetSwitchState) kind() string         { return "set_switch_state" }
func (SetEnvironment) kind() string         { return "set_environment" }
func (ResetEnvironments) kind() string      { return "reset_environments" }
func (SetTransformation) kind() string      { return "set_transformation" }
func (SetOcclusionType) kind() string       { return "set_occlusion_type" }
func (SetOcclusionRayOffset) kind() string  { return "set_occlusion_ray_offset" }
func (PlayFile) kind() string               { return "play_file" }
func (StopFile) kind() string               { return "stop_file" }
func (ProcessPhysicsRay) kind() string      { return "process_physics_ray" }
func (ToggleVelocityTracking) kind() string { return "toggle_velocity_tracking" }
func (SetName) kind() string                { return "set_name" }
func (releaseObject) kind() string          { return "release_object" }

// ─── Listener payloads ───────────────────────────────────────────────────────

// SetListenerTransformation moves a listener.
type SetListenerTransformation struct {
	Transformation impl.Transformation
}

// SetListenerName renames a listener.
type SetListenerName struct {
	Name string
}

type releaseListener struct{}

func (SetListenerTransformation) category() Category { return CategoryListener }
func (SetListenerName) category() Category           { return CategoryListener }
func (releaseListener) category() Category           { return CategoryListener }

func (SetListenerTransformation) kind() string { return "set_listener_transformation" }
func (SetListenerName) kind() string           { return "set_listener_name" }
func (releaseListener) kind() string           { return "release_listener" }

// ─── Callback manager payloads ───────────────────────────────────────────────

type reportStartedEvent struct{ ref impl.EventRef }

type reportFinishedEvent struct {
	ref     impl.EventRef
	success bool
}

type reportVirtualizedEvent struct{ ref impl.EventRef }

type reportPhysicalizedEvent struct{ ref impl.EventRef }

type reportStartedFile struct {
	ref     impl.FileRef
	success bool
}

type reportStoppedFile struct{ ref impl.FileRef }

type reportFinishedTriggerInstance struct {
	triggerID  ControlID
	instanceID TriggerInstanceID
}

type addRequestListener struct {
	token ListenerToken
	cb    Callback
	owner any
	mask  SystemEvent
}

type removeRequestListener struct{ token ListenerToken }

func (reportStartedEvent) category() Category            { return CategoryCallbackManager }
func (reportFinishedEvent) category() Category           { return CategoryCallbackManager }
func (reportVirtualizedEvent) category() Category        { return CategoryCallbackManager }
func (reportPhysicalizedEvent) category() Category       { return CategoryCallbackManager }
func (reportStartedFile) category() Category             { return CategoryCallbackManager }
func (reportStoppedFile) category() Category             { return CategoryCallbackManager }
func (reportFinishedTriggerInstance) category() Category { return CategoryCallbackManager }
func (addRequestListener) category() Category            { return CategoryCallbackManager }
func (removeRequestListener) category() Category         { return CategoryCallbackManager }

func (reportStartedEvent) kind() string            { return "report_started_event" }
func (reportFinishedEvent) kind() string           { return "report_finished_event" }
func (reportVirtualizedEvent) kind() string        { return "report_virtualized_event" }
func (reportPhysicalizedEvent) kind() string       { return "report_physicalized_event" }
func (reportStartedFile) kind() string             { return "report_started_file" }
func (reportStoppedFile) kind() string             { return "report_stopped_file" }
func (reportFinishedTriggerInstance) kind() string { return "report_finished_trigger_instance" }
func (addRequestListener) kind() string            { return "add_request_listener" }
func (removeRequestListener) kind() string         { return "remove_request_listener" }
