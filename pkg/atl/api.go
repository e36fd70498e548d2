package atl

import (
	"github.com/MrWong99/atl/pkg/impl"
	"github.com/MrWong99/atl/pkg/propagation"
)

// CreateObject allocates an object and queues its registration. The object
// can be used right away: requests pushed after CreateObject returns are
// processed after the registration. The returned status is the
// registration's outcome for blocking calls and [StatusPending] otherwise.
func (s *System) CreateObject(data ObjectData, opts ...RequestOption) (*Object, Status) {
	o := &Object{sys: s, id: s.nextID.Add(1), data: data}
	st := s.pushWith(&Request{Payload: registerObject{object: o}}, opts)
	return o, st
}

// CreateListener allocates a listener and queues its registration.
func (s *System) CreateListener(data ListenerData, opts ...RequestOption) (*Listener, Status) {
	l := &Listener{sys: s, id: s.nextID.Add(1), data: data}
	st := s.pushWith(&Request{Payload: registerListener{listener: l}}, opts)
	return l, st
}

// SetImpl replaces the active backend and blocks until the swap completed.
// Every playing trigger, loaded trigger and playing file is restarted on the
// new backend. If b fails to initialise, the null backend takes over and
// [StatusFailure] is returned.
func (s *System) SetImpl(b impl.Impl, opts ...RequestOption) Status {
	return s.pushWith(&Request{Payload: SetImpl{Impl: b}}, opts)
}

// ReleaseImpl switches to the null backend and blocks until done.
func (s *System) ReleaseImpl(opts ...RequestOption) Status {
	return s.pushWith(&Request{Payload: ReleaseImpl{}}, opts)
}

// ReloadControls replaces the control set and blocks until done.
func (s *System) ReloadControls(def ControlsDefinition, opts ...RequestOption) Status {
	opts = append(opts, WithBlocking())
	return s.pushWith(&Request{Payload: ReloadControls{Definition: def}}, opts)
}

// StopAllSounds stops everything on every object.
func (s *System) StopAllSounds(opts ...RequestOption) Status {
	return s.pushWith(&Request{Payload: StopAllSounds{}}, opts)
}

// SetLanguage switches localised content.
func (s *System) SetLanguage(language string, opts ...RequestOption) Status {
	return s.pushWith(&Request{Payload: SetLanguage{Language: language}}, opts)
}

// AddRequestListener registers cb for notifications whose system event is
// in mask. A nil owner receives notifications of every owner; otherwise
// only notifications of requests with an equal owner are delivered. The
// registration is queued like any other request.
func (s *System) AddRequestListener(cb Callback, owner any, mask SystemEvent) ListenerToken {
	token := ListenerToken(s.nextToken.Add(1))
	s.push(&Request{Payload: addRequestListener{token: token, cb: cb, owner: owner, mask: mask}})
	return token
}

// RemoveRequestListener unregisters a listener added with
// AddRequestListener.
func (s *System) RemoveRequestListener(token ListenerToken, opts ...RequestOption) Status {
	return s.pushWith(&Request{Payload: removeRequestListener{token: token}}, opts)
}

// Snapshot returns the current runtime state. It blocks until the audio
// goroutine produced it; it returns the zero Snapshot after Close.
func (s *System) Snapshot() Snapshot {
	var snap Snapshot
	s.push(&Request{Payload: takeSnapshot{out: &snap}, Flags: FlagExecuteBlocking})
	return snap
}

func (s *System) pushWith(r *Request, opts []RequestOption) Status {
	for _, opt := range opts {
		opt(r)
	}
	return s.push(r)
}

// ─── Object requests ─────────────────────────────────────────────────────────

func (o *Object) request(p Payload, opts []RequestOption) Status {
	r := &Request{Payload: p}
	for _, opt := range opts {
		opt(r)
	}
	r.Object = o
	return o.sys.push(r)
}

// ExecuteTrigger starts the trigger on the object.
func (o *Object) ExecuteTrigger(id ControlID, opts ...RequestOption) Status {
	return o.request(ExecuteTrigger{TriggerID: id}, opts)
}

// StopTrigger stops every playing event of the trigger on the object.
func (o *Object) StopTrigger(id ControlID, opts ...RequestOption) Status {
	return o.request(StopTrigger{TriggerID: id}, opts)
}

// StopAllTriggers stops every event on the object.
func (o *Object) StopAllTriggers(opts ...RequestOption) Status {
	return o.request(StopAllTriggers{}, opts)
}

// LoadTrigger loads the trigger's data on the object.
func (o *Object) LoadTrigger(id ControlID, opts ...RequestOption) Status {
	return o.request(LoadTrigger{TriggerID: id}, opts)
}

// UnloadTrigger releases data loaded with LoadTrigger.
func (o *Object) UnloadTrigger(id ControlID, opts ...RequestOption) Status {
	return o.request(UnloadTrigger{TriggerID: id}, opts)
}

// SetParameter sets a parameter value on the object.
func (o *Object) SetParameter(id ControlID, value float32, opts ...RequestOption) Status {
	return o.request(SetParameter{ParameterID: id, Value: value}, opts)
}

// SetSwitchState selects a switch state on the object.
func (o *Object) SetSwitchState(switchID, stateID ControlID, opts ...RequestOption) Status {
	return o.request(SetSwitchState{SwitchID: switchID, StateID: stateID}, opts)
}

// SetEnvironment sets an environment amount on the object.
func (o *Object) SetEnvironment(id ControlID, amount float32, opts ...RequestOption) Status {
	return o.request(SetEnvironment{EnvironmentID: id, Amount: amount}, opts)
}

// ResetEnvironments removes every environment from the object.
func (o *Object) ResetEnvironments(opts ...RequestOption) Status {
	return o.request(ResetEnvironments{}, opts)
}

// SetTransformation moves the object.
func (o *Object) SetTransformation(t impl.Transformation, opts ...RequestOption) Status {
	return o.request(SetTransformation{Transformation: t}, opts)
}

// SetOcclusionType selects how obstruction and occlusion are evaluated.
func (o *Object) SetOcclusionType(t impl.OcclusionType, opts ...RequestOption) Status {
	return o.request(SetOcclusionType{OcclusionType: t}, opts)
}

// SetOcclusionRayOffset sets the distance below which rays count as clear.
func (o *Object) SetOcclusionRayOffset(offset float32, opts ...RequestOption) Status {
	return o.request(SetOcclusionRayOffset{Offset: offset}, opts)
}

// PlayFile plays a standalone file on the object. triggerID may be
// [InvalidControlID].
func (o *Object) PlayFile(file string, localized bool, triggerID ControlID, opts ...RequestOption) Status {
	return o.request(PlayFile{File: file, Localized: localized, TriggerID: triggerID}, opts)
}

// StopFile stops the standalone file on the object.
func (o *Object) StopFile(file string, opts ...RequestOption) Status {
	return o.request(StopFile{File: file}, opts)
}

// ProcessPhysicsRay feeds a ray cast result to the object.
func (o *Object) ProcessPhysicsRay(ray propagation.RayInfo, opts ...RequestOption) Status {
	return o.request(ProcessPhysicsRay{Ray: ray}, opts)
}

// ToggleVelocityTracking enables or disables absolute and relative velocity
// tracking.
func (o *Object) ToggleVelocityTracking(absolute, relative bool, opts ...RequestOption) Status {
	return o.request(ToggleVelocityTracking{Absolute: absolute, Relative: relative}, opts)
}

// SetName renames the object.
func (o *Object) SetName(name string, opts ...RequestOption) Status {
	return o.request(SetName{Name: name}, opts)
}

// Release marks the object unused and stops its triggers and files. The
// object is destructed once nothing references it anymore.
func (o *Object) Release(opts ...RequestOption) Status {
	return o.request(releaseObject{}, opts)
}

// ─── Listener requests ───────────────────────────────────────────────────────

func (l *Listener) request(p Payload, opts []RequestOption) Status {
	r := &Request{Payload: p}
	for _, opt := range opts {
		opt(r)
	}
	r.Listener = l
	return l.sys.push(r)
}

// SetTransformation moves the listener.
func (l *Listener) SetTransformation(t impl.Transformation, opts ...RequestOption) Status {
	return l.request(SetListenerTransformation{Transformation: t}, opts)
}

// SetName renames the listener.
func (l *Listener) SetName(name string, opts ...RequestOption) Status {
	return l.request(SetListenerName{Name: name}, opts)
}

// Release destructs the listener.
func (l *Listener) Release(opts ...RequestOption) Status {
	return l.request(releaseListener{}, opts)
}
