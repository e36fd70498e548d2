package atl

import (
	"sync/atomic"
	"time"

	"github.com/MrWong99/atl/pkg/impl"
	"github.com/MrWong99/atl/pkg/propagation"
)

type objectFlags uint8

const (
	objectInUse objectFlags = 1 << iota
	objectVirtual
	objectTrackAbsoluteVelocity
	objectTrackRelativeVelocity
)

type instanceFlags uint8

const (
	// instanceLoaded marks data loaded through LoadTrigger.
	instanceLoaded instanceFlags = 1 << iota

	// instancePlaying marks an instance created by trigger execution.
	instancePlaying
)

// velocityEpsilon is the minimum change of a tracked velocity that is
// forwarded to the backend.
const velocityEpsilon = 0.05

// triggerInstance tracks the events of one trigger execution or load.
type triggerInstance struct {
	triggerID  ControlID
	numLoading int
	numPlaying int
	flags      instanceFlags

	// Notification context of the execution request.
	callback      RequestFlags
	owner         any
	userData      any
	userDataOwner any
}

func (t *triggerInstance) idle() bool { return t.numLoading == 0 && t.numPlaying == 0 }

// ObjectData describes an object to create.
type ObjectData struct {
	Name                  string
	Transformation        impl.Transformation
	OcclusionType         impl.OcclusionType
	TrackAbsoluteVelocity bool
	TrackRelativeVelocity bool
}

// Object is an audio object (emitter). Objects are created with
// [System.CreateObject]; all methods push requests and are safe for
// concurrent use. The object's state is owned by the audio goroutine.
type Object struct {
	sys    *System
	id     uint64
	global bool
	data   ObjectData

	// inFlight counts queued requests targeting the object. An object with
	// requests in flight is never released.
	inFlight atomic.Int32

	// pendingSyncCallbacks counts notifications queued for ExternalUpdate.
	pendingSyncCallbacks atomic.Int32

	registered     bool
	name           string
	flags          objectFlags
	backend        impl.Object
	transformation impl.Transformation
	occlusionType  impl.OcclusionType
	rayOffset      float32
	propagation    propagation.Processor
	propData       propagation.Data

	velocityPrimed bool
	prevPosition   impl.Vec3
	prevDistance   float32
	absVelocity    float32
	relVelocity    float32

	activeEvents map[*event]struct{}
	instances    map[TriggerInstanceID]*triggerInstance
	implStates   map[TriggerImplID]instanceFlags
	activeFiles  map[*standaloneFile]struct{}
	parameters   map[ControlID]float32
	switchStates map[ControlID]ControlID
	environments map[ControlID]float32
}

// ID returns the object's process-unique identifier.
func (o *Object) ID() uint64 { return o.id }

// IsGlobal reports whether o is the system's global object.
func (o *Object) IsGlobal() bool { return o.global }

func (o *Object) initState() {
	o.name = o.data.Name
	o.transformation = o.data.Transformation
	o.occlusionType = o.data.OcclusionType
	o.activeEvents = make(map[*event]struct{})
	o.instances = make(map[TriggerInstanceID]*triggerInstance)
	o.implStates = make(map[TriggerImplID]instanceFlags)
	o.activeFiles = make(map[*standaloneFile]struct{})
	o.parameters = make(map[ControlID]float32)
	o.switchStates = make(map[ControlID]ControlID)
	o.environments = make(map[ControlID]float32)
	if o.data.TrackAbsoluteVelocity {
		o.flags |= objectTrackAbsoluteVelocity
	}
	if o.data.TrackRelativeVelocity {
		o.flags |= objectTrackRelativeVelocity
	}
}

// ─── Event bookkeeping ───────────────────────────────────────────────────────

// reportStartedEvent adds e to the active set and counts it on its trigger
// instance according to its state.
func (o *Object) reportStartedEvent(e *event) {
	inst, ok := o.instances[e.instanceID]
	if !ok {
		o.sys.violation(o, "unknown_trigger_instance", "started event of unknown instance %d", e.instanceID)
		return
	}
	o.activeEvents[e] = struct{}{}
	switch e.state {
	case EventStatePlaying, EventStateVirtual:
		inst.numPlaying++
	case EventStatePlayingDelayed:
		o.sys.decrement(o, &inst.numLoading, "loading_underflow")
		inst.numPlaying++
		e.state = EventStatePlaying
	case EventStateLoading:
		inst.numLoading++
	case EventStateUnloading:
	}
	o.updateVirtual()
}

// reportFinishedEvent removes e from the active set, updates the trigger
// instance counters and completes the instance once it has no events left.
// The caller destructs e afterwards.
func (o *Object) reportFinishedEvent(e *event, success bool) {
	if _, ok := o.activeEvents[e]; !ok {
		o.sys.violation(o, "inactive_event_finished", "event of trigger %d is not active", e.triggerID)
		return
	}
	delete(o.activeEvents, e)

	inst := o.instances[e.instanceID]
	switch e.state {
	case EventStatePlaying, EventStateVirtual:
		if inst == nil {
			o.sys.violation(o, "unknown_trigger_instance", "finished event of unknown instance %d", e.instanceID)
			break
		}
		o.sys.decrement(o, &inst.numPlaying, "playing_underflow")
		o.completeInstance(e.instanceID, inst)
	case EventStateLoading:
		if inst != nil {
			o.sys.decrement(o, &inst.numLoading, "loading_underflow")
		}
		if success {
			o.implStates[e.implID] |= instanceLoaded
			if inst != nil {
				inst.flags |= instanceLoaded
			}
		}
		if inst != nil {
			o.completeInstance(e.instanceID, inst)
		}
	case EventStateUnloading:
		if success {
			o.clearLoaded(e.triggerID, e.implID)
		}
		if inst != nil {
			o.completeInstance(e.instanceID, inst)
		}
	}
	o.updateVirtual()
}

// completeInstance emits TriggerFinished for an idle executed instance and
// drops it unless it still holds loaded data.
func (o *Object) completeInstance(id TriggerInstanceID, inst *triggerInstance) {
	if !inst.idle() {
		return
	}
	if inst.flags&instancePlaying != 0 {
		o.sendTriggerFinished(id, inst)
	}
	if inst.flags&instanceLoaded != 0 {
		inst.flags &^= instancePlaying
		return
	}
	delete(o.instances, id)
}

func (o *Object) sendTriggerFinished(id TriggerInstanceID, inst *triggerInstance) {
	if inst.callback&callbackFlags == 0 {
		return
	}
	o.sys.push(&Request{
		Payload:       reportFinishedTriggerInstance{triggerID: inst.triggerID, instanceID: id},
		Flags:         inst.callback,
		Object:        o,
		Owner:         inst.owner,
		UserData:      inst.userData,
		UserDataOwner: inst.userDataOwner,
	})
}

// clearLoaded forgets that a trigger impl's data is loaded.
func (o *Object) clearLoaded(triggerID ControlID, implID TriggerImplID) {
	delete(o.implStates, implID)
	for id, inst := range o.instances {
		if inst.triggerID != triggerID || inst.flags&instanceLoaded == 0 {
			continue
		}
		if o.anyLoaded(triggerID) {
			continue
		}
		inst.flags &^= instanceLoaded
		if inst.idle() && inst.flags&instancePlaying == 0 {
			delete(o.instances, id)
		}
	}
}

func (o *Object) anyLoaded(triggerID ControlID) bool {
	t, ok := o.sys.rt.controls.triggers[triggerID]
	if !ok {
		return false
	}
	for _, ti := range t.impls {
		if o.implStates[ti.id]&instanceLoaded != 0 {
			return true
		}
	}
	return false
}

func (o *Object) updateVirtual() {
	virtual := len(o.activeEvents) > 0
	for e := range o.activeEvents {
		if e.state != EventStateVirtual {
			virtual = false
			break
		}
	}
	if virtual {
		o.flags |= objectVirtual
	} else {
		o.flags &^= objectVirtual
	}
}

// canBeReleased reports whether the object may be destructed.
func (o *Object) canBeReleased() bool {
	return o.flags&objectInUse == 0 &&
		len(o.activeEvents) == 0 &&
		len(o.activeFiles) == 0 &&
		!o.propagation.HasPendingRays() &&
		o.pendingSyncCallbacks.Load() == 0 &&
		o.inFlight.Load() == 0
}

// ─── Trigger operations ──────────────────────────────────────────────────────

// executeTrigger starts one event per impl entry of t.
func (o *Object) executeTrigger(t *trigger, env *envelope) Status {
	s := o.sys
	id := s.rt.nextInstanceID()
	inst := &triggerInstance{
		triggerID:     t.id,
		flags:         instancePlaying,
		callback:      env.Flags & callbackFlags,
		owner:         env.Owner,
		userData:      env.UserData,
		userDataOwner: env.UserDataOwner,
	}
	o.instances[id] = inst

	var started, failed int
	for _, ti := range t.impls {
		if ti.backend == nil {
			failed++
			continue
		}
		e, err := s.rt.events.construct()
		if err != nil {
			s.log.Error("cannot execute trigger impl", "object", o.name, "trigger", t.name, "err", err)
			failed++
			continue
		}
		e.object = o
		e.triggerID = t.id
		e.implID = ti.id
		e.instanceID = id

		switch st := o.backend.ExecuteTrigger(ti.backend, e.backend); st {
		case impl.StatusSuccess:
			e.state = EventStatePlaying
			o.reportStartedEvent(e)
			started++
		case impl.StatusSuccessVirtual:
			e.state = EventStateVirtual
			o.reportStartedEvent(e)
			started++
		case impl.StatusPending:
			e.state = EventStateLoading
			o.reportStartedEvent(e)
			started++
		case impl.StatusSuccessDoNotTrack:
			s.rt.events.destruct(e)
			started++
		default:
			s.log.Debug("backend failed trigger impl", "object", o.name, "trigger", t.name, "status", st.String())
			s.rt.events.destruct(e)
			failed++
		}
	}

	if inst.idle() {
		delete(o.instances, id)
		if started > 0 {
			o.sendTriggerFinished(id, inst)
		}
	}

	switch {
	case started == 0 && failed > 0:
		return StatusFailure
	case failed > 0:
		return StatusPartialSuccess
	default:
		return StatusSuccess
	}
}

// loadTrigger loads every impl entry of t that is not loaded yet.
func (o *Object) loadTrigger(t *trigger) Status {
	s := o.sys
	id := s.rt.nextInstanceID()
	inst := &triggerInstance{triggerID: t.id}
	o.instances[id] = inst

	failed := 0
	for _, ti := range t.impls {
		if o.implStates[ti.id]&instanceLoaded != 0 {
			inst.flags |= instanceLoaded
			continue
		}
		if ti.backend == nil {
			failed++
			continue
		}
		e, err := s.rt.events.construct()
		if err != nil {
			s.log.Error("cannot load trigger impl", "object", o.name, "trigger", t.name, "err", err)
			failed++
			continue
		}
		e.object = o
		e.triggerID = t.id
		e.implID = ti.id
		e.instanceID = id

		switch ti.backend.Load(e.backend) {
		case impl.StatusSuccess:
			o.implStates[ti.id] |= instanceLoaded
			inst.flags |= instanceLoaded
			s.rt.events.destruct(e)
		case impl.StatusPending:
			e.state = EventStateLoading
			o.reportStartedEvent(e)
		case impl.StatusSuccessDoNotTrack:
			s.rt.events.destruct(e)
		default:
			s.rt.events.destruct(e)
			failed++
		}
	}

	if inst.idle() && inst.flags&instanceLoaded == 0 {
		delete(o.instances, id)
	}
	o.dedupeLoaded(t.id, id)

	if failed > 0 {
		return StatusFailure
	}
	return StatusSuccess
}

// dedupeLoaded keeps a single idle loaded instance per trigger.
func (o *Object) dedupeLoaded(triggerID ControlID, keep TriggerInstanceID) {
	if _, ok := o.instances[keep]; !ok {
		return
	}
	for id, inst := range o.instances {
		if id == keep || inst.triggerID != triggerID {
			continue
		}
		if inst.idle() && inst.flags == instanceLoaded {
			delete(o.instances, id)
		}
	}
}

// unloadTrigger releases every loaded impl entry of t.
func (o *Object) unloadTrigger(t *trigger) Status {
	s := o.sys
	var owner TriggerInstanceID
	for id, inst := range o.instances {
		if inst.triggerID == t.id && inst.flags&instanceLoaded != 0 {
			owner = id
			break
		}
	}

	failed := 0
	for _, ti := range t.impls {
		if o.implStates[ti.id]&instanceLoaded == 0 || ti.backend == nil {
			continue
		}
		e, err := s.rt.events.construct()
		if err != nil {
			s.log.Error("cannot unload trigger impl", "object", o.name, "trigger", t.name, "err", err)
			failed++
			continue
		}
		e.object = o
		e.triggerID = t.id
		e.implID = ti.id
		e.instanceID = owner

		switch ti.backend.Unload(e.backend) {
		case impl.StatusSuccess, impl.StatusSuccessDoNotTrack:
			s.rt.events.destruct(e)
			o.clearLoaded(t.id, ti.id)
		case impl.StatusPending:
			e.state = EventStateUnloading
			o.activeEvents[e] = struct{}{}
		default:
			s.rt.events.destruct(e)
			failed++
		}
	}
	if failed > 0 {
		return StatusFailure
	}
	return StatusSuccess
}

// handleStopTrigger stops every Playing or Virtual event of the trigger.
// Completion is reported by the backend.
func (o *Object) handleStopTrigger(triggerID ControlID) Status {
	status := StatusSuccess
	for e := range o.activeEvents {
		if e.triggerID != triggerID {
			continue
		}
		if e.state != EventStatePlaying && e.state != EventStateVirtual {
			continue
		}
		if err := e.backend.Stop(); err != nil {
			o.sys.log.Warn("backend failed to stop event", "object", o.name, "trigger_id", triggerID, "err", err)
			status = StatusFailure
		}
	}
	return status
}

// stopAllTriggers is a no-op for objects without active events.
func (o *Object) stopAllTriggers() Status {
	if len(o.activeEvents) == 0 {
		return StatusSuccess
	}
	if err := o.backend.StopAllTriggers(); err != nil {
		o.sys.log.Warn("backend failed to stop all triggers", "object", o.name, "err", err)
		return StatusFailure
	}
	return StatusSuccess
}

// ─── Standalone files ────────────────────────────────────────────────────────

func (o *Object) playFile(p PlayFile, env *envelope) Status {
	s := o.sys
	if p.File == "" {
		return StatusFailureInvalidRequest
	}
	var bt impl.Trigger
	if p.TriggerID != InvalidControlID {
		t, ok := s.rt.controls.triggers[p.TriggerID]
		if !ok {
			s.log.Warn("play file with unknown trigger", "object", o.name, "file", p.File, "trigger_id", p.TriggerID)
			return StatusFailureInvalidControlID
		}
		if len(t.impls) > 0 {
			bt = t.impls[0].backend
		}
	}
	if _, err := s.rt.backend.GetFileData(p.File); err != nil {
		s.log.Warn("cannot play file", "object", o.name, "file", p.File, "err", err)
		return StatusFailure
	}

	f, err := s.rt.files.construct(p.File, p.Localized, bt)
	if err != nil {
		s.log.Error("cannot play file", "object", o.name, "file", p.File, "err", err)
		return StatusFailure
	}
	f.object = o
	f.triggerID = p.TriggerID
	f.flags = env.Flags & callbackFlags
	f.owner = env.Owner
	f.userData = env.UserData
	f.userDataOwner = env.UserDataOwner

	switch st := o.backend.PlayFile(f.backend); st {
	case impl.StatusSuccess, impl.StatusSuccessVirtual:
		f.state = FileStatePlaying
		s.ReportStartedFile(f.ref, true)
	case impl.StatusPending:
		f.state = FileStateLoading
	default:
		s.log.Debug("backend failed to play file", "object", o.name, "file", p.File, "status", st.String())
		s.rt.files.destruct(f)
		return StatusFailure
	}
	o.activeFiles[f] = struct{}{}
	env.file = f.info()
	return StatusSuccess
}

// stopFile stops every loading or playing instance of the named file.
func (o *Object) stopFile(name string) Status {
	s := o.sys
	status := StatusSuccess
	for f := range o.activeFiles {
		if f.name != name || f.state == FileStateStopping {
			continue
		}
		switch st := o.backend.StopFile(f.backend); st {
		case impl.StatusPending:
			f.state = FileStateStopping
		case impl.StatusFailure:
			s.log.Warn("backend failed to stop file", "object", o.name, "file", name)
			status = StatusFailure
		default:
			f.state = FileStateStopping
			s.ReportStoppedFile(f.ref)
		}
	}
	return status
}

func (o *Object) stopAllFiles() {
	names := make(map[string]struct{}, len(o.activeFiles))
	for f := range o.activeFiles {
		names[f.name] = struct{}{}
	}
	for name := range names {
		o.stopFile(name)
	}
}

// ─── Persistent state ────────────────────────────────────────────────────────

func (o *Object) setParameter(id ControlID, value float32) Status {
	p, ok := o.sys.rt.controls.parameters[id]
	if !ok {
		o.sys.log.Warn("unknown parameter", "object", o.name, "parameter_id", id)
		return StatusFailureInvalidControlID
	}
	o.parameters[id] = value
	if p.backend == nil {
		return StatusFailure
	}
	if err := o.backend.SetParameter(p.backend, value); err != nil {
		o.sys.log.Warn("backend failed to set parameter", "object", o.name, "parameter", p.name, "err", err)
		return StatusFailure
	}
	return StatusSuccess
}

func (o *Object) setSwitchState(switchID, stateID ControlID) Status {
	sw, ok := o.sys.rt.controls.switches[switchID]
	if !ok {
		o.sys.log.Warn("unknown switch", "object", o.name, "switch_id", switchID)
		return StatusFailureInvalidControlID
	}
	st, ok := sw.states[stateID]
	if !ok {
		o.sys.log.Warn("unknown switch state", "object", o.name, "switch", sw.name, "state_id", stateID)
		return StatusFailureInvalidControlID
	}
	o.switchStates[switchID] = stateID
	if st.backend == nil {
		return StatusFailure
	}
	if err := o.backend.SetSwitchState(st.backend); err != nil {
		o.sys.log.Warn("backend failed to set switch state", "object", o.name, "switch", sw.name, "state", st.name, "err", err)
		return StatusFailure
	}
	return StatusSuccess
}

func (o *Object) setEnvironment(id ControlID, amount float32) Status {
	env, ok := o.sys.rt.controls.environments[id]
	if !ok {
		o.sys.log.Warn("unknown environment", "object", o.name, "environment_id", id)
		return StatusFailureInvalidControlID
	}
	amount = max(0, min(1, amount))
	if amount == 0 {
		delete(o.environments, id)
	} else {
		o.environments[id] = amount
	}
	if env.backend == nil {
		return StatusFailure
	}
	if err := o.backend.SetEnvironment(env.backend, amount); err != nil {
		o.sys.log.Warn("backend failed to set environment", "object", o.name, "environment", env.name, "err", err)
		return StatusFailure
	}
	return StatusSuccess
}

func (o *Object) resetEnvironments() Status {
	status := StatusSuccess
	for id := range o.environments {
		if st := o.setEnvironment(id, 0); st != StatusSuccess {
			status = st
		}
	}
	clear(o.environments)
	return status
}

func (o *Object) setTransformation(t impl.Transformation) Status {
	o.transformation = t
	if err := o.backend.SetTransformation(t); err != nil {
		o.sys.log.Warn("backend failed to set transformation", "object", o.name, "err", err)
		return StatusFailure
	}
	return StatusSuccess
}

func (o *Object) setOcclusionType(t impl.OcclusionType) Status {
	o.occlusionType = t
	o.propagation.SetOcclusionType(t)
	if err := o.backend.SetOcclusionType(t); err != nil {
		o.sys.log.Warn("backend failed to set occlusion type", "object", o.name, "err", err)
		return StatusFailure
	}
	return StatusSuccess
}

func (o *Object) setName(name string) Status {
	o.name = name
	if err := o.backend.SetName(name); err != nil {
		o.sys.log.Warn("backend failed to rename object", "object", name, "err", err)
		return StatusFailure
	}
	return StatusSuccess
}

func (o *Object) toggleVelocityTracking(absolute, relative bool) {
	o.setFlag(objectTrackAbsoluteVelocity, absolute)
	o.setFlag(objectTrackRelativeVelocity, relative)
	o.backend.ToggleFunctionality(impl.TrackAbsoluteVelocity, absolute)
	o.backend.ToggleFunctionality(impl.TrackRelativeVelocity, relative)
	o.velocityPrimed = false
}

func (o *Object) setFlag(f objectFlags, on bool) {
	if on {
		o.flags |= f
	} else {
		o.flags &^= f
	}
}

// ─── Update ──────────────────────────────────────────────────────────────────

// update advances propagation and velocity tracking and then the backend
// object.
func (o *Object) update(dt time.Duration, listener impl.Transformation) {
	// A released object gets no more rays from the host.
	if o.flags&objectInUse != 0 {
		o.updatePropagation(dt, listener)
	}
	o.updateVelocity(dt, listener)
	o.backend.Update(dt)
}

func (o *Object) updatePropagation(dt time.Duration, listener impl.Transformation) {
	o.propagation.Update(dt, listener, o.transformation)
	if !o.propagation.HasNewOcclusionValues() {
		return
	}
	o.propData = o.propagation.GetPropagationData()
	if err := o.backend.SetObstructionOcclusion(o.propData.Obstruction, o.propData.Occlusion); err != nil {
		o.sys.log.Debug("backend failed to set obstruction/occlusion", "object", o.name, "err", err)
	}
}

func (o *Object) updateVelocity(dt time.Duration, listener impl.Transformation) {
	if o.flags&(objectTrackAbsoluteVelocity|objectTrackRelativeVelocity) == 0 || dt <= 0 {
		return
	}
	pos := o.transformation.Position
	dist := pos.Sub(listener.Position).Len()
	if !o.velocityPrimed {
		o.prevPosition, o.prevDistance, o.velocityPrimed = pos, dist, true
		return
	}
	secs := float32(dt.Seconds())

	if o.flags&objectTrackAbsoluteVelocity != 0 {
		v := pos.Sub(o.prevPosition).Len() / secs
		if diff := v - o.absVelocity; diff >= velocityEpsilon || diff <= -velocityEpsilon || (v == 0 && o.absVelocity != 0) {
			o.absVelocity = v
			o.applyBuiltinParameter(AbsoluteVelocityParameterID, v)
		}
	}
	if o.flags&objectTrackRelativeVelocity != 0 {
		v := (dist - o.prevDistance) / secs
		if diff := v - o.relVelocity; diff >= velocityEpsilon || diff <= -velocityEpsilon || (v == 0 && o.relVelocity != 0) {
			o.relVelocity = v
			o.applyBuiltinParameter(RelativeVelocityParameterID, v)
		}
	}
	o.prevPosition, o.prevDistance = pos, dist
}

// applyBuiltinParameter forwards a computed value if the parameter is part
// of the control set.
func (o *Object) applyBuiltinParameter(id ControlID, value float32) {
	if _, ok := o.sys.rt.controls.parameters[id]; !ok {
		return
	}
	o.setParameter(id, value)
}
