package atl

import (
	"cmp"
	"slices"

	"github.com/MrWong99/atl/pkg/impl"
	"github.com/MrWong99/atl/pkg/impl/null"
	"github.com/MrWong99/atl/pkg/propagation"
)

// replayTrigger is a playing trigger instance captured before a backend
// swap.
type replayTrigger struct {
	id            TriggerInstanceID
	triggerID     ControlID
	callback      RequestFlags
	owner         any
	userData      any
	userDataOwner any
}

type replayFile struct {
	play          PlayFile
	flags         RequestFlags
	owner         any
	userData      any
	userDataOwner any
}

type objectReplay struct {
	object   *Object
	loads    []ControlID
	triggers []replayTrigger
	files    []replayFile
}

// allObjects returns the global object followed by every registered object.
func (s *System) allObjects() []*Object {
	return append([]*Object{s.global}, s.rt.objects.objects...)
}

// setImpl tears down everything bound to the current backend, binds next
// (the null backend when nil or when next fails to initialise) and replays
// object state and active playback onto it.
func (s *System) setImpl(next impl.Impl) Status {
	replays := s.captureReplays()
	old := s.ImplInfo()
	s.unbindBackend()

	status := StatusSuccess
	fallback := false
	if next == nil {
		next = null.New()
	}
	if err := next.Init(s); err != nil {
		s.log.Warn("backend failed to initialise, using null backend", "backend", next.GetInfo().Name, "err", err)
		next = null.New()
		_ = next.Init(s)
		status = StatusFailure
		fallback = true
	}
	s.bindBackend(next)

	replayed := 0
	for _, r := range replays {
		replayed += s.replay(r)
	}

	info := s.ImplInfo()
	s.telemetry.ImplChanged(info.Name, fallback)
	s.log.Info("backend set",
		"from", old.Name,
		"backend", info.Name,
		"version", info.Version,
		"objects", s.rt.objects.len(),
		"replayed", replayed)
	return status
}

// captureReplays records, per object, which triggers are playing or loaded
// and which files are playing.
func (s *System) captureReplays() []objectReplay {
	var out []objectReplay
	for _, o := range s.allObjects() {
		r := objectReplay{object: o}
		for id, inst := range o.instances {
			if inst.flags&instanceLoaded != 0 && !slices.Contains(r.loads, inst.triggerID) {
				r.loads = append(r.loads, inst.triggerID)
			}
			if inst.flags&instancePlaying != 0 {
				r.triggers = append(r.triggers, replayTrigger{
					id:            id,
					triggerID:     inst.triggerID,
					callback:      inst.callback,
					owner:         inst.owner,
					userData:      inst.userData,
					userDataOwner: inst.userDataOwner,
				})
			}
		}
		slices.SortFunc(r.triggers, func(a, b replayTrigger) int { return cmp.Compare(a.id, b.id) })
		for f := range o.activeFiles {
			if f.state == FileStateStopping {
				continue
			}
			r.files = append(r.files, replayFile{
				play:          PlayFile{File: f.name, Localized: f.localized, TriggerID: f.triggerID},
				flags:         f.flags,
				owner:         f.owner,
				userData:      f.userData,
				userDataOwner: f.userDataOwner,
			})
		}
		out = append(out, r)
	}
	return out
}

// unbindBackend destructs every event, file, control, object and listener
// bound to the current backend and shuts the backend down.
func (s *System) unbindBackend() {
	b := s.rt.backend
	if b == nil {
		return
	}
	objects := s.allObjects()
	for _, o := range objects {
		clear(o.activeEvents)
		clear(o.instances)
		clear(o.implStates)
		clear(o.activeFiles)
		o.flags &^= objectVirtual
	}
	s.rt.events.releaseAll()
	s.rt.files.releaseAll()
	if n := s.rt.events.len(); n != 0 {
		s.violation(nil, "event_pool_unbalanced", "%d events alive after release", n)
	}
	if n := s.rt.files.len(); n != 0 {
		s.violation(nil, "file_pool_unbalanced", "%d files alive after release", n)
	}

	s.rt.controls.destruct(b)
	for _, o := range objects {
		o.destruct(b)
	}
	for _, l := range s.rt.listeners.listeners {
		l.destruct(b)
	}
	b.ShutDown()
	b.Release()
	s.rt.backend = nil
}

// bindBackend constructs every control, object and listener on b and
// restores their persistent state.
func (s *System) bindBackend(b impl.Impl) {
	s.rt.backend = b
	s.rt.events.backend = b
	s.rt.files.backend = b
	info := b.GetInfo()
	s.info.Store(&info)

	s.rt.controls.construct(b, s.log)
	if s.rt.language != "" {
		b.SetLanguage(s.rt.language)
	}
	for _, o := range s.allObjects() {
		if err := o.construct(b); err != nil {
			s.log.Error("backend rejected object, keeping it silent", "object", o.name, "err", err)
			o.backend, _ = null.New().ConstructObject(o.name, o.transformation)
		}
		o.restore()
	}
	for _, l := range s.rt.listeners.listeners {
		if err := l.construct(b); err != nil {
			s.log.Error("backend rejected listener", "listener", l.name, "err", err)
			l.backend, _ = null.New().ConstructListener(l.name, l.transformation)
		}
	}
}

// replay re-issues captured loads, triggers and files on the new backend
// and returns how many were started again.
func (s *System) replay(r objectReplay) int {
	o := r.object
	n := 0
	for _, id := range r.loads {
		if t, ok := s.rt.controls.triggers[id]; ok && o.loadTrigger(t) == StatusSuccess {
			n++
		}
	}
	for _, rt := range r.triggers {
		t, ok := s.rt.controls.triggers[rt.triggerID]
		if !ok {
			continue
		}
		env := &envelope{Request: Request{
			Flags:         rt.callback,
			Object:        o,
			Owner:         rt.owner,
			UserData:      rt.userData,
			UserDataOwner: rt.userDataOwner,
		}}
		if st := o.executeTrigger(t, env); st.Result() == ResultSuccess {
			n++
		}
	}
	for _, rf := range r.files {
		env := &envelope{Request: Request{
			Flags:         rf.flags,
			Object:        o,
			Owner:         rf.owner,
			UserData:      rf.userData,
			UserDataOwner: rf.userDataOwner,
		}}
		if o.playFile(rf.play, env) == StatusSuccess {
			n++
		}
	}
	return n
}

func (o *Object) construct(b impl.Impl) error {
	var (
		bo  impl.Object
		err error
	)
	if o.global {
		bo, err = b.ConstructGlobalObject()
	} else {
		bo, err = b.ConstructObject(o.name, o.transformation)
	}
	if err != nil {
		return err
	}
	o.backend = bo
	return nil
}

func (o *Object) destruct(b impl.Impl) {
	if o.backend != nil {
		b.DestructObject(o.backend)
		o.backend = nil
	}
}

// restore pushes the object's persistent state to a freshly constructed
// backend object. Values of controls that no longer exist are dropped.
func (o *Object) restore() {
	c := o.sys.rt.controls
	if o.occlusionType != impl.OcclusionNone {
		_ = o.backend.SetOcclusionType(o.occlusionType)
	}
	if o.flags&objectTrackAbsoluteVelocity != 0 {
		o.backend.ToggleFunctionality(impl.TrackAbsoluteVelocity, true)
	}
	if o.flags&objectTrackRelativeVelocity != 0 {
		o.backend.ToggleFunctionality(impl.TrackRelativeVelocity, true)
	}
	for id, v := range o.parameters {
		if _, ok := c.parameters[id]; !ok {
			delete(o.parameters, id)
			continue
		}
		o.setParameter(id, v)
	}
	for sw, st := range o.switchStates {
		if _, ok := c.switches[sw]; !ok {
			delete(o.switchStates, sw)
			continue
		}
		o.setSwitchState(sw, st)
	}
	for id, amount := range o.environments {
		if _, ok := c.environments[id]; !ok {
			delete(o.environments, id)
			continue
		}
		o.setEnvironment(id, amount)
	}
	if o.propData != (propagation.Data{}) {
		_ = o.backend.SetObstructionOcclusion(o.propData.Obstruction, o.propData.Occlusion)
	}
}
