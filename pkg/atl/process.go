package atl

// processManager handles system-wide requests.
func (s *System) processManager(env *envelope) Status {
	switch p := env.Payload.(type) {
	case SetImpl:
		env.systemEvent = SystemEventImplSet
		return s.setImpl(p.Impl)
	case ReleaseImpl:
		env.systemEvent = SystemEventImplSet
		return s.setImpl(nil)
	case ReloadControls:
		return s.reloadControls(p.Definition)
	case StopAllSounds:
		s.rt.backend.StopAllSounds()
		return StatusSuccess
	case SetLanguage:
		s.rt.language = p.Language
		s.rt.backend.SetLanguage(p.Language)
		return StatusSuccess
	case registerObject:
		o := p.object
		if o == nil || o.sys != s || o.registered || o.global {
			return StatusFailureInvalidRequest
		}
		if err := s.rt.objects.register(o, s.rt.backend); err != nil {
			s.log.Error("cannot register object", "err", err)
			return StatusFailure
		}
		s.log.Debug("object registered", "object", o.name, "id", o.id)
		return StatusSuccess
	case registerListener:
		l := p.listener
		if l == nil || l.sys != s || l.registered {
			return StatusFailureInvalidRequest
		}
		if err := s.rt.listeners.register(l, s.rt.backend); err != nil {
			s.log.Error("cannot register listener", "err", err)
			return StatusFailure
		}
		return StatusSuccess
	case takeSnapshot:
		if p.out == nil {
			return StatusFailureInvalidRequest
		}
		s.fillSnapshot(p.out)
		return StatusSuccess
	default:
		return StatusFailureInvalidRequest
	}
}

// reloadControls swaps the control set. Objects keep their events; stored
// values of controls that no longer exist are dropped on the next backend
// swap.
func (s *System) reloadControls(def ControlsDefinition) Status {
	c, err := NewControls(def)
	if err != nil {
		s.log.Warn("rejected control set", "err", err)
		return StatusFailure
	}
	s.rt.controls.destruct(s.rt.backend)
	c.construct(s.rt.backend, s.log)
	s.rt.controls = c
	s.log.Info("controls reloaded",
		"triggers", len(c.triggers),
		"parameters", len(c.parameters),
		"switches", len(c.switches),
		"environments", len(c.environments))
	return StatusSuccess
}

// processObject handles requests targeting a single object.
func (s *System) processObject(env *envelope) Status {
	o := env.Object
	if o == nil || o.sys != s || !o.registered || o.flags&objectInUse == 0 {
		s.log.Debug("object request for unknown or released object", "kind", env.Kind())
		return StatusFailureInvalidRequest
	}

	switch p := env.Payload.(type) {
	case ExecuteTrigger:
		env.systemEvent = SystemEventTriggerExecuted
		env.controlID = p.TriggerID
		t, ok := s.lookupTrigger(o, p.TriggerID)
		if !ok {
			return StatusFailureInvalidControlID
		}
		return o.executeTrigger(t, env)
	case StopTrigger:
		env.controlID = p.TriggerID
		if _, ok := s.lookupTrigger(o, p.TriggerID); !ok {
			return StatusFailureInvalidControlID
		}
		return o.handleStopTrigger(p.TriggerID)
	case StopAllTriggers:
		return o.stopAllTriggers()
	case LoadTrigger:
		env.controlID = p.TriggerID
		t, ok := s.lookupTrigger(o, p.TriggerID)
		if !ok {
			return StatusFailureInvalidControlID
		}
		return o.loadTrigger(t)
	case UnloadTrigger:
		env.controlID = p.TriggerID
		t, ok := s.lookupTrigger(o, p.TriggerID)
		if !ok {
			return StatusFailureInvalidControlID
		}
		return o.unloadTrigger(t)
	case SetParameter:
		env.controlID = p.ParameterID
		return o.setParameter(p.ParameterID, p.Value)
	case SetSwitchState:
		env.controlID = p.SwitchID
		return o.setSwitchState(p.SwitchID, p.StateID)
	case SetEnvironment:
		env.controlID = p.EnvironmentID
		return o.setEnvironment(p.EnvironmentID, p.Amount)
	case ResetEnvironments:
		return o.resetEnvironments()
	case SetTransformation:
		return o.setTransformation(p.Transformation)
	case SetOcclusionType:
		return o.setOcclusionType(p.OcclusionType)
	case SetOcclusionRayOffset:
		o.rayOffset = p.Offset
		o.propagation.SetOcclusionRayOffset(p.Offset)
		return StatusSuccess
	case PlayFile:
		env.systemEvent = SystemEventFilePlay
		env.controlID = IDFromName(p.File)
		return o.playFile(p, env)
	case StopFile:
		env.controlID = IDFromName(p.File)
		return o.stopFile(p.File)
	case ProcessPhysicsRay:
		o.propagation.ProcessPhysicsRay(p.Ray)
		return StatusSuccess
	case ToggleVelocityTracking:
		o.toggleVelocityTracking(p.Absolute, p.Relative)
		return StatusSuccess
	case SetName:
		return o.setName(p.Name)
	case releaseObject:
		if o.global {
			return StatusFailureInvalidRequest
		}
		o.flags &^= objectInUse
		o.stopAllTriggers()
		o.stopAllFiles()
		o.propagation.ReleasePendingRays()
		return StatusSuccess
	default:
		return StatusFailureInvalidRequest
	}
}

func (s *System) lookupTrigger(o *Object, id ControlID) (*trigger, bool) {
	t, ok := s.rt.controls.triggers[id]
	if !ok {
		s.log.Warn("unknown trigger", "object", o.name, "trigger_id", id)
	}
	return t, ok
}

// processListener handles requests targeting a listener.
func (s *System) processListener(env *envelope) Status {
	l := env.Listener
	if l == nil || l.sys != s || !l.registered {
		return StatusFailureInvalidRequest
	}
	switch p := env.Payload.(type) {
	case SetListenerTransformation:
		l.transformation = p.Transformation
		if err := l.backend.SetTransformation(p.Transformation); err != nil {
			s.log.Warn("backend failed to move listener", "listener", l.name, "err", err)
			return StatusFailure
		}
		return StatusSuccess
	case SetListenerName:
		l.name = p.Name
		if err := l.backend.SetName(p.Name); err != nil {
			s.log.Warn("backend failed to rename listener", "listener", l.name, "err", err)
			return StatusFailure
		}
		return StatusSuccess
	case releaseListener:
		if !s.rt.listeners.release(l, s.rt.backend) {
			return StatusFailureInvalidRequest
		}
		return StatusSuccess
	default:
		return StatusFailureInvalidRequest
	}
}

// processCallback handles backend reports, trigger completion and request
// listener registration.
func (s *System) processCallback(env *envelope) Status {
	switch p := env.Payload.(type) {
	case reportStartedEvent:
		e, ok := s.rt.events.lookup(p.ref)
		if !ok {
			s.log.Debug("started report for unknown event", "ref", uint64(p.ref))
			return StatusFailure
		}
		if e.state == EventStateLoading {
			e.state = EventStatePlayingDelayed
			e.object.reportStartedEvent(e)
		}
		env.event = e.info()
		return StatusSuccess
	case reportFinishedEvent:
		e, ok := s.rt.events.lookup(p.ref)
		if !ok {
			s.log.Debug("finished report for unknown event", "ref", uint64(p.ref))
			return StatusFailure
		}
		env.event = e.info()
		e.object.reportFinishedEvent(e, p.success)
		s.rt.events.destruct(e)
		return StatusSuccess
	case reportVirtualizedEvent:
		e, ok := s.rt.events.lookup(p.ref)
		if !ok {
			return StatusFailure
		}
		if e.state == EventStatePlaying {
			e.state = EventStateVirtual
			e.object.updateVirtual()
		}
		return StatusSuccess
	case reportPhysicalizedEvent:
		e, ok := s.rt.events.lookup(p.ref)
		if !ok {
			return StatusFailure
		}
		if e.state == EventStateVirtual {
			e.state = EventStatePlaying
			e.object.updateVirtual()
		}
		return StatusSuccess
	case reportStartedFile:
		f, ok := s.rt.files.lookup(p.ref)
		if !ok {
			s.log.Debug("started report for unknown file", "ref", uint64(p.ref))
			return StatusFailure
		}
		s.adoptFileContext(env, f, SystemEventFileStarted)
		if !p.success {
			f.state = FileStateNone
			env.file = f.info()
			s.removeFile(f)
			return StatusFailure
		}
		if f.state == FileStateLoading {
			f.state = FileStatePlaying
		}
		env.file = f.info()
		return StatusSuccess
	case reportStoppedFile:
		f, ok := s.rt.files.lookup(p.ref)
		if !ok {
			s.log.Debug("stopped report for unknown file", "ref", uint64(p.ref))
			return StatusFailure
		}
		s.adoptFileContext(env, f, SystemEventFileStopped)
		f.state = FileStateNone
		env.file = f.info()
		s.removeFile(f)
		return StatusSuccess
	case reportFinishedTriggerInstance:
		env.systemEvent = SystemEventTriggerFinished
		env.controlID = p.triggerID
		env.event = &EventInfo{TriggerID: p.triggerID, TriggerInstanceID: p.instanceID}
		return StatusSuccess
	case addRequestListener:
		if p.cb == nil {
			return StatusFailureInvalidRequest
		}
		s.listeners.add(requestListener{token: p.token, cb: p.cb, owner: p.owner, mask: p.mask})
		return StatusSuccess
	case removeRequestListener:
		if !s.listeners.remove(p.token) {
			return StatusFailure
		}
		return StatusSuccess
	default:
		return StatusFailureInvalidRequest
	}
}

// adoptFileContext makes a file report carry the notification context of
// the PlayFile request that started the file.
func (s *System) adoptFileContext(env *envelope, f *standaloneFile, ev SystemEvent) {
	env.systemEvent = ev
	env.controlID = IDFromName(f.name)
	env.Object = f.object
	env.Flags |= f.flags
	env.Owner = f.owner
	env.UserData = f.userData
	env.UserDataOwner = f.userDataOwner
}

func (s *System) removeFile(f *standaloneFile) {
	if f.object != nil {
		delete(f.object.activeFiles, f)
	}
	s.rt.files.destruct(f)
}
