package atl

import (
	"cmp"
	"slices"

	"github.com/MrWong99/atl/pkg/impl"
	"github.com/MrWong99/atl/pkg/propagation"
)

// Snapshot is a point-in-time view of the runtime for diagnostics.
type Snapshot struct {
	Impl      impl.Info          `json:"impl"`
	Frame     uint64             `json:"frame"`
	Language  string             `json:"language,omitempty"`
	Events    int                `json:"events"`
	Files     int                `json:"files"`
	Requests  int                `json:"queued_requests"`
	Objects   []ObjectSnapshot   `json:"objects"`
	Listeners []ListenerSnapshot `json:"listeners"`
}

// ObjectSnapshot describes one object.
type ObjectSnapshot struct {
	ID                   uint64                    `json:"id"`
	Name                 string                    `json:"name"`
	Global               bool                      `json:"global,omitempty"`
	InUse                bool                      `json:"in_use"`
	Virtual              bool                      `json:"virtual"`
	Transformation       impl.Transformation       `json:"transformation"`
	OcclusionType        string                    `json:"occlusion_type"`
	Propagation          propagation.Data          `json:"propagation"`
	ActiveEvents         int                       `json:"active_events"`
	ActiveFiles          int                       `json:"active_files"`
	PendingSyncCallbacks int32                     `json:"pending_sync_callbacks"`
	TriggerInstances     []TriggerInstanceSnapshot `json:"trigger_instances,omitempty"`
}

// TriggerInstanceSnapshot describes one trigger instance of an object.
type TriggerInstanceSnapshot struct {
	ID         TriggerInstanceID `json:"id"`
	TriggerID  ControlID         `json:"trigger_id"`
	Trigger    string            `json:"trigger"`
	NumLoading int               `json:"num_loading"`
	NumPlaying int               `json:"num_playing"`
	Loaded     bool              `json:"loaded"`
	Playing    bool              `json:"playing"`
}

// ListenerSnapshot describes one listener.
type ListenerSnapshot struct {
	ID             uint64              `json:"id"`
	Name           string              `json:"name"`
	Transformation impl.Transformation `json:"transformation"`
	Velocity       impl.Vec3           `json:"velocity"`
}

func (s *System) fillSnapshot(out *Snapshot) {
	*out = Snapshot{
		Impl:     s.ImplInfo(),
		Frame:    s.frame.Load(),
		Language: s.rt.language,
		Events:   s.rt.events.len(),
		Files:    s.rt.files.len(),
		Requests: s.QueueLen(),
	}
	for _, o := range s.allObjects() {
		out.Objects = append(out.Objects, o.snapshot())
	}
	for _, l := range s.rt.listeners.listeners {
		out.Listeners = append(out.Listeners, ListenerSnapshot{
			ID:             l.id,
			Name:           l.name,
			Transformation: l.transformation,
			Velocity:       l.velocity,
		})
	}
}

func (o *Object) snapshot() ObjectSnapshot {
	snap := ObjectSnapshot{
		ID:                   o.id,
		Name:                 o.name,
		Global:               o.global,
		InUse:                o.flags&objectInUse != 0,
		Virtual:              o.flags&objectVirtual != 0,
		Transformation:       o.transformation,
		OcclusionType:        o.occlusionType.String(),
		Propagation:          o.propData,
		ActiveEvents:         len(o.activeEvents),
		ActiveFiles:          len(o.activeFiles),
		PendingSyncCallbacks: o.pendingSyncCallbacks.Load(),
	}
	for id, inst := range o.instances {
		snap.TriggerInstances = append(snap.TriggerInstances, TriggerInstanceSnapshot{
			ID:         id,
			TriggerID:  inst.triggerID,
			Trigger:    o.sys.rt.controls.Name(inst.triggerID),
			NumLoading: inst.numLoading,
			NumPlaying: inst.numPlaying,
			Loaded:     inst.flags&instanceLoaded != 0,
			Playing:    inst.flags&instancePlaying != 0,
		})
	}
	slices.SortFunc(snap.TriggerInstances, func(a, b TriggerInstanceSnapshot) int { return cmp.Compare(a.ID, b.ID) })
	return snap
}

// Object returns the snapshot of the object with the given ID.
func (s Snapshot) Object(id uint64) (ObjectSnapshot, bool) {
	for _, o := range s.Objects {
		if o.ID == id {
			return o, true
		}
	}
	return ObjectSnapshot{}, false
}
