// Package propagation defines the obstruction/occlusion collaborator consumed
// by ATL audio objects.
//
// A [Processor] is owned by exactly one audio object and is only called from
// the ATL audio goroutine. The ATL never schedules ray casts itself: the host
// application casts physics rays (synchronously or asynchronously) and feeds
// their results back with [Processor.ProcessPhysicsRay] through an object
// request.
package propagation

import (
	"time"

	"github.com/MrWong99/atl/pkg/impl"
)

// Data is the obstruction/occlusion result of a processor, both in [0, 1].
type Data struct {
	Obstruction float32 `json:"obstruction"`
	Occlusion   float32 `json:"occlusion"`
}

// RayInfo is the result of one physics ray cast from the listener towards an
// object.
type RayInfo struct {
	// Hits is the number of occluding surfaces the ray passed through.
	Hits int `json:"hits"`

	// Occlusion is the accumulated occlusion of all hit surfaces in [0, 1].
	Occlusion float32 `json:"occlusion"`

	// Distance is the length of the ray.
	Distance float32 `json:"distance"`
}

// Processor evaluates obstruction and occlusion for one audio object.
type Processor interface {
	// Update advances the processor. listener and object are the current
	// placements of the default listener and of the owning object.
	Update(dt time.Duration, listener, object impl.Transformation)

	// HasNewOcclusionValues reports whether GetPropagationData would return
	// values that were not yet forwarded to the backend.
	HasNewOcclusionValues() bool

	// GetPropagationData returns the current values and marks them as consumed.
	GetPropagationData() Data

	// ProcessPhysicsRay feeds back one ray cast result.
	ProcessPhysicsRay(ray RayInfo)

	SetOcclusionType(t impl.OcclusionType)
	SetOcclusionRayOffset(offset float32)

	// ReleasePendingRays drops every ray the processor is still waiting for.
	ReleasePendingRays()

	// HasPendingRays reports whether ray results are still outstanding. An
	// object with pending rays cannot be released.
	HasPendingRays() bool
}

// Factory creates the processor for a newly registered object.
type Factory func(objectName string) Processor

// Null is a [Processor] that never produces occlusion values.
type Null struct{}

// NewNull returns a [Factory] producing [Null] processors.
func NewNull() Factory {
	return func(string) Processor { return Null{} }
}

func (Null) Update(time.Duration, impl.Transformation, impl.Transformation) {}
func (Null) HasNewOcclusionValues() bool                                    { return false }
func (Null) GetPropagationData() Data                                       { return Data{} }
func (Null) ProcessPhysicsRay(RayInfo)                                      {}
func (Null) SetOcclusionType(impl.OcclusionType)                            {}
func (Null) SetOcclusionRayOffset(float32)                                  {}
func (Null) ReleasePendingRays()                                            {}
func (Null) HasPendingRays() bool                                           { return false }
