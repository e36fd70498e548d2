package propagation

import (
	"time"

	"github.com/MrWong99/atl/pkg/impl"
)

const (
	// DefaultMaxDistance is the listener distance beyond which no rays are
	// requested and occlusion decays to zero.
	DefaultMaxDistance = 500

	// changeEpsilon is the minimum change that counts as a new value.
	changeEpsilon = 0.01

	// maxPendingRays bounds the backlog of outstanding ray results.
	maxPendingRays = 64
)

// raysPerUpdate returns how many rays an occlusion type asks for per update.
func raysPerUpdate(t impl.OcclusionType) int {
	switch t {
	case impl.OcclusionLow:
		return 1
	case impl.OcclusionMedium, impl.OcclusionAdaptive:
		return 4
	case impl.OcclusionHigh:
		return 8
	default:
		return 0
	}
}

// AccumulatorOption configures an [Accumulator].
type AccumulatorOption func(*Accumulator)

// WithMaxDistance sets the maximum listener distance for ray requests.
func WithMaxDistance(d float32) AccumulatorOption {
	return func(a *Accumulator) {
		if d > 0 {
			a.maxDistance = d
		}
	}
}

// WithWindow sets how many ray samples are averaged. Default: 8.
func WithWindow(n int) AccumulatorOption {
	return func(a *Accumulator) {
		if n > 0 {
			a.samples = make([]float32, 0, n)
			a.window = n
		}
	}
}

// Accumulator is a [Processor] that averages the occlusion of the most
// recent ray results reported by the host. Obstruction follows the most
// recent ray that hit something.
type Accumulator struct {
	occlusionType impl.OcclusionType
	rayOffset     float32
	maxDistance   float32
	window        int

	samples []float32
	next    int
	pending int

	current  Data
	reported Data
	dirty    bool
}

// NewAccumulator returns an [Accumulator] with occlusion disabled until
// SetOcclusionType is called.
func NewAccumulator(opts ...AccumulatorOption) *Accumulator {
	a := &Accumulator{
		maxDistance: DefaultMaxDistance,
		window:      8,
	}
	for _, o := range opts {
		o(a)
	}
	if a.samples == nil {
		a.samples = make([]float32, 0, a.window)
	}
	return a
}

// NewAccumulatorFactory returns a [Factory] producing accumulators.
func NewAccumulatorFactory(opts ...AccumulatorOption) Factory {
	return func(string) Processor { return NewAccumulator(opts...) }
}

// Update requests new rays while the object is within range and decays the
// values to zero when it is not.
func (a *Accumulator) Update(_ time.Duration, listener, object impl.Transformation) {
	n := raysPerUpdate(a.occlusionType)
	if n == 0 {
		return
	}
	if object.Position.Sub(listener.Position).Len() > a.maxDistance {
		a.pending = 0
		a.set(Data{})
		return
	}
	a.pending = min(a.pending+n, maxPendingRays)
}

// HasNewOcclusionValues implements [Processor].
func (a *Accumulator) HasNewOcclusionValues() bool { return a.dirty }

// GetPropagationData implements [Processor].
func (a *Accumulator) GetPropagationData() Data {
	a.dirty = false
	a.reported = a.current
	return a.current
}

// ProcessPhysicsRay implements [Processor]. Rays shorter than the configured
// ray offset start inside the object's own geometry and count as clear.
func (a *Accumulator) ProcessPhysicsRay(ray RayInfo) {
	if a.pending > 0 {
		a.pending--
	}
	if a.occlusionType == impl.OcclusionNone || a.occlusionType == impl.OcclusionIgnore {
		return
	}

	occ := clamp01(ray.Occlusion)
	if ray.Hits == 0 || ray.Distance <= a.rayOffset {
		occ = 0
	}

	if len(a.samples) < a.window {
		a.samples = append(a.samples, occ)
	} else {
		a.samples[a.next] = occ
		a.next = (a.next + 1) % a.window
	}

	var sum float32
	for _, s := range a.samples {
		sum += s
	}
	d := Data{Occlusion: sum / float32(len(a.samples)), Obstruction: a.current.Obstruction}
	if ray.Hits > 0 {
		d.Obstruction = occ
	}
	a.set(d)
}

// SetOcclusionType implements [Processor]. Switching to none or ignore
// clears all samples and reports zero values.
func (a *Accumulator) SetOcclusionType(t impl.OcclusionType) {
	a.occlusionType = t
	if raysPerUpdate(t) == 0 {
		a.samples = a.samples[:0]
		a.next = 0
		a.pending = 0
		a.set(Data{})
	}
}

// SetOcclusionRayOffset implements [Processor].
func (a *Accumulator) SetOcclusionRayOffset(offset float32) {
	if offset < 0 {
		offset = 0
	}
	a.rayOffset = offset
}

// ReleasePendingRays implements [Processor].
func (a *Accumulator) ReleasePendingRays() { a.pending = 0 }

// HasPendingRays implements [Processor].
func (a *Accumulator) HasPendingRays() bool { return a.pending > 0 }

func (a *Accumulator) set(d Data) {
	a.current = d
	if abs(d.Occlusion-a.reported.Occlusion) >= changeEpsilon ||
		abs(d.Obstruction-a.reported.Obstruction) >= changeEpsilon {
		a.dirty = true
	}
}

func clamp01(f float32) float32 {
	return max(0, min(1, f))
}

func abs(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
