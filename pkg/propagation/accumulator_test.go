package propagation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrWong99/atl/pkg/impl"
)

func near(x float32) impl.Transformation {
	t := impl.IdentityTransformation
	t.Position = impl.Vec3{X: x}
	return t
}

func TestAccumulator_DisabledByDefault(t *testing.T) {
	a := NewAccumulator()
	a.Update(time.Millisecond, impl.IdentityTransformation, near(1))
	assert.False(t, a.HasPendingRays())

	a.ProcessPhysicsRay(RayInfo{Hits: 1, Occlusion: 1, Distance: 5})
	assert.False(t, a.HasNewOcclusionValues())
}

func TestAccumulator_RequestsRaysPerType(t *testing.T) {
	tests := []struct {
		occlusion impl.OcclusionType
		want      int
	}{
		{impl.OcclusionIgnore, 0},
		{impl.OcclusionLow, 1},
		{impl.OcclusionMedium, 4},
		{impl.OcclusionHigh, 8},
	}
	for _, tt := range tests {
		t.Run(tt.occlusion.String(), func(t *testing.T) {
			a := NewAccumulator()
			a.SetOcclusionType(tt.occlusion)
			a.Update(time.Millisecond, impl.IdentityTransformation, near(1))
			assert.Equal(t, tt.want, a.pending)
		})
	}
}

func TestAccumulator_PendingRaysAreBounded(t *testing.T) {
	a := NewAccumulator()
	a.SetOcclusionType(impl.OcclusionHigh)
	for range 100 {
		a.Update(time.Millisecond, impl.IdentityTransformation, near(1))
	}
	assert.Equal(t, maxPendingRays, a.pending)

	a.ReleasePendingRays()
	assert.False(t, a.HasPendingRays())
}

func TestAccumulator_AveragesOcclusion(t *testing.T) {
	a := NewAccumulator(WithWindow(2))
	a.SetOcclusionType(impl.OcclusionMedium)

	a.ProcessPhysicsRay(RayInfo{Hits: 1, Occlusion: 1, Distance: 5})
	require.True(t, a.HasNewOcclusionValues())
	d := a.GetPropagationData()
	assert.InDelta(t, 1, d.Occlusion, 0.001)
	assert.InDelta(t, 1, d.Obstruction, 0.001)
	assert.False(t, a.HasNewOcclusionValues())

	a.ProcessPhysicsRay(RayInfo{Distance: 5})
	d = a.GetPropagationData()
	assert.InDelta(t, 0.5, d.Occlusion, 0.001)
	assert.InDelta(t, 1, d.Obstruction, 0.001, "obstruction follows the last hit")

	// The window drops the oldest sample.
	a.ProcessPhysicsRay(RayInfo{Distance: 5})
	d = a.GetPropagationData()
	assert.InDelta(t, 0, d.Occlusion, 0.001)
}

func TestAccumulator_RayOffset(t *testing.T) {
	a := NewAccumulator()
	a.SetOcclusionType(impl.OcclusionLow)
	a.SetOcclusionRayOffset(2)

	a.ProcessPhysicsRay(RayInfo{Hits: 1, Occlusion: 1, Distance: 1.5})
	assert.False(t, a.HasNewOcclusionValues())

	a.ProcessPhysicsRay(RayInfo{Hits: 1, Occlusion: 3, Distance: 10})
	d := a.GetPropagationData()
	assert.InDelta(t, 0.5, d.Occlusion, 0.001, "clamped and averaged")
}

func TestAccumulator_OutOfRangeDecays(t *testing.T) {
	a := NewAccumulator(WithMaxDistance(10))
	a.SetOcclusionType(impl.OcclusionLow)
	a.ProcessPhysicsRay(RayInfo{Hits: 1, Occlusion: 1, Distance: 5})
	a.GetPropagationData()

	a.Update(time.Millisecond, impl.IdentityTransformation, near(50))
	require.True(t, a.HasNewOcclusionValues())
	assert.Equal(t, Data{}, a.GetPropagationData())
	assert.False(t, a.HasPendingRays())
}

func TestAccumulator_DisablingClears(t *testing.T) {
	a := NewAccumulator()
	a.SetOcclusionType(impl.OcclusionLow)
	a.ProcessPhysicsRay(RayInfo{Hits: 1, Occlusion: 1, Distance: 5})
	a.GetPropagationData()

	a.SetOcclusionType(impl.OcclusionNone)
	require.True(t, a.HasNewOcclusionValues())
	assert.Equal(t, Data{}, a.GetPropagationData())
}

func TestNullFactory(t *testing.T) {
	p := NewNull()("door")
	p.ProcessPhysicsRay(RayInfo{Hits: 1, Occlusion: 1})
	assert.False(t, p.HasNewOcclusionValues())
	assert.False(t, p.HasPendingRays())
}
