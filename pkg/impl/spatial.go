package impl

import "math"

// Vec3 is a position or direction in world space.
type Vec3 struct {
	X float32 `json:"x" yaml:"x"`
	Y float32 `json:"y" yaml:"y"`
	Z float32 `json:"z" yaml:"z"`
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Scale returns v * f.
func (v Vec3) Scale(f float32) Vec3 {
	return Vec3{X: v.X * f, Y: v.Y * f, Z: v.Z * f}
}

// Len returns the euclidean length of v.
func (v Vec3) Len() float32 {
	return float32(math.Sqrt(float64(v.X*v.X + v.Y*v.Y + v.Z*v.Z)))
}

// Transformation is the placement of an object or listener.
type Transformation struct {
	Position Vec3 `json:"position" yaml:"position"`
	Forward  Vec3 `json:"forward" yaml:"forward"`
	Up       Vec3 `json:"up" yaml:"up"`
}

// IdentityTransformation is positioned at the origin, facing +Y with +Z up.
var IdentityTransformation = Transformation{
	Forward: Vec3{Y: 1},
	Up:      Vec3{Z: 1},
}

// OcclusionType selects how obstruction/occlusion is evaluated for an object.
type OcclusionType int

const (
	OcclusionNone OcclusionType = iota
	OcclusionIgnore
	OcclusionAdaptive
	OcclusionLow
	OcclusionMedium
	OcclusionHigh
)

// String returns the configuration name of the occlusion type.
func (o OcclusionType) String() string {
	switch o {
	case OcclusionNone:
		return "none"
	case OcclusionIgnore:
		return "ignore"
	case OcclusionAdaptive:
		return "adaptive"
	case OcclusionLow:
		return "low"
	case OcclusionMedium:
		return "medium"
	case OcclusionHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParseOcclusionType converts a configuration name into an [OcclusionType].
func ParseOcclusionType(s string) (OcclusionType, bool) {
	for o := OcclusionNone; o <= OcclusionHigh; o++ {
		if o.String() == s {
			return o, true
		}
	}
	return OcclusionNone, false
}
