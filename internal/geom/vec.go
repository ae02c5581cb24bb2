// Package geom provides the small amount of 3D vector math the agents need:
// positions, facing directions, plane projection and angle tests.
// Y is up.
package geom

import "math"

// Vec3 is a point or direction in world space.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Common directions.
var (
	Zero    = Vec3{}
	Up      = Vec3{0, 1, 0}
	Forward = Vec3{0, 0, 1}
	Right   = Vec3{1, 0, 0}
)

// V is shorthand for building a Vec3.
func V(x, y, z float64) Vec3 { return Vec3{x, y, z} }

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3      { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Neg() Vec3            { return Vec3{-v.X, -v.Y, -v.Z} }
func (v Vec3) Dot(o Vec3) float64   { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Cross returns the right-handed cross product v × o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

func (v Vec3) LenSq() float64 { return v.Dot(v) }
func (v Vec3) Len() float64   { return math.Sqrt(v.LenSq()) }

// Normalize returns the unit vector, or Zero for degenerate input.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l < 1e-9 {
		return Zero
	}
	return v.Scale(1 / l)
}

// Flat drops the vertical component.
func (v Vec3) Flat() Vec3 { return Vec3{v.X, 0, v.Z} }

// IsZero reports whether v is (nearly) the zero vector.
func (v Vec3) IsZero() bool { return v.LenSq() < 1e-12 }

// Dist is the euclidean distance between two points.
func Dist(a, b Vec3) float64 { return a.Sub(b).Len() }

// FlatDist is the distance between two points ignoring height.
func FlatDist(a, b Vec3) float64 { return a.Sub(b).Flat().Len() }

// ProjectOnPlane removes the component of v along the plane normal n.
func ProjectOnPlane(v, n Vec3) Vec3 {
	n = n.Normalize()
	if n.IsZero() {
		return v
	}
	return v.Sub(n.Scale(v.Dot(n)))
}

// Angle returns the unsigned angle between two vectors in degrees.
func Angle(a, b Vec3) float64 {
	d := math.Sqrt(a.LenSq() * b.LenSq())
	if d < 1e-12 {
		return 0
	}
	return math.Acos(Clamp(a.Dot(b)/d, -1, 1)) * 180 / math.Pi
}

// Slerp rotates unit direction a toward unit direction b by fraction t.
func Slerp(a, b Vec3, t float64) Vec3 {
	t = Clamp01(t)
	a, b = a.Normalize(), b.Normalize()
	dot := Clamp(a.Dot(b), -1, 1)
	theta := math.Acos(dot) * t
	if theta < 1e-9 {
		return a
	}
	rel := b.Sub(a.Scale(dot))
	if rel.IsZero() {
		// Opposite directions: pick any perpendicular axis.
		rel = a.Cross(Up)
		if rel.IsZero() {
			rel = a.Cross(Right)
		}
	}
	rel = rel.Normalize()
	return a.Scale(math.Cos(theta)).Add(rel.Scale(math.Sin(theta))).Normalize()
}

// Lerp interpolates between two points.
func Lerp(a, b Vec3, t float64) Vec3 { return a.Add(b.Sub(a).Scale(t)) }

// Clamp limits x to [lo, hi].
func Clamp(x, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, x)) }

// Clamp01 limits x to [0, 1].
func Clamp01(x float64) float64 { return Clamp(x, 0, 1) }

// InverseLerp maps x from [a, b] onto [0, 1], clamped.
func InverseLerp(a, b, x float64) float64 {
	if a == b {
		return 0
	}
	return Clamp01((x - a) / (b - a))
}

// MoveTowards moves current toward target by at most maxDelta.
func MoveTowards(current, target, maxDelta float64) float64 {
	if math.Abs(target-current) <= maxDelta {
		return target
	}
	if target > current {
		return current + maxDelta
	}
	return current - maxDelta
}
