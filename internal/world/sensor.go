package world

import (
	"math"

	"github.com/talgya/npcsim/internal/geom"
)

// Observer describes an agent's eyes for a visibility query.
type Observer struct {
	Eye         geom.Vec3
	Forward     geom.Vec3
	Range       float64 // metres
	FieldOfView float64 // full cone angle in degrees
	LineOfSight bool    // test occlusion
}

// GroundHit is the result of a downward ground probe.
type GroundHit struct {
	Point  geom.Vec3
	Normal geom.Vec3
}

// Obstacle is a sphere that blocks sight and movement.
type Obstacle struct {
	Name   string
	Center geom.Vec3
	Radius float64
}

// Sensor answers spatial questions against the terrain and the obstacles.
type Sensor struct {
	Terrain   *Terrain
	Obstacles []Obstacle

	// Step is the sampling distance for terrain occlusion along a sight line.
	Step float64
}

// NewSensor creates a sensor over the given terrain.
func NewSensor(t *Terrain, obstacles ...Obstacle) *Sensor {
	if t == nil {
		t = FlatTerrain(0)
	}
	return &Sensor{Terrain: t, Obstacles: obstacles, Step: 0.5}
}

// IsVisible checks range, the view cone and, if requested, line of sight.
// Objects that opted out of perception are never visible.
func (s *Sensor) IsVisible(obs Observer, target Object) bool {
	if target == nil || !target.Perceivable() || !target.Active() {
		return false
	}

	to := target.Position().Sub(obs.Eye)
	dist := to.Len()
	if dist > obs.Range {
		return false
	}
	if dist < 1e-6 {
		return true
	}
	if obs.FieldOfView < 360 && geom.Angle(obs.Forward, to) > obs.FieldOfView*0.5 {
		return false
	}
	if !obs.LineOfSight {
		return true
	}
	return !s.occluded(obs.Eye, target.Position())
}

func (s *Sensor) occluded(from, to geom.Vec3) bool {
	dir := to.Sub(from)
	dist := dir.Len()
	dir = dir.Scale(1 / dist)

	for _, ob := range s.Obstacles {
		if hit, ok := raySphere(from, dir, ob.Center, ob.Radius); ok && hit < dist {
			return true
		}
	}

	step := s.Step
	if step <= 0 {
		step = 0.5
	}
	// Sample the terrain between the endpoints; the endpoints themselves
	// sit on the ground and would always count as hits.
	for d := step; d < dist-step; d += step {
		p := from.Add(dir.Scale(d))
		if s.Terrain.Height(p.X, p.Z) > p.Y {
			return true
		}
	}
	return false
}

// raySphere returns the distance along a unit ray to its first hit with a sphere.
func raySphere(origin, dir, center geom.Vec3, radius float64) (float64, bool) {
	oc := origin.Sub(center)
	b := oc.Dot(dir)
	c := oc.LenSq() - radius*radius
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	t := -b - sq
	if t < 0 {
		t = -b + sq
	}
	if t < 0 {
		return 0, false
	}
	return t, true
}

// ProbeGround casts straight down from `from` up to maxDistance.
func (s *Sensor) ProbeGround(from geom.Vec3, maxDistance float64) (GroundHit, bool) {
	h := s.Terrain.Height(from.X, from.Z)
	if from.Y < h || from.Y-h > maxDistance {
		return GroundHit{}, false
	}
	return GroundHit{
		Point:  geom.V(from.X, h, from.Z),
		Normal: s.Terrain.Normal(from.X, from.Z),
	}, true
}

// Resolve clamps a move so that the mover never enters an obstacle.
// A blocked move leaves the mover where it was.
func (s *Sensor) Resolve(from, to geom.Vec3) geom.Vec3 {
	for _, ob := range s.Obstacles {
		if geom.FlatDist(to, ob.Center) < ob.Radius && geom.FlatDist(to, ob.Center) < geom.FlatDist(from, ob.Center) {
			return from
		}
	}
	return to
}
