package agents

import (
	"time"

	"github.com/talgya/npcsim/internal/entropy"
	"github.com/talgya/npcsim/internal/geom"
	"github.com/talgya/npcsim/internal/world"
)

// stepMove walks straight toward dest in the horizontal plane, following
// the ground and refusing to climb slopes steeper than the climb limit.
func (a *Agent) stepMove(env Env, dest geom.Vec3, dt time.Duration) {
	to := dest.Sub(a.position).Flat()
	if to.LenSq() < 1e-4 {
		a.align(a.forward, dt)
		return
	}

	dir := to.Normalize()
	if a.cfg.Stuck.Enabled && a.now < a.unstuckUntil {
		dir = a.unstuckDir
		a.recovering = true
	} else {
		a.recovering = false
	}

	if a.cfg.Ground.Align && a.grounded {
		d := geom.ProjectOnPlane(dir, a.groundNormal).Normalize()
		if d.LenSq() < 1e-3 {
			d = geom.ProjectOnPlane(a.forward, a.groundNormal).Normalize()
		}
		dir = d
	}
	if a.grounded && a.groundSlope > a.cfg.Ground.MaxClimbSlope {
		dir = geom.ProjectOnPlane(dir, geom.Up).Normalize()
	}
	if dir.LenSq() < 1e-4 {
		a.align(a.forward, dt)
		return
	}

	next := a.position.Add(dir.Scale(a.cfg.Movement.Speed * dt.Seconds()))
	if c, ok := env.Sensor.(Collider); ok {
		next = c.Resolve(a.position, next)
	}
	a.position = next
	a.updateGround(env.Sensor, true, dt)
	a.align(dir, dt)
}

// updateGround probes below the agent. Losing the ground keeps the agent
// grounded for a short grace period so small bumps do not flicker.
func (a *Agent) updateGround(sensor Sensor, snap bool, dt time.Duration) {
	g := a.cfg.Ground
	var (
		hit world.GroundHit
		ok  bool
	)
	if sensor != nil {
		origin := a.position.Add(geom.Up.Scale(g.ProbeStartHeight))
		hit, ok = sensor.ProbeGround(origin, g.ProbeStartHeight+g.ProbeDistance)
	}

	if !ok {
		within := a.everGrounded && a.now-a.lastGroundedAt <= g.GroundedGrace
		a.grounded = within
		if !within {
			a.groundSlope = 0
			a.groundNormal = geom.Up
		}
		return
	}

	a.grounded = true
	a.everGrounded = true
	a.lastGroundedAt = a.now
	a.groundNormal = hit.Normal.Normalize()
	if a.groundNormal.IsZero() {
		a.groundNormal = geom.Up
	}
	a.groundSlope = geom.Angle(a.groundNormal, geom.Up)

	if !snap {
		return
	}
	target := hit.Point.Y + g.SnapOffset
	a.position.Y = geom.MoveTowards(a.position.Y, target, max(0.01, g.MaxVerticalSnapSpeed)*dt.Seconds())
}

// align turns the agent toward dir and tilts it to the ground when the
// slope allows.
func (a *Agent) align(dir geom.Vec3, dt time.Duration) {
	g := a.cfg.Ground
	up := geom.Up
	if g.Align && a.grounded && a.groundSlope <= g.MaxTiltSlope {
		up = a.groundNormal
	}

	fwd := dir
	if g.Align && a.grounded {
		fwd = geom.ProjectOnPlane(dir, up)
		if fwd.LenSq() < 1e-3 {
			fwd = geom.ProjectOnPlane(a.forward, up)
		}
	}
	if fwd.LenSq() < 1e-3 {
		return
	}

	t := max(a.cfg.Movement.TurnSpeed, g.AlignSpeed) * dt.Seconds()
	a.forward = geom.Slerp(a.forward, fwd.Normalize(), t)
	a.up = geom.Slerp(a.up, up, t)
}

// updateStuck watches progress toward dest. After enough checks with too
// little travel it counts an unreachable attempt and sidesteps for a while.
func (a *Agent) updateStuck(dest geom.Vec3) {
	s := a.cfg.Stuck
	if !s.Enabled || a.performing || a.task == nil {
		return
	}
	if a.now < a.unstuckUntil {
		a.recovering = true
		return
	}
	a.recovering = false

	if a.now < a.nextStuckCheck {
		return
	}
	a.nextStuckCheck = a.now + s.CheckInterval

	reach := max(a.actionReach(a.task.Action), a.cfg.Planner.DestinationTolerance)
	if geom.FlatDist(a.position, dest) <= reach+0.2 {
		a.stuckCounter = 0
		a.lastStuckPos = a.position
		return
	}

	moved := geom.Dist(a.position, a.lastStuckPos)
	a.lastStuckPos = a.position
	if moved >= s.MinTravel {
		a.stuckCounter = 0
		return
	}

	a.stuckCounter++
	a.emit(EventStuck, true, "Low movement detected (%.2fm). Stuck %d/%d.", moved, a.stuckCounter, s.ChecksToRecover)
	if a.stuckCounter < s.ChecksToRecover {
		return
	}

	a.registerUnreachable(a.task.Target, "movement stuck")

	to := dest.Sub(a.position).Flat()
	if to.LenSq() < 1e-3 {
		to = a.forward.Flat()
	}
	to = to.Normalize()
	side := geom.Up.Cross(to)
	if side.LenSq() < 1e-3 {
		side = a.right()
	}
	side = side.Normalize()

	sign := entropy.Sign(a.rng)
	recovery := to.Add(side.Scale(sign)).Normalize()
	if a.cfg.Ground.Align && a.grounded {
		recovery = geom.ProjectOnPlane(recovery, a.groundNormal).Normalize()
		if recovery.LenSq() < 1e-3 {
			recovery = side.Scale(sign)
		}
	}

	a.unstuckDir = recovery
	a.unstuckUntil = a.now + s.RecoveryDuration
	a.stuckCounter = 0
	a.recovering = true
	a.emit(EventStuck, false, "Unstuck recovery triggered for %.1fs.", s.RecoveryDuration.Seconds())
}

func (a *Agent) right() geom.Vec3 {
	r := a.up.Cross(a.forward)
	if r.IsZero() {
		return geom.Right
	}
	return r.Normalize()
}
