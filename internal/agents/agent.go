// Package agents implements the NPC brain: needs, memory, goals, a utility
// planner and the task executor that moves an agent through the world.
//
// An Agent is advanced by calling Tick with the current simulated time and
// step. Everything an agent knows comes from its own memory; the world is
// only consulted through the Sensor and Registry in Env.
package agents

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/talgya/npcsim/internal/entropy"
	"github.com/talgya/npcsim/internal/geom"
	"github.com/talgya/npcsim/internal/world"
)

// Sensor answers the spatial questions an agent asks.
type Sensor interface {
	IsVisible(obs world.Observer, target world.Object) bool
	ProbeGround(from geom.Vec3, maxDistance float64) (world.GroundHit, bool)
}

// Collider is optionally implemented by a Sensor that can block movement.
type Collider interface {
	Resolve(from, to geom.Vec3) geom.Vec3
}

// Registry lists the objects currently present in the world.
type Registry interface {
	All() []world.Object
}

// Env is what an agent can see of the world during one tick.
type Env struct {
	Registry Registry
	Sensor   Sensor
}

// Spec describes an agent to build.
type Spec struct {
	ID           world.ObjectID
	Name         string
	Position     geom.Vec3
	Forward      geom.Vec3
	Desirability float64
	Personality  Personality
	Needs        map[world.NeedType]float64
	Goals        []*Goal
	Known        []world.Object // seeded memories
	Config       Config
	Random       entropy.Source
	Logger       *slog.Logger
	Sink         EventSink
	Now          time.Duration
}

// Agent is one NPC.
type Agent struct {
	id           world.ObjectID
	name         string
	desirability float64
	destroyed    bool

	cfg         Config
	personality Personality
	log         *slog.Logger
	rng         entropy.Source
	sink        EventSink

	position geom.Vec3
	forward  geom.Vec3
	up       geom.Vec3

	needs     *Needs
	memory    *MemoryStore
	goals     *GoalTracker
	inventory Inventory
	blocks    *unreachable
	events    *EventLog

	task           *Task
	performing     bool
	actionTimer    time.Duration
	pendingStation world.Interactable
	pendingPeer    world.Actor

	now            time.Duration
	nextPerception time.Duration
	nextPlan       time.Duration
	nextStatus     time.Duration

	nextStuckCheck time.Duration
	unstuckUntil   time.Duration
	unstuckDir     geom.Vec3
	lastStuckPos   geom.Vec3
	stuckCounter   int
	recovering     bool

	grounded       bool
	everGrounded   bool
	lastGroundedAt time.Duration
	groundNormal   geom.Vec3
	groundSlope    float64
}

// New builds an agent from its spec.
func New(spec Spec) *Agent {
	id := spec.ID
	if id == "" {
		id = world.NewObjectID()
	}
	logger := spec.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	fwd := spec.Forward.Flat().Normalize()
	if fwd.IsZero() {
		fwd = geom.Forward
	}
	desirability := spec.Desirability
	if desirability == 0 {
		desirability = 1
	}

	a := &Agent{
		id:           id,
		name:         spec.Name,
		desirability: desirability,
		cfg:          spec.Config,
		personality:  spec.Personality,
		log:          logger.With("agent", spec.Name),
		rng:          entropy.Or(spec.Random),
		sink:         spec.Sink,
		position:     spec.Position,
		forward:      fwd,
		up:           geom.Up,
		needs:        NewNeeds(spec.Config.Needs),
		memory:       NewMemoryStore(),
		goals:        NewGoalTracker(spec.Goals, spec.Now),
		blocks:       newUnreachable(spec.Config.Planner.MaxUnreachable, spec.Config.Planner.UnreachableCooldown),
		events:       NewEventLog(spec.Config.Debug.MaxRecentEvents),
		now:          spec.Now,
		lastStuckPos: spec.Position,
		groundNormal: geom.Up,
	}
	for need, v := range spec.Needs {
		a.needs.Set(need, v)
	}
	for _, obj := range spec.Known {
		if obj == nil || obj.ID() == id {
			continue
		}
		a.memory.Remember(obj)
	}

	a.emit(EventInit, false, "Initialized with %d goals and %d seeded memories.", len(a.goals.States()), a.memory.Len())
	return a
}

// ── world.Object ─────────────────────────────────────────────────────

func (a *Agent) ID() world.ObjectID               { return a.id }
func (a *Agent) Name() string                     { return a.name }
func (a *Agent) Kind() string                     { return "agent" }
func (a *Agent) Position() geom.Vec3              { return a.position }
func (a *Agent) Desirability() float64            { return a.desirability }
func (a *Agent) Perceivable() bool                { return true }
func (a *Agent) Active() bool                     { return !a.destroyed }
func (a *Agent) Destroyed() bool                  { return a.destroyed }
func (a *Agent) Interactable() world.Interactable { return nil }
func (a *Agent) Pickup() world.Pickup             { return nil }
func (a *Agent) Actor() world.Actor               { return a }

// Destroy removes the agent from play; others prune it from memory on
// their next perception pass.
func (a *Agent) Destroy() {
	a.destroyed = true
	a.clearTask()
}

// Despawn takes the agent out of the simulation.
func (a *Agent) Despawn() { a.Destroy() }

// ── world.Actor ──────────────────────────────────────────────────────

// HasItem reports whether a matching item is held; "" matches any item.
func (a *Agent) HasItem(itemType string) bool {
	return a.inventory.Has(itemType)
}

// ConsumeItem removes the first matching held item.
func (a *Agent) ConsumeItem(itemType string) bool {
	if !a.inventory.Consume(itemType) {
		return false
	}
	if strings.TrimSpace(itemType) == "" {
		a.emit(EventInventory, true, "Consumed one inventory item.")
	} else {
		a.emit(EventInventory, true, "Consumed item '%s'.", itemType)
	}
	return true
}

// AdjustNeed changes a need by delta, clamped to the need scale.
func (a *Agent) AdjustNeed(need world.NeedType, delta float64) {
	v := a.needs.Adjust(need, delta)
	a.emit(EventNeed, true, "Need %s adjusted by %+.1f -> %.1f", need, delta, v)
}

// ── Tick ─────────────────────────────────────────────────────────────

// Tick advances the agent to simulated time now, dt after the last tick.
func (a *Agent) Tick(env Env, now, dt time.Duration) {
	if a.destroyed {
		return
	}
	a.now = now

	a.needs.Tick(dt)
	a.updateGround(env.Sensor, true, dt)

	for _, gs := range a.goals.Tick(now) {
		a.emit(EventGoalFailed, false, "Deadline missed for goal '%s'.", gs.Goal.Label())
		if a.task != nil && a.task.Goal == gs {
			a.clearTask()
		}
	}

	if now >= a.nextPerception {
		a.perceive(env)
		a.nextPerception = now + a.cfg.Perception.Interval
	}
	if !a.performing && now >= a.nextPlan {
		a.replan()
		a.nextPlan = now + a.cfg.Planner.ReplanInterval
	}

	a.execute(env, dt)

	if a.cfg.Debug.Verbose && a.cfg.Debug.StatusInterval > 0 && now >= a.nextStatus {
		a.nextStatus = now + a.cfg.Debug.StatusInterval
		a.emit(EventStatus, true, "Status H:%.0f B:%.0f T:%.0f | Plan: %s",
			a.needs.Value(world.NeedHunger), a.needs.Value(world.NeedBoredom), a.needs.Value(world.NeedTiredness), a.planLabel())
	}
}

func (a *Agent) observer() world.Observer {
	return world.Observer{
		Eye:         a.position.Add(geom.Up.Scale(a.cfg.Perception.EyeHeight)),
		Forward:     a.forward,
		Range:       a.cfg.Perception.VisionRange,
		FieldOfView: a.cfg.Perception.VisionAngle,
		LineOfSight: a.cfg.Perception.LineOfSight,
	}
}

// perceive refreshes memory from what is currently in view.
func (a *Agent) perceive(env Env) {
	var visible []world.Object
	if env.Registry != nil && env.Sensor != nil {
		obs := a.observer()
		for _, obj := range env.Registry.All() {
			if obj == nil || obj.ID() == a.id || !obj.Perceivable() {
				continue
			}
			if env.Sensor.IsVisible(obs, obj) {
				visible = append(visible, obj)
			}
		}
	}

	for _, o := range a.memory.Refresh(visible, a.now) {
		pos := formatVec(o.Object.Position())
		switch o.Kind {
		case ObservedDiscovered:
			a.emit(EventDiscovery, false, "Discovered '%s' at %s.", o.Object.Name(), pos)
		case ObservedReacquired:
			a.emit(EventSighting, true, "Saw '%s' again at %s.", o.Object.Name(), pos)
		case ObservedMoved:
			a.emit(EventSighting, true, "Updated position for '%s' -> %s.", o.Object.Name(), pos)
		}
	}
}

// ── events ───────────────────────────────────────────────────────────

func (a *Agent) emit(kind EventKind, verbose bool, format string, args ...any) {
	if verbose && !a.cfg.Debug.Verbose {
		return
	}
	msg := fmt.Sprintf(format, args...)
	// Idle wandering would flood the log.
	if strings.Contains(msg, wanderLabel) {
		return
	}

	ev := Event{At: a.now, AgentID: a.id, Agent: a.name, Kind: kind, Message: msg, Verbose: verbose}
	a.events.Add(ev)

	if a.cfg.Debug.Log {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		a.log.Log(context.Background(), level, msg, "kind", string(kind), "t", fmt.Sprintf("%.1fs", a.now.Seconds()))
	}
	if a.sink != nil {
		a.sink.Publish(ev)
	}
}

func formatVec(v geom.Vec3) string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f)", v.X, v.Y, v.Z)
}

// ── memory helpers ───────────────────────────────────────────────────

func (a *Agent) forget(obj world.Object) {
	if obj == nil {
		return
	}
	if a.memory.Forget(obj.ID()) {
		a.emit(EventForgotten, false, "Forgot location of '%s'.", obj.Name())
	}
}

func (a *Agent) isVisible(obj world.Object) bool {
	m, ok := a.memory.Recall(obj.ID())
	return ok && m.Visible
}

// entries returns a copy of the memory list so callers may forget while iterating.
func (a *Agent) entries() []*MemoryEntry {
	return append([]*MemoryEntry(nil), a.memory.Entries()...)
}

// handleLostTarget holds a memory briefly when the agent stands at the
// last known spot without seeing the object, then forgets it.
func (a *Agent) handleLostTarget(obj world.Object) {
	if obj == nil {
		return
	}
	m, ok := a.memory.Recall(obj.ID())
	if !ok || m.Visible {
		return
	}
	if geom.Dist(a.position, m.LastPosition) > a.cfg.Movement.StoppingDistance*1.5 {
		return
	}

	unseen := m.SeenFor(a.now)
	if unseen != NeverSeen && unseen < a.cfg.Movement.ForgetMissingAfter {
		a.emit(EventForgotten, true, "Holding memory for '%s' (%.1fs unseen).", obj.Name(), unseen.Seconds())
		return
	}
	if unseen == NeverSeen {
		a.emit(EventForgotten, false, "Target '%s' missing at expected position (never seen).", obj.Name())
	} else {
		a.emit(EventForgotten, false, "Target '%s' missing at expected position after %.1fs unseen.", obj.Name(), unseen.Seconds())
	}
	a.forget(obj)
}

// registerUnreachable counts a failed approach and blocks the target once
// the attempts run out.
func (a *Agent) registerUnreachable(obj world.Object, reason string) {
	if obj == nil {
		return
	}
	id := obj.ID()
	attempt := a.blocks.count(id) + 1
	a.emit(EventUnreachable, true, "Unreachable attempt %d/%d for '%s' (%s).", attempt, a.blocks.max, obj.Name(), reason)
	if a.blocks.register(id, a.now) {
		a.emit(EventBlocked, false, "Temporarily abandoning '%s' for %.1fs.", obj.Name(), a.blocks.cooldown.Seconds())
	}
}
