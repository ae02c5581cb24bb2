package agents

import (
	"time"

	"github.com/talgya/npcsim/internal/geom"
	"github.com/talgya/npcsim/internal/world"
)

// Snapshot is a read-only view of an agent for inspectors, the API and
// persistence.
type Snapshot struct {
	ID              world.ObjectID     `json:"id"`
	Name            string             `json:"name"`
	At              float64            `json:"at"` // simulated seconds
	Position        geom.Vec3          `json:"position"`
	Forward         geom.Vec3          `json:"forward"`
	State           string             `json:"state"`
	Plan            string             `json:"plan"`
	Task            *TaskSnapshot      `json:"task,omitempty"`
	ActionRemaining float64            `json:"action_remaining,omitempty"`
	Needs           map[string]float64 `json:"needs"`
	UrgentNeeds     []string           `json:"urgent_needs,omitempty"`
	Personality     Personality        `json:"personality"`
	Inventory       []string           `json:"inventory"`
	Memories        []MemorySnapshot   `json:"memories"`
	VisibleMemories int                `json:"visible_memories"`
	Goals           []GoalSnapshot     `json:"goals"`
	Grounded        bool               `json:"grounded"`
	GroundSlope     float64            `json:"ground_slope"`
	StuckCount      int                `json:"stuck_count"`
	Recovering      bool               `json:"recovering"`
	RecentEvents    []string           `json:"recent_events"`
}

// TaskSnapshot describes the active task.
type TaskSnapshot struct {
	Label    string         `json:"label"`
	Action   string         `json:"action"`
	TargetID world.ObjectID `json:"target_id,omitempty"`
	Target   string         `json:"target"`
	Goal     string         `json:"goal,omitempty"`
	Need     string         `json:"need,omitempty"`
	Idle     bool           `json:"idle,omitempty"`
	Score    float64        `json:"score"`
	Distance float64        `json:"distance"`
}

// MemorySnapshot describes one remembered object.
type MemorySnapshot struct {
	ID           world.ObjectID `json:"id"`
	Name         string         `json:"name"`
	Kind         string         `json:"kind"`
	LastPosition geom.Vec3      `json:"last_position"`
	Visible      bool           `json:"visible"`
	LastSeen     float64        `json:"last_seen"` // simulated seconds, -1 if never
}

// GoalSnapshot describes one goal's progress.
type GoalSnapshot struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Completed  bool    `json:"completed"`
	Failed     bool    `json:"failed"`
	Eligible   bool    `json:"eligible"`
	StartedAt  float64 `json:"started_at"`
	LastDoneAt float64 `json:"last_done_at"` // -1 if never
	Urgency    float64 `json:"deadline_urgency"`
}

func seconds(d time.Duration) float64 {
	if d < 0 {
		return -1
	}
	return d.Seconds()
}

// Snapshot captures the agent's current state.
func (a *Agent) Snapshot() Snapshot {
	s := Snapshot{
		ID:              a.id,
		Name:            a.name,
		At:              a.now.Seconds(),
		Position:        a.position,
		Forward:         a.forward,
		State:           a.State().String(),
		Plan:            a.planLabel(),
		Needs:           a.needs.Map(),
		Personality:     a.personality,
		Inventory:       a.inventory.Types(),
		VisibleMemories: a.memory.VisibleCount(),
		Grounded:        a.grounded,
		GroundSlope:     a.groundSlope,
		StuckCount:      a.stuckCounter,
		Recovering:      a.recovering,
	}

	for _, need := range world.AllNeeds {
		if a.needs.Value(need) >= a.cfg.Needs.UrgentAbove {
			s.UrgentNeeds = append(s.UrgentNeeds, need.String())
		}
	}

	if t := a.task; t != nil {
		ts := &TaskSnapshot{
			Label:    t.Label,
			Action:   t.Action.String(),
			TargetID: t.targetID(),
			Target:   t.targetName(),
			Idle:     t.isWander(),
			Score:    t.Score,
			Distance: geom.FlatDist(a.position, t.Destination),
		}
		if t.Goal != nil {
			ts.Goal = t.Goal.Goal.Label()
		}
		if t.HasNeed {
			ts.Need = t.Need.String()
		}
		s.Task = ts
	}
	if a.performing {
		s.ActionRemaining = a.actionTimer.Seconds()
	}

	for _, m := range a.memory.Entries() {
		s.Memories = append(s.Memories, MemorySnapshot{
			ID:           m.Object.ID(),
			Name:         m.Object.Name(),
			Kind:         m.Object.Kind(),
			LastPosition: m.LastPosition,
			Visible:      m.Visible,
			LastSeen:     seconds(m.LastSeen),
		})
	}

	for _, gs := range a.goals.States() {
		u, _ := gs.DeadlineUrgency(a.now)
		s.Goals = append(s.Goals, GoalSnapshot{
			Name:       gs.Goal.Label(),
			Type:       gs.Goal.Type.String(),
			Completed:  gs.Completed,
			Failed:     gs.Failed,
			Eligible:   gs.Eligible(a.now),
			StartedAt:  seconds(gs.StartedAt),
			LastDoneAt: seconds(gs.LastDoneAt),
			Urgency:    u,
		})
	}

	for _, ev := range a.events.Recent(0) {
		s.RecentEvents = append(s.RecentEvents, ev.String())
	}
	return s
}

// State reports the executor state.
func (a *Agent) State() State {
	switch {
	case a.performing:
		return StatePerforming
	case a.task != nil:
		return StateMoving
	}
	return StateIdle
}

// CurrentTask returns the active task, or nil.
func (a *Agent) CurrentTask() *Task { return a.task }

// NeedValue returns the current level of a need.
func (a *Agent) NeedValue(need world.NeedType) float64 { return a.needs.Value(need) }

// Memory exposes the agent's memory store.
func (a *Agent) Memory() *MemoryStore { return a.memory }

// Goals exposes the agent's goal tracker.
func (a *Agent) Goals() *GoalTracker { return a.goals }

// Personality returns the agent's personality weights.
func (a *Agent) Personality() Personality { return a.personality }

// InventoryTypes lists held item types, oldest first.
func (a *Agent) InventoryTypes() []string { return a.inventory.Types() }

// RecentEvents returns up to n recent events, newest first.
func (a *Agent) RecentEvents(n int) []Event { return a.events.Recent(n) }

// UnreachableAttempts returns the failed-approach count for a target.
func (a *Agent) UnreachableAttempts(id world.ObjectID) int { return a.blocks.count(id) }

// Blocked reports whether a target is in its unreachable cooldown.
func (a *Agent) Blocked(id world.ObjectID) bool { return a.blocks.blocked(id, a.now) }

// RestoreState is the persisted subset of an agent that survives restarts.
type RestoreState struct {
	Position geom.Vec3
	Forward  geom.Vec3
	Needs    map[string]float64
}

// Restore applies persisted position and needs. Unknown need names are ignored.
func (a *Agent) Restore(rs RestoreState) {
	a.position = rs.Position
	a.lastStuckPos = rs.Position
	if f := rs.Forward.Flat().Normalize(); !f.IsZero() {
		a.forward = f
	}
	for name, v := range rs.Needs {
		need, err := world.ParseNeed(name)
		if err != nil {
			continue
		}
		a.needs.Set(need, v)
	}
}
