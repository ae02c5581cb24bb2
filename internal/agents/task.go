package agents

import (
	"fmt"

	"github.com/talgya/npcsim/internal/geom"
	"github.com/talgya/npcsim/internal/world"
)

// ActionKind is what a task does once the agent arrives.
type ActionKind uint8

const (
	ActionMove ActionKind = iota
	ActionInteract
	ActionPickup
	ActionSocialize
)

func (k ActionKind) String() string {
	switch k {
	case ActionMove:
		return "move"
	case ActionInteract:
		return "interact"
	case ActionPickup:
		return "pickup"
	case ActionSocialize:
		return "socialize"
	}
	return fmt.Sprintf("action(%d)", uint8(k))
}

// State is the executor's state.
type State uint8

const (
	StateIdle State = iota
	StateMoving
	StatePerforming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMoving:
		return "moving"
	case StatePerforming:
		return "performing"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// wanderLabel names the idle fallback task.
const wanderLabel = "Idle/Wander"

// Task is a scored, concrete intention.
type Task struct {
	Action      ActionKind
	Goal        *GoalState // nil unless the task serves a goal
	Need        world.NeedType
	HasNeed     bool
	Target      world.Object // nil for plain moves
	Peer        world.Actor  // socialize only
	Destination geom.Vec3
	Score       float64
	Label       string
}

func (t *Task) isWander() bool { return t != nil && t.Label == wanderLabel }

func (t *Task) targetID() world.ObjectID {
	if t == nil || t.Target == nil {
		return ""
	}
	return t.Target.ID()
}

func (t *Task) targetName() string {
	if t == nil || t.Target == nil {
		return "none"
	}
	return t.Target.Name()
}
