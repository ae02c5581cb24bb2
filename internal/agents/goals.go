package agents

import (
	"fmt"
	"strings"
	"time"

	"github.com/talgya/npcsim/internal/world"
)

// GoalType enumerates the designer-authored goal kinds.
type GoalType uint8

const (
	GoalAcquireItem GoalType = iota
	GoalGoToObject
	GoalInteractWithObject
	GoalSocialize
)

func (g GoalType) String() string {
	switch g {
	case GoalAcquireItem:
		return "acquire_item"
	case GoalGoToObject:
		return "go_to_object"
	case GoalInteractWithObject:
		return "interact_with_object"
	case GoalSocialize:
		return "socialize"
	}
	return fmt.Sprintf("goal(%d)", uint8(g))
}

// ParseGoalType maps a goal type name to its GoalType.
func ParseGoalType(s string) (GoalType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "acquire_item":
		return GoalAcquireItem, nil
	case "go_to_object":
		return GoalGoToObject, nil
	case "interact_with_object":
		return GoalInteractWithObject, nil
	case "socialize":
		return GoalSocialize, nil
	}
	return 0, fmt.Errorf("unknown goal type %q", s)
}

// Goal is an immutable goal template. Several agents may share one.
type Goal struct {
	Name                   string
	Type                   GoalType
	BasePriority           float64 // 0–100
	Repeatable             bool
	RepeatCooldown         time.Duration
	HasDeadline            bool
	Deadline               time.Duration
	FailWhenDeadlineMissed bool
	Target                 world.ObjectID // optional
	RequiredItemType       string
	PreferredNeed          world.NeedType
}

// DefaultGoal returns a goal with stock priority, cooldown and deadline.
func DefaultGoal(name string, typ GoalType) *Goal {
	return &Goal{
		Name:                   name,
		Type:                   typ,
		BasePriority:           50,
		RepeatCooldown:         2 * time.Second,
		Deadline:               30 * time.Second,
		FailWhenDeadlineMissed: true,
		PreferredNeed:          world.NeedHunger,
	}
}

// Label is the goal's display name.
func (g *Goal) Label() string {
	if g.Name != "" {
		return g.Name
	}
	return g.Type.String()
}

// notDone marks a goal state that has never completed.
const notDone time.Duration = -1

// GoalState is one agent's progress on a goal.
type GoalState struct {
	Goal       *Goal
	StartedAt  time.Duration
	LastDoneAt time.Duration
	Completed  bool
	Failed     bool
}

// GoalTracker owns the per-agent goal states, in declaration order.
type GoalTracker struct {
	states []*GoalState
}

// NewGoalTracker starts every goal's deadline clock at now.
func NewGoalTracker(goals []*Goal, now time.Duration) *GoalTracker {
	t := &GoalTracker{}
	for _, g := range goals {
		if g == nil {
			continue
		}
		t.states = append(t.states, &GoalState{Goal: g, StartedAt: now, LastDoneAt: notDone})
	}
	return t
}

// States returns the goal states in declaration order.
func (t *GoalTracker) States() []*GoalState { return t.states }

// State returns the state for a goal template.
func (t *GoalTracker) State(g *Goal) (*GoalState, bool) {
	for _, s := range t.states {
		if s.Goal == g {
			return s, true
		}
	}
	return nil, false
}

// Eligible reports whether the goal may produce a task right now.
func (s *GoalState) Eligible(now time.Duration) bool {
	switch {
	case s.Failed:
		return false
	case s.Completed && !s.Goal.Repeatable:
		return false
	case s.Goal.Repeatable && s.LastDoneAt != notDone && now-s.LastDoneAt < s.Goal.RepeatCooldown:
		return false
	}
	return true
}

func (s *GoalState) hasLiveDeadline() bool {
	return s.Goal.HasDeadline && s.Goal.Deadline > 0 && !s.Failed && !(s.Completed && !s.Goal.Repeatable)
}

// DeadlineUrgency returns how close the deadline is in [0, 1] and whether
// it has been reached.
func (s *GoalState) DeadlineUrgency(now time.Duration) (float64, bool) {
	if !s.Goal.HasDeadline || s.Goal.Deadline <= 0 {
		return 0, false
	}
	elapsed := now - s.StartedAt
	if elapsed >= s.Goal.Deadline {
		return 1, true
	}
	u := float64(elapsed) / float64(s.Goal.Deadline)
	if u < 0 {
		u = 0
	}
	return u, false
}

// MarkComplete records a completion. Repeatable goals reset and restart
// their deadline clock; the cooldown then gates reselection.
func (s *GoalState) MarkComplete(now time.Duration) {
	s.LastDoneAt = now
	if s.Goal.Repeatable {
		s.Completed = false
		s.Failed = false
		if s.Goal.HasDeadline {
			s.StartedAt = now
		}
		return
	}
	s.Completed = true
}

// MarkFailed fails the goal permanently.
func (s *GoalState) MarkFailed() {
	s.Failed = true
}

// Tick fails goals whose fatal deadline has passed and returns them.
func (t *GoalTracker) Tick(now time.Duration) []*GoalState {
	var failed []*GoalState
	for _, s := range t.states {
		if !s.hasLiveDeadline() || !s.Goal.FailWhenDeadlineMissed {
			continue
		}
		if now-s.StartedAt > s.Goal.Deadline {
			s.MarkFailed()
			failed = append(failed, s)
		}
	}
	return failed
}
