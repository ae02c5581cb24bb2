// The utility planner scores every candidate task the agent's memory allows
// and keeps the current task unless a candidate beats it by a margin.
package agents

import (
	"fmt"
	"strings"

	"github.com/talgya/npcsim/internal/entropy"
	"github.com/talgya/npcsim/internal/geom"
	"github.com/talgya/npcsim/internal/world"
)

// replan swaps in the best candidate when there is no task, the current
// task went invalid, or the candidate clears the hysteresis margin.
func (a *Agent) replan() {
	best := a.bestTask()
	if best == nil {
		return
	}
	if a.task != nil && a.taskValid(a.task) && best.Score <= a.task.Score+a.cfg.Planner.Hysteresis {
		return
	}

	prev := "None"
	if a.task != nil {
		prev = a.task.Label
	}
	a.task = best
	a.emit(EventTaskSelected, false, "Plan -> %s (score %.2f, prev %s).", best.Label, best.Score, prev)
}

// bestTask evaluates needs in fixed order, then goals in declaration order,
// then the idle fallback. Only a strictly higher score displaces the
// running best, so earlier candidates win ties.
func (a *Agent) bestTask() *Task {
	var best *Task
	promote := func(c *Task) {
		if c != nil && (best == nil || c.Score > best.Score) {
			best = c
		}
	}

	for _, need := range world.AllNeeds {
		promote(a.needTask(need))
	}

	for _, gs := range a.goals.States() {
		if !gs.Eligible(a.now) {
			continue
		}
		urgency, missed := gs.DeadlineUrgency(a.now)
		if missed && gs.Goal.FailWhenDeadlineMissed {
			gs.MarkFailed()
			a.emit(EventGoalFailed, false, "Deadline missed for goal '%s'.", gs.Goal.Label())
			continue
		}

		t := a.goalTask(gs)
		if t == nil {
			continue
		}
		t.Goal = gs
		t.Score += geom.Clamp01(gs.Goal.BasePriority/100) * a.personality.ExplicitGoalDrive
		t.Score += urgency * a.personality.DeadlineStress
		promote(t)
	}

	if best == nil && a.cfg.Idle.Wander && a.cfg.Idle.WanderRadius > 0 {
		x, z := entropy.InsideUnitCircle(a.rng)
		r := a.cfg.Idle.WanderRadius
		best = &Task{
			Action:      ActionMove,
			Destination: a.position.Add(geom.V(x*r, 0, z*r)),
			Score:       0.01,
			Label:       wanderLabel,
		}
	}
	return best
}

func (a *Agent) distanceScore(d float64) float64 {
	return 1 / (1 + d*0.2*a.personality.travelBias())
}

func visibleBonus(m *MemoryEntry, bonus float64) float64 {
	if m.Visible {
		return bonus
	}
	return 0
}

// usableStation returns the remembered object's interactable if the agent
// could use it now. Visible but spent stations are forgotten.
func (a *Agent) usableStation(m *MemoryEntry) world.Interactable {
	st := m.Object.Interactable()
	if st == nil {
		return nil
	}
	if m.Visible && !st.Available() {
		a.forget(m.Object)
		return nil
	}
	if !st.CanInteract(a) || a.blocks.blocked(m.Object.ID(), a.now) {
		return nil
	}
	return st
}

// ── needs ────────────────────────────────────────────────────────────

func (a *Agent) needTask(need world.NeedType) *Task {
	value := a.needs.Value(need)
	if value < a.cfg.Needs.ConsiderAbove {
		return nil
	}
	urgency := geom.InverseLerp(a.cfg.Needs.ConsiderAbove, MaxNeed, value)
	weight := a.personality.NeedPriority(need)

	var best *Task
	for _, m := range a.entries() {
		st := a.usableStation(m)
		if st == nil {
			continue
		}
		relief := st.NeedRelief(need)
		if relief <= 0 {
			continue
		}

		score := urgency * weight
		score += geom.Clamp01(relief/MaxNeed) * 0.8
		score += a.distanceScore(geom.Dist(a.position, m.LastPosition)) * 0.5
		score += m.Object.Desirability() * 0.15
		score += visibleBonus(m, 0.2)
		if best != nil && score <= best.Score {
			continue
		}
		best = &Task{
			Action:      ActionInteract,
			Need:        need,
			HasNeed:     true,
			Target:      m.Object,
			Destination: m.LastPosition,
			Score:       score,
			Label:       fmt.Sprintf("Need/%s -> Interact %s", need, m.Object.Name()),
		}
	}

	if need != world.NeedBoredom || a.personality.Sociability <= 0 {
		return best
	}
	social := a.socialNeedTask(urgency, weight)
	if social == nil {
		return best
	}
	if best == nil || social.Score > best.Score {
		return social
	}
	return best
}

// peerEntries yields remembered objects that are other agents.
func (a *Agent) peerEntries(fn func(m *MemoryEntry, peer world.Actor)) {
	for _, m := range a.entries() {
		peer := m.Object.Actor()
		if peer == nil || peer.ID() == a.id || m.Object.Destroyed() {
			continue
		}
		if a.blocks.blocked(m.Object.ID(), a.now) {
			continue
		}
		fn(m, peer)
	}
}

func (a *Agent) socialNeedTask(urgency, weight float64) *Task {
	var best *Task
	a.peerEntries(func(m *MemoryEntry, peer world.Actor) {
		score := urgency * weight * a.personality.Sociability
		score += a.distanceScore(geom.Dist(a.position, m.LastPosition)) * 0.7
		score += visibleBonus(m, 0.3)
		if best != nil && score <= best.Score {
			return
		}
		best = &Task{
			Action:      ActionSocialize,
			Need:        world.NeedBoredom,
			HasNeed:     true,
			Target:      m.Object,
			Peer:        peer,
			Destination: m.LastPosition,
			Score:       score,
			Label:       fmt.Sprintf("Need/boredom -> Socialize with %s", m.Object.Name()),
		}
	})
	return best
}

// ── goals ────────────────────────────────────────────────────────────

func (a *Agent) goalTask(gs *GoalState) *Task {
	switch gs.Goal.Type {
	case GoalAcquireItem:
		return a.acquireTask(gs)
	case GoalGoToObject:
		return a.goToTask(gs)
	case GoalInteractWithObject:
		return a.interactGoalTask(gs)
	case GoalSocialize:
		return a.socialGoalTask(gs)
	}
	return nil
}

func (a *Agent) completeGoal(gs *GoalState) {
	gs.MarkComplete(a.now)
	a.emit(EventGoalComplete, false, "Goal complete: '%s' (repeatable: %t).", gs.Goal.Label(), gs.Goal.Repeatable)
}

func (a *Agent) acquireSatisfied(g *Goal) bool {
	if g.Target != "" {
		return a.inventory.Holds(g.Target)
	}
	return strings.TrimSpace(g.RequiredItemType) != "" && a.inventory.Has(g.RequiredItemType)
}

func (a *Agent) acquireTask(gs *GoalState) *Task {
	g := gs.Goal
	if a.acquireSatisfied(g) {
		a.completeGoal(gs)
		return nil
	}

	if g.Target != "" {
		m, ok := a.memory.Recall(g.Target)
		if !ok {
			return nil
		}
		p := m.Object.Pickup()
		if p == nil || a.blocks.blocked(g.Target, a.now) {
			return nil
		}
		if p.PickedUp() {
			a.forget(m.Object)
			return nil
		}
		return &Task{
			Action:      ActionPickup,
			Target:      m.Object,
			Destination: m.LastPosition,
			Score: a.distanceScore(geom.Dist(a.position, m.LastPosition)) +
				m.Object.Desirability()*0.2 + visibleBonus(m, 0.2),
			Label: fmt.Sprintf("Goal/%s -> Pick up %s", g.Label(), m.Object.Name()),
		}
	}

	if strings.TrimSpace(g.RequiredItemType) == "" {
		return nil
	}

	var best *Task
	for _, m := range a.entries() {
		p := m.Object.Pickup()
		if p == nil || !world.SameItemType(p.ItemType(), g.RequiredItemType) {
			continue
		}
		if p.PickedUp() {
			a.forget(m.Object)
			continue
		}
		if a.blocks.blocked(m.Object.ID(), a.now) {
			continue
		}

		score := p.Usefulness()*a.personality.ItemUsefulnessBias + m.Object.Desirability()
		score += a.distanceScore(geom.Dist(a.position, m.LastPosition)) * (1 / a.personality.travelBias())
		score += visibleBonus(m, 0.2)
		if best != nil && score <= best.Score {
			continue
		}
		best = &Task{
			Action:      ActionPickup,
			Target:      m.Object,
			Destination: m.LastPosition,
			Score:       score,
			Label:       fmt.Sprintf("Goal/%s -> Pick up best %s", g.Label(), g.RequiredItemType),
		}
	}
	return best
}

func (a *Agent) goToTask(gs *GoalState) *Task {
	g := gs.Goal
	if g.Target == "" {
		return nil
	}
	m, ok := a.memory.Recall(g.Target)
	if !ok || a.blocks.blocked(g.Target, a.now) {
		return nil
	}

	d := geom.Dist(a.position, m.LastPosition)
	if d <= a.cfg.Movement.StoppingDistance && m.Visible {
		a.completeGoal(gs)
		return nil
	}
	return &Task{
		Action:      ActionMove,
		Target:      m.Object,
		Destination: m.LastPosition,
		Score:       a.distanceScore(d) + m.Object.Desirability()*0.15,
		Label:       fmt.Sprintf("Goal/%s -> Go to %s", g.Label(), m.Object.Name()),
	}
}

func (a *Agent) interactGoalTask(gs *GoalState) *Task {
	g := gs.Goal
	if g.Target != "" {
		m, ok := a.memory.Recall(g.Target)
		if !ok {
			return nil
		}
		st := a.usableStation(m)
		if st == nil {
			return nil
		}
		score := a.distanceScore(geom.Dist(a.position, m.LastPosition))
		score += geom.Clamp01(st.NeedRelief(g.PreferredNeed) / MaxNeed)
		return &Task{
			Action:      ActionInteract,
			Target:      m.Object,
			Destination: m.LastPosition,
			Score:       score,
			Label:       fmt.Sprintf("Goal/%s -> Interact %s", g.Label(), m.Object.Name()),
		}
	}

	var best *Task
	for _, m := range a.entries() {
		st := a.usableStation(m)
		if st == nil {
			continue
		}
		relief := st.NeedRelief(g.PreferredNeed)
		if relief <= 0 {
			continue
		}
		score := geom.Clamp01(relief/MaxNeed) +
			a.distanceScore(geom.Dist(a.position, m.LastPosition)) +
			m.Object.Desirability()*0.1
		if best != nil && score <= best.Score {
			continue
		}
		best = &Task{
			Action:      ActionInteract,
			Target:      m.Object,
			Destination: m.LastPosition,
			Score:       score,
			Label:       fmt.Sprintf("Goal/%s -> Interact best for %s", g.Label(), g.PreferredNeed),
		}
	}
	return best
}

func (a *Agent) socialGoalTask(gs *GoalState) *Task {
	g := gs.Goal
	var best *Task
	a.peerEntries(func(m *MemoryEntry, peer world.Actor) {
		if g.Target != "" && m.Object.ID() != g.Target {
			return
		}
		score := a.distanceScore(geom.Dist(a.position, m.LastPosition)) + visibleBonus(m, 0.3)
		if best != nil && score <= best.Score {
			return
		}
		best = &Task{
			Action:      ActionSocialize,
			Target:      m.Object,
			Peer:        peer,
			Destination: m.LastPosition,
			Score:       score,
			Label:       fmt.Sprintf("Goal/%s -> Socialize with %s", g.Label(), m.Object.Name()),
		}
	})
	return best
}
