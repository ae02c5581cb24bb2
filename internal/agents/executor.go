package agents

import (
	"math"
	"time"

	"github.com/talgya/npcsim/internal/geom"
	"github.com/talgya/npcsim/internal/world"
)

// minActionTime keeps zero-length actions from finishing in the tick that
// started them.
const minActionTime = 10 * time.Millisecond

// execute runs one step of the task state machine.
func (a *Agent) execute(env Env, dt time.Duration) {
	if a.performing {
		a.actionTimer -= dt
		if a.actionTimer <= 0 {
			a.finishAction()
		}
		return
	}
	if a.task == nil {
		return
	}

	t := a.task
	if !a.taskValid(t) {
		a.emit(EventTaskCleared, true, "Task invalidated: %s", t.Label)
		a.handleLostTarget(t.Target)
		a.clearTask()
		return
	}

	dest := a.resolveDestination(t)
	a.stepMove(env, dest, dt)
	a.updateStuck(dest)

	reach := math.Max(a.actionReach(t.Action), a.cfg.Planner.DestinationTolerance)
	if geom.FlatDist(a.position, dest) > reach {
		return
	}

	switch t.Action {
	case ActionMove:
		if t.Target == nil || a.isVisible(t.Target) {
			a.completeTask(t)
			return
		}
		a.registerUnreachable(t.Target, "move target not visible at arrival")
		a.handleLostTarget(t.Target)
		a.clearTask()
	case ActionPickup:
		a.doPickup(t)
	case ActionInteract:
		a.startInteract(t)
	case ActionSocialize:
		a.startSocial(t)
	}
}

// taskValid checks that the task still makes sense. A pickup whose item is
// already gone is dropped and its memory forgotten without counting an
// unreachable attempt.
func (a *Agent) taskValid(t *Task) bool {
	if t == nil {
		return false
	}
	if gs := t.Goal; gs != nil {
		if gs.Failed || (gs.Completed && !gs.Goal.Repeatable) {
			return false
		}
	}
	if t.Target != nil {
		if _, ok := a.memory.Recall(t.Target.ID()); !ok {
			return false
		}
		if a.blocks.blocked(t.Target.ID(), a.now) {
			return false
		}
		if t.Action == ActionPickup {
			if p := t.Target.Pickup(); p != nil && p.PickedUp() {
				a.forget(t.Target)
				return false
			}
		}
	}
	return t.Action != ActionSocialize || t.Peer != nil
}

// resolveDestination follows a visible target and otherwise heads for the
// last known position.
func (a *Agent) resolveDestination(t *Task) geom.Vec3 {
	if t.Target == nil {
		return t.Destination
	}
	m, ok := a.memory.Recall(t.Target.ID())
	if !ok {
		return t.Destination
	}
	if m.Visible {
		t.Destination = t.Target.Position()
	} else {
		t.Destination = m.LastPosition
	}
	return t.Destination
}

func (a *Agent) actionReach(k ActionKind) float64 {
	switch k {
	case ActionInteract, ActionPickup, ActionSocialize:
		return math.Max(a.cfg.Movement.StoppingDistance, a.cfg.Movement.InteractionReach)
	}
	return a.cfg.Movement.StoppingDistance
}

func (a *Agent) doPickup(t *Task) {
	target := t.Target
	if target == nil {
		a.emit(EventPickup, false, "Pickup failed: no target.")
		a.clearTask()
		return
	}
	m, ok := a.memory.Recall(target.ID())
	if !ok {
		a.emit(EventPickup, false, "Pickup failed for '%s': no memory.", target.Name())
		a.registerUnreachable(target, "no memory for pickup")
		a.clearTask()
		return
	}

	d := geom.Dist(a.position, m.LastPosition)
	inReach := d <= a.actionReach(ActionPickup)
	if !m.Visible && !inReach {
		a.emit(EventPickup, false, "Pickup failed for '%s': target not visible and out of reach (%.2fm).", target.Name(), d)
		a.registerUnreachable(target, "pickup out of reach")
		a.handleLostTarget(target)
		a.clearTask()
		return
	}
	if !m.Visible {
		a.emit(EventPickup, true, "Trying pickup for '%s' from memory at close range (%.2fm).", target.Name(), d)
	}

	p := target.Pickup()
	if p == nil {
		a.emit(EventPickup, false, "Pickup failed for '%s': nothing to pick up.", target.Name())
		a.registerUnreachable(target, "missing pickup")
		a.handleLostTarget(target)
		a.clearTask()
		return
	}

	if !p.TryPickUp(a) {
		if p.PickedUp() {
			a.emit(EventPickup, false, "Pickup failed for '%s': already picked up.", target.Name())
			a.forget(target)
		} else {
			a.emit(EventPickup, false, "Pickup failed at '%s'.", target.Name())
			a.registerUnreachable(target, "pickup interaction failed")
		}
		a.clearTask()
		return
	}

	a.inventory.Add(target.ID(), p)
	a.emit(EventInventory, false, "Inventory + %s", p.ItemType())
	a.emit(EventPickup, false, "Picked up '%s' from '%s'.", p.ItemType(), target.Name())
	a.completeTask(t)
}

func (a *Agent) startInteract(t *Task) {
	target := t.Target
	if target == nil {
		a.emit(EventInteraction, false, "Interact failed: no target.")
		a.clearTask()
		return
	}
	m, ok := a.memory.Recall(target.ID())
	if !ok {
		a.emit(EventInteraction, false, "Interact failed for '%s': no memory.", target.Name())
		a.registerUnreachable(target, "no memory for interact")
		a.clearTask()
		return
	}
	st := target.Interactable()
	if st == nil {
		a.emit(EventInteraction, false, "Interact failed for '%s': nothing to interact with.", target.Name())
		a.registerUnreachable(target, "missing interactable")
		a.handleLostTarget(target)
		a.clearTask()
		return
	}
	if !st.CanInteract(a) {
		a.emit(EventInteraction, false, "Interact failed for '%s': requirements not met.", target.Name())
		a.clearTask()
		return
	}

	d := geom.Dist(a.position, m.LastPosition)
	inReach := d <= a.actionReach(ActionInteract)
	if !m.Visible && !inReach {
		a.emit(EventInteraction, false, "Interact failed for '%s': target not visible and out of reach (%.2fm).", target.Name(), d)
		a.registerUnreachable(target, "interact out of reach")
		a.handleLostTarget(target)
		a.clearTask()
		return
	}
	if !m.Visible {
		a.emit(EventInteraction, true, "Interacting with '%s' from memory at close range (%.2fm).", target.Name(), d)
	}

	a.pendingStation = st
	a.pendingPeer = nil
	a.performing = true
	a.actionTimer = max(minActionTime, st.Duration())
	a.emit(EventInteraction, false, "Started interaction with '%s' for %.1fs.", target.Name(), a.actionTimer.Seconds())
}

func (a *Agent) startSocial(t *Task) {
	if t.Peer == nil || t.Target == nil {
		a.emit(EventSocial, false, "Social failed: no target agent.")
		a.clearTask()
		return
	}
	m, ok := a.memory.Recall(t.Target.ID())
	if !ok || !m.Visible {
		a.emit(EventSocial, false, "Social failed: '%s' not visible.", t.Target.Name())
		a.registerUnreachable(t.Target, "social target not visible")
		a.handleLostTarget(t.Target)
		a.clearTask()
		return
	}

	a.pendingStation = nil
	a.pendingPeer = t.Peer
	a.performing = true
	a.actionTimer = max(minActionTime, a.cfg.Social.Duration)
	a.emit(EventSocial, false, "Started social interaction with '%s' for %.1fs.", t.Target.Name(), a.actionTimer.Seconds())
}

// finishAction applies the effect of a timed action once its countdown ends.
func (a *Agent) finishAction() {
	a.performing = false
	success := false

	switch {
	case a.pendingStation != nil:
		success = a.pendingStation.Apply(a)
		if success {
			a.emit(EventInteraction, false, "Interaction effect applied.")
		} else {
			a.emit(EventInteraction, false, "Interaction failed to apply.")
		}
		a.pendingStation = nil
	case a.pendingPeer != nil:
		a.AdjustNeed(world.NeedBoredom, -a.cfg.Social.SelfRelief)
		a.pendingPeer.AdjustNeed(world.NeedBoredom, -a.cfg.Social.OtherRelief)
		a.emit(EventSocial, false, "Socialized with '%s'. Boredom reduced by %.0f.", a.task.targetName(), a.cfg.Social.SelfRelief)
		a.pendingPeer = nil
		success = true
	}

	if success && a.task != nil {
		a.completeTask(a.task)
		return
	}
	a.clearTask()
}

func (a *Agent) completeTask(t *Task) {
	a.emit(EventTaskComplete, false, "Task complete: %s", t.Label)
	if t.Target != nil {
		a.blocks.reset(t.Target.ID())
	}
	if t.Goal != nil {
		a.completeGoal(t.Goal)
	}
	a.clearTask()
}

func (a *Agent) clearTask() {
	old := a.task
	a.task = nil
	a.pendingStation = nil
	a.pendingPeer = nil
	a.performing = false
	a.actionTimer = 0
	if old != nil {
		a.emit(EventTaskCleared, true, "Cleared task: %s", old.Label)
	}
}

func (a *Agent) planLabel() string {
	if a.task == nil {
		return "None"
	}
	if a.performing {
		if a.pendingPeer != nil {
			return a.task.Label + " (socializing)"
		}
		return a.task.Label + " (interacting)"
	}
	return a.task.Label
}
