package agents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/npcsim/internal/entropy"
	"github.com/talgya/npcsim/internal/geom"
	"github.com/talgya/npcsim/internal/world"
)

const step = 100 * time.Millisecond

// fakeSensor sees every active object within range on flat ground at y=0.
type fakeSensor struct {
	hidden map[world.ObjectID]bool
}

func (s *fakeSensor) IsVisible(obs world.Observer, target world.Object) bool {
	if !target.Active() || s.hidden[target.ID()] {
		return false
	}
	return geom.Dist(obs.Eye, target.Position()) <= obs.Range
}

func (s *fakeSensor) ProbeGround(from geom.Vec3, maxDistance float64) (world.GroundHit, bool) {
	if from.Y < 0 || from.Y > maxDistance {
		return world.GroundHit{}, false
	}
	return world.GroundHit{Point: geom.V(from.X, 0, from.Z), Normal: geom.Up}, true
}

// wallSensor refuses every move.
type wallSensor struct{ fakeSensor }

func (w *wallSensor) Resolve(from, _ geom.Vec3) geom.Vec3 { return from }

type fakeRegistry []world.Object

func (r fakeRegistry) All() []world.Object { return r }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Debug.Log = false
	cfg.Idle.Wander = false
	cfg.Needs.HungerRate = 0
	cfg.Needs.BoredomRate = 0
	cfg.Needs.TirednessRate = 0
	return cfg
}

func newTestAgent(name string, pos geom.Vec3, mutate func(*Spec)) *Agent {
	spec := Spec{
		Name:        name,
		Position:    pos,
		Forward:     geom.Forward,
		Personality: DefaultPersonality(),
		Config:      testConfig(),
		Random:      entropy.NewSeeded(7),
	}
	if mutate != nil {
		mutate(&spec)
	}
	return New(spec)
}

func station(name string, pos geom.Vec3, spec world.StationSpec) *world.Entity {
	return world.NewEntity(world.StableObjectID("test", name), name, "station", pos).
		WithInteractable(world.NewStation(spec))
}

// runTicks advances every agent n steps starting at from and returns the
// time after the last step.
func runTicks(env Env, from time.Duration, n int, as ...*Agent) time.Duration {
	now := from
	for i := 0; i < n; i++ {
		for _, a := range as {
			a.Tick(env, now, step)
		}
		now += step
	}
	return now
}

func hasEvent(a *Agent, kind EventKind) bool {
	for _, ev := range a.RecentEvents(0) {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}

func TestNeedsClampAndGrow(t *testing.T) {
	n := NewNeeds(NeedSettings{HungerRate: 2, BoredomRate: 1, TirednessRate: 0})
	assert.Equal(t, DefaultInitialNeed, n.Value(world.NeedHunger))

	n.Tick(5 * time.Second)
	assert.InDelta(t, 20, n.Value(world.NeedHunger), 1e-9)
	assert.InDelta(t, 15, n.Value(world.NeedBoredom), 1e-9)
	assert.InDelta(t, 10, n.Value(world.NeedTiredness), 1e-9)

	assert.Equal(t, MaxNeed, n.Adjust(world.NeedHunger, 500))
	assert.Equal(t, MinNeed, n.Adjust(world.NeedBoredom, -500))

	n.Tick(time.Hour)
	assert.Equal(t, MaxNeed, n.Value(world.NeedHunger))
	assert.Equal(t, map[string]float64{"hunger": 100, "boredom": 100, "tiredness": 10}, n.Map())
}

func TestMemoryOneEntryPerObject(t *testing.T) {
	m := NewMemoryStore()
	obj := world.NewEntity("rock", "Rock", "prop", geom.V(1, 0, 1))

	first := m.Remember(obj)
	second := m.Remember(obj)
	assert.Same(t, first, second)
	assert.Equal(t, NeverSeen, first.LastSeen)

	obs := m.Refresh([]world.Object{obj}, time.Second)
	assert.Equal(t, 1, m.Len())
	require.Len(t, obs, 1)
	assert.Equal(t, ObservedReacquired, obs[0].Kind)
	assert.Equal(t, time.Second, first.SeenFor(2*time.Second))
}

func TestMemoryForgetThenRediscover(t *testing.T) {
	m := NewMemoryStore()
	obj := world.NewEntity("rock", "Rock", "prop", geom.V(1, 0, 1))

	obs := m.Refresh([]world.Object{obj}, 0)
	require.Len(t, obs, 1)
	assert.Equal(t, ObservedDiscovered, obs[0].Kind)

	assert.True(t, m.Forget(obj.ID()))
	assert.False(t, m.Forget(obj.ID()))

	obs = m.Refresh([]world.Object{obj}, time.Second)
	require.Len(t, obs, 1)
	assert.Equal(t, ObservedDiscovered, obs[0].Kind)
	e, ok := m.Recall(obj.ID())
	require.True(t, ok)
	assert.True(t, e.Visible)
	assert.Equal(t, time.Second, e.LastSeen)
}

func TestMemoryTracksMovementAndDestruction(t *testing.T) {
	m := NewMemoryStore()
	obj := world.NewEntity("cart", "Cart", "prop", geom.V(0, 0, 0))
	m.Refresh([]world.Object{obj}, 0)

	obj.SetPosition(geom.V(3, 0, 0))
	obs := m.Refresh([]world.Object{obj}, time.Second)
	require.Len(t, obs, 1)
	assert.Equal(t, ObservedMoved, obs[0].Kind)

	m.Refresh(nil, 2*time.Second)
	e, _ := m.Recall(obj.ID())
	assert.False(t, e.Visible)
	assert.Equal(t, geom.V(3, 0, 0), e.LastPosition)

	obj.Destroy()
	m.Refresh(nil, 3*time.Second)
	assert.Zero(t, m.Len())
}

func TestGoalLifecycle(t *testing.T) {
	once := DefaultGoal("visit", GoalGoToObject)
	again := DefaultGoal("snack", GoalInteractWithObject)
	again.Repeatable = true
	again.RepeatCooldown = 2 * time.Second

	tr := NewGoalTracker([]*Goal{once, nil, again}, 0)
	require.Len(t, tr.States(), 2)

	s1, ok := tr.State(once)
	require.True(t, ok)
	s1.MarkComplete(time.Second)
	assert.True(t, s1.Completed)
	assert.False(t, s1.Eligible(10*time.Second))

	s2, _ := tr.State(again)
	s2.MarkComplete(time.Second)
	assert.False(t, s2.Completed)
	assert.False(t, s2.Eligible(2*time.Second))
	assert.True(t, s2.Eligible(3*time.Second))
}

func TestGoalDeadlineFailsOnce(t *testing.T) {
	g := DefaultGoal("hurry", GoalGoToObject)
	g.HasDeadline = true
	g.Deadline = 10 * time.Second

	tr := NewGoalTracker([]*Goal{g}, 0)
	u, missed := tr.States()[0].DeadlineUrgency(5 * time.Second)
	assert.InDelta(t, 0.5, u, 1e-9)
	assert.False(t, missed)

	u, missed = tr.States()[0].DeadlineUrgency(10 * time.Second)
	assert.Equal(t, 1.0, u)
	assert.True(t, missed)

	assert.Empty(t, tr.Tick(10*time.Second))
	failed := tr.Tick(11 * time.Second)
	require.Len(t, failed, 1)
	assert.True(t, failed[0].Failed)
	assert.Empty(t, tr.Tick(12*time.Second))
}

func TestUnreachableBlockWindow(t *testing.T) {
	u := newUnreachable(3, 2*time.Second)
	id := world.ObjectID("far")

	assert.False(t, u.register(id, 0))
	assert.False(t, u.register(id, 0))
	assert.Equal(t, 2, u.count(id))
	assert.True(t, u.register(id, time.Second))
	assert.Zero(t, u.count(id))

	assert.True(t, u.blocked(id, 2900*time.Millisecond))
	assert.False(t, u.blocked(id, 3*time.Second))
	assert.False(t, u.blocked(id, 3100*time.Millisecond))
}

func TestEventLogRing(t *testing.T) {
	l := NewEventLog(3)
	for i := range 5 {
		l.Add(Event{At: time.Duration(i) * time.Second, Message: "e"})
	}
	assert.Equal(t, 3, l.Len())
	recent := l.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, 4*time.Second, recent[0].At)
	assert.Equal(t, 2*time.Second, recent[2].At)
	assert.Len(t, l.Recent(2), 2)
}

func TestInventoryMatching(t *testing.T) {
	var inv Inventory
	inv.Add("a", world.NewItem("Apple", 1))
	inv.Add("a", world.NewItem("Apple", 1))
	inv.Add("b", world.NewItem("Key", 1))
	assert.Equal(t, 2, inv.Len())

	assert.True(t, inv.Has(" apple "))
	assert.True(t, inv.Has(""))
	assert.True(t, inv.Holds("b"))
	assert.False(t, inv.Has("Sword"))

	assert.True(t, inv.Consume(""))
	assert.Equal(t, []string{"Key"}, inv.Types())
	assert.False(t, inv.Consume("apple"))
}

func TestHungryAgentInteractsWithStation(t *testing.T) {
	food := station("Pantry", geom.V(0, 0, 2), world.DefaultStationSpec())
	a := newTestAgent("Ada", geom.Zero, func(s *Spec) {
		s.Config.Idle.Wander = true
		s.Needs = map[world.NeedType]float64{world.NeedHunger: 90, world.NeedBoredom: 0, world.NeedTiredness: 0}
	})
	env := Env{Registry: fakeRegistry{food, a}, Sensor: &fakeSensor{}}

	a.Tick(env, 0, step)
	task := a.CurrentTask()
	require.NotNil(t, task)
	assert.Equal(t, ActionInteract, task.Action)
	assert.Equal(t, food.ID(), task.Target.ID())
	assert.Greater(t, task.Score, 0.01)

	now := step
	for i := 0; i < 100 && a.NeedValue(world.NeedHunger) >= 90; i++ {
		a.Tick(env, now, step)
		now += step
	}
	assert.InDelta(t, 55, a.NeedValue(world.NeedHunger), 1e-9)
	assert.True(t, hasEvent(a, EventTaskComplete))
}

func TestHysteresisKeepsIncumbent(t *testing.T) {
	food := station("Pantry", geom.V(0, 0, 3), world.DefaultStationSpec())
	a := newTestAgent("Ada", geom.Zero, func(s *Spec) {
		s.Needs = map[world.NeedType]float64{world.NeedHunger: 80}
	})
	a.perceive(Env{Registry: fakeRegistry{food}, Sensor: &fakeSensor{}})

	best := a.bestTask()
	require.NotNil(t, best)

	incumbent := &Task{Action: ActionMove, Destination: geom.V(5, 0, 5), Score: best.Score - 0.04, Label: "incumbent"}
	a.task = incumbent
	a.replan()
	assert.Same(t, incumbent, a.task)

	incumbent.Score = best.Score - 0.06
	a.replan()
	require.NotNil(t, a.task)
	assert.Equal(t, ActionInteract, a.task.Action)
}

func TestPickupTakenByOtherIsForgotten(t *testing.T) {
	apple := world.NewEntity("apple", "Apple", "item", geom.V(0, 0, 10)).
		WithPickup(world.NewItem("Apple", 1))
	goal := DefaultGoal("get apple", GoalAcquireItem)
	goal.Target = apple.ID()

	a := newTestAgent("Ada", geom.Zero, func(s *Spec) {
		s.Goals = []*Goal{goal}
		s.Known = []world.Object{apple}
	})
	thief := newTestAgent("Bo", geom.V(20, 0, 20), nil)
	env := Env{Registry: fakeRegistry{apple}, Sensor: &fakeSensor{}}

	a.Tick(env, 0, step)
	require.NotNil(t, a.CurrentTask())
	assert.Equal(t, ActionPickup, a.CurrentTask().Action)

	require.True(t, apple.Pickup().TryPickUp(thief))

	a.Tick(env, step, step)
	assert.Nil(t, a.CurrentTask())
	_, remembered := a.Memory().Recall(apple.ID())
	assert.False(t, remembered)
	assert.Zero(t, a.UnreachableAttempts(apple.ID()))
}

func TestAgentPicksUpItemForGoal(t *testing.T) {
	apple := world.NewEntity("apple", "Apple", "item", geom.V(0, 0, 3)).
		WithPickup(world.NewItem("Apple", 1))
	goal := DefaultGoal("get apple", GoalAcquireItem)
	goal.RequiredItemType = "apple"

	a := newTestAgent("Ada", geom.Zero, func(s *Spec) { s.Goals = []*Goal{goal} })
	env := Env{Registry: fakeRegistry{apple}, Sensor: &fakeSensor{}}

	runTicks(env, 0, 30, a)
	assert.Equal(t, []string{"Apple"}, a.InventoryTypes())
	assert.True(t, a.Goals().States()[0].Completed)
	assert.True(t, apple.Item().PickedUp())
}

func TestMissedDeadlineClearsTask(t *testing.T) {
	far := world.NewEntity("tower", "Tower", "landmark", geom.V(0, 0, 500))
	goal := DefaultGoal("reach tower", GoalGoToObject)
	goal.Target = far.ID()
	goal.HasDeadline = true
	goal.Deadline = 10 * time.Second

	a := newTestAgent("Ada", geom.Zero, func(s *Spec) {
		s.Goals = []*Goal{goal}
		s.Known = []world.Object{far}
	})
	env := Env{Registry: fakeRegistry{far}, Sensor: &fakeSensor{}}

	now := runTicks(env, 0, 100, a)
	require.NotNil(t, a.CurrentTask())
	assert.NotNil(t, a.CurrentTask().Goal)

	runTicks(env, now, 2, a)
	gs := a.Goals().States()[0]
	assert.True(t, gs.Failed)
	assert.Nil(t, a.CurrentTask())
	assert.True(t, hasEvent(a, EventGoalFailed))

	runTicks(env, now+2*step, 10, a)
	assert.Nil(t, a.CurrentTask())
}

func TestPlannerFailsGoalAtDeadline(t *testing.T) {
	post := world.NewEntity("post", "Post", "landmark", geom.V(0, 0, 50))
	goal := DefaultGoal("reach post", GoalGoToObject)
	goal.Target = post.ID()
	goal.HasDeadline = true
	goal.Deadline = 10 * time.Second

	a := newTestAgent("Ada", geom.Zero, func(s *Spec) {
		s.Goals = []*Goal{goal}
		s.Known = []world.Object{post}
	})
	a.now = 10 * time.Second
	a.replan()

	assert.True(t, a.Goals().States()[0].Failed)
	assert.Nil(t, a.CurrentTask())
	assert.True(t, hasEvent(a, EventGoalFailed))
}

func TestLostTargetHeldThenForgotten(t *testing.T) {
	post := world.NewEntity("post", "Post", "landmark", geom.V(0, 0, 4))
	goal := DefaultGoal("go to post", GoalGoToObject)
	goal.Target = post.ID()

	a := newTestAgent("Ada", geom.Zero, func(s *Spec) {
		s.Goals = []*Goal{goal}
		s.Known = []world.Object{post}
	})
	sensor := &fakeSensor{hidden: map[world.ObjectID]bool{}}
	env := Env{Registry: fakeRegistry{post}, Sensor: sensor}

	a.Tick(env, 0, step)
	require.NotNil(t, a.CurrentTask())
	assert.Equal(t, ActionMove, a.CurrentTask().Action)

	// Gone from sight on the way; the agent walks to where it last saw it.
	sensor.hidden[post.ID()] = true
	now := step
	for ; now < 3*time.Second && a.UnreachableAttempts(post.ID()) == 0; now += step {
		a.Tick(env, now, step)
	}
	require.Equal(t, 1, a.UnreachableAttempts(post.ID()))
	m, ok := a.Memory().Recall(post.ID())
	require.True(t, ok, "memory is held while the target is recently seen")
	assert.False(t, m.Visible)
	assert.Less(t, m.SeenFor(a.now), a.cfg.Movement.ForgetMissingAfter)
	assert.LessOrEqual(t, geom.Dist(a.Position(), m.LastPosition), a.cfg.Movement.StoppingDistance*1.5)

	for ; now < 10*time.Second; now += step {
		a.Tick(env, now, step)
		if _, ok := a.Memory().Recall(post.ID()); !ok {
			break
		}
	}
	_, ok = a.Memory().Recall(post.ID())
	assert.False(t, ok)
	assert.GreaterOrEqual(t, a.now, a.cfg.Movement.ForgetMissingAfter)
	assert.True(t, hasEvent(a, EventBlocked))
	assert.False(t, a.Goals().States()[0].Completed)
}

func TestSocializeNeedsVisiblePeer(t *testing.T) {
	a := newTestAgent("Ada", geom.Zero, func(s *Spec) {
		s.Needs = map[world.NeedType]float64{world.NeedBoredom: 50}
	})
	b := newTestAgent("Bo", geom.V(0, 0, 4), func(s *Spec) {
		s.Needs = map[world.NeedType]float64{world.NeedBoredom: 50}
		s.Personality.Sociability = 0
	})
	sensor := &fakeSensor{hidden: map[world.ObjectID]bool{}}
	env := Env{Registry: fakeRegistry{a, b}, Sensor: sensor}

	a.Tick(env, 0, step)
	require.NotNil(t, a.CurrentTask())
	require.Equal(t, ActionSocialize, a.CurrentTask().Action)

	sensor.hidden[b.ID()] = true
	for now := step; now < 3*time.Second && a.UnreachableAttempts(b.ID()) == 0; now += step {
		a.Tick(env, now, step)
	}
	assert.Equal(t, 1, a.UnreachableAttempts(b.ID()))
	assert.Nil(t, a.CurrentTask())
	assert.False(t, a.performing)
	assert.Equal(t, 50.0, a.NeedValue(world.NeedBoredom))
	assert.Equal(t, 50.0, b.NeedValue(world.NeedBoredom))
}

func TestBlockedTargetIsPickedAgainAfterCooldown(t *testing.T) {
	post := world.NewEntity("post", "Post", "landmark", geom.V(0, 0, 20))
	goal := DefaultGoal("go to post", GoalGoToObject)
	goal.Target = post.ID()

	a := newTestAgent("Ada", geom.Zero, func(s *Spec) {
		s.Goals = []*Goal{goal}
		s.Known = []world.Object{post}
	})
	for range a.cfg.Planner.MaxUnreachable {
		a.registerUnreachable(post, "wall")
	}
	require.True(t, a.Blocked(post.ID()))

	a.now = a.cfg.Planner.UnreachableCooldown - step
	a.replan()
	assert.Nil(t, a.CurrentTask())

	a.now = a.cfg.Planner.UnreachableCooldown
	a.replan()
	require.NotNil(t, a.CurrentTask())
	assert.Equal(t, post.ID(), a.CurrentTask().Target.ID())
	assert.False(t, a.Blocked(post.ID()))
}

func TestTaskSnapshotReportsNeedAndIdle(t *testing.T) {
	food := station("Pantry", geom.V(0, 0, 3), world.DefaultStationSpec())
	a := newTestAgent("Ada", geom.Zero, func(s *Spec) {
		s.Needs = map[world.NeedType]float64{world.NeedHunger: 80}
	})
	a.perceive(Env{Registry: fakeRegistry{food}, Sensor: &fakeSensor{}})
	a.replan()
	snap := a.Snapshot()
	require.NotNil(t, snap.Task)
	assert.Equal(t, "hunger", snap.Task.Need)
	assert.False(t, snap.Task.Idle)

	b := newTestAgent("Bo", geom.Zero, func(s *Spec) { s.Config.Idle.Wander = true })
	b.replan()
	snap = b.Snapshot()
	require.NotNil(t, snap.Task)
	assert.True(t, snap.Task.Idle)
	assert.Empty(t, snap.Task.Need)
}

func TestMutualSocialize(t *testing.T) {
	var b *Agent
	a := newTestAgent("Ada", geom.Zero, func(s *Spec) {
		s.Needs = map[world.NeedType]float64{world.NeedBoredom: 50}
	})
	b = newTestAgent("Bo", geom.V(0, 0, 1.5), func(s *Spec) {
		s.Needs = map[world.NeedType]float64{world.NeedBoredom: 50}
		s.Personality.Sociability = 0
	})
	env := Env{Registry: fakeRegistry{a, b}, Sensor: &fakeSensor{}}

	a.Tick(env, 0, step)
	b.Tick(env, 0, step)
	require.NotNil(t, a.CurrentTask())
	assert.Equal(t, ActionSocialize, a.CurrentTask().Action)
	assert.Equal(t, b.ID(), a.CurrentTask().Target.ID())
	assert.Nil(t, b.CurrentTask())

	runTicks(env, step, 29, a, b)
	assert.InDelta(t, 20, a.NeedValue(world.NeedBoredom), 1e-9)
	assert.InDelta(t, 30, b.NeedValue(world.NeedBoredom), 1e-9)
	assert.True(t, hasEvent(a, EventSocial))
}

func TestStuckAgentRegistersUnreachable(t *testing.T) {
	post := world.NewEntity("post", "Post", "landmark", geom.V(0, 0, 20))
	goal := DefaultGoal("go to post", GoalGoToObject)
	goal.Target = post.ID()

	a := newTestAgent("Ada", geom.Zero, func(s *Spec) {
		s.Goals = []*Goal{goal}
		s.Known = []world.Object{post}
	})
	env := Env{Registry: fakeRegistry{post}, Sensor: &wallSensor{}}

	runTicks(env, 0, 13, a)
	assert.Equal(t, 1, a.UnreachableAttempts(post.ID()))
	assert.True(t, hasEvent(a, EventStuck))
	assert.True(t, a.Snapshot().Recovering)
}

func TestSpawnerDeterministic(t *testing.T) {
	req := SpawnRequest{Name: "Ada", Archetype: ArchGlutton}
	a1, err := NewSpawner("village", 1, testConfig(), nil, nil).Spawn(req, 0)
	require.NoError(t, err)
	a2, err := NewSpawner("village", 1, testConfig(), nil, nil).Spawn(req, 0)
	require.NoError(t, err)

	assert.Equal(t, a1.ID(), a2.ID())
	assert.Equal(t, a1.NeedValue(world.NeedHunger), a2.NeedValue(world.NeedHunger))
	assert.Greater(t, a1.Personality().HungerPriority, DefaultPersonality().HungerPriority)

	_, err = NewSpawner("village", 1, testConfig(), nil, nil).Spawn(SpawnRequest{Name: "X", Archetype: "pirate"}, 0)
	assert.Error(t, err)
}

func TestSnapshotAndRestore(t *testing.T) {
	a := newTestAgent("Ada", geom.Zero, nil)
	a.Restore(RestoreState{
		Position: geom.V(4, 0, 2),
		Forward:  geom.V(1, 0, 0),
		Needs:    map[string]float64{"hunger": 80, "bogus": 5},
	})

	snap := a.Snapshot()
	assert.Equal(t, "Ada", snap.Name)
	assert.Equal(t, StateIdle.String(), snap.State)
	assert.Equal(t, geom.V(4, 0, 2), snap.Position)
	assert.Equal(t, 80.0, snap.Needs["hunger"])
	assert.Equal(t, []string{"hunger"}, snap.UrgentNeeds)
	assert.Nil(t, snap.Task)
	assert.NotEmpty(t, snap.RecentEvents)
}

func TestDespawnedAgentIsPruned(t *testing.T) {
	a := newTestAgent("Ada", geom.Zero, nil)
	b := newTestAgent("Bo", geom.V(0, 0, 2), nil)
	env := Env{Registry: fakeRegistry{a, b}, Sensor: &fakeSensor{}}

	a.Tick(env, 0, step)
	_, ok := a.Memory().Recall(b.ID())
	require.True(t, ok)

	b.Despawn()
	a.Tick(env, time.Second, step)
	_, ok = a.Memory().Recall(b.ID())
	assert.False(t, ok)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Planner.MaxUnreachable = 0
	assert.ErrorContains(t, cfg.Validate(), "planner.max_unreachable")
}
