package world

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/npcsim/internal/geom"
)

type stubActor struct {
	id    ObjectID
	items []string
	needs [NeedCount]float64
}

func (a *stubActor) ID() ObjectID { return a.id }

func (a *stubActor) HasItem(t string) bool {
	for _, it := range a.items {
		if t == "" || SameItemType(it, t) {
			return true
		}
	}
	return false
}

func (a *stubActor) ConsumeItem(t string) bool {
	for i, it := range a.items {
		if t == "" || SameItemType(it, t) {
			a.items = append(a.items[:i], a.items[i+1:]...)
			return true
		}
	}
	return false
}

func (a *stubActor) AdjustNeed(n NeedType, d float64) { a.needs[n] += d }

func TestStationApply(t *testing.T) {
	e := NewEntity("", "stew pot", "food", geom.Zero).WithInteractable(NewStation(DefaultStationSpec()))
	a := &stubActor{id: "a"}

	st := e.Interactable()
	require.NotNil(t, st)
	assert.Equal(t, 35.0, st.NeedRelief(NeedHunger))
	assert.Equal(t, 0.0, NewStation(StationSpec{Hunger: 5}).NeedRelief(NeedHunger))
	assert.Equal(t, DefaultInteractionDuration, st.Duration())

	require.True(t, st.Apply(a))
	assert.Equal(t, -35.0, a.needs[NeedHunger])
	assert.Equal(t, -10.0, a.needs[NeedBoredom])
	assert.Equal(t, -20.0, a.needs[NeedTiredness])
	assert.True(t, st.Available(), "reusable station stays available")
}

func TestStationRequiresAndConsumesItem(t *testing.T) {
	st := NewStation(StationSpec{
		Hunger:           -50,
		RequiresItem:     true,
		RequiredItemType: "Key",
		ConsumeItem:      true,
		OneShot:          true,
	})
	e := NewEntity("", "chest", "chest", geom.Zero).WithInteractable(st)

	a := &stubActor{id: "a"}
	assert.False(t, st.CanInteract(a))
	assert.False(t, st.Apply(a))

	a.items = []string{" key "}
	require.True(t, st.Apply(a))
	assert.Empty(t, a.items)
	assert.False(t, st.Available())
	assert.False(t, e.Active(), "one-shot station disables its owner")
	assert.False(t, st.Apply(a))
}

func TestItemPickupIsMonotonic(t *testing.T) {
	it := NewItem("  ", 2)
	e := NewEntity("", "thing", "item", geom.Zero).WithPickup(it)
	assert.Equal(t, DefaultItemType, it.ItemType())

	first, second := &stubActor{id: "first"}, &stubActor{id: "second"}
	assert.False(t, it.TryPickUp(nil))
	assert.True(t, it.TryPickUp(first))
	assert.False(t, it.TryPickUp(second))
	assert.True(t, it.PickedUp())
	assert.Equal(t, ObjectID("first"), it.Holder())
	assert.False(t, e.Active())
	assert.False(t, e.Destroyed())
}

func TestEntityCapabilitiesAreNilInterfaces(t *testing.T) {
	e := NewEntity("", "rock", "rock", geom.Zero)
	assert.Nil(t, e.Interactable())
	assert.Nil(t, e.Pickup())
	assert.Nil(t, e.Actor())
	assert.NotEmpty(t, e.ID())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := NewEntity("a", "a", "x", geom.Zero)
	b := NewEntity("b", "b", "x", geom.Zero)
	require.NoError(t, r.Add(a))
	require.NoError(t, r.Add(b))
	assert.Error(t, r.Add(NewEntity("a", "dup", "x", geom.Zero)))

	assert.Len(t, r.All(), 2)
	b.SetActive(false)
	assert.Len(t, r.All(), 1)
	assert.Equal(t, 2, r.Len())

	assert.True(t, r.Remove("a"))
	assert.True(t, a.Destroyed())
	assert.False(t, r.Remove("a"))
	_, ok := r.Get("a")
	assert.False(t, ok)
	got, ok := r.Get("b")
	require.True(t, ok)
	assert.Equal(t, "b", got.Name())
}

func TestStableObjectID(t *testing.T) {
	assert.Equal(t, StableObjectID("meadow", "oven"), StableObjectID("meadow", "oven"))
	assert.NotEqual(t, StableObjectID("meadow", "oven"), StableObjectID("meadow", "bed"))
}

func TestParseNeed(t *testing.T) {
	n, err := ParseNeed(" Boredom ")
	require.NoError(t, err)
	assert.Equal(t, NeedBoredom, n)
	_, err = ParseNeed("thirst")
	assert.Error(t, err)
	assert.Equal(t, "tiredness", NeedTiredness.String())
}

func TestTerrainDeterministic(t *testing.T) {
	cfg := DefaultTerrainConfig()
	a, b := NewTerrain(cfg), NewTerrain(cfg)
	for _, p := range [][2]float64{{0, 0}, {3.5, -7}, {40, 12}} {
		assert.Equal(t, a.Height(p[0], p[1]), b.Height(p[0], p[1]))
		h := a.Height(p[0], p[1])
		assert.GreaterOrEqual(t, h, 0.0)
		assert.LessOrEqual(t, h, cfg.Amplitude)
		assert.InDelta(t, 1, a.Normal(p[0], p[1]).Len(), 1e-9)
	}

	flat := FlatTerrain(1.5)
	assert.Equal(t, 1.5, flat.Height(10, -3))
	assert.Equal(t, geom.Up, flat.Normal(10, -3))
	assert.Equal(t, 0.0, flat.Slope(1, 1))
}

func TestSensorVisibility(t *testing.T) {
	s := NewSensor(FlatTerrain(0))
	obs := Observer{Eye: geom.V(0, 1, 0), Forward: geom.Forward, Range: 15, FieldOfView: 120, LineOfSight: true}

	ahead := NewEntity("", "ahead", "x", geom.V(0, 0, 5))
	behind := NewEntity("", "behind", "x", geom.V(0, 0, -5))
	far := NewEntity("", "far", "x", geom.V(0, 0, 30))
	hidden := NewEntity("", "hidden", "x", geom.V(0, 0, 5)).Hidden()

	assert.True(t, s.IsVisible(obs, ahead))
	assert.False(t, s.IsVisible(obs, behind))
	assert.False(t, s.IsVisible(obs, far))
	assert.False(t, s.IsVisible(obs, hidden))

	wide := obs
	wide.FieldOfView = 360
	assert.True(t, s.IsVisible(wide, behind))

	ahead.SetActive(false)
	assert.False(t, s.IsVisible(obs, ahead))
}

func TestSensorObstacleOcclusion(t *testing.T) {
	s := NewSensor(FlatTerrain(0), Obstacle{Name: "boulder", Center: geom.V(0, 0.5, 3), Radius: 1})
	obs := Observer{Eye: geom.V(0, 1, 0), Forward: geom.Forward, Range: 15, FieldOfView: 120, LineOfSight: true}
	target := NewEntity("", "t", "x", geom.V(0, 0.5, 6))

	assert.False(t, s.IsVisible(obs, target))
	obs.LineOfSight = false
	assert.True(t, s.IsVisible(obs, target))
}

func TestProbeGroundAndResolve(t *testing.T) {
	s := NewSensor(FlatTerrain(0), Obstacle{Center: geom.V(0, 0, 5), Radius: 1})

	hit, ok := s.ProbeGround(geom.V(1, 1.1, 1), 3)
	require.True(t, ok)
	assert.Equal(t, 0.0, hit.Point.Y)
	assert.Equal(t, geom.Up, hit.Normal)

	_, ok = s.ProbeGround(geom.V(1, 10, 1), 3)
	assert.False(t, ok)

	from := geom.V(0, 0, 3.9)
	assert.Equal(t, from, s.Resolve(from, geom.V(0, 0, 4.2)))
	assert.Equal(t, geom.V(0, 0, 3.5), s.Resolve(geom.V(0, 0, 3), geom.V(0, 0, 3.5)))
}

func TestStationDurationFloor(t *testing.T) {
	assert.Equal(t, 10*time.Millisecond, NewStation(StationSpec{}).Duration())
}
