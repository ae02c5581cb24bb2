package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/npcsim/internal/agents"
	"github.com/talgya/npcsim/internal/engine"
	"github.com/talgya/npcsim/internal/geom"
	"github.com/talgya/npcsim/internal/world"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "npcsim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndLoadWorldState(t *testing.T) {
	db := openTestDB(t)
	assert.False(t, db.HasWorldState())
	tick, err := db.LastTick()
	require.NoError(t, err)
	assert.Zero(t, tick)

	sim := engine.NewSimulation("village", nil, nil, 100)
	cfg := agents.DefaultConfig()
	cfg.Debug.Log = false
	a := agents.New(agents.Spec{
		ID:       "agent-1",
		Name:     "Ada",
		Position: geom.V(3, 0, 4),
		Needs:    map[world.NeedType]float64{world.NeedHunger: 42},
		Config:   cfg,
		Sink:     sim,
	})
	require.NoError(t, sim.AddAgent(a))
	sim.Tick(7, 700*time.Millisecond, 100*time.Millisecond)

	require.NoError(t, db.SaveWorldState(sim))
	assert.True(t, db.HasWorldState())

	tick, err = db.LastTick()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), tick)
	name, err := db.GetMeta(MetaScenario)
	require.NoError(t, err)
	assert.Equal(t, "village", name)

	states, err := db.LoadAgentStates()
	require.NoError(t, err)
	require.Contains(t, states, world.ObjectID("agent-1"))
	st := states["agent-1"]
	assert.InDelta(t, 3, st.Position.X, 1e-9)
	assert.InDelta(t, 4, st.Position.Z, 1e-9)
	assert.InDelta(t, 42, st.Needs["hunger"], 0.5)

	rows, err := db.LoadAgents()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ada", rows[0].Name)
	assert.Contains(t, rows[0].SnapshotJSON, `"name":"Ada"`)
}

func TestSaveWorldStateAppendsOnlyNewEvents(t *testing.T) {
	db := openTestDB(t)
	sim := engine.NewSimulation("", nil, nil, 100)

	sim.Publish(agents.Event{At: time.Second, AgentID: "a", Agent: "Ada", Kind: agents.EventDiscovery, Message: "first"})
	require.NoError(t, db.SaveWorldState(sim))
	sim.Publish(agents.Event{At: 2 * time.Second, AgentID: "a", Agent: "Ada", Kind: agents.EventStuck, Message: "second"})
	require.NoError(t, db.SaveWorldState(sim))
	require.NoError(t, db.SaveWorldState(sim))

	events, err := db.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "second", events[0].Message)
	assert.Equal(t, 2*time.Second, events[0].At())

	counts, err := db.EventCounts()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"discovery": 1, "stuck": 1}, counts)
}
