package main

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/npcsim/internal/config"
	"github.com/talgya/npcsim/internal/engine"
	"github.com/talgya/npcsim/internal/persistence"
	"github.com/talgya/npcsim/internal/scenario"
)

func buildVillage(t *testing.T) *engine.Simulation {
	t.Helper()
	f, err := scenario.Load(filepath.Join("..", "..", "scenarios", "village.yaml"))
	require.NoError(t, err)
	brain := cfg.Brain
	brain.Debug.Log = false
	sim, err := f.Build(scenario.Options{Brain: brain, Seed: 1, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)
	return sim
}

func TestRestoreResumesSavedAgents(t *testing.T) {
	t.Chdir(t.TempDir())
	var err error
	cfg, err = config.Load("")
	require.NoError(t, err)

	db, err := persistence.Open(filepath.Join(t.TempDir(), "npcsim.db"))
	require.NoError(t, err)
	defer db.Close()

	first := buildVillage(t)
	eng := engine.NewEngine(cfg.Sim.TickRate)
	eng.OnTick = func(tick uint64, now time.Duration) { first.Tick(tick, now, eng.Step) }
	eng.RunTicks(50)
	require.NoError(t, db.SaveWorldState(first))
	saved := first.Snapshots()

	second := buildVillage(t)
	tick, err := restore(db, second)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), tick)
	assert.Equal(t, uint64(50), second.CurrentTick())

	for _, want := range saved {
		got, ok := second.Snapshot(want.ID)
		require.True(t, ok, want.Name)
		assert.InDelta(t, want.Position.X, got.Position.X, 1e-9)
		assert.InDelta(t, want.Position.Z, got.Position.Z, 1e-9)
		assert.InDelta(t, want.Needs["hunger"], got.Needs["hunger"], 1e-6)
	}

	second.Name = "elsewhere"
	_, err = restore(db, second)
	assert.ErrorContains(t, err, "belongs to scenario")

	_, err = restore(nil, second)
	assert.Error(t, err)
}

func TestFormatNeeds(t *testing.T) {
	assert.Equal(t, "boredom=20 hunger=55", formatNeeds(map[string]float64{"hunger": 55.2, "boredom": 19.6}))
	assert.Equal(t, "-", orDash(""))
}
