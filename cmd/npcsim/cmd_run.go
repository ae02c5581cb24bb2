package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/npcsim/internal/api"
	"github.com/talgya/npcsim/internal/engine"
	"github.com/talgya/npcsim/internal/eventlog"
	"github.com/talgya/npcsim/internal/metrics"
	"github.com/talgya/npcsim/internal/persistence"
	"github.com/talgya/npcsim/internal/scenario"
)

func runCmd() *cobra.Command {
	var (
		scenarioPath string
		ticks        uint64
		resume       bool
		speed        float64
		noAPI        bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario in real time, or headless for a fixed number of ticks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if scenarioPath == "" {
				scenarioPath = cfg.Scenario.Path
			}
			if cmd.Flags().Changed("speed") {
				cfg.Sim.Speed = speed
			}
			if noAPI || ticks > 0 {
				cfg.API.Enabled = false
			}

			// ── Scenario ──────────────────────────────────────────────
			f, err := scenario.Load(scenarioPath)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			sim, err := f.Build(scenario.Options{
				Brain:     cfg.Brain,
				Seed:      cfg.Sim.Seed,
				MaxEvents: cfg.Sim.MaxEvents,
				Logger:    slog.Default(),
			})
			if err != nil {
				return fmt.Errorf("run: build scenario: %w", err)
			}
			slog.Info("scenario loaded", "name", f.Name, "agents", len(sim.Agents), "objects", len(sim.Objects()))

			// ── Database ──────────────────────────────────────────────
			var db *persistence.DB
			if cfg.Storage.DBPath != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
					return fmt.Errorf("run: %w", err)
				}
				db, err = persistence.Open(cfg.Storage.DBPath)
				if err != nil {
					return fmt.Errorf("run: %w", err)
				}
				defer db.Close()
				slog.Info("database opened", "path", cfg.Storage.DBPath)
			}

			var startTick uint64
			if resume {
				startTick, err = restore(db, sim)
				if err != nil {
					return fmt.Errorf("run: resume: %w", err)
				}
			}

			// ── Event sinks ───────────────────────────────────────────
			sim.AddSink(metrics.EventSink{})
			var archive *eventlog.Sink
			if cfg.Storage.EventLogDir != "" {
				archive = eventlog.NewSink(cfg.Storage.EventLogDir)
				sim.AddSink(archive)
				defer func() {
					if err := archive.Close(); err != nil {
						slog.Error("event log close failed", "error", err)
					}
				}()
			}

			save := func(reason string) {
				if archive != nil {
					if err := archive.Flush(); err != nil {
						slog.Warn("event log flush failed", "error", err)
					}
				}
				if db == nil {
					return
				}
				if err := db.SaveWorldState(sim); err != nil {
					metrics.Inc(metrics.SaveErrors)
					slog.Error("save failed", "reason", reason, "error", err)
					return
				}
				metrics.Inc(metrics.SavesTotal)
			}

			// ── Engine ────────────────────────────────────────────────
			eng := engine.NewEngine(cfg.Sim.TickRate)
			eng.Tick = startTick
			eng.SetSpeed(cfg.Sim.Speed)
			eng.ReportEvery = cfg.Sim.ReportEvery
			eng.SaveEvery = cfg.Sim.SaveEvery
			eng.OnTick = func(tick uint64, now time.Duration) {
				sim.Tick(tick, now, eng.Step)
				metrics.Inc(metrics.TicksTotal)
			}
			eng.OnReport = sim.Report
			eng.OnSave = func(uint64) { save("autosave") }

			// ── HTTP API ──────────────────────────────────────────────
			runCtx, cancelRun := context.WithCancel(ctx)
			defer cancelRun()

			var apiDone chan error
			cancelAPI := func() {}
			if cfg.API.Enabled {
				if cfg.API.AdminKey == "" {
					slog.Warn("api.admin_key not set; admin POST endpoints are disabled")
				}
				srv := &api.Server{
					Sim:             sim,
					Eng:             eng,
					DB:              db,
					Addr:            cfg.API.ListenAddr,
					AdminKey:        cfg.API.AdminKey,
					CORSOrigins:     cfg.API.CORSOrigins,
					ObserveInterval: cfg.API.ObserveInterval,
					StreamsPerHour:  cfg.API.StreamsPerHour,
				}
				var apiCtx context.Context
				apiCtx, cancelAPI = context.WithCancel(context.Background())
				apiDone = make(chan error, 1)
				go func() {
					err := srv.Run(apiCtx)
					if err != nil {
						// A dead API stops the run.
						slog.Error("HTTP API failed", "error", err)
						cancelRun()
					}
					apiDone <- err
				}()
				fmt.Printf("API: http://localhost%s/api/v1/status\n", cfg.API.ListenAddr)
			}

			// ── Start ─────────────────────────────────────────────────
			if ticks > 0 {
				slog.Info("running headless", "ticks", ticks, "from", startTick)
				for i := uint64(0); i < ticks && runCtx.Err() == nil; i++ {
					eng.RunTicks(1)
				}
			} else {
				fmt.Println("Starting simulation... (Ctrl+C to stop)")
				eng.Run(runCtx)
			}

			sim.Report(eng.Tick)
			slog.Info("final save...")
			save("shutdown")

			cancelAPI()
			if apiDone != nil {
				if err := <-apiDone; err != nil {
					return fmt.Errorf("run: %w", err)
				}
			}
			fmt.Printf("Simulation stopped at tick %d (%s).\n", eng.Tick, engine.SimTime(eng.Now()))
			return nil
		},
	}

	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "scenario file (default from config scenario.path)")
	cmd.Flags().Uint64Var(&ticks, "ticks", 0, "run this many ticks as fast as possible, then exit (disables the API)")
	cmd.Flags().BoolVar(&resume, "resume", false, "restore agent positions and needs from the database")
	cmd.Flags().Float64Var(&speed, "speed", 1, "real-time multiplier (0 starts paused)")
	cmd.Flags().BoolVar(&noAPI, "no-api", false, "do not start the HTTP API")
	return cmd
}

// restore applies the saved agent state to a freshly built simulation and
// returns the tick to continue from.
func restore(db *persistence.DB, sim *engine.Simulation) (uint64, error) {
	if db == nil {
		return 0, errors.New("no database configured (storage.db_path)")
	}
	if !db.HasWorldState() {
		slog.Info("no saved state found, starting fresh")
		return 0, nil
	}
	if saved, err := db.GetMeta(persistence.MetaScenario); err == nil && saved != sim.Name {
		return 0, fmt.Errorf("saved state belongs to scenario %q, not %q", saved, sim.Name)
	}

	states, err := db.LoadAgentStates()
	if err != nil {
		return 0, err
	}
	restored := 0
	for id, st := range states {
		a, ok := sim.AgentIndex[id]
		if !ok {
			slog.Warn("saved agent not in scenario, skipping", "id", id)
			continue
		}
		a.Restore(st)
		restored++
	}
	tick, err := db.LastTick()
	if err != nil {
		return 0, err
	}
	sim.LastTick = tick
	slog.Info("world state restored", "agents", restored, "tick", tick, "sim_time", engine.SimTime(time.Duration(tick)*time.Second/time.Duration(max(1, cfg.Sim.TickRate))))
	return tick, nil
}
