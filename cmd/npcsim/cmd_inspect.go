package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/npcsim/internal/engine"
	"github.com/talgya/npcsim/internal/persistence"
)

func inspectCmd() *cobra.Command {
	var (
		events int
		agent  string
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the saved agents and recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(cfg.Storage.DBPath); err != nil {
				return fmt.Errorf("inspect: %w", err)
			}
			db, err := persistence.Open(cfg.Storage.DBPath)
			if err != nil {
				return fmt.Errorf("inspect: %w", err)
			}
			defer db.Close()

			if !db.HasWorldState() {
				return errors.New("inspect: no saved world state")
			}
			tick, err := db.LastTick()
			if err != nil {
				return fmt.Errorf("inspect: %w", err)
			}
			name, _ := db.GetMeta(persistence.MetaScenario)
			savedAt, _ := db.GetMeta(persistence.MetaSavedAt)

			fmt.Printf("Scenario: %s\n", orDash(name))
			fmt.Printf("Tick:     %s\n", humanize.Comma(int64(tick)))
			if t, err := time.Parse(time.RFC3339, savedAt); err == nil {
				fmt.Printf("Saved:    %s\n", humanize.Time(t))
			}

			rows, err := db.LoadAgents()
			if err != nil {
				return fmt.Errorf("inspect: loading agents: %w", err)
			}
			fmt.Printf("\nAgents (%d):\n", len(rows))
			for _, r := range rows {
				if agent != "" && !strings.EqualFold(r.Name, agent) && r.ID != agent {
					continue
				}
				needs, err := r.Needs()
				if err != nil {
					return fmt.Errorf("inspect: %w", err)
				}
				fmt.Printf("  %-12s %-10s (%.1f, %.1f, %.1f)  %s\n", r.Name, r.State, r.PosX, r.PosY, r.PosZ, formatNeeds(needs))
				fmt.Printf("  %-12s %s\n", "", r.Plan)
			}

			counts, err := db.EventCounts()
			if err != nil {
				return fmt.Errorf("inspect: counting events: %w", err)
			}
			kinds := make([]string, 0, len(counts))
			total := 0
			for k, c := range counts {
				kinds = append(kinds, k)
				total += c
			}
			sort.Slice(kinds, func(i, j int) bool { return counts[kinds[i]] > counts[kinds[j]] })
			fmt.Printf("\nEvents (%s):\n", humanize.Comma(int64(total)))
			for _, k := range kinds {
				fmt.Printf("  %-14s %s\n", k, humanize.Comma(int64(counts[k])))
			}

			if events > 0 {
				recent, err := db.RecentEvents(events)
				if err != nil {
					return fmt.Errorf("inspect: recent events: %w", err)
				}
				fmt.Printf("\nRecent:\n")
				for _, e := range recent {
					if agent != "" && !strings.EqualFold(e.Agent, agent) && e.AgentID != agent {
						continue
					}
					fmt.Printf("  [%s] %s: %s\n", engine.SimTime(e.At()), e.Agent, e.Message)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&events, "events", 20, "number of recent events to show")
	cmd.Flags().StringVar(&agent, "agent", "", "only show this agent (name or ID)")
	return cmd
}

func formatNeeds(needs map[string]float64) string {
	keys := make([]string, 0, len(needs))
	for k := range needs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.0f", k, needs[k]))
	}
	return strings.Join(parts, " ")
}
