package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/talgya/npcsim/internal/scenario"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [scenario]",
		Short: "Check a scenario file without running it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.Scenario.Path
			if len(args) == 1 {
				path = args[0]
			}

			f, err := scenario.Load(path)
			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}
			sim, err := f.Build(scenario.Options{Brain: cfg.Brain, Seed: cfg.Sim.Seed, MaxEvents: cfg.Sim.MaxEvents})
			if err != nil {
				return fmt.Errorf("validate: build %s: %w", path, err)
			}

			fmt.Printf("%s: ok\n", path)
			fmt.Printf("  scenario: %s\n", f.Name)
			if f.Description != "" {
				fmt.Printf("  %s\n", f.Description)
			}
			fmt.Printf("  agents:   %d\n", len(sim.Agents))
			fmt.Printf("  objects:  %d\n", len(sim.Objects()))
			for _, a := range f.Agents {
				fmt.Printf("    %-12s %-10s goals=%d knows=%d\n", a.Name, orDash(a.Archetype), len(a.Goals), len(a.Knows))
			}
			return nil
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
