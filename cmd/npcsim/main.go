// Command npcsim runs autonomous NPC agents through a scenario.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talgya/npcsim/internal/config"
)

var (
	cfgPath string
	cfg     *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := &cobra.Command{
		Use:           "npcsim",
		Short:         "npcsim: need-driven NPC agents in a small 3D world",
		Long:          "npcsim runs agents that perceive, remember, plan and act on their needs and goals in a scenario world.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			slog.SetDefault(config.NewLogger(cfg.Logging, os.Stderr))
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ./npcsim.yaml)")

	rootCmd.AddCommand(
		runCmd(),
		validateCmd(),
		inspectCmd(),
	)

	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
