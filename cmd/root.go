package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Kakaur/tensr-signal-agent/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "signal-agent",
	Short: "Institutional buying-signal pipeline",
	Long:  "Searches the web for institutional buying signals, extracts and filters them via Claude, scores them against a ranking profile, and persists run history.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
