package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ercot-nodemap/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "nodemap",
	Short: "Geolocate ERCOT settlement points",
	Long:  "Reconciles the ERCOT resource node registry with map snapshots and the EIA-860 plant table, producing coordinates for every settlement point it can resolve.",
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
