package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ercot-nodemap/internal/monitoring"
	"github.com/sells-group/ercot-nodemap/internal/reconcile"
	"github.com/sells-group/ercot-nodemap/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reconcile whenever an input artifact changes",
	Long:  "Runs one reconciliation, then watches the registry, facility, KML, and contour page files and reconciles again after each burst of changes. Unchanged inputs are served from the cache.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rebuild := func(ctx context.Context) error {
			res, err := env.Engine.Run(ctx, reconcile.RunOptions{})
			if werr := monitoring.WriteTextfile(cfg.Metrics.Textfile, prometheus.DefaultGatherer); werr != nil {
				zap.L().Warn("write metrics textfile", zap.Error(werr))
			}
			if err != nil {
				return err
			}
			zap.L().Info("reconciliation finished",
				zap.String("run_id", res.RunID),
				zap.Bool("from_cache", res.FromCache),
				zap.Int("matches", len(res.Matches)),
			)
			return nil
		}

		if err := rebuild(ctx); err != nil {
			zap.L().Error("initial reconciliation failed", zap.Error(err))
		}

		debounce := time.Duration(cfg.Watch.DebounceSecs) * time.Second
		w := watch.New(watch.Patterns(cfg.Paths), debounce, nil, rebuild)
		return w.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
