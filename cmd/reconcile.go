package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ercot-nodemap/internal/model"
	"github.com/sells-group/ercot-nodemap/internal/monitoring"
	"github.com/sells-group/ercot-nodemap/internal/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Resolve settlement points to coordinates",
	Long:  "Loads the node registry, map snapshots, and facility table, then writes the match table, unmatched tables, and manifest. Reuses the previous output when its cache key is current.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		force, _ := cmd.Flags().GetBool("force")

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, runErr := env.Engine.Run(ctx, reconcile.RunOptions{ForceRebuild: force})

		if err := monitoring.WriteTextfile(cfg.Metrics.Textfile, prometheus.DefaultGatherer); err != nil {
			zap.L().Warn("write metrics textfile", zap.Error(err))
		}
		if runErr != nil {
			return runErr
		}

		formatResult(os.Stdout, res)
		return nil
	},
}

func init() {
	reconcileCmd.Flags().Bool("force", false, "rebuild even when the cached output is current")
	rootCmd.AddCommand(reconcileCmd)
}

// formatResult writes a run summary to out.
func formatResult(out io.Writer, res *reconcile.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	source := "rebuilt"
	if res.FromCache {
		source = "cache"
	}
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", res.RunID)
	_, _ = fmt.Fprintf(w, "Cache key:\t%s\n", truncateID(res.CacheKey))
	_, _ = fmt.Fprintf(w, "Source:\t%s\n", source)
	_, _ = fmt.Fprintf(w, "Matched:\t%d\n", len(res.Matches))

	if s := res.Stats; s != nil {
		_, _ = fmt.Fprintf(w, "Registry nodes:\t%d\n", s.TotalNodes)
		_, _ = fmt.Fprintf(w, "Match rate:\t%.1f%%\n", 100*s.MatchRate())
		for _, m := range model.MatchMethods {
			_, _ = fmt.Fprintf(w, "  %s:\t%d\n", m, s.ByMethod[m])
		}
		_, _ = fmt.Fprintf(w, "Unmatched nodes:\t%d\n", s.UnmatchedNodes)
		_, _ = fmt.Fprintf(w, "Unmatched facilities:\t%d\n", s.UnmatchedFacilities)
		_, _ = fmt.Fprintf(w, "Calibration:\t%s (%d control points)\n", s.Calibration, s.ControlPoints)
	}
	_ = w.Flush()
}
