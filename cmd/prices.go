package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ercot-nodemap/internal/artifact"
	"github.com/sells-group/ercot-nodemap/internal/prices"
)

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Join monthly maximum RT settlement point prices with coordinates",
	Long:  "Reads the daily rt_spp_*.csv files for a month, keeps resource nodes, takes the maximum price per settlement point, and joins it with the match table.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		year, _ := cmd.Flags().GetInt("year")
		month, _ := cmd.Flags().GetInt("month")
		pointType, _ := cmd.Flags().GetString("type")

		path, n, err := runPrices(cmd.Context(), year, month, pointType)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Wrote %d settlement points to %s\n", n, path)
		return nil
	},
}

func init() {
	pricesCmd.Flags().Int("year", 0, "delivery year")
	pricesCmd.Flags().Int("month", 0, "delivery month (1-12)")
	pricesCmd.Flags().String("type", prices.ResourceNode, "settlement point type to keep (empty keeps all)")
	_ = pricesCmd.MarkFlagRequired("year")
	_ = pricesCmd.MarkFlagRequired("month")
	rootCmd.AddCommand(pricesCmd)
}

// runPrices writes max_lmp_YYYY_MM.csv into the processed directory.
func runPrices(ctx context.Context, year, month int, pointType string) (string, int, error) {
	dir := cfg.Paths.ProcessedDir
	coords, err := artifact.ReadMatches(ctx, filepath.Join(dir, artifact.MatchesFile))
	if err != nil {
		return "", 0, eris.Wrap(err, "prices: read match table")
	}

	rows, err := prices.Compute(ctx, prices.Options{
		Dir:         cfg.Prices.Dir,
		Concurrency: cfg.Prices.Concurrency,
		PointType:   pointType,
	}, year, month, coords)
	if err != nil {
		return "", 0, err
	}

	path := filepath.Join(dir, prices.OutputName(year, month))
	f, err := os.Create(path)
	if err != nil {
		return "", 0, eris.Wrap(err, "prices: create output")
	}
	if err := prices.WriteCSV(f, rows); err != nil {
		f.Close() //nolint:errcheck
		return "", 0, err
	}
	if err := f.Close(); err != nil {
		return "", 0, eris.Wrap(err, "prices: close output")
	}
	return path, len(rows), nil
}
