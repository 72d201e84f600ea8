package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ercot-nodemap/internal/artifact"
	"github.com/sells-group/ercot-nodemap/internal/db"
	"github.com/sells-group/ercot-nodemap/internal/publish"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Load the match table into PostGIS",
	Long:  "Writes the committed match table to a PostGIS table with SRID 4326 point geometries. Run reconcile first.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
			cfg.Publish.Mode = mode
		}
		if err := cfg.Validate("publish"); err != nil {
			return err
		}

		dir := cfg.Paths.ProcessedDir
		m, err := artifact.ReadManifest(dir)
		if err != nil {
			return eris.Wrap(err, "publish: read manifest")
		}
		recs, err := artifact.ReadMatches(ctx, filepath.Join(dir, artifact.MatchesFile))
		if err != nil {
			return eris.Wrap(err, "publish: read match table")
		}

		pool, err := db.Connect(ctx, cfg.Publish.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		p := publish.New(pool, publish.Options{
			Schema: cfg.Publish.Schema,
			Table:  cfg.Publish.Table,
			Mode:   cfg.Publish.Mode,
		})
		n, err := p.Publish(ctx, recs, m.CacheKey)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Published %d settlement points to %s (%s)\n", n, p.Table(), cfg.Publish.Mode)
		return nil
	},
}

func init() {
	publishCmd.Flags().String("mode", "", "replace or upsert (default from config)")
	rootCmd.AddCommand(publishCmd)
}
