package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ercot-nodemap/internal/artifact"
	"github.com/sells-group/ercot-nodemap/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the match table as GeoJSON or a shapefile",
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")

		path, err := runExport(cmd.Context(), cfg.Paths.ProcessedDir, format, out)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Wrote %s\n", path)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("format", export.FormatGeoJSON, "geojson or shapefile")
	exportCmd.Flags().String("out", "", "output path (default node_coordinates.geojson or node_coordinates.shp in the processed directory)")
	rootCmd.AddCommand(exportCmd)
}

// runExport reads the committed match table from dir and writes it in format.
// Returns the path written.
func runExport(ctx context.Context, dir, format, out string) (string, error) {
	recs, err := artifact.ReadMatches(ctx, filepath.Join(dir, artifact.MatchesFile))
	if err != nil {
		return "", eris.Wrap(err, "export: read match table")
	}

	switch format {
	case export.FormatGeoJSON:
		if out == "" {
			out = filepath.Join(dir, "node_coordinates.geojson")
		}
		f, err := os.Create(out)
		if err != nil {
			return "", eris.Wrap(err, "export: create output")
		}
		if err := export.WriteGeoJSON(f, recs); err != nil {
			f.Close() //nolint:errcheck
			return "", err
		}
		if err := f.Close(); err != nil {
			return "", eris.Wrap(err, "export: close output")
		}
	case export.FormatShapefile:
		if out == "" {
			out = filepath.Join(dir, "node_coordinates.shp")
		}
		if err := export.WriteShapefile(out, recs); err != nil {
			return "", err
		}
	default:
		return "", eris.Errorf("export: unknown format %q (want geojson or shapefile)", format)
	}
	return out, nil
}
