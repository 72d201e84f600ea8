package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ercot-nodemap/internal/fetcher"
	"github.com/sells-group/ercot-nodemap/internal/registry"
)

// eia860Member is the plant workbook inside the EIA-860 archive.
const eia860Member = "2___Plant*.xlsx"

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download registry artifacts",
	Long:  "Downloads the ERCOT NP4-160 settlement point archive and the EIA-860 plant workbook into the raw data directory.",
}

var fetchNP4160Cmd = &cobra.Command{
	Use:   "np4160",
	Short: "Download and extract the NP4-160 resource node registry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return fetchNP4160(cmd.Context(), newFetcher(), force)
	},
}

var fetchEIA860Cmd = &cobra.Command{
	Use:   "eia860",
	Short: "Download the EIA-860 plant workbook and build the facility table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return fetchEIA860(cmd.Context(), newFetcher(), force)
	},
}

func init() {
	fetchNP4160Cmd.Flags().Bool("force", false, "download even when the registry is present")
	fetchEIA860Cmd.Flags().Bool("force", false, "download even when the facility table is present")

	fetchCmd.AddCommand(fetchNP4160Cmd)
	fetchCmd.AddCommand(fetchEIA860Cmd)
	rootCmd.AddCommand(fetchCmd)
}

func newFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
	})
}

// fetchNP4160 downloads the registry archive next to the configured registry
// path and extracts the members matching its base name.
func fetchNP4160(ctx context.Context, dl fetcher.Fetcher, force bool) error {
	log := zap.L().With(zap.String("component", "fetch"), zap.String("artifact", "np4160"))
	pattern := cfg.Paths.NodeRegistryPath()

	if !force {
		if path, err := registry.ResolveNodeRegistry(pattern); err == nil {
			log.Info("registry present, skipping download", zap.String("path", path))
			return nil
		}
	}

	dir := filepath.Dir(pattern)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "fetch np4160: create directory")
	}

	archive := filepath.Join(dir, "np4_160.zip")
	n, err := dl.DownloadToFile(ctx, cfg.Fetch.NP4160URL, archive)
	if err != nil {
		return eris.Wrap(err, "fetch np4160")
	}
	log.Info("downloaded archive", zap.String("path", archive), zap.Int64("bytes", n))

	files, err := fetcher.ExtractZIPMatching(archive, filepath.Base(pattern), dir)
	if err != nil {
		return eris.Wrap(err, "fetch np4160: extract")
	}
	log.Info("extracted registry", zap.Strings("files", files))
	return nil
}

// fetchEIA860 downloads the EIA-860 archive, extracts the plant workbook, and
// converts it to the facility table.
func fetchEIA860(ctx context.Context, dl fetcher.Fetcher, force bool) error {
	log := zap.L().With(zap.String("component", "fetch"), zap.String("artifact", "eia860"))
	out := cfg.Paths.FacilitiesPath()

	if !force {
		if _, err := os.Stat(out); err == nil {
			log.Info("facility table present, skipping download", zap.String("path", out))
			return nil
		}
	}

	dir := filepath.Dir(out)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "fetch eia860: create directory")
	}

	archive := filepath.Join(dir, "eia860.zip")
	n, err := dl.DownloadToFile(ctx, cfg.Fetch.EIA860URL, archive)
	if err != nil {
		return eris.Wrap(err, "fetch eia860")
	}
	log.Info("downloaded archive", zap.String("path", archive), zap.Int64("bytes", n))

	files, err := fetcher.ExtractZIPMatching(archive, eia860Member, dir)
	if err != nil {
		return eris.Wrap(err, "fetch eia860: extract")
	}

	count, err := registry.ImportEIA860(ctx, files[0], out)
	if err != nil {
		return err
	}
	log.Info("wrote facility table", zap.String("path", out), zap.Int("plants", count))
	return nil
}
