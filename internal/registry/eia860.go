package registry

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ercot-nodemap/internal/fetcher"
)

// EIA860Columns is the header of the facility CSV produced by ImportEIA860.
var EIA860Columns = []string{"plant_code", "plant_name", "state", "county", "lat", "lon", "ba_code", "nerc_region"}

// eia860Header maps a workbook header cell to an output column. The plant
// workbook names change slightly between releases, so matching is by substring.
func eia860Header(cell string) string {
	low := strings.ToLower(strings.TrimSpace(cell))
	switch {
	case low == "state":
		return "state"
	case strings.Contains(low, "balancing authority code"):
		return "ba_code"
	case strings.Contains(low, "latitude"):
		return "lat"
	case strings.Contains(low, "longitude"):
		return "lon"
	case strings.Contains(low, "plant code"), strings.Contains(low, "plant id"):
		return "plant_code"
	case strings.Contains(low, "plant name"):
		return "plant_name"
	case strings.Contains(low, "nerc region"):
		return "nerc_region"
	case strings.Contains(low, "county"):
		return "county"
	}
	return ""
}

// ImportEIA860 converts the EIA-860 plant workbook (2___Plant*.xlsx) into the
// facility CSV. Only plants in Texas or in the ERCO balancing authority with
// both coordinates are kept. Returns the number of plants written.
func ImportEIA860(ctx context.Context, xlsxPath, outCSV string) (int, error) {
	log := zap.L().With(zap.String("component", "registry"))

	// Row one of the plant sheet is a title; the header is on row two.
	rows, err := fetcher.ReadXLSX(xlsxPath, fetcher.XLSXOptions{SkipRows: 1})
	if err != nil {
		return 0, eris.Wrap(err, "registry: read eia860 workbook")
	}
	if len(rows) == 0 {
		return 0, eris.Errorf("registry: eia860 workbook %s is empty", xlsxPath)
	}

	pos := make(map[string]int)
	for i, cell := range rows[0] {
		if name := eia860Header(cell); name != "" {
			if _, dup := pos[name]; !dup {
				pos[name] = i
			}
		}
	}
	for _, required := range []string{"plant_name", "lat", "lon", "state"} {
		if _, ok := pos[required]; !ok {
			return 0, eris.Errorf("registry: eia860 workbook missing %s column", required)
		}
	}
	get := func(row []string, name string) string {
		i, ok := pos[name]
		if !ok {
			return ""
		}
		return fetcher.Field(row, i)
	}

	if err := os.MkdirAll(filepath.Dir(outCSV), 0o755); err != nil {
		return 0, eris.Wrap(err, "registry: create output directory")
	}
	tmp := outCSV + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, eris.Wrap(err, "registry: create facility csv")
	}
	defer os.Remove(tmp) //nolint:errcheck

	w := csv.NewWriter(out)
	if err := w.Write(EIA860Columns); err != nil {
		_ = out.Close()
		return 0, eris.Wrap(err, "registry: write header")
	}

	total, kept, noCoords := 0, 0, 0
	for _, row := range rows[1:] {
		if ctx.Err() != nil {
			_ = out.Close()
			return 0, eris.Wrap(ctx.Err(), "registry: import cancelled")
		}
		total++
		if get(row, "state") != "TX" && get(row, "ba_code") != "ERCO" {
			continue
		}
		lat, latErr := strconv.ParseFloat(get(row, "lat"), 64)
		lon, lonErr := strconv.ParseFloat(get(row, "lon"), 64)
		if latErr != nil || lonErr != nil {
			noCoords++
			continue
		}

		rec := make([]string, len(EIA860Columns))
		for i, col := range EIA860Columns {
			rec[i] = get(row, col)
		}
		rec[4] = strconv.FormatFloat(lat, 'f', -1, 64)
		rec[5] = strconv.FormatFloat(lon, 'f', -1, 64)
		if err := w.Write(rec); err != nil {
			_ = out.Close()
			return 0, eris.Wrap(err, "registry: write plant")
		}
		kept++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		_ = out.Close()
		return 0, eris.Wrap(err, "registry: flush facility csv")
	}
	if err := out.Close(); err != nil {
		return 0, eris.Wrap(err, "registry: close facility csv")
	}
	if err := os.Rename(tmp, outCSV); err != nil {
		return 0, eris.Wrap(err, "registry: rename facility csv")
	}

	log.Info("imported eia860 plants",
		zap.Int("plants", total),
		zap.Int("kept", kept),
		zap.Int("dropped_no_coords", noCoords),
		zap.String("path", outCSV),
	)
	return kept, nil
}
