// Package prices computes the monthly maximum real-time settlement point
// price per resource node and joins it with reconciled coordinates.
package prices

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ercot-nodemap/internal/fetcher"
	"github.com/sells-group/ercot-nodemap/internal/model"
)

// ResourceNode is the settlement point type kept by default.
const ResourceNode = "RN"

// Header of the joined output table.
var Header = []string{"settlement_point", "lat", "lon", "plant_name", "match_method", "max_lmp"}

// ErrNoFiles is returned when a month has no daily price files.
var ErrNoFiles = errors.New("prices: no RT SPP files")

// MaxPrice is the highest price seen for one settlement point.
type MaxPrice struct {
	SettlementPoint string
	MaxLMP          float64
}

// NodePrice is a reconciled settlement point with its monthly maximum price.
type NodePrice struct {
	model.MatchRecord
	MaxLMP float64
}

// Options configures a monthly computation.
type Options struct {
	Dir         string
	Concurrency int
	// PointType filters settlementPointType; empty keeps every type.
	PointType string
}

// MonthDir returns <dir>/<year>/<MM>.
func MonthDir(dir string, year, month int) string {
	return filepath.Join(dir, strconv.Itoa(year), fmt.Sprintf("%02d", month))
}

// OutputName returns the file name of a joined month table.
func OutputName(year, month int) string {
	return fmt.Sprintf("max_lmp_%d_%02d.csv", year, month)
}

// MonthFiles lists the daily rt_spp_*.csv files for a month, sorted.
func MonthFiles(dir string, year, month int) ([]string, error) {
	monthDir := MonthDir(dir, year, month)
	files, err := filepath.Glob(filepath.Join(monthDir, "rt_spp_*.csv"))
	if err != nil {
		return nil, eris.Wrapf(err, "prices: glob %s", monthDir)
	}
	if len(files) == 0 {
		return nil, eris.Wrapf(ErrNoFiles, "prices: %s", monthDir)
	}
	sort.Strings(files)
	return files, nil
}

// MaxByNode reads files in parallel and returns the maximum price per
// settlement point, sorted by settlement point. Unparseable prices are skipped.
func MaxByNode(ctx context.Context, files []string, pointType string, concurrency int) ([]MaxPrice, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	perFile := make([]map[string]float64, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, path := range files {
		g.Go(func() error {
			m, err := readFile(gctx, path, pointType)
			if err != nil {
				return err
			}
			perFile[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]float64)
	for _, m := range perFile {
		for sp, v := range m {
			if cur, ok := merged[sp]; !ok || v > cur {
				merged[sp] = v
			}
		}
	}

	out := make([]MaxPrice, 0, len(merged))
	for sp, v := range merged {
		out = append(out, MaxPrice{SettlementPoint: sp, MaxLMP: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SettlementPoint < out[j].SettlementPoint })
	return out, nil
}

func readFile(ctx context.Context, path, pointType string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "prices: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	header, rows, err := fetcher.ReadCSV(ctx, f)
	if err != nil {
		return nil, eris.Wrapf(err, "prices: read %s", path)
	}

	cols := fetcher.NewColumns(header)
	spCol := cols.Find("settlementPoint", "SettlementPointName")
	typeCol := cols.Find("settlementPointType", "SettlementPointType")
	priceCol := cols.Find("settlementPointPrice", "SettlementPointPrice")
	if spCol < 0 || priceCol < 0 || (pointType != "" && typeCol < 0) {
		return nil, eris.Errorf("prices: %s: missing settlement point columns", path)
	}

	out := make(map[string]float64)
	var skipped int
	for _, row := range rows {
		if pointType != "" && fetcher.Field(row, typeCol) != pointType {
			continue
		}
		sp := fetcher.Field(row, spCol)
		v, err := strconv.ParseFloat(fetcher.Field(row, priceCol), 64)
		if sp == "" || err != nil || math.IsNaN(v) {
			skipped++
			continue
		}
		if cur, ok := out[sp]; !ok || v > cur {
			out[sp] = v
		}
	}

	if skipped > 0 {
		zap.L().Debug("prices: skipped rows", zap.String("file", path), zap.Int("skipped", skipped))
	}
	return out, nil
}

// Join keeps the coordinates that have a price, in coordinate order.
func Join(coords []model.MatchRecord, maxes []MaxPrice) []NodePrice {
	byNode := make(map[string]float64, len(maxes))
	for _, m := range maxes {
		byNode[m.SettlementPoint] = m.MaxLMP
	}
	out := make([]NodePrice, 0, len(coords))
	for _, c := range coords {
		if v, ok := byNode[c.SettlementPoint]; ok {
			out = append(out, NodePrice{MatchRecord: c, MaxLMP: v})
		}
	}
	return out
}

// Compute loads a month of prices and joins it with coords.
func Compute(ctx context.Context, opts Options, year, month int, coords []model.MatchRecord) ([]NodePrice, error) {
	if month < 1 || month > 12 {
		return nil, eris.Errorf("prices: month %d out of range", month)
	}
	files, err := MonthFiles(opts.Dir, year, month)
	if err != nil {
		return nil, err
	}
	maxes, err := MaxByNode(ctx, files, opts.PointType, opts.Concurrency)
	if err != nil {
		return nil, err
	}
	joined := Join(coords, maxes)

	zap.L().Info("prices: computed monthly maximum",
		zap.Int("year", year),
		zap.Int("month", month),
		zap.Int("files", len(files)),
		zap.Int("priced_nodes", len(maxes)),
		zap.Int("joined", len(joined)),
	)
	return joined, nil
}

// WriteCSV writes the joined table.
func WriteCSV(w io.Writer, rows []NodePrice) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return eris.Wrap(err, "prices: write header")
	}
	for _, r := range rows {
		rec := []string{
			r.SettlementPoint,
			strconv.FormatFloat(r.Lat, 'f', -1, 64),
			strconv.FormatFloat(r.Lon, 'f', -1, 64),
			r.PlantName,
			string(r.Method),
			strconv.FormatFloat(r.MaxLMP, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "prices: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "prices: flush")
}
