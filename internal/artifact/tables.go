// Package artifact persists reconciliation output: the match table, the
// unmatched node and facility tables, and a manifest carrying the cache key.
package artifact

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ercot-nodemap/internal/fetcher"
	"github.com/sells-group/ercot-nodemap/internal/model"
)

// File names inside the processed directory.
const (
	MatchesFile             = "node_coordinates.csv"
	UnmatchedNodesFile      = "unmatched_settlement_points.csv"
	UnmatchedFacilitiesFile = "unmatched_facilities.csv"
	ManifestFile            = "manifest.yaml"
)

// Table headers.
var (
	MatchesHeader             = []string{"settlement_point", "lat", "lon", "plant_name", "match_method"}
	UnmatchedNodesHeader      = []string{"node_id", "substation_name"}
	UnmatchedFacilitiesHeader = []string{"facility_id", "facility_name", "state", "county", "lat", "lon", "balancing_authority_code"}
)

// ErrNotFound is returned by the readers when a table has not been written yet.
var ErrNotFound = errors.New("artifact: not found")

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteMatches writes the match table.
func WriteMatches(w io.Writer, recs []model.MatchRecord) error {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{r.SettlementPoint, formatFloat(r.Lat), formatFloat(r.Lon), r.PlantName, string(r.Method)})
	}
	return writeTable(w, MatchesHeader, rows)
}

// WriteUnmatchedNodes writes the unmatched node table.
func WriteUnmatchedNodes(w io.Writer, nodes []model.ResourceNode) error {
	rows := make([][]string, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, []string{n.ID, n.Substation})
	}
	return writeTable(w, UnmatchedNodesHeader, rows)
}

// WriteUnmatchedFacilities writes the unmatched facility table.
func WriteUnmatchedFacilities(w io.Writer, facilities []model.Facility) error {
	rows := make([][]string, 0, len(facilities))
	for _, f := range facilities {
		rows = append(rows, []string{f.ID, f.Name, f.State, f.County, formatFloat(f.Lat), formatFloat(f.Lon), f.BalancingAuthority})
	}
	return writeTable(w, UnmatchedFacilitiesHeader, rows)
}

func writeTable(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "artifact: write header")
	}
	if err := cw.WriteAll(rows); err != nil {
		return eris.Wrap(err, "artifact: write rows")
	}
	return nil
}

// ReadMatches reads a match table.
func ReadMatches(ctx context.Context, path string) ([]model.MatchRecord, error) {
	rows, err := readTable(ctx, path, MatchesHeader)
	if err != nil {
		return nil, err
	}
	recs := make([]model.MatchRecord, 0, len(rows))
	for i, row := range rows {
		lat, err := strconv.ParseFloat(fetcher.Field(row, 1), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "artifact: %s row %d lat", path, i+2)
		}
		lon, err := strconv.ParseFloat(fetcher.Field(row, 2), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "artifact: %s row %d lon", path, i+2)
		}
		recs = append(recs, model.MatchRecord{
			SettlementPoint: fetcher.Field(row, 0),
			Lat:             lat,
			Lon:             lon,
			PlantName:       fetcher.Field(row, 3),
			Method:          model.MatchMethod(fetcher.Field(row, 4)),
			FacilityIndex:   -1,
		})
	}
	return recs, nil
}

// ReadUnmatchedNodes reads an unmatched node table.
func ReadUnmatchedNodes(ctx context.Context, path string) ([]model.ResourceNode, error) {
	rows, err := readTable(ctx, path, UnmatchedNodesHeader)
	if err != nil {
		return nil, err
	}
	nodes := make([]model.ResourceNode, 0, len(rows))
	for _, row := range rows {
		nodes = append(nodes, model.ResourceNode{ID: fetcher.Field(row, 0), Substation: fetcher.Field(row, 1)})
	}
	return nodes, nil
}

// ReadUnmatchedFacilities reads an unmatched facility table.
func ReadUnmatchedFacilities(ctx context.Context, path string) ([]model.Facility, error) {
	rows, err := readTable(ctx, path, UnmatchedFacilitiesHeader)
	if err != nil {
		return nil, err
	}
	out := make([]model.Facility, 0, len(rows))
	for i, row := range rows {
		lat, _ := strconv.ParseFloat(fetcher.Field(row, 4), 64)
		lon, _ := strconv.ParseFloat(fetcher.Field(row, 5), 64)
		out = append(out, model.Facility{
			Index:              i,
			ID:                 fetcher.Field(row, 0),
			Name:               fetcher.Field(row, 1),
			State:              fetcher.Field(row, 2),
			County:             fetcher.Field(row, 3),
			Lat:                lat,
			Lon:                lon,
			BalancingAuthority: fetcher.Field(row, 6),
		})
	}
	return out, nil
}

func readTable(ctx context.Context, path string, want []string) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrNotFound, "artifact: %s", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	header, rows, err := fetcher.ReadCSV(ctx, f)
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: read %s", path)
	}
	if len(header) < len(want) {
		return nil, eris.Errorf("artifact: %s has header %v, want %v", path, header, want)
	}
	for i, h := range want {
		if header[i] != h {
			return nil, eris.Errorf("artifact: %s has header %v, want %v", path, header, want)
		}
	}
	return rows, nil
}
