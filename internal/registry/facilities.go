package registry

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ercot-nodemap/internal/fetcher"
	"github.com/sells-group/ercot-nodemap/internal/match"
	"github.com/sells-group/ercot-nodemap/internal/model"
)

const facilitiesHint = "nodemap fetch eia860"

// LoadFacilities reads the facility CSV. Column names follow either the
// facility vocabulary (facility_name, lat, lon) or the EIA-860 extract
// (plant_name, latitude, longitude, ba_code). Rows whose coordinates do not
// parse are skipped.
func LoadFacilities(ctx context.Context, path string) ([]model.Facility, error) {
	log := zap.L().With(zap.String("component", "registry"))

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &MissingArtifactError{Artifact: ArtifactFacilities, Path: path, Hint: facilitiesHint}
	}
	if err != nil {
		return nil, eris.Wrap(err, "registry: open facility registry")
	}
	defer f.Close() //nolint:errcheck

	header, rows, err := fetcher.ReadCSV(ctx, f)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read facility registry %s", path)
	}

	cols := fetcher.NewColumns(header)
	var (
		nameCol   = cols.Find("facility_name", "plant_name")
		latCol    = cols.Find("lat", "latitude")
		lonCol    = cols.Find("lon", "longitude")
		idCol     = cols.Find("facility_id", "plant_code")
		stateCol  = cols.Find("state")
		countyCol = cols.Find("county")
		baCol     = cols.Find("balancing_authority_code", "ba_code")
	)
	if nameCol < 0 || latCol < 0 || lonCol < 0 {
		return nil, eris.Errorf("registry: facility registry %s needs name, lat and lon columns, got %v", path, header)
	}

	facilities := make([]model.Facility, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		lat, latErr := strconv.ParseFloat(fetcher.Field(row, latCol), 64)
		lon, lonErr := strconv.ParseFloat(fetcher.Field(row, lonCol), 64)
		if latErr != nil || lonErr != nil {
			skipped++
			continue
		}

		name := fetcher.Field(row, nameCol)
		facilities = append(facilities, model.Facility{
			Index:              len(facilities),
			ID:                 fetcher.Field(row, idCol),
			Name:               name,
			NormName:           match.NormalizeFacilityName(name),
			State:              fetcher.Field(row, stateCol),
			County:             fetcher.Field(row, countyCol),
			BalancingAuthority: fetcher.Field(row, baCol),
			Lat:                lat,
			Lon:                lon,
		})
	}

	if skipped > 0 {
		log.Debug("skipped facilities without coordinates", zap.Int("skipped", skipped))
	}
	log.Info("loaded facility registry",
		zap.String("path", path),
		zap.Int("facilities", len(facilities)),
	)
	return facilities, nil
}

// CheckArtifacts verifies that both required inputs exist before any parsing
// starts. The node registry may be a glob.
func CheckArtifacts(nodePattern, facilitiesPath string) (string, error) {
	nodePath, err := ResolveNodeRegistry(nodePattern)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(facilitiesPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &MissingArtifactError{Artifact: ArtifactFacilities, Path: facilitiesPath, Hint: facilitiesHint}
		}
		return "", eris.Wrap(err, "registry: stat facility registry")
	}
	return nodePath, nil
}
