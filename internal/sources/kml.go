// Package sources parses the geometric settlement point sources: KML placemarks
// with geographic coordinates and contour-map image maps with pixel coordinates.
package sources

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ercot-nodemap/internal/fetcher"
	"github.com/sells-group/ercot-nodemap/internal/model"
)

// SourceKML tags points read from a KML snapshot.
const SourceKML = "kml"

type kmlPlacemark struct {
	Name        string `xml:"name"`
	Description string `xml:"description"`
	Coordinates string `xml:"Point>coordinates"`
}

var plantNameRe = regexp.MustCompile(`Plant Name:</strong><br\s*/?>\s*(.+?)\s*<`)

// ParseKML reads placemarks from a KML document. Placemarks without a name or
// a parseable "lon,lat[,alt]" coordinate are skipped.
func ParseKML(ctx context.Context, r io.Reader) ([]model.GeometricPoint, error) {
	pmCh, errCh := fetcher.StreamXML[kmlPlacemark](ctx, r, "Placemark")

	var points []model.GeometricPoint
	skipped := 0
	for pm := range pmCh {
		p, ok := placemarkPoint(pm)
		if !ok {
			skipped++
			continue
		}
		points = append(points, p)
	}
	for err := range errCh {
		if err != nil {
			return nil, eris.Wrap(err, "sources: parse kml")
		}
	}

	if skipped > 0 {
		zap.L().Debug("skipped incomplete placemarks",
			zap.String("component", "sources"),
			zap.Int("skipped", skipped),
		)
	}
	return points, nil
}

// ParseKMLFile parses the KML snapshot at path. A missing file yields no points.
func ParseKMLFile(ctx context.Context, path string) ([]model.GeometricPoint, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		zap.L().Info("kml snapshot not found, skipping", zap.String("component", "sources"), zap.String("path", path))
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sources: open kml")
	}
	defer f.Close() //nolint:errcheck

	return ParseKML(ctx, f)
}

func placemarkPoint(pm kmlPlacemark) (model.GeometricPoint, bool) {
	name := strings.TrimSpace(pm.Name)
	if name == "" {
		return model.GeometricPoint{}, false
	}

	parts := strings.Split(strings.TrimSpace(pm.Coordinates), ",")
	if len(parts) < 2 {
		return model.GeometricPoint{}, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return model.GeometricPoint{}, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return model.GeometricPoint{}, false
	}

	return model.GeometricPoint{
		Name:      name,
		Kind:      model.PointDirect,
		Lat:       lat,
		Lon:       lon,
		PlantName: plantName(pm.Description),
		Source:    SourceKML,
	}, true
}

// plantName pulls the plant label out of a placemark description balloon.
func plantName(desc string) string {
	desc = strings.ReplaceAll(desc, "\n", " ")
	m := plantNameRe.FindStringSubmatch(desc)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
