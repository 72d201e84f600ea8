// Package export writes matched settlement points as GeoJSON or an ESRI point
// shapefile.
package export

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/ercot-nodemap/internal/model"
)

// Formats accepted by Write.
const (
	FormatGeoJSON   = "geojson"
	FormatShapefile = "shapefile"
)

// WGS84 is the projection written next to shapefiles.
const WGS84 = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// DBF field widths. Character fields are capped at 254 bytes.
const (
	settlementWidth = 64
	plantWidth      = 254
	methodWidth     = 16
	coordWidth      = 19
	coordPrecision  = 11
)

// FeatureCollection converts match records into a GeoJSON feature collection.
// Feature IDs are settlement point names; geometries are [lon, lat] points.
func FeatureCollection(recs []model.MatchRecord) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(recs))}
	for _, r := range recs {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       r.SettlementPoint,
			Geometry: geom.NewPointFlat(geom.XY, []float64{r.Lon, r.Lat}),
			Properties: map[string]interface{}{
				"settlement_point": r.SettlementPoint,
				"plant_name":       r.PlantName,
				"match_method":     string(r.Method),
			},
		})
	}
	return fc
}

// WriteGeoJSON writes recs to w as a GeoJSON FeatureCollection.
func WriteGeoJSON(w io.Writer, recs []model.MatchRecord) error {
	data, err := json.Marshal(FeatureCollection(recs))
	if err != nil {
		return eris.Wrap(err, "export: marshal geojson")
	}
	if _, err := w.Write(data); err != nil {
		return eris.Wrap(err, "export: write geojson")
	}
	return nil
}

// WriteShapefile writes recs as a point shapefile at path (with .shx, .dbf,
// and .prj siblings). The .shp extension is added when missing.
func WriteShapefile(path string, recs []model.MatchRecord) error {
	base := strings.TrimSuffix(path, ".shp")

	w, err := shp.Create(base+".shp", shp.POINT)
	if err != nil {
		return eris.Wrapf(err, "export: create shapefile %s", base)
	}
	// Close writes the headers of all three files.
	defer w.Close()

	fields := []shp.Field{
		shp.StringField("SETTLEMENT", settlementWidth),
		shp.StringField("PLANT", plantWidth),
		shp.StringField("METHOD", methodWidth),
		shp.FloatField("LAT", coordWidth, coordPrecision),
		shp.FloatField("LON", coordWidth, coordPrecision),
	}
	if err := w.SetFields(fields); err != nil {
		return eris.Wrap(err, "export: set dbf fields")
	}

	for _, r := range recs {
		row := int(w.Write(&shp.Point{X: r.Lon, Y: r.Lat}))
		values := []interface{}{
			truncate(r.SettlementPoint, settlementWidth),
			truncate(r.PlantName, plantWidth),
			string(r.Method),
			r.Lat,
			r.Lon,
		}
		for i, v := range values {
			if err := w.WriteAttribute(row, i, v); err != nil {
				return eris.Wrapf(err, "export: write attribute %s for %s", fields[i].String(), r.SettlementPoint)
			}
		}
	}

	if err := os.WriteFile(base+".prj", []byte(WGS84), 0o644); err != nil {
		return eris.Wrap(err, "export: write projection")
	}

	zap.L().Info("export: wrote shapefile",
		zap.String("path", base+".shp"),
		zap.Int("points", len(recs)),
	)
	return nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && (s[n]&0xC0) == 0x80 {
		n--
	}
	return s[:n]
}
