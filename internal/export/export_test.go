package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/ercot-nodemap/internal/model"
)

func testRecords() []model.MatchRecord {
	return []model.MatchRecord{
		{SettlementPoint: "A1", Lat: 32.1, Lon: -104.9, Method: model.MatchHTMLContour, FacilityIndex: -1},
		{SettlementPoint: "B2_UNIT1", Lat: 30.25, Lon: -97.75, PlantName: "Bravo Solar", Method: model.MatchFuzzy},
	}
}

func TestWriteGeoJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGeoJSON(&buf, testRecords()))

	var fc geojson.FeatureCollection
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fc))
	require.Len(t, fc.Features, 2)

	f := fc.Features[1]
	assert.Equal(t, "B2_UNIT1", f.ID)
	assert.Equal(t, "Bravo Solar", f.Properties["plant_name"])
	assert.Equal(t, "fuzzy", f.Properties["match_method"])

	p, ok := f.Geometry.(*geom.Point)
	require.True(t, ok)
	assert.InDelta(t, -97.75, p.X(), 1e-12)
	assert.InDelta(t, 30.25, p.Y(), 1e-12)
}

func TestWriteGeoJSON_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGeoJSON(&buf, nil))
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, buf.String())
}

func attr(r *shp.Reader, row, field int) string {
	return strings.TrimRight(r.ReadAttribute(row, field), "\x00 ")
}

func TestWriteShapefile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nodes")
	require.NoError(t, WriteShapefile(path, testRecords()))

	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj"} {
		assert.FileExists(t, path+ext)
	}
	prj, err := os.ReadFile(path + ".prj")
	require.NoError(t, err)
	assert.Contains(t, string(prj), "WGS_1984")

	r, err := shp.Open(path + ".shp")
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	names := make([]string, 0)
	for _, f := range r.Fields() {
		names = append(names, f.String())
	}
	assert.Equal(t, []string{"SETTLEMENT", "PLANT", "METHOD", "LAT", "LON"}, names)

	var points []*shp.Point
	for r.Next() {
		_, s := r.Shape()
		p, ok := s.(*shp.Point)
		require.True(t, ok)
		points = append(points, p)
	}
	require.Len(t, points, 2)
	assert.InDelta(t, -104.9, points[0].X, 1e-12)
	assert.InDelta(t, 32.1, points[0].Y, 1e-12)

	assert.Equal(t, "A1", attr(r, 0, 0))
	assert.Equal(t, "", attr(r, 0, 1))
	assert.Equal(t, "html_contour", attr(r, 0, 2))
	assert.Equal(t, "B2_UNIT1", attr(r, 1, 0))
	assert.Equal(t, "Bravo Solar", attr(r, 1, 1))

	lat, err := strconv.ParseFloat(attr(r, 1, 3), 64)
	require.NoError(t, err)
	assert.InDelta(t, 30.25, lat, 1e-9)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	// "é" is two bytes; never split it.
	assert.Equal(t, "a", truncate("aé", 2))
}
