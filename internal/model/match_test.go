package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchMethodValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		method MatchMethod
		want   string
	}{
		{MatchHTMLContour, "html_contour"},
		{MatchKML, "kml"},
		{MatchPrefix, "prefix"},
		{MatchContains, "contains"},
		{MatchFuzzy, "fuzzy"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.method))
			assert.True(t, tt.method.Valid())
		})
	}
}

func TestMatchMethod_Invalid(t *testing.T) {
	assert.False(t, MatchMethod("geocoded").Valid())
	assert.False(t, MatchMethod("").Valid())
}

func TestMatchMethods_PriorityOrder(t *testing.T) {
	assert.Equal(t, MatchHTMLContour, MatchMethods[0])
	assert.Equal(t, MatchKML, MatchMethods[1])
	assert.Len(t, MatchMethods, 5)
}

func TestRunStats_MatchRate(t *testing.T) {
	assert.Equal(t, 0.0, RunStats{}.MatchRate())
	assert.InDelta(t, 0.75, RunStats{TotalNodes: 4, Matched: 3}.MatchRate(), 1e-9)
}

func TestNodeIDs(t *testing.T) {
	ids := NodeIDs([]ResourceNode{{ID: "A1"}, {ID: "A2"}, {ID: "A1"}})
	assert.Len(t, ids, 2)
	assert.True(t, ids["A1"])
	assert.False(t, ids["B1"])
}

func TestPointIndex_LastWins(t *testing.T) {
	idx := PointIndex([]GeometricPoint{
		{Name: "A", Lat: 1},
		{Name: "A", Lat: 2},
	})
	assert.Equal(t, 2.0, idx["A"].Lat)
}
