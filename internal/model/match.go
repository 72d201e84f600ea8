package model

// MatchMethod records which source or strategy resolved a settlement point.
type MatchMethod string

const (
	MatchHTMLContour MatchMethod = "html_contour"
	MatchKML         MatchMethod = "kml"
	MatchPrefix      MatchMethod = "prefix"
	MatchContains    MatchMethod = "contains"
	MatchFuzzy       MatchMethod = "fuzzy"
)

// MatchMethods lists every method in priority order.
var MatchMethods = []MatchMethod{
	MatchHTMLContour,
	MatchKML,
	MatchPrefix,
	MatchContains,
	MatchFuzzy,
}

// Valid reports whether m is a known match method.
func (m MatchMethod) Valid() bool {
	for _, known := range MatchMethods {
		if m == known {
			return true
		}
	}
	return false
}

// MatchRecord is one resolved settlement point.
type MatchRecord struct {
	SettlementPoint string      `json:"settlement_point"`
	Lat             float64     `json:"lat"`
	Lon             float64     `json:"lon"`
	PlantName       string      `json:"plant_name"`
	Method          MatchMethod `json:"match_method"`

	// FacilityIndex is the facility table row behind a name match, -1 otherwise.
	FacilityIndex int `json:"-"`
}
