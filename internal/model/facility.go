package model

// Facility is a power plant with a known location. Names are not unique.
type Facility struct {
	Index              int     `json:"-"` // position in the source table
	ID                 string  `json:"facility_id,omitempty"`
	Name               string  `json:"facility_name"`
	NormName           string  `json:"-"`
	State              string  `json:"state,omitempty"`
	County             string  `json:"county,omitempty"`
	BalancingAuthority string  `json:"balancing_authority_code,omitempty"`
	Lat                float64 `json:"lat"`
	Lon                float64 `json:"lon"`
}
