package model

// PointKind distinguishes geographic points from image-space points.
type PointKind string

const (
	PointDirect PointKind = "direct" // lat/lon
	PointPixel  PointKind = "pixel"  // x/y on a contour map image
)

// GeometricPoint is a named location taken from a map source.
type GeometricPoint struct {
	Name      string    `json:"name"`
	Kind      PointKind `json:"kind"`
	Lat       float64   `json:"lat,omitempty"`
	Lon       float64   `json:"lon,omitempty"`
	X         float64   `json:"x,omitempty"`
	Y         float64   `json:"y,omitempty"`
	PlantName string    `json:"plant_name,omitempty"`
	Source    string    `json:"source"`
}

// PointIndex maps point names to points.
func PointIndex(points []GeometricPoint) map[string]GeometricPoint {
	idx := make(map[string]GeometricPoint, len(points))
	for _, p := range points {
		idx[p.Name] = p
	}
	return idx
}
