// Package calibrate converts contour-map pixel positions into geographic
// coordinates with an affine transform fitted on ground-control points.
package calibrate

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/ercot-nodemap/internal/model"
)

// AffineTransform maps pixel (px, py) to geographic coordinates:
//
//	lat = Lat[0] + Lat[1]*px + Lat[2]*py
//	lon = Lon[0] + Lon[1]*px + Lon[2]*py
type AffineTransform struct {
	Lat [3]float64 `json:"lat" yaml:"lat"`
	Lon [3]float64 `json:"lon" yaml:"lon"`
}

// Apply transforms one pixel position.
func (t AffineTransform) Apply(px, py float64) (lat, lon float64) {
	lat = t.Lat[0] + t.Lat[1]*px + t.Lat[2]*py
	lon = t.Lon[0] + t.Lon[1]*px + t.Lon[2]*py
	return lat, lon
}

// DefaultFallback is the transform used when too few control points exist.
// It was calibrated from the 600x600 ERCOT contour map against the 2019 KML.
var DefaultFallback = AffineTransform{
	Lat: [3]float64{36.796687, 0.000005, -0.018760},
	Lon: [3]float64{-107.009848, 0.023113, -0.000004},
}

// ControlPoint is a node known in both pixel and geographic space.
type ControlPoint struct {
	Name string
	X, Y float64
	Lat  float64
	Lon  float64
}

// ControlPoints pairs pixel and direct points by name, sorted by name. When the
// direct source repeats a name the last one wins.
func ControlPoints(pixel, direct []model.GeometricPoint) []ControlPoint {
	geo := model.PointIndex(direct)

	var cps []ControlPoint
	seen := make(map[string]bool, len(pixel))
	for _, p := range pixel {
		g, ok := geo[p.Name]
		if !ok || seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		cps = append(cps, ControlPoint{Name: p.Name, X: p.X, Y: p.Y, Lat: g.Lat, Lon: g.Lon})
	}
	sort.Slice(cps, func(i, j int) bool { return cps[i].Name < cps[j].Name })
	return cps
}

// Fit solves the two least-squares problems target = c0 + c1*px + c2*py for
// latitude and longitude independently.
func Fit(cps []ControlPoint) (AffineTransform, error) {
	n := len(cps)
	if n < 3 {
		return AffineTransform{}, eris.Errorf("calibrate: need at least 3 control points, got %d", n)
	}
	if collinear(cps) {
		return AffineTransform{}, eris.New("calibrate: control points are collinear")
	}

	A := mat.NewDense(n, 3, nil)
	latVec := mat.NewVecDense(n, nil)
	lonVec := mat.NewVecDense(n, nil)
	for i, cp := range cps {
		A.Set(i, 0, 1)
		A.Set(i, 1, cp.X)
		A.Set(i, 2, cp.Y)
		latVec.SetVec(i, cp.Lat)
		lonVec.SetVec(i, cp.Lon)
	}

	var qr mat.QR
	qr.Factorize(A)

	var latParams, lonParams mat.VecDense
	if err := qr.SolveVecTo(&latParams, false, latVec); err != nil {
		return AffineTransform{}, eris.Wrap(err, "calibrate: solve latitude")
	}
	if err := qr.SolveVecTo(&lonParams, false, lonVec); err != nil {
		return AffineTransform{}, eris.Wrap(err, "calibrate: solve longitude")
	}

	var t AffineTransform
	for i := range 3 {
		t.Lat[i] = latParams.AtVec(i)
		t.Lon[i] = lonParams.AtVec(i)
	}
	for _, c := range append(t.Lat[:], t.Lon[:]...) {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return AffineTransform{}, eris.New("calibrate: degenerate control points")
		}
	}
	return t, nil
}

// collinear reports whether every pixel position lies on one line, which leaves
// the system rank deficient.
func collinear(cps []ControlPoint) bool {
	p0 := cps[0]
	var dx, dy float64
	found := false
	for _, p := range cps[1:] {
		if p.X != p0.X || p.Y != p0.Y {
			dx, dy = p.X-p0.X, p.Y-p0.Y
			found = true
			break
		}
	}
	if !found {
		return true
	}
	tol := 1e-9 * (dx*dx + dy*dy)
	for _, p := range cps[1:] {
		if math.Abs(dx*(p.Y-p0.Y)-dy*(p.X-p0.X)) > tol {
			return false
		}
	}
	return true
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
