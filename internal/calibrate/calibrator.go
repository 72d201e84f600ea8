package calibrate

import (
	"go.uber.org/zap"

	"github.com/sells-group/ercot-nodemap/internal/model"
)

// Calibrator decides between a fitted transform and the fallback.
type Calibrator struct {
	MinControlPoints int
	Fallback         AffineTransform
	Precision        int
}

// New returns a Calibrator with the ERCOT defaults.
func New() *Calibrator {
	return &Calibrator{MinControlPoints: 10, Fallback: DefaultFallback, Precision: 4}
}

// Calibration is the transform chosen for a run.
type Calibration struct {
	Transform     AffineTransform         `json:"transform" yaml:"transform"`
	Method        model.CalibrationMethod `json:"method" yaml:"method"`
	ControlPoints int                     `json:"control_points" yaml:"control_points"`
}

// Calibrate fits the transform on the names shared by the pixel and direct
// sources. With fewer than MinControlPoints shared names, or when the fit is
// singular, the fallback transform is used. Falling back is never an error.
// Collinear control points are not solved for a minimum-norm fit the way a
// general least-squares routine would; they fall back like too few points.
func (c *Calibrator) Calibrate(pixel, direct []model.GeometricPoint) Calibration {
	log := zap.L().With(zap.String("component", "calibrate"))

	cps := ControlPoints(pixel, direct)
	cal := Calibration{Transform: c.Fallback, Method: model.CalibrationFallback, ControlPoints: len(cps)}

	if len(cps) < c.MinControlPoints {
		log.Warn("too few control points, using fallback transform",
			zap.Int("control_points", len(cps)),
			zap.Int("required", c.MinControlPoints),
		)
		return cal
	}

	t, err := Fit(cps)
	if err != nil {
		log.Warn("transform fit failed, using fallback transform",
			zap.Int("control_points", len(cps)),
			zap.Error(err),
		)
		return cal
	}

	cal.Transform = t
	cal.Method = model.CalibrationFitted
	log.Info("fitted pixel transform",
		zap.String("method", string(cal.Method)),
		zap.Int("control_points", len(cps)),
		zap.Float64s("lat", t.Lat[:]),
		zap.Float64s("lon", t.Lon[:]),
	)
	return cal
}

// Project converts pixel points to geographic coordinates rounded to the
// calibrator's precision. Input order is kept.
func (c *Calibrator) Project(points []model.GeometricPoint, cal Calibration) []model.GeometricPoint {
	out := make([]model.GeometricPoint, len(points))
	for i, p := range points {
		lat, lon := cal.Transform.Apply(p.X, p.Y)
		p.Lat = Round(lat, c.Precision)
		p.Lon = Round(lon, c.Precision)
		out[i] = p
	}
	return out
}
