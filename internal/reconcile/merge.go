// Package reconcile merges ranked coordinate sources into one settlement-point
// table and runs the cached end-to-end reconciliation.
package reconcile

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ercot-nodemap/internal/calibrate"
	"github.com/sells-group/ercot-nodemap/internal/match"
	"github.com/sells-group/ercot-nodemap/internal/model"
)

// Source resolves some of the nodes it is given. A source only ever sees the
// nodes no earlier source resolved.
type Source interface {
	Name() string
	Resolve(ctx context.Context, unresolved []model.ResourceNode) ([]model.MatchRecord, error)
}

// PointSource resolves nodes whose id names a located map point.
type PointSource struct {
	Method model.MatchMethod
	Points []model.GeometricPoint
}

// NewPointSource returns a source tagging its records with method.
func NewPointSource(method model.MatchMethod, points []model.GeometricPoint) *PointSource {
	return &PointSource{Method: method, Points: points}
}

func (s *PointSource) Name() string { return string(s.Method) }

// Resolve emits records in point order. A name appearing twice resolves from
// its first point.
func (s *PointSource) Resolve(ctx context.Context, unresolved []model.ResourceNode) ([]model.MatchRecord, error) {
	want := model.NodeIDs(unresolved)
	var out []model.MatchRecord
	for _, p := range s.Points {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "reconcile: resolve points")
		}
		if !want[p.Name] {
			continue
		}
		delete(want, p.Name)
		out = append(out, model.MatchRecord{
			SettlementPoint: p.Name,
			Lat:             p.Lat,
			Lon:             p.Lon,
			PlantName:       p.PlantName,
			Method:          s.Method,
			FacilityIndex:   -1,
		})
	}
	return out, nil
}

// FacilitySource resolves nodes by matching their substation against facility names.
type FacilitySource struct {
	matcher *match.Matcher
}

// NewFacilitySource wraps a matcher built over the facility table.
func NewFacilitySource(m *match.Matcher) *FacilitySource {
	return &FacilitySource{matcher: m}
}

func (s *FacilitySource) Name() string { return "facility_match" }

// Resolve emits records in registry order.
func (s *FacilitySource) Resolve(ctx context.Context, unresolved []model.ResourceNode) ([]model.MatchRecord, error) {
	var out []model.MatchRecord
	for _, n := range unresolved {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "reconcile: resolve facilities")
		}
		res, ok := s.matcher.Match(n.Substation)
		if !ok {
			continue
		}
		out = append(out, model.MatchRecord{
			SettlementPoint: n.ID,
			Lat:             res.Facility.Lat,
			Lon:             res.Facility.Lon,
			PlantName:       res.Facility.Name,
			Method:          res.Method,
			FacilityIndex:   res.Facility.Index,
		})
	}
	return out, nil
}

// MergeResult partitions the registry into matched and unmatched nodes.
type MergeResult struct {
	Matches             []model.MatchRecord
	UnmatchedNodes      []model.ResourceNode
	UnmatchedFacilities []model.Facility
	ByMethod            map[model.MatchMethod]int
	Total               int
}

// Stats summarizes the merge together with the calibration used for it.
func (r *MergeResult) Stats(cal calibrate.Calibration) model.RunStats {
	byMethod := make(map[model.MatchMethod]int, len(r.ByMethod))
	for k, v := range r.ByMethod {
		byMethod[k] = v
	}
	return model.RunStats{
		TotalNodes:          r.Total,
		Matched:             len(r.Matches),
		ByMethod:            byMethod,
		UnmatchedNodes:      len(r.UnmatchedNodes),
		UnmatchedFacilities: len(r.UnmatchedFacilities),
		Calibration:         cal.Method,
		ControlPoints:       cal.ControlPoints,
	}
}

// Merge runs the sources in priority order. Each source receives only the
// nodes still unresolved, in registry order, and any record it returns for a
// node outside that set is dropped, so every node ends up in exactly one of
// Matches and UnmatchedNodes.
//
// A facility counts as used when a name match points at its row, or when a
// point record carries a plant name normalizing to the facility's name.
func Merge(ctx context.Context, nodes []model.ResourceNode, facilities []model.Facility, sources ...Source) (*MergeResult, error) {
	log := zap.L().With(zap.String("component", "reconcile"))

	res := &MergeResult{
		ByMethod: make(map[model.MatchMethod]int),
		Total:    len(nodes),
	}

	resolved := make(map[string]bool, len(nodes))
	usedRows := make(map[int]bool)
	usedNames := make(map[string]bool)

	for _, src := range sources {
		unresolved := make([]model.ResourceNode, 0, len(nodes)-len(resolved))
		open := make(map[string]bool, len(nodes)-len(resolved))
		for _, n := range nodes {
			if !resolved[n.ID] && !open[n.ID] {
				unresolved = append(unresolved, n)
				open[n.ID] = true
			}
		}
		if len(unresolved) == 0 {
			break
		}

		recs, err := src.Resolve(ctx, unresolved)
		if err != nil {
			return nil, eris.Wrapf(err, "reconcile: source %s", src.Name())
		}

		kept := 0
		for _, r := range recs {
			if !open[r.SettlementPoint] || resolved[r.SettlementPoint] {
				continue
			}
			if !r.Method.Valid() {
				return nil, eris.Errorf("reconcile: source %s returned unknown method %q", src.Name(), r.Method)
			}
			resolved[r.SettlementPoint] = true
			res.Matches = append(res.Matches, r)
			res.ByMethod[r.Method]++
			kept++

			if r.FacilityIndex >= 0 {
				usedRows[r.FacilityIndex] = true
			} else if r.PlantName != "" {
				if norm := match.NormalizeFacilityName(r.PlantName); norm != "" {
					usedNames[norm] = true
				}
			}
		}
		log.Info("source resolved nodes",
			zap.String("source", src.Name()),
			zap.Int("offered", len(unresolved)),
			zap.Int("returned", len(recs)),
			zap.Int("kept", kept),
		)
	}

	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if resolved[n.ID] || seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		res.UnmatchedNodes = append(res.UnmatchedNodes, n)
	}

	for _, f := range facilities {
		norm := f.NormName
		if norm == "" {
			norm = match.NormalizeFacilityName(f.Name)
		}
		if usedRows[f.Index] || (norm != "" && usedNames[norm]) {
			continue
		}
		res.UnmatchedFacilities = append(res.UnmatchedFacilities, f)
	}

	return res, nil
}
