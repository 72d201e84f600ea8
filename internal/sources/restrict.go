package sources

import "github.com/sells-group/ercot-nodemap/internal/model"

// RestrictToNodes keeps the points whose name is a registry node id.
func RestrictToNodes(points []model.GeometricPoint, nodes []model.ResourceNode) []model.GeometricPoint {
	ids := model.NodeIDs(nodes)
	out := make([]model.GeometricPoint, 0, len(points))
	for _, p := range points {
		if ids[p.Name] {
			out = append(out, p)
		}
	}
	return out
}
