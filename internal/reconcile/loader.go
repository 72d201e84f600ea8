package reconcile

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/ercot-nodemap/internal/config"
	"github.com/sells-group/ercot-nodemap/internal/model"
	"github.com/sells-group/ercot-nodemap/internal/registry"
	"github.com/sells-group/ercot-nodemap/internal/sources"
)

// Inputs is everything a reconciliation reads, before any filtering.
type Inputs struct {
	Nodes      []model.ResourceNode
	Facilities []model.Facility
	Direct     []model.GeometricPoint
	Pixel      []model.GeometricPoint
}

// Loader reads the inputs of a run.
type Loader interface {
	Load(ctx context.Context) (*Inputs, error)
}

// FileLoader reads the inputs from the configured paths.
type FileLoader struct {
	Paths config.PathsConfig
}

// NewFileLoader returns a loader over paths.
func NewFileLoader(paths config.PathsConfig) *FileLoader {
	return &FileLoader{Paths: paths}
}

// Load checks the required artifacts before parsing anything. A missing
// registry or facility file is a *registry.MissingArtifactError; missing map
// sources are skipped.
func (l *FileLoader) Load(ctx context.Context) (*Inputs, error) {
	log := zap.L().With(zap.String("component", "reconcile.loader"))

	nodePath, err := registry.CheckArtifacts(l.Paths.NodeRegistryPath(), l.Paths.FacilitiesPath())
	if err != nil {
		return nil, err
	}

	in := &Inputs{}
	if in.Nodes, err = registry.LoadNodes(ctx, nodePath); err != nil {
		return nil, err
	}
	if in.Facilities, err = registry.LoadFacilities(ctx, l.Paths.FacilitiesPath()); err != nil {
		return nil, err
	}
	if in.Direct, err = sources.ParseKMLFile(ctx, l.Paths.KMLPath()); err != nil {
		return nil, err
	}
	if in.Pixel, err = sources.ParseImageMaps(ctx, l.Paths.ContourPagePaths()); err != nil {
		return nil, err
	}

	log.Info("loaded inputs",
		zap.Int("nodes", len(in.Nodes)),
		zap.Int("facilities", len(in.Facilities)),
		zap.Int("direct_points", len(in.Direct)),
		zap.Int("pixel_points", len(in.Pixel)),
	)
	return in, nil
}
