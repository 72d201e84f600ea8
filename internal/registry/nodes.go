package registry

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ercot-nodemap/internal/fetcher"
	"github.com/sells-group/ercot-nodemap/internal/model"
)

const nodeRegistryHint = "nodemap fetch np4160"

// ResolveNodeRegistry expands a path or glob to a single file. NP4-160 extracts
// carry a date in their name, so the lexicographically first match is used.
func ResolveNodeRegistry(pattern string) (string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", eris.Wrapf(err, "registry: bad node registry pattern %q", pattern)
	}
	if len(matches) == 0 {
		return "", &MissingArtifactError{Artifact: ArtifactNodeRegistry, Path: pattern, Hint: nodeRegistryHint}
	}
	sort.Strings(matches)
	return matches[0], nil
}

// LoadNodes reads the node registry CSV. Node ids are deduplicated with the
// first row winning and registry order preserved. Rows without a node id are
// skipped.
func LoadNodes(ctx context.Context, path string) ([]model.ResourceNode, error) {
	log := zap.L().With(zap.String("component", "registry"))

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &MissingArtifactError{Artifact: ArtifactNodeRegistry, Path: path, Hint: nodeRegistryHint}
	}
	if err != nil {
		return nil, eris.Wrap(err, "registry: open node registry")
	}
	defer f.Close() //nolint:errcheck

	header, rows, err := fetcher.ReadCSV(ctx, f)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read node registry %s", path)
	}

	cols := fetcher.NewColumns(header)
	idCol := cols.Find("node_id", "resource_node")
	subCol := cols.Find("substation_name", "unit_substation")
	if idCol < 0 || subCol < 0 {
		return nil, eris.Errorf("registry: node registry %s needs node_id and substation_name columns, got %v", path, header)
	}

	seen := make(map[string]bool, len(rows))
	nodes := make([]model.ResourceNode, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		id := fetcher.Field(row, idCol)
		if id == "" {
			skipped++
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		nodes = append(nodes, model.ResourceNode{ID: id, Substation: fetcher.Field(row, subCol)})
	}

	log.Info("loaded node registry",
		zap.String("path", path),
		zap.Int("rows", len(rows)),
		zap.Int("nodes", len(nodes)),
		zap.Int("skipped", skipped),
	)
	return nodes, nil
}
