package artifact

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ercot-nodemap/internal/calibrate"
	"github.com/sells-group/ercot-nodemap/internal/model"
)

func sampleBundle(key string) *Bundle {
	return &Bundle{
		Matches: []model.MatchRecord{
			{SettlementPoint: "A1_RN", Lat: 31.1702, Lon: -100.0771, Method: model.MatchHTMLContour, FacilityIndex: -1},
			{SettlementPoint: "B1_RN", Lat: 30.25, Lon: -97.75, PlantName: "Bravo, \"Big\" Solar", Method: model.MatchPrefix, FacilityIndex: 3},
		},
		UnmatchedNodes: []model.ResourceNode{{ID: "C1_RN", Substation: "CHARLIE"}},
		UnmatchedFacilities: []model.Facility{
			{ID: "1001", Name: "Delta Gas", State: "TX", County: "Harris", Lat: 29.76, Lon: -95.37, BalancingAuthority: "ERCO"},
		},
		Manifest: Manifest{
			CacheKey:      key,
			EngineVersion: "test",
			GeneratedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			RunID:         "run-1",
			Stats: model.RunStats{
				TotalNodes: 3,
				Matched:    2,
				ByMethod:   map[model.MatchMethod]int{model.MatchHTMLContour: 1, model.MatchPrefix: 1},
			},
			Calibration: calibrate.Calibration{Transform: calibrate.DefaultFallback, Method: model.CalibrationFallback},
		},
	}
}

func TestWriteMatches_Format(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMatches(&buf, sampleBundle("k").Matches))

	want := "settlement_point,lat,lon,plant_name,match_method\n" +
		"A1_RN,31.1702,-100.0771,,html_contour\n" +
		"B1_RN,30.25,-97.75,\"Bravo, \"\"Big\"\" Solar\",prefix\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteMatches_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMatches(&buf, nil))
	assert.Equal(t, "settlement_point,lat,lon,plant_name,match_method\n", buf.String())
}

func TestCommitAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "processed")
	b := sampleBundle("abc")

	require.NoError(t, Commit(dir, b))

	loaded, err := Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, loaded.Matches, 2)
	assert.Equal(t, "Bravo, \"Big\" Solar", loaded.Matches[1].PlantName)
	assert.Equal(t, model.MatchPrefix, loaded.Matches[1].Method)
	assert.Equal(t, -1, loaded.Matches[1].FacilityIndex)
	assert.Equal(t, b.UnmatchedNodes, loaded.UnmatchedNodes)
	require.Len(t, loaded.UnmatchedFacilities, 1)
	assert.Equal(t, "Delta Gas", loaded.UnmatchedFacilities[0].Name)
	assert.Equal(t, "abc", loaded.Manifest.CacheKey)
	assert.Equal(t, 1, loaded.Manifest.Stats.ByMethod[model.MatchPrefix])
	assert.Equal(t, calibrate.DefaultFallback, loaded.Manifest.Calibration.Transform)
	assert.True(t, b.Manifest.GeneratedAt.Equal(loaded.Manifest.GeneratedAt))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4, "no temp files left behind")
}

func TestCommit_ByteIdentical(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	require.NoError(t, Commit(dir1, sampleBundle("k")))
	require.NoError(t, Commit(dir2, sampleBundle("k")))

	for _, name := range []string{MatchesFile, UnmatchedNodesFile, UnmatchedFacilitiesFile, ManifestFile} {
		a, err := os.ReadFile(filepath.Join(dir1, name))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(dir2, name))
		require.NoError(t, err)
		assert.Equal(t, a, b, name)
	}
}

func TestCommit_FailureLeavesPreviousBundle(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Commit(dir, sampleBundle("old")))

	// A read-only directory makes the temp files fail to create.
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	err := Commit(dir, sampleBundle("new"))
	require.Error(t, err)

	m, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "old", m.CacheKey)
}

func TestCommit_RenameFailureRestoresPreviousTables(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Commit(dir, sampleBundle("old")))
	oldNodes, err := os.ReadFile(filepath.Join(dir, UnmatchedNodesFile))
	require.NoError(t, err)

	// A non-empty directory in place of the match table makes its rename fail
	// after both unmatched tables were moved.
	matches := filepath.Join(dir, MatchesFile)
	require.NoError(t, os.Remove(matches))
	require.NoError(t, os.MkdirAll(filepath.Join(matches, "keep"), 0o755))

	next := sampleBundle("new")
	next.UnmatchedNodes = []model.ResourceNode{{ID: "Z9_RN", Substation: "ZULU"}}
	err = Commit(dir, next)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "artifact: rename "+MatchesFile)

	gotNodes, err := os.ReadFile(filepath.Join(dir, UnmatchedNodesFile))
	require.NoError(t, err)
	assert.Equal(t, string(oldNodes), string(gotNodes))

	m, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "old", m.CacheKey)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
		assert.NotContains(t, e.Name(), ".bak")
	}
}

func TestCommit_LeavesNoBackups(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Commit(dir, sampleBundle("k1")))
	require.NoError(t, Commit(dir, sampleBundle("k2")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{MatchesFile, UnmatchedNodesFile, UnmatchedFacilitiesFile, ManifestFile}, names)
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, hit, err := Lookup(ctx, dir, "k1", true)
	require.NoError(t, err)
	assert.False(t, hit, "empty dir")

	require.NoError(t, Commit(dir, sampleBundle("k1")))

	recs, hit, err := Lookup(ctx, dir, "k1", true)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Len(t, recs, 2)

	_, hit, err = Lookup(ctx, dir, "k2", true)
	require.NoError(t, err)
	assert.False(t, hit, "key changed")

	_, hit, err = Lookup(ctx, dir, "k2", false)
	require.NoError(t, err)
	assert.True(t, hit, "existence alone when not verifying")
}

func TestLookup_NoManifest(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, WriteMatches(&buf, nil))
	require.NoError(t, os.WriteFile(filepath.Join(dir, MatchesFile), buf.Bytes(), 0o644))

	_, hit, err := Lookup(context.Background(), dir, "k", true)
	require.NoError(t, err)
	assert.False(t, hit)

	recs, hit, err := Lookup(context.Background(), dir, "k", false)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Empty(t, recs)
}

func TestReadMatches_BadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), MatchesFile)
	require.NoError(t, os.WriteFile(path, []byte("a,b\n"), 0o644))

	_, err := ReadMatches(context.Background(), path)
	assert.Error(t, err)
}

func TestReadMatches_NotFound(t *testing.T) {
	_, err := ReadMatches(context.Background(), filepath.Join(t.TempDir(), MatchesFile))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestCacheKey(t *testing.T) {
	dir := t.TempDir()
	nodes := writeInput(t, dir, "nodes.csv", "node_id,substation_name\nA,B\n")
	page := filepath.Join(dir, "page.txt")

	params := KeyParams{
		EngineVersion: "1",
		Tunables:      map[string]string{"cutoff": "0.7", "min_cp": "10"},
		Inputs: []Input{
			{Role: "node_registry", Path: nodes},
			{Role: "contour_page", Path: page},
		},
	}

	k1, digests, err := CacheKey(params)
	require.NoError(t, err)
	require.Len(t, digests, 2)
	assert.False(t, digests[0].Absent)
	assert.Len(t, digests[0].SHA256, 64)
	assert.True(t, digests[1].Absent)
	assert.Equal(t, "page.txt", digests[1].Name)

	k2, _, err := CacheKey(params)
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "stable")

	writeInput(t, dir, "page.txt", "<area>")
	k3, _, err := CacheKey(params)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3, "page appeared")

	writeInput(t, dir, "nodes.csv", "node_id,substation_name\nA,C\n")
	k4, _, err := CacheKey(params)
	require.NoError(t, err)
	assert.NotEqual(t, k3, k4, "registry content changed")

	params.Tunables["cutoff"] = "0.8"
	k5, _, err := CacheKey(params)
	require.NoError(t, err)
	assert.NotEqual(t, k4, k5, "tunable changed")

	params.EngineVersion = "2"
	k6, _, err := CacheKey(params)
	require.NoError(t, err)
	assert.NotEqual(t, k5, k6, "engine version changed")
}
