package artifact

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/ercot-nodemap/internal/model"
)

// Bundle is the complete output of one reconciliation.
type Bundle struct {
	Matches             []model.MatchRecord
	UnmatchedNodes      []model.ResourceNode
	UnmatchedFacilities []model.Facility
	Manifest            Manifest
}

// Lookup returns the cached match table in dir. It is a hit when the match
// table exists and, with verify set, the manifest carries key.
func Lookup(ctx context.Context, dir, key string, verify bool) ([]model.MatchRecord, bool, error) {
	log := zap.L().With(zap.String("component", "artifact"))
	path := filepath.Join(dir, MatchesFile)

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "artifact: stat match table")
	}

	if verify {
		m, err := ReadManifest(dir)
		if errors.Is(err, ErrNotFound) {
			log.Info("cache has no manifest, rebuilding")
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		if m.CacheKey != key {
			log.Info("cache key changed, rebuilding",
				zap.String("cached", shortKey(m.CacheKey)),
				zap.String("current", shortKey(key)),
			)
			return nil, false, nil
		}
	}

	recs, err := ReadMatches(ctx, path)
	if err != nil {
		return nil, false, err
	}
	return recs, true, nil
}

func shortKey(k string) string {
	if len(k) > 12 {
		return k[:12]
	}
	return k
}

// Commit writes every table to a temporary file in dir and then renames them
// into place, the match table and manifest last. Nothing is renamed unless
// every table was written. The files being replaced are kept as hard links
// until the renames finish; if one rename fails the tables already moved are
// restored, so the directory holds either the old bundle or the new one.
func Commit(dir string, b *Bundle) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "artifact: create output directory")
	}

	manifest, err := yaml.Marshal(b.Manifest)
	if err != nil {
		return eris.Wrap(err, "artifact: encode manifest")
	}

	files := []table{
		{UnmatchedNodesFile, func(w io.Writer) error { return WriteUnmatchedNodes(w, b.UnmatchedNodes) }},
		{UnmatchedFacilitiesFile, func(w io.Writer) error { return WriteUnmatchedFacilities(w, b.UnmatchedFacilities) }},
		{MatchesFile, func(w io.Writer) error { return WriteMatches(w, b.Matches) }},
		{ManifestFile, func(w io.Writer) error {
			_, err := io.Copy(w, bytes.NewReader(manifest))
			return err
		}},
	}

	temps := make([]string, 0, len(files))
	cleanup := func() {
		for _, t := range temps {
			_ = os.Remove(t)
		}
	}

	for _, f := range files {
		tmp, err := writeTemp(dir, f.name, f.write)
		if err != nil {
			cleanup()
			return err
		}
		temps = append(temps, tmp)
	}

	backups := make([]string, len(files))
	dropBackups := func() {
		for _, bk := range backups {
			if bk != "" {
				_ = os.Remove(bk)
			}
		}
	}
	for i, f := range files {
		bk, err := backup(dir, f.name)
		if err != nil {
			cleanup()
			dropBackups()
			return err
		}
		backups[i] = bk
	}

	for i, f := range files {
		if err := os.Rename(temps[i], filepath.Join(dir, f.name)); err != nil {
			restore(dir, files[:i], backups[:i])
			cleanup()
			dropBackups()
			return eris.Wrapf(err, "artifact: rename %s", f.name)
		}
	}
	dropBackups()

	zap.L().Info("committed artifacts",
		zap.String("component", "artifact"),
		zap.String("dir", dir),
		zap.Int("matches", len(b.Matches)),
		zap.Int("unmatched_nodes", len(b.UnmatchedNodes)),
		zap.Int("unmatched_facilities", len(b.UnmatchedFacilities)),
		zap.String("cache_key", shortKey(b.Manifest.CacheKey)),
	)
	return nil
}

type table struct {
	name  string
	write func(io.Writer) error
}

// backup hard-links the current copy of name, if any, to a hidden file in dir.
// It returns "" when there is no regular file to keep.
func backup(dir, name string) (string, error) {
	target := filepath.Join(dir, name)
	info, err := os.Lstat(target)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.Mode().IsRegular()) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "artifact: stat %s", name)
	}
	bk := filepath.Join(dir, "."+name+".bak")
	_ = os.Remove(bk)
	if err := os.Link(target, bk); err != nil {
		return "", eris.Wrapf(err, "artifact: back up %s", name)
	}
	return bk, nil
}

// restore puts back the previous copies of the tables already renamed. A table
// with no previous copy is removed.
func restore(dir string, files []table, backups []string) {
	for i, f := range files {
		target := filepath.Join(dir, f.name)
		if backups[i] == "" {
			_ = os.Remove(target)
			continue
		}
		if err := os.Rename(backups[i], target); err != nil {
			zap.L().Error("restore artifact failed",
				zap.String("component", "artifact"),
				zap.String("file", f.name),
				zap.Error(err),
			)
		}
	}
}

func writeTemp(dir, name string, write func(io.Writer) error) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", eris.Wrapf(err, "artifact: create temp for %s", name)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", eris.Wrapf(err, "artifact: write %s", name)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", eris.Wrapf(err, "artifact: close %s", name)
	}
	if err := os.Chmod(f.Name(), 0o644); err != nil {
		_ = os.Remove(f.Name())
		return "", eris.Wrapf(err, "artifact: chmod %s", name)
	}
	return f.Name(), nil
}

// Load reads a whole committed bundle from dir.
func Load(ctx context.Context, dir string) (*Bundle, error) {
	var b Bundle
	var err error
	if b.Matches, err = ReadMatches(ctx, filepath.Join(dir, MatchesFile)); err != nil {
		return nil, err
	}
	if b.UnmatchedNodes, err = ReadUnmatchedNodes(ctx, filepath.Join(dir, UnmatchedNodesFile)); err != nil {
		return nil, err
	}
	if b.UnmatchedFacilities, err = ReadUnmatchedFacilities(ctx, filepath.Join(dir, UnmatchedFacilitiesFile)); err != nil {
		return nil, err
	}
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	b.Manifest = *m
	return &b, nil
}
