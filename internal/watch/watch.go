// Package watch rebuilds the reconciliation when an input artifact changes.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ercot-nodemap/internal/config"
)

// RebuildFunc runs one reconciliation. Errors are logged and watching goes on.
type RebuildFunc func(ctx context.Context) error

// Patterns returns the input paths a rebuild depends on. The node registry
// entry may be a glob.
func Patterns(p config.PathsConfig) []string {
	out := []string{p.NodeRegistryPath(), p.FacilitiesPath()}
	if kml := p.KMLPath(); kml != "" {
		out = append(out, kml)
	}
	out = append(out, p.ContourPagePaths()...)

	for i := range out {
		out[i] = filepath.Clean(out[i])
	}
	return out
}

// Watcher debounces filesystem events on the input artifacts and runs
// rebuilds one at a time.
type Watcher struct {
	patterns []string
	debounce time.Duration
	clock    clockwork.Clock
	rebuild  RebuildFunc
	fsw      *fsnotify.Watcher
}

// New creates a Watcher. A nil clock uses the real clock.
func New(patterns []string, debounce time.Duration, clock clockwork.Clock, rebuild RebuildFunc) *Watcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Watcher{
		patterns: patterns,
		debounce: debounce,
		clock:    clock,
		rebuild:  rebuild,
	}
}

// Relevant reports whether path is an input artifact.
func (w *Watcher) Relevant(path string) bool {
	path = filepath.Clean(path)
	for _, p := range w.patterns {
		if ok, _ := filepath.Match(p, path); ok {
			return true
		}
	}
	return false
}

// relevantDir reports whether a created directory can hold input artifacts,
// either directly or through directories not created yet.
func (w *Watcher) relevantDir(path string) bool {
	path = filepath.Clean(path)
	for _, p := range w.patterns {
		for d := filepath.Dir(p); ; d = filepath.Dir(d) {
			if ok, _ := filepath.Match(d, path); ok {
				return true
			}
			if parent := filepath.Dir(d); parent == d {
				break
			}
		}
	}
	return false
}

// Dirs returns the existing directories to watch, sorted. Each input directory
// is watched when it exists. A directory part containing a glob contributes
// every existing match, and the nearest existing ancestor of the static part
// is always watched so directories created later are noticed.
func (w *Watcher) Dirs() []string {
	seen := make(map[string]bool)
	add := func(d string) {
		if isDir(d) {
			seen[d] = true
		}
	}
	for _, p := range w.patterns {
		dir := filepath.Dir(p)
		if hasMeta(dir) {
			matches, _ := filepath.Glob(dir)
			for _, m := range matches {
				add(m)
			}
		} else {
			add(dir)
		}
		if anc, ok := existingAncestor(staticPrefix(dir)); ok {
			seen[anc] = true
		}
	}

	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "watch"))

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "watch: create watcher")
	}
	defer func() { _ = fsw.Close() }()
	w.fsw = fsw

	dirs := w.Dirs()
	if len(dirs) == 0 {
		return eris.New("watch: no input directory exists")
	}
	for _, d := range dirs {
		if err := fsw.Add(d); err != nil {
			return eris.Wrapf(err, "watch: add %s", d)
		}
		log.Info("watching directory", zap.String("dir", d))
	}

	return w.loop(ctx, fsw.Events, fsw.Errors)
}

func (w *Watcher) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) error {
	log := zap.L().With(zap.String("component", "watch"))

	var timer clockwork.Timer
	var fire <-chan time.Time
	var pending []string

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !w.handle(ev) {
				continue
			}
			pending = append(pending, ev.Name)
			if timer != nil {
				timer.Stop()
			}
			timer = w.clock.NewTimer(w.debounce)
			fire = timer.Chan()

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			log.Warn("watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			timer = nil
			log.Info("inputs changed, rebuilding", zap.Strings("paths", dedupe(pending)))
			pending = pending[:0]
			if err := w.rebuild(ctx); err != nil {
				log.Error("rebuild failed", zap.Error(err))
			}
		}
	}
}

// handle reports whether ev should schedule a rebuild. New directories that
// can hold inputs are added to the watch list together with any relevant
// subdirectories they already contain.
func (w *Watcher) handle(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	if ev.Op.Has(fsnotify.Create) && w.relevantDir(ev.Name) && isDir(ev.Name) {
		w.addTree(ev.Name)
		return true
	}
	return w.Relevant(ev.Name)
}

func (w *Watcher) addTree(dir string) {
	if w.fsw != nil {
		if err := w.fsw.Add(dir); err != nil {
			zap.L().Warn("watch: add directory", zap.String("dir", dir), zap.Error(err))
			return
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		sub := filepath.Join(dir, e.Name())
		if e.IsDir() && w.relevantDir(sub) {
			w.addTree(sub)
		}
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// existingAncestor returns dir or its closest ancestor that exists.
func existingAncestor(dir string) (string, bool) {
	for {
		if isDir(dir) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func hasMeta(path string) bool {
	return strings.ContainsAny(path, `*?[\`)
}

func staticPrefix(dir string) string {
	for hasMeta(dir) {
		dir = filepath.Dir(dir)
	}
	return dir
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
