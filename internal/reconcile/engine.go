package reconcile

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ercot-nodemap/internal/artifact"
	"github.com/sells-group/ercot-nodemap/internal/calibrate"
	"github.com/sells-group/ercot-nodemap/internal/config"
	"github.com/sells-group/ercot-nodemap/internal/match"
	"github.com/sells-group/ercot-nodemap/internal/model"
	"github.com/sells-group/ercot-nodemap/internal/monitoring"
	"github.com/sells-group/ercot-nodemap/internal/registry"
	"github.com/sells-group/ercot-nodemap/internal/sources"
	"github.com/sells-group/ercot-nodemap/internal/store"
)

// EngineVersion is part of the cache key. Bump it when output semantics change.
const EngineVersion = "1"

// RunOptions controls a single reconciliation.
type RunOptions struct {
	// ForceRebuild skips the cache lookup.
	ForceRebuild bool
}

// Result is the outcome of a run. On a cache hit only Matches is populated,
// plus Stats when the cached manifest could be read.
type Result struct {
	RunID               string
	CacheKey            string
	FromCache           bool
	Matches             []model.MatchRecord
	UnmatchedNodes      []model.ResourceNode
	UnmatchedFacilities []model.Facility
	Stats               *model.RunStats
	Calibration         *calibrate.Calibration
}

// Engine runs cached reconciliations.
type Engine struct {
	cfg     *config.Config
	store   store.Store
	loader  Loader
	metrics *monitoring.Metrics
	clock   clockwork.Clock
	newID   func() string
}

// New creates an Engine. The store and metrics are optional; a nil clock uses
// the real clock.
func New(
	cfg *config.Config,
	st store.Store,
	loader Loader,
	metrics *monitoring.Metrics,
	clock clockwork.Clock,
) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		cfg:     cfg,
		store:   st,
		loader:  loader,
		metrics: metrics,
		clock:   clock,
		newID:   uuid.NewString,
	}
}

// Calibrator builds the calibrator from config.
func (e *Engine) Calibrator() *calibrate.Calibrator {
	c := e.cfg.Calibration
	cal := calibrate.New()
	cal.MinControlPoints = c.MinControlPoints
	cal.Precision = c.Precision
	if len(c.FallbackLat) == 3 && len(c.FallbackLon) == 3 {
		copy(cal.Fallback.Lat[:], c.FallbackLat)
		copy(cal.Fallback.Lon[:], c.FallbackLon)
	}
	return cal
}

// MatchOptions builds the matcher options from config.
func (e *Engine) MatchOptions() match.Options {
	opts := match.DefaultOptions()
	opts.FuzzyCutoff = e.cfg.Match.FuzzyCutoff
	opts.MinNameLength = e.cfg.Match.MinNameLength
	if len(e.cfg.Match.Suffixes) > 0 {
		opts.Suffixes = e.cfg.Match.Suffixes
	}
	return opts
}

// KeyParams lists everything the output depends on. An unresolvable node
// registry glob hashes as absent.
func (e *Engine) KeyParams() artifact.KeyParams {
	p := e.cfg.Paths
	nodePath, err := registry.ResolveNodeRegistry(p.NodeRegistryPath())
	if err != nil {
		nodePath = p.NodeRegistryPath()
	}

	inputs := []artifact.Input{
		{Role: "node_registry", Path: nodePath},
		{Role: "facilities", Path: p.FacilitiesPath()},
	}
	if kml := p.KMLPath(); kml != "" {
		inputs = append(inputs, artifact.Input{Role: "kml", Path: kml})
	}
	for _, page := range p.ContourPagePaths() {
		inputs = append(inputs, artifact.Input{Role: "contour_page", Path: page})
	}

	cal := e.Calibrator()
	opts := e.MatchOptions()
	return artifact.KeyParams{
		EngineVersion: EngineVersion,
		Tunables: map[string]string{
			"calibration.min_control_points": strconv.Itoa(cal.MinControlPoints),
			"calibration.precision":          strconv.Itoa(cal.Precision),
			"calibration.fallback_lat":       formatCoeffs(cal.Fallback.Lat),
			"calibration.fallback_lon":       formatCoeffs(cal.Fallback.Lon),
			"match.fuzzy_cutoff":             strconv.FormatFloat(opts.FuzzyCutoff, 'f', -1, 64),
			"match.min_name_length":          strconv.Itoa(opts.MinNameLength),
			"match.suffixes":                 strings.Join(opts.Suffixes, ","),
		},
		Inputs: inputs,
	}
}

func formatCoeffs(c [3]float64) string {
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

// Run computes the cache key, returns the cached match table when it is
// current, and otherwise loads, calibrates, merges, and commits a new bundle.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	log := zap.L().With(zap.String("component", "reconcile"))
	started := e.clock.Now()
	dir := e.cfg.Paths.ProcessedDir

	key, digests, err := artifact.CacheKey(e.KeyParams())
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: compute cache key")
	}

	runID, err := e.startRun(ctx, key)
	if err != nil {
		return nil, err
	}
	res := &Result{RunID: runID, CacheKey: key}

	if !opts.ForceRebuild {
		recs, hit, err := artifact.Lookup(ctx, dir, key, e.cfg.Cache.VerifyInputs)
		if err != nil {
			return nil, e.failRun(ctx, runID, started, eris.Wrap(err, "reconcile: cache lookup"))
		}
		if hit {
			res.FromCache = true
			res.Matches = recs
			if m, err := artifact.ReadManifest(dir); err == nil {
				stats := m.Stats
				res.Stats = &stats
			} else if !errors.Is(err, artifact.ErrNotFound) {
				log.Warn("cached manifest unreadable", zap.Error(err))
			}
			log.Info("cache hit",
				zap.String("cache_key", key[:12]),
				zap.Int("matches", len(recs)),
			)
			e.finishRun(ctx, runID, model.RunStatusCached, res.Stats, started)
			return res, nil
		}
		log.Info("cache miss", zap.String("cache_key", key[:12]))
	}

	bundle, cal, err := e.build(ctx, runID, key, digests)
	if err != nil {
		return nil, e.failRun(ctx, runID, started, err)
	}
	if err := artifact.Commit(dir, bundle); err != nil {
		return nil, e.failRun(ctx, runID, started, eris.Wrap(err, "reconcile: commit artifacts"))
	}

	stats := bundle.Manifest.Stats
	res.Matches = bundle.Matches
	res.UnmatchedNodes = bundle.UnmatchedNodes
	res.UnmatchedFacilities = bundle.UnmatchedFacilities
	res.Stats = &stats
	res.Calibration = &cal

	byMethod := make([]zap.Field, 0, len(model.MatchMethods))
	for _, m := range model.MatchMethods {
		byMethod = append(byMethod, zap.Int(string(m), stats.ByMethod[m]))
	}
	log.Info("reconciled settlement points",
		zap.Int("matched", stats.Matched),
		zap.Int("total", stats.TotalNodes),
		zap.Float64("match_rate", stats.MatchRate()),
		zap.Dict("by_method", byMethod...),
		zap.Int("unmatched_facilities", stats.UnmatchedFacilities),
	)

	e.finishRun(ctx, runID, model.RunStatusComplete, &stats, started)
	return res, nil
}

func (e *Engine) build(ctx context.Context, runID, key string, digests []artifact.InputDigest) (*artifact.Bundle, calibrate.Calibration, error) {
	log := zap.L().With(zap.String("component", "reconcile"))

	in, err := e.loader.Load(ctx)
	if err != nil {
		return nil, calibrate.Calibration{}, err
	}

	// Calibration sees every shared name, registry member or not.
	calibrator := e.Calibrator()
	cal := calibrator.Calibrate(in.Pixel, in.Direct)
	projected := calibrator.Project(in.Pixel, cal)

	contour := sources.RestrictToNodes(projected, in.Nodes)
	direct := sources.RestrictToNodes(in.Direct, in.Nodes)
	log.Info("restricted map sources to registry",
		zap.Int("contour_parsed", len(projected)),
		zap.Int("contour_kept", len(contour)),
		zap.Int("kml_parsed", len(in.Direct)),
		zap.Int("kml_kept", len(direct)),
	)

	merged, err := Merge(ctx, in.Nodes, in.Facilities,
		NewPointSource(model.MatchHTMLContour, contour),
		NewPointSource(model.MatchKML, direct),
		NewFacilitySource(match.NewMatcher(in.Facilities, e.MatchOptions())),
	)
	if err != nil {
		return nil, cal, err
	}

	return &artifact.Bundle{
		Matches:             merged.Matches,
		UnmatchedNodes:      merged.UnmatchedNodes,
		UnmatchedFacilities: merged.UnmatchedFacilities,
		Manifest: artifact.Manifest{
			CacheKey:      key,
			EngineVersion: EngineVersion,
			GeneratedAt:   e.clock.Now().UTC(),
			RunID:         runID,
			Inputs:        digests,
			Stats:         merged.Stats(cal),
			Calibration:   cal,
		},
	}, cal, nil
}

func (e *Engine) startRun(ctx context.Context, key string) (string, error) {
	if e.store == nil {
		return e.newID(), nil
	}
	run, err := e.store.CreateRun(ctx, key)
	if err != nil {
		return "", eris.Wrap(err, "reconcile: create run")
	}
	return run.ID, nil
}

func (e *Engine) finishRun(ctx context.Context, runID string, status model.RunStatus, stats *model.RunStats, started time.Time) {
	finished := e.clock.Now()
	if e.store != nil {
		if err := e.store.CompleteRun(ctx, runID, status, stats); err != nil {
			zap.L().Warn("reconcile: failed to record run", zap.String("run_id", runID), zap.Error(err))
		}
	}
	if e.metrics != nil {
		e.metrics.ObserveRun(status, stats, finished.Sub(started), finished)
	}
}

func (e *Engine) failRun(ctx context.Context, runID string, started time.Time, cause error) error {
	finished := e.clock.Now()
	if e.store != nil {
		if err := e.store.FailRun(ctx, runID, cause.Error()); err != nil {
			zap.L().Warn("reconcile: failed to record run failure", zap.String("run_id", runID), zap.Error(err))
		}
	}
	if e.metrics != nil {
		e.metrics.ObserveRun(model.RunStatusFailed, nil, finished.Sub(started), finished)
	}
	return cause
}
