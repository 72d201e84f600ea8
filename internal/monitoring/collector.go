package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ercot-nodemap/internal/model"
	"github.com/sells-group/ercot-nodemap/internal/store"
)

// Snapshot holds a point-in-time view of recent reconciliation runs.
type Snapshot struct {
	Total    int     `json:"total"`
	Complete int     `json:"complete"`
	Cached   int     `json:"cached"`
	Failed   int     `json:"failed"`
	Running  int     `json:"running"`
	FailRate float64 `json:"fail_rate"`

	// Latest finished run that carried stats.
	LastMatchRate   float64                 `json:"last_match_rate"`
	LastCalibration model.CalibrationMethod `json:"last_calibration,omitempty"`
	LastRunID       string                  `json:"last_run_id,omitempty"`
	LastFinishedAt  *time.Time              `json:"last_finished_at,omitempty"`

	LookbackRuns int       `json:"lookback_runs"`
	CollectedAt  time.Time `json:"collected_at"`
}

// Collector summarizes the run ledger.
type Collector struct {
	store store.Store
	now   func() time.Time
}

// NewCollector creates a new run-ledger collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect gathers a snapshot over the most recent lookbackRuns runs.
func (c *Collector) Collect(ctx context.Context, lookbackRuns int) (*Snapshot, error) {
	if lookbackRuns <= 0 {
		lookbackRuns = 20
	}
	snap := &Snapshot{
		LookbackRuns: lookbackRuns,
		CollectedAt:  c.now().UTC(),
	}

	runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: lookbackRuns})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.Total = len(runs)
	statsSeen := false
	// Runs arrive newest first.
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.Complete++
		case model.RunStatusCached:
			snap.Cached++
		case model.RunStatusFailed:
			snap.Failed++
		case model.RunStatusRunning:
			snap.Running++
		}
		if !statsSeen && r.Stats != nil {
			statsSeen = true
			snap.LastMatchRate = r.Stats.MatchRate()
			snap.LastCalibration = r.Stats.Calibration
			snap.LastRunID = r.ID
			snap.LastFinishedAt = r.FinishedAt
		}
	}

	finished := snap.Complete + snap.Cached + snap.Failed
	if finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}

	return snap, nil
}
