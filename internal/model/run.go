package model

import "time"

// RunStatus represents the state of a reconciliation run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusCached   RunStatus = "cached"
	RunStatusFailed   RunStatus = "failed"
)

// CalibrationMethod tells whether the pixel transform was fitted or substituted.
type CalibrationMethod string

const (
	CalibrationFitted   CalibrationMethod = "fitted"
	CalibrationFallback CalibrationMethod = "fallback"
)

// RunStats summarizes the outcome of one reconciliation.
type RunStats struct {
	TotalNodes          int                 `json:"total_nodes" yaml:"total_nodes"`
	Matched             int                 `json:"matched" yaml:"matched"`
	ByMethod            map[MatchMethod]int `json:"by_method" yaml:"by_method"`
	UnmatchedNodes      int                 `json:"unmatched_nodes" yaml:"unmatched_nodes"`
	UnmatchedFacilities int                 `json:"unmatched_facilities" yaml:"unmatched_facilities"`
	Calibration         CalibrationMethod   `json:"calibration" yaml:"calibration"`
	ControlPoints       int                 `json:"control_points" yaml:"control_points"`
}

// MatchRate returns the fraction of registry nodes that were resolved.
func (s RunStats) MatchRate() float64 {
	if s.TotalNodes == 0 {
		return 0
	}
	return float64(s.Matched) / float64(s.TotalNodes)
}

// Run is an entry in the reconciliation ledger.
type Run struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	CacheKey   string     `json:"cache_key"`
	FromCache  bool       `json:"from_cache"`
	Stats      *RunStats  `json:"stats,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
