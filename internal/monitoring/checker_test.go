package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ercot-nodemap/internal/model"
)

func TestChecker_Check_SendsAlerts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	st := &mockStore{runs: []model.Run{
		finishedRun("r1", model.RunStatusComplete, &model.RunStats{
			TotalNodes: 10, Matched: 9, Calibration: model.CalibrationFallback,
		}),
	}}
	cfg := testMonitoringConfig()
	cfg.WebhookURL = srv.URL

	checker := NewChecker(NewCollector(st), NewAlerter(cfg), cfg, nil)
	alerts := checker.Check(context.Background())

	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCalibrationFallback, alerts[0].Type)
	assert.Equal(t, int32(1), hits.Load())
}

func TestChecker_RunTicksAndStops(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := &mockStore{runs: []model.Run{
		finishedRun("r1", model.RunStatusComplete, &model.RunStats{TotalNodes: 10, Matched: 1}),
	}}
	cfg := testMonitoringConfig()
	cfg.WebhookURL = srv.URL
	cfg.CheckIntervalSecs = 60

	clock := clockwork.NewFakeClock()
	checker := NewChecker(NewCollector(st), NewAlerter(cfg), cfg, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)
	assert.Eventually(t, func() bool { return hits.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	cfg := testMonitoringConfig()
	checker := NewChecker(NewCollector(&mockStore{}), NewAlerter(cfg), cfg, nil)
	assert.NotNil(t, checker)

	// Start and immediately cancel to verify it doesn't panic.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}
