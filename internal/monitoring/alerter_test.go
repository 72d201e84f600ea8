package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ercot-nodemap/internal/config"
	"github.com/sells-group/ercot-nodemap/internal/model"
)

func testMonitoringConfig() config.MonitoringConfig {
	return config.MonitoringConfig{
		LookbackRuns:         20,
		FailureRateThreshold: 0.2,
		MinMatchRate:         0.5,
	}
}

func healthySnapshot() *Snapshot {
	return &Snapshot{
		Total:           10,
		Complete:        8,
		Cached:          2,
		LastMatchRate:   0.9,
		LastCalibration: model.CalibrationFitted,
		LastRunID:       "run-1",
		LookbackRuns:    20,
		CollectedAt:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())
	assert.Empty(t, a.Evaluate(healthySnapshot()))
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	snap := healthySnapshot()
	snap.Complete, snap.Cached, snap.Failed = 3, 0, 2
	snap.FailRate = 0.4

	alerts := NewAlerter(testMonitoringConfig()).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Equal(t, 5, alerts[0].Details["finished"])
}

func TestAlerter_Evaluate_MinimumRunsRequired(t *testing.T) {
	snap := healthySnapshot()
	snap.Complete, snap.Cached, snap.Failed = 1, 0, 1
	snap.FailRate = 0.5

	assert.Empty(t, NewAlerter(testMonitoringConfig()).Evaluate(snap))
}

func TestAlerter_Evaluate_MatchRateLow(t *testing.T) {
	snap := healthySnapshot()
	snap.LastMatchRate = 0.3

	alerts := NewAlerter(testMonitoringConfig()).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertMatchRateLow, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "run-1")
}

func TestAlerter_Evaluate_MatchRateIgnoredWithoutRun(t *testing.T) {
	snap := healthySnapshot()
	snap.LastRunID = ""
	snap.LastMatchRate = 0
	snap.LastCalibration = ""

	assert.Empty(t, NewAlerter(testMonitoringConfig()).Evaluate(snap))
}

func TestAlerter_Evaluate_CalibrationFallback(t *testing.T) {
	snap := healthySnapshot()
	snap.LastCalibration = model.CalibrationFallback

	alerts := NewAlerter(testMonitoringConfig()).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCalibrationFallback, alerts[0].Type)
	assert.Equal(t, "low", alerts[0].Severity)
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	snap := healthySnapshot()
	snap.Complete, snap.Cached, snap.Failed = 2, 0, 3
	snap.FailRate = 0.6
	snap.LastMatchRate = 0.1
	snap.LastCalibration = model.CalibrationFallback

	alerts := NewAlerter(testMonitoringConfig()).Evaluate(snap)
	require.Len(t, alerts, 3)
	assert.Equal(t, AlertRunFailureRate, alerts[0].Type)
	assert.Equal(t, AlertMatchRateLow, alerts[1].Type)
	assert.Equal(t, AlertCalibrationFallback, alerts[2].Type)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received []Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		received = append(received, alert)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testMonitoringConfig()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	alerts := []Alert{
		{Type: AlertMatchRateLow, Severity: "medium", Message: "low"},
		{Type: AlertCalibrationFallback, Severity: "low", Message: "fallback"},
	}
	sent := a.SendAlerts(context.Background(), alerts)

	assert.Equal(t, 2, sent)
	require.Len(t, received, 2)
	assert.Equal(t, AlertMatchRateLow, received[0].Type)
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertMatchRateLow}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	cfg := testMonitoringConfig()
	cfg.WebhookURL = "http://127.0.0.1:1"
	assert.Equal(t, 0, NewAlerter(cfg).SendAlerts(context.Background(), nil))
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testMonitoringConfig()
	cfg.WebhookURL = srv.URL
	sent := NewAlerter(cfg).SendAlerts(context.Background(), []Alert{{Type: AlertMatchRateLow}})

	assert.Equal(t, 0, sent)
	assert.Equal(t, int32(1), calls.Load())
}
