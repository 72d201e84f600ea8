package main

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ercot-nodemap/internal/monitoring"
	"github.com/sells-group/ercot-nodemap/internal/reconcile"
	"github.com/sells-group/ercot-nodemap/internal/store"
)

var (
	metricsOnce sync.Once
	appMetrics  *monitoring.Metrics
)

// metrics returns the process-wide metrics, registered with the default registry.
func metrics() *monitoring.Metrics {
	metricsOnce.Do(func() { appMetrics = monitoring.NewMetrics() })
	return appMetrics
}

// initStore opens and migrates the run ledger.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.NewSQLite(cfg.Store.SQLitePath, nil)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// engineEnv holds the dependencies of a reconciliation engine.
type engineEnv struct {
	Engine *reconcile.Engine
	Store  store.Store
}

// Close releases the run ledger.
func (e *engineEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// initEngine validates config and wires the engine to the ledger and metrics.
func initEngine(ctx context.Context) (*engineEnv, error) {
	if err := cfg.Validate("reconcile"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	loader := reconcile.NewFileLoader(cfg.Paths)
	eng := reconcile.New(cfg, st, loader, metrics(), nil)
	return &engineEnv{Engine: eng, Store: st}, nil
}
