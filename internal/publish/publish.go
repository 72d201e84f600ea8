// Package publish loads reconciled settlement points into a PostGIS table.
package publish

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/ercot-nodemap/internal/db"
	"github.com/sells-group/ercot-nodemap/internal/model"
)

// Publish modes.
const (
	ModeReplace = "replace"
	ModeUpsert  = "upsert"
)

// SRID of published geometries.
const SRID = 4326

// Columns is the published column order.
var Columns = []string{"settlement_point", "lat", "lon", "plant_name", "match_method", "cache_key", "geom"}

// Options selects the target table and write mode.
type Options struct {
	Schema string
	Table  string
	Mode   string
}

// Publisher writes match tables to Postgres.
type Publisher struct {
	pool db.Pool
	opts Options
}

// New creates a Publisher. An empty mode means ModeReplace.
func New(pool db.Pool, opts Options) *Publisher {
	if opts.Mode == "" {
		opts.Mode = ModeReplace
	}
	return &Publisher{pool: pool, opts: opts}
}

// Table returns the possibly schema-qualified target table.
func (p *Publisher) Table() string {
	if p.opts.Schema == "" {
		return p.opts.Table
	}
	return p.opts.Schema + "." + p.opts.Table
}

func (p *Publisher) ident() pgx.Identifier {
	if p.opts.Schema == "" {
		return pgx.Identifier{p.opts.Table}
	}
	return pgx.Identifier{p.opts.Schema, p.opts.Table}
}

// EnsureTable creates the schema, table, and spatial index when missing.
func (p *Publisher) EnsureTable(ctx context.Context) error {
	if p.opts.Schema != "" {
		sql := "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{p.opts.Schema}.Sanitize()
		if _, err := p.pool.Exec(ctx, sql); err != nil {
			return eris.Wrapf(err, "publish: create schema %s", p.opts.Schema)
		}
	}

	table := p.ident().Sanitize()
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			settlement_point TEXT PRIMARY KEY,
			lat DOUBLE PRECISION NOT NULL,
			lon DOUBLE PRECISION NOT NULL,
			plant_name TEXT NOT NULL DEFAULT '',
			match_method TEXT NOT NULL,
			cache_key TEXT NOT NULL,
			geom geometry(Point, %d) NOT NULL
		)`, table, SRID))
	if err != nil {
		return eris.Wrapf(err, "publish: create table %s", p.Table())
	}

	index := pgx.Identifier{"idx_" + p.opts.Table + "_geom"}.Sanitize()
	_, err = p.pool.Exec(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING gist (geom)`, index, table))
	if err != nil {
		return eris.Wrapf(err, "publish: create spatial index on %s", p.Table())
	}
	return nil
}

// EncodePoint returns the EWKB encoding of a lon/lat point with SRID 4326.
func EncodePoint(lat, lon float64) ([]byte, error) {
	g := geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(SRID)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "publish: encode EWKB")
	}
	return data, nil
}

// Rows converts match records into COPY rows in Columns order.
func Rows(recs []model.MatchRecord, cacheKey string) ([][]any, error) {
	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		point, err := EncodePoint(r.Lat, r.Lon)
		if err != nil {
			return nil, eris.Wrapf(err, "publish: settlement point %s", r.SettlementPoint)
		}
		rows = append(rows, []any{r.SettlementPoint, r.Lat, r.Lon, r.PlantName, string(r.Method), cacheKey, point})
	}
	return rows, nil
}

// Publish ensures the table exists and writes recs. In replace mode the table
// ends up holding exactly recs; in upsert mode rows for other settlement
// points are left alone.
func (p *Publisher) Publish(ctx context.Context, recs []model.MatchRecord, cacheKey string) (int64, error) {
	log := zap.L().With(zap.String("component", "publish"), zap.String("table", p.Table()))

	if err := p.EnsureTable(ctx); err != nil {
		return 0, err
	}

	rows, err := Rows(recs, cacheKey)
	if err != nil {
		return 0, err
	}

	var n int64
	switch p.opts.Mode {
	case ModeReplace:
		n, err = db.ReplaceAll(ctx, p.pool, p.Table(), Columns, rows)
	case ModeUpsert:
		n, err = db.BulkUpsert(ctx, p.pool, db.UpsertConfig{
			Table:        p.Table(),
			Columns:      Columns,
			ConflictKeys: []string{"settlement_point"},
		}, rows)
	default:
		return 0, eris.Errorf("publish: unknown mode %q", p.opts.Mode)
	}
	if err != nil {
		return 0, eris.Wrap(err, "publish: write rows")
	}

	log.Info("published settlement points",
		zap.String("mode", p.opts.Mode),
		zap.Int("records", len(recs)),
		zap.Int64("rows_affected", n),
	)
	return n, nil
}
