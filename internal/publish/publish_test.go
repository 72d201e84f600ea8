package publish

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/ercot-nodemap/internal/model"
)

func testRecords() []model.MatchRecord {
	return []model.MatchRecord{
		{SettlementPoint: "A1", Lat: 32.1, Lon: -104.9, Method: model.MatchHTMLContour, FacilityIndex: -1},
		{SettlementPoint: "B2", Lat: 30.5, Lon: -97.5, PlantName: "North Plant", Method: model.MatchPrefix},
	}
}

func expectEnsureTable(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "ercot"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "ercot"."node_coordinates"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS "idx_node_coordinates_geom" ON "ercot"."node_coordinates" USING gist \(geom\)`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
}

func TestEncodePoint(t *testing.T) {
	data, err := EncodePoint(32.1, -104.9)
	require.NoError(t, err)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	p, ok := g.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, SRID, p.SRID())
	assert.InDelta(t, -104.9, p.X(), 1e-12)
	assert.InDelta(t, 32.1, p.Y(), 1e-12)
}

func TestRows(t *testing.T) {
	rows, err := Rows(testRecords(), "abc")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Len(t, rows[1], len(Columns))
	assert.Equal(t, "B2", rows[1][0])
	assert.Equal(t, "North Plant", rows[1][3])
	assert.Equal(t, "prefix", rows[1][4])
	assert.Equal(t, "abc", rows[1][5])
	assert.IsType(t, []byte{}, rows[1][6])
}

func TestPublisher_Table(t *testing.T) {
	assert.Equal(t, "ercot.node_coordinates", New(nil, Options{Schema: "ercot", Table: "node_coordinates"}).Table())
	assert.Equal(t, "node_coordinates", New(nil, Options{Table: "node_coordinates"}).Table())
}

func TestPublish_Replace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectEnsureTable(mock)
	mock.ExpectBegin()
	mock.ExpectExec(`TRUNCATE "ercot"."node_coordinates"`).WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"ercot", "node_coordinates"}, Columns).WillReturnResult(2)
	mock.ExpectCommit()

	p := New(mock, Options{Schema: "ercot", Table: "node_coordinates"})
	n, err := p.Publish(context.Background(), testRecords(), "key")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish_Upsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectEnsureTable(mock)
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_ercot_node_coordinates"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_ercot_node_coordinates"}, Columns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "ercot"."node_coordinates" .* ON CONFLICT \("settlement_point"\) DO UPDATE SET "lat" = EXCLUDED."lat"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	p := New(mock, Options{Schema: "ercot", Table: "node_coordinates", Mode: ModeUpsert})
	n, err := p.Publish(context.Background(), testRecords(), "key")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish_UnknownMode(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectEnsureTable(mock)

	p := New(mock, Options{Schema: "ercot", Table: "node_coordinates", Mode: "append"})
	_, err = p.Publish(context.Background(), testRecords(), "key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "append"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish_CreateTableFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "node_coordinates"`).WillReturnError(fmt.Errorf("permission denied"))

	p := New(mock, Options{Table: "node_coordinates"})
	_, err = p.Publish(context.Background(), testRecords(), "key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish: create table node_coordinates")
	assert.NoError(t, mock.ExpectationsWereMet())
}
