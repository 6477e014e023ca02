package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OraclePull/internal/domain/models"
	pkgch "OraclePull/pkg/clickhouse"
)

func newMockStorage(t *testing.T) (*ClickHouseStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewClickHouseStorage(pkgch.NewClientFromDB(db, "oracle"), nil), mock
}

const btcToken = "0x7130d2a12b9bcbfae4f2634d864a1ee1ce3ead9c"

func TestStoreBatchInsertsValidRows(t *testing.T) {
	s, mock := newMockStorage(t)
	rows := []*models.StoredPrice{
		{ChainID: 56, Token: btcToken, Timestamp: 1_700_000_120, Value: 26525, Raw: "2652500000000", RoundID: "12"},
		nil,
		{ChainID: 56, Token: btcToken, Timestamp: 0},
		{ChainID: 56, Token: btcToken, Timestamp: 1_700_000_060, Value: 26510, Raw: "2651000000000", RoundID: "11"},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO oracle.prices (chain_id, token, ts, value, raw, round_id) VALUES (?, ?, ?, ?, ?, ?),(?, ?, ?, ?, ?, ?)")).
		WithArgs(
			uint32(56), btcToken, time.Unix(1_700_000_120, 0).UTC(), 26525.0, "2652500000000", "12",
			uint32(56), btcToken, time.Unix(1_700_000_060, 0).UTC(), 26510.0, "2651000000000", "11",
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, s.StoreBatch(context.Background(), rows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreBatchChunksRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := NewClickHouseStorage(pkgch.NewClientFromDB(db, "oracle"), nil, WithChunkSize(2))

	rows := []*models.StoredPrice{
		{ChainID: 56, Token: btcToken, Timestamp: 1},
		{ChainID: 56, Token: btcToken, Timestamp: 2},
		{ChainID: 56, Token: btcToken, Timestamp: 3},
	}
	mock.ExpectExec(regexp.QuoteMeta("VALUES (?, ?, ?, ?, ?, ?),(?, ?, ?, ?, ?, ?)")).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("round_id) VALUES (?, ?, ?, ?, ?, ?)")).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.StoreBatch(context.Background(), rows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreBatchSurfacesErrors(t *testing.T) {
	s, mock := newMockStorage(t)
	mock.ExpectExec("INSERT INTO oracle.prices").WillReturnError(errors.New("table is read only"))

	err := s.StoreBatch(context.Background(), []*models.StoredPrice{{ChainID: 56, Token: btcToken, Timestamp: 1}})
	assert.ErrorContains(t, err, "table is read only")
}

func TestStoreBatchEmptyIsNoop(t *testing.T) {
	s, mock := newMockStorage(t)
	require.NoError(t, s.StoreBatch(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryReturnsRowsAscending(t *testing.T) {
	s, mock := newMockStorage(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM oracle.prices FINAL")).
		WithArgs(uint32(56), btcToken, time.Unix(100, 0).UTC(), time.Unix(200, 0).UTC()).
		WillReturnRows(sqlmock.NewRows([]string{"chain_id", "token", "ts", "value", "raw", "round_id"}).
			AddRow(uint32(56), btcToken, int64(120), 1.5, "150000000", "3").
			AddRow(uint32(56), btcToken, int64(180), 1.6, "160000000", "4"))

	got, err := s.Query(context.Background(), 56, btcToken, 100, 200)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(120), got[0].Timestamp)
	assert.Equal(t, 1.6, got[1].Value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHasToken(t *testing.T) {
	s, mock := newMockStorage(t)
	mock.ExpectQuery("SELECT 1 FROM oracle.prices").
		WithArgs(uint32(56), btcToken).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(uint8(1)))
	mock.ExpectQuery("SELECT 1 FROM oracle.prices").
		WithArgs(uint32(56), "0xdead").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	ok, err := s.HasToken(context.Background(), 56, btcToken)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasToken(context.Background(), 56, "0xdead")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLatestTimestamp(t *testing.T) {
	s, mock := newMockStorage(t)
	mock.ExpectQuery(regexp.QuoteMeta("max(ts)")).
		WithArgs(uint32(56), btcToken).
		WillReturnRows(sqlmock.NewRows([]string{"ts"}).AddRow(int64(1_700_000_120)))

	ts, err := s.LatestTimestamp(context.Background(), 56, btcToken)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_120), ts)
}

func TestPriceSchemaIsReplacing(t *testing.T) {
	stmts := PriceSchema("oracle")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[1], "ReplacingMergeTree")
	assert.Contains(t, stmts[1], "ORDER BY (chain_id, token, ts)")
}
