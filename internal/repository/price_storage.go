package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"OraclePull/internal/domain/models"
	drepo "OraclePull/internal/domain/repository"
	pkgch "OraclePull/pkg/clickhouse"
	applogger "OraclePull/pkg/logger"
)

const pricesTable = "prices"

// PriceSchema is the DDL for the prices table. ReplacingMergeTree on
// (chain_id, token, ts) makes re-inserting a stored point a no-op after merge.
func PriceSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    chain_id    UInt32,
    token       LowCardinality(String),
    ts          DateTime('UTC'),
    value       Float64,
    raw         String,
    round_id    String,
    inserted_at DateTime DEFAULT now()
) ENGINE = ReplacingMergeTree(inserted_at)
ORDER BY (chain_id, token, ts)`, database, pricesTable),
	}
}

// ClickHouseStorage implements PriceStorage.
type ClickHouseStorage struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	chunk int
	l     *applogger.Logger
}

type StorageOption func(*ClickHouseStorage)

// WithChunkSize caps the rows sent in one INSERT.
func WithChunkSize(n int) StorageOption {
	return func(s *ClickHouseStorage) {
		if n > 0 {
			s.chunk = n
		}
	}
}

func NewClickHouseStorage(ch *pkgch.Client, l *applogger.Logger, opts ...StorageOption) *ClickHouseStorage {
	if l == nil {
		l = applogger.Nop()
	}
	table := pricesTable
	if ch.Database() != "" {
		table = ch.Database() + "." + pricesTable
	}
	s := &ClickHouseStorage{ch: ch, db: ch.DB(), table: table, chunk: 2000, l: l}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ClickHouseStorage) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, PriceSchema(s.ch.Database()))
}

// StoreBatch inserts rows as multi-row VALUES in chunks.
func (s *ClickHouseStorage) StoreBatch(ctx context.Context, prices []*models.StoredPrice) error {
	for start := 0; start < len(prices); start += s.chunk {
		end := min(start+s.chunk, len(prices))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*6)
		for _, p := range prices[start:end] {
			if p == nil || p.Token == "" || p.Timestamp == 0 {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args, p.ChainID, p.Token, time.Unix(p.Timestamp, 0).UTC(), p.Value, p.Raw, p.RoundID)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (chain_id, token, ts, value, raw, round_id) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse insert prices failed", applogger.Int("rows", len(values)), applogger.Error(err))
			return fmt.Errorf("insert prices: %w", err)
		}
	}
	return nil
}

// Query returns deduplicated rows in [from, to], oldest first.
func (s *ClickHouseStorage) Query(ctx context.Context, chainID uint32, token string, from, to int64) ([]*models.StoredPrice, error) {
	q := fmt.Sprintf(`SELECT chain_id, token, toInt64(toUnixTimestamp(ts)), value, raw, round_id
FROM %s FINAL
WHERE chain_id = ? AND token = ? AND ts >= ? AND ts <= ?
ORDER BY ts ASC`, s.table)
	rows, err := s.db.QueryContext(ctx, q, chainID, token, time.Unix(from, 0).UTC(), time.Unix(to, 0).UTC())
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	var out []*models.StoredPrice
	for rows.Next() {
		var p models.StoredPrice
		if err := rows.Scan(&p.ChainID, &p.Token, &p.Timestamp, &p.Value, &p.Raw, &p.RoundID); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *ClickHouseStorage) HasToken(ctx context.Context, chainID uint32, token string) (bool, error) {
	q := fmt.Sprintf("SELECT 1 FROM %s WHERE chain_id = ? AND token = ? LIMIT 1", s.table)
	var one uint8
	err := s.db.QueryRowContext(ctx, q, chainID, token).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup token: %w", err)
	}
	return true, nil
}

// LatestTimestamp returns 0 when the token has no rows.
func (s *ClickHouseStorage) LatestTimestamp(ctx context.Context, chainID uint32, token string) (int64, error) {
	q := fmt.Sprintf("SELECT toInt64(toUnixTimestamp(max(ts))) FROM %s WHERE chain_id = ? AND token = ?", s.table)
	var ts int64
	if err := s.db.QueryRowContext(ctx, q, chainID, token).Scan(&ts); err != nil {
		return 0, fmt.Errorf("latest timestamp: %w", err)
	}
	return ts, nil
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

// Close is a no-op; the pool belongs to the clickhouse client.
func (s *ClickHouseStorage) Close() error { return nil }

var _ drepo.PriceStorage = (*ClickHouseStorage)(nil)
