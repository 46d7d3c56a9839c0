package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantevo/tradedesk/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// InsertBatch archives trades using a pgx Batch. Trades already present
// (same ticker, time, price, quantity) are silently skipped via ON CONFLICT
// DO NOTHING, so repeated history fetches over overlapping windows are safe.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	const query = `
		INSERT INTO trades (ticker, price, quantity, traded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ticker, traded_at, price, quantity) DO NOTHING`

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(query, t.Ticker, t.Price, t.Quantity, t.Time())
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade batch item %d: %w", i, err)
		}
	}
	return nil
}

// LastTimestamp returns the most recent archived trade time for a ticker,
// or the zero time when none exist.
func (s *TradeStore) LastTimestamp(ctx context.Context, ticker string) (time.Time, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx,
		"SELECT MAX(traded_at) FROM trades WHERE ticker = $1", ticker).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: last trade timestamp for %s: %w", ticker, err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return *ts, nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
