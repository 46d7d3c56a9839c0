package domain

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"
)

// TradeStore archives fetched trade history for offline analysis.
type TradeStore interface {
	// InsertBatch stores trades, silently skipping duplicates.
	InsertBatch(ctx context.Context, trades []Trade) error

	// LastTimestamp returns the most recent archived trade time for a ticker,
	// or the zero time when none exist.
	LastTimestamp(ctx context.Context, ticker string) (time.Time, error)
}

// PriceCache mirrors safe price updates so processes without a session can
// read them. It is write-through only from the feed; core components never
// read it back.
type PriceCache interface {
	SetPrice(ctx context.Context, ticker string, price decimal.Decimal, ts time.Time) error
	GetPrice(ctx context.Context, ticker string) (decimal.Decimal, time.Time, error)
}

// BlobWriter uploads an object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
