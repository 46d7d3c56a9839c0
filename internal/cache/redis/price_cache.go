package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantevo/tradedesk/internal/domain"
)

// PriceCache implements domain.PriceCache using one Redis hash per ticker at
// key "safe_price:{ticker}" with fields "price" (decimal string) and "ts"
// (Unix nanoseconds). The feed writes through; dashboards read.
type PriceCache struct {
	rdb *Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c}
}

func priceKey(ticker string) string {
	return "safe_price:" + ticker
}

// SetPrice stores the latest safe price and receipt time for a ticker.
func (pc *PriceCache) SetPrice(ctx context.Context, ticker string, price decimal.Decimal, ts time.Time) error {
	fields := map[string]interface{}{
		"price": price.String(),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.Underlying().HSet(ctx, priceKey(ticker), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", ticker, err)
	}
	return nil
}

// GetPrice retrieves the latest safe price for a ticker. It returns
// domain.ErrNotFound when no price has been mirrored yet.
func (pc *PriceCache) GetPrice(ctx context.Context, ticker string) (decimal.Decimal, time.Time, error) {
	vals, err := pc.rdb.Underlying().HGetAll(ctx, priceKey(ticker)).Result()
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get price %s: %w", ticker, err)
	}
	if len(vals) == 0 {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}

	price, err := decimal.NewFromString(vals["price"])
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse price %s: %w", ticker, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", ticker, err)
	}
	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
