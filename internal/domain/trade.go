package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one executed trade from get_trade_history.
type Trade struct {
	Ticker    string          `json:"ticker"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Timestamp int64           `json:"timestamp"` // unix seconds
}

// Time returns the trade timestamp as a time.Time in UTC.
func (t Trade) Time() time.Time {
	return time.Unix(t.Timestamp, 0).UTC()
}
