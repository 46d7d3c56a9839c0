package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the resting side of an order as encoded on the wire.
type Side int

const (
	Buy  Side = 0
	Sell Side = 1
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// BookEntry is one raw resting order as returned by get_order_book. Entries
// carry no ordering guarantee; several entries may share a price.
type BookEntry struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Side     Side            `json:"order_side"`
}

// BookLevel is one aggregated depth level: the summed quantity of every
// resting order at Price.
type BookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// BookSnapshot is a stacked order book for one ticker. Bids are ordered best
// first (price descending), asks best first (price ascending). Snapshots are
// value types replaced wholesale on every refresh.
type BookSnapshot struct {
	Ticker    string      `json:"ticker"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Timestamp time.Time   `json:"timestamp"`
}
