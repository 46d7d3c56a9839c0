package domain

import "github.com/shopspring/decimal"

// OpenOrder is one of the session holder's resting orders. Besides display,
// the open-order set feeds the position classifier: a flat contract position
// stays visible while an order on its ticker rests.
type OpenOrder struct {
	ID       int64           `json:"id"`
	Ticker   string          `json:"ticker"`
	Side     Side            `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Status   string          `json:"status"`
}

// OrderRequest is the payload for place_order.
type OrderRequest struct {
	Ticker   string          `json:"ticker"`
	Side     Side            `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}
