package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContractType distinguishes the kinds of contracts the exchange lists.
type ContractType string

const (
	ContractCash       ContractType = "cash"
	ContractCashPair   ContractType = "cash_pair"
	ContractFutures    ContractType = "futures"
	ContractPrediction ContractType = "prediction"
)

// Market describes one listed contract. The set of markets is immutable for
// the lifetime of a session: it is fetched once after login and its ticker
// set is the universe of valid subscription and order targets.
type Market struct {
	Ticker       string       `json:"ticker"`
	Denominator  int64        `json:"denominator"`
	TickSize     int64        `json:"tick_size"`
	ContractType ContractType `json:"contract_type"`
}

// SafePrice is one update from the per-ticker safe price feed published for
// futures-type markets.
type SafePrice struct {
	Ticker   string
	Price    decimal.Decimal
	Received time.Time
}
