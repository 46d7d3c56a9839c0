package domain

import "github.com/shopspring/decimal"

// Position is the session holder's position in one contract.
type Position struct {
	Ticker       string          `json:"ticker"`
	ContractType ContractType    `json:"contract_type"`
	Position     decimal.Decimal `json:"position"`
}

// PositionView is the display-ready partition of a full position set. Cash
// holds every cash-type position unfiltered; Contracts holds the tradable
// positions that carry actionable information (non-zero size, or a resting
// order on the same ticker).
type PositionView struct {
	Cash      []Position
	Contracts []Position
}
