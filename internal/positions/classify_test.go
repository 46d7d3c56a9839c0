package positions

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantevo/tradedesk/internal/domain"
)

func pos(ticker string, ct domain.ContractType, size int64) domain.Position {
	return domain.Position{
		Ticker:       ticker,
		ContractType: ct,
		Position:     decimal.NewFromInt(size),
	}
}

func TestClassifyFlatPositionWithOrderRetained(t *testing.T) {
	view := Classify(
		[]domain.Position{
			pos("A", domain.ContractFutures, 0),
			pos("B", domain.ContractFutures, 0),
		},
		[]domain.OpenOrder{{Ticker: "A"}},
	)

	require.Len(t, view.Contracts, 1)
	assert.Equal(t, "A", view.Contracts[0].Ticker)
	assert.Empty(t, view.Cash)
}

func TestClassifyNonZeroPositionAlwaysRetained(t *testing.T) {
	view := Classify(
		[]domain.Position{pos("C", domain.ContractPrediction, -3)},
		nil,
	)

	require.Len(t, view.Contracts, 1)
	assert.Equal(t, "C", view.Contracts[0].Ticker)
}

func TestClassifyCashKeptRegardlessOfSize(t *testing.T) {
	view := Classify(
		[]domain.Position{
			pos("BTC", domain.ContractCash, 0),
			pos("USD", domain.ContractCash, 250),
		},
		nil,
	)

	assert.Len(t, view.Cash, 2)
	assert.Empty(t, view.Contracts)
}

func TestClassifyViewsDisjoint(t *testing.T) {
	view := Classify(
		[]domain.Position{
			pos("BTC", domain.ContractCash, 10),
			pos("F1", domain.ContractFutures, 5),
			pos("F2", domain.ContractFutures, 0),
		},
		[]domain.OpenOrder{{Ticker: "F2"}},
	)

	require.Len(t, view.Cash, 1)
	require.Len(t, view.Contracts, 2)

	seen := map[string]struct{}{}
	for _, p := range append(view.Cash, view.Contracts...) {
		_, dup := seen[p.Ticker]
		require.False(t, dup, "ticker %s appears in both views", p.Ticker)
		seen[p.Ticker] = struct{}{}
	}
}

func TestClassifyEmptyInput(t *testing.T) {
	view := Classify(nil, nil)
	assert.Empty(t, view.Cash)
	assert.Empty(t, view.Contracts)
}
