// Package book stacks raw resting orders into cumulative per-price depth
// levels. Prices are compared as decimals, never as floats, so entries that
// share a price always collapse into a single level.
package book

import (
	"sort"
	"time"

	"github.com/quantevo/tradedesk/internal/domain"
)

// Stack aggregates raw entries into bid and ask levels. Entries are
// partitioned by side, grouped by exact price with quantities summed, and
// ordered best first: bids descending, asks ascending. Zero-quantity entries
// are dropped before grouping. The result does not depend on input order.
func Stack(entries []domain.BookEntry) (bids, asks []domain.BookLevel) {
	var buy, sell []domain.BookEntry
	for _, e := range entries {
		if e.Quantity.IsZero() {
			continue
		}
		if e.Side == domain.Buy {
			buy = append(buy, e)
		} else {
			sell = append(sell, e)
		}
	}

	bids = stackSide(buy, true)
	asks = stackSide(sell, false)
	return bids, asks
}

// stackSide sorts one side by price and merges runs of equal prices into
// single levels. Grouping uses decimal comparison, so "100" and "100.0"
// land on the same level regardless of how the wire rendered them.
func stackSide(side []domain.BookEntry, descending bool) []domain.BookLevel {
	if len(side) == 0 {
		return nil
	}

	sort.Slice(side, func(i, j int) bool {
		cmp := side[i].Price.Cmp(side[j].Price)
		if descending {
			return cmp > 0
		}
		return cmp < 0
	})

	levels := make([]domain.BookLevel, 0, len(side))
	for _, e := range side {
		if n := len(levels); n > 0 && levels[n-1].Price.Cmp(e.Price) == 0 {
			levels[n-1].Quantity = levels[n-1].Quantity.Add(e.Quantity)
			continue
		}
		levels = append(levels, domain.BookLevel{Price: e.Price, Quantity: e.Quantity})
	}
	return levels
}

// Snapshot stacks entries and wraps both sides in a timestamped snapshot for
// ticker.
func Snapshot(ticker string, entries []domain.BookEntry) domain.BookSnapshot {
	bids, asks := Stack(entries)
	return domain.BookSnapshot{
		Ticker:    ticker,
		Bids:      bids,
		Asks:      asks,
		Timestamp: time.Now().UTC(),
	}
}
