// Package positions partitions a raw position set into the cash and tradable
// contract views the display layer consumes.
package positions

import "github.com/quantevo/tradedesk/internal/domain"

// Classify splits positions into cash and contract buckets. Cash positions
// are kept unconditionally. A contract position is kept only when its size
// is non-zero or an open order rests on its ticker; a flat position with no
// resting orders carries nothing to display. The classification is computed
// from scratch on every call and holds no memory of prior runs.
func Classify(positions []domain.Position, openOrders []domain.OpenOrder) domain.PositionView {
	openTickers := make(map[string]struct{}, len(openOrders))
	for _, o := range openOrders {
		openTickers[o.Ticker] = struct{}{}
	}

	var view domain.PositionView
	for _, p := range positions {
		if p.ContractType == domain.ContractCash {
			view.Cash = append(view.Cash, p)
			continue
		}
		if !p.Position.IsZero() {
			view.Contracts = append(view.Contracts, p)
			continue
		}
		if _, open := openTickers[p.Ticker]; open {
			view.Contracts = append(view.Contracts, p)
		}
	}
	return view
}
