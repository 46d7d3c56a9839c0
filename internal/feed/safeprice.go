// Package feed manages the safe price subscriptions: one per futures-type
// market in the listing. Subscriptions die with the connection; after a
// reconnect the owning application refetches the listing and starts a fresh
// feed.
package feed

import (
	"context"
	"log/slog"

	"github.com/quantevo/tradedesk/internal/client"
	"github.com/quantevo/tradedesk/internal/domain"
)

// Handler receives safe price updates in per-ticker arrival order.
type Handler func(domain.SafePrice)

// SafePriceFeed subscribes to the safe price topic of every futures market
// and fans updates out to a handler and, when configured, a write-through
// price cache mirror.
type SafePriceFeed struct {
	client  *client.Client
	logger  *slog.Logger
	cache   domain.PriceCache // optional mirror
	handler Handler           // optional
}

// New creates a feed. cache and handler may each be nil.
func New(c *client.Client, cache domain.PriceCache, handler Handler, logger *slog.Logger) *SafePriceFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &SafePriceFeed{
		client:  c,
		logger:  logger.With(slog.String("component", "safeprice")),
		cache:   cache,
		handler: handler,
	}
}

// Start subscribes to the safe price feed of every futures-type market in
// the listing. Safe to call again with a fresh listing after a reconnect.
func (f *SafePriceFeed) Start(ctx context.Context, markets map[string]domain.Market) error {
	for ticker, m := range markets {
		if m.ContractType != domain.ContractFutures {
			continue
		}
		if err := f.client.SubscribeSafePrice(ticker, func(sp domain.SafePrice) {
			f.deliver(ctx, sp)
		}); err != nil {
			return err
		}
		f.logger.Debug("subscribed", slog.String("ticker", ticker))
	}
	return nil
}

// deliver fans one update out. A cache failure is logged and dropped; the
// mirror is best effort and never blocks the feed.
func (f *SafePriceFeed) deliver(ctx context.Context, sp domain.SafePrice) {
	if f.handler != nil {
		f.handler(sp)
	}
	if f.cache != nil {
		if err := f.cache.SetPrice(ctx, sp.Ticker, sp.Price, sp.Received); err != nil {
			f.logger.Warn("price mirror write failed",
				slog.String("ticker", sp.Ticker),
				slog.String("error", err.Error()),
			)
		}
	}
}
