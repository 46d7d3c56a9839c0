package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantevo/tradedesk/internal/book"
	"github.com/quantevo/tradedesk/internal/client"
	"github.com/quantevo/tradedesk/internal/config"
	"github.com/quantevo/tradedesk/internal/domain"
	"github.com/quantevo/tradedesk/internal/feed"
	"github.com/quantevo/tradedesk/internal/positions"
	"github.com/quantevo/tradedesk/internal/session"
	"github.com/quantevo/tradedesk/internal/transport/wire"
)

// WatchMode runs plain sessions until the context ends. A clean connection
// close means "reinitialise": the whole session, loads, and subscriptions
// are rebuilt from scratch. Anything else is fatal.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	return a.sessionLoop(ctx, deps, false)
}

// ArchiveMode is WatchMode plus the trade-history and book-snapshot archive
// loops.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	return a.sessionLoop(ctx, deps, true)
}

func (a *App) sessionLoop(ctx context.Context, deps *Dependencies, archive bool) error {
	for {
		err := a.runSession(ctx, deps, archive)
		switch {
		case err == nil || errors.Is(err, context.Canceled):
			return nil
		case errors.Is(err, domain.ErrConnectionClosed):
			a.logger.Warn("session ended, reinitialising")
			continue
		default:
			return err
		}
	}
}

// runSession drives one full session: connect with the configured retry
// policy, authenticate, load the initial data set, start the safe price
// feed, and hold until the connection dies or the context ends.
func (a *App) runSession(ctx context.Context, deps *Dependencies, archive bool) error {
	closed := make(chan error, 1)

	sess, err := session.New(session.Config{
		Dial:  wire.Dialer(a.cfg.Exchange.WsURL, a.logger),
		Retry: retryPolicy(a.cfg.Session),
		OnClose: func(err error) {
			closed <- err
		},
		Logger: a.logger,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Connect(ctx); err != nil {
		return err
	}
	if err := sess.Login(ctx, a.cfg.Auth.Identity, a.cfg.Auth.Secret); err != nil {
		return err
	}

	cl := client.New(sess, a.cfg.Exchange.BaseURI)

	markets, err := cl.Markets(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("markets loaded", slog.Int("count", len(markets)))

	if err := a.loadPositions(ctx, cl); err != nil {
		return err
	}

	spFeed := feed.New(cl, deps.PriceCache, func(sp domain.SafePrice) {
		a.logger.Debug("safe price",
			slog.String("ticker", sp.Ticker),
			slog.String("price", sp.Price.String()),
		)
	}, a.logger)
	if err := spFeed.Start(ctx, markets); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	if archive {
		g.Go(func() error { return a.archiveBooks(gctx, cl, deps, markets) })
		g.Go(func() error { return a.archiveTrades(gctx, cl, deps, markets) })
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return gctx.Err()
		case err := <-closed:
			return err
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// loadPositions fetches positions and open orders, classifies them, and logs
// the display-ready view sizes.
func (a *App) loadPositions(ctx context.Context, cl *client.Client) error {
	open, err := cl.OpenOrders(ctx)
	if err != nil {
		return err
	}
	raw, err := cl.Positions(ctx)
	if err != nil {
		return err
	}

	view := positions.Classify(raw, open)
	a.logger.Info("positions loaded",
		slog.Int("cash", len(view.Cash)),
		slog.Int("contracts", len(view.Contracts)),
		slog.Int("open_orders", len(open)),
	)
	return nil
}

// archiveBooks snapshots every market's stacked book once per interval.
func (a *App) archiveBooks(ctx context.Context, cl *client.Client, deps *Dependencies, markets map[string]domain.Market) error {
	ticker := time.NewTicker(a.cfg.Archive.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for mTicker := range markets {
			entries, err := cl.OrderBook(ctx, mTicker)
			if err != nil {
				a.logger.Warn("book fetch failed",
					slog.String("ticker", mTicker),
					slog.String("error", err.Error()),
				)
				continue
			}
			snap := book.Snapshot(mTicker, entries)
			if err := deps.Archiver.Archive(ctx, snap); err != nil {
				a.logger.Warn("book archive failed",
					slog.String("ticker", mTicker),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// archiveTrades pulls each market's trailing trade window once per interval
// and stores it; duplicate trades are skipped by the store.
func (a *App) archiveTrades(ctx context.Context, cl *client.Client, deps *Dependencies, markets map[string]domain.Market) error {
	ticker := time.NewTicker(a.cfg.Archive.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for mTicker := range markets {
			trades, err := cl.TradeHistory(ctx, mTicker, a.cfg.Archive.TradeWindow.Duration)
			if err != nil {
				a.logger.Warn("trade fetch failed",
					slog.String("ticker", mTicker),
					slog.String("error", err.Error()),
				)
				continue
			}
			if err := deps.TradeStore.InsertBatch(ctx, trades); err != nil {
				a.logger.Warn("trade archive failed",
					slog.String("ticker", mTicker),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func retryPolicy(cfg config.SessionConfig) session.RetryPolicy {
	return session.RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		Delay:      cfg.RetryDelay.Duration,
	}
}
