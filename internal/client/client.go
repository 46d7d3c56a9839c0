// Package client exposes every remote procedure of the exchange as a typed,
// context-bound method on a Client. Calls are gated by the session state
// machine and return exactly one result or one error; no call mutates shared
// state, callers apply results to their own view.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantevo/tradedesk/internal/crypto"
	"github.com/quantevo/tradedesk/internal/domain"
	"github.com/quantevo/tradedesk/internal/session"
)

// Client wraps a session with the exchange's procedure catalogue. BaseURI is
// the exchange's URI root, e.g. "http://exchange.example.com/"; procedure
// URIs are formed as BaseURI + "procedures/" + name.
type Client struct {
	sess *session.Session
	base string
}

// New creates a Client bound to sess.
func New(sess *session.Session, baseURI string) *Client {
	if baseURI != "" && baseURI[len(baseURI)-1] != '/' {
		baseURI += "/"
	}
	return &Client{sess: sess, base: baseURI}
}

func (c *Client) proc(name string) string {
	return c.base + "procedures/" + name
}

// call invokes a procedure and decodes its result into out. A nil out
// discards the result (ack-only procedures).
func (c *Client) call(ctx context.Context, name string, out any, args ...any) error {
	raw, err := c.sess.Call(ctx, c.proc(name), args...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("client: decode %s result: %w", name, err)
	}
	return nil
}

// Markets fetches the full market listing, keyed by ticker. Fetched once per
// session; the result is the universe of valid order and subscription
// targets.
func (c *Client) Markets(ctx context.Context) (map[string]domain.Market, error) {
	var out map[string]domain.Market
	if err := c.call(ctx, "list_markets", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Positions fetches the raw position set. Pair with OpenOrders and feed both
// to positions.Classify for the display-ready view.
func (c *Client) Positions(ctx context.Context) ([]domain.Position, error) {
	var out []domain.Position
	if err := c.call(ctx, "get_positions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OrderBook fetches the raw resting-order book for ticker. Entries are
// unordered and may repeat prices; stack them with book.Stack.
func (c *Client) OrderBook(ctx context.Context, ticker string) ([]domain.BookEntry, error) {
	var out []domain.BookEntry
	if err := c.call(ctx, "get_order_book", &out, ticker); err != nil {
		return nil, err
	}
	return out, nil
}

// OpenOrders fetches the session holder's resting orders.
func (c *Client) OpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	var out []domain.OpenOrder
	if err := c.call(ctx, "get_open_orders", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PlaceOrder submits an order. The remote returns false when the order was
// rejected without a hard error.
func (c *Client) PlaceOrder(ctx context.Context, order domain.OrderRequest) (bool, error) {
	var accepted bool
	if err := c.call(ctx, "place_order", &accepted, order); err != nil {
		return false, err
	}
	return accepted, nil
}

// CancelOrder cancels a resting order by ID.
func (c *Client) CancelOrder(ctx context.Context, orderID int64) error {
	return c.call(ctx, "cancel_order", nil, orderID)
}

// TradeHistory fetches executed trades for ticker within the trailing
// window.
func (c *Client) TradeHistory(ctx context.Context, ticker string, window time.Duration) ([]domain.Trade, error) {
	var out []domain.Trade
	if err := c.call(ctx, "get_trade_history", &out, ticker, int64(window.Seconds())); err != nil {
		return nil, err
	}
	return out, nil
}

// ChatHistory fetches the trollbox backlog, oldest first.
func (c *Client) ChatHistory(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.call(ctx, "get_chat_history", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SafePrices fetches the current safe price per futures ticker. Ongoing
// updates arrive via the per-ticker subscription instead.
func (c *Client) SafePrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	var out map[string]decimal.Decimal
	if err := c.call(ctx, "get_safe_prices", &out, []string{}); err != nil {
		return nil, err
	}
	return out, nil
}

// MakeAccount registers a new account. The secret is never sent: a fresh
// salt is drawn, the key is derived locally with the default parameters, and
// only the derived hash and the salt go over the wire.
func (c *Client) MakeAccount(ctx context.Context, name, secret, email, contact string) error {
	salt, err := crypto.NewSalt()
	if err != nil {
		return err
	}
	hash, err := crypto.DeriveKey(secret, crypto.ChallengeParams{
		KeyLen:     crypto.DefaultKeyLen,
		Salt:       salt,
		Iterations: crypto.DefaultIterations,
	})
	if err != nil {
		return err
	}
	return c.call(ctx, "make_account", nil, name, hash, salt, email, contact)
}

// NewAddress requests a fresh deposit address.
func (c *Client) NewAddress(ctx context.Context) (string, error) {
	var out string
	if err := c.call(ctx, "get_new_address", &out); err != nil {
		return "", err
	}
	return out, nil
}

// CurrentAddress returns the active deposit address.
func (c *Client) CurrentAddress(ctx context.Context) (string, error) {
	var out string
	if err := c.call(ctx, "get_current_address", &out); err != nil {
		return "", err
	}
	return out, nil
}

// Withdraw requests a withdrawal. Amount is in the asset's integer base
// units (e.g. satoshis for BTC); fractional amounts never cross the wire.
func (c *Client) Withdraw(ctx context.Context, asset, address string, amount int64) error {
	return c.call(ctx, "withdraw", nil, asset, address, amount)
}

// SafePriceTopic returns the pub/sub topic for a ticker's safe price feed.
func (c *Client) SafePriceTopic(ticker string) string {
	return c.base + "safe_price#" + ticker
}

// SubscribeSafePrice subscribes to a ticker's safe price feed. Updates are
// delivered in arrival order for as long as the connection lives; after a
// reconnect the subscription must be re-established.
func (c *Client) SubscribeSafePrice(ticker string, h func(domain.SafePrice)) error {
	return c.sess.Subscribe(c.SafePriceTopic(ticker), func(event json.RawMessage) {
		var price decimal.Decimal
		if err := json.Unmarshal(event, &price); err != nil {
			return
		}
		h(domain.SafePrice{Ticker: ticker, Price: price, Received: time.Now()})
	})
}

// Session returns the underlying session, for lifecycle control.
func (c *Client) Session() *session.Session { return c.sess }
