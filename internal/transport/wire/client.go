// Package wire implements the transport contract over a websocket speaking
// JSON array frames: calls carry a correlation ID matched against result and
// error frames, subscriptions deliver event frames per topic.
package wire

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quantevo/tradedesk/internal/domain"
	"github.com/quantevo/tradedesk/internal/transport"
)

const (
	// writeWait is the time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// handshakeTimeout bounds the websocket dial.
	handshakeTimeout = 15 * time.Second

	// welcomeWait bounds how long Dial waits for the server's welcome frame.
	welcomeWait = 10 * time.Second
)

type callResult struct {
	result json.RawMessage
	err    error
}

// Client is one live websocket connection to the exchange. It satisfies
// transport.Transport: correlated calls, per-topic event dispatch, and
// teardown that resolves every in-flight call.
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	// writeMu serialises frame writes; gorilla allows one writer at a time.
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan callResult
	subs    map[string]transport.Handler
	closed  bool
	err     error

	done      chan struct{}
	closeOnce sync.Once

	sessionID   string
	serverIdent string
}

// Dial opens a websocket to url and completes the protocol handshake. It
// performs exactly one connection attempt; retry policy belongs to the
// session layer. A welcome advertising a protocol version this client does
// not speak fails with domain.ErrUnsupportedClient.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("wire: dial %s: %w: %v", url, domain.ErrConnectionFailed, err)
	}

	c := &Client{
		conn:    conn,
		logger:  logger.With(slog.String("component", "wire")),
		pending: make(map[string]chan callResult),
		subs:    make(map[string]transport.Handler),
		done:    make(chan struct{}),
	}

	if err := c.readWelcome(); err != nil {
		conn.Close()
		return nil, err
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// Dialer adapts Dial to the single-argument shape the session layer expects.
func Dialer(url string, logger *slog.Logger) func(context.Context) (transport.Transport, error) {
	return func(ctx context.Context) (transport.Transport, error) {
		return Dial(ctx, url, logger)
	}
}

// readWelcome consumes the first frame, which must be a welcome carrying the
// session ID, protocol version, and server identity.
func (c *Client) readWelcome() error {
	c.conn.SetReadDeadline(time.Now().Add(welcomeWait))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("wire: reading welcome: %w: %v", domain.ErrConnectionFailed, err)
	}

	f, err := decodeFrame(data)
	if err != nil {
		return fmt.Errorf("wire: welcome: %w", err)
	}
	if f.typ != msgWelcome {
		return fmt.Errorf("wire: expected welcome, got frame type %d: %w", f.typ, domain.ErrConnectionFailed)
	}

	sessionID, err := f.str(0)
	if err != nil {
		return err
	}

	var version int
	if err := json.Unmarshal(f.raw(1), &version); err != nil {
		return fmt.Errorf("wire: welcome version: %w", err)
	}
	if version != protocolVersion {
		return fmt.Errorf("wire: server speaks protocol %d, client speaks %d: %w",
			version, protocolVersion, domain.ErrUnsupportedClient)
	}

	c.sessionID = sessionID
	if ident, err := f.str(2); err == nil {
		c.serverIdent = ident
	}

	c.logger.Debug("connected",
		slog.String("session_id", sessionID),
		slog.String("server", c.serverIdent),
	)
	return nil
}

// SessionID returns the server-assigned connection identifier.
func (c *Client) SessionID() string { return c.sessionID }

// Call invokes proc with args and waits for the matching result or error
// frame. The correlation ID is a fresh uuid per call; every call resolves
// exactly once.
func (c *Client) Call(ctx context.Context, proc string, args ...any) (json.RawMessage, error) {
	id := uuid.NewString()
	ch := make(chan callResult, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	elems := make([]any, 0, len(args)+2)
	elems = append(elems, id, proc)
	elems = append(elems, args...)

	if err := c.writeFrame(msgCall, elems...); err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("wire: call %s: %w", proc, err)
	}

	select {
	case <-ctx.Done():
		c.dropPending(id)
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return r.result, nil
	}
}

// Subscribe registers h for topic and announces the subscription to the
// server. A second Subscribe for the same topic replaces the handler.
func (c *Client) Subscribe(topic string, h transport.Handler) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrSessionClosed
	}
	c.subs[topic] = h
	c.mu.Unlock()

	if err := c.writeFrame(msgSubscribe, topic); err != nil {
		return fmt.Errorf("wire: subscribe %s: %w", topic, err)
	}
	return nil
}

// Unsubscribe drops the handler for topic and informs the server.
func (c *Client) Unsubscribe(topic string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrSessionClosed
	}
	delete(c.subs, topic)
	c.mu.Unlock()

	if err := c.writeFrame(msgUnsubscribe, topic); err != nil {
		return fmt.Errorf("wire: unsubscribe %s: %w", topic, err)
	}
	return nil
}

// Close tears the connection down. Pending calls resolve with
// domain.ErrSessionClosed.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	c.writeMu.Unlock()

	c.teardown(domain.ErrSessionClosed)
	return nil
}

// Done is closed once the connection is unusable.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended. Valid after Done is closed.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) writeFrame(typ int, elems ...any) error {
	data, err := encodeFrame(typ, elems...)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) dropPending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// teardown marks the client closed, resolves every in-flight call, and
// closes the underlying socket. Only the first cause wins.
func (c *Client) teardown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.err = cause
		waiting := c.pending
		c.pending = make(map[string]chan callResult)
		c.subs = make(map[string]transport.Handler)
		c.mu.Unlock()

		for _, ch := range waiting {
			ch <- callResult{err: domain.ErrSessionClosed}
		}

		close(c.done)
		c.conn.Close()
	})
}

// readLoop reads frames until the connection dies and routes them: results
// and errors to the pending call, events to the topic handler. Handlers run
// on this goroutine, preserving per-topic arrival order.
func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			alreadyClosed := c.closed
			c.mu.Unlock()
			if !alreadyClosed {
				c.logger.Debug("connection ended", slog.String("error", err.Error()))
			}
			c.teardown(domain.ErrConnectionClosed)
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		f, err := decodeFrame(data)
		if err != nil {
			c.logger.Debug("dropping frame", slog.String("error", err.Error()))
			continue
		}
		c.dispatch(f)
	}
}

func (c *Client) dispatch(f frame) {
	switch f.typ {
	case msgCallResult:
		id, err := f.str(0)
		if err != nil {
			return
		}
		c.resolve(id, callResult{result: f.raw(1)})

	case msgCallError:
		id, err := f.str(0)
		if err != nil {
			return
		}
		uri, _ := f.str(1)
		desc, _ := f.str(2)
		c.resolve(id, callResult{err: &domain.RemoteError{URI: uri, Description: desc}})

	case msgEvent:
		topic, err := f.str(0)
		if err != nil {
			return
		}
		c.mu.Lock()
		h := c.subs[topic]
		c.mu.Unlock()
		if h != nil {
			h(f.raw(1))
		}

	default:
		// Prefix and publish frames are server-bound; anything else is
		// unknown. Ignore both.
	}
}

func (c *Client) resolve(id string, r callResult) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if ok {
		ch <- r
	}
}

// pingLoop keeps the connection alive with periodic pings.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Compile-time interface check.
var _ transport.Transport = (*Client)(nil)
