// Package transport defines the contract the session layer requires from the
// underlying RPC + pub/sub connection. Responses are matched to their
// originating call; no ordering is guaranteed across distinct calls. Events
// on one topic arrive in publication order.
package transport

import (
	"context"
	"encoding/json"
)

// Handler receives events published on a subscribed topic. Handlers are
// invoked from the transport's read loop, so per-topic arrival order is
// preserved; a handler that blocks stalls the whole connection.
type Handler func(event json.RawMessage)

// Transport is one live connection to the exchange. Implementations must
// resolve every in-flight call with domain.ErrSessionClosed when the
// connection is torn down; a call never hangs and never resolves twice.
type Transport interface {
	// Call invokes a remote procedure and returns its raw result. A failure
	// reported by the server surfaces as *domain.RemoteError.
	Call(ctx context.Context, proc string, args ...any) (json.RawMessage, error)

	// Subscribe registers h for events on topic. Subscriptions are
	// fire-and-forget: no buffering, no replay after reconnect.
	Subscribe(topic string, h Handler) error

	// Unsubscribe drops the handler for topic.
	Unsubscribe(topic string) error

	// Close tears the connection down. Safe to call more than once.
	Close() error

	// Done is closed when the connection is no longer usable, whether by
	// Close or by the peer. Err reports why.
	Done() <-chan struct{}
	Err() error
}
