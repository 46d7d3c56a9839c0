package wire

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantevo/tradedesk/internal/domain"
)

var upgrader = websocket.Upgrader{}

// startServer runs a websocket endpoint that sends welcome and then hands
// every decoded frame to serve along with the connection.
func startServer(t *testing.T, version int, serve func(conn *websocket.Conn, f frame)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		welcome, err := encodeFrame(msgWelcome, "sess-1", version, "testserver/1.0")
		require.NoError(t, err)
		if err := conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
			return
		}

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			f, err := decodeFrame(data)
			if err != nil {
				continue
			}
			if serve != nil {
				serve(conn, f)
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func reply(t *testing.T, conn *websocket.Conn, typ int, elems ...any) {
	t.Helper()
	data, err := encodeFrame(typ, elems...)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestDialHandshake(t *testing.T) {
	url := startServer(t, protocolVersion, nil)

	c, err := Dial(context.Background(), url, nil)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "sess-1", c.SessionID())
}

func TestDialRejectsVersionMismatch(t *testing.T) {
	url := startServer(t, protocolVersion+1, nil)

	_, err := Dial(context.Background(), url, nil)
	require.ErrorIs(t, err, domain.ErrUnsupportedClient)
}

func TestDialConnectionRefused(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/", nil)
	require.ErrorIs(t, err, domain.ErrConnectionFailed)
}

func TestCallRoundTrip(t *testing.T) {
	url := startServer(t, protocolVersion, func(conn *websocket.Conn, f frame) {
		if f.typ != msgCall {
			return
		}
		id, err := f.str(0)
		require.NoError(t, err)
		proc, err := f.str(1)
		require.NoError(t, err)
		assert.Equal(t, "http://x/procedures/echo", proc)

		var arg string
		require.NoError(t, json.Unmarshal(f.raw(2), &arg))
		reply(t, conn, msgCallResult, id, map[string]string{"echo": arg})
	})

	c, err := Dial(context.Background(), url, nil)
	require.NoError(t, err)
	defer c.Close()

	raw, err := c.Call(context.Background(), "http://x/procedures/echo", "hello")
	require.NoError(t, err)
	assert.JSONEq(t, `{"echo":"hello"}`, string(raw))
}

func TestCallErrorBecomesRemoteError(t *testing.T) {
	url := startServer(t, protocolVersion, func(conn *websocket.Conn, f frame) {
		if f.typ != msgCall {
			return
		}
		id, _ := f.str(0)
		reply(t, conn, msgCallError, id, "http://x/error#not_found", "no such procedure")
	})

	c, err := Dial(context.Background(), url, nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Call(context.Background(), "http://x/procedures/missing")
	var remote *domain.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "http://x/error#not_found", remote.URI)
	assert.Equal(t, "no such procedure", remote.Description)
}

func TestCallVoidResult(t *testing.T) {
	url := startServer(t, protocolVersion, func(conn *websocket.Conn, f frame) {
		if f.typ != msgCall {
			return
		}
		id, _ := f.str(0)
		// Result frame with no payload element at all.
		reply(t, conn, msgCallResult, id)
	})

	c, err := Dial(context.Background(), url, nil)
	require.NoError(t, err)
	defer c.Close()

	raw, err := c.Call(context.Background(), "http://x/procedures/cancel_order", int64(7))
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
}

func TestCallContextCancelled(t *testing.T) {
	url := startServer(t, protocolVersion, func(conn *websocket.Conn, f frame) {
		// Never answer.
	})

	c, err := Dial(context.Background(), url, nil)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Call(ctx, "http://x/procedures/slow")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEventDispatchInOrder(t *testing.T) {
	const topic = "http://x/safe_price#USDBTC0W"
	url := startServer(t, protocolVersion, func(conn *websocket.Conn, f frame) {
		if f.typ != msgSubscribe {
			return
		}
		got, _ := f.str(0)
		assert.Equal(t, topic, got)
		reply(t, conn, msgEvent, topic, "482.33")
		reply(t, conn, msgEvent, topic, "483.10")
		reply(t, conn, msgEvent, "http://x/safe_price#OTHER", "1.00")
	})

	c, err := Dial(context.Background(), url, nil)
	require.NoError(t, err)
	defer c.Close()

	events := make(chan string, 4)
	require.NoError(t, c.Subscribe(topic, func(ev json.RawMessage) {
		var s string
		if json.Unmarshal(ev, &s) == nil {
			events <- s
		}
	}))

	var got []string
	for len(got) < 2 {
		select {
		case s := <-events:
			got = append(got, s)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, []string{"482.33", "483.10"}, got)

	// The foreign topic must not have been delivered.
	select {
	case s := <-events:
		t.Fatalf("unexpected event %q", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClosePendingCallsResolve(t *testing.T) {
	url := startServer(t, protocolVersion, func(conn *websocket.Conn, f frame) {
		// Leave the call hanging.
	})

	c, err := Dial(context.Background(), url, nil)
	require.NoError(t, err)

	callErr := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), "http://x/procedures/slow")
		callErr <- err
	}()

	// Let the call register before closing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, c.Close())

	select {
	case err := <-callErr:
		require.ErrorIs(t, err, domain.ErrSessionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call never resolved")
	}

	select {
	case <-c.Done():
	default:
		t.Fatal("Done must be closed after Close")
	}
	require.ErrorIs(t, c.Err(), domain.ErrSessionClosed)

	// Calls after close fail immediately.
	_, err = c.Call(context.Background(), "http://x/procedures/anything")
	require.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestServerCloseSignalsDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		welcome, _ := encodeFrame(msgWelcome, "sess-1", protocolVersion, "testserver/1.0")
		conn.WriteMessage(websocket.TextMessage, welcome)
		conn.Close()
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := Dial(context.Background(), url, nil)
	require.NoError(t, err)

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after server hangup")
	}
	require.True(t, errors.Is(c.Err(), domain.ErrConnectionClosed))
}

func TestDecodeFrame(t *testing.T) {
	f, err := decodeFrame([]byte(`[8, "topic", {"k": 1}]`))
	require.NoError(t, err)
	assert.Equal(t, msgEvent, f.typ)

	topic, err := f.str(0)
	require.NoError(t, err)
	assert.Equal(t, "topic", topic)
	assert.JSONEq(t, `{"k":1}`, string(f.raw(1)))
	assert.Equal(t, "null", string(f.raw(5)))

	_, err = decodeFrame([]byte(`{}`))
	require.Error(t, err)
	_, err = decodeFrame([]byte(`[]`))
	require.Error(t, err)
	_, err = decodeFrame([]byte(`["welcome"]`))
	require.Error(t, err)
}
