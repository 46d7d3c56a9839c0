package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantevo/tradedesk/internal/domain"
	"github.com/quantevo/tradedesk/internal/transport"
)

// fakeTransport implements transport.Transport in memory. Calls are routed
// to the configured handler; Close resolves Done like the real thing.
type fakeTransport struct {
	handler func(proc string, args []any) (json.RawMessage, error)
	calls   []string
	done    chan struct{}
	err     error
}

func newFakeTransport(handler func(proc string, args []any) (json.RawMessage, error)) *fakeTransport {
	return &fakeTransport{handler: handler, done: make(chan struct{})}
}

func (f *fakeTransport) Call(_ context.Context, proc string, args ...any) (json.RawMessage, error) {
	f.calls = append(f.calls, proc)
	if f.handler == nil {
		return json.RawMessage("null"), nil
	}
	return f.handler(proc, args)
}

func (f *fakeTransport) Subscribe(string, transport.Handler) error { return nil }
func (f *fakeTransport) Unsubscribe(string) error                  { return nil }

func (f *fakeTransport) Close() error {
	select {
	case <-f.done:
	default:
		f.err = domain.ErrSessionClosed
		close(f.done)
	}
	return nil
}

func (f *fakeTransport) Done() <-chan struct{} { return f.done }
func (f *fakeTransport) Err() error            { return f.err }

// challengeHandler implements the server side of a successful handshake.
func challengeHandler(t *testing.T) func(proc string, args []any) (json.RawMessage, error) {
	t.Helper()
	challenge := `{"authextra":{"keylen":32,"salt":"pepper","iterations":1000},"challenge":"nonce"}`
	encoded, err := json.Marshal(challenge)
	require.NoError(t, err)

	return func(proc string, args []any) (json.RawMessage, error) {
		switch proc {
		case ProcAuthReq:
			return encoded, nil
		case ProcAuth:
			return json.RawMessage(`{"permissions":[]}`), nil
		default:
			return json.RawMessage("null"), nil
		}
	}
}

func newSession(t *testing.T, dial Dialer, retries int) *Session {
	t.Helper()
	s, err := New(Config{
		Dial:  dial,
		Retry: RetryPolicy{MaxRetries: retries, Delay: time.Millisecond},
	})
	require.NoError(t, err)
	return s
}

func TestConnectSuccess(t *testing.T) {
	tr := newFakeTransport(nil)
	connected := false

	s, err := New(Config{
		Dial:      func(context.Context) (transport.Transport, error) { return tr, nil },
		Retry:     RetryPolicy{MaxRetries: 1, Delay: time.Millisecond},
		OnConnect: func() { connected = true },
	})
	require.NoError(t, err)

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, Connected, s.State())
	assert.True(t, connected, "OnConnect hook must fire")
}

func TestConnectRetriesExactlyMaxTimes(t *testing.T) {
	attempts := 0
	dial := func(context.Context) (transport.Transport, error) {
		attempts++
		return nil, fmt.Errorf("dial: %w", domain.ErrConnectionFailed)
	}

	s := newSession(t, dial, 2)
	err := s.Connect(context.Background())

	require.ErrorIs(t, err, domain.ErrConnectionFailed)
	assert.Equal(t, 2, attempts, "must never dial a third time")
	assert.Equal(t, Failed, s.State())
}

func TestUnsupportedClientIsTerminal(t *testing.T) {
	attempts := 0
	dial := func(context.Context) (transport.Transport, error) {
		attempts++
		return nil, fmt.Errorf("dial: %w", domain.ErrUnsupportedClient)
	}

	s := newSession(t, dial, 5)

	err := s.Connect(context.Background())
	require.ErrorIs(t, err, domain.ErrUnsupportedClient)
	assert.Equal(t, 1, attempts, "unsupported client must not be retried")
	assert.Equal(t, Failed, s.State())

	// A later Connect must not dial again.
	err = s.Connect(context.Background())
	require.ErrorIs(t, err, domain.ErrUnsupportedClient)
	assert.Equal(t, 1, attempts)
}

func TestLoginHappyPath(t *testing.T) {
	tr := newFakeTransport(challengeHandler(t))
	s := newSession(t, func(context.Context) (transport.Transport, error) { return tr, nil }, 1)

	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Login(context.Background(), "alice", "hunter2"))
	assert.Equal(t, Authenticated, s.State())
	assert.Equal(t, []string{ProcAuthReq, ProcAuth}, tr.calls)
}

func TestLoginRejectedReturnsToConnected(t *testing.T) {
	challenge, _ := json.Marshal(`{"authextra":{"keylen":32,"salt":"s","iterations":1000}}`)
	tr := newFakeTransport(func(proc string, args []any) (json.RawMessage, error) {
		if proc == ProcAuthReq {
			return challenge, nil
		}
		return nil, &domain.RemoteError{URI: "error#auth", Description: "bad signature"}
	})
	s := newSession(t, func(context.Context) (transport.Transport, error) { return tr, nil }, 1)

	require.NoError(t, s.Connect(context.Background()))
	err := s.Login(context.Background(), "alice", "wrong")

	require.ErrorIs(t, err, domain.ErrLoginFailed)
	assert.Equal(t, Connected, s.State(), "a failed login leaves the session connected")
}

func TestLoginChallengeFailure(t *testing.T) {
	tr := newFakeTransport(func(proc string, args []any) (json.RawMessage, error) {
		return nil, &domain.RemoteError{URI: "error#no_such_user"}
	})
	s := newSession(t, func(context.Context) (transport.Transport, error) { return tr, nil }, 1)

	require.NoError(t, s.Connect(context.Background()))
	err := s.Login(context.Background(), "nobody", "x")

	require.ErrorIs(t, err, domain.ErrLoginFailed)
	assert.Equal(t, Connected, s.State())
}

func TestCallGating(t *testing.T) {
	tr := newFakeTransport(challengeHandler(t))
	s := newSession(t, func(context.Context) (transport.Transport, error) { return tr, nil }, 1)
	ctx := context.Background()

	// Disconnected: everything refused.
	_, err := s.Call(ctx, "http://example.com/procedures/get_positions")
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)

	require.NoError(t, s.Connect(ctx))

	// Connected: ordinary procedures still refused, handshake allowed.
	_, err = s.Call(ctx, "http://example.com/procedures/get_positions")
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)
	_, err = s.Call(ctx, ProcAuthReq, "alice")
	require.NoError(t, err)

	require.NoError(t, s.Login(ctx, "alice", "hunter2"))

	// Authenticated: ordinary procedures pass through, handshake procedures
	// are no longer valid.
	_, err = s.Call(ctx, "http://example.com/procedures/get_positions")
	require.NoError(t, err)
	_, err = s.Call(ctx, ProcAuthReq, "alice")
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestSubscribeRequiresAuthenticated(t *testing.T) {
	tr := newFakeTransport(challengeHandler(t))
	s := newSession(t, func(context.Context) (transport.Transport, error) { return tr, nil }, 1)
	ctx := context.Background()

	require.NoError(t, s.Connect(ctx))
	err := s.Subscribe("topic", func(json.RawMessage) {})
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)

	require.NoError(t, s.Login(ctx, "alice", "hunter2"))
	require.NoError(t, s.Subscribe("topic", func(json.RawMessage) {}))
}

func TestTransportDeathResetsSession(t *testing.T) {
	tr := newFakeTransport(challengeHandler(t))
	closed := make(chan error, 1)

	s, err := New(Config{
		Dial:    func(context.Context) (transport.Transport, error) { return tr, nil },
		Retry:   RetryPolicy{MaxRetries: 1, Delay: time.Millisecond},
		OnClose: func(err error) { closed <- err },
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Login(ctx, "alice", "hunter2"))

	// Simulate the connection dying underneath the session.
	tr.err = domain.ErrConnectionClosed
	close(tr.done)

	select {
	case err := <-closed:
		require.ErrorIs(t, err, domain.ErrConnectionClosed)
	case <-time.After(time.Second):
		t.Fatal("OnClose not fired")
	}
	assert.Equal(t, Disconnected, s.State())
}

func TestExplicitCloseDoesNotFireOnClose(t *testing.T) {
	tr := newFakeTransport(nil)
	closed := make(chan error, 1)

	s, err := New(Config{
		Dial:    func(context.Context) (transport.Transport, error) { return tr, nil },
		Retry:   RetryPolicy{MaxRetries: 1, Delay: time.Millisecond},
		OnClose: func(err error) { closed <- err },
	})
	require.NoError(t, err)

	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Close())
	assert.Equal(t, Disconnected, s.State())

	select {
	case err := <-closed:
		t.Fatalf("OnClose fired for explicit close: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnectContextCancelledBetweenRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	dial := func(context.Context) (transport.Transport, error) {
		attempts++
		cancel()
		return nil, errors.New("refused")
	}

	s := newSession(t, dial, 5)
	err := s.Connect(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, Disconnected, s.State())
}
