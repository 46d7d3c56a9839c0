// Package session owns the connection lifecycle and the authentication state
// machine. Every outbound operation is gated on session state: remote calls
// are valid only once authenticated, except the two handshake procedures,
// which require a plain connected session.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quantevo/tradedesk/internal/crypto"
	"github.com/quantevo/tradedesk/internal/domain"
	"github.com/quantevo/tradedesk/internal/transport"
)

// State is the session lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Authenticating
	Authenticated
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handshake procedure URIs. These are the only calls permitted before the
// session is authenticated.
const (
	ProcAuthReq = "http://api.wamp.ws/procedure#authreq"
	ProcAuth    = "http://api.wamp.ws/procedure#auth"
)

// Dialer opens one transport connection. It must perform a single attempt;
// the session applies the retry policy around it.
type Dialer func(ctx context.Context) (transport.Transport, error)

// RetryPolicy bounds connection attempts: at most MaxRetries attempts with a
// fixed Delay between them. Exhausting the budget is terminal.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// Config configures a Session.
type Config struct {
	Dial  Dialer
	Retry RetryPolicy

	// OnConnect fires after each successful transition to Connected. The
	// session never triggers initial data loads itself; the owning
	// application does that from this hook.
	OnConnect func()

	// OnClose fires when an established connection ends for any reason other
	// than an explicit Close/Logout. A clean close is reported as
	// domain.ErrConnectionClosed: the caller must reinitialise the session
	// from scratch, subscriptions included.
	OnClose func(err error)

	Logger *slog.Logger
}

// Session is the single shared mutable resource of the client: it owns the
// transport handle and the retry state, and every mutation passes through
// its state transitions.
type Session struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	state State
	tr    transport.Transport
	gen   int // connection generation, invalidates stale watch goroutines
}

// New creates a disconnected session.
func New(cfg Config) (*Session, error) {
	if cfg.Dial == nil {
		return nil, errors.New("session: Dial is required")
	}
	if cfg.Retry.MaxRetries <= 0 {
		return nil, fmt.Errorf("session: MaxRetries must be positive, got %d", cfg.Retry.MaxRetries)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "session")),
		state:  Disconnected,
	}, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect drives Disconnected → Connecting → Connected, retrying failed
// attempts per the retry policy. An unsupported-client response is fatal:
// the session moves to Failed and no further attempt is made, now or on a
// later Connect call. Exhausting the retry budget is equally terminal.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Failed:
		s.mu.Unlock()
		return fmt.Errorf("session: %w", domain.ErrUnsupportedClient)
	case Disconnected:
		// proceed
	default:
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("session: connect from state %s", st)
	}
	s.state = Connecting
	s.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= s.cfg.Retry.MaxRetries; attempt++ {
		tr, err := s.cfg.Dial(ctx)
		if err == nil {
			s.established(tr)
			return nil
		}
		lastErr = err

		if errors.Is(err, domain.ErrUnsupportedClient) {
			s.setState(Failed)
			s.logger.Error("unsupported client, giving up", slog.String("error", err.Error()))
			return err
		}

		s.logger.Warn("connect attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max", s.cfg.Retry.MaxRetries),
			slog.String("error", err.Error()),
		)

		if attempt == s.cfg.Retry.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			s.setState(Disconnected)
			return ctx.Err()
		case <-time.After(s.cfg.Retry.Delay):
		}
	}

	s.setState(Failed)
	return fmt.Errorf("session: %w after %d attempts: %v",
		domain.ErrConnectionFailed, s.cfg.Retry.MaxRetries, lastErr)
}

// established installs a live transport, fires OnConnect, and starts the
// close watcher for this connection generation.
func (s *Session) established(tr transport.Transport) {
	s.mu.Lock()
	s.tr = tr
	s.state = Connected
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	s.logger.Info("connected")
	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect()
	}

	go s.watch(tr, gen)
}

// watch waits for the transport to die and resets the session, unless an
// explicit Close already moved the machine on.
func (s *Session) watch(tr transport.Transport, gen int) {
	<-tr.Done()

	s.mu.Lock()
	if s.gen != gen || s.tr == nil {
		// Explicit Close or a newer connection owns the state now.
		s.mu.Unlock()
		return
	}
	s.tr = nil
	s.state = Disconnected
	s.mu.Unlock()

	cause := tr.Err()
	if cause == nil || errors.Is(cause, domain.ErrSessionClosed) {
		cause = domain.ErrConnectionClosed
	}
	s.logger.Warn("connection lost", slog.String("error", cause.Error()))
	if s.cfg.OnClose != nil {
		s.cfg.OnClose(cause)
	}
}

// Login performs the challenge-response handshake with the given identity
// and secret. The secret and the derived key never leave this function;
// only the challenge signature crosses the transport. On rejection the
// session returns to Connected and the caller may retry with new
// credentials.
func (s *Session) Login(ctx context.Context, identity, secret string) error {
	s.mu.Lock()
	if s.state != Connected {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("session: login from state %s: %w", st, domain.ErrNotAuthenticated)
	}
	s.state = Authenticating
	tr := s.tr
	s.mu.Unlock()

	challenge, err := s.requestChallenge(ctx, tr, identity)
	if err != nil {
		s.transition(Authenticating, Connected)
		return fmt.Errorf("session: challenge request: %w: %v", domain.ErrLoginFailed, err)
	}

	var extra struct {
		Authextra crypto.ChallengeParams `json:"authextra"`
	}
	if err := json.Unmarshal([]byte(challenge), &extra); err != nil {
		s.transition(Authenticating, Connected)
		return fmt.Errorf("session: malformed challenge: %w: %v", domain.ErrLoginFailed, err)
	}

	key, err := crypto.DeriveKey(secret, extra.Authextra)
	if err != nil {
		s.transition(Authenticating, Connected)
		return fmt.Errorf("session: %w: %v", domain.ErrLoginFailed, err)
	}
	signature := crypto.SignChallenge(challenge, key)

	if _, err := tr.Call(ctx, ProcAuth, signature); err != nil {
		s.transition(Authenticating, Connected)
		return fmt.Errorf("session: %w: %v", domain.ErrLoginFailed, err)
	}

	s.transition(Authenticating, Authenticated)
	s.logger.Info("authenticated", slog.String("identity", identity))
	return nil
}

// requestChallenge calls authreq and decodes the JSON-encoded challenge
// string the server returns. The whole string is later signed, so it is kept
// verbatim.
func (s *Session) requestChallenge(ctx context.Context, tr transport.Transport, identity string) (string, error) {
	raw, err := tr.Call(ctx, ProcAuthReq, identity)
	if err != nil {
		return "", err
	}
	var challenge string
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return "", fmt.Errorf("decoding challenge: %w", err)
	}
	return challenge, nil
}

// Call invokes a remote procedure through the session's gate: handshake
// procedures require Connected, everything else requires Authenticated.
func (s *Session) Call(ctx context.Context, proc string, args ...any) (json.RawMessage, error) {
	s.mu.Lock()
	st := s.state
	tr := s.tr
	s.mu.Unlock()

	switch proc {
	case ProcAuthReq, ProcAuth:
		if st != Connected {
			return nil, fmt.Errorf("session: %s requires a connected session, state is %s: %w",
				proc, st, domain.ErrNotAuthenticated)
		}
	default:
		if st != Authenticated {
			return nil, fmt.Errorf("session: call %s in state %s: %w", proc, st, domain.ErrNotAuthenticated)
		}
	}
	return tr.Call(ctx, proc, args...)
}

// Subscribe registers a topic handler. Requires an authenticated session.
// Subscriptions do not survive a reconnect; the caller re-establishes them.
func (s *Session) Subscribe(topic string, h transport.Handler) error {
	s.mu.Lock()
	st := s.state
	tr := s.tr
	s.mu.Unlock()

	if st != Authenticated {
		return fmt.Errorf("session: subscribe %s in state %s: %w", topic, st, domain.ErrNotAuthenticated)
	}
	return tr.Subscribe(topic, h)
}

// Logout closes the transport and clears the session. Pending calls resolve
// with domain.ErrSessionClosed inside the transport.
func (s *Session) Logout() error {
	return s.Close()
}

// Close tears the session down. Safe in any state; Failed stays Failed.
func (s *Session) Close() error {
	s.mu.Lock()
	tr := s.tr
	s.tr = nil
	if s.state != Failed {
		s.state = Disconnected
	}
	s.gen++ // detach the watcher for the old connection
	s.mu.Unlock()

	if tr != nil {
		return tr.Close()
	}
	return nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// transition moves the machine from one state to another, but only if it is
// still in the expected state; a concurrent disconnect wins otherwise.
func (s *Session) transition(from, to State) {
	s.mu.Lock()
	if s.state == from {
		s.state = to
	}
	s.mu.Unlock()
}
