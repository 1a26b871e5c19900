package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/curvewatch/curvewatch/internal/backoff"
)

// State is the connection lifecycle state, owned exclusively by the Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

var (
	// ErrNotConnected is returned by Session when no session is live.
	ErrNotConnected = errors.New("not connected")

	// ErrUnrecoverable is delivered on Fatal once the reconnect budget is
	// exhausted. The process is expected to exit non-zero.
	ErrUnrecoverable = errors.New("connection unrecoverable: reconnect attempts exhausted")
)

const (
	// DefaultProbeInterval is the health-probe period. Streaming transports
	// can stall silently without a transport error; the probe is the only
	// reliable detector.
	DefaultProbeInterval = 30 * time.Second

	// DefaultConfirmTimeout bounds the liveness confirmation after a dial.
	DefaultConfirmTimeout = 10 * time.Second

	// DefaultMaxReconnects is the reconnect attempt ceiling.
	DefaultMaxReconnects = 10

	// DefaultReconnectDelay is the flat wait between reconnect attempts.
	DefaultReconnectDelay = 5 * time.Second
)

// ManagerConfig tunes a Manager. Zero values fall back to the defaults.
type ManagerConfig struct {
	URL            string
	ProbeInterval  time.Duration
	ConfirmTimeout time.Duration
	MaxReconnects  int
	ReconnectDelay time.Duration
	Dialer         Dialer
	Logger         *slog.Logger
}

// Manager keeps one streaming session alive: connect, periodic health
// probe, error- and probe-triggered reconnects with a bounded attempt
// budget, graceful teardown.
type Manager struct {
	cfg    ManagerConfig
	policy backoff.Policy
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	session  Provider
	attempts int
	closed   bool

	probeOnce   sync.Once
	probeCancel context.CancelFunc

	sessions chan Provider
	fatal    chan error
	fatalSig sync.Once
}

// NewManager creates a Manager. Connect must be called to go live.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = DefaultMaxReconnects
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Dialer == nil {
		cfg.Dialer = Dial
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		cfg: cfg,
		// The reconnect delay is flat: base doubles into a max equal to
		// itself, so Delay(n) is constant at the configured delay.
		policy:   backoff.Fixed(cfg.ReconnectDelay),
		logger:   cfg.Logger.With("component", "connection-manager"),
		sessions: make(chan Provider, 1),
		fatal:    make(chan error, 1),
	}
}

// Connect dials the endpoint and confirms the session is live within the
// confirmation timeout; a timeout is a connect failure. On success the
// attempt counter resets, the health probe starts, and a session
// replacement notification is emitted. Calling Connect while an attempt is
// already in flight is a no-op: the in-flight attempt owns the outcome, and
// a second dial would leak its session handle.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrNotConnected
	}
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.mu.Unlock()

	return m.establish(ctx)
}

// establish dials, confirms and installs a new session. The caller owns the
// Connecting or Reconnecting state for the duration of the attempt.
func (m *Manager) establish(ctx context.Context) error {
	m.logger.Info("connecting", "url", m.cfg.URL)

	session, err := m.cfg.Dialer(ctx, m.cfg.URL)
	if err != nil {
		m.failConnect()
		return fmt.Errorf("dial %s: %w", m.cfg.URL, err)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, m.cfg.ConfirmTimeout)
	height, err := session.BlockNumber(confirmCtx)
	cancel()
	if err != nil {
		session.Close()
		m.failConnect()
		return fmt.Errorf("confirm session: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		session.Close()
		return ErrNotConnected
	}
	m.session = session
	m.state = StateConnected
	m.attempts = 0
	m.mu.Unlock()

	m.logger.Info("connected", "height", height)

	m.probeOnce.Do(func() {
		probeCtx, cancel := context.WithCancel(context.Background())
		m.probeCancel = cancel
		go m.probeLoop(probeCtx)
	})

	m.notifySession(session)
	return nil
}

func (m *Manager) failConnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateConnecting {
		m.state = StateDisconnected
	}
}

// notifySession publishes the replacement; a stale undelivered session is
// dropped first so the router always observes the newest one.
func (m *Manager) notifySession(p Provider) {
	select {
	case <-m.sessions:
	default:
	}
	m.sessions <- p
}

// Sessions delivers each newly live session. The subscription router
// reinstalls every filter on receipt; this makes reconnect-triggered
// re-subscription an explicit step.
func (m *Manager) Sessions() <-chan Provider {
	return m.sessions
}

// Fatal delivers ErrUnrecoverable exactly once if the reconnect budget is
// ever exhausted.
func (m *Manager) Fatal() <-chan error {
	return m.fatal
}

// Session returns the live session or ErrNotConnected.
func (m *Manager) Session() (Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.session == nil {
		return nil, ErrNotConnected
	}
	return m.session, nil
}

// ConnState reports the current lifecycle state.
func (m *Manager) ConnState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// NotifyError reports a transport-level error observed on the session
// (e.g. a subscription error) and triggers a reconnect.
func (m *Manager) NotifyError(ctx context.Context, err error) {
	m.logger.Error("session transport error", "error", err)
	m.Reconnect(ctx)
}

// Reconnect tears down the stale session and dials again with a flat delay
// between attempts, up to the configured ceiling. Invoking it while a
// reconnect is already in flight is a no-op, so a probe-triggered and an
// error-triggered reconnect cannot race. Exhausting the budget is terminal:
// state drops to Disconnected and Fatal fires.
func (m *Manager) Reconnect(ctx context.Context) {
	m.mu.Lock()
	if m.closed || m.state == StateReconnecting || m.state == StateConnecting {
		m.mu.Unlock()
		return
	}
	m.state = StateReconnecting
	stale := m.session
	m.session = nil
	m.mu.Unlock()

	if stale != nil {
		// Teardown failures on a dead session are expected; Close is
		// best-effort by contract.
		stale.Close()
	}

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.attempts++
		attempt := m.attempts
		m.mu.Unlock()

		if attempt > m.cfg.MaxReconnects {
			m.logger.Error("reconnect budget exhausted",
				"attempts", attempt-1,
				"ceiling", m.cfg.MaxReconnects,
			)
			m.mu.Lock()
			m.state = StateDisconnected
			m.mu.Unlock()
			m.fatalSig.Do(func() { m.fatal <- ErrUnrecoverable })
			return
		}

		delay := m.policy.Delay(attempt)
		m.logger.Warn("reconnecting",
			"attempt", attempt,
			"ceiling", m.cfg.MaxReconnects,
			"delay", delay,
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if err := m.establish(ctx); err != nil {
			m.logger.Error("reconnect attempt failed", "attempt", attempt, "error", err)
			continue
		}
		return
	}
}

// probeLoop periodically confirms session liveness and triggers a
// reconnect on probe failure. Runs until Disconnect.
func (m *Manager) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		session, err := m.Session()
		if err != nil {
			// Reconnect already in flight; the probe stays out of its way.
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ConfirmTimeout)
		_, err = session.BlockNumber(probeCtx)
		cancel()
		if err != nil {
			m.logger.Warn("health probe failed", "error", err)
			m.Reconnect(ctx)
		}
	}
}

// Disconnect stops the probe and tears the session down. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.state = StateDisconnected
	session := m.session
	m.session = nil
	cancel := m.probeCancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if session != nil {
		session.Close()
	}
	m.logger.Info("disconnected")
}

// BlockTimestamp fetches a block's timestamp in milliseconds through the
// live session, satisfying the block cache's time source.
func (m *Manager) BlockTimestamp(ctx context.Context, block uint64) (int64, error) {
	session, err := m.Session()
	if err != nil {
		return 0, err
	}
	header, err := session.HeaderByNumber(ctx, newBlockNumber(block))
	if err != nil {
		return 0, fmt.Errorf("header %d: %w", block, err)
	}
	if header == nil {
		return 0, fmt.Errorf("header %d: empty response", block)
	}
	return int64(header.Time) * 1000, nil
}
