package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/containerd/errdefs"
)

// Manager owns the process's single protocol session and drives its
// lifecycle state machine. All transitions are serialized under one
// mutex, so no two transitions race.
type Manager struct {
	mu       sync.Mutex
	dialer   Dialer
	creds    *CredentialStore
	state    State
	session  Session
	pairCode string
	attempts int
	stopped  bool
	gen      int

	// Reconnect backoff, capped. Overridable for tests.
	reconnectBase time.Duration
	reconnectCap  time.Duration
}

// NewManager creates a Manager in the idle state.
func NewManager(dialer Dialer, creds *CredentialStore) *Manager {
	return &Manager{
		dialer:        dialer,
		creds:         creds,
		state:         StateIdle,
		reconnectBase: time.Second,
		reconnectCap:  30 * time.Second,
	}
}

// SetReconnectBackoff overrides the reconnect delay parameters.
func (m *Manager) SetReconnectBackoff(base, cap time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnectBase = base
	m.reconnectCap = cap
}

// Start opens the protocol session. Idempotent: when a session is
// already live, pairing, or recovering, it reports started=false and
// does not open a second handle. A terminally logged-out connection may
// be started again, which begins a fresh pairing flow.
func (m *Manager) Start(ctx context.Context) (started bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle && m.state != StateClosedTerminal {
		slog.Info("Connection already started", "state", m.state.String())
		return false, nil
	}

	m.stopped = false
	if err := m.openSessionLocked(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// openSessionLocked loads credential material and dials. Caller holds mu.
func (m *Manager) openSessionLocked(ctx context.Context) error {
	creds, err := m.creds.Load()
	if err != nil {
		return fmt.Errorf("load credential material: %w", err)
	}

	// Events from a replaced session carry a stale generation and are
	// dropped so they cannot corrupt the current session's state.
	m.gen++
	gen := m.gen
	handlers := Handlers{
		OnPairCode:    func(code string) { m.handlePairCode(gen, code) },
		OnOpen:        func() { m.handleOpen(gen) },
		OnClosed:      func(reason CloseReason) { m.handleClosed(gen, reason) },
		OnCredentials: m.handleCredentials,
	}

	session, err := m.dialer.Dial(ctx, creds, handlers)
	if err != nil {
		return fmt.Errorf("open protocol session: %w", err)
	}

	m.session = session
	m.state = transition(m.state, EventDialed)
	slog.Info("Protocol session opened", "state", m.state.String(), "fresh_pairing", len(creds) == 0)
	return nil
}

func (m *Manager) handlePairCode(gen int, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return
	}
	m.state = transition(m.state, EventPairCode)
	if m.state != StateAwaitingPair {
		return
	}
	m.pairCode = code
	slog.Info("New pairing code received")
}

func (m *Manager) handleOpen(gen int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return
	}
	m.pairCode = ""
	m.attempts = 0
	m.state = transition(m.state, EventOpen)
	slog.Info("Protocol session connected")
}

func (m *Manager) handleClosed(gen int, reason CloseReason) {
	m.mu.Lock()

	if gen != m.gen {
		m.mu.Unlock()
		return
	}

	if m.session != nil {
		_ = m.session.Close()
		m.session = nil
	}

	if reason.LoggedOut() {
		m.pairCode = ""
		m.state = transition(m.state, EventClosedTerminal)
		slog.Info("Protocol session logged out, no reconnect")
		m.mu.Unlock()
		return
	}

	m.state = transition(m.state, EventClosedRecoverable)
	delay := m.reconnectDelayLocked()
	m.attempts++
	slog.Info("Protocol session closed, scheduling reconnect",
		"reason", string(reason),
		"attempt", m.attempts,
		"delay", delay)
	m.mu.Unlock()

	// Exactly one restart attempt per close event.
	go m.reconnect(delay)
}

// reconnectDelayLocked returns the capped exponential backoff delay for
// the current consecutive-failure count. Caller holds mu.
func (m *Manager) reconnectDelayLocked() time.Duration {
	delay := m.reconnectBase
	for i := 0; i < m.attempts; i++ {
		delay *= 2
		if delay >= m.reconnectCap {
			return m.reconnectCap
		}
	}
	if delay > m.reconnectCap {
		return m.reconnectCap
	}
	return delay
}

func (m *Manager) reconnect(delay time.Duration) {
	time.Sleep(delay)

	m.mu.Lock()
	if m.stopped || m.state != StateClosedRecoverable {
		m.mu.Unlock()
		return
	}

	err := m.openSessionLocked(context.Background())
	if err == nil {
		m.mu.Unlock()
		return
	}

	// Dial failed with no close event to drive another attempt, so
	// schedule the next retry here.
	next := m.reconnectDelayLocked()
	m.attempts++
	slog.Warn("Reconnect attempt failed", "error", err, "attempt", m.attempts, "delay", next)
	m.mu.Unlock()

	go m.reconnect(next)
}

func (m *Manager) handleCredentials(name string, data []byte) {
	// Must be durable before the next send; a crash after rotation
	// without persistence loses pairing and forces a re-pair.
	if err := m.creds.Save(name, data); err != nil {
		slog.Error("Failed to persist rotated credentials", "name", name, "error", err)
		return
	}
	slog.Debug("Credential material persisted", "name", name)
}

// PairCode returns the current pairing artifact. Fails with a not-found
// error once connected (nothing to pair) or when no code is pending.
func (m *Manager) PairCode() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateConnected {
		return "", fmt.Errorf("already connected: %w", errdefs.ErrNotFound)
	}
	if m.pairCode == "" {
		return "", fmt.Errorf("no pairing code available: %w", errdefs.ErrNotFound)
	}
	return m.pairCode, nil
}

// IsConnected reports whether a live, paired session exists.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected && m.session != nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SendText sends a text message over the live session. Fails with an
// unavailable error when no live session exists.
func (m *Manager) SendText(ctx context.Context, jid, text string) error {
	m.mu.Lock()
	session := m.session
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || session == nil {
		return fmt.Errorf("no live protocol session: %w", errdefs.ErrUnavailable)
	}
	return session.SendText(ctx, jid, text)
}

// Shutdown closes the session and suppresses pending reconnects. The
// manager returns to idle and may be started again.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopped = true
	if m.session != nil {
		_ = m.session.Close()
		m.session = nil
	}
	m.pairCode = ""
	m.state = StateIdle
}
