// Package session provides cookie-backed HTTP session primitives.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CookieName is the session cookie issued on login.
const CookieName = "wabcast_session"

type contextKey int

const emailKey contextKey = iota

// EmailFromContext extracts the authenticated account email from the
// request context. Empty when the request is unauthenticated.
func EmailFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(emailKey).(string); ok {
		return v
	}
	return ""
}

// WithEmail returns a context carrying the authenticated account email.
func WithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailKey, email)
}

type entry struct {
	email     string
	expiresAt time.Time
}

// Manager holds active session tokens in memory. Tokens have a fixed
// lifetime, independent of the account's subscription window, and die
// with the process.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]entry
	ttl      time.Duration
}

// NewManager creates a session manager with the given token lifetime.
func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]entry),
		ttl:      ttl,
	}
}

// Create issues a new session token for an account.
func (m *Manager) Create(email string) string {
	token := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = entry{
		email:     email,
		expiresAt: time.Now().Add(m.ttl),
	}
	return token
}

// Email resolves a token to its account email. Expired tokens are
// removed lazily on lookup.
func (m *Manager) Email(token string) (string, bool) {
	m.mu.RLock()
	e, ok := m.sessions[token]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	if time.Now().After(e.expiresAt) {
		m.Destroy(token)
		return "", false
	}
	return e.email, true
}

// Destroy invalidates a session token unconditionally.
func (m *Manager) Destroy(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

// TTL returns the configured token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// SetCookie writes the session cookie on a response.
func (m *Manager) SetCookie(w http.ResponseWriter, token string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		Expires:  time.Now().Add(m.ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// ClearCookie expires the session cookie on a response.
func (m *Manager) ClearCookie(w http.ResponseWriter, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// TokenFromRequest extracts the session token from the request cookie.
func TokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// Peek resolves the request's session without enforcing it. Used by the
// public /status endpoint.
func (m *Manager) Peek(r *http.Request) (string, bool) {
	token := TokenFromRequest(r)
	if token == "" {
		return "", false
	}
	return m.Email(token)
}
