// Package auth issues and validates the opaque session tokens the
// dashboard API uses. Tokens live in an HttpOnly cookie and map to an
// in-memory session record with a sliding 24h expiry.
package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionTTL is how long a login remains valid without re-authenticating.
const SessionTTL = 24 * time.Hour

// CookieName is the session cookie issued on login.
const CookieName = "remanet_session"

// ErrNoSession is returned when a token is missing, unknown, or expired.
var ErrNoSession = errors.New("no active session")

// Session is a live login.
type Session struct {
	Token     string    `json:"-"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Manager stores sessions in memory. Restarting the server logs
// everyone out, which is acceptable for a single-node dashboard.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]Session
	now      func() time.Time
}

// NewManager returns an empty session manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

// Issue creates a session for the given account and returns it with a
// fresh token.
func (m *Manager) Issue(userID, name, email, role string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()

	s := Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Email:     email,
		Role:      role,
		ExpiresAt: m.now().Add(SessionTTL),
	}
	m.sessions[s.Token] = s
	return s
}

// Lookup resolves a token to its session, extending the expiry.
func (m *Manager) Lookup(token string) (Session, error) {
	if token == "" {
		return Session{}, ErrNoSession
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok || m.now().After(s.ExpiresAt) {
		delete(m.sessions, token)
		return Session{}, ErrNoSession
	}
	s.ExpiresAt = m.now().Add(SessionTTL)
	m.sessions[token] = s
	return s, nil
}

// Revoke removes a session. Revoking an unknown token is a no-op.
func (m *Manager) Revoke(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

// RevokeUser removes every session belonging to a user, for account
// deletion and password changes.
func (m *Manager) RevokeUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, token)
		}
	}
}

func (m *Manager) pruneLocked() {
	now := m.now()
	for token, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			delete(m.sessions, token)
		}
	}
}

// SetCookie attaches the session cookie to a response.
func SetCookie(w http.ResponseWriter, s Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest resolves the session cookie on a request.
func (m *Manager) FromRequest(r *http.Request) (Session, error) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return Session{}, ErrNoSession
	}
	return m.Lookup(c.Value)
}

type contextKey struct{}

// sessionKey carries the resolved session through middleware.
var sessionKey contextKey

// FromContext returns the session stored by RequireSession.
func FromContext(r *http.Request) (Session, bool) {
	s, ok := r.Context().Value(sessionKey).(Session)
	return s, ok
}

// RequireSession rejects requests without a valid session cookie and
// stores the session on the request context for downstream handlers.
func (m *Manager) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.FromRequest(r)
		if err != nil {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, withSession(r, s))
	})
}

// RequireRole further restricts a route to sessions with the given role.
func (m *Manager) RequireRole(role string, next http.Handler) http.Handler {
	return m.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r)
		if s.Role != role {
			http.Error(w, "insufficient privileges", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func withSession(r *http.Request, s Session) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), sessionKey, s))
}
