package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIssueAndLookup(t *testing.T) {
	m := NewManager()
	s := m.Issue("u1", "Alice", "a@b.co", "user")
	if s.Token == "" {
		t.Fatal("expected a token")
	}

	got, err := m.Lookup(s.Token)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.UserID != "u1" || got.Role != "user" {
		t.Fatalf("unexpected session: %+v", got)
	}

	if _, err := m.Lookup("not-a-token"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if _, err := m.Lookup(""); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession for empty token, got %v", err)
	}
}

func TestLookupExpiresAndSlides(t *testing.T) {
	m := NewManager()
	now := time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	s := m.Issue("u1", "Alice", "a@b.co", "user")

	// Repeated activity keeps the session alive past the original TTL.
	now = now.Add(20 * time.Hour)
	if _, err := m.Lookup(s.Token); err != nil {
		t.Fatalf("lookup at 20h: %v", err)
	}
	now = now.Add(20 * time.Hour)
	if _, err := m.Lookup(s.Token); err != nil {
		t.Fatalf("lookup at 40h after activity: %v", err)
	}

	now = now.Add(SessionTTL + time.Minute)
	if _, err := m.Lookup(s.Token); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	m := NewManager()
	s1 := m.Issue("u1", "Alice", "a@b.co", "user")
	s2 := m.Issue("u1", "Alice", "a@b.co", "user")
	other := m.Issue("u2", "Bobby", "b@b.co", "admin")

	m.Revoke(s1.Token)
	if _, err := m.Lookup(s1.Token); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected revoked token, got %v", err)
	}

	m.RevokeUser("u1")
	if _, err := m.Lookup(s2.Token); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected all u1 sessions revoked, got %v", err)
	}
	if _, err := m.Lookup(other.Token); err != nil {
		t.Fatalf("u2 session should survive: %v", err)
	}
}

func TestRequireSession(t *testing.T) {
	m := NewManager()
	s := m.Issue("u1", "Alice", "a@b.co", "user")

	var seen Session
	h := m.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r)
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: s.Token})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 with cookie, got %d", w.Code)
	}
	if seen.UserID != "u1" {
		t.Fatalf("expected session on context, got %+v", seen)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without cookie, got %d", w.Code)
	}
}

func TestRequireRole(t *testing.T) {
	m := NewManager()
	user := m.Issue("u1", "Alice", "a@b.co", "user")
	admin := m.Issue("u2", "Bobby", "b@b.co", "admin")

	h := m.RequireRole("admin", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: user.Token})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user role, got %d", w.Code)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/users", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: admin.Token})
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for admin role, got %d", w.Code)
	}
}

func TestCookieRoundTrip(t *testing.T) {
	m := NewManager()
	s := m.Issue("u1", "Alice", "a@b.co", "user")

	w := httptest.NewRecorder()
	SetCookie(w, s)
	res := w.Result()
	cookies := res.Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != CookieName || c.Value != s.Token || !c.HttpOnly {
		t.Fatalf("unexpected cookie: %+v", c)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(c)
	got, err := m.FromRequest(r)
	if err != nil {
		t.Fatalf("from request: %v", err)
	}
	if got.UserID != "u1" {
		t.Fatalf("unexpected session: %+v", got)
	}
}
