package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	cachememory "github.com/mkarimof/filedepot/internal/cache/memory"
	"github.com/mkarimof/filedepot/internal/identity"
	"github.com/mkarimof/filedepot/internal/store"
	storememory "github.com/mkarimof/filedepot/internal/store/memory"
)

func TestRequiresAuth(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodGet, "/api/health", false},
		{http.MethodPost, "/api/auth/login", false},
		{http.MethodPost, "/api/auth/register", false},
		{http.MethodGet, "/share/abc123", false},
		{http.MethodGet, "/webdav/share/abc123/docs/report.pdf", false},
		{http.MethodGet, "/api/files/f1", false},
		{http.MethodDelete, "/api/files/f1", true},
		{http.MethodPatch, "/api/files/f1", true},
		{http.MethodGet, "/api/files/f1/info", true},
		{http.MethodGet, "/api/folders", true},
		{http.MethodPost, "/api/auth/logout", true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(tt.method, tt.path, nil)
		if got := RequiresAuth(r); got != tt.want {
			t.Errorf("RequiresAuth(%s %s) = %v, want %v", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestTrustedProxiesClientIP(t *testing.T) {
	tp, err := NewTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("NewTrustedProxies: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:5000"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.1.2.3")
	if got := tp.ClientIPString(r); got != "203.0.113.9" {
		t.Errorf("trusted proxy XFF: got %s, want 203.0.113.9", got)
	}

	// Untrusted peers cannot spoof via forwarded headers.
	r.RemoteAddr = "198.51.100.7:5000"
	if got := tp.ClientIPString(r); got != "198.51.100.7" {
		t.Errorf("untrusted peer: got %s, want 198.51.100.7", got)
	}
}

func TestNewTrustedProxiesRejectsGarbage(t *testing.T) {
	if _, err := NewTrustedProxies([]string{"not-a-cidr"}); err == nil {
		t.Error("expected error for invalid CIDR")
	}
}

func newGateFixture(t *testing.T) (func(http.Handler) http.Handler, *identity.Session) {
	t.Helper()
	ctx := context.Background()

	stores, err := storememory.NewDriver(&store.DriverConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("memory driver: %v", err)
	}
	user := &store.User{ID: "u1", Username: "alice", PasswordHash: "x"}
	if err := stores.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	sessions := identity.NewCacheSessionRepo(cachememory.New(time.Hour, 0))
	session, err := sessions.Create(ctx, user.ID, time.Hour)
	if err != nil {
		t.Fatalf("session Create: %v", err)
	}

	gate := NewAuthGate(AuthGateConfig{
		RequireAuth: RequiresAuth,
		Sessions:    sessions,
		Users:       stores,
	})
	return gate, session
}

func TestAuthGateRejectsMissingSession(t *testing.T) {
	gate, _ := newGateFixture(t)
	handler := gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run without a session")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/folders", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestAuthGateAcceptsCookie(t *testing.T) {
	gate, session := newGateFixture(t)
	var seenUser string
	handler := gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := GetUserFromContext(r.Context()); ok {
			seenUser = u.Username
		}
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/folders", nil)
	r.AddCookie(&http.Cookie{Name: "session", Value: session.Token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seenUser != "alice" {
		t.Errorf("user in context = %q, want alice", seenUser)
	}
}

func TestAuthGateAcceptsBearer(t *testing.T) {
	gate, session := newGateFixture(t)
	handler := gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetSessionFromContext(r.Context()); !ok {
			t.Error("session missing from context")
		}
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/folders", nil)
	r.Header.Set("Authorization", "Bearer "+session.Token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAuthGatePassesPublicPaths(t *testing.T) {
	gate, _ := newGateFixture(t)
	called := false
	handler := gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := GetUserFromContext(r.Context()); ok {
			t.Error("anonymous request should have no user in context")
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/share/sometoken", nil))
	if !called {
		t.Fatal("handler not reached on public path")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
