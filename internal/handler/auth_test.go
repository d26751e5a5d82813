package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nafisb/gitdoor/internal/auth"
	"github.com/nafisb/gitdoor/internal/repository/sqlite"
	"github.com/nafisb/gitdoor/internal/service"
)

// =========================================================================
// FULL-STACK FIXTURE
// =========================================================================
//
// These tests run the real stack end to end: chi router → AuthHandler →
// AuthService → in-memory SQLite, with only GitHub itself replaced by an
// httptest server. This is deliberate — the interesting bugs in an OAuth
// flow live in the seams between the layers, not inside any one of them.

type authFixture struct {
	db     *sqlite.DB
	codec  *auth.Codec
	svc    *service.AuthService
	router *chi.Mux
}

// fakeGitHub impersonates GitHub's token endpoint and REST API.
func fakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "gho_testtoken",
			"token_type":   "bearer",
		})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":         42,
			"login":      "alice",
			"email":      "alice@example.com",
			"avatar_url": "https://avatars.example.com/alice",
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newAuthFixture wires the same dependency graph server.go builds, with an
// in-memory database and the fake GitHub server.
func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	codec, err := auth.NewCodec("test-secret-key-at-least-16-chars")
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	gh := auth.NewGitHubProviderForTest("client-id", "client-secret",
		"http://localhost/api/auth/github/callback", fakeGitHub(t).URL)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := service.NewAuthService(db.Users(), db.Sessions(), codec, logger)
	h := NewAuthHandler(gh, svc, logger, false)

	router := chi.NewRouter()
	router.Route("/api/auth", func(r chi.Router) {
		r.Get("/github", h.HandleGitHubLogin)
		r.Get("/github/callback", h.HandleGitHubCallback)
		r.Post("/refresh", h.HandleRefresh)
		r.Post("/logout", h.HandleLogout)
		r.With(auth.RequireUser(codec, db.Users())).Get("/me", h.HandleMe)
	})

	return &authFixture{db: db, codec: codec, svc: svc, router: router}
}

func (f *authFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

// login runs the whole callback flow and returns the two Set-Cookie values.
func (f *authFixture) login(t *testing.T) (access, refresh *http.Cookie) {
	t.Helper()

	state, err := f.svc.NewStateToken()
	if err != nil {
		t.Fatalf("NewStateToken() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet,
		"/api/auth/github/callback?code=good-code&state="+state, nil)
	rr := f.do(req)

	if rr.Code != http.StatusFound {
		t.Fatalf("callback status = %d, want 302", rr.Code)
	}
	for _, c := range rr.Result().Cookies() {
		switch c.Name {
		case auth.AccessCookie:
			access = c
		case auth.RefreshCookie:
			refresh = c
		}
	}
	if access == nil || refresh == nil {
		t.Fatalf("callback did not set both cookies, got %v", rr.Result().Cookies())
	}
	return access, refresh
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", rr.Body.String(), err)
	}
	return body.Error
}

// =========================================================================
// LOGIN REDIRECT TESTS
// =========================================================================

func TestHandleGitHubLogin_RedirectsWithState(t *testing.T) {
	f := newAuthFixture(t)

	rr := f.do(httptest.NewRequest(http.MethodGet, "/api/auth/github", nil))

	if rr.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rr.Code)
	}
	loc := rr.Header().Get("Location")
	if !strings.Contains(loc, "state=") {
		t.Errorf("Location = %q, missing state parameter", loc)
	}
	if !strings.Contains(loc, "client_id=client-id") {
		t.Errorf("Location = %q, missing client_id", loc)
	}
}

// =========================================================================
// CALLBACK TESTS
// =========================================================================

func TestHandleGitHubCallback_Success(t *testing.T) {
	f := newAuthFixture(t)

	access, refresh := f.login(t)

	// Both cookies must be HttpOnly with sane attributes.
	for _, c := range []*http.Cookie{access, refresh} {
		if !c.HttpOnly {
			t.Errorf("cookie %s is not HttpOnly", c.Name)
		}
		if c.Path != "/" {
			t.Errorf("cookie %s Path = %q, want /", c.Name, c.Path)
		}
	}

	// The user and identity rows must exist.
	user, err := f.db.Users().FindByGitHubID(context.Background(), 42)
	if err != nil {
		t.Fatalf("user for github ID 42 not found: %v", err)
	}
	if user.Login != "alice" {
		t.Errorf("Login = %q, want alice", user.Login)
	}

	// The refresh token must point at a real session row.
	claims, err := f.codec.Verify(auth.RefreshToken, refresh.Value)
	if err != nil {
		t.Fatalf("refresh cookie did not verify: %v", err)
	}
	session, err := f.db.Sessions().GetByID(context.Background(), claims.SessionID)
	if err != nil {
		t.Fatalf("session %s not found: %v", claims.SessionID, err)
	}
	if session.UserID != user.ID {
		t.Errorf("session.UserID = %q, want %q", session.UserID, user.ID)
	}
}

func TestHandleGitHubCallback_MissingParams(t *testing.T) {
	f := newAuthFixture(t)

	tests := []struct {
		name string
		url  string
	}{
		{"no params", "/api/auth/github/callback"},
		{"no state", "/api/auth/github/callback?code=abc"},
		{"no code", "/api/auth/github/callback?state=abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(httptest.NewRequest(http.MethodGet, tt.url, nil))
			if rr.Code != http.StatusFound {
				t.Fatalf("status = %d, want 302", rr.Code)
			}
			if loc := rr.Header().Get("Location"); loc != "/?error=missing_params" {
				t.Errorf("Location = %q, want /?error=missing_params", loc)
			}
		})
	}
}

func TestHandleGitHubCallback_ForgedState(t *testing.T) {
	f := newAuthFixture(t)

	rr := f.do(httptest.NewRequest(http.MethodGet,
		"/api/auth/github/callback?code=abc&state=forged", nil))

	if rr.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/?error=invalid_state" {
		t.Errorf("Location = %q, want /?error=invalid_state", loc)
	}
}

// A state token signed by us but older than the 10-minute window must be
// rejected exactly like a forged one.
func TestHandleGitHubCallback_StaleState(t *testing.T) {
	f := newAuthFixture(t)

	stale, err := f.codec.SignIssuedAt(auth.StateToken,
		auth.Claims{Nonce: "n"}, time.Now().Add(-11*time.Minute))
	if err != nil {
		t.Fatalf("signing stale state: %v", err)
	}

	rr := f.do(httptest.NewRequest(http.MethodGet,
		"/api/auth/github/callback?code=abc&state="+stale, nil))

	if loc := rr.Header().Get("Location"); loc != "/?error=invalid_state" {
		t.Errorf("Location = %q, want /?error=invalid_state", loc)
	}
}

func TestHandleGitHubCallback_ExchangeFails(t *testing.T) {
	f := newAuthFixture(t)

	state, err := f.svc.NewStateToken()
	if err != nil {
		t.Fatalf("NewStateToken() error = %v", err)
	}

	// The fake GitHub token endpoint accepts any code, so break the flow
	// further down: a provider pointed at a dead server fails the exchange.
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	gh := auth.NewGitHubProviderForTest("client-id", "client-secret",
		"http://localhost/cb", dead.URL)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	h := NewAuthHandler(gh, f.svc, logger, false)

	req := httptest.NewRequest(http.MethodGet,
		"/api/auth/github/callback?code=abc&state="+state, nil)
	rr := httptest.NewRecorder()
	h.HandleGitHubCallback(rr, req)

	if loc := rr.Header().Get("Location"); loc != "/?error=auth_failed" {
		t.Errorf("Location = %q, want /?error=auth_failed", loc)
	}
}

// =========================================================================
// REFRESH TESTS
// =========================================================================

func TestHandleRefresh_Success(t *testing.T) {
	f := newAuthFixture(t)
	_, refresh := f.login(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(refresh)
	rr := f.do(req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var newAccess *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.AccessCookie {
			newAccess = c
		}
	}
	if newAccess == nil {
		t.Fatal("refresh did not set a new access cookie")
	}
	if _, err := f.codec.Verify(auth.AccessToken, newAccess.Value); err != nil {
		t.Errorf("new access cookie did not verify: %v", err)
	}
}

func TestHandleRefresh_NoCookie(t *testing.T) {
	f := newAuthFixture(t)

	rr := f.do(httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if msg := decodeError(t, rr); msg != "No refresh token" {
		t.Errorf("error = %q, want %q", msg, "No refresh token")
	}
}

func TestHandleRefresh_SessionDeleted(t *testing.T) {
	f := newAuthFixture(t)
	_, refresh := f.login(t)

	// Revoke the session server-side; the cookie is untouched.
	claims, err := f.codec.Verify(auth.RefreshToken, refresh.Value)
	if err != nil {
		t.Fatalf("verifying refresh cookie: %v", err)
	}
	if err := f.db.Sessions().DeleteByID(context.Background(), claims.SessionID); err != nil {
		t.Fatalf("deleting session: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(refresh)
	rr := f.do(req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if msg := decodeError(t, rr); msg != "Session not found" {
		t.Errorf("error = %q, want %q", msg, "Session not found")
	}
}

func TestHandleRefresh_GarbageToken(t *testing.T) {
	f := newAuthFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: auth.RefreshCookie, Value: "garbage"})
	rr := f.do(req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if msg := decodeError(t, rr); msg != "Invalid refresh token" {
		t.Errorf("error = %q, want %q", msg, "Invalid refresh token")
	}
}

// =========================================================================
// LOGOUT TESTS
// =========================================================================

func TestHandleLogout_ClearsCookiesAndSession(t *testing.T) {
	f := newAuthFixture(t)
	access, refresh := f.login(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(access)
	req.AddCookie(refresh)
	rr := f.do(req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	for _, c := range rr.Result().Cookies() {
		if c.MaxAge >= 0 {
			t.Errorf("cookie %s MaxAge = %d, want negative (delete)", c.Name, c.MaxAge)
		}
	}

	// The session is gone, so the old refresh cookie is dead.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(refresh)
	if rr := f.do(req); rr.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout: status = %d, want 401", rr.Code)
	}
}

func TestHandleLogout_WithoutCookiesStillSucceeds(t *testing.T) {
	f := newAuthFixture(t)

	rr := f.do(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body map[string]bool
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || !body["success"] {
		t.Errorf("body = %q, want {\"success\":true}", rr.Body.String())
	}
}

// =========================================================================
// ME TESTS
// =========================================================================

func TestHandleMe_NoCookies(t *testing.T) {
	f := newAuthFixture(t)

	rr := f.do(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if msg := decodeError(t, rr); msg != "Unauthorized" {
		t.Errorf("error = %q, want %q", msg, "Unauthorized")
	}
}

func TestHandleMe_LoggedIn(t *testing.T) {
	f := newAuthFixture(t)
	access, _ := f.login(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(access)
	rr := f.do(req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var user struct {
		Login string `json:"login"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &user); err != nil {
		t.Fatalf("decoding user: %v", err)
	}
	if user.Login != "alice" {
		t.Errorf("login = %q, want alice", user.Login)
	}
}
