package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/nafisb/gitdoor/internal/auth"
	"github.com/nafisb/gitdoor/internal/service"
)

// AuthHandler manages the GitHub OAuth login flow and the token lifecycle.
//
// HANDLER RESPONSIBILITIES:
//   - HandleGitHubLogin    → mint a signed state token, redirect to GitHub
//   - HandleGitHubCallback → verify state, exchange the code, set both cookies
//   - HandleRefresh        → trade the refresh cookie for a new access cookie
//   - HandleLogout         → revoke the session, clear both cookies
//   - HandleMe             → return the logged-in user's profile
//
// DEPENDENCY CHAIN:
//   - github *auth.GitHubProvider → performs the OAuth code exchange
//   - authSvc *service.AuthService → owns every auth business rule
//
// The handler layer only translates HTTP (cookies, query params, redirects)
// to and from service calls. No business logic lives here.
type AuthHandler struct {
	github        *auth.GitHubProvider
	authSvc       *service.AuthService
	logger        *slog.Logger
	secureCookies bool
}

// NewAuthHandler creates an AuthHandler. All dependencies are injected here;
// the handler has no knowledge of how they're constructed.
//
// secureCookies should be true whenever the app is served over HTTPS (the
// server derives it from the APP_URL scheme).
func NewAuthHandler(
	github *auth.GitHubProvider,
	authSvc *service.AuthService,
	logger *slog.Logger,
	secureCookies bool,
) *AuthHandler {
	return &AuthHandler{
		github:        github,
		authSvc:       authSvc,
		logger:        logger,
		secureCookies: secureCookies,
	}
}

// setTokenCookie writes one of the two auth cookies.
//
// HttpOnly = JavaScript cannot read the cookie (XSS protection).
// SameSite=Lax = sent on top-level navigations but not cross-site POSTs.
// MaxAge mirrors the token's own TTL so browser expiry and JWT expiry agree.
func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, name, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearCookie tells the browser to delete a cookie immediately.
func (h *AuthHandler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// redirectWithError sends the browser back to the app home page with an
// error code in the query string. The frontend turns the code into a
// user-visible message; the log line carries the real reason.
func redirectWithError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, "/?error="+code, http.StatusFound)
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /api/auth/github
//
// CSRF PROTECTION VIA SIGNED STATE:
// The state parameter is a short-lived signed token, not a random string in
// a cookie. Nothing is stored server-side: the signature proves this server
// minted the state, and the embedded issue time bounds its life to 10
// minutes. HandleGitHubCallback verifies both on the way back.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state, err := h.authSvc.NewStateToken()
	if err != nil {
		h.logger.Error("login: minting state token failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusFound)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /api/auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Require both code and state params   (fail → /?error=missing_params)
//  2. Verify the signed state token        (fail → /?error=invalid_state)
//  3. Exchange the code for a GitHub user  (fail → /?error=auth_failed)
//  4. Upsert user, open session, mint both tokens
//  5. Set cookies and redirect to the app home page
//
// Failures redirect rather than returning a bare error page: the browser is
// mid-navigation here, so the user should land back in the app either way.
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		h.logger.Warn("auth callback: missing code or state")
		redirectWithError(w, r, "missing_params")
		return
	}

	if err := h.authSvc.VerifyStateToken(state); err != nil {
		h.logger.Warn("auth callback: state verification failed", slog.String("error", err.Error()))
		redirectWithError(w, r, "invalid_state")
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		redirectWithError(w, r, "auth_failed")
		return
	}

	result, err := h.authSvc.LoginWithGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("auth callback: login failed",
			slog.Int64("githubID", ghUser.ID),
			slog.String("error", err.Error()),
		)
		redirectWithError(w, r, "auth_failed")
		return
	}

	h.setTokenCookie(w, auth.AccessCookie, result.AccessToken, auth.AccessToken.TTL())
	h.setTokenCookie(w, auth.RefreshCookie, result.RefreshToken, auth.RefreshToken.TTL())

	http.Redirect(w, r, "/", http.StatusFound)
}

// HandleRefresh trades the refresh cookie for a fresh access cookie.
//
// HTTP: POST /api/auth/refresh
//
// The refresh token itself is not rotated; only the access cookie changes.
// The frontend calls this when an API request comes back 401, then retries.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.RefreshCookie)
	if err != nil || cookie.Value == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "No refresh token"})
		return
	}

	accessToken, err := h.authSvc.Refresh(r.Context(), cookie.Value)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, auth.AccessCookie, accessToken, auth.AccessToken.TTL())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleLogout revokes the session and clears both cookies.
//
// HTTP: POST /api/auth/logout
//
// WHY POST AND NOT GET?
// Logout is a state-changing operation. GET would be vulnerable to CSRF and
// to browsers pre-fetching the URL.
//
// Logout always answers 200: whatever state the cookies were in, the user
// ends up logged out.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var refreshToken string
	if cookie, err := r.Cookie(auth.RefreshCookie); err == nil {
		refreshToken = cookie.Value
	}

	h.authSvc.Logout(r.Context(), refreshToken)

	h.clearCookie(w, auth.AccessCookie)
	h.clearCookie(w, auth.RefreshCookie)

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleMe returns the currently authenticated user's profile.
//
// HTTP: GET /api/auth/me
// Auth: Required (auth.RequireUser loads the user into the context)
//
// The frontend calls this on app load to know who is logged in.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		// Unreachable on a RequireUser-protected route, but be safe.
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}

	writeJSON(w, http.StatusOK, user)
}
