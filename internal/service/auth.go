// Package service — authentication business logic.
//
// AuthService is the business logic layer for authentication. It sits
// between the HTTP handlers and the repository/auth utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserDirectory (DB)
//	                                                  → SessionStore  (DB)
//	                                                  ↘ auth.Codec (JWTs)
//
// KEY RESPONSIBILITIES:
//   - Orchestrate the GitHub OAuth callback: upsert the user, open a
//     session, issue the access/refresh token pair
//   - Own the refresh and logout rules (expiry checks, lazy sweeping)
//   - Encapsulate all auth rules in one place, away from HTTP concerns
//   - Be easily testable with mock dependencies
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/nafisb/gitdoor/internal/apperror"
	"github.com/nafisb/gitdoor/internal/auth"
	"github.com/nafisb/gitdoor/internal/model"
	"github.com/nafisb/gitdoor/internal/repository"
)

// AuthService handles the authentication business logic.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users    repository.UserDirectory → read/write user + identity records
//   - sessions repository.SessionStore  → refresh-token session rows
//   - codec    *auth.Codec              → sign/verify the three token kinds
//   - logger   *slog.Logger             → structured logging
type AuthService struct {
	users    repository.UserDirectory
	sessions repository.SessionStore
	codec    *auth.Codec
	logger   *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
// Call this in server.go when wiring the dependency graph.
func NewAuthService(
	users repository.UserDirectory,
	sessions repository.SessionStore,
	codec *auth.Codec,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		codec:    codec,
		logger:   logger,
	}
}

// AuthResult is returned by LoginWithGitHub. It bundles everything the HTTP
// handler needs to finish the callback: the user record and both freshly
// minted tokens for the cookies.
type AuthResult struct {
	User         *model.User
	IsNew        bool
	AccessToken  string
	RefreshToken string
}

// NewStateToken mints the signed CSRF state for the OAuth redirect.
//
// The token is stateless: nothing is stored server-side. The random nonce
// makes every redirect's state unique; the signature and the embedded
// issue time are what VerifyStateToken checks on the way back.
func (s *AuthService) NewStateToken() (string, error) {
	token, err := s.codec.Sign(auth.StateToken, auth.Claims{Nonce: xid.New().String()})
	if err != nil {
		return "", fmt.Errorf("service/auth: minting state token: %w", err)
	}
	return token, nil
}

// VerifyStateToken checks the state returned by the provider callback.
// Any error means the callback cannot be trusted (forged, tampered, or
// older than the 10-minute window).
func (s *AuthService) VerifyStateToken(token string) error {
	if _, err := s.codec.Verify(auth.StateToken, token); err != nil {
		return fmt.Errorf("service/auth: %w", err)
	}
	return nil
}

// LoginWithGitHub completes a successful OAuth callback.
//
// After the handler exchanges the GitHub code for a profile, this method:
//
//  1. Upserts the user (create user + identity on first login, refresh the
//     mirrored profile fields on every later one)
//  2. Creates a session row with a fresh random ID, expiring in 30 days
//  3. Mints the access token (15 min, carries the username) and the refresh
//     token (30 days, carries the session ID)
//
// Two devices logging in as the same GitHub account simply get two session
// rows — logins are never serialised against each other.
func (s *AuthService) LoginWithGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user, isNew, err := s.users.UpsertFromGitHub(ctx, repository.GitHubProfile{
		ID:        ghUser.ID,
		Login:     ghUser.Login,
		Email:     ghUser.Email,
		AvatarURL: ghUser.AvatarURL,
	})
	if err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	session := &model.Session{
		ID:        xid.New().String(),
		UserID:    user.ID,
		ExpiresAt: time.Now().UTC().Add(auth.RefreshToken.TTL()),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("service/auth: creating session for user %s: %w", user.ID, err)
	}

	accessToken, err := s.codec.Sign(auth.AccessToken, auth.Claims{
		Username:         user.Login,
		RegisteredClaims: auth.Subject(user.ID),
	})
	if err != nil {
		return nil, fmt.Errorf("service/auth: signing access token: %w", err)
	}

	refreshToken, err := s.codec.Sign(auth.RefreshToken, auth.Claims{
		SessionID:        session.ID,
		RegisteredClaims: auth.Subject(user.ID),
	})
	if err != nil {
		return nil, fmt.Errorf("service/auth: signing refresh token: %w", err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", user.Login),
		slog.Bool("newUser", isNew),
	)

	return &AuthResult{
		User:         user,
		IsNew:        isNew,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Refresh trades a valid refresh token for a brand-new access token.
//
// The refresh token itself is NOT rotated — the same cookie keeps working
// until the session row expires or is deleted. Every failure is an
// apperror.ErrUnauthorized with the message the client should see; the
// handler maps all of them to 401.
//
// Session expiry is checked here against wall clock, not only via the JWT
// exp: the row is authoritative, so an admin deleting it (or the lazy sweep)
// revokes the token immediately.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.codec.Verify(auth.RefreshToken, refreshToken)
	if err != nil {
		return "", apperror.Unauthorized("Invalid refresh token")
	}

	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", apperror.Unauthorized("Session not found")
		}
		return "", fmt.Errorf("service/auth: looking up session %s: %w", claims.SessionID, err)
	}

	if session.ExpiresAt.Before(time.Now().UTC()) {
		// The row is dead weight now — remove it while we're here.
		if err := s.sessions.DeleteByID(ctx, session.ID); err != nil {
			s.logger.Warn("deleting expired session failed",
				slog.String("sessionID", session.ID),
				slog.String("error", err.Error()),
			)
		}
		return "", apperror.Unauthorized("Session expired")
	}

	// Re-read the user so the new access token carries the CURRENT username,
	// not whatever it was when the refresh token was minted.
	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", apperror.Unauthorized("User not found")
		}
		return "", fmt.Errorf("service/auth: fetching user %s: %w", session.UserID, err)
	}

	accessToken, err := s.codec.Sign(auth.AccessToken, auth.Claims{
		Username:         user.Login,
		RegisteredClaims: auth.Subject(user.ID),
	})
	if err != nil {
		return "", fmt.Errorf("service/auth: signing access token: %w", err)
	}

	return accessToken, nil
}

// Logout revokes the session behind the presented refresh token and sweeps
// all expired sessions while it's at it.
//
// LOGOUT NEVER FAILS. A missing, expired, or garbage refresh token changes
// nothing: the end state the user asked for — no valid cookies — is reached
// either way, so every problem here is logged and swallowed.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) {
	if refreshToken != "" {
		if claims, err := s.codec.Verify(auth.RefreshToken, refreshToken); err == nil {
			if err := s.sessions.DeleteByID(ctx, claims.SessionID); err != nil {
				s.logger.Warn("deleting session on logout failed",
					slog.String("sessionID", claims.SessionID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	// Lazy sweep: logout is rare enough that paying the table scan here
	// beats running a background scheduler.
	n, err := s.sessions.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Warn("sweeping expired sessions failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		s.logger.Info("swept expired sessions", slog.Int64("count", n))
	}
}

// GetUserByID returns the user for the given internal ID.
//
// Used by the /api/auth/me handler to look up the full user record after
// the middleware validates the JWT and extracts the userID from the token's
// Subject claim.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}

	return user, nil
}
