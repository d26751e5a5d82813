// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered user account.
//
// We use GitHub OAuth as the identity provider, but the User row itself is
// provider-agnostic: it carries only the profile fields we mirror from the
// provider on every login. The link to GitHub lives in a separate
// GitHubIdentity row (see below), so adding another provider later means
// adding another identity table — not widening this one.
//
// WHY A SEPARATE INTERNAL ID?
// We generate our own opaque string ID (xid) instead of reusing GitHub's
// numeric ID. This avoids tying our primary keys to a third-party's
// numbering scheme and keeps foreign keys uniform across tables.
//
// WHY Email string (not *string)?
// GitHub returns the primary public email, which can be empty if the user
// has hidden it. We use an empty string as the zero value rather than a
// nullable pointer — simpler to work with and safe to display.
type User struct {
	ID        string    `json:"id"        db:"id"`
	Login     string    `json:"login"     db:"login"`      // GitHub username, e.g. "alice"
	Email     string    `json:"email"     db:"email"`      // Primary public email (may be empty)
	AvatarURL string    `json:"avatarUrl" db:"avatar_url"` // Profile picture URL
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// GitHubIdentity links a GitHub account to exactly one local User.
//
// GitHubID is GitHub's numeric user ID — stable for the lifetime of the
// account, unlike the login, which users can change. The UNIQUE constraint
// on github_id in the DB guarantees one GitHub account maps to at most one
// User. The row is created on first login, its login/email mirror the
// provider profile on every login, and it only disappears via the
// ON DELETE CASCADE from users.
type GitHubIdentity struct {
	UserID    string    `json:"userId"    db:"user_id"`
	GitHubID  int64     `json:"githubId"  db:"github_id"`
	Login     string    `json:"login"     db:"login"` // mirrored from the GitHub profile
	Email     string    `json:"email"     db:"email"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Session is one outstanding refresh-token lineage.
//
// A row is created on every successful OAuth callback and deleted on logout
// (or lazily once expired). The refresh token cookie embeds the session ID,
// so deleting the row revokes the refresh token even though the JWT itself
// is stateless. The row's lifetime equals the refresh cookie's validity
// window — we do not rotate refresh tokens.
type Session struct {
	ID        string    `json:"id"        db:"id"`
	UserID    string    `json:"userId"    db:"user_id"`
	ExpiresAt time.Time `json:"expiresAt" db:"expires_at"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
