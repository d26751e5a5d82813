package repository

import (
	"context"
	"time"

	"github.com/nafisb/gitdoor/internal/model"
)

// GitHubProfile is the provider-side identity handed to the directory on
// login. It mirrors what the OAuth client fetched; the directory decides
// whether it maps to an existing User or a brand-new one.
type GitHubProfile struct {
	ID        int64
	Login     string
	Email     string
	AvatarURL string
}

// UserDirectory persists user records and the GitHub identity mapping.
type UserDirectory interface {
	// UpsertFromGitHub returns the User for this GitHub identity, creating
	// user + identity atomically on first login and refreshing the mirrored
	// profile fields on every later one. The bool reports whether the user
	// was just created.
	UpsertFromGitHub(ctx context.Context, p GitHubProfile) (*model.User, bool, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	FindByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
}

// SessionStore persists refresh-token sessions.
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired removes every session with expires_at before now and
	// reports how many went. Called opportunistically from logout — there
	// is no background sweeper.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
