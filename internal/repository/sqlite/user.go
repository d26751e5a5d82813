package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/nafisb/gitdoor/internal/apperror"
	"github.com/nafisb/gitdoor/internal/model"
	"github.com/nafisb/gitdoor/internal/repository"
)

// UserDB implements repository.UserDirectory against the shared pool.
type UserDB struct {
	conn *sql.DB
}

// compile-time check that *UserDB implements repository.UserDirectory
var _ repository.UserDirectory = (*UserDB)(nil)

// UpsertFromGitHub maps a GitHub identity to a local User.
//
// TWO PATHS:
//   - Known github_id → refresh the mirrored profile fields (login, email,
//     avatar, updated_at) on the user row AND the identity row, then return
//     the existing user. The identity's github_id link never changes.
//   - Unknown github_id → create the user AND the identity row inside one
//     transaction. Both rows exist or neither does — a crash between the two
//     inserts must never leave an identity-less user (or worse, an identity
//     pointing nowhere).
//
// WHY LOOK UP FIRST INSTEAD OF "INSERT OR REPLACE"?
// REPLACE would delete-and-reinsert the identity row, which fires the
// ON DELETE CASCADE and silently wipes the user's sessions. Look-up-then-
// branch keeps the row (and the user's internal ID) stable across logins.
func (db *UserDB) UpsertFromGitHub(ctx context.Context, p repository.GitHubProfile) (*model.User, bool, error) {
	existing, err := db.FindByGitHubID(ctx, p.ID)
	if err != nil && !isNotFound(err) {
		return nil, false, err
	}

	now := time.Now().UTC()

	if existing != nil {
		// Subsequent login — mirror the latest profile onto the user row.
		existing.Login = p.Login
		existing.Email = p.Email
		existing.AvatarURL = p.AvatarURL
		existing.UpdatedAt = now

		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET login = ?, email = ?, avatar_url = ?, updated_at = ?
			 WHERE id = ?`,
			existing.Login, existing.Email, existing.AvatarURL, existing.UpdatedAt,
			existing.ID,
		)
		if err != nil {
			return nil, false, fmt.Errorf("sqlite: updating user %s: %w", existing.ID, err)
		}

		// Keep the identity's mirrored fields in step with the user row, so a
		// GitHub rename shows up in both places.
		_, err = db.conn.ExecContext(ctx,
			`UPDATE github_identities SET login = ?, email = ? WHERE github_id = ?`,
			p.Login, p.Email, p.ID,
		)
		if err != nil {
			return nil, false, fmt.Errorf("sqlite: updating github identity %d: %w", p.ID, err)
		}
		return existing, false, nil
	}

	// First login — user + identity atomically.
	user := &model.User{
		ID:        xid.New().String(),
		Login:     p.Login,
		Email:     p.Email,
		AvatarURL: p.AvatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: beginning upsert tx: %w", err)
	}
	// Rollback is a no-op after a successful Commit, so deferring it gives
	// us cleanup on every early-return path for free.
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, login, email, avatar_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Login, user.Email, user.AvatarURL, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: inserting user (githubID=%d): %w", p.ID, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO github_identities (user_id, github_id, login, email, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		user.ID, p.ID, p.Login, p.Email, now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: inserting github identity %d: %w", p.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("sqlite: committing upsert: %w", err)
	}

	return user, true, nil
}

// GetByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, login, email, avatar_url, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(&u.ID, &u.Login, &u.Email, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	return &u, nil
}

// FindByGitHubID retrieves the user linked to a GitHub account, joining
// through the identity table. Returns apperror.ErrNotFound when this GitHub
// account has never logged in.
func (db *UserDB) FindByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT u.id, u.login, u.email, u.avatar_url, u.created_at, u.updated_at
		 FROM users u
		 JOIN github_identities gi ON gi.user_id = u.id
		 WHERE gi.github_id = ?`,
		githubID,
	).Scan(&u.ID, &u.Login, &u.Email, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprintf("github:%d", githubID))
		}
		return nil, fmt.Errorf("sqlite: finding user by github_id %d: %w", githubID, err)
	}

	return &u, nil
}

// isNotFound reports whether err is the directory's not-found error.
func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}
