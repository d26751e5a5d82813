package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nafisb/gitdoor/internal/apperror"
	"github.com/nafisb/gitdoor/internal/model"
	"github.com/nafisb/gitdoor/internal/repository"
)

// SessionDB implements repository.SessionStore against the shared pool.
type SessionDB struct {
	conn *sql.DB
}

// compile-time check that *SessionDB implements repository.SessionStore
var _ repository.SessionStore = (*SessionDB)(nil)

// Create inserts a new session row. The caller supplies the ID and expiry;
// CreatedAt is stamped here if unset.
func (db *SessionDB) Create(ctx context.Context, s *model.Session) error {
	if s.ID == "" || s.UserID == "" {
		return apperror.ValidationFailed("session id and user id are required")
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, created_at)
		 VALUES (?, ?, ?, ?)`,
		s.ID, s.UserID, s.ExpiresAt, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting session %s: %w", s.ID, err)
	}

	return nil
}

// GetByID retrieves a session by its ID.
// Returns apperror.ErrNotFound if no such session exists. Expiry is NOT
// checked here — the caller compares ExpiresAt against its own clock, so
// the "session expired" decision stays in one place (the service layer).
func (db *SessionDB) GetByID(ctx context.Context, id string) (*model.Session, error) {
	var s model.Session

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at, created_at FROM sessions WHERE id = ?`,
		id,
	).Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("session", id)
		}
		return nil, fmt.Errorf("sqlite: getting session %s: %w", id, err)
	}

	return &s, nil
}

// DeleteByID removes a session row. Deleting a session that does not exist
// is not an error — the end state (no such session) is the same.
func (db *SessionDB) DeleteByID(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting session %s: %w", id, err)
	}
	return nil
}

// DeleteExpired removes every session that expired before now and returns
// the number of rows deleted. This is the lazy sweep: it piggybacks on
// logout calls instead of running on a schedule, so an idle deployment
// accumulates at most as many stale rows as it had logins.
func (db *SessionDB) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`, now,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweeping expired sessions: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting swept sessions: %w", err)
	}
	return n, nil
}
