package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/peerflex/peerflex/internal/backend"
)

// SaveSession persists the signed-in session so a restart does not require a
// fresh login. The table holds at most one row.
func (db *DB) SaveSession(s backend.Session) error {
	_, err := db.Exec(`
		INSERT INTO session (id, access_token, refresh_token, expires_at, user_id, email, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			user_id = excluded.user_id,
			email = excluded.email,
			updated_at = excluded.updated_at`,
		s.AccessToken, s.RefreshToken, s.ExpiresAt.UnixMilli(), s.UserID, s.Email, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession returns the persisted session, or nil when none is stored.
func (db *DB) LoadSession() (*backend.Session, error) {
	var s backend.Session
	var expiresAt int64
	err := db.QueryRow(`SELECT access_token, refresh_token, expires_at, user_id, email FROM session WHERE id = 1`).
		Scan(&s.AccessToken, &s.RefreshToken, &expiresAt, &s.UserID, &s.Email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	s.ExpiresAt = time.UnixMilli(expiresAt)
	return &s, nil
}

// ClearSession removes the persisted session.
func (db *DB) ClearSession() error {
	_, err := db.Exec(`DELETE FROM session WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
