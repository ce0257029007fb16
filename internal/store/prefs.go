package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SetPref stores a string preference under key.
func (db *DB) SetPref(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO preferences (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set pref %q: %w", key, err)
	}
	return nil
}

// GetPref returns a preference value, or fallback when the key is unset.
func (db *DB) GetPref(key, fallback string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("get pref %q: %w", key, err)
	}
	return value, nil
}
