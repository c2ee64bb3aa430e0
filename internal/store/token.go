package store

import (
	"database/sql"
	"time"
)

// SaveToken stores or replaces a token binding.
func (db *DB) SaveToken(t *Token) error {
	_, err := db.Exec(`
		INSERT INTO tokens (token, identity, expires_at, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			identity = excluded.identity,
			expires_at = excluded.expires_at`,
		t.Token, t.Identity, t.ExpiresAt, time.Now().UnixMilli())
	return err
}

// LookupToken returns the binding for token, or nil if unknown.
func (db *DB) LookupToken(token string) (*Token, error) {
	var t Token
	err := db.QueryRow(`SELECT token, identity, expires_at FROM tokens WHERE token = ?`, token).
		Scan(&t.Token, &t.Identity, &t.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// PurgeExpiredTokens deletes tokens that expired before now.
func (db *DB) PurgeExpiredTokens(now time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM tokens WHERE expires_at < ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
