package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateConversation inserts a conversation. Returns ErrConflict when the SID
// or unique name is taken.
func (db *DB) CreateConversation(c *Conversation) error {
	now := time.Now().UnixMilli()
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	_, err := db.Exec(`
		INSERT INTO conversations (sid, unique_name, friendly_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.SID, c.UniqueName, c.FriendlyName, c.CreatedAt, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("conversation %q: %w", c.UniqueName, ErrConflict)
	}
	return err
}

// GetConversation returns a conversation by SID, or nil if absent.
func (db *DB) GetConversation(sid string) (*Conversation, error) {
	var c Conversation
	err := db.QueryRow(`
		SELECT sid, unique_name, friendly_name, created_at
		FROM conversations WHERE sid = ?`, sid).
		Scan(&c.SID, &c.UniqueName, &c.FriendlyName, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateFriendlyName renames a conversation. Returns false if it does not exist.
func (db *DB) UpdateFriendlyName(sid, name string) (bool, error) {
	res, err := db.Exec(`UPDATE conversations SET friendly_name = ?, updated_at = ? WHERE sid = ?`,
		name, time.Now().UnixMilli(), sid)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListConversationsFor returns the conversations an identity participates in,
// most recently created first.
func (db *DB) ListConversationsFor(identity string) ([]Conversation, error) {
	rows, err := db.Query(`
		SELECT c.sid, c.unique_name, c.friendly_name, c.created_at
		FROM conversations c
		JOIN participants p ON p.conversation_sid = c.sid
		WHERE p.identity = ?
		ORDER BY c.created_at DESC, c.sid`, identity)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.SID, &c.UniqueName, &c.FriendlyName, &c.CreatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}
