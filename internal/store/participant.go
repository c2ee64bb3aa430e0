package store

import "time"

// AddParticipant adds identity to a conversation. Returns false when the
// identity was already a participant.
func (db *DB) AddParticipant(conversationSID, identity string) (bool, error) {
	res, err := db.Exec(`
		INSERT INTO participants (conversation_sid, identity, joined_at)
		VALUES (?, ?, ?)
		ON CONFLICT(conversation_sid, identity) DO NOTHING`,
		conversationSID, identity, time.Now().UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RemoveParticipant removes identity from a conversation. Returns false when
// the identity was not a participant.
func (db *DB) RemoveParticipant(conversationSID, identity string) (bool, error) {
	res, err := db.Exec(`DELETE FROM participants WHERE conversation_sid = ? AND identity = ?`,
		conversationSID, identity)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// IsParticipant reports whether identity belongs to the conversation.
func (db *DB) IsParticipant(conversationSID, identity string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM participants WHERE conversation_sid = ? AND identity = ?`,
		conversationSID, identity).Scan(&n)
	return n > 0, err
}

// ListParticipants returns the roster in join order.
func (db *DB) ListParticipants(conversationSID string) ([]string, error) {
	rows, err := db.Query(`
		SELECT identity FROM participants
		WHERE conversation_sid = ?
		ORDER BY joined_at, rowid`, conversationSID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkAllRead moves the identity's read horizon to the newest message.
func (db *DB) MarkAllRead(conversationSID, identity string) error {
	_, err := db.Exec(`
		UPDATE participants
		SET last_read_index = (SELECT COALESCE(MAX(msg_index), -1) FROM messages WHERE conversation_sid = ?)
		WHERE conversation_sid = ? AND identity = ?`,
		conversationSID, conversationSID, identity)
	return err
}

// UnreadCount counts messages past the identity's read horizon that the
// identity did not author.
func (db *DB) UnreadCount(conversationSID, identity string) (int, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM messages m
		JOIN participants p ON p.conversation_sid = m.conversation_sid AND p.identity = ?
		WHERE m.conversation_sid = ? AND m.msg_index > p.last_read_index AND m.author != ?`,
		identity, conversationSID, identity).Scan(&n)
	return n, err
}
