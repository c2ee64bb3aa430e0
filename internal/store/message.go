package store

import (
	"database/sql"
	"fmt"
	"time"
)

const messageColumns = `id, conversation_sid, msg_index, sid, author, body, message_type, media_key, content_type, filename, created_at`

// AppendMessage stores m at the tail of its conversation and sets m.Index.
func (db *DB) AppendMessage(m *Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.QueryRow(`SELECT COALESCE(MAX(msg_index), -1) + 1 FROM messages WHERE conversation_sid = ?`,
		m.ConversationSID).Scan(&m.Index); err != nil {
		return fmt.Errorf("next index: %w", err)
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().UnixMilli()
	}
	if m.MessageType == "" {
		m.MessageType = "text"
	}

	res, err := tx.Exec(`
		INSERT INTO messages (conversation_sid, msg_index, sid, author, body, message_type, media_key, content_type, filename, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ConversationSID, m.Index, m.SID, m.Author, m.Body, m.MessageType, m.MediaKey, m.ContentType, m.Filename, m.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("message %q: %w", m.SID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	return tx.Commit()
}

// ListMessages returns the newest limit messages of a conversation in index order.
func (db *DB) ListMessages(conversationSID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := db.Query(`
		SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_sid = ?
			ORDER BY msg_index DESC
			LIMIT ?
		) ORDER BY msg_index ASC`, conversationSID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetMessage returns a message by SID, or nil if absent.
func (db *DB) GetMessage(sid string) (*Message, error) {
	var m Message
	err := scanMessage(db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE sid = ?`, sid), &m)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner, m *Message) error {
	return s.Scan(&m.ID, &m.ConversationSID, &m.Index, &m.SID, &m.Author, &m.Body,
		&m.MessageType, &m.MediaKey, &m.ContentType, &m.Filename, &m.CreatedAt)
}
