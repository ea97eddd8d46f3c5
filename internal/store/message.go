package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/bizdesk/deskchat/internal/chat"
)

// UpsertMessage inserts a message or updates it in place. Matching is by
// (conversation_id, msg_id) so replays from the server are idempotent.
func (db *DB) UpsertMessage(m *chat.Message, status MessageStatus) error {
	reactions, err := marshalReactions(m.Reactions)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO messages (conversation_id, msg_id, sender_id, sender_name, content, message_type, media_url, duration_seconds, reply_to_id, is_deleted, is_edited, reactions, status, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
			sender_id = excluded.sender_id,
			sender_name = excluded.sender_name,
			content = excluded.content,
			message_type = excluded.message_type,
			media_url = excluded.media_url,
			duration_seconds = excluded.duration_seconds,
			reply_to_id = excluded.reply_to_id,
			is_deleted = excluded.is_deleted,
			is_edited = excluded.is_edited,
			reactions = excluded.reactions,
			status = excluded.status,
			timestamp = excluded.timestamp`,
		m.ConversationID, m.ID, m.SenderID, m.SenderName, m.Content, string(m.Type),
		m.MediaURL, m.DurationSeconds, m.ReplyToID, m.IsDeleted, m.IsEdited,
		reactions, string(status), m.Timestamp, now)
	return err
}

// ListMessagesBefore returns up to limit messages older than the given
// timestamp, oldest first. A before of 0 means "from the newest".
func (db *DB) ListMessagesBefore(conversationID string, before int64, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if before <= 0 {
		before = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT msg_id, conversation_id, sender_id, sender_name, content, message_type, media_url, duration_seconds, reply_to_id, is_deleted, is_edited, reactions, timestamp
		FROM messages
		WHERE conversation_id = ? AND timestamp < ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, conversationID, before, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []chat.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// GetMessage returns a single cached message, or nil if absent.
func (db *DB) GetMessage(conversationID, msgID string) (*chat.Message, error) {
	row := db.QueryRow(`
		SELECT msg_id, conversation_id, sender_id, sender_name, content, message_type, media_url, duration_seconds, reply_to_id, is_deleted, is_edited, reactions, timestamp
		FROM messages
		WHERE conversation_id = ? AND msg_id = ?`, conversationID, msgID)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MarkDeleted tombstones a message without removing the row.
func (db *DB) MarkDeleted(conversationID, msgID string) error {
	_, err := db.Exec(`
		UPDATE messages SET is_deleted = 1, content = '', media_url = ''
		WHERE conversation_id = ? AND msg_id = ?`, conversationID, msgID)
	return err
}

// MarkEdited replaces a message's content and flags it as edited.
func (db *DB) MarkEdited(conversationID, msgID, content string) error {
	_, err := db.Exec(`
		UPDATE messages SET is_edited = 1, content = ?
		WHERE conversation_id = ? AND msg_id = ?`, content, conversationID, msgID)
	return err
}

// SetReactions replaces a message's reaction map.
func (db *DB) SetReactions(conversationID, msgID string, reactions map[string][]string) error {
	raw, err := marshalReactions(reactions)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		UPDATE messages SET reactions = ?
		WHERE conversation_id = ? AND msg_id = ?`, raw, conversationID, msgID)
	return err
}

// SetMessageStatus updates the delivery status of a cached message.
func (db *DB) SetMessageStatus(conversationID, msgID string, status MessageStatus) error {
	_, err := db.Exec(`
		UPDATE messages SET status = ?
		WHERE conversation_id = ? AND msg_id = ?`, string(status), conversationID, msgID)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (chat.Message, error) {
	var m chat.Message
	var typ, reactions string
	err := s.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.Content,
		&typ, &m.MediaURL, &m.DurationSeconds, &m.ReplyToID,
		&m.IsDeleted, &m.IsEdited, &reactions, &m.Timestamp)
	if err != nil {
		return m, err
	}
	m.Type = chat.MessageType(typ)
	if reactions != "" && reactions != "{}" {
		if err := json.Unmarshal([]byte(reactions), &m.Reactions); err != nil {
			return m, err
		}
	}
	return m, nil
}

func marshalReactions(reactions map[string][]string) (string, error) {
	if len(reactions) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(reactions)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
