package store

import (
	"database/sql"
	"time"

	"github.com/bizdesk/deskchat/internal/chat"
)

// UpsertConversation inserts or updates a conversation header row. The muted
// flag and unread counter are the current user's view of the conversation.
func (db *DB) UpsertConversation(c *chat.Conversation, muted bool, unread int) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (id, type, name, avatar_url, muted, unread_count, last_message_content, last_message_type, last_message_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			name = excluded.name,
			avatar_url = excluded.avatar_url,
			muted = excluded.muted,
			unread_count = excluded.unread_count,
			last_message_content = excluded.last_message_content,
			last_message_type = excluded.last_message_type,
			last_message_at = excluded.last_message_at,
			updated_at = excluded.updated_at`,
		c.ID, string(c.Type), c.Name, c.AvatarURL, muted, unread,
		c.LastMessage.Content, string(c.LastMessage.Type), c.LastMessage.Timestamp, now)
	return err
}

// ReplaceParticipants replaces the participant set for a conversation.
func (db *DB) ReplaceParticipants(conversationID string, participants []chat.Participant) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM participants WHERE conversation_id = ?`, conversationID); err != nil {
		return err
	}
	for _, p := range participants {
		if _, err := tx.Exec(`
			INSERT INTO participants (conversation_id, user_id, name, is_online, last_seen)
			VALUES (?, ?, ?, ?, ?)`,
			conversationID, p.ID, p.Name, p.Presence.IsOnline, p.Presence.LastSeen); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpdatePresence updates one participant's presence everywhere it appears.
func (db *DB) UpdatePresence(userID string, isOnline bool, lastSeen int64) error {
	_, err := db.Exec(`
		UPDATE participants SET is_online = ?, last_seen = ? WHERE user_id = ?`,
		isOnline, lastSeen, userID)
	return err
}

// ListConversations returns conversations sorted by last message timestamp
// descending, with participants attached.
func (db *DB) ListConversations(limit, offset int) ([]ConversationRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, type, name, avatar_url, muted, unread_count, last_message_content, last_message_type, last_message_at
		FROM conversations
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []ConversationRow
	for rows.Next() {
		var r ConversationRow
		var typ, lmType string
		if err := rows.Scan(&r.Conversation.ID, &typ, &r.Conversation.Name, &r.Conversation.AvatarURL,
			&r.Muted, &r.Unread,
			&r.Conversation.LastMessage.Content, &lmType, &r.Conversation.LastMessage.Timestamp); err != nil {
			return nil, err
		}
		r.Conversation.Type = chat.ConversationType(typ)
		r.Conversation.LastMessage.Type = chat.MessageType(lmType)
		convs = append(convs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range convs {
		parts, err := db.participants(convs[i].Conversation.ID)
		if err != nil {
			return nil, err
		}
		convs[i].Conversation.Participants = parts
	}
	return convs, nil
}

// GetConversation returns a single conversation by id, or nil if absent.
func (db *DB) GetConversation(id string) (*ConversationRow, error) {
	var r ConversationRow
	var typ, lmType string
	err := db.QueryRow(`
		SELECT id, type, name, avatar_url, muted, unread_count, last_message_content, last_message_type, last_message_at
		FROM conversations
		WHERE id = ?`, id).
		Scan(&r.Conversation.ID, &typ, &r.Conversation.Name, &r.Conversation.AvatarURL,
			&r.Muted, &r.Unread,
			&r.Conversation.LastMessage.Content, &lmType, &r.Conversation.LastMessage.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Conversation.Type = chat.ConversationType(typ)
	r.Conversation.LastMessage.Type = chat.MessageType(lmType)

	parts, err := db.participants(id)
	if err != nil {
		return nil, err
	}
	r.Conversation.Participants = parts
	return &r, nil
}

func (db *DB) participants(conversationID string) ([]chat.Participant, error) {
	rows, err := db.Query(`
		SELECT user_id, name, is_online, last_seen
		FROM participants
		WHERE conversation_id = ?
		ORDER BY user_id`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var parts []chat.Participant
	for rows.Next() {
		var p chat.Participant
		if err := rows.Scan(&p.ID, &p.Name, &p.Presence.IsOnline, &p.Presence.LastSeen); err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// SetMuted updates the current user's mute flag for a conversation.
func (db *DB) SetMuted(conversationID string, muted bool) error {
	_, err := db.Exec(`UPDATE conversations SET muted = ? WHERE id = ?`, muted, conversationID)
	return err
}

// IncrementUnread bumps the unread counter for a conversation.
func (db *DB) IncrementUnread(conversationID string) error {
	_, err := db.Exec(`UPDATE conversations SET unread_count = unread_count + 1 WHERE id = ?`, conversationID)
	return err
}

// ClearUnread resets the unread counter for a conversation.
func (db *DB) ClearUnread(conversationID string) error {
	_, err := db.Exec(`UPDATE conversations SET unread_count = 0 WHERE id = ?`, conversationID)
	return err
}

// DeleteConversation removes a conversation and its cached messages.
func (db *DB) DeleteConversation(id string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM messages WHERE conversation_id = ?`,
		`DELETE FROM participants WHERE conversation_id = ?`,
		`DELETE FROM conversations WHERE id = ?`,
	} {
		if _, err := tx.Exec(q, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}
