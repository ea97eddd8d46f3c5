package store

import (
	"time"

	"github.com/bizdesk/deskchat/internal/chat"
)

// QueueOutbox enqueues an outgoing message for delivery.
func (db *DB) QueueOutbox(item *OutboxItem) error {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO outbox (client_msg_id, conversation_id, content, message_type, media_url, duration_seconds, reply_to_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ClientMsgID, item.ConversationID, item.Content, string(item.Type),
		item.MediaURL, item.DurationSeconds, item.ReplyToID, string(OutboxQueued), now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	item.ID = id
	item.Status = OutboxQueued
	item.CreatedAt = now
	return nil
}

// PendingOutbox returns queued items oldest first.
func (db *DB) PendingOutbox(limit int) ([]OutboxItem, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT id, client_msg_id, conversation_id, content, message_type, media_url, duration_seconds, reply_to_id, status, error_message, server_msg_id, created_at
		FROM outbox
		WHERE status = ?
		ORDER BY id ASC
		LIMIT ?`, string(OutboxQueued), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []OutboxItem
	for rows.Next() {
		var it OutboxItem
		var typ, status string
		if err := rows.Scan(&it.ID, &it.ClientMsgID, &it.ConversationID, &it.Content,
			&typ, &it.MediaURL, &it.DurationSeconds, &it.ReplyToID,
			&status, &it.ErrorMessage, &it.ServerMsgID, &it.CreatedAt); err != nil {
			return nil, err
		}
		it.Type = chat.MessageType(typ)
		it.Status = OutboxStatus(status)
		items = append(items, it)
	}
	return items, rows.Err()
}

// MarkOutboxSending transitions an item to sending.
func (db *DB) MarkOutboxSending(id int64) error {
	_, err := db.Exec(`UPDATE outbox SET status = ? WHERE id = ?`, string(OutboxSending), id)
	return err
}

// MarkOutboxSent records a successful delivery and the server's message id.
func (db *DB) MarkOutboxSent(id int64, serverMsgID string) error {
	_, err := db.Exec(`
		UPDATE outbox SET status = ?, server_msg_id = ?, error_message = ''
		WHERE id = ?`, string(OutboxSent), serverMsgID, id)
	return err
}

// MarkOutboxFailed records a delivery failure.
func (db *DB) MarkOutboxFailed(id int64, errMsg string) error {
	_, err := db.Exec(`
		UPDATE outbox SET status = ?, error_message = ?
		WHERE id = ?`, string(OutboxFailed), errMsg, id)
	return err
}

// RequeueFailedOutbox puts every failed item back on the queue for another
// attempt and returns how many were requeued.
func (db *DB) RequeueFailedOutbox() (int64, error) {
	res, err := db.Exec(`
		UPDATE outbox SET status = ?, error_message = ''
		WHERE status = ?`, string(OutboxQueued), string(OutboxFailed))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
