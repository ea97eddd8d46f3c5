package store

import "github.com/bizdesk/deskchat/internal/chat"

// ConversationRow pairs a conversation with the current user's local view of
// it (mute flag, unread counter).
type ConversationRow struct {
	Conversation chat.Conversation
	Muted        bool
	Unread       int
}

// MessageStatus tracks delivery state of a cached message.
type MessageStatus string

const (
	MessageReceived MessageStatus = "received"
	MessageSending  MessageStatus = "sending"
	MessageSent     MessageStatus = "sent"
	MessageFailed   MessageStatus = "failed"
)

// OutboxStatus tracks the lifecycle of a queued outgoing message.
type OutboxStatus string

const (
	OutboxQueued  OutboxStatus = "queued"
	OutboxSending OutboxStatus = "sending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxItem is a message queued for delivery.
type OutboxItem struct {
	ID              int64
	ClientMsgID     string
	ConversationID  string
	Content         string
	Type            chat.MessageType
	MediaURL        string
	DurationSeconds int
	ReplyToID       string
	Status          OutboxStatus
	ErrorMessage    string
	ServerMsgID     string
	CreatedAt       int64
}
