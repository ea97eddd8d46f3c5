package socket

import (
	"encoding/json"

	"github.com/bizdesk/deskchat/internal/chat"
)

// envelope is the wire frame for every socket message, in both directions.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Inbound event payloads. These are republished on the bus under "chat.*"
// kinds for the sync engine and the UI to consume.

// MessageEvent carries a created or updated message.
type MessageEvent struct {
	Message chat.Message
}

// MessageDeletedEvent tombstones a message.
type MessageDeletedEvent struct {
	ConversationID string
	MessageID      string
}

// ReactionEvent replaces a message's reaction set.
type ReactionEvent struct {
	ConversationID string
	MessageID      string
	Reactions      map[string][]string
}

// TypingEvent signals a participant starting or stopping typing.
type TypingEvent struct {
	ConversationID string
	UserID         string
	Started        bool
}

// PresenceEvent updates a user's online status.
type PresenceEvent struct {
	UserID   string
	IsOnline bool
	LastSeen int64
}

// ReadEvent reports a participant having seen a message.
type ReadEvent struct {
	ConversationID string
	UserID         string
	MessageID      string
}

// ConversationEvent carries an updated conversation header.
type ConversationEvent struct {
	Conversation chat.Conversation
	Muted        bool
	Unread       int
}

// AckEvent confirms delivery of a client-sent message.
type AckEvent struct {
	ClientMsgID string
	ServerMsgID string
}

type wireMessage struct {
	ID              string              `json:"id"`
	ConversationID  string              `json:"conversation_id"`
	SenderID        string              `json:"sender_id"`
	SenderName      string              `json:"sender_name"`
	Content         string              `json:"content"`
	Type            string              `json:"type"`
	MediaURL        string              `json:"media_url"`
	DurationSeconds int                 `json:"duration_seconds"`
	ReplyToID       string              `json:"reply_to_id"`
	IsDeleted       bool                `json:"is_deleted"`
	IsEdited        bool                `json:"is_edited"`
	Reactions       map[string][]string `json:"reactions"`
	Timestamp       int64               `json:"timestamp"`
}

func (w *wireMessage) toMessage() chat.Message {
	return chat.Message{
		ID:              w.ID,
		ConversationID:  w.ConversationID,
		SenderID:        w.SenderID,
		SenderName:      w.SenderName,
		Content:         w.Content,
		Type:            chat.MessageType(w.Type),
		MediaURL:        w.MediaURL,
		DurationSeconds: w.DurationSeconds,
		ReplyToID:       w.ReplyToID,
		IsDeleted:       w.IsDeleted,
		IsEdited:        w.IsEdited,
		Reactions:       w.Reactions,
		Timestamp:       w.Timestamp,
	}
}

// decodeEvent maps a wire envelope to a bus kind and a typed payload.
// Unknown events return an empty kind and are ignored by the caller.
func decodeEvent(env envelope) (kind string, payload any, err error) {
	switch env.Event {
	case "message.created", "message.updated":
		var w wireMessage
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return "", nil, err
		}
		kind = "chat.message_received"
		if env.Event == "message.updated" {
			kind = "chat.message_updated"
		}
		return kind, MessageEvent{Message: w.toMessage()}, nil

	case "message.deleted":
		var d struct {
			ConversationID string `json:"conversation_id"`
			MessageID      string `json:"message_id"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return "", nil, err
		}
		return "chat.message_deleted", MessageDeletedEvent{
			ConversationID: d.ConversationID,
			MessageID:      d.MessageID,
		}, nil

	case "reaction.updated":
		var d struct {
			ConversationID string              `json:"conversation_id"`
			MessageID      string              `json:"message_id"`
			Reactions      map[string][]string `json:"reactions"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return "", nil, err
		}
		return "chat.reaction_updated", ReactionEvent{
			ConversationID: d.ConversationID,
			MessageID:      d.MessageID,
			Reactions:      d.Reactions,
		}, nil

	case "typing":
		var d struct {
			ConversationID string `json:"conversation_id"`
			UserID         string `json:"user_id"`
			Started        bool   `json:"started"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return "", nil, err
		}
		return "chat.typing", TypingEvent{
			ConversationID: d.ConversationID,
			UserID:         d.UserID,
			Started:        d.Started,
		}, nil

	case "presence":
		var d struct {
			UserID   string `json:"user_id"`
			IsOnline bool   `json:"is_online"`
			LastSeen int64  `json:"last_seen"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return "", nil, err
		}
		return "chat.presence", PresenceEvent{
			UserID:   d.UserID,
			IsOnline: d.IsOnline,
			LastSeen: d.LastSeen,
		}, nil

	case "receipt.read":
		var d struct {
			ConversationID string `json:"conversation_id"`
			UserID         string `json:"user_id"`
			MessageID      string `json:"message_id"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return "", nil, err
		}
		return "chat.read", ReadEvent{
			ConversationID: d.ConversationID,
			UserID:         d.UserID,
			MessageID:      d.MessageID,
		}, nil

	case "conversation.updated":
		var d struct {
			ID           string `json:"id"`
			Type         string `json:"type"`
			Name         string `json:"name"`
			AvatarURL    string `json:"avatar_url"`
			Muted        bool   `json:"muted"`
			UnreadCount  int    `json:"unread_count"`
			Participants []struct {
				ID       string `json:"id"`
				Name     string `json:"name"`
				IsOnline bool   `json:"is_online"`
				LastSeen int64  `json:"last_seen"`
			} `json:"participants"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return "", nil, err
		}
		conv := chat.Conversation{
			ID:        d.ID,
			Type:      chat.ConversationType(d.Type),
			Name:      d.Name,
			AvatarURL: d.AvatarURL,
		}
		for _, p := range d.Participants {
			conv.Participants = append(conv.Participants, chat.Participant{
				ID:   p.ID,
				Name: p.Name,
				Presence: chat.Presence{
					IsOnline: p.IsOnline,
					LastSeen: p.LastSeen,
				},
			})
		}
		return "chat.conversation_updated", ConversationEvent{
			Conversation: conv,
			Muted:        d.Muted,
			Unread:       d.UnreadCount,
		}, nil

	case "message.ack":
		var d struct {
			ClientMsgID string `json:"client_msg_id"`
			ServerMsgID string `json:"server_msg_id"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return "", nil, err
		}
		return "chat.ack", AckEvent{
			ClientMsgID: d.ClientMsgID,
			ServerMsgID: d.ServerMsgID,
		}, nil
	}

	return "", nil, nil
}
