package rest

import (
	"github.com/bizdesk/deskchat/internal/authz"
	"github.com/bizdesk/deskchat/internal/chat"
)

// Branding is the server's site identity, shown in the status bar.
type Branding struct {
	SiteName string `json:"site_name"`
	LogoURL  string `json:"logo_url"`
}

type userDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Roles       []roleDTO `json:"roles"`
	Permissions []permDTO `json:"permissions"`
}

type roleDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

type permDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Guard string `json:"guard_name"`
}

func (u *userDTO) toUser() *authz.User {
	out := &authz.User{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
	}
	for _, r := range u.Roles {
		out.Roles = append(out.Roles, authz.Role{ID: r.ID, Name: r.Name, Permissions: r.Permissions})
	}
	for _, p := range u.Permissions {
		out.Permissions = append(out.Permissions, authz.Permission{ID: p.ID, Name: p.Name, Guard: p.Guard})
	}
	return out
}

type participantDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsOnline bool   `json:"is_online"`
	LastSeen int64  `json:"last_seen"`
}

type conversationDTO struct {
	ID           string           `json:"id"`
	Type         string           `json:"type"`
	Name         string           `json:"name"`
	AvatarURL    string           `json:"avatar_url"`
	Participants []participantDTO `json:"participants"`
	Muted        bool             `json:"muted"`
	UnreadCount  int              `json:"unread_count"`
	LastMessage  *messageDTO      `json:"last_message"`
}

// ConversationPage pairs a conversation with the caller's view of it.
type ConversationPage struct {
	Conversation chat.Conversation
	Muted        bool
	Unread       int
}

func (c *conversationDTO) toConversation() ConversationPage {
	conv := chat.Conversation{
		ID:        c.ID,
		Type:      chat.ConversationType(c.Type),
		Name:      c.Name,
		AvatarURL: c.AvatarURL,
	}
	for _, p := range c.Participants {
		conv.Participants = append(conv.Participants, chat.Participant{
			ID:   p.ID,
			Name: p.Name,
			Presence: chat.Presence{
				IsOnline: p.IsOnline,
				LastSeen: p.LastSeen,
			},
		})
	}
	if c.LastMessage != nil {
		conv.LastMessage = chat.LastMessage{
			Content:   c.LastMessage.Content,
			Type:      chat.MessageType(c.LastMessage.Type),
			Timestamp: c.LastMessage.Timestamp,
		}
	}
	return ConversationPage{Conversation: conv, Muted: c.Muted, Unread: c.UnreadCount}
}

type messageDTO struct {
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

func (m *messageDTO) toMessage() chat.Message {
	return chat.Message{
		ID:              m.ID,
		ConversationID:  m.ConversationID,
		SenderID:        m.SenderID,
		SenderName:      m.SenderName,
		Content:         m.Content,
		Type:            chat.MessageType(m.Type),
		MediaURL:        m.MediaURL,
		DurationSeconds: m.DurationSeconds,
		ReplyToID:       m.ReplyToID,
		IsDeleted:       m.IsDeleted,
		IsEdited:        m.IsEdited,
		Reactions:       m.Reactions,
		Timestamp:       m.Timestamp,
	}
}

// MessagePage is one page of a conversation's history, oldest first.
type MessagePage struct {
	Messages []chat.Message
	HasMore  bool
}
