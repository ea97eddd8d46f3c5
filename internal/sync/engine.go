// Package sync keeps the local cache consistent with the server. Live socket
// events arrive via the bus; the initial snapshot comes from the REST API.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/bizdesk/deskchat/internal/bus"
	"github.com/bizdesk/deskchat/internal/chat"
	"github.com/bizdesk/deskchat/internal/rest"
	"github.com/bizdesk/deskchat/internal/socket"
	"github.com/bizdesk/deskchat/internal/store"
	"go.uber.org/zap"
)

// Engine handles idempotent ingestion of chat events into the store.
// It subscribes to "chat.*" events on the bus and processes them.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	selfID string
	cancel context.CancelFunc
}

// NewEngine creates a new sync engine. selfID is the authenticated user, used
// to keep the user's own messages from bumping unread counters.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger, selfID string) *Engine {
	return &Engine{
		db:     db,
		bus:    b,
		logger: logger,
		selfID: selfID,
	}
}

// Start subscribes to inbound chat events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("chat.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	var err error
	switch payload := evt.Payload.(type) {
	case socket.MessageEvent:
		if evt.Kind == "chat.message_updated" {
			err = e.IngestMessageUpdate(&payload.Message)
		} else {
			err = e.IngestMessage(&payload.Message)
		}
	case socket.MessageDeletedEvent:
		err = e.IngestDeletion(payload.ConversationID, payload.MessageID)
	case socket.ReactionEvent:
		err = e.IngestReactions(payload.ConversationID, payload.MessageID, payload.Reactions)
	case socket.PresenceEvent:
		err = e.IngestPresence(payload.UserID, payload.IsOnline, payload.LastSeen)
	case socket.ConversationEvent:
		err = e.IngestConversation(&payload)
	default:
		return
	}
	if err != nil {
		e.logger.Error("failed to ingest event", zap.String("kind", evt.Kind), zap.Error(err))
	}
}

// IngestMessage processes a single message into the store (idempotent).
// Only the first delivery of a message bumps the unread counter; replays and
// the sender's own echoes do not.
func (e *Engine) IngestMessage(m *chat.Message) error {
	existing, err := e.db.GetMessage(m.ConversationID, m.ID)
	if err != nil {
		return fmt.Errorf("check message: %w", err)
	}
	if err := e.db.UpsertMessage(m, store.MessageReceived); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	if err := e.refreshPreview(m); err != nil {
		return err
	}
	if existing == nil && m.SenderID != e.selfID && m.SenderID != "" {
		if err := e.db.IncrementUnread(m.ConversationID); err != nil {
			return fmt.Errorf("bump unread: %w", err)
		}
	}

	e.bus.Publish(bus.Event{
		Kind:      "message.upserted",
		Timestamp: time.Now(),
		Payload: map[string]string{
			"conversation_id": m.ConversationID,
			"msg_id":          m.ID,
		},
	})
	return nil
}

// IngestMessageUpdate applies an edit to an already-delivered message. The
// unread counter is untouched; an edit is not a new message.
func (e *Engine) IngestMessageUpdate(m *chat.Message) error {
	if err := e.db.UpsertMessage(m, store.MessageReceived); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	if err := e.refreshPreview(m); err != nil {
		return err
	}
	e.bus.Publish(bus.Event{
		Kind:      "message.upserted",
		Timestamp: time.Now(),
		Payload: map[string]string{
			"conversation_id": m.ConversationID,
			"msg_id":          m.ID,
		},
	})
	return nil
}

// refreshPreview syncs the conversation's last-message preview when m is the
// newest message.
func (e *Engine) refreshPreview(m *chat.Message) error {
	row, err := e.db.GetConversation(m.ConversationID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	if row == nil || m.Timestamp < row.Conversation.LastMessage.Timestamp {
		return nil
	}
	row.Conversation.LastMessage.Content = m.Content
	row.Conversation.LastMessage.Type = m.Type
	row.Conversation.LastMessage.Timestamp = m.Timestamp
	if err := e.db.UpsertConversation(&row.Conversation, row.Muted, row.Unread); err != nil {
		return fmt.Errorf("update last message: %w", err)
	}
	return nil
}

// IngestDeletion tombstones a message.
func (e *Engine) IngestDeletion(conversationID, messageID string) error {
	if err := e.db.MarkDeleted(conversationID, messageID); err != nil {
		return fmt.Errorf("mark deleted: %w", err)
	}
	e.bus.Publish(bus.Event{
		Kind:      "message.upserted",
		Timestamp: time.Now(),
		Payload: map[string]string{
			"conversation_id": conversationID,
			"msg_id":          messageID,
		},
	})
	return nil
}

// IngestReactions replaces a message's reaction set.
func (e *Engine) IngestReactions(conversationID, messageID string, reactions map[string][]string) error {
	if err := e.db.SetReactions(conversationID, messageID, reactions); err != nil {
		return fmt.Errorf("set reactions: %w", err)
	}
	e.bus.Publish(bus.Event{
		Kind:      "message.upserted",
		Timestamp: time.Now(),
		Payload: map[string]string{
			"conversation_id": conversationID,
			"msg_id":          messageID,
		},
	})
	return nil
}

// IngestPresence updates a user's presence wherever they participate.
func (e *Engine) IngestPresence(userID string, isOnline bool, lastSeen int64) error {
	if err := e.db.UpdatePresence(userID, isOnline, lastSeen); err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	e.bus.Publish(bus.Event{
		Kind:      "conversation.changed",
		Timestamp: time.Now(),
		Payload:   map[string]string{"user_id": userID},
	})
	return nil
}

// IngestConversation upserts a conversation header and its participants.
func (e *Engine) IngestConversation(evt *socket.ConversationEvent) error {
	if err := e.db.UpsertConversation(&evt.Conversation, evt.Muted, evt.Unread); err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	if len(evt.Conversation.Participants) > 0 {
		if err := e.db.ReplaceParticipants(evt.Conversation.ID, evt.Conversation.Participants); err != nil {
			return fmt.Errorf("replace participants: %w", err)
		}
	}
	e.bus.Publish(bus.Event{
		Kind:      "conversation.changed",
		Timestamp: time.Now(),
		Payload:   map[string]string{"conversation_id": evt.Conversation.ID},
	})
	return nil
}

// Bootstrap pulls the conversation list and the newest message page for each
// conversation from the REST API. It is run once after connecting; everything
// after flows through the socket.
func (e *Engine) Bootstrap(ctx context.Context, api *rest.Client) error {
	convs, err := api.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}

	for _, page := range convs {
		if err := e.db.UpsertConversation(&page.Conversation, page.Muted, page.Unread); err != nil {
			return fmt.Errorf("upsert conversation %s: %w", page.Conversation.ID, err)
		}
		if err := e.db.ReplaceParticipants(page.Conversation.ID, page.Conversation.Participants); err != nil {
			return fmt.Errorf("replace participants %s: %w", page.Conversation.ID, err)
		}

		msgs, err := api.Messages(ctx, page.Conversation.ID, 0, 50)
		if err != nil {
			return fmt.Errorf("fetch messages %s: %w", page.Conversation.ID, err)
		}
		for i := range msgs.Messages {
			if err := e.db.UpsertMessage(&msgs.Messages[i], store.MessageReceived); err != nil {
				return fmt.Errorf("upsert message %s: %w", msgs.Messages[i].ID, err)
			}
		}
	}

	if err := e.db.SetState("last_bootstrap", fmt.Sprint(time.Now().UnixMilli())); err != nil {
		return fmt.Errorf("record bootstrap: %w", err)
	}

	e.bus.Publish(bus.Event{
		Kind:      "sync.bootstrapped",
		Timestamp: time.Now(),
		Payload:   map[string]int{"conversations": len(convs)},
	})
	return nil
}
