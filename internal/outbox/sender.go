// Package outbox drains queued outgoing messages through the socket. Queueing
// is local-first: the UI enqueues and returns immediately, delivery happens in
// the background.
package outbox

import (
	"context"
	"time"

	"github.com/bizdesk/deskchat/internal/bus"
	"github.com/bizdesk/deskchat/internal/chat"
	"github.com/bizdesk/deskchat/internal/socket"
	"github.com/bizdesk/deskchat/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageSender is the interface for delivering messages to the server.
type MessageSender interface {
	SendMessage(ctx context.Context, req socket.SendRequest) (serverMsgID string, err error)
}

// Sender drains the outbox and delivers messages via the socket.
type Sender struct {
	db     *store.DB
	sender MessageSender
	bus    *bus.Bus
	logger *zap.Logger
	selfID string
	cancel context.CancelFunc
}

// NewSender creates a new outbox sender. selfID stamps optimistic inserts so
// the thread view renders them as the user's own messages.
func NewSender(db *store.DB, sender MessageSender, b *bus.Bus, logger *zap.Logger, selfID string) *Sender {
	return &Sender{
		db:     db,
		sender: sender,
		bus:    b,
		logger: logger,
		selfID: selfID,
	}
}

// Enqueue queues a message for delivery. Returns immediately; delivery state
// flows back through "message.*" bus events.
func (s *Sender) Enqueue(req socket.SendRequest) error {
	if req.ClientMsgID == "" {
		req.ClientMsgID = uuid.NewString()
	}
	if req.Type == "" {
		req.Type = string(chat.Text)
	}
	return s.db.QueueOutbox(&store.OutboxItem{
		ClientMsgID:     req.ClientMsgID,
		ConversationID:  req.ConversationID,
		Content:         req.Content,
		Type:            chat.MessageType(req.Type),
		MediaURL:        req.MediaURL,
		DurationSeconds: req.DurationSeconds,
		ReplyToID:       req.ReplyToID,
	})
}

// Start begins polling the outbox for pending messages. Items that failed
// while the socket was down go back on the queue whenever it comes back up.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
	go s.watchReconnect(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) watchReconnect(ctx context.Context) {
	ch, unsub := s.bus.Subscribe("socket.connected", 8)
	defer unsub()

	for {
		select {
		case <-ch:
			n, err := s.db.RequeueFailedOutbox()
			if err != nil {
				s.logger.Error("failed to requeue outbox", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("requeued failed messages after reconnect", zap.Int64("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox(20)
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if err := s.db.MarkOutboxSending(entry.ID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}

		// Optimistic insert: show the message in the UI immediately.
		now := time.Now().UnixMilli()
		msg := &chat.Message{
			ID:              entry.ClientMsgID,
			ConversationID:  entry.ConversationID,
			SenderID:        s.selfID,
			Content:         entry.Content,
			Type:            entry.Type,
			MediaURL:        entry.MediaURL,
			DurationSeconds: entry.DurationSeconds,
			ReplyToID:       entry.ReplyToID,
			Timestamp:       now,
		}
		_ = s.db.UpsertMessage(msg, store.MessageSending)
		s.bus.Emit("message.upserted", map[string]string{
			"conversation_id": entry.ConversationID,
			"msg_id":          entry.ClientMsgID,
		})

		serverMsgID, err := s.sender.SendMessage(ctx, socket.SendRequest{
			ClientMsgID:     entry.ClientMsgID,
			ConversationID:  entry.ConversationID,
			Content:         entry.Content,
			Type:            string(entry.Type),
			MediaURL:        entry.MediaURL,
			DurationSeconds: entry.DurationSeconds,
			ReplyToID:       entry.ReplyToID,
		})
		if err != nil {
			s.logger.Error("failed to send message", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			_ = s.db.MarkOutboxFailed(entry.ID, err.Error())
			_ = s.db.SetMessageStatus(entry.ConversationID, entry.ClientMsgID, store.MessageFailed)
			s.bus.Emit("message.send_failed", map[string]string{
				"conversation_id": entry.ConversationID,
				"client_msg_id":   entry.ClientMsgID,
				"error":           err.Error(),
			})
			continue
		}

		if err := s.db.MarkOutboxSent(entry.ID, serverMsgID); err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		}
		_ = s.db.SetMessageStatus(entry.ConversationID, entry.ClientMsgID, store.MessageSent)

		s.logger.Info("message sent",
			zap.String("client_msg_id", entry.ClientMsgID),
			zap.String("server_msg_id", serverMsgID))
		s.bus.Emit("message.send_ack", map[string]string{
			"conversation_id": entry.ConversationID,
			"client_msg_id":   entry.ClientMsgID,
			"server_msg_id":   serverMsgID,
		})
	}
}
