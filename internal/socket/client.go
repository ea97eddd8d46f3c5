// Package socket maintains the websocket connection to the BizDesk server.
// Inbound events are republished on the bus; outbound actions (send, typing,
// receipts) are written as JSON envelopes.
package socket

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bizdesk/deskchat/internal/bus"
	"github.com/bizdesk/deskchat/internal/chat"
	"github.com/bizdesk/deskchat/internal/status"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const ackTimeout = 10 * time.Second

// ErrNotConnected is returned for outbound actions while the socket is down.
var ErrNotConnected = errors.New("socket not connected")

// SendRequest is an outgoing chat message.
type SendRequest struct {
	ClientMsgID     string `json:"client_msg_id"`
	ConversationID  string `json:"conversation_id"`
	Content         string `json:"content"`
	Type            string `json:"type"`
	MediaURL        string `json:"media_url,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	ReplyToID       string `json:"reply_to_id,omitempty"`
}

// Client is the websocket connection to the server.
type Client struct {
	wsURL   string
	token   string
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	acks      map[string]chan AckEvent
	cancel    context.CancelFunc
}

// NewClient creates a socket client for the given server URL.
func NewClient(serverURL, token string, b *bus.Bus, m *status.Machine, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/chat"

	return &Client{
		wsURL:   u.String(),
		token:   token,
		bus:     b,
		machine: m,
		logger:  logger,
		acks:    make(map[string]chan AckEvent),
	}, nil
}

// Connected reports whether the socket is currently live.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect dials the server. No-op when already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if c.machine != nil {
		_ = c.machine.Transition(status.Connecting)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, c.wsURL+"?token="+url.QueryEscape(c.token), nil)
	if err != nil {
		if c.machine != nil {
			_ = c.machine.Transition(status.Offline)
		}
		return fmt.Errorf("dial %s: %w", c.wsURL, err)
	}
	conn.SetReadLimit(1 << 20)

	readCtx, readCancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.cancel = readCancel
	c.mu.Unlock()

	go c.readLoop(readCtx, conn)

	c.bus.Emit("socket.connected", nil)
	return nil
}

// EnsureConnected connects if the socket is down.
func (c *Client) EnsureConnected(ctx context.Context) error {
	if c.Connected() {
		return nil
	}
	return c.Connect(ctx)
}

// Close shuts the connection down.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.connected = false
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client shutdown")
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var env envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			c.onDisconnect(conn, err)
			return
		}

		kind, payload, err := decodeEvent(env)
		if err != nil {
			c.logger.Warn("malformed socket event", zap.String("event", env.Event), zap.Error(err))
			continue
		}
		if kind == "" {
			continue
		}

		if ack, ok := payload.(AckEvent); ok {
			c.deliverAck(ack)
		}
		c.bus.Emit(kind, payload)
	}
}

func (c *Client) onDisconnect(conn *websocket.Conn, err error) {
	c.mu.Lock()
	// Ignore stale loops from a previous connection.
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	c.logger.Warn("socket disconnected", zap.Error(err))
	if c.machine != nil {
		_ = c.machine.Transition(status.Reconnecting)
	}
	c.bus.Emit("socket.disconnected", nil)
}

func (c *Client) send(ctx context.Context, event string, data any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return wsjson.Write(ctx, conn, map[string]any{
		"event": event,
		"data":  data,
	})
}

func (c *Client) registerAck(clientMsgID string) chan AckEvent {
	ch := make(chan AckEvent, 1)
	c.mu.Lock()
	c.acks[clientMsgID] = ch
	c.mu.Unlock()
	return ch
}

func (c *Client) dropAck(clientMsgID string) {
	c.mu.Lock()
	delete(c.acks, clientMsgID)
	c.mu.Unlock()
}

func (c *Client) deliverAck(ack AckEvent) {
	c.mu.Lock()
	ch := c.acks[ack.ClientMsgID]
	delete(c.acks, ack.ClientMsgID)
	c.mu.Unlock()
	if ch != nil {
		ch <- ack
	}
}

func (c *Client) awaitAck(ctx context.Context, clientMsgID string, ch chan AckEvent) (string, error) {
	timer := time.NewTimer(ackTimeout)
	defer timer.Stop()
	select {
	case ack := <-ch:
		return ack.ServerMsgID, nil
	case <-timer.C:
		c.dropAck(clientMsgID)
		return "", fmt.Errorf("timed out waiting for ack of %s", clientMsgID)
	case <-ctx.Done():
		c.dropAck(clientMsgID)
		return "", ctx.Err()
	}
}

// SendMessage delivers a message and waits for the server's ack. Returns the
// server-assigned message id.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) (string, error) {
	if req.ClientMsgID == "" {
		req.ClientMsgID = uuid.NewString()
	}
	if req.Type == "" {
		req.Type = string(chat.Text)
	}
	ch := c.registerAck(req.ClientMsgID)
	if err := c.send(ctx, "message.send", req); err != nil {
		c.dropAck(req.ClientMsgID)
		return "", err
	}
	return c.awaitAck(ctx, req.ClientMsgID, ch)
}

// ForwardMessage forwards an existing message to another conversation.
func (c *Client) ForwardMessage(ctx context.Context, messageID, targetConversationID string) error {
	clientMsgID := uuid.NewString()
	ch := c.registerAck(clientMsgID)
	err := c.send(ctx, "message.forward", map[string]string{
		"client_msg_id":   clientMsgID,
		"conversation_id": targetConversationID,
		"message_id":      messageID,
	})
	if err != nil {
		c.dropAck(clientMsgID)
		return err
	}
	_, err = c.awaitAck(ctx, clientMsgID, ch)
	return err
}

// Typing signals a typing start or stop in a conversation.
func (c *Client) Typing(ctx context.Context, conversationID string, started bool) error {
	return c.send(ctx, "typing", map[string]any{
		"conversation_id": conversationID,
		"started":         started,
	})
}

// MarkRead reports a message as seen by the current user.
func (c *Client) MarkRead(ctx context.Context, conversationID, messageID string) error {
	return c.send(ctx, "receipt.read", map[string]string{
		"conversation_id": conversationID,
		"message_id":      messageID,
	})
}

// React toggles a reaction on a message.
func (c *Client) React(ctx context.Context, conversationID, messageID, reaction string) error {
	return c.send(ctx, "reaction.toggle", map[string]string{
		"conversation_id": conversationID,
		"message_id":      messageID,
		"reaction":        reaction,
	})
}

// EditMessage replaces the content of a previously sent message.
func (c *Client) EditMessage(ctx context.Context, conversationID, messageID, content string) error {
	return c.send(ctx, "message.edit", map[string]string{
		"conversation_id": conversationID,
		"message_id":      messageID,
		"content":         content,
	})
}

// DeleteMessage tombstones a previously sent message.
func (c *Client) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	return c.send(ctx, "message.delete", map[string]string{
		"conversation_id": conversationID,
		"message_id":      messageID,
	})
}
