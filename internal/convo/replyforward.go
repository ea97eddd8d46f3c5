package convo

import (
	"context"
	"sync"
	"time"

	"github.com/bizdesk/deskchat/internal/chat"
)

const (
	// jumpOffset keeps the jumped-to message clear of the header.
	jumpOffset = 80
	// highlightDuration is how long the jumped-to message stays highlighted.
	highlightDuration = 1500 * time.Millisecond
)

// ForwardTransport is the transport slice the coordinator needs: a live
// connection and the forward call.
type ForwardTransport interface {
	Connected() bool
	EnsureConnected(ctx context.Context) error
	ForwardMessage(ctx context.Context, messageID, targetConversationID string) error
}

// Coordinator tracks the in-progress reply target and forward target for one
// active conversation. Reply is single-use per send; forward keeps its picker
// open on failure so the user can retry.
type Coordinator struct {
	mu         sync.Mutex
	timers     Timers
	locator    MessageLocator
	transport  ForwardTransport
	replyTo    *chat.Message
	forward    *chat.Message
	pickerOpen bool
	highlight  Timer
	litID      string
}

// NewCoordinator creates a reply/forward coordinator.
func NewCoordinator(timers Timers, locator MessageLocator, transport ForwardTransport) *Coordinator {
	return &Coordinator{timers: timers, locator: locator, transport: transport}
}

// BeginReply sets the pending reply target, replacing any previous one.
func (c *Coordinator) BeginReply(m *chat.Message) {
	c.mu.Lock()
	c.replyTo = m
	c.mu.Unlock()
}

// CancelReply clears the pending reply target.
func (c *Coordinator) CancelReply() {
	c.mu.Lock()
	c.replyTo = nil
	c.mu.Unlock()
}

// ReplyTarget returns the pending reply target, or nil.
func (c *Coordinator) ReplyTarget() *chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replyTo
}

// TakeReplyID returns the pending reply target's id and clears the target.
// The send path calls this so each selected reply is attached to exactly one
// outgoing message.
func (c *Coordinator) TakeReplyID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replyTo == nil {
		return ""
	}
	id := c.replyTo.ID
	c.replyTo = nil
	return id
}

// JumpToOriginal scrolls the pending reply target's original message into
// view and highlights it briefly. If the original is not in the loaded
// window this is a silent no-op.
func (c *Coordinator) JumpToOriginal() {
	c.mu.Lock()
	target := c.replyTo
	c.mu.Unlock()
	if target == nil {
		return
	}

	top, ok := c.locator.Position(target.ID)
	if !ok {
		return
	}

	c.mu.Lock()
	if c.highlight != nil {
		c.highlight.Stop()
		if c.litID != "" {
			c.locator.Unhighlight(c.litID)
		}
	}
	c.litID = target.ID
	c.mu.Unlock()

	c.locator.Highlight(target.ID)

	id := target.ID
	t := c.timers.AfterFunc(highlightDuration, func() {
		c.locator.Unhighlight(id)
		c.mu.Lock()
		if c.litID == id {
			c.litID = ""
			c.highlight = nil
		}
		c.mu.Unlock()
	})
	c.mu.Lock()
	c.highlight = t
	c.mu.Unlock()

	sc := top - jumpOffset
	if sc < 0 {
		sc = 0
	}
	c.scrollTo(sc)
}

func (c *Coordinator) scrollTo(top int) {
	if vp, ok := c.locator.(Viewport); ok {
		vp.SetScrollTop(top)
	}
}

// BeginForward sets the forward source and opens the target picker.
func (c *Coordinator) BeginForward(m *chat.Message) {
	c.mu.Lock()
	c.forward = m
	c.pickerOpen = true
	c.mu.Unlock()
}

// CancelForward closes the picker and clears the forward source.
func (c *Coordinator) CancelForward() {
	c.mu.Lock()
	c.forward = nil
	c.pickerOpen = false
	c.mu.Unlock()
}

// PickerOpen reports whether the forward target picker is open.
func (c *Coordinator) PickerOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pickerOpen
}

// ForwardSource returns the message being forwarded, or nil.
func (c *Coordinator) ForwardSource() *chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forward
}

// ConfirmForward forwards the pending source into the chosen conversation.
// The transport connection is established first if needed; the forward is not
// issued into a half-open socket. On success the picker closes and the source
// clears; on any failure both stay so the user can retry.
func (c *Coordinator) ConfirmForward(ctx context.Context, targetConversationID string) error {
	c.mu.Lock()
	source := c.forward
	c.mu.Unlock()
	if source == nil {
		return nil
	}

	if !c.transport.Connected() {
		if err := c.transport.EnsureConnected(ctx); err != nil {
			return err
		}
	}

	if err := c.transport.ForwardMessage(ctx, source.ID, targetConversationID); err != nil {
		return err
	}

	c.mu.Lock()
	c.forward = nil
	c.pickerOpen = false
	c.mu.Unlock()
	return nil
}

// Reset clears reply and forward state and cancels the highlight timer.
// Called on conversation switch so nothing leaks across conversations.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	if c.highlight != nil {
		c.highlight.Stop()
		c.highlight = nil
	}
	lit := c.litID
	c.litID = ""
	c.replyTo = nil
	c.forward = nil
	c.pickerOpen = false
	c.mu.Unlock()
	if lit != "" {
		c.locator.Unhighlight(lit)
	}
}
