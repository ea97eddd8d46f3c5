package convo

import (
	"context"
	"sync"

	"github.com/bizdesk/deskchat/internal/chat"
	"go.uber.org/zap"
)

// SendRequest is the outgoing send call contract.
type SendRequest struct {
	ConversationID  string
	Content         string
	Type            chat.MessageType
	MediaURL        string
	DurationSeconds int
	ReplyToID       string
}

// Deps are the external collaborators the controller cluster mediates
// between. All of them are conversation-agnostic; the controller scopes each
// call to the active conversation.
type Deps struct {
	SelfID    string
	Timers    Timers
	Surface   Surface
	Transport ForwardTransport

	// Notify carries typing started/stopped signals to the transport.
	Notify func(conversationID string, started bool)
	// Report dispatches a mark-as-read for a visible message. The receiver
	// is idempotent; repeat reports are expected.
	Report func(conversationID, messageID string)
	// Enqueue hands an outgoing message to the send pipeline.
	Enqueue func(req SendRequest) error
	// LoadOlder fetches the next older history page for a conversation and
	// reports whether more remains.
	LoadOlder func(ctx context.Context, conversationID string) (hasMore bool, err error)

	// CanLoadHistory gates backward pagination (derived from the user's
	// chat capabilities).
	CanLoadHistory bool

	Logger *zap.Logger
}

// Controller owns the transient UI state for the single active conversation
// and mediates between the rendered message list, the transport and user
// input. Switching conversations discards all transient state and cancels
// pending timers so no signal leaks across conversations.
type Controller struct {
	mu   sync.Mutex
	deps Deps
	st   *State
}

// NewController creates an idle controller with no active conversation.
func NewController(deps Deps) *Controller {
	if deps.Timers == nil {
		deps.Timers = RealTimers()
	}
	return &Controller{deps: deps}
}

// Activate makes conv the active conversation. Any previous conversation's
// transient state is torn down first: an active typing flag emits its stopped
// signal, observation stops and pending timers are cancelled.
func (c *Controller) Activate(conv *chat.Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st != nil {
		c.st.teardown()
	}

	d := c.deps
	convID := conv.ID
	st := &State{
		Conversation: conv,
	}
	st.Typing = NewTypingController(d.Timers, func(started bool) {
		d.Notify(convID, started)
	})
	st.Receipts = NewReceiptObserver(d.Surface, func(messageID string) {
		d.Report(convID, messageID)
	})
	st.Pager = NewPaginationController(d.Surface, func(ctx context.Context) (bool, error) {
		return d.LoadOlder(ctx, convID)
	}, d.CanLoadHistory, d.Logger)
	st.Coord = NewCoordinator(d.Timers, d.Surface, d.Transport)
	c.st = st
}

// Deactivate tears down the active conversation's state, if any.
func (c *Controller) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st != nil {
		c.st.teardown()
		c.st = nil
	}
}

// Active returns the active conversation, or nil.
func (c *Controller) Active() *chat.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st == nil {
		return nil
	}
	return c.st.Conversation
}

func (c *Controller) state() *State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// OnMessages installs a new message list for the active conversation. The
// receipt observer is re-synced, and the view auto-scrolls to the newest
// message unless an older-history load is in flight (the pagination
// controller owns the scroll position during its prepend restoration).
func (c *Controller) OnMessages(msgs []chat.Message) {
	st := c.state()
	if st == nil {
		return
	}
	c.mu.Lock()
	st.messages = msgs
	c.mu.Unlock()

	st.Receipts.Sync(msgs)
	if !st.Pager.Loading() {
		c.deps.Surface.ScrollToEnd()
	}
}

// Messages returns the active conversation's loaded message window.
func (c *Controller) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st == nil {
		return nil
	}
	return c.st.messages
}

// SetHasMore records whether older history remains for the active
// conversation.
func (c *Controller) SetHasMore(hasMore bool) {
	if st := c.state(); st != nil {
		st.Pager.SetHasMore(hasMore)
	}
}

// LoadingOlder reports whether an older-history load is in flight.
func (c *Controller) LoadingOlder() bool {
	st := c.state()
	return st != nil && st.Pager.Loading()
}

// OnScroll forwards a scroll event to the pagination controller.
func (c *Controller) OnScroll(ctx context.Context) {
	if st := c.state(); st != nil {
		st.Pager.OnScroll(ctx)
	}
}

// OnInput forwards composer input to the typing controller.
func (c *Controller) OnInput(text string) {
	if st := c.state(); st != nil {
		st.Typing.OnInput(text)
	}
}

// OnRemoteTyping updates the remote typist set from an inbound typing event.
// Events about the local user are ignored.
func (c *Controller) OnRemoteTyping(userID string, started bool) {
	if userID == c.deps.SelfID {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st == nil {
		return
	}
	idx := -1
	for i, id := range c.st.typists {
		if id == userID {
			idx = i
			break
		}
	}
	if started {
		if idx < 0 {
			c.st.typists = append(c.st.typists, userID)
		}
	} else if idx >= 0 {
		c.st.typists = append(c.st.typists[:idx], c.st.typists[idx+1:]...)
	}
}

// TypingText derives the typing indicator line for the active conversation.
func (c *Controller) TypingText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st == nil {
		return ""
	}
	return chat.TypingSummary(c.st.Conversation, c.st.typists, c.deps.SelfID)
}

// Send queues an outgoing message. A pending reply target is attached to the
// call and cleared; reply is single-use per send. The local typing state is
// flushed so the peer's indicator drops immediately.
func (c *Controller) Send(content string, msgType chat.MessageType, mediaURL string, durationSeconds int) error {
	st := c.state()
	if st == nil {
		return nil
	}

	req := SendRequest{
		ConversationID:  st.Conversation.ID,
		Content:         content,
		Type:            msgType,
		MediaURL:        mediaURL,
		DurationSeconds: durationSeconds,
		ReplyToID:       st.Coord.TakeReplyID(),
	}
	err := c.deps.Enqueue(req)
	st.Typing.Flush()
	return err
}

// BeginReply sets the pending reply target.
func (c *Controller) BeginReply(m *chat.Message) {
	if st := c.state(); st != nil {
		st.Coord.BeginReply(m)
	}
}

// CancelReply clears the pending reply target.
func (c *Controller) CancelReply() {
	if st := c.state(); st != nil {
		st.Coord.CancelReply()
	}
}

// ReplyTarget returns the pending reply target, or nil.
func (c *Controller) ReplyTarget() *chat.Message {
	st := c.state()
	if st == nil {
		return nil
	}
	return st.Coord.ReplyTarget()
}

// JumpToOriginal scrolls the pending reply's original message into view.
func (c *Controller) JumpToOriginal() {
	if st := c.state(); st != nil {
		st.Coord.JumpToOriginal()
	}
}

// BeginForward opens the forward target picker for the given message.
func (c *Controller) BeginForward(m *chat.Message) {
	if st := c.state(); st != nil {
		st.Coord.BeginForward(m)
	}
}

// ConfirmForward issues the forward into the chosen conversation.
func (c *Controller) ConfirmForward(ctx context.Context, targetConversationID string) error {
	st := c.state()
	if st == nil {
		return nil
	}
	return st.Coord.ConfirmForward(ctx, targetConversationID)
}

// CancelForward closes the forward picker.
func (c *Controller) CancelForward() {
	if st := c.state(); st != nil {
		st.Coord.CancelForward()
	}
}

// ForwardPickerOpen reports whether the forward picker is open.
func (c *Controller) ForwardPickerOpen() bool {
	st := c.state()
	return st != nil && st.Coord.PickerOpen()
}

// ForwardSource returns the message pending forward, or nil.
func (c *Controller) ForwardSource() *chat.Message {
	st := c.state()
	if st == nil {
		return nil
	}
	return st.Coord.ForwardSource()
}
