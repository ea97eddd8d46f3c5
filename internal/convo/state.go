package convo

import "github.com/bizdesk/deskchat/internal/chat"

// State is the transient view state for one active conversation. It is
// constructed on activation and discarded on deactivation; nothing here is
// persisted or shared across conversations.
type State struct {
	Conversation *chat.Conversation
	Typing       *TypingController
	Receipts     *ReceiptObserver
	Pager        *PaginationController
	Coord        *Coordinator

	// typists keeps arrival order so the indicator text is stable across
	// redraws.
	typists  []string
	messages []chat.Message
}

// teardown flushes typing, releases observation and cancels every timer owned
// by this conversation's controllers.
func (s *State) teardown() {
	s.Typing.Flush()
	s.Receipts.Release()
	s.Coord.Reset()
}
