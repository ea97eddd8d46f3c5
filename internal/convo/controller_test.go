package convo

import (
	"context"
	"sync"
	"testing"

	"github.com/bizdesk/deskchat/internal/chat"
	"go.uber.org/zap"
)

type controllerHarness struct {
	ctrl      *Controller
	timers    *fakeTimers
	surface   *fakeSurface
	transport *fakeTransport

	mu       sync.Mutex
	notified []typingSignal
	reported []readReport
	enqueued []SendRequest
	loads    []string
	hasMore  bool
	loadErr  error
}

type typingSignal struct {
	ConversationID string
	Started        bool
}

type readReport struct {
	ConversationID string
	MessageID      string
}

func newHarness(canLoad bool) *controllerHarness {
	h := &controllerHarness{
		timers:    &fakeTimers{},
		surface:   newFakeSurface(),
		transport: &fakeTransport{connected: true},
		hasMore:   true,
	}
	h.ctrl = NewController(Deps{
		SelfID:    "self",
		Timers:    h.timers,
		Surface:   h.surface,
		Transport: h.transport,
		Notify: func(convID string, started bool) {
			h.mu.Lock()
			h.notified = append(h.notified, typingSignal{convID, started})
			h.mu.Unlock()
		},
		Report: func(convID, msgID string) {
			h.mu.Lock()
			h.reported = append(h.reported, readReport{convID, msgID})
			h.mu.Unlock()
		},
		Enqueue: func(req SendRequest) error {
			h.mu.Lock()
			h.enqueued = append(h.enqueued, req)
			h.mu.Unlock()
			return nil
		},
		LoadOlder: func(_ context.Context, convID string) (bool, error) {
			h.mu.Lock()
			h.loads = append(h.loads, convID)
			more, err := h.hasMore, h.loadErr
			h.mu.Unlock()
			return more, err
		},
		CanLoadHistory: canLoad,
		Logger:         zap.NewNop(),
	})
	return h
}

func conversation(id string) *chat.Conversation {
	return &chat.Conversation{
		ID:   id,
		Type: chat.Direct,
		Participants: []chat.Participant{
			{ID: "self", Name: "Me"},
			{ID: "u1", Name: "alice"},
		},
	}
}

func TestReplyThenSendAttachesAndClears(t *testing.T) {
	h := newHarness(true)
	h.ctrl.Activate(conversation("convA"))

	h.ctrl.BeginReply(&chat.Message{ID: "orig"})
	if err := h.ctrl.Send("hi", chat.Text, "", 0); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.Send("again", chat.Text, "", 0); err != nil {
		t.Fatal(err)
	}

	if len(h.enqueued) != 2 {
		t.Fatalf("enqueued %d sends, want 2", len(h.enqueued))
	}
	if h.enqueued[0].ReplyToID != "orig" {
		t.Errorf("first send ReplyToID = %q, want orig", h.enqueued[0].ReplyToID)
	}
	if h.enqueued[1].ReplyToID != "" {
		t.Errorf("second send ReplyToID = %q, want empty (single use)", h.enqueued[1].ReplyToID)
	}
	if h.enqueued[0].ConversationID != "convA" {
		t.Errorf("send scoped to %q, want convA", h.enqueued[0].ConversationID)
	}
}

func TestSendFlushesTyping(t *testing.T) {
	h := newHarness(true)
	h.ctrl.Activate(conversation("convA"))

	h.ctrl.OnInput("hi")
	if err := h.ctrl.Send("hi", chat.Text, "", 0); err != nil {
		t.Fatal(err)
	}

	want := []typingSignal{{"convA", true}, {"convA", false}}
	if len(h.notified) != len(want) {
		t.Fatalf("notified = %v, want %v", h.notified, want)
	}
	for i := range want {
		if h.notified[i] != want[i] {
			t.Fatalf("notified = %v, want %v", h.notified, want)
		}
	}
}

func TestRemoteTypingExcludesSelf(t *testing.T) {
	h := newHarness(true)
	h.ctrl.Activate(conversation("convA"))

	h.ctrl.OnRemoteTyping("self", true)
	if got := h.ctrl.TypingText(); got != "" {
		t.Errorf("typing text with only self = %q, want empty", got)
	}

	h.ctrl.OnRemoteTyping("u1", true)
	if got := h.ctrl.TypingText(); got != "alice is typing..." {
		t.Errorf("typing text = %q, want alice is typing...", got)
	}

	h.ctrl.OnRemoteTyping("u1", false)
	if got := h.ctrl.TypingText(); got != "" {
		t.Errorf("typing text after stop = %q, want empty", got)
	}
}

func TestRemoteTypingKeepsArrivalOrder(t *testing.T) {
	h := newHarness(true)
	conv := conversation("convA")
	conv.Type = chat.Group
	conv.Participants = append(conv.Participants, chat.Participant{ID: "u2", Name: "bob"})
	h.ctrl.Activate(conv)

	h.ctrl.OnRemoteTyping("u2", true)
	h.ctrl.OnRemoteTyping("u1", true)
	// bob started first; repeated start events must not reorder him.
	h.ctrl.OnRemoteTyping("u2", true)

	want := "bob and alice are typing..."
	for i := 0; i < 10; i++ {
		if got := h.ctrl.TypingText(); got != want {
			t.Fatalf("typing text = %q, want %q", got, want)
		}
	}

	h.ctrl.OnRemoteTyping("u2", false)
	if got := h.ctrl.TypingText(); got != "alice is typing..." {
		t.Errorf("typing text = %q, want alice is typing...", got)
	}
}

func TestOnMessagesAutoScrollsUnlessLoadingOlder(t *testing.T) {
	h := newHarness(true)
	h.ctrl.Activate(conversation("convA"))
	h.ctrl.SetHasMore(true)

	h.ctrl.OnMessages(msgList("m1", "m2"))
	if h.surface.scrollToEnds != 1 {
		t.Fatalf("scrollToEnds = %d, want 1", h.surface.scrollToEnds)
	}

	// While an older-load is in flight the pagination controller owns the
	// scroll position; new message lists must not fight it.
	h.surface.top = 10
	h.surface.height = 500
	h.mu.Lock()
	h.loadErr = nil
	h.mu.Unlock()
	done := make(chan struct{})
	go func() {
		h.ctrl.OnScroll(context.Background())
		close(done)
	}()
	<-done
	// Load settled but render (and restoration) has not happened yet.
	h.ctrl.OnMessages(msgList("m0", "m1", "m2"))
	if h.surface.scrollToEnds != 1 {
		t.Errorf("scrollToEnds = %d, want 1 (suppressed during older-load)", h.surface.scrollToEnds)
	}
	h.surface.render()

	h.ctrl.OnMessages(msgList("m0", "m1", "m2", "m3"))
	if h.surface.scrollToEnds != 2 {
		t.Errorf("scrollToEnds = %d, want 2 after restoration", h.surface.scrollToEnds)
	}
}

func TestOnMessagesSyncsReceipts(t *testing.T) {
	h := newHarness(true)
	h.ctrl.Activate(conversation("convA"))

	h.ctrl.OnMessages(msgList("m1", "m2"))
	h.surface.reportVisible("m2")

	if len(h.reported) != 1 || h.reported[0] != (readReport{"convA", "m2"}) {
		t.Fatalf("reported = %v, want [{convA m2}]", h.reported)
	}
}

func TestConversationSwitchCleansUp(t *testing.T) {
	h := newHarness(true)
	h.ctrl.Activate(conversation("convA"))

	// Conversation A: typing active, reply pending, messages observed.
	h.ctrl.OnInput("draft")
	h.ctrl.BeginReply(&chat.Message{ID: "m1"})
	h.ctrl.OnMessages(msgList("m1", "m2"))

	h.ctrl.Activate(conversation("convB"))

	// A's typing stop was emitted, attributed to A, before the switch.
	want := []typingSignal{{"convA", true}, {"convA", false}}
	if len(h.notified) != 2 || h.notified[0] != want[0] || h.notified[1] != want[1] {
		t.Fatalf("notified = %v, want %v", h.notified, want)
	}
	// A's idle timer is gone; firing whatever remains must not signal for A.
	h.timers.fire()
	if len(h.notified) != 2 {
		t.Errorf("notified = %v after timer fire, stale signal leaked", h.notified)
	}

	// B starts clean.
	if h.ctrl.ReplyTarget() != nil {
		t.Error("reply target leaked across switch")
	}
	if h.ctrl.TypingText() != "" {
		t.Error("typist set leaked across switch")
	}
	if h.ctrl.LoadingOlder() {
		t.Error("loading flag leaked across switch")
	}

	// A's observed messages were released; late visibility reports from the
	// old list are dropped, not attributed to B.
	h.surface.reportVisible("m1")
	if len(h.reported) != 0 {
		t.Errorf("reported = %v, want none after switch", h.reported)
	}
}

func TestControllerIdleWithoutConversation(t *testing.T) {
	h := newHarness(true)

	// Nothing panics and nothing is emitted before activation.
	h.ctrl.OnInput("hi")
	h.ctrl.OnMessages(msgList("m1"))
	h.ctrl.OnScroll(context.Background())
	if err := h.ctrl.Send("hi", chat.Text, "", 0); err != nil {
		t.Fatal(err)
	}
	if len(h.notified) != 0 || len(h.enqueued) != 0 || len(h.loads) != 0 {
		t.Error("idle controller produced side effects")
	}
}
