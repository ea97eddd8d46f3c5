package outbox

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bizdesk/deskchat/internal/bus"
	"github.com/bizdesk/deskchat/internal/chat"
	"github.com/bizdesk/deskchat/internal/socket"
	"github.com/bizdesk/deskchat/internal/store"
	"go.uber.org/zap"
)

// mockSender records calls and returns configurable results.
type mockSender struct {
	mu    sync.Mutex
	calls []socket.SendRequest
	err   error
	delay time.Duration // artificial delay to observe intermediate states
}

func (m *mockSender) SendMessage(_ context.Context, req socket.SendRequest) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	err := m.err
	m.mu.Unlock()
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if err != nil {
		return "", err
	}
	return "server-" + req.ClientMsgID, nil
}

func (m *mockSender) setErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func messageStatus(t *testing.T, db *store.DB, conversationID, msgID string) string {
	t.Helper()
	var status string
	err := db.QueryRow(`SELECT status FROM messages WHERE conversation_id = ? AND msg_id = ?`,
		conversationID, msgID).Scan(&status)
	if err != nil {
		t.Fatalf("query status: %v", err)
	}
	return status
}

func TestEnqueueAssignsClientID(t *testing.T) {
	db := testDB(t)
	s := NewSender(db, &mockSender{}, bus.New(), zap.NewNop(), "self")

	if err := s.Enqueue(socket.SendRequest{ConversationID: "conv-1", Content: "hello"}); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingOutbox(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending, want 1", len(pending))
	}
	if pending[0].ClientMsgID == "" {
		t.Error("expected generated client_msg_id")
	}
	if pending[0].Type != chat.Text {
		t.Errorf("type = %q, want text default", pending[0].Type)
	}
}

func TestSenderProcessesPendingMessages(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockSender{}
	s := NewSender(db, mock, b, zap.NewNop(), "self")

	ch, unsub := b.Subscribe("message.send_ack", 10)
	defer unsub()

	if err := s.Enqueue(socket.SendRequest{
		ClientMsgID:    "c1",
		ConversationID: "conv-1",
		Content:        "hello",
		ReplyToID:      "m9",
	}); err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	select {
	case evt := <-ch:
		if evt.Kind != "message.send_ack" {
			t.Errorf("event kind = %q, want message.send_ack", evt.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for send_ack event")
	}

	if len(mock.calls) != 1 {
		t.Fatalf("got %d send calls, want 1", len(mock.calls))
	}
	if mock.calls[0].ConversationID != "conv-1" || mock.calls[0].Content != "hello" {
		t.Errorf("call = %+v", mock.calls[0])
	}
	if mock.calls[0].ReplyToID != "m9" {
		t.Errorf("reply_to_id = %q, want m9", mock.calls[0].ReplyToID)
	}

	pending, err := db.PendingOutbox(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending, want 0 after send", len(pending))
	}
}

func TestSenderHandlesFailure(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockSender{err: fmt.Errorf("network error")}
	s := NewSender(db, mock, b, zap.NewNop(), "self")

	ch, unsub := b.Subscribe("message.send_failed", 10)
	defer unsub()

	if err := s.Enqueue(socket.SendRequest{ClientMsgID: "c1", ConversationID: "conv-1", Content: "hello"}); err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	select {
	case evt := <-ch:
		if evt.Kind != "message.send_failed" {
			t.Errorf("event kind = %q, want message.send_failed", evt.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for send_failed event")
	}

	pending, err := db.PendingOutbox(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending, want 0 (should be marked failed)", len(pending))
	}
}

// TestSenderOptimisticInsert verifies that the outbox inserts a message with
// status "sending" before the actual send completes, then updates to "sent".
// Without this the message would not appear in the thread until the server
// echoed it back.
func TestSenderOptimisticInsert(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockSender{delay: 500 * time.Millisecond}
	s := NewSender(db, mock, b, zap.NewNop(), "self")

	if err := s.Enqueue(socket.SendRequest{ClientMsgID: "c1", ConversationID: "conv-1", Content: "optimistic"}); err != nil {
		t.Fatal(err)
	}

	ch, unsub := b.Subscribe("message.upserted", 10)
	defer unsub()
	ackCh, ackUnsub := b.Subscribe("message.send_ack", 10)
	defer ackUnsub()

	s.Start(context.Background())
	defer s.Stop()

	// Wait for the optimistic insert (before the mock's delay finishes).
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for optimistic message.upserted event")
	}

	msg, err := db.GetMessage("conv-1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if msg == nil {
		t.Fatal("optimistic message missing")
	}
	if msg.Content != "optimistic" || msg.SenderID != "self" {
		t.Errorf("message = %+v", msg)
	}
	if got := messageStatus(t, db, "conv-1", "c1"); got != "sending" {
		t.Errorf("status = %q, want sending", got)
	}

	select {
	case <-ackCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for send ack")
	}

	if got := messageStatus(t, db, "conv-1", "c1"); got != "sent" {
		t.Errorf("final status = %q, want sent", got)
	}
}

// TestSenderOptimisticInsertOnFailure verifies that a failed send flips the
// optimistic message to "failed" status.
func TestSenderOptimisticInsertOnFailure(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockSender{err: fmt.Errorf("timeout")}
	s := NewSender(db, mock, b, zap.NewNop(), "self")

	if err := s.Enqueue(socket.SendRequest{ClientMsgID: "c1", ConversationID: "conv-1", Content: "will-fail"}); err != nil {
		t.Fatal(err)
	}

	ch, unsub := b.Subscribe("message.send_failed", 10)
	defer unsub()

	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for send_failed event")
	}

	if got := messageStatus(t, db, "conv-1", "c1"); got != "failed" {
		t.Errorf("status = %q, want failed", got)
	}
}

// TestSenderRequeuesFailedOnReconnect verifies that messages which failed
// while the socket was down are retried once it reconnects.
func TestSenderRequeuesFailedOnReconnect(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockSender{err: fmt.Errorf("socket closed")}
	s := NewSender(db, mock, b, zap.NewNop(), "self")

	failCh, failUnsub := b.Subscribe("message.send_failed", 10)
	defer failUnsub()
	ackCh, ackUnsub := b.Subscribe("message.send_ack", 10)
	defer ackUnsub()

	if err := s.Enqueue(socket.SendRequest{ClientMsgID: "c1", ConversationID: "conv-1", Content: "retry me"}); err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-failCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for send_failed event")
	}

	// Socket comes back up; the failed item goes back on the queue and the
	// next drain delivers it.
	mock.setErr(nil)
	b.Emit("socket.connected", nil)

	select {
	case <-ackCh:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for retry after reconnect")
	}

	if got := messageStatus(t, db, "conv-1", "c1"); got != "sent" {
		t.Errorf("status = %q, want sent", got)
	}
}
