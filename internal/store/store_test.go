package store

import (
	"path/filepath"
	"testing"

	"github.com/bizdesk/deskchat/internal/chat"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)
	res, err := db.Migrate()
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if res.Changed {
		t.Error("expected no change on second migrate")
	}
}

func TestUpsertConversation(t *testing.T) {
	db := testDB(t)
	conv := &chat.Conversation{
		ID:   "conv-1",
		Type: chat.Direct,
		LastMessage: chat.LastMessage{
			Content:   "hello",
			Type:      chat.Text,
			Timestamp: 100,
		},
	}
	if err := db.UpsertConversation(conv, false, 2); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	conv.LastMessage.Content = "updated"
	conv.LastMessage.Timestamp = 200
	if err := db.UpsertConversation(conv, true, 3); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	got, err := db.GetConversation("conv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("conversation not found")
	}
	if got.Conversation.LastMessage.Content != "updated" {
		t.Errorf("last message = %q, want %q", got.Conversation.LastMessage.Content, "updated")
	}
	if !got.Muted || got.Unread != 3 {
		t.Errorf("muted=%v unread=%d, want muted=true unread=3", got.Muted, got.Unread)
	}

	rows, err := db.Query(`SELECT COUNT(*) FROM conversations`)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	defer rows.Close()
	rows.Next()
	var n int
	_ = rows.Scan(&n)
	if n != 1 {
		t.Errorf("conversation rows = %d, want 1", n)
	}
}

func TestReplaceParticipants(t *testing.T) {
	db := testDB(t)
	conv := &chat.Conversation{ID: "conv-1", Type: chat.Group, Name: "Team"}
	if err := db.UpsertConversation(conv, false, 0); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	first := []chat.Participant{
		{ID: "u1", Name: "Alice", Presence: chat.Presence{IsOnline: true}},
		{ID: "u2", Name: "Bob"},
	}
	if err := db.ReplaceParticipants("conv-1", first); err != nil {
		t.Fatalf("replace: %v", err)
	}

	second := []chat.Participant{
		{ID: "u2", Name: "Bob"},
		{ID: "u3", Name: "Carol"},
	}
	if err := db.ReplaceParticipants("conv-1", second); err != nil {
		t.Fatalf("replace again: %v", err)
	}

	got, err := db.GetConversation("conv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Conversation.Participants) != 2 {
		t.Fatalf("participants = %d, want 2", len(got.Conversation.Participants))
	}
	if got.Conversation.Participants[0].ID != "u2" || got.Conversation.Participants[1].ID != "u3" {
		t.Errorf("unexpected participant set: %+v", got.Conversation.Participants)
	}
}

func TestUpdatePresence(t *testing.T) {
	db := testDB(t)
	conv := &chat.Conversation{ID: "conv-1", Type: chat.Direct}
	if err := db.UpsertConversation(conv, false, 0); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := db.ReplaceParticipants("conv-1", []chat.Participant{{ID: "u1", Name: "Alice"}}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	if err := db.UpdatePresence("u1", true, 500); err != nil {
		t.Fatalf("update presence: %v", err)
	}

	got, _ := db.GetConversation("conv-1")
	p := got.Conversation.Participants[0]
	if !p.Presence.IsOnline || p.Presence.LastSeen != 500 {
		t.Errorf("presence = %+v, want online with last_seen 500", p.Presence)
	}
}

func TestListConversationsOrder(t *testing.T) {
	db := testDB(t)
	for _, c := range []struct {
		id string
		ts int64
	}{
		{"old", 100},
		{"new", 300},
		{"mid", 200},
	} {
		conv := &chat.Conversation{ID: c.id, Type: chat.Direct, LastMessage: chat.LastMessage{Timestamp: c.ts}}
		if err := db.UpsertConversation(conv, false, 0); err != nil {
			t.Fatalf("upsert %s: %v", c.id, err)
		}
	}

	convs, err := db.ListConversations(10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 3 {
		t.Fatalf("got %d conversations, want 3", len(convs))
	}
	want := []string{"new", "mid", "old"}
	for i, w := range want {
		if convs[i].Conversation.ID != w {
			t.Errorf("convs[%d] = %s, want %s", i, convs[i].Conversation.ID, w)
		}
	}
}

func TestUnreadCounters(t *testing.T) {
	db := testDB(t)
	conv := &chat.Conversation{ID: "conv-1", Type: chat.Direct}
	if err := db.UpsertConversation(conv, false, 0); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := db.IncrementUnread("conv-1"); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	got, _ := db.GetConversation("conv-1")
	if got.Unread != 3 {
		t.Errorf("unread = %d, want 3", got.Unread)
	}

	if err := db.ClearUnread("conv-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ = db.GetConversation("conv-1")
	if got.Unread != 0 {
		t.Errorf("unread after clear = %d, want 0", got.Unread)
	}
}

func TestUpsertMessageIdempotent(t *testing.T) {
	db := testDB(t)
	msg := &chat.Message{
		ID:             "m1",
		ConversationID: "conv-1",
		SenderID:       "u1",
		Content:        "hello",
		Type:           chat.Text,
		Timestamp:      100,
	}
	if err := db.UpsertMessage(msg, MessageReceived); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	msg.Content = "hello edited"
	msg.IsEdited = true
	if err := db.UpsertMessage(msg, MessageReceived); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	got, err := db.GetMessage("conv-1", "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("message not found")
	}
	if got.Content != "hello edited" || !got.IsEdited {
		t.Errorf("message = %+v, want edited content", got)
	}

	msgs, err := db.ListMessagesBefore("conv-1", 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("got %d messages, want 1", len(msgs))
	}
}

func TestListMessagesBeforeKeyset(t *testing.T) {
	db := testDB(t)
	for i := int64(1); i <= 5; i++ {
		msg := &chat.Message{
			ID:             "m" + string(rune('0'+i)),
			ConversationID: "conv-1",
			Content:        "msg",
			Type:           chat.Text,
			Timestamp:      i * 100,
		}
		if err := db.UpsertMessage(msg, MessageReceived); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	// Newest page.
	page, err := db.ListMessagesBefore("conv-1", 0, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].Timestamp != 400 || page[1].Timestamp != 500 {
		t.Fatalf("newest page = %+v, want timestamps 400,500", page)
	}

	// Older page keyed off the oldest loaded timestamp.
	older, err := db.ListMessagesBefore("conv-1", page[0].Timestamp, 2)
	if err != nil {
		t.Fatalf("list older: %v", err)
	}
	if len(older) != 2 || older[0].Timestamp != 200 || older[1].Timestamp != 300 {
		t.Fatalf("older page = %+v, want timestamps 200,300", older)
	}
}

func TestMarkDeletedTombstone(t *testing.T) {
	db := testDB(t)
	msg := &chat.Message{ID: "m1", ConversationID: "conv-1", Content: "secret", Type: chat.Text, Timestamp: 100}
	if err := db.UpsertMessage(msg, MessageReceived); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := db.MarkDeleted("conv-1", "m1"); err != nil {
		t.Fatalf("mark deleted: %v", err)
	}

	got, _ := db.GetMessage("conv-1", "m1")
	if got == nil {
		t.Fatal("tombstone row missing")
	}
	if !got.IsDeleted || got.Content != "" {
		t.Errorf("message = %+v, want deleted with empty content", got)
	}
}

func TestReactionsRoundTrip(t *testing.T) {
	db := testDB(t)
	msg := &chat.Message{ID: "m1", ConversationID: "conv-1", Content: "hi", Type: chat.Text, Timestamp: 100}
	if err := db.UpsertMessage(msg, MessageReceived); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	reactions := map[string][]string{"👍": {"u1", "u2"}, "❤️": {"u3"}}
	if err := db.SetReactions("conv-1", "m1", reactions); err != nil {
		t.Fatalf("set reactions: %v", err)
	}

	got, _ := db.GetMessage("conv-1", "m1")
	if len(got.Reactions["👍"]) != 2 || len(got.Reactions["❤️"]) != 1 {
		t.Errorf("reactions = %+v", got.Reactions)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	db := testDB(t)
	item := &OutboxItem{
		ClientMsgID:    "c1",
		ConversationID: "conv-1",
		Content:        "queued message",
		Type:           chat.Text,
		ReplyToID:      "m9",
	}
	if err := db.QueueOutbox(item); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if item.ID == 0 {
		t.Error("expected assigned id")
	}

	pending, err := db.PendingOutbox(10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ReplyToID != "m9" {
		t.Fatalf("pending = %+v, want one item with reply_to m9", pending)
	}

	if err := db.MarkOutboxSending(item.ID); err != nil {
		t.Fatalf("mark sending: %v", err)
	}
	pending, _ = db.PendingOutbox(10)
	if len(pending) != 0 {
		t.Error("sending item still pending")
	}

	if err := db.MarkOutboxSent(item.ID, "srv-1"); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	var status, serverID string
	if err := db.QueryRow(`SELECT status, server_msg_id FROM outbox WHERE id = ?`, item.ID).Scan(&status, &serverID); err != nil {
		t.Fatalf("query: %v", err)
	}
	if status != string(OutboxSent) || serverID != "srv-1" {
		t.Errorf("status=%s server_msg_id=%s", status, serverID)
	}
}

func TestOutboxFailureAndRequeue(t *testing.T) {
	db := testDB(t)
	item := &OutboxItem{ClientMsgID: "c1", ConversationID: "conv-1", Content: "x", Type: chat.Text}
	if err := db.QueueOutbox(item); err != nil {
		t.Fatalf("queue: %v", err)
	}

	if err := db.MarkOutboxFailed(item.ID, "socket closed"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	pending, _ := db.PendingOutbox(10)
	if len(pending) != 0 {
		t.Error("failed item still pending")
	}

	n, err := db.RequeueFailedOutbox()
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if n != 1 {
		t.Errorf("requeued = %d, want 1", n)
	}
	pending, _ = db.PendingOutbox(10)
	if len(pending) != 1 {
		t.Error("requeued item not pending")
	}
	if pending[0].ErrorMessage != "" {
		t.Errorf("error message = %q, want cleared", pending[0].ErrorMessage)
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	db := testDB(t)
	conv := &chat.Conversation{ID: "conv-1", Type: chat.Direct}
	if err := db.UpsertConversation(conv, false, 0); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	msg := &chat.Message{ID: "m1", ConversationID: "conv-1", Content: "x", Type: chat.Text, Timestamp: 1}
	if err := db.UpsertMessage(msg, MessageReceived); err != nil {
		t.Fatalf("upsert message: %v", err)
	}

	if err := db.DeleteConversation("conv-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, _ := db.GetConversation("conv-1")
	if got != nil {
		t.Error("conversation still present")
	}
	m, _ := db.GetMessage("conv-1", "m1")
	if m != nil {
		t.Error("message still present")
	}
}

func TestSyncState(t *testing.T) {
	db := testDB(t)
	v, err := db.GetState("last_sync")
	if err != nil {
		t.Fatalf("get unset: %v", err)
	}
	if v != "" {
		t.Errorf("unset value = %q, want empty", v)
	}

	if err := db.SetState("last_sync", "123"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := db.SetState("last_sync", "456"); err != nil {
		t.Fatalf("set again: %v", err)
	}
	v, _ = db.GetState("last_sync")
	if v != "456" {
		t.Errorf("value = %q, want 456", v)
	}
}
