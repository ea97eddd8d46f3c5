package model

import (
	"context"
	"sync"

	"github.com/bizdesk/deskchat/internal/authz"
	"github.com/bizdesk/deskchat/internal/chat"
	"github.com/bizdesk/deskchat/internal/rest"
	"github.com/bizdesk/deskchat/internal/store"
)

const pageSize = 50

// ViewModel caches UI state read from the local store and signals refreshes.
// The store is the single source of truth; the socket and sync engine fill it
// in the background and the view model only ever reads.
type ViewModel struct {
	mu sync.RWMutex

	db  *store.DB
	api *rest.Client

	User          *authz.User
	Caps          authz.Capabilities
	Branding      *rest.Branding
	Conversations []store.ConversationRow
	Messages      []chat.Message
	ActiveID      string
	Flash         Flash

	windowLimit int
	refreshCh   chan struct{}
}

// NewViewModel creates a view model over the local store and the REST API.
func NewViewModel(db *store.DB, api *rest.Client) *ViewModel {
	return &ViewModel{
		db:          db,
		api:         api,
		windowLimit: pageSize,
		refreshCh:   make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadIdentity fetches the authenticated user and resolves the chat
// capability set the UI gates on.
func (vm *ViewModel) LoadIdentity(ctx context.Context) error {
	user, err := vm.api.CurrentUser(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.User = user
	vm.Caps = authz.Resolve(user, "conversation")
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadBranding fetches the server's site identity for the status bar.
func (vm *ViewModel) LoadBranding(ctx context.Context) error {
	branding, err := vm.api.SiteBranding(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Branding = branding
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadConversations reads the conversation list from the local store.
func (vm *ViewModel) LoadConversations() error {
	convs, err := vm.db.ListConversations(200, 0)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Conversations = convs
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadMessages reads the active conversation's message window from the local
// store. Opening a different conversation resets the window size.
func (vm *ViewModel) LoadMessages(conversationID string) error {
	vm.mu.Lock()
	if vm.ActiveID != conversationID {
		vm.ActiveID = conversationID
		vm.windowLimit = pageSize
	}
	limit := vm.windowLimit
	vm.mu.Unlock()

	msgs, err := vm.db.ListMessagesBefore(conversationID, 0, limit)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Messages = msgs
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadOlder fetches the next older history page from the server, caches it
// and widens the local window. Returns whether more history remains. It does
// NOT reload the window or signal a refresh: the caller re-renders once its
// scroll restoration is armed, so the prepend and the restoration land in the
// same render pass.
func (vm *ViewModel) LoadOlder(ctx context.Context, conversationID string) (bool, error) {
	vm.mu.RLock()
	var before int64
	if len(vm.Messages) > 0 && vm.ActiveID == conversationID {
		before = vm.Messages[0].Timestamp
	}
	vm.mu.RUnlock()

	page, err := vm.api.Messages(ctx, conversationID, before, pageSize)
	if err != nil {
		return false, err
	}
	for i := range page.Messages {
		if err := vm.db.UpsertMessage(&page.Messages[i], store.MessageReceived); err != nil {
			return false, err
		}
	}

	vm.mu.Lock()
	if vm.ActiveID == conversationID {
		vm.windowLimit += len(page.Messages)
	}
	vm.mu.Unlock()
	return page.HasMore, nil
}

// ToggleReaction flips userID's reaction on a loaded message in the local
// cache. The server's reaction event is authoritative; this keeps the view
// responsive until it arrives.
func (vm *ViewModel) ToggleReaction(conversationID, messageID, userID, reaction string) error {
	m, err := vm.db.GetMessage(conversationID, messageID)
	if err != nil {
		return err
	}
	if m == nil {
		return nil
	}

	reactions := m.Reactions
	if reactions == nil {
		reactions = make(map[string][]string)
	}
	users := reactions[reaction]
	found := false
	for i, id := range users {
		if id == userID {
			reactions[reaction] = append(users[:i], users[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		reactions[reaction] = append(users, userID)
	}
	if len(reactions[reaction]) == 0 {
		delete(reactions, reaction)
	}

	if err := vm.db.SetReactions(conversationID, messageID, reactions); err != nil {
		return err
	}
	return vm.reloadActive(conversationID)
}

// ApplyEdit rewrites a message's content in the local cache.
func (vm *ViewModel) ApplyEdit(conversationID, messageID, content string) error {
	if err := vm.db.MarkEdited(conversationID, messageID, content); err != nil {
		return err
	}
	return vm.reloadActive(conversationID)
}

// ApplyDeletion tombstones a message in the local cache.
func (vm *ViewModel) ApplyDeletion(conversationID, messageID string) error {
	if err := vm.db.MarkDeleted(conversationID, messageID); err != nil {
		return err
	}
	return vm.reloadActive(conversationID)
}

func (vm *ViewModel) reloadActive(conversationID string) error {
	vm.mu.RLock()
	active := vm.ActiveID == conversationID
	vm.mu.RUnlock()
	if !active {
		return nil
	}
	return vm.LoadMessages(conversationID)
}

// MarkRead clears the unread counter locally and on the server.
func (vm *ViewModel) MarkRead(ctx context.Context, conversationID string) error {
	if err := vm.db.ClearUnread(conversationID); err != nil {
		return err
	}
	vm.signalRefresh()
	return vm.api.MarkRead(ctx, conversationID)
}

// ToggleMute flips a conversation's mute flag locally and on the server.
func (vm *ViewModel) ToggleMute(ctx context.Context, conversationID string) error {
	row, err := vm.db.GetConversation(conversationID)
	if err != nil {
		return err
	}
	if row == nil {
		return nil
	}
	muted := !row.Muted
	if err := vm.db.SetMuted(conversationID, muted); err != nil {
		return err
	}
	vm.signalRefresh()
	if muted {
		return vm.api.Mute(ctx, conversationID)
	}
	return vm.api.Unmute(ctx, conversationID)
}

// DeleteConversation removes a conversation locally and on the server.
func (vm *ViewModel) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := vm.api.DeleteConversation(ctx, conversationID); err != nil {
		return err
	}
	if err := vm.db.DeleteConversation(conversationID); err != nil {
		return err
	}
	vm.signalRefresh()
	return nil
}

// GetConversations returns a snapshot of the conversation list.
func (vm *ViewModel) GetConversations() []store.ConversationRow {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Conversations
}

// Conversation returns the cached conversation with the given id, or nil.
func (vm *ViewModel) Conversation(id string) *store.ConversationRow {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for i := range vm.Conversations {
		if vm.Conversations[i].Conversation.ID == id {
			row := vm.Conversations[i]
			return &row
		}
	}
	return nil
}

// GetMessages returns a snapshot of the active conversation's messages.
func (vm *ViewModel) GetMessages() []chat.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Messages
}

// Message returns the loaded message with the given id, or nil.
func (vm *ViewModel) Message(id string) *chat.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for i := range vm.Messages {
		if vm.Messages[i].ID == id {
			m := vm.Messages[i]
			return &m
		}
	}
	return nil
}

// SelfID returns the authenticated user's id, or empty before identity load.
func (vm *ViewModel) SelfID() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.User == nil {
		return ""
	}
	return vm.User.ID
}

// Capabilities returns the resolved chat capability set.
func (vm *ViewModel) Capabilities() authz.Capabilities {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Caps
}

// SiteName returns the server's site name, or a fallback.
func (vm *ViewModel) SiteName() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.Branding == nil || vm.Branding.SiteName == "" {
		return "BizDesk"
	}
	return vm.Branding.SiteName
}

// ActiveConversationID returns the id of the open conversation, or empty.
func (vm *ViewModel) ActiveConversationID() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.ActiveID
}

// ClearActive resets the active conversation and message window.
func (vm *ViewModel) ClearActive() {
	vm.mu.Lock()
	vm.ActiveID = ""
	vm.Messages = nil
	vm.windowLimit = pageSize
	vm.mu.Unlock()
}
