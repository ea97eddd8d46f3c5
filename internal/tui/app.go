package tui

import (
	"context"
	"time"

	"github.com/bizdesk/deskchat/internal/bus"
	"github.com/bizdesk/deskchat/internal/chat"
	"github.com/bizdesk/deskchat/internal/convo"
	"github.com/bizdesk/deskchat/internal/outbox"
	"github.com/bizdesk/deskchat/internal/socket"
	"github.com/bizdesk/deskchat/internal/status"
	"github.com/bizdesk/deskchat/internal/tui/keys"
	"github.com/bizdesk/deskchat/internal/tui/model"
	"github.com/bizdesk/deskchat/internal/tui/ui"
	"github.com/bizdesk/deskchat/internal/tui/views"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const flashDuration = 5 * time.Second

// defaultReaction is the reaction the "+" key toggles.
const defaultReaction = "👍"

// App is the main TUI application shell. It owns the tview event loop and
// wires the conversation controller cluster to the rendered views, the
// socket and the outbox.
type App struct {
	app      *tview.Application
	pages    *tview.Pages
	vm       *model.ViewModel
	sock     *socket.Client
	sender   *outbox.Sender
	machine  *status.Machine
	events   *bus.Bus
	logger   *zap.Logger
	registry *keys.Registry
	theme    *ui.Theme
	profile  string

	menu      *ui.Menu
	statusBar *views.StatusBar
	convList  *views.ConversationList
	thread    *views.MessageThread
	composer  *views.Composer
	info      *views.ConversationInfo
	picker    *views.ForwardPicker
	filter    *tview.InputField

	controller *convo.Controller
	editingID  string // message id being edited, empty outside edit mode

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(vm *model.ViewModel, sock *socket.Client, sender *outbox.Sender, machine *status.Machine, events *bus.Bus, logger *zap.Logger, profile string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        vm,
		sock:      sock,
		sender:    sender,
		machine:   machine,
		events:    events,
		logger:    logger,
		registry:  keys.NewRegistry(),
		theme:     theme,
		profile:   profile,
		menu:      ui.NewMenu(theme),
		statusBar: views.NewStatusBar(),
		convList:  views.NewConversationList(theme),
		thread:    views.NewMessageThread(theme),
		composer:  views.NewComposer(theme),
		info:      views.NewConversationInfo(theme),
		picker:    views.NewForwardPicker(theme),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetProfile(profile)
	a.statusBar.SetSite(vm.SiteName())
	a.statusBar.SetStatus(string(machine.Current()))

	a.setupFilter()
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

// ensureController builds the conversation controller on first use, once the
// authenticated identity and capabilities are known.
func (a *App) ensureController() *convo.Controller {
	if a.controller != nil {
		return a.controller
	}
	a.controller = convo.NewController(convo.Deps{
		SelfID:    a.vm.SelfID(),
		Surface:   a.thread,
		Transport: a.sock,
		Notify: func(conversationID string, started bool) {
			go func() {
				if err := a.sock.Typing(a.ctx, conversationID, started); err != nil {
					a.logger.Debug("typing signal failed", zap.Error(err))
				}
			}()
		},
		Report: func(conversationID, messageID string) {
			go func() {
				if err := a.sock.MarkRead(a.ctx, conversationID, messageID); err != nil {
					a.logger.Debug("read receipt failed", zap.Error(err))
				}
			}()
		},
		Enqueue: func(req convo.SendRequest) error {
			return a.sender.Enqueue(socket.SendRequest{
				ConversationID:  req.ConversationID,
				Content:         req.Content,
				Type:            string(req.Type),
				MediaURL:        req.MediaURL,
				DurationSeconds: req.DurationSeconds,
				ReplyToID:       req.ReplyToID,
			})
		},
		LoadOlder:      a.vm.LoadOlder,
		CanLoadHistory: a.vm.Capabilities().CanView,
		Logger:         a.logger,
	})
	return a.controller
}

func (a *App) setupFilter() {
	a.filter = tview.NewInputField().
		SetLabel(" / ").
		SetFieldWidth(0)
	a.filter.SetLabelColor(a.theme.TitleColor)
	a.filter.SetFieldBackgroundColor(a.theme.BgColor)
	a.filter.SetFieldTextColor(a.theme.FgColor)
	a.filter.SetBackgroundColor(a.theme.BgColor)

	a.filter.SetChangedFunc(func(text string) {
		a.convList.SetFilter(text)
	})
	a.filter.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEscape {
			a.filter.SetText("")
			a.convList.ClearFilter()
		}
		a.app.SetFocus(a.convList)
	})
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "Quit", Visible: true,
		Handler: func() { a.app.Stop() },
	})

	a.registry.AddView("conversations", "filter", &keys.Action{
		Rune: '/', Key: tcell.KeyRune,
		Description: "Filter", Visible: true,
		Handler: func() { a.app.SetFocus(a.filter) },
	})
	a.registry.AddView("conversations", "mute", &keys.Action{
		Rune: 'm', Key: tcell.KeyRune,
		Description: "Mute", Visible: true,
		Handler: func() { a.toggleMute(a.convList.SelectedConversation()) },
	})
	a.registry.AddView("conversations", "delete", &keys.Action{
		Rune: 'x', Key: tcell.KeyRune,
		Description: "Delete", Visible: true,
		Handler: func() { a.deleteConversation(a.convList.SelectedConversation()) },
	})

	a.registry.AddView("conversation", "compose", &keys.Action{
		Rune: 'i', Key: tcell.KeyRune,
		Description: "Compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.composer.InputField) },
	})
	a.registry.AddView("conversation", "select-up", &keys.Action{
		Rune: 'k', Key: tcell.KeyRune,
		Description: "Select up", Visible: false,
		Handler: func() { a.thread.SelectUp() },
	})
	a.registry.AddView("conversation", "select-down", &keys.Action{
		Rune: 'j', Key: tcell.KeyRune,
		Description: "Select down", Visible: false,
		Handler: func() { a.thread.SelectDown() },
	})
	a.registry.AddView("conversation", "reply", &keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Description: "Reply", Visible: true,
		Handler: func() { a.beginReply() },
	})
	a.registry.AddView("conversation", "forward", &keys.Action{
		Rune: 'f', Key: tcell.KeyRune,
		Description: "Forward", Visible: true,
		Handler: func() { a.beginForward() },
	})
	a.registry.AddView("conversation", "edit", &keys.Action{
		Rune: 'e', Key: tcell.KeyRune,
		Description: "Edit", Visible: true,
		Handler: func() { a.beginEdit() },
	})
	a.registry.AddView("conversation", "delete-message", &keys.Action{
		Rune: 'x', Key: tcell.KeyRune,
		Description: "Delete", Visible: true,
		Handler: func() { a.deleteMessage() },
	})
	a.registry.AddView("conversation", "react", &keys.Action{
		Rune: '+', Key: tcell.KeyRune,
		Description: "React", Visible: true,
		Handler: func() { a.toggleReaction() },
	})
	a.registry.AddView("conversation", "jump", &keys.Action{
		Rune: 'g', Key: tcell.KeyRune,
		Description: "Jump to original", Visible: true,
		Handler: func() {
			if c := a.controller; c != nil {
				c.JumpToOriginal()
			}
		},
	})
	a.registry.AddView("conversation", "details", &keys.Action{
		Rune: 'd', Key: tcell.KeyRune,
		Description: "Details", Visible: true,
		Handler: func() { a.showDetails() },
	})
	a.registry.AddView("conversation", "mute", &keys.Action{
		Rune: 'm', Key: tcell.KeyRune,
		Description: "Mute", Visible: true,
		Handler: func() { a.toggleMute(a.vm.ActiveConversationID()) },
	})
	a.registry.AddView("conversation", "scroll-up", &keys.Action{
		Key:     tcell.KeyUp,
		Handler: func() { a.scrollThread(-1) },
	})
	a.registry.AddView("conversation", "scroll-down", &keys.Action{
		Key:     tcell.KeyDown,
		Handler: func() { a.scrollThread(1) },
	})
	a.registry.AddView("conversation", "page-up", &keys.Action{
		Key:     tcell.KeyPgUp,
		Handler: func() { a.scrollThread(-10) },
	})
	a.registry.AddView("conversation", "page-down", &keys.Action{
		Key:     tcell.KeyPgDn,
		Handler: func() { a.scrollThread(10) },
	})

	a.registry.AddView("details", "mute", &keys.Action{
		Rune: 'm', Key: tcell.KeyRune,
		Description: "Mute", Visible: true,
		Handler: func() { a.toggleMute(a.vm.ActiveConversationID()) },
	})
	a.registry.AddView("details", "delete", &keys.Action{
		Rune: 'x', Key: tcell.KeyRune,
		Description: "Delete", Visible: true,
		Handler: func() { a.deleteConversation(a.vm.ActiveConversationID()) },
	})
}

// scrollThread moves the thread viewport and feeds the scroll position to the
// pagination controller, which may kick off an older-history load.
func (a *App) scrollThread(lines int) {
	a.thread.ScrollBy(lines)
	if c := a.controller; c != nil {
		// The load-older fetch inside OnScroll blocks; keep it off the
		// event loop. The single-flight flag makes this safe.
		go func() {
			c.OnScroll(a.ctx)
			// OnScroll returns with the scroll restoration armed. Only now
			// may the widened window render, so the prepend and the
			// restoration land in the same pass.
			if c.LoadingOlder() {
				if id := a.vm.ActiveConversationID(); id != "" {
					_ = a.vm.LoadMessages(id)
				}
			}
		}()
	}
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, col int) {
		if id := a.convList.SelectedConversation(); id != "" {
			a.openConversation(id)
		}
	})

	a.composer.SetOnInput(func(text string) {
		if c := a.controller; c != nil {
			c.OnInput(text)
		}
	})
	a.composer.SetOnSend(func(text string) {
		c := a.controller
		if c == nil || c.Active() == nil {
			return
		}
		if id := a.editingID; id != "" {
			a.editingID = ""
			a.composer.SetEditContext(false)
			a.commitEdit(id, text)
			return
		}
		a.composer.SetReplyContext("")
		go func() {
			if err := c.Send(text, chat.Text, "", 0); err != nil {
				a.flash("Send failed: " + err.Error())
			}
		}()
	})
	a.composer.SetOnCancel(func() {
		if c := a.controller; c != nil {
			c.CancelReply()
		}
		a.editingID = ""
		a.composer.SetText("")
		a.composer.SetReplyContext("")
		a.app.SetFocus(a.thread)
	})

	a.picker.SetOnSelect(func(conversationID string) {
		c := a.controller
		if c == nil {
			return
		}
		go func() {
			if err := c.ConfirmForward(a.ctx, conversationID); err != nil {
				// Picker stays open; the user can retry.
				a.flash("Forward failed: " + err.Error())
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.pages.HidePage("forward")
				a.app.SetFocus(a.thread)
			})
			a.flash("Message forwarded")
		}()
	})
	a.picker.SetOnCancel(func() {
		if c := a.controller; c != nil {
			c.CancelForward()
		}
		a.pages.HidePage("forward")
		a.app.SetFocus(a.thread)
	})
}

func (a *App) setupLayout() {
	listFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.convList, 0, 1, true).
		AddItem(a.filter, 1, 0, false)

	threadFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.thread, 0, 1, true).
		AddItem(a.composer, 1, 0, false)

	modal := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(a.picker, 0, 2, true).
			AddItem(nil, 0, 1, false), 0, 2, true).
		AddItem(nil, 0, 1, false)

	a.pages.AddPage("conversations", listFlex, true, true)
	a.pages.AddPage("conversation", threadFlex, true, false)
	a.pages.AddPage("details", a.info, true, false)
	a.pages.AddPage("forward", modal, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.menu, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.menu.Update(a.convList.Hints())

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		page := a.currentPage()

		if event.Key() == tcell.KeyEscape {
			switch page {
			case "conversation":
				a.closeConversation()
				return nil
			case "details":
				a.pages.SwitchToPage("conversation")
				a.menu.Update(a.thread.Hints())
				a.app.SetFocus(a.thread)
				return nil
			}
		}

		// Let text input widgets handle all keys normally.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		if a.registry.HandleEvent(page, event) {
			return nil
		}
		return event
	})
}

func (a *App) currentPage() string {
	name, _ := a.pages.GetFrontPage()
	return name
}

func (a *App) openConversation(id string) {
	go func() {
		row := a.vm.Conversation(id)
		if row == nil {
			return
		}
		c := a.ensureController()
		conv := row.Conversation
		c.Activate(&conv)
		c.SetHasMore(true)

		if err := a.vm.LoadMessages(id); err != nil {
			a.flash("Load failed: " + err.Error())
			return
		}
		if err := a.vm.MarkRead(a.ctx, id); err != nil {
			a.logger.Debug("mark read failed", zap.Error(err))
		}
		_ = a.vm.LoadConversations()

		a.app.QueueUpdateDraw(func() {
			msgs := a.vm.GetMessages()
			a.thread.SetSelfID(a.vm.SelfID())
			a.thread.SetThreadTitle(conv.DisplayName(a.vm.SelfID()), conv.StatusText(a.vm.SelfID(), time.Now()))
			c.OnMessages(msgs)
			a.thread.Update(msgs)
			a.pages.SwitchToPage("conversation")
			a.menu.Update(a.thread.Hints())
			a.app.SetFocus(a.thread)
		})
	}()
}

// closeConversation tears down the active conversation's transient state and
// returns to the list.
func (a *App) closeConversation() {
	if c := a.controller; c != nil {
		c.Deactivate()
	}
	a.editingID = ""
	a.composer.SetReplyContext("")
	a.composer.SetText("")
	a.statusBar.SetTyping("")
	a.thread.ClearSelection()
	a.vm.ClearActive()
	a.pages.SwitchToPage("conversations")
	a.menu.Update(a.convList.Hints())
	a.app.SetFocus(a.convList)
}

func (a *App) beginReply() {
	c := a.controller
	if c == nil {
		return
	}
	m := a.thread.SelectedMessage()
	if m == nil || m.IsDeleted {
		return
	}
	c.BeginReply(m)
	sender := m.SenderName
	if sender == "" {
		sender = m.SenderID
	}
	a.composer.SetReplyContext(sender)
	a.app.SetFocus(a.composer.InputField)
}

func (a *App) beginForward() {
	c := a.controller
	if c == nil {
		return
	}
	m := a.thread.SelectedMessage()
	if m == nil || m.IsDeleted {
		return
	}
	c.BeginForward(m)
	a.picker.SetSelfID(a.vm.SelfID())
	a.picker.Update(a.vm.GetConversations())
	a.pages.ShowPage("forward")
	a.menu.Update(a.picker.Hints())
	a.app.SetFocus(a.picker)
}

// beginEdit enters edit mode for the selected message. Only the user's own
// text messages can be edited.
func (a *App) beginEdit() {
	m := a.thread.SelectedMessage()
	if m == nil || m.IsDeleted || m.SenderID != a.vm.SelfID() || m.Type != chat.Text {
		return
	}
	a.editingID = m.ID
	a.composer.SetEditContext(true)
	a.composer.SetText(m.Content)
	a.app.SetFocus(a.composer.InputField)
}

// commitEdit rewrites the message locally and pushes the edit to the server.
func (a *App) commitEdit(messageID, content string) {
	convID := a.vm.ActiveConversationID()
	if convID == "" {
		return
	}
	go func() {
		if err := a.vm.ApplyEdit(convID, messageID, content); err != nil {
			a.flash("Edit failed: " + err.Error())
			return
		}
		if err := a.sock.EditMessage(a.ctx, convID, messageID, content); err != nil {
			a.flash("Edit failed: " + err.Error())
		}
	}()
}

// deleteMessage tombstones the user's own selected message.
func (a *App) deleteMessage() {
	m := a.thread.SelectedMessage()
	if m == nil || m.IsDeleted || m.SenderID != a.vm.SelfID() {
		return
	}
	convID := a.vm.ActiveConversationID()
	go func() {
		if err := a.vm.ApplyDeletion(convID, m.ID); err != nil {
			a.flash("Delete failed: " + err.Error())
			return
		}
		if err := a.sock.DeleteMessage(a.ctx, convID, m.ID); err != nil {
			a.flash("Delete failed: " + err.Error())
		}
	}()
}

// toggleReaction flips the user's default reaction on the selected message.
func (a *App) toggleReaction() {
	m := a.thread.SelectedMessage()
	if m == nil || m.IsDeleted {
		return
	}
	convID := a.vm.ActiveConversationID()
	selfID := a.vm.SelfID()
	go func() {
		if err := a.vm.ToggleReaction(convID, m.ID, selfID, defaultReaction); err != nil {
			a.flash("React failed: " + err.Error())
			return
		}
		if err := a.sock.React(a.ctx, convID, m.ID, defaultReaction); err != nil {
			a.logger.Debug("reaction send failed", zap.Error(err))
		}
	}()
}

func (a *App) showDetails() {
	row := a.vm.Conversation(a.vm.ActiveConversationID())
	if row == nil {
		return
	}
	a.info.SetSelfID(a.vm.SelfID())
	a.info.Update(row)
	a.pages.SwitchToPage("details")
	a.menu.Update(a.info.Hints())
	a.app.SetFocus(a.info)
}

func (a *App) toggleMute(id string) {
	if id == "" {
		return
	}
	if !a.vm.Capabilities().CanUpdate {
		a.flash("Not permitted")
		return
	}
	go func() {
		if err := a.vm.ToggleMute(a.ctx, id); err != nil {
			a.flash("Mute failed: " + err.Error())
			return
		}
		a.refresh()
	}()
}

func (a *App) deleteConversation(id string) {
	if id == "" {
		return
	}
	if !a.vm.Capabilities().CanDelete {
		a.flash("Not permitted")
		return
	}
	go func() {
		if err := a.vm.DeleteConversation(a.ctx, id); err != nil {
			a.flash("Delete failed: " + err.Error())
			return
		}
		if a.vm.ActiveConversationID() == id {
			a.app.QueueUpdateDraw(a.closeConversation)
		}
		_ = a.vm.LoadConversations()
		a.refresh()
	}()
}

func (a *App) flash(msg string) {
	a.vm.Flash.Set(msg, flashDuration)
	a.app.QueueUpdateDraw(func() {
		a.statusBar.SetFlash(a.vm.Flash.Get())
	})
}

// refresh redraws every view from the view model's current snapshots.
func (a *App) refresh() {
	a.app.QueueUpdateDraw(func() {
		a.convList.SetSelfID(a.vm.SelfID())
		a.convList.Update(a.vm.GetConversations())
		a.statusBar.SetSite(a.vm.SiteName())
		a.statusBar.SetStatus(string(a.machine.Current()))
		a.statusBar.SetFlash(a.vm.Flash.Get())

		if id := a.vm.ActiveConversationID(); id != "" {
			msgs := a.vm.GetMessages()
			// OnMessages first: the render below runs the pagination
			// restoration hook, which clears the loading flag OnMessages
			// consults for its scroll-to-end suppression.
			if c := a.controller; c != nil {
				c.OnMessages(msgs)
				a.statusBar.SetTyping(c.TypingText())
			}
			a.thread.Update(msgs)
			if row := a.vm.Conversation(id); row != nil {
				conv := row.Conversation
				a.thread.SetThreadTitle(conv.DisplayName(a.vm.SelfID()), conv.StatusText(a.vm.SelfID(), time.Now()))
			}
		}
	})
}

// Run starts the TUI application.
func (a *App) Run() error {
	go a.bootstrap()
	go a.eventLoop()
	go a.clockLoop()
	return a.app.Run()
}

func (a *App) bootstrap() {
	if err := a.vm.LoadIdentity(a.ctx); err != nil {
		a.flash("Offline: " + err.Error())
	}
	if err := a.vm.LoadBranding(a.ctx); err != nil {
		a.logger.Debug("branding load failed", zap.Error(err))
	}
	if err := a.vm.LoadConversations(); err != nil {
		a.flash("Load failed: " + err.Error())
	}
	a.refresh()
}

// eventLoop reacts to bus traffic: store changes re-read the view model,
// typing and presence update the active conversation's indicators.
func (a *App) eventLoop() {
	ch, unsub := a.events.Subscribe("", 256)
	defer unsub()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			a.handleEvent(evt)
		case <-a.vm.RefreshCh():
			a.refresh()
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) handleEvent(evt bus.Event) {
	switch {
	case evt.Kind == "chat.typing":
		te, ok := evt.Payload.(socket.TypingEvent)
		if !ok || te.ConversationID != a.vm.ActiveConversationID() {
			return
		}
		c := a.controller
		if c == nil {
			return
		}
		c.OnRemoteTyping(te.UserID, te.Started)
		a.app.QueueUpdateDraw(func() {
			a.statusBar.SetTyping(c.TypingText())
		})

	case evt.Kind == "message.upserted", evt.Kind == "message.send_ack", evt.Kind == "message.send_failed":
		_ = a.vm.LoadConversations()
		if id := a.vm.ActiveConversationID(); id != "" {
			_ = a.vm.LoadMessages(id)
		}
		a.refresh()

	case evt.Kind == "conversation.changed", evt.Kind == "sync.bootstrapped":
		_ = a.vm.LoadConversations()
		a.refresh()

	case evt.Kind == "socket.status_changed", evt.Kind == "socket.connected", evt.Kind == "socket.disconnected":
		a.app.QueueUpdateDraw(func() {
			a.statusBar.SetStatus(string(a.machine.Current()))
		})
	}
}

// clockLoop keeps the status bar clock and flash expiry current.
func (a *App) clockLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.app.QueueUpdateDraw(func() {
				a.statusBar.SetFlash(a.vm.Flash.Get())
			})
		case <-a.ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
