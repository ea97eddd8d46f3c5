package views

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bizdesk/deskchat/internal/chat"
	"github.com/bizdesk/deskchat/internal/tui/ui"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// MessageThread renders the active conversation's messages. It implements
// convo.Surface: the controller cluster drives scrolling, visibility
// observation and jump-to-original highlighting through it.
//
// Wrapping is disabled so rendered line offsets stay exact; one logical line
// of content is one terminal row.
type MessageThread struct {
	*tview.TextView
	theme  *ui.Theme
	selfID string
	title  string

	mu          sync.Mutex
	msgs        []chat.Message
	byID        map[string]*chat.Message
	offsets     map[string]int
	heights     map[string]int
	totalLines  int
	highlightID string
	selected    int

	observed    map[string]bool
	onVisible   func(messageID string)
	afterRender []func()
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(false)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Messages ")
	tv.SetTitleColor(theme.TitleColor)

	return &MessageThread{
		TextView: tv,
		theme:    theme,
		byID:     make(map[string]*chat.Message),
		offsets:  make(map[string]int),
		heights:  make(map[string]int),
		observed: make(map[string]bool),
		selected: -1,
	}
}

// Name implements Component.
func (mt *MessageThread) Name() string {
	if mt.title != "" {
		return mt.title
	}
	return "Messages"
}

// Hints implements Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "j/k", Description: "Select"},
		{Key: "r", Description: "Reply"},
		{Key: "f", Description: "Forward"},
		{Key: "e", Description: "Edit"},
		{Key: "x", Description: "Delete"},
		{Key: "+", Description: "React"},
		{Key: "g", Description: "Jump to original"},
		{Key: "d", Description: "Details"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetSelfID sets the current user id used to label own messages.
func (mt *MessageThread) SetSelfID(id string) {
	mt.selfID = id
}

// SetTitle updates the thread title line.
func (mt *MessageThread) SetThreadTitle(name, status string) {
	mt.title = name
	if status != "" {
		mt.TextView.SetTitle(fmt.Sprintf(" %s · %s ", name, status))
	} else {
		mt.TextView.SetTitle(fmt.Sprintf(" %s ", name))
	}
}

// Update re-renders the thread with a new message window.
func (mt *MessageThread) Update(msgs []chat.Message) {
	mt.mu.Lock()
	mt.msgs = msgs
	mt.byID = make(map[string]*chat.Message, len(msgs))
	for i := range msgs {
		mt.byID[msgs[i].ID] = &msgs[i]
	}
	if mt.selected >= len(msgs) {
		mt.selected = len(msgs) - 1
	}
	mt.mu.Unlock()

	mt.render()
}

// ScrollTop implements convo.Viewport.
func (mt *MessageThread) ScrollTop() int {
	row, _ := mt.GetScrollOffset()
	return row
}

// ScrollHeight implements convo.Viewport.
func (mt *MessageThread) ScrollHeight() int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.totalLines
}

// SetScrollTop implements convo.Viewport.
func (mt *MessageThread) SetScrollTop(top int) {
	if top < 0 {
		top = 0
	}
	mt.ScrollTo(top, 0)
	mt.reportVisible()
}

// ScrollToEnd implements convo.Viewport.
func (mt *MessageThread) ScrollToEnd() {
	mt.TextView.ScrollToEnd()
	mt.reportVisible()
}

// ScrollBy moves the viewport by a number of rows. The app shell routes
// scroll keys here so pagination and receipts observe every movement.
func (mt *MessageThread) ScrollBy(lines int) {
	row, _ := mt.GetScrollOffset()
	mt.SetScrollTop(row + lines)
}

// AfterRender implements convo.Viewport.
func (mt *MessageThread) AfterRender(fn func()) {
	mt.mu.Lock()
	mt.afterRender = append(mt.afterRender, fn)
	mt.mu.Unlock()
}

// Observe implements convo.VisibilityNotifier.
func (mt *MessageThread) Observe(messageID string) {
	mt.mu.Lock()
	mt.observed[messageID] = true
	mt.mu.Unlock()
}

// Unobserve implements convo.VisibilityNotifier.
func (mt *MessageThread) Unobserve(messageID string) {
	mt.mu.Lock()
	delete(mt.observed, messageID)
	mt.mu.Unlock()
}

// SetOnVisible implements convo.VisibilityNotifier.
func (mt *MessageThread) SetOnVisible(fn func(messageID string)) {
	mt.mu.Lock()
	mt.onVisible = fn
	mt.mu.Unlock()
}

// Position implements convo.MessageLocator.
func (mt *MessageThread) Position(messageID string) (int, bool) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	top, ok := mt.offsets[messageID]
	return top, ok
}

// Highlight implements convo.MessageLocator.
func (mt *MessageThread) Highlight(messageID string) {
	mt.mu.Lock()
	mt.highlightID = messageID
	mt.mu.Unlock()
	mt.render()
}

// Unhighlight implements convo.MessageLocator.
func (mt *MessageThread) Unhighlight(messageID string) {
	mt.mu.Lock()
	if mt.highlightID == messageID {
		mt.highlightID = ""
	}
	mt.mu.Unlock()
	mt.render()
}

// SelectUp moves the message selection toward older messages.
func (mt *MessageThread) SelectUp() {
	mt.mu.Lock()
	if mt.selected == -1 {
		mt.selected = len(mt.msgs) - 1
	} else if mt.selected > 0 {
		mt.selected--
	}
	mt.mu.Unlock()
	mt.render()
}

// SelectDown moves the message selection toward newer messages.
func (mt *MessageThread) SelectDown() {
	mt.mu.Lock()
	if mt.selected >= 0 && mt.selected < len(mt.msgs)-1 {
		mt.selected++
	}
	mt.mu.Unlock()
	mt.render()
}

// SelectedMessage returns the selected message, or nil.
func (mt *MessageThread) SelectedMessage() *chat.Message {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.selected < 0 || mt.selected >= len(mt.msgs) {
		return nil
	}
	m := mt.msgs[mt.selected]
	return &m
}

// ClearSelection drops the message selection.
func (mt *MessageThread) ClearSelection() {
	mt.mu.Lock()
	mt.selected = -1
	mt.mu.Unlock()
	mt.render()
}

func (mt *MessageThread) render() {
	mt.mu.Lock()

	mt.Clear()
	mt.offsets = make(map[string]int, len(mt.msgs))
	mt.heights = make(map[string]int, len(mt.msgs))

	line := 0
	for i := range mt.msgs {
		m := &mt.msgs[i]
		mt.offsets[m.ID] = line
		h := mt.renderMessage(m, i == mt.selected, m.ID == mt.highlightID)
		mt.heights[m.ID] = h
		line += h
	}
	mt.totalLines = line

	pending := mt.afterRender
	mt.afterRender = nil
	mt.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
	mt.reportVisible()
}

// renderMessage writes one message and returns the number of lines written.
func (mt *MessageThread) renderMessage(m *chat.Message, selected, highlighted bool) int {
	sender := m.SenderName
	if m.SenderID == mt.selfID {
		sender = "You"
	}
	if sender == "" {
		sender = m.SenderID
	}

	marker := "  "
	if selected {
		marker = "> "
	}
	bg := ""
	if highlighted {
		bg = ":" + colorHex(mt.theme.HighlightBg)
	}

	ts := time.UnixMilli(m.Timestamp).Format("15:04")
	edited := ""
	if m.IsEdited {
		edited = " (edited)"
	}

	lines := 1
	_, _ = fmt.Fprintf(mt, "[-%s]%s[::b]%s[-:-:-][-%s] [::d]%s%s[-:-:-]\n",
		bg, marker, tview.Escape(sanitizeForTerminal(sender)), bg, ts, edited)

	if m.ReplyToID != "" {
		preview := "original message not loaded"
		if orig, ok := mt.byID[m.ReplyToID]; ok {
			preview = snippet(orig.Content, 40)
		}
		_, _ = fmt.Fprintf(mt, "  [::d]> %s[-:-:-]\n", tview.Escape(sanitizeForTerminal(preview)))
		lines++
	}

	body := m.Content
	if m.IsDeleted {
		body = "[message deleted]"
	} else if m.Type != chat.Text && m.Type != "" {
		label := "[" + string(m.Type) + "]"
		if m.Type == chat.Voice && m.DurationSeconds > 0 {
			label = fmt.Sprintf("[voice %ds]", m.DurationSeconds)
		}
		if body != "" {
			body = label + " " + body
		} else {
			body = label
		}
	}
	for _, l := range strings.Split(body, "\n") {
		_, _ = fmt.Fprintf(mt, "  %s\n", tview.Escape(sanitizeForTerminal(l)))
		lines++
	}

	if len(m.Reactions) > 0 {
		var parts []string
		for r, users := range m.Reactions {
			parts = append(parts, fmt.Sprintf("%s %d", r, len(users)))
		}
		_, _ = fmt.Fprintf(mt, "  [::d]%s[-:-:-]\n", tview.Escape(sanitizeForTerminal(strings.Join(parts, "  "))))
		lines++
	}

	_, _ = fmt.Fprintln(mt)
	return lines + 1
}

// reportVisible reports every observed message whose rendered area is at
// least half inside the viewport. Reports are intentionally repeated on every
// scroll; the read-receipt pipeline is idempotent.
func (mt *MessageThread) reportVisible() {
	_, _, _, height := mt.GetInnerRect()
	top, _ := mt.GetScrollOffset()
	bottom := top + height

	mt.mu.Lock()
	fn := mt.onVisible
	type hit struct{ id string }
	var hits []hit
	if fn != nil {
		for id := range mt.observed {
			off, ok := mt.offsets[id]
			if !ok {
				continue
			}
			h := mt.heights[id]
			if h == 0 {
				continue
			}
			visTop := max(off, top)
			visBottom := min(off+h, bottom)
			if visBottom-visTop >= (h+1)/2 {
				hits = append(hits, hit{id: id})
			}
		}
	}
	mt.mu.Unlock()

	for _, h := range hits {
		fn(h.id)
	}
}

func snippet(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "…"
}

func colorHex(c tcell.Color) string {
	return fmt.Sprintf("#%06x", c.Hex())
}
