package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/bizdesk/deskchat/internal/chat"
	"github.com/bizdesk/deskchat/internal/store"
	"github.com/bizdesk/deskchat/internal/tui/ui"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// ConversationList is the main conversation list view.
type ConversationList struct {
	*tview.Table
	theme  *ui.Theme
	selfID string
	rows   []store.ConversationRow
	filter string
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Conversations ")
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{
		Table: table,
		theme: theme,
	}
}

// Name implements Component.
func (cl *ConversationList) Name() string { return "Conversations" }

// Hints implements Component.
func (cl *ConversationList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "/", Description: "Filter"},
		{Key: "m", Description: "Mute"},
		{Key: "?", Description: "Help"},
		{Key: "q", Description: "Quit"},
	}
}

// SetSelfID sets the current user id used to derive direct thread names.
func (cl *ConversationList) SetSelfID(id string) {
	cl.selfID = id
}

// Update refreshes the list with new data.
func (cl *ConversationList) Update(rows []store.ConversationRow) {
	cl.rows = rows
	cl.render()
}

// SetFilter sets the active filter text and re-renders.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = filter
	cl.render()
}

// ClearFilter clears the active filter.
func (cl *ConversationList) ClearFilter() {
	cl.filter = ""
	cl.render()
}

func (cl *ConversationList) matches(row *store.ConversationRow) bool {
	if cl.filter == "" {
		return true
	}
	name := row.Conversation.DisplayName(cl.selfID)
	f := strings.ToLower(cl.filter)
	return strings.Contains(strings.ToLower(name), f) ||
		strings.Contains(strings.ToLower(row.Conversation.LastMessage.Content), f)
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
		{" TYPE", 0},
	}
	for col, h := range headers {
		cell := tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp)
		cl.SetCell(0, col, cell)
	}

	row := 1
	for i := range cl.rows {
		r := &cl.rows[i]
		if !cl.matches(r) {
			continue
		}

		name := r.Conversation.DisplayName(cl.selfID)
		if r.Unread > 0 {
			name = fmt.Sprintf("(%d) %s", r.Unread, name)
		}
		if r.Muted {
			name += " [M]"
		}

		convType := "DM"
		if r.Conversation.Type == chat.Group {
			convType = "GROUP"
		}

		nameColor := cl.theme.FgColor
		if r.Muted {
			nameColor = cl.theme.MutedColor
		}

		preview := r.Conversation.LastMessage.Content
		if r.Conversation.LastMessage.Type != chat.Text && r.Conversation.LastMessage.Type != "" {
			preview = "[" + string(r.Conversation.LastMessage.Type) + "]"
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(name))).SetExpansion(1).SetTextColor(nameColor))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(preview))).SetExpansion(2).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(formatTimestamp(r.Conversation.LastMessage.Timestamp)).SetExpansion(0).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
		cl.SetCell(row, 3, tview.NewTableCell(convType).SetExpansion(0).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
		row++
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) filter: %s ", row-1, len(cl.rows), cl.filter))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(cl.rows)))
	}
}

// SelectedConversation returns the id of the currently selected conversation.
func (cl *ConversationList) SelectedConversation() string {
	row, _ := cl.GetSelection()
	idx := row - 1 // account for header
	if idx < 0 {
		return ""
	}

	visible := 0
	for i := range cl.rows {
		if !cl.matches(&cl.rows[i]) {
			continue
		}
		if visible == idx {
			return cl.rows[i].Conversation.ID
		}
		visible++
	}
	return ""
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
