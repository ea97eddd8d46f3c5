package views

import (
	"fmt"
	"time"

	"github.com/bizdesk/deskchat/internal/store"
	"github.com/bizdesk/deskchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationInfo displays detailed information about a conversation.
type ConversationInfo struct {
	*tview.TextView
	theme  *ui.Theme
	selfID string
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (ci *ConversationInfo) Name() string { return "Details" }

// Hints implements Component.
func (ci *ConversationInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
		{Key: "m", Description: "Mute"},
		{Key: "x", Description: "Delete"},
	}
}

// SetSelfID sets the current user id used to derive names and presence.
func (ci *ConversationInfo) SetSelfID(id string) {
	ci.selfID = id
}

// Update renders conversation details.
func (ci *ConversationInfo) Update(row *store.ConversationRow) {
	ci.Clear()
	if row == nil {
		return
	}
	c := &row.Conversation

	fg := colorHex(ci.theme.FgColor)
	ct := colorHex(ci.theme.CounterColor)

	name := c.DisplayName(ci.selfID)
	convType := "Direct Message"
	if c.Type == "group" {
		convType = "Group"
	}

	muted := "no"
	if row.Muted {
		muted = "yes"
	}

	lastActive := formatTimestamp(c.LastMessage.Timestamp)
	if lastActive == "" {
		lastActive = "-"
	}

	_, _ = fmt.Fprintf(ci,
		"\n [%s::b]Name:[-:-:-]        [%s]%s[-]\n"+
			" [%s::b]Type:[-:-:-]        [%s]%s[-]\n"+
			" [%s::b]Status:[-:-:-]      [%s]%s[-]\n"+
			" [%s::b]Online:[-:-:-]      [%s]%d[-]\n"+
			" [%s::b]Unread:[-:-:-]      [%s]%d[-]\n"+
			" [%s::b]Muted:[-:-:-]       [%s]%s[-]\n"+
			" [%s::b]Last Active:[-:-:-] [%s]%s[-]\n",
		fg, ct, tview.Escape(sanitizeForTerminal(name)),
		fg, ct, convType,
		fg, ct, c.StatusText(ci.selfID, time.Now()),
		fg, ct, c.OnlineCount(ci.selfID),
		fg, ct, row.Unread,
		fg, ct, muted,
		fg, ct, lastActive,
	)

	_, _ = fmt.Fprintf(ci, "\n [%s::b]Participants:[-:-:-]\n", fg)
	for i := range c.Participants {
		p := &c.Participants[i]
		marker := " "
		if p.Presence.IsOnline {
			marker = fmt.Sprintf("[%s]●[-]", colorHex(ci.theme.OnlineColor))
		}
		pname := p.Name
		if p.ID == ci.selfID {
			pname += " (you)"
		}
		_, _ = fmt.Fprintf(ci, "  %s [%s]%s[-]\n", marker, ct, tview.Escape(sanitizeForTerminal(pname)))
	}

	ci.SetTitle(fmt.Sprintf(" %s Details ", tview.Escape(sanitizeForTerminal(name))))
}
