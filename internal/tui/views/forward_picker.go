package views

import (
	"github.com/bizdesk/deskchat/internal/store"
	"github.com/bizdesk/deskchat/internal/tui/ui"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// ForwardPicker is the target chooser shown when forwarding a message. It
// stays open when a forward attempt fails so the user can retry with the
// same or another target.
type ForwardPicker struct {
	*tview.List
	theme    *ui.Theme
	selfID   string
	ids      []string
	onSelect func(conversationID string)
	onCancel func()
}

// NewForwardPicker creates a new forward target picker.
func NewForwardPicker(theme *ui.Theme) *ForwardPicker {
	list := tview.NewList().
		ShowSecondaryText(false).
		SetHighlightFullLine(true)
	list.SetBorder(true)
	list.SetBorderColor(theme.BorderFocusColor)
	list.SetBackgroundColor(theme.BgColor)
	list.SetMainTextColor(theme.FgColor)
	list.SetSelectedTextColor(theme.TableCursorFg)
	list.SetSelectedBackgroundColor(theme.TableCursorBg)
	list.SetTitle(" Forward to ")
	list.SetTitleColor(theme.TitleColor)

	fp := &ForwardPicker{
		List:  list,
		theme: theme,
	}

	list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape {
			if fp.onCancel != nil {
				fp.onCancel()
			}
			return nil
		}
		return event
	})

	return fp
}

// Name implements Component.
func (fp *ForwardPicker) Name() string { return "Forward" }

// Hints implements Component.
func (fp *ForwardPicker) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Forward"},
		{Key: "Esc", Description: "Cancel"},
	}
}

// SetSelfID sets the current user id used to derive thread names.
func (fp *ForwardPicker) SetSelfID(id string) {
	fp.selfID = id
}

// SetOnSelect sets the callback fired with the chosen conversation id.
func (fp *ForwardPicker) SetOnSelect(fn func(conversationID string)) {
	fp.onSelect = fn
}

// SetOnCancel sets the callback fired when the picker is dismissed.
func (fp *ForwardPicker) SetOnCancel(fn func()) {
	fp.onCancel = fn
}

// Update fills the picker with forwardable targets.
func (fp *ForwardPicker) Update(rows []store.ConversationRow) {
	fp.Clear()
	fp.ids = fp.ids[:0]
	for i := range rows {
		row := &rows[i]
		id := row.Conversation.ID
		name := row.Conversation.DisplayName(fp.selfID)
		fp.ids = append(fp.ids, id)
		fp.AddItem(" "+tview.Escape(sanitizeForTerminal(name)), "", 0, func() {
			if fp.onSelect != nil {
				fp.onSelect(id)
			}
		})
	}
}
