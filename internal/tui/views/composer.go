package views

import (
	"fmt"

	"github.com/bizdesk/deskchat/internal/tui/ui"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Composer is the text input for sending messages. Every keystroke is
// reported through onInput so the typing indicator can track activity.
type Composer struct {
	*tview.InputField
	onSend   func(text string)
	onInput  func(text string)
	onCancel func()
}

// NewComposer creates a new message composer.
func NewComposer(theme *ui.Theme) *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	input.SetLabelColor(theme.TitleColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetBackgroundColor(theme.BgColor)

	c := &Composer{InputField: input}

	input.SetChangedFunc(func(text string) {
		if c.onInput != nil {
			c.onInput(text)
		}
	})
	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			if c.onSend == nil {
				return
			}
			text := c.GetText()
			if text != "" {
				c.onSend(text)
				c.SetText("")
			}
		case tcell.KeyEscape:
			if c.onCancel != nil {
				c.onCancel()
			}
		}
	})

	return c
}

// SetOnSend sets the callback when a message is sent.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}

// SetOnInput sets the callback fired on every text change.
func (c *Composer) SetOnInput(fn func(text string)) {
	c.onInput = fn
}

// SetOnCancel sets the callback fired when composing is abandoned.
func (c *Composer) SetOnCancel(fn func()) {
	c.onCancel = fn
}

// SetReplyContext shows who the next send will reply to. An empty sender
// restores the plain prompt.
func (c *Composer) SetReplyContext(sender string) {
	if sender == "" {
		c.SetLabel(" > ")
		return
	}
	c.SetLabel(fmt.Sprintf(" ↩ %s > ", sender))
}

// SetEditContext shows that the next submit rewrites an existing message
// instead of sending a new one.
func (c *Composer) SetEditContext(on bool) {
	if !on {
		c.SetLabel(" > ")
		return
	}
	c.SetLabel(" ✎ edit > ")
}
