package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/sherry5707/Messaging/internal/api"
	"github.com/sherry5707/Messaging/internal/tui/ui"
)

// MessageView lists the messages of one conversation, oldest first, one
// selectable row per message.
type MessageView struct {
	*tview.Table
	theme    *ui.Theme
	messages []api.Message
	now      func() time.Time
}

// NewMessageView creates a new message view.
func NewMessageView(theme *ui.Theme) *MessageView {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.CursorFg).
		Background(theme.CursorBg))
	table.SetTitle(" Messages ")
	table.SetTitleColor(theme.TitleColor)

	return &MessageView{Table: table, theme: theme, now: time.Now}
}

// SetConversationName updates the title.
func (mv *MessageView) SetConversationName(name string) {
	mv.SetTitle(fmt.Sprintf(" %s ", tview.Escape(sanitizeForTerminal(name))))
}

// Update refreshes the view. A reload keeps the cursor on the same message;
// a first load puts it on the newest.
func (mv *MessageView) Update(msgs []api.Message) {
	prev, hadSelection := mv.SelectedMessage()
	mv.messages = msgs
	mv.Clear()

	target := len(msgs) - 1
	for i, m := range msgs {
		sender := m.SenderName
		if sender == "" {
			sender = m.SenderDestination
		}
		mark := " "
		if m.Favorite {
			mark = ui.Tag(mv.theme.PinnedColor) + "★[-]"
		}
		color := mv.theme.FgColor
		if !m.Read {
			color = mv.theme.UnreadColor
		}
		ts := formatTimestamp(m.ReceivedTS, mv.now())
		mv.SetCell(i, 0, tview.NewTableCell(mark))
		mv.SetCell(i, 1, tview.NewTableCell(tview.Escape(sanitizeForTerminal(sender))).
			SetMaxWidth(20).
			SetTextColor(color).
			SetAttributes(tcell.AttrBold))
		mv.SetCell(i, 2, tview.NewTableCell(tview.Escape(sanitizeForTerminal(m.Content))).
			SetExpansion(1).
			SetTextColor(color))
		mv.SetCell(i, 3, tview.NewTableCell(ts).
			SetTextColor(mv.theme.FaintColor).
			SetAlign(tview.AlignRight))
		if hadSelection && m.ID == prev.ID {
			target = i
		}
	}
	if target >= 0 {
		mv.Select(target, 0)
	}
}

// SelectedMessage returns the message under the cursor.
func (mv *MessageView) SelectedMessage() (api.Message, bool) {
	row, _ := mv.GetSelection()
	if row < 0 || row >= len(mv.messages) {
		return api.Message{}, false
	}
	return mv.messages[row], true
}
