package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/sherry5707/Messaging/internal/api"
	"github.com/sherry5707/Messaging/internal/snippet"
	"github.com/sherry5707/Messaging/internal/tui/ui"
)

// Item kinds as sent by the daemon.
const (
	itemRow           = "row"
	itemSearchBanner  = "search_banner"
	itemFavorites     = "favorites"
	itemHeaderToday   = "header_today"
	itemHeaderEarlier = "header_earlier"
	itemCount         = "count"

	modeBackFromSearch = "back_from_search"
)

// SnippetWidth is the width in cells of the preview column.
const SnippetWidth = 48

// ConversationList is the main sectioned conversation list. Table rows map
// one to one onto the layout items of the last response.
type ConversationList struct {
	*tview.Table
	theme *ui.Theme
	resp  *api.ListConversationsResponse
	now   func() time.Time
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.CursorFg).
		Background(theme.CursorBg))
	table.SetTitle(" Conversations ")
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{Table: table, theme: theme, now: time.Now}
}

// Update re-renders the list, keeping the cursor on the same conversation
// when it is still present. The first list after a search starts at the
// top.
func (cl *ConversationList) Update(resp *api.ListConversationsResponse) {
	keep, hadSelection := cl.SelectedConversation()
	if resp != nil && resp.Mode == modeBackFromSearch && resp != cl.resp {
		hadSelection = false
	}
	cl.resp = resp
	cl.render()
	if resp == nil {
		return
	}
	target := -1
	for pos, item := range resp.Items {
		if item.Kind != itemRow || item.Row < 0 || item.Row >= len(resp.Conversations) {
			continue
		}
		if target < 0 {
			target = pos
		}
		if hadSelection && resp.Conversations[item.Row].ID == keep.ID {
			target = pos
			break
		}
	}
	if target >= 0 {
		cl.Select(target, 0)
	}
}

func (cl *ConversationList) render() {
	cl.Clear()
	resp := cl.resp
	if resp == nil {
		return
	}
	for pos, item := range resp.Items {
		for col, cell := range cl.cells(item) {
			cl.SetCell(pos, col, cell)
		}
	}
	cl.SetTitle(cl.title())
}

func (cl *ConversationList) title() string {
	resp := cl.resp
	name := "Conversations"
	if resp.Archived {
		name = "Archived"
	}
	if resp.Search != "" {
		return fmt.Sprintf(" %s (%d) search: %s ", name, len(resp.Conversations), tview.Escape(resp.Search))
	}
	return fmt.Sprintf(" %s (%d) ", name, len(resp.Conversations))
}

func (cl *ConversationList) label(text string, color tcell.Color) *tview.TableCell {
	return tview.NewTableCell(text).
		SetSelectable(false).
		SetTextColor(color).
		SetAttributes(tcell.AttrBold)
}

// header labels a date group. A leading divider is drawn as a rule.
func (cl *ConversationList) header(title string, divider bool) *tview.TableCell {
	if divider {
		title = "── " + title
	}
	return cl.label(" "+title, cl.theme.HeaderColor)
}

// underline draws a trailing divider under a row.
func underline(cells []*tview.TableCell, divider bool) []*tview.TableCell {
	if !divider {
		return cells
	}
	for _, c := range cells {
		c.SetAttributes(tcell.AttrUnderline)
	}
	return cells
}

func (cl *ConversationList) cells(item api.Item) []*tview.TableCell {
	resp := cl.resp
	switch item.Kind {
	case itemSearchBanner:
		if resp.Search != "" {
			return []*tview.TableCell{cl.label(fmt.Sprintf(" Results for %q", resp.Search), cl.theme.BannerColor)}
		}
		return []*tview.TableCell{tview.NewTableCell(" / Search conversations").SetTextColor(cl.theme.FaintColor)}
	case itemFavorites:
		preview := ""
		if f := resp.Favorite; f != nil {
			preview = cl.snippetText(f.Content, "")
		}
		return underline([]*tview.TableCell{
			tview.NewTableCell(" ★ Favorites").SetTextColor(cl.theme.BannerColor),
			tview.NewTableCell(" " + preview).SetExpansion(2).SetTextColor(cl.theme.FaintColor),
		}, item.Divider)
	case itemHeaderToday:
		return []*tview.TableCell{cl.header("TODAY", item.Divider)}
	case itemHeaderEarlier:
		return []*tview.TableCell{cl.header("EARLIER", item.Divider)}
	case itemCount:
		return []*tview.TableCell{cl.label(fmt.Sprintf(" %d conversations", len(resp.Conversations)), cl.theme.FaintColor)}
	case itemRow:
		if item.Row < 0 || item.Row >= len(resp.Conversations) {
			return nil
		}
		c := resp.Conversations[item.Row]
		return underline([]*tview.TableCell{
			tview.NewTableCell(" " + cl.name(c)).SetExpansion(1).SetMaxWidth(30).SetTextColor(cl.theme.FgColor),
			tview.NewTableCell(" " + cl.snippetText(c.Snippet, resp.Search)).SetExpansion(2).SetTextColor(cl.theme.FgColor),
			tview.NewTableCell(formatTimestamp(c.SortTimestamp, cl.now())).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight),
		}, item.Divider)
	}
	return nil
}

func (cl *ConversationList) name(c api.Conversation) string {
	name := c.Name
	if name == "" {
		name = c.ID
	}
	name = tview.Escape(sanitizeForTerminal(name))
	if c.UnreadCount > 0 {
		name = fmt.Sprintf("%s(%d) %s[-]", ui.Tag(cl.theme.UnreadColor), c.UnreadCount, name)
	}
	if c.Pinned {
		name = ui.Tag(cl.theme.PinnedColor) + "^[-] " + name
	}
	return name
}

// snippetText fits text to SnippetWidth around the first match of search
// and wraps every match in the match color.
func (cl *ConversationList) snippetText(text, search string) string {
	res := snippet.Highlight(text, search, SnippetWidth)
	return res.Render(ui.Tag(cl.theme.MatchColor), "[-]", func(s string) string {
		return tview.Escape(sanitizeForTerminal(s))
	})
}

// SelectedItem returns the layout item under the cursor.
func (cl *ConversationList) SelectedItem() (api.Item, bool) {
	if cl.resp == nil {
		return api.Item{}, false
	}
	row, _ := cl.GetSelection()
	if row < 0 || row >= len(cl.resp.Items) {
		return api.Item{}, false
	}
	return cl.resp.Items[row], true
}

// SelectedConversation returns the conversation under the cursor.
func (cl *ConversationList) SelectedConversation() (api.Conversation, bool) {
	item, ok := cl.SelectedItem()
	if !ok || item.Kind != itemRow || item.Row < 0 || item.Row >= len(cl.resp.Conversations) {
		return api.Conversation{}, false
	}
	return cl.resp.Conversations[item.Row], true
}

// SearchBannerSelected reports whether the cursor is on the search entry.
func (cl *ConversationList) SearchBannerSelected() bool {
	item, ok := cl.SelectedItem()
	return ok && item.Kind == itemSearchBanner
}

// FavoritesSelected reports whether the cursor is on the favorites banner.
func (cl *ConversationList) FavoritesSelected() bool {
	item, ok := cl.SelectedItem()
	return ok && item.Kind == itemFavorites
}

// formatTimestamp shows the clock time for today and the date otherwise.
func formatTimestamp(ms int64, now time.Time) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms).In(now.Location())
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
