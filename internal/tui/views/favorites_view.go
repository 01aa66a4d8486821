package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/sherry5707/Messaging/internal/api"
	"github.com/sherry5707/Messaging/internal/tui/ui"
)

// FavoritesView lists saved messages, newest first.
type FavoritesView struct {
	*tview.Table
	theme     *ui.Theme
	favorites []api.Favorite
	now       func() time.Time
}

// NewFavoritesView creates the favorites table.
func NewFavoritesView(theme *ui.Theme) *FavoritesView {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.CursorFg).
		Background(theme.CursorBg))
	table.SetTitle(" Favorites ")
	table.SetTitleColor(theme.TitleColor)

	return &FavoritesView{Table: table, theme: theme, now: time.Now}
}

// Update refreshes the table.
func (fv *FavoritesView) Update(favs []api.Favorite) {
	fv.favorites = favs
	fv.Clear()

	for col, h := range []string{" FROM", " MESSAGE", " SAVED"} {
		fv.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(fv.theme.HeaderColor).
			SetAttributes(tcell.AttrBold))
	}
	for i, f := range favs {
		row := i + 1
		from := f.FullName
		if from == "" {
			from = f.SendDestination
		}
		fv.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(from))).SetMaxWidth(24).SetTextColor(fv.theme.FgColor))
		fv.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(f.Content))).SetExpansion(1).SetTextColor(fv.theme.FgColor))
		fv.SetCell(row, 2, tview.NewTableCell(formatTimestamp(f.SavedAt, fv.now())).SetTextColor(fv.theme.FaintColor).SetAlign(tview.AlignRight))
	}
	fv.SetTitle(fmt.Sprintf(" Favorites (%d) ", len(favs)))
	if len(favs) > 0 {
		if row, _ := fv.GetSelection(); row < 1 || row > len(favs) {
			fv.Select(1, 0)
		}
	}
}

// SelectedFavorite returns the favorite under the cursor.
func (fv *FavoritesView) SelectedFavorite() (api.Favorite, bool) {
	row, _ := fv.GetSelection()
	idx := row - 1 // account for header
	if idx < 0 || idx >= len(fv.favorites) {
		return api.Favorite{}, false
	}
	return fv.favorites[idx], true
}
