package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/sherry5707/Messaging/internal/tui/ui"
)

// HelpGroup is one titled block of key hints, each "key:description".
type HelpGroup struct {
	Title string
	Hints []string
}

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	return &HelpView{TextView: tv, theme: theme}
}

// Update renders groups.
func (hv *HelpView) Update(groups []HelpGroup) {
	hv.Clear()
	_, _ = fmt.Fprint(hv, hv.text(groups))
}

func (hv *HelpView) text(groups []HelpGroup) string {
	kc := ui.Tag(hv.theme.KeyColor)
	var b strings.Builder
	for _, g := range groups {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", tview.Escape(g.Title))
		for _, h := range g.Hints {
			key, desc, ok := strings.Cut(h, ":")
			if !ok {
				desc, key = key, ""
			}
			fmt.Fprintf(&b, "  %s%-8s[-] %s\n", kc, tview.Escape(key), tview.Escape(desc))
		}
	}
	b.WriteString("\n  Commands: :inbox  :archived  :favorites  :quit\n")
	return b.String()
}
