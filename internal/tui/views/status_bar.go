package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/sherry5707/Messaging/internal/api"
	"github.com/sherry5707/Messaging/internal/tui/model"
	"github.com/sherry5707/Messaging/internal/tui/ui"
)

// StatusBar displays the profile, daemon status, key hints and flash.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	profile string
	status  *api.GetStatusResponse
	hints   []string
	flash   string
	level   model.Level
	now     func() time.Time
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme, now: time.Now}
}

// SetProfile updates the profile name display.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.render()
}

// SetStatus updates the status display.
func (sb *StatusBar) SetStatus(st *api.GetStatusResponse) {
	sb.status = st
	sb.render()
}

// SetHints updates the key hints of the front page.
func (sb *StatusBar) SetHints(hints []string) {
	sb.hints = hints
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string, level model.Level) {
	sb.flash = msg
	sb.level = level
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.line())
}

func (sb *StatusBar) line() string {
	var b strings.Builder
	fmt.Fprintf(&b, " [::b]%s[-:-:-]", tview.Escape(sb.profile))
	if st := sb.status; st != nil {
		fmt.Fprintf(&b, " | %s", st.Status)
		if st.UnreadConversations > 0 {
			fmt.Fprintf(&b, " | %s%d unread[-]", ui.Tag(sb.theme.UnreadColor), st.UnreadConversations)
		}
		if st.Pending > 0 {
			fmt.Fprintf(&b, " | %d pending", st.Pending)
		}
	} else {
		b.WriteString(" | connecting")
	}
	fmt.Fprintf(&b, " | %s", sb.now().Format("15:04"))
	if len(sb.hints) > 0 {
		fmt.Fprintf(&b, " | %s%s[-]", ui.Tag(sb.theme.KeyColor), tview.Escape(strings.Join(sb.hints, " ")))
	}
	if sb.flash != "" {
		color := sb.theme.FlashInfoColor
		switch sb.level {
		case model.FlashWarn:
			color = sb.theme.FlashWarnColor
		case model.FlashErr:
			color = sb.theme.FlashErrColor
		}
		fmt.Fprintf(&b, " | %s%s[-]", ui.Tag(color), tview.Escape(sb.flash))
	}
	return b.String()
}
