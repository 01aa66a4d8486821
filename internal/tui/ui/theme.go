package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor          tcell.Color
	FgColor          tcell.Color
	BorderColor      tcell.Color
	BorderFocusColor tcell.Color
	TitleColor       tcell.Color
	HeaderColor      tcell.Color
	BannerColor      tcell.Color
	CursorFg         tcell.Color
	CursorBg         tcell.Color
	UnreadColor      tcell.Color
	PinnedColor      tcell.Color
	MatchColor       tcell.Color
	FaintColor       tcell.Color
	KeyColor         tcell.Color
	FlashInfoColor   tcell.Color
	FlashWarnColor   tcell.Color
	FlashErrColor    tcell.Color
}

// DefaultTheme returns a k9s-inspired dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:          tcell.ColorBlack,
		FgColor:          tcell.ColorCadetBlue,
		BorderColor:      tcell.ColorDodgerBlue,
		BorderFocusColor: tcell.ColorLightSkyBlue,
		TitleColor:       tcell.ColorFuchsia,
		HeaderColor:      tcell.ColorWhite,
		BannerColor:      tcell.ColorOrange,
		CursorFg:         tcell.ColorBlack,
		CursorBg:         tcell.ColorAqua,
		UnreadColor:      tcell.ColorLightGreen,
		PinnedColor:      tcell.ColorYellow,
		MatchColor:       tcell.ColorFuchsia,
		FaintColor:       tcell.ColorGray,
		KeyColor:         tcell.ColorDodgerBlue,
		FlashInfoColor:   tcell.ColorNavajoWhite,
		FlashWarnColor:   tcell.ColorOrange,
		FlashErrColor:    tcell.ColorOrangeRed,
	}
}

// Tag returns the tview color tag for c, e.g. "[#ff00ff]".
func Tag(c tcell.Color) string {
	return fmt.Sprintf("[#%06x]", c.Hex())
}
