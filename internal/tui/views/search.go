package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/sherry5707/Messaging/internal/tui/ui"
)

// Prompt modes.
const (
	PromptSearch  = "search"
	PromptCommand = "command"
)

// Prompt is the one-line input used for "/" search and ":" commands.
type Prompt struct {
	*tview.InputField
	mode     string
	onSubmit func(mode, text string)
	onCancel func(mode string)
}

// NewPrompt creates the prompt.
func NewPrompt(theme *ui.Theme) *Prompt {
	input := tview.NewInputField().
		SetFieldWidth(0).
		SetFieldBackgroundColor(theme.BgColor).
		SetFieldTextColor(theme.FgColor).
		SetLabelColor(theme.KeyColor)
	p := &Prompt{InputField: input}
	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			if p.onSubmit != nil {
				p.onSubmit(p.mode, p.GetText())
			}
		case tcell.KeyEscape:
			if p.onCancel != nil {
				p.onCancel(p.mode)
			}
		}
	})
	return p
}

// Open switches the prompt into mode with initial text.
func (p *Prompt) Open(mode, text string) {
	p.mode = mode
	if mode == PromptCommand {
		p.SetLabel(" : ")
	} else {
		p.SetLabel(" / ")
	}
	p.SetText(text)
}

// Mode returns the current prompt mode.
func (p *Prompt) Mode() string { return p.mode }

// SetOnSubmit sets the callback for Enter.
func (p *Prompt) SetOnSubmit(fn func(mode, text string)) { p.onSubmit = fn }

// SetOnCancel sets the callback for Escape.
func (p *Prompt) SetOnCancel(fn func(mode string)) { p.onCancel = fn }
