// Package snippet cuts a search result down to a width-limited window around
// the first match and marks every match inside it.
package snippet

import (
	"strings"
	"unicode"

	"github.com/mattn/go-runewidth"
)

// Ellipsis marks a truncated side.
const Ellipsis = "…"

var cond = func() *runewidth.Condition {
	c := runewidth.NewCondition()
	c.EastAsianWidth = false
	c.StrictEmojiNeutral = true
	return c
}()

// Width returns the number of terminal cells s occupies.
func Width(s string) int {
	return cond.StringWidth(s)
}

// Span is a highlighted range of runes in Result.Text, end exclusive.
type Span struct {
	Start int
	End   int
}

// Result is the text to display and the ranges to emphasise.
type Result struct {
	Text  string
	Spans []Span
}

// Highlight returns a window of full no wider than width cells that contains
// the first case-insensitive occurrence of target, with an ellipsis on each
// side where text was cut. If target is wider than the room left after
// reserving both ellipses, the result is exactly the matched text. Without a
// match the full text is returned, cut to that room, with nothing marked.
func Highlight(full, target string, width int) Result {
	runes := []rune(full)
	needle := []rune(target)
	budget := width - 2*Width(Ellipsis)

	pos := indexFold(runes, needle, 0)
	if pos < 0 {
		if budget <= 0 || Width(full) <= budget {
			return Result{Text: full}
		}
		return Result{Text: cond.Truncate(full, budget, "")}
	}

	end := pos + len(needle)
	if Width(string(runes[pos:end])) >= budget {
		return Result{Text: string(runes[pos:end]), Spans: []Span{{0, len(needle)}}}
	}

	var text string
	prevStart, prevEnd := -1, -1
	for off := 0; ; off++ {
		start := max(0, pos-off)
		stop := min(len(runes), end+off)
		if start == prevStart && stop == prevEnd {
			break
		}
		candidate := string(runes[start:stop])
		if Width(candidate) > budget {
			break
		}
		var b strings.Builder
		if start > 0 {
			b.WriteString(Ellipsis)
		}
		b.WriteString(candidate)
		if stop < len(runes) {
			b.WriteString(Ellipsis)
		}
		text = b.String()
		prevStart, prevEnd = start, stop
	}
	return Result{Text: text, Spans: Find(text, target)}
}

// Find returns every non-overlapping case-insensitive occurrence of target
// in text, as rune ranges.
func Find(text, target string) []Span {
	needle := []rune(target)
	if len(needle) == 0 {
		return nil
	}
	runes := []rune(text)
	var spans []Span
	for from := 0; ; {
		i := indexFold(runes, needle, from)
		if i < 0 {
			return spans
		}
		spans = append(spans, Span{Start: i, End: i + len(needle)})
		from = i + len(needle)
	}
}

func indexFold(haystack, needle []rune, from int) int {
	if len(needle) == 0 {
		return -1
	}
	for i := from; i+len(needle) <= len(haystack); i++ {
		match := true
		for j, r := range needle {
			if unicode.ToLower(haystack[i+j]) != unicode.ToLower(r) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// Render joins the text back together, wrapping spans in open and close.
// escape, when set, is applied to every text segment but not to the markers.
func (r Result) Render(open, close string, escape func(string) string) string {
	if escape == nil {
		escape = func(s string) string { return s }
	}
	runes := []rune(r.Text)
	var b strings.Builder
	last := 0
	for _, s := range r.Spans {
		if s.Start < last || s.End > len(runes) || s.Start >= s.End {
			continue
		}
		b.WriteString(escape(string(runes[last:s.Start])))
		b.WriteString(open)
		b.WriteString(escape(string(runes[s.Start:s.End])))
		b.WriteString(close)
		last = s.End
	}
	b.WriteString(escape(string(runes[last:])))
	return b.String()
}
