package snippet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetDeepInLongText(t *testing.T) {
	full := strings.Repeat("a", 150) + "NEEDLE" + strings.Repeat("b", 44)
	require.Len(t, full, 200)

	r := Highlight(full, "needle", 42)

	assert.True(t, strings.HasPrefix(r.Text, Ellipsis), "text = %q", r.Text)
	assert.True(t, strings.HasSuffix(r.Text, Ellipsis), "text = %q", r.Text)
	assert.Contains(t, r.Text, "NEEDLE")
	assert.LessOrEqual(t, Width(r.Text), 42)
	assert.Equal(t, 42, Width(r.Text))
	require.Len(t, r.Spans, 1)
	runes := []rune(r.Text)
	assert.Equal(t, "NEEDLE", string(runes[r.Spans[0].Start:r.Spans[0].End]))
}

func TestShortTextNeedsNoEllipsis(t *testing.T) {
	r := Highlight("lunch at noon", "NOON", 40)
	assert.Equal(t, "lunch at noon", r.Text)
	assert.Equal(t, []Span{{9, 13}}, r.Spans)
}

func TestMatchAtStartOnlyTrailingEllipsis(t *testing.T) {
	full := "hello " + strings.Repeat("x", 100)
	r := Highlight(full, "hello", 20)
	assert.True(t, strings.HasPrefix(r.Text, "hello"))
	assert.True(t, strings.HasSuffix(r.Text, Ellipsis))
	assert.LessOrEqual(t, Width(r.Text), 20)
}

func TestTargetWiderThanBudget(t *testing.T) {
	r := Highlight("say supercalifragilistic twice", "SUPERCALIFRAGILISTIC", 10)
	assert.Equal(t, "supercalifragilistic", r.Text)
	assert.Equal(t, []Span{{0, 20}}, r.Spans)
}

func TestNoMatchReturnsTruncatedFullText(t *testing.T) {
	r := Highlight("nothing to see here", "zzz", 40)
	assert.Equal(t, "nothing to see here", r.Text)
	assert.Empty(t, r.Spans)

	r = Highlight("nothing to see here", "", 9)
	assert.Equal(t, "nothing", r.Text)
	assert.Empty(t, r.Spans)
}

func TestDegenerateWidthNeverPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		Highlight("", "x", 0)
		Highlight("abc", "abc", -5)
		Highlight("abc", "abcd", 3)
		Highlight("日本語のテキスト", "テ", 1)
	})
	assert.Equal(t, "abc", Highlight("abc", "zz", 0).Text)
}

func TestWideRunesCountAsTwoCells(t *testing.T) {
	full := strings.Repeat("語", 30) + "目標" + strings.Repeat("語", 30)
	r := Highlight(full, "目標", 22)
	assert.LessOrEqual(t, Width(r.Text), 22)
	assert.Contains(t, r.Text, "目標")
}

func TestAllMatchesMarked(t *testing.T) {
	r := Highlight("Go go GO gone", "go", 40)
	assert.Equal(t, []Span{{0, 2}, {3, 5}, {6, 8}, {9, 11}}, r.Spans)
}

func TestRender(t *testing.T) {
	r := Highlight("see [red] here", "red", 40)
	out := r.Render("<", ">", func(s string) string { return strings.ReplaceAll(s, "[", "[[") })
	assert.Equal(t, "see [[<red>] here", out)

	plain := Result{Text: "abc", Spans: []Span{{5, 9}}}.Render("<", ">", nil)
	assert.Equal(t, "abc", plain)
}
