package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"gopkg.in/yaml.v3"

	"github.com/sherry5707/Messaging/internal/api"
	"github.com/sherry5707/Messaging/internal/command"
	"github.com/sherry5707/Messaging/internal/snippet"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// printer renders responses in the selected format.
type printer struct {
	format string
	out    io.Writer
}

func newPrinter(format string, out io.Writer) (*printer, error) {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return &printer{format: format, out: out}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

// structured writes v as JSON or YAML and reports whether it did.
func (p *printer) structured(v any) (bool, error) {
	switch p.format {
	case formatJSON:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		// Round-trip through JSON so YAML keys follow the wire names.
		data, err := json.Marshal(v)
		if err != nil {
			return true, err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return true, err
		}
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

var (
	bold    = color.New(color.Bold)
	header  = color.New(color.Bold, color.Underline)
	faint   = color.New(color.Faint)
	unread  = color.New(color.FgHiYellow, color.Bold)
	pinned  = color.New(color.FgCyan)
	matched = color.New(color.FgHiGreen, color.Bold)
)

func (p *printer) submitted(kind command.Kind, resp *api.SubmitResponse) error {
	if ok, err := p.structured(resp); ok {
		return err
	}
	switch {
	case resp.Waited && resp.NoOp:
		_, _ = fmt.Fprintf(p.out, "%s: nothing to change\n", kind)
	case resp.Waited:
		_, _ = fmt.Fprintf(p.out, "%s: done (%d rows)\n", kind, resp.Affected)
	default:
		_, _ = fmt.Fprintf(p.out, "%s: accepted (%d pending)\n", kind, resp.Pending)
	}
	return nil
}

func (p *printer) conversations(resp *api.ListConversationsResponse, width int) error {
	if ok, err := p.structured(resp); ok {
		return err
	}
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 60
	for _, item := range resp.Items {
		switch item.Kind {
		case "search_banner":
			if resp.Search != "" {
				tbl.AddRow(header.Sprintf("Results for %q", resp.Search))
				continue
			}
			tbl.AddRow(faint.Sprint("/ search"))
		case "favorites":
			if f := resp.Favorite; f != nil {
				tbl.AddRow(header.Sprint("Favorites"), "", faint.Sprint(snippet.Highlight(f.Content, "", width).Text))
			}
		case "header_today", "header_earlier":
			if item.Divider {
				tbl.AddRow("")
			}
			title := "Today"
			if item.Kind == "header_earlier" {
				title = "Earlier"
			}
			tbl.AddRow(header.Sprint(title))
		case "row":
			if item.Row < 0 || item.Row >= len(resp.Conversations) {
				continue
			}
			c := resp.Conversations[item.Row]
			tbl.AddRow(p.conversationName(c), formatTime(c.SortTimestamp), p.snippet(c.Snippet, resp.Search, width))
		}
	}
	if len(resp.Conversations) == 0 {
		tbl.AddRow(faint.Sprint("no conversations"))
	}
	_, _ = fmt.Fprintln(p.out, tbl)
	return nil
}

func (p *printer) conversationName(c api.Conversation) string {
	name := c.Name
	if name == "" {
		name = c.ID
	}
	var marks []string
	if c.Pinned {
		marks = append(marks, pinned.Sprint("pinned"))
	}
	if c.UnreadCount > 0 {
		name = unread.Sprint(name)
		marks = append(marks, unread.Sprintf("%d", c.UnreadCount))
	} else {
		name = bold.Sprint(name)
	}
	if len(marks) > 0 {
		name += " " + strings.Join(marks, " ")
	}
	return name
}

// snippet fits text to width around the first match of search and colours
// the matches.
func (p *printer) snippet(text, search string, width int) string {
	res := snippet.Highlight(text, search, width)
	if len(res.Spans) == 0 {
		return res.Text
	}
	runes := []rune(res.Text)
	var b strings.Builder
	last := 0
	for _, s := range res.Spans {
		b.WriteString(string(runes[last:s.Start]))
		b.WriteString(matched.Sprint(string(runes[s.Start:s.End])))
		last = s.End
	}
	b.WriteString(string(runes[last:]))
	return b.String()
}

func (p *printer) favorites(favs []api.Favorite) error {
	if ok, err := p.structured(favs); ok {
		return err
	}
	if len(favs) == 0 {
		_, _ = faint.Fprintln(p.out, "no favorites")
		return nil
	}
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 60
	tbl.AddRow(bold.Sprint("MESSAGE"), bold.Sprint("FROM"), bold.Sprint("SAVED"), bold.Sprint("CONTENT"))
	for _, f := range favs {
		tbl.AddRow(f.MessageID, f.FullName, formatTime(f.SavedAt), f.Content)
	}
	_, _ = fmt.Fprintln(p.out, tbl)
	return nil
}

func (p *printer) messages(resp *api.ListMessagesResponse) error {
	if ok, err := p.structured(resp); ok {
		return err
	}
	name := resp.Conversation.Name
	if name == "" {
		name = resp.Conversation.ID
	}
	_, _ = fmt.Fprintln(p.out, header.Sprint(name))
	msgs := resp.Messages
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 60
	tbl.Wrap = true
	for _, m := range msgs {
		from := bold.Sprint(m.SenderName)
		if !m.Read {
			from = unread.Sprint(m.SenderName)
		}
		content := m.Content
		if m.Favorite {
			content = pinned.Sprint("* ") + content
		}
		tbl.AddRow(faint.Sprint(formatTime(m.ReceivedTS)), from, content)
	}
	_, _ = fmt.Fprintln(p.out, tbl)
	return nil
}

func (p *printer) change(c api.Change) error {
	if p.format == formatTable {
		line := fmt.Sprintf("%s  %s", faint.Sprint(time.UnixMilli(c.TimestampMS).Format(time.TimeOnly)), c.Topic)
		if c.ConversationID != "" {
			line += " " + c.ConversationID
		}
		if c.Status != "" {
			line += " " + c.Status
		}
		_, err := fmt.Fprintln(p.out, line)
		return err
	}
	if p.format == formatJSON {
		// One object per line so the stream stays machine readable.
		return json.NewEncoder(p.out).Encode(c)
	}
	_, err := p.structured([]api.Change{c})
	return err
}

func (p *printer) status(st *api.GetStatusResponse) error {
	if ok, err := p.structured(st); ok {
		return err
	}
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow(bold.Sprint("Profile:"), st.Profile)
	tbl.AddRow(bold.Sprint("Status:"), st.Status)
	tbl.AddRow(bold.Sprint("Uptime:"), (time.Duration(st.UptimeMS) * time.Millisecond).String())
	tbl.AddRow(bold.Sprint("Pending:"), fmt.Sprint(st.Pending))
	tbl.AddRow(bold.Sprint("Unread:"), fmt.Sprintf("%d messages in %d conversations", st.UnreadMessages, st.UnreadConversations))
	_, _ = fmt.Fprintln(p.out, tbl)
	return nil
}

func formatTime(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	if y, m, d := t.Date(); y == time.Now().Year() && m == time.Now().Month() && d == time.Now().Day() {
		return t.Format("15:04")
	}
	return t.Format("2006-01-02")
}
