package store

import (
	"context"
	"database/sql"
	"time"
)

// ConversationColumns are the columns read for the conversation list.
var ConversationColumns = []string{
	"id", "name", "destination", "pinned", "archived",
	"unread_count", "sort_timestamp", "snippet",
}

// ConversationFilter selects which conversations a list query returns.
type ConversationFilter struct {
	Archived bool
	Search   string
	Limit    int
}

// ConversationQuery builds the list query. Outside search, pinned rows sort
// first; a search orders by recency alone and spans archived rows too.
func ConversationQuery(f ConversationFilter) Query {
	q := Query{
		Table:   "conversations",
		Columns: ConversationColumns,
		Limit:   f.Limit,
	}
	if f.Search != "" {
		q.Where, q.Args = searchPredicate(f.Search, "name", "snippet", "destination")
		q.OrderBy = "sort_timestamp DESC"
		return q
	}
	q.Where = "archived = ?"
	q.Args = []any{f.Archived}
	q.OrderBy = "pinned DESC, sort_timestamp DESC"
	return q
}

// ListConversations returns a snapshot cursor over conversations.
func (db *DB) ListConversations(ctx context.Context, f ConversationFilter) (*Cursor, error) {
	return db.Select(ctx, ConversationQuery(f))
}

// ConversationAt reads the cursor's current row.
func ConversationAt(c *Cursor) Conversation {
	return Conversation{
		ID:            c.String("id"),
		Name:          c.String("name"),
		Destination:   c.String("destination"),
		Pinned:        c.Bool("pinned"),
		Archived:      c.Bool("archived"),
		UnreadCount:   int(c.Int64("unread_count")),
		SortTimestamp: c.Int64("sort_timestamp"),
		Snippet:       c.String("snippet"),
	}
}

// GetConversation returns a conversation by id, or nil when absent.
func (db *DB) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	err := db.QueryRowContext(ctx, `
		SELECT id, name, destination, pinned, archived, unread_count, sort_timestamp, snippet
		FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Destination, &c.Pinned, &c.Archived, &c.UnreadCount, &c.SortTimestamp, &c.Snippet)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertConversation inserts a conversation or refreshes its display fields.
// Pinned and archived flags are only set on insert; afterwards they change
// through commands alone.
func (t *Tx) UpsertConversation(ctx context.Context, c *Conversation) error {
	_, err := t.Exec(ctx, `
		INSERT INTO conversations (id, name, destination, pinned, archived, sort_timestamp, snippet, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE conversations.name END,
			destination = CASE WHEN excluded.destination != '' THEN excluded.destination ELSE conversations.destination END,
			sort_timestamp = MAX(conversations.sort_timestamp, excluded.sort_timestamp),
			snippet = CASE WHEN excluded.sort_timestamp >= conversations.sort_timestamp THEN excluded.snippet ELSE conversations.snippet END,
			updated_at = excluded.updated_at`,
		c.ID, c.Name, c.Destination, c.Pinned, c.Archived, c.SortTimestamp, c.Snippet, time.Now().UnixMilli())
	return err
}

// RecountUnread recomputes a conversation's unread_count from its messages.
func (t *Tx) RecountUnread(ctx context.Context, conversationID string) error {
	_, err := t.Exec(ctx, `
		UPDATE conversations
		SET unread_count = (SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND read = 0)
		WHERE id = ?`, conversationID, conversationID)
	return err
}
