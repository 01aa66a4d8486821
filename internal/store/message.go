package store

import (
	"context"
	"database/sql"
)

const messageColumns = `id, conversation_id, sender_name, sender_destination, content,
	sent_ts, received_ts, read, seen, favorite`

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	var m Message
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderName, &m.SenderDestination, &m.Content,
		&m.SentTS, &m.ReceivedTS, &m.Read, &m.Seen, &m.Favorite); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns a conversation's messages oldest first, limited to the
// newest limit rows.
func (db *DB) ListMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT * FROM (
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_id = ?
			ORDER BY received_ts DESC
			LIMIT ?
		) ORDER BY received_ts ASC`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// Message returns a message by id inside the transaction, or nil when absent.
func (t *Tx) Message(ctx context.Context, id string) (*Message, error) {
	m, err := scanMessage(t.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}
