package store

import (
	"context"
	"time"
)

// RefreshUnreadSummary recomputes the derived totals row in its own
// transaction.
func (db *DB) RefreshUnreadSummary(ctx context.Context) (*UnreadSummary, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var s UnreadSummary
	err = tx.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM conversations WHERE unread_count > 0),
			(SELECT COUNT(*) FROM messages WHERE read = 0)`).Scan(&s.Conversations, &s.Messages)
	if err != nil {
		return nil, err
	}
	s.UpdatedAt = time.Now().UnixMilli()
	if _, err := tx.Exec(ctx, `
		INSERT INTO unread_summary (id, conversations, messages, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			conversations = excluded.conversations,
			messages = excluded.messages,
			updated_at = excluded.updated_at`,
		s.Conversations, s.Messages, s.UpdatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &s, nil
}

// UnreadSummary returns the last computed totals.
func (db *DB) UnreadSummary(ctx context.Context) (*UnreadSummary, error) {
	var s UnreadSummary
	err := db.QueryRowContext(ctx, `SELECT conversations, messages, updated_at FROM unread_summary WHERE id = 1`).
		Scan(&s.Conversations, &s.Messages, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
