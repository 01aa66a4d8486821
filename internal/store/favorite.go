package store

import (
	"context"
	"database/sql"
)

const favoriteColumns = `id, message_id, conversation_id, full_name, send_destination, content,
	sent_ts, received_ts, saved_at`

func scanFavorite(row interface{ Scan(...any) error }) (*Favorite, error) {
	var f Favorite
	if err := row.Scan(&f.ID, &f.MessageID, &f.ConversationID, &f.FullName, &f.SendDestination,
		&f.Content, &f.SentTS, &f.ReceivedTS, &f.SavedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFavorites returns favorites, most recently saved first.
func (db *DB) ListFavorites(ctx context.Context, limit int) ([]Favorite, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `SELECT `+favoriteColumns+` FROM favorites ORDER BY saved_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var favs []Favorite
	for rows.Next() {
		f, err := scanFavorite(rows)
		if err != nil {
			return nil, err
		}
		favs = append(favs, *f)
	}
	return favs, rows.Err()
}

// LastFavorite returns the most recently saved favorite, or nil if there is none.
func (db *DB) LastFavorite(ctx context.Context) (*Favorite, error) {
	f, err := scanFavorite(db.QueryRowContext(ctx, `SELECT `+favoriteColumns+` FROM favorites ORDER BY saved_at DESC, id LIMIT 1`))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}
