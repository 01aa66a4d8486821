package store

import (
	"context"
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedConversation(t *testing.T, db *DB, id string, pinned, archived bool, ts int64, snippet string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO conversations (id, name, pinned, archived, sort_timestamp, snippet) VALUES (?, ?, ?, ?, ?, ?)`,
		id, "name-"+id, pinned, archived, ts, snippet)
	if err != nil {
		t.Fatal(err)
	}
}

func TestMigrateFresh(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if !result.Changed || result.From != 0 || result.Version != 2 {
		t.Errorf("result = %+v, want changed from 0 to 2", *result)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + unread_summary)", result.Version)
	}
}

func TestUpdateReportsAffectedRows(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedConversation(t, db, "c1", false, false, 1000, "")
	seedConversation(t, db, "c2", true, false, 2000, "")

	tx, err := db.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = tx.Rollback() }()

	n, err := tx.Update(ctx, "conversations", Values{"pinned": true}, "pinned != ?", true)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("affected = %d, want 1", n)
	}
	n, err = tx.Update(ctx, "conversations", Values{"pinned": true}, "pinned != ?", true)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second update affected = %d, want 0", n)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateRejectsBadIdentifier(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	tx, err := db.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Update(ctx, "conversations; DROP TABLE messages", Values{"pinned": 1}, ""); err == nil {
		t.Error("expected error for invalid table name")
	}
	if _, err := tx.Update(ctx, "conversations", Values{"pinned=1--": 1}, ""); err == nil {
		t.Error("expected error for invalid column name")
	}
}

func TestRollbackDiscardsWrites(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedConversation(t, db, "c1", false, false, 1000, "")

	tx, err := db.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Update(ctx, "conversations", Values{"archived": true}, "id = ?", "c1"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if c.Archived {
		t.Error("archived should be rolled back")
	}
}

func TestListConversationsOrder(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedConversation(t, db, "old", false, false, 1000, "")
	seedConversation(t, db, "new", false, false, 3000, "")
	seedConversation(t, db, "pinned", true, false, 500, "")
	seedConversation(t, db, "hidden", false, true, 9000, "")

	cur, err := db.ListConversations(ctx, ConversationFilter{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"pinned", "new", "old"}
	if cur.Count() != len(want) {
		t.Fatalf("count = %d, want %d", cur.Count(), len(want))
	}
	for i, id := range want {
		cur.MoveTo(i)
		if got := ConversationAt(cur).ID; got != id {
			t.Errorf("row %d = %q, want %q", i, got, id)
		}
	}

	archived, err := db.ListConversations(ctx, ConversationFilter{Archived: true})
	if err != nil {
		t.Fatal(err)
	}
	if archived.Count() != 1 {
		t.Errorf("archived count = %d, want 1", archived.Count())
	}
}

func TestSearchOrdersByRecencyOnly(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedConversation(t, db, "a", true, false, 1000, "lunch at noon")
	seedConversation(t, db, "b", false, false, 2000, "LUNCH tomorrow?")
	seedConversation(t, db, "c", false, false, 3000, "nothing here")
	seedConversation(t, db, "d", false, false, 4000, "100% sure")

	cur, err := db.ListConversations(ctx, ConversationFilter{Search: "lunch"})
	if err != nil {
		t.Fatal(err)
	}
	if cur.Count() != 2 {
		t.Fatalf("count = %d, want 2", cur.Count())
	}
	cur.MoveTo(0)
	if got := ConversationAt(cur).ID; got != "b" {
		t.Errorf("first = %q, want b (pinned must not lead in search)", got)
	}

	pct, err := db.ListConversations(ctx, ConversationFilter{Search: "%"})
	if err != nil {
		t.Fatal(err)
	}
	if pct.Count() != 1 {
		t.Errorf("literal %% search count = %d, want 1", pct.Count())
	}
}

func TestCursorIsSnapshot(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedConversation(t, db, "c1", false, false, 1000, "before")

	cur, err := db.ListConversations(ctx, ConversationFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`UPDATE conversations SET snippet = 'after'`); err != nil {
		t.Fatal(err)
	}
	if !cur.MoveTo(0) {
		t.Fatal("MoveTo(0) = false")
	}
	if got := cur.String("snippet"); got != "before" {
		t.Errorf("snippet = %q, want before", got)
	}
	if cur.MoveTo(5) {
		t.Error("MoveTo out of range should fail")
	}
	if cur.Position() != 0 {
		t.Errorf("position = %d, want 0", cur.Position())
	}
}

func TestUpsertConversationKeepsFlags(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedConversation(t, db, "c1", true, false, 5000, "newest")

	tx, err := db.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.UpsertConversation(ctx, &Conversation{ID: "c1", SortTimestamp: 1000, Snippet: "older"}); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if !c.Pinned {
		t.Error("pinned flag lost on upsert")
	}
	if c.SortTimestamp != 5000 || c.Snippet != "newest" {
		t.Errorf("got ts=%d snippet=%q, want 5000 newest", c.SortTimestamp, c.Snippet)
	}
	if c.Name != "name-c1" {
		t.Errorf("name = %q, want name-c1", c.Name)
	}
}

func TestFavoritesOrderAndLast(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	last, err := db.LastFavorite(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if last != nil {
		t.Fatalf("LastFavorite on empty table = %+v, want nil", last)
	}

	for i, id := range []string{"f1", "f2", "f3"} {
		_, err := db.Exec(`INSERT INTO favorites (id, message_id, conversation_id, content, saved_at) VALUES (?, ?, 'c', 'x', ?)`,
			id, "m-"+id, int64(i+1)*100)
		if err != nil {
			t.Fatal(err)
		}
	}
	favs, err := db.ListFavorites(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(favs) != 3 || favs[0].ID != "f3" || favs[2].ID != "f1" {
		t.Errorf("favorites order = %+v", favs)
	}
	last, err = db.LastFavorite(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if last == nil || last.ID != "f3" {
		t.Errorf("LastFavorite = %+v, want f3", last)
	}
}

func TestRefreshUnreadSummary(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedConversation(t, db, "c1", false, false, 1000, "")
	if _, err := db.Exec(`INSERT INTO messages (id, conversation_id, read) VALUES ('m1','c1',0), ('m2','c1',0), ('m3','c1',1)`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`UPDATE conversations SET unread_count = 2 WHERE id = 'c1'`); err != nil {
		t.Fatal(err)
	}

	s, err := db.RefreshUnreadSummary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.Conversations != 1 || s.Messages != 2 {
		t.Errorf("summary = %+v, want 1 conversation, 2 messages", s)
	}
	stored, err := db.UnreadSummary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Messages != 2 {
		t.Errorf("stored messages = %d, want 2", stored.Messages)
	}
}

func TestListMessagesOldestFirst(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedConversation(t, db, "c1", false, false, 1000, "")
	if _, err := db.Exec(`INSERT INTO messages (id, conversation_id, content, received_ts) VALUES
		('m2','c1','second',200), ('m1','c1','first',100), ('m3','c1','third',300)`); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(ctx, "c1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m2" || msgs[1].ID != "m3" {
		t.Errorf("messages = %+v, want [m2 m3]", msgs)
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = tx.Rollback() }()
	m, err := tx.Message(ctx, "missing")
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Error("expected nil for missing message")
	}
}
