package listdata

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sherry5707/Messaging/internal/bus"
	"github.com/sherry5707/Messaging/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var now = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func exec(t *testing.T, db *store.DB, q string, args ...any) {
	t.Helper()
	_, err := db.Exec(q, args...)
	require.NoError(t, err)
}

// seed creates a pinned conversation, one from today and one from last week.
func seed(t *testing.T, db *store.DB) {
	t.Helper()
	today := now.Add(-time.Hour).UnixMilli()
	lastWeek := now.AddDate(0, 0, -7).UnixMilli()
	exec(t, db, `INSERT INTO conversations (id, name, pinned, sort_timestamp, snippet) VALUES
		('p1','Pinned',1,?,'pinned chat'),
		('t1','Today',0,?,'lunch at noon'),
		('e1','Earlier',0,?,'old news')`, lastWeek, today, lastWeek)
}

func addFavorite(t *testing.T, db *store.DB, id string, savedAt int64) {
	t.Helper()
	exec(t, db, `INSERT INTO favorites (id, message_id, conversation_id, full_name, content, saved_at)
		VALUES (?, ?, 't1', 'Today', 'keep this', ?)`, id, "m-"+id, savedAt)
}

func newList(db Store, b *bus.Bus) *ConversationList {
	return NewConversationList(db, b, Options{
		Location:        time.UTC,
		Now:             func() time.Time { return now },
		FavoriteTimeout: 200 * time.Millisecond,
	}, zap.NewNop())
}

// collect returns a listener and the channel it forwards snapshots to.
func collect() (Listener, chan Snapshot) {
	ch := make(chan Snapshot, 16)
	return func(s Snapshot) { ch <- s }, ch
}

func next(t *testing.T, ch chan Snapshot) Snapshot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
		return Snapshot{}
	}
}

func TestBindDeliversInitialSnapshot(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	l := newList(db, bus.New())
	listener, ch := collect()

	require.NoError(t, l.Bind(context.Background(), listener))
	defer l.Unbind()

	s := next(t, ch)
	require.Len(t, s.Conversations, 3)
	assert.Equal(t, "p1", s.Conversations[0].ID)
	assert.Equal(t, "t1", s.Conversations[1].ID)
	assert.Equal(t, "e1", s.Conversations[2].ID)
	assert.Nil(t, s.Favorite)
	assert.Equal(t, -1, s.Layout.FavoritesPosition())
	assert.Equal(t, 0, s.Layout.PinnedLastIndex())
	assert.Equal(t, 1, s.Layout.TodayLastIndex())
	assert.Equal(t, NotInSearch, s.Mode)

	c, ok := s.Conversation(s.Layout.PresentationIndex(2))
	require.True(t, ok)
	assert.Equal(t, "e1", c.ID)
}

func TestBindTwiceFails(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	l := newList(db, b)
	listener, _ := collect()

	require.NoError(t, l.Bind(context.Background(), listener))
	defer l.Unbind()
	assert.ErrorIs(t, l.Bind(context.Background(), listener), ErrBound)
	assert.Equal(t, 1, b.Len())
}

func TestChangeHintTriggersRefresh(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	b := bus.New()
	l := newList(db, b)
	listener, ch := collect()
	require.NoError(t, l.Bind(context.Background(), listener))
	defer l.Unbind()
	next(t, ch)

	exec(t, db, `UPDATE conversations SET pinned = 1 WHERE id = 'e1'`)
	b.Publish(bus.ConversationChanged("e1"))

	s := next(t, ch)
	assert.Equal(t, 1, s.Layout.PinnedLastIndex())
}

func TestStatusHintIsIgnored(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	b := bus.New()
	l := newList(db, b)
	listener, ch := collect()
	require.NoError(t, l.Bind(context.Background(), listener))
	defer l.Unbind()
	next(t, ch)

	b.Publish(bus.Event{Topic: bus.TopicStatus, Timestamp: now})
	select {
	case <-ch:
		t.Fatal("status hint caused a refresh")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFavoriteBanner(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	addFavorite(t, db, "f1", 100)
	addFavorite(t, db, "f2", 200)
	l := newList(db, bus.New())

	s, err := l.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s.Favorite)
	assert.Equal(t, "f2", s.Favorite.ID)
	assert.Equal(t, 0, s.Layout.FavoritesPosition())
}

// slowFavorites blocks LastFavorite until its context ends.
type slowFavorites struct {
	*store.DB
}

func (s slowFavorites) LastFavorite(ctx context.Context) (*store.Favorite, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestFavoriteLookupTimeout(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	addFavorite(t, db, "f1", 100)
	l := newList(slowFavorites{db}, bus.New())

	start := time.Now()
	s, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s.Favorite)
	assert.Equal(t, -1, s.Layout.FavoritesPosition())
	assert.Len(t, s.Conversations, 3)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSearchModeLifecycle(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	addFavorite(t, db, "f1", 100)
	l := newList(db, bus.New())
	listener, ch := collect()
	require.NoError(t, l.Bind(context.Background(), listener))
	defer l.Unbind()
	next(t, ch)

	l.SetSearchBannerVisible(true)
	l.SetSearch("noon")
	var s Snapshot
	for s = next(t, ch); s.Mode != InSearch; s = next(t, ch) {
	}
	require.Len(t, s.Conversations, 1)
	assert.Equal(t, "t1", s.Conversations[0].ID)
	assert.Equal(t, "noon", s.Search)
	assert.Nil(t, s.Favorite)
	assert.Equal(t, 0, s.Layout.SearchBannerPosition())
	assert.Equal(t, -1, s.Layout.PinnedLastIndex())

	l.ExitSearch()
	for s = next(t, ch); s.Mode == InSearch; s = next(t, ch) {
	}
	assert.Equal(t, BackFromSearch, s.Mode)
	assert.Len(t, s.Conversations, 3)
	assert.Equal(t, NotInSearch, l.Mode())
}

func TestArchivedList(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	exec(t, db, `UPDATE conversations SET archived = 1 WHERE id = 't1'`)
	l := newList(db, bus.New())

	s, err := l.LoadFor(context.Background(), "", true, false)
	require.NoError(t, err)
	require.Len(t, s.Conversations, 1)
	assert.Equal(t, "t1", s.Conversations[0].ID)
	assert.True(t, s.Archived)

	s, err = l.LoadFor(context.Background(), "", false, false)
	require.NoError(t, err)
	assert.Len(t, s.Conversations, 2)
}

func TestUnbindStopsDelivery(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	b := bus.New()
	l := newList(db, b)
	listener, ch := collect()
	require.NoError(t, l.Bind(context.Background(), listener))
	next(t, ch)

	l.Unbind()
	assert.Equal(t, 0, b.Len())
	b.Publish(bus.ListChanged())
	l.Refresh()
	select {
	case <-ch:
		t.Fatal("snapshot delivered after unbind")
	case <-time.After(100 * time.Millisecond):
	}

	// Rebinding works after unbind.
	require.NoError(t, l.Bind(context.Background(), listener))
	next(t, ch)
	l.Unbind()
}

func TestSupersededRefreshIsDropped(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	l := newList(db, bus.New())
	listener, ch := collect()
	require.NoError(t, l.Bind(context.Background(), listener))
	defer l.Unbind()
	next(t, ch)

	for _, q := range []string{"n", "no", "noo", "noon"} {
		l.SetSearch(q)
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if s.Search == "noon" {
				assert.Len(t, s.Conversations, 1)
				return
			}
		case <-deadline:
			t.Fatal("latest search never delivered")
		}
	}
}

func TestFavoritesList(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	addFavorite(t, db, "f1", 100)
	b := bus.New()
	f := NewFavoritesList(db, b, 10, zap.NewNop())
	ch := make(chan []store.Favorite, 4)
	require.NoError(t, f.Bind(context.Background(), func(favs []store.Favorite) { ch <- favs }))
	defer f.Unbind()

	favs := <-ch
	require.Len(t, favs, 1)

	addFavorite(t, db, "f2", 200)
	b.Publish(bus.ListChanged())
	b.Publish(bus.FavoritesChanged())

	select {
	case favs = <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no favorites refresh")
	}
	require.Len(t, favs, 2)
	assert.Equal(t, "f2", favs[0].ID)
}
