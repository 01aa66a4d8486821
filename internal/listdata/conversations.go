package listdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sherry5707/Messaging/internal/bus"
	"github.com/sherry5707/Messaging/internal/section"
	"github.com/sherry5707/Messaging/internal/store"
	"go.uber.org/zap"
)

// Store is the read access the list owners need.
type Store interface {
	ListConversations(ctx context.Context, f store.ConversationFilter) (*store.Cursor, error)
	LastFavorite(ctx context.Context) (*store.Favorite, error)
	ListFavorites(ctx context.Context, limit int) ([]store.Favorite, error)
}

// SearchMode is the search state of a conversation list.
type SearchMode int

const (
	// NotInSearch shows the regular list.
	NotInSearch SearchMode = iota
	// InSearch shows conversations matching the query.
	InSearch
	// BackFromSearch is the first regular snapshot after a search ends.
	BackFromSearch
)

func (m SearchMode) String() string {
	switch m {
	case InSearch:
		return "in_search"
	case BackFromSearch:
		return "back_from_search"
	default:
		return "not_in_search"
	}
}

// Snapshot is one delivered state of the list.
type Snapshot struct {
	Conversations []store.Conversation
	Layout        *section.Layout
	Favorite      *store.Favorite
	Search        string
	Mode          SearchMode
	Archived      bool
	Generation    uint64
}

// Conversation returns the conversation at a layout position, if any.
func (s Snapshot) Conversation(pos int) (store.Conversation, bool) {
	row := s.Layout.RowIndex(pos)
	if row < 0 || row >= len(s.Conversations) {
		return store.Conversation{}, false
	}
	return s.Conversations[row], true
}

// Listener receives snapshots. It is called from the list's own goroutine.
type Listener func(Snapshot)

// Options configures a ConversationList.
type Options struct {
	// FavoriteTimeout bounds the wait for the latest favorite. When it
	// expires the snapshot is delivered without a favorites banner.
	FavoriteTimeout time.Duration
	Archived        bool
	Location        *time.Location
	Now             func() time.Time
}

// DefaultFavoriteTimeout is used when Options.FavoriteTimeout is zero.
const DefaultFavoriteTimeout = 500 * time.Millisecond

type conversationRows []store.Conversation

func (r conversationRows) Len() int          { return len(r) }
func (r conversationRows) Pinned(i int) bool { return r[i].Pinned }
func (r conversationRows) SortTime(i int) time.Time {
	return time.UnixMilli(r[i].SortTimestamp)
}

// query is the state a refresh is computed from.
type query struct {
	search        string
	mode          SearchMode
	bannerVisible bool
	archived      bool
	gen           uint64
}

// ConversationList keeps a sectioned view of the conversation list current.
type ConversationList struct {
	db     Store
	bus    *bus.Bus
	logger *zap.Logger
	opts   Options

	w watcher

	mu       sync.Mutex
	q        query
	listener Listener
}

// NewConversationList creates an unbound list.
func NewConversationList(db Store, b *bus.Bus, opts Options, logger *zap.Logger) *ConversationList {
	if opts.FavoriteTimeout <= 0 {
		opts.FavoriteTimeout = DefaultFavoriteTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ConversationList{
		db:     db,
		bus:    b,
		logger: logger,
		opts:   opts,
		q:      query{archived: opts.Archived},
	}
}

// Bind starts delivering snapshots to listener: one right away and one after
// every relevant change.
func (l *ConversationList) Bind(ctx context.Context, listener Listener) error {
	if l.w.bound() {
		return ErrBound
	}
	l.mu.Lock()
	l.listener = listener
	l.mu.Unlock()
	return l.w.start(ctx, l.bus.Subscribe(""), listHint, l.refresh)
}

func listHint(evt bus.Event) bool {
	switch evt.Topic {
	case bus.TopicList, bus.TopicConversation, bus.TopicFavorites:
		return true
	}
	return false
}

// Unbind stops delivery. A refresh still running is discarded.
func (l *ConversationList) Unbind() {
	l.mu.Lock()
	l.listener = nil
	l.mu.Unlock()
	l.w.stop()
}

func (l *ConversationList) update(fn func(q *query)) {
	l.mu.Lock()
	fn(&l.q)
	l.q.gen++
	l.mu.Unlock()
	l.w.poke()
}

// SetSearch switches to search mode with query text.
func (l *ConversationList) SetSearch(text string) {
	l.update(func(q *query) {
		q.search = text
		q.mode = InSearch
	})
}

// ExitSearch returns to the regular list.
func (l *ConversationList) ExitSearch() {
	l.update(func(q *query) {
		if q.mode != InSearch {
			return
		}
		q.search = ""
		q.mode = BackFromSearch
	})
}

// SetSearchBannerVisible shows or hides the search banner slot.
func (l *ConversationList) SetSearchBannerVisible(v bool) {
	l.update(func(q *query) { q.bannerVisible = v })
}

// SetArchived switches between the archived and the regular list.
func (l *ConversationList) SetArchived(v bool) {
	l.update(func(q *query) { q.archived = v })
}

// Refresh requests a refresh outside the bus.
func (l *ConversationList) Refresh() { l.w.poke() }

// Mode returns the current search mode.
func (l *ConversationList) Mode() SearchMode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.q.mode
}

func (l *ConversationList) refresh(ctx context.Context) {
	l.mu.Lock()
	q := l.q
	l.mu.Unlock()

	snap, err := l.load(ctx, q)
	if err != nil {
		if ctx.Err() == nil {
			l.logger.Error("conversation list refresh failed", zap.Error(err))
		}
		return
	}

	l.mu.Lock()
	// A newer query superseded this one; its own refresh is already queued.
	if q.gen != l.q.gen || l.listener == nil || ctx.Err() != nil {
		l.mu.Unlock()
		return
	}
	if l.q.mode == BackFromSearch {
		l.q.mode = NotInSearch
	}
	listener := l.listener
	l.mu.Unlock()

	listener(snap)
}

// Load computes a snapshot for the current state without binding.
func (l *ConversationList) Load(ctx context.Context) (Snapshot, error) {
	l.mu.Lock()
	q := l.q
	l.mu.Unlock()
	return l.load(ctx, q)
}

// LoadFor computes a snapshot for explicit search and archive settings.
func (l *ConversationList) LoadFor(ctx context.Context, search string, archived, bannerVisible bool) (Snapshot, error) {
	q := query{search: search, archived: archived, bannerVisible: bannerVisible}
	if search != "" {
		q.mode = InSearch
	}
	return l.load(ctx, q)
}

func (l *ConversationList) load(ctx context.Context, q query) (Snapshot, error) {
	filter := store.ConversationFilter{Archived: q.archived}
	inSearch := q.mode == InSearch
	if inSearch {
		filter.Search = q.search
	}
	cur, err := l.db.ListConversations(ctx, filter)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list conversations: %w", err)
	}
	rows := make(conversationRows, 0, cur.Count())
	for i := 0; cur.MoveTo(i); i++ {
		rows = append(rows, store.ConversationAt(cur))
	}

	var fav *store.Favorite
	if !inSearch {
		fav = l.lastFavorite(ctx)
	}

	layout := section.Compute(rows, section.Options{
		HasFavorites:        fav != nil,
		SearchMode:          inSearch,
		SearchBannerVisible: q.bannerVisible,
		Now:                 l.opts.Now(),
		Location:            l.opts.Location,
	})
	return Snapshot{
		Conversations: rows,
		Layout:        layout,
		Favorite:      fav,
		Search:        q.search,
		Mode:          q.mode,
		Archived:      q.archived,
		Generation:    q.gen,
	}, nil
}

// lastFavorite waits at most FavoriteTimeout for the newest favorite.
func (l *ConversationList) lastFavorite(ctx context.Context) *store.Favorite {
	ctx, cancel := context.WithTimeout(ctx, l.opts.FavoriteTimeout)
	defer cancel()

	type result struct {
		fav *store.Favorite
		err error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := l.db.LastFavorite(ctx)
		ch <- result{f, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			l.logger.Warn("favorite lookup failed", zap.Error(r.err))
			return nil
		}
		return r.fav
	case <-ctx.Done():
		l.logger.Warn("favorite lookup timed out", zap.Duration("timeout", l.opts.FavoriteTimeout))
		return nil
	}
}
