package listdata

import (
	"context"
	"sync"

	"github.com/sherry5707/Messaging/internal/bus"
	"github.com/sherry5707/Messaging/internal/store"
	"go.uber.org/zap"
)

// FavoritesListener receives the favorites, newest first.
type FavoritesListener func([]store.Favorite)

// FavoritesList keeps the favorites list current.
type FavoritesList struct {
	db     Store
	bus    *bus.Bus
	logger *zap.Logger
	limit  int

	w watcher

	mu       sync.Mutex
	listener FavoritesListener
}

// NewFavoritesList creates an unbound favorites list.
func NewFavoritesList(db Store, b *bus.Bus, limit int, logger *zap.Logger) *FavoritesList {
	return &FavoritesList{db: db, bus: b, limit: limit, logger: logger}
}

// Bind delivers the favorites now and after every favorites change.
func (f *FavoritesList) Bind(ctx context.Context, listener FavoritesListener) error {
	if f.w.bound() {
		return ErrBound
	}
	f.mu.Lock()
	f.listener = listener
	f.mu.Unlock()
	return f.w.start(ctx, f.bus.Subscribe(bus.TopicFavorites), nil, f.refresh)
}

// Unbind stops delivery.
func (f *FavoritesList) Unbind() {
	f.mu.Lock()
	f.listener = nil
	f.mu.Unlock()
	f.w.stop()
}

func (f *FavoritesList) refresh(ctx context.Context) {
	favs, err := f.db.ListFavorites(ctx, f.limit)
	if err != nil {
		if ctx.Err() == nil {
			f.logger.Error("favorites refresh failed", zap.Error(err))
		}
		return
	}
	f.mu.Lock()
	listener := f.listener
	f.mu.Unlock()
	if listener == nil || ctx.Err() != nil {
		return
	}
	listener(favs)
}
