package listdata

import (
	"github.com/sherry5707/Messaging/internal/bus"
	"go.uber.org/zap"
)

// Source creates lists over one store and bus. Each caller that binds gets
// its own list so that search and archive state stay per viewer.
type Source struct {
	db     Store
	bus    *bus.Bus
	opts   Options
	logger *zap.Logger
}

// NewSource returns a Source. opts applies to every conversation list it
// creates.
func NewSource(db Store, b *bus.Bus, opts Options, logger *zap.Logger) *Source {
	return &Source{db: db, bus: b, opts: opts, logger: logger}
}

// Conversations returns a new unbound conversation list.
func (s *Source) Conversations() *ConversationList {
	return NewConversationList(s.db, s.bus, s.opts, s.logger)
}

// Favorites returns a new unbound favorites list holding at most limit
// entries; zero means the store default.
func (s *Source) Favorites(limit int) *FavoritesList {
	return NewFavoritesList(s.db, s.bus, limit, s.logger)
}
