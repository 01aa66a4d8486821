package command

import (
	"context"

	"github.com/sherry5707/Messaging/internal/bus"
	"github.com/sherry5707/Messaging/internal/store"
)

// Deferred is post-commit work requested by a transactional step. It runs on
// the deferred pool with its own store access.
type Deferred struct {
	Name string
	Run  func(ctx context.Context, db *store.DB) error
}

// Changes collects what a transactional step changed. Each notification
// class is recorded at most once; nothing is published until commit.
type Changes struct {
	list          bool
	favorites     bool
	conversations []string
	seen          map[string]struct{}
	deferred      []Deferred
}

func newChanges() *Changes {
	return &Changes{seen: make(map[string]struct{})}
}

// ListChanged records a list-level change.
func (c *Changes) ListChanged() { c.list = true }

// FavoritesChanged records a favorites-level change.
func (c *Changes) FavoritesChanged() { c.favorites = true }

// ConversationChanged records a change to one conversation.
func (c *Changes) ConversationChanged(id string) {
	if _, ok := c.seen[id]; ok {
		return
	}
	c.seen[id] = struct{}{}
	c.conversations = append(c.conversations, id)
}

// RequestDeferred schedules d after commit. Requests with the same name
// collapse into one.
func (c *Changes) RequestDeferred(d Deferred) {
	for _, existing := range c.deferred {
		if existing.Name == d.Name {
			return
		}
	}
	c.deferred = append(c.deferred, d)
}

// Empty reports whether nothing was recorded.
func (c *Changes) Empty() bool {
	return !c.list && !c.favorites && len(c.conversations) == 0
}

// Events returns the hints to publish, conversation-level first.
func (c *Changes) Events() []bus.Event {
	var out []bus.Event
	for _, id := range c.conversations {
		out = append(out, bus.ConversationChanged(id))
	}
	if c.list {
		out = append(out, bus.ListChanged())
	}
	if c.favorites {
		out = append(out, bus.FavoritesChanged())
	}
	return out
}

// Deferred returns the requested deferred steps.
func (c *Changes) Deferred() []Deferred { return c.deferred }
