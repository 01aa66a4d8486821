package tui

import (
	"context"

	"github.com/sherry5707/Messaging/internal/api"
	"github.com/sherry5707/Messaging/internal/tui/client"
	"github.com/sherry5707/Messaging/internal/tui/model"
)

// Backend is what the TUI needs from the daemon client.
type Backend interface {
	model.Daemon
	Watch(ctx context.Context, req api.WatchRequest, fn func(api.Change) error) error
	FollowFavorites(ctx context.Context, limit int, fn func([]api.Favorite) error) error
	OpenConversationFeed(ctx context.Context, req api.ListConversationsRequest) (model.ConversationFeed, error)
}

type clientBackend struct {
	*client.Client
}

// FromClient adapts a daemon client to Backend.
func FromClient(c *client.Client) Backend {
	return clientBackend{c}
}

func (b clientBackend) OpenConversationFeed(ctx context.Context, req api.ListConversationsRequest) (model.ConversationFeed, error) {
	feed, err := b.FollowConversations(ctx, req)
	if err != nil {
		return nil, err
	}
	return feed, nil
}
