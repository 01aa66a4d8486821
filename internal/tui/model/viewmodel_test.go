package model

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherry5707/Messaging/internal/api"
	"github.com/sherry5707/Messaging/internal/bus"
	"github.com/sherry5707/Messaging/internal/command"
)

type fakeDaemon struct {
	mu        sync.Mutex
	submitted []command.Command
	listReqs  []api.ListConversationsRequest
	msgLoads  []string
	statuses  int
	favLoads  int
	noOp      bool
	err       error
}

func (f *fakeDaemon) Submit(_ context.Context, cmd command.Command, _ bool) (*api.SubmitResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.submitted = append(f.submitted, cmd)
	return &api.SubmitResponse{Accepted: true, Waited: true, NoOp: f.noOp}, nil
}

func (f *fakeDaemon) ListConversations(_ context.Context, req api.ListConversationsRequest) (*api.ListConversationsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listReqs = append(f.listReqs, req)
	return &api.ListConversationsResponse{
		Conversations: []api.Conversation{{ID: "c1", Name: "Ann"}},
		Search:        req.Search,
		Archived:      req.Archived,
	}, nil
}

func (f *fakeDaemon) ListFavorites(context.Context, int) ([]api.Favorite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.favLoads++
	return []api.Favorite{{ID: "f1", MessageID: "m1"}}, nil
}

func (f *fakeDaemon) ListMessages(_ context.Context, id string, _ int) (*api.ListMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgLoads = append(f.msgLoads, id)
	return &api.ListMessagesResponse{
		Conversation: api.Conversation{ID: id, Name: "name-" + id},
		Messages:     []api.Message{{ID: "m1", ConversationID: id}},
	}, nil
}

func (f *fakeDaemon) GetStatus(context.Context) (*api.GetStatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses++
	return &api.GetStatusResponse{Profile: "main", Status: "READY"}, nil
}

func TestLoadConversationsUsesSelection(t *testing.T) {
	d := &fakeDaemon{}
	vm := NewViewModel(d)
	vm.SetSearch("ann")
	vm.SetArchived(true)

	require.NoError(t, vm.LoadConversations(context.Background()))
	require.Len(t, d.listReqs, 1)
	assert.Equal(t, api.ListConversationsRequest{Archived: true, Search: "ann"}, d.listReqs[0])
	assert.Equal(t, "ann", vm.Conversations().Search)

	select {
	case <-vm.RefreshCh():
	default:
		t.Fatal("expected refresh signal")
	}
}

func TestToggleCommands(t *testing.T) {
	d := &fakeDaemon{}
	vm := NewViewModel(d)
	ctx := context.Background()

	require.NoError(t, vm.SetRead(ctx, api.Conversation{ID: "c1", UnreadCount: 2}, true))
	require.NoError(t, vm.SetRead(ctx, api.Conversation{ID: "c1"}, false))
	require.NoError(t, vm.TogglePinned(ctx, api.Conversation{ID: "c1", Pinned: true}))
	require.NoError(t, vm.ToggleArchived(ctx, api.Conversation{ID: "c1"}))
	require.NoError(t, vm.ToggleFavorite(ctx, api.Message{ID: "m1"}))
	require.NoError(t, vm.RemoveFavorite(ctx, api.Favorite{MessageID: "m2"}))

	var kinds []command.Kind
	for _, c := range d.submitted {
		kinds = append(kinds, c.Kind)
	}
	assert.Equal(t, []command.Kind{
		command.MarkAsRead, command.MarkAsUnread, command.ChangePinned,
		command.ChangeArchived, command.SaveFavorite, command.DeleteFavorite,
	}, kinds)

	pinned, err := d.submitted[2].Params.Bool(command.KeyPinned)
	require.NoError(t, err)
	assert.False(t, pinned)
	archived, err := d.submitted[3].Params.Bool(command.KeyArchived)
	require.NoError(t, err)
	assert.True(t, archived)
	id, err := d.submitted[5].Params.String(command.KeyMessageID)
	require.NoError(t, err)
	assert.Equal(t, "m2", id)

	assert.Equal(t, "Removed from favorites", vm.Flash.Get())
}

func TestSubmitFlashes(t *testing.T) {
	d := &fakeDaemon{noOp: true}
	vm := NewViewModel(d)

	require.NoError(t, vm.TogglePinned(context.Background(), api.Conversation{ID: "c1"}))
	msg, level := vm.Flash.Current()
	assert.Equal(t, "Nothing to change", msg)
	assert.Equal(t, FlashWarn, level)

	d.err = errors.New("boom")
	require.Error(t, vm.TogglePinned(context.Background(), api.Conversation{ID: "c1"}))
	msg, level = vm.Flash.Current()
	assert.Contains(t, msg, "boom")
	assert.Equal(t, FlashErr, level)
}

func TestApplyRoutesByTopic(t *testing.T) {
	d := &fakeDaemon{}
	vm := NewViewModel(d)
	ctx := context.Background()

	require.NoError(t, vm.Apply(ctx, api.Change{Topic: bus.TopicStatus}))
	assert.Equal(t, 1, d.statuses)
	assert.Empty(t, d.listReqs)

	require.NoError(t, vm.Apply(ctx, api.Change{Topic: bus.TopicList}))
	assert.Len(t, d.listReqs, 1)
	assert.Equal(t, 2, d.statuses)

	require.NoError(t, vm.Apply(ctx, api.Change{Topic: bus.TopicFavorites}))
	assert.Equal(t, 1, d.favLoads)
	assert.Len(t, d.listReqs, 2)

	// No active conversation: nothing to reload.
	require.NoError(t, vm.Apply(ctx, api.Change{Topic: bus.TopicConversation, ConversationID: "c1"}))
	assert.Empty(t, d.msgLoads)

	require.NoError(t, vm.LoadMessages(ctx, "c1"))
	assert.Equal(t, "name-c1", vm.Thread().Name)
	require.NoError(t, vm.Apply(ctx, api.Change{Topic: bus.TopicConversation, ConversationID: "c2"}))
	require.NoError(t, vm.Apply(ctx, api.Change{Topic: bus.TopicConversation, ConversationID: "c1"}))
	assert.Equal(t, []string{"c1", "c1"}, d.msgLoads)

	vm.CloseConversation()
	assert.Empty(t, vm.ActiveConversation())
	assert.Empty(t, vm.Thread().ID)
	assert.Nil(t, vm.Messages())
}

type fakeFeed struct {
	sent []api.ListConversationsRequest
}

func (f *fakeFeed) Send(req api.ListConversationsRequest) error {
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeFeed) Recv() (*api.ListConversationsResponse, error) {
	return nil, errors.New("not used")
}

func TestSearchBannerOutsideSearchOnly(t *testing.T) {
	vm := NewViewModel(&fakeDaemon{})
	assert.True(t, vm.ConversationsRequest().SearchBanner)

	vm.SetSearch("ann")
	assert.False(t, vm.ConversationsRequest().SearchBanner)
}

func TestFeedReplacesListLoads(t *testing.T) {
	d := &fakeDaemon{}
	vm := NewViewModel(d)
	ctx := context.Background()
	feed := &fakeFeed{}

	opened := vm.ConversationsRequest()
	vm.SetSearch("ann")
	require.NoError(t, vm.AttachFeed(feed, opened))
	require.Len(t, feed.sent, 1, "selection moved before attach")
	assert.Equal(t, "ann", feed.sent[0].Search)
	assert.True(t, vm.Following())

	vm.SetArchived(true)
	require.NoError(t, vm.RefreshConversations(ctx))
	require.Len(t, feed.sent, 2)
	assert.Equal(t, api.ListConversationsRequest{Archived: true, Search: "ann"}, feed.sent[1])

	require.NoError(t, vm.Apply(ctx, api.Change{Topic: bus.TopicList}))
	require.NoError(t, vm.Apply(ctx, api.Change{Topic: bus.TopicFavorites}))
	assert.Empty(t, d.listReqs, "the feed keeps the list current")
	assert.Equal(t, 1, d.statuses)
	assert.Equal(t, 1, d.favLoads)

	vm.DetachFeed()
	require.NoError(t, vm.RefreshConversations(ctx))
	assert.Len(t, d.listReqs, 1)
	assert.Len(t, feed.sent, 2)
}

func TestReceiveConversationsDropsLeftView(t *testing.T) {
	vm := NewViewModel(&fakeDaemon{})
	vm.SetSearch("ann")

	vm.ReceiveConversations(&api.ListConversationsResponse{Search: "an"})
	assert.Nil(t, vm.Conversations())
	select {
	case <-vm.RefreshCh():
		t.Fatal("stale snapshot signalled a refresh")
	default:
	}

	vm.ReceiveConversations(&api.ListConversationsResponse{Search: "ann", Mode: "in_search"})
	require.NotNil(t, vm.Conversations())
	assert.Equal(t, "in_search", vm.Conversations().Mode)
}

func TestFollowingFavoritesSkipsLoad(t *testing.T) {
	d := &fakeDaemon{}
	vm := NewViewModel(d)
	vm.SetFollowingFavorites(true)

	require.NoError(t, vm.Apply(context.Background(), api.Change{Topic: bus.TopicFavorites}))
	assert.Zero(t, d.favLoads)
	assert.Len(t, d.listReqs, 1)

	vm.ReceiveFavorites([]api.Favorite{{ID: "f9"}})
	require.Len(t, vm.Favorites(), 1)
	assert.Equal(t, "f9", vm.Favorites()[0].ID)
}

func TestFlashExpires(t *testing.T) {
	now := time.Unix(1000, 0)
	f := Flash{now: func() time.Time { return now }}
	f.Set("hello", time.Second)
	assert.Equal(t, "hello", f.Get())

	now = now.Add(2 * time.Second)
	assert.Empty(t, f.Get())
}
