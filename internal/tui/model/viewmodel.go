package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sherry5707/Messaging/internal/api"
	"github.com/sherry5707/Messaging/internal/bus"
	"github.com/sherry5707/Messaging/internal/command"
)

const (
	flashDuration = 3 * time.Second
	errDuration   = 5 * time.Second

	// FavoritesLimit caps the favorites page.
	FavoritesLimit = 100
	messagesLimit  = 200
)

// Daemon is the part of the daemon client the view model drives.
type Daemon interface {
	Submit(ctx context.Context, cmd command.Command, wait bool) (*api.SubmitResponse, error)
	ListConversations(ctx context.Context, req api.ListConversationsRequest) (*api.ListConversationsResponse, error)
	ListFavorites(ctx context.Context, limit int) ([]api.Favorite, error)
	ListMessages(ctx context.Context, conversationID string, limit int) (*api.ListMessagesResponse, error)
	GetStatus(ctx context.Context) (*api.GetStatusResponse, error)
}

// ConversationFeed is an open stream of list snapshots whose view can be
// changed with Send.
type ConversationFeed interface {
	Send(req api.ListConversationsRequest) error
	Recv() (*api.ListConversationsResponse, error)
}

// ViewModel caches daemon state and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	daemon        Daemon
	feed          ConversationFeed
	followingFavs bool
	conversations *api.ListConversationsResponse
	favorites     []api.Favorite
	thread        api.Conversation
	messages      []api.Message
	status        *api.GetStatusResponse
	search        string
	archived      bool
	active        string
	Flash         Flash

	refreshCh chan struct{}
}

// NewViewModel creates a new view model connected to the daemon client.
func NewViewModel(d Daemon) *ViewModel {
	return &ViewModel{
		daemon:    d,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// SetSearch sets the query of the list view. Empty leaves search. The
// change takes effect with the next RefreshConversations.
func (vm *ViewModel) SetSearch(q string) {
	vm.mu.Lock()
	vm.search = q
	vm.mu.Unlock()
}

// Search returns the current query.
func (vm *ViewModel) Search() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.search
}

// SetArchived switches between the inbox and the archive.
func (vm *ViewModel) SetArchived(archived bool) {
	vm.mu.Lock()
	vm.archived = archived
	vm.mu.Unlock()
}

// Archived reports whether the archive is shown.
func (vm *ViewModel) Archived() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.archived
}

// ConversationsRequest returns the view the list should show. The search
// entry slot is shown outside search only.
func (vm *ViewModel) ConversationsRequest() api.ListConversationsRequest {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.requestLocked()
}

func (vm *ViewModel) requestLocked() api.ListConversationsRequest {
	return api.ListConversationsRequest{
		Archived:     vm.archived,
		Search:       vm.search,
		SearchBanner: vm.search == "",
	}
}

// LoadConversations fetches the sectioned list for the current search and
// archive selection once.
func (vm *ViewModel) LoadConversations(ctx context.Context) error {
	resp, err := vm.daemon.ListConversations(ctx, vm.ConversationsRequest())
	if err != nil {
		return err
	}
	vm.ReceiveConversations(resp)
	return nil
}

// RefreshConversations moves the attached feed to the current view, or
// loads the list once while no feed is attached.
func (vm *ViewModel) RefreshConversations(ctx context.Context) error {
	vm.mu.RLock()
	feed, req := vm.feed, vm.requestLocked()
	vm.mu.RUnlock()
	if feed == nil {
		return vm.LoadConversations(ctx)
	}
	return feed.Send(req)
}

// AttachFeed makes feed the source of list snapshots. opened is the view
// the feed was opened with; if the selection moved since, the feed is
// moved too.
func (vm *ViewModel) AttachFeed(feed ConversationFeed, opened api.ListConversationsRequest) error {
	vm.mu.Lock()
	vm.feed = feed
	cur := vm.requestLocked()
	vm.mu.Unlock()
	if cur != opened {
		return feed.Send(cur)
	}
	return nil
}

// DetachFeed falls back to one-shot loads.
func (vm *ViewModel) DetachFeed() {
	vm.mu.Lock()
	vm.feed = nil
	vm.mu.Unlock()
}

// Following reports whether a feed is attached.
func (vm *ViewModel) Following() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.feed != nil
}

// ReceiveConversations stores a snapshot unless it belongs to a view the
// user already left.
func (vm *ViewModel) ReceiveConversations(resp *api.ListConversationsResponse) {
	vm.mu.Lock()
	current := resp.Archived == vm.archived && resp.Search == vm.search
	if current {
		vm.conversations = resp
	}
	vm.mu.Unlock()
	if current {
		vm.signalRefresh()
	}
}

// LoadFavorites fetches the favorites page.
func (vm *ViewModel) LoadFavorites(ctx context.Context) error {
	favs, err := vm.daemon.ListFavorites(ctx, FavoritesLimit)
	if err != nil {
		return err
	}
	vm.ReceiveFavorites(favs)
	return nil
}

// ReceiveFavorites stores the favorites page.
func (vm *ViewModel) ReceiveFavorites(favs []api.Favorite) {
	vm.mu.Lock()
	vm.favorites = favs
	vm.mu.Unlock()
	vm.signalRefresh()
}

// SetFollowingFavorites records whether a favorites stream keeps the page
// current, which makes favorites hints a no-op.
func (vm *ViewModel) SetFollowingFavorites(v bool) {
	vm.mu.Lock()
	vm.followingFavs = v
	vm.mu.Unlock()
}

// LoadMessages fetches messages for a conversation and makes it active.
func (vm *ViewModel) LoadMessages(ctx context.Context, conversationID string) error {
	resp, err := vm.daemon.ListMessages(ctx, conversationID, messagesLimit)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.active = conversationID
	vm.thread = resp.Conversation
	vm.messages = resp.Messages
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// CloseConversation clears the active conversation.
func (vm *ViewModel) CloseConversation() {
	vm.mu.Lock()
	vm.active = ""
	vm.thread = api.Conversation{}
	vm.messages = nil
	vm.mu.Unlock()
}

// LoadStatus fetches the daemon status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.daemon.GetStatus(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = st
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Apply reloads whatever a change hint touches. Lists kept current by an
// attached stream are left to it.
func (vm *ViewModel) Apply(ctx context.Context, ch api.Change) error {
	vm.mu.RLock()
	feeding, followingFavs := vm.feed != nil, vm.followingFavs
	vm.mu.RUnlock()

	switch ch.Topic {
	case bus.TopicStatus:
		return vm.LoadStatus(ctx)
	case bus.TopicFavorites:
		if !followingFavs {
			if err := vm.LoadFavorites(ctx); err != nil {
				return err
			}
		}
		if feeding {
			return nil
		}
		return vm.LoadConversations(ctx)
	case bus.TopicConversation:
		if active := vm.ActiveConversation(); active != "" && active == ch.ConversationID {
			return vm.LoadMessages(ctx, active)
		}
		return nil
	default:
		if !feeding {
			if err := vm.LoadConversations(ctx); err != nil {
				return err
			}
		}
		return vm.LoadStatus(ctx)
	}
}

func (vm *ViewModel) submit(ctx context.Context, cmd command.Command, done string) error {
	resp, err := vm.daemon.Submit(ctx, cmd, true)
	if err != nil {
		vm.Flash.SetLevel(FlashErr, fmt.Sprintf("%s failed: %v", cmd.Kind, err), errDuration)
		vm.signalRefresh()
		return err
	}
	if resp.NoOp {
		vm.Flash.SetLevel(FlashWarn, "Nothing to change", flashDuration)
	} else {
		vm.Flash.Set(done, flashDuration)
	}
	vm.signalRefresh()
	return nil
}

// SetRead marks every message of c read or unread.
func (vm *ViewModel) SetRead(ctx context.Context, c api.Conversation, read bool) error {
	if read {
		return vm.submit(ctx, command.NewMarkAsRead(c.ID), "Marked as read")
	}
	return vm.submit(ctx, command.NewMarkAsUnread(c.ID), "Marked as unread")
}

// TogglePinned flips the pinned flag of c.
func (vm *ViewModel) TogglePinned(ctx context.Context, c api.Conversation) error {
	if c.Pinned {
		return vm.submit(ctx, command.NewChangePinned(c.ID, false), "Unpinned")
	}
	return vm.submit(ctx, command.NewChangePinned(c.ID, true), "Pinned")
}

// ToggleArchived flips the archived flag of c.
func (vm *ViewModel) ToggleArchived(ctx context.Context, c api.Conversation) error {
	if c.Archived {
		return vm.submit(ctx, command.NewChangeArchived(c.ID, false), "Moved to inbox")
	}
	return vm.submit(ctx, command.NewChangeArchived(c.ID, true), "Archived")
}

// ToggleFavorite saves m as a favorite or removes it.
func (vm *ViewModel) ToggleFavorite(ctx context.Context, m api.Message) error {
	if m.Favorite {
		return vm.submit(ctx, command.NewDeleteFavorite(m.ID), "Removed from favorites")
	}
	return vm.submit(ctx, command.NewSaveFavorite(m.ID), "Saved to favorites")
}

// RemoveFavorite drops a favorite from the favorites page.
func (vm *ViewModel) RemoveFavorite(ctx context.Context, f api.Favorite) error {
	return vm.submit(ctx, command.NewDeleteFavorite(f.MessageID), "Removed from favorites")
}

// Conversations returns the last loaded list.
func (vm *ViewModel) Conversations() *api.ListConversationsResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.conversations
}

// Favorites returns the last loaded favorites.
func (vm *ViewModel) Favorites() []api.Favorite {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.favorites
}

// Messages returns the messages of the active conversation.
func (vm *ViewModel) Messages() []api.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.messages
}

// Thread returns the open conversation as last loaded.
func (vm *ViewModel) Thread() api.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.thread
}

// ActiveConversation returns the id of the open conversation.
func (vm *ViewModel) ActiveConversation() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.active
}

// Status returns the last loaded daemon status.
func (vm *ViewModel) Status() *api.GetStatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}
