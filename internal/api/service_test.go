package api_test

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/sherry5707/Messaging/internal/api"
	"github.com/sherry5707/Messaging/internal/bus"
	"github.com/sherry5707/Messaging/internal/command"
	"github.com/sherry5707/Messaging/internal/listdata"
	"github.com/sherry5707/Messaging/internal/status"
	"github.com/sherry5707/Messaging/internal/store"
	"github.com/sherry5707/Messaging/internal/tui/client"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// grpc-go keeps a process-wide callback serializer alive.
		goleak.IgnoreTopFunction("google.golang.org/grpc/internal/grpcsync.(*CallbackSerializer).run"),
	)
}

type harness struct {
	db      *store.DB
	bus     *bus.Bus
	machine *status.Machine
	client  *client.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`INSERT INTO conversations (id, name, pinned, sort_timestamp, unread_count, snippet) VALUES
		('c1','Ana',1,1000,1,'see you at noon'),
		('c2','Bo',0,2000,0,'ok')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO messages (id, conversation_id, sender_name, content, sent_ts, received_ts, read) VALUES
		('m1','c1','Ana','see you at noon',900,1000,0)`)
	require.NoError(t, err)

	logger := zap.NewNop()
	b := bus.New()
	machine := status.NewMachine(b)
	ex := command.NewExecutor(db, b, nil, command.DefaultConfig(), logger)
	_, err = ex.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, machine.Transition(status.Replaying))
	require.NoError(t, machine.Transition(status.Ready))

	lists := listdata.NewSource(db, b, listdata.Options{}, logger)
	svc := api.NewCommandService("test", ex, db, lists, machine, b, logger)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	api.Register(srv, svc)
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ex.Stop(ctx)
	})
	return &harness{db: db, bus: b, machine: machine, client: client.NewFromConn(conn)}
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSubmitWaitAppliesCommand(t *testing.T) {
	h := newHarness(t)
	ctx := ctxT(t)

	resp, err := h.client.Submit(ctx, command.NewMarkAsRead("c1"), true)
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.True(t, resp.Waited)
	assert.False(t, resp.NoOp)

	c, err := h.db.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, c.UnreadCount)
}

func TestSubmitMissingMessageIsNotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.Submit(ctxT(t), command.NewSaveFavorite("nope"), true)
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, grpcstatus.Code(err))
}

func TestSubmitInvalidIsInvalidArgument(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.Submit(ctxT(t), command.NewMarkAsReadList(nil), false)
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, grpcstatus.Code(err))
}

func TestSubmitRejectedWhileDraining(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.machine.Transition(status.Draining))

	_, err := h.client.Submit(ctxT(t), command.NewMarkAsRead("c1"), false)
	assert.Equal(t, codes.Unavailable, grpcstatus.Code(err))
}

func TestListConversationsLayout(t *testing.T) {
	h := newHarness(t)

	resp, err := h.client.ListConversations(ctxT(t), api.ListConversationsRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Conversations, 2)
	assert.Equal(t, "c1", resp.Conversations[0].ID)
	assert.Equal(t, 0, resp.PinnedLastIndex)
	require.NotEmpty(t, resp.Items)
	assert.Equal(t, "row", resp.Items[0].Kind)
	assert.Equal(t, 0, resp.Items[0].Row)
	assert.Nil(t, resp.Favorite)

	resp, err = h.client.ListConversations(ctxT(t), api.ListConversationsRequest{Search: "noon"})
	require.NoError(t, err)
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, -1, resp.PinnedLastIndex)
}

func TestFavoritesAndMessages(t *testing.T) {
	h := newHarness(t)
	ctx := ctxT(t)

	_, err := h.client.Submit(ctx, command.NewSaveFavorite("m1"), true)
	require.NoError(t, err)

	favs, err := h.client.ListFavorites(ctx, 10)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, "m1", favs[0].MessageID)
	assert.Equal(t, "see you at noon", favs[0].Content)

	thread, err := h.client.ListMessages(ctx, "c1", 0)
	require.NoError(t, err)
	assert.Equal(t, "Ana", thread.Conversation.Name)
	require.Len(t, thread.Messages, 1)
	assert.True(t, thread.Messages[0].Favorite)

	resp, err := h.client.ListConversations(ctx, api.ListConversationsRequest{})
	require.NoError(t, err)
	require.NotNil(t, resp.Favorite)
	assert.Equal(t, "favorites", resp.Items[0].Kind)
}

func TestListMessagesRequiresConversation(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.ListMessages(ctxT(t), "", 0)
	assert.Equal(t, codes.InvalidArgument, grpcstatus.Code(err))
}

func TestListMessagesUnknownConversation(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.ListMessages(ctxT(t), "nope", 0)
	assert.Equal(t, codes.NotFound, grpcstatus.Code(err))
}

func TestListConversationsSearchBanner(t *testing.T) {
	h := newHarness(t)
	ctx := ctxT(t)

	resp, err := h.client.ListConversations(ctx, api.ListConversationsRequest{SearchBanner: true})
	require.NoError(t, err)
	require.Len(t, resp.Items, 5)
	assert.Equal(t, api.Item{Kind: "search_banner", Row: -1}, resp.Items[0])
	assert.Equal(t, "row", resp.Items[1].Kind)
	assert.Equal(t, 0, resp.Items[1].Row)
	assert.Equal(t, "not_in_search", resp.Mode)

	resp, err = h.client.ListConversations(ctx, api.ListConversationsRequest{Search: "noon", SearchBanner: true})
	require.NoError(t, err)
	// Banner, earlier header, c1, count.
	require.Len(t, resp.Items, 4)
	assert.Equal(t, "search_banner", resp.Items[0].Kind)
	assert.Equal(t, "in_search", resp.Mode)

	resp, err = h.client.ListConversations(ctx, api.ListConversationsRequest{})
	require.NoError(t, err)
	for _, item := range resp.Items {
		assert.NotEqual(t, "search_banner", item.Kind)
	}
}

func TestListConversationsDividers(t *testing.T) {
	h := newHarness(t)
	now := time.Now().UnixMilli()
	_, err := h.db.Exec(`UPDATE conversations SET sort_timestamp = ? WHERE id = 'c2'`, now)
	require.NoError(t, err)

	resp, err := h.client.ListConversations(ctxT(t), api.ListConversationsRequest{})
	require.NoError(t, err)
	// Pinned c1, today header, c2, count.
	kinds := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		kinds = append(kinds, item.Kind)
	}
	require.Equal(t, []string{"row", "header_today", "row", "count"}, kinds)
	assert.False(t, resp.Items[0].Divider, "last pinned row ends its group")
	assert.True(t, resp.Items[1].Divider, "header below pinned rows")
	assert.False(t, resp.Items[2].Divider, "last today row ends its group")
	assert.Equal(t, 1, resp.TodayLastIndex)
}

// nextList reads snapshots until match accepts one.
func nextList(t *testing.T, feed *client.ConversationFeed, match func(*api.ListConversationsResponse) bool) *api.ListConversationsResponse {
	t.Helper()
	for {
		resp, err := feed.Recv()
		require.NoError(t, err)
		if match(resp) {
			return resp
		}
	}
}

func TestFollowConversations(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(ctxT(t))
	defer cancel()

	feed, err := h.client.FollowConversations(ctx, api.ListConversationsRequest{SearchBanner: true})
	require.NoError(t, err)

	first := nextList(t, feed, func(*api.ListConversationsResponse) bool { return true })
	assert.Equal(t, "not_in_search", first.Mode)
	assert.Len(t, first.Conversations, 2)
	assert.Equal(t, "search_banner", first.Items[0].Kind)

	require.NoError(t, feed.Send(api.ListConversationsRequest{Search: "noon"}))
	found := nextList(t, feed, func(r *api.ListConversationsResponse) bool { return r.Search == "noon" })
	assert.Equal(t, "in_search", found.Mode)
	require.Len(t, found.Conversations, 1)
	assert.Equal(t, "c1", found.Conversations[0].ID)
	assert.NotEqual(t, "search_banner", found.Items[0].Kind)
	assert.Greater(t, found.Generation, first.Generation)

	require.NoError(t, feed.Send(api.ListConversationsRequest{SearchBanner: true}))
	back := nextList(t, feed, func(r *api.ListConversationsResponse) bool { return r.Search == "" })
	assert.Equal(t, "back_from_search", back.Mode)
	assert.Len(t, back.Conversations, 2)

	_, err = h.client.Submit(ctx, command.NewChangePinned("c2", true), true)
	require.NoError(t, err)
	pinned := nextList(t, feed, func(r *api.ListConversationsResponse) bool {
		for _, c := range r.Conversations {
			if c.ID == "c2" && c.Pinned {
				return true
			}
		}
		return false
	})
	assert.Equal(t, "not_in_search", pinned.Mode)
	assert.Equal(t, 1, pinned.PinnedLastIndex)

	require.NoError(t, feed.Send(api.ListConversationsRequest{Archived: true}))
	archived := nextList(t, feed, func(r *api.ListConversationsResponse) bool { return r.Archived })
	assert.Empty(t, archived.Conversations)
	cancel()
}

func TestFollowFavorites(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(ctxT(t))
	defer cancel()

	lists := make(chan []api.Favorite, 8)
	done := make(chan error, 1)
	go func() {
		done <- h.client.FollowFavorites(ctx, 10, func(favs []api.Favorite) error {
			lists <- favs
			return nil
		})
	}()

	select {
	case favs := <-lists:
		assert.Empty(t, favs)
	case <-ctx.Done():
		t.Fatal("no initial favorites")
	}

	_, err := h.client.Submit(ctx, command.NewSaveFavorite("m1"), true)
	require.NoError(t, err)
	for {
		select {
		case favs := <-lists:
			if len(favs) == 0 {
				continue
			}
			require.Len(t, favs, 1)
			assert.Equal(t, "m1", favs[0].MessageID)
			cancel()
			assert.NoError(t, <-done)
			return
		case <-ctx.Done():
			t.Fatal("favorite not streamed")
		}
	}
}

func TestGetStatus(t *testing.T) {
	h := newHarness(t)

	resp, err := h.client.GetStatus(ctxT(t))
	require.NoError(t, err)
	assert.Equal(t, "test", resp.Profile)
	assert.Equal(t, "READY", resp.Status)
	assert.Equal(t, 0, resp.Pending)
}

func TestWatchChanges(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(ctxT(t))
	defer cancel()

	changes := make(chan api.Change, 8)
	done := make(chan error, 1)
	go func() {
		done <- h.client.Watch(ctx, api.WatchRequest{ConversationID: "c2"}, func(c api.Change) error {
			changes <- c
			return nil
		})
	}()

	// Keep pinning until the stream is subscribed and a hint arrives.
	deadline := time.After(3 * time.Second)
	for pinned := true; ; pinned = !pinned {
		_, err := h.client.Submit(ctx, command.NewChangePinned("c2", pinned), true)
		require.NoError(t, err)
		select {
		case c := <-changes:
			assert.Equal(t, bus.TopicConversation, c.Topic)
			assert.Equal(t, "c2", c.ConversationID)
			assert.NotEmpty(t, c.ID)
			cancel()
			assert.NoError(t, <-done)
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("no change streamed")
		}
	}
}
