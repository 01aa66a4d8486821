package api

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sherry5707/Messaging/internal/bus"
	"github.com/sherry5707/Messaging/internal/command"
	"github.com/sherry5707/Messaging/internal/listdata"
	"github.com/sherry5707/Messaging/internal/metrics"
	"github.com/sherry5707/Messaging/internal/params"
	"github.com/sherry5707/Messaging/internal/status"
	"github.com/sherry5707/Messaging/internal/store"
)

// Executor is the command side the service submits to.
type Executor interface {
	Submit(cmd command.Command, onFailure command.FailureFunc) error
	SubmitWait(ctx context.Context, cmd command.Command) (command.Result, error)
	Pending() int
}

// CommandService implements messaging.v1.CommandService.
type CommandService struct {
	profile   string
	startedAt time.Time
	exec      Executor
	db        *store.DB
	lists     *listdata.Source
	machine   *status.Machine
	bus       *bus.Bus
	logger    *zap.Logger
}

// NewCommandService creates the service. Unary list calls compute one
// snapshot on an unbound list; every follow stream binds its own.
func NewCommandService(profile string, exec Executor, db *store.DB, lists *listdata.Source, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *CommandService {
	return &CommandService{
		profile:   profile,
		startedAt: time.Now(),
		exec:      exec,
		db:        db,
		lists:     lists,
		machine:   machine,
		bus:       b,
		logger:    logger,
	}
}

func (s *CommandService) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SubmitRequest
	if err := Decode(in, &req); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	if !s.machine.Accepting() {
		return nil, grpcstatus.Errorf(codes.Unavailable, "daemon is %s", s.machine.Current())
	}
	kind, err := command.ParseKind(req.Kind)
	if err != nil {
		return nil, toStatus(err)
	}
	ps := params.New()
	if req.Params != "" {
		if ps, err = params.Parse([]byte(req.Params)); err != nil {
			return nil, grpcstatus.Errorf(codes.InvalidArgument, "params: %v", err)
		}
	}
	cmd, err := command.FromParams(kind, ps)
	if err != nil {
		return nil, toStatus(err)
	}

	resp := SubmitResponse{Accepted: true}
	if req.Wait {
		res, err := s.exec.SubmitWait(ctx, cmd)
		if err != nil {
			return nil, toStatus(err)
		}
		resp.Waited = true
		resp.Affected = res.Affected
		resp.NoOp = res.NoOp
	} else {
		err := s.exec.Submit(cmd, func(c command.Command, err error) {
			s.logger.Warn("submitted command failed",
				zap.String("kind", string(c.Kind)),
				zap.Error(err),
			)
		})
		if err != nil {
			return nil, toStatus(err)
		}
	}
	resp.Pending = s.exec.Pending()
	return Encode(resp)
}

func (s *CommandService) ListConversations(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ListConversationsRequest
	if err := Decode(in, &req); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	snap, err := s.lists.Conversations().LoadFor(ctx, req.Search, req.Archived, req.SearchBanner)
	if err != nil {
		return nil, toStatus(err)
	}
	return Encode(snapshotToWire(snap))
}

func (s *CommandService) ListFavorites(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ListFavoritesRequest
	if err := Decode(in, &req); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	favs, err := s.db.ListFavorites(ctx, req.Limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list favorites: %v", err)
	}
	resp := ListFavoritesResponse{Favorites: make([]Favorite, 0, len(favs))}
	for _, f := range favs {
		resp.Favorites = append(resp.Favorites, favoriteToWire(f))
	}
	return Encode(resp)
}

func (s *CommandService) ListMessages(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ListMessagesRequest
	if err := Decode(in, &req); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	if req.ConversationID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "conversation_id is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	c, err := s.db.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "get conversation: %v", err)
	}
	if c == nil {
		return nil, grpcstatus.Errorf(codes.NotFound, "conversation %s not found", req.ConversationID)
	}
	msgs, err := s.db.ListMessages(ctx, req.ConversationID, limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list messages: %v", err)
	}
	resp := ListMessagesResponse{
		Conversation: conversationToWire(*c),
		Messages:     make([]Message, 0, len(msgs)),
	}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, messageToWire(m))
	}
	return Encode(resp)
}

func (s *CommandService) GetStatus(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	resp := GetStatusResponse{
		Profile:  s.profile,
		Status:   string(s.machine.Current()),
		SinceMS:  s.machine.Since().UnixMilli(),
		UptimeMS: time.Since(s.startedAt).Milliseconds(),
		Pending:  s.exec.Pending(),
	}
	if sum, err := s.db.UnreadSummary(ctx); err == nil {
		resp.UnreadConversations = sum.Conversations
		resp.UnreadMessages = sum.Messages
	}
	return Encode(resp)
}

func (s *CommandService) WatchChanges(in *structpb.Struct, stream grpc.ServerStream) error {
	var req WatchRequest
	if err := Decode(in, &req); err != nil {
		return grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	var sub *bus.Subscription
	if req.ConversationID != "" {
		sub = s.bus.SubscribeConversation(req.ConversationID)
	} else {
		sub = s.bus.Subscribe(req.Topic)
	}
	defer sub.Close()

	metrics.WatchStreamsActive.Inc()
	defer metrics.WatchStreamsActive.Dec()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.Ready():
			for _, evt := range sub.Drain() {
				out, err := Encode(changeToWire(evt))
				if err != nil {
					return grpcstatus.Errorf(codes.Internal, "%v", err)
				}
				if err := stream.SendMsg(out); err != nil {
					return err
				}
			}
		}
	}
}

// FollowConversations binds a list for the lifetime of the stream and sends
// every snapshot it delivers. Requests received after the first move the
// list to a new view; snapshots computed for an older view are dropped by
// the list.
func (s *CommandService) FollowConversations(in *structpb.Struct, stream grpc.ServerStream) error {
	var req ListConversationsRequest
	if err := Decode(in, &req); err != nil {
		return grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	list := s.lists.Conversations()
	moveTo(list, req)

	ctx := stream.Context()
	latest := make(chan listdata.Snapshot, 1)
	if err := list.Bind(ctx, func(snap listdata.Snapshot) { offer(latest, snap, keepBackFromSearch) }); err != nil {
		return grpcstatus.Errorf(codes.Internal, "bind list: %v", err)
	}
	defer list.Unbind()

	metrics.WatchStreamsActive.Inc()
	defer metrics.WatchStreamsActive.Dec()

	views := make(chan error, 1)
	go func(errc chan<- error) {
		for {
			next := new(structpb.Struct)
			if err := stream.RecvMsg(next); err != nil {
				errc <- err
				return
			}
			var req ListConversationsRequest
			if err := Decode(next, &req); err != nil {
				errc <- grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
				return
			}
			moveTo(list, req)
		}
	}(views)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-views:
			if errors.Is(err, io.EOF) {
				// The client is done changing views but still listens.
				views = nil
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		case snap := <-latest:
			out, err := Encode(snapshotToWire(snap))
			if err != nil {
				return grpcstatus.Errorf(codes.Internal, "%v", err)
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		}
	}
}

// moveTo applies a requested view to a bound list.
func moveTo(list *listdata.ConversationList, req ListConversationsRequest) {
	list.SetArchived(req.Archived)
	list.SetSearchBannerVisible(req.SearchBanner)
	if req.Search != "" {
		list.SetSearch(req.Search)
		return
	}
	list.ExitSearch()
}

// FollowFavorites sends the favorites now and after every favorites change.
func (s *CommandService) FollowFavorites(in *structpb.Struct, stream grpc.ServerStream) error {
	var req ListFavoritesRequest
	if err := Decode(in, &req); err != nil {
		return grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	list := s.lists.Favorites(req.Limit)

	ctx := stream.Context()
	latest := make(chan []store.Favorite, 1)
	if err := list.Bind(ctx, func(favs []store.Favorite) { offer(latest, favs, nil) }); err != nil {
		return grpcstatus.Errorf(codes.Internal, "bind favorites: %v", err)
	}
	defer list.Unbind()

	metrics.WatchStreamsActive.Inc()
	defer metrics.WatchStreamsActive.Dec()

	for {
		select {
		case <-ctx.Done():
			return nil
		case favs := <-latest:
			resp := ListFavoritesResponse{Favorites: make([]Favorite, 0, len(favs))}
			for _, f := range favs {
				resp.Favorites = append(resp.Favorites, favoriteToWire(f))
			}
			out, err := Encode(resp)
			if err != nil {
				return grpcstatus.Errorf(codes.Internal, "%v", err)
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		}
	}
}

// offer hands v to the sending loop. A value the loop has not taken yet is
// replaced, after merge folds it into v when merge is set. Only one
// goroutine may offer on ch.
func offer[T any](ch chan T, v T, merge func(old, v T) T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case old := <-ch:
			if merge != nil {
				v = merge(old, v)
			}
		default:
		}
	}
}

// keepBackFromSearch carries the one-shot back-from-search mode over to a
// snapshot of the same view that replaces it before it was sent.
func keepBackFromSearch(old, snap listdata.Snapshot) listdata.Snapshot {
	if old.Mode == listdata.BackFromSearch && old.Generation == snap.Generation {
		snap.Mode = listdata.BackFromSearch
	}
	return snap
}

func changeToWire(evt bus.Event) Change {
	c := Change{
		ID:             uuid.NewString(),
		Topic:          evt.Topic,
		ConversationID: evt.ConversationID,
		TimestampMS:    evt.Timestamp.UnixMilli(),
	}
	if sc, ok := evt.Payload.(status.StatusChange); ok {
		c.Status = string(sc.To)
	}
	return c
}
