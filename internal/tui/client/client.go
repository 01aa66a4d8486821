package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sherry5707/Messaging/internal/api"
	"github.com/sherry5707/Messaging/internal/command"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn grpc.ClientConnInterface
	raw  *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn, raw: conn}, nil
}

// NewFromConn wraps an existing connection. Close leaves it open.
func NewFromConn(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	in, err := api.Encode(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return err
	}
	return api.Decode(out, resp)
}

// Submit sends cmd. With wait set the daemon answers after the
// transactional step and the response carries its result.
func (c *Client) Submit(ctx context.Context, cmd command.Command, wait bool) (*api.SubmitResponse, error) {
	ps, err := cmd.Params.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var resp api.SubmitResponse
	req := api.SubmitRequest{Kind: string(cmd.Kind), Params: string(ps), Wait: wait}
	if err := c.call(ctx, api.MethodSubmit, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListConversations returns the sectioned conversation list.
func (c *Client) ListConversations(ctx context.Context, req api.ListConversationsRequest) (*api.ListConversationsResponse, error) {
	var resp api.ListConversationsResponse
	if err := c.call(ctx, api.MethodListConversations, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListFavorites returns favorites, newest first.
func (c *Client) ListFavorites(ctx context.Context, limit int) ([]api.Favorite, error) {
	var resp api.ListFavoritesResponse
	if err := c.call(ctx, api.MethodListFavorites, api.ListFavoritesRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return resp.Favorites, nil
}

// ListMessages returns a conversation with its newest messages, oldest
// first.
func (c *Client) ListMessages(ctx context.Context, conversationID string, limit int) (*api.ListMessagesResponse, error) {
	var resp api.ListMessagesResponse
	req := api.ListMessagesRequest{ConversationID: conversationID, Limit: limit}
	if err := c.call(ctx, api.MethodListMessages, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetStatus returns the daemon status.
func (c *Client) GetStatus(ctx context.Context) (*api.GetStatusResponse, error) {
	var resp api.GetStatusResponse
	if err := c.call(ctx, api.MethodGetStatus, api.GetStatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Watch streams change hints to fn until ctx ends, the stream fails or fn
// returns an error. A cancelled ctx returns nil.
func (c *Client) Watch(ctx context.Context, req api.WatchRequest, fn func(api.Change) error) error {
	stream, err := c.open(ctx, "WatchChanges", api.MethodWatchChanges, req, true)
	if err != nil {
		return err
	}
	return receive(ctx, stream, fn)
}

// FollowFavorites streams the favorites list to fn, once on open and again
// after every favorites change. It ends like Watch.
func (c *Client) FollowFavorites(ctx context.Context, limit int, fn func([]api.Favorite) error) error {
	stream, err := c.open(ctx, "FollowFavorites", api.MethodFollowFavorites, api.ListFavoritesRequest{Limit: limit}, true)
	if err != nil {
		return err
	}
	return receive(ctx, stream, func(resp api.ListFavoritesResponse) error {
		return fn(resp.Favorites)
	})
}

// FollowConversations opens a stream of list snapshots for the view in req.
// The stream lives until ctx ends.
func (c *Client) FollowConversations(ctx context.Context, req api.ListConversationsRequest) (*ConversationFeed, error) {
	stream, err := c.open(ctx, "FollowConversations", api.MethodFollowConversations, req, false)
	if err != nil {
		return nil, err
	}
	return &ConversationFeed{stream: stream}, nil
}

// ConversationFeed is an open FollowConversations stream.
type ConversationFeed struct {
	stream grpc.ClientStream
	sendMu sync.Mutex
}

// Send switches the feed to another view. Snapshots for the old view that
// are already on the wire may still arrive.
func (f *ConversationFeed) Send(req api.ListConversationsRequest) error {
	in, err := api.Encode(req)
	if err != nil {
		return err
	}
	f.sendMu.Lock()
	defer f.sendMu.Unlock()
	return f.stream.SendMsg(in)
}

// Recv blocks for the next snapshot. It must be called from one goroutine.
func (f *ConversationFeed) Recv() (*api.ListConversationsResponse, error) {
	out := new(structpb.Struct)
	if err := f.stream.RecvMsg(out); err != nil {
		return nil, err
	}
	var resp api.ListConversationsResponse
	if err := api.Decode(out, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) open(ctx context.Context, name, method string, req any, closeSend bool) (grpc.ClientStream, error) {
	desc := api.StreamDesc(name)
	if desc == nil {
		return nil, fmt.Errorf("unknown stream %s", name)
	}
	in, err := api.Encode(req)
	if err != nil {
		return nil, err
	}
	stream, err := c.conn.NewStream(ctx, desc, method)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if closeSend {
		if err := stream.CloseSend(); err != nil {
			return nil, err
		}
	}
	return stream, nil
}

// receive decodes stream messages into fn until the stream ends. A clean
// end or a cancelled ctx returns nil.
func receive[T any](ctx context.Context, stream grpc.ClientStream, fn func(T) error) error {
	for {
		out := new(structpb.Struct)
		if err := stream.RecvMsg(out); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		var v T
		if err := api.Decode(out, &v); err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
}
