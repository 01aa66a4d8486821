package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "messaging.v1.CommandService"

// Full method names.
const (
	MethodSubmit            = "/" + ServiceName + "/Submit"
	MethodListConversations = "/" + ServiceName + "/ListConversations"
	MethodListFavorites     = "/" + ServiceName + "/ListFavorites"
	MethodListMessages      = "/" + ServiceName + "/ListMessages"
	MethodGetStatus         = "/" + ServiceName + "/GetStatus"
	MethodWatchChanges        = "/" + ServiceName + "/WatchChanges"
	MethodFollowConversations = "/" + ServiceName + "/FollowConversations"
	MethodFollowFavorites     = "/" + ServiceName + "/FollowFavorites"
)

// CommandServer is the server side of messaging.v1.CommandService. Every
// message is a google.protobuf.Struct holding one of the wire types of this
// package.
type CommandServer interface {
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListConversations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListFavorites(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchChanges(*structpb.Struct, grpc.ServerStream) error
	// FollowConversations pushes list snapshots. The client may send further
	// ListConversationsRequest messages to change the view.
	FollowConversations(*structpb.Struct, grpc.ServerStream) error
	FollowFavorites(*structpb.Struct, grpc.ServerStream) error
}

type unaryCall func(CommandServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryCall) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CommandServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CommandServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

type streamCall func(CommandServer, *structpb.Struct, grpc.ServerStream) error

// streaming builds a stream whose first client message is the request.
func streaming(name string, call streamCall, clientStreams bool) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName: name,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(structpb.Struct)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return call(srv.(CommandServer), in, stream)
		},
		ServerStreams: true,
		ClientStreams: clientStreams,
	}
}

// ServiceDesc describes messaging.v1.CommandService for grpc.Server and
// for clients opening streams.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CommandServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Submit", CommandServer.Submit),
		unary("ListConversations", CommandServer.ListConversations),
		unary("ListFavorites", CommandServer.ListFavorites),
		unary("ListMessages", CommandServer.ListMessages),
		unary("GetStatus", CommandServer.GetStatus),
	},
	Streams: []grpc.StreamDesc{
		streaming("WatchChanges", CommandServer.WatchChanges, false),
		streaming("FollowConversations", CommandServer.FollowConversations, true),
		streaming("FollowFavorites", CommandServer.FollowFavorites, false),
	},
	Metadata: "messaging/v1/command.proto",
}

// Register adds srv to s.
func Register(s grpc.ServiceRegistrar, srv CommandServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// StreamDesc returns the descriptor of a named stream, or nil.
func StreamDesc(name string) *grpc.StreamDesc {
	for i := range ServiceDesc.Streams {
		if ServiceDesc.Streams[i].StreamName == name {
			return &ServiceDesc.Streams[i]
		}
	}
	return nil
}
