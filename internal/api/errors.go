package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/sherry5707/Messaging/internal/command"
)

// toStatus maps command errors onto gRPC codes.
func toStatus(err error) error {
	var transient *command.TransientStoreError
	switch {
	case errors.Is(err, command.ErrInvalidArgument):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, command.ErrMissingEntity):
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.Is(err, command.ErrStopped), errors.As(err, &transient):
		return grpcstatus.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return grpcstatus.Error(codes.Canceled, err.Error())
	default:
		return grpcstatus.Error(codes.Internal, err.Error())
	}
}
