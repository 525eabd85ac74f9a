package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/rpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

var _ rpc.RecordsServer = (*GRPCServer)(nil)

func (s *GRPCServer) Ping(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) CreateRecord(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}
	req, err := rpc.ParseCreateRequest(in)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	id, err := s.records.Create(ctx, userID, req.Collection, rpc.IdempotencyKey(ctx), req.Payload)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	s.logger.Info(ctx, "record created", "collection", req.Collection, "id", id)
	return rpc.IDMessage(id), nil
}

func (s *GRPCServer) UpdateRecord(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}
	req, err := rpc.ParseUpdateRequest(in)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	if err := s.records.Update(ctx, userID, req.Collection, req.ID, req.Payload); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) DeleteRecord(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}
	req, err := rpc.ParseDeleteRequest(in)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	if err := s.records.Delete(ctx, userID, req.Collection, req.ID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) PresignUpload(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}
	req, err := rpc.ParsePresignRequest(in)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	up, err := s.records.PresignUpload(ctx, userID, req.Folder, req.ContentType)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	out, err := rpc.PresignResponse{UploadURL: up.URL, Path: up.Path, PublicURL: up.PublicURL}.Message()
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return out, nil
}

func (s *GRPCServer) DeleteBlob(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}
	path, err := rpc.ParsePath(in)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	if err := s.records.DeleteBlob(ctx, userID, path); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &emptypb.Empty{}, nil
}

// toStatus maps service errors to gRPC status codes. Unexpected errors are
// logged and reported as Internal without detail.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.PermissionDenied, "permission denied")
	default:
		s.logger.Error(ctx, "request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}
