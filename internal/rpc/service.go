// Package rpc declares the tripkeeper.v1.Records gRPC service shared by the
// client and the reference server. Messages are protobuf well-known types:
// requests and responses are google.protobuf.Struct values whose fields are
// described by the typed helpers in messages.go.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "tripkeeper.v1.Records"

const (
	MethodPing          = "/" + ServiceName + "/Ping"
	MethodCreateRecord  = "/" + ServiceName + "/CreateRecord"
	MethodUpdateRecord  = "/" + ServiceName + "/UpdateRecord"
	MethodDeleteRecord  = "/" + ServiceName + "/DeleteRecord"
	MethodPresignUpload = "/" + ServiceName + "/PresignUpload"
	MethodDeleteBlob    = "/" + ServiceName + "/DeleteBlob"
)

// RecordsServer is the server API of the Records service.
type RecordsServer interface {
	Ping(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	CreateRecord(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateRecord(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	DeleteRecord(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	PresignUpload(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteBlob(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

// RegisterRecordsServer registers srv on s.
func RegisterRecordsServer(s grpc.ServiceRegistrar, srv RecordsServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc is the grpc.ServiceDesc of the Records service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RecordsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: unary(MethodPing, newEmpty, RecordsServer.Ping)},
		{MethodName: "CreateRecord", Handler: unary(MethodCreateRecord, newStruct, RecordsServer.CreateRecord)},
		{MethodName: "UpdateRecord", Handler: unary(MethodUpdateRecord, newStruct, RecordsServer.UpdateRecord)},
		{MethodName: "DeleteRecord", Handler: unary(MethodDeleteRecord, newStruct, RecordsServer.DeleteRecord)},
		{MethodName: "PresignUpload", Handler: unary(MethodPresignUpload, newStruct, RecordsServer.PresignUpload)},
		{MethodName: "DeleteBlob", Handler: unary(MethodDeleteBlob, newStruct, RecordsServer.DeleteBlob)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tripkeeper/v1/records.proto",
}

func newEmpty() *emptypb.Empty { return new(emptypb.Empty) }
func newStruct() *structpb.Struct { return new(structpb.Struct) }

// unary builds a method handler the way protoc-gen-go-grpc does, for any
// request/response pair.
func unary[Req, Resp proto.Message](
	fullMethod string,
	newReq func() Req,
	call func(RecordsServer, context.Context, Req) (Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RecordsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RecordsServer), ctx, req.(Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RecordsClient is the client API of the Records service.
type RecordsClient struct {
	cc grpc.ClientConnInterface
}

func NewRecordsClient(cc grpc.ClientConnInterface) *RecordsClient {
	return &RecordsClient{cc: cc}
}

func (c *RecordsClient) Ping(ctx context.Context, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, MethodPing, &emptypb.Empty{}, new(emptypb.Empty), opts...)
}

func (c *RecordsClient) CreateRecord(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodCreateRecord, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RecordsClient) UpdateRecord(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, MethodUpdateRecord, in, new(emptypb.Empty), opts...)
}

func (c *RecordsClient) DeleteRecord(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, MethodDeleteRecord, in, new(emptypb.Empty), opts...)
}

func (c *RecordsClient) PresignUpload(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodPresignUpload, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RecordsClient) DeleteBlob(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, MethodDeleteBlob, in, new(emptypb.Empty), opts...)
}
