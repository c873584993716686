package grpccomm

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The chunk service is built from protobuf well-known types, so no
// generated stubs are needed. The chunk key of a put travels in request
// metadata.
const (
	serviceName    = "ravenfs.v1.ChunkService"
	chunkKeyHeader = "chunk-key"

	methodPutChunk    = "/" + serviceName + "/PutChunk"
	methodGetChunk    = "/" + serviceName + "/GetChunk"
	methodDeleteChunk = "/" + serviceName + "/DeleteChunk"
	methodHealth      = "/" + serviceName + "/Health"
)

type chunkServiceServer interface {
	PutChunk(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error)
	GetChunk(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	DeleteChunk(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Health(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
}

var chunkServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*chunkServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PutChunk", Handler: putChunkHandler},
		{MethodName: "GetChunk", Handler: getChunkHandler},
		{MethodName: "DeleteChunk", Handler: deleteChunkHandler},
		{MethodName: "Health", Handler: healthHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ravenfs/v1/chunk_service.proto",
}

func putChunkHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(chunkServiceServer).PutChunk(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPutChunk}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(chunkServiceServer).PutChunk(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func getChunkHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(chunkServiceServer).GetChunk(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetChunk}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(chunkServiceServer).GetChunk(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func deleteChunkHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(chunkServiceServer).DeleteChunk(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodDeleteChunk}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(chunkServiceServer).DeleteChunk(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func healthHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(chunkServiceServer).Health(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodHealth}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(chunkServiceServer).Health(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
