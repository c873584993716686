package grpccomm

import (
	"context"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/AnishMulay/ravenfs/internal/communication"
	"github.com/AnishMulay/ravenfs/internal/log_service"
)

// MaxMessageSize bounds a single message on the wire.
const MaxMessageSize = 64 << 20

// MaxChunkSize is the largest chunk payload that fits in one message once
// the BytesValue framing is added.
const MaxChunkSize = MaxMessageSize - 1<<10

type GRPCCommunicator struct {
	listenAddress string
	handler       communication.MessageHandler
	grpcServer    *grpc.Server
	ls            log_service.LogService

	clientLock sync.RWMutex
	clients    map[string]*grpc.ClientConn
	stopped    bool
	stopMutex  sync.Mutex
}

func NewGRPCCommunicator(addr string, ls log_service.LogService) *GRPCCommunicator {
	return &GRPCCommunicator{
		listenAddress: addr,
		ls:            ls,
		clients:       make(map[string]*grpc.ClientConn),
	}
}

func (c *GRPCCommunicator) Address() string {
	return c.listenAddress
}

func (c *GRPCCommunicator) Start(handler communication.MessageHandler) error {
	c.ls.Info(log_service.LogEvent{
		Message:  "Starting GRPC communicator",
		Metadata: map[string]any{"address": c.listenAddress},
	})

	c.handler = handler
	c.grpcServer = grpc.NewServer(
		grpc.MaxRecvMsgSize(MaxMessageSize),
		grpc.MaxSendMsgSize(MaxMessageSize),
	)
	c.grpcServer.RegisterService(&chunkServiceDesc, &grpcServer{comm: c})

	lis, err := net.Listen("tcp", c.listenAddress)
	if err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to listen on address",
			Metadata: map[string]any{"address": c.listenAddress, "error": err.Error()},
		})
		return communication.ErrGRPCListenFailed
	}
	c.listenAddress = lis.Addr().String()

	c.ls.Info(log_service.LogEvent{
		Message:  "GRPC communicator started successfully",
		Metadata: map[string]any{"address": c.listenAddress},
	})

	go func() {
		if err := c.grpcServer.Serve(lis); err != nil {
			c.ls.Error(log_service.LogEvent{
				Message:  "GRPC server error",
				Metadata: map[string]any{"address": c.listenAddress, "error": err.Error()},
			})
		}
	}()
	return nil
}

func (c *GRPCCommunicator) Stop() error {
	c.stopMutex.Lock()
	defer c.stopMutex.Unlock()

	if c.stopped {
		c.ls.Debug(log_service.LogEvent{
			Message:  "GRPC communicator already stopped, skipping",
			Metadata: map[string]any{"address": c.listenAddress},
		})
		return nil
	}

	c.ls.Info(log_service.LogEvent{
		Message:  "Stopping GRPC communicator",
		Metadata: map[string]any{"address": c.listenAddress},
	})

	if c.grpcServer != nil {
		c.grpcServer.GracefulStop()
	}

	c.clientLock.Lock()
	for to, conn := range c.clients {
		_ = conn.Close()
		delete(c.clients, to)
	}
	c.clientLock.Unlock()

	c.stopped = true
	c.ls.Info(log_service.LogEvent{
		Message:  "GRPC communicator stopped successfully",
		Metadata: map[string]any{"address": c.listenAddress},
	})
	return nil
}

func (c *GRPCCommunicator) connFor(to string) (*grpc.ClientConn, error) {
	c.clientLock.RLock()
	conn, ok := c.clients[to]
	c.clientLock.RUnlock()
	if ok {
		return conn, nil
	}

	c.clientLock.Lock()
	defer c.clientLock.Unlock()
	if conn, ok = c.clients[to]; ok {
		return conn, nil
	}

	c.ls.Debug(log_service.LogEvent{
		Message:  "Creating new GRPC client",
		Metadata: map[string]any{"to": to},
	})

	conn, err := grpc.NewClient(to,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(MaxMessageSize),
			grpc.MaxCallSendMsgSize(MaxMessageSize),
		),
	)
	if err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to create GRPC client",
			Metadata: map[string]any{"to": to, "error": err.Error()},
		})
		return nil, communication.ErrClientCreateFailed
	}
	c.clients[to] = conn
	return conn, nil
}

func (c *GRPCCommunicator) Send(ctx context.Context, to string, msg communication.Message) (*communication.Response, error) {
	c.ls.Debug(log_service.LogEvent{
		Message:  "Sending GRPC message",
		Metadata: map[string]any{"to": to, "type": msg.Type},
	})

	conn, err := c.connFor(to)
	if err != nil {
		return nil, err
	}

	var body []byte
	switch msg.Type {
	case communication.MessageTypeWriteChunk:
		key, ok := communication.ChunkKeyOf(msg.Payload)
		if !ok {
			return nil, communication.ErrInvalidPayload
		}
		data, _ := communication.ChunkDataOf(msg.Payload)
		ctx = metadata.AppendToOutgoingContext(ctx, chunkKeyHeader, key)
		err = conn.Invoke(ctx, methodPutChunk, wrapperspb.Bytes(data), new(emptypb.Empty))

	case communication.MessageTypeReadChunk:
		key, ok := communication.ChunkKeyOf(msg.Payload)
		if !ok {
			return nil, communication.ErrInvalidPayload
		}
		out := new(wrapperspb.BytesValue)
		err = conn.Invoke(ctx, methodGetChunk, wrapperspb.String(key), out)
		body = out.GetValue()

	case communication.MessageTypeDeleteChunk:
		key, ok := communication.ChunkKeyOf(msg.Payload)
		if !ok {
			return nil, communication.ErrInvalidPayload
		}
		err = conn.Invoke(ctx, methodDeleteChunk, wrapperspb.String(key), new(emptypb.Empty))

	case communication.MessageTypeHealth:
		out := new(wrapperspb.StringValue)
		err = conn.Invoke(ctx, methodHealth, new(emptypb.Empty), out)
		body = []byte(out.GetValue())

	default:
		return nil, communication.ErrUnsupportedMessage
	}

	if err != nil {
		code, deliverable := mapFromGRPCCode(status.Code(err))
		if !deliverable {
			c.ls.Warn(log_service.LogEvent{
				Message:  "Failed to send GRPC message",
				Metadata: map[string]any{"to": to, "type": msg.Type, "error": err.Error()},
			})
			return nil, fmt.Errorf("%w: %v", communication.ErrMessageSendFailed, err)
		}
		return &communication.Response{Code: code, Body: []byte(status.Convert(err).Message())}, nil
	}

	c.ls.Debug(log_service.LogEvent{
		Message:  "GRPC message sent successfully",
		Metadata: map[string]any{"to": to, "type": msg.Type},
	})

	return &communication.Response{Code: communication.CodeOK, Body: body}, nil
}

// mapFromGRPCCode reports whether the status is an application answer from
// the node (true) or a delivery failure (false).
func mapFromGRPCCode(code codes.Code) (communication.SandCode, bool) {
	switch code {
	case codes.NotFound:
		return communication.CodeNotFound, true
	case codes.InvalidArgument:
		return communication.CodeBadRequest, true
	case codes.Internal:
		return communication.CodeInternal, true
	default:
		return communication.CodeUnavailable, false
	}
}

func mapToGRPCError(resp *communication.Response) error {
	switch resp.Code {
	case communication.CodeOK:
		return nil
	case communication.CodeNotFound:
		return status.Error(codes.NotFound, "chunk not found")
	case communication.CodeBadRequest:
		return status.Error(codes.InvalidArgument, string(resp.Body))
	case communication.CodeUnavailable:
		return status.Error(codes.Unavailable, string(resp.Body))
	default:
		return status.Error(codes.Internal, string(resp.Body))
	}
}

type grpcServer struct {
	comm *GRPCCommunicator
}

func (s *grpcServer) dispatch(ctx context.Context, msg communication.Message) (*communication.Response, error) {
	if s.comm.handler == nil {
		return nil, status.Error(codes.Unavailable, communication.ErrHandlerNotSet.Error())
	}

	resp, err := s.comm.handler(ctx, msg)
	if err != nil || resp == nil {
		meta := map[string]any{"type": msg.Type}
		if err != nil {
			meta["error"] = err.Error()
		}
		s.comm.ls.Error(log_service.LogEvent{Message: "Message handler failed", Metadata: meta})
		return nil, status.Error(codes.Internal, communication.ErrMessageHandlerFailed.Error())
	}
	return resp, mapToGRPCError(resp)
}

func (s *grpcServer) PutChunk(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	keys := md.Get(chunkKeyHeader)
	if len(keys) == 0 || keys[0] == "" {
		return nil, status.Error(codes.InvalidArgument, "missing chunk key")
	}

	_, err := s.dispatch(ctx, communication.Message{
		Type:    communication.MessageTypeWriteChunk,
		Payload: communication.WriteChunkRequest{ChunkKey: keys[0], Data: in.GetValue()},
	})
	if err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func (s *grpcServer) GetChunk(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	resp, err := s.dispatch(ctx, communication.Message{
		Type:    communication.MessageTypeReadChunk,
		Payload: communication.ReadChunkRequest{ChunkKey: in.GetValue()},
	})
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bytes(resp.Body), nil
}

func (s *grpcServer) DeleteChunk(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	_, err := s.dispatch(ctx, communication.Message{
		Type:    communication.MessageTypeDeleteChunk,
		Payload: communication.DeleteChunkRequest{ChunkKey: in.GetValue()},
	})
	if err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func (s *grpcServer) Health(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	_, err := s.dispatch(ctx, communication.Message{
		Type:    communication.MessageTypeHealth,
		Payload: communication.HealthRequest{},
	})
	if err != nil {
		return nil, err
	}
	return wrapperspb.String("ok"), nil
}

var _ communication.Communicator = (*GRPCCommunicator)(nil)
