package node

import (
	"context"
	"errors"

	"github.com/AnishMulay/ravenfs/internal/chunk_service"
	"github.com/AnishMulay/ravenfs/internal/communication"
	"github.com/AnishMulay/ravenfs/internal/log_service"
	"github.com/AnishMulay/ravenfs/internal/metrics"
	"github.com/AnishMulay/ravenfs/internal/server"
)

// NodeServer exposes a local chunk store to the gateway over a
// communicator.
type NodeServer struct {
	comm    communication.Communicator
	cs      chunk_service.ChunkService
	ls      log_service.LogService
	metrics *metrics.Metrics
}

func NewNodeServer(comm communication.Communicator, cs chunk_service.ChunkService, ls log_service.LogService, m *metrics.Metrics) *NodeServer {
	return &NodeServer{comm: comm, cs: cs, ls: ls, metrics: m}
}

func (s *NodeServer) Start() error {
	s.ls.Info(log_service.LogEvent{
		Message:  "Starting storage node",
		Metadata: map[string]any{"address": s.comm.Address()},
	})
	if err := s.comm.Start(s.handleMessage); err != nil {
		return errors.Join(server.ErrServerStartFailed, err)
	}
	return nil
}

func (s *NodeServer) Stop() error {
	s.ls.Info(log_service.LogEvent{Message: "Stopping storage node"})
	if err := s.comm.Stop(); err != nil {
		return errors.Join(server.ErrServerStopFailed, err)
	}
	return nil
}

func (s *NodeServer) Address() string {
	return s.comm.Address()
}

func (s *NodeServer) handleMessage(ctx context.Context, msg communication.Message) (*communication.Response, error) {
	switch msg.Type {
	case communication.MessageTypeWriteChunk:
		key, ok := communication.ChunkKeyOf(msg.Payload)
		data, okData := communication.ChunkDataOf(msg.Payload)
		if !ok || !okData {
			return s.badPayload(msg)
		}
		err := s.cs.WriteChunk(ctx, key, data)
		return s.respond("put", key, nil, err)

	case communication.MessageTypeReadChunk:
		key, ok := communication.ChunkKeyOf(msg.Payload)
		if !ok {
			return s.badPayload(msg)
		}
		data, err := s.cs.ReadChunk(ctx, key)
		return s.respond("get", key, data, err)

	case communication.MessageTypeDeleteChunk:
		key, ok := communication.ChunkKeyOf(msg.Payload)
		if !ok {
			return s.badPayload(msg)
		}
		err := s.cs.DeleteChunk(ctx, key)
		return s.respond("delete", key, nil, err)

	case communication.MessageTypeHealth:
		return &communication.Response{Code: communication.CodeOK, Body: []byte("ok")}, nil

	default:
		return &communication.Response{
			Code: communication.CodeBadRequest,
			Body: []byte("unknown message type: " + msg.Type),
		}, nil
	}
}

func (s *NodeServer) badPayload(msg communication.Message) (*communication.Response, error) {
	s.ls.Warn(log_service.LogEvent{
		Message:  "Rejected malformed chunk request",
		Metadata: map[string]any{"type": msg.Type, "from": msg.From},
	})
	return &communication.Response{
		Code: communication.CodeBadRequest,
		Body: []byte(server.ErrInvalidPayloadType.Error()),
	}, nil
}

func (s *NodeServer) respond(op, key string, body []byte, err error) (*communication.Response, error) {
	code := codeFor(err)
	s.metrics.RecordChunkStoreOp(op, string(code))

	if err != nil {
		if code == communication.CodeInternal {
			s.ls.Error(log_service.LogEvent{
				Message:  "Chunk store operation failed",
				Metadata: map[string]any{"op": op, "chunkKey": key, "error": err.Error()},
			})
		}
		return &communication.Response{Code: code, Body: []byte(err.Error())}, nil
	}
	return &communication.Response{Code: communication.CodeOK, Body: body}, nil
}

func codeFor(err error) communication.SandCode {
	switch {
	case err == nil:
		return communication.CodeOK
	case errors.Is(err, chunk_service.ErrChunkNotFound):
		return communication.CodeNotFound
	case errors.Is(err, chunk_service.ErrInvalidChunkKey):
		return communication.CodeBadRequest
	default:
		return communication.CodeInternal
	}
}

var _ server.Server = (*NodeServer)(nil)
