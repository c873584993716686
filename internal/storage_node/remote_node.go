package storage_node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AnishMulay/ravenfs/internal/communication"
	"github.com/AnishMulay/ravenfs/internal/log_service"
	"github.com/AnishMulay/ravenfs/internal/metrics"
)

// RemoteNode talks to one storage node over a Communicator.
type RemoteNode struct {
	address string
	timeout time.Duration
	comm    communication.Communicator
	ls      log_service.LogService
	metrics *metrics.Metrics
}

func NewRemoteNode(address string, timeout time.Duration, comm communication.Communicator, ls log_service.LogService, m *metrics.Metrics) *RemoteNode {
	return &RemoteNode{
		address: address,
		timeout: timeout,
		comm:    comm,
		ls:      ls,
		metrics: m,
	}
}

func (n *RemoteNode) Address() string {
	return n.address
}

func (n *RemoteNode) send(ctx context.Context, op string, msg communication.Message) (*communication.Response, error) {
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := n.comm.Send(ctx, n.address, msg)
	if err == nil {
		err = codeToError(resp.Code, resp.Body)
	}
	n.metrics.ObserveNodeOp(n.address, op, string(Classify(err)), time.Since(start))

	if err != nil && Classify(err) == StatusError {
		n.ls.Warn(log_service.LogEvent{
			Message:  "Storage node call failed",
			Metadata: map[string]any{"node": n.address, "op": op, "error": err.Error()},
		})
	}
	return resp, err
}

func codeToError(code communication.SandCode, body []byte) error {
	switch code {
	case communication.CodeOK:
		return nil
	case communication.CodeNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("%w: node answered %s: %s", ErrTransport, code, truncate(body, 128))
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

func wrapTransport(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

func (n *RemoteNode) Put(ctx context.Context, chunkKey string, data []byte) error {
	_, err := n.send(ctx, "put", communication.Message{
		Type:    communication.MessageTypeWriteChunk,
		Payload: communication.WriteChunkRequest{ChunkKey: chunkKey, Data: data},
	})
	return wrapTransport(err)
}

func (n *RemoteNode) Get(ctx context.Context, chunkKey string) ([]byte, error) {
	resp, err := n.send(ctx, "get", communication.Message{
		Type:    communication.MessageTypeReadChunk,
		Payload: communication.ReadChunkRequest{ChunkKey: chunkKey},
	})
	if err != nil {
		return nil, wrapTransport(err)
	}
	return resp.Body, nil
}

func (n *RemoteNode) Delete(ctx context.Context, chunkKey string) error {
	_, err := n.send(ctx, "delete", communication.Message{
		Type:    communication.MessageTypeDeleteChunk,
		Payload: communication.DeleteChunkRequest{ChunkKey: chunkKey},
	})
	return wrapTransport(err)
}

// Health asks the node for its health endpoint.
func (n *RemoteNode) Health(ctx context.Context) error {
	_, err := n.send(ctx, "health", communication.Message{
		Type:    communication.MessageTypeHealth,
		Payload: communication.HealthRequest{},
	})
	return wrapTransport(err)
}

var (
	_ StorageNode   = (*RemoteNode)(nil)
	_ HealthChecker = (*RemoteNode)(nil)
)
