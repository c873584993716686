package chunk_replicator

import (
	"context"
	"fmt"
	"sync"

	"github.com/AnishMulay/ravenfs/internal/log_service"
	"github.com/AnishMulay/ravenfs/internal/metrics"
	"github.com/AnishMulay/ravenfs/internal/storage_node"
)

type DefaultChunkReplicator struct {
	ls      log_service.LogService
	metrics *metrics.Metrics
}

func NewDefaultChunkReplicator(ls log_service.LogService, m *metrics.Metrics) *DefaultChunkReplicator {
	return &DefaultChunkReplicator{
		ls:      ls,
		metrics: m,
	}
}

func (cr *DefaultChunkReplicator) Replicate(ctx context.Context, chunkKey string, data []byte, nodes []storage_node.StorageNode) []string {
	cr.ls.Debug(log_service.LogEvent{
		Message:  "Replicating chunk",
		Metadata: map[string]any{"chunkKey": chunkKey, "size": len(data), "nodes": len(nodes)},
	})

	acked := make([]bool, len(nodes))
	var wg sync.WaitGroup
	for i, node := range nodes {
		wg.Add(1)
		go func(i int, node storage_node.StorageNode) {
			defer wg.Done()
			if err := node.Put(ctx, chunkKey, data); err != nil {
				cr.ls.Warn(log_service.LogEvent{
					Message:  "Failed to replicate chunk to node",
					Metadata: map[string]any{"chunkKey": chunkKey, "node": node.Address(), "error": err.Error()},
				})
				return
			}
			acked[i] = true
		}(i, node)
	}
	wg.Wait()

	holders := make([]string, 0, len(nodes))
	for i, ok := range acked {
		if ok {
			holders = append(holders, nodes[i].Address())
		}
	}
	cr.metrics.ObserveReplication(len(holders), len(nodes))

	if len(holders) < len(nodes) {
		cr.ls.Warn(log_service.LogEvent{
			Message:  "Chunk under-replicated",
			Metadata: map[string]any{"chunkKey": chunkKey, "holders": len(holders), "nodes": len(nodes)},
		})
	}
	return holders
}

type readResult struct {
	node string
	data []byte
	err  error
}

func (cr *DefaultChunkReplicator) Retrieve(ctx context.Context, chunkKey string, holders []storage_node.StorageNode, accept AcceptFunc) ([]byte, string, error) {
	if len(holders) == 0 {
		cr.ls.Error(log_service.LogEvent{
			Message:  "Chunk has no recorded holders",
			Metadata: map[string]any{"chunkKey": chunkKey},
		})
		return nil, "", fmt.Errorf("%w: %s has no holders", ErrChunkNotFound, chunkKey)
	}

	// Losers are cancelled once a winner is taken. The channel is buffered
	// so their goroutines never block on send.
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan readResult, len(holders))
	for _, node := range holders {
		go func(node storage_node.StorageNode) {
			data, err := node.Get(raceCtx, chunkKey)
			results <- readResult{node: node.Address(), data: data, err: err}
		}(node)
	}

	for range holders {
		r := <-results
		if r.err != nil {
			cr.ls.Debug(log_service.LogEvent{
				Message:  "Holder failed to serve chunk",
				Metadata: map[string]any{"chunkKey": chunkKey, "node": r.node, "error": r.err.Error()},
			})
			continue
		}
		if accept != nil && !accept(r.data) {
			cr.metrics.RecordRejectedReplica()
			cr.ls.Warn(log_service.LogEvent{
				Message:  "Discarding chunk payload that failed verification",
				Metadata: map[string]any{"chunkKey": chunkKey, "node": r.node, "size": len(r.data)},
			})
			continue
		}
		return r.data, r.node, nil
	}

	cr.ls.Error(log_service.LogEvent{
		Message:  "Chunk not available on any holder",
		Metadata: map[string]any{"chunkKey": chunkKey, "holders": len(holders)},
	})
	return nil, "", fmt.Errorf("%w: %s", ErrChunkNotFound, chunkKey)
}

func (cr *DefaultChunkReplicator) DeleteEverywhere(ctx context.Context, chunkKey string, holders []storage_node.StorageNode) map[string]storage_node.Outcome {
	outcomes := make([]storage_node.Outcome, len(holders))
	var wg sync.WaitGroup
	for i, node := range holders {
		wg.Add(1)
		go func(i int, node storage_node.StorageNode) {
			defer wg.Done()
			outcomes[i] = storage_node.NewOutcome(node.Address(), node.Delete(ctx, chunkKey))
		}(i, node)
	}
	wg.Wait()

	result := make(map[string]storage_node.Outcome, len(holders))
	for _, o := range outcomes {
		result[o.Node] = o
		if o.Status == storage_node.StatusError {
			cr.ls.Warn(log_service.LogEvent{
				Message:  "Failed to delete chunk from node",
				Metadata: map[string]any{"chunkKey": chunkKey, "node": o.Node, "error": o.Err.Error()},
			})
		}
	}
	return result
}

var _ ChunkReplicator = (*DefaultChunkReplicator)(nil)
