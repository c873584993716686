package chunk_replicator

import (
	"context"

	"github.com/AnishMulay/ravenfs/internal/storage_node"
)

// AcceptFunc vets a payload returned by a holder. A rejected payload is
// treated like a failed read and the race continues.
type AcceptFunc func(data []byte) bool

// ChunkReplicator fans chunk operations out to storage nodes. Node errors
// never escape: puts and deletes report per-node results, reads report
// ErrChunkNotFound only when no holder produced an acceptable payload.
type ChunkReplicator interface {
	// Replicate puts data on every node and waits for all of them. It
	// returns the addresses that acknowledged, in the order nodes was given.
	Replicate(ctx context.Context, chunkKey string, data []byte, nodes []storage_node.StorageNode) []string

	// Retrieve races a read against every holder and returns the first
	// accepted payload together with the address that served it.
	Retrieve(ctx context.Context, chunkKey string, holders []storage_node.StorageNode, accept AcceptFunc) ([]byte, string, error)

	// DeleteEverywhere deletes the chunk from every holder and waits for
	// all of them.
	DeleteEverywhere(ctx context.Context, chunkKey string, holders []storage_node.StorageNode) map[string]storage_node.Outcome
}
