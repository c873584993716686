package chunk_service

import "context"

// ChunkService is the storage node's local chunk store. Keys are opaque
// strings chosen by the gateway; a write to an existing key overwrites it.
type ChunkService interface {
	WriteChunk(ctx context.Context, chunkKey string, data []byte) error
	ReadChunk(ctx context.Context, chunkKey string) ([]byte, error)
	DeleteChunk(ctx context.Context, chunkKey string) error
}
