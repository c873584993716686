package communication

const (
	MessageTypeWriteChunk  = "write_chunk"
	MessageTypeReadChunk   = "read_chunk"
	MessageTypeDeleteChunk = "delete_chunk"
	MessageTypeHealth      = "health"
)

type WriteChunkRequest struct {
	ChunkKey string `json:"chunkKey"`
	Data     []byte `json:"data"`
}

type ReadChunkRequest struct {
	ChunkKey string `json:"chunkKey"`
}

type DeleteChunkRequest struct {
	ChunkKey string `json:"chunkKey"`
}

type HealthRequest struct{}

// ChunkKeyOf extracts the chunk key from any chunk request payload.
func ChunkKeyOf(payload any) (string, bool) {
	switch p := payload.(type) {
	case WriteChunkRequest:
		return p.ChunkKey, true
	case ReadChunkRequest:
		return p.ChunkKey, true
	case DeleteChunkRequest:
		return p.ChunkKey, true
	case *WriteChunkRequest:
		if p != nil {
			return p.ChunkKey, true
		}
	case *ReadChunkRequest:
		if p != nil {
			return p.ChunkKey, true
		}
	case *DeleteChunkRequest:
		if p != nil {
			return p.ChunkKey, true
		}
	}
	return "", false
}

// ChunkDataOf extracts the bytes of a write request payload.
func ChunkDataOf(payload any) ([]byte, bool) {
	switch p := payload.(type) {
	case WriteChunkRequest:
		return p.Data, true
	case *WriteChunkRequest:
		if p == nil {
			return nil, false
		}
		return p.Data, true
	default:
		return nil, false
	}
}
