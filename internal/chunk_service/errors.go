package chunk_service

import "errors"

var (
	// Chunk operation errors
	ErrChunkWriteFailed  = errors.New("failed to write chunk")
	ErrChunkReadFailed   = errors.New("failed to read chunk")
	ErrChunkDeleteFailed = errors.New("failed to delete chunk")
	ErrChunkNotFound     = errors.New("chunk not found")
	ErrInvalidChunkKey   = errors.New("invalid chunk key")
)

// ValidateKey rejects keys that cannot be stored safely. Path separators
// would let a key escape the store directory.
func ValidateKey(chunkKey string) error {
	if chunkKey == "" || chunkKey == "." || chunkKey == ".." {
		return ErrInvalidChunkKey
	}
	for _, r := range chunkKey {
		if r == '/' || r == '\\' || r == 0 {
			return ErrInvalidChunkKey
		}
	}
	return nil
}
