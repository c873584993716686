package file_service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidFileName      = errors.New("file name required")
	ErrInsufficientReplicas = errors.New("chunk stored on fewer nodes than the write quorum")
	ErrDigestMismatch       = errors.New("reassembled file does not match its recorded digest")
)

// ChunkUnavailableError reports the first chunk of a file that no holder
// could serve.
type ChunkUnavailableError struct {
	FileID string
	Order  int
	Err    error
}

func (e *ChunkUnavailableError) Error() string {
	return fmt.Sprintf("chunk %d of file %s unavailable: %v", e.Order, e.FileID, e.Err)
}

func (e *ChunkUnavailableError) Unwrap() error {
	return e.Err
}
