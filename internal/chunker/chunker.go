// Package chunker splits file contents into fixed-size chunks and computes
// the content digests recorded alongside them.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// DefaultChunkSize matches the chunk size used by existing storage nodes.
const DefaultChunkSize = 4 * 1024 * 1024

var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// Split cuts data into ordered chunks of chunkSize bytes. The last chunk
// holds the remainder. Empty input yields zero chunks. Chunks alias data.
func Split(data []byte, chunkSize int) ([][]byte, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}

	count := Count(int64(len(data)), chunkSize)
	chunks := make([][]byte, 0, count)
	for offset := 0; offset < len(data); offset += chunkSize {
		end := offset + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[offset:end:end])
	}
	return chunks, nil
}

// Count returns ceil(size/chunkSize).
func Count(size int64, chunkSize int) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((size + int64(chunkSize) - 1) / int64(chunkSize))
}

// Digest is the lowercase hex SHA-256 of data. The same scheme is used for
// whole files and for individual chunks.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ChunkKey is the node-local storage key for chunk order of fileName.
func ChunkKey(fileName string, order int) string {
	return fmt.Sprintf("%s_chunk%d", fileName, order)
}
