package metadata_service

import (
	"context"
	"time"
)

// ChunkRecord places one chunk of a file. Holders are node addresses in
// the order they acknowledged the write.
type ChunkRecord struct {
	Order   int      `json:"chunk_order"`
	Holders []string `json:"storage_nodes"`
	Digest  string   `json:"chunk_hash"`
	// Key is the storage key when it is not derived from the file name.
	Key string `json:"chunk_key,omitempty"`
}

type File struct {
	ID         string        `json:"file_id"`
	Name       string        `json:"filename"`
	Digest     string        `json:"file_hash"`
	Size       int64         `json:"file_size"`
	ChunkCount int           `json:"total_chunks"`
	CreatedAt  time.Time     `json:"created_at"`
	Chunks     []ChunkRecord `json:"chunks,omitempty"`
}

// MetadataService is the registry of files and chunk placements.
//
// A file becomes visible to GetFile and ListFiles only once it holds
// exactly ChunkCount chunk records; files with zero chunks are visible
// immediately. DeleteFile removes the file and its chunk records together.
type MetadataService interface {
	CreateFile(ctx context.Context, name, digest string, size int64, chunkCount int) (string, error)
	AppendChunks(ctx context.Context, fileID string, chunks []ChunkRecord) error
	GetFile(ctx context.Context, fileID string) (*File, error)
	DeleteFile(ctx context.Context, fileID string) error
	ListFiles(ctx context.Context) ([]File, error)
}
