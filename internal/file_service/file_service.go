package file_service

import (
	"context"

	"github.com/AnishMulay/ravenfs/internal/metadata_service"
	"github.com/AnishMulay/ravenfs/internal/storage_node"
)

// UploadResult describes where each chunk of an uploaded file landed.
// Degraded is set when any chunk has fewer holders than configured nodes,
// including chunks with no holder at all.
type UploadResult struct {
	FileID     string                         `json:"file_id"`
	Name       string                         `json:"filename"`
	Digest     string                         `json:"file_hash"`
	Size       int64                          `json:"file_size"`
	ChunkCount int                            `json:"total_chunks"`
	Chunks     []metadata_service.ChunkRecord `json:"chunk_metadata"`
	Degraded   bool                           `json:"degraded"`
}

type DownloadResult struct {
	File metadata_service.File
	Data []byte
}

// DeleteResult maps chunk order to per-node outcomes. Complete is true
// when every node answered ok or not-found.
type DeleteResult struct {
	FileID   string                                  `json:"file_id"`
	Chunks   map[int]map[string]storage_node.Outcome `json:"delete_results"`
	Complete bool                                    `json:"complete"`
}

type FileService interface {
	Upload(ctx context.Context, name string, data []byte) (*UploadResult, error)
	Download(ctx context.Context, fileID string) (*DownloadResult, error)
	Delete(ctx context.Context, fileID string) (*DeleteResult, error)
	List(ctx context.Context) ([]metadata_service.File, error)
}
