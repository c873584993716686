package gateway

import (
	"sort"
	"time"

	"github.com/AnishMulay/ravenfs/internal/file_service"
	"github.com/AnishMulay/ravenfs/internal/metadata_service"
	"github.com/AnishMulay/ravenfs/internal/storage_node"
)

// Response bodies keep the field names existing gateway clients parse,
// including storage_nodes as a comma-separated string.

type chunkView struct {
	ChunkOrder   int    `json:"chunk_order"`
	StorageNodes string `json:"storage_nodes"`
	ChunkHash    string `json:"chunk_hash"`
	ChunkKey     string `json:"chunk_key,omitempty"`
}

type uploadResponse struct {
	Message       string      `json:"message"`
	FileID        string      `json:"file_id"`
	Filename      string      `json:"filename"`
	FileHash      string      `json:"file_hash"`
	FileSize      int64       `json:"file_size"`
	TotalChunks   int         `json:"total_chunks"`
	ChunkMetadata []chunkView `json:"chunk_metadata"`
	Degraded      bool        `json:"degraded"`
}

type fileView struct {
	FileID      string      `json:"file_id"`
	Filename    string      `json:"filename"`
	FileHash    string      `json:"file_hash"`
	FileSize    int64       `json:"file_size"`
	TotalChunks int         `json:"total_chunks"`
	CreatedAt   time.Time   `json:"created_at"`
	Chunks      []chunkView `json:"chunks,omitempty"`
}

type outcomeView struct {
	Status storage_node.Status `json:"status"`
	Error  string              `json:"error,omitempty"`
}

type deleteResponse struct {
	Message       string                         `json:"message"`
	DeleteResults map[int]map[string]outcomeView `json:"delete_results"`
	Complete      bool                           `json:"complete"`
}

type nodeHealth struct {
	Node   string `json:"node"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthResponse struct {
	Status string       `json:"status"`
	Nodes  []nodeHealth `json:"nodes"`
}

func toChunkViews(chunks []metadata_service.ChunkRecord) []chunkView {
	out := make([]chunkView, len(chunks))
	for i, c := range chunks {
		out[i] = chunkView{
			ChunkOrder:   c.Order,
			StorageNodes: metadata_service.JoinHolders(c.Holders),
			ChunkHash:    c.Digest,
			ChunkKey:     c.Key,
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkOrder < out[j].ChunkOrder })
	return out
}

func toUploadResponse(res *file_service.UploadResult) uploadResponse {
	msg := "File uploaded, chunked, and replicated successfully"
	if res.Degraded {
		msg = "File uploaded with degraded replication"
	}
	return uploadResponse{
		Message:       msg,
		FileID:        res.FileID,
		Filename:      res.Name,
		FileHash:      res.Digest,
		FileSize:      res.Size,
		TotalChunks:   res.ChunkCount,
		ChunkMetadata: toChunkViews(res.Chunks),
		Degraded:      res.Degraded,
	}
}

func toFileView(f metadata_service.File) fileView {
	v := fileView{
		FileID:      f.ID,
		Filename:    f.Name,
		FileHash:    f.Digest,
		FileSize:    f.Size,
		TotalChunks: f.ChunkCount,
		CreatedAt:   f.CreatedAt,
	}
	if len(f.Chunks) > 0 {
		v.Chunks = toChunkViews(f.Chunks)
	}
	return v
}

func toDeleteResponse(res *file_service.DeleteResult) deleteResponse {
	results := make(map[int]map[string]outcomeView, len(res.Chunks))
	for order, outcomes := range res.Chunks {
		byNode := make(map[string]outcomeView, len(outcomes))
		for node, o := range outcomes {
			v := outcomeView{Status: o.Status}
			if o.Err != nil {
				v.Error = o.Err.Error()
			}
			byNode[node] = v
		}
		results[order] = byNode
	}
	return deleteResponse{
		Message:       "File " + res.FileID + " deleted successfully",
		DeleteResults: results,
		Complete:      res.Complete,
	}
}
