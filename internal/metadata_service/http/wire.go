package httpmeta

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/AnishMulay/ravenfs/internal/metadata_service"
)

// Registry HTTP API:
//
//	POST   /files               RegisterRequest -> 201 FileView
//	POST   /files/{id}/chunks   AppendRequest   -> 201 MessageResponse
//	GET    /files                               -> 200 ListResponse
//	GET    /files/{id}                          -> 200 FileView with chunks
//	DELETE /files/{id}                          -> 200 MessageResponse
//	GET    /db_view                             -> 200 DBView
//	GET    /health                              -> 200 MessageResponse
//
// Failures carry an ErrorResponse.

// FileID is written as a JSON number when it is numeric, as the sqlite and
// etcd registries issue, and as a string otherwise. Both forms decode.
type FileID string

func (id FileID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseUint(string(id), 10, 64); err == nil && strconv.FormatUint(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *FileID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FileID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = FileID(n.String())
	return nil
}

type RegisterRequest struct {
	Filename    *string `json:"filename"`
	FileHash    string  `json:"file_hash"`
	FileSize    int64   `json:"file_size"`
	TotalChunks int     `json:"total_chunks"`
}

// ChunkView stores holders comma separated, like the chunks table.
type ChunkView struct {
	FileID       FileID `json:"file_id,omitempty"`
	ChunkOrder   int    `json:"chunk_order"`
	StorageNodes string `json:"storage_nodes"`
	ChunkHash    string `json:"chunk_hash"`
	ChunkKey     string `json:"chunk_key,omitempty"`
}

type AppendRequest struct {
	Chunks []ChunkView `json:"chunks"`
}

type FileView struct {
	ID          FileID      `json:"id"`
	Filename    string      `json:"filename"`
	FileHash    string      `json:"file_hash"`
	FileSize    int64       `json:"file_size"`
	TotalChunks int         `json:"total_chunks"`
	CreatedAt   string      `json:"created_at,omitempty"`
	Chunks      []ChunkView `json:"chunks,omitempty"`
}

type ListResponse struct {
	Files []FileView `json:"files"`
}

type DBView struct {
	Files  []FileView  `json:"files"`
	Chunks []ChunkView `json:"chunks"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// Error codes map failures back onto metadata_service sentinels.
const (
	CodeFileNotFound      = "file_not_found"
	CodeInvalidFile       = "invalid_file"
	CodeInvalidChunkOrder = "invalid_chunk_order"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Timestamps written by the original service lack a zone.
var createdAtLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05"}

func formatCreatedAt(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseCreatedAt(s string) time.Time {
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func ToChunkView(c metadata_service.ChunkRecord) ChunkView {
	return ChunkView{
		ChunkOrder:   c.Order,
		StorageNodes: metadata_service.JoinHolders(c.Holders),
		ChunkHash:    c.Digest,
		ChunkKey:     c.Key,
	}
}

func FromChunkView(v ChunkView) metadata_service.ChunkRecord {
	return metadata_service.ChunkRecord{
		Order:   v.ChunkOrder,
		Holders: metadata_service.SplitHolders(v.StorageNodes),
		Digest:  v.ChunkHash,
		Key:     v.ChunkKey,
	}
}

func ToFileView(f metadata_service.File) FileView {
	v := FileView{
		ID:          FileID(f.ID),
		Filename:    f.Name,
		FileHash:    f.Digest,
		FileSize:    f.Size,
		TotalChunks: f.ChunkCount,
		CreatedAt:   formatCreatedAt(f.CreatedAt),
	}
	if len(f.Chunks) > 0 {
		v.Chunks = make([]ChunkView, len(f.Chunks))
		for i, c := range f.Chunks {
			v.Chunks[i] = ToChunkView(c)
		}
	}
	return v
}

func FromFileView(v FileView) metadata_service.File {
	f := metadata_service.File{
		ID:         string(v.ID),
		Name:       v.Filename,
		Digest:     v.FileHash,
		Size:       v.FileSize,
		ChunkCount: v.TotalChunks,
		CreatedAt:  parseCreatedAt(v.CreatedAt),
	}
	if len(v.Chunks) > 0 {
		f.Chunks = make([]metadata_service.ChunkRecord, len(v.Chunks))
		for i, c := range v.Chunks {
			f.Chunks[i] = FromChunkView(c)
		}
		metadata_service.SortChunks(f.Chunks)
	}
	return f
}
