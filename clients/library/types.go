package ravenlib

import "time"

type Chunk struct {
	Order        int    `json:"chunk_order"`
	StorageNodes string `json:"storage_nodes"`
	Hash         string `json:"chunk_hash"`
	Key          string `json:"chunk_key,omitempty"`
}

type UploadResponse struct {
	Message     string  `json:"message"`
	FileID      string  `json:"file_id"`
	Filename    string  `json:"filename"`
	FileHash    string  `json:"file_hash"`
	FileSize    int64   `json:"file_size"`
	TotalChunks int     `json:"total_chunks"`
	Chunks      []Chunk `json:"chunk_metadata"`
	Degraded    bool    `json:"degraded"`
}

type File struct {
	FileID      string    `json:"file_id"`
	Filename    string    `json:"filename"`
	FileHash    string    `json:"file_hash"`
	FileSize    int64     `json:"file_size"`
	TotalChunks int       `json:"total_chunks"`
	CreatedAt   time.Time `json:"created_at"`
}

type NodeOutcome struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// DeleteResponse maps chunk order to per-node outcomes.
type DeleteResponse struct {
	Message       string                         `json:"message"`
	DeleteResults map[int]map[string]NodeOutcome `json:"delete_results"`
	Complete      bool                           `json:"complete"`
}

type NodeHealth struct {
	Node   string `json:"node"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type Health struct {
	Status string       `json:"status"`
	Nodes  []NodeHealth `json:"nodes"`
}
