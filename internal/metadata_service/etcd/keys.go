package etcd

import (
	"strconv"
	"strings"
	"time"

	"github.com/AnishMulay/ravenfs/internal/metadata_service"
)

const DefaultPrefix = "/ravenfs/"

type keyspace struct {
	prefix string
}

func newKeyspace(prefix string) keyspace {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return keyspace{prefix: prefix}
}

func (k keyspace) counter() string { return k.prefix + "meta/next_file_id" }

func (k keyspace) files() string { return k.prefix + "files/" }

func (k keyspace) file(id string) string { return k.files() + id }

// chunkList holds every chunk record of a file as one JSON array, so an
// append is a single put whatever the chunk count.
func (k keyspace) chunkList(id string) string { return k.prefix + "chunks/" + id }

type fileValue struct {
	Name       string    `json:"filename"`
	Digest     string    `json:"file_hash"`
	Size       int64     `json:"file_size"`
	ChunkCount int       `json:"total_chunks"`
	Recorded   int       `json:"recorded_chunks"`
	CreatedAt  time.Time `json:"created_at"`
}

func (v fileValue) complete() bool { return v.Recorded == v.ChunkCount }

func (v fileValue) toFile(id string) metadata_service.File {
	return metadata_service.File{
		ID:         id,
		Name:       v.Name,
		Digest:     v.Digest,
		Size:       v.Size,
		ChunkCount: v.ChunkCount,
		CreatedAt:  v.CreatedAt,
	}
}

func validID(id string) bool {
	n, err := strconv.ParseUint(id, 10, 64)
	return err == nil && n > 0
}

// lessID orders decimal ids numerically.
func lessID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
