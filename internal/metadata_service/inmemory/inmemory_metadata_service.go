package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AnishMulay/ravenfs/internal/log_service"
	"github.com/AnishMulay/ravenfs/internal/metadata_service"
)

type entry struct {
	file   *metadata_service.File
	orders map[int]struct{}
	seq    uint64
}

type InMemoryMetadataService struct {
	mu    sync.RWMutex
	files map[string]*entry
	seq   uint64
	ls    log_service.LogService
}

func NewInMemoryMetadataService(ls log_service.LogService) *InMemoryMetadataService {
	return &InMemoryMetadataService{
		files: make(map[string]*entry),
		ls:    ls,
	}
}

func (ms *InMemoryMetadataService) CreateFile(ctx context.Context, name, digest string, size int64, chunkCount int) (string, error) {
	if err := metadata_service.ValidateNewFile(name, size, chunkCount); err != nil {
		return "", err
	}

	id := uuid.NewString()

	ms.mu.Lock()
	ms.seq++
	ms.files[id] = &entry{
		file: &metadata_service.File{
			ID:         id,
			Name:       name,
			Digest:     digest,
			Size:       size,
			ChunkCount: chunkCount,
			CreatedAt:  time.Now().UTC(),
			Chunks:     make([]metadata_service.ChunkRecord, 0, chunkCount),
		},
		orders: make(map[int]struct{}, chunkCount),
		seq:    ms.seq,
	}
	ms.mu.Unlock()

	ms.ls.Info(log_service.LogEvent{
		Message:  "File registered",
		Metadata: map[string]any{"fileID": id, "filename": name, "size": size, "chunks": chunkCount},
	})
	return id, nil
}

func (ms *InMemoryMetadataService) AppendChunks(ctx context.Context, fileID string, chunks []metadata_service.ChunkRecord) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.files[fileID]
	if !ok {
		return metadata_service.ErrFileNotFound
	}
	if err := metadata_service.ValidateChunks(e.file.ChunkCount, e.orders, chunks); err != nil {
		ms.ls.Error(log_service.LogEvent{
			Message:  "Rejected chunk records",
			Metadata: map[string]any{"fileID": fileID, "error": err.Error()},
		})
		return err
	}

	for _, c := range chunks {
		e.file.Chunks = append(e.file.Chunks, metadata_service.CloneChunk(c))
		e.orders[c.Order] = struct{}{}
	}
	metadata_service.SortChunks(e.file.Chunks)

	ms.ls.Debug(log_service.LogEvent{
		Message:  "Chunk records appended",
		Metadata: map[string]any{"fileID": fileID, "appended": len(chunks), "recorded": len(e.file.Chunks)},
	})
	return nil
}

func (ms *InMemoryMetadataService) GetFile(ctx context.Context, fileID string) (*metadata_service.File, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	e, ok := ms.files[fileID]
	if !ok || !e.file.Complete() {
		return nil, metadata_service.ErrFileNotFound
	}
	return e.file.Clone(), nil
}

func (ms *InMemoryMetadataService) DeleteFile(ctx context.Context, fileID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.files[fileID]; !ok {
		return metadata_service.ErrFileNotFound
	}
	delete(ms.files, fileID)

	ms.ls.Info(log_service.LogEvent{
		Message:  "File metadata deleted",
		Metadata: map[string]any{"fileID": fileID},
	})
	return nil
}

// ListFiles returns complete files in registration order, without chunks.
func (ms *InMemoryMetadataService) ListFiles(ctx context.Context) ([]metadata_service.File, error) {
	type listed struct {
		seq  uint64
		file metadata_service.File
	}

	ms.mu.RLock()
	items := make([]listed, 0, len(ms.files))
	for _, e := range ms.files {
		if e.file.Complete() {
			f := *e.file
			f.Chunks = nil
			items = append(items, listed{seq: e.seq, file: f})
		}
	}
	ms.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })

	out := make([]metadata_service.File, len(items))
	for i, it := range items {
		out[i] = it.file
	}
	return out, nil
}

var _ metadata_service.MetadataService = (*InMemoryMetadataService)(nil)
