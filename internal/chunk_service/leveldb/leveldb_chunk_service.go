package leveldb

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	ds "github.com/ipfs/go-datastore"
	dslvl "github.com/ipfs/go-ds-leveldb"

	"github.com/AnishMulay/ravenfs/internal/chunk_service"
	"github.com/AnishMulay/ravenfs/internal/log_service"
)

// LevelDBChunkService keeps chunks in a single LevelDB datastore, which
// avoids one inode per chunk on nodes holding many small files.
type LevelDBChunkService struct {
	store *dslvl.Datastore
	ls    log_service.LogService
}

func NewLevelDBChunkService(path string, ls log_service.LogService) (*LevelDBChunkService, error) {
	store, err := dslvl.NewDatastore(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open chunk datastore: %w", err)
	}
	return &LevelDBChunkService{store: store, ls: ls}, nil
}

// Datastore keys are path-like; escaping keeps chunk keys opaque.
func dsKey(chunkKey string) ds.Key {
	return ds.NewKey("chunks/" + url.PathEscape(chunkKey))
}

func (cs *LevelDBChunkService) WriteChunk(ctx context.Context, chunkKey string, data []byte) error {
	if err := chunk_service.ValidateKey(chunkKey); err != nil {
		return err
	}

	cs.ls.Info(log_service.LogEvent{
		Message:  "Writing chunk",
		Metadata: map[string]any{"chunkKey": chunkKey, "size": len(data)},
	})

	if err := cs.store.Put(ctx, dsKey(chunkKey), data); err != nil {
		cs.ls.Error(log_service.LogEvent{
			Message:  "Failed to write chunk",
			Metadata: map[string]any{"chunkKey": chunkKey, "error": err.Error()},
		})
		return fmt.Errorf("%w: %v", chunk_service.ErrChunkWriteFailed, err)
	}
	return nil
}

func (cs *LevelDBChunkService) ReadChunk(ctx context.Context, chunkKey string) ([]byte, error) {
	if err := chunk_service.ValidateKey(chunkKey); err != nil {
		return nil, err
	}

	data, err := cs.store.Get(ctx, dsKey(chunkKey))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, chunk_service.ErrChunkNotFound
	}
	if err != nil {
		cs.ls.Error(log_service.LogEvent{
			Message:  "Failed to read chunk",
			Metadata: map[string]any{"chunkKey": chunkKey, "error": err.Error()},
		})
		return nil, fmt.Errorf("%w: %v", chunk_service.ErrChunkReadFailed, err)
	}
	return data, nil
}

// DeleteChunk reports ErrChunkNotFound for absent keys; the datastore's
// own Delete is idempotent and would hide that.
func (cs *LevelDBChunkService) DeleteChunk(ctx context.Context, chunkKey string) error {
	if err := chunk_service.ValidateKey(chunkKey); err != nil {
		return err
	}

	k := dsKey(chunkKey)
	exists, err := cs.store.Has(ctx, k)
	if err != nil {
		return fmt.Errorf("%w: %v", chunk_service.ErrChunkDeleteFailed, err)
	}
	if !exists {
		return chunk_service.ErrChunkNotFound
	}

	cs.ls.Info(log_service.LogEvent{
		Message:  "Deleting chunk",
		Metadata: map[string]any{"chunkKey": chunkKey},
	})

	if err := cs.store.Delete(ctx, k); err != nil {
		cs.ls.Error(log_service.LogEvent{
			Message:  "Failed to delete chunk",
			Metadata: map[string]any{"chunkKey": chunkKey, "error": err.Error()},
		})
		return fmt.Errorf("%w: %v", chunk_service.ErrChunkDeleteFailed, err)
	}
	return nil
}

func (cs *LevelDBChunkService) Close() error {
	return cs.store.Close()
}

var _ chunk_service.ChunkService = (*LevelDBChunkService)(nil)
