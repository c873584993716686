package localdisc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/AnishMulay/ravenfs/internal/chunk_service"
	"github.com/AnishMulay/ravenfs/internal/log_service"
)

// LocalDiscChunkService stores one file per chunk under baseDir. The file
// name records the format: <key>.chunk holds raw bytes and <key>.chunk.zst a
// zstd frame. Compression only selects the format of new writes; both
// formats are always readable.
type LocalDiscChunkService struct {
	baseDir  string
	compress bool
	ls       log_service.LogService

	encoderPool sync.Pool
	decoderPool sync.Pool
}

func NewLocalDiscChunkService(baseDir string, compress bool, ls log_service.LogService) (*LocalDiscChunkService, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create chunks dir: %w", err)
	}

	cs := &LocalDiscChunkService{
		baseDir:  baseDir,
		compress: compress,
		ls:       ls,
	}
	cs.encoderPool.New = func() any {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		return enc
	}
	cs.decoderPool.New = func() any {
		dec, _ := zstd.NewReader(nil)
		return dec
	}
	return cs, nil
}

const compressedSuffix = ".zst"

func (cs *LocalDiscChunkService) chunkPath(chunkKey string) string {
	return filepath.Join(cs.baseDir, chunkKey+".chunk")
}

func (cs *LocalDiscChunkService) compressedPath(chunkKey string) string {
	return cs.chunkPath(chunkKey) + compressedSuffix
}

// candidatePaths lists both formats, the one new writes use first.
func (cs *LocalDiscChunkService) candidatePaths(chunkKey string) []string {
	if cs.compress {
		return []string{cs.compressedPath(chunkKey), cs.chunkPath(chunkKey)}
	}
	return []string{cs.chunkPath(chunkKey), cs.compressedPath(chunkKey)}
}

func (cs *LocalDiscChunkService) encode(data []byte) []byte {
	enc := cs.encoderPool.Get().(*zstd.Encoder)
	defer cs.encoderPool.Put(enc)
	return enc.EncodeAll(data, nil)
}

func (cs *LocalDiscChunkService) decode(stored []byte) ([]byte, error) {
	dec := cs.decoderPool.Get().(*zstd.Decoder)
	defer cs.decoderPool.Put(dec)
	return dec.DecodeAll(stored, nil)
}

func (cs *LocalDiscChunkService) WriteChunk(ctx context.Context, chunkKey string, data []byte) error {
	if err := chunk_service.ValidateKey(chunkKey); err != nil {
		return err
	}

	cs.ls.Info(log_service.LogEvent{
		Message:  "Writing chunk",
		Metadata: map[string]any{"chunkKey": chunkKey, "size": len(data), "compressed": cs.compress},
	})

	path, stale, stored := cs.chunkPath(chunkKey), cs.compressedPath(chunkKey), data
	if cs.compress {
		path, stale, stored = stale, path, cs.encode(data)
	}

	// Write then rename so a concurrent reader never sees a torn chunk.
	tmp, err := os.CreateTemp(cs.baseDir, ".tmp-*")
	if err == nil {
		_, err = tmp.Write(stored)
		if cerr := tmp.Close(); err == nil {
			err = cerr
		}
		if err == nil {
			err = os.Rename(tmp.Name(), path)
		}
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}
	// An overwrite under the other format must not leave the old copy behind.
	if err == nil {
		if rerr := os.Remove(stale); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = rerr
		}
	}
	if err != nil {
		cs.ls.Error(log_service.LogEvent{
			Message:  "Failed to write chunk",
			Metadata: map[string]any{"chunkKey": chunkKey, "error": err.Error()},
		})
		return fmt.Errorf("%w: %v", chunk_service.ErrChunkWriteFailed, err)
	}

	cs.ls.Info(log_service.LogEvent{
		Message:  "Chunk written successfully",
		Metadata: map[string]any{"chunkKey": chunkKey},
	})
	return nil
}

func (cs *LocalDiscChunkService) ReadChunk(ctx context.Context, chunkKey string) ([]byte, error) {
	if err := chunk_service.ValidateKey(chunkKey); err != nil {
		return nil, err
	}

	cs.ls.Debug(log_service.LogEvent{
		Message:  "Reading chunk",
		Metadata: map[string]any{"chunkKey": chunkKey},
	})

	for _, path := range cs.candidatePaths(chunkKey) {
		stored, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			cs.ls.Error(log_service.LogEvent{
				Message:  "Failed to read chunk",
				Metadata: map[string]any{"chunkKey": chunkKey, "error": err.Error()},
			})
			return nil, fmt.Errorf("%w: %v", chunk_service.ErrChunkReadFailed, err)
		}

		data := stored
		if strings.HasSuffix(path, compressedSuffix) {
			if data, err = cs.decode(stored); err != nil {
				cs.ls.Error(log_service.LogEvent{
					Message:  "Failed to decompress chunk",
					Metadata: map[string]any{"chunkKey": chunkKey, "error": err.Error()},
				})
				return nil, fmt.Errorf("%w: %v", chunk_service.ErrChunkReadFailed, err)
			}
		}

		cs.ls.Debug(log_service.LogEvent{
			Message:  "Chunk read successfully",
			Metadata: map[string]any{"chunkKey": chunkKey, "size": len(data)},
		})
		return data, nil
	}
	return nil, chunk_service.ErrChunkNotFound
}

func (cs *LocalDiscChunkService) DeleteChunk(ctx context.Context, chunkKey string) error {
	if err := chunk_service.ValidateKey(chunkKey); err != nil {
		return err
	}

	cs.ls.Info(log_service.LogEvent{
		Message:  "Deleting chunk",
		Metadata: map[string]any{"chunkKey": chunkKey},
	})

	removed := 0
	var err error
	for _, path := range cs.candidatePaths(chunkKey) {
		rerr := os.Remove(path)
		if rerr == nil {
			removed++
		} else if !errors.Is(rerr, os.ErrNotExist) {
			err = rerr
		}
	}
	if err == nil && removed == 0 {
		return chunk_service.ErrChunkNotFound
	}
	if err != nil {
		cs.ls.Error(log_service.LogEvent{
			Message:  "Failed to delete chunk",
			Metadata: map[string]any{"chunkKey": chunkKey, "error": err.Error()},
		})
		return fmt.Errorf("%w: %v", chunk_service.ErrChunkDeleteFailed, err)
	}

	cs.ls.Info(log_service.LogEvent{
		Message:  "Chunk deleted successfully",
		Metadata: map[string]any{"chunkKey": chunkKey},
	})
	return nil
}

var _ chunk_service.ChunkService = (*LocalDiscChunkService)(nil)
