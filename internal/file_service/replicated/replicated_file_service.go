package replicated

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AnishMulay/ravenfs/internal/chunk_replicator"
	"github.com/AnishMulay/ravenfs/internal/chunker"
	"github.com/AnishMulay/ravenfs/internal/file_service"
	"github.com/AnishMulay/ravenfs/internal/log_service"
	"github.com/AnishMulay/ravenfs/internal/metadata_service"
	"github.com/AnishMulay/ravenfs/internal/metrics"
	"github.com/AnishMulay/ravenfs/internal/storage_node"
)

// ReplicatedFileService splits files into chunks, replicates every chunk
// to the whole node pool and records placement in the registry.
type ReplicatedFileService struct {
	ms      metadata_service.MetadataService
	cr      chunk_replicator.ChunkReplicator
	pool    *storage_node.Pool
	ls      log_service.LogService
	metrics *metrics.Metrics
	opts    Options
}

func NewReplicatedFileService(
	ms metadata_service.MetadataService,
	cr chunk_replicator.ChunkReplicator,
	pool *storage_node.Pool,
	ls log_service.LogService,
	m *metrics.Metrics,
	opts Options,
) (*ReplicatedFileService, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &ReplicatedFileService{
		ms:      ms,
		cr:      cr,
		pool:    pool,
		ls:      ls,
		metrics: m,
		opts:    opts,
	}, nil
}

// chunkKey returns the storage key for a chunk and the value recorded in
// metadata, which stays empty when the key is derivable from the name.
func (fs *ReplicatedFileService) chunkKey(name, uploadID string, order int) (key, recorded string) {
	if fs.opts.KeyScheme == KeySchemeUnique {
		key = chunker.ChunkKey(uploadID, order)
		return key, key
	}
	return chunker.ChunkKey(name, order), ""
}

func storedKey(f *metadata_service.File, c metadata_service.ChunkRecord) string {
	if c.Key != "" {
		return c.Key
	}
	return chunker.ChunkKey(f.Name, c.Order)
}

func (fs *ReplicatedFileService) Upload(ctx context.Context, name string, data []byte) (res *file_service.UploadResult, err error) {
	start := time.Now()
	defer func() { fs.metrics.ObserveFileOp("upload", err, time.Since(start)) }()

	if name == "" {
		return nil, file_service.ErrInvalidFileName
	}

	fs.ls.Info(log_service.LogEvent{
		Message:  "Uploading file",
		Metadata: map[string]any{"filename": name, "size": len(data)},
	})

	digest := chunker.Digest(data)
	chunks, err := chunker.Split(data, fs.opts.ChunkSize)
	if err != nil {
		return nil, err
	}

	uploadID := uuid.NewString()
	nodes := fs.pool.All()
	records := make([]metadata_service.ChunkRecord, len(chunks))

	// Replicate never fails, so the group only joins the chunk tasks.
	var g errgroup.Group
	for i, chunk := range chunks {
		g.Go(func() error {
			order := i + 1
			key, recorded := fs.chunkKey(name, uploadID, order)
			holders := fs.cr.Replicate(ctx, key, chunk, nodes)
			records[i] = metadata_service.ChunkRecord{
				Order:   order,
				Holders: holders,
				Digest:  chunker.Digest(chunk),
				Key:     recorded,
			}
			return nil
		})
	}
	_ = g.Wait()

	degraded := false
	minHolders := len(nodes)
	for _, r := range records {
		if len(r.Holders) < len(nodes) {
			degraded = true
		}
		if len(r.Holders) < minHolders {
			minHolders = len(r.Holders)
		}
		if len(r.Holders) == 0 {
			fs.ls.Error(log_service.LogEvent{
				Message:  "Chunk stored on no node",
				Metadata: map[string]any{"filename": name, "order": r.Order},
			})
		}
	}

	if fs.opts.WriteQuorum > 0 && len(records) > 0 && minHolders < fs.opts.WriteQuorum {
		fs.ls.Error(log_service.LogEvent{
			Message:  "Upload below write quorum",
			Metadata: map[string]any{"filename": name, "minHolders": minHolders, "quorum": fs.opts.WriteQuorum},
		})
		fs.discard(ctx, name, uploadID, records)
		return nil, fmt.Errorf("%w: %d of %d", file_service.ErrInsufficientReplicas, minHolders, fs.opts.WriteQuorum)
	}

	fileID, err := fs.ms.CreateFile(ctx, name, digest, int64(len(data)), len(chunks))
	if err != nil {
		fs.ls.Error(log_service.LogEvent{
			Message:  "Failed to register file",
			Metadata: map[string]any{"filename": name, "error": err.Error()},
		})
		fs.discard(ctx, name, uploadID, records)
		return nil, fmt.Errorf("registering file: %w", err)
	}
	if err := fs.ms.AppendChunks(ctx, fileID, records); err != nil {
		fs.ls.Error(log_service.LogEvent{
			Message:  "Failed to record chunk placement",
			Metadata: map[string]any{"fileID": fileID, "error": err.Error()},
		})
		_ = fs.ms.DeleteFile(ctx, fileID)
		fs.discard(ctx, name, uploadID, records)
		return nil, fmt.Errorf("recording chunks: %w", err)
	}

	fs.metrics.RecordUpload(len(data))
	fs.ls.Info(log_service.LogEvent{
		Message:  "File uploaded",
		Metadata: map[string]any{"fileID": fileID, "filename": name, "chunks": len(chunks), "degraded": degraded},
	})

	return &file_service.UploadResult{
		FileID:     fileID,
		Name:       name,
		Digest:     digest,
		Size:       int64(len(data)),
		ChunkCount: len(chunks),
		Chunks:     records,
		Degraded:   degraded,
	}, nil
}

// discard removes the replicas of an upload that will not be registered.
// It outlives a cancelled request, since nothing else can find the keys.
func (fs *ReplicatedFileService) discard(ctx context.Context, name, uploadID string, records []metadata_service.ChunkRecord) {
	ctx = context.WithoutCancel(ctx)
	var g errgroup.Group
	for _, r := range records {
		if len(r.Holders) == 0 {
			continue
		}
		g.Go(func() error {
			key, _ := fs.chunkKey(name, uploadID, r.Order)
			fs.cr.DeleteEverywhere(ctx, key, fs.pool.Resolve(r.Holders))
			return nil
		})
	}
	_ = g.Wait()
}

func (fs *ReplicatedFileService) acceptFor(digest string) chunk_replicator.AcceptFunc {
	if !fs.opts.VerifyDigests || digest == "" {
		return nil
	}
	return func(data []byte) bool {
		return chunker.Digest(data) == digest
	}
}

func (fs *ReplicatedFileService) Download(ctx context.Context, fileID string) (res *file_service.DownloadResult, err error) {
	start := time.Now()
	defer func() { fs.metrics.ObserveFileOp("download", err, time.Since(start)) }()

	fs.ls.Info(log_service.LogEvent{
		Message:  "Downloading file",
		Metadata: map[string]any{"fileID": fileID},
	})

	f, err := fs.ms.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	parts := make([][]byte, len(f.Chunks))
	errs := make([]error, len(f.Chunks))
	var g errgroup.Group
	for i, c := range f.Chunks {
		g.Go(func() error {
			data, node, err := fs.cr.Retrieve(ctx, storedKey(f, c), fs.pool.Resolve(c.Holders), fs.acceptFor(c.Digest))
			if err != nil {
				errs[i] = &file_service.ChunkUnavailableError{FileID: fileID, Order: c.Order, Err: err}
				return errs[i]
			}
			fs.ls.Debug(log_service.LogEvent{
				Message:  "Chunk retrieved",
				Metadata: map[string]any{"fileID": fileID, "order": c.Order, "node": node},
			})
			parts[i] = data
			return nil
		})
	}
	_ = g.Wait()

	// Chunks are ordered by the registry; report the lowest missing one.
	for _, e := range errs {
		if e != nil {
			fs.ls.Error(log_service.LogEvent{
				Message:  "Failed to download file",
				Metadata: map[string]any{"fileID": fileID, "error": e.Error()},
			})
			return nil, e
		}
	}

	size := 0
	for _, p := range parts {
		size += len(p)
	}
	data := make([]byte, 0, size)
	for _, p := range parts {
		data = append(data, p...)
	}

	if fs.opts.VerifyDigests && f.Digest != "" && chunker.Digest(data) != f.Digest {
		fs.ls.Error(log_service.LogEvent{
			Message:  "Reassembled file digest mismatch",
			Metadata: map[string]any{"fileID": fileID, "want": f.Digest},
		})
		return nil, fmt.Errorf("%w: file %s", file_service.ErrDigestMismatch, fileID)
	}

	fs.metrics.RecordDownload(len(data))
	fs.ls.Info(log_service.LogEvent{
		Message:  "File downloaded",
		Metadata: map[string]any{"fileID": fileID, "size": len(data)},
	})

	meta := *f
	meta.Chunks = nil
	return &file_service.DownloadResult{File: meta, Data: data}, nil
}

func (fs *ReplicatedFileService) Delete(ctx context.Context, fileID string) (res *file_service.DeleteResult, err error) {
	start := time.Now()
	defer func() { fs.metrics.ObserveFileOp("delete", err, time.Since(start)) }()

	fs.ls.Info(log_service.LogEvent{
		Message:  "Deleting file",
		Metadata: map[string]any{"fileID": fileID},
	})

	f, err := fs.ms.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	outcomes := make([]map[string]storage_node.Outcome, len(f.Chunks))
	var g errgroup.Group
	for i, c := range f.Chunks {
		g.Go(func() error {
			outcomes[i] = fs.cr.DeleteEverywhere(ctx, storedKey(f, c), fs.pool.Resolve(c.Holders))
			return nil
		})
	}
	_ = g.Wait()

	result := &file_service.DeleteResult{
		FileID:   fileID,
		Chunks:   make(map[int]map[string]storage_node.Outcome, len(f.Chunks)),
		Complete: true,
	}
	for i, c := range f.Chunks {
		result.Chunks[c.Order] = outcomes[i]
		for _, o := range outcomes[i] {
			if o.Status == storage_node.StatusError {
				result.Complete = false
			}
		}
	}

	// Metadata goes regardless of node outcomes; unreachable replicas are
	// left behind.
	if err := fs.ms.DeleteFile(ctx, fileID); err != nil {
		return nil, err
	}

	if !result.Complete {
		fs.ls.Warn(log_service.LogEvent{
			Message:  "File deleted with orphaned replicas",
			Metadata: map[string]any{"fileID": fileID},
		})
	} else {
		fs.ls.Info(log_service.LogEvent{
			Message:  "File deleted",
			Metadata: map[string]any{"fileID": fileID},
		})
	}
	return result, nil
}

func (fs *ReplicatedFileService) List(ctx context.Context) ([]metadata_service.File, error) {
	return fs.ms.ListFiles(ctx)
}

var _ file_service.FileService = (*ReplicatedFileService)(nil)
