package etcd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/exp/rand"

	"github.com/AnishMulay/ravenfs/internal/log_service"
	"github.com/AnishMulay/ravenfs/internal/metadata_service"
)

const (
	EtcdDialTimeout = 5 * time.Second
	maxTxnRetries   = 64
)

var errTooMuchContention = errors.New("etcd transaction retries exhausted")

// EtcdMetadataService keeps the registry in etcd. File ids come from a
// counter key advanced with compare-and-swap; every multi-key change is
// a single transaction. A file's chunk records live in one value next to
// the file, and the file value counts them.
type EtcdMetadataService struct {
	client *clientv3.Client
	keys   keyspace
	ls     log_service.LogService
}

func Dial(endpoints []string) (*clientv3.Client, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: EtcdDialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return cli, nil
}

func NewEtcdMetadataService(client *clientv3.Client, prefix string, ls log_service.LogService) *EtcdMetadataService {
	return &EtcdMetadataService{
		client: client,
		keys:   newKeyspace(prefix),
		ls:     ls,
	}
}

func (ms *EtcdMetadataService) Close() error {
	return ms.client.Close()
}

func backoff(ctx context.Context, attempt int) error {
	d := time.Duration(rand.Intn(10*(attempt+1))+5) * time.Millisecond
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (ms *EtcdMetadataService) CreateFile(ctx context.Context, name, digest string, size int64, chunkCount int) (string, error) {
	if err := metadata_service.ValidateNewFile(name, size, chunkCount); err != nil {
		return "", err
	}

	val, err := json.Marshal(fileValue{
		Name:       name,
		Digest:     digest,
		Size:       size,
		ChunkCount: chunkCount,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}

	counterKey := ms.keys.counter()
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		resp, err := ms.client.Get(ctx, counterKey)
		if err != nil {
			return "", fmt.Errorf("reading id counter: %w", err)
		}

		var (
			last   uint64
			modRev int64
		)
		if len(resp.Kvs) > 0 {
			last, err = strconv.ParseUint(string(resp.Kvs[0].Value), 10, 64)
			if err != nil {
				return "", fmt.Errorf("corrupt id counter %q: %w", resp.Kvs[0].Value, err)
			}
			modRev = resp.Kvs[0].ModRevision
		}
		id := strconv.FormatUint(last+1, 10)

		txn, err := ms.client.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(counterKey), "=", modRev)).
			Then(
				clientv3.OpPut(counterKey, id),
				clientv3.OpPut(ms.keys.file(id), string(val)),
			).
			Commit()
		if err != nil {
			return "", fmt.Errorf("registering file: %w", err)
		}
		if txn.Succeeded {
			ms.ls.Info(log_service.LogEvent{
				Message:  "File registered",
				Metadata: map[string]any{"fileID": id, "filename": name, "size": size, "chunks": chunkCount},
			})
			return id, nil
		}

		if err := backoff(ctx, attempt); err != nil {
			return "", err
		}
	}
	return "", errTooMuchContention
}

func (ms *EtcdMetadataService) AppendChunks(ctx context.Context, fileID string, chunks []metadata_service.ChunkRecord) error {
	if !validID(fileID) {
		return metadata_service.ErrFileNotFound
	}

	fileKey := ms.keys.file(fileID)
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		fileResp, err := ms.client.Get(ctx, fileKey)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}
		if len(fileResp.Kvs) == 0 {
			return metadata_service.ErrFileNotFound
		}
		var fv fileValue
		if err := json.Unmarshal(fileResp.Kvs[0].Value, &fv); err != nil {
			return fmt.Errorf("decoding file %s: %w", fileID, err)
		}

		recorded, err := ms.readChunks(ctx, fileID, fileResp.Header.Revision)
		if err != nil {
			return err
		}
		cmps, ops, err := ms.appendTxn(fileID, fileResp.Kvs[0].ModRevision, fv, recorded, chunks)
		if err != nil {
			ms.ls.Error(log_service.LogEvent{
				Message:  "Rejected chunk records",
				Metadata: map[string]any{"fileID": fileID, "error": err.Error()},
			})
			return err
		}
		if len(chunks) == 0 {
			return nil
		}

		txn, err := ms.client.Txn(ctx).If(cmps...).Then(ops...).Commit()
		if err != nil {
			return fmt.Errorf("appending chunks: %w", err)
		}
		if txn.Succeeded {
			return nil
		}

		// Either the file was deleted or a concurrent append raced us;
		// the next pass re-validates against the new state.
		if err := backoff(ctx, attempt); err != nil {
			return err
		}
	}
	return errTooMuchContention
}

// appendTxn merges chunks into the recorded list. The transaction is one
// compare on the file and two puts, independent of the number of chunks.
func (ms *EtcdMetadataService) appendTxn(fileID string, fileRev int64, fv fileValue, recorded, chunks []metadata_service.ChunkRecord) ([]clientv3.Cmp, []clientv3.Op, error) {
	orders := make(map[int]struct{}, len(recorded))
	for _, c := range recorded {
		orders[c.Order] = struct{}{}
	}
	if err := metadata_service.ValidateChunks(fv.ChunkCount, orders, chunks); err != nil {
		return nil, nil, err
	}

	merged := make([]metadata_service.ChunkRecord, 0, len(recorded)+len(chunks))
	merged = append(merged, recorded...)
	for _, c := range chunks {
		merged = append(merged, metadata_service.CloneChunk(c))
	}
	metadata_service.SortChunks(merged)
	fv.Recorded = len(merged)

	fileVal, err := json.Marshal(fv)
	if err != nil {
		return nil, nil, err
	}
	listVal, err := json.Marshal(merged)
	if err != nil {
		return nil, nil, err
	}

	fileKey := ms.keys.file(fileID)
	cmps := []clientv3.Cmp{clientv3.Compare(clientv3.ModRevision(fileKey), "=", fileRev)}
	ops := []clientv3.Op{
		clientv3.OpPut(fileKey, string(fileVal)),
		clientv3.OpPut(ms.keys.chunkList(fileID), string(listVal)),
	}
	return cmps, ops, nil
}

func (ms *EtcdMetadataService) readChunks(ctx context.Context, fileID string, rev int64) ([]metadata_service.ChunkRecord, error) {
	resp, err := ms.client.Get(ctx, ms.keys.chunkList(fileID), clientv3.WithRev(rev))
	if err != nil {
		return nil, fmt.Errorf("reading chunks: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}
	var chunks []metadata_service.ChunkRecord
	if err := json.Unmarshal(resp.Kvs[0].Value, &chunks); err != nil {
		return nil, fmt.Errorf("decoding chunks of %s: %w", fileID, err)
	}
	return chunks, nil
}

func (ms *EtcdMetadataService) GetFile(ctx context.Context, fileID string) (*metadata_service.File, error) {
	if !validID(fileID) {
		return nil, metadata_service.ErrFileNotFound
	}

	fileResp, err := ms.client.Get(ctx, ms.keys.file(fileID))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	if len(fileResp.Kvs) == 0 {
		return nil, metadata_service.ErrFileNotFound
	}
	var fv fileValue
	if err := json.Unmarshal(fileResp.Kvs[0].Value, &fv); err != nil {
		return nil, fmt.Errorf("decoding file %s: %w", fileID, err)
	}
	if !fv.complete() {
		return nil, metadata_service.ErrFileNotFound
	}

	// Same revision as the file read, so file and chunks are one snapshot.
	chunks, err := ms.readChunks(ctx, fileID, fileResp.Header.Revision)
	if err != nil {
		return nil, err
	}

	f := fv.toFile(fileID)
	f.Chunks = make([]metadata_service.ChunkRecord, 0, len(chunks))
	for _, c := range chunks {
		if c.Holders == nil {
			c.Holders = []string{}
		}
		f.Chunks = append(f.Chunks, c)
	}
	metadata_service.SortChunks(f.Chunks)

	if !f.Complete() {
		return nil, metadata_service.ErrFileNotFound
	}
	return &f, nil
}

func (ms *EtcdMetadataService) DeleteFile(ctx context.Context, fileID string) error {
	if !validID(fileID) {
		return metadata_service.ErrFileNotFound
	}

	fileKey := ms.keys.file(fileID)
	txn, err := ms.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(fileKey), ">", 0)).
		Then(
			clientv3.OpDelete(fileKey),
			clientv3.OpDelete(ms.keys.chunkList(fileID)),
		).
		Commit()
	if err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	if !txn.Succeeded {
		return metadata_service.ErrFileNotFound
	}

	ms.ls.Info(log_service.LogEvent{
		Message:  "File metadata deleted",
		Metadata: map[string]any{"fileID": fileID},
	})
	return nil
}

func (ms *EtcdMetadataService) ListFiles(ctx context.Context) ([]metadata_service.File, error) {
	fileResp, err := ms.client.Get(ctx, ms.keys.files(), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	files := make([]metadata_service.File, 0, len(fileResp.Kvs))
	prefixLen := len(ms.keys.files())
	for _, kv := range fileResp.Kvs {
		id := string(kv.Key[prefixLen:])
		var fv fileValue
		if err := json.Unmarshal(kv.Value, &fv); err != nil {
			return nil, fmt.Errorf("decoding file %s: %w", id, err)
		}
		if !fv.complete() {
			continue
		}
		files = append(files, fv.toFile(id))
	}
	sort.Slice(files, func(i, j int) bool { return lessID(files[i].ID, files[j].ID) })
	return files, nil
}

var _ metadata_service.MetadataService = (*EtcdMetadataService)(nil)
