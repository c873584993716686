package replicated

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnishMulay/ravenfs/internal/chunk_replicator"
	"github.com/AnishMulay/ravenfs/internal/chunker"
	"github.com/AnishMulay/ravenfs/internal/file_service"
	"github.com/AnishMulay/ravenfs/internal/log_service/zaplog"
	"github.com/AnishMulay/ravenfs/internal/metadata_service"
	"github.com/AnishMulay/ravenfs/internal/metadata_service/inmemory"
	"github.com/AnishMulay/ravenfs/internal/storage_node"
	"github.com/AnishMulay/ravenfs/internal/testutil"
)

const mib = 1 << 20

type harness struct {
	fs    *ReplicatedFileService
	ms    *inmemory.InMemoryMetadataService
	nodes []*testutil.MemNode
}

func newHarness(t *testing.T, nodeCount int, mutate func(*Options)) *harness {
	t.Helper()

	ls := zaplog.NewNopLogService()
	nodes := testutil.NewMemNodes(nodeCount)
	ms := inmemory.NewInMemoryMetadataService(ls)

	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}

	fs, err := NewReplicatedFileService(
		ms,
		chunk_replicator.NewDefaultChunkReplicator(ls, nil),
		storage_node.NewPoolFromNodes(testutil.AsStorageNodes(nodes)...),
		ls,
		nil,
		opts,
	)
	require.NoError(t, err)
	return &harness{fs: fs, ms: ms, nodes: nodes}
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(b)
	return b
}

func TestUploadDownload_NineMiBAcrossThreeNodes(t *testing.T) {
	h := newHarness(t, 3, nil)
	ctx := context.Background()
	data := randomBytes(9 * mib)

	res, err := h.fs.Upload(ctx, "video.mp4", data)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ChunkCount)
	assert.False(t, res.Degraded)
	assert.Equal(t, chunker.Digest(data), res.Digest)
	assert.EqualValues(t, 9*mib, res.Size)

	for i, c := range res.Chunks {
		assert.Equal(t, i+1, c.Order)
		assert.Equal(t, []string{"node-1", "node-2", "node-3"}, c.Holders)
		assert.Empty(t, c.Key)
	}
	for _, n := range h.nodes {
		assert.True(t, n.Has("video.mp4_chunk1"))
		assert.True(t, n.Has("video.mp4_chunk3"))
		assert.Equal(t, 3, n.Len())
	}

	got, err := h.fs.Download(ctx, res.FileID)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got.Data))
	assert.Equal(t, "video.mp4", got.File.Name)
}

func TestUpload_NodeDownIsDegradedNotFailed(t *testing.T) {
	h := newHarness(t, 3, nil)
	ctx := context.Background()
	h.nodes[1].SetDown(true)

	data := randomBytes(5 * mib)
	res, err := h.fs.Upload(ctx, "a.bin", data)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	for _, c := range res.Chunks {
		assert.Equal(t, []string{"node-1", "node-3"}, c.Holders)
	}

	h.nodes[1].SetDown(false)
	got, err := h.fs.Download(ctx, res.FileID)
	require.NoError(t, err)
	assert.Equal(t, data, got.Data)
	assert.Zero(t, h.nodes[1].Gets.Load(), "non-holders are never asked")
}

func TestUpload_AllNodesDownStillRegisters(t *testing.T) {
	h := newHarness(t, 2, nil)
	ctx := context.Background()
	for _, n := range h.nodes {
		n.SetDown(true)
	}

	res, err := h.fs.Upload(ctx, "lost.txt", []byte("gone"))
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Empty(t, res.Chunks[0].Holders)

	_, err = h.fs.Download(ctx, res.FileID)
	var cue *file_service.ChunkUnavailableError
	require.ErrorAs(t, err, &cue)
	assert.Equal(t, 1, cue.Order)
	assert.ErrorIs(t, err, chunk_replicator.ErrChunkNotFound)
}

func TestDownload_SurvivesTwoOfThreeNodesDown(t *testing.T) {
	h := newHarness(t, 3, nil)
	ctx := context.Background()
	data := randomBytes(6 * mib)

	res, err := h.fs.Upload(ctx, "b.bin", data)
	require.NoError(t, err)

	h.nodes[0].SetDown(true)
	h.nodes[2].SetDown(true)
	got, err := h.fs.Download(ctx, res.FileID)
	require.NoError(t, err)
	assert.Equal(t, data, got.Data)
}

func TestDownload_ReportsMissingChunk(t *testing.T) {
	h := newHarness(t, 2, nil)
	ctx := context.Background()

	res, err := h.fs.Upload(ctx, "c.bin", randomBytes(9*mib))
	require.NoError(t, err)

	for _, n := range h.nodes {
		n.Drop("c.bin_chunk2")
	}
	_, err = h.fs.Download(ctx, res.FileID)

	var cue *file_service.ChunkUnavailableError
	require.ErrorAs(t, err, &cue)
	assert.Equal(t, 2, cue.Order)
	assert.Equal(t, res.FileID, cue.FileID)
}

func TestDownload_UnknownFile(t *testing.T) {
	h := newHarness(t, 1, nil)
	_, err := h.fs.Download(context.Background(), "nope")
	assert.ErrorIs(t, err, metadata_service.ErrFileNotFound)
}

func TestDownload_ConcatenatesByRecordedOrder(t *testing.T) {
	h := newHarness(t, 1, nil)
	ctx := context.Background()
	node := h.nodes[0]

	parts := [][]byte{[]byte("alpha-"), []byte("beta-"), []byte("gamma")}
	whole := bytes.Join(parts, nil)
	for i, p := range parts {
		require.NoError(t, node.Put(ctx, chunker.ChunkKey("greek.txt", i+1), p))
	}

	id, err := h.ms.CreateFile(ctx, "greek.txt", chunker.Digest(whole), int64(len(whole)), 3)
	require.NoError(t, err)
	// Records arrive in completion order, not chunk order.
	require.NoError(t, h.ms.AppendChunks(ctx, id, []metadata_service.ChunkRecord{
		{Order: 3, Holders: []string{"node-1"}, Digest: chunker.Digest(parts[2])},
		{Order: 1, Holders: []string{"node-1"}, Digest: chunker.Digest(parts[0])},
		{Order: 2, Holders: []string{"node-1"}, Digest: chunker.Digest(parts[1])},
	}))

	got, err := h.fs.Download(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alpha-beta-gamma", string(got.Data))
}

func TestDownload_ChunksCompletingOutOfOrder(t *testing.T) {
	h := newHarness(t, 1, func(o *Options) { o.ChunkSize = 4 })
	ctx := context.Background()
	node := h.nodes[0]

	res, err := h.fs.Upload(ctx, "slow.txt", []byte("aaaabbbbcccc"))
	require.NoError(t, err)
	require.Equal(t, 3, res.ChunkCount)

	// Chunk 1 finishes last and chunk 3 first.
	node.SetKeyDelay("slow.txt_chunk1", 60*time.Millisecond)
	node.SetKeyDelay("slow.txt_chunk2", 30*time.Millisecond)

	got, err := h.fs.Download(ctx, res.FileID)
	require.NoError(t, err)
	assert.Equal(t, "aaaabbbbcccc", string(got.Data))
	assert.Equal(t, []string{"slow.txt_chunk3", "slow.txt_chunk2", "slow.txt_chunk1"}, node.Served())
}

func TestDownload_CorruptReplicaIsSkipped(t *testing.T) {
	h := newHarness(t, 3, nil)
	ctx := context.Background()
	data := randomBytes(2 * mib)

	res, err := h.fs.Upload(ctx, "d.bin", data)
	require.NoError(t, err)

	h.nodes[0].SetCorrupt(true)
	h.nodes[1].SetCorrupt(true)
	got, err := h.fs.Download(ctx, res.FileID)
	require.NoError(t, err)
	assert.Equal(t, data, got.Data)

	h.nodes[2].SetCorrupt(true)
	_, err = h.fs.Download(ctx, res.FileID)
	assert.ErrorIs(t, err, chunk_replicator.ErrChunkNotFound)
}

func TestDownload_NoVerificationReturnsWhateverWins(t *testing.T) {
	h := newHarness(t, 1, func(o *Options) { o.VerifyDigests = false })
	ctx := context.Background()

	res, err := h.fs.Upload(ctx, "e.txt", []byte("hello"))
	require.NoError(t, err)

	h.nodes[0].SetCorrupt(true)
	got, err := h.fs.Download(ctx, res.FileID)
	require.NoError(t, err)
	assert.NotEqual(t, []byte("hello"), got.Data)
}

func TestZeroLengthFile(t *testing.T) {
	h := newHarness(t, 3, nil)
	ctx := context.Background()

	res, err := h.fs.Upload(ctx, "empty.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ChunkCount)
	assert.False(t, res.Degraded)
	assert.Equal(t, chunker.Digest(nil), res.Digest)
	for _, n := range h.nodes {
		assert.Zero(t, n.Puts.Load())
	}

	got, err := h.fs.Download(ctx, res.FileID)
	require.NoError(t, err)
	assert.Empty(t, got.Data)

	del, err := h.fs.Delete(ctx, res.FileID)
	require.NoError(t, err)
	assert.True(t, del.Complete)
	assert.Empty(t, del.Chunks)
}

func TestDelete(t *testing.T) {
	h := newHarness(t, 3, nil)
	ctx := context.Background()

	res, err := h.fs.Upload(ctx, "f.bin", randomBytes(5*mib))
	require.NoError(t, err)

	del, err := h.fs.Delete(ctx, res.FileID)
	require.NoError(t, err)
	assert.True(t, del.Complete)
	require.Len(t, del.Chunks, 2)
	for order, perNode := range del.Chunks {
		require.Len(t, perNode, 3, "chunk %d", order)
		for _, o := range perNode {
			assert.Equal(t, storage_node.StatusOK, o.Status)
		}
	}
	for _, n := range h.nodes {
		assert.Zero(t, n.Len())
	}

	_, err = h.fs.Delete(ctx, res.FileID)
	assert.ErrorIs(t, err, metadata_service.ErrFileNotFound)
	_, err = h.fs.Download(ctx, res.FileID)
	assert.ErrorIs(t, err, metadata_service.ErrFileNotFound)
}

func TestDelete_PartialStillRemovesMetadata(t *testing.T) {
	h := newHarness(t, 3, nil)
	ctx := context.Background()

	res, err := h.fs.Upload(ctx, "g.bin", []byte("data"))
	require.NoError(t, err)

	h.nodes[2].SetDown(true)
	h.nodes[1].Drop("g.bin_chunk1")

	del, err := h.fs.Delete(ctx, res.FileID)
	require.NoError(t, err)
	assert.False(t, del.Complete)
	outcomes := del.Chunks[1]
	assert.Equal(t, storage_node.StatusOK, outcomes["node-1"].Status)
	assert.Equal(t, storage_node.StatusNotFound, outcomes["node-2"].Status)
	assert.Equal(t, storage_node.StatusError, outcomes["node-3"].Status)

	files, err := h.fs.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.True(t, h.nodes[2].Has("g.bin_chunk1"), "unreachable replica is orphaned")
}

func TestWriteQuorum(t *testing.T) {
	h := newHarness(t, 3, func(o *Options) { o.WriteQuorum = 3 })
	ctx := context.Background()
	h.nodes[0].SetDown(true)

	_, err := h.fs.Upload(ctx, "q.bin", []byte("quorum"))
	assert.ErrorIs(t, err, file_service.ErrInsufficientReplicas)

	files, err := h.fs.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.False(t, h.nodes[1].Has("q.bin_chunk1"), "placed replicas are discarded")
}

func TestUniqueKeyScheme_SameNameTwice(t *testing.T) {
	h := newHarness(t, 2, func(o *Options) { o.KeyScheme = KeySchemeUnique })
	ctx := context.Background()

	first, err := h.fs.Upload(ctx, "same.txt", []byte("first version"))
	require.NoError(t, err)
	second, err := h.fs.Upload(ctx, "same.txt", []byte("second version"))
	require.NoError(t, err)

	assert.NotEmpty(t, first.Chunks[0].Key)
	assert.NotEqual(t, first.Chunks[0].Key, second.Chunks[0].Key)

	got, err := h.fs.Download(ctx, first.FileID)
	require.NoError(t, err)
	assert.Equal(t, "first version", string(got.Data))

	_, err = h.fs.Delete(ctx, second.FileID)
	require.NoError(t, err)
	got, err = h.fs.Download(ctx, first.FileID)
	require.NoError(t, err)
	assert.Equal(t, "first version", string(got.Data))
}

func TestList(t *testing.T) {
	h := newHarness(t, 1, nil)
	ctx := context.Background()

	for _, name := range []string{"one", "two"} {
		_, err := h.fs.Upload(ctx, name, []byte(name))
		require.NoError(t, err)
	}
	files, err := h.fs.List(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "one", files[0].Name)
	assert.Equal(t, "two", files[1].Name)
}

func TestUpload_RejectsEmptyName(t *testing.T) {
	h := newHarness(t, 1, nil)
	_, err := h.fs.Upload(context.Background(), "", []byte("x"))
	assert.True(t, errors.Is(err, file_service.ErrInvalidFileName))
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Options) {}},
		{name: "zero chunk size", mutate: func(o *Options) { o.ChunkSize = 0 }, wantErr: true},
		{name: "unknown scheme", mutate: func(o *Options) { o.KeyScheme = "hash" }, wantErr: true},
		{name: "negative quorum", mutate: func(o *Options) { o.WriteQuorum = -1 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mutate(&o)
			if err := o.validate(); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type failingRegistry struct {
	metadata_service.MetadataService
	createErr error
	appendErr error
}

func (r *failingRegistry) CreateFile(ctx context.Context, name, digest string, size int64, chunkCount int) (string, error) {
	if r.createErr != nil {
		return "", r.createErr
	}
	return r.MetadataService.CreateFile(ctx, name, digest, size, chunkCount)
}

func (r *failingRegistry) AppendChunks(ctx context.Context, fileID string, chunks []metadata_service.ChunkRecord) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	return r.MetadataService.AppendChunks(ctx, fileID, chunks)
}

func TestUpload_RegistryFailureDiscardsReplicas(t *testing.T) {
	errRegistry := errors.New("registry unavailable")

	tests := []struct {
		name      string
		scheme    KeyScheme
		createErr error
		appendErr error
	}{
		{"create fails", KeySchemeName, errRegistry, nil},
		{"append fails", KeySchemeName, nil, errRegistry},
		{"append fails with unique keys", KeySchemeUnique, nil, errRegistry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ls := zaplog.NewNopLogService()
			nodes := testutil.NewMemNodes(3)
			inner := inmemory.NewInMemoryMetadataService(ls)
			ms := &failingRegistry{MetadataService: inner, createErr: tt.createErr, appendErr: tt.appendErr}

			opts := DefaultOptions()
			opts.ChunkSize = 4
			opts.KeyScheme = tt.scheme
			fs, err := NewReplicatedFileService(
				ms,
				chunk_replicator.NewDefaultChunkReplicator(ls, nil),
				storage_node.NewPoolFromNodes(testutil.AsStorageNodes(nodes)...),
				ls,
				nil,
				opts,
			)
			require.NoError(t, err)

			_, err = fs.Upload(context.Background(), "lost.bin", []byte("0123456789"))
			require.ErrorIs(t, err, errRegistry)

			for _, n := range nodes {
				assert.Equal(t, 3, int(n.Puts.Load()))
				assert.Zero(t, n.Len(), "%s still holds chunks", n.Address())
			}
			files, err := inner.ListFiles(context.Background())
			require.NoError(t, err)
			assert.Empty(t, files)
		})
	}
}
