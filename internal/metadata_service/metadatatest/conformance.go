// Package metadatatest holds behaviour tests shared by every registry
// implementation.
package metadatatest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnishMulay/ravenfs/internal/metadata_service"
)

// Run exercises a registry built by newService. Each subtest gets a fresh
// instance.
func Run(t *testing.T, newService func(t *testing.T) metadata_service.MetadataService) {
	t.Run("lifecycle", func(t *testing.T) { testLifecycle(t, newService(t)) })
	t.Run("hidden until complete", func(t *testing.T) { testHiddenUntilComplete(t, newService(t)) })
	t.Run("zero chunks visible", func(t *testing.T) { testZeroChunks(t, newService(t)) })
	t.Run("invalid orders", func(t *testing.T) { testInvalidOrders(t, newService(t)) })
	t.Run("not found", func(t *testing.T) { testNotFound(t, newService(t)) })
	t.Run("list order", func(t *testing.T) { testListOrder(t, newService(t)) })
	t.Run("out of order append", func(t *testing.T) { testOutOfOrderAppend(t, newService(t)) })
	t.Run("concurrent files", func(t *testing.T) { testConcurrentFiles(t, newService(t)) })
	t.Run("invalid file", func(t *testing.T) { testInvalidFile(t, newService(t)) })
	t.Run("many chunks", func(t *testing.T) { testManyChunks(t, newService(t)) })
}

func testLifecycle(t *testing.T, ms metadata_service.MetadataService) {
	ctx := context.Background()

	id, err := ms.CreateFile(ctx, "report.pdf", "abc123", 9<<20, 3)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, ms.AppendChunks(ctx, id, []metadata_service.ChunkRecord{
		{Order: 1, Holders: []string{"n1:9000", "n2:9000"}, Digest: "d1"},
		{Order: 2, Holders: []string{"n2:9000"}, Digest: "d2", Key: "u-1_chunk2"},
		{Order: 3, Holders: []string{}, Digest: "d3"},
	}))

	f, err := ms.GetFile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, f.ID)
	assert.Equal(t, "report.pdf", f.Name)
	assert.Equal(t, "abc123", f.Digest)
	assert.EqualValues(t, 9<<20, f.Size)
	assert.Equal(t, 3, f.ChunkCount)
	assert.False(t, f.CreatedAt.IsZero())
	require.Len(t, f.Chunks, 3)
	assert.Equal(t, []string{"n1:9000", "n2:9000"}, f.Chunks[0].Holders)
	assert.Equal(t, "d2", f.Chunks[1].Digest)
	assert.Equal(t, "u-1_chunk2", f.Chunks[1].Key)
	assert.Empty(t, f.Chunks[2].Holders)

	files, err := ms.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, id, files[0].ID)

	require.NoError(t, ms.DeleteFile(ctx, id))
	_, err = ms.GetFile(ctx, id)
	assert.ErrorIs(t, err, metadata_service.ErrFileNotFound)
	assert.ErrorIs(t, ms.DeleteFile(ctx, id), metadata_service.ErrFileNotFound)

	files, err = ms.ListFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func testHiddenUntilComplete(t *testing.T, ms metadata_service.MetadataService) {
	ctx := context.Background()

	id, err := ms.CreateFile(ctx, "partial.bin", "h", 10, 2)
	require.NoError(t, err)

	_, err = ms.GetFile(ctx, id)
	assert.ErrorIs(t, err, metadata_service.ErrFileNotFound)

	require.NoError(t, ms.AppendChunks(ctx, id, []metadata_service.ChunkRecord{{Order: 2, Holders: []string{"a"}}}))
	_, err = ms.GetFile(ctx, id)
	assert.ErrorIs(t, err, metadata_service.ErrFileNotFound)

	files, err := ms.ListFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)

	require.NoError(t, ms.AppendChunks(ctx, id, []metadata_service.ChunkRecord{{Order: 1, Holders: []string{"a"}}}))
	f, err := ms.GetFile(ctx, id)
	require.NoError(t, err)
	assert.Len(t, f.Chunks, 2)

	// Incomplete files can still be removed.
	id2, err := ms.CreateFile(ctx, "abandoned.bin", "h", 10, 2)
	require.NoError(t, err)
	assert.NoError(t, ms.DeleteFile(ctx, id2))
}

func testZeroChunks(t *testing.T, ms metadata_service.MetadataService) {
	ctx := context.Background()

	id, err := ms.CreateFile(ctx, "empty.txt", "e3b0c442", 0, 0)
	require.NoError(t, err)
	require.NoError(t, ms.AppendChunks(ctx, id, nil))

	f, err := ms.GetFile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, f.ChunkCount)
	assert.Empty(t, f.Chunks)
}

func testInvalidOrders(t *testing.T, ms metadata_service.MetadataService) {
	ctx := context.Background()

	id, err := ms.CreateFile(ctx, "x", "h", 1, 2)
	require.NoError(t, err)

	tests := []struct {
		name   string
		orders []int
	}{
		{"zero", []int{0}},
		{"beyond count", []int{3}},
		{"duplicate in batch", []int{1, 1}},
	}
	for _, tt := range tests {
		chunks := make([]metadata_service.ChunkRecord, len(tt.orders))
		for i, o := range tt.orders {
			chunks[i] = metadata_service.ChunkRecord{Order: o}
		}
		assert.ErrorIs(t, ms.AppendChunks(ctx, id, chunks), metadata_service.ErrInvalidChunkOrder, tt.name)
	}

	require.NoError(t, ms.AppendChunks(ctx, id, []metadata_service.ChunkRecord{{Order: 1}}))
	assert.ErrorIs(t, ms.AppendChunks(ctx, id, []metadata_service.ChunkRecord{{Order: 1}}), metadata_service.ErrInvalidChunkOrder)

	// A rejected batch records nothing.
	assert.ErrorIs(t, ms.AppendChunks(ctx, id, []metadata_service.ChunkRecord{{Order: 2}, {Order: 9}}), metadata_service.ErrInvalidChunkOrder)
	_, err = ms.GetFile(ctx, id)
	assert.ErrorIs(t, err, metadata_service.ErrFileNotFound)
}

func testNotFound(t *testing.T, ms metadata_service.MetadataService) {
	ctx := context.Background()

	_, err := ms.GetFile(ctx, "424242")
	assert.ErrorIs(t, err, metadata_service.ErrFileNotFound)
	assert.ErrorIs(t, ms.DeleteFile(ctx, "424242"), metadata_service.ErrFileNotFound)
	assert.ErrorIs(t, ms.AppendChunks(ctx, "424242", []metadata_service.ChunkRecord{{Order: 1}}), metadata_service.ErrFileNotFound)
}

func testListOrder(t *testing.T, ms metadata_service.MetadataService) {
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := ms.CreateFile(ctx, fmt.Sprintf("f%d", i), "h", 0, 0)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	files, err := ms.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 3)
	for i, f := range files {
		assert.Equal(t, ids[i], f.ID)
		assert.Empty(t, f.Chunks)
	}
}

func testOutOfOrderAppend(t *testing.T, ms metadata_service.MetadataService) {
	ctx := context.Background()

	id, err := ms.CreateFile(ctx, "shuffled", "h", 30, 3)
	require.NoError(t, err)
	require.NoError(t, ms.AppendChunks(ctx, id, []metadata_service.ChunkRecord{
		{Order: 3, Digest: "c"}, {Order: 1, Digest: "a"}, {Order: 2, Digest: "b"},
	}))

	f, err := ms.GetFile(ctx, id)
	require.NoError(t, err)
	for i, c := range f.Chunks {
		assert.Equal(t, i+1, c.Order)
	}
	assert.Equal(t, "a", f.Chunks[0].Digest)
}

func testConcurrentFiles(t *testing.T, ms metadata_service.MetadataService) {
	ctx := context.Background()

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := ms.CreateFile(ctx, fmt.Sprintf("c%d", i), "h", 1, 1)
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, ms.AppendChunks(ctx, id, []metadata_service.ChunkRecord{{Order: 1, Holders: []string{"a"}}}))
			ids[i] = id
		}(i)
	}
	wg.Wait()

	unique := make(map[string]struct{}, n)
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	assert.Len(t, unique, n, "ids must be unique")

	files, err := ms.ListFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, files, n)
}

func testInvalidFile(t *testing.T, ms metadata_service.MetadataService) {
	ctx := context.Background()

	_, err := ms.CreateFile(ctx, "", "h", 1, 1)
	assert.ErrorIs(t, err, metadata_service.ErrInvalidFile)
	_, err = ms.CreateFile(ctx, "x", "h", -1, 1)
	assert.ErrorIs(t, err, metadata_service.ErrInvalidFile)
}

// A gigabyte at the default chunk size is 256 records; appends of that
// size must land in one call.
func testManyChunks(t *testing.T, ms metadata_service.MetadataService) {
	ctx := context.Background()

	const n = 300
	id, err := ms.CreateFile(ctx, "large.iso", "h", n*4<<20, n)
	require.NoError(t, err)

	chunks := make([]metadata_service.ChunkRecord, 0, n)
	for order := n; order > n/2; order-- {
		chunks = append(chunks, metadata_service.ChunkRecord{Order: order, Holders: []string{"n1:9000"}, Digest: fmt.Sprintf("d%d", order)})
	}
	require.NoError(t, ms.AppendChunks(ctx, id, chunks))

	rest := make([]metadata_service.ChunkRecord, 0, n/2)
	for order := 1; order <= n/2; order++ {
		rest = append(rest, metadata_service.ChunkRecord{Order: order, Holders: []string{"n2:9000"}, Digest: fmt.Sprintf("d%d", order)})
	}
	require.NoError(t, ms.AppendChunks(ctx, id, rest))

	f, err := ms.GetFile(ctx, id)
	require.NoError(t, err)
	require.Len(t, f.Chunks, n)
	for i, c := range f.Chunks {
		assert.Equal(t, i+1, c.Order)
		assert.Equal(t, fmt.Sprintf("d%d", i+1), c.Digest)
	}

	files, err := ms.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, n, files[0].ChunkCount)
}
