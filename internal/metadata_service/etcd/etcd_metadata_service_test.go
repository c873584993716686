package etcd

import (
	"context"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/AnishMulay/ravenfs/internal/log_service/zaplog"
	"github.com/AnishMulay/ravenfs/internal/metadata_service"
	"github.com/AnishMulay/ravenfs/internal/metadata_service/metadatatest"
)

func TestKeyspace(t *testing.T) {
	k := newKeyspace("/test")

	assert.Equal(t, "/test/files/7", k.file("7"))
	assert.Equal(t, "/test/chunks/7", k.chunkList("7"))
	assert.False(t, strings.HasPrefix(k.chunkList("7"), k.files()), "chunk lists must not show up in file listings")
	assert.Equal(t, DefaultPrefix+"meta/next_file_id", newKeyspace("").counter())
}

func TestAppendTxn_SizeIndependentOfChunkCount(t *testing.T) {
	ms := NewEtcdMetadataService(nil, "/test", zaplog.NewNopLogService())
	fv := fileValue{Name: "large.iso", ChunkCount: 1000}

	tests := []struct {
		name     string
		recorded int
		appended int
	}{
		{"single chunk", 0, 1},
		{"above default max-txn-ops", 0, 500},
		{"complete a half recorded file", 500, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorded := make([]metadata_service.ChunkRecord, tt.recorded)
			for i := range recorded {
				recorded[i] = metadata_service.ChunkRecord{Order: i + 1}
			}
			chunks := make([]metadata_service.ChunkRecord, tt.appended)
			for i := range chunks {
				chunks[i] = metadata_service.ChunkRecord{Order: tt.recorded + i + 1, Holders: []string{"n1:9000"}}
			}

			cmps, ops, err := ms.appendTxn("7", 42, fv, recorded, chunks)
			require.NoError(t, err)
			assert.Len(t, cmps, 1)
			assert.Len(t, ops, 2)
		})
	}
}

func TestAppendTxn_RejectsRecordedOrder(t *testing.T) {
	ms := NewEtcdMetadataService(nil, "/test", zaplog.NewNopLogService())
	fv := fileValue{Name: "x", ChunkCount: 2, Recorded: 1}

	_, _, err := ms.appendTxn("7", 42, fv,
		[]metadata_service.ChunkRecord{{Order: 1}},
		[]metadata_service.ChunkRecord{{Order: 1}})
	assert.ErrorIs(t, err, metadata_service.ErrInvalidChunkOrder)
}

func TestLessID(t *testing.T) {
	ids := []string{"10", "2", "1", "100", "9"}
	sort.Slice(ids, func(i, j int) bool { return lessID(ids[i], ids[j]) })
	assert.Equal(t, []string{"1", "2", "9", "10", "100"}, ids)
}

func TestValidID(t *testing.T) {
	assert.True(t, validID("1"))
	assert.False(t, validID("0"))
	assert.False(t, validID("abc"))
	assert.False(t, validID("1/2"))
}

// Runs against a live etcd when RAVENFS_ETCD_ENDPOINTS is set.
func TestEtcdMetadataService(t *testing.T) {
	endpoints := os.Getenv("RAVENFS_ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("RAVENFS_ETCD_ENDPOINTS not set")
	}

	cli, err := Dial(strings.Split(endpoints, ","))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = cli.Status(ctx, cli.Endpoints()[0])
	require.NoError(t, err)

	metadatatest.Run(t, func(t *testing.T) metadata_service.MetadataService {
		prefix := "/ravenfs-test/" + uuid.NewString() + "/"
		t.Cleanup(func() {
			_, _ = cli.Delete(context.Background(), prefix, clientv3.WithPrefix())
		})
		return NewEtcdMetadataService(cli, prefix, zaplog.NewNopLogService())
	})
}
