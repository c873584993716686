package main

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnishMulay/ravenfs/internal/chunk_replicator"
	"github.com/AnishMulay/ravenfs/internal/file_service/replicated"
	"github.com/AnishMulay/ravenfs/internal/log_service/zaplog"
	"github.com/AnishMulay/ravenfs/internal/metadata_service/inmemory"
	"github.com/AnishMulay/ravenfs/internal/server/gateway"
	"github.com/AnishMulay/ravenfs/internal/storage_node"
	"github.com/AnishMulay/ravenfs/internal/testutil"
)

func newRegistry(t *testing.T) *GatewayRegistry {
	t.Helper()

	ls := zaplog.NewNopLogService()
	pool := storage_node.NewPoolFromNodes(testutil.AsStorageNodes(testutil.NewMemNodes(2))...)
	fs, err := replicated.NewReplicatedFileService(
		inmemory.NewInMemoryMetadataService(ls),
		chunk_replicator.NewDefaultChunkReplicator(ls, nil),
		pool, ls, nil, replicated.DefaultOptions(),
	)
	require.NoError(t, err)

	srv := httptest.NewServer(gateway.NewGatewayServer(gateway.Options{Gatherer: prometheus.NewRegistry()}, fs, pool, ls).Router())
	t.Cleanup(srv.Close)

	return NewGatewayRegistry(&MCPConfig{
		Gateways:       []GatewayEntry{{ID: "test", Address: srv.URL}},
		DefaultGateway: "test",
	})
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

var fileIDPattern = regexp.MustCompile(`as file (\S+) `)

func TestTools_UploadDownloadDelete(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	res, err := r.handleUpload(ctx, call(map[string]any{"name": "hello.txt", "content": "hello ravenfs"}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	m := fileIDPattern.FindStringSubmatch(resultText(t, res))
	require.Len(t, m, 2)
	fileID := m[1]

	res, err = r.handleDownload(ctx, call(map[string]any{"file_id": fileID}))
	require.NoError(t, err)
	assert.Equal(t, "File hello.txt:\nhello ravenfs", resultText(t, res))

	res, err = r.handleList(ctx, call(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "hello.txt")

	res, err = r.handleDelete(ctx, call(map[string]any{"file_id": fileID}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	res, err = r.handleDownload(ctx, call(map[string]any{"file_id": fileID}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestTools_BinaryContent(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()
	raw := []byte{0xff, 0xfe, 0x00, 0x01}

	res, err := r.handleUpload(ctx, call(map[string]any{
		"name":     "blob.bin",
		"content":  base64.StdEncoding.EncodeToString(raw),
		"encoding": "base64",
	}))
	require.NoError(t, err)
	fileID := fileIDPattern.FindStringSubmatch(resultText(t, res))[1]

	res, err = r.handleDownload(ctx, call(map[string]any{"file_id": fileID}))
	require.NoError(t, err)
	assert.Equal(t, "File blob.bin (base64):\n"+base64.StdEncoding.EncodeToString(raw), resultText(t, res))
}

func TestTools_Errors(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	res, err := r.handleUpload(ctx, call(map[string]any{"name": "x"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = r.handleList(ctx, call(map[string]any{"gateway": "elsewhere"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = r.handleUpload(ctx, call(map[string]any{"name": "x", "content": "%%%", "encoding": "base64"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestTools_HealthAndGateways(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	res, err := r.handleHealth(ctx, call(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "Gateway status: ok")

	res, err = r.handleListGateways(ctx, call(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "Default gateway: test")
}

func TestLoadConfig_WritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp", "config.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.DefaultGateway)

	_, err = os.Stat(path)
	require.NoError(t, err)

	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}
