package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	grpccomm "github.com/AnishMulay/ravenfs/internal/communication/grpc"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ravenfs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ByteSize(4<<20), cfg.Gateway.ChunkSize)
	assert.Equal(t, 60*time.Second, cfg.Gateway.NodeTimeout)
	assert.Equal(t, "name", cfg.Gateway.KeyScheme)
	assert.True(t, cfg.Gateway.VerifyDigests)
	assert.Equal(t, MetadataSQLite, cfg.Gateway.Metadata.Backend)
	assert.Equal(t, "chunks", cfg.Node.ChunksDir)
	assert.Equal(t, ":5000", cfg.GatewayListen())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
gateway:
  listen: ":8080"
  storage_nodes: ["localhost:5001", " localhost:5002 ", ""]
  transport: GRPC
  chunk_size: 1MiB
  node_timeout: 5s
  key_scheme: unique
  write_quorum: 2
  metadata:
    backend: etcd
    etcd_endpoints: ["127.0.0.1:2379"]
node:
  backend: leveldb
  compress: true
log:
  level: debug
  json: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:5001", "localhost:5002"}, cfg.Gateway.StorageNodes)
	assert.Equal(t, TransportGRPC, cfg.Gateway.Transport)
	assert.Equal(t, ByteSize(1<<20), cfg.Gateway.ChunkSize)
	assert.Equal(t, 5*time.Second, cfg.Gateway.NodeTimeout)
	assert.Equal(t, "unique", cfg.Gateway.KeyScheme)
	assert.Equal(t, 2, cfg.Gateway.WriteQuorum)
	assert.Equal(t, MetadataEtcd, cfg.Gateway.Metadata.Backend)
	assert.Equal(t, "/ravenfs/", cfg.Gateway.Metadata.EtcdPrefix)
	assert.Equal(t, NodeBackendLevelDB, cfg.Node.Backend)
	assert.True(t, cfg.Node.Compress)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.NoError(t, cfg.ValidateGateway())
}

func TestLoad_UnknownField(t *testing.T) {
	path := writeConfig(t, "gateway:\n  chunksize: 10\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default().Gateway.Listen, cfg.Gateway.Listen)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "gateway:\n  storage_nodes: [\"file:1\"]\n")

	t.Setenv("STORAGE_NODES", "a:1, b:2 ,c:3")
	t.Setenv("CHUNKS_DIR", "/var/lib/ravenfs")
	t.Setenv("PORT", "7000")
	t.Setenv("RAVENFS_GATEWAY_CHUNK_SIZE", "64KiB")
	t.Setenv("RAVENFS_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"a:1", "b:2", "c:3"}, cfg.Gateway.StorageNodes)
	assert.Equal(t, "/var/lib/ravenfs", cfg.Node.ChunksDir)
	assert.Equal(t, ByteSize(64<<10), cfg.Gateway.ChunkSize)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, ":7000", cfg.GatewayListen())
	assert.Equal(t, ":7000", cfg.NodeListen())
}

func TestByteSize(t *testing.T) {
	tests := []struct {
		in      string
		want    ByteSize
		wantErr bool
	}{
		{"4194304", 4 << 20, false},
		{"4MiB", 4 << 20, false},
		{"4 MB", 4_000_000, false},
		{"512KiB", 512 << 10, false},
		{"lots", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var b ByteSize
			err := b.UnmarshalText([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, b)
		})
	}
}

func TestValidateGateway(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"no nodes", func(c *Config) { c.Gateway.StorageNodes = nil }, "storage_nodes"},
		{"bad transport", func(c *Config) { c.Gateway.Transport = "udp" }, "transport"},
		{"zero chunk size", func(c *Config) { c.Gateway.ChunkSize = 0 }, "chunk_size"},
		{"grpc chunk over message limit", func(c *Config) {
			c.Gateway.Transport = TransportGRPC
			c.Gateway.ChunkSize = 128 << 20
		}, "chunk_size"},
		{"grpc chunk at 64MiB", func(c *Config) {
			c.Gateway.Transport = TransportGRPC
			c.Gateway.ChunkSize = 64 << 20
		}, "grpc limit"},
		{"grpc chunk at limit", func(c *Config) {
			c.Gateway.Transport = TransportGRPC
			c.Gateway.ChunkSize = grpccomm.MaxChunkSize
		}, ""},
		{"http chunk above grpc limit", func(c *Config) { c.Gateway.ChunkSize = 128 << 20 }, ""},
		{"zero timeout", func(c *Config) { c.Gateway.NodeTimeout = 0 }, "node_timeout"},
		{"bad key scheme", func(c *Config) { c.Gateway.KeyScheme = "random" }, "key_scheme"},
		{"quorum too large", func(c *Config) { c.Gateway.WriteQuorum = 3 }, "write_quorum"},
		{"etcd without endpoints", func(c *Config) { c.Gateway.Metadata.Backend = MetadataEtcd }, "etcd_endpoints"},
		{"unknown metadata", func(c *Config) { c.Gateway.Metadata.Backend = "mongo" }, "metadata.backend"},
		{"http metadata", func(c *Config) {
			c.Gateway.Metadata.Backend = MetadataHTTP
			c.Gateway.Metadata.URL = "http://registry:5002"
		}, ""},
		{"http metadata without url", func(c *Config) { c.Gateway.Metadata.Backend = MetadataHTTP }, "metadata.url"},
		{"http metadata with bare host", func(c *Config) {
			c.Gateway.Metadata.Backend = MetadataHTTP
			c.Gateway.Metadata.URL = "registry:5002"
		}, "metadata.url"},
		{"http metadata without timeout", func(c *Config) {
			c.Gateway.Metadata.Backend = MetadataHTTP
			c.Gateway.Metadata.URL = "http://registry:5002"
			c.Gateway.Metadata.Timeout = 0
		}, "metadata.timeout"},
		{"unknown log backend", func(c *Config) { c.Log.Backend = "syslog" }, "log.backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Gateway.StorageNodes = []string{"a:1", "b:2"}
			tt.mutate(&cfg)

			err := cfg.ValidateGateway()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateNode(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.ValidateNode())

	cfg.Node.Backend = "s3"
	assert.ErrorContains(t, cfg.ValidateNode(), "node.backend")

	cfg = Default()
	cfg.Node.ChunksDir = ""
	assert.ErrorContains(t, cfg.ValidateNode(), "chunks_dir")
}

func TestValidateRegistry(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.ValidateRegistry())
	assert.Equal(t, ":5002", cfg.RegistryListen())

	cfg.Registry.Store.Backend = MetadataHTTP
	cfg.Registry.Store.URL = "http://other:5002"
	assert.ErrorContains(t, cfg.ValidateRegistry(), "registry.store.backend")

	cfg.Registry.Store = MetadataConfig{Backend: MetadataSQLite}
	assert.ErrorContains(t, cfg.ValidateRegistry(), "registry.store.sqlite_path")
}

func TestLoad_MetadataURLFromEnvironment(t *testing.T) {
	t.Setenv("METADATA_URL", " http://registry:5002/ ")
	t.Setenv("RAVENFS_GATEWAY_METADATA_BACKEND", "http")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, MetadataHTTP, cfg.Gateway.Metadata.Backend)
	assert.Equal(t, "http://registry:5002", cfg.Gateway.Metadata.URL)
	assert.Equal(t, 60*time.Second, cfg.Gateway.Metadata.Timeout)
}
