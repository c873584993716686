package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/AnishMulay/ravenfs/internal/chunker"
	grpccomm "github.com/AnishMulay/ravenfs/internal/communication/grpc"
)

// EnvPrefix namespaces environment overrides, e.g. RAVENFS_LOG_LEVEL.
// Fields tagged with an envconfig name also honour the bare name, so the
// STORAGE_NODES, CHUNKS_DIR and PORT variables of existing deployments
// keep working.
const EnvPrefix = "RAVENFS"

const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"

	MetadataMemory = "memory"
	MetadataSQLite = "sqlite"
	MetadataEtcd   = "etcd"
	MetadataHTTP   = "http"

	NodeBackendDisk    = "disk"
	NodeBackendLevelDB = "leveldb"

	LogBackendZap       = "zap"
	LogBackendLocalDisc = "localdisc"
)

// Config is read once at start-up and treated as immutable afterwards.
type Config struct {
	// Port overrides the listen port of whichever process is started.
	Port int `yaml:"-" envconfig:"PORT"`

	Gateway  GatewayConfig  `yaml:"gateway"`
	Node     NodeConfig     `yaml:"node"`
	Registry RegistryConfig `yaml:"registry"`
	Log      LogConfig      `yaml:"log"`
}

type GatewayConfig struct {
	Listen        string        `yaml:"listen"`
	StorageNodes  []string      `yaml:"storage_nodes" envconfig:"STORAGE_NODES"`
	Transport     string        `yaml:"transport"`
	ChunkSize     ByteSize      `yaml:"chunk_size" envconfig:"CHUNK_SIZE"`
	NodeTimeout   time.Duration `yaml:"node_timeout" envconfig:"NODE_TIMEOUT"`
	KeyScheme     string        `yaml:"key_scheme" envconfig:"KEY_SCHEME"`
	VerifyDigests bool          `yaml:"verify_digests" envconfig:"VERIFY_DIGESTS"`
	WriteQuorum   int           `yaml:"write_quorum" envconfig:"WRITE_QUORUM"`
	MaxUploadSize ByteSize      `yaml:"max_upload_size" envconfig:"MAX_UPLOAD_SIZE"`

	Metadata MetadataConfig `yaml:"metadata"`
}

type MetadataConfig struct {
	Backend       string   `yaml:"backend"`
	SQLitePath    string   `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
	EtcdEndpoints []string `yaml:"etcd_endpoints" envconfig:"ETCD_ENDPOINTS"`
	EtcdPrefix    string   `yaml:"etcd_prefix" envconfig:"ETCD_PREFIX"`
	// URL and Timeout reach a standalone registry (backend http).
	URL     string        `yaml:"url" envconfig:"METADATA_URL"`
	Timeout time.Duration `yaml:"timeout"`
}

// RegistryConfig configures the standalone metadata registry process.
type RegistryConfig struct {
	Listen string         `yaml:"listen"`
	Store  MetadataConfig `yaml:"store"`
}

type NodeConfig struct {
	Listen    string `yaml:"listen"`
	Transport string `yaml:"transport"`
	Backend   string `yaml:"backend"`
	ChunksDir string `yaml:"chunks_dir" envconfig:"CHUNKS_DIR"`
	Compress  bool   `yaml:"compress"`
}

type LogConfig struct {
	Backend string `yaml:"backend"`
	Level   string `yaml:"level"`
	JSON    bool   `yaml:"json"`
	Dir     string `yaml:"dir"`
}

func Default() Config {
	return Config{
		Gateway: GatewayConfig{
			Listen:        ":5000",
			Transport:     TransportHTTP,
			ChunkSize:     ByteSize(chunker.DefaultChunkSize),
			NodeTimeout:   60 * time.Second,
			KeyScheme:     "name",
			VerifyDigests: true,
			MaxUploadSize: 1 << 30,
			Metadata: MetadataConfig{
				Backend:    MetadataSQLite,
				SQLitePath: "metadata.db",
				EtcdPrefix: "/ravenfs/",
				Timeout:    60 * time.Second,
			},
		},
		Node: NodeConfig{
			Listen:    ":5001",
			Transport: TransportHTTP,
			Backend:   NodeBackendDisk,
			ChunksDir: "chunks",
		},
		Registry: RegistryConfig{
			Listen: ":5002",
			Store: MetadataConfig{
				Backend:    MetadataSQLite,
				SQLitePath: "metadata.db",
				EtcdPrefix: "/ravenfs/",
			},
		},
		Log: LogConfig{
			Backend: LogBackendZap,
			Level:   "info",
			Dir:     "logs",
		},
	}
}

// Load applies, in order: defaults, the YAML file at path (if any), and
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Gateway.StorageNodes = cleanList(c.Gateway.StorageNodes)
	c.Gateway.Metadata.EtcdEndpoints = cleanList(c.Gateway.Metadata.EtcdEndpoints)
	c.Gateway.Metadata.URL = strings.TrimRight(strings.TrimSpace(c.Gateway.Metadata.URL), "/")
	c.Registry.Store.EtcdEndpoints = cleanList(c.Registry.Store.EtcdEndpoints)
	c.Gateway.Transport = strings.ToLower(c.Gateway.Transport)
	c.Node.Transport = strings.ToLower(c.Node.Transport)
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func withPort(listen string, port int) string {
	if port <= 0 {
		return listen
	}
	host := ""
	if i := strings.LastIndex(listen, ":"); i >= 0 {
		host = listen[:i]
	}
	return host + ":" + strconv.Itoa(port)
}

func (c *Config) GatewayListen() string { return withPort(c.Gateway.Listen, c.Port) }

func (c *Config) NodeListen() string { return withPort(c.Node.Listen, c.Port) }

func (c *Config) RegistryListen() string { return withPort(c.Registry.Listen, c.Port) }

func validTransport(t string) bool {
	return t == TransportHTTP || t == TransportGRPC
}

func (c *Config) ValidateGateway() error {
	g := c.Gateway
	switch {
	case len(g.StorageNodes) == 0:
		return errors.New("gateway.storage_nodes: at least one storage node required")
	case !validTransport(g.Transport):
		return fmt.Errorf("gateway.transport: unknown transport %q", g.Transport)
	case g.ChunkSize == 0:
		return errors.New("gateway.chunk_size: must be positive")
	case g.Transport == TransportGRPC && g.ChunkSize > grpccomm.MaxChunkSize:
		return fmt.Errorf("gateway.chunk_size: %d bytes exceeds the grpc limit of %d bytes", uint64(g.ChunkSize), grpccomm.MaxChunkSize)
	case g.NodeTimeout <= 0:
		return errors.New("gateway.node_timeout: must be positive")
	case g.KeyScheme != "name" && g.KeyScheme != "unique":
		return fmt.Errorf("gateway.key_scheme: unknown scheme %q", g.KeyScheme)
	case g.WriteQuorum < 0 || g.WriteQuorum > len(g.StorageNodes):
		return fmt.Errorf("gateway.write_quorum: %d outside 0..%d", g.WriteQuorum, len(g.StorageNodes))
	}

	if err := validateMetadata("gateway.metadata", g.Metadata, true); err != nil {
		return err
	}
	return c.validateLog()
}

// ValidateRegistry checks the standalone registry. Its store must be
// local; it cannot forward to another registry.
func (c *Config) ValidateRegistry() error {
	if err := validateMetadata("registry.store", c.Registry.Store, false); err != nil {
		return err
	}
	return c.validateLog()
}

func validateMetadata(field string, m MetadataConfig, allowRemote bool) error {
	switch m.Backend {
	case MetadataMemory:
	case MetadataSQLite:
		if m.SQLitePath == "" {
			return fmt.Errorf("%s.sqlite_path: required for sqlite backend", field)
		}
	case MetadataEtcd:
		if len(m.EtcdEndpoints) == 0 {
			return fmt.Errorf("%s.etcd_endpoints: required for etcd backend", field)
		}
	case MetadataHTTP:
		if !allowRemote {
			return fmt.Errorf("%s.backend: http is not a local store", field)
		}
		u, err := url.Parse(m.URL)
		if m.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s.url: http(s) URL required for http backend, got %q", field, m.URL)
		}
		if m.Timeout <= 0 {
			return fmt.Errorf("%s.timeout: must be positive", field)
		}
	default:
		return fmt.Errorf("%s.backend: unknown backend %q", field, m.Backend)
	}
	return nil
}

func (c *Config) ValidateNode() error {
	n := c.Node
	switch {
	case !validTransport(n.Transport):
		return fmt.Errorf("node.transport: unknown transport %q", n.Transport)
	case n.Backend != NodeBackendDisk && n.Backend != NodeBackendLevelDB:
		return fmt.Errorf("node.backend: unknown backend %q", n.Backend)
	case n.ChunksDir == "":
		return errors.New("node.chunks_dir: required")
	}
	return c.validateLog()
}

func (c *Config) validateLog() error {
	switch c.Log.Backend {
	case LogBackendZap:
	case LogBackendLocalDisc:
		if c.Log.Dir == "" {
			return errors.New("log.dir: required for localdisc backend")
		}
	default:
		return fmt.Errorf("log.backend: unknown backend %q", c.Log.Backend)
	}
	return nil
}
