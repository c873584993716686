package node

import (
	"fmt"

	"github.com/AnishMulay/ravenfs/internal/chunk_service"
	"github.com/AnishMulay/ravenfs/internal/chunk_service/leveldb"
	"github.com/AnishMulay/ravenfs/internal/chunk_service/localdisc"
	"github.com/AnishMulay/ravenfs/internal/config"
	"github.com/AnishMulay/ravenfs/internal/log_service"
	"github.com/AnishMulay/ravenfs/internal/log_service/logsetup"
	"github.com/AnishMulay/ravenfs/internal/metrics"
	nodeserver "github.com/AnishMulay/ravenfs/internal/server/node"
	"github.com/AnishMulay/ravenfs/servers"
)

type Options struct {
	NodeID string
	Config *config.Config
}

// Build assembles a storage node serving its chunk store over the
// configured transport.
func Build(opts Options) (servers.Runnable, error) {
	cfg := opts.Config
	if err := cfg.ValidateNode(); err != nil {
		return nil, err
	}

	// 1. Logging
	ls, closeLog, err := logsetup.New(cfg.Log, opts.NodeID)
	if err != nil {
		return nil, err
	}
	proc := &servers.Process{Closers: []func() error{closeLog}}

	// 2. Chunk store
	cs, closeStore, err := openChunkStore(cfg.Node, ls)
	if err != nil {
		return nil, proc.Abort(err)
	}
	if closeStore != nil {
		proc.Closers = append(proc.Closers, closeStore)
	}

	// 3. Communication
	comm, err := servers.NewCommunicator(cfg.Node.Transport, cfg.NodeListen(), ls)
	if err != nil {
		return nil, proc.Abort(err)
	}

	// 4. Server
	proc.Server = nodeserver.NewNodeServer(comm, cs, ls, metrics.Default())

	ls.Info(log_service.LogEvent{
		Message: "Storage node configured",
		Metadata: map[string]any{
			"nodeID":    opts.NodeID,
			"backend":   cfg.Node.Backend,
			"chunksDir": cfg.Node.ChunksDir,
			"transport": cfg.Node.Transport,
		},
	})
	return proc, nil
}

func openChunkStore(cfg config.NodeConfig, ls log_service.LogService) (chunk_service.ChunkService, func() error, error) {
	switch cfg.Backend {
	case config.NodeBackendDisk:
		cs, err := localdisc.NewLocalDiscChunkService(cfg.ChunksDir, cfg.Compress, ls)
		if err != nil {
			return nil, nil, err
		}
		return cs, nil, nil

	case config.NodeBackendLevelDB:
		cs, err := leveldb.NewLevelDBChunkService(cfg.ChunksDir, ls)
		if err != nil {
			return nil, nil, err
		}
		return cs, cs.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown chunk store backend %q", cfg.Backend)
	}
}
