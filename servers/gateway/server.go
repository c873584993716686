package gateway

import (
	"github.com/AnishMulay/ravenfs/internal/chunk_replicator"
	"github.com/AnishMulay/ravenfs/internal/config"
	"github.com/AnishMulay/ravenfs/internal/file_service/replicated"
	"github.com/AnishMulay/ravenfs/internal/log_service"
	"github.com/AnishMulay/ravenfs/internal/log_service/logsetup"
	"github.com/AnishMulay/ravenfs/internal/metrics"
	gatewayserver "github.com/AnishMulay/ravenfs/internal/server/gateway"
	"github.com/AnishMulay/ravenfs/internal/storage_node"
	"github.com/AnishMulay/ravenfs/servers"
)

type Options struct {
	NodeID string
	Config *config.Config
}

// Build assembles the gateway: log service, node clients, metadata
// registry, file service and HTTP API. Resources opened before a failure
// are released before returning.
func Build(opts Options) (servers.Runnable, error) {
	cfg := opts.Config
	if err := cfg.ValidateGateway(); err != nil {
		return nil, err
	}

	// 1. Logging
	ls, closeLog, err := logsetup.New(cfg.Log, opts.NodeID)
	if err != nil {
		return nil, err
	}
	proc := &servers.Process{Closers: []func() error{closeLog}}

	// 2. Storage node clients
	m := metrics.Default()
	comm, err := servers.NewCommunicator(cfg.Gateway.Transport, "", ls)
	if err != nil {
		return nil, proc.Abort(err)
	}
	proc.Closers = append(proc.Closers, comm.Stop)

	pool := storage_node.NewPool(cfg.Gateway.StorageNodes, func(addr string) storage_node.StorageNode {
		return storage_node.NewRemoteNode(addr, cfg.Gateway.NodeTimeout, comm, ls, m)
	})

	// 3. Metadata registry
	ms, closeMS, err := servers.OpenMetadata(cfg.Gateway.Metadata, ls)
	if err != nil {
		return nil, proc.Abort(err)
	}
	if closeMS != nil {
		proc.Closers = append(proc.Closers, closeMS)
	}

	// 4. File service
	fs, err := replicated.NewReplicatedFileService(
		ms,
		chunk_replicator.NewDefaultChunkReplicator(ls, m),
		pool,
		ls,
		m,
		replicated.Options{
			ChunkSize:     cfg.Gateway.ChunkSize.Int(),
			KeyScheme:     replicated.KeyScheme(cfg.Gateway.KeyScheme),
			VerifyDigests: cfg.Gateway.VerifyDigests,
			WriteQuorum:   cfg.Gateway.WriteQuorum,
		},
	)
	if err != nil {
		return nil, proc.Abort(err)
	}

	// 5. HTTP API
	proc.Server = gatewayserver.NewGatewayServer(gatewayserver.Options{
		ListenAddress: cfg.GatewayListen(),
		MaxUploadSize: int64(cfg.Gateway.MaxUploadSize),
	}, fs, pool, ls)

	ls.Info(log_service.LogEvent{
		Message: "Gateway configured",
		Metadata: map[string]any{
			"nodes":     cfg.Gateway.StorageNodes,
			"transport": cfg.Gateway.Transport,
			"metadata":  cfg.Gateway.Metadata.Backend,
			"chunkSize": cfg.Gateway.ChunkSize.String(),
		},
	})
	return proc, nil
}
