package metadata

import (
	"github.com/AnishMulay/ravenfs/internal/config"
	"github.com/AnishMulay/ravenfs/internal/log_service"
	"github.com/AnishMulay/ravenfs/internal/log_service/logsetup"
	metadataserver "github.com/AnishMulay/ravenfs/internal/server/metadata"
	"github.com/AnishMulay/ravenfs/servers"
)

type Options struct {
	NodeID string
	Config *config.Config
}

// Build assembles the standalone metadata registry: log service, the
// configured store and its HTTP API.
func Build(opts Options) (servers.Runnable, error) {
	cfg := opts.Config
	if err := cfg.ValidateRegistry(); err != nil {
		return nil, err
	}

	// 1. Logging
	ls, closeLog, err := logsetup.New(cfg.Log, opts.NodeID)
	if err != nil {
		return nil, err
	}
	proc := &servers.Process{Closers: []func() error{closeLog}}

	// 2. Store
	ms, closeMS, err := servers.OpenMetadata(cfg.Registry.Store, ls)
	if err != nil {
		return nil, proc.Abort(err)
	}
	if closeMS != nil {
		proc.Closers = append(proc.Closers, closeMS)
	}

	// 3. HTTP API
	proc.Server = metadataserver.NewMetadataServer(cfg.RegistryListen(), ms, ls)

	ls.Info(log_service.LogEvent{
		Message: "Metadata registry configured",
		Metadata: map[string]any{
			"nodeID":  opts.NodeID,
			"backend": cfg.Registry.Store.Backend,
		},
	})
	return proc, nil
}
