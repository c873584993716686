package servers

import (
	"context"
	"fmt"

	"github.com/AnishMulay/ravenfs/internal/config"
	"github.com/AnishMulay/ravenfs/internal/log_service"
	"github.com/AnishMulay/ravenfs/internal/metadata_service"
	etcdms "github.com/AnishMulay/ravenfs/internal/metadata_service/etcd"
	httpmeta "github.com/AnishMulay/ravenfs/internal/metadata_service/http"
	"github.com/AnishMulay/ravenfs/internal/metadata_service/inmemory"
	sqlitems "github.com/AnishMulay/ravenfs/internal/metadata_service/sqlite"
)

// OpenMetadata opens the configured registry backend. The returned closer
// is nil when there is nothing to release.
func OpenMetadata(cfg config.MetadataConfig, ls log_service.LogService) (metadata_service.MetadataService, func() error, error) {
	switch cfg.Backend {
	case config.MetadataMemory:
		return inmemory.NewInMemoryMetadataService(ls), nil, nil

	case config.MetadataSQLite:
		ms, err := sqlitems.NewSQLiteMetadataService(context.Background(), cfg.SQLitePath, ls)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite registry: %w", err)
		}
		return ms, ms.Close, nil

	case config.MetadataEtcd:
		client, err := etcdms.Dial(cfg.EtcdEndpoints)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to etcd: %w", err)
		}
		ms := etcdms.NewEtcdMetadataService(client, cfg.EtcdPrefix, ls)
		return ms, ms.Close, nil

	case config.MetadataHTTP:
		return httpmeta.NewHTTPMetadataService(cfg.URL, cfg.Timeout, ls), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown metadata backend %q", cfg.Backend)
	}
}
