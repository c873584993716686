// Package logsetup builds the configured LogService for a process.
package logsetup

import (
	"fmt"

	"github.com/AnishMulay/ravenfs/internal/config"
	"github.com/AnishMulay/ravenfs/internal/log_service"
	"github.com/AnishMulay/ravenfs/internal/log_service/localdisc"
	"github.com/AnishMulay/ravenfs/internal/log_service/zaplog"
)

// New returns the log service for nodeID and a function that flushes and
// releases it.
func New(cfg config.LogConfig, nodeID string) (log_service.LogService, func() error, error) {
	switch cfg.Backend {
	case config.LogBackendLocalDisc:
		ls, err := localdisc.NewLocalDiscLogService(cfg.Dir, nodeID, cfg.Level)
		if err != nil {
			return nil, nil, err
		}
		return ls, ls.Close, nil

	case config.LogBackendZap, "":
		ls, err := zaplog.NewProductionLogService(nodeID, cfg.Level, cfg.JSON)
		if err != nil {
			return nil, nil, err
		}
		// Sync on a terminal stderr reports EINVAL; nothing is lost.
		return ls, func() error { _ = ls.Sync(); return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown log backend %q", cfg.Backend)
	}
}
