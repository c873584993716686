package logsetup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnishMulay/ravenfs/internal/config"
	"github.com/AnishMulay/ravenfs/internal/log_service"
)

func TestNew_LocalDisc(t *testing.T) {
	dir := t.TempDir()
	ls, closeFn, err := New(config.LogConfig{Backend: config.LogBackendLocalDisc, Dir: dir, Level: "info"}, "node-a")
	require.NoError(t, err)

	ls.Debug(log_service.LogEvent{Message: "hidden"})
	ls.Info(log_service.LogEvent{Message: "chunk stored"})
	require.NoError(t, closeFn())

	data, err := os.ReadFile(filepath.Join(dir, "node-a.log"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "chunk stored"))
	assert.False(t, strings.Contains(string(data), "hidden"))
}

func TestNew_Zap(t *testing.T) {
	ls, closeFn, err := New(config.LogConfig{Backend: config.LogBackendZap, Level: "warn", JSON: true}, "gateway")
	require.NoError(t, err)
	assert.NotNil(t, ls)
	assert.NotNil(t, closeFn)
}

func TestNew_Unknown(t *testing.T) {
	_, _, err := New(config.LogConfig{Backend: "syslog"}, "gateway")
	assert.Error(t, err)
}
