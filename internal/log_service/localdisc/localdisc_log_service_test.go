package localdisc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AnishMulay/ravenfs/internal/log_service"
)

func TestLocalDiscLogService_Filtering(t *testing.T) {
	tests := []struct {
		name     string
		minLevel string
		emit     func(ls *LocalDiscLogService)
		want     []string
		notWant  []string
	}{
		{
			name:     "info drops debug",
			minLevel: log_service.InfoLevel,
			emit: func(ls *LocalDiscLogService) {
				ls.Debug(log_service.LogEvent{Message: "quiet"})
				ls.Info(log_service.LogEvent{Message: "loud"})
			},
			want:    []string{"INFO: loud"},
			notWant: []string{"quiet"},
		},
		{
			name:     "debug keeps everything",
			minLevel: log_service.DebugLevel,
			emit: func(ls *LocalDiscLogService) {
				ls.Debug(log_service.LogEvent{Message: "quiet"})
				ls.Error(log_service.LogEvent{Message: "broken"})
			},
			want: []string{"DEBUG: quiet", "ERROR: broken"},
		},
		{
			name:     "metadata is sorted",
			minLevel: log_service.InfoLevel,
			emit: func(ls *LocalDiscLogService) {
				ls.Warn(log_service.LogEvent{
					Message:  "chunk",
					Metadata: map[string]any{"node": "a:1", "chunkKey": "f_chunk1"},
				})
			},
			want: []string{"WARN: chunk chunkKey=f_chunk1 node=a:1", "[gateway]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			ls, err := NewLocalDiscLogService(dir, "gateway", tt.minLevel)
			if err != nil {
				t.Fatalf("NewLocalDiscLogService() error = %v", err)
			}

			tt.emit(ls)
			if err := ls.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			raw, err := os.ReadFile(filepath.Join(dir, "gateway.log"))
			if err != nil {
				t.Fatalf("reading log file: %v", err)
			}
			out := string(raw)

			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("log output missing %q, got:\n%s", w, out)
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(out, nw) {
					t.Errorf("log output unexpectedly contains %q, got:\n%s", nw, out)
				}
			}
		})
	}
}
