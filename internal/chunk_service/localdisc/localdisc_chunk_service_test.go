package localdisc

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/AnishMulay/ravenfs/internal/chunk_service"
	"github.com/AnishMulay/ravenfs/internal/log_service/zaplog"
)

func newService(t *testing.T, compress bool) *LocalDiscChunkService {
	t.Helper()
	cs, err := NewLocalDiscChunkService(t.TempDir(), compress, zaplog.NewNopLogService())
	if err != nil {
		t.Fatalf("NewLocalDiscChunkService() error = %v", err)
	}
	return cs
}

func TestLocalDiscChunkService_WriteChunk(t *testing.T) {
	tests := []struct {
		name     string
		chunkKey string
		data     []byte
		wantErr  error
	}{
		{
			name:     "write chunk with data",
			chunkKey: "report.pdf_chunk1",
			data:     []byte("hello world"),
		},
		{
			name:     "write empty chunk",
			chunkKey: "empty.txt_chunk1",
			data:     []byte{},
		},
		{
			name:     "write binary data",
			chunkKey: "binary_chunk2",
			data:     []byte{0x00, 0x01, 0x02, 0xFF},
		},
		{
			name:     "reject path traversal",
			chunkKey: "../escape_chunk1",
			data:     []byte("x"),
			wantErr:  chunk_service.ErrInvalidChunkKey,
		},
		{
			name:     "reject empty key",
			chunkKey: "",
			data:     []byte("x"),
			wantErr:  chunk_service.ErrInvalidChunkKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := newService(t, false)

			err := cs.WriteChunk(context.Background(), tt.chunkKey, tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("WriteChunk() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}

			written, err := os.ReadFile(cs.chunkPath(tt.chunkKey))
			if err != nil {
				t.Fatalf("WriteChunk() failed to read written file: %v", err)
			}
			if !bytes.Equal(written, tt.data) {
				t.Errorf("WriteChunk() written data = %v, want %v", written, tt.data)
			}
		})
	}
}

func TestLocalDiscChunkService_ReadChunk(t *testing.T) {
	tests := []struct {
		name     string
		chunkKey string
		data     []byte
		setupFn  func(*LocalDiscChunkService)
		wantErr  error
	}{
		{
			name:     "read existing chunk",
			chunkKey: "a.txt_chunk1",
			data:     []byte("hello world"),
			setupFn: func(cs *LocalDiscChunkService) {
				_ = cs.WriteChunk(context.Background(), "a.txt_chunk1", []byte("hello world"))
			},
		},
		{
			name:     "read non-existent chunk",
			chunkKey: "missing_chunk1",
			wantErr:  chunk_service.ErrChunkNotFound,
		},
		{
			name:     "overwrite replaces content",
			chunkKey: "a.txt_chunk1",
			data:     []byte("second"),
			setupFn: func(cs *LocalDiscChunkService) {
				_ = cs.WriteChunk(context.Background(), "a.txt_chunk1", []byte("first"))
				_ = cs.WriteChunk(context.Background(), "a.txt_chunk1", []byte("second"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := newService(t, false)
			if tt.setupFn != nil {
				tt.setupFn(cs)
			}

			data, err := cs.ReadChunk(context.Background(), tt.chunkKey)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ReadChunk() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && !bytes.Equal(data, tt.data) {
				t.Errorf("ReadChunk() data = %q, want %q", data, tt.data)
			}
		})
	}
}

func TestLocalDiscChunkService_DeleteChunk(t *testing.T) {
	cs := newService(t, false)
	ctx := context.Background()

	if err := cs.WriteChunk(ctx, "doomed_chunk1", []byte("test data")); err != nil {
		t.Fatalf("WriteChunk() error = %v", err)
	}
	if err := cs.DeleteChunk(ctx, "doomed_chunk1"); err != nil {
		t.Fatalf("DeleteChunk() error = %v", err)
	}
	if _, err := os.Stat(cs.chunkPath("doomed_chunk1")); !os.IsNotExist(err) {
		t.Errorf("DeleteChunk() file still exists")
	}
	if err := cs.DeleteChunk(ctx, "doomed_chunk1"); !errors.Is(err, chunk_service.ErrChunkNotFound) {
		t.Errorf("second DeleteChunk() error = %v, want %v", err, chunk_service.ErrChunkNotFound)
	}
}

func TestLocalDiscChunkService_Compression(t *testing.T) {
	cs := newService(t, true)
	ctx := context.Background()
	data := bytes.Repeat([]byte("ravenfs "), 4096)

	if err := cs.WriteChunk(ctx, "big_chunk1", data); err != nil {
		t.Fatalf("WriteChunk() error = %v", err)
	}

	if _, err := os.Stat(cs.chunkPath("big_chunk1")); !os.IsNotExist(err) {
		t.Errorf("uncompressed chunk file exists alongside the compressed one")
	}
	stored, err := os.ReadFile(cs.compressedPath("big_chunk1"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(stored) >= len(data) {
		t.Errorf("stored size = %d, want less than %d", len(stored), len(data))
	}

	got, err := cs.ReadChunk(ctx, "big_chunk1")
	if err != nil {
		t.Fatalf("ReadChunk() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadChunk() returned different bytes after decompression")
	}
}

func TestLocalDiscChunkService_ReadsUncompressedWithCompressionOn(t *testing.T) {
	dir := t.TempDir()
	plain, err := NewLocalDiscChunkService(dir, false, zaplog.NewNopLogService())
	if err != nil {
		t.Fatal(err)
	}
	if err := plain.WriteChunk(context.Background(), "legacy_chunk1", []byte("legacy bytes")); err != nil {
		t.Fatal(err)
	}

	compressed, err := NewLocalDiscChunkService(dir, true, zaplog.NewNopLogService())
	if err != nil {
		t.Fatal(err)
	}
	got, err := compressed.ReadChunk(context.Background(), "legacy_chunk1")
	if err != nil {
		t.Fatalf("ReadChunk() error = %v", err)
	}
	if string(got) != "legacy bytes" {
		t.Errorf("ReadChunk() = %q, want %q", got, "legacy bytes")
	}
}

func TestLocalDiscChunkService_ReopenWithOppositeCompression(t *testing.T) {
	zstdPayload := func() []byte {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			t.Fatal(err)
		}
		defer enc.Close()
		return enc.EncodeAll([]byte("inner"), nil)
	}()

	tests := []struct {
		name          string
		writeCompress bool
		data          []byte
	}{
		{
			name:          "compressed chunk read with compression off",
			writeCompress: true,
			data:          bytes.Repeat([]byte("abc"), 200),
		},
		{
			name:          "plain chunk read with compression on",
			writeCompress: false,
			data:          bytes.Repeat([]byte("abc"), 200),
		},
		{
			name:          "plain chunk holding a zstd frame read with compression on",
			writeCompress: false,
			data:          zstdPayload,
		},
		{
			name:          "compressed chunk holding a zstd frame read with compression off",
			writeCompress: true,
			data:          zstdPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()

			writer, err := NewLocalDiscChunkService(dir, tt.writeCompress, zaplog.NewNopLogService())
			if err != nil {
				t.Fatal(err)
			}
			if err := writer.WriteChunk(ctx, "file.zst_chunk1", tt.data); err != nil {
				t.Fatalf("WriteChunk() error = %v", err)
			}

			reader, err := NewLocalDiscChunkService(dir, !tt.writeCompress, zaplog.NewNopLogService())
			if err != nil {
				t.Fatal(err)
			}
			got, err := reader.ReadChunk(ctx, "file.zst_chunk1")
			if err != nil {
				t.Fatalf("ReadChunk() error = %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Errorf("ReadChunk() = %d bytes, want the %d bytes written", len(got), len(tt.data))
			}

			if err := reader.DeleteChunk(ctx, "file.zst_chunk1"); err != nil {
				t.Fatalf("DeleteChunk() error = %v", err)
			}
			if _, err := writer.ReadChunk(ctx, "file.zst_chunk1"); !errors.Is(err, chunk_service.ErrChunkNotFound) {
				t.Errorf("ReadChunk() after delete error = %v, want %v", err, chunk_service.ErrChunkNotFound)
			}
		})
	}
}

func TestLocalDiscChunkService_OverwriteAcrossFormats(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	compressed, err := NewLocalDiscChunkService(dir, true, zaplog.NewNopLogService())
	if err != nil {
		t.Fatal(err)
	}
	plain, err := NewLocalDiscChunkService(dir, false, zaplog.NewNopLogService())
	if err != nil {
		t.Fatal(err)
	}

	if err := compressed.WriteChunk(ctx, "a.txt_chunk1", []byte("old")); err != nil {
		t.Fatal(err)
	}
	if err := plain.WriteChunk(ctx, "a.txt_chunk1", []byte("new")); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(compressed.compressedPath("a.txt_chunk1")); !os.IsNotExist(err) {
		t.Errorf("stale compressed copy survived the overwrite")
	}
	for _, cs := range []*LocalDiscChunkService{compressed, plain} {
		got, err := cs.ReadChunk(ctx, "a.txt_chunk1")
		if err != nil {
			t.Fatalf("ReadChunk() error = %v", err)
		}
		if string(got) != "new" {
			t.Errorf("ReadChunk() = %q, want %q", got, "new")
		}
	}
}
