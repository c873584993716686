// Package httpmeta reaches a standalone metadata registry over HTTP. The
// wire format follows the registry's files and chunks tables.
package httpmeta

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AnishMulay/ravenfs/internal/log_service"
	"github.com/AnishMulay/ravenfs/internal/metadata_service"
)

// ErrRegistryUnavailable wraps transport failures and unexpected answers.
var ErrRegistryUnavailable = errors.New("metadata registry unavailable")

const maxErrorBody = 64 << 10

type HTTPMetadataService struct {
	baseURL string
	client  *http.Client
	ls      log_service.LogService
}

// NewHTTPMetadataService targets the registry at baseURL. Every call is
// bounded by timeout.
func NewHTTPMetadataService(baseURL string, timeout time.Duration, ls log_service.LogService) *HTTPMetadataService {
	return &HTTPMetadataService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		ls:      ls,
	}
}

func filePath(fileID string) string {
	return "/files/" + url.PathEscape(fileID)
}

// do sends in as JSON (when non-nil) and decodes a want-status answer into
// out (when non-nil).
func (ms *HTTPMetadataService) do(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, ms.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := ms.client.Do(req)
	if err != nil {
		ms.ls.Warn(log_service.LogEvent{
			Message:  "Registry request failed",
			Metadata: map[string]any{"method": method, "path": path, "error": err.Error()},
		})
		return fmt.Errorf("%w: %s %s: %v", ErrRegistryUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s %s: %v", ErrRegistryUnavailable, method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var e ErrorResponse
	if err := json.Unmarshal(data, &e); err != nil || e.Error == "" {
		e.Error = strings.TrimSpace(string(data))
	}

	switch {
	case e.Code == CodeFileNotFound || (e.Code == "" && resp.StatusCode == http.StatusNotFound):
		return metadata_service.ErrFileNotFound
	case e.Code == CodeInvalidFile:
		return fmt.Errorf("%w: %s", metadata_service.ErrInvalidFile, e.Error)
	case e.Code == CodeInvalidChunkOrder:
		return fmt.Errorf("%w: %s", metadata_service.ErrInvalidChunkOrder, e.Error)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrRegistryUnavailable, resp.StatusCode, e.Error)
	}
}

func (ms *HTTPMetadataService) CreateFile(ctx context.Context, name, digest string, size int64, chunkCount int) (string, error) {
	var out FileView
	err := ms.do(ctx, http.MethodPost, "/files", RegisterRequest{
		Filename:    &name,
		FileHash:    digest,
		FileSize:    size,
		TotalChunks: chunkCount,
	}, http.StatusCreated, &out)
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: registry returned no file id", ErrRegistryUnavailable)
	}

	ms.ls.Debug(log_service.LogEvent{
		Message:  "File registered remotely",
		Metadata: map[string]any{"fileID": string(out.ID), "filename": name},
	})
	return string(out.ID), nil
}

func (ms *HTTPMetadataService) AppendChunks(ctx context.Context, fileID string, chunks []metadata_service.ChunkRecord) error {
	req := AppendRequest{Chunks: make([]ChunkView, len(chunks))}
	for i, c := range chunks {
		req.Chunks[i] = ToChunkView(c)
	}
	return ms.do(ctx, http.MethodPost, filePath(fileID)+"/chunks", req, http.StatusCreated, nil)
}

func (ms *HTTPMetadataService) GetFile(ctx context.Context, fileID string) (*metadata_service.File, error) {
	var out FileView
	if err := ms.do(ctx, http.MethodGet, filePath(fileID), nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	f := FromFileView(out)
	if f.Chunks == nil {
		f.Chunks = []metadata_service.ChunkRecord{}
	}
	return &f, nil
}

func (ms *HTTPMetadataService) DeleteFile(ctx context.Context, fileID string) error {
	return ms.do(ctx, http.MethodDelete, filePath(fileID), nil, http.StatusOK, nil)
}

func (ms *HTTPMetadataService) ListFiles(ctx context.Context) ([]metadata_service.File, error) {
	var out ListResponse
	if err := ms.do(ctx, http.MethodGet, "/files", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	files := make([]metadata_service.File, len(out.Files))
	for i, v := range out.Files {
		files[i] = FromFileView(v)
		files[i].Chunks = nil
	}
	return files, nil
}

// Health reports whether the registry answers.
func (ms *HTTPMetadataService) Health(ctx context.Context) error {
	return ms.do(ctx, http.MethodGet, "/health", nil, http.StatusOK, nil)
}

var _ metadata_service.MetadataService = (*HTTPMetadataService)(nil)
