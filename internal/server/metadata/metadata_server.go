package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/AnishMulay/ravenfs/internal/log_service"
	"github.com/AnishMulay/ravenfs/internal/metadata_service"
	httpmeta "github.com/AnishMulay/ravenfs/internal/metadata_service/http"
	"github.com/AnishMulay/ravenfs/internal/server"
)

// Chunk lists of very large files stay well below this.
const maxRequestBody = 32 << 20

// MetadataServer exposes a MetadataService as the standalone registry
// HTTP API described in httpmeta.
type MetadataServer struct {
	ms metadata_service.MetadataService
	ls log_service.LogService

	listenAddress string
	mu            sync.Mutex
	httpServer    *http.Server
	address       string
}

func NewMetadataServer(listenAddress string, ms metadata_service.MetadataService, ls log_service.LogService) *MetadataServer {
	return &MetadataServer{
		ms:            ms,
		ls:            ls,
		listenAddress: listenAddress,
		address:       listenAddress,
	}
}

func (s *MetadataServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "Hello from the Metadata Service!")
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, httpmeta.MessageResponse{Message: "ok"})
	})
	r.Route("/files", func(r chi.Router) {
		r.Post("/", s.handleRegister)
		r.Get("/", s.handleList)
		r.Get("/{fileID}", s.handleGet)
		r.Delete("/{fileID}", s.handleDelete)
		r.Post("/{fileID}/chunks", s.handleAppend)
	})
	r.Get("/db_view", s.handleDBView)
	return r
}

func (s *MetadataServer) Start() error {
	lis, err := net.Listen("tcp", s.listenAddress)
	if err != nil {
		s.ls.Error(log_service.LogEvent{
			Message:  "Failed to listen on address",
			Metadata: map[string]any{"address": s.listenAddress, "error": err.Error()},
		})
		return errors.Join(server.ErrServerStartFailed, err)
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.address = lis.Addr().String()
	s.mu.Unlock()

	s.ls.Info(log_service.LogEvent{
		Message:  "Metadata registry listening",
		Metadata: map[string]any{"address": s.Address()},
	})

	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.ls.Error(log_service.LogEvent{
				Message:  "Metadata registry server error",
				Metadata: map[string]any{"error": err.Error()},
			})
		}
	}()
	return nil
}

func (s *MetadataServer) Stop() error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	s.ls.Info(log_service.LogEvent{Message: "Stopping metadata registry"})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return errors.Join(server.ErrServerStopFailed, err)
	}
	return nil
}

func (s *MetadataServer) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

func (s *MetadataServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.ls.Debug(log_service.LogEvent{
			Message: "HTTP request",
			Metadata: map[string]any{
				"requestID": middleware.GetReqID(r.Context()),
				"method":    r.Method,
				"path":      r.URL.Path,
				"status":    ww.Status(),
				"duration":  time.Since(start).String(),
			},
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, httpmeta.ErrorResponse{Error: msg, Code: code})
}

func fileIDParam(r *http.Request) (string, error) {
	id := chi.URLParam(r, "fileID")
	if r.URL.RawPath == "" {
		return id, nil
	}
	return url.PathUnescape(id)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *MetadataServer) writeRegistryError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, metadata_service.ErrFileNotFound):
		writeError(w, http.StatusNotFound, httpmeta.CodeFileNotFound, "File not found")
		return
	case errors.Is(err, metadata_service.ErrInvalidFile):
		writeError(w, http.StatusBadRequest, httpmeta.CodeInvalidFile, err.Error())
		return
	case errors.Is(err, metadata_service.ErrInvalidChunkOrder):
		writeError(w, http.StatusBadRequest, httpmeta.CodeInvalidChunkOrder, err.Error())
		return
	}

	s.ls.Error(log_service.LogEvent{
		Message:  "Registry request failed",
		Metadata: map[string]any{"op": op, "error": err.Error()},
	})
	writeError(w, http.StatusInternalServerError, "", err.Error())
}

func (s *MetadataServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req httpmeta.RegisterRequest
	if err := decodeBody(w, r, &req); err != nil || req.Filename == nil {
		writeError(w, http.StatusBadRequest, httpmeta.CodeInvalidFile, "filename required")
		return
	}

	id, err := s.ms.CreateFile(r.Context(), *req.Filename, req.FileHash, req.FileSize, req.TotalChunks)
	if err != nil {
		s.writeRegistryError(w, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, httpmeta.FileView{
		ID:          httpmeta.FileID(id),
		Filename:    *req.Filename,
		FileHash:    req.FileHash,
		FileSize:    req.FileSize,
		TotalChunks: req.TotalChunks,
	})
}

func (s *MetadataServer) handleAppend(w http.ResponseWriter, r *http.Request) {
	fileID, err := fileIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "malformed file id")
		return
	}

	var req httpmeta.AppendRequest
	if err := decodeBody(w, r, &req); err != nil || req.Chunks == nil {
		writeError(w, http.StatusBadRequest, httpmeta.CodeInvalidChunkOrder, "chunks list required")
		return
	}

	chunks := make([]metadata_service.ChunkRecord, len(req.Chunks))
	for i, c := range req.Chunks {
		chunks[i] = httpmeta.FromChunkView(c)
	}
	if err := s.ms.AppendChunks(r.Context(), fileID, chunks); err != nil {
		s.writeRegistryError(w, "append", err)
		return
	}
	writeJSON(w, http.StatusCreated, httpmeta.MessageResponse{Message: "Chunks added successfully"})
}

func (s *MetadataServer) handleList(w http.ResponseWriter, r *http.Request) {
	files, err := s.ms.ListFiles(r.Context())
	if err != nil {
		s.writeRegistryError(w, "list", err)
		return
	}
	out := httpmeta.ListResponse{Files: make([]httpmeta.FileView, len(files))}
	for i, f := range files {
		f.Chunks = nil
		out.Files[i] = httpmeta.ToFileView(f)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *MetadataServer) handleGet(w http.ResponseWriter, r *http.Request) {
	fileID, err := fileIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "malformed file id")
		return
	}

	f, err := s.ms.GetFile(r.Context(), fileID)
	if err != nil {
		s.writeRegistryError(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, httpmeta.ToFileView(*f))
}

func (s *MetadataServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	fileID, err := fileIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "malformed file id")
		return
	}

	if err := s.ms.DeleteFile(r.Context(), fileID); err != nil {
		s.writeRegistryError(w, "delete", err)
		return
	}
	writeJSON(w, http.StatusOK, httpmeta.MessageResponse{
		Message: fmt.Sprintf("File %s and its metadata deleted successfully", fileID),
	})
}

// handleDBView dumps every visible file with its chunk rows.
func (s *MetadataServer) handleDBView(w http.ResponseWriter, r *http.Request) {
	files, err := s.ms.ListFiles(r.Context())
	if err != nil {
		s.writeRegistryError(w, "db_view", err)
		return
	}

	out := httpmeta.DBView{
		Files:  make([]httpmeta.FileView, 0, len(files)),
		Chunks: []httpmeta.ChunkView{},
	}
	for _, listed := range files {
		f, err := s.ms.GetFile(r.Context(), listed.ID)
		if errors.Is(err, metadata_service.ErrFileNotFound) {
			// Deleted since the listing.
			continue
		}
		if err != nil {
			s.writeRegistryError(w, "db_view", err)
			return
		}
		for _, c := range f.Chunks {
			cv := httpmeta.ToChunkView(c)
			cv.FileID = httpmeta.FileID(f.ID)
			out.Chunks = append(out.Chunks, cv)
		}
		f.Chunks = nil
		out.Files = append(out.Files, httpmeta.ToFileView(*f))
	}
	writeJSON(w, http.StatusOK, out)
}

var _ server.Server = (*MetadataServer)(nil)
