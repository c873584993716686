package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AnishMulay/ravenfs/internal/file_service"
	"github.com/AnishMulay/ravenfs/internal/log_service"
	"github.com/AnishMulay/ravenfs/internal/metadata_service"
	"github.com/AnishMulay/ravenfs/internal/server"
	"github.com/AnishMulay/ravenfs/internal/storage_node"
)

const (
	DefaultMaxUploadSize = 1 << 30
	multipartMemory      = 32 << 20
	healthTimeout        = 5 * time.Second
)

type Options struct {
	ListenAddress string
	// MaxUploadSize caps the request body of POST /upload.
	MaxUploadSize int64
	// Gatherer backs GET /metrics. Defaults to the process registry.
	Gatherer prometheus.Gatherer
}

// GatewayServer is the client-facing HTTP API.
type GatewayServer struct {
	opts Options
	fs   file_service.FileService
	pool *storage_node.Pool
	ls   log_service.LogService

	mu         sync.Mutex
	httpServer *http.Server
	address    string
}

func NewGatewayServer(opts Options, fs file_service.FileService, pool *storage_node.Pool, ls log_service.LogService) *GatewayServer {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = DefaultMaxUploadSize
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &GatewayServer{
		opts:    opts,
		fs:      fs,
		pool:    pool,
		ls:      ls,
		address: opts.ListenAddress,
	}
}

func (s *GatewayServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ravenfs gateway")
	})
	r.Post("/upload", s.handleUpload)
	r.Get("/download", s.handleDownload)
	r.Delete("/delete", s.handleDelete)
	r.Get("/files", s.handleList)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	return r
}

func (s *GatewayServer) Start() error {
	lis, err := net.Listen("tcp", s.opts.ListenAddress)
	if err != nil {
		s.ls.Error(log_service.LogEvent{
			Message:  "Failed to listen on address",
			Metadata: map[string]any{"address": s.opts.ListenAddress, "error": err.Error()},
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
		Message:  "Gateway listening",
		Metadata: map[string]any{"address": s.Address(), "nodes": s.pool.Addresses()},
	})

	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.ls.Error(log_service.LogEvent{
				Message:  "Gateway server error",
				Metadata: map[string]any{"error": err.Error()},
			})
		}
	}()
	return nil
}

func (s *GatewayServer) Stop() error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	s.ls.Info(log_service.LogEvent{Message: "Stopping gateway"})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return errors.Join(server.ErrServerStopFailed, err)
	}
	return nil
}

func (s *GatewayServer) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

func (s *GatewayServer) requestLogger(next http.Handler) http.Handler {
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
				"bytes":     ww.BytesWritten(),
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

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *GatewayServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.opts.MaxUploadSize {
		writeError(w, http.StatusRequestEntityTooLarge, "File exceeds upload limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File exceeds upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No file selected")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	res, err := s.fs.Upload(r.Context(), header.Filename, data)
	if err != nil {
		s.writeServiceError(w, "upload", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUploadResponse(res))
}

func (s *GatewayServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("file_id")
	if fileID == "" {
		writeError(w, http.StatusBadRequest, "Missing file_id parameter")
		return
	}

	res, err := s.fs.Download(r.Context(), fileID)
	if err != nil {
		s.writeServiceError(w, "download", err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.File.Name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

func (s *GatewayServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("file_id")
	if fileID == "" {
		writeError(w, http.StatusBadRequest, "Missing file_id parameter")
		return
	}

	res, err := s.fs.Delete(r.Context(), fileID)
	if err != nil {
		s.writeServiceError(w, "delete", err)
		return
	}
	writeJSON(w, http.StatusOK, toDeleteResponse(res))
}

func (s *GatewayServer) handleList(w http.ResponseWriter, r *http.Request) {
	files, err := s.fs.List(r.Context())
	if err != nil {
		s.writeServiceError(w, "list", err)
		return
	}
	out := make([]fileView, len(files))
	for i, f := range files {
		out[i] = toFileView(f)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *GatewayServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	nodes := s.pool.All()
	results := make([]nodeHealth, len(nodes))
	var wg sync.WaitGroup
	for i, n := range nodes {
		results[i] = nodeHealth{Node: n.Address(), Status: "unknown"}
		hc, ok := n.(storage_node.HealthChecker)
		if !ok {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := hc.Health(ctx); err != nil {
				results[i].Status = "unreachable"
				results[i].Error = err.Error()
				return
			}
			results[i].Status = "ok"
		}()
	}
	wg.Wait()

	healthy := 0
	for _, h := range results {
		if h.Status == "ok" {
			healthy++
		}
	}

	resp := healthResponse{Status: "ok", Nodes: results}
	status := http.StatusOK
	switch {
	case healthy == 0 && len(results) > 0:
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	case healthy < len(results):
		resp.Status = "degraded"
	}
	writeJSON(w, status, resp)
}

func (s *GatewayServer) writeServiceError(w http.ResponseWriter, op string, err error) {
	var unavailable *file_service.ChunkUnavailableError

	switch {
	case errors.Is(err, metadata_service.ErrFileNotFound):
		writeError(w, http.StatusNotFound, "File not found in metadata service")
		return
	case errors.Is(err, file_service.ErrInvalidFileName):
		writeError(w, http.StatusBadRequest, "No file selected")
		return
	case errors.As(err, &unavailable):
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to download chunk %d", unavailable.Order))
	case errors.Is(err, file_service.ErrInsufficientReplicas):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}

	s.ls.Error(log_service.LogEvent{
		Message:  "Gateway request failed",
		Metadata: map[string]any{"op": op, "error": err.Error()},
	})
}

var _ server.Server = (*GatewayServer)(nil)
