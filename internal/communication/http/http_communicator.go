package httpcomm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/AnishMulay/ravenfs/internal/communication"
	"github.com/AnishMulay/ravenfs/internal/log_service"
)

const maxMultipartMemory = 32 << 20

// HTTPCommunicator speaks the storage node REST protocol:
//
//	POST   /upload_chunk            multipart: chunk_id field, chunk file
//	GET    /download_chunk/{id}
//	DELETE /delete_chunk/{id}
//	GET    /health
type HTTPCommunicator struct {
	listenAddress string
	httpServer    *http.Server
	handler       communication.MessageHandler
	ls            log_service.LogService
	clientLock    sync.RWMutex
	clients       map[string]*http.Client
}

func NewHTTPCommunicator(listenAddress string, ls log_service.LogService) *HTTPCommunicator {
	return &HTTPCommunicator{
		listenAddress: listenAddress,
		ls:            ls,
		clients:       make(map[string]*http.Client),
	}
}

func (c *HTTPCommunicator) Address() string {
	return c.listenAddress
}

func (c *HTTPCommunicator) Start(handler communication.MessageHandler) error {
	c.ls.Info(log_service.LogEvent{
		Message:  "Starting HTTP communicator",
		Metadata: map[string]any{"address": c.listenAddress},
	})

	c.handler = handler

	lis, err := net.Listen("tcp", c.listenAddress)
	if err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to listen on address",
			Metadata: map[string]any{"address": c.listenAddress, "error": err.Error()},
		})
		return fmt.Errorf("%w: %v", communication.ErrServerStartFailed, err)
	}
	c.listenAddress = lis.Addr().String()

	c.httpServer = &http.Server{
		Handler:           c.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	c.ls.Info(log_service.LogEvent{
		Message:  "HTTP communicator started successfully",
		Metadata: map[string]any{"address": c.listenAddress},
	})

	go func() {
		if err := c.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.ls.Error(log_service.LogEvent{
				Message:  "HTTP server error",
				Metadata: map[string]any{"address": c.listenAddress, "error": err.Error()},
			})
		}
	}()

	return nil
}

func (c *HTTPCommunicator) Stop() error {
	if c.httpServer == nil {
		return nil
	}

	c.ls.Info(log_service.LogEvent{
		Message:  "Stopping HTTP communicator",
		Metadata: map[string]any{"address": c.listenAddress},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.httpServer.Shutdown(ctx); err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to stop HTTP server",
			Metadata: map[string]any{"address": c.listenAddress, "error": err.Error()},
		})
		return communication.ErrServerStopFailed
	}

	c.ls.Info(log_service.LogEvent{
		Message:  "HTTP communicator stopped successfully",
		Metadata: map[string]any{"address": c.listenAddress},
	})
	return nil
}

func mapFromHTTPCode(code int) communication.SandCode {
	switch {
	case code >= 200 && code < 300:
		return communication.CodeOK
	case code == http.StatusBadRequest:
		return communication.CodeBadRequest
	case code == http.StatusNotFound:
		return communication.CodeNotFound
	case code == http.StatusServiceUnavailable:
		return communication.CodeUnavailable
	default:
		return communication.CodeInternal
	}
}

func mapToHTTPCode(code communication.SandCode, okStatus int) int {
	switch code {
	case communication.CodeOK:
		return okStatus
	case communication.CodeBadRequest:
		return http.StatusBadRequest
	case communication.CodeNotFound:
		return http.StatusNotFound
	case communication.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func baseURL(to string) string {
	if strings.HasPrefix(to, "http://") || strings.HasPrefix(to, "https://") {
		return strings.TrimRight(to, "/")
	}
	return "http://" + strings.TrimRight(to, "/")
}

func (c *HTTPCommunicator) clientFor(to string) *http.Client {
	c.clientLock.RLock()
	client, ok := c.clients[to]
	c.clientLock.RUnlock()
	if ok {
		return client
	}

	c.clientLock.Lock()
	defer c.clientLock.Unlock()
	if client, ok = c.clients[to]; ok {
		return client
	}

	c.ls.Debug(log_service.LogEvent{
		Message:  "Creating new HTTP client",
		Metadata: map[string]any{"to": to},
	})
	// Per-call deadlines come from the request context.
	client = &http.Client{}
	c.clients[to] = client
	return client
}

func (c *HTTPCommunicator) buildRequest(ctx context.Context, to string, msg communication.Message) (*http.Request, error) {
	base := baseURL(to)

	switch msg.Type {
	case communication.MessageTypeWriteChunk:
		key, ok := communication.ChunkKeyOf(msg.Payload)
		if !ok {
			return nil, communication.ErrInvalidPayload
		}
		data, _ := communication.ChunkDataOf(msg.Payload)

		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		if err := mw.WriteField("chunk_id", key); err != nil {
			return nil, err
		}
		part, err := mw.CreateFormFile("chunk", key)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/upload_chunk", &body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil

	case communication.MessageTypeReadChunk:
		key, ok := communication.ChunkKeyOf(msg.Payload)
		if !ok {
			return nil, communication.ErrInvalidPayload
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, base+"/download_chunk/"+url.PathEscape(key), nil)

	case communication.MessageTypeDeleteChunk:
		key, ok := communication.ChunkKeyOf(msg.Payload)
		if !ok {
			return nil, communication.ErrInvalidPayload
		}
		return http.NewRequestWithContext(ctx, http.MethodDelete, base+"/delete_chunk/"+url.PathEscape(key), nil)

	case communication.MessageTypeHealth:
		return http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)

	default:
		return nil, communication.ErrUnsupportedMessage
	}
}

func (c *HTTPCommunicator) Send(ctx context.Context, to string, msg communication.Message) (*communication.Response, error) {
	c.ls.Debug(log_service.LogEvent{
		Message:  "Sending HTTP message",
		Metadata: map[string]any{"to": to, "type": msg.Type},
	})

	httpReq, err := c.buildRequest(ctx, to, msg)
	if err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to create HTTP request",
			Metadata: map[string]any{"to": to, "type": msg.Type, "error": err.Error()},
		})
		if errors.Is(err, communication.ErrUnsupportedMessage) || errors.Is(err, communication.ErrInvalidPayload) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", communication.ErrHTTPRequestCreateFailed, err)
	}

	resp, err := c.clientFor(to).Do(httpReq)
	if err != nil {
		c.ls.Warn(log_service.LogEvent{
			Message:  "Failed to send HTTP request",
			Metadata: map[string]any{"to": to, "type": msg.Type, "error": err.Error()},
		})
		return nil, fmt.Errorf("%w: %v", communication.ErrHTTPRequestSendFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.ls.Warn(log_service.LogEvent{
			Message:  "Failed to read HTTP response",
			Metadata: map[string]any{"to": to, "type": msg.Type, "error": err.Error()},
		})
		return nil, fmt.Errorf("%w: %v", communication.ErrHTTPResponseReadFailed, err)
	}

	c.ls.Debug(log_service.LogEvent{
		Message:  "HTTP message sent successfully",
		Metadata: map[string]any{"to": to, "type": msg.Type, "status": resp.StatusCode},
	})

	return &communication.Response{
		Code: mapFromHTTPCode(resp.StatusCode),
		Body: body,
	}, nil
}

// Router exposes the node protocol over the given handler. Start mounts the
// same router; tests can serve it with httptest.
func (c *HTTPCommunicator) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "Hello from Storage Node!")
	})
	r.Get("/health", c.handleHealth)
	r.Post("/upload_chunk", c.handleUploadChunk)
	r.Get("/download_chunk/{chunkID}", c.handleDownloadChunk)
	r.Delete("/delete_chunk/{chunkID}", c.handleDeleteChunk)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (c *HTTPCommunicator) dispatch(w http.ResponseWriter, r *http.Request, msg communication.Message) (*communication.Response, bool) {
	if c.handler == nil {
		writeError(w, http.StatusServiceUnavailable, communication.ErrHandlerNotSet.Error())
		return nil, false
	}

	resp, err := c.handler(r.Context(), msg)
	if err != nil || resp == nil {
		meta := map[string]any{"type": msg.Type}
		if err != nil {
			meta["error"] = err.Error()
		}
		c.ls.Error(log_service.LogEvent{Message: "Message handler failed", Metadata: meta})
		writeError(w, http.StatusInternalServerError, communication.ErrMessageHandlerFailed.Error())
		return nil, false
	}
	return resp, true
}

// chi routes on RawPath when the request carries one, leaving the
// parameter escaped.
func chunkIDParam(r *http.Request) (string, error) {
	id := chi.URLParam(r, "chunkID")
	if r.URL.RawPath == "" {
		return id, nil
	}
	return url.PathUnescape(id)
}

func (c *HTTPCommunicator) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp, ok := c.dispatch(w, r, communication.Message{Type: communication.MessageTypeHealth, Payload: communication.HealthRequest{}})
	if !ok {
		return
	}
	if resp.Code != communication.CodeOK {
		writeJSON(w, mapToHTTPCode(resp.Code, http.StatusOK), map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (c *HTTPCommunicator) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	file, _, err := r.FormFile("chunk")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No chunk file provided")
		return
	}
	defer file.Close()

	chunkID := r.FormValue("chunk_id")
	if chunkID == "" {
		writeError(w, http.StatusBadRequest, "Missing chunk_id")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read chunk body")
		return
	}

	resp, ok := c.dispatch(w, r, communication.Message{
		From:    r.RemoteAddr,
		Type:    communication.MessageTypeWriteChunk,
		Payload: communication.WriteChunkRequest{ChunkKey: chunkID, Data: data},
	})
	if !ok {
		return
	}
	if resp.Code != communication.CodeOK {
		writeError(w, mapToHTTPCode(resp.Code, http.StatusCreated), string(resp.Body))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": fmt.Sprintf("Chunk %s uploaded successfully", chunkID)})
}

func (c *HTTPCommunicator) handleDownloadChunk(w http.ResponseWriter, r *http.Request) {
	chunkID, err := chunkIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chunk id")
		return
	}

	resp, ok := c.dispatch(w, r, communication.Message{
		From:    r.RemoteAddr,
		Type:    communication.MessageTypeReadChunk,
		Payload: communication.ReadChunkRequest{ChunkKey: chunkID},
	})
	if !ok {
		return
	}
	if resp.Code == communication.CodeNotFound {
		writeError(w, http.StatusNotFound, "Chunk not found")
		return
	}
	if resp.Code != communication.CodeOK {
		writeError(w, mapToHTTPCode(resp.Code, http.StatusOK), string(resp.Body))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "chunk_"+chunkID))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.Body); err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to write HTTP response body",
			Metadata: map[string]any{"chunkKey": chunkID, "error": err.Error()},
		})
	}
}

func (c *HTTPCommunicator) handleDeleteChunk(w http.ResponseWriter, r *http.Request) {
	chunkID, err := chunkIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chunk id")
		return
	}

	resp, ok := c.dispatch(w, r, communication.Message{
		From:    r.RemoteAddr,
		Type:    communication.MessageTypeDeleteChunk,
		Payload: communication.DeleteChunkRequest{ChunkKey: chunkID},
	})
	if !ok {
		return
	}
	if resp.Code == communication.CodeNotFound {
		writeError(w, http.StatusNotFound, "Chunk not found")
		return
	}
	if resp.Code != communication.CodeOK {
		writeError(w, mapToHTTPCode(resp.Code, http.StatusOK), string(resp.Body))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Chunk %s deleted successfully", chunkID)})
}

var _ communication.Communicator = (*HTTPCommunicator)(nil)
