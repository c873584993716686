package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	ravenlib "github.com/AnishMulay/ravenfs/clients/library"
)

type GatewayRegistry struct {
	Clients        map[string]*ravenlib.Client
	DefaultGateway string
}

func NewGatewayRegistry(cfg *MCPConfig) *GatewayRegistry {
	r := &GatewayRegistry{
		Clients:        make(map[string]*ravenlib.Client, len(cfg.Gateways)),
		DefaultGateway: cfg.DefaultGateway,
	}
	for _, g := range cfg.Gateways {
		r.Clients[g.ID] = ravenlib.NewClient(g.Address)
	}
	return r
}

func (r *GatewayRegistry) client(request mcp.CallToolRequest) (*ravenlib.Client, error) {
	id := request.GetString("gateway", r.DefaultGateway)
	c, ok := r.Clients[id]
	if !ok {
		return nil, fmt.Errorf("gateway %s not found", id)
	}
	return c, nil
}

func gatewayArg() mcp.ToolOption {
	return mcp.WithString("gateway", mcp.Description("Gateway ID from the config; defaults to the default gateway"))
}

func addTools(s *server.MCPServer, registry *GatewayRegistry) {
	s.AddTool(mcp.NewTool("list_gateways",
		mcp.WithDescription("List configured ravenfs gateways"),
	), registry.handleListGateways)

	s.AddTool(mcp.NewTool("upload_file",
		mcp.WithDescription("Upload a file; it is chunked and replicated to every storage node"),
		mcp.WithString("name", mcp.Required(), mcp.Description("File name")),
		mcp.WithString("content", mcp.Required(), mcp.Description("File content")),
		mcp.WithString("encoding", mcp.Description("Content encoding: text (default) or base64")),
		gatewayArg(),
	), registry.handleUpload)

	s.AddTool(mcp.NewTool("download_file",
		mcp.WithDescription("Download a file by ID"),
		mcp.WithString("file_id", mcp.Required(), mcp.Description("File ID returned by upload_file")),
		gatewayArg(),
	), registry.handleDownload)

	s.AddTool(mcp.NewTool("delete_file",
		mcp.WithDescription("Delete a file and its chunks from every holder"),
		mcp.WithString("file_id", mcp.Required(), mcp.Description("File ID")),
		gatewayArg(),
	), registry.handleDelete)

	s.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("List stored files"),
		gatewayArg(),
	), registry.handleList)

	s.AddTool(mcp.NewTool("gateway_health",
		mcp.WithDescription("Report storage node reachability as seen by the gateway"),
		gatewayArg(),
	), registry.handleHealth)
}

func (r *GatewayRegistry) handleListGateways(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := make([]string, 0, len(r.Clients))
	for id := range r.Clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	b.WriteString("Available gateways:\n")
	for _, id := range ids {
		fmt.Fprintf(&b, "- %s: %s\n", id, r.Clients[id].BaseURL)
	}
	fmt.Fprintf(&b, "Default gateway: %s\n", r.DefaultGateway)
	return mcp.NewToolResultText(b.String()), nil
}

func (r *GatewayRegistry) handleUpload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := request.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data := []byte(content)
	if request.GetString("encoding", "text") == "base64" {
		if data, err = base64.StdEncoding.DecodeString(content); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid base64 content: %v", err)), nil
		}
	}

	c, err := r.client(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := c.Upload(ctx, name, bytes.NewReader(data))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to upload file: %v", err)), nil
	}

	text := fmt.Sprintf("Uploaded %s as file %s (%d bytes, %d chunks)", res.Filename, res.FileID, res.FileSize, res.TotalChunks)
	if res.Degraded {
		text += "; some chunks are stored on fewer nodes than configured"
	}
	return mcp.NewToolResultText(text), nil
}

func (r *GatewayRegistry) handleDownload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fileID, err := request.RequireString("file_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := r.client(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var buf bytes.Buffer
	name, err := c.Download(ctx, fileID, &buf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to download file: %v", err)), nil
	}

	if utf8.Valid(buf.Bytes()) {
		return mcp.NewToolResultText(fmt.Sprintf("File %s:\n%s", name, buf.String())), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("File %s (base64):\n%s", name, base64.StdEncoding.EncodeToString(buf.Bytes()))), nil
}

func (r *GatewayRegistry) handleDelete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fileID, err := request.RequireString("file_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := r.client(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := c.Delete(ctx, fileID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to delete file: %v", err)), nil
	}
	if !res.Complete {
		return mcp.NewToolResultText(res.Message + "; some storage nodes could not be reached and may still hold chunks"), nil
	}
	return mcp.NewToolResultText(res.Message), nil
}

func (r *GatewayRegistry) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := r.client(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	files, err := c.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list files: %v", err)), nil
	}
	if len(files) == 0 {
		return mcp.NewToolResultText("No files stored"), nil
	}

	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "%s\t%s\t%d bytes\t%d chunks\n", f.FileID, f.Filename, f.FileSize, f.TotalChunks)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (r *GatewayRegistry) handleHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := r.client(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	h, err := c.Health(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to query health: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Gateway status: %s\n", h.Status)
	for _, n := range h.Nodes {
		fmt.Fprintf(&b, "- %s: %s\n", n.Node, n.Status)
	}
	return mcp.NewToolResultText(b.String()), nil
}
