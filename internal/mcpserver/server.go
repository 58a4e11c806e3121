// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes mediakeep tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mediakeep/internal/assetservice"
	"github.com/starford/mediakeep/internal/importer"
)

const conventionsURI = "mediakeep://folder-conventions"

// Server wraps the MCP server with mediakeep tools.
type Server struct {
	mcp *server.MCPServer
	svc *assetservice.Service
}

// New creates a new MCP server with all mediakeep tools registered.
func New(svc *assetservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Mediakeep",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("import_asset",
		mcp.WithDescription("Download a remote image into the uploads root and record it in the inventory. "+
			"Read the folder conventions first via the "+conventionsURI+" resource."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http or https URL of the image")),
		mcp.WithString("folder", mcp.Description("Target folder relative to the uploads root (e.g. projects/alpha)")),
		mcp.WithString("base", mcp.Description("Stable file name without extension; enables deterministic naming")),
		mcp.WithBoolean("reuse", mcp.Description("With base set, keep an existing valid file instead of downloading")),
	), s.importAsset)

	s.mcp.AddTool(mcp.NewTool("upload_asset",
		mcp.WithDescription("Store an image given as a base64 data URI. Returns the entry and a markdownImage snippet."),
		mcp.WithString("data", mcp.Required(), mcp.Description("data:<mime>;base64,<payload>")),
		mcp.WithString("filename", mcp.Description("File name; the extension is corrected to match the content")),
		mcp.WithString("folder", mcp.Description("Target folder relative to the uploads root")),
	), s.uploadAsset)

	s.mcp.AddTool(mcp.NewTool("list_assets",
		mcp.WithDescription("List inventory entries, optionally filtered by a substring of file name or URL."),
		mcp.WithString("query", mcp.Description("Optional filter")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 50)")),
	), s.listAssets)

	s.mcp.AddTool(mcp.NewTool("audit_assets",
		mcp.WithDescription("Report missing files, misplaced assets and invalid references. Read-only."),
	), s.auditAssets)

	s.mcp.AddTool(mcp.NewTool("plan_relocation",
		mcp.WithDescription("Show which assets would move to their canonical folders and why. Read-only."),
	), s.planRelocation)

	s.mcp.AddTool(mcp.NewTool("preview_garbage",
		mcp.WithDescription("List inventory entries no content references, with reclaimable sizes. Read-only."),
	), s.previewGarbage)

	s.mcp.AddResource(
		mcp.NewResource(conventionsURI, "Folder Conventions",
			mcp.WithResourceDescription("Where assets live, how they are named and how content references them."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readConventionsResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) importAsset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts := importer.Options{
		Folder: req.GetString("folder", ""),
		Base:   req.GetString("base", ""),
	}
	if req.GetBool("reuse", false) {
		opts.Reuse = importer.ReuseIfValid
	}

	res, err := s.svc.Import(ctx, rawURL, opts)
	if err != nil {
		var ierr *importer.Error
		if errors.As(err, &ierr) {
			return mcp.NewToolResultError(fmt.Sprintf("%s: %s", ierr.Kind, ierr.Error())), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) listAssets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, total, err := s.svc.List(ctx, req.GetString("query", ""), req.GetInt("limit", 50), 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"assets": items, "total": total})
}

func (s *Server) auditAssets(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.svc.Audit(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rep)
}

func (s *Server) planRelocation(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	plan, err := s.svc.PlanRelocation(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(plan)
}

func (s *Server) previewGarbage(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.svc.CollectGarbage(ctx, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rep)
}

func (s *Server) readConventionsResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      conventionsURI,
			MIMEType: "text/markdown",
			Text:     FolderConventions,
		},
	}, nil
}
