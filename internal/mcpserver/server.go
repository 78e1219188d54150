// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the knowledge-base tree to LLMs via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/kbtree/internal/apperr"
	"github.com/starford/kbtree/internal/reconcile"
	"github.com/starford/kbtree/internal/treeservice"
)

const contractURI = "kbtree://content-format"

// Server wraps the MCP server with the knowledge-base tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *treeservice.Service
	syncer reconcile.Syncer
}

// New creates a new MCP server with all tools registered. syncer may be
// nil, in which case sync_content is not offered.
func New(svc *treeservice.Service, syncer reconcile.Syncer, version string) *Server {
	s := &Server{svc: svc, syncer: syncer}

	s.mcp = server.NewMCPServer(
		"kbtree",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_children",
		mcp.WithDescription("List the subdirectories and documents of a directory in the "+
			"knowledge-base tree. Directories come first; each group is ordered by name."),
		mcp.WithString("directory_id", mcp.Description("Directory id; omit for the root")),
	), s.listChildren)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read a document with its metadata and full markdown content."),
		mcp.WithString("ref", mcp.Required(), mcp.Description("Document id or custom_id")),
	), s.readDocument)

	if syncer != nil {
		s.mcp.AddTool(mcp.NewTool("sync_content",
			mcp.WithDescription("Reconcile the tree with the content directory now and "+
				"report what changed."),
		), s.syncContent)
	}

	s.mcp.AddTool(mcp.NewTool("get_content_contract",
		mcp.WithDescription("Returns how markdown files map to documents: recognized "+
			"front matter keys, title precedence and reading time."),
	), s.getContentContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Content Format",
			mcp.WithResourceDescription("How files in the content root become tree documents."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found")
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listChildren(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dirID := strings.TrimSpace(req.GetString("directory_id", ""))
	entries, err := s.svc.ListChildren(ctx, dirID)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(entries)
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("ref")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.GetDocument(ctx, ref)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(doc)
}

func (s *Server) syncContent(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.syncer.Sync(ctx)
	if err != nil {
		if reconcile.IsInProgress(err) {
			return mcp.NewToolResultError("a sync is already running, try again shortly"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("sync failed: %v", err)), nil
	}
	return jsonResult(report)
}

func (s *Server) getContentContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ContentFormatContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     ContentFormatContract,
		},
	}, nil
}
