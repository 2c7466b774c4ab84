// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Quill content tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/quill/internal/contentsource"
	"github.com/starford/quill/internal/models"
)

// ContentFormatURI is the resource URI of the content format contract.
const ContentFormatURI = "quill://content-format"

// Server wraps the MCP server with Quill tools.
type Server struct {
	mcp *server.MCPServer
	svc *contentsource.Service
}

// New creates a new MCP server with all Quill tools registered.
func New(svc *contentsource.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Quill",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	)

	s.mcp.AddTool(mcp.NewTool("list_models",
		mcp.WithDescription("List the content models with their field specs."),
	), s.listModels)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List documents (id, model, title, checksum) from the index."),
		mcp.WithString("model", mcp.Description("Optional model name to filter by")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read one document converted to typed fields."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Document id, the path relative to the content root (e.g. posts/hello.md)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("update_document",
		mcp.WithDescription("Apply update operations to a document and write it back. "+
			"Read the contract first via the get_content_format tool or the "+ContentFormatURI+" resource."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Document id")),
		mcp.WithArray("operations", mcp.Required(),
			mcp.Description("Operations applied in order"),
			mcp.Items(map[string]any{"type": "object"})),
		mcp.WithString("if_match", mcp.Description("Checksum the document must still have")),
	), s.updateDocument)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Full-text search through document titles and content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("get_references",
		mcp.WithDescription("Find all documents whose reference fields point at the given document."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Target document id")),
	), s.getReferences)

	s.mcp.AddTool(mcp.NewTool("list_assets",
		mcp.WithDescription("List assets with their public URLs."),
	), s.listAssets)

	s.mcp.AddTool(mcp.NewTool("get_content_format",
		mcp.WithDescription("Returns the Quill content format contract. "+
			"Call this before updating documents to ensure correct operations."),
	), s.getContentFormat)

	// Resource: content format contract.
	s.mcp.AddResource(
		mcp.NewResource(ContentFormatURI, "Content Format Contract",
			mcp.WithResourceDescription("Content file layout and update operation format."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContentFormatResource,
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

func (s *Server) listModels(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ms, err := s.svc.Models(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(ms)
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, err := s.svc.Summaries(ctx, req.GetString("model", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rows)
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.GetDocument(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return jsonResult(doc)
}

func (s *Server) updateDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, ok := req.GetArguments()["operations"]
	if !ok {
		return mcp.NewToolResultError("operations are required"), nil
	}
	ops, err := decodeOperations(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.UpdateDocument(ctx, id, ops, req.GetString("if_match", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(doc)
}

// decodeOperations accepts the operations argument either as a decoded JSON
// array or as a JSON string.
func decodeOperations(raw any) ([]models.UpdateOperation, error) {
	var data []byte
	if str, ok := raw.(string); ok {
		data = []byte(str)
	} else {
		var err error
		if data, err = json.Marshal(raw); err != nil {
			return nil, fmt.Errorf("invalid operations: %w", err)
		}
	}
	var ops []models.UpdateOperation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("invalid operations: %w", err)
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("operations are required")
	}
	return ops, nil
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) getReferences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	refs, err := s.svc.References(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(refs) == 0 {
		return mcp.NewToolResultText("no references found"), nil
	}
	return jsonResult(refs)
}

func (s *Server) listAssets(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	assets, err := s.svc.GetAssets(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(assets)
}

func (s *Server) getContentFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ContentFormatContract), nil
}

func (s *Server) readContentFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ContentFormatURI,
			MIMEType: "text/markdown",
			Text:     ContentFormatContract,
		},
	}, nil
}
