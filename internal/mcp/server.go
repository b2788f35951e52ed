package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"composer/internal/domain"
	"composer/internal/editor"
	"composer/internal/registry"
	"composer/internal/search"
	"composer/internal/service"
)

// Server is the MCP server of the composer. It exposes tools, resources and
// prompts so AI agents can edit documents through the same editor a human
// uses.
type Server struct {
	mcp      *server.MCPServer
	approval *ApprovalQueue
	log      zerolog.Logger

	reg     *registry.Registry
	docs    *service.DocumentService
	publish *service.PublishService
	search  *search.Service

	mu             sync.Mutex
	activeDocument string
}

// Deps holds the dependencies passed from the app layer.
type Deps struct {
	Emitter   EventEmitter
	Logger    zerolog.Logger
	Registry  *registry.Registry
	Documents *service.DocumentService
	Publish   *service.PublishService
	Search    *search.Service

	// DefaultDocument is edited when a tool names no document.
	DefaultDocument string
	// ApprovalStore switches approvals to the cross-process table
	// (standalone mode).
	ApprovalStore ApprovalStore
	AutoApprove   bool
}

// New creates and configures a new MCP server with all tools and resources.
func New(ctx context.Context, deps Deps) *Server {
	approval := NewApprovalQueue(ctx, deps.Emitter)
	if deps.ApprovalStore != nil {
		approval.SetStore(deps.ApprovalStore)
	}
	approval.SetAutoApprove(deps.AutoApprove)

	s := &Server{
		approval:       approval,
		log:            deps.Logger,
		reg:            deps.Registry,
		docs:           deps.Documents,
		publish:        deps.Publish,
		search:         deps.Search,
		activeDocument: deps.DefaultDocument,
	}

	s.mcp = server.NewMCPServer(
		"composer-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerDocumentTools()
	s.registerBlockTools()
	if s.publish != nil {
		s.registerPublishTools()
	}
	s.registerResources()
	s.registerPrompts()
	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.log.Info().Msg("starting MCP stdio server")
	return server.ServeStdio(s.mcp)
}

// HTTPHandler serves the MCP streamable HTTP transport.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

// Approvals exposes the approval queue to the host.
func (s *Server) Approvals() *ApprovalQueue { return s.approval }

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func boolPtr(v bool) *bool { return &v }

// resolveDocumentID returns the documentId from tool args or falls back to
// the active document.
func (s *Server) resolveDocumentID(args map[string]any) (string, error) {
	if id, ok := args["documentId"].(string); ok && id != "" {
		return id, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeDocument != "" {
		return s.activeDocument, nil
	}
	return "", errors.New("no documentId provided and no active document set (use set_active_document first)")
}

// editorFor opens the editor of the document named by args.
func (s *Server) editorFor(ctx context.Context, args map[string]any) (string, *editor.Editor, error) {
	id, err := s.resolveDocumentID(args)
	if err != nil {
		return "", nil, err
	}
	ed, err := s.docs.Open(ctx, id, service.OpenOptions{})
	if err != nil {
		return "", nil, err
	}
	return id, ed, nil
}

// propsArg reads an object argument given either as a JSON object or as a
// JSON string.
func propsArg(args map[string]any, key string) (domain.Props, error) {
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return domain.Props(v), nil
	case string:
		if v == "" {
			return nil, nil
		}
		var props domain.Props
		if err := parseJSON(v, &props); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return props, nil
	default:
		return nil, fmt.Errorf("%s: expected an object, got %T", key, v)
	}
}
