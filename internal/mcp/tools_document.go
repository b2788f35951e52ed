package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"composer/internal/domain"
	"composer/internal/registry"
	"composer/internal/search"
	"composer/internal/service"
)

func (s *Server) registerDocumentTools() {
	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List saved documents"),
	), s.handleListDocuments)

	s.mcp.AddTool(mcp.NewTool("set_active_document",
		mcp.WithDescription("Set the document used when a tool is called without documentId"),
		mcp.WithString("documentId", mcp.Description("Document ID"), mcp.Required()),
	), s.handleSetActiveDocument)

	s.mcp.AddTool(mcp.NewTool("get_document",
		mcp.WithDescription("Get the full document: content, zones and root props, plus undo/redo availability"),
		mcp.WithString("documentId", mcp.Description("Document ID (optional, defaults to active document)")),
	), s.handleGetDocument)

	s.mcp.AddTool(mcp.NewTool("get_outline",
		mcp.WithDescription("Get the block outline of a document, optionally filtered by a search text"),
		mcp.WithString("search", mcp.Description("Only list matching blocks and their ancestors (optional)")),
		mcp.WithString("documentId", mcp.Description("Document ID (optional, defaults to active document)")),
	), s.handleGetOutline)

	s.mcp.AddTool(mcp.NewTool("search_blocks",
		mcp.WithDescription("Search blocks by type or text across documents, or within one document"),
		mcp.WithString("query", mcp.Description("Search text"), mcp.Required()),
		mcp.WithString("documentId", mcp.Description("Restrict to one document (optional)")),
		mcp.WithNumber("limit", mcp.Description("Maximum hits (default 20)")),
	), s.handleSearchBlocks)

	s.mcp.AddTool(mcp.NewTool("list_block_types",
		mcp.WithDescription("List the registered block types with their fields, defaults and zones"),
	), s.handleListBlockTypes)

	s.mcp.AddTool(mcp.NewTool("get_fields",
		mcp.WithDescription("Get the current field schema of a block, or of the page when blockId is root"),
		mcp.WithString("blockId", mcp.Description("Block ID or root"), mcp.Required()),
		mcp.WithString("documentId", mcp.Description("Document ID (optional, defaults to active document)")),
	), s.handleGetFields)

	s.mcp.AddTool(mcp.NewTool("set_root_props",
		mcp.WithDescription("Set page-level props such as the title"),
		mcp.WithObject("props", mcp.Description("Props to set; merged into the current root props"), mcp.Required()),
		mcp.WithString("documentId", mcp.Description("Document ID (optional, defaults to active document)")),
	), s.handleSetRootProps)

	s.mcp.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Undo the last recorded change"),
		mcp.WithString("documentId", mcp.Description("Document ID (optional, defaults to active document)")),
	), s.handleUndo)

	s.mcp.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Redo the last undone change"),
		mcp.WithString("documentId", mcp.Description("Document ID (optional, defaults to active document)")),
	), s.handleRedo)

	s.mcp.AddTool(mcp.NewTool("save_document",
		mcp.WithDescription("Save the document and its history"),
		mcp.WithString("documentId", mcp.Description("Document ID (optional, defaults to active document)")),
	), s.handleSaveDocument)

	s.mcp.AddTool(mcp.NewTool("import_document",
		mcp.WithDescription("🛑 DESTRUCTIVE: Replace the whole document with a JSON payload {content, zones, root}. Requires user approval."),
		mcp.WithString("payload", mcp.Description("Document JSON"), mcp.Required()),
		mcp.WithString("documentId", mcp.Description("Document ID (optional, defaults to active document)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleImportDocument)
}

// ── Handlers ───────────────────────────────────────────────

func (s *Server) handleListDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recs, err := s.docs.List(ctx)
	if err != nil {
		return nil, err
	}
	type documentSummary struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Open  bool   `json:"open"`
	}
	out := make([]documentSummary, 0, len(recs))
	for _, r := range recs {
		_, open := s.docs.Editor(r.ID)
		out = append(out, documentSummary{ID: r.ID, Title: r.Title, Open: open})
	}
	return jsonResult(out)
}

func (s *Server) handleSetActiveDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _ := req.GetArguments()["documentId"].(string)
	if id == "" {
		return nil, fmt.Errorf("documentId is required")
	}
	if _, err := s.docs.Open(ctx, id, service.OpenOptions{}); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.activeDocument = id
	s.mu.Unlock()
	return textResult(fmt.Sprintf("Active document set to %s", id)), nil
}

func (s *Server) handleGetDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ed, err := s.editorFor(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return jsonResult(struct {
		ID      string          `json:"id"`
		Data    domain.Document `json:"data"`
		CanUndo bool            `json:"canUndo"`
		CanRedo bool            `json:"canRedo"`
		Dirty   bool            `json:"dirty"`
	}{id, ed.State().Data, ed.CanUndo(), ed.CanRedo(), s.docs.Dirty(id)})
}

func (s *Server) handleGetOutline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	_, ed, err := s.editorFor(ctx, args)
	if err != nil {
		return nil, err
	}
	state := ed.State()
	ui := state.UI
	if q, ok := args["search"].(string); ok {
		ui.SearchText = q
	}
	return jsonResult(search.Outline(state.Data, ui))
}

func (s *Server) handleSearchBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	documentID, _ := args["documentId"].(string)
	limit := intArg(args, "limit", 20)

	// An open document is searched live, unsaved edits included.
	if documentID != "" {
		if ed, ok := s.docs.Editor(documentID); ok {
			hits := search.Blocks(ed.State().Data, query)
			for i := range hits {
				hits[i].DocumentID = documentID
			}
			if len(hits) > limit {
				hits = hits[:limit]
			}
			return jsonResult(hits)
		}
	}
	if s.search == nil {
		return nil, fmt.Errorf("search is not configured")
	}
	hits, err := s.search.Search(ctx, query, documentID, limit)
	if err != nil {
		return nil, err
	}
	return jsonResult(hits)
}

func (s *Server) handleListBlockTypes(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type typeSummary struct {
		Type     string          `json:"type"`
		Label    string          `json:"label,omitempty"`
		Fields   registry.Fields `json:"fields"`
		Defaults domain.Props    `json:"defaults,omitempty"`
		Zones    []string        `json:"zones,omitempty"`
	}
	var out []typeSummary
	s.reg.ForEach(func(c registry.Component) {
		out = append(out, typeSummary{Type: c.Type, Label: c.Label, Fields: c.Fields, Defaults: c.DefaultProps, Zones: c.Zones})
	})
	return jsonResult(out)
}

func (s *Server) handleGetFields(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	target, _ := args["blockId"].(string)
	if target == "" {
		return nil, fmt.Errorf("blockId is required")
	}
	_, ed, err := s.editorFor(ctx, args)
	if err != nil {
		return nil, err
	}
	ed.Wait()
	return jsonResult(struct {
		Fields  registry.Fields `json:"fields"`
		Loading bool            `json:"loading"`
	}{ed.Fields(target), ed.Loading(target)})
}

func (s *Server) handleSetRootProps(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	props, err := propsArg(args, "props")
	if err != nil {
		return nil, err
	}
	_, ed, err := s.editorFor(ctx, args)
	if err != nil {
		return nil, err
	}
	merged := ed.State().Data.Root.Props.Merge(props)
	if err := ed.UpdateRootProps(merged); err != nil {
		return nil, err
	}
	ed.Wait()
	return jsonResult(ed.State().Data.Root.Props)
}

func (s *Server) handleUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, ed, err := s.editorFor(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	if err := ed.Undo(); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Undone (can undo: %v, can redo: %v)", ed.CanUndo(), ed.CanRedo())), nil
}

func (s *Server) handleRedo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, ed, err := s.editorFor(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	if err := ed.Redo(); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Redone (can undo: %v, can redo: %v)", ed.CanUndo(), ed.CanRedo())), nil
}

func (s *Server) handleSaveDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ed, err := s.editorFor(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	ed.Wait()
	if err := s.docs.Save(ctx, id, service.TriggerManual); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Document %s saved", id)), nil
}

func (s *Server) handleImportDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	payload, _ := args["payload"].(string)
	if payload == "" {
		return nil, fmt.Errorf("payload is required")
	}
	id, _, err := s.editorFor(ctx, args)
	if err != nil {
		return nil, err
	}
	if err := s.approval.Request("import_document", fmt.Sprintf("Replace the content of %s", id)); err != nil {
		return nil, err
	}
	if err := s.docs.Import(ctx, id, []byte(payload)); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Document %s replaced", id)), nil
}
