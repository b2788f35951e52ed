package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"composer/internal/document"
	"composer/internal/domain"
	"composer/internal/editor"
	"composer/internal/reducer"
)

func (s *Server) registerBlockTools() {
	// ── list_blocks ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_blocks",
		mcp.WithDescription("List every block of a document depth-first, with its zone, index and nesting depth"),
		mcp.WithString("documentId", mcp.Description("Document ID (optional, defaults to active document)")),
		mcp.WithString("type", mcp.Description("Filter by block type (optional)")),
	), s.handleListBlocks)

	// ── insert_block ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("insert_block",
		mcp.WithDescription("Insert a new block of a registered type into a zone. Props override the type's defaults."),
		mcp.WithString("type", mcp.Description("Block type (see list_block_types)"), mcp.Required()),
		mcp.WithString("zone", mcp.Description("Destination zone, e.g. root:default-zone or <blockId>:<zone> (default root)")),
		mcp.WithNumber("index", mcp.Description("Destination index (optional, appends when omitted)")),
		mcp.WithObject("props", mcp.Description("Initial props (optional)")),
		mcp.WithString("documentId", mcp.Description("Document ID (optional, defaults to active document)")),
	), s.handleInsertBlock)

	// ── replace_block ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("replace_block",
		mcp.WithDescription("Replace the props of a block. Pass merge=true to keep props that are not given."),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithObject("props", mcp.Description("New props"), mcp.Required()),
		mcp.WithBoolean("merge", mcp.Description("Merge into the current props instead of replacing them")),
		mcp.WithString("documentId", mcp.Description("Document ID (optional, defaults to active document)")),
	), s.handleReplaceBlock)

	// ── move_block ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("move_block",
		mcp.WithDescription("Move a block to another zone. The index is the block's final position; it clamps to the end of the zone."),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithString("zone", mcp.Description("Destination zone"), mcp.Required()),
		mcp.WithNumber("index", mcp.Description("Destination index (optional, appends when omitted)")),
		mcp.WithString("documentId", mcp.Description("Document ID (optional, defaults to active document)")),
	), s.handleMoveBlock)

	// ── reorder_block ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("reorder_block",
		mcp.WithDescription("Change the position of a block within its zone"),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithNumber("index", mcp.Description("New index within the zone"), mcp.Required()),
		mcp.WithString("documentId", mcp.Description("Document ID (optional, defaults to active document)")),
	), s.handleReorderBlock)

	// ── remove_block (destructive) ─────────────────────
	s.mcp.AddTool(mcp.NewTool("remove_block",
		mcp.WithDescription("🛑 DESTRUCTIVE: Remove a block and everything nested in its zones. Requires user approval."),
		mcp.WithString("blockId", mcp.Description("Block ID to remove"), mcp.Required()),
		mcp.WithString("documentId", mcp.Description("Document ID (optional, defaults to active document)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRemoveBlock)
}

// blockSummary is a compact representation of a block for AI consumption.
type blockSummary struct {
	ID    string        `json:"id"`
	Type  string        `json:"type"`
	Zone  domain.ZoneID `json:"zone"`
	Index int           `json:"index"`
	Depth int           `json:"depth"`
	Props domain.Props  `json:"props"`
	Zones []string      `json:"zones,omitempty"`
}

func summarizeBlocks(doc domain.Document, blockType string) []blockSummary {
	out := []blockSummary{}
	document.Walk(doc, func(b domain.Block, sel domain.Selector, depth int) bool {
		if blockType != "" && b.Type != blockType {
			return true
		}
		sum := blockSummary{ID: b.ID, Type: b.Type, Zone: sel.Zone, Index: sel.Index, Depth: depth, Props: b.Props}
		for _, z := range document.OwnedZones(doc, b.ID) {
			sum.Zones = append(sum.Zones, string(z))
		}
		out = append(out, sum)
		return true
	})
	return out
}

// ── Handlers ───────────────────────────────────────────────

func (s *Server) handleListBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	_, ed, err := s.editorFor(ctx, args)
	if err != nil {
		return nil, err
	}
	blockType, _ := args["type"].(string)
	return jsonResult(summarizeBlocks(ed.State().Data, blockType))
}

func (s *Server) handleInsertBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	blockType, _ := args["type"].(string)
	if blockType == "" {
		return nil, fmt.Errorf("type is required")
	}
	props, err := propsArg(args, "props")
	if err != nil {
		return nil, err
	}
	_, ed, err := s.editorFor(ctx, args)
	if err != nil {
		return nil, err
	}

	zone := domain.RootZone
	if z, ok := args["zone"].(string); ok && z != "" {
		zone = domain.ZoneID(z)
	}
	index := intArg(args, "index", -1)
	if index < 0 {
		blocks, _ := ed.State().Data.Zone(zone)
		index = len(blocks)
	}

	id, sel, err := ed.Insert(blockType, zone, index, props)
	if err != nil {
		return nil, err
	}
	ed.Wait()
	b, _ := document.FindBlock(ed.State().Data, id)
	return jsonResult(blockSummary{ID: id, Type: b.Type, Zone: sel.Zone, Index: sel.Index, Props: b.Props})
}

func (s *Server) handleReplaceBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	blockID, _ := args["blockId"].(string)
	if blockID == "" {
		return nil, fmt.Errorf("blockId is required")
	}
	props, err := propsArg(args, "props")
	if err != nil {
		return nil, err
	}
	_, ed, err := s.editorFor(ctx, args)
	if err != nil {
		return nil, err
	}
	b, ok := document.FindBlock(ed.State().Data, blockID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", editor.ErrNotFound, blockID)
	}
	if merge, _ := args["merge"].(bool); merge {
		props = b.Props.Merge(props)
	}
	if props == nil {
		props = domain.Props{}
	}
	if err := ed.UpdateProps(blockID, props); err != nil {
		return nil, err
	}
	ed.Wait()
	b, _ = document.FindBlock(ed.State().Data, blockID)
	return jsonResult(b)
}

func (s *Server) handleMoveBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	blockID, _ := args["blockId"].(string)
	zone, _ := args["zone"].(string)
	if blockID == "" || zone == "" {
		return nil, fmt.Errorf("blockId and zone are required")
	}
	_, ed, err := s.editorFor(ctx, args)
	if err != nil {
		return nil, err
	}
	sel, ok := document.FindSelector(ed.State().Data, blockID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", editor.ErrNotFound, blockID)
	}
	dest := domain.ZoneID(zone)
	index := intArg(args, "index", -1)
	if index < 0 {
		blocks, _ := ed.State().Data.Zone(dest)
		index = len(blocks)
	}

	var action reducer.Action = reducer.MoveAction{
		Meta:        reducer.Record,
		SourceZone:  sel.Zone,
		SourceIndex: sel.Index,
		DestZone:    dest,
		DestIndex:   index,
	}
	if dest == sel.Zone {
		action = reducer.ReorderAction{Meta: reducer.Record, Zone: sel.Zone, SourceIndex: sel.Index, DestIndex: index}
	}
	next := ed.Dispatch(action)
	got, ok := document.FindSelector(next.Data, blockID)
	if !ok || got.Zone != dest {
		return nil, fmt.Errorf("move %s to %s: %w", blockID, zone, editor.ErrNotApplied)
	}
	return jsonResult(got)
}

func (s *Server) handleReorderBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	blockID, _ := args["blockId"].(string)
	if blockID == "" {
		return nil, fmt.Errorf("blockId is required")
	}
	index := intArg(args, "index", -1)
	if index < 0 {
		return nil, fmt.Errorf("index is required")
	}
	_, ed, err := s.editorFor(ctx, args)
	if err != nil {
		return nil, err
	}
	sel, ok := document.FindSelector(ed.State().Data, blockID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", editor.ErrNotFound, blockID)
	}
	next := ed.Dispatch(reducer.ReorderAction{Meta: reducer.Record, Zone: sel.Zone, SourceIndex: sel.Index, DestIndex: index})
	got, _ := document.FindSelector(next.Data, blockID)
	return jsonResult(got)
}

func (s *Server) handleRemoveBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	blockID, _ := args["blockId"].(string)
	if blockID == "" {
		return nil, fmt.Errorf("blockId is required")
	}
	_, ed, err := s.editorFor(ctx, args)
	if err != nil {
		return nil, err
	}
	doc := ed.State().Data
	b, ok := document.FindBlock(doc, blockID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", editor.ErrNotFound, blockID)
	}

	nested := len(document.Subtree(doc, blockID)) - 1
	desc := fmt.Sprintf("Remove %s block %s", b.Type, blockID)
	if nested > 0 {
		desc += fmt.Sprintf(" and %d nested block(s)", nested)
	}
	if err := s.approval.Request("remove_block", desc, fmt.Sprintf(`{"blockIds":[%q]}`, blockID)); err != nil {
		return nil, err
	}

	// Re-locate: the block may have moved while waiting for approval.
	sel, ok := document.FindSelector(ed.State().Data, blockID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", editor.ErrNotFound, blockID)
	}
	ed.Dispatch(reducer.RemoveAction{Meta: reducer.Record, Zone: sel.Zone, Index: sel.Index})
	return textResult(fmt.Sprintf("Block %s removed", blockID)), nil
}
