package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPublishTools() {
	s.mcp.AddTool(mcp.NewTool("list_publish_targets",
		mcp.WithDescription("List the databases documents can be published to"),
	), s.handleListPublishTargets)

	s.mcp.AddTool(mcp.NewTool("publish_document",
		mcp.WithDescription("🛑 DESTRUCTIVE: Save the document and publish it to a target, replacing what the target holds. Requires user approval."),
		mcp.WithString("targetId", mcp.Description("Publish target ID"), mcp.Required()),
		mcp.WithString("documentId", mcp.Description("Document ID (optional, defaults to active document)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handlePublishDocument)

	s.mcp.AddTool(mcp.NewTool("unpublish_document",
		mcp.WithDescription("🛑 DESTRUCTIVE: Remove a published document from a target. Requires user approval."),
		mcp.WithString("targetId", mcp.Description("Publish target ID"), mcp.Required()),
		mcp.WithString("documentId", mcp.Description("Document ID (optional, defaults to active document)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleUnpublishDocument)
}

func (s *Server) handleListPublishTargets(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type targetSummary struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Driver string `json:"driver"`
		Table  string `json:"table"`
	}
	targets := s.publish.Targets()
	out := make([]targetSummary, 0, len(targets))
	for _, t := range targets {
		out = append(out, targetSummary{ID: t.ID, Name: t.Name, Driver: string(t.Driver), Table: t.TableName()})
	}
	return jsonResult(out)
}

func (s *Server) handlePublishDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	targetID, _ := args["targetId"].(string)
	if targetID == "" {
		return nil, fmt.Errorf("targetId is required")
	}
	id, ed, err := s.editorFor(ctx, args)
	if err != nil {
		return nil, err
	}
	if err := s.approval.Request("publish_document", fmt.Sprintf("Publish %s to %s", id, targetID)); err != nil {
		return nil, err
	}
	ed.Wait()
	pub, err := s.publish.Publish(ctx, id, targetID)
	if err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Document %s published to %s at %s", id, targetID, pub.PublishedAt.Format("2006-01-02 15:04:05"))), nil
}

func (s *Server) handleUnpublishDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	targetID, _ := args["targetId"].(string)
	if targetID == "" {
		return nil, fmt.Errorf("targetId is required")
	}
	id, err := s.resolveDocumentID(args)
	if err != nil {
		return nil, err
	}
	if err := s.approval.Request("unpublish_document", fmt.Sprintf("Unpublish %s from %s", id, targetID)); err != nil {
		return nil, err
	}
	if err := s.publish.Unpublish(ctx, id, targetID); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Document %s unpublished from %s", id, targetID)), nil
}
