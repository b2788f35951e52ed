package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("compose_landing_page",
		mcp.WithPromptDescription("Guide through composing a landing page from the block catalog"),
		mcp.WithArgument("topic",
			mcp.ArgumentDescription("What the page is about"),
			mcp.RequiredArgument(),
		),
	), s.handleLandingPagePrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("restructure_page",
		mcp.WithPromptDescription("Reorganize an existing document into a two-column layout"),
		mcp.WithArgument("documentId",
			mcp.ArgumentDescription("Document to restructure"),
			mcp.RequiredArgument(),
		),
	), s.handleRestructurePrompt)
}

func (s *Server) handleLandingPagePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	topic := req.Params.Arguments["topic"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Compose a landing page for: %s", topic),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Compose a landing page about "%s" in the active document. Follow these steps:

1. Call list_block_types to see the available blocks, their fields and zones
2. Use set_root_props to set the page title to "%s"
3. insert_block a Heading (level 1) and a Text introduction at the top of root:default-zone
4. insert_block a Columns block, then fill its zones (<columnsId>:left and <columnsId>:right) with an Image and a Text
5. Finish with a Button linking to the call to action
6. Check the result with get_outline, then save_document

Prefer replace_block with merge=true when adjusting a single prop.`, topic, topic),
				},
			},
		},
	}, nil
}

func (s *Server) handleRestructurePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	documentID := req.Params.Arguments["documentId"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Restructure %s", documentID),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Restructure document "%s" into a two-column layout. Follow these steps:

1. set_active_document to "%s" and read it with list_blocks
2. insert_block a Columns block below the first heading
3. Use move_block to move the text blocks into <columnsId>:left and the images into <columnsId>:right
4. Use reorder_block to fix the order inside each column
5. If anything went wrong, undo and try again; then save_document

Never remove blocks unless the user asks for it.`, documentID, documentID),
				},
			},
		},
	}, nil
}
