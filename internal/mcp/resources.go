package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"composer/internal/document"
	"composer/internal/service"
)

const documentURIPrefix = "composer://document/"

func (s *Server) registerResources() {
	// ── composer://documents ───────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		"composer://documents",
		"All Documents",
		mcp.WithMIMEType("application/json"),
	), s.handleDocumentsResource)

	// ── composer://document/{documentId} ───────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			documentURIPrefix+"{documentId}",
			"Document JSON",
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleDocumentResource,
	)
}

func (s *Server) handleDocumentsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	recs, err := s.docs.List(ctx)
	if err != nil {
		return nil, err
	}

	type documentSummary struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	summaries := make([]documentSummary, 0, len(recs))
	for _, r := range recs {
		summaries = append(summaries, documentSummary{ID: r.ID, Title: r.Title})
	}

	data, _ := json.MarshalIndent(summaries, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleDocumentResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	id := documentIDFromURI(uri)
	if id == "" {
		return nil, fmt.Errorf("could not extract documentId from URI: %s", uri)
	}
	ed, err := s.docs.Open(ctx, id, service.OpenOptions{})
	if err != nil {
		return nil, err
	}
	data, err := document.Marshal(ed.State().Data)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// documentIDFromURI extracts the id from "composer://document/{id}".
func documentIDFromURI(uri string) string {
	id, ok := strings.CutPrefix(uri, documentURIPrefix)
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
