// Package search finds blocks by type and text. Local search walks the
// in-memory document; Meili mirrors blocks into Meilisearch for search
// across saved documents.
package search

import (
	"fmt"
	"sort"
	"strings"

	"composer/internal/document"
	"composer/internal/domain"
)

// Hit is a block matching a query.
type Hit struct {
	DocumentID string          `json:"documentId,omitempty"`
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Selector   domain.Selector `json:"selector"`
	Depth      int             `json:"depth"`
	// Field is the prop that matched, empty when the type name matched.
	Field   string `json:"field,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// Blocks returns every block whose type or any text prop contains query,
// case-insensitively, in document order. An empty query matches nothing.
func Blocks(doc domain.Document, query string) []Hit {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var hits []Hit
	document.Walk(doc, func(b domain.Block, sel domain.Selector, depth int) bool {
		if field, text, ok := match(b, q); ok {
			hits = append(hits, Hit{ID: b.ID, Type: b.Type, Selector: sel, Depth: depth, Field: field, Snippet: text})
		}
		return true
	})
	return hits
}

func match(b domain.Block, q string) (field, text string, ok bool) {
	if strings.Contains(strings.ToLower(b.Type), q) {
		return "", "", true
	}
	keys := make([]string, 0, len(b.Props))
	for k := range b.Props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s := textOf(b.Props[k])
		if s != "" && strings.Contains(strings.ToLower(s), q) {
			return k, snippet(s, q), true
		}
	}
	return "", "", false
}

// textOf flattens a prop value into searchable text.
func textOf(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			if s := textOf(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(x))
		for _, k := range keys {
			if s := textOf(x[k]); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case float64, bool:
		return fmt.Sprint(x)
	}
	return ""
}

const snippetRadius = 24

func snippet(s, q string) string {
	i := strings.Index(strings.ToLower(s), q)
	if i < 0 || len(s) <= 2*snippetRadius+len(q) {
		return s
	}
	start := max(0, i-snippetRadius)
	end := min(len(s), i+len(q)+snippetRadius)
	out := s[start:end]
	if start > 0 {
		out = "…" + out
	}
	if end < len(s) {
		out += "…"
	}
	return out
}
