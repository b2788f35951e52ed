package search

import (
	"strings"

	"composer/internal/document"
	"composer/internal/domain"
)

// OutlineItem is one row of the layer tree shown next to the preview.
type OutlineItem struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Selector domain.Selector `json:"selector"`
	Depth    int             `json:"depth"`
	// Zones lists the zones the block owns; Collapsed zones hide their
	// blocks from the outline.
	Zones     []domain.ZoneID `json:"zones,omitempty"`
	Collapsed []domain.ZoneID `json:"collapsed,omitempty"`
	Match     bool            `json:"match"`
}

// Outline returns the visible layer tree for ui. With an empty SearchText
// the tree honours ZoneCollapsed. With a search text, collapse is ignored and
// only matching blocks and their ancestors are listed.
func Outline(doc domain.Document, ui domain.UiState) []OutlineItem {
	var matched map[string]bool
	if strings.TrimSpace(ui.SearchText) != "" {
		matched = map[string]bool{}
		for _, h := range Blocks(doc, ui.SearchText) {
			matched[h.ID] = true
		}
	}

	var out []OutlineItem
	// visit appends the rows of zone z and reports whether any row was
	// kept, so ancestors of matches can be kept too.
	var visit func(z domain.ZoneID, depth int) bool
	visit = func(z domain.ZoneID, depth int) bool {
		blocks, _ := doc.Zone(z)
		kept := false
		for i, b := range blocks {
			item := OutlineItem{
				ID:       b.ID,
				Type:     b.Type,
				Selector: domain.Selector{Zone: z, Index: i},
				Depth:    depth,
				Zones:    document.OwnedZones(doc, b.ID),
				Match:    matched[b.ID],
			}
			at := len(out)
			out = append(out, item)

			childKept := false
			for _, child := range item.Zones {
				if matched == nil && ui.ZoneCollapsed[child] {
					out[at].Collapsed = append(out[at].Collapsed, child)
					continue
				}
				if visit(child, depth+1) {
					childKept = true
				}
			}
			if matched != nil && !item.Match && !childKept {
				out = out[:at]
				continue
			}
			kept = true
		}
		return kept
	}
	visit(domain.RootZone, 0)
	return out
}
