package document

import "composer/internal/domain"

// WalkFunc is called for each visited block with its address and nesting
// depth (0 for the root zone). Returning false stops the walk.
type WalkFunc func(b domain.Block, sel domain.Selector, depth int) bool

// Walk visits blocks depth-first: each block of the root zone, then the zones
// it owns in sorted order, recursively. Zones that are not reachable from the
// root zone are not visited, and no zone is visited twice.
func Walk(doc domain.Document, fn WalkFunc) {
	idx := zoneIndex(doc)
	seen := map[domain.ZoneID]bool{}
	var visit func(z domain.ZoneID, blocks []domain.Block, depth int) bool
	visit = func(z domain.ZoneID, blocks []domain.Block, depth int) bool {
		if seen[z] {
			return true
		}
		seen[z] = true
		for i, b := range blocks {
			if !fn(b, domain.Selector{Zone: z, Index: i}, depth) {
				return false
			}
			for _, child := range idx[b.ID] {
				if !visit(child, doc.Zones[child], depth+1) {
					return false
				}
			}
		}
		return true
	}
	visit(domain.RootZone, doc.Content, 0)
}

// Flatten yields every reachable block exactly once.
func Flatten(doc domain.Document) []domain.Block {
	var out []domain.Block
	seen := map[string]bool{}
	Walk(doc, func(b domain.Block, _ domain.Selector, _ int) bool {
		if !seen[b.ID] {
			seen[b.ID] = true
			out = append(out, b)
		}
		return true
	})
	return out
}

// reachableZones returns the set of zones visited by Walk.
func reachableZones(doc domain.Document) map[domain.ZoneID]bool {
	idx := zoneIndex(doc)
	out := map[domain.ZoneID]bool{domain.RootZone: true}
	Walk(doc, func(b domain.Block, _ domain.Selector, _ int) bool {
		for _, z := range idx[b.ID] {
			out[z] = true
		}
		return true
	})
	return out
}
