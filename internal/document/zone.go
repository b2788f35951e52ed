package document

import (
	"sort"

	"composer/internal/domain"
)

// GetBlockAt returns the block addressed by sel. ok is false when the zone
// does not exist or the index is out of range.
func GetBlockAt(doc domain.Document, sel domain.Selector) (domain.Block, bool) {
	blocks, ok := doc.Zone(sel.Zone)
	if !ok || sel.Index < 0 || sel.Index >= len(blocks) {
		return domain.Block{}, false
	}
	return blocks[sel.Index], true
}

// FindSelector locates the block with the given id in the root zone or any
// zone reachable from it.
func FindSelector(doc domain.Document, id string) (domain.Selector, bool) {
	var (
		found domain.Selector
		ok    bool
	)
	Walk(doc, func(b domain.Block, sel domain.Selector, _ int) bool {
		if b.ID == id {
			found, ok = sel, true
			return false
		}
		return true
	})
	return found, ok
}

// FindBlock returns the block with the given id.
func FindBlock(doc domain.Document, id string) (domain.Block, bool) {
	sel, ok := FindSelector(doc, id)
	if !ok {
		return domain.Block{}, false
	}
	return GetBlockAt(doc, sel)
}

// OwnedZones returns the ids of zones owned by the block, sorted.
func OwnedZones(doc domain.Document, ownerID string) []domain.ZoneID {
	var zones []domain.ZoneID
	for z := range doc.Zones {
		if owner, ok := z.Owner(); ok && owner == ownerID {
			zones = append(zones, z)
		}
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i] < zones[j] })
	return zones
}

// zoneIndex maps owner block id to its zones, each list sorted.
func zoneIndex(doc domain.Document) map[string][]domain.ZoneID {
	idx := make(map[string][]domain.ZoneID)
	for z := range doc.Zones {
		if owner, ok := z.Owner(); ok {
			idx[owner] = append(idx[owner], z)
		}
	}
	for _, zones := range idx {
		sort.Slice(zones, func(i, j int) bool { return zones[i] < zones[j] })
	}
	return idx
}

// Subtree returns the ids of the block and every block reachable through the
// zones it transitively owns.
func Subtree(doc domain.Document, id string) map[string]bool {
	idx := zoneIndex(doc)
	out := map[string]bool{}
	var visit func(string)
	visit = func(owner string) {
		if out[owner] {
			return
		}
		out[owner] = true
		for _, z := range idx[owner] {
			for _, b := range doc.Zones[z] {
				visit(b.ID)
			}
		}
	}
	visit(id)
	return out
}

// Contains reports whether any zone of the document, reachable or not, holds
// a block with the given id.
func Contains(doc domain.Document, id string) bool {
	for _, b := range doc.Content {
		if b.ID == id {
			return true
		}
	}
	for _, blocks := range doc.Zones {
		for _, b := range blocks {
			if b.ID == id {
				return true
			}
		}
	}
	return false
}

// canHost reports whether zone z may receive blocks: the root zone always can;
// an owned zone can when its owner is present in the tree.
func canHost(doc domain.Document, z domain.ZoneID) bool {
	if z.IsRoot() {
		return true
	}
	owner, ok := z.Owner()
	if !ok {
		return false
	}
	_, found := FindSelector(doc, owner)
	return found
}
