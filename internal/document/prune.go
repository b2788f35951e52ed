package document

import "composer/internal/domain"

// CascadePrune deletes every zone owned by removedID and, transitively, every
// zone owned by a block that lived inside one of those zones. The document is
// returned unchanged when there is nothing to prune.
func CascadePrune(doc domain.Document, removedID string) domain.Document {
	idx := zoneIndex(doc)
	doomed := map[domain.ZoneID]bool{}
	var collect func(owner string)
	collect = func(owner string) {
		for _, z := range idx[owner] {
			if doomed[z] {
				continue
			}
			doomed[z] = true
			for _, b := range doc.Zones[z] {
				collect(b.ID)
			}
		}
	}
	collect(removedID)
	if len(doomed) == 0 {
		return doc
	}
	zones := make(map[domain.ZoneID][]domain.Block, len(doc.Zones)-len(doomed))
	for z, blocks := range doc.Zones {
		if !doomed[z] {
			zones[z] = blocks
		}
	}
	doc.Zones = zones
	return doc
}
