package document

import "composer/internal/domain"

// Insert places block at index in zone (clamped to [0, len]) and creates an
// empty zone for each name in ownedZones. It fails when the id is empty,
// reserved or already present, or when zone cannot host blocks.
func Insert(doc domain.Document, zone domain.ZoneID, index int, block domain.Block, ownedZones []string) (domain.Document, bool) {
	if block.ID == "" || block.ID == domain.RootID || Contains(doc, block.ID) {
		return doc, false
	}
	if !canHost(doc, zone) {
		return doc, false
	}
	if block.Props == nil {
		block.Props = domain.Props{}
	}
	blocks, _ := doc.Zone(zone)
	index = clamp(index, 0, len(blocks))
	out := doc.WithZone(zone, insertAt(blocks, index, block))
	for _, name := range ownedZones {
		z := domain.ZoneKey(block.ID, name)
		if _, exists := out.Zones[z]; !exists {
			out = out.WithZone(z, []domain.Block{})
		}
	}
	return out, true
}

// Replace swaps the block at (zone, index). The replacement keeps the
// original id; a replacement carrying a different non-empty id is rejected.
func Replace(doc domain.Document, zone domain.ZoneID, index int, block domain.Block) (domain.Document, bool) {
	blocks, ok := doc.Zone(zone)
	if !ok || index < 0 || index >= len(blocks) {
		return doc, false
	}
	old := blocks[index]
	if block.ID == "" {
		block.ID = old.ID
	}
	if block.ID != old.ID {
		return doc, false
	}
	if block.Type == "" {
		block.Type = old.Type
	}
	if block.Props == nil {
		block.Props = domain.Props{}
	}
	return doc.WithZone(zone, replaceAt(blocks, index, block)), true
}

// Reorder moves the block at src to dst within a single zone. dst is clamped
// to the last index; every element between the two positions shifts by one.
func Reorder(doc domain.Document, zone domain.ZoneID, src, dst int) (domain.Document, bool) {
	blocks, ok := doc.Zone(zone)
	if !ok || src < 0 || src >= len(blocks) {
		return doc, false
	}
	dst = clamp(dst, 0, len(blocks)-1)
	if src == dst {
		return doc, false
	}
	moved := blocks[src]
	rest := removeAt(blocks, src)
	return doc.WithZone(zone, insertAt(rest, dst, moved)), true
}

// Move relocates a block between zones in one transition. Zones owned by the
// moved block travel with it unchanged because they are keyed by its id. The
// destination index clamps to append. Moving a block into a zone owned by
// itself or one of its descendants is rejected.
func Move(doc domain.Document, srcZone domain.ZoneID, srcIdx int, dstZone domain.ZoneID, dstIdx int) (domain.Document, bool) {
	if srcZone == dstZone {
		return Reorder(doc, srcZone, srcIdx, dstIdx)
	}
	src, ok := doc.Zone(srcZone)
	if !ok || srcIdx < 0 || srcIdx >= len(src) {
		return doc, false
	}
	moved := src[srcIdx]
	if !canHost(doc, dstZone) {
		return doc, false
	}
	if owner, owned := dstZone.Owner(); owned && Subtree(doc, moved.ID)[owner] {
		return doc, false
	}
	dst, _ := doc.Zone(dstZone)
	dstIdx = clamp(dstIdx, 0, len(dst))

	out := doc.WithZone(srcZone, removeAt(src, srcIdx))
	out = out.WithZone(dstZone, insertAt(dst, dstIdx, moved))
	return out, true
}

// Remove deletes the block at (zone, index) and every zone it transitively
// owns.
func Remove(doc domain.Document, zone domain.ZoneID, index int) (domain.Document, bool) {
	blocks, ok := doc.Zone(zone)
	if !ok || index < 0 || index >= len(blocks) {
		return doc, false
	}
	removed := blocks[index]
	out := doc.WithZone(zone, removeAt(blocks, index))
	return CascadePrune(out, removed.ID), true
}
