package domain

import "strings"

// ZoneID addresses an ordered slot of blocks. It is either RootZone or
// "<ownerBlockId>:<zoneName>".
type ZoneID string

// RootZone is the reserved id of the document's top-level zone.
const RootZone ZoneID = "root:default-zone"

// RootID is the target key used for the document root in per-target state
// (field resolution, selection of page settings). Block ids may not use it.
const RootID = "root"

// ZoneKey builds the id of a zone owned by a block.
func ZoneKey(ownerID, name string) ZoneID {
	return ZoneID(ownerID + ":" + name)
}

// IsRoot reports whether z is the root zone.
func (z ZoneID) IsRoot() bool {
	return z == RootZone
}

// Owner returns the id of the block that owns z. ok is false for the root
// zone and for malformed ids.
func (z ZoneID) Owner() (ownerID string, ok bool) {
	if z.IsRoot() {
		return "", false
	}
	i := strings.LastIndexByte(string(z), ':')
	if i <= 0 || i == len(z)-1 {
		return "", false
	}
	return string(z[:i]), true
}

// Name returns the zone name part of an owned zone id.
func (z ZoneID) Name() string {
	i := strings.LastIndexByte(string(z), ':')
	if i < 0 {
		return string(z)
	}
	return string(z[i+1:])
}

// Selector is the (zone, index) address used by every mutating operation.
type Selector struct {
	Zone  ZoneID `json:"zone"`
	Index int    `json:"index"`
}
