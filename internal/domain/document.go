package domain

// RootData holds page-level settings. It is edited through the same field
// machinery as a block but has no id or type.
type RootData struct {
	Props Props `json:"props"`
}

// Document is the full persisted content tree. Parent/child relationships are
// expressed only through ZoneID keys, never through pointers.
type Document struct {
	Content []Block            `json:"content"`
	Zones   map[ZoneID][]Block `json:"zones"`
	Root    RootData           `json:"root"`
}

// NewDocument returns an empty document with non-nil collections.
func NewDocument() Document {
	return Document{
		Content: []Block{},
		Zones:   map[ZoneID][]Block{},
		Root:    RootData{Props: Props{}},
	}
}

// Zone returns the blocks of zone z. The root zone always exists; an owned
// zone exists only when present in Zones.
func (d Document) Zone(z ZoneID) ([]Block, bool) {
	if z.IsRoot() {
		return d.Content, true
	}
	blocks, ok := d.Zones[z]
	return blocks, ok
}

// WithZone returns a copy of d where zone z holds blocks. The Zones map is
// copied; slices of other zones are shared.
func (d Document) WithZone(z ZoneID, blocks []Block) Document {
	if z.IsRoot() {
		d.Content = blocks
		return d
	}
	zones := make(map[ZoneID][]Block, len(d.Zones)+1)
	for k, v := range d.Zones {
		zones[k] = v
	}
	zones[z] = blocks
	d.Zones = zones
	return d
}

// Normalized fills nil collections so the JSON payload always carries
// "content", "zones" and "root.props".
func (d Document) Normalized() Document {
	if d.Content == nil {
		d.Content = []Block{}
	}
	if d.Zones == nil {
		d.Zones = map[ZoneID][]Block{}
	}
	if d.Root.Props == nil {
		d.Root.Props = Props{}
	}
	return d
}
