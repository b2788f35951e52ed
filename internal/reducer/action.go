package reducer

import "composer/internal/domain"

// Action is the closed set of state transitions. Only types in this package
// implement it.
type Action interface {
	// Name is a stable label used for logs and metrics.
	Name() string
	// Recorded reports whether the resulting state becomes a history entry.
	Recorded() bool
	sealed()
}

// Meta carries flags shared by every action.
type Meta struct {
	RecordHistory bool `json:"recordHistory,omitempty"`
}

// Record is the Meta of actions that produce a history entry.
var Record = Meta{RecordHistory: true}

func (m Meta) Recorded() bool { return m.RecordHistory }
func (Meta) sealed()          {}

// InsertAction creates a block of BlockType at (Zone, Index). ID must be set
// by the dispatch boundary; Props overlay the type's default props.
type InsertAction struct {
	Meta
	BlockType string        `json:"componentType"`
	Zone      domain.ZoneID `json:"destinationZone"`
	Index     int           `json:"destinationIndex"`
	ID        string        `json:"id"`
	Props     domain.Props  `json:"props,omitempty"`
}

// ReplaceAction swaps the block at (Zone, Index), keeping its id.
type ReplaceAction struct {
	Meta
	Zone  domain.ZoneID `json:"destinationZone"`
	Index int           `json:"destinationIndex"`
	Block domain.Block  `json:"data"`
}

// MoveAction relocates a block between zones in one transition.
type MoveAction struct {
	Meta
	SourceZone  domain.ZoneID `json:"sourceZone"`
	SourceIndex int           `json:"sourceIndex"`
	DestZone    domain.ZoneID `json:"destinationZone"`
	DestIndex   int           `json:"destinationIndex"`
}

// ReorderAction repositions a block within one zone.
type ReorderAction struct {
	Meta
	Zone        domain.ZoneID `json:"destinationZone"`
	SourceIndex int           `json:"sourceIndex"`
	DestIndex   int           `json:"destinationIndex"`
}

// RemoveAction deletes the block at (Zone, Index) and its owned zones.
type RemoveAction struct {
	Meta
	Zone  domain.ZoneID `json:"zone"`
	Index int           `json:"index"`
}

// SetAction replaces the document and/or patches the UI state. A document
// that fails validation is ignored.
type SetAction struct {
	Meta
	Data *domain.Document `json:"data,omitempty"`
	UI   *domain.UiPatch  `json:"ui,omitempty"`
}

// SetDataAction shallowly patches the document. Nil members are left as is.
type SetDataAction struct {
	Meta
	Content []domain.Block                   `json:"content,omitempty"`
	Zones   map[domain.ZoneID][]domain.Block `json:"zones,omitempty"`
	Root    *domain.RootData                 `json:"root,omitempty"`
}

// SetUiAction patches the UI state only.
type SetUiAction struct {
	Meta
	UI domain.UiPatch `json:"ui"`
}

func (InsertAction) Name() string  { return "insert" }
func (ReplaceAction) Name() string { return "replace" }
func (MoveAction) Name() string    { return "move" }
func (ReorderAction) Name() string { return "reorder" }
func (RemoveAction) Name() string  { return "remove" }
func (SetAction) Name() string     { return "set" }
func (SetDataAction) Name() string { return "setData" }
func (SetUiAction) Name() string   { return "setUi" }

// RootProps builds a SetDataAction replacing the page-level props.
func RootProps(props domain.Props, meta Meta) SetDataAction {
	return SetDataAction{Meta: meta, Root: &domain.RootData{Props: props}}
}
