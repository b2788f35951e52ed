package reducer

import (
	"composer/internal/document"
	"composer/internal/domain"
	"composer/internal/registry"
)

// Reducer maps (AppState, Action) to the next AppState. It performs no I/O
// and never touches history; the editor's dispatch wraps it for that.
type Reducer struct {
	reg *registry.Registry
}

// New creates a reducer that builds inserted blocks from reg.
func New(reg *registry.Registry) *Reducer {
	return &Reducer{reg: reg}
}

// Reduce applies a to state. Requests that are not meaningful (unknown type,
// out of range index, invalid document) return state unchanged.
func (r *Reducer) Reduce(state domain.AppState, a Action) domain.AppState {
	switch a := a.(type) {
	case InsertAction:
		return r.insert(state, a)
	case ReplaceAction:
		doc, ok := document.Replace(state.Data, a.Zone, a.Index, a.Block)
		return r.withData(state, doc, ok)
	case MoveAction:
		doc, ok := document.Move(state.Data, a.SourceZone, a.SourceIndex, a.DestZone, a.DestIndex)
		return r.withData(state, doc, ok)
	case ReorderAction:
		doc, ok := document.Reorder(state.Data, a.Zone, a.SourceIndex, a.DestIndex)
		return r.withData(state, doc, ok)
	case RemoveAction:
		doc, ok := document.Remove(state.Data, a.Zone, a.Index)
		return r.withData(state, doc, ok)
	case SetAction:
		if a.Data != nil {
			doc := document.Sanitize(*a.Data)
			if document.Validate(doc) == nil {
				state = r.withData(state, doc, true)
			}
		}
		if a.UI != nil {
			state.UI = a.UI.Apply(state.UI)
		}
		return state
	case SetDataAction:
		return r.setData(state, a)
	case SetUiAction:
		state.UI = a.UI.Apply(state.UI)
		return state
	}
	return state
}

func (r *Reducer) insert(state domain.AppState, a InsertAction) domain.AppState {
	c, ok := r.reg.Lookup(a.BlockType)
	if !ok {
		return state
	}
	block := domain.Block{
		ID:    a.ID,
		Type:  a.BlockType,
		Props: c.DefaultProps.Merge(a.Props),
	}
	doc, ok := document.Insert(state.Data, a.Zone, a.Index, block, c.Zones)
	return r.withData(state, doc, ok)
}

func (r *Reducer) setData(state domain.AppState, a SetDataAction) domain.AppState {
	doc := state.Data
	if a.Content != nil {
		doc.Content = a.Content
	}
	if a.Zones != nil {
		doc.Zones = a.Zones
	}
	if a.Root != nil {
		doc.Root = domain.RootData{Props: a.Root.Props.Clone()}
	}
	if a.Content == nil && a.Zones == nil {
		return r.withData(state, doc, a.Root != nil)
	}
	doc = document.Sanitize(doc)
	if document.Validate(doc) != nil {
		return state
	}
	return r.withData(state, doc, true)
}

// withData installs doc and keeps the selection on the same block, clearing
// it when the block is gone.
func (r *Reducer) withData(state domain.AppState, doc domain.Document, changed bool) domain.AppState {
	if !changed {
		return state
	}
	state.UI.ItemSelector = followSelection(state.Data, doc, state.UI.ItemSelector)
	state.Data = doc
	return state
}

func followSelection(prev, next domain.Document, sel *domain.Selector) *domain.Selector {
	if sel == nil {
		return nil
	}
	b, ok := document.GetBlockAt(prev, *sel)
	if !ok {
		return nil
	}
	if cur, ok := document.GetBlockAt(next, *sel); ok && cur.ID == b.ID {
		return sel
	}
	moved, ok := document.FindSelector(next, b.ID)
	if !ok {
		return nil
	}
	return &moved
}
