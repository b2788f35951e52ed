package dnd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"composer/internal/document"
	"composer/internal/domain"
	"composer/internal/reducer"
)

var (
	ErrDragInProgress = errors.New("a drag is already in progress")
	ErrNoDrag         = errors.New("no drag in progress")
	ErrUnknownSource  = errors.New("drag source is not in the document")
)

// SourceKind tells a relocation apart from a palette drop.
type SourceKind int

const (
	SourceBlock SourceKind = iota
	SourceTemplate
)

// Source is the drag payload: an existing block id, or the type name of a
// palette template.
type Source struct {
	Kind      SourceKind
	BlockID   string
	BlockType string
}

func BlockSource(id string) Source          { return Source{Kind: SourceBlock, BlockID: id} }
func TemplateSource(typeName string) Source { return Source{Kind: SourceTemplate, BlockType: typeName} }

// Candidate is a potential drop position. Index is an insertion point among
// the blocks currently in Zone, the dragged block included: 0 is before the
// first block and len(zone) after the last.
type Candidate struct {
	Zone  domain.ZoneID `json:"zone"`
	Index int           `json:"index"`
}

// Surface maps pointer positions to drop candidates. Implementations un-scale
// the pointer by the surface zoom before comparing it against element bounds.
type Surface interface {
	HitTest(p Point) (Candidate, bool)
}

// Dispatcher is the part of the editor the orchestrator drives.
type Dispatcher interface {
	State() domain.AppState
	Dispatch(a reducer.Action) domain.AppState
	NewID(blockType string) string
}

// Drop describes a completed drop.
type Drop struct {
	Action   string          `json:"action"`
	BlockID  string          `json:"blockId"`
	Selector domain.Selector `json:"selector"`
}

type Options struct {
	Logger   zerolog.Logger
	Scroller *AutoScroller
}

type drag struct {
	source       Source
	footprint    Rect
	preSelection *domain.Selector
	prePanel     domain.Panel
	candidate    *Candidate
	stopScroll   context.CancelFunc
}

// Orchestrator runs the begin/update/end drag protocol. Update never touches
// the document; End turns the last candidate into exactly one structural
// action.
type Orchestrator struct {
	ed       Dispatcher
	surface  Surface
	scroller *AutoScroller
	log      zerolog.Logger

	mu     sync.Mutex
	active *drag
}

func New(ed Dispatcher, surface Surface, opts Options) *Orchestrator {
	return &Orchestrator{
		ed:       ed,
		surface:  surface,
		scroller: opts.Scroller,
		log:      opts.Logger,
	}
}

// SetSurface swaps the hit-testing surface, e.g. after a re-layout.
func (o *Orchestrator) SetSurface(s Surface) {
	o.mu.Lock()
	o.surface = s
	o.mu.Unlock()
}

// Begin starts a drag. It clears the selection, raises the dragging flag and
// keeps footprint to size the placeholder.
func (o *Orchestrator) Begin(ctx context.Context, src Source, footprint Rect) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		return ErrDragInProgress
	}

	state := o.ed.State()
	if src.Kind == SourceBlock {
		if _, ok := document.FindSelector(state.Data, src.BlockID); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSource, src.BlockID)
		}
	}

	d := &drag{
		source:       src,
		footprint:    footprint,
		preSelection: state.UI.ItemSelector,
		prePanel:     state.UI.ActivePanel,
	}
	if o.scroller != nil {
		scrollCtx, cancel := context.WithCancel(ctx)
		d.stopScroll = cancel
		go func() {
			if err := o.scroller.Run(scrollCtx); err != nil && !errors.Is(err, context.Canceled) {
				o.log.Warn().Err(err).Msg("autoscroll stopped")
			}
		}()
	}
	o.active = d

	dragging := true
	patch := domain.Select(nil)
	patch.IsDragging = &dragging
	o.ed.Dispatch(reducer.SetUiAction{UI: patch})
	return nil
}

// Placeholder returns the footprint captured at Begin.
func (o *Orchestrator) Placeholder() (Rect, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return Rect{}, false
	}
	return o.active.footprint, true
}

// Dragging reports whether a drag is in progress.
func (o *Orchestrator) Dragging() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active != nil
}

// Update recomputes the drop candidate for pointer p. Candidates that would
// put a block inside its own subtree are dropped.
func (o *Orchestrator) Update(p Point) (Candidate, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return Candidate{}, false
	}
	if o.scroller != nil {
		o.scroller.SetPointer(p)
	}

	c, ok := Candidate{}, false
	if o.surface != nil {
		c, ok = o.surface.HitTest(p)
	}
	if ok && o.active.source.Kind == SourceBlock && o.insideSource(c.Zone) {
		ok = false
	}
	if !ok {
		o.active.candidate = nil
		return Candidate{}, false
	}
	o.active.candidate = &c
	return c, true
}

func (o *Orchestrator) insideSource(z domain.ZoneID) bool {
	owner, owned := z.Owner()
	if !owned {
		return false
	}
	return document.Subtree(o.ed.State().Data, o.active.source.BlockID)[owner]
}

// Cancel ends the drag without touching the document and restores the
// selection from before the drag.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	d, err := o.takeLocked()
	if err != nil {
		return err
	}
	o.revert(d)
	return nil
}

// End drops the dragged item at the last candidate. Without a candidate, or
// when the drop has no effect, the drag is cancelled and ok is false.
func (o *Orchestrator) End() (drop Drop, ok bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	d, err := o.takeLocked()
	if err != nil {
		return Drop{}, false, err
	}
	if d.candidate == nil {
		o.revert(d)
		return Drop{}, false, nil
	}

	switch d.source.Kind {
	case SourceTemplate:
		drop, ok = o.dropTemplate(d)
	default:
		drop, ok = o.dropBlock(d)
	}
	if !ok {
		o.revert(d)
		return Drop{}, false, nil
	}

	panel := d.prePanel
	if d.source.Kind == SourceTemplate || panel == "" {
		panel = domain.PanelContent
	}
	dragging := false
	patch := domain.Select(&drop.Selector)
	patch.IsDragging = &dragging
	patch.ActivePanel = &panel
	o.ed.Dispatch(reducer.SetUiAction{UI: patch})
	o.log.Debug().Str("action", drop.Action).Str("block", drop.BlockID).Msg("drop")
	return drop, true, nil
}

func (o *Orchestrator) dropTemplate(d *drag) (Drop, bool) {
	id := o.ed.NewID(d.source.BlockType)
	next := o.ed.Dispatch(reducer.InsertAction{
		Meta:      reducer.Record,
		BlockType: d.source.BlockType,
		Zone:      d.candidate.Zone,
		Index:     d.candidate.Index,
		ID:        id,
	})
	sel, ok := document.FindSelector(next.Data, id)
	if !ok {
		return Drop{}, false
	}
	return Drop{Action: "insert", BlockID: id, Selector: sel}, true
}

func (o *Orchestrator) dropBlock(d *drag) (Drop, bool) {
	id := d.source.BlockID
	src, ok := document.FindSelector(o.ed.State().Data, id)
	if !ok {
		return Drop{}, false
	}

	var (
		a      reducer.Action
		action string
	)
	if src.Zone == d.candidate.Zone {
		// The gaps on either side of the source leave it where it is. Below
		// the source, removing it shifts the target gap up by one.
		dest := d.candidate.Index
		if dest > src.Index {
			dest--
		}
		if dest == src.Index {
			return Drop{}, false
		}
		a, action = reducer.ReorderAction{
			Meta:        reducer.Record,
			Zone:        src.Zone,
			SourceIndex: src.Index,
			DestIndex:   dest,
		}, "reorder"
	} else {
		a, action = reducer.MoveAction{
			Meta:        reducer.Record,
			SourceZone:  src.Zone,
			SourceIndex: src.Index,
			DestZone:    d.candidate.Zone,
			DestIndex:   d.candidate.Index,
		}, "move"
	}

	next := o.ed.Dispatch(a)
	sel, ok := document.FindSelector(next.Data, id)
	if !ok || sel == src {
		return Drop{}, false
	}
	return Drop{Action: action, BlockID: id, Selector: sel}, true
}

func (o *Orchestrator) takeLocked() (*drag, error) {
	d := o.active
	if d == nil {
		return nil, ErrNoDrag
	}
	o.active = nil
	if d.stopScroll != nil {
		d.stopScroll()
	}
	if o.scroller != nil {
		o.scroller.ClearPointer()
	}
	return d, nil
}

func (o *Orchestrator) revert(d *drag) {
	dragging := false
	patch := domain.Select(d.preSelection)
	patch.IsDragging = &dragging
	o.ed.Dispatch(reducer.SetUiAction{UI: patch})
}
