package editor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/rs/zerolog"

	"composer/internal/document"
	"composer/internal/domain"
	"composer/internal/history"
	"composer/internal/observability"
	"composer/internal/reducer"
	"composer/internal/registry"
	"composer/internal/resolve"
)

var (
	ErrUnknownType = errors.New("unknown block type")
	ErrNotApplied  = errors.New("action had no effect")
	ErrNotFound    = errors.New("block not found")
)

// Hook observes every dispatch after the new state is installed. Hooks run
// inside the serialized dispatch section and must not call Dispatch on the
// same goroutine; hand work off to a goroutine instead.
type Hook func(action reducer.Action, prev, next domain.AppState)

type Options struct {
	Logger zerolog.Logger
	// Context scopes resolutions started by the editor.
	Context context.Context

	// History resumes a persisted history. Nil seeds a single entry.
	History      *domain.HistorySnapshot
	HistoryLimit int

	// Preferences restores session UI settings at startup.
	Preferences *domain.Preferences

	// NewID overrides block id generation.
	NewID func(blockType string) string

	OnAction  []Hook
	OnLoading resolve.LoadingFunc
}

// Editor owns the single AppState. Every change goes through Dispatch, which
// runs the reducer, fires hooks, records history and triggers field
// resolution, one action at a time.
type Editor struct {
	reg      *registry.Registry
	reducer  *reducer.Reducer
	history  *history.History
	pipeline *resolve.Pipeline
	newID    func(string) string
	log      zerolog.Logger
	ctx      context.Context

	mu    sync.Mutex
	state domain.AppState
	hooks []Hook
}

// New creates an editor over doc.
func New(reg *registry.Registry, doc domain.Document, opts Options) *Editor {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	newID := opts.NewID
	if newID == nil {
		newID = document.NewID
	}

	ui := domain.DefaultUiState()
	if opts.Preferences != nil {
		ui = opts.Preferences.Patch().Apply(ui)
	}
	doc = document.Sanitize(doc)
	doc.Root.Props = reg.Root().DefaultProps.Merge(doc.Root.Props)
	initial := domain.AppState{Data: doc, UI: ui}

	var entries []domain.AppState
	cursor := 0
	if opts.History != nil && len(opts.History.Entries) > 0 {
		entries, cursor = opts.History.Entries, opts.History.Cursor
	}
	h := history.New(initial, entries, cursor, opts.HistoryLimit)
	// The stored document is authoritative. Unrecorded changes (imports,
	// resolved props) saved after the last recorded step replace the current
	// entry so undo still leads to the previous step.
	if entries != nil {
		snap := h.Snapshot()
		if current := snap.Entries[snap.Cursor]; !reflect.DeepEqual(current.Data, doc) {
			h.ReplaceCurrent(domain.AppState{Data: doc, UI: current.UI})
		}
	}

	e := &Editor{
		reg:     reg,
		reducer: reducer.New(reg),
		history: h,
		newID:   newID,
		log:     opts.Logger,
		ctx:     ctx,
		state:   initial,
		hooks:   append([]Hook(nil), opts.OnAction...),
	}
	e.pipeline = resolve.New(reg, resolve.Options{
		Logger:    opts.Logger,
		Apply:     e.applyResolution,
		OnLoading: opts.OnLoading,
	})
	return e
}

// State returns the current state. The value shares structure with the
// editor's state and must be treated as read-only.
func (e *Editor) State() domain.AppState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// OnAction registers a hook.
func (e *Editor) OnAction(h Hook) {
	e.mu.Lock()
	e.hooks = append(e.hooks, h)
	e.mu.Unlock()
}

// Dispatch applies a and returns the resulting state.
func (e *Editor) Dispatch(a reducer.Action) domain.AppState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dispatchLocked(a, true)
}

func (e *Editor) dispatchLocked(a reducer.Action, resolveChanges bool) domain.AppState {
	prev := e.state
	next := e.reducer.Reduce(prev, a)
	e.state = next

	for _, h := range e.hooks {
		h(a, prev, next)
	}
	// A recorded action the reducer turned down leaves no undo step.
	if a.Recorded() && !reflect.DeepEqual(prev.Data, next.Data) {
		e.history.Record(next)
	}
	observability.RecordDispatch(a.Name(), a.Recorded())
	e.log.Debug().Str("action", a.Name()).Bool("recorded", a.Recorded()).Msg("dispatch")

	if resolveChanges {
		e.resolveChangesLocked(prev.Data, next.Data)
	}
	return next
}

// Undo applies the previous history entry. Session preferences (viewport,
// sidebars) are kept; the entry's document and selection are restored.
func (e *Editor) Undo() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, err := e.history.Undo()
	if err != nil {
		return err
	}
	e.restoreLocked(entry)
	return nil
}

// Redo applies the next history entry.
func (e *Editor) Redo() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, err := e.history.Redo()
	if err != nil {
		return err
	}
	e.restoreLocked(entry)
	return nil
}

func (e *Editor) restoreLocked(entry domain.AppState) {
	dragging := false
	ui := domain.Select(entry.UI.ItemSelector)
	ui.IsDragging = &dragging
	data := entry.Data
	e.dispatchLocked(reducer.SetAction{Data: &data, UI: &ui}, true)
}

func (e *Editor) CanUndo() bool { return e.history.CanUndo() }
func (e *Editor) CanRedo() bool { return e.history.CanRedo() }

// History exposes the history for persistence.
func (e *Editor) History() *history.History { return e.history }

// Checkpoint returns the current state and the history taken together, so
// that a save never pairs a document with a history from another dispatch.
func (e *Editor) Checkpoint() (domain.AppState, domain.HistorySnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.history.Snapshot()
}

// Insert creates a block of blockType at (zone, index) as a recorded action
// and returns its id and final address.
func (e *Editor) Insert(blockType string, zone domain.ZoneID, index int, props domain.Props) (string, domain.Selector, error) {
	if _, ok := e.reg.Lookup(blockType); !ok {
		return "", domain.Selector{}, fmt.Errorf("%w: %q", ErrUnknownType, blockType)
	}
	id := e.newID(blockType)
	next := e.Dispatch(reducer.InsertAction{
		Meta:      reducer.Record,
		BlockType: blockType,
		Zone:      zone,
		Index:     index,
		ID:        id,
		Props:     props,
	})
	sel, ok := document.FindSelector(next.Data, id)
	if !ok {
		return "", domain.Selector{}, fmt.Errorf("insert %s into %s: %w", blockType, zone, ErrNotApplied)
	}
	return id, sel, nil
}

// NewID generates an id for a block of blockType.
func (e *Editor) NewID(blockType string) string {
	return e.newID(blockType)
}

// UpdateProps replaces the props of the block with the given id as a
// recorded action. The props are checked against the type's field schema.
func (e *Editor) UpdateProps(id string, props domain.Props) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sel, ok := document.FindSelector(e.state.Data, id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	b, _ := document.GetBlockAt(e.state.Data, sel)
	if err := e.fieldsLocked(id, b.Type).Check(props); err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	e.dispatchLocked(reducer.ReplaceAction{
		Meta:  reducer.Record,
		Zone:  sel.Zone,
		Index: sel.Index,
		Block: domain.Block{ID: id, Type: b.Type, Props: props},
	}, true)
	return nil
}

// UpdateRootProps replaces the page-level props as a recorded action.
func (e *Editor) UpdateRootProps(props domain.Props) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.fieldsLocked(domain.RootID, "").Check(props); err != nil {
		return fmt.Errorf("update root: %w", err)
	}
	e.dispatchLocked(reducer.RootProps(props, reducer.Record), true)
	return nil
}

// Select sets the item selector and the active edit panel.
func (e *Editor) Select(sel *domain.Selector, panel domain.Panel) {
	patch := domain.Select(sel)
	if panel != "" {
		patch.ActivePanel = &panel
	}
	e.Dispatch(reducer.SetUiAction{UI: patch})
}

// Load replaces the document, e.g. on navigation, and starts a new history.
func (e *Editor) Load(doc domain.Document) error {
	doc = document.Sanitize(doc)
	if err := document.Validate(doc); err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pipeline.Forget(e.pipeline.Targets()...)
	var none *domain.Selector
	ui := domain.Select(none)
	next := e.dispatchLocked(reducer.SetAction{Data: &doc, UI: &ui}, true)
	e.history.Reset(next)
	return nil
}

// Fields returns the effective field schema of a target: the last resolved
// schema when there is one, otherwise the registered schema.
func (e *Editor) Fields(target string) registry.Fields {
	e.mu.Lock()
	defer e.mu.Unlock()
	blockType := ""
	if target != domain.RootID {
		b, ok := document.FindBlock(e.state.Data, target)
		if !ok {
			return nil
		}
		blockType = b.Type
	}
	return e.fieldsLocked(target, blockType)
}

func (e *Editor) fieldsLocked(target, blockType string) registry.Fields {
	if fields, ok := e.pipeline.Fields(target); ok {
		return fields
	}
	return e.reg.FieldsFor(target, blockType)
}

// Loading reports whether a resolution of target is in flight.
func (e *Editor) Loading(target string) bool {
	return e.pipeline.Loading(target)
}

// ResolutionError returns the last resolver failure of target.
func (e *Editor) ResolutionError(target string) error {
	return e.pipeline.LastError(target)
}

// ResolveAll starts a resolution of the root and every block that has a
// resolver, regardless of whether its props changed.
func (e *Editor) ResolveAll() {
	e.mu.Lock()
	doc := e.state.Data
	e.mu.Unlock()

	e.pipeline.Resolve(e.ctx, resolve.Request{Target: domain.RootID, Props: doc.Root.Props})
	for _, b := range document.Flatten(doc) {
		e.pipeline.Resolve(e.ctx, resolve.Request{Target: b.ID, Type: b.Type, Props: b.Props})
	}
}

// Wait blocks until every in-flight resolution has finished.
func (e *Editor) Wait() {
	e.pipeline.Wait()
}

// resolveChangesLocked starts resolutions for targets whose props differ
// between prev and next and forgets targets that were removed.
func (e *Editor) resolveChangesLocked(prev, next domain.Document) {
	if !reflect.DeepEqual(prev.Root.Props, next.Root.Props) {
		e.pipeline.Resolve(e.ctx, resolve.Request{Target: domain.RootID, Props: next.Root.Props})
	}

	before := make(map[string]domain.Props)
	document.Walk(prev, func(b domain.Block, _ domain.Selector, _ int) bool {
		before[b.ID] = b.Props
		return true
	})
	document.Walk(next, func(b domain.Block, _ domain.Selector, _ int) bool {
		old, existed := before[b.ID]
		delete(before, b.ID)
		if existed && reflect.DeepEqual(old, b.Props) {
			return true
		}
		e.pipeline.Resolve(e.ctx, resolve.Request{Target: b.ID, Type: b.Type, Props: b.Props})
		return true
	})
	if len(before) > 0 {
		removed := make([]string, 0, len(before))
		for id := range before {
			removed = append(removed, id)
		}
		e.pipeline.Forget(removed...)
	}
}

// applyResolution installs resolved props through a dispatch. The block is
// located by id at apply time because it may have moved while resolving.
func (e *Editor) applyResolution(res resolve.Result) {
	if !res.PropsChanged {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	// Resolve bumps the generation under e.mu, so a dispatch that started a
	// newer resolution after the pipeline's own check is seen here.
	if !e.pipeline.Current(res.Target, res.Generation) {
		return
	}
	if res.Target == domain.RootID {
		e.dispatchLocked(reducer.RootProps(res.Props, reducer.Meta{}), false)
		return
	}
	sel, ok := document.FindSelector(e.state.Data, res.Target)
	if !ok {
		return
	}
	b, _ := document.GetBlockAt(e.state.Data, sel)
	e.dispatchLocked(reducer.ReplaceAction{
		Zone:  sel.Zone,
		Index: sel.Index,
		Block: domain.Block{ID: b.ID, Type: b.Type, Props: res.Props},
	}, false)
}
