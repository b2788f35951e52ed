package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"composer/internal/document"
	"composer/internal/domain"
	"composer/internal/editor"
	"composer/internal/observability"
	"composer/internal/reducer"
	"composer/internal/registry"
	"composer/internal/storage"
)

var (
	ErrNotOpen        = errors.New("document is not open")
	ErrSaveInProgress = errors.New("save already in progress")
)

// Save triggers, used as metric labels.
const (
	TriggerManual   = "manual"
	TriggerAutosave = "autosave"
	TriggerShutdown = "shutdown"
)

// Indexer mirrors saved documents into a search index.
type Indexer interface {
	Index(documentID string, doc domain.Document)
	Remove(documentID string)
}

// ─────────────────────────────────────────────────────────────
// Document Service: open editors, persistence, external imports
// ─────────────────────────────────────────────────────────────

type DocumentServiceOptions struct {
	Logger       zerolog.Logger
	Emitter      EventEmitter
	Index        Indexer
	HistoryLimit int
}

// DocumentService owns one editor per open document and persists the
// document together with its history.
type DocumentService struct {
	ctx     context.Context
	reg     *registry.Registry
	docs    domain.DocumentStore
	history domain.HistoryStore
	index   Indexer
	emitter EventEmitter
	log     zerolog.Logger
	limit   int

	saves saveGuard

	mu   sync.Mutex
	open map[string]*openDocument
}

type openDocument struct {
	editor *editor.Editor
	// version counts data-changing dispatches; saved is the version last
	// written to the store.
	version uint64
	saved   uint64
}

// NewDocumentService creates the service. ctx scopes the field resolutions
// of every editor it opens.
func NewDocumentService(ctx context.Context, reg *registry.Registry, docs domain.DocumentStore, history domain.HistoryStore, opts DocumentServiceOptions) *DocumentService {
	emitter := opts.Emitter
	if emitter == nil {
		emitter = LogEmitter{Log: opts.Logger}
	}
	return &DocumentService{
		ctx:     ctx,
		reg:     reg,
		docs:    docs,
		history: history,
		index:   opts.Index,
		emitter: emitter,
		log:     opts.Logger,
		limit:   opts.HistoryLimit,
		open:    map[string]*openDocument{},
	}
}

// OpenOptions customizes a newly opened editor.
type OpenOptions struct {
	Preferences *domain.Preferences
	Hooks       []editor.Hook
}

// Open returns the editor of documentID, loading the document and its
// history on first use. A document that was never saved starts empty.
func (s *DocumentService) Open(ctx context.Context, documentID string, opts OpenOptions) (*editor.Editor, error) {
	s.mu.Lock()
	if od, ok := s.open[documentID]; ok {
		s.mu.Unlock()
		return od.editor, nil
	}
	s.mu.Unlock()

	doc := domain.NewDocument()
	rec, err := s.docs.LoadDocument(ctx, documentID)
	switch {
	case err == nil:
		doc = rec.Data
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("open document %s: %w", documentID, err)
	}
	snap, err := s.history.LoadHistory(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", documentID, err)
	}

	od := &openDocument{}
	hooks := append([]editor.Hook{s.changeHook(documentID, od)}, opts.Hooks...)
	od.editor = editor.New(s.reg, doc, editor.Options{
		Logger:       s.log.With().Str("document", documentID).Logger(),
		Context:      s.ctx,
		History:      snap,
		HistoryLimit: s.limit,
		Preferences:  opts.Preferences,
		OnAction:     hooks,
	})
	od.editor.ResolveAll()

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another caller may have opened it meanwhile.
	if existing, ok := s.open[documentID]; ok {
		return existing.editor, nil
	}
	s.open[documentID] = od
	s.log.Info().Str("document", documentID).Int("blocks", len(document.Flatten(doc))).Msg("document opened")
	return od.editor, nil
}

// changeHook marks the document dirty on every dispatch that touches data.
// It runs inside the editor's dispatch section and only takes s.mu.
func (s *DocumentService) changeHook(documentID string, od *openDocument) editor.Hook {
	return func(a reducer.Action, _, _ domain.AppState) {
		if _, uiOnly := a.(reducer.SetUiAction); uiOnly {
			return
		}
		s.mu.Lock()
		od.version++
		s.mu.Unlock()
		s.emitter.Emit(s.ctx, EventDocumentChanged, map[string]string{"documentId": documentID, "action": a.Name()})
	}
}

// Editor returns the editor of an open document.
func (s *DocumentService) Editor(documentID string) (*editor.Editor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	od, ok := s.open[documentID]
	if !ok {
		return nil, false
	}
	return od.editor, true
}

// Dirty reports whether an open document has unsaved changes.
func (s *DocumentService) Dirty(documentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	od, ok := s.open[documentID]
	return ok && od.version != od.saved
}

// OpenDocuments returns the ids of open documents, sorted.
func (s *DocumentService) OpenDocuments() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.open))
	for id := range s.open {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Save writes the document and its history. Overlapping saves of the same
// document fail with ErrSaveInProgress.
func (s *DocumentService) Save(ctx context.Context, documentID, trigger string) (err error) {
	ctx, span := observability.StartSpan(ctx, "document.save")
	defer func() {
		observability.EndSpan(span, err)
		observability.RecordSave(trigger, err == nil)
	}()

	if !s.saves.TryLock(documentID) {
		return fmt.Errorf("save %s: %w", documentID, ErrSaveInProgress)
	}
	defer s.saves.Unlock(documentID)

	s.mu.Lock()
	od, ok := s.open[documentID]
	var version uint64
	if ok {
		version = od.version
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("save %s: %w", documentID, ErrNotOpen)
	}

	state, snap := od.editor.Checkpoint()
	rec := &domain.DocumentRecord{ID: documentID, Data: state.Data}
	if err := s.docs.SaveDocument(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("document", documentID).Msg("save document")
		return fmt.Errorf("save document %s: %w", documentID, err)
	}
	if err := s.history.SaveHistory(ctx, documentID, snap); err != nil {
		s.log.Error().Err(err).Str("document", documentID).Msg("save history")
		return fmt.Errorf("save history %s: %w", documentID, err)
	}

	s.mu.Lock()
	// Dispatches that raced with the save keep the document dirty.
	od.saved = max(od.saved, version)
	s.mu.Unlock()

	if s.index != nil {
		s.index.Index(documentID, state.Data)
	}
	s.emitter.Emit(ctx, EventDocumentSaved, map[string]string{"documentId": documentID, "trigger": trigger})
	s.log.Debug().Str("document", documentID).Str("trigger", trigger).Msg("document saved")
	return nil
}

// SaveDirty saves every open document with unsaved changes and returns the
// ids that were saved. Failures are logged and joined.
func (s *DocumentService) SaveDirty(ctx context.Context, trigger string) ([]string, error) {
	var (
		saved []string
		errs  []error
	)
	for _, id := range s.OpenDocuments() {
		if !s.Dirty(id) {
			continue
		}
		if err := s.Save(ctx, id, trigger); err != nil {
			if errors.Is(err, ErrSaveInProgress) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		saved = append(saved, id)
	}
	return saved, errors.Join(errs...)
}

// Import replaces the content of an open document with an external JSON
// payload. The change is not recorded in history.
func (s *DocumentService) Import(ctx context.Context, documentID string, payload []byte) error {
	ed, ok := s.Editor(documentID)
	if !ok {
		return fmt.Errorf("import %s: %w", documentID, ErrNotOpen)
	}
	doc, err := document.Hydrate(payload)
	if err != nil {
		return fmt.Errorf("import %s: %w", documentID, err)
	}
	root := doc.Root
	ed.Dispatch(reducer.SetDataAction{Content: doc.Content, Zones: doc.Zones, Root: &root})
	s.emitter.Emit(ctx, EventDocumentImported, map[string]string{"documentId": documentID})
	s.log.Info().Str("document", documentID).Int("blocks", len(document.Flatten(doc))).Msg("document imported")
	return nil
}

// Delete closes and deletes a document with its history.
func (s *DocumentService) Delete(ctx context.Context, documentID string) error {
	s.mu.Lock()
	delete(s.open, documentID)
	s.mu.Unlock()
	// History goes first so a failed delete never leaves a document whose
	// history belongs to an earlier incarnation.
	if err := s.history.ClearHistory(ctx, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	if err := s.docs.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	if s.index != nil {
		s.index.Remove(documentID)
	}
	return nil
}

// List returns the saved documents.
func (s *DocumentService) List(ctx context.Context) ([]domain.DocumentRecord, error) {
	return s.docs.ListDocuments(ctx)
}

// Close waits for running saves, then saves whatever is still dirty.
func (s *DocumentService) Close(ctx context.Context) error {
	s.saves.WaitAll(ctx)
	for _, id := range s.OpenDocuments() {
		if ed, ok := s.Editor(id); ok {
			ed.Wait()
		}
	}
	_, err := s.SaveDirty(ctx, TriggerShutdown)
	return err
}
