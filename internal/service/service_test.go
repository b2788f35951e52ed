package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"composer/internal/document"
	"composer/internal/domain"
	"composer/internal/logging"
	"composer/internal/plugins"
	"composer/internal/reducer"
	"composer/internal/service"
	"composer/internal/session"
	"composer/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// saveGuard tests
// ─────────────────────────────────────────────────────────────

func TestSaveGuard_TryLock(t *testing.T) {
	var g service.ExportedSaveGuard

	if !g.TryLock("doc-1") {
		t.Fatal("expected first TryLock to succeed")
	}
	if g.TryLock("doc-1") {
		t.Fatal("expected second TryLock for same document to fail")
	}
	if !g.TryLock("doc-2") {
		t.Fatal("expected TryLock for different document to succeed")
	}
	if !g.Running("doc-1") {
		t.Error("expected doc-1 running")
	}
	g.Unlock("doc-1")
	g.Unlock("doc-2")

	if !g.TryLock("doc-1") {
		t.Fatal("expected TryLock to succeed after unlock")
	}
	g.Unlock("doc-1")
}

func TestSaveGuard_WaitAll(t *testing.T) {
	var g service.ExportedSaveGuard

	if !g.TryLock("doc-a") {
		t.Fatal("expected lock to succeed")
	}

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("doc-a")
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("WaitAll timed out")
	}
}

// ─────────────────────────────────────────────────────────────
// MockEmitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, "test:event", map[string]string{"foo": "bar"})
	m.Emit(ctx, "test:event2", nil)
	m.Emit(ctx, "test:event", nil)

	events := m.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Event != "test:event" {
		t.Errorf("expected 'test:event', got %q", events[0].Event)
	}
	if m.Count("test:event") != 2 {
		t.Errorf("expected 2 test:event, got %d", m.Count("test:event"))
	}
}

// ─────────────────────────────────────────────────────────────
// fixtures
// ─────────────────────────────────────────────────────────────

type fakeIndex struct {
	mu      sync.Mutex
	indexed map[string]domain.Document
	removed []string
}

func (f *fakeIndex) Index(id string, doc domain.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexed == nil {
		f.indexed = map[string]domain.Document{}
	}
	f.indexed[id] = doc
}

func (f *fakeIndex) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
}

type fixture struct {
	db      *storage.DB
	docs    *storage.DocumentStore
	svc     *service.DocumentService
	emitter *service.MockEmitter
	index   *fakeIndex
}

func newFixture(t *testing.T, db *storage.DB) *fixture {
	t.Helper()
	if db == nil {
		var err error
		db, err = storage.New(filepath.Join(t.TempDir(), "composer.db"))
		if err != nil {
			t.Fatalf("open db: %v", err)
		}
		t.Cleanup(func() { db.Close() })
	}
	f := &fixture{db: db, docs: storage.NewDocumentStore(db), emitter: &service.MockEmitter{}, index: &fakeIndex{}}
	f.svc = service.NewDocumentService(context.Background(), plugins.NewRegistry(), f.docs, storage.NewHistoryStore(db, 100), service.DocumentServiceOptions{
		Logger:  logging.ConfigureTests(),
		Emitter: f.emitter,
		Index:   f.index,
	})
	return f
}

// ─────────────────────────────────────────────────────────────
// DocumentService
// ─────────────────────────────────────────────────────────────

func TestDocumentService_SaveAndReopen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	ed, err := f.svc.Open(ctx, "home", service.OpenOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(ed.State().Data.Content) != 0 {
		t.Fatal("expected a new document to be empty")
	}
	if f.svc.Dirty("home") {
		t.Error("expected a freshly opened document to be clean")
	}

	id, _, err := ed.Insert("Heading", domain.RootZone, 0, domain.Props{"title": "Welcome"})
	if err != nil {
		t.Fatal(err)
	}
	if err := ed.UpdateRootProps(domain.Props{"title": "Home page"}); err != nil {
		t.Fatal(err)
	}
	ed.Wait()
	if !f.svc.Dirty("home") {
		t.Fatal("expected document dirty after insert")
	}

	if err := f.svc.Save(ctx, "home", service.TriggerManual); err != nil {
		t.Fatalf("save: %v", err)
	}
	if f.svc.Dirty("home") {
		t.Error("expected clean after save")
	}
	if f.emitter.Count(service.EventDocumentSaved) != 1 {
		t.Errorf("expected one saved event, got %d", f.emitter.Count(service.EventDocumentSaved))
	}
	if _, ok := f.index.indexed["home"]; !ok {
		t.Error("expected saved document to be indexed")
	}

	rec, err := f.docs.LoadDocument(ctx, "home")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Title != "Home page" {
		t.Errorf("expected title from root props, got %q", rec.Title)
	}

	// A second service over the same database resumes document and history.
	again := newFixture(t, f.db)
	ed2, err := again.svc.Open(ctx, "home", service.OpenOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := document.FindBlock(ed2.State().Data, id); !ok {
		t.Fatal("expected heading after reopen")
	}
	if !ed2.CanUndo() {
		t.Fatal("expected persisted history to allow undo")
	}
	if err := ed2.Undo(); err != nil {
		t.Fatal(err)
	}
	if _, ok := document.FindBlock(ed2.State().Data, id); !ok {
		t.Error("expected first undo to revert the root props only")
	}
	if err := ed2.Undo(); err != nil {
		t.Fatal(err)
	}
	if len(ed2.State().Data.Content) != 0 {
		t.Error("expected second undo to remove the heading")
	}
}

func TestDocumentService_OpenReturnsSameEditor(t *testing.T) {
	f := newFixture(t, nil)
	a, _ := f.svc.Open(context.Background(), "home", service.OpenOptions{})
	b, _ := f.svc.Open(context.Background(), "home", service.OpenOptions{})
	if a != b {
		t.Error("expected one editor per document")
	}
	if got := f.svc.OpenDocuments(); len(got) != 1 || got[0] != "home" {
		t.Errorf("unexpected open documents %v", got)
	}
}

func TestDocumentService_SaveNotOpen(t *testing.T) {
	f := newFixture(t, nil)
	err := f.svc.Save(context.Background(), "missing", service.TriggerManual)
	if !errors.Is(err, service.ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
}

func TestDocumentService_SaveDirty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a, _ := f.svc.Open(ctx, "a", service.OpenOptions{})
	f.svc.Open(ctx, "b", service.OpenOptions{})
	a.Insert("Text", domain.RootZone, 0, nil)
	a.Wait()

	saved, err := f.svc.SaveDirty(ctx, service.TriggerAutosave)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 1 || saved[0] != "a" {
		t.Errorf("expected only a saved, got %v", saved)
	}
	if _, err := f.docs.LoadDocument(ctx, "b"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected clean document b unsaved, got %v", err)
	}
}

func TestDocumentService_SelectionDoesNotDirty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	ed, _ := f.svc.Open(ctx, "home", service.OpenOptions{})
	ed.Dispatch(reducer.SetUiAction{UI: domain.UiPatch{SearchText: strPtr("hero")}})
	if f.svc.Dirty("home") {
		t.Error("expected a UI-only change to keep the document clean")
	}
}

func TestDocumentService_Import(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	ed, _ := f.svc.Open(ctx, "home", service.OpenOptions{})

	payload := []byte(`{"content":[{"id":"t1","type":"Text","props":{"text":"imported"}}],"zones":{},"root":{"props":{"title":"From file"}}}`)
	if err := f.svc.Import(ctx, "home", payload); err != nil {
		t.Fatalf("import: %v", err)
	}
	ed.Wait()

	b, ok := document.FindBlock(ed.State().Data, "t1")
	if !ok || b.Props["text"] != "imported" {
		t.Fatalf("expected imported block, got %+v", ed.State().Data.Content)
	}
	if ed.CanUndo() {
		t.Error("expected import to stay out of history")
	}
	if !f.svc.Dirty("home") {
		t.Error("expected import to dirty the document")
	}
	if f.emitter.Count(service.EventDocumentImported) != 1 {
		t.Error("expected imported event")
	}

	if err := f.svc.Import(ctx, "home", []byte(`{not json`)); err == nil {
		t.Error("expected malformed payload to fail")
	}
	if err := f.svc.Import(ctx, "other", payload); !errors.Is(err, service.ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
}

func TestDocumentService_ImportSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	ed, _ := f.svc.Open(ctx, "home", service.OpenOptions{})
	heading, _, err := ed.Insert("Heading", domain.RootZone, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	ed.Wait()
	if err := f.svc.Save(ctx, "home", service.TriggerManual); err != nil {
		t.Fatal(err)
	}

	payload := []byte(`{"content":[{"id":"imported-1","type":"Text","props":{"text":"from file"}}]}`)
	if err := f.svc.Import(ctx, "home", payload); err != nil {
		t.Fatal(err)
	}
	ed.Wait()
	if err := f.svc.Save(ctx, "home", service.TriggerManual); err != nil {
		t.Fatal(err)
	}

	again := newFixture(t, f.db)
	ed2, err := again.svc.Open(ctx, "home", service.OpenOptions{})
	if err != nil {
		t.Fatal(err)
	}
	content := ed2.State().Data.Content
	if len(content) != 1 || content[0].ID != "imported-1" {
		t.Fatalf("expected saved import after reopen, got %+v", content)
	}
	if again.svc.Dirty("home") {
		t.Error("expected reopened document clean")
	}

	// Undo still reaches the step recorded before the import.
	if err := ed2.Undo(); err != nil {
		t.Fatal(err)
	}
	if len(ed2.State().Data.Content) != 0 {
		t.Errorf("expected undo to the empty document, got %+v", ed2.State().Data.Content)
	}
	if err := ed2.Redo(); err != nil {
		t.Fatal(err)
	}
	if _, ok := document.FindBlock(ed2.State().Data, heading); ok {
		t.Error("expected redo to return to the imported document, not the replaced heading step")
	}
}

func TestDocumentService_Delete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	ed, _ := f.svc.Open(ctx, "home", service.OpenOptions{})
	ed.Insert("Text", domain.RootZone, 0, nil)
	ed.Wait()
	if err := f.svc.Save(ctx, "home", service.TriggerManual); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.Delete(ctx, "home"); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.svc.Editor("home"); ok {
		t.Error("expected editor closed")
	}
	recs, _ := f.svc.List(ctx)
	if len(recs) != 0 {
		t.Errorf("expected no documents, got %d", len(recs))
	}
	if len(f.index.removed) != 1 {
		t.Error("expected index removal")
	}
	if snap, err := storage.NewHistoryStore(f.db, 0).LoadHistory(ctx, "home"); err != nil || snap != nil {
		t.Errorf("expected history cleared, got %+v (%v)", snap, err)
	}

	// A document recreated under the same id starts without undo steps.
	ed, _ = f.svc.Open(ctx, "home", service.OpenOptions{})
	if ed.CanUndo() {
		t.Error("expected fresh history for a recreated document")
	}
}

func TestDocumentService_CloseSavesDirty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	ed, _ := f.svc.Open(ctx, "home", service.OpenOptions{})
	ed.Insert("Text", domain.RootZone, 0, nil)

	if err := f.svc.Close(ctx); err != nil {
		t.Fatal(err)
	}
	rec, err := f.docs.LoadDocument(ctx, "home")
	if err != nil {
		t.Fatalf("expected document saved on close: %v", err)
	}
	if len(rec.Data.Content) != 1 {
		t.Errorf("expected one block, got %d", len(rec.Data.Content))
	}
}

func strPtr(s string) *string { return &s }

// ─────────────────────────────────────────────────────────────
// Autosave
// ─────────────────────────────────────────────────────────────

func TestAutosave_InvalidSchedule(t *testing.T) {
	f := newFixture(t, nil)
	a := service.NewAutosave(f.svc, service.AutosaveOptions{Spec: "every now and then"}, logging.ConfigureTests())
	if err := a.Start(context.Background()); err == nil {
		t.Error("expected invalid schedule to fail")
	}
	a.Stop()
}

func TestAutosave_ImportsWatchedFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	ed, _ := f.svc.Open(ctx, "home", service.OpenOptions{})

	path := filepath.Join(t.TempDir(), "home.json")
	if err := os.WriteFile(path, []byte(`{"content":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	a := service.NewAutosave(f.svc, service.AutosaveOptions{
		WatchPath:     path,
		WatchDocument: "home",
		Debounce:      20 * time.Millisecond,
	}, logging.ConfigureTests())
	if err := a.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer a.Stop()

	payload := []byte(`{"content":[{"id":"w1","type":"Text","props":{"text":"watched"}}]}`)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := document.FindBlock(ed.State().Data, "w1"); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected watched file to be imported")
}

// ─────────────────────────────────────────────────────────────
// PublishService
// ─────────────────────────────────────────────────────────────

func TestPublishService_PublishToSQLite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	ed, _ := f.svc.Open(ctx, "home", service.OpenOptions{})
	ed.Insert("Heading", domain.RootZone, 0, domain.Props{"title": "Live"})
	ed.Wait()

	target := domain.PublishTarget{ID: "site", Name: "Site", Driver: domain.DatabaseDriverSQLite, Host: filepath.Join(t.TempDir(), "site.db")}
	pub := service.NewPublishService(f.svc, []domain.PublishTarget{target}, nil, f.emitter, logging.ConfigureTests())

	if err := pub.TestTarget(ctx, "site"); err != nil {
		t.Fatalf("test target: %v", err)
	}
	p, err := pub.Publish(ctx, "home", "site")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if f.svc.Dirty("home") {
		t.Error("expected publish to save the dirty document first")
	}

	got, err := pub.Published(ctx, "home", "site")
	if err != nil {
		t.Fatal(err)
	}
	doc, err := document.Hydrate(got.Payload)
	if err != nil {
		t.Fatalf("hydrate publication: %v", err)
	}
	if len(doc.Content) != 1 || doc.Content[0].Props["title"] != "Live" {
		t.Errorf("unexpected published content %+v", doc.Content)
	}

	rec, _ := f.docs.LoadDocument(ctx, "home")
	if rec.PublishedAt == nil || !rec.PublishedAt.Equal(p.PublishedAt) {
		t.Errorf("expected publishedAt %v, got %v", p.PublishedAt, rec.PublishedAt)
	}
	if f.emitter.Count(service.EventDocumentPublished) != 1 {
		t.Error("expected published event")
	}

	if err := pub.Unpublish(ctx, "home", "site"); err != nil {
		t.Fatal(err)
	}
	if _, err := pub.Published(ctx, "home", "site"); err == nil {
		t.Error("expected publication removed")
	}
}

func TestPublishService_UnknownTarget(t *testing.T) {
	f := newFixture(t, nil)
	pub := service.NewPublishService(f.svc, nil, nil, f.emitter, logging.ConfigureTests())
	if _, err := pub.Publish(context.Background(), "home", "nope"); !errors.Is(err, service.ErrUnknownTarget) {
		t.Errorf("expected ErrUnknownTarget, got %v", err)
	}
	if len(pub.Targets()) != 0 {
		t.Error("expected no targets")
	}
}

// ─────────────────────────────────────────────────────────────
// PreferencesService
// ─────────────────────────────────────────────────────────────

func TestPreferencesService_FallbackAndHook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	redisStore := session.NewRedisStoreWithClient(client, time.Hour)
	settings := storage.NewSettingsStore(f.db)

	prefs := service.NewPreferencesService(redisStore, settings, logging.ConfigureTests())
	if got := prefs.Load(ctx, "s1"); got != nil {
		t.Fatalf("expected no preferences, got %+v", got)
	}

	ed, _ := f.svc.Open(ctx, "home", service.OpenOptions{})
	ed.OnAction(prefs.Hook(ctx, "s1"))
	viewport := "phone"
	ed.Dispatch(reducer.SetUiAction{UI: domain.UiPatch{Viewport: &viewport}})
	prefs.Wait()

	got := prefs.Load(ctx, "s1")
	if got == nil || got.Viewport != "phone" {
		t.Fatalf("expected phone viewport, got %+v", got)
	}

	// Redis expired the session; the local copy still restores it.
	mr.FlushAll()
	got = prefs.Load(ctx, "s1")
	if got == nil || got.Viewport != "phone" {
		t.Errorf("expected fallback preferences, got %+v", got)
	}
}
