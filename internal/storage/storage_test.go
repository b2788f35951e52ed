package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"composer/internal/domain"
	"composer/internal/storage"
)

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "nested", "composer.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleDocument() domain.Document {
	doc := domain.NewDocument()
	doc.Root.Props["title"] = "Landing"
	doc.Content = []domain.Block{
		{ID: "cols", Type: "Columns", Props: domain.Props{"gap": 16.0}},
		{ID: "h1", Type: "Heading", Props: domain.Props{"title": "Hello"}},
	}
	doc.Zones[domain.ZoneKey("cols", "left")] = []domain.Block{{ID: "t1", Type: "Text", Props: domain.Props{"text": "left"}}}
	doc.Zones[domain.ZoneKey("cols", "right")] = []domain.Block{}
	return doc
}

// ─────────────────────────────────────────────────────────────
// Documents
// ─────────────────────────────────────────────────────────────

func TestDocumentStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store := storage.NewDocumentStore(openDB(t))

	rec := &domain.DocumentRecord{ID: "home", Data: sampleDocument()}
	if err := store.SaveDocument(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if rec.Title != "Landing" {
		t.Errorf("expected title from root props, got %q", rec.Title)
	}

	got, err := store.LoadDocument(ctx, "home")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got.Data, rec.Data) {
		t.Errorf("expected round trip\n got %+v\nwant %+v", got.Data, rec.Data)
	}
	if got.PublishedAt != nil {
		t.Error("expected unpublished document")
	}

	// Update keeps created_at.
	created := got.CreatedAt
	rec.Data.Content = rec.Data.Content[:1]
	if err := store.SaveDocument(ctx, rec); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = store.LoadDocument(ctx, "home")
	if len(got.Data.Content) != 1 || !got.CreatedAt.Equal(created) {
		t.Errorf("unexpected record after update %+v", got)
	}
}

func TestDocumentStore_NotFound(t *testing.T) {
	store := storage.NewDocumentStore(openDB(t))
	if _, err := store.LoadDocument(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.MarkPublished(context.Background(), "missing", time.Now()); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDocumentStore_ListDeletePublish(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	store := storage.NewDocumentStore(db)
	for _, id := range []string{"a", "b"} {
		if err := store.SaveDocument(ctx, &domain.DocumentRecord{ID: id, Data: domain.NewDocument()}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.MarkPublished(ctx, "a", time.Now()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if rec, _ := store.LoadDocument(ctx, "a"); rec.PublishedAt == nil {
		t.Error("expected published_at to be set")
	}

	hist := storage.NewHistoryStore(db, 0)
	hist.SaveHistory(ctx, "a", domain.HistorySnapshot{Entries: []domain.AppState{{Data: domain.NewDocument()}}})

	if err := store.DeleteDocument(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	recs, err := store.ListDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ID != "b" {
		t.Errorf("expected only b, got %+v", recs)
	}
	if snap, _ := hist.LoadHistory(ctx, "a"); snap == nil {
		t.Error("expected history left to the history store")
	}
}

// ─────────────────────────────────────────────────────────────
// History
// ─────────────────────────────────────────────────────────────

func states(n int) []domain.AppState {
	out := make([]domain.AppState, n)
	for i := range out {
		doc := domain.NewDocument()
		doc.Root.Props["step"] = float64(i)
		out[i] = domain.AppState{Data: doc, UI: domain.DefaultUiState()}
	}
	return out
}

func TestHistoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewHistoryStore(openDB(t), 0)

	if snap, err := store.LoadHistory(ctx, "home"); err != nil || snap != nil {
		t.Fatalf("expected no history, got %v, %v", snap, err)
	}

	sel := &domain.Selector{Zone: domain.RootZone, Index: 0}
	entries := states(3)
	entries[2].UI.ItemSelector = sel
	if err := store.SaveHistory(ctx, "home", domain.HistorySnapshot{Entries: entries, Cursor: 1}); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap, err := store.LoadHistory(ctx, "home")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Cursor != 1 || len(snap.Entries) != 3 {
		t.Fatalf("unexpected snapshot cursor=%d len=%d", snap.Cursor, len(snap.Entries))
	}
	if !reflect.DeepEqual(snap.Entries, entries) {
		t.Error("expected entries to round trip")
	}

	// Saving again replaces the list.
	store.SaveHistory(ctx, "home", domain.HistorySnapshot{Entries: entries[:1]})
	snap, _ = store.LoadHistory(ctx, "home")
	if len(snap.Entries) != 1 || snap.Cursor != 0 {
		t.Errorf("expected replaced history, got len=%d cursor=%d", len(snap.Entries), snap.Cursor)
	}

	if err := store.ClearHistory(ctx, "home"); err != nil {
		t.Fatal(err)
	}
	if snap, _ := store.LoadHistory(ctx, "home"); snap != nil {
		t.Error("expected cleared history")
	}
}

func TestHistoryStore_Prunes(t *testing.T) {
	ctx := context.Background()
	store := storage.NewHistoryStore(openDB(t), 3)

	entries := states(6)
	store.SaveHistory(ctx, "home", domain.HistorySnapshot{Entries: entries, Cursor: 4})
	snap, _ := store.LoadHistory(ctx, "home")
	if len(snap.Entries) != 3 || snap.Cursor != 1 {
		t.Fatalf("expected 3 entries with cursor 1, got len=%d cursor=%d", len(snap.Entries), snap.Cursor)
	}
	if snap.Entries[snap.Cursor].Data.Root.Props["step"] != 4.0 {
		t.Error("expected cursor to keep pointing at the same entry")
	}

	// The entry under the cursor survives even when it is among the oldest.
	store.SaveHistory(ctx, "home", domain.HistorySnapshot{Entries: entries, Cursor: 1})
	snap, _ = store.LoadHistory(ctx, "home")
	if snap.Entries[snap.Cursor].Data.Root.Props["step"] != 1.0 {
		t.Errorf("expected cursor entry kept, got %v", snap.Entries[snap.Cursor].Data.Root.Props)
	}
}

// ─────────────────────────────────────────────────────────────
// Settings
// ─────────────────────────────────────────────────────────────

func TestSettingsStore_Preferences(t *testing.T) {
	ctx := context.Background()
	store := storage.NewSettingsStore(openDB(t))

	if _, err := store.LoadPreferences(ctx, "default"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	want := domain.Preferences{Viewport: "mobile", LeftSideBarVisible: false, RightSideBarVisible: true}
	if err := store.SavePreferences(ctx, "default", want); err != nil {
		t.Fatal(err)
	}
	got, err := store.LoadPreferences(ctx, "default")
	if err != nil || *got != want {
		t.Errorf("expected %+v, got %+v (%v)", want, got, err)
	}

	var _ domain.PreferenceStore = store
	var _ domain.DocumentStore = storage.NewDocumentStore(nil)
	var _ domain.HistoryStore = storage.NewHistoryStore(nil, 0)
}

// ─────────────────────────────────────────────────────────────
// Approvals
// ─────────────────────────────────────────────────────────────

func TestApprovalStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := storage.NewApprovalStore(openDB(t))

	if _, err := store.ApprovalStatus(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	for _, id := range []string{"a1", "a2"} {
		if err := store.CreateApproval(ctx, storage.Approval{ID: id, Tool: "remove_block", Description: "Remove " + id}); err != nil {
			t.Fatal(err)
		}
	}

	pending, err := store.ListPendingApprovals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 || pending[0].Metadata != "{}" {
		t.Fatalf("expected 2 pending approvals with empty metadata, got %+v", pending)
	}

	if err := store.ResolveApproval(ctx, "a1", storage.ApprovalRejected); err != nil {
		t.Fatal(err)
	}
	if status, _ := store.ApprovalStatus(ctx, "a1"); status != storage.ApprovalRejected {
		t.Errorf("expected rejected, got %s", status)
	}
	if err := store.ResolveApproval(ctx, "a1", storage.ApprovalApproved); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected a decided approval to stay decided, got %v", err)
	}

	pending, _ = store.ListPendingApprovals(ctx)
	if len(pending) != 1 || pending[0].ID != "a2" {
		t.Errorf("expected only a2 pending, got %+v", pending)
	}

	if err := store.DeleteApproval(ctx, "a2"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ApprovalStatus(ctx, "a2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected deleted approval gone, got %v", err)
	}
}
