package history_test

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"composer/internal/domain"
	"composer/internal/history"
)

func state(ids ...string) domain.AppState {
	doc := domain.NewDocument()
	for _, id := range ids {
		doc.Content = append(doc.Content, domain.Block{ID: id, Type: "Text", Props: domain.Props{}})
	}
	return domain.AppState{Data: doc, UI: domain.DefaultUiState()}
}

func TestNew_SeedsSingleEntry(t *testing.T) {
	h := history.New(state("a"), nil, 0, 0)
	if h.Len() != 1 || h.Cursor() != 0 {
		t.Fatalf("expected 1 entry at cursor 0, got %d at %d", h.Len(), h.Cursor())
	}
	if h.CanUndo() || h.CanRedo() {
		t.Error("expected nothing to undo or redo")
	}
	if _, err := h.Undo(); !errors.Is(err, history.ErrNothingToUndo) {
		t.Errorf("expected ErrNothingToUndo, got %v", err)
	}
	if _, err := h.Redo(); !errors.Is(err, history.ErrNothingToRedo) {
		t.Errorf("expected ErrNothingToRedo, got %v", err)
	}
}

func TestNew_ResumesFromSnapshot(t *testing.T) {
	entries := []domain.AppState{state(), state("a"), state("a", "b")}
	h := history.New(state(), entries, 1, 0)
	if !h.CanUndo() || !h.CanRedo() {
		t.Fatal("expected undo and redo available")
	}
	got, err := h.Redo()
	if err != nil {
		t.Fatalf("redo: %v", err)
	}
	if len(got.Data.Content) != 2 {
		t.Errorf("expected 2 blocks, got %d", len(got.Data.Content))
	}

	h = history.New(state(), entries, 99, 0)
	if h.Cursor() != 2 {
		t.Errorf("expected cursor clamped to 2, got %d", h.Cursor())
	}
}

func TestRecord_DiscardsRedoTail(t *testing.T) {
	h := history.New(state(), nil, 0, 0)
	h.Record(state("a"))
	h.Record(state("a", "b"))
	if _, err := h.Undo(); err != nil {
		t.Fatal(err)
	}
	h.Record(state("a", "c"))

	if h.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", h.Len())
	}
	if h.CanRedo() {
		t.Error("expected redo tail discarded")
	}
	snap := h.Snapshot()
	if last := snap.Entries[snap.Cursor].Data.Content[1].ID; last != "c" {
		t.Errorf("expected c at tail, got %s", last)
	}
}

func TestRecord_DoesNotClobberSnapshot(t *testing.T) {
	h := history.New(state(), nil, 0, 0)
	h.Record(state("a"))
	h.Record(state("b"))
	snap := h.Snapshot()
	if _, err := h.Undo(); err != nil {
		t.Fatal(err)
	}
	h.Record(state("c"))
	if snap.Entries[2].Data.Content[0].ID != "b" {
		t.Error("snapshot shares storage with live history")
	}
}

func TestUndoRedo_RoundTrip(t *testing.T) {
	const n = 25
	h := history.New(state(), nil, 0, 0)
	var ids []string
	var last domain.AppState
	for i := 0; i < n; i++ {
		ids = append(ids, fmt.Sprintf("b%d", i))
		last = state(ids...)
		h.Record(last)
	}
	for i := 0; i < n; i++ {
		if _, err := h.Undo(); err != nil {
			t.Fatalf("undo %d: %v", i, err)
		}
	}
	if h.CanUndo() {
		t.Fatal("expected to be at the first entry")
	}
	var got domain.AppState
	for i := 0; i < n; i++ {
		var err error
		if got, err = h.Redo(); err != nil {
			t.Fatalf("redo %d: %v", i, err)
		}
	}
	if !reflect.DeepEqual(got, last) {
		t.Errorf("expected state after %d redos to equal the last recorded state", n)
	}
}

func TestMaxEntries_DropsOldest(t *testing.T) {
	h := history.New(state(), nil, 0, 3)
	h.Record(state("a"))
	h.Record(state("b"))
	h.Record(state("c"))

	if h.Len() != 3 || h.Cursor() != 2 {
		t.Fatalf("expected 3 entries at cursor 2, got %d at %d", h.Len(), h.Cursor())
	}
	h.Undo()
	got, err := h.Undo()
	if err != nil {
		t.Fatal(err)
	}
	if got.Data.Content[0].ID != "a" {
		t.Errorf("expected oldest kept entry a, got %s", got.Data.Content[0].ID)
	}
	if h.CanUndo() {
		t.Error("expected the seed entry to be dropped")
	}
}

func TestReset(t *testing.T) {
	h := history.New(state(), nil, 0, 0)
	h.Record(state("a"))
	h.Reset(state("z"))
	if h.Len() != 1 || h.CanUndo() {
		t.Errorf("expected single entry after reset")
	}
}
