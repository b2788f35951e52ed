package history

import (
	"errors"
	"sync"

	"composer/internal/domain"
)

// Common errors for history operations.
var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// DefaultMaxEntries bounds the history when no limit is configured.
const DefaultMaxEntries = 1000

// History is a linear, cursor-addressed list of recorded states. entries
// [cursor] is the state currently shown; entries after it are redoable.
type History struct {
	mu sync.Mutex

	entries    []domain.AppState
	cursor     int
	maxEntries int
}

// New creates a history resumed from entries and cursor. With no entries the
// history is seeded with a single entry built from initial. A cursor outside
// the entry list is clamped to the tail.
func New(initial domain.AppState, entries []domain.AppState, cursor, maxEntries int) *History {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	h := &History{maxEntries: maxEntries}
	if len(entries) == 0 {
		h.entries = []domain.AppState{initial}
		return h
	}
	h.entries = append([]domain.AppState(nil), entries...)
	if cursor < 0 || cursor >= len(h.entries) {
		cursor = len(h.entries) - 1
	}
	h.cursor = cursor
	h.trimLocked()
	return h
}

// Record discards every entry after the cursor, appends state and moves the
// cursor to it.
func (h *History) Record(state domain.AppState) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries[:h.cursor+1:h.cursor+1], state)
	h.cursor = len(h.entries) - 1
	h.trimLocked()
}

// trimLocked drops the oldest entries beyond the limit.
func (h *History) trimLocked() {
	if over := len(h.entries) - h.maxEntries; over > 0 {
		h.entries = append([]domain.AppState(nil), h.entries[over:]...)
		h.cursor -= over
		if h.cursor < 0 {
			h.cursor = 0
		}
	}
}

// Undo steps the cursor back and returns the entry to apply.
func (h *History) Undo() (domain.AppState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cursor == 0 {
		return domain.AppState{}, ErrNothingToUndo
	}
	h.cursor--
	return h.entries[h.cursor], nil
}

// Redo steps the cursor forward and returns the entry to apply.
func (h *History) Redo() (domain.AppState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cursor >= len(h.entries)-1 {
		return domain.AppState{}, ErrNothingToRedo
	}
	h.cursor++
	return h.entries[h.cursor], nil
}

// CanUndo returns true if there are entries before the cursor.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor > 0
}

// CanRedo returns true if there are entries after the cursor.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor < len(h.entries)-1
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Cursor returns the index of the current entry.
func (h *History) Cursor() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor
}

// Snapshot copies the entries and cursor for persistence.
func (h *History) Snapshot() domain.HistorySnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return domain.HistorySnapshot{
		Entries: append([]domain.AppState(nil), h.entries...),
		Cursor:  h.cursor,
	}
}

// ReplaceCurrent swaps the entry under the cursor for state, leaving the
// rest of the history alone.
func (h *History) ReplaceCurrent(state domain.AppState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.cursor] = state
}

// Reset replaces the whole history with a single entry.
func (h *History) Reset(state domain.AppState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = []domain.AppState{state}
	h.cursor = 0
}
