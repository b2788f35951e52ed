package domain

import (
	"context"
	"time"
)

// DocumentRecord is a persisted document with its bookkeeping columns.
type DocumentRecord struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Data        Document   `json:"data"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// DocumentStore loads and saves the document JSON payload.
type DocumentStore interface {
	LoadDocument(ctx context.Context, id string) (*DocumentRecord, error)
	SaveDocument(ctx context.Context, rec *DocumentRecord) error
	ListDocuments(ctx context.Context) ([]DocumentRecord, error)
	DeleteDocument(ctx context.Context, id string) error
	MarkPublished(ctx context.Context, id string, at time.Time) error
}

// HistorySnapshot is a persisted history list plus cursor.
type HistorySnapshot struct {
	Entries []AppState `json:"entries"`
	Cursor  int        `json:"cursor"`
}

// HistoryStore persists a document's linear undo history.
type HistoryStore interface {
	LoadHistory(ctx context.Context, documentID string) (*HistorySnapshot, error)
	SaveHistory(ctx context.Context, documentID string, snap HistorySnapshot) error
	ClearHistory(ctx context.Context, documentID string) error
}

// PreferenceStore persists the restorable subset of UiState per session key.
type PreferenceStore interface {
	LoadPreferences(ctx context.Context, key string) (*Preferences, error)
	SavePreferences(ctx context.Context, key string, prefs Preferences) error
}
