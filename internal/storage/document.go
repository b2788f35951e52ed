package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"composer/internal/document"
	"composer/internal/domain"
)

// DocumentStore implements domain.DocumentStore using SQLite.
type DocumentStore struct {
	db *DB
}

func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// LoadDocument reads and hydrates a document. Orphaned zones are pruned;
// a payload that fails validation is reported as an error.
func (s *DocumentStore) LoadDocument(ctx context.Context, id string) (*domain.DocumentRecord, error) {
	rec := &domain.DocumentRecord{}
	var (
		payload   string
		published sql.NullTime
	)
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT id, title, data_json, created_at, updated_at, published_at FROM documents WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Title, &payload, &rec.CreatedAt, &rec.UpdatedAt, &published)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if published.Valid {
		rec.PublishedAt = &published.Time
	}

	doc, err := document.Hydrate([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("hydrate document %s: %w", id, err)
	}
	rec.Data = doc
	return rec, nil
}

// SaveDocument inserts or updates rec. CreatedAt is kept on update.
func (s *DocumentStore) SaveDocument(ctx context.Context, rec *domain.DocumentRecord) error {
	payload, err := document.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", rec.ID, err)
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Title == "" {
		rec.Title, _ = rec.Data.Root.Props["title"].(string)
	}

	_, err = s.db.Conn().ExecContext(ctx,
		`INSERT INTO documents (id, title, data_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title, data_json = excluded.data_json, updated_at = excluded.updated_at`,
		rec.ID, rec.Title, string(payload), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save document %s: %w", rec.ID, err)
	}
	return nil
}

// ListDocuments returns every document, most recently updated first.
func (s *DocumentStore) ListDocuments(ctx context.Context) ([]domain.DocumentRecord, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT id, title, data_json, created_at, updated_at FROM documents ORDER BY updated_at DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var recs []domain.DocumentRecord
	for rows.Next() {
		var (
			rec     domain.DocumentRecord
			payload string
		)
		if err := rows.Scan(&rec.ID, &rec.Title, &payload, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &rec.Data); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", rec.ID, err)
		}
		rec.Data = rec.Data.Normalized()
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// DeleteDocument removes a document together with its history.
func (s *DocumentStore) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.db.Conn().ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

// MarkPublished records the time a document was last published.
func (s *DocumentStore) MarkPublished(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.Conn().ExecContext(ctx, `UPDATE documents SET published_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("mark published %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}
