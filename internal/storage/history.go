package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"composer/internal/domain"
)

// HistoryStore implements domain.HistoryStore using SQLite. Entries are kept
// in seq order together with a cursor row per document.
type HistoryStore struct {
	db         *DB
	maxEntries int
}

// NewHistoryStore creates a HistoryStore that keeps at most maxEntries
// entries per document. Zero keeps everything.
func NewHistoryStore(db *DB, maxEntries int) *HistoryStore {
	return &HistoryStore{db: db, maxEntries: maxEntries}
}

// LoadHistory returns the persisted history of a document, or nil when the
// document has none yet.
func (s *HistoryStore) LoadHistory(ctx context.Context, documentID string) (*domain.HistorySnapshot, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT state_json FROM history_entries WHERE document_id = ? ORDER BY seq ASC`, documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("load history entries: %w", err)
	}

	var entries []domain.AppState
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		var st domain.AppState
		if err := json.Unmarshal([]byte(payload), &st); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		st.Data = st.Data.Normalized()
		entries = append(entries, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	// Close rows before the next query; the pool has a single connection.
	cursor := len(entries) - 1
	err = s.db.Conn().QueryRowContext(ctx,
		`SELECT cursor FROM history_state WHERE document_id = ?`, documentID,
	).Scan(&cursor)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load history cursor: %w", err)
	}
	cursor = min(max(cursor, 0), len(entries)-1)
	return &domain.HistorySnapshot{Entries: entries, Cursor: cursor}, nil
}

// SaveHistory replaces the stored history of a document. When the snapshot
// exceeds the store limit the oldest entries are dropped and the cursor is
// shifted to keep pointing at the same entry.
func (s *HistoryStore) SaveHistory(ctx context.Context, documentID string, snap domain.HistorySnapshot) error {
	entries, cursor := prune(snap.Entries, snap.Cursor, s.maxEntries)

	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history_entries WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("clear history entries: %w", err)
	}
	now := time.Now()
	for seq, st := range entries {
		payload, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("encode history entry %d: %w", seq, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO history_entries (document_id, seq, state_json, created_at) VALUES (?, ?, ?, ?)`,
			documentID, seq, string(payload), now,
		); err != nil {
			return fmt.Errorf("insert history entry %d: %w", seq, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history_state (document_id, cursor) VALUES (?, ?)
		 ON CONFLICT(document_id) DO UPDATE SET cursor = excluded.cursor`,
		documentID, cursor,
	); err != nil {
		return fmt.Errorf("update history cursor: %w", err)
	}
	return tx.Commit()
}

// ClearHistory removes all history data of a document.
func (s *HistoryStore) ClearHistory(ctx context.Context, documentID string) error {
	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM history_state WHERE document_id = ?`,
		`DELETE FROM history_entries WHERE document_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, documentID); err != nil {
			return fmt.Errorf("clear history %s: %w", documentID, err)
		}
	}
	return tx.Commit()
}

// prune drops the oldest entries beyond maxEntries, never dropping the
// entry under the cursor.
func prune(entries []domain.AppState, cursor, maxEntries int) ([]domain.AppState, int) {
	if maxEntries <= 0 || len(entries) <= maxEntries {
		return entries, cursor
	}
	drop := min(len(entries)-maxEntries, cursor)
	return entries[drop:], cursor - drop
}
