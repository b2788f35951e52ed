package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Approval statuses.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Approval is a destructive agent action recorded for a decision made in
// another process.
type Approval struct {
	ID          string    `json:"id"`
	Tool        string    `json:"tool"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Metadata    string    `json:"metadata"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ApprovalStore persists approvals in mcp_approvals.
type ApprovalStore struct {
	db *DB
}

func NewApprovalStore(db *DB) *ApprovalStore {
	return &ApprovalStore{db: db}
}

func (s *ApprovalStore) CreateApproval(ctx context.Context, a Approval) error {
	if a.Status == "" {
		a.Status = ApprovalPending
	}
	if a.Metadata == "" {
		a.Metadata = "{}"
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO mcp_approvals (id, tool, description, status, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Tool, a.Description, a.Status, a.Metadata, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}
	return nil
}

// ApprovalStatus returns the status of id.
func (s *ApprovalStore) ApprovalStatus(ctx context.Context, id string) (string, error) {
	var status string
	err := s.db.conn.QueryRowContext(ctx, `SELECT status FROM mcp_approvals WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("approval %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get approval %s: %w", id, err)
	}
	return status, nil
}

// ResolveApproval moves a pending approval to status.
func (s *ApprovalStore) ResolveApproval(ctx context.Context, id, status string) error {
	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE mcp_approvals SET status = ? WHERE id = ? AND status = ?`, status, id, ApprovalPending)
	if err != nil {
		return fmt.Errorf("resolve approval %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("approval %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *ApprovalStore) DeleteApproval(ctx context.Context, id string) error {
	_, err := s.db.conn.ExecContext(ctx, `DELETE FROM mcp_approvals WHERE id = ?`, id)
	return err
}

// ListPendingApprovals returns pending approvals, oldest first.
func (s *ApprovalStore) ListPendingApprovals(ctx context.Context) ([]Approval, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT id, tool, description, status, metadata, created_at FROM mcp_approvals WHERE status = ? ORDER BY created_at, id`,
		ApprovalPending)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var out []Approval
	for rows.Next() {
		var a Approval
		if err := rows.Scan(&a.ID, &a.Tool, &a.Description, &a.Status, &a.Metadata, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
