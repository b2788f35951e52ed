package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"composer/internal/storage"
)

// Approval events.
const (
	EventApprovalRequired  = "mcp:approval-required"
	EventApprovalDismissed = "mcp:approval-dismissed"
)

var ErrRejected = errors.New("action rejected by user")

// EventEmitter allows the approval queue to notify the host.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// PendingAction represents a destructive operation awaiting user approval.
type PendingAction struct {
	ID          string `json:"id"`
	Tool        string `json:"tool"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
	Metadata    string `json:"metadata"` // JSON with extra context (e.g. block ids)
}

// ApprovalStore is the cross-process approval table.
type ApprovalStore interface {
	CreateApproval(ctx context.Context, a storage.Approval) error
	ApprovalStatus(ctx context.Context, id string) (string, error)
	DeleteApproval(ctx context.Context, id string) error
}

// ApprovalQueue gates destructive MCP tool calls behind a human decision.
// It supports two modes:
//   - In-process (MCP served by the HTTP server): channels plus events,
//     decided through the approvals endpoints
//   - Store-based (standalone stdio MCP): rows in mcp_approvals, polled
//     until the HTTP server of another process decides
type ApprovalQueue struct {
	mu      sync.Mutex
	pending map[string]pendingEntry
	ctx     context.Context
	emitter EventEmitter
	timeout time.Duration
	poll    time.Duration
	store   ApprovalStore
	auto    bool
}

type pendingEntry struct {
	action PendingAction
	ch     chan bool
}

func NewApprovalQueue(ctx context.Context, emitter EventEmitter) *ApprovalQueue {
	return &ApprovalQueue{
		pending: make(map[string]pendingEntry),
		ctx:     ctx,
		emitter: emitter,
		timeout: 120 * time.Second,
		poll:    500 * time.Millisecond,
	}
}

// SetStore enables store-based mode.
func (q *ApprovalQueue) SetStore(store ApprovalStore) { q.store = store }

// SetAutoApprove approves every request without asking.
func (q *ApprovalQueue) SetAutoApprove(auto bool) { q.auto = auto }

// SetTimeout changes how long a request waits for a decision.
func (q *ApprovalQueue) SetTimeout(d time.Duration) { q.timeout = d }

// Request asks for approval and blocks until approved, rejected or timed
// out. metadata is optional JSON with extra context.
func (q *ApprovalQueue) Request(tool, description string, metadata ...string) error {
	if q.auto {
		return nil
	}
	meta := "{}"
	if len(metadata) > 0 && metadata[0] != "" {
		meta = metadata[0]
	}
	action := PendingAction{
		ID:          uuid.New().String(),
		Tool:        tool,
		Description: description,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Metadata:    meta,
	}
	if q.store != nil {
		return q.requestViaStore(action)
	}
	return q.requestViaChannel(action)
}

func (q *ApprovalQueue) requestViaStore(a PendingAction) error {
	ctx := q.ctx
	if err := q.store.CreateApproval(ctx, storage.Approval{ID: a.ID, Tool: a.Tool, Description: a.Description, Metadata: a.Metadata}); err != nil {
		return err
	}
	// The row is gone once this request returns, whatever the outcome.
	defer q.store.DeleteApproval(context.Background(), a.ID)

	deadline := time.NewTimer(q.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status, err := q.store.ApprovalStatus(ctx, a.ID)
			if err != nil {
				continue
			}
			switch status {
			case storage.ApprovalApproved:
				return nil
			case storage.ApprovalRejected:
				return fmt.Errorf("%w: %s", ErrRejected, a.Tool)
			}
		case <-deadline.C:
			return fmt.Errorf("action timed out after %s: %s", q.timeout, a.Tool)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *ApprovalQueue) requestViaChannel(a PendingAction) error {
	ch := make(chan bool, 1)

	q.mu.Lock()
	q.pending[a.ID] = pendingEntry{action: a, ch: ch}
	q.mu.Unlock()
	defer q.cleanup(a.ID)

	q.emitter.Emit(q.ctx, EventApprovalRequired, a)

	select {
	case approved := <-ch:
		if !approved {
			return fmt.Errorf("%w: %s", ErrRejected, a.Tool)
		}
		return nil
	case <-time.After(q.timeout):
		q.emitter.Emit(q.ctx, EventApprovalDismissed, map[string]string{"id": a.ID})
		return fmt.Errorf("action timed out after %s: %s", q.timeout, a.Tool)
	case <-q.ctx.Done():
		return q.ctx.Err()
	}
}

// Pending lists in-process requests waiting for a decision.
func (q *ApprovalQueue) Pending() []PendingAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]PendingAction, 0, len(q.pending))
	for _, e := range q.pending {
		out = append(out, e.action)
	}
	return out
}

// Approve decides an in-process request. It reports whether id was pending.
func (q *ApprovalQueue) Approve(actionID string) bool { return q.decide(actionID, true) }

// Reject decides an in-process request. It reports whether id was pending.
func (q *ApprovalQueue) Reject(actionID string) bool { return q.decide(actionID, false) }

func (q *ApprovalQueue) decide(actionID string, approved bool) bool {
	q.mu.Lock()
	e, ok := q.pending[actionID]
	q.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case e.ch <- approved:
	default:
	}
	return true
}

func (q *ApprovalQueue) cleanup(id string) {
	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()
}
