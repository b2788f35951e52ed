package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"composer/internal/document"
	"composer/internal/domain"
	"composer/internal/editor"
	"composer/internal/logging"
	"composer/internal/plugins"
	"composer/internal/search"
	"composer/internal/service"
	"composer/internal/storage"
)

type testEnv struct {
	srv  *Server
	docs *service.DocumentService
	db   *storage.DB
}

func newTestEnv(t *testing.T, autoApprove bool) *testEnv {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "composer.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := logging.ConfigureTests()
	reg := plugins.NewRegistry()
	store := storage.NewDocumentStore(db)
	docs := service.NewDocumentService(context.Background(), reg, store, storage.NewHistoryStore(db, 100), service.DocumentServiceOptions{Logger: log})
	srv := New(context.Background(), Deps{
		Emitter:         &service.MockEmitter{},
		Logger:          log,
		Registry:        reg,
		Documents:       docs,
		Search:          search.NewService(nil, store, log),
		DefaultDocument: "home",
		AutoApprove:     autoApprove,
	})
	return &testEnv{srv: srv, docs: docs, db: db}
}

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) string {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("tool failed: %v", err)
	}
	return res.Content[0].(mcp.TextContent).Text
}

func callErr(handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) error {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	_, err := handler(context.Background(), req)
	return err
}

func (e *testEnv) doc(t *testing.T) domain.Document {
	t.Helper()
	ed, ok := e.docs.Editor("home")
	if !ok {
		t.Fatal("expected home open")
	}
	ed.Wait()
	return ed.State().Data
}

// ─────────────────────────────────────────────────────────────
// Block tools
// ─────────────────────────────────────────────────────────────

func TestBlockTools_EditCycle(t *testing.T) {
	env := newTestEnv(t, true)
	s := env.srv

	var heading blockSummary
	if err := json.Unmarshal([]byte(call(t, s.handleInsertBlock, map[string]any{
		"type":  "Heading",
		"props": map[string]any{"title": "Hello"},
	})), &heading); err != nil {
		t.Fatal(err)
	}
	if heading.Zone != domain.RootZone || heading.Index != 0 || heading.Props["title"] != "Hello" {
		t.Fatalf("unexpected heading %+v", heading)
	}

	var cols blockSummary
	json.Unmarshal([]byte(call(t, s.handleInsertBlock, map[string]any{"type": "Columns"})), &cols)
	if cols.Index != 1 {
		t.Errorf("expected columns appended at 1, got %d", cols.Index)
	}

	// Props given as a JSON string are accepted too.
	call(t, s.handleReplaceBlock, map[string]any{"blockId": heading.ID, "props": `{"level": 1}`, "merge": true})
	b, _ := document.FindBlock(env.doc(t), heading.ID)
	if b.Props["title"] != "Hello" || b.Props["level"] != 1.0 {
		t.Errorf("expected merged props, got %v", b.Props)
	}

	left := string(domain.ZoneKey(cols.ID, "left"))
	call(t, s.handleMoveBlock, map[string]any{"blockId": heading.ID, "zone": left})
	sel, _ := document.FindSelector(env.doc(t), heading.ID)
	if sel.Zone != domain.ZoneID(left) || sel.Index != 0 {
		t.Fatalf("expected heading in %s, got %+v", left, sel)
	}

	var listed []blockSummary
	json.Unmarshal([]byte(call(t, s.handleListBlocks, map[string]any{})), &listed)
	if len(listed) != 2 || listed[0].ID != cols.ID || listed[1].Depth != 1 {
		t.Errorf("unexpected listing %+v", listed)
	}

	if err := callErr(s.handleMoveBlock, map[string]any{"blockId": cols.ID, "zone": left}); !errors.Is(err, editor.ErrNotApplied) {
		t.Errorf("expected moving a block into its own zone to fail, got %v", err)
	}

	call(t, s.handleRemoveBlock, map[string]any{"blockId": cols.ID})
	if doc := env.doc(t); len(document.Flatten(doc)) != 0 {
		t.Errorf("expected cascade removal, got %v", document.Flatten(doc))
	}

	call(t, s.handleUndo, nil)
	if _, ok := document.FindBlock(env.doc(t), heading.ID); !ok {
		t.Error("expected undo to restore the nested heading")
	}
	call(t, s.handleRedo, nil)
	if len(env.doc(t).Content) != 0 {
		t.Error("expected redo to remove again")
	}
}

func TestBlockTools_Reorder(t *testing.T) {
	env := newTestEnv(t, true)
	s := env.srv
	var a, b blockSummary
	json.Unmarshal([]byte(call(t, s.handleInsertBlock, map[string]any{"type": "Text"})), &a)
	json.Unmarshal([]byte(call(t, s.handleInsertBlock, map[string]any{"type": "Text"})), &b)

	call(t, s.handleReorderBlock, map[string]any{"blockId": b.ID, "index": 0.0})
	content := env.doc(t).Content
	if content[0].ID != b.ID || content[1].ID != a.ID {
		t.Errorf("expected %s before %s", b.ID, a.ID)
	}
}

func TestBlockTools_Errors(t *testing.T) {
	env := newTestEnv(t, true)
	s := env.srv
	if err := callErr(s.handleInsertBlock, map[string]any{"type": "Video"}); err == nil {
		t.Error("expected unknown type to fail")
	}
	if err := callErr(s.handleReplaceBlock, map[string]any{"blockId": "missing", "props": map[string]any{}}); err == nil {
		t.Error("expected missing block to fail")
	}
	if err := callErr(s.handleReorderBlock, map[string]any{"blockId": "missing"}); err == nil {
		t.Error("expected missing index to fail")
	}
	if err := callErr(s.handleUndo, nil); err == nil {
		t.Error("expected nothing to undo")
	}
}

// ─────────────────────────────────────────────────────────────
// Document tools
// ─────────────────────────────────────────────────────────────

func TestDocumentTools(t *testing.T) {
	env := newTestEnv(t, true)
	s := env.srv
	call(t, s.handleInsertBlock, map[string]any{"type": "Text", "props": map[string]any{"text": "Pricing plans"}})
	call(t, s.handleSetRootProps, map[string]any{"props": map[string]any{"title": "Pricing"}})

	if env.doc(t).Root.Props["title"] != "Pricing" || env.doc(t).Root.Props["fontFamily"] == nil {
		t.Errorf("expected title merged into root props, got %v", env.doc(t).Root.Props)
	}

	var hits []search.Hit
	json.Unmarshal([]byte(call(t, s.handleSearchBlocks, map[string]any{"query": "plans", "documentId": "home"})), &hits)
	if len(hits) != 1 || hits[0].Field != "text" {
		t.Errorf("unexpected hits %+v", hits)
	}

	call(t, s.handleSaveDocument, nil)
	if env.docs.Dirty("home") {
		t.Error("expected saved")
	}

	// Saved documents are found through the store when not open.
	json.Unmarshal([]byte(call(t, s.handleSearchBlocks, map[string]any{"query": "pricing"})), &hits)
	if len(hits) == 0 {
		t.Error("expected store search hit")
	}

	var got struct {
		ID      string          `json:"id"`
		Data    domain.Document `json:"data"`
		CanUndo bool            `json:"canUndo"`
	}
	json.Unmarshal([]byte(call(t, s.handleGetDocument, nil)), &got)
	if got.ID != "home" || len(got.Data.Content) != 1 || !got.CanUndo {
		t.Errorf("unexpected document %+v", got)
	}

	var outline []search.OutlineItem
	json.Unmarshal([]byte(call(t, s.handleGetOutline, map[string]any{"search": "nothing matches"})), &outline)
	if len(outline) != 0 {
		t.Errorf("expected empty outline, got %+v", outline)
	}

	call(t, s.handleImportDocument, map[string]any{"payload": `{"content":[{"id":"x","type":"Heading","props":{"title":"New"}}]}`})
	if _, ok := document.FindBlock(env.doc(t), "x"); !ok {
		t.Error("expected imported block")
	}
}

func TestSetActiveDocument(t *testing.T) {
	env := newTestEnv(t, true)
	s := env.srv
	call(t, s.handleSetActiveDocument, map[string]any{"documentId": "about"})
	call(t, s.handleInsertBlock, map[string]any{"type": "Text"})

	ed, ok := env.docs.Editor("about")
	if !ok || len(ed.State().Data.Content) != 1 {
		t.Error("expected insert into the active document")
	}
}

func TestDocumentIDFromURI(t *testing.T) {
	tests := map[string]string{
		"composer://document/home":     "home",
		"composer://document/a/blocks": "",
		"notes://page/home":            "",
	}
	for uri, want := range tests {
		if got := documentIDFromURI(uri); got != want {
			t.Errorf("%s: expected %q, got %q", uri, want, got)
		}
	}
}

// ─────────────────────────────────────────────────────────────
// Approvals
// ─────────────────────────────────────────────────────────────

func TestApproval_ChannelReject(t *testing.T) {
	env := newTestEnv(t, false)
	s := env.srv
	var text blockSummary
	json.Unmarshal([]byte(call(t, s.handleInsertBlock, map[string]any{"type": "Text"})), &text)

	go func() {
		for {
			if pending := s.Approvals().Pending(); len(pending) == 1 {
				s.Approvals().Reject(pending[0].ID)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
	if err := callErr(s.handleRemoveBlock, map[string]any{"blockId": text.ID}); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if _, ok := document.FindBlock(env.doc(t), text.ID); !ok {
		t.Error("expected block kept after rejection")
	}
}

func TestApproval_ChannelApprove(t *testing.T) {
	q := NewApprovalQueue(context.Background(), &service.MockEmitter{})
	go func() {
		for !q.Approve(firstPending(q)) {
			time.Sleep(5 * time.Millisecond)
		}
	}()
	if err := q.Request("remove_block", "Remove x"); err != nil {
		t.Fatalf("expected approval, got %v", err)
	}
}

func firstPending(q *ApprovalQueue) string {
	if p := q.Pending(); len(p) > 0 {
		return p[0].ID
	}
	return ""
}

func TestApproval_Timeout(t *testing.T) {
	emitter := &service.MockEmitter{}
	q := NewApprovalQueue(context.Background(), emitter)
	q.SetTimeout(20 * time.Millisecond)
	if err := q.Request("remove_block", "Remove x"); err == nil {
		t.Fatal("expected timeout")
	}
	if emitter.Count(EventApprovalDismissed) != 1 {
		t.Error("expected dismissed event")
	}
}

func TestApproval_Store(t *testing.T) {
	env := newTestEnv(t, false)
	store := storage.NewApprovalStore(env.db)
	q := NewApprovalQueue(context.Background(), &service.MockEmitter{})
	q.SetStore(store)
	q.poll = 5 * time.Millisecond

	go func() {
		ctx := context.Background()
		for {
			pending, _ := store.ListPendingApprovals(ctx)
			if len(pending) == 1 {
				store.ResolveApproval(ctx, pending[0].ID, storage.ApprovalApproved)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
	if err := q.Request("publish_document", "Publish home"); err != nil {
		t.Fatalf("expected approval, got %v", err)
	}
	pending, _ := store.ListPendingApprovals(context.Background())
	if len(pending) != 0 {
		t.Error("expected approval row removed")
	}
}
