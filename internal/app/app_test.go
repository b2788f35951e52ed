package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"composer/internal/config"
	"composer/internal/logging"
	"composer/internal/storage"
)

func newTestApp(t *testing.T) (*App, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.WatchPath = ""
	a, err := New(context.Background(), cfg, logging.ConfigureTests(), Options{})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { a.Close(context.Background()) })
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return a, a.Router()
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeView(t *testing.T, rr *httptest.ResponseRecorder) documentView {
	t.Helper()
	var v documentView
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	_, r := newTestApp(t)
	rr := do(t, r, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"home"`) {
		t.Errorf("expected open document listed, got %s", rr.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, r := newTestApp(t)
	do(t, r, http.MethodGet, "/healthz", "")
	rr := do(t, r, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "composer_") {
		t.Error("expected composer metrics exposed")
	}
}

func TestDocumentAPI_ImportSaveUndo(t *testing.T) {
	_, r := newTestApp(t)

	rr := do(t, r, http.MethodGet, "/api/document", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if v := decodeView(t, rr); v.ID != "home" || len(v.Data.Content) != 0 {
		t.Fatalf("expected empty home document, got %+v", v)
	}

	payload := `{"content":[{"id":"t1","type":"Text","props":{"text":"hello"}}],"zones":{},"root":{"props":{"title":"Home"}}}`
	rr = do(t, r, http.MethodPut, "/api/documents/home", payload)
	if rr.Code != http.StatusOK {
		t.Fatalf("import: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	v := decodeView(t, rr)
	if len(v.Data.Content) != 1 || v.Data.Content[0].ID != "t1" || !v.Dirty {
		t.Fatalf("expected imported dirty document, got %+v", v)
	}
	if v.CanUndo {
		t.Error("expected import to stay out of history")
	}

	rr = do(t, r, http.MethodPut, "/api/documents/home", `{broken`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed payload, got %d", rr.Code)
	}

	rr = do(t, r, http.MethodPost, "/api/documents/home/save", "")
	if rr.Code != http.StatusOK || decodeView(t, rr).Dirty {
		t.Fatalf("expected clean document after save, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, r, http.MethodGet, "/api/documents", "")
	if !strings.Contains(rr.Body.String(), `"title":"Home"`) {
		t.Errorf("expected saved title in listing, got %s", rr.Body.String())
	}

	rr = do(t, r, http.MethodPost, "/api/documents/home/undo", "")
	if rr.Code != http.StatusConflict {
		t.Errorf("expected 409 with empty history, got %d", rr.Code)
	}
}

func TestDocumentAPI_UiPatch(t *testing.T) {
	_, r := newTestApp(t)

	rr := do(t, r, http.MethodPatch, "/api/documents/home/ui", `{"viewport":"mobile","searchText":"he"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	v := decodeView(t, rr)
	if v.UI.Viewport != "mobile" || v.UI.SearchText != "he" || v.Dirty {
		t.Errorf("expected UI-only change, got %+v", v)
	}

	rr = do(t, r, http.MethodPatch, "/api/documents/home/ui", `{"viewport":"watch"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown viewport, got %d", rr.Code)
	}
}

func TestPreviewFrame(t *testing.T) {
	_, r := newTestApp(t)
	do(t, r, http.MethodPut, "/api/documents/home", `{"content":[{"id":"h1","type":"Heading","props":{"title":"Welcome","level":1}}]}`)

	rr := do(t, r, http.MethodGet, "/preview/frame?viewport=tablet", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{`data-zone="root:default-zone"`, `data-block-id="h1"`, `Welcome`, `content="width=768"`} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in frame", want)
		}
	}

	rr = do(t, r, http.MethodGet, "/preview?viewport=desktop&width=640", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `data-zoom="0.5"`) {
		t.Errorf("expected scaled shell, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestOutlineAndFields(t *testing.T) {
	_, r := newTestApp(t)
	do(t, r, http.MethodPut, "/api/documents/home", `{"content":[{"id":"h1","type":"Heading","props":{"title":"Welcome"}},{"id":"b1","type":"Button","props":{"label":"Go","action":"submit"}}]}`)

	rr := do(t, r, http.MethodGet, "/api/documents/home/outline", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"h1"`) || !strings.Contains(rr.Body.String(), `"b1"`) {
		t.Fatalf("expected both blocks in outline, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, r, http.MethodGet, "/api/documents/home/fields/b1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), `"href"`) {
		t.Errorf("expected href hidden for a submit button, got %s", rr.Body.String())
	}

	rr = do(t, r, http.MethodGet, "/api/documents/home/fields/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown block, got %d", rr.Code)
	}
}

func TestPublishUnknownTarget(t *testing.T) {
	_, r := newTestApp(t)
	rr := do(t, r, http.MethodPost, "/api/documents/home/publish/nowhere", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestApprovals_StoredRequestDecided(t *testing.T) {
	a, r := newTestApp(t)
	ctx := context.Background()
	if err := a.approvals.CreateApproval(ctx, storage.Approval{ID: "ap1", Tool: "remove_block", Description: "Remove h1"}); err != nil {
		t.Fatal(err)
	}

	rr := do(t, r, http.MethodGet, "/api/approvals", "")
	if !strings.Contains(rr.Body.String(), `"ap1"`) || !strings.Contains(rr.Body.String(), `"standalone":true`) {
		t.Fatalf("expected stored approval listed, got %s", rr.Body.String())
	}

	rr = do(t, r, http.MethodPost, "/api/approvals/ap1/approve", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	status, err := a.approvals.ApprovalStatus(ctx, "ap1")
	if err != nil || status != storage.ApprovalApproved {
		t.Errorf("expected approved, got %q (%v)", status, err)
	}

	rr = do(t, r, http.MethodPost, "/api/approvals/ap1/reject", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected decided approval to be final, got %d", rr.Code)
	}
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster(logging.ConfigureTests())
	events, cancel := b.Subscribe()
	b.Emit(context.Background(), "document:saved", map[string]string{"id": "home"})
	ev := <-events
	if ev.Name != "document:saved" {
		t.Errorf("expected document:saved, got %s", ev.Name)
	}
	cancel()
	b.Emit(context.Background(), "document:saved", nil)
	select {
	case ev := <-events:
		t.Errorf("expected no event after cancel, got %+v", ev)
	default:
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	a, _ := newTestApp(t)
	a.cfg.HTTPAddr = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	cancel()
	if err := <-done; err != nil && err != http.ErrServerClosed {
		t.Errorf("expected clean shutdown, got %v", err)
	}
}
