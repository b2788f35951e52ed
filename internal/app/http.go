package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/a-h/templ"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"composer/internal/document"
	"composer/internal/domain"
	"composer/internal/editor"
	"composer/internal/history"
	"composer/internal/observability"
	"composer/internal/reducer"
	"composer/internal/search"
	"composer/internal/service"
	"composer/internal/storage"
)

const defaultContainerWidth = 1024

// Router builds the HTTP surface: the preview, the document API, approvals,
// events, the MCP transport, metrics and health.
func (a *App) Router() *gin.Engine {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(a.log))
	r.Use(observability.RequestMetricsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(a.started).String(),
			"documents": a.docs.OpenDocuments(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/preview", a.handlePreview)
	r.GET("/preview/frame", a.handlePreviewFrame)

	api := r.Group("/api")
	api.GET("/document", a.handleGetDocument)
	api.GET("/documents", a.handleListDocuments)
	api.GET("/documents/:id", a.handleGetDocument)
	api.PUT("/documents/:id", a.handleImportDocument)
	api.DELETE("/documents/:id", a.handleDeleteDocument)
	api.POST("/documents/:id/save", a.handleSaveDocument)
	api.POST("/documents/:id/undo", a.handleUndo)
	api.POST("/documents/:id/redo", a.handleRedo)
	api.PATCH("/documents/:id/ui", a.handlePatchUi)
	api.GET("/documents/:id/outline", a.handleOutline)
	api.GET("/documents/:id/fields/:target", a.handleFields)
	api.POST("/documents/:id/publish/:target", a.handlePublish)
	api.DELETE("/documents/:id/publish/:target", a.handleUnpublish)
	api.GET("/search", a.handleSearch)
	api.GET("/events", a.handleEvents)

	api.GET("/approvals", a.handleListApprovals)
	api.POST("/approvals/:id/approve", a.handleDecideApproval(true))
	api.POST("/approvals/:id/reject", a.handleDecideApproval(false))

	r.Any("/mcp", gin.WrapH(a.mcp.HTTPHandler()))
	return r
}

// Serve runs the HTTP server until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{Addr: a.cfg.HTTPAddr, Handler: a.Router()}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ── helpers ────────────────────────────────────────────────

func (a *App) documentID(c *gin.Context) string {
	if id := c.Param("id"); id != "" {
		return id
	}
	if id := c.Query("document"); id != "" {
		return id
	}
	return a.cfg.DocumentID
}

func (a *App) openEditor(c *gin.Context) (string, *editor.Editor, bool) {
	id := a.documentID(c)
	ed, err := a.Open(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return id, nil, false
	}
	return id, ed, true
}

func (a *App) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, service.ErrNotOpen),
		errors.Is(err, service.ErrUnknownTarget), errors.Is(err, editor.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, history.ErrNothingToUndo), errors.Is(err, history.ErrNothingToRedo):
		status = http.StatusConflict
	case errors.Is(err, service.ErrSaveInProgress):
		status = http.StatusConflict
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// viewport picks the profile named by the query, then the editor's active
// profile, then the first configured one.
func (a *App) viewport(c *gin.Context, ui domain.UiState) domain.Viewport {
	if vp, ok := a.cfg.Viewport(c.Query("viewport")); ok {
		return vp
	}
	if vp, ok := a.cfg.Viewport(ui.Viewport); ok {
		return vp
	}
	return a.cfg.Viewports[0]
}

func render(c *gin.Context, comp templ.Component) {
	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := comp.Render(c.Request.Context(), c.Writer); err != nil {
		c.Error(err)
	}
}

// ── preview ────────────────────────────────────────────────

func (a *App) handlePreview(c *gin.Context) {
	_, ed, ok := a.openEditor(c)
	if !ok {
		return
	}
	state := ed.State()
	vp := a.viewport(c, state.UI)
	width, err := strconv.ParseFloat(c.DefaultQuery("width", strconv.Itoa(defaultContainerWidth)), 64)
	if err != nil || width <= 0 {
		width = defaultContainerWidth
	}
	shell, err := a.preview.Shell(c.Request.Context(), state.Data, vp, width)
	if err != nil {
		a.fail(c, err)
		return
	}
	render(c, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html><head><meta charset="utf-8"><title>Preview</title></head><body>`); err != nil {
			return err
		}
		if err := shell.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	}))
}

func (a *App) handlePreviewFrame(c *gin.Context) {
	_, ed, ok := a.openEditor(c)
	if !ok {
		return
	}
	state := ed.State()
	render(c, a.preview.Frame(state.Data, a.viewport(c, state.UI)))
}

// ── documents ──────────────────────────────────────────────

type documentView struct {
	ID      string          `json:"id"`
	Data    domain.Document `json:"data"`
	UI      domain.UiState  `json:"ui"`
	CanUndo bool            `json:"canUndo"`
	CanRedo bool            `json:"canRedo"`
	Dirty   bool            `json:"dirty"`
}

func (a *App) view(id string, ed *editor.Editor) documentView {
	state := ed.State()
	return documentView{ID: id, Data: state.Data, UI: state.UI, CanUndo: ed.CanUndo(), CanRedo: ed.CanRedo(), Dirty: a.docs.Dirty(id)}
}

func (a *App) handleGetDocument(c *gin.Context) {
	id, ed, ok := a.openEditor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, a.view(id, ed))
}

func (a *App) handleListDocuments(c *gin.Context) {
	recs, err := a.docs.List(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	type summary struct {
		ID          string     `json:"id"`
		Title       string     `json:"title"`
		UpdatedAt   time.Time  `json:"updatedAt"`
		PublishedAt *time.Time `json:"publishedAt,omitempty"`
	}
	out := make([]summary, 0, len(recs))
	for _, r := range recs {
		out = append(out, summary{ID: r.ID, Title: r.Title, UpdatedAt: r.UpdatedAt, PublishedAt: r.PublishedAt})
	}
	c.JSON(http.StatusOK, out)
}

// handleImportDocument replaces the document with the request body, the way
// an external edit of the watched file does.
func (a *App) handleImportDocument(c *gin.Context) {
	id, ed, ok := a.openEditor(c)
	if !ok {
		return
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 8<<20))
	if err != nil {
		a.fail(c, err)
		return
	}
	if err := a.docs.Import(c.Request.Context(), id, payload); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ed.Wait()
	c.JSON(http.StatusOK, a.view(id, ed))
}

func (a *App) handleDeleteDocument(c *gin.Context) {
	if err := a.docs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *App) handleSaveDocument(c *gin.Context) {
	id, ed, ok := a.openEditor(c)
	if !ok {
		return
	}
	ed.Wait()
	if err := a.docs.Save(c.Request.Context(), id, service.TriggerManual); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a.view(id, ed))
}

func (a *App) handleUndo(c *gin.Context) {
	id, ed, ok := a.openEditor(c)
	if !ok {
		return
	}
	if err := ed.Undo(); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a.view(id, ed))
}

func (a *App) handleRedo(c *gin.Context) {
	id, ed, ok := a.openEditor(c)
	if !ok {
		return
	}
	if err := ed.Redo(); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a.view(id, ed))
}

// handlePatchUi applies a UI patch (viewport, sidebars, collapse, search).
// Preference changes are persisted by the editor hook.
func (a *App) handlePatchUi(c *gin.Context) {
	id, ed, ok := a.openEditor(c)
	if !ok {
		return
	}
	var patch domain.UiPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if patch.Viewport != nil {
		if _, ok := a.cfg.Viewport(*patch.Viewport); !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown viewport " + *patch.Viewport})
			return
		}
	}
	ed.Dispatch(reducer.SetUiAction{UI: patch})
	c.JSON(http.StatusOK, a.view(id, ed))
}

func (a *App) handleOutline(c *gin.Context) {
	_, ed, ok := a.openEditor(c)
	if !ok {
		return
	}
	state := ed.State()
	ui := state.UI
	if q, ok := c.GetQuery("search"); ok {
		ui.SearchText = q
	}
	c.JSON(http.StatusOK, search.Outline(state.Data, ui))
}

func (a *App) handleFields(c *gin.Context) {
	_, ed, ok := a.openEditor(c)
	if !ok {
		return
	}
	target := c.Param("target")
	if target != domain.RootID {
		if _, found := document.FindBlock(ed.State().Data, target); !found {
			a.fail(c, editor.ErrNotFound)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"fields":  ed.Fields(target),
		"loading": ed.Loading(target),
	})
}

func (a *App) handlePublish(c *gin.Context) {
	id, ed, ok := a.openEditor(c)
	if !ok {
		return
	}
	ed.Wait()
	pub, err := a.publish.Publish(c.Request.Context(), id, c.Param("target"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documentId": id, "target": c.Param("target"), "publishedAt": pub.PublishedAt})
}

func (a *App) handleUnpublish(c *gin.Context) {
	if err := a.publish.Unpublish(c.Request.Context(), c.Param("id"), c.Param("target")); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *App) handleSearch(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	hits, err := a.search.Search(c.Request.Context(), c.Query("q"), c.Query("document"), limit)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, hits)
}

// handleEvents streams service events as server-sent events.
func (a *App) handleEvents(c *gin.Context) {
	events, cancel := a.events.Subscribe()
	defer cancel()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev := <-events:
			c.SSEvent(ev.Name, ev.Data)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// ── approvals ──────────────────────────────────────────────

// handleListApprovals lists requests of the in-process MCP server and those
// recorded by standalone MCP processes.
func (a *App) handleListApprovals(c *gin.Context) {
	pending := a.mcp.Approvals().Pending()
	stored, err := a.approvals.ListPendingApprovals(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	type approvalView struct {
		ID          string `json:"id"`
		Tool        string `json:"tool"`
		Description string `json:"description"`
		Metadata    string `json:"metadata"`
		Standalone  bool   `json:"standalone"`
	}
	out := make([]approvalView, 0, len(pending)+len(stored))
	for _, p := range pending {
		out = append(out, approvalView{ID: p.ID, Tool: p.Tool, Description: p.Description, Metadata: p.Metadata})
	}
	for _, s := range stored {
		out = append(out, approvalView{ID: s.ID, Tool: s.Tool, Description: s.Description, Metadata: s.Metadata, Standalone: true})
	}
	c.JSON(http.StatusOK, out)
}

func (a *App) handleDecideApproval(approve bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		var decided bool
		if approve {
			decided = a.mcp.Approvals().Approve(id)
		} else {
			decided = a.mcp.Approvals().Reject(id)
		}
		if !decided {
			status := storage.ApprovalRejected
			if approve {
				status = storage.ApprovalApproved
			}
			if err := a.approvals.ResolveApproval(c.Request.Context(), id, status); err != nil {
				a.fail(c, err)
				return
			}
		}
		c.Status(http.StatusNoContent)
	}
}
