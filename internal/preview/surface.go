// Package preview renders the canonical document into an isolated HTML
// frame and maps pointer positions inside that frame back to drop targets.
package preview

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"composer/internal/domain"
	"composer/internal/registry"
)

// Surface is a pure renderer over the component registry. It keeps no copy
// of the document; every render reads the value it is given.
type Surface struct {
	reg *registry.Registry
}

func New(reg *registry.Registry) *Surface {
	return &Surface{reg: reg}
}

// Frame renders doc as a standalone HTML document sized for vp. Block
// wrappers carry data-block-id, data-zone and data-index so a host script
// can report element bounds for hit-testing.
func (s *Surface) Frame(doc domain.Document, vp domain.Viewport) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		title, _ := doc.Root.Props["title"].(string)
		head := `<!DOCTYPE html><html><head><meta charset="utf-8">` +
			`<meta name="viewport" content="width=` + px(vp.Width) + `">` +
			`<title>` + templ.EscapeString(title) + `</title>` +
			`<style>html,body{margin:0}.composer-zone{min-height:1px}</style>` +
			`</head><body data-viewport="` + templ.EscapeString(vp.Name) + `">`
		if _, err := io.WriteString(w, head); err != nil {
			return err
		}

		body := s.zone(doc, domain.RootZone)
		root := s.reg.Root()
		if root.Render != nil {
			body = root.Render(doc.Root.Props.Clone(), body)
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

func (s *Surface) zone(doc domain.Document, z domain.ZoneID) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		blocks, _ := doc.Zone(z)
		open := `<div class="composer-zone" data-zone="` + templ.EscapeString(string(z)) + `">`
		if _, err := io.WriteString(w, open); err != nil {
			return err
		}
		for i, b := range blocks {
			if err := s.block(ctx, w, doc, z, i, b); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</div>`)
		return err
	})
}

func (s *Surface) block(ctx context.Context, w io.Writer, doc domain.Document, z domain.ZoneID, i int, b domain.Block) error {
	open := fmt.Sprintf(`<div class="composer-block" data-block-id="%s" data-type="%s" data-zone="%s" data-index="%d">`,
		templ.EscapeString(b.ID), templ.EscapeString(b.Type), templ.EscapeString(string(z)), i)
	if _, err := io.WriteString(w, open); err != nil {
		return err
	}

	c, ok := s.reg.Lookup(b.Type)
	if !ok || c.Render == nil {
		msg := `<div class="composer-missing">No renderer for "` + templ.EscapeString(b.Type) + `"</div>`
		if _, err := io.WriteString(w, msg); err != nil {
			return err
		}
	} else {
		rc := registry.RenderContext{
			ID: b.ID,
			Zone: func(name string) templ.Component {
				return s.zone(doc, domain.ZoneKey(b.ID, name))
			},
		}
		if err := c.Render(b.Props.Clone(), rc).Render(ctx, w); err != nil {
			return fmt.Errorf("render %s: %w", b.ID, err)
		}
	}
	_, err := io.WriteString(w, `</div>`)
	return err
}

// Shell renders the editor-side container: a sandboxed iframe holding the
// frame, sized to the viewport and scaled to fit containerWidth. Scripts in
// the frame cannot reach the editor and its styles stay inside the frame.
func (s *Surface) Shell(ctx context.Context, doc domain.Document, vp domain.Viewport, containerWidth float64) (templ.Component, error) {
	frame, err := RenderString(ctx, s.Frame(doc, vp))
	if err != nil {
		return nil, err
	}
	zoom := Zoom(containerWidth, vp.Width)
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		html := `<div class="composer-preview" data-viewport="` + templ.EscapeString(vp.Name) +
			`" data-zoom="` + strconv.FormatFloat(zoom, 'f', -1, 64) + `"` +
			` style="width:` + px(vp.Width*zoom) + `px;height:` + px(vp.Height*zoom) + `px;overflow:hidden">` +
			`<iframe title="preview" sandbox="allow-same-origin"` +
			` style="border:0;width:` + px(vp.Width) + `px;height:` + px(vp.Height) + `px;transform:scale(` +
			strconv.FormatFloat(zoom, 'f', -1, 64) + `);transform-origin:0 0"` +
			` srcdoc="` + templ.EscapeString(frame) + `"></iframe></div>`
		_, err := io.WriteString(w, html)
		return err
	}), nil
}

// RenderString renders c into a string.
func RenderString(ctx context.Context, c templ.Component) (string, error) {
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func px(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
