package plugins

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"composer/internal/domain"
	"composer/internal/registry"
)

// Register installs the built-in block catalog and page settings on reg.
func Register(reg *registry.Registry) {
	reg.SetRoot(root())
	reg.Register(heading())
	reg.Register(text())
	reg.Register(image())
	reg.Register(columns())
	reg.Register(button())
}

// NewRegistry returns a registry holding the built-in catalog.
func NewRegistry() *registry.Registry {
	reg := registry.New()
	Register(reg)
	return reg
}

var alignOptions = []registry.Option{
	{Label: "Left", Value: "left"},
	{Label: "Center", Value: "center"},
	{Label: "Right", Value: "right"},
}

// ─────────────────────────────────────────────────────────────
// Page settings
// ─────────────────────────────────────────────────────────────

func root() registry.Root {
	base := registry.Fields{
		{Name: "title", Kind: registry.KindText, Label: "Page title"},
		{Name: "backgroundType", Kind: registry.KindSelect, Label: "Background", Options: []registry.Option{
			{Label: "None", Value: "none"},
			{Label: "Solid", Value: "solid"},
		}},
		{Name: "backgroundColor", Kind: registry.KindText, Label: "Background color"},
		{Name: "fontFamily", Kind: registry.KindText, Label: "Font"},
	}
	return registry.Root{
		Fields: base,
		DefaultProps: domain.Props{
			"title":           "",
			"backgroundType":  "none",
			"backgroundColor": "#ffffff",
			"fontFamily":      "system-ui, sans-serif",
		},
		// The color picker only makes sense with a solid background.
		ResolveFields: func(_ context.Context, props domain.Props, rc registry.ResolveContext) (registry.Fields, error) {
			if !rc.IsChanged("backgroundType") && rc.LastFields != nil {
				return rc.LastFields, nil
			}
			if props["backgroundType"] == "none" {
				out := make(registry.Fields, 0, len(base)-1)
				for _, f := range base {
					if f.Name != "backgroundColor" {
						out = append(out, f)
					}
				}
				return out, nil
			}
			return base, nil
		},
		Render: func(props domain.Props, children templ.Component) templ.Component {
			return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
				style := "font-family:" + str(props, "fontFamily")
				if props["backgroundType"] == "solid" {
					style += ";background:" + str(props, "backgroundColor")
				}
				if _, err := io.WriteString(w, `<main style="`+templ.EscapeString(style)+`">`); err != nil {
					return err
				}
				if err := children.Render(ctx, w); err != nil {
					return err
				}
				_, err := io.WriteString(w, `</main>`)
				return err
			})
		},
	}
}

// ─────────────────────────────────────────────────────────────
// Blocks
// ─────────────────────────────────────────────────────────────

func heading() registry.Component {
	return registry.Component{
		Type:  "Heading",
		Label: "Heading",
		Fields: registry.Fields{
			{Name: "title", Kind: registry.KindText, Label: "Title"},
			{Name: "level", Kind: registry.KindNumber, Label: "Level", Min: registry.Float(1), Max: registry.Float(6)},
			{Name: "align", Kind: registry.KindSelect, Label: "Align", Options: alignOptions},
		},
		DefaultProps: domain.Props{"title": "Heading", "level": 2.0, "align": "left"},
		// Keeps level a whole number in [1, 6] whatever the form sent.
		ResolveData: func(_ context.Context, props domain.Props, rc registry.ResolveContext) (domain.Props, error) {
			if !rc.IsChanged("level") {
				return props, nil
			}
			props["level"] = float64(headingLevel(props["level"]))
			return props, nil
		},
		Render: func(props domain.Props, _ registry.RenderContext) templ.Component {
			return element(fmt.Sprintf("h%d", headingLevel(props["level"])), alignStyle(props), str(props, "title"))
		},
	}
}

func headingLevel(v any) int {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case int:
		n = float64(x)
	case string:
		n, _ = strconv.ParseFloat(x, 64)
	}
	return min(6, max(1, int(n)))
}

func text() registry.Component {
	return registry.Component{
		Type:  "Text",
		Label: "Text",
		Fields: registry.Fields{
			{Name: "text", Kind: registry.KindTextarea, Label: "Text"},
			{Name: "align", Kind: registry.KindSelect, Label: "Align", Options: alignOptions},
		},
		DefaultProps: domain.Props{"text": "Lorem ipsum dolor sit amet.", "align": "left"},
		Render: func(props domain.Props, _ registry.RenderContext) templ.Component {
			return element("p", alignStyle(props), str(props, "text"))
		},
	}
}

func image() registry.Component {
	return registry.Component{
		Type:  "Image",
		Label: "Image",
		Fields: registry.Fields{
			{Name: "src", Kind: registry.KindText, Label: "URL"},
			{Name: "alt", Kind: registry.KindText, Label: "Alt text"},
			{Name: "width", Kind: registry.KindNumber, Label: "Width", Min: registry.Float(1), Max: registry.Float(4096)},
		},
		DefaultProps: domain.Props{"src": "https://placehold.co/600x400", "alt": "", "width": 600.0},
		Render: func(props domain.Props, _ registry.RenderContext) templ.Component {
			return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
				width, _ := props["width"].(float64)
				_, err := fmt.Fprintf(w, `<img src="%s" alt="%s" width="%s" style="max-width:100%%">`,
					templ.EscapeString(str(props, "src")), templ.EscapeString(str(props, "alt")),
					strconv.FormatFloat(width, 'f', -1, 64))
				return err
			})
		},
	}
}

func columns() registry.Component {
	return registry.Component{
		Type:  "Columns",
		Label: "Columns",
		Fields: registry.Fields{
			{Name: "gap", Kind: registry.KindNumber, Label: "Gap", Min: registry.Float(0), Max: registry.Float(128)},
		},
		DefaultProps: domain.Props{"gap": 16.0},
		Zones:        []string{"left", "right"},
		Render: func(props domain.Props, rc registry.RenderContext) templ.Component {
			return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
				gap, _ := props["gap"].(float64)
				open := `<div style="display:grid;grid-template-columns:1fr 1fr;gap:` + strconv.FormatFloat(gap, 'f', -1, 64) + `px">`
				if _, err := io.WriteString(w, open); err != nil {
					return err
				}
				for _, name := range []string{"left", "right"} {
					if err := rc.Zone(name).Render(ctx, w); err != nil {
						return err
					}
				}
				_, err := io.WriteString(w, `</div>`)
				return err
			})
		},
	}
}

func button() registry.Component {
	base := registry.Fields{
		{Name: "label", Kind: registry.KindText, Label: "Label"},
		{Name: "action", Kind: registry.KindRadio, Label: "Action", Options: []registry.Option{
			{Label: "Link", Value: "link"},
			{Label: "Submit", Value: "submit"},
		}},
		{Name: "href", Kind: registry.KindText, Label: "Link"},
	}
	return registry.Component{
		Type:         "Button",
		Label:        "Button",
		Fields:       base,
		DefaultProps: domain.Props{"label": "Learn more", "action": "link", "href": "#"},
		ResolveFields: func(_ context.Context, props domain.Props, _ registry.ResolveContext) (registry.Fields, error) {
			if props["action"] == "submit" {
				return base[:2], nil
			}
			return base, nil
		},
		// A submit button has no link target.
		ResolveData: func(_ context.Context, props domain.Props, rc registry.ResolveContext) (domain.Props, error) {
			if rc.IsChanged("action") && props["action"] == "submit" {
				delete(props, "href")
			}
			return props, nil
		},
		Render: func(props domain.Props, _ registry.RenderContext) templ.Component {
			return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
				label := templ.EscapeString(str(props, "label"))
				if props["action"] == "submit" {
					_, err := io.WriteString(w, `<button type="submit">`+label+`</button>`)
					return err
				}
				_, err := io.WriteString(w, `<a class="button" href="`+templ.EscapeString(str(props, "href"))+`">`+label+`</a>`)
				return err
			})
		},
	}
}

// ─────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────

func element(tag, style, body string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<" + tag)
		if style != "" {
			b.WriteString(` style="` + templ.EscapeString(style) + `"`)
		}
		b.WriteString(">" + templ.EscapeString(body) + "</" + tag + ">")
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func alignStyle(props domain.Props) string {
	if a := str(props, "align"); a != "" && a != "left" {
		return "text-align:" + a
	}
	return ""
}

func str(props domain.Props, key string) string {
	s, _ := props[key].(string)
	return s
}
