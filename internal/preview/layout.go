package preview

import (
	"composer/internal/dnd"
	"composer/internal/document"
	"composer/internal/domain"
)

// Zoom is the scale applied to a viewport of profileWidth shown in a
// container of containerWidth. It never enlarges.
func Zoom(containerWidth, profileWidth float64) float64 {
	if profileWidth <= 0 || containerWidth <= 0 {
		return 1
	}
	return min(1, containerWidth/profileWidth)
}

// Unscale converts a pointer position on the scaled surface into frame
// coordinates.
func Unscale(p dnd.Point, zoom float64) dnd.Point {
	if zoom <= 0 {
		return p
	}
	return dnd.Point{X: p.X / zoom, Y: p.Y / zoom}
}

// ZoneBox is the frame-space bounds of a zone and of each of its blocks, in
// zone order.
type ZoneBox struct {
	Zone   domain.ZoneID `json:"zone"`
	Bounds dnd.Rect      `json:"bounds"`
	Blocks []dnd.Rect    `json:"blocks"`
	Depth  int           `json:"depth"`
}

// Layout holds the measured zones of one rendered frame. It implements
// dnd.Surface.
type Layout struct {
	Zoom  float64   `json:"zoom"`
	Zones []ZoneBox `json:"zones"`
}

// HitTest un-scales p and returns the insertion point in the deepest zone
// containing it. The index is the number of blocks whose vertical midpoint
// lies above the pointer.
func (l Layout) HitTest(p dnd.Point) (dnd.Candidate, bool) {
	p = Unscale(p, l.Zoom)
	var best *ZoneBox
	for i := range l.Zones {
		zb := &l.Zones[i]
		if !zb.Bounds.Contains(p) {
			continue
		}
		if best == nil || zb.Depth > best.Depth {
			best = zb
		}
	}
	if best == nil {
		return dnd.Candidate{}, false
	}
	index := 0
	for _, r := range best.Blocks {
		if r.MidY() <= p.Y {
			index++
		}
	}
	return dnd.Candidate{Zone: best.Zone, Index: index}, true
}

// FlowOptions sizes FlowLayout.
type FlowOptions struct {
	BlockHeight float64
	// ZonePadding is the empty space at the bottom of every zone, which
	// keeps empty zones droppable.
	ZonePadding float64
}

// FlowLayout computes a deterministic layout for doc without a browser:
// blocks stack vertically at full zone width, and the zones a block owns sit
// side by side below its own row.
func FlowLayout(doc domain.Document, width, zoom float64, opts FlowOptions) Layout {
	if opts.BlockHeight <= 0 {
		opts.BlockHeight = 48
	}
	if opts.ZonePadding <= 0 {
		opts.ZonePadding = 24
	}
	l := Layout{Zoom: zoom}
	var place func(z domain.ZoneID, x, y, w float64, depth int) float64
	place = func(z domain.ZoneID, x, y, w float64, depth int) float64 {
		idx := len(l.Zones)
		l.Zones = append(l.Zones, ZoneBox{Zone: z, Depth: depth})
		blocks, _ := doc.Zone(z)
		cursor := y
		var rects []dnd.Rect
		for _, b := range blocks {
			h := opts.BlockHeight
			owned := document.OwnedZones(doc, b.ID)
			if len(owned) > 0 {
				cw := w / float64(len(owned))
				tallest := 0.0
				for i, child := range owned {
					zh := place(child, x+float64(i)*cw, cursor+opts.BlockHeight, cw, depth+1)
					tallest = max(tallest, zh)
				}
				h += tallest
			}
			rects = append(rects, dnd.Rect{X: x, Y: cursor, W: w, H: h})
			cursor += h
		}
		height := cursor - y + opts.ZonePadding
		l.Zones[idx].Bounds = dnd.Rect{X: x, Y: y, W: w, H: height}
		l.Zones[idx].Blocks = rects
		return height
	}
	place(domain.RootZone, 0, 0, width, 0)
	return l
}
