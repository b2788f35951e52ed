package dnd

import (
	"context"
	"sync"
	"time"
)

// Scroller moves a scrollable canvas.
type Scroller interface {
	ScrollBy(dx, dy float64)
}

// ScrollerFunc adapts a function to Scroller.
type ScrollerFunc func(dx, dy float64)

func (f ScrollerFunc) ScrollBy(dx, dy float64) { f(dx, dy) }

const (
	defaultEdge     = 48
	defaultMaxSpeed = 24
	defaultInterval = 16 * time.Millisecond
)

// AutoScroller scrolls the canvas while the pointer sits near one of its
// edges. It runs independently of the reducer; the drag only feeds it the
// pointer position.
type AutoScroller struct {
	bounds   Rect
	edge     float64
	maxSpeed float64
	interval time.Duration
	target   Scroller

	mu      sync.Mutex
	pointer *Point
}

type AutoScrollOptions struct {
	// Edge is the width of the band along each side that triggers scrolling.
	Edge float64
	// MaxSpeed is the scroll distance per tick at the very edge.
	MaxSpeed float64
	Interval time.Duration
}

func NewAutoScroller(bounds Rect, target Scroller, opts AutoScrollOptions) *AutoScroller {
	if opts.Edge <= 0 {
		opts.Edge = defaultEdge
	}
	if opts.MaxSpeed <= 0 {
		opts.MaxSpeed = defaultMaxSpeed
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	return &AutoScroller{
		bounds:   bounds,
		edge:     opts.Edge,
		maxSpeed: opts.MaxSpeed,
		interval: opts.Interval,
		target:   target,
	}
}

// SetBounds updates the visible canvas rectangle.
func (a *AutoScroller) SetBounds(r Rect) {
	a.mu.Lock()
	a.bounds = r
	a.mu.Unlock()
}

func (a *AutoScroller) SetPointer(p Point) {
	a.mu.Lock()
	a.pointer = &p
	a.mu.Unlock()
}

func (a *AutoScroller) ClearPointer() {
	a.mu.Lock()
	a.pointer = nil
	a.mu.Unlock()
}

// Velocity returns the scroll step for the current pointer.
func (a *AutoScroller) Velocity() (dx, dy float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pointer == nil {
		return 0, 0
	}
	return EdgeVelocity(a.bounds, *a.pointer, a.edge, a.maxSpeed)
}

// Run ticks until ctx is done, scrolling whenever the velocity is non-zero.
func (a *AutoScroller) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if dx, dy := a.Velocity(); dx != 0 || dy != 0 {
				a.target.ScrollBy(dx, dy)
			}
		}
	}
}

// EdgeVelocity grows linearly from 0 at the inner side of the edge band to
// maxSpeed at the border. Pointers outside bounds scroll at maxSpeed.
func EdgeVelocity(bounds Rect, p Point, edge, maxSpeed float64) (dx, dy float64) {
	axis := func(pos, lo, hi float64) float64 {
		band := min(edge, (hi-lo)/2)
		if band <= 0 {
			return 0
		}
		switch {
		case pos < lo+band:
			return -maxSpeed * min(1, (lo+band-pos)/band)
		case pos > hi-band:
			return maxSpeed * min(1, (pos-(hi-band))/band)
		}
		return 0
	}
	return axis(p.X, bounds.X, bounds.X+bounds.W), axis(p.Y, bounds.Y, bounds.Bottom())
}
