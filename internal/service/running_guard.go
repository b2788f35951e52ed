package service

import (
	"context"
	"sync"
)

// ExportedSaveGuard is an exported alias so _test packages can test the guard.
type ExportedSaveGuard = saveGuard

// ─────────────────────────────────────────────────────────────
// saveGuard: prevents overlapping saves of the same document
// ─────────────────────────────────────────────────────────────

// saveGuard ensures only one save (manual, autosave or publish) of a given
// document runs at a time, and lets shutdown wait for the ones in flight.
type saveGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// TryLock marks documentID as being saved. It returns false when a save of
// that document is already running.
func (g *saveGuard) TryLock(documentID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, ok := g.running[documentID]; ok {
		return false
	}
	g.running[documentID] = struct{}{}
	g.wg.Add(1)
	return true
}

// Unlock must follow a successful TryLock.
func (g *saveGuard) Unlock(documentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, documentID)
	g.wg.Done()
}

// Running reports whether a save of documentID is in flight.
func (g *saveGuard) Running(documentID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.running[documentID]
	return ok
}

// WaitAll blocks until every running save completes or ctx is cancelled.
func (g *saveGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
