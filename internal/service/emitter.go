package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Event names emitted by the services.
const (
	EventDocumentChanged     = "document:changed"
	EventDocumentSaved       = "document:saved"
	EventDocumentImported    = "document:imported"
	EventDocumentPublished   = "document:published"
	EventDocumentUnpublished = "document:unpublished"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: decouples services from the transport
// ─────────────────────────────────────────────────────────────

// EventEmitter notifies the host about document lifecycle events. The HTTP
// server and the MCP server each provide one; tests use MockEmitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// LogEmitter writes events to a logger.
type LogEmitter struct {
	Log zerolog.Logger
}

func (e LogEmitter) Emit(_ context.Context, event string, data any) {
	e.Log.Debug().Str("event", event).Interface("data", data).Msg("emit")
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	m.events = append(m.events, EmittedEvent{Event: event, Data: data})
	m.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (m *MockEmitter) Events() []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmittedEvent(nil), m.events...)
}

// Count returns how many times event was emitted.
func (m *MockEmitter) Count(event string) int {
	n := 0
	for _, e := range m.Events() {
		if e.Event == event {
			n++
		}
	}
	return n
}
