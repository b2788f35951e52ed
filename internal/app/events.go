package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Event is one emitted service event.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Broadcaster fans service events out to the /api/events streams. Slow
// subscribers miss events instead of blocking the emitter.
type Broadcaster struct {
	log zerolog.Logger

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewBroadcaster(log zerolog.Logger) *Broadcaster {
	return &Broadcaster{log: log, subs: map[chan Event]struct{}{}}
}

func (b *Broadcaster) Emit(_ context.Context, event string, data any) {
	b.log.Debug().Str("event", event).Interface("data", data).Msg("emit")
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- Event{Name: event, Data: data}:
		default:
		}
	}
}

// Subscribe returns a channel of events and a function that ends the
// subscription.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}
}
