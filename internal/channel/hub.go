// Package channel connects the engine to presentation clients: a hub fans
// engine events out to subscribers and a router dispatches their commands.
package channel

import (
	"log/slog"
	"sync"

	"github.com/eargollo/taxsheet/internal/engine"
	"github.com/eargollo/taxsheet/internal/protocol"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 4096

// Hub is a protocol.Sink that copies every event to each subscriber. Emit
// never blocks: a subscriber whose queue is full is dropped and its channel
// closed.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
}

// Subscription receives events until it is closed or dropped.
type Subscription struct {
	hub *Hub
	ch  chan protocol.Event
}

// NewHub returns a hub with buffer slots per subscriber.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

// Emit implements protocol.Sink.
func (h *Hub) Emit(e protocol.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.ch <- e:
		default:
			slog.Warn("dropping slow event subscriber", "event", e.Name)
			delete(h.subs, s)
			close(s.ch)
		}
	}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{hub: h, ch: make(chan protocol.Event, h.buffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Events returns the receive side. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan protocol.Event { return s.ch }

// Close unregisters the subscriber. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, ok := s.hub.subs[s]; ok {
		delete(s.hub.subs, s)
		close(s.ch)
	}
}

// Attach subscribes to hub and returns the events that rebuild the
// controller's current view. Events emitted after the replay was taken are
// queued on the subscription, so the client sees each exactly once.
func Attach(ctl *engine.Controller, hub *Hub) ([]protocol.Event, *Subscription) {
	var (
		replay []protocol.Event
		sub    *Subscription
	)
	ctl.Sync(func(r []protocol.Event) {
		replay = r
		sub = hub.Subscribe()
	})
	return replay, sub
}
