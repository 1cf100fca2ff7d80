// Package notify delivers catalog and scan signals to subscribers whose
// subscriptions end with the context they subscribed with.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultBuffer is the per-subscriber channel capacity used when NewHub is
// given a non-positive buffer.
const DefaultBuffer = 16

// Hub fans values out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the value.
type Hub[T any] struct {
	logger *slog.Logger
	subs   map[uint64]chan T
	name   string
	buffer int
	next   uint64
	mu     sync.RWMutex
	closed bool
}

// NewHub creates a hub. name only appears in log records.
func NewHub[T any](name string, buffer int, logger *slog.Logger) *Hub[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub[T]{
		logger: logger,
		subs:   make(map[uint64]chan T),
		name:   name,
		buffer: buffer,
	}
}

// Subscribe returns a channel receiving every value published after the
// call. The channel is closed once ctx is done or the hub is closed.
func (h *Hub[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, h.buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch
	}
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	context.AfterFunc(ctx, func() { h.unsubscribe(id) })
	return ch
}

func (h *Hub[T]) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish delivers v to every subscriber with room in its buffer and
// returns how many received it.
func (h *Hub[T]) Publish(v T) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var delivered, dropped int
	for _, ch := range h.subs {
		select {
		case ch <- v:
			delivered++
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("dropped signal for slow subscribers",
			slog.String("hub", h.name),
			slog.Int("dropped", dropped))
	}
	return delivered
}

// Subscribers returns the number of live subscriptions.
func (h *Hub[T]) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription. Later subscriptions are closed at once
// and later publishes reach nobody.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
