package store

import (
	"context"
	"sync"

	"github.com/amonks/issues/issue"
)

// Hub fans snapshots out to subscribers. Each subscriber has a one-slot
// buffer; publishing replaces an undelivered snapshot rather than queueing
// behind it, so a slow reader never blocks writers.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan issue.Snapshot]struct{}
	done   chan struct{}
	closed bool
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[chan issue.Snapshot]struct{}),
		done: make(chan struct{}),
	}
}

// Subscribe registers a subscriber primed with initial. The channel closes
// when ctx ends or the hub closes.
func (h *Hub) Subscribe(ctx context.Context, initial issue.Snapshot) <-chan issue.Snapshot {
	ch := make(chan issue.Snapshot, 1)
	ch <- initial

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subs[ch] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-h.done:
		}
		h.remove(ch)
	}()
	return ch
}

// Publish offers snapshot to every subscriber.
func (h *Hub) Publish(snapshot issue.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		offer(ch, snapshot)
	}
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *Hub) remove(ch chan issue.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; !ok {
		return
	}
	delete(h.subs, ch)
	close(ch)
}

// offer delivers snapshot, dropping a stale one if the slot is full. Only
// Publish sends, under h.mu, so the second send cannot block.
func offer(ch chan issue.Snapshot, snapshot issue.Snapshot) {
	select {
	case ch <- snapshot:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snapshot:
	default:
	}
}
