package client

import (
	"context"
	"sync"

	"github.com/Godswillconcept/markethub-sub002/cmd/internal/events"
)

// Bus is the origin-scoped broadcast channel between tabs. The underlying
// mechanism (in-process fanout, the websocket relay) stays behind this
// interface.
type Bus interface {
	// Publish broadcasts ev to every sibling tab. The event's Tab field
	// names the originator so it is excluded from delivery.
	Publish(ctx context.Context, ev events.Event) error

	// Subscribe registers a handler for events originated by other tabs.
	// The returned cancel removes the subscription.
	Subscribe(tabID string, fn func(events.Event)) (cancel func())
}

// MemoryBus is an in-process Bus: same-process tabs and tests.
type MemoryBus struct {
	mu   sync.RWMutex
	next int
	subs map[int]memorySub
}

type memorySub struct {
	tabID string
	fn    func(events.Event)
}

// NewMemoryBus constructs an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]memorySub)}
}

// Publish delivers ev synchronously to every subscriber whose tab id
// differs from ev.Tab.
func (b *MemoryBus) Publish(ctx context.Context, ev events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	fns := make([]func(events.Event), 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.tabID == ev.Tab {
			continue
		}
		fns = append(fns, sub.fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
	return nil
}

// Subscribe registers fn for events from other tabs.
func (b *MemoryBus) Subscribe(tabID string, fn func(events.Event)) (cancel func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = memorySub{tabID: tabID, fn: fn}
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// nopBus keeps the coordinator unconditional about having a bus.
type nopBus struct{}

func (nopBus) Publish(context.Context, events.Event) error { return nil }

func (nopBus) Subscribe(string, func(events.Event)) func() { return func() {} }
