// Package events provides synchronous fan-out of lifecycle events to
// registered subscribers.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/webtape/internal/core/domain"
)

// Subscriber receives one event. It must not block; delivery is synchronous
// within the call that produced the event.
type Subscriber func(domain.Event)

// Bus delivers events to subscribers in subscription order. A panicking
// subscriber is recovered and logged without affecting the others.
type Bus struct {
	mu     sync.Mutex
	nextID int
	order  []int
	subs   map[int]Subscriber
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]Subscriber)}
}

// Subscribe registers a subscriber and returns its unsubscribe function.
func (b *Bus) Subscribe(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.order = append(b.order, id)
	b.subs[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers the event to all subscribers in subscription order.
func (b *Bus) Publish(evt domain.Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.Lock()
	ordered := make([]Subscriber, 0, len(b.order))
	for _, id := range b.order {
		if fn, ok := b.subs[id]; ok {
			ordered = append(ordered, fn)
		}
	}
	b.mu.Unlock()

	for _, fn := range ordered {
		deliver(fn, evt)
	}
}

// deliver isolates one subscriber so a panic cannot break fan-out.
func deliver(fn Subscriber, evt domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event subscriber panicked", "event", evt.Type, "panic", r)
		}
	}()
	fn(evt)
}

// Len returns the number of registered subscribers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
