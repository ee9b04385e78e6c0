// Package events implements the change-event observer registry. The store
// publishes onto the bus after each committed mutation; the facade re-exposes
// Subscribe to external consumers (broadcaster, background validator, UI
// canvas adapters).
//
// Delivery is synchronous and in publication order, which preserves the
// "emit after successful mutation, never before" contract end to end. A slow
// subscriber therefore slows the writer; consumers that need buffering wrap
// their handler around their own channel.
package events

import (
	"sync"

	"go.uber.org/zap"

	"agentdb-backend/internal/domain/shared"
)

// Handler receives one change event.
type Handler func(shared.ChangeEvent)

// UnsubscribeFunc removes a subscription. Safe to call more than once.
type UnsubscribeFunc func()

// Bus is a synchronous fan-out registry for change events.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
	logger   *zap.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[int]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler and returns its unsubscribe func.
func (b *Bus) Subscribe(h Handler) UnsubscribeFunc {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers, id)
		})
	}
}

// Publish delivers the event to every subscriber in registration order. A
// panicking handler is recovered and logged so one bad consumer cannot stall
// the mutation path.
func (b *Bus) Publish(ev shared.ChangeEvent) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	// Registration order: handler IDs are assigned monotonically.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, ev)
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

func (b *Bus) deliver(h Handler, ev shared.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.Any("panic", r),
				zap.String("event_type", string(ev.Type)),
				zap.String("element_id", ev.ID),
			)
		}
	}()
	h(ev)
}
