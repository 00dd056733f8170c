// Package event provides a small synchronous publish/subscribe bus.
package event

import "sync"

// Subscription identifies a registered handler.
type Subscription uint64

// Bus delivers posted values to every subscriber, in subscription order,
// on the posting goroutine.
type Bus[T any] struct {
	mu       sync.RWMutex
	next     Subscription
	handlers []subscriber[T]
}

type subscriber[T any] struct {
	id Subscription
	fn func(T)
}

// NewBus creates an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{}
}

// Subscribe registers fn and returns a handle for Unsubscribe.
func (b *Bus[T]) Subscribe(fn func(T)) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.handlers = append(b.handlers, subscriber[T]{id: b.next, fn: fn})
	return b.next
}

// Unsubscribe removes a handler. Unknown handles are ignored.
func (b *Bus[T]) Unsubscribe(id Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.id == id {
			b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
			return
		}
	}
}

// Post delivers v to the current subscribers.
// Handlers may subscribe or unsubscribe; changes apply to the next Post.
func (b *Bus[T]) Post(v T) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()
	for _, h := range handlers {
		h.fn(v)
	}
}

// Len returns the number of subscribers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
