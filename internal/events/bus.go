// Package events provides a small in-process notification bus. The core
// publishes state changes keyed by logical path (for example
// "backup.isCreating"); presentation layers subscribe without coupling the
// core to their scheduling.
package events

import "sync"

// Event is one published state change.
type Event struct {
	// Path is the logical path of the changed value.
	Path string
	// Value is the new value.
	Value any
}

// Bus fans events out to subscribers. Publishing never blocks on a
// subscriber; handlers run on the publisher's goroutine and must be quick.
type Bus struct {
	mu   sync.RWMutex
	subs []func(Event)
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all subsequent events.
func (b *Bus) Subscribe(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Publish delivers an event to every subscriber.
func (b *Bus) Publish(path string, value any) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(Event{Path: path, Value: value})
	}
}
