package event

import (
	"reflect"
	"sync"
)

// Bus is a double-buffered event bus. Events emitted in tick N are readable
// in tick N+1. SwapBuffers() is called at tick start by EventDispatchSystem.
// A tick dispatches its events in emission order across all types, so
// history subscribers see an expiry before the relight that followed it.
type Bus struct {
	mu       sync.Mutex // only protects handler registration
	front    []queued
	back     []queued
	handlers map[reflect.Type][]any
}

type queued struct {
	t     reflect.Type
	event any
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[reflect.Type][]any)}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Emit queues an event into the back buffer (will be readable next tick).
func Emit[T any](b *Bus, event T) {
	b.back = append(b.back, queued{t: typeOf[T](), event: event})
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := typeOf[T]()
	b.handlers[t] = append(b.handlers[t], fn)
}

// SwapBuffers rotates back→front and clears the new back buffer.
// Called once at tick start.
func (b *Bus) SwapBuffers() {
	b.front, b.back = b.back, b.front[:0]
}

// Pending counts events waiting in the back buffer.
func (b *Bus) Pending() int {
	return len(b.back)
}

// DispatchAll delivers all front-buffer events to their subscribed handlers.
func (b *Bus) DispatchAll() {
	for _, q := range b.front {
		for _, h := range b.handlers[q.t] {
			// Subscribe and Emit key on the same type, so the call is well typed.
			callHandler(h, q.event)
		}
	}
}

func callHandler(handler any, event any) {
	reflect.ValueOf(handler).Call([]reflect.Value{reflect.ValueOf(event)})
}
