// Package eventbus provides a typed publish/subscribe event bus for
// cross-component communication within triage.
package eventbus

import (
	"context"
	"sync"
)

// Event names a bus event type.
type Event string

// envelope carries one published event through the bus channel.
type envelope struct {
	event   Event
	payload any
}

// EventBus dispatches typed events to subscribers on a single background
// goroutine. Publishing never blocks: when the buffer is full the event is
// dropped and the OnDrop hooks fire.
type EventBus struct {
	ch    chan envelope
	hooks hooks

	mu   sync.RWMutex
	subs map[Event][]func(any)
}

// New creates an event bus with the given buffer size.
func New(buffer int) *EventBus {
	return &EventBus{
		ch:   make(chan envelope, buffer),
		subs: make(map[Event][]func(any)),
	}
}

// Run dispatches events until the context is cancelled.
func (bus *EventBus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-bus.ch:
			bus.dispatch(env)
		}
	}
}

func (bus *EventBus) dispatch(env envelope) {
	bus.mu.RLock()
	subs := make([]func(any), len(bus.subs[env.event]))
	copy(subs, bus.subs[env.event])
	bus.mu.RUnlock()

	for _, fn := range subs {
		bus.safeCall(env, fn)
	}
}

func (bus *EventBus) safeCall(env envelope, fn func(any)) {
	defer func() {
		if recovered := recover(); recovered != nil {
			bus.runOnPanic(env.event, env.payload, recovered)
		}
	}()
	fn(env.payload)
}

// send enqueues an event and fires hooks. Used by the typed Publish methods.
func (bus *EventBus) send(event Event, payload any) {
	select {
	case bus.ch <- envelope{event: event, payload: payload}:
		bus.runOnPublish(event, payload)
	default:
		bus.runOnDrop(event, payload)
	}
}

// subscribe registers an untyped handler. Used by the typed Subscribe methods.
func (bus *EventBus) subscribe(event Event, fn func(any)) {
	bus.mu.Lock()
	bus.subs[event] = append(bus.subs[event], fn)
	bus.mu.Unlock()
	bus.runOnSubscribe(event)
}
