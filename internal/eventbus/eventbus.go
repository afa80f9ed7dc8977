// Package eventbus fans in-process signals out to subscribers: re-dispatch
// requests, trip transitions, visa decisions and carrier disconnections.
// Publishing never blocks the publisher.
package eventbus

import "context"

// Event represents an arbitrary event passed on the bus.
type Event interface{}

// EventBus implements a simple publish/subscribe event bus.
type EventBus interface {
	Publish(Event)
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

// Bus is the default EventBus implementation using fan-out channels.
type Bus struct {
	f fanout[Event]
}

// New creates a Bus whose subscribers buffer 8 events.
func New() *Bus { return &Bus{} }

// NewWithBuffer creates a Bus whose subscribers buffer size events.
func NewWithBuffer(size int) *Bus { return &Bus{f: fanout[Event]{buffer: size}} }

// Publish sends the event to all subscribers. Delivery is non-blocking.
func (b *Bus) Publish(e Event) { b.f.publish(e) }

// Subscribe registers a new subscriber and returns its channel.
func (b *Bus) Subscribe() <-chan Event { return b.f.subscribe() }

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub <-chan Event) { b.f.unsubscribe(sub) }

// Close closes all subscriber channels and clears the list.
func (b *Bus) Close() { b.f.close() }

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (b *Bus) Dropped() uint64 { return b.f.dropped.Load() }

// On calls fn for every event of type T published on bus until ctx is done
// or the bus is closed. fn runs on a single goroutine owned by On.
func On[T any](ctx context.Context, bus EventBus, fn func(T)) {
	if bus == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if e, ok := ev.(T); ok {
					fn(e)
				}
			}
		}
	}()
}
