package eventbus

// TypedBus is a type-safe publish/subscribe bus for events of type T.
type TypedBus[T any] struct {
	f fanout[T]
}

// NewTyped creates a new TypedBus.
func NewTyped[T any]() *TypedBus[T] { return &TypedBus[T]{} }

// Publish sends the event to all subscribers. Delivery is non-blocking.
func (b *TypedBus[T]) Publish(e T) { b.f.publish(e) }

// Subscribe registers a subscriber and returns its channel.
func (b *TypedBus[T]) Subscribe() <-chan T { return b.f.subscribe() }

// Unsubscribe removes the subscriber and closes its channel.
func (b *TypedBus[T]) Unsubscribe(sub <-chan T) { b.f.unsubscribe(sub) }

// Close closes the bus and all subscriber channels.
func (b *TypedBus[T]) Close() { b.f.close() }

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (b *TypedBus[T]) Dropped() uint64 { return b.f.dropped.Load() }
