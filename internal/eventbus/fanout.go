package eventbus

import (
	"sync"
	"sync/atomic"
)

const defaultBuffer = 8

// fanout is the channel set shared by Bus and TypedBus.
type fanout[T any] struct {
	mu      sync.RWMutex
	subs    []chan T
	closed  bool
	buffer  int
	dropped atomic.Uint64
}

// publish never blocks: a subscriber whose buffer is full misses e.
func (f *fanout[T]) publish(e T) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	for _, ch := range f.subs {
		select {
		case ch <- e:
		default:
			f.dropped.Add(1)
		}
	}
}

func (f *fanout[T]) subscribe() <-chan T {
	size := f.buffer
	if size <= 0 {
		size = defaultBuffer
	}
	ch := make(chan T, size)
	f.mu.Lock()
	if f.closed {
		close(ch)
	} else {
		f.subs = append(f.subs, ch)
	}
	f.mu.Unlock()
	return ch
}

func (f *fanout[T]) unsubscribe(sub <-chan T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, ch := range f.subs {
		if ch == sub {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			if !f.closed {
				close(ch)
			}
			return
		}
	}
}

func (f *fanout[T]) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
}
