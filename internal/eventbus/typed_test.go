package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	module string
	msg    string
}

func TestTypedBusDeliversToEverySubscriber(t *testing.T) {
	bus := NewTyped[note]()
	a, b := bus.Subscribe(), bus.Subscribe()
	bus.Publish(note{"zone", "visa granted"})
	assert.Equal(t, note{"zone", "visa granted"}, <-a)
	assert.Equal(t, note{"zone", "visa granted"}, <-b)

	bus.Unsubscribe(a)
	_, open := <-a
	assert.False(t, open)
	bus.Publish(note{"health", "carrier lost"})
	assert.Equal(t, "health", (<-b).module)
}

func TestTypedBusCloseIsIdempotent(t *testing.T) {
	bus := NewTyped[int]()
	ch := bus.Subscribe()
	bus.Close()
	bus.Close()
	_, open := <-ch
	assert.False(t, open)
	assert.NotPanics(t, func() { bus.Unsubscribe(ch) })
	assert.NotPanics(t, func() { bus.Publish(1) })
}

func TestTypedBusSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewTyped[int]()
	slow := bus.Subscribe()
	fast := bus.Subscribe()
	for i := 0; i < defaultBuffer+4; i++ {
		bus.Publish(i)
		require.Equal(t, i, <-fast)
	}
	assert.Equal(t, uint64(4), bus.Dropped())
	assert.Len(t, slow, defaultBuffer)
}
