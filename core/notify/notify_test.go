package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetcore/internal/eventbus"
)

type recordSink struct{ got []Notification }

func (r *recordSink) Notify(_ context.Context, n Notification) { r.got = append(r.got, n) }

func TestBusSinkPublishes(t *testing.T) {
	bus := eventbus.NewTyped[Notification]()
	ch := bus.Subscribe()
	BusSink{Bus: bus}.Notify(context.Background(), Notification{Message: "hello", Entities: []string{"c1"}})
	n := <-ch
	assert.Equal(t, "hello", n.Message)
	assert.False(t, n.Time.IsZero())
}

func TestMultiAndSend(t *testing.T) {
	a, b := &recordSink{}, &recordSink{}
	Send(context.Background(), Multi{a, b, NopSink{}}, "trip", LevelAlert, "trip 1 failed", "c1", "trip-1")
	require.Len(t, a.got, 1)
	require.Len(t, b.got, 1)
	assert.Equal(t, []string{"c1", "trip-1"}, a.got[0].Entities)
	assert.Equal(t, LevelAlert, b.got[0].Level)
	Send(context.Background(), nil, "x", LevelInfo, "ignored")
}
